package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/adityadaniel/flora-friend/store"

	"github.com/gin-gonic/gin"
)

const maxListLimit = 200

// ListPlants returns the caller's saved identifications, newest first.
// Supports ?limit= and ?offset=.
func ListPlants(c *gin.Context) {
	subject, ok := subjectFrom(c)
	if !ok {
		return
	}
	if db == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db not initialized"})
		return
	}

	limit := 50
	if q := c.Query("limit"); q != "" {
		if v, err := parsePositiveInt(q); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := 0
	if q := c.Query("offset"); q != "" {
		if v, err := parsePositiveInt(q); err == nil && v > 0 {
			offset = v
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	plants, err := db.ListRecords(ctx, subject, limit, offset)
	if err != nil {
		log.Printf("list plants failed sub=%s err=%v", subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load plants"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":  len(plants),
		"limit":  limit,
		"offset": offset,
		"plants": plants,
	})
}

// GetPlant returns one saved identification.
func GetPlant(c *gin.Context) {
	subject, ok := subjectFrom(c)
	if !ok {
		return
	}
	if db == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db not initialized"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	plant, err := db.GetRecord(ctx, subject, c.Param("id"))
	if err != nil {
		respondStoreError(c, err, "plant not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"plant": plant})
}

// GetPlantImage serves the JPEG that was sent to the provider.
func GetPlantImage(c *gin.Context) {
	subject, ok := subjectFrom(c)
	if !ok {
		return
	}
	if db == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db not initialized"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	image, err := db.RecordImage(ctx, subject, c.Param("id"))
	if err != nil {
		respondStoreError(c, err, "plant not found")
		return
	}
	if len(image) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no image"})
		return
	}
	c.Header("Cache-Control", "private, max-age=86400")
	c.Data(http.StatusOK, "image/jpeg", image)
}

// DeletePlant removes a saved identification and its chat log.
func DeletePlant(c *gin.Context) {
	subject, ok := subjectFrom(c)
	if !ok {
		return
	}
	if db == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db not initialized"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := db.DeleteRecord(ctx, subject, c.Param("id")); err != nil {
		respondStoreError(c, err, "plant not found")
		return
	}
	c.Status(http.StatusNoContent)
}

func respondStoreError(c *gin.Context, err error, notFoundMsg string) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": notFoundMsg})
		return
	}
	log.Printf("store error path=%s err=%v", c.Request.URL.Path, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "storage error"})
}
