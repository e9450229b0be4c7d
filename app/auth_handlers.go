// Package app provides public health and authenticated identity endpoints.
package app

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/adityadaniel/flora-friend/entitlement"

	"github.com/gin-gonic/gin"
)

// Health is a public health check endpoint.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Me returns the plan and free-use state for the authenticated user.
func Me(c *gin.Context) {
	g, ok := gateFor(c)
	if !ok {
		return
	}
	view := entitlementView(g)
	view["subject"] = g.Subject()
	c.JSON(http.StatusOK, view)
}

// RefreshEntitlement asks the payments provider for the latest subscription
// truth before answering.
func RefreshEntitlement(c *gin.Context) {
	g, ok := gateFor(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), paymentsTimeout)
	defer cancel()

	if err := g.RefreshSubscriptionStatus(ctx); err != nil {
		if errors.Is(err, entitlement.ErrNoProvider) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "billing not configured"})
			return
		}
		log.Printf("entitlement refresh failed sub=%s err=%v", g.Subject(), err)
		view := entitlementView(g)
		view["error"] = "failed to refresh subscription"
		c.JSON(http.StatusBadGateway, view)
		return
	}
	c.JSON(http.StatusOK, entitlementView(g))
}
