package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/adityadaniel/flora-friend/app/models"
	"github.com/adityadaniel/flora-friend/chat"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const maxChatBytes = 4000

type chatRequest struct {
	Text string `json:"text"`
}

// openSession loads the caller's plant and attaches to its chat log.
func openSession(c *gin.Context) (*chat.Session, bool) {
	subject, ok := subjectFrom(c)
	if !ok {
		return nil, false
	}
	if db == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db not initialized"})
		return nil, false
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	plant, err := db.GetRecord(ctx, subject, c.Param("id"))
	if err != nil {
		respondStoreError(c, err, "plant not found")
		return nil, false
	}
	s, err := chat.Attach(ctx, db, plant)
	if err != nil {
		log.Printf("chat attach failed plant=%s err=%v", plant.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chat"})
		return nil, false
	}
	return s, true
}

// GetChat returns the plant's chat log, creating the welcome turn on first
// open.
func GetChat(c *gin.Context) {
	s, ok := openSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"plantId":     s.Record().ID,
		"messages":    s.Messages(),
		"suggestions": chat.SuggestedQuestions(),
	})
}

// PostChatMessage appends a user turn and the assistant's reply.
func PostChatMessage(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is empty"})
		return
	}
	if len(req.Text) > maxChatBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "message too long"})
		return
	}
	if assistant == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "chat not configured"})
		return
	}

	s, ok := openSession(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), chatTimeout)
	defer cancel()

	user, reply, err := s.Send(ctx, assistant, req.Text)
	if errors.Is(err, chat.ErrEmptyMessage) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is empty"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":        user,
		"reply":       reply,
		"replyFailed": err != nil,
	})
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type wsEvent struct {
	Type        string               `json:"type"`
	Messages    []models.ChatMessage `json:"messages,omitempty"`
	Suggestions []string             `json:"suggestions,omitempty"`
	User        *models.ChatMessage  `json:"user,omitempty"`
	Reply       *models.ChatMessage  `json:"reply,omitempty"`
	Error       string               `json:"error,omitempty"`
}

// ChatWebSocket streams one plant's chat. The first frame carries the log;
// every {"text": ...} frame from the client gets a user/reply pair back.
func ChatWebSocket(c *gin.Context) {
	if assistant == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "chat not configured"})
		return
	}
	s, ok := openSession(c)
	if !ok {
		return
	}

	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("chat websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxChatBytes * 2)

	if err := conn.WriteJSON(wsEvent{
		Type:        "history",
		Messages:    s.Messages(),
		Suggestions: chat.SuggestedQuestions(),
	}); err != nil {
		return
	}

	ctx := c.Request.Context()
	for {
		var req chatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("chat websocket read failed plant=%s err=%v", s.Record().ID, err)
			}
			return
		}
		if strings.TrimSpace(req.Text) == "" || len(req.Text) > maxChatBytes {
			if err := conn.WriteJSON(wsEvent{Type: "error", Error: "message is empty or too long"}); err != nil {
				return
			}
			continue
		}

		sendCtx, cancel := context.WithTimeout(ctx, chatTimeout)
		user, reply, err := s.Send(sendCtx, assistant, req.Text)
		cancel()

		ev := wsEvent{Type: "message", User: &user, Reply: &reply}
		if err != nil {
			ev.Error = "reply failed"
		}
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
}
