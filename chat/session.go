// Package chat keeps the per-plant conversation log and talks to the
// assistant model.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/adityadaniel/flora-friend/app/models"
)

const (
	welcomeTemplate = "Hi! I'm here to help you with questions about your %s (%s). Ask me anything about plant care, characteristics, or any specific concerns you might have!"
	apologyReply    = "Sorry, I'm having trouble responding right now. Please try again later."

	// historyWindow bounds how many earlier turns are sent to the assistant.
	historyWindow = 10
)

var ErrEmptyMessage = errors.New("chat: message is empty")

// Store is the persistence the session needs. AppendMessage assigns ID and
// Seq on the passed message. StartLog stores the first message of an empty
// log at most once and returns the log as stored.
type Store interface {
	ListMessages(ctx context.Context, plantID string) ([]models.ChatMessage, error)
	AppendMessage(ctx context.Context, msg *models.ChatMessage) error
	StartLog(ctx context.Context, msg *models.ChatMessage) ([]models.ChatMessage, error)
}

// Responder produces an assistant reply about record.
type Responder interface {
	Reply(ctx context.Context, record models.PlantRecord, history []models.ChatMessage, text string) (string, error)
}

// Session is the chat log of one record. Messages are kept in insertion
// order; persistence failures are logged and the in-memory log still grows.
type Session struct {
	store  Store
	record models.PlantRecord
	now    func() time.Time

	mu       sync.Mutex
	messages []models.ChatMessage
}

// Attach loads the existing log of record. An empty log gets exactly one
// welcome message from the assistant side.
func Attach(ctx context.Context, store Store, record models.PlantRecord) (*Session, error) {
	s := &Session{store: store, record: record, now: time.Now}

	if store != nil {
		msgs, err := store.ListMessages(ctx, record.ID)
		if err != nil {
			return nil, fmt.Errorf("load chat history: %w", err)
		}
		s.messages = msgs
	}

	if len(s.messages) == 0 {
		s.start(ctx, fmt.Sprintf(welcomeTemplate, record.CommonName, record.ScientificName))
	}
	return s, nil
}

// start seeds an empty log with an assistant message. A concurrent opener
// that already seeded the log wins and its log is adopted.
func (s *Session) start(ctx context.Context, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := models.ChatMessage{
		PlantID:   s.record.ID,
		Content:   text,
		CreatedAt: s.now().UTC(),
		Seq:       1,
	}
	if s.store != nil {
		msgs, err := s.store.StartLog(ctx, &msg)
		if err == nil && len(msgs) > 0 {
			s.messages = msgs
			return
		}
		if err != nil {
			log.Printf("chat: persist welcome failed plant=%s err=%v", s.record.ID, err)
		}
	}
	s.messages = []models.ChatMessage{msg}
}

func (s *Session) Record() models.PlantRecord { return s.record }

// Messages returns a copy of the log in insertion order.
func (s *Session) Messages() []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// AppendUserMessage records a user turn. Whitespace-only text is rejected.
func (s *Session) AppendUserMessage(ctx context.Context, text string) (models.ChatMessage, error) {
	if strings.TrimSpace(text) == "" {
		return models.ChatMessage{}, ErrEmptyMessage
	}
	return s.append(ctx, text, true), nil
}

// AppendReply records an assistant turn.
func (s *Session) AppendReply(ctx context.Context, text string) models.ChatMessage {
	return s.append(ctx, text, false)
}

// Send appends the user turn, asks responder and appends its reply. When the
// responder fails the fixed apology is appended instead and the error is
// returned alongside it.
func (s *Session) Send(ctx context.Context, responder Responder, text string) (user, reply models.ChatMessage, err error) {
	history := s.recent(historyWindow)

	user, err = s.AppendUserMessage(ctx, text)
	if err != nil {
		return models.ChatMessage{}, models.ChatMessage{}, err
	}

	answer, rerr := responder.Reply(ctx, s.record, history, text)
	if rerr == nil && strings.TrimSpace(answer) == "" {
		rerr = errors.New("chat: empty reply")
	}
	if rerr != nil {
		log.Printf("chat: reply failed plant=%s err=%v", s.record.ID, rerr)
		return user, s.AppendReply(ctx, apologyReply), rerr
	}
	return user, s.AppendReply(ctx, answer), nil
}

func (s *Session) recent(n int) []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := 0
	if len(s.messages) > n {
		start = len(s.messages) - n
	}
	out := make([]models.ChatMessage, len(s.messages)-start)
	copy(out, s.messages[start:])
	return out
}

func (s *Session) append(ctx context.Context, text string, fromUser bool) models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := models.ChatMessage{
		PlantID:   s.record.ID,
		Content:   text,
		FromUser:  fromUser,
		CreatedAt: s.now().UTC(),
	}
	if n := len(s.messages); n > 0 {
		msg.Seq = s.messages[n-1].Seq + 1
	} else {
		msg.Seq = 1
	}
	if s.store != nil {
		if err := s.store.AppendMessage(ctx, &msg); err != nil {
			log.Printf("chat: persist message failed plant=%s user=%t err=%v", s.record.ID, fromUser, err)
		}
	}
	s.messages = append(s.messages, msg)
	return msg
}

// SuggestedQuestions are the starter prompts offered next to the chat.
func SuggestedQuestions() []string {
	return []string{
		"How often should I water this plant?",
		"What kind of light does it need?",
		"How do I know if it's healthy?",
		"When should I repot it?",
		"What are common problems with this plant?",
		"How do I propagate this plant?",
		"Is this plant safe for pets?",
		"What fertilizer should I use?",
		"Why are the leaves turning yellow?",
		"How big will this plant get?",
	}
}
