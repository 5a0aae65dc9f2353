package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"call-compass-go/internal/logger"
	"call-compass-go/internal/types"
)

// Message senders.
const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
)

const welcomeText = "Hi! Ask a question about your call analytics. Use filters to narrow the calls the answer covers."

// Message is one entry of the chat history.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Sender    string    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage stamps content with a fresh id and the current time.
func NewMessage(sender, content string) Message {
	return Message{ID: uuid.NewString(), Content: content, Sender: sender, Timestamp: time.Now()}
}

// ChatStore persists the chat history and the last used filters.
type ChatStore struct {
	mu  sync.Mutex
	kv  KV
	log *logger.Logger
}

func NewChatStore(kv KV, log *logger.Logger) *ChatStore {
	if log == nil {
		log = logger.New()
	}
	return &ChatStore{kv: kv, log: log.WithComponent("chat_store")}
}

func welcome() []Message {
	return []Message{{ID: "welcome", Content: welcomeText, Sender: SenderAssistant, Timestamp: time.Now()}}
}

// Messages returns the saved history, or a single welcome message when there is none or
// it cannot be read.
func (s *ChatStore) Messages(ctx context.Context) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs, err := s.load(ctx)
	if err != nil {
		s.log.WithError(err).Error("failed to read chat history")
		return welcome()
	}
	return msgs
}

func (s *ChatStore) load(ctx context.Context) ([]Message, error) {
	raw, ok, err := s.kv.Get(ctx, KeyChatMessages)
	if err != nil {
		return nil, fmt.Errorf("read chat history: %w", err)
	}
	if !ok {
		return welcome(), nil
	}
	var msgs []Message
	if err := json.Unmarshal(raw, &msgs); err != nil {
		s.log.WithError(err).Warn("chat history is corrupt, starting over")
		return welcome(), nil
	}
	if len(msgs) == 0 {
		return welcome(), nil
	}
	return msgs, nil
}

// Append adds messages to the saved history. When the history cannot be read nothing is
// written.
func (s *ChatStore) Append(ctx context.Context, msgs ...Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.load(ctx)
	if err != nil {
		return err
	}
	data, err := json.Marshal(append(all, msgs...))
	if err != nil {
		return fmt.Errorf("encode chat history: %w", err)
	}
	if err := s.kv.Set(ctx, KeyChatMessages, data); err != nil {
		return fmt.Errorf("save chat history: %w", err)
	}
	return nil
}

// ClearMessages drops the history; the next read returns the welcome message.
func (s *ChatStore) ClearMessages(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv.Remove(ctx, KeyChatMessages)
}

// Filters returns the saved chat filters, or zero filters.
func (s *ChatStore) Filters(ctx context.Context) types.ChatFilters {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok, err := s.kv.Get(ctx, KeyChatFilters)
	if err != nil || !ok {
		if err != nil {
			s.log.WithError(err).Error("failed to read chat filters")
		}
		return types.ChatFilters{}
	}
	var f types.ChatFilters
	if err := json.Unmarshal(raw, &f); err != nil {
		s.log.WithError(err).Warn("chat filters are corrupt, resetting")
		return types.ChatFilters{}
	}
	return f
}

func (s *ChatStore) SaveFilters(ctx context.Context, f types.ChatFilters) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode chat filters: %w", err)
	}
	return s.kv.Set(ctx, KeyChatFilters, data)
}
