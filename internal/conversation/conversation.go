// Package conversation keeps bounded per-user chat history in memory.
package conversation

import (
	"sync"
	"time"
)

// DefaultMaxMessages caps stored history per user.
const DefaultMaxMessages = 20

// Message roles as sent to chat providers.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is a single turn in a user's conversation.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Store holds per-user conversation history, trimmed FIFO to a fixed cap.
// Histories of different users are fully independent. Safe for concurrent
// use.
type Store struct {
	mu           sync.RWMutex
	maxMessages  int
	conversation map[string][]Message
}

// NewStore creates a Store keeping at most maxMessages turns per user.
// Non-positive values fall back to DefaultMaxMessages.
func NewStore(maxMessages int) *Store {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	return &Store{
		maxMessages:  maxMessages,
		conversation: make(map[string][]Message),
	}
}

// Append records a message for the user, dropping the oldest entries once
// the cap is exceeded.
func (s *Store) Append(userID, role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := append(s.conversation[userID], Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
	if len(history) > s.maxMessages {
		history = history[len(history)-s.maxMessages:]
	}
	s.conversation[userID] = history
}

// Get returns a copy of the user's history, oldest first. Unknown users get
// an empty slice.
func (s *Store) Get(userID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.conversation[userID]
	out := make([]Message, len(history))
	copy(out, history)
	return out
}

// Last returns a copy of the user's most recent n messages, oldest first.
func (s *Store) Last(userID string, n int) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.conversation[userID]
	if n < len(history) {
		history = history[len(history)-n:]
	}
	out := make([]Message, len(history))
	copy(out, history)
	return out
}

// Clear removes the user's history, reporting whether any existed.
func (s *Store) Clear(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.conversation[userID]
	delete(s.conversation, userID)
	return existed
}

// Stats reports the number of active conversations and total stored
// messages.
func (s *Store) Stats() (users, messages int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, history := range s.conversation {
		messages += len(history)
	}
	return len(s.conversation), messages
}
