package conversation

import (
	"fmt"
	"sync"
	"testing"
)

func TestAppendAndGet(t *testing.T) {
	s := NewStore(20)

	s.Append("u1", RoleUser, "hello")
	s.Append("u1", RoleAssistant, "hi there")

	history := s.Get("u1")
	if len(history) != 2 {
		t.Fatalf("got %d messages, want 2", len(history))
	}
	if history[0].Role != RoleUser || history[0].Content != "hello" {
		t.Errorf("first message = %+v, want user hello", history[0])
	}
	if history[1].Role != RoleAssistant {
		t.Errorf("second message role = %q, want assistant", history[1].Role)
	}
	if history[0].Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}

func TestGet_UnknownUserEmpty(t *testing.T) {
	s := NewStore(20)
	if history := s.Get("nobody"); len(history) != 0 {
		t.Errorf("got %d messages for unknown user, want 0", len(history))
	}
}

func TestGet_ReturnsCopy(t *testing.T) {
	s := NewStore(20)
	s.Append("u1", RoleUser, "original")

	history := s.Get("u1")
	history[0].Content = "mutated"

	if got := s.Get("u1")[0].Content; got != "original" {
		t.Errorf("stored history mutated through returned slice: %q", got)
	}
}

func TestAppend_TrimsToMax(t *testing.T) {
	const max = 5
	s := NewStore(max)

	for i := 0; i < max*3; i++ {
		s.Append("u1", RoleUser, fmt.Sprintf("message %d", i))
	}

	history := s.Get("u1")
	if len(history) != max {
		t.Fatalf("got %d messages, want exactly %d", len(history), max)
	}
	// Oldest messages are dropped first.
	if history[0].Content != "message 10" {
		t.Errorf("oldest kept message = %q, want %q", history[0].Content, "message 10")
	}
	if history[max-1].Content != "message 14" {
		t.Errorf("newest message = %q, want %q", history[max-1].Content, "message 14")
	}
}

func TestLast(t *testing.T) {
	s := NewStore(20)
	for i := 0; i < 15; i++ {
		s.Append("u1", RoleUser, fmt.Sprintf("message %d", i))
	}

	last := s.Last("u1", 10)
	if len(last) != 10 {
		t.Fatalf("got %d messages, want 10", len(last))
	}
	if last[0].Content != "message 5" {
		t.Errorf("window starts at %q, want %q", last[0].Content, "message 5")
	}

	// Window larger than history returns everything.
	if got := s.Last("u1", 100); len(got) != 15 {
		t.Errorf("oversized window returned %d messages, want 15", len(got))
	}
}

func TestClear(t *testing.T) {
	s := NewStore(20)
	s.Append("u1", RoleUser, "hello")
	s.Append("u2", RoleUser, "hello")

	if !s.Clear("u1") {
		t.Error("Clear(u1) = false for existing history")
	}
	if len(s.Get("u1")) != 0 {
		t.Error("u1 history survived Clear")
	}
	if len(s.Get("u2")) != 1 {
		t.Error("Clear affected another user's history")
	}

	if s.Clear("nobody") {
		t.Error("Clear(nobody) = true for unknown user")
	}
}

func TestUsersIndependent(t *testing.T) {
	s := NewStore(3)
	for i := 0; i < 10; i++ {
		s.Append("u1", RoleUser, "x")
	}
	s.Append("u2", RoleUser, "y")

	if len(s.Get("u1")) != 3 {
		t.Errorf("u1 history = %d, want 3", len(s.Get("u1")))
	}
	if len(s.Get("u2")) != 1 {
		t.Errorf("u2 history = %d, want 1", len(s.Get("u2")))
	}
}

func TestStats(t *testing.T) {
	s := NewStore(20)
	s.Append("u1", RoleUser, "a")
	s.Append("u1", RoleAssistant, "b")
	s.Append("u2", RoleUser, "c")

	users, messages := s.Stats()
	if users != 2 {
		t.Errorf("users = %d, want 2", users)
	}
	if messages != 3 {
		t.Errorf("messages = %d, want 3", messages)
	}
}

func TestConcurrentAccess(t *testing.T) {
	s := NewStore(10)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			userID := fmt.Sprintf("user-%d", id%2)
			for j := 0; j < 100; j++ {
				s.Append(userID, RoleUser, "msg")
				s.Get(userID)
				s.Stats()
			}
		}(i)
	}
	wg.Wait()

	for _, userID := range []string{"user-0", "user-1"} {
		if got := len(s.Get(userID)); got != 10 {
			t.Errorf("%s history = %d, want trimmed to 10", userID, got)
		}
	}
}
