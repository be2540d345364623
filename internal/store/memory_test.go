package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Set(ctx, "sess-1", KeyToken, "gw-token", 0); err != nil {
		t.Fatalf("set: %v", err)
	}

	value, err := s.Get(ctx, "sess-1", KeyToken)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if value != "gw-token" {
		t.Fatalf("expected gw-token, got %q", value)
	}

	if _, err := s.Get(ctx, "sess-2", KeyToken); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for another session, got %v", err)
	}
}

func TestMemoryStoreTTLExpiry(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now()
	s.nowFn = func() time.Time { return now }
	ctx := context.Background()

	if err := s.Set(ctx, "sess-1", KeyPendingChallenge, "temp", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := s.Get(ctx, "sess-1", KeyPendingChallenge); err != nil {
		t.Fatalf("get before expiry: %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := s.Get(ctx, "sess-1", KeyPendingChallenge); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestMemoryStoreClearRemovesAllSessionKeys(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for _, key := range AllKeys {
		if err := s.Set(ctx, "sess-1", key, "v", 0); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}
	if err := s.Set(ctx, "sess-2", KeyToken, "other", 0); err != nil {
		t.Fatalf("set other session: %v", err)
	}

	if err := s.Clear(ctx, "sess-1"); err != nil {
		t.Fatalf("clear: %v", err)
	}

	for _, key := range AllKeys {
		if _, err := s.Get(ctx, "sess-1", key); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected %s cleared, got %v", key, err)
		}
	}
	if _, err := s.Get(ctx, "sess-2", KeyToken); err != nil {
		t.Fatalf("clear must not touch other sessions: %v", err)
	}
}
