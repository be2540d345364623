package store

import (
	"context"
	"errors"
	"time"
)

// Store persists per-browser-session state under fixed keys: the
// gateway bearer token, the serialized session snapshot, the pending
// 2FA challenge and the transient 2FA markers. Only the session
// manager writes here; everything else reads through it.
type Store interface {
	Set(ctx context.Context, sessionID, key, value string, ttl time.Duration) error
	Get(ctx context.Context, sessionID, key string) (string, error)
	Delete(ctx context.Context, sessionID string, keys ...string) error
	// Clear removes every known key for the session id.
	Clear(ctx context.Context, sessionID string) error
}

var ErrNotFound = errors.New("key not found")

// Fixed storage keys. The 2FA markers live and die with the browser
// session; logout clears all of them.
const (
	KeyToken            = "token"
	KeyUser             = "user"
	KeyPendingChallenge = "2fa_pending"
	Key2FASatisfied     = "2fa_satisfied"
	Key2FAChecked       = "2fa_setup_checked"
)

// AllKeys is the clear list: a session is fully gone once these are.
var AllKeys = []string{KeyToken, KeyUser, KeyPendingChallenge, Key2FASatisfied, Key2FAChecked}
