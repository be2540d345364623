package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/orizonpaybr/gateway-web-sub001/internal/store"
	"github.com/orizonpaybr/gateway-web-sub001/internal/upstream"
	"github.com/orizonpaybr/gateway-web-sub001/libs/token"
	"log/slog"
)

type State int

const (
	StateAnonymous State = iota
	StatePendingTwoFactor
	StateActive
)

func (s State) String() string {
	switch s {
	case StatePendingTwoFactor:
		return "pending_2fa"
	case StateActive:
		return "active"
	default:
		return "anonymous"
	}
}

var (
	ErrLoginFailed      = errors.New("login failed")
	ErrNoChallenge      = errors.New("no pending 2fa challenge")
	ErrNotAuthenticated = errors.New("not authenticated")
)

// GatewayAPI is the slice of the gateway client the manager needs.
type GatewayAPI interface {
	Login(ctx context.Context, identifier, secret string) (*upstream.LoginResult, error)
	Verify2FA(ctx context.Context, tempToken, code string) (*upstream.LoginResult, error)
	Logout(ctx context.Context, token string) error
	Register(ctx context.Context, data upstream.RegisterData, documents []upstream.Document) (*upstream.LoginResult, error)
	Profile(ctx context.Context, token string) (*upstream.Session, error)
	VerifyToken(ctx context.Context, token string) error
}

type Config struct {
	// SessionTTL sizes storage entries when the gateway token carries
	// no readable expiry.
	SessionTTL time.Duration
	// PendingTTL bounds how long a 2FA temp token is kept around.
	PendingTTL time.Duration
	// RevalidateDelay is how long after first seeing a persisted
	// session the manager waits before revalidating it upstream.
	RevalidateDelay time.Duration
}

// Manager is the single writer of session state: who is logged in and
// how far through authentication they are. Everything else reads
// through Current.
type Manager struct {
	api    GatewayAPI
	store  store.Store
	logger *slog.Logger
	cfg    Config
	nowFn  func() time.Time

	mu          sync.Mutex
	revalidated map[string]struct{}
	onLogout    []func(sessionID string)
}

type Snapshot struct {
	SessionID string
	State     State
	User      *upstream.Session
	Token     string
	// TwoFactorSatisfied carries the per-browser-session marker: this
	// session already passed the 2FA gate, navigations within it do not
	// re-prompt.
	TwoFactorSatisfied bool
}

type LoginOutcome struct {
	SessionID   string
	State       State
	User        *upstream.Session
	Requires2FA bool
}

func NewManager(api GatewayAPI, st store.Store, logger *slog.Logger, cfg Config) *Manager {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 12 * time.Hour
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = 10 * time.Minute
	}
	return &Manager{
		api:         api,
		store:       st,
		logger:      logger,
		cfg:         cfg,
		nowFn:       time.Now,
		revalidated: map[string]struct{}{},
	}
}

// OnLogout registers a hook run after a session is torn down. The
// deposit registry uses it to stop that session's pollers.
func (m *Manager) OnLogout(fn func(sessionID string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onLogout = append(m.onLogout, fn)
}

// Login submits credentials. It yields either an active session or a
// pending 2FA challenge; a challenge never populates an active session.
func (m *Manager) Login(ctx context.Context, identifier, secret string) (*LoginOutcome, error) {
	res, err := m.api.Login(ctx, identifier, secret)
	if err != nil {
		return nil, loginError(err)
	}

	sessionID := uuid.NewString()

	if res.Requires2FA {
		if res.TempToken == "" {
			return nil, ErrLoginFailed
		}
		if err := m.store.Set(ctx, sessionID, store.KeyPendingChallenge, res.TempToken, m.cfg.PendingTTL); err != nil {
			return nil, fmt.Errorf("persist 2fa challenge: %w", err)
		}
		return &LoginOutcome{SessionID: sessionID, State: StatePendingTwoFactor, Requires2FA: true}, nil
	}

	if err := m.establish(ctx, sessionID, res.Token, res.Session); err != nil {
		return nil, err
	}
	return &LoginOutcome{SessionID: sessionID, State: StateActive, User: res.Session}, nil
}

// Verify2FA exchanges the pending temp token and a one-time code for a
// confirmed session. The temp token is consumed exactly once: success
// deletes it; failure leaves it intact for a retry with a fresh code.
func (m *Manager) Verify2FA(ctx context.Context, sessionID, code string) (*LoginOutcome, error) {
	tempToken, err := m.store.Get(ctx, sessionID, store.KeyPendingChallenge)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNoChallenge
		}
		return nil, fmt.Errorf("load 2fa challenge: %w", err)
	}

	res, err := m.api.Verify2FA(ctx, tempToken, code)
	if err != nil {
		return nil, loginError(err)
	}

	if err := m.store.Delete(ctx, sessionID, store.KeyPendingChallenge); err != nil {
		m.logger.Error("discard consumed 2fa challenge failed", "error", err)
	}
	if err := m.establish(ctx, sessionID, res.Token, res.Session); err != nil {
		return nil, err
	}
	ttl := token.TTL(res.Token, m.nowFn(), m.cfg.SessionTTL)
	if err := m.store.Set(ctx, sessionID, store.Key2FASatisfied, "1", ttl); err != nil {
		m.logger.Error("persist 2fa marker failed", "error", err)
	}

	return &LoginOutcome{SessionID: sessionID, State: StateActive, User: res.Session}, nil
}

// Logout invalidates server-side best-effort and always clears local
// state. The user-facing goal is "get me out"; a gateway hiccup must
// not block it.
func (m *Manager) Logout(ctx context.Context, sessionID string) {
	if gwToken, err := m.store.Get(ctx, sessionID, store.KeyToken); err == nil && gwToken != "" {
		if err := m.api.Logout(ctx, gwToken); err != nil {
			m.logger.Warn("gateway logout failed", "error", err)
		}
	}

	if err := m.store.Clear(ctx, sessionID); err != nil {
		m.logger.Error("clear session storage failed", "session_id", sessionID, "error", err)
	}

	m.mu.Lock()
	delete(m.revalidated, sessionID)
	hooks := make([]func(string), len(m.onLogout))
	copy(hooks, m.onLogout)
	m.mu.Unlock()

	for _, fn := range hooks {
		fn(sessionID)
	}
}

// Register creates an account and establishes an active session from
// the response. A stale 2FA challenge left over from a previous login
// attempt is discarded first; registration never inherits one.
func (m *Manager) Register(ctx context.Context, previousSessionID string, data upstream.RegisterData, documents []upstream.Document) (*LoginOutcome, error) {
	if previousSessionID != "" {
		if err := m.store.Delete(ctx, previousSessionID, store.KeyPendingChallenge); err != nil {
			m.logger.Warn("discard stale 2fa challenge failed", "error", err)
		}
	}

	res, err := m.api.Register(ctx, data, documents)
	if err != nil {
		return nil, loginError(err)
	}

	sessionID := uuid.NewString()
	if err := m.establish(ctx, sessionID, res.Token, res.Session); err != nil {
		return nil, err
	}
	return &LoginOutcome{SessionID: sessionID, State: StateActive, User: res.Session}, nil
}

// Current resolves a dashboard session id into its state. Seeing a
// persisted active session also schedules the one-shot asynchronous
// revalidation against the gateway (the hydrate-then-confirm phase).
func (m *Manager) Current(ctx context.Context, sessionID string) (*Snapshot, error) {
	gwToken, tokenErr := m.store.Get(ctx, sessionID, store.KeyToken)
	if tokenErr != nil && !errors.Is(tokenErr, store.ErrNotFound) {
		return nil, fmt.Errorf("load session token: %w", tokenErr)
	}

	if tokenErr == nil && gwToken != "" {
		raw, err := m.store.Get(ctx, sessionID, store.KeyUser)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("load session user: %w", err)
			}
			return &Snapshot{SessionID: sessionID, State: StateAnonymous}, nil
		}
		var user upstream.Session
		if err := json.Unmarshal([]byte(raw), &user); err != nil {
			return nil, fmt.Errorf("decode persisted session: %w", err)
		}
		m.scheduleRevalidation(sessionID, gwToken)
		return &Snapshot{
			SessionID:          sessionID,
			State:              StateActive,
			User:               &user,
			Token:              gwToken,
			TwoFactorSatisfied: m.TwoFactorSatisfied(ctx, sessionID),
		}, nil
	}

	if _, err := m.store.Get(ctx, sessionID, store.KeyPendingChallenge); err == nil {
		return &Snapshot{SessionID: sessionID, State: StatePendingTwoFactor}, nil
	}

	return &Snapshot{SessionID: sessionID, State: StateAnonymous}, nil
}

// RefreshProfile refetches the profile from the gateway and replaces
// the persisted snapshot.
func (m *Manager) RefreshProfile(ctx context.Context, sessionID string) (*upstream.Session, error) {
	gwToken, err := m.store.Get(ctx, sessionID, store.KeyToken)
	if err != nil {
		return nil, ErrNotAuthenticated
	}
	user, err := m.api.Profile(ctx, gwToken)
	if err != nil {
		return nil, err
	}
	if err := m.saveUser(ctx, sessionID, gwToken, user); err != nil {
		return nil, err
	}
	return user, nil
}

// TwoFactorSatisfied reports whether this browser session already
// passed the 2FA gate, so navigations within it do not re-prompt.
func (m *Manager) TwoFactorSatisfied(ctx context.Context, sessionID string) bool {
	_, err := m.store.Get(ctx, sessionID, store.Key2FASatisfied)
	return err == nil
}

// ShouldPromptTwoFactorSetup reports whether the dashboard should
// nudge this session to enroll in 2FA. True at most once: the check is
// recorded under the setup-checked key so later navigations stay
// quiet, and a session that came through the 2FA gate is never
// prompted.
func (m *Manager) ShouldPromptTwoFactorSetup(ctx context.Context, sessionID string) bool {
	if m.TwoFactorSatisfied(ctx, sessionID) {
		return false
	}
	if _, err := m.store.Get(ctx, sessionID, store.Key2FAChecked); err == nil {
		return false
	}
	gwToken, err := m.store.Get(ctx, sessionID, store.KeyToken)
	if err != nil {
		return false
	}

	ttl := token.TTL(gwToken, m.nowFn(), m.cfg.SessionTTL)
	if err := m.store.Set(ctx, sessionID, store.Key2FAChecked, "1", ttl); err != nil {
		m.logger.Error("persist 2fa setup marker failed", "error", err)
	}
	return true
}

func (m *Manager) establish(ctx context.Context, sessionID, gwToken string, user *upstream.Session) error {
	if gwToken == "" || user == nil {
		return ErrLoginFailed
	}
	ttl := token.TTL(gwToken, m.nowFn(), m.cfg.SessionTTL)
	if err := m.store.Set(ctx, sessionID, store.KeyToken, gwToken, ttl); err != nil {
		return fmt.Errorf("persist session token: %w", err)
	}
	return m.saveUser(ctx, sessionID, gwToken, user)
}

func (m *Manager) saveUser(ctx context.Context, sessionID, gwToken string, user *upstream.Session) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	ttl := token.TTL(gwToken, m.nowFn(), m.cfg.SessionTTL)
	if err := m.store.Set(ctx, sessionID, store.KeyUser, string(raw), ttl); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

// scheduleRevalidation fires the deferred token check at most once per
// session id per process. The delay gives storage reads time to settle
// after a restart before the first authenticated call goes out.
func (m *Manager) scheduleRevalidation(sessionID, gwToken string) {
	m.mu.Lock()
	if _, done := m.revalidated[sessionID]; done {
		m.mu.Unlock()
		return
	}
	m.revalidated[sessionID] = struct{}{}
	m.mu.Unlock()

	go func() {
		if m.cfg.RevalidateDelay > 0 {
			time.Sleep(m.cfg.RevalidateDelay)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		m.revalidate(ctx, sessionID, gwToken)
	}()
}

// revalidate confirms a hydrated session upstream. Neither a transport
// failure nor an explicit invalid-token answer evicts the user: the
// cached identity stays and the next authenticated gateway call is the
// one that fails visibly. See the session revalidation test for the
// pinned behavior.
func (m *Manager) revalidate(ctx context.Context, sessionID, gwToken string) {
	err := m.api.VerifyToken(ctx, gwToken)
	switch {
	case err == nil:
		if user, perr := m.api.Profile(ctx, gwToken); perr == nil {
			if serr := m.saveUser(ctx, sessionID, gwToken, user); serr != nil {
				m.logger.Error("refresh revalidated session failed", "error", serr)
			}
		}
	case errors.Is(err, upstream.ErrTokenInvalid):
		m.logger.Warn("gateway reports session token invalid; keeping cached session", "session_id", sessionID)
	default:
		m.logger.Warn("session revalidation unreachable; keeping cached session", "error", err)
	}
}

// loginError keeps backend-provided messages verbatim and folds
// transport noise into a generic failure.
func loginError(err error) error {
	var apiErr *upstream.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return fmt.Errorf("%w: %v", ErrLoginFailed, err)
}
