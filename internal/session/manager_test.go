package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/orizonpaybr/gateway-web-sub001/internal/store"
	"github.com/orizonpaybr/gateway-web-sub001/internal/upstream"
	"github.com/orizonpaybr/gateway-web-sub001/libs/logging"
)

type fakeGateway struct {
	mu sync.Mutex

	loginResult    *upstream.LoginResult
	loginErr       error
	verifyResult   *upstream.LoginResult
	verifyErr      error
	registerResult *upstream.LoginResult
	registerErr    error
	profile        *upstream.Session
	profileErr     error
	logoutErr      error
	verifyTokenErr error

	loginCalls       int
	verifyCalls      int
	logoutCalls      int
	verifyTokenCalls int
	lastTempToken    string
}

func (f *fakeGateway) Login(_ context.Context, _, _ string) (*upstream.LoginResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginCalls++
	return f.loginResult, f.loginErr
}

func (f *fakeGateway) Verify2FA(_ context.Context, tempToken, _ string) (*upstream.LoginResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyCalls++
	f.lastTempToken = tempToken
	return f.verifyResult, f.verifyErr
}

func (f *fakeGateway) Logout(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutCalls++
	return f.logoutErr
}

func (f *fakeGateway) Register(context.Context, upstream.RegisterData, []upstream.Document) (*upstream.LoginResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registerResult, f.registerErr
}

func (f *fakeGateway) Profile(context.Context, string) (*upstream.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.profile, f.profileErr
}

func (f *fakeGateway) VerifyToken(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyTokenCalls++
	return f.verifyTokenErr
}

func (f *fakeGateway) counts() (login, verify, logout, verifyToken int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loginCalls, f.verifyCalls, f.logoutCalls, f.verifyTokenCalls
}

func testUser() *upstream.Session {
	return &upstream.Session{UserID: "u-1", Name: "Ana", Email: "ana@example.com", Permission: upstream.PermissionClient}
}

func newTestManager(api *fakeGateway) *Manager {
	return NewManager(api, store.NewMemoryStore(), logging.Discard(), Config{})
}

func TestLoginEstablishesActiveSession(t *testing.T) {
	api := &fakeGateway{loginResult: &upstream.LoginResult{Token: "gw-token", Session: testUser()}}
	m := newTestManager(api)

	outcome, err := m.Login(context.Background(), "ana@example.com", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if outcome.State != StateActive {
		t.Fatalf("expected active state, got %v", outcome.State)
	}
	if outcome.SessionID == "" {
		t.Fatal("expected a session id")
	}

	snapshot, err := m.Current(context.Background(), outcome.SessionID)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if snapshot.State != StateActive {
		t.Fatalf("expected active snapshot, got %v", snapshot.State)
	}
	if snapshot.Token != "gw-token" {
		t.Fatalf("expected persisted token, got %q", snapshot.Token)
	}
	if snapshot.User == nil || snapshot.User.UserID != "u-1" {
		t.Fatalf("expected persisted user, got %+v", snapshot.User)
	}
}

func TestLoginWith2FAChallengeIsNotActive(t *testing.T) {
	api := &fakeGateway{loginResult: &upstream.LoginResult{Requires2FA: true, TempToken: "temp-1"}}
	m := newTestManager(api)

	outcome, err := m.Login(context.Background(), "ana@example.com", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if outcome.State != StatePendingTwoFactor {
		t.Fatalf("expected pending state, got %v", outcome.State)
	}
	if outcome.User != nil {
		t.Fatal("a pending challenge must not carry a user")
	}

	snapshot, err := m.Current(context.Background(), outcome.SessionID)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if snapshot.State != StatePendingTwoFactor {
		t.Fatalf("expected pending snapshot, got %v", snapshot.State)
	}
	if snapshot.Token != "" {
		t.Fatal("a pending session must not expose a gateway token")
	}
}

func TestLoginChallengeWithoutTempTokenFails(t *testing.T) {
	api := &fakeGateway{loginResult: &upstream.LoginResult{Requires2FA: true}}
	m := newTestManager(api)

	if _, err := m.Login(context.Background(), "ana@example.com", "secret"); !errors.Is(err, ErrLoginFailed) {
		t.Fatalf("expected ErrLoginFailed, got %v", err)
	}
}

func TestLoginKeepsGatewayMessageVerbatim(t *testing.T) {
	api := &fakeGateway{loginErr: &upstream.APIError{Status: 401, Code: "BAD_CREDENTIALS", Message: "Credenciais inválidas"}}
	m := newTestManager(api)

	_, err := m.Login(context.Background(), "ana@example.com", "wrong")
	var apiErr *upstream.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Message != "Credenciais inválidas" {
		t.Fatalf("expected verbatim message, got %q", apiErr.Message)
	}
}

func TestVerify2FAConsumesChallengeOnce(t *testing.T) {
	api := &fakeGateway{
		loginResult:  &upstream.LoginResult{Requires2FA: true, TempToken: "temp-1"},
		verifyResult: &upstream.LoginResult{Token: "gw-token", Session: testUser()},
	}
	m := newTestManager(api)

	outcome, err := m.Login(context.Background(), "ana@example.com", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	verified, err := m.Verify2FA(context.Background(), outcome.SessionID, "123456")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if verified.State != StateActive {
		t.Fatalf("expected active state, got %v", verified.State)
	}
	if api.lastTempToken != "temp-1" {
		t.Fatalf("expected temp token to be exchanged, got %q", api.lastTempToken)
	}

	// The challenge is gone: a second exchange has nothing to consume.
	if _, err := m.Verify2FA(context.Background(), outcome.SessionID, "123456"); !errors.Is(err, ErrNoChallenge) {
		t.Fatalf("expected ErrNoChallenge, got %v", err)
	}

	if !m.TwoFactorSatisfied(context.Background(), outcome.SessionID) {
		t.Fatal("expected 2fa marker after a successful exchange")
	}
}

func TestVerify2FAFailureLeavesChallengeForRetry(t *testing.T) {
	api := &fakeGateway{
		loginResult: &upstream.LoginResult{Requires2FA: true, TempToken: "temp-1"},
		verifyErr:   &upstream.APIError{Status: 401, Code: "BAD_CODE", Message: "Código inválido"},
	}
	m := newTestManager(api)

	outcome, err := m.Login(context.Background(), "ana@example.com", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if _, err := m.Verify2FA(context.Background(), outcome.SessionID, "000000"); err == nil {
		t.Fatal("expected verification failure")
	}

	// A retry with a fresh code still finds the challenge.
	api.mu.Lock()
	api.verifyErr = nil
	api.verifyResult = &upstream.LoginResult{Token: "gw-token", Session: testUser()}
	api.mu.Unlock()

	verified, err := m.Verify2FA(context.Background(), outcome.SessionID, "123456")
	if err != nil {
		t.Fatalf("retry verify: %v", err)
	}
	if verified.State != StateActive {
		t.Fatalf("expected active state after retry, got %v", verified.State)
	}
}

func TestLogoutClearsLocallyEvenWhenGatewayFails(t *testing.T) {
	api := &fakeGateway{
		loginResult: &upstream.LoginResult{Token: "gw-token", Session: testUser()},
		logoutErr:   errors.New("gateway down"),
	}
	m := newTestManager(api)

	var hookCalls []string
	m.OnLogout(func(sessionID string) { hookCalls = append(hookCalls, sessionID) })

	outcome, err := m.Login(context.Background(), "ana@example.com", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	m.Logout(context.Background(), outcome.SessionID)

	snapshot, err := m.Current(context.Background(), outcome.SessionID)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if snapshot.State != StateAnonymous {
		t.Fatalf("expected anonymous after logout, got %v", snapshot.State)
	}
	if len(hookCalls) != 1 || hookCalls[0] != outcome.SessionID {
		t.Fatalf("expected one logout hook call, got %v", hookCalls)
	}
	if _, _, logout, _ := api.counts(); logout != 1 {
		t.Fatalf("expected one gateway logout attempt, got %d", logout)
	}
}

func TestRegisterDiscardsStaleChallenge(t *testing.T) {
	api := &fakeGateway{
		loginResult:    &upstream.LoginResult{Requires2FA: true, TempToken: "temp-1"},
		registerResult: &upstream.LoginResult{Token: "gw-token", Session: testUser()},
	}
	m := newTestManager(api)

	pending, err := m.Login(context.Background(), "ana@example.com", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	registered, err := m.Register(context.Background(), pending.SessionID, upstream.RegisterData{Name: "Ana"}, nil)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if registered.State != StateActive {
		t.Fatalf("expected active state, got %v", registered.State)
	}

	// The old challenge must be gone, not inherited.
	if _, err := m.Verify2FA(context.Background(), pending.SessionID, "123456"); !errors.Is(err, ErrNoChallenge) {
		t.Fatalf("expected ErrNoChallenge for the stale session, got %v", err)
	}
}

func TestRevalidateKeepsCachedSessionOnInvalidToken(t *testing.T) {
	api := &fakeGateway{
		loginResult:    &upstream.LoginResult{Token: "gw-token", Session: testUser()},
		verifyTokenErr: upstream.ErrTokenInvalid,
	}
	m := newTestManager(api)

	outcome, err := m.Login(context.Background(), "ana@example.com", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	m.revalidate(context.Background(), outcome.SessionID, "gw-token")

	snapshot, err := m.Current(context.Background(), outcome.SessionID)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if snapshot.State != StateActive {
		t.Fatalf("an invalid-token answer must not evict the session, got %v", snapshot.State)
	}
}

func TestRevalidateKeepsCachedSessionOnTransportError(t *testing.T) {
	api := &fakeGateway{
		loginResult:    &upstream.LoginResult{Token: "gw-token", Session: testUser()},
		verifyTokenErr: errors.New("connection refused"),
	}
	m := newTestManager(api)

	outcome, err := m.Login(context.Background(), "ana@example.com", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	m.revalidate(context.Background(), outcome.SessionID, "gw-token")

	snapshot, err := m.Current(context.Background(), outcome.SessionID)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if snapshot.State != StateActive {
		t.Fatalf("an unreachable gateway must not evict the session, got %v", snapshot.State)
	}
}

func TestRevalidateSuccessRefreshesProfile(t *testing.T) {
	refreshed := testUser()
	refreshed.Name = "Ana Atualizada"
	api := &fakeGateway{
		loginResult: &upstream.LoginResult{Token: "gw-token", Session: testUser()},
		profile:     refreshed,
	}
	m := newTestManager(api)

	outcome, err := m.Login(context.Background(), "ana@example.com", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	m.revalidate(context.Background(), outcome.SessionID, "gw-token")

	snapshot, err := m.Current(context.Background(), outcome.SessionID)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if snapshot.User.Name != "Ana Atualizada" {
		t.Fatalf("expected refreshed profile, got %q", snapshot.User.Name)
	}
}

func TestRevalidationScheduledOncePerSession(t *testing.T) {
	api := &fakeGateway{loginResult: &upstream.LoginResult{Token: "gw-token", Session: testUser()}}
	m := newTestManager(api)

	outcome, err := m.Login(context.Background(), "ana@example.com", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	for i := 0; i < 5; i++ {
		if _, err := m.Current(context.Background(), outcome.SessionID); err != nil {
			t.Fatalf("current: %v", err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, _, _, verifyToken := api.counts(); verifyToken >= 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("revalidation never fired")
		}
		time.Sleep(10 * time.Millisecond)
	}

	time.Sleep(50 * time.Millisecond)
	if _, _, _, verifyToken := api.counts(); verifyToken != 1 {
		t.Fatalf("expected exactly one revalidation, got %d", verifyToken)
	}
}

func TestSetupPromptFiresOncePerSession(t *testing.T) {
	api := &fakeGateway{loginResult: &upstream.LoginResult{Token: "gw-token", Session: testUser()}}
	m := newTestManager(api)

	outcome, err := m.Login(context.Background(), "ana@example.com", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if !m.ShouldPromptTwoFactorSetup(context.Background(), outcome.SessionID) {
		t.Fatal("an unenrolled session is prompted on first check")
	}
	if m.ShouldPromptTwoFactorSetup(context.Background(), outcome.SessionID) {
		t.Fatal("the setup-checked marker must suppress a second prompt")
	}

	// Logout clears the marker with the rest of the session; a later
	// session id starts fresh.
	m.Logout(context.Background(), outcome.SessionID)
	if m.ShouldPromptTwoFactorSetup(context.Background(), outcome.SessionID) {
		t.Fatal("an anonymous session must not be prompted")
	}
}

func TestSetupPromptSkipsTwoFactorSessions(t *testing.T) {
	api := &fakeGateway{
		loginResult:  &upstream.LoginResult{Requires2FA: true, TempToken: "temp-1"},
		verifyResult: &upstream.LoginResult{Token: "gw-token", Session: testUser()},
	}
	m := newTestManager(api)

	outcome, err := m.Login(context.Background(), "ana@example.com", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := m.Verify2FA(context.Background(), outcome.SessionID, "123456"); err != nil {
		t.Fatalf("verify: %v", err)
	}

	if m.ShouldPromptTwoFactorSetup(context.Background(), outcome.SessionID) {
		t.Fatal("a session that passed the 2fa gate must not be prompted")
	}

	snapshot, err := m.Current(context.Background(), outcome.SessionID)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if !snapshot.TwoFactorSatisfied {
		t.Fatal("expected the satisfied marker on the snapshot")
	}
}

func TestRefreshProfileRequiresSession(t *testing.T) {
	m := newTestManager(&fakeGateway{})
	if _, err := m.RefreshProfile(context.Background(), "missing"); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}
