package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/orizonpaybr/gateway-web-sub001/internal/rate"
	"github.com/orizonpaybr/gateway-web-sub001/internal/session"
	"github.com/orizonpaybr/gateway-web-sub001/internal/testutil"
	"github.com/orizonpaybr/gateway-web-sub001/internal/upstream"
	"github.com/orizonpaybr/gateway-web-sub001/libs/logging"
)

func TestLoginReturnsActiveSession(t *testing.T) {
	env := newTestEnv(t)
	env.manager.loginOut = &session.LoginOutcome{
		SessionID: "sess-1",
		State:     session.StateActive,
		User:      clientUser(),
	}

	resp := testutil.MakeAPIRequest(env.router, http.MethodPost, "/v1/auth/login", map[string]string{
		"identifier": "ana@example.com",
		"password":   "secret",
	})
	testutil.AssertHTTPStatus(t, resp, http.StatusOK)

	var body sessionResponse
	testutil.DecodeJSON(t, resp, &body)
	if body.SessionID != "sess-1" || body.State != "active" {
		t.Fatalf("unexpected body %+v", body)
	}
	if body.User == nil || body.User.UserID != "u-1" {
		t.Fatalf("expected user payload, got %+v", body.User)
	}

	actions := env.audit.actions()
	if len(actions) != 1 || actions[0] != "auth.login" {
		t.Fatalf("expected a login audit entry, got %v", actions)
	}
}

func TestLoginReturns2FAChallenge(t *testing.T) {
	env := newTestEnv(t)
	env.manager.loginOut = &session.LoginOutcome{
		SessionID:   "sess-1",
		State:       session.StatePendingTwoFactor,
		Requires2FA: true,
	}

	resp := testutil.MakeAPIRequest(env.router, http.MethodPost, "/v1/auth/login", map[string]string{
		"identifier": "ana@example.com",
		"password":   "secret",
	})
	testutil.AssertHTTPStatus(t, resp, http.StatusOK)

	var body sessionResponse
	testutil.DecodeJSON(t, resp, &body)
	if !body.Requires2FA || body.State != "pending_2fa" {
		t.Fatalf("expected a pending challenge, got %+v", body)
	}
	if len(env.audit.actions()) != 0 {
		t.Fatal("a pending challenge is not a completed login")
	}
}

func TestLoginSurfacesGatewayMessage(t *testing.T) {
	env := newTestEnv(t)
	env.manager.loginErr = &upstream.APIError{Status: 401, Code: "BAD_CREDENTIALS", Message: "Credenciais inválidas"}

	resp := testutil.MakeAPIRequest(env.router, http.MethodPost, "/v1/auth/login", map[string]string{
		"identifier": "ana@example.com",
		"password":   "wrong",
	})
	testutil.AssertHTTPStatus(t, resp, http.StatusUnauthorized)
	testutil.AssertErrorCode(t, resp, testutil.ErrorCodeUnauthorized)
	testutil.AssertErrorMessage(t, resp, "Credenciais inválidas")
}

func TestLoginValidatesInput(t *testing.T) {
	env := newTestEnv(t)

	resp := testutil.MakeAPIRequest(env.router, http.MethodPost, "/v1/auth/login", map[string]string{
		"identifier": "",
		"password":   "",
	})
	testutil.AssertHTTPStatus(t, resp, http.StatusBadRequest)
	testutil.AssertErrorCode(t, resp, testutil.ErrorCodeInvalidRequest)
	if env.manager.loginCalls != 0 {
		t.Fatal("validation must run before the manager is called")
	}
}

func TestLoginRateLimited(t *testing.T) {
	manager := newFakeManager()
	manager.loginErr = &upstream.APIError{Status: 401, Message: "Credenciais inválidas"}
	handler := &Auth{
		Manager: manager,
		Limiter: rate.NewMemory(2, time.Minute),
		Logger:  logging.Discard(),
	}
	router := gin.New()
	router.POST("/v1/auth/login", handler.Login)

	body := map[string]string{"identifier": "ana@example.com", "password": "wrong"}
	for i := 0; i < 2; i++ {
		resp := testutil.MakeAPIRequest(router, http.MethodPost, "/v1/auth/login", body)
		testutil.AssertHTTPStatus(t, resp, http.StatusUnauthorized)
	}

	resp := testutil.MakeAPIRequest(router, http.MethodPost, "/v1/auth/login", body)
	testutil.AssertHTTPStatus(t, resp, http.StatusTooManyRequests)
	testutil.AssertErrorCode(t, resp, testutil.ErrorCodeRateLimited)
	if resp.Header().Get("Retry-After") == "" {
		t.Fatal("expected a Retry-After header")
	}
	if manager.loginCalls != 2 {
		t.Fatalf("rate-limited attempts must not reach the manager, got %d calls", manager.loginCalls)
	}
}

func TestLoginRateLimitWindowExpires(t *testing.T) {
	manager := newFakeManager()
	manager.loginErr = &upstream.APIError{Status: 401, Message: "Credenciais inválidas"}
	now := time.Now()
	handler := &Auth{
		Manager: manager,
		Limiter: rate.NewMemory(1, time.Minute),
		Logger:  logging.Discard(),
		nowFn:   func() time.Time { return now },
	}
	router := gin.New()
	router.POST("/v1/auth/login", handler.Login)

	body := map[string]string{"identifier": "ana@example.com", "password": "wrong"}
	resp := testutil.MakeAPIRequest(router, http.MethodPost, "/v1/auth/login", body)
	testutil.AssertHTTPStatus(t, resp, http.StatusUnauthorized)

	resp = testutil.MakeAPIRequest(router, http.MethodPost, "/v1/auth/login", body)
	testutil.AssertHTTPStatus(t, resp, http.StatusTooManyRequests)

	// A new window opens once the clock moves past the old one.
	now = now.Add(2 * time.Minute)
	resp = testutil.MakeAPIRequest(router, http.MethodPost, "/v1/auth/login", body)
	testutil.AssertHTTPStatus(t, resp, http.StatusUnauthorized)
}

func TestVerify2FAValidatesCodeShape(t *testing.T) {
	env := newTestEnv(t)

	for _, code := range []string{"", "12345", "1234567", "12345a"} {
		resp := testutil.MakeSessionRequest(env.router, http.MethodPost, "/v1/auth/2fa/verify", map[string]string{"code": code}, "sess-1")
		testutil.AssertHTTPStatus(t, resp, http.StatusBadRequest)
		testutil.AssertErrorCode(t, resp, testutil.ErrorCodeInvalidRequest)
	}
}

func TestVerify2FAWithoutChallenge(t *testing.T) {
	env := newTestEnv(t)
	env.manager.verifyErr = session.ErrNoChallenge

	resp := testutil.MakeSessionRequest(env.router, http.MethodPost, "/v1/auth/2fa/verify", map[string]string{"code": "123456"}, "sess-1")
	testutil.AssertHTTPStatus(t, resp, http.StatusConflict)
}

func TestVerify2FASuccess(t *testing.T) {
	env := newTestEnv(t)
	env.manager.verifyOut = &session.LoginOutcome{
		SessionID: "sess-1",
		State:     session.StateActive,
		User:      clientUser(),
	}

	resp := testutil.MakeSessionRequest(env.router, http.MethodPost, "/v1/auth/2fa/verify", map[string]string{"code": "123456"}, "sess-1")
	testutil.AssertHTTPStatus(t, resp, http.StatusOK)

	var body sessionResponse
	testutil.DecodeJSON(t, resp, &body)
	if body.State != "active" {
		t.Fatalf("expected active state, got %+v", body)
	}
}

func TestLogoutAlwaysSucceeds(t *testing.T) {
	env := newTestEnv(t)
	env.manager.addActive("sess-1", clientUser())
	env.notifier.Push("sess-1", "info", "pending toast")

	resp := testutil.MakeSessionRequest(env.router, http.MethodPost, "/v1/auth/logout", nil, "sess-1")
	testutil.AssertHTTPStatus(t, resp, http.StatusOK)

	if len(env.manager.logoutCalls) != 1 || env.manager.logoutCalls[0] != "sess-1" {
		t.Fatalf("expected one logout, got %v", env.manager.logoutCalls)
	}
	if got := env.notifier.Drain("sess-1"); len(got) != 0 {
		t.Fatalf("expected the notification queue dropped, got %v", got)
	}

	// Logout without a bearer session is still a 200.
	resp = testutil.MakeAPIRequest(env.router, http.MethodPost, "/v1/auth/logout", nil)
	testutil.AssertHTTPStatus(t, resp, http.StatusOK)
}

func TestMeRefreshesProfile(t *testing.T) {
	env := newTestEnv(t)
	env.manager.addActive("sess-1", clientUser())
	refreshed := clientUser()
	refreshed.Name = "Ana Atualizada"
	env.manager.profile = refreshed

	resp := testutil.MakeSessionRequest(env.router, http.MethodGet, "/v1/me", nil, "sess-1")
	testutil.AssertHTTPStatus(t, resp, http.StatusOK)

	var body struct {
		User *upstream.Session `json:"user"`
	}
	testutil.DecodeJSON(t, resp, &body)
	if body.User == nil || body.User.Name != "Ana Atualizada" {
		t.Fatalf("expected refreshed profile, got %+v", body.User)
	}
}

func TestMeFallsBackToCachedSnapshot(t *testing.T) {
	env := newTestEnv(t)
	env.manager.addActive("sess-1", clientUser())
	env.manager.refresErr = &upstream.APIError{Status: 502, Message: "bad gateway"}

	resp := testutil.MakeSessionRequest(env.router, http.MethodGet, "/v1/me", nil, "sess-1")
	testutil.AssertHTTPStatus(t, resp, http.StatusOK)

	var body struct {
		User  *upstream.Session `json:"user"`
		Stale bool              `json:"stale"`
	}
	testutil.DecodeJSON(t, resp, &body)
	if body.User == nil || body.User.UserID != "u-1" || !body.Stale {
		t.Fatalf("expected stale cached snapshot, got %+v", body)
	}
}

func TestMeReportsTwoFactorMarkers(t *testing.T) {
	env := newTestEnv(t)
	env.manager.addActive("sess-1", clientUser())
	env.manager.profile = clientUser()

	var body struct {
		TwoFactorSatisfied bool `json:"two_factor_satisfied"`
		PromptSetup        bool `json:"prompt_2fa_setup"`
	}

	// An unenrolled session is nudged toward 2FA setup exactly once.
	resp := testutil.MakeSessionRequest(env.router, http.MethodGet, "/v1/me", nil, "sess-1")
	testutil.AssertHTTPStatus(t, resp, http.StatusOK)
	testutil.DecodeJSON(t, resp, &body)
	if body.TwoFactorSatisfied || !body.PromptSetup {
		t.Fatalf("expected a one-time setup prompt, got %+v", body)
	}

	resp = testutil.MakeSessionRequest(env.router, http.MethodGet, "/v1/me", nil, "sess-1")
	testutil.AssertHTTPStatus(t, resp, http.StatusOK)
	testutil.DecodeJSON(t, resp, &body)
	if body.PromptSetup {
		t.Fatal("the setup prompt must not repeat within a session")
	}

	// A session that passed the 2FA gate reports it and is never nudged.
	env.manager.addActive("sess-2", clientUser())
	env.manager.mu.Lock()
	env.manager.sessions["sess-2"].TwoFactorSatisfied = true
	env.manager.mu.Unlock()

	resp = testutil.MakeSessionRequest(env.router, http.MethodGet, "/v1/me", nil, "sess-2")
	testutil.AssertHTTPStatus(t, resp, http.StatusOK)
	testutil.DecodeJSON(t, resp, &body)
	if !body.TwoFactorSatisfied || body.PromptSetup {
		t.Fatalf("expected satisfied marker without a prompt, got %+v", body)
	}
}

func TestSessionRequiredRejectsAnonymous(t *testing.T) {
	env := newTestEnv(t)

	resp := testutil.MakeAPIRequest(env.router, http.MethodGet, "/v1/me", nil)
	testutil.AssertHTTPStatus(t, resp, http.StatusUnauthorized)

	resp = testutil.MakeSessionRequest(env.router, http.MethodGet, "/v1/me", nil, "unknown-session")
	testutil.AssertHTTPStatus(t, resp, http.StatusUnauthorized)
}
