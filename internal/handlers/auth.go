package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/orizonpaybr/gateway-web-sub001/internal/audit"
	"github.com/orizonpaybr/gateway-web-sub001/internal/notify"
	"github.com/orizonpaybr/gateway-web-sub001/internal/rate"
	"github.com/orizonpaybr/gateway-web-sub001/internal/session"
	"github.com/orizonpaybr/gateway-web-sub001/internal/upstream"
	"github.com/orizonpaybr/gateway-web-sub001/libs/token"
	"log/slog"
)

// Auth serves the authentication lifecycle: login, 2FA, logout,
// registration and the profile endpoint.
type Auth struct {
	Manager  SessionManager
	Limiter  rate.Limiter
	Notifier *notify.Center
	Audit    audit.Recorder
	Logger   *slog.Logger

	nowFn func() time.Time
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type verifyRequest struct {
	Code string `json:"code"`
}

type sessionResponse struct {
	SessionID   string            `json:"session_id"`
	State       string            `json:"state"`
	Requires2FA bool              `json:"requires_2fa,omitempty"`
	User        *upstream.Session `json:"user,omitempty"`
}

func (h *Auth) now() time.Time {
	if h.nowFn != nil {
		return h.nowFn()
	}
	return time.Now()
}

func (h *Auth) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: CodeInvalidRequest, Message: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Identifier) == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Code: CodeInvalidRequest, Message: "identifier and password are required"})
		return
	}

	if h.Limiter != nil {
		allowed, retryAfter, err := h.Limiter.Allow(c.Request.Context(), c.ClientIP(), h.now())
		if err != nil {
			h.Logger.Warn("login rate limiter unavailable", "error", err)
		} else if !allowed {
			c.Header("Retry-After", fmt.Sprintf("%d", int(retryAfter.Seconds())+1))
			c.JSON(http.StatusTooManyRequests, errorResponse{Code: CodeRateLimited, Message: "too many login attempts"})
			return
		}
	}

	outcome, err := h.Manager.Login(c.Request.Context(), req.Identifier, req.Password)
	if err != nil {
		var apiErr *upstream.APIError
		if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
			c.JSON(http.StatusUnauthorized, errorResponse{Code: CodeUnauthorized, Message: apiErr.Error()})
			return
		}
		h.Logger.Error("login failed", "error", err)
		c.JSON(http.StatusBadGateway, errorResponse{Code: CodeUpstreamError, Message: "login failed"})
		return
	}

	h.record(c, outcome, "auth.login")
	c.JSON(http.StatusOK, toSessionResponse(outcome))
}

func (h *Auth) Verify2FA(c *gin.Context) {
	sessionID := token.ExtractBearer(c.GetHeader("Authorization"))
	if sessionID == "" {
		c.JSON(http.StatusUnauthorized, errorResponse{Code: CodeUnauthorized, Message: "missing session"})
		return
	}

	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: CodeInvalidRequest, Message: "invalid request body"})
		return
	}
	if !validCode(req.Code) {
		c.JSON(http.StatusBadRequest, errorResponse{Code: CodeInvalidRequest, Message: "code must be 6 digits"})
		return
	}

	outcome, err := h.Manager.Verify2FA(c.Request.Context(), sessionID, req.Code)
	if err != nil {
		if errors.Is(err, session.ErrNoChallenge) {
			c.JSON(http.StatusConflict, errorResponse{Code: CodeInvalidRequest, Message: "no pending 2fa challenge"})
			return
		}
		var apiErr *upstream.APIError
		if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
			c.JSON(http.StatusUnauthorized, errorResponse{Code: CodeUnauthorized, Message: apiErr.Error()})
			return
		}
		h.Logger.Error("2fa verification failed", "error", err)
		c.JSON(http.StatusBadGateway, errorResponse{Code: CodeUpstreamError, Message: "verification failed"})
		return
	}

	h.record(c, outcome, "auth.2fa_verify")
	c.JSON(http.StatusOK, toSessionResponse(outcome))
}

// Logout always answers 200. Whatever the gateway said, the dashboard
// session is gone afterwards.
func (h *Auth) Logout(c *gin.Context) {
	sessionID := token.ExtractBearer(c.GetHeader("Authorization"))
	if sessionID != "" {
		h.Manager.Logout(c.Request.Context(), sessionID)
		if h.Notifier != nil {
			h.Notifier.Forget(sessionID)
		}
		if h.Audit != nil {
			h.Audit.Insert(c.Request.Context(), audit.Entry{
				ActorID:   sessionID,
				ActorType: "session",
				Action:    "auth.logout",
				IP:        c.ClientIP(),
				UserAgent: c.Request.UserAgent(),
			})
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Register accepts either plain JSON or a multipart form whose "data"
// field carries the JSON payload and whose remaining parts are KYC
// documents.
func (h *Auth) Register(c *gin.Context) {
	previousSessionID := token.ExtractBearer(c.GetHeader("Authorization"))

	data, documents, err := decodeRegister(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: CodeInvalidRequest, Message: err.Error()})
		return
	}

	outcome, err := h.Manager.Register(c.Request.Context(), previousSessionID, data, documents)
	if err != nil {
		var apiErr *upstream.APIError
		if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
			c.JSON(apiErr.Status, errorResponse{Code: CodeUpstreamError, Message: apiErr.Error()})
			return
		}
		h.Logger.Error("registration failed", "error", err)
		c.JSON(http.StatusBadGateway, errorResponse{Code: CodeUpstreamError, Message: "registration failed"})
		return
	}

	h.record(c, outcome, "auth.register")
	c.JSON(http.StatusCreated, toSessionResponse(outcome))
}

// Me refetches the profile and replaces the persisted snapshot. When
// the gateway is unreachable the cached identity is served instead so
// a backend blip does not blank the dashboard header. The response
// also carries the session's 2FA markers: whether the gate was passed,
// and whether to nudge an unenrolled user toward setup (once per
// session).
func (h *Auth) Me(c *gin.Context) {
	sessionID := currentSessionID(c)
	prompt := h.Manager.ShouldPromptTwoFactorSetup(c.Request.Context(), sessionID)

	user, err := h.Manager.RefreshProfile(c.Request.Context(), sessionID)
	if err != nil {
		if cached, ok := currentUser(c); ok {
			h.Logger.Warn("profile refresh failed; serving cached snapshot", "error", err)
			c.JSON(http.StatusOK, gin.H{
				"user":                 cached,
				"stale":                true,
				"two_factor_satisfied": twoFactorSatisfied(c),
				"prompt_2fa_setup":     prompt,
			})
			return
		}
		writeUpstreamError(c, err, http.StatusBadGateway, "profile unavailable")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":                 user,
		"two_factor_satisfied": twoFactorSatisfied(c),
		"prompt_2fa_setup":     prompt,
	})
}

func (h *Auth) record(c *gin.Context, outcome *session.LoginOutcome, action string) {
	if h.Audit == nil || outcome == nil || outcome.State != session.StateActive {
		return
	}
	actorID := outcome.SessionID
	if outcome.User != nil && outcome.User.UserID != "" {
		actorID = outcome.User.UserID
	}
	h.Audit.Insert(c.Request.Context(), audit.Entry{
		ActorID:   actorID,
		ActorType: "user",
		Action:    action,
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
}

func toSessionResponse(outcome *session.LoginOutcome) sessionResponse {
	return sessionResponse{
		SessionID:   outcome.SessionID,
		State:       outcome.State.String(),
		Requires2FA: outcome.Requires2FA,
		User:        outcome.User,
	}
}

func validCode(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func decodeRegister(c *gin.Context) (upstream.RegisterData, []upstream.Document, error) {
	var data upstream.RegisterData

	contentType := c.ContentType()
	if !strings.HasPrefix(contentType, "multipart/") {
		if err := c.ShouldBindJSON(&data); err != nil {
			return data, nil, fmt.Errorf("invalid request body")
		}
		return data, nil, nil
	}

	form, err := c.MultipartForm()
	if err != nil {
		return data, nil, fmt.Errorf("invalid multipart form")
	}

	raw, ok := form.Value["data"]
	if !ok || len(raw) == 0 {
		return data, nil, fmt.Errorf("missing data field")
	}
	if err := json.Unmarshal([]byte(raw[0]), &data); err != nil {
		return data, nil, fmt.Errorf("invalid data field")
	}

	var documents []upstream.Document
	for field, headers := range form.File {
		for _, header := range headers {
			f, err := header.Open()
			if err != nil {
				return data, nil, fmt.Errorf("unreadable document %s", field)
			}
			content, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				return data, nil, fmt.Errorf("unreadable document %s", field)
			}
			documents = append(documents, upstream.Document{
				Field:    field,
				Filename: header.Filename,
				Content:  content,
			})
		}
	}

	return data, documents, nil
}
