package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/orizonpaybr/gateway-web-sub001/internal/session"
	"github.com/orizonpaybr/gateway-web-sub001/internal/upstream"
	"github.com/orizonpaybr/gateway-web-sub001/libs/token"
)

const (
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeForbidden      = "FORBIDDEN"
	CodeRateLimited    = "RATE_LIMITED"
	CodeNotFound       = "NOT_FOUND"
	CodeUpstreamError  = "UPSTREAM_ERROR"
	CodeInternalError  = "INTERNAL_ERROR"
)

const (
	ContextSessionID = "session_id"
	ContextUser      = "session_user"
	ContextToken     = "gateway_token"
	ContextTwoFactor = "two_factor_satisfied"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SessionManager is the slice of the lifecycle manager the handlers
// use. Kept as an interface so handler tests run against a fake.
type SessionManager interface {
	Login(ctx context.Context, identifier, secret string) (*session.LoginOutcome, error)
	Verify2FA(ctx context.Context, sessionID, code string) (*session.LoginOutcome, error)
	Logout(ctx context.Context, sessionID string)
	Register(ctx context.Context, previousSessionID string, data upstream.RegisterData, documents []upstream.Document) (*session.LoginOutcome, error)
	Current(ctx context.Context, sessionID string) (*session.Snapshot, error)
	RefreshProfile(ctx context.Context, sessionID string) (*upstream.Session, error)
	ShouldPromptTwoFactorSetup(ctx context.Context, sessionID string) bool
}

// SessionRequired resolves the bearer dashboard session id into an
// active session and stashes it on the request context.
func SessionRequired(manager SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := token.ExtractBearer(c.GetHeader("Authorization"))
		if sessionID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Code: CodeUnauthorized, Message: "missing session"})
			return
		}

		snapshot, err := manager.Current(c.Request.Context(), sessionID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Code: CodeInternalError, Message: "internal error"})
			return
		}
		if snapshot.State != session.StateActive {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Code: CodeUnauthorized, Message: "session is not active"})
			return
		}

		c.Set(ContextSessionID, sessionID)
		c.Set(ContextUser, snapshot.User)
		c.Set(ContextToken, snapshot.Token)
		c.Set(ContextTwoFactor, snapshot.TwoFactorSatisfied)
		c.Next()
	}
}

// AdminRequired gates the admin surface. It runs after SessionRequired.
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok || user.Permission != upstream.PermissionAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, errorResponse{Code: CodeForbidden, Message: "admin permission required"})
			return
		}
		c.Next()
	}
}

func currentSessionID(c *gin.Context) string {
	return c.GetString(ContextSessionID)
}

func currentUser(c *gin.Context) (*upstream.Session, bool) {
	v, ok := c.Get(ContextUser)
	if !ok {
		return nil, false
	}
	user, ok := v.(*upstream.Session)
	return user, ok && user != nil
}

func currentToken(c *gin.Context) string {
	return c.GetString(ContextToken)
}

func twoFactorSatisfied(c *gin.Context) bool {
	return c.GetBool(ContextTwoFactor)
}

// writeUpstreamError maps a gateway rejection onto the response,
// keeping the backend message verbatim when there is one.
func writeUpstreamError(c *gin.Context, err error, fallbackStatus int, fallbackMessage string) {
	var apiErr *upstream.APIError
	if errors.As(err, &apiErr) {
		status := apiErr.Status
		if status < 400 || status > 599 {
			status = fallbackStatus
		}
		c.JSON(status, errorResponse{Code: CodeUpstreamError, Message: apiErr.Error()})
		return
	}
	c.JSON(http.StatusBadGateway, errorResponse{Code: CodeUpstreamError, Message: fallbackMessage})
}
