package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/orizonpaybr/gateway-web-sub001/internal/audit"
	"github.com/orizonpaybr/gateway-web-sub001/internal/upstream"
	"log/slog"
)

// AdminAPI is the management slice of the gateway client: user and
// manager accounts, acquirer routing and fee settings.
type AdminAPI interface {
	ListAdminUsers(ctx context.Context, token string) ([]upstream.AdminUser, error)
	CreateAdminUser(ctx context.Context, token string, user upstream.AdminUser) (*upstream.AdminUser, error)
	UpdateAdminUser(ctx context.Context, token, id string, user upstream.AdminUser) (*upstream.AdminUser, error)
	DeleteAdminUser(ctx context.Context, token, id string) error
	ListManagers(ctx context.Context, token string) ([]upstream.ManagerAccount, error)
	CreateManager(ctx context.Context, token string, manager upstream.ManagerAccount) (*upstream.ManagerAccount, error)
	UpdateManager(ctx context.Context, token, id string, manager upstream.ManagerAccount) (*upstream.ManagerAccount, error)
	DeleteManager(ctx context.Context, token, id string) error
	ListAcquirers(ctx context.Context, token string) ([]upstream.Acquirer, error)
	CreateAcquirer(ctx context.Context, token string, acquirer upstream.Acquirer) (*upstream.Acquirer, error)
	UpdateAcquirer(ctx context.Context, token, id string, acquirer upstream.Acquirer) (*upstream.Acquirer, error)
	DeleteAcquirer(ctx context.Context, token, id string) error
	GatewaySettings(ctx context.Context, token string) (*upstream.GatewaySettings, error)
	UpdateGatewaySettings(ctx context.Context, token string, settings upstream.GatewaySettings) (*upstream.GatewaySettings, error)
}

// Admin proxies the management surface. Every mutation lands in the
// audit log with the acting admin's id.
type Admin struct {
	API    AdminAPI
	Audit  audit.Recorder
	Logger *slog.Logger
}

func (h *Admin) record(c *gin.Context, action, entityType, entityID string) {
	if h.Audit == nil {
		return
	}
	user, ok := currentUser(c)
	if !ok {
		return
	}
	h.Audit.Insert(c.Request.Context(), audit.Entry{
		ActorID:    user.UserID,
		ActorType:  "admin",
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		IP:         c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
	})
}

func (h *Admin) ListUsers(c *gin.Context) {
	users, err := h.API.ListAdminUsers(c.Request.Context(), currentToken(c))
	if err != nil {
		writeUpstreamError(c, err, http.StatusBadGateway, "users unavailable")
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (h *Admin) CreateUser(c *gin.Context) {
	var user upstream.AdminUser
	if err := c.ShouldBindJSON(&user); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: CodeInvalidRequest, Message: "invalid request body"})
		return
	}
	created, err := h.API.CreateAdminUser(c.Request.Context(), currentToken(c), user)
	if err != nil {
		writeUpstreamError(c, err, http.StatusBadGateway, "user creation failed")
		return
	}
	h.record(c, "admin.user.create", "user", created.ID)
	c.JSON(http.StatusCreated, created)
}

func (h *Admin) UpdateUser(c *gin.Context) {
	var user upstream.AdminUser
	if err := c.ShouldBindJSON(&user); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: CodeInvalidRequest, Message: "invalid request body"})
		return
	}
	id := c.Param("id")
	updated, err := h.API.UpdateAdminUser(c.Request.Context(), currentToken(c), id, user)
	if err != nil {
		writeUpstreamError(c, err, http.StatusBadGateway, "user update failed")
		return
	}
	h.record(c, "admin.user.update", "user", id)
	c.JSON(http.StatusOK, updated)
}

func (h *Admin) DeleteUser(c *gin.Context) {
	id := c.Param("id")
	if err := h.API.DeleteAdminUser(c.Request.Context(), currentToken(c), id); err != nil {
		writeUpstreamError(c, err, http.StatusBadGateway, "user deletion failed")
		return
	}
	h.record(c, "admin.user.delete", "user", id)
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *Admin) ListManagers(c *gin.Context) {
	managers, err := h.API.ListManagers(c.Request.Context(), currentToken(c))
	if err != nil {
		writeUpstreamError(c, err, http.StatusBadGateway, "managers unavailable")
		return
	}
	c.JSON(http.StatusOK, gin.H{"managers": managers})
}

func (h *Admin) CreateManager(c *gin.Context) {
	var manager upstream.ManagerAccount
	if err := c.ShouldBindJSON(&manager); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: CodeInvalidRequest, Message: "invalid request body"})
		return
	}
	created, err := h.API.CreateManager(c.Request.Context(), currentToken(c), manager)
	if err != nil {
		writeUpstreamError(c, err, http.StatusBadGateway, "manager creation failed")
		return
	}
	h.record(c, "admin.manager.create", "manager", created.ID)
	c.JSON(http.StatusCreated, created)
}

func (h *Admin) UpdateManager(c *gin.Context) {
	var manager upstream.ManagerAccount
	if err := c.ShouldBindJSON(&manager); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: CodeInvalidRequest, Message: "invalid request body"})
		return
	}
	id := c.Param("id")
	updated, err := h.API.UpdateManager(c.Request.Context(), currentToken(c), id, manager)
	if err != nil {
		writeUpstreamError(c, err, http.StatusBadGateway, "manager update failed")
		return
	}
	h.record(c, "admin.manager.update", "manager", id)
	c.JSON(http.StatusOK, updated)
}

func (h *Admin) DeleteManager(c *gin.Context) {
	id := c.Param("id")
	if err := h.API.DeleteManager(c.Request.Context(), currentToken(c), id); err != nil {
		writeUpstreamError(c, err, http.StatusBadGateway, "manager deletion failed")
		return
	}
	h.record(c, "admin.manager.delete", "manager", id)
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *Admin) ListAcquirers(c *gin.Context) {
	acquirers, err := h.API.ListAcquirers(c.Request.Context(), currentToken(c))
	if err != nil {
		writeUpstreamError(c, err, http.StatusBadGateway, "acquirers unavailable")
		return
	}
	c.JSON(http.StatusOK, gin.H{"acquirers": acquirers})
}

func (h *Admin) CreateAcquirer(c *gin.Context) {
	var acquirer upstream.Acquirer
	if err := c.ShouldBindJSON(&acquirer); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: CodeInvalidRequest, Message: "invalid request body"})
		return
	}
	created, err := h.API.CreateAcquirer(c.Request.Context(), currentToken(c), acquirer)
	if err != nil {
		writeUpstreamError(c, err, http.StatusBadGateway, "acquirer creation failed")
		return
	}
	h.record(c, "admin.acquirer.create", "acquirer", created.ID)
	c.JSON(http.StatusCreated, created)
}

func (h *Admin) UpdateAcquirer(c *gin.Context) {
	var acquirer upstream.Acquirer
	if err := c.ShouldBindJSON(&acquirer); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: CodeInvalidRequest, Message: "invalid request body"})
		return
	}
	id := c.Param("id")
	updated, err := h.API.UpdateAcquirer(c.Request.Context(), currentToken(c), id, acquirer)
	if err != nil {
		writeUpstreamError(c, err, http.StatusBadGateway, "acquirer update failed")
		return
	}
	h.record(c, "admin.acquirer.update", "acquirer", id)
	c.JSON(http.StatusOK, updated)
}

func (h *Admin) DeleteAcquirer(c *gin.Context) {
	id := c.Param("id")
	if err := h.API.DeleteAcquirer(c.Request.Context(), currentToken(c), id); err != nil {
		writeUpstreamError(c, err, http.StatusBadGateway, "acquirer deletion failed")
		return
	}
	h.record(c, "admin.acquirer.delete", "acquirer", id)
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *Admin) GetSettings(c *gin.Context) {
	settings, err := h.API.GatewaySettings(c.Request.Context(), currentToken(c))
	if err != nil {
		writeUpstreamError(c, err, http.StatusBadGateway, "settings unavailable")
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (h *Admin) UpdateSettings(c *gin.Context) {
	var settings upstream.GatewaySettings
	if err := c.ShouldBindJSON(&settings); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: CodeInvalidRequest, Message: "invalid request body"})
		return
	}
	updated, err := h.API.UpdateGatewaySettings(c.Request.Context(), currentToken(c), settings)
	if err != nil {
		writeUpstreamError(c, err, http.StatusBadGateway, "settings update failed")
		return
	}
	h.record(c, "admin.settings.update", "settings", "")
	c.JSON(http.StatusOK, updated)
}
