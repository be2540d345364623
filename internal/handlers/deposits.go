package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/orizonpaybr/gateway-web-sub001/internal/audit"
	"github.com/orizonpaybr/gateway-web-sub001/internal/deposit"
	"github.com/orizonpaybr/gateway-web-sub001/internal/upstream"
	"log/slog"
)

// Deposits serves the PIX deposit dialog: charge creation, status
// reads, manual refresh and cancellation.
type Deposits struct {
	Registry *deposit.Registry
	Audit    audit.Recorder
	Logger   *slog.Logger
}

type depositResponse struct {
	Charge *upstream.Charge `json:"charge"`
	State  string           `json:"state"`
	IsPaid bool             `json:"is_paid"`
}

func (h *Deposits) Create(c *gin.Context) {
	var req upstream.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: CodeInvalidRequest, Message: "invalid request body"})
		return
	}

	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse{Code: CodeUnauthorized, Message: "session is not active"})
		return
	}

	sessionID := currentSessionID(c)
	w, err := h.Registry.Generate(c.Request.Context(), sessionID, currentToken(c), *user, req)
	if err != nil {
		if errors.Is(err, deposit.ErrInvalidAmount) {
			c.JSON(http.StatusBadRequest, errorResponse{Code: CodeInvalidRequest, Message: err.Error()})
			return
		}
		writeUpstreamError(c, err, http.StatusBadGateway, "deposit request failed")
		return
	}

	charge := w.Charge()
	if h.Audit != nil {
		h.Audit.Insert(c.Request.Context(), audit.Entry{
			ActorID:    user.UserID,
			ActorType:  "user",
			Action:     "deposit.create",
			EntityType: "charge",
			EntityID:   charge.TransactionID,
			IP:         c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
		})
	}

	c.JSON(http.StatusCreated, depositResponse{Charge: charge, State: w.State().String(), IsPaid: w.IsPaid()})
}

func (h *Deposits) Get(c *gin.Context) {
	w, err := h.Registry.Get(currentSessionID(c), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, errorResponse{Code: CodeNotFound, Message: "charge not found"})
		return
	}
	c.JSON(http.StatusOK, depositResponse{Charge: w.Charge(), State: w.State().String(), IsPaid: w.IsPaid()})
}

// Check forces an immediate status refetch instead of waiting for the
// next poll tick.
func (h *Deposits) Check(c *gin.Context) {
	w, err := h.Registry.Get(currentSessionID(c), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, errorResponse{Code: CodeNotFound, Message: "charge not found"})
		return
	}
	w.CheckStatus(c.Request.Context())
	c.JSON(http.StatusOK, depositResponse{Charge: w.Charge(), State: w.State().String(), IsPaid: w.IsPaid()})
}

func (h *Deposits) Cancel(c *gin.Context) {
	transactionID := c.Param("id")
	if err := h.Registry.Cancel(currentSessionID(c), transactionID); err != nil {
		c.JSON(http.StatusNotFound, errorResponse{Code: CodeNotFound, Message: "charge not found"})
		return
	}

	if user, ok := currentUser(c); ok && h.Audit != nil {
		h.Audit.Insert(c.Request.Context(), audit.Entry{
			ActorID:    user.UserID,
			ActorType:  "user",
			Action:     "deposit.cancel",
			EntityType: "charge",
			EntityID:   transactionID,
			IP:         c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}
