package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/orizonpaybr/gateway-web-sub001/internal/cache"
	"github.com/orizonpaybr/gateway-web-sub001/internal/notify"
	"github.com/orizonpaybr/gateway-web-sub001/internal/upstream"
	"log/slog"
)

// DataAPI is the read-only slice of the gateway client behind the
// dashboard's data panels.
type DataAPI interface {
	Balance(ctx context.Context, token string) (*upstream.Balance, error)
	Transactions(ctx context.Context, token string, query upstream.TransactionQuery) ([]upstream.Transaction, string, error)
	TransactionSummary(ctx context.Context, token string) (*upstream.TransactionSummary, error)
	JourneyLevels(ctx context.Context, token string) ([]upstream.JourneyLevel, error)
}

// Data serves balance, transaction history, summary, journey levels
// and the notification drain. Reads go through the TTL cache; a
// settled deposit invalidates the money-dependent classes.
type Data struct {
	API      DataAPI
	Cache    *cache.Cache
	Notifier *notify.Center
	Logger   *slog.Logger
	TTL      time.Duration
}

func (h *Data) ttl() time.Duration {
	if h.TTL > 0 {
		return h.TTL
	}
	return 30 * time.Second
}

func (h *Data) Balance(c *gin.Context) {
	sessionID := currentSessionID(c)
	gwToken := currentToken(c)

	value, err := h.Cache.GetOrLoad(c.Request.Context(), cache.Key(cache.ClassBalance, sessionID), h.ttl(), func(ctx context.Context) (any, error) {
		return h.API.Balance(ctx, gwToken)
	})
	if err != nil {
		writeUpstreamError(c, err, http.StatusBadGateway, "balance unavailable")
		return
	}
	c.JSON(http.StatusOK, value)
}

type transactionsResponse struct {
	Transactions []upstream.Transaction `json:"transactions"`
	NextCursor   string                 `json:"next_cursor,omitempty"`
}

func (h *Data) Transactions(c *gin.Context) {
	query := upstream.TransactionQuery{
		Status: c.Query("status"),
		Type:   c.Query("type"),
		Cursor: c.Query("cursor"),
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 200 {
			c.JSON(http.StatusBadRequest, errorResponse{Code: CodeInvalidRequest, Message: "limit must be between 1 and 200"})
			return
		}
		query.Limit = limit
	}

	sessionID := currentSessionID(c)
	gwToken := currentToken(c)
	key := cache.Key(cache.ClassTransactions, sessionID) + ":" + query.Status + ":" + query.Type + ":" + strconv.Itoa(query.Limit) + ":" + query.Cursor

	value, err := h.Cache.GetOrLoad(c.Request.Context(), key, h.ttl(), func(ctx context.Context) (any, error) {
		transactions, next, err := h.API.Transactions(ctx, gwToken, query)
		if err != nil {
			return nil, err
		}
		return transactionsResponse{Transactions: transactions, NextCursor: next}, nil
	})
	if err != nil {
		writeUpstreamError(c, err, http.StatusBadGateway, "transactions unavailable")
		return
	}
	c.JSON(http.StatusOK, value)
}

func (h *Data) Summary(c *gin.Context) {
	sessionID := currentSessionID(c)
	gwToken := currentToken(c)

	value, err := h.Cache.GetOrLoad(c.Request.Context(), cache.Key(cache.ClassSummary, sessionID), h.ttl(), func(ctx context.Context) (any, error) {
		return h.API.TransactionSummary(ctx, gwToken)
	})
	if err != nil {
		writeUpstreamError(c, err, http.StatusBadGateway, "summary unavailable")
		return
	}
	c.JSON(http.StatusOK, value)
}

// JourneyLevels is near-static gamification data; it gets a longer TTL
// and is never invalidated by settlements.
func (h *Data) JourneyLevels(c *gin.Context) {
	gwToken := currentToken(c)

	value, err := h.Cache.GetOrLoad(c.Request.Context(), "journey:levels", 5*time.Minute, func(ctx context.Context) (any, error) {
		return h.API.JourneyLevels(ctx, gwToken)
	})
	if err != nil {
		writeUpstreamError(c, err, http.StatusBadGateway, "journey levels unavailable")
		return
	}
	c.JSON(http.StatusOK, gin.H{"levels": value})
}

// Notifications drains the session's pending queue. Delivery is
// at-most-once; the frontend shows what it gets.
func (h *Data) Notifications(c *gin.Context) {
	notifications := h.Notifier.Drain(currentSessionID(c))
	if notifications == nil {
		notifications = []notify.Notification{}
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}
