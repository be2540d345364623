package deposit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/orizonpaybr/gateway-web-sub001/internal/upstream"
	"log/slog"
)

var ErrInvalidAmount = errors.New("deposit amount must be greater than zero")

// GatewayAPI is the slice of the gateway client a watcher needs.
type GatewayAPI interface {
	GenerateDeposit(ctx context.Context, token string, req upstream.DepositRequest) (*upstream.Charge, error)
	DepositStatus(ctx context.Context, token, transactionID string) (string, error)
}

// Notifier records a transient user-facing notification.
type Notifier interface {
	Push(sessionID, level, message string)
}

// SettlementSink receives the one settled-charge callback: cache
// invalidation and event publication hang off it.
type SettlementSink interface {
	DepositSettled(ctx context.Context, sessionID string, charge *upstream.Charge)
}

// StatusSet is the configured set of status strings the gateway uses
// to mean "settled". The backend has been observed to answer with
// several synonyms, so this is configuration, not a single constant.
type StatusSet map[string]struct{}

var defaultPaidStatuses = []string{"PAID", "PAID_OUT", "COMPLETED", "CONFIRMED", "APPROVED"}

func NewStatusSet(statuses []string) StatusSet {
	if len(statuses) == 0 {
		statuses = defaultPaidStatuses
	}
	set := make(StatusSet, len(statuses))
	for _, s := range statuses {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			set[s] = struct{}{}
		}
	}
	return set
}

func (s StatusSet) Contains(status string) bool {
	_, ok := s[strings.ToUpper(strings.TrimSpace(status))]
	return ok
}

type WatcherState int

const (
	WatcherIdle WatcherState = iota
	WatcherPolling
	WatcherSettled
)

func (s WatcherState) String() string {
	switch s {
	case WatcherPolling:
		return "polling"
	case WatcherSettled:
		return "settled"
	default:
		return "idle"
	}
}

// Watcher drives the request, QR display and poll-until-paid lifecycle
// for a single deposit charge. One watcher per open deposit dialog;
// instances are never shared across dialogs.
type Watcher struct {
	api       GatewayAPI
	sink      SettlementSink
	notifier  Notifier
	logger    *slog.Logger
	metrics   *Metrics
	sessionID string
	gwToken   string
	payer     upstream.Session
	interval  time.Duration
	maxWatch  time.Duration
	paid      StatusSet
	polling   bool
	onExpire  func(transactionID string)

	mu         sync.Mutex
	state      WatcherState
	charge     *upstream.Charge
	lastStatus string
	cancel     context.CancelFunc
}

// Generate requests a new charge. Amount must be strictly positive;
// zero and negative amounts are rejected before any network call.
// Payer fields left empty are filled from the session. A previous
// charge, if any, stops being polled: only the newest charge id is
// watched, the old one simply runs out upstream.
func (w *Watcher) Generate(ctx context.Context, req upstream.DepositRequest) (*upstream.Charge, error) {
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if req.PayerName == "" {
		req.PayerName = w.payer.Name
	}
	if req.PayerDocument == "" {
		req.PayerDocument = w.payer.Document
	}
	if req.PayerContact == "" {
		req.PayerContact = w.payer.Email
	}

	charge, err := w.api.GenerateDeposit(ctx, w.gwToken, req)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.stopLocked()
	w.charge = charge
	w.lastStatus = charge.Status
	if w.polling {
		w.startLocked(charge.TransactionID)
	}
	w.mu.Unlock()

	return charge, nil
}

// CheckStatus forces an immediate out-of-band status refetch, backing
// the manual refresh affordance. No-op without a charge.
func (w *Watcher) CheckStatus(ctx context.Context) {
	w.mu.Lock()
	if w.charge == nil {
		w.mu.Unlock()
		return
	}
	transactionID := w.charge.TransactionID
	w.mu.Unlock()

	w.poll(ctx, transactionID)
}

// Cancel stops polling and discards the current charge, returning the
// watcher to its initial empty state.
func (w *Watcher) Cancel() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopLocked()
	w.charge = nil
	w.lastStatus = ""
	w.state = WatcherIdle
}

func (w *Watcher) IsPaid() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastStatus != "" && w.paid.Contains(w.lastStatus)
}

func (w *Watcher) State() WatcherState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Watcher) Charge() *upstream.Charge {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.charge == nil {
		return nil
	}
	copied := *w.charge
	return &copied
}

// startLocked spins up the poll loop for the given charge id. Caller
// holds the mutex. The loop runs at most maxWatch: an abandoned dialog
// (browser gone, no cancel, no logout) must not keep a goroutine
// polling the gateway indefinitely.
func (w *Watcher) startLocked(transactionID string) {
	ctx, cancel := context.WithCancel(context.Background())
	if w.maxWatch > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), w.maxWatch)
	}
	w.cancel = cancel
	w.state = WatcherPolling

	go func() {
		defer cancel()
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					w.expire(transactionID)
				}
				return
			case <-ticker.C:
				w.poll(ctx, transactionID)
			}
		}
	}()
}

// expire discards a charge whose watch window ran out unpaid. The PIX
// QR code has long since lapsed upstream at this point.
func (w *Watcher) expire(transactionID string) {
	w.mu.Lock()
	if w.charge == nil || w.charge.TransactionID != transactionID {
		w.mu.Unlock()
		return
	}
	w.cancel = nil
	w.charge = nil
	w.lastStatus = ""
	w.state = WatcherIdle
	w.mu.Unlock()

	w.logger.Info("deposit watch expired", "transaction_id", transactionID)
	if w.onExpire != nil {
		w.onExpire(transactionID)
	}
}

// stopLocked clears the poll timer. Caller holds the mutex. An
// in-flight request for a cycle already started is not aborted; its
// result is disregarded by the charge-id comparison in poll.
func (w *Watcher) stopLocked() {
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
}

func (w *Watcher) poll(ctx context.Context, transactionID string) {
	status, err := w.api.DepositStatus(ctx, w.gwToken, transactionID)
	if err != nil {
		if w.metrics != nil {
			w.metrics.PollsTotal.WithLabelValues("error").Inc()
		}
		w.logger.Debug("deposit status poll failed", "transaction_id", transactionID, "error", err)
		return
	}

	w.mu.Lock()
	if w.charge == nil || w.charge.TransactionID != transactionID {
		// Stale response for a superseded charge.
		w.mu.Unlock()
		return
	}
	w.charge.Status = status
	w.lastStatus = status

	if !w.paid.Contains(status) {
		w.mu.Unlock()
		if w.metrics != nil {
			w.metrics.PollsTotal.WithLabelValues("pending").Inc()
		}
		return
	}

	// First paid observation: stop immediately, no further requests.
	w.stopLocked()
	w.state = WatcherSettled
	settled := *w.charge
	w.mu.Unlock()

	if w.metrics != nil {
		w.metrics.PollsTotal.WithLabelValues("paid").Inc()
		w.metrics.SettlementsTotal.Inc()
	}
	w.logger.Info("deposit settled", "transaction_id", settled.TransactionID, "status", status)
	if w.notifier != nil {
		w.notifier.Push(w.sessionID, "success", "Depósito confirmado")
	}
	if w.sink != nil {
		// The loop context is already cancelled at this point; the
		// settlement fan-out gets its own deadline.
		sinkCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		w.sink.DepositSettled(sinkCtx, w.sessionID, &settled)
	}
}
