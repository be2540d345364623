package deposit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/orizonpaybr/gateway-web-sub001/internal/upstream"
	"log/slog"
)

var ErrWatcherNotFound = errors.New("no watcher for charge")

// Registry owns the per-dialog watchers, keyed by session id and
// charge id. Logout tears down everything a session had live.
type Registry struct {
	api      GatewayAPI
	sink     SettlementSink
	notifier Notifier
	logger   *slog.Logger
	metrics  *Metrics
	interval time.Duration
	maxWatch time.Duration
	paid     StatusSet
	polling  bool

	mu       sync.Mutex
	watchers map[string]map[string]*Watcher
}

type RegistryConfig struct {
	PollInterval time.Duration
	PaidStatuses []string
	// PollingEnabled turns the background loop off entirely; the
	// manual CheckStatus path still works.
	PollingEnabled bool
	// MaxWatch bounds how long a charge is polled before the watcher
	// gives up. PIX QR codes expire upstream anyway; without a bound an
	// abandoned browser tab would leave its poller running forever.
	MaxWatch time.Duration
}

func NewRegistry(api GatewayAPI, sink SettlementSink, notifier Notifier, logger *slog.Logger, metrics *Metrics, cfg RegistryConfig) *Registry {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	maxWatch := cfg.MaxWatch
	if maxWatch <= 0 {
		maxWatch = 30 * time.Minute
	}
	return &Registry{
		api:      api,
		sink:     sink,
		notifier: notifier,
		logger:   logger,
		metrics:  metrics,
		interval: interval,
		maxWatch: maxWatch,
		paid:     NewStatusSet(cfg.PaidStatuses),
		polling:  cfg.PollingEnabled,
		watchers: map[string]map[string]*Watcher{},
	}
}

// Generate creates a watcher for a fresh charge and starts tracking
// it. Validation failures and upstream rejections leave nothing behind.
func (r *Registry) Generate(ctx context.Context, sessionID, gwToken string, payer upstream.Session, req upstream.DepositRequest) (*Watcher, error) {
	w := &Watcher{
		api:       r.api,
		sink:      r.sink,
		notifier:  r.notifier,
		logger:    r.logger,
		metrics:   r.metrics,
		sessionID: sessionID,
		gwToken:   gwToken,
		payer:     payer,
		interval:  r.interval,
		maxWatch:  r.maxWatch,
		paid:      r.paid,
		polling:   r.polling,
	}
	w.onExpire = func(transactionID string) { r.forget(sessionID, transactionID) }

	charge, err := w.Generate(ctx, req)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.watchers[sessionID] == nil {
		r.watchers[sessionID] = map[string]*Watcher{}
	}
	r.watchers[sessionID][charge.TransactionID] = w
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.ActiveWatchers.Inc()
	}
	return w, nil
}

func (r *Registry) Get(sessionID, transactionID string) (*Watcher, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.watchers[sessionID][transactionID]
	if !ok {
		return nil, ErrWatcherNotFound
	}
	return w, nil
}

// Cancel stops one watcher and forgets it.
func (r *Registry) Cancel(sessionID, transactionID string) error {
	r.mu.Lock()
	w, ok := r.watchers[sessionID][transactionID]
	if ok {
		delete(r.watchers[sessionID], transactionID)
		if len(r.watchers[sessionID]) == 0 {
			delete(r.watchers, sessionID)
		}
	}
	r.mu.Unlock()

	if !ok {
		return ErrWatcherNotFound
	}
	w.Cancel()
	if r.metrics != nil {
		r.metrics.ActiveWatchers.Dec()
	}
	return nil
}

// forget drops a registry entry whose watcher already shut itself
// down, so expired charges do not pile up for the session's lifetime.
func (r *Registry) forget(sessionID, transactionID string) {
	r.mu.Lock()
	_, ok := r.watchers[sessionID][transactionID]
	if ok {
		delete(r.watchers[sessionID], transactionID)
		if len(r.watchers[sessionID]) == 0 {
			delete(r.watchers, sessionID)
		}
	}
	r.mu.Unlock()

	if ok && r.metrics != nil {
		r.metrics.ActiveWatchers.Dec()
	}
}

// CancelAll stops every watcher a session has. Hooked into logout so
// no poll request fires after the session is gone.
func (r *Registry) CancelAll(sessionID string) {
	r.mu.Lock()
	session := r.watchers[sessionID]
	delete(r.watchers, sessionID)
	r.mu.Unlock()

	for _, w := range session {
		w.Cancel()
		if r.metrics != nil {
			r.metrics.ActiveWatchers.Dec()
		}
	}
}
