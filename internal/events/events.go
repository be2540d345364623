package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/orizonpaybr/gateway-web-sub001/internal/cache"
	"github.com/orizonpaybr/gateway-web-sub001/internal/upstream"
	"github.com/orizonpaybr/gateway-web-sub001/libs/kafka"
	"github.com/shopspring/decimal"
	"log/slog"
)

const (
	EventDepositSettled = "deposit.settled"
	eventVersion        = 1
)

type DepositSettledEvent struct {
	kafka.Envelope
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
}

// Publisher emits settlement events so sibling dashboard instances
// invalidate their caches too. The event id is derived from the
// transaction id: two instances observing the same settlement publish
// the same event.
type Publisher struct {
	producer kafka.Publisher
	topic    string
	logger   *slog.Logger
}

func NewPublisher(producer kafka.Publisher, topic string, logger *slog.Logger) *Publisher {
	return &Publisher{producer: producer, topic: topic, logger: logger}
}

func (p *Publisher) PublishDepositSettled(ctx context.Context, sessionID string, charge *upstream.Charge) error {
	if p == nil || p.producer == nil {
		return nil
	}

	envelope, err := kafka.NewEnvelope(EventDepositSettled, eventVersion, sessionID)
	if err != nil {
		return err
	}
	envelope.EventID = kafka.DeterministicEventID(EventDepositSettled, charge.TransactionID)

	event := DepositSettledEvent{
		Envelope:      envelope,
		TransactionID: charge.TransactionID,
		Amount:        charge.Amount,
		Status:        charge.Status,
	}
	if _, _, err := p.producer.PublishJSON(ctx, p.topic, charge.TransactionID, event); err != nil {
		return fmt.Errorf("publish %s: %w", EventDepositSettled, err)
	}
	return nil
}

// Sink fans a settlement out to the local cache and the event topic.
// It is what a watcher calls on the first paid observation.
type Sink struct {
	cache     *cache.Cache
	publisher *Publisher
	logger    *slog.Logger
}

func NewSink(c *cache.Cache, publisher *Publisher, logger *slog.Logger) *Sink {
	return &Sink{cache: c, publisher: publisher, logger: logger}
}

func (s *Sink) DepositSettled(ctx context.Context, sessionID string, charge *upstream.Charge) {
	s.cache.InvalidateClasses(cache.ClassBalance, cache.ClassTransactions, cache.ClassSummary)
	if err := s.publisher.PublishDepositSettled(ctx, sessionID, charge); err != nil {
		s.logger.Error("settlement event publish failed", "transaction_id", charge.TransactionID, "error", err)
	}
}

// InvalidationHandler consumes settlement events published by other
// instances and applies the same cache invalidation locally.
type InvalidationHandler struct {
	cache  *cache.Cache
	logger *slog.Logger
}

func NewInvalidationHandler(c *cache.Cache, logger *slog.Logger) *InvalidationHandler {
	return &InvalidationHandler{cache: c, logger: logger}
}

func (h *InvalidationHandler) HandleMessage(_ context.Context, msg *sarama.ConsumerMessage) error {
	var event DepositSettledEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("decode settlement event: %w", err)
	}
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid settlement event: %w", err)
	}
	if event.EventType != EventDepositSettled {
		// Other event types on the topic are not ours to handle.
		return nil
	}

	h.cache.InvalidateClasses(cache.ClassBalance, cache.ClassTransactions, cache.ClassSummary)
	h.logger.Debug("cache invalidated from settlement event", "transaction_id", event.TransactionID)
	return nil
}
