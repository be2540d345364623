package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/orizonpaybr/gateway-web-sub001/internal/cache"
	"github.com/orizonpaybr/gateway-web-sub001/internal/upstream"
	"github.com/orizonpaybr/gateway-web-sub001/libs/kafka"
	"github.com/orizonpaybr/gateway-web-sub001/libs/logging"
	"github.com/shopspring/decimal"
)

type capturedPublish struct {
	topic string
	key   string
	value []byte
}

type fakeProducer struct {
	published []capturedPublish
	err       error
}

func (f *fakeProducer) PublishJSON(_ context.Context, topic, key string, value any) (int32, int64, error) {
	if f.err != nil {
		return 0, 0, f.err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return 0, 0, err
	}
	f.published = append(f.published, capturedPublish{topic: topic, key: key, value: raw})
	return 0, int64(len(f.published)), nil
}

func (f *fakeProducer) Close() error { return nil }

func settledCharge() *upstream.Charge {
	return &upstream.Charge{
		TransactionID: "tx-1",
		Amount:        decimal.NewFromInt(100),
		Status:        "PAID",
		CreatedAt:     time.Now().UTC(),
	}
}

func TestPublishDepositSettledIsDeterministic(t *testing.T) {
	producer := &fakeProducer{}
	pub := NewPublisher(producer, "gateway.deposit.settled", logging.Discard())

	if err := pub.PublishDepositSettled(context.Background(), "sess-1", settledCharge()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := pub.PublishDepositSettled(context.Background(), "sess-2", settledCharge()); err != nil {
		t.Fatalf("publish again: %v", err)
	}

	if len(producer.published) != 2 {
		t.Fatalf("expected two publishes, got %d", len(producer.published))
	}

	var first, second DepositSettledEvent
	if err := json.Unmarshal(producer.published[0].value, &first); err != nil {
		t.Fatalf("decode first: %v", err)
	}
	if err := json.Unmarshal(producer.published[1].value, &second); err != nil {
		t.Fatalf("decode second: %v", err)
	}

	if first.EventID != second.EventID {
		t.Fatalf("same settlement must produce the same event id: %q vs %q", first.EventID, second.EventID)
	}
	if first.EventType != EventDepositSettled {
		t.Fatalf("expected event type %q, got %q", EventDepositSettled, first.EventType)
	}
	if producer.published[0].key != "tx-1" {
		t.Fatalf("expected transaction id as partition key, got %q", producer.published[0].key)
	}
}

func TestNilPublisherIsSafe(t *testing.T) {
	var pub *Publisher
	if err := pub.PublishDepositSettled(context.Background(), "sess-1", settledCharge()); err != nil {
		t.Fatalf("nil publisher must be a no-op, got %v", err)
	}
}

func TestSinkInvalidatesMoneyClasses(t *testing.T) {
	c := cache.New()
	c.SetWithTTL(cache.Key(cache.ClassBalance, "sess-1"), 1, time.Minute)
	c.SetWithTTL(cache.Key(cache.ClassTransactions, "sess-2"), 2, time.Minute)
	c.SetWithTTL(cache.Key(cache.ClassSummary, "sess-1"), 3, time.Minute)
	c.SetWithTTL("journey:levels", 4, time.Minute)

	sink := NewSink(c, NewPublisher(&fakeProducer{}, "topic", logging.Discard()), logging.Discard())
	sink.DepositSettled(context.Background(), "sess-1", settledCharge())

	if c.Size() != 1 {
		t.Fatalf("expected only the journey entry to survive, got %d entries", c.Size())
	}
}

func TestInvalidationHandlerAppliesRemoteSettlement(t *testing.T) {
	c := cache.New()
	c.SetWithTTL(cache.Key(cache.ClassBalance, "sess-1"), 1, time.Minute)

	envelope, err := kafka.NewEnvelope(EventDepositSettled, 1, "sess-remote")
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	event := DepositSettledEvent{
		Envelope:      envelope,
		TransactionID: "tx-1",
		Amount:        decimal.NewFromInt(100),
		Status:        "PAID",
	}
	raw, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	handler := NewInvalidationHandler(c, logging.Discard())
	if err := handler.HandleMessage(context.Background(), &sarama.ConsumerMessage{Value: raw}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if c.Size() != 0 {
		t.Fatal("expected the balance entry invalidated")
	}
}

func TestInvalidationHandlerSkipsForeignEvents(t *testing.T) {
	c := cache.New()
	c.SetWithTTL(cache.Key(cache.ClassBalance, "sess-1"), 1, time.Minute)

	envelope, err := kafka.NewEnvelope("withdrawal.settled", 1, "")
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	raw, err := json.Marshal(DepositSettledEvent{Envelope: envelope})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	handler := NewInvalidationHandler(c, logging.Discard())
	if err := handler.HandleMessage(context.Background(), &sarama.ConsumerMessage{Value: raw}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if c.Size() != 1 {
		t.Fatal("a foreign event type must not touch the cache")
	}
}

func TestInvalidationHandlerRejectsInvalidEnvelope(t *testing.T) {
	handler := NewInvalidationHandler(cache.New(), logging.Discard())
	raw, _ := json.Marshal(DepositSettledEvent{})
	if err := handler.HandleMessage(context.Background(), &sarama.ConsumerMessage{Value: raw}); err == nil {
		t.Fatal("expected validation error for empty envelope")
	}
}
