package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"
	"log/slog"
)

// ProducerMetrics counts dashboard event publishes. The settlement
// topic dominates; the DLQ topic shows up under the same vectors when
// a publish has to be mirrored there.
type ProducerMetrics struct {
	PublishTotal   *prometheus.CounterVec
	PublishLatency *prometheus.HistogramVec
}

func NewProducerMetrics(registry *prometheus.Registry) *ProducerMetrics {
	m := &ProducerMetrics{
		PublishTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dashboard_event_publish_total",
				Help: "Dashboard event publish attempts by topic and outcome.",
			},
			[]string{"topic", "status"},
		),
		PublishLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dashboard_event_publish_latency_seconds",
				Help:    "Dashboard event publish latency in seconds, per topic.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"topic"},
		),
	}

	registry.MustRegister(m.PublishTotal, m.PublishLatency)
	return m
}

type Publisher interface {
	PublishJSON(ctx context.Context, topic, key string, value any) (int32, int64, error)
	Close() error
}

// SyncProducer publishes dashboard events with idempotent, all-ISR
// acknowledged writes. Settlement events drive cache invalidation on
// every instance, so a dropped or duplicated message is worse here
// than a slow one.
type SyncProducer struct {
	producer sarama.SyncProducer
	origin   string
	logger   *slog.Logger
	metrics  *ProducerMetrics
}

// NewSyncProducer connects to the brokers. origin identifies this
// service instance group to kafka (client id) and is stamped onto each
// message so consumers can tell dashboard-produced events apart.
func NewSyncProducer(brokers []string, origin string, logger *slog.Logger, metrics *ProducerMetrics) (*SyncProducer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_7_0_0
	if origin != "" {
		cfg.ClientID = origin
	}
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Retry.Backoff = 250 * time.Millisecond

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	return &SyncProducer{
		producer: producer,
		origin:   origin,
		logger:   logger,
		metrics:  metrics,
	}, nil
}

func (p *SyncProducer) PublishJSON(ctx context.Context, topic, key string, value any) (int32, int64, error) {
	select {
	case <-ctx.Done():
		return 0, 0, ctx.Err()
	default:
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return 0, 0, fmt.Errorf("marshal kafka payload: %w", err)
	}

	start := time.Now()
	partition, offset, err := p.producer.SendMessage(p.message(topic, key, payload))
	p.observe(topic, start, err)
	if err != nil {
		p.logger.Error("kafka publish failed", "topic", topic, "key", key, "error", err)
		return 0, 0, fmt.Errorf("kafka publish failed: %w", err)
	}

	p.logger.Debug("event published", "topic", topic, "key", key, "partition", partition, "offset", offset)
	return partition, offset, nil
}

func (p *SyncProducer) message(topic, key string, payload []byte) *sarama.ProducerMessage {
	msg := &sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.StringEncoder(key),
		Value:     sarama.ByteEncoder(payload),
		Timestamp: time.Now().UTC(),
	}
	if p.origin != "" {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{
			Key:   []byte("origin"),
			Value: []byte(p.origin),
		})
	}
	return msg
}

func (p *SyncProducer) observe(topic string, start time.Time, err error) {
	if p.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	p.metrics.PublishTotal.WithLabelValues(topic, status).Inc()
	p.metrics.PublishLatency.WithLabelValues(topic).Observe(time.Since(start).Seconds())
}

func (p *SyncProducer) Close() error {
	if p.producer == nil {
		return nil
	}
	return p.producer.Close()
}
