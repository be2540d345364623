package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	base "github.com/orizonpaybr/gateway-web-sub001/libs/config"
)

type UpstreamConfig struct {
	BaseURL string
	Timeout time.Duration
}

type SessionConfig struct {
	TTL             time.Duration
	PendingTTL      time.Duration
	RevalidateDelay time.Duration
}

type DepositConfig struct {
	PollInterval   time.Duration
	PaidStatuses   []string
	PollingEnabled bool
	MaxWatch       time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type PostgresConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

type KafkaConfig struct {
	Brokers      []string
	SettledTopic string
	DLQTopic     string
	GroupID      string
}

type RateLimitConfig struct {
	LoginLimit int
	Window     time.Duration
}

type Config struct {
	App       base.AppConfig
	Upstream  UpstreamConfig
	Session   SessionConfig
	Deposit   DepositConfig
	Redis     RedisConfig
	Postgres  PostgresConfig
	Kafka     KafkaConfig
	RateLimit RateLimitConfig
	CacheTTL  time.Duration
}

func Load() (*Config, error) {
	appCfg, err := base.Load(os.Getenv("GW_CONFIG"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		App: *appCfg,
		Upstream: UpstreamConfig{
			BaseURL: envString("GW_GATEWAY_API_URL", ""),
			Timeout: envDuration("GW_GATEWAY_API_TIMEOUT", 30*time.Second),
		},
		Session: SessionConfig{
			TTL:             envDuration("GW_SESSION_TTL", 12*time.Hour),
			PendingTTL:      envDuration("GW_2FA_PENDING_TTL", 10*time.Minute),
			RevalidateDelay: envDuration("GW_SESSION_REVALIDATE_DELAY", 2*time.Second),
		},
		Deposit: DepositConfig{
			PollInterval:   envDuration("GW_DEPOSIT_POLL_INTERVAL", 5*time.Second),
			PaidStatuses:   envStrings("GW_DEPOSIT_PAID_STATUSES", nil),
			PollingEnabled: envBool("GW_DEPOSIT_POLLING_ENABLED", true),
			MaxWatch:       envDuration("GW_DEPOSIT_MAX_WATCH", 30*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     envString("GW_REDIS_ADDR", ""),
			Password: envString("GW_REDIS_PASSWORD", ""),
			DB:       envInt("GW_REDIS_DB", 0),
			Prefix:   envString("GW_REDIS_PREFIX", "gw:sess:"),
		},
		Postgres: PostgresConfig{
			Host:     envString("POSTGRES_HOST", ""),
			Port:     envInt("POSTGRES_PORT", 5432),
			Name:     envString("POSTGRES_DB", "gateway_web"),
			User:     envString("POSTGRES_USER", "gateway"),
			Password: envString("POSTGRES_PASSWORD", "gateway"),
			SSLMode:  envString("POSTGRES_SSLMODE", "disable"),
		},
		Kafka: KafkaConfig{
			Brokers:      envStrings("GW_KAFKA_BROKERS", nil),
			SettledTopic: envString("GW_KAFKA_SETTLED_TOPIC", "gateway.deposit.settled"),
			DLQTopic:     envString("GW_KAFKA_DLQ_TOPIC", ""),
			GroupID:      envString("GW_KAFKA_GROUP_ID", "gateway-web"),
		},
		RateLimit: RateLimitConfig{
			LoginLimit: envInt("GW_LOGIN_RATE_LIMIT", 10),
			Window:     envDuration("GW_LOGIN_RATE_WINDOW", 1*time.Minute),
		},
		CacheTTL: envDuration("GW_CACHE_TTL", 30*time.Second),
	}

	if cfg.Upstream.BaseURL == "" {
		return nil, fmt.Errorf("GW_GATEWAY_API_URL must be set")
	}

	return cfg, nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envStrings(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
