package audit

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"log/slog"
)

// Entry is one row of the dashboard's append-only action log. Money
// movement is audited upstream by the gateway; this records what was
// done through the dashboard and by whom.
type Entry struct {
	ActorID    string
	ActorType  string
	Action     string
	EntityType string
	EntityID   string
	IP         string
	UserAgent  string
}

type Recorder interface {
	Insert(ctx context.Context, entry Entry)
}

type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	return &Store{pool: pool, logger: logger}
}

// Insert never blocks the request path: a failed audit write is logged
// and dropped.
func (s *Store) Insert(ctx context.Context, entry Entry) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO dashboard_audit_log (actor_id, actor_type, action, entity_type, entity_id, ip, user_agent, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, now())
	`, entry.ActorID, entry.ActorType, entry.Action, entry.EntityType, entry.EntityID, entry.IP, entry.UserAgent)
	if err != nil {
		s.logger.Error("audit log failed", "action", entry.Action, "error", err)
	}
}

// Noop is used when no database is configured (dev/test).
type Noop struct{}

func (Noop) Insert(context.Context, Entry) {}
