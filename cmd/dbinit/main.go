package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

// dbinit creates the dashboard's own tables. The gateway owns every
// money table; the dashboard only keeps its action log locally.
func main() {
	_ = godotenv.Load()

	env := getEnv("GW_ENV", "dev")
	if env != "dev" && env != "test" {
		log.Fatalf("refusing to run: GW_ENV must be 'dev' or 'test' (got '%s')", env)
	}

	host := getEnv("POSTGRES_HOST", "localhost")
	port := getEnv("POSTGRES_PORT", "5432")
	db := getEnv("POSTGRES_DB", "gateway_web")
	user := getEnv("POSTGRES_USER", "gateway")
	password := getEnv("POSTGRES_PASSWORD", "gateway")
	sslmode := getEnv("POSTGRES_SSLMODE", "disable")

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		user, password, host, port, db, sslmode)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("connect db: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("ping db: %v", err)
	}

	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS dashboard_audit_log (
			id          BIGSERIAL PRIMARY KEY,
			actor_id    TEXT NOT NULL,
			actor_type  TEXT NOT NULL,
			action      TEXT NOT NULL,
			entity_type TEXT,
			entity_id   TEXT,
			ip          TEXT,
			user_agent  TEXT,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		log.Fatalf("create dashboard_audit_log: %v", err)
	}

	if _, err := pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS idx_dashboard_audit_log_actor
		ON dashboard_audit_log (actor_id, created_at DESC)
	`); err != nil {
		log.Fatalf("index dashboard_audit_log: %v", err)
	}

	fmt.Println("✓ dashboard_audit_log ready")
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
