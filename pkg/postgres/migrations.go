package postgres

import (
	"database/sql"

	"go.uber.org/zap"
)

// RunMigrations executes the bootstrap DDL for a service. Statements are
// idempotent so every instance can run them on startup.
func RunMigrations(db *sql.DB, service string, logger *zap.Logger) error {
	for _, m := range getServiceMigrations(service) {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	logger.Info("migrations completed", zap.String("service", service))
	return nil
}

func getServiceMigrations(service string) []string {
	users := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id VARCHAR(36) PRIMARY KEY,
			email VARCHAR(255) NOT NULL,
			username VARCHAR(255) NOT NULL,
			first_name VARCHAR(255),
			last_name VARCHAR(255),
			phone VARCHAR(32),
			deleted BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS users_email_lower_idx ON users (LOWER(email))`,
		`CREATE UNIQUE INDEX IF NOT EXISTS users_username_lower_idx ON users (LOWER(username))`,
		`CREATE INDEX IF NOT EXISTS users_created_at_idx ON users (created_at)`,
	}

	switch service {
	case "user-service", "api":
		return users
	case "audit":
		return []string{
			`CREATE TABLE IF NOT EXISTS idempotency_keys (
				event_id VARCHAR(36) PRIMARY KEY,
				processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE TABLE IF NOT EXISTS audit_log (
				id SERIAL PRIMARY KEY,
				event_id VARCHAR(36) NOT NULL,
				event_type VARCHAR(50) NOT NULL,
				user_id VARCHAR(36) NOT NULL,
				user_email VARCHAR(255),
				username VARCHAR(255),
				recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
		}
	default:
		return users
	}
}
