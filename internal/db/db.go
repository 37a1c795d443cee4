package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	pkglog "tutorhub/internal/log"
)

// Connect opens the Postgres pool.
func Connect(ctx context.Context, dsn string, maxOpenConns int) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(maxOpenConns / 2)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL
        );`,
	`CREATE TABLE IF NOT EXISTS courses (
            id TEXT PRIMARY KEY,
            title TEXT NOT NULL,
            tutor_id TEXT NOT NULL REFERENCES users(id)
        );`,
	`CREATE TABLE IF NOT EXISTS course_enrollments (
            course_id TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
            user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            enrolled_at TIMESTAMPTZ DEFAULT NOW(),
            PRIMARY KEY(course_id, user_id)
        );`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
            id TEXT PRIMARY KEY,
            community_id TEXT,
            private_chat_id TEXT,
            sender TEXT NOT NULL,
            content TEXT NOT NULL DEFAULT '',
            sent_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            status TEXT NOT NULL DEFAULT 'sent' CHECK (status IN ('sent', 'delivered', 'read')),
            image_url TEXT,
            CHECK ((community_id IS NULL) <> (private_chat_id IS NULL))
        );`,
	`CREATE INDEX IF NOT EXISTS chat_messages_community_idx ON chat_messages (community_id, sent_at DESC) WHERE community_id IS NOT NULL;`,
	`CREATE INDEX IF NOT EXISTS chat_messages_private_idx ON chat_messages (private_chat_id, sent_at DESC) WHERE private_chat_id IS NOT NULL;`,
}

// Migrate creates the tables the hub reads and writes. It is idempotent.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("run migration: %w", err)
		}
	}
	l := pkglog.L()
	l.Info().Int("statements", len(migrations)).Msg("database migrations applied")
	return nil
}
