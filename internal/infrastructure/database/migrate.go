package database

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// MessageChannel is the NOTIFY channel the messages triggers publish on.
const MessageChannel = "chat_messages"

//go:embed schema.sql
var schemaSQL string

// Migrate applies the idempotent schema, including the change-feed triggers.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}
