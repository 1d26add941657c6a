package migrate

import (
	"fmt"

	"gorm.io/gorm"
)

// sqliteSchema mirrors the goose migrations with portable column types.
// Enum columns become TEXT and money columns are stored as TEXT decimals.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		username TEXT NOT NULL,
		full_name TEXT NULL,
		role TEXT NOT NULL DEFAULT 'user',
		total_sales TEXT NOT NULL DEFAULT '0',
		total_purchases TEXT NOT NULL DEFAULT '0',
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		vendor_id TEXT NOT NULL,
		title TEXT NOT NULL,
		price TEXT NULL,
		inventory INTEGER NOT NULL DEFAULT 0 CHECK (inventory >= 0),
		total_purchases INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS purchases (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		buyer_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		vendor_id TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		purchase_price TEXT NOT NULL,
		status TEXT NOT NULL,
		delivery_method TEXT NOT NULL,
		payment_method TEXT NOT NULL,
		delivery_fee TEXT NOT NULL DEFAULT '0',
		delivery_address TEXT NULL,
		delivery_latitude REAL NULL,
		delivery_longitude REAL NULL,
		agent_id TEXT NULL,
		pickup_confirmed_at DATETIME NULL,
		vendor_payment_amount TEXT NULL,
		commission_amount TEXT NULL,
		created_at DATETIME,
		updated_at DATETIME,
		CONSTRAINT purchases_order_id_key UNIQUE (order_id)
	)`,
	`CREATE TABLE IF NOT EXISTS otp_challenges (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		code_hash TEXT NOT NULL,
		purpose TEXT NOT NULL,
		session_id TEXT NULL,
		issued_by TEXT NULL,
		used BOOLEAN NOT NULL DEFAULT 0,
		used_at DATETIME NULL,
		expires_at DATETIME NOT NULL,
		created_at DATETIME
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS otp_challenges_one_live_idx
		ON otp_challenges (user_id, purpose) WHERE NOT used`,
	`CREATE TABLE IF NOT EXISTS identity_tokens (
		user_id TEXT PRIMARY KEY,
		token TEXT NOT NULL,
		pending_purchase_ids TEXT NOT NULL DEFAULT '{}',
		expires_at DATETIME NOT NULL,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME,
		published_at DATETIME NULL,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS outbox_dlq (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT NULL,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME
	)`,
}

// ApplySQLite creates the purchase engine tables on a sqlite connection.
// Used by local dev runs with AGASEKE_USE_SQLITE and by package tests.
func ApplySQLite(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	for _, stmt := range sqliteSchema {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("apply sqlite schema: %w", err)
		}
	}
	return nil
}
