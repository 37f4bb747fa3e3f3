package postgres

import (
	"context"
	"fmt"
)

// schemaStatements create the registry tables. Ownership cascades from URL:
// removing a URL removes its product, price history, attempt log, and requests.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS url (
		url_id BIGSERIAL PRIMARY KEY,
		url TEXT UNIQUE NOT NULL,
		status TEXT NOT NULL DEFAULT 'Pending'
			CHECK (status IN ('Pending', 'Active', 'Inactive', 'Rejected')),
		fail_count INT NOT NULL DEFAULT 0 CHECK (fail_count >= 0),
		last_attempt TIMESTAMPTZ,
		added_date TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS product (
		product_id BIGSERIAL PRIMARY KEY,
		url_id BIGINT NOT NULL UNIQUE REFERENCES url (url_id) ON DELETE CASCADE,
		product_name TEXT NOT NULL,
		model_name TEXT,
		options TEXT,
		image_url TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS price_history (
		price_id BIGSERIAL PRIMARY KEY,
		product_id BIGINT NOT NULL REFERENCES product (product_id) ON DELETE CASCADE,
		date_recorded DATE NOT NULL,
		release_price BIGINT,
		employee_price BIGINT,
		UNIQUE (product_id, date_recorded)
	)`,
	`CREATE TABLE IF NOT EXISTS crawl_log (
		log_id BIGSERIAL PRIMARY KEY,
		url_id BIGINT NOT NULL REFERENCES url (url_id) ON DELETE CASCADE,
		attempt_time TIMESTAMPTZ NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('Success', 'Failed')),
		error_message TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS user_request (
		request_id BIGSERIAL PRIMARY KEY,
		url_id BIGINT NOT NULL REFERENCES url (url_id) ON DELETE CASCADE,
		status TEXT NOT NULL DEFAULT 'Pending' CHECK (status IN ('Pending', 'Complete')),
		requested_at TIMESTAMPTZ NOT NULL
	)`,
}

// Migrate applies the registry schema. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
