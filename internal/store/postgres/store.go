// Package postgres provides the pgx-backed registry Store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pricewatch-io/pricewatch/internal/tracker"
)

// Config controls the Postgres connection pool backing the registry.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// DB is the slice of pgxpool.Pool the store uses. pgxmock satisfies it in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// Store implements tracker.Store on Postgres. Writers to the same URL are
// serialized with a row-level lock inside ApplyResult's transaction.
type Store struct {
	pool DB
}

// NewStore connects a pool from cfg.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewStoreWithPool constructs a Store from an existing pool (primarily for testing).
func NewStoreWithPool(pool DB) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const selectURLColumns = `url_id, url, status, fail_count, last_attempt, added_date`

// TrackURL implements tracker.Store.
func (s *Store) TrackURL(ctx context.Context, url string, now time.Time) (tracker.TrackedURL, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return tracker.TrackedURL{}, false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var urlID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO url (url, status, added_date) VALUES ($1, $2, $3)
		 ON CONFLICT (url) DO NOTHING
		 RETURNING url_id`,
		url, tracker.StatusPending, now,
	).Scan(&urlID)
	if errors.Is(err, pgx.ErrNoRows) {
		u, getErr := scanURL(tx.QueryRow(ctx,
			`SELECT `+selectURLColumns+` FROM url WHERE url = $1`, url))
		if getErr != nil {
			return tracker.TrackedURL{}, false, getErr
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			return tracker.TrackedURL{}, false, fmt.Errorf("commit tx: %w", commitErr)
		}
		return u, false, nil
	}
	if err != nil {
		return tracker.TrackedURL{}, false, fmt.Errorf("insert url: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO user_request (url_id, status, requested_at) VALUES ($1, $2, $3)`,
		urlID, tracker.RequestPending, now,
	); err != nil {
		return tracker.TrackedURL{}, false, fmt.Errorf("insert user request: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return tracker.TrackedURL{}, false, fmt.Errorf("commit tx: %w", err)
	}
	return tracker.TrackedURL{
		ID:        urlID,
		URL:       url,
		Status:    tracker.StatusPending,
		AddedDate: now,
	}, true, nil
}

// RecordRejected implements tracker.Store.
func (s *Store) RecordRejected(ctx context.Context, rawURL, reason string, now time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var urlID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO url (url, status, added_date) VALUES ($1, $2, $3)
		 ON CONFLICT (url) DO NOTHING
		 RETURNING url_id`,
		rawURL, tracker.StatusRejected, now,
	).Scan(&urlID)
	if errors.Is(err, pgx.ErrNoRows) {
		err = tx.QueryRow(ctx, `SELECT url_id FROM url WHERE url = $1`, rawURL).Scan(&urlID)
	}
	if err != nil {
		return fmt.Errorf("resolve rejected url: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO crawl_log (url_id, attempt_time, status, error_message) VALUES ($1, $2, $3, $4)`,
		urlID, now, tracker.AttemptFailed, "rejected: "+reason,
	); err != nil {
		return fmt.Errorf("insert rejected attempt: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetURL implements tracker.Store.
func (s *Store) GetURL(ctx context.Context, url string) (tracker.TrackedURL, error) {
	return scanURL(s.pool.QueryRow(ctx,
		`SELECT `+selectURLColumns+` FROM url WHERE url = $1`, url))
}

// ListWork implements tracker.Store. Kind retry keeps the any-failure-ever
// semantics: Active URLs with at least one Failed log entry.
func (s *Store) ListWork(ctx context.Context, kind tracker.WorkKind) ([]tracker.WorkItem, error) {
	var query string
	switch kind {
	case tracker.WorkAll:
		query = `SELECT url_id, url FROM url WHERE status = 'Active' ORDER BY url_id`
	case tracker.WorkPending:
		query = `SELECT url_id, url FROM url WHERE status = 'Pending' ORDER BY url_id`
	case tracker.WorkRetry:
		query = `SELECT u.url_id, u.url FROM url u
		 WHERE u.status = 'Active'
		   AND EXISTS (SELECT 1 FROM crawl_log c WHERE c.url_id = u.url_id AND c.status = 'Failed')
		 ORDER BY u.url_id`
	default:
		return nil, fmt.Errorf("unknown work kind %q", kind)
	}

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query work list: %w", err)
	}
	defer rows.Close()

	var items []tracker.WorkItem
	for rows.Next() {
		var item tracker.WorkItem
		if err := rows.Scan(&item.URLID, &item.URL); err != nil {
			return nil, fmt.Errorf("scan work item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate work list: %w", err)
	}
	return items, nil
}

// ApplyResult implements tracker.Store. The URL row is locked for the duration
// of the transaction so concurrent reports for the same URL cannot interleave.
func (s *Store) ApplyResult(ctx context.Context, urlID int64, apply func(tracker.TrackedURL) (tracker.Transition, error)) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	u, err := scanURL(tx.QueryRow(ctx,
		`SELECT `+selectURLColumns+` FROM url WHERE url_id = $1 FOR UPDATE`, urlID))
	if err != nil {
		return err
	}

	tr, err := apply(u)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE url SET status = $1, fail_count = $2, last_attempt = $3 WHERE url_id = $4`,
		tr.Status, tr.FailCount, tr.LastAttempt, urlID,
	); err != nil {
		return fmt.Errorf("update url: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO crawl_log (url_id, attempt_time, status, error_message) VALUES ($1, $2, $3, NULLIF($4, ''))`,
		urlID, tr.Attempt.AttemptTime, tr.Attempt.Status, tr.Attempt.ErrorMessage,
	); err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}

	if tr.Product != nil {
		if _, err := tx.Exec(ctx,
			`INSERT INTO product (url_id, product_name, model_name, options, image_url)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (url_id) DO NOTHING`,
			urlID, tr.Product.ProductName, tr.Product.ModelName, tr.Product.Options, tr.Product.ImageURL,
		); err != nil {
			return fmt.Errorf("insert product: %w", err)
		}
	}
	if tr.Price != nil {
		var productID int64
		if err := tx.QueryRow(ctx,
			`SELECT product_id FROM product WHERE url_id = $1`, urlID,
		).Scan(&productID); err != nil {
			return fmt.Errorf("resolve product: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO price_history (product_id, date_recorded, release_price, employee_price)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (product_id, date_recorded) DO NOTHING`,
			productID, tr.Price.Date, tr.Price.ReleasePrice, tr.Price.EmployeePrice,
		); err != nil {
			return fmt.Errorf("insert price point: %w", err)
		}
	}
	if tr.CompleteRequest {
		if _, err := tx.Exec(ctx,
			`UPDATE user_request SET status = 'Complete'
			 WHERE request_id = (
			   SELECT request_id FROM user_request
			   WHERE url_id = $1 AND status = 'Pending'
			   ORDER BY requested_at DESC, request_id DESC
			   LIMIT 1
			 )`,
			urlID,
		); err != nil {
			return fmt.Errorf("complete user request: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetProduct implements tracker.Store.
func (s *Store) GetProduct(ctx context.Context, urlID int64) (tracker.Product, error) {
	var p tracker.Product
	err := s.pool.QueryRow(ctx,
		`SELECT product_id, url_id, product_name, model_name, options, image_url
		 FROM product WHERE url_id = $1`, urlID,
	).Scan(&p.ID, &p.URLID, &p.Name, &p.Model, &p.Options, &p.ImageURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return tracker.Product{}, tracker.ErrNotFound
	}
	if err != nil {
		return tracker.Product{}, fmt.Errorf("query product: %w", err)
	}
	return p, nil
}

// ListPrices implements tracker.Store.
func (s *Store) ListPrices(ctx context.Context, productID int64) ([]tracker.PricePoint, error) {
	return s.queryPrices(ctx,
		`SELECT product_id, date_recorded, release_price, employee_price
		 FROM price_history WHERE product_id = $1
		 ORDER BY date_recorded`,
		productID)
}

// ListPricesRange implements tracker.Store.
func (s *Store) ListPricesRange(ctx context.Context, productID int64, start, end time.Time) ([]tracker.PricePoint, error) {
	return s.queryPrices(ctx,
		`SELECT product_id, date_recorded, release_price, employee_price
		 FROM price_history
		 WHERE product_id = $1 AND date_recorded >= $2 AND date_recorded <= $3
		 ORDER BY date_recorded`,
		productID, start, end)
}

func (s *Store) queryPrices(ctx context.Context, query string, args ...any) ([]tracker.PricePoint, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query prices: %w", err)
	}
	defer rows.Close()

	var points []tracker.PricePoint
	for rows.Next() {
		var p tracker.PricePoint
		if err := rows.Scan(&p.ProductID, &p.Date, &p.ReleasePrice, &p.EmployeePrice); err != nil {
			return nil, fmt.Errorf("scan price point: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate prices: %w", err)
	}
	return points, nil
}

func scanURL(row pgx.Row) (tracker.TrackedURL, error) {
	var u tracker.TrackedURL
	err := row.Scan(&u.ID, &u.URL, &u.Status, &u.FailCount, &u.LastAttempt, &u.AddedDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return tracker.TrackedURL{}, tracker.ErrNotFound
	}
	if err != nil {
		return tracker.TrackedURL{}, fmt.Errorf("scan url: %w", err)
	}
	return u, nil
}
