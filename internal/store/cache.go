package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/supplierd/internal/cache"
	"github.com/fyrsmithlabs/supplierd/internal/dedup"
)

// CacheStore is the SQLite-backed extraction cache.
type CacheStore struct {
	store *Store
	ttl   time.Duration
	now   func() time.Time
}

// NewCacheStore creates a cache over s. A non-positive ttl selects cache.DefaultTTL;
// a nil clock uses time.Now.
func NewCacheStore(s *Store, ttl time.Duration, now func() time.Time) *CacheStore {
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &CacheStore{store: s, ttl: ttl, now: now}
}

// Get returns the fresh entry for companyKey. Stale rows stay in the table.
func (c *CacheStore) Get(ctx context.Context, companyKey string) (*cache.Entry, bool, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	var (
		entry     cache.Entry
		suppliers string
		createdAt string
	)
	err := c.store.db.QueryRowContext(ctx, `
		SELECT company_key, company_name, suppliers, total_suppliers, processing_time, created_at
		FROM supplier_cache WHERE company_key = ?
	`, companyKey).Scan(
		&entry.CompanyKey,
		&entry.CompanyName,
		&suppliers,
		&entry.TotalSuppliers,
		&entry.ProcessingTime,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query cache: %w", err)
	}

	entry.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, false, err
	}
	if !cache.IsFresh(entry.CreatedAt, c.now(), c.ttl) {
		return nil, false, nil
	}

	if err := json.Unmarshal([]byte(suppliers), &entry.Suppliers); err != nil {
		return nil, false, fmt.Errorf("decode cached suppliers: %w", err)
	}

	return &entry, true, nil
}

// Put writes entry stamped with the store clock, replacing any previous row
// for the same key.
func (c *CacheStore) Put(ctx context.Context, entry cache.Entry) error {
	entry.CreatedAt = c.now()
	suppliers, err := marshalRecords(entry.Suppliers)
	if err != nil {
		return err
	}

	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	_, err = c.store.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO supplier_cache (
			company_key, company_name, suppliers, total_suppliers, processing_time, created_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`,
		entry.CompanyKey,
		entry.CompanyName,
		suppliers,
		entry.TotalSuppliers,
		entry.ProcessingTime,
		formatTime(entry.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	return nil
}

// Delete removes the row for companyKey.
func (c *CacheStore) Delete(ctx context.Context, companyKey string) (int, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	res, err := c.store.db.ExecContext(ctx, `DELETE FROM supplier_cache WHERE company_key = ?`, companyKey)
	if err != nil {
		return 0, fmt.Errorf("delete cache entry: %w", err)
	}
	return rowsAffected(res)
}

// Clear removes every cached row.
func (c *CacheStore) Clear(ctx context.Context) (int, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	res, err := c.store.db.ExecContext(ctx, `DELETE FROM supplier_cache`)
	if err != nil {
		return 0, fmt.Errorf("clear cache: %w", err)
	}
	return rowsAffected(res)
}

// Count returns the number of cached companies, fresh or stale.
func (c *CacheStore) Count(ctx context.Context) (int, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	var n int
	if err := c.store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM supplier_cache`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count cache: %w", err)
	}
	return n, nil
}

func rowsAffected(res sql.Result) (int, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// marshalRecords encodes records as a JSON array; nil becomes "[]".
func marshalRecords(records []dedup.Record) (string, error) {
	if records == nil {
		records = []dedup.Record{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("encode suppliers: %w", err)
	}
	return string(data), nil
}

var (
	_ cache.Cache   = (*CacheStore)(nil)
	_ cache.Clearer = (*CacheStore)(nil)
	_ cache.Counter = (*CacheStore)(nil)
)
