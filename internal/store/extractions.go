package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/supplierd/internal/dedup"
	"github.com/fyrsmithlabs/supplierd/internal/search"
)

// DefaultHistoryLimit is used when History is called with a non-positive limit.
const DefaultHistoryLimit = 10

// Extraction is one audited extraction run.
type Extraction struct {
	ID                 string          `json:"id"`
	CompanyName        string          `json:"company_name"`
	Suppliers          []dedup.Record  `json:"suppliers"`
	TotalSuppliers     int             `json:"total_suppliers"`
	ProcessingTime     float64         `json:"processing_time"`
	SearchResultsCount int             `json:"search_results_count"`
	SearchResults      []search.Result `json:"search_results"`
	CreatedAt          time.Time       `json:"timestamp"`
}

// ExtractionLog is the append-only audit trail of extraction runs.
type ExtractionLog struct {
	store *Store
	now   func() time.Time
}

// NewExtractionLog creates an audit log over s. A nil clock uses time.Now.
func NewExtractionLog(s *Store, now func() time.Time) *ExtractionLog {
	if now == nil {
		now = time.Now
	}
	return &ExtractionLog{store: s, now: now}
}

// Record appends an extraction and returns its generated ID.
// ID, TotalSuppliers, SearchResultsCount and a zero CreatedAt are filled in.
func (l *ExtractionLog) Record(ctx context.Context, e Extraction) (string, error) {
	e.ID = uuid.NewString()
	e.TotalSuppliers = len(e.Suppliers)
	e.SearchResultsCount = len(e.SearchResults)
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.now()
	}

	suppliers, err := marshalRecords(e.Suppliers)
	if err != nil {
		return "", err
	}
	if e.SearchResults == nil {
		e.SearchResults = []search.Result{}
	}
	results, err := json.Marshal(e.SearchResults)
	if err != nil {
		return "", fmt.Errorf("encode search results: %w", err)
	}

	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	_, err = l.store.db.ExecContext(ctx, `
		INSERT INTO supplier_extractions (
			id, company_name, suppliers, total_suppliers, processing_time,
			search_results_count, search_results, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID,
		e.CompanyName,
		suppliers,
		e.TotalSuppliers,
		e.ProcessingTime,
		e.SearchResultsCount,
		string(results),
		formatTime(e.CreatedAt),
	)
	if err != nil {
		return "", fmt.Errorf("insert extraction: %w", err)
	}
	return e.ID, nil
}

// History returns the newest extractions for companyName, newest first.
// The company name must match exactly as it was recorded.
func (l *ExtractionLog) History(ctx context.Context, companyName string, limit int) ([]Extraction, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	l.store.mu.RLock()
	defer l.store.mu.RUnlock()

	rows, err := l.store.db.QueryContext(ctx, `
		SELECT id, company_name, suppliers, total_suppliers, processing_time,
			search_results_count, search_results, created_at
		FROM supplier_extractions
		WHERE company_name = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, companyName, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	history := []Extraction{}
	for rows.Next() {
		var (
			e         Extraction
			suppliers string
			results   string
			createdAt string
		)
		if err := rows.Scan(
			&e.ID,
			&e.CompanyName,
			&suppliers,
			&e.TotalSuppliers,
			&e.ProcessingTime,
			&e.SearchResultsCount,
			&results,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan extraction: %w", err)
		}
		if err := json.Unmarshal([]byte(suppliers), &e.Suppliers); err != nil {
			return nil, fmt.Errorf("decode suppliers for %s: %w", e.ID, err)
		}
		if err := json.Unmarshal([]byte(results), &e.SearchResults); err != nil {
			return nil, fmt.Errorf("decode search results for %s: %w", e.ID, err)
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		history = append(history, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return history, nil
}

// Count returns the total number of audited extractions.
func (l *ExtractionLog) Count(ctx context.Context) (int, error) {
	l.store.mu.RLock()
	defer l.store.mu.RUnlock()

	var n int
	if err := l.store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM supplier_extractions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count extractions: %w", err)
	}
	return n, nil
}
