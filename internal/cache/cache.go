// Package cache stores deduplicated supplier lists per company so repeated
// extractions inside the freshness window skip search and extraction.
//
// Two backends satisfy Cache: Memory, for tests and single-process use, and the
// SQLite-backed store in internal/store for production. Both treat an entry as
// fresh while its age is strictly below the TTL, overwrite on Put, and leave
// stale entries in place on lookup.
//
// Example usage:
//
//	c := cache.NewMemory(cache.DefaultTTL)
//	_ = c.Put(ctx, cache.Entry{CompanyKey: "tesco", Suppliers: records})
//	entry, ok, err := c.Get(ctx, "tesco")
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/fyrsmithlabs/supplierd/internal/dedup"
)

// DefaultTTL is the freshness window for cached extractions.
const DefaultTTL = 24 * time.Hour

// ErrClearUnsupported is returned when the wrapped backend cannot delete entries.
var ErrClearUnsupported = errors.New("cache backend does not support clearing")

// ErrCountUnsupported is returned when the wrapped backend cannot count entries.
var ErrCountUnsupported = errors.New("cache backend does not support counting")

// Entry is one cached extraction result.
type Entry struct {
	// CompanyKey is the lower-cased company name the entry is stored under.
	CompanyKey string `json:"company_key"`

	// CompanyName is the company name as the caller first spelled it.
	CompanyName string `json:"company_name"`

	Suppliers      []dedup.Record `json:"suppliers"`
	TotalSuppliers int            `json:"total_suppliers"`

	// ProcessingTime is how long the uncached extraction took, in seconds.
	ProcessingTime float64 `json:"processing_time"`

	// CreatedAt is when the entry was written. Put always stamps it with the
	// backend clock; a caller-supplied value is ignored.
	CreatedAt time.Time `json:"created_at"`
}

// Cache is the get/put capability the extraction pipeline depends on.
//
// Get reports ok=false for both an absent and a stale entry. A non-nil error
// means the backend could not be read; callers treat it as a miss.
type Cache interface {
	Get(ctx context.Context, companyKey string) (*Entry, bool, error)
	Put(ctx context.Context, entry Entry) error
}

// Clearer is implemented by backends that support operator cache clearing.
// Both methods return the number of entries removed.
type Clearer interface {
	Delete(ctx context.Context, companyKey string) (int, error)
	Clear(ctx context.Context) (int, error)
}

// Counter is implemented by backends that can report how many companies they hold.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// IsFresh reports whether an entry created at createdAt is still a hit at now.
func IsFresh(createdAt, now time.Time, ttl time.Duration) bool {
	return now.Sub(createdAt) < ttl
}

// cloneRecords copies the slice so cached data is not aliased by callers.
func cloneRecords(in []dedup.Record) []dedup.Record {
	if in == nil {
		return nil
	}
	out := make([]dedup.Record, len(in))
	copy(out, in)
	return out
}
