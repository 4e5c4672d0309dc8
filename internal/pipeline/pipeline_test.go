package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/supplierd/internal/cache"
	"github.com/fyrsmithlabs/supplierd/internal/dedup"
	"github.com/fyrsmithlabs/supplierd/internal/extraction"
	"github.com/fyrsmithlabs/supplierd/internal/search"
	"github.com/fyrsmithlabs/supplierd/internal/store"
)

var tescoResults = []search.Result{
	{Title: "Acme Foods supplies Tesco", Link: "https://a.example.com"},
	{Snippet: "Tesco products are supplied by Acme Foods Ltd.", Link: "https://b.example.com"},
	{Snippet: "Tesco partnered with Globex Logistics on delivery", Link: "https://c.example.com"},
}

// countingSearcher wraps a searcher and records calls.
type countingSearcher struct {
	next      search.Searcher
	calls     atomic.Int32
	lastMax   atomic.Int32
	err       error
	release   chan struct{}
	searching chan struct{}
}

func (c *countingSearcher) Search(ctx context.Context, company string, maxResults int) ([]search.Result, error) {
	c.calls.Add(1)
	c.lastMax.Store(int32(maxResults))
	if c.searching != nil {
		close(c.searching)
	}
	if c.release != nil {
		select {
		case <-c.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.err != nil {
		return nil, c.err
	}
	return c.next.Search(ctx, company, maxResults)
}

// memoryAudit is an AuditLog kept in a slice.
type memoryAudit struct {
	mu      sync.Mutex
	records []store.Extraction
	err     error
}

func (m *memoryAudit) Record(_ context.Context, e store.Extraction) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	e.ID = "id"
	m.records = append(m.records, e)
	return e.ID, nil
}

func (m *memoryAudit) History(_ context.Context, companyName string, limit int) ([]store.Extraction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Extraction
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		if m.records[i].CompanyName == companyName {
			out = append(out, m.records[i])
		}
	}
	return out, nil
}

func (m *memoryAudit) Count(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records), nil
}

func (m *memoryAudit) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// brokenCache fails every call.
type brokenCache struct{}

func (brokenCache) Get(context.Context, string) (*cache.Entry, bool, error) {
	return nil, false, errors.New("cache offline")
}
func (brokenCache) Put(context.Context, cache.Entry) error { return errors.New("cache offline") }

// fixedExtractor returns the same mentions for every call.
type fixedExtractor struct {
	mentions []dedup.Mention
}

func (f fixedExtractor) Extract(context.Context, string, []search.Result) ([]dedup.Mention, error) {
	return f.mentions, nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	svc      *Service
	searcher *countingSearcher
	audit    *memoryAudit
	cache    *cache.Memory
	clock    *testClock
}

func newFixture(t *testing.T, mutate func(*Options)) *fixture {
	t.Helper()

	clock := &testClock{now: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}
	searcher := &countingSearcher{next: search.NewStaticSearcher(map[string][]search.Result{"Tesco": tescoResults})}
	extractor, err := extraction.NewHeuristicExtractor(extraction.DefaultConfig())
	require.NoError(t, err)
	audit := &memoryAudit{}
	mem := cache.NewMemory(cache.DefaultTTL, cache.WithClock(clock.Now))

	opts := Options{
		Searcher:  searcher,
		Extractor: extractor,
		Engine:    dedup.NewEngine(nil, nil, zap.NewNop()),
		Cache:     mem,
		Audit:     audit,
		Logger:    zap.NewNop(),
		Clock:     clock.Now,
	}
	if mutate != nil {
		mutate(&opts)
	}

	svc, err := NewService(opts)
	require.NoError(t, err)

	return &fixture{svc: svc, searcher: searcher, audit: audit, cache: mem, clock: clock}
}

func supplierNames(records []dedup.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Name
	}
	return out
}

func TestService_ExtractAndCache(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res, err := f.svc.Extract(ctx, Request{CompanyName: "  Tesco "})
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, "Tesco", res.CompanyName)
	assert.Equal(t, []string{"Acme Foods Ltd", "Globex Logistics"}, supplierNames(res.Suppliers))
	assert.Equal(t, 2, res.TotalSuppliers)
	assert.InDelta(t, 0.75, res.Suppliers[0].Confidence, 1e-9)

	require.Equal(t, 1, f.audit.Len())
	assert.Equal(t, 3, len(f.audit.records[0].SearchResults))
	assert.Equal(t, 1, f.cache.Len())

	again, err := f.svc.Extract(ctx, Request{CompanyName: "TESCO"})
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Equal(t, "TESCO", again.CompanyName)
	assert.Equal(t, res.Suppliers, again.Suppliers)
	assert.Equal(t, int32(1), f.searcher.calls.Load())
	assert.Equal(t, 1, f.audit.Len(), "cached results are not audited")
}

func TestService_StaleCacheRecomputes(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Extract(ctx, Request{CompanyName: "Tesco"})
	require.NoError(t, err)

	f.clock.Advance(25 * time.Hour)

	res, err := f.svc.Extract(ctx, Request{CompanyName: "Tesco"})
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, int32(2), f.searcher.calls.Load())
	assert.Equal(t, 2, f.audit.Len())
}

func TestService_EmptyCompany(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.Extract(context.Background(), Request{CompanyName: "   "})
	assert.ErrorIs(t, err, ErrEmptyCompany)
	assert.Equal(t, int32(0), f.searcher.calls.Load())
}

func TestService_MaxResultsBounds(t *testing.T) {
	tests := []struct {
		requested int
		want      int32
	}{
		{0, DefaultMaxResults},
		{-3, DefaultMaxResults},
		{5, 5},
		{50, MaxResultsLimit},
	}

	for _, tt := range tests {
		f := newFixture(t, nil)
		_, err := f.svc.Extract(context.Background(), Request{CompanyName: "Tesco", MaxResults: tt.requested})
		require.NoError(t, err)
		assert.Equal(t, tt.want, f.searcher.lastMax.Load(), "requested %d", tt.requested)
	}
}

func TestService_NoSearchResults(t *testing.T) {
	f := newFixture(t, nil)

	res, err := f.svc.Extract(context.Background(), Request{CompanyName: "Unknown Co"})
	require.NoError(t, err)
	assert.NotNil(t, res.Suppliers)
	assert.Empty(t, res.Suppliers)
	assert.Equal(t, 0, f.audit.Len())
	assert.Equal(t, 0, f.cache.Len())
}

func TestService_SearchFailureIsEmptyResult(t *testing.T) {
	f := newFixture(t, nil)
	f.searcher.err = errors.New("quota exceeded")

	res, err := f.svc.Extract(context.Background(), Request{CompanyName: "Tesco"})
	require.NoError(t, err)
	assert.Empty(t, res.Suppliers)
	assert.Equal(t, 0, f.cache.Len())
}

func TestService_CacheFailuresAreNotFatal(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Cache = brokenCache{} })

	res, err := f.svc.Extract(context.Background(), Request{CompanyName: "Tesco"})
	require.NoError(t, err)
	assert.Len(t, res.Suppliers, 2)

	res, err = f.svc.Extract(context.Background(), Request{CompanyName: "Tesco"})
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, int32(2), f.searcher.calls.Load())
}

func TestService_AuditFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, nil)
	f.audit.err = errors.New("disk full")

	res, err := f.svc.Extract(context.Background(), Request{CompanyName: "Tesco"})
	require.NoError(t, err)
	assert.Len(t, res.Suppliers, 2)
	assert.Equal(t, 1, f.cache.Len())
}

func TestService_IgnoreListApplied(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.Engine = dedup.NewEngine(ignoreNames{"Globex Logistics": true}, nil, nil)
	})

	res, err := f.svc.Extract(context.Background(), Request{CompanyName: "Tesco"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme Foods Ltd"}, supplierNames(res.Suppliers))
}

type ignoreNames map[string]bool

func (i ignoreNames) IsIgnored(name string) bool { return i[name] }

func TestService_DropsInvalidMentions(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.Extractor = fixedExtractor{mentions: []dedup.Mention{
			{Name: "", Confidence: 0.9},
			{Name: "Acme Foods", Confidence: 0.9},
			{Name: "Globex", Confidence: 3},
		}}
	})

	res, err := f.svc.Extract(context.Background(), Request{CompanyName: "Tesco"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme Foods"}, supplierNames(res.Suppliers))
}

func TestService_ConcurrentRequestsShareOneRun(t *testing.T) {
	f := newFixture(t, nil)
	f.searcher.release = make(chan struct{})
	f.searcher.searching = make(chan struct{})

	const callers = 5
	var wg sync.WaitGroup
	results := make([]*Result, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.Extract(context.Background(), Request{CompanyName: "Tesco"})
		}(i)
	}

	<-f.searcher.searching
	time.Sleep(20 * time.Millisecond)
	close(f.searcher.release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Len(t, results[i].Suppliers, 2)
	}
	assert.Equal(t, int32(1), f.searcher.calls.Load())
	assert.Equal(t, 1, f.audit.Len())
}

func TestService_CancelledWhileWaiting(t *testing.T) {
	f := newFixture(t, nil)
	f.searcher.release = make(chan struct{})
	f.searcher.searching = make(chan struct{})
	defer close(f.searcher.release)

	go func() {
		_, _ = f.svc.Extract(context.Background(), Request{CompanyName: "Tesco"})
	}()
	<-f.searcher.searching

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.svc.Extract(ctx, Request{CompanyName: "Tesco"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestService_SharedRunSurvivesStarterCancel(t *testing.T) {
	f := newFixture(t, nil)
	f.searcher.release = make(chan struct{})
	f.searcher.searching = make(chan struct{})

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := f.svc.Extract(ctxA, Request{CompanyName: "Tesco"})
		errA <- err
	}()
	<-f.searcher.searching

	type outcome struct {
		res *Result
		err error
	}
	doneB := make(chan outcome, 1)
	go func() {
		res, err := f.svc.Extract(context.Background(), Request{CompanyName: "Tesco"})
		doneB <- outcome{res, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)

	close(f.searcher.release)
	b := <-doneB
	require.NoError(t, b.err)
	assert.Len(t, b.res.Suppliers, 2)
	assert.False(t, b.res.Cached)
	assert.Equal(t, int32(1), f.searcher.calls.Load())

	// The shared run finished and was cached despite the cancel.
	res, err := f.svc.Extract(context.Background(), Request{CompanyName: "Tesco"})
	require.NoError(t, err)
	assert.True(t, res.Cached)
}

func TestService_HistoryAndStatistics(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Extract(ctx, Request{CompanyName: "Tesco"})
	require.NoError(t, err)

	history, err := f.svc.History(ctx, "Tesco", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Tesco", history[0].CompanyName)

	stats, err := f.svc.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalExtractions)
	assert.Equal(t, 1, stats.TotalCachedCompanies)
	assert.Equal(t, f.clock.Now(), stats.Timestamp)
}

func TestService_WithoutAuditLog(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Audit = nil })
	ctx := context.Background()

	_, err := f.svc.Extract(ctx, Request{CompanyName: "Tesco"})
	require.NoError(t, err)

	_, err = f.svc.History(ctx, "Tesco", 10)
	assert.ErrorIs(t, err, ErrNoAuditLog)
	_, err = f.svc.Statistics(ctx)
	assert.ErrorIs(t, err, ErrNoAuditLog)
}

func TestService_ClearCache(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	for _, company := range []string{"Tesco", "Asda"} {
		require.NoError(t, f.cache.Put(ctx, cache.Entry{CompanyKey: CompanyKey(company), CompanyName: company}))
	}

	n, err := f.svc.ClearCache(ctx, " TESCO ")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.svc.ClearAllCaches(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	broken := newFixture(t, func(o *Options) { o.Cache = brokenCache{} })
	_, err = broken.svc.ClearAllCaches(ctx)
	assert.ErrorIs(t, err, cache.ErrClearUnsupported)
}

func TestService_Deduplicate(t *testing.T) {
	f := newFixture(t, nil)

	records, err := f.svc.Deduplicate([]dedup.Mention{
		{Name: "ABC Corp", Confidence: 0.8},
		{Name: "ABC Corp", Confidence: 0.9},
		{Name: "XYZ Ltd", Confidence: 0.7},
	})
	require.NoError(t, err)
	assert.Len(t, records, 2)

	_, err = f.svc.Deduplicate([]dedup.Mention{{Name: ""}})
	assert.ErrorIs(t, err, dedup.ErrInvalidMention)
}

func TestNewService_Validation(t *testing.T) {
	_, err := NewService(Options{})
	assert.Error(t, err)

	_, err = NewService(Options{Searcher: search.Disabled{}})
	assert.Error(t, err)

	_, err = NewService(Options{Searcher: search.Disabled{}, Extractor: &extraction.NoOpExtractor{}})
	assert.Error(t, err)

	svc, err := NewService(Options{
		Searcher:  search.Disabled{},
		Extractor: &extraction.NoOpExtractor{},
		Engine:    dedup.NewEngine(nil, nil, nil),
	})
	require.NoError(t, err)
	assert.NotNil(t, svc)
}
