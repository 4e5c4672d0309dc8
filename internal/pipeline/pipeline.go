// Package pipeline orchestrates a supplier extraction: cache lookup, web
// search, mention extraction, deduplication, audit and cache write.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/fyrsmithlabs/supplierd/internal/cache"
	"github.com/fyrsmithlabs/supplierd/internal/dedup"
	"github.com/fyrsmithlabs/supplierd/internal/extraction"
	"github.com/fyrsmithlabs/supplierd/internal/logging"
	"github.com/fyrsmithlabs/supplierd/internal/search"
	"github.com/fyrsmithlabs/supplierd/internal/store"
)

const instrumentationName = "github.com/fyrsmithlabs/supplierd/internal/pipeline"

// Result-size bounds for a single extraction.
const (
	DefaultMaxResults = 10
	MaxResultsLimit   = 20
)

var (
	// ErrEmptyCompany is returned when the company name is blank.
	ErrEmptyCompany = errors.New("company name is required")

	// ErrNoAuditLog is returned by history and statistics queries without an audit log.
	ErrNoAuditLog = errors.New("audit log not configured")
)

// AuditLog records every uncached extraction. *store.ExtractionLog satisfies it.
type AuditLog interface {
	Record(ctx context.Context, e store.Extraction) (string, error)
	History(ctx context.Context, companyName string, limit int) ([]store.Extraction, error)
	Count(ctx context.Context) (int, error)
}

// Request asks for the suppliers of one company.
type Request struct {
	CompanyName string `json:"company_name"`
	MaxResults  int    `json:"max_results"`
}

// Result is the deduplicated supplier list for a company.
type Result struct {
	CompanyName    string         `json:"company_name"`
	Suppliers      []dedup.Record `json:"suppliers"`
	TotalSuppliers int            `json:"total_suppliers"`
	ProcessingTime float64        `json:"processing_time"`
	Cached         bool           `json:"cached"`
	Timestamp      time.Time      `json:"timestamp"`
}

// Statistics summarizes extraction activity.
type Statistics struct {
	TotalExtractions     int       `json:"total_extractions"`
	TotalCachedCompanies int       `json:"total_cached_companies"`
	Timestamp            time.Time `json:"timestamp"`
}

// Options wires a Service.
type Options struct {
	Searcher  search.Searcher
	Extractor extraction.Extractor
	Engine    *dedup.Engine

	// Cache defaults to an in-memory cache with the default TTL.
	Cache cache.Cache

	// Audit is optional; without it extractions are not recorded.
	Audit AuditLog

	Logger *zap.Logger
	Clock  func() time.Time

	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
}

// Service runs extractions. Concurrent requests for the same company share
// one in-flight computation.
type Service struct {
	searcher  search.Searcher
	extractor extraction.Extractor
	engine    *dedup.Engine
	cache     cache.Cache
	audit     AuditLog
	logger    *zap.Logger
	now       func() time.Time
	tracer    trace.Tracer
	inflight  singleflight.Group
}

// NewService validates opts and creates a Service.
func NewService(opts Options) (*Service, error) {
	if opts.Searcher == nil {
		return nil, fmt.Errorf("searcher is required")
	}
	if opts.Extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	if opts.Engine == nil {
		return nil, fmt.Errorf("deduplication engine is required")
	}
	if opts.Cache == nil {
		opts.Cache = cache.NewMemory(cache.DefaultTTL)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}

	return &Service{
		searcher:  opts.Searcher,
		extractor: opts.Extractor,
		engine:    opts.Engine,
		cache:     opts.Cache,
		audit:     opts.Audit,
		logger:    opts.Logger,
		now:       opts.Clock,
		tracer:    opts.TracerProvider.Tracer(instrumentationName),
	}, nil
}

// CompanyKey is the cache key for a company name.
func CompanyKey(companyName string) string {
	return strings.ToLower(strings.TrimSpace(companyName))
}

// Extract returns the suppliers for req.CompanyName, from cache when fresh.
//
// A cache read failure is logged and treated as a miss. A search failure is
// logged and treated as no results; an empty search yields an empty result
// that is neither audited nor cached. Audit and cache write failures are
// logged and do not fail the request.
//
// Concurrent calls for the same company share one computation, which runs
// to completion even if the caller that started it cancels.
func (s *Service) Extract(ctx context.Context, req Request) (*Result, error) {
	name := strings.TrimSpace(req.CompanyName)
	if name == "" {
		return nil, ErrEmptyCompany
	}

	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	if maxResults > MaxResultsLimit {
		maxResults = MaxResultsLimit
	}

	key := CompanyKey(name)
	if res, ok := s.lookup(ctx, key, name); ok {
		return res, nil
	}

	// The shared run outlives any one caller: a waiter that gives up must not
	// cancel the work the others are waiting on. Values such as the request
	// ID and trace parent are kept.
	runCtx := context.WithoutCancel(ctx)
	ch := s.inflight.DoChan(key, func() (any, error) {
		return s.run(runCtx, name, key, maxResults)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		res := *r.Val.(*Result)
		res.CompanyName = name
		if r.Shared {
			s.logger.Debug("joined in-flight extraction", zap.String("company_key", key))
		}
		return &res, nil
	}
}

func (s *Service) lookup(ctx context.Context, key, name string) (*Result, bool) {
	entry, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log(ctx).Warn("cache lookup failed, treating as miss",
			zap.String("company_key", key),
			zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}

	s.log(ctx).Debug("cache hit", zap.String("company_key", key))
	suppliers := entry.Suppliers
	if suppliers == nil {
		suppliers = []dedup.Record{}
	}
	return &Result{
		CompanyName:    name,
		Suppliers:      suppliers,
		TotalSuppliers: entry.TotalSuppliers,
		ProcessingTime: entry.ProcessingTime,
		Cached:         true,
		Timestamp:      s.now(),
	}, true
}

func (s *Service) run(ctx context.Context, name, key string, maxResults int) (res *Result, err error) {
	ctx, span := s.tracer.Start(ctx, "pipeline.extract",
		trace.WithAttributes(attribute.String("supplierd.company", name)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	logger := s.log(ctx)
	start := s.now()

	results, err := s.search(ctx, name, maxResults)
	if err != nil {
		logger.Warn("search failed, continuing with no results",
			zap.String("company", name),
			zap.Error(err))
		results = nil
	}
	span.SetAttributes(attribute.Int("supplierd.search_results", len(results)))

	if len(results) == 0 {
		return &Result{
			CompanyName:    name,
			Suppliers:      []dedup.Record{},
			ProcessingTime: s.now().Sub(start).Seconds(),
			Timestamp:      s.now(),
		}, nil
	}

	mentions, err := s.extract(ctx, name, results)
	if err != nil {
		return nil, fmt.Errorf("extract mentions: %w", err)
	}

	_, dedupSpan := s.tracer.Start(ctx, "pipeline.deduplicate")
	records, err := s.engine.Process(s.validMentions(logger, name, mentions))
	dedupSpan.SetAttributes(attribute.Int("supplierd.suppliers", len(records)))
	dedupSpan.End()
	if err != nil {
		return nil, fmt.Errorf("deduplicate: %w", err)
	}

	now := s.now()
	elapsed := now.Sub(start).Seconds()

	logger.Info("extracted suppliers",
		zap.String("company", name),
		zap.Int("search_results", len(results)),
		zap.Int("mentions", len(mentions)),
		zap.Int("suppliers", len(records)),
		zap.Float64("processing_time", elapsed))

	if s.audit != nil {
		if _, err := s.audit.Record(ctx, store.Extraction{
			CompanyName:    name,
			Suppliers:      records,
			ProcessingTime: elapsed,
			SearchResults:  results,
			CreatedAt:      now,
		}); err != nil {
			logger.Error("failed to record extraction", zap.String("company", name), zap.Error(err))
		}
	}

	if err := s.cache.Put(ctx, cache.Entry{
		CompanyKey:     key,
		CompanyName:    name,
		Suppliers:      records,
		TotalSuppliers: len(records),
		ProcessingTime: elapsed,
	}); err != nil {
		logger.Error("failed to cache extraction", zap.String("company_key", key), zap.Error(err))
	}

	return &Result{
		CompanyName:    name,
		Suppliers:      records,
		TotalSuppliers: len(records),
		ProcessingTime: elapsed,
		Timestamp:      now,
	}, nil
}

func (s *Service) search(ctx context.Context, name string, maxResults int) ([]search.Result, error) {
	ctx, span := s.tracer.Start(ctx, "pipeline.search",
		trace.WithAttributes(attribute.Int("supplierd.max_results", maxResults)))
	defer span.End()

	results, err := s.searcher.Search(ctx, name, maxResults)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return results, err
}

func (s *Service) extract(ctx context.Context, name string, results []search.Result) ([]dedup.Mention, error) {
	ctx, span := s.tracer.Start(ctx, "pipeline.extract_mentions")
	defer span.End()

	mentions, err := s.extractor.Extract(ctx, name, results)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("supplierd.mentions", len(mentions)))
	return mentions, nil
}

// log returns the service logger carrying request and trace IDs from ctx.
func (s *Service) log(ctx context.Context) *zap.Logger {
	if fields := logging.ContextFields(ctx); len(fields) > 0 {
		return s.logger.With(fields...)
	}
	return s.logger
}

// validMentions drops extractor output that would fail the mention contract.
func (s *Service) validMentions(logger *zap.Logger, company string, mentions []dedup.Mention) []dedup.Mention {
	valid := make([]dedup.Mention, 0, len(mentions))
	for _, m := range mentions {
		if err := m.Validate(); err != nil {
			logger.Warn("dropping invalid mention", zap.String("company", company), zap.Error(err))
			continue
		}
		valid = append(valid, m)
	}
	return valid
}

// Deduplicate runs the deduplication engine on caller-supplied mentions.
func (s *Service) Deduplicate(mentions []dedup.Mention) ([]dedup.Record, error) {
	return s.engine.Process(mentions)
}

// History returns recorded extractions for companyName, newest first.
func (s *Service) History(ctx context.Context, companyName string, limit int) ([]store.Extraction, error) {
	if s.audit == nil {
		return nil, ErrNoAuditLog
	}
	return s.audit.History(ctx, strings.TrimSpace(companyName), limit)
}

// Statistics counts audited extractions and cached companies.
// The cached count is zero when the cache cannot count its entries.
func (s *Service) Statistics(ctx context.Context) (*Statistics, error) {
	if s.audit == nil {
		return nil, ErrNoAuditLog
	}

	total, err := s.audit.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count extractions: %w", err)
	}

	var cached int
	if counter, ok := s.cache.(cache.Counter); ok {
		if cached, err = counter.Count(ctx); err != nil && !errors.Is(err, cache.ErrCountUnsupported) {
			return nil, fmt.Errorf("count cached companies: %w", err)
		}
	}

	return &Statistics{
		TotalExtractions:     total,
		TotalCachedCompanies: cached,
		Timestamp:            s.now(),
	}, nil
}

// ClearCache removes the cached result for one company.
func (s *Service) ClearCache(ctx context.Context, companyName string) (int, error) {
	clearer, ok := s.cache.(cache.Clearer)
	if !ok {
		return 0, cache.ErrClearUnsupported
	}
	return clearer.Delete(ctx, CompanyKey(companyName))
}

// ClearAllCaches removes every cached result.
func (s *Service) ClearAllCaches(ctx context.Context) (int, error) {
	clearer, ok := s.cache.(cache.Clearer)
	if !ok {
		return 0, cache.ErrClearUnsupported
	}
	return clearer.Clear(ctx)
}
