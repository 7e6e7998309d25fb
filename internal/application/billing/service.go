package billing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/garage/billing/internal/domain/billing"
	"github.com/garage/billing/internal/domain/shared"
	"github.com/garage/billing/internal/infrastructure/logger"
	"github.com/garage/billing/internal/infrastructure/telemetry"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ViewCache stores derived views keyed by snapshot scope. Implementations
// must treat a miss as (false, nil).
type ViewCache interface {
	Get(ctx context.Context, scope, view, key string, dest any) (bool, error)
	Set(ctx context.Context, scope, view, key string, value any) error
	Invalidate(ctx context.Context, scope string) error
}

// BillingService is the single entry point into the billing engine. It owns
// the current snapshot and serializes every mutation through the store.
type BillingService struct {
	store    billing.Store
	clock    shared.Clock
	events   shared.EventPublisher
	cache    ViewCache
	archive  DocumentArchive
	metrics  *telemetry.BillingMetrics
	format   billing.Formatter
	log      *zap.Logger
	validate *validator.Validate
	instance string

	writeMu  sync.Mutex
	mu       sync.RWMutex
	snap     *billing.Snapshot
	stale    bool
	staleGen uint64 // bumped by every MarkStale
}

// Option configures a BillingService
type Option func(*BillingService)

// WithClock sets the clock used for "now"
func WithClock(clock shared.Clock) Option {
	return func(s *BillingService) {
		s.clock = clock
	}
}

// WithEventPublisher sets where domain events go after a successful write
func WithEventPublisher(p shared.EventPublisher) Option {
	return func(s *BillingService) {
		s.events = p
	}
}

// WithViewCache enables caching of derived views
func WithViewCache(c ViewCache) Option {
	return func(s *BillingService) {
		s.cache = c
	}
}

// WithMetrics sets the billing metrics recorder
func WithMetrics(m *telemetry.BillingMetrics) Option {
	return func(s *BillingService) {
		s.metrics = m
	}
}

// WithFormatter sets the currency formatter used for rendered output
func WithFormatter(f billing.Formatter) Option {
	return func(s *BillingService) {
		s.format = f
	}
}

// WithLogger sets the service logger
func WithLogger(l *zap.Logger) Option {
	return func(s *BillingService) {
		s.log = l
	}
}

// NewBillingService creates a new BillingService over store
func NewBillingService(store billing.Store, opts ...Option) *BillingService {
	s := &BillingService{
		store:    store,
		clock:    shared.SystemClock{},
		format:   billing.PlainFormatter,
		log:      zap.NewNop(),
		validate: newValidator(),
		instance: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("billing")
	return s
}

// ============================================
// Snapshot management
// ============================================

// Snapshot returns the current snapshot, fetching it when none is loaded or
// the service was marked stale
func (s *BillingService) Snapshot(ctx context.Context) (*billing.Snapshot, error) {
	if snap := s.fresh(); snap != nil {
		return snap, nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if snap := s.fresh(); snap != nil {
		return snap, nil
	}
	return s.loadLocked(ctx)
}

// Refresh discards the current snapshot and refetches everything
func (s *BillingService) Refresh(ctx context.Context) (*billing.Snapshot, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "billing", "refresh")
	defer span.End()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	snap, err := s.loadLocked(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return snap, nil
}

// MarkStale makes the next read refetch the snapshot
func (s *BillingService) MarkStale() {
	s.mu.Lock()
	s.stale = true
	s.staleGen++
	s.mu.Unlock()
}

func (s *BillingService) fresh() *billing.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stale {
		return nil
	}
	return s.snap
}

// loadLocked fetches and normalizes a full snapshot. Callers hold writeMu.
func (s *BillingService) loadLocked(ctx context.Context) (*billing.Snapshot, error) {
	s.mu.RLock()
	gen := s.staleGen
	s.mu.RUnlock()

	start := time.Now()
	raw, err := s.store.Fetch(ctx)
	s.metrics.RecordFetch(ctx, time.Since(start))
	if err != nil {
		s.metrics.RecordStoreError(ctx, "fetch")
		logger.WithLogger(ctx, s.log).Error("Failed to fetch billing snapshot", zap.Error(err))
		return nil, asTransportError("fetch", err)
	}

	var version uint64 = 1
	s.mu.RLock()
	previous := s.snap
	s.mu.RUnlock()
	if previous != nil {
		version = previous.Version() + 1
	}

	snap := billing.Normalize(raw).WithVersion(version)
	s.mu.Lock()
	s.snap = snap
	// a MarkStale that arrived during the fetch still applies
	if s.staleGen == gen {
		s.stale = false
	}
	s.mu.Unlock()
	s.dropScope(ctx, previous)

	logger.WithLogger(ctx, s.log).Debug("Billing snapshot loaded",
		zap.Uint64("version", snap.Version()),
		zap.Int("invoices", snap.InvoiceCount()),
		zap.Int("payments", snap.PaymentCount()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return snap, nil
}

// swap installs a patched snapshot and drops the views cached for previous.
// The stale mark is left alone; only a refetch clears it.
func (s *BillingService) swap(ctx context.Context, previous, next *billing.Snapshot) {
	s.mu.Lock()
	s.snap = next
	s.mu.Unlock()
	s.dropScope(ctx, previous)
}

func (s *BillingService) dropScope(ctx context.Context, previous *billing.Snapshot) {
	if previous == nil || s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, s.scope(previous)); err != nil {
		logger.WithLogger(ctx, s.log).Warn("Failed to invalidate view cache",
			zap.Uint64("version", previous.Version()),
			zap.Error(err),
		)
	}
}

// scope is the cache namespace of one snapshot of this service instance
func (s *BillingService) scope(snap *billing.Snapshot) string {
	return fmt.Sprintf("%s:v%d", s.instance, snap.Version())
}

// now returns the clock's time
func (s *BillingService) now() time.Time {
	return s.clock.Now()
}

// asTransportError keeps domain errors from the store and wraps anything
// else as a TransportError
func asTransportError(op string, err error) error {
	var de *shared.DomainError
	if errors.As(err, &de) {
		return err
	}
	return shared.NewTransportError(op, err)
}
