package deltakit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/c0deZ3R0/go-delta-kit/compress"
	syncErrors "github.com/c0deZ3R0/go-delta-kit/errors"
	"github.com/c0deZ3R0/go-delta-kit/logging"
)

// Service is the delta synchronization core. It computes field-level
// deltas against snapshots, assigns priorities, builds compressed batches,
// and applies incoming batches idempotently.
//
// All methods are safe for concurrent use.
type Service struct {
	mu         sync.RWMutex
	config     Config
	registry   *TableRegistry
	snapshots  *SnapshotRepository
	compressor compress.Compressor
	logger     *logging.Logger
	metrics    MetricsCollector
	closed     bool
}

// ServiceOption configures a Service during construction.
type ServiceOption func(*Service)

// WithConfig sets the initial configuration.
func WithConfig(config Config) ServiceOption {
	return func(s *Service) { s.config = config }
}

// WithRegistry replaces the default table registry.
func WithRegistry(registry *TableRegistry) ServiceOption {
	return func(s *Service) { s.registry = registry }
}

// WithCompressor replaces the default snappy compressor.
func WithCompressor(c compress.Compressor) ServiceOption {
	return func(s *Service) { s.compressor = c }
}

// WithLogger sets the logger used by the service.
func WithLogger(logger *logging.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m MetricsCollector) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a Service over the given snapshot store.
// Snapshots persisted by earlier runs are not visible until LoadSnapshots
// is called.
func NewService(store Storage, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}

	s := &Service{
		config:     DefaultConfig(),
		registry:   DefaultTableRegistry(),
		compressor: compress.NewSnappy(),
		logger:     logging.WithComponent(logging.Component("delta-service")),
		metrics:    NoOpMetricsCollector{},
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.config.Validate(); err != nil {
		return nil, syncErrors.NewValidationError(syncErrors.OpSync, err)
	}

	s.snapshots = NewSnapshotRepository(store)
	return s, nil
}

// LoadSnapshots hydrates the snapshot cache from the backing store.
func (s *Service) LoadSnapshots(ctx context.Context) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrServiceClosed
	}
	s.mu.RUnlock()

	return s.snapshots.Load(ctx)
}

// Snapshots exposes the snapshot repository for inspection and tests.
func (s *Service) Snapshots() *SnapshotRepository {
	return s.snapshots
}

// Registry returns the table registry the service classifies with.
func (s *Service) Registry() *TableRegistry {
	return s.registry
}

// Config returns the current configuration.
func (s *Service) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// UpdateConfig applies a partial configuration update at runtime. The
// patch is validated against the merged result before taking effect.
func (s *Service) UpdateConfig(patch ConfigPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrServiceClosed
	}

	merged := patch.merge(s.config)
	if err := merged.Validate(); err != nil {
		return syncErrors.NewValidationError(syncErrors.OpSync, err)
	}

	s.config = merged
	s.logger.Info("configuration updated",
		slog.Int("max_delta_size", merged.MaxDeltaSize),
		slog.Int("batch_size", merged.BatchSize),
		slog.Bool("field_level_delta", merged.EnableFieldLevelDelta),
	)
	return nil
}

// Stats describes the service's current state for monitoring.
type Stats struct {
	SnapshotCount int    `json:"snapshot_count"`
	CacheSize     int    `json:"cache_size"`
	Compressor    string `json:"compressor"`
	Config        Config `json:"config"`
}

// Stats returns a point-in-time view of the service.
func (s *Service) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		SnapshotCount: s.snapshots.Count(),
		CacheSize:     s.snapshots.CacheSize(),
		Compressor:    s.compressor.Name(),
		Config:        s.config,
	}
}

// CleanupSnapshots removes snapshots older than maxAge. A zero maxAge
// uses the configured SnapshotMaxAge.
func (s *Service) CleanupSnapshots(ctx context.Context, maxAge time.Duration) (int, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return 0, ErrServiceClosed
	}
	if maxAge <= 0 {
		maxAge = s.config.SnapshotMaxAge
	}
	s.mu.RUnlock()

	start := time.Now()
	removed, err := s.snapshots.CleanupOlderThan(ctx, time.Now().Add(-maxAge))
	s.metrics.RecordOperationDuration("cleanup_snapshots", time.Since(start))
	if err != nil {
		s.metrics.RecordError("cleanup_snapshots")
	}
	return removed, err
}

// Close marks the service closed. Subsequent operations return
// ErrServiceClosed. The snapshot store is owned by the caller and is
// not closed here.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.logger.Info("delta service closed")
	return nil
}

func (s *Service) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrServiceClosed
	}
	return nil
}
