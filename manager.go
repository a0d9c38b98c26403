package deltakit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	syncErrors "github.com/c0deZ3R0/go-delta-kit/errors"
	"github.com/c0deZ3R0/go-delta-kit/logging"
)

// RetryConfig controls exponential-backoff retries for transport calls.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig returns sensible retry defaults for flaky mobile
// connectivity.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// SyncOptions configures a SyncManager.
type SyncOptions struct {
	// SyncInterval is the period for StartAutoSync.
	SyncInterval time.Duration

	// Timeout bounds each transport/store operation. Zero means a
	// 30 second default.
	Timeout time.Duration

	// RetryConfig enables retries for retryable transport errors.
	// Nil disables retries.
	RetryConfig *RetryConfig

	// PushOnly and PullOnly restrict Sync to one direction.
	PushOnly bool
	PullOnly bool
}

// SyncResult reports the outcome of a sync cycle.
type SyncResult struct {
	ChangesPushed  int           `json:"changes_pushed"`
	ChangesPulled  int           `json:"changes_pulled"`
	ChangesExpired int           `json:"changes_expired"`
	Applied        int           `json:"applied"`
	Failed         int           `json:"failed"`
	Conflicts      int           `json:"conflicts"`
	Errors         []error       `json:"-"`
	StartTime      time.Time     `json:"start_time"`
	Duration       time.Duration `json:"duration"`
}

// SyncManager orchestrates the full offline-first cycle: record local
// mutations, push batches of pending changes, pull and apply remote
// batches, optionally on a timer.
type SyncManager struct {
	service   *Service
	transport Transport
	pending   *PendingQueue
	options   SyncOptions
	logger    *logging.Logger

	mu           sync.RWMutex
	lastPull     time.Time
	autoSyncStop chan struct{}
	subscribers  []func(*SyncResult)
	closed       bool
}

// NewSyncManager creates a SyncManager over a delta service and a
// transport.
func NewSyncManager(service *Service, transport Transport, options SyncOptions) (*SyncManager, error) {
	if service == nil {
		return nil, fmt.Errorf("service is required")
	}
	if transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	return &SyncManager{
		service:   service,
		transport: transport,
		pending:   NewPendingQueue(),
		options:   options,
		logger:    logging.WithComponent(logging.Component("sync-manager")),
	}, nil
}

// Record computes the delta for a local mutation and queues it for the
// next push. Suppressed no-ops queue nothing.
func (sm *SyncManager) Record(ctx context.Context, table SyncableTable, recordID string, op Operation, data RecordData, userID string) error {
	sm.mu.RLock()
	if sm.closed {
		sm.mu.RUnlock()
		return ErrServiceClosed
	}
	sm.mu.RUnlock()

	change, err := sm.service.CalculateDelta(ctx, table, recordID, op, data, userID)
	if err != nil {
		return err
	}
	sm.pending.Add(change)
	return nil
}

// Pending returns the number of changes waiting to be pushed.
func (sm *SyncManager) Pending() int {
	return sm.pending.Len()
}

// Sync performs a bidirectional sync: pull first to get the latest
// remote changes, then push local ones.
func (sm *SyncManager) Sync(ctx context.Context) (*SyncResult, error) {
	sm.mu.RLock()
	if sm.closed {
		sm.mu.RUnlock()
		return nil, syncErrors.New(syncErrors.OpSync, ErrServiceClosed)
	}
	sm.mu.RUnlock()

	result := &SyncResult{StartTime: time.Now()}
	defer func() {
		result.Duration = time.Since(result.StartTime)
		sm.notifySubscribers(result)
	}()

	if !sm.options.PushOnly {
		pullResult, err := sm.pull(ctx)
		if err != nil {
			result.Errors = append(result.Errors, syncErrors.NewWithComponent(syncErrors.OpPull, "transport", err))
		} else {
			result.ChangesPulled = pullResult.ChangesPulled
			result.Applied = pullResult.Applied
			result.Failed = pullResult.Failed
			result.Conflicts = pullResult.Conflicts
		}
	}

	if !sm.options.PullOnly {
		pushResult, err := sm.push(ctx)
		if err != nil {
			result.Errors = append(result.Errors, syncErrors.NewWithComponent(syncErrors.OpPush, "transport", err))
		}
		if pushResult != nil {
			result.ChangesPushed = pushResult.ChangesPushed
			result.ChangesExpired = pushResult.ChangesExpired
		}
	}

	return result, nil
}

// Push sends all pending changes to the remote endpoint.
func (sm *SyncManager) Push(ctx context.Context) (*SyncResult, error) {
	sm.mu.RLock()
	if sm.closed {
		sm.mu.RUnlock()
		return nil, syncErrors.New(syncErrors.OpPush, ErrServiceClosed)
	}
	sm.mu.RUnlock()

	return sm.push(ctx)
}

// Pull retrieves remote batches and applies them locally.
func (sm *SyncManager) Pull(ctx context.Context) (*SyncResult, error) {
	sm.mu.RLock()
	if sm.closed {
		sm.mu.RUnlock()
		return nil, syncErrors.New(syncErrors.OpPull, ErrServiceClosed)
	}
	sm.mu.RUnlock()

	return sm.pull(ctx)
}

func (sm *SyncManager) push(ctx context.Context) (*SyncResult, error) {
	result := &SyncResult{StartTime: time.Now()}
	defer func() {
		result.Duration = time.Since(result.StartTime)
	}()

	maxAge := sm.service.Config().MaxDeltaAge
	changes, expired := sm.pending.Drain(maxAge)
	result.ChangesExpired = expired
	if expired > 0 {
		sm.logger.Warn("dropped stale pending changes",
			slog.Int("expired", expired),
			slog.Duration("max_age", maxAge),
		)
	}
	if len(changes) == 0 {
		return result, nil
	}

	// Batch until the pending set is exhausted; CreateDeltaBatch takes
	// as many changes as the size budgets allow per batch and hands the
	// rest back.
	remaining := changes
	for len(remaining) > 0 {
		select {
		case <-ctx.Done():
			sm.pending.Requeue(remaining)
			return result, ctx.Err()
		default:
		}

		batch, remainder, err := sm.service.CreateDeltaBatch(ctx, remaining)
		if err != nil {
			sm.pending.Requeue(remaining)
			return result, err
		}

		pushErr := sm.withRetry(ctx, func() error {
			opCtx, cancel := sm.withTimeout(ctx)
			defer cancel()
			return sm.transport.PushBatch(opCtx, batch)
		})
		if pushErr != nil {
			sm.pending.Requeue(remaining)
			return result, syncErrors.NewWithComponent(syncErrors.OpPush, "transport", pushErr)
		}

		result.ChangesPushed += len(batch.Changes)
		remaining = remainder
	}

	return result, nil
}

func (sm *SyncManager) pull(ctx context.Context) (*SyncResult, error) {
	result := &SyncResult{StartTime: time.Now()}
	defer func() {
		result.Duration = time.Since(result.StartTime)
	}()

	sm.mu.RLock()
	since := sm.lastPull
	sm.mu.RUnlock()

	var batches []DeltaBatch
	err := sm.withRetry(ctx, func() error {
		opCtx, cancel := sm.withTimeout(ctx)
		defer cancel()
		var pullErr error
		batches, pullErr = sm.transport.PullBatches(opCtx, since)
		return pullErr
	})
	if err != nil {
		return result, syncErrors.NewWithComponent(syncErrors.OpPull, "transport", err)
	}

	if len(batches) == 0 {
		return result, nil
	}

	applyResult, err := sm.service.ApplyDeltas(ctx, batches)
	if err != nil {
		return result, err
	}

	for _, b := range batches {
		result.ChangesPulled += len(b.Changes)
	}
	result.Applied = applyResult.Applied
	result.Failed = applyResult.Failed
	result.Conflicts = applyResult.Conflicts

	sm.mu.Lock()
	sm.lastPull = time.Now()
	sm.mu.Unlock()
	return result, nil
}

type exponentialBackoff struct {
	initialDelay time.Duration
	maxDelay     time.Duration
	multiplier   float64
}

func (eb *exponentialBackoff) nextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := float64(eb.initialDelay)
	for i := 0; i < attempt; i++ {
		delay *= eb.multiplier
	}

	result := time.Duration(delay)
	if result > eb.maxDelay {
		result = eb.maxDelay
	}
	return result
}

func (sm *SyncManager) withRetry(ctx context.Context, operation func() error) error {
	if sm.options.RetryConfig == nil {
		return operation()
	}

	config := sm.options.RetryConfig
	eb := &exponentialBackoff{
		initialDelay: config.InitialDelay,
		maxDelay:     config.MaxDelay,
		multiplier:   config.Multiplier,
	}

	err := operation()
	if err == nil {
		return nil
	}
	if !syncErrors.IsRetryable(err) {
		return err
	}

	for attempt := 1; attempt < config.MaxAttempts; attempt++ {
		delay := eb.nextDelay(attempt - 1)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		err = operation()
		if err == nil {
			return nil
		}
		if !syncErrors.IsRetryable(err) {
			return err
		}
	}

	return err
}

func (sm *SyncManager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if sm.options.Timeout > 0 {
		return context.WithTimeout(ctx, sm.options.Timeout)
	}
	return context.WithTimeout(ctx, 30*time.Second)
}

// StartAutoSync begins periodic synchronization at the configured
// interval.
func (sm *SyncManager) StartAutoSync(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if sm.closed {
		return syncErrors.New(syncErrors.OpSync, ErrServiceClosed)
	}
	if sm.options.SyncInterval <= 0 {
		return syncErrors.New(syncErrors.OpSync, fmt.Errorf("sync interval must be positive"))
	}
	if sm.autoSyncStop != nil {
		return syncErrors.New(syncErrors.OpSync, fmt.Errorf("auto sync is already running"))
	}

	stopChan := make(chan struct{})
	sm.autoSyncStop = stopChan

	go func() {
		ticker := time.NewTicker(sm.options.SyncInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-stopChan:
				return
			case <-ticker.C:
				syncCtx, cancel := sm.withTimeout(ctx)
				_, err := sm.Sync(syncCtx)
				cancel()

				if err != nil {
					sm.notifySubscribers(&SyncResult{
						StartTime: time.Now(),
						Errors:    []error{err},
					})
				}
			}
		}
	}()

	return nil
}

// StopAutoSync stops periodic synchronization.
func (sm *SyncManager) StopAutoSync() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.autoSyncStop == nil {
		return syncErrors.New(syncErrors.OpSync, fmt.Errorf("auto sync is not running"))
	}

	close(sm.autoSyncStop)
	sm.autoSyncStop = nil
	return nil
}

// Subscribe registers a handler invoked after every sync cycle.
func (sm *SyncManager) Subscribe(handler func(*SyncResult)) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.closed {
		return syncErrors.New(syncErrors.OpSync, ErrServiceClosed)
	}

	sm.subscribers = append(sm.subscribers, handler)
	return nil
}

// Close shuts down the manager, its service, and the transport.
func (sm *SyncManager) Close() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.closed {
		return nil
	}
	sm.closed = true

	if sm.autoSyncStop != nil {
		close(sm.autoSyncStop)
		sm.autoSyncStop = nil
	}

	var errs []error
	if err := sm.transport.Close(); err != nil {
		errs = append(errs, syncErrors.NewWithComponent(syncErrors.OpClose, "transport", err))
	}
	if err := sm.service.Close(); err != nil {
		errs = append(errs, syncErrors.NewWithComponent(syncErrors.OpClose, "service", err))
	}

	if len(errs) > 0 {
		return syncErrors.New(syncErrors.OpClose, fmt.Errorf("multiple close errors: %v", errs))
	}
	return nil
}

func (sm *SyncManager) notifySubscribers(result *SyncResult) {
	sm.mu.RLock()
	subscribers := make([]func(*SyncResult), len(sm.subscribers))
	copy(subscribers, sm.subscribers)
	sm.mu.RUnlock()

	for _, handler := range subscribers {
		go func(h func(*SyncResult)) {
			defer func() {
				if r := recover(); r != nil {
					sm.logger.Error("subscriber panicked",
						slog.Any("panic", r),
					)
				}
			}()
			h(result)
		}(handler)
	}
}
