package deltakit

import "time"

// MetricsCollector receives instrumentation events from the sync core.
// Implementations can forward to Prometheus, StatsD, or any other sink;
// the core calls these hooks synchronously, so they must be cheap.
type MetricsCollector interface {
	// RecordDeltaCalculated is called once per computed change.
	RecordDeltaCalculated(table SyncableTable, op Operation, changeSize int)

	// RecordBatchCreated is called after a batch is built and compressed.
	RecordBatchCreated(changeCount, totalSize, compressedSize int)

	// RecordApplyResult is called after applying incoming batches.
	RecordApplyResult(result ApplyResult)

	// RecordOperationDuration tracks how long a named operation took.
	RecordOperationDuration(operation string, duration time.Duration)

	// RecordError counts an error in a named operation.
	RecordError(operation string)
}

// NoOpMetricsCollector discards all metrics. It is the default collector
// so instrumentation never needs nil checks.
type NoOpMetricsCollector struct{}

func (NoOpMetricsCollector) RecordDeltaCalculated(SyncableTable, Operation, int) {}
func (NoOpMetricsCollector) RecordBatchCreated(int, int, int)                    {}
func (NoOpMetricsCollector) RecordApplyResult(ApplyResult)                       {}
func (NoOpMetricsCollector) RecordOperationDuration(string, time.Duration)       {}
func (NoOpMetricsCollector) RecordError(string)                                  {}

var _ MetricsCollector = NoOpMetricsCollector{}
