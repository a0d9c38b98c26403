// Package deltakit provides the offline-first delta synchronization core
// for applications that must reconcile divergent local and remote state
// across devices under intermittent connectivity. It tracks per-record
// changes, computes field-level deltas against snapshots, orders and
// compresses batches for transport, and replays incoming batches with
// checksum-based conflict detection.
package deltakit

import (
	"context"
	"errors"
	"time"
)

// Operation identifies the kind of record mutation a change describes.
type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// FieldOperation classifies a single field's change between two record states.
type FieldOperation string

const (
	FieldAdd    FieldOperation = "add"
	FieldUpdate FieldOperation = "update"
	FieldDelete FieldOperation = "delete"
)

// Priority is the transmission priority assigned to a change.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// rank orders priorities for sorting; higher means more urgent.
func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

// SyncableTable identifies a database table eligible for synchronization.
type SyncableTable string

// RecordData is the loosely-typed payload of a synced record. Values must be
// JSON-representable; the canonical serialization layer keeps diffing and
// checksumming generic over concrete schemas.
type RecordData = map[string]any

// FieldDelta describes one field's change between two versions of a record.
type FieldDelta struct {
	Field     string         `json:"field"`
	OldValue  any            `json:"old_value,omitempty"`
	NewValue  any            `json:"new_value,omitempty"`
	Operation FieldOperation `json:"operation"`
}

// DeltaChange is a single tracked mutation, ready for batching.
//
// FieldDeltas is populated only when field-level tracking is enabled, the
// operation is an update, and a prior snapshot existed to diff against;
// otherwise ChangeSize reflects the full serialized payload.
type DeltaChange struct {
	ID          string        `json:"id"`
	TableName   SyncableTable `json:"table_name"`
	RecordID    string        `json:"record_id"`
	Operation   Operation     `json:"operation"`
	Data        RecordData    `json:"data,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
	UserID      string        `json:"user_id,omitempty"`
	FieldDeltas []FieldDelta  `json:"field_deltas,omitempty"`
	ChangeSize  int           `json:"change_size"`
	Priority    Priority      `json:"priority"`
	Checksum    string        `json:"checksum"`
}

// DeltaSnapshot is the last materialized state of a record, used as the
// baseline for diffing and conflict detection. Owned exclusively by the
// SnapshotRepository.
type DeltaSnapshot struct {
	ID        string        `json:"id"`
	TableName SyncableTable `json:"table_name"`
	RecordID  string        `json:"record_id"`
	Snapshot  RecordData    `json:"snapshot"`
	Timestamp time.Time     `json:"timestamp"`
	Checksum  string        `json:"checksum"`
}

// SnapshotID builds the canonical "table:recordId" identifier.
func SnapshotID(table SyncableTable, recordID string) string {
	return string(table) + ":" + recordID
}

// CompressionInfo records the outcome of compressing a batch payload.
type CompressionInfo struct {
	OriginalSize   int     `json:"original_size"`
	CompressedSize int     `json:"compressed_size"`
	Ratio          float64 `json:"ratio"`
}

// DeltaBatch is an ordered, compressed group of changes prepared for
// transmission or application. A batch is never mutated once built;
// re-batching requires constructing a new one.
type DeltaBatch struct {
	ID          string          `json:"id"`
	Changes     []DeltaChange   `json:"changes"`
	TotalSize   int             `json:"total_size"`
	Compression CompressionInfo `json:"compression"`
	Payload     []byte          `json:"payload,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

// ApplyResult summarizes the per-change outcomes of applying batches.
// Conflicts are exclusively checksum mismatches; failures are everything
// else that went wrong during application.
type ApplyResult struct {
	Applied   int `json:"applied"`
	Failed    int `json:"failed"`
	Conflicts int `json:"conflicts"`
}

// ErrKeyNotFound is returned by Storage implementations when a key is absent.
var ErrKeyNotFound = errors.New("key not found")

// ErrServiceClosed is returned for operations on a closed Service or
// SyncManager.
var ErrServiceClosed = errors.New("service is closed")

// Storage is the persistent key-value store the snapshot mirror is built on.
// Implementations can use any backend (SQLite, files, a remote KV service).
type Storage interface {
	// GetItem returns the value for key, or ErrKeyNotFound.
	GetItem(ctx context.Context, key string) (string, error)

	// SetItem stores value under key, overwriting any previous value.
	SetItem(ctx context.Context, key, value string) error

	// RemoveItem deletes key. Removing an absent key is not an error.
	RemoveItem(ctx context.Context, key string) error

	// Keys returns all stored keys with the given prefix. An empty prefix
	// returns every key.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Close releases any resources held by the store.
	Close() error
}

// Transport moves batches between this device and the remote change-log API.
// Implementations can use HTTP, gRPC, WebSockets, etc.; the core treats the
// wire protocol as opaque.
type Transport interface {
	// PushBatch sends one batch to the remote endpoint.
	PushBatch(ctx context.Context, batch *DeltaBatch) error

	// PullBatches retrieves remote batches created since the given time.
	PullBatches(ctx context.Context, since time.Time) ([]DeltaBatch, error)

	// Close closes the transport connection.
	Close() error
}
