package deltakit

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	syncErrors "github.com/c0deZ3R0/go-delta-kit/errors"
	"github.com/c0deZ3R0/go-delta-kit/logging"
)

// snapshotKeyPrefix namespaces snapshot entries in the backing store so
// they coexist with other keys the host application keeps there.
const snapshotKeyPrefix = "delta_snapshot_"

func snapshotKey(table SyncableTable, recordID string) string {
	return snapshotKeyPrefix + SnapshotID(table, recordID)
}

// SnapshotRepository owns the per-record snapshots the delta calculator
// diffs against. It keeps a write-through in-memory cache over a Storage
// backend: reads are served from memory, every mutation is mirrored to
// the store so snapshots survive restarts.
type SnapshotRepository struct {
	mu     sync.RWMutex
	cache  map[string]DeltaSnapshot
	store  Storage
	logger *logging.Logger
}

// NewSnapshotRepository creates an empty repository over store. Call Load
// to hydrate the cache from previously persisted snapshots.
func NewSnapshotRepository(store Storage) *SnapshotRepository {
	return &SnapshotRepository{
		cache:  make(map[string]DeltaSnapshot),
		store:  store,
		logger: logging.WithComponent(logging.Component("snapshots")),
	}
}

// Load hydrates the cache from the backing store. Entries that fail to
// decode are skipped with a warning rather than failing the whole load;
// a corrupt snapshot only costs one record a full-payload delta.
func (r *SnapshotRepository) Load(ctx context.Context) error {
	keys, err := r.store.Keys(ctx, snapshotKeyPrefix)
	if err != nil {
		return syncErrors.WrapOpComponentCode(err, syncErrors.OpSnapshotLoad, "snapshots", syncErrors.ErrCodeStorageFailure)
	}

	loaded := 0
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range keys {
		raw, err := r.store.GetItem(ctx, key)
		if err != nil {
			r.logger.Warn("skipping unreadable snapshot entry",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
			continue
		}

		var snap DeltaSnapshot
		if err := json.Unmarshal([]byte(raw), &snap); err != nil {
			r.logger.Warn("skipping corrupt snapshot entry",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
			continue
		}

		r.cache[strings.TrimPrefix(key, snapshotKeyPrefix)] = snap
		loaded++
	}

	r.logger.Info("snapshots loaded",
		slog.Int("loaded", loaded),
		slog.Int("total_keys", len(keys)),
	)
	return nil
}

// Get returns the snapshot for table/recordID, if one exists.
func (r *SnapshotRepository) Get(table SyncableTable, recordID string) (DeltaSnapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap, ok := r.cache[SnapshotID(table, recordID)]
	return snap, ok
}

// Put stores snap in the cache and mirrors it to the backing store.
func (r *SnapshotRepository) Put(ctx context.Context, snap DeltaSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return syncErrors.NewWithComponent(syncErrors.OpSnapshotStore, "snapshots", err)
	}

	r.mu.Lock()
	r.cache[SnapshotID(snap.TableName, snap.RecordID)] = snap
	r.mu.Unlock()

	if err := r.store.SetItem(ctx, snapshotKey(snap.TableName, snap.RecordID), string(raw)); err != nil {
		return syncErrors.WrapOpComponentCode(err, syncErrors.OpSnapshotStore, "snapshots", syncErrors.ErrCodeStorageFailure)
	}
	return nil
}

// Delete removes the snapshot for table/recordID from cache and store.
// Deleting an absent snapshot is not an error.
func (r *SnapshotRepository) Delete(ctx context.Context, table SyncableTable, recordID string) error {
	r.mu.Lock()
	delete(r.cache, SnapshotID(table, recordID))
	r.mu.Unlock()

	if err := r.store.RemoveItem(ctx, snapshotKey(table, recordID)); err != nil {
		return syncErrors.WrapOpComponentCode(err, syncErrors.OpSnapshotStore, "snapshots", syncErrors.ErrCodeStorageFailure)
	}
	return nil
}

// All returns a copy of every cached snapshot.
func (r *SnapshotRepository) All() []DeltaSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]DeltaSnapshot, 0, len(r.cache))
	for _, snap := range r.cache {
		out = append(out, snap)
	}
	return out
}

// Count returns the number of cached snapshots.
func (r *SnapshotRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

// CacheSize returns the total serialized size in bytes of all cached
// snapshot states.
func (r *SnapshotRepository) CacheSize() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0
	for _, snap := range r.cache {
		total += serializedLen(snap.Snapshot)
	}
	return total
}

// CleanupOlderThan removes snapshots whose timestamp is before cutoff and
// returns how many were removed. Store errors abort the sweep; the cache
// and mirror stay consistent for everything already removed.
func (r *SnapshotRepository) CleanupOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	stale := make([]DeltaSnapshot, 0)
	for _, snap := range r.cache {
		if snap.Timestamp.Before(cutoff) {
			stale = append(stale, snap)
		}
	}
	r.mu.Unlock()

	removed := 0
	for _, snap := range stale {
		if err := r.Delete(ctx, snap.TableName, snap.RecordID); err != nil {
			return removed, syncErrors.WrapOpComponentCode(err, syncErrors.OpCleanup, "snapshots", syncErrors.ErrCodeStorageFailure)
		}
		removed++
	}

	if removed > 0 {
		r.logger.Info("stale snapshots removed",
			slog.Int("removed", removed),
			slog.Time("cutoff", cutoff),
		)
	}
	return removed, nil
}
