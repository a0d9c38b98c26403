package deltakit

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	syncErrors "github.com/c0deZ3R0/go-delta-kit/errors"
)

// CalculateDelta computes the change record for a local mutation and
// advances the snapshot baseline as a side effect.
//
// For updates against an existing snapshot it diffs field by field; when
// nothing actually changed it returns (nil, nil) and emits no change.
// Deletes produce a tombstone carrying no payload and remove the
// snapshot, so replaying the same delete is harmless.
func (s *Service) CalculateDelta(ctx context.Context, table SyncableTable, recordID string, op Operation, data RecordData, userID string) (*DeltaChange, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if table == "" || recordID == "" {
		return nil, syncErrors.NewValidationError(syncErrors.OpCalculate,
			fmt.Errorf("table and record id are required"))
	}
	switch op {
	case OpInsert, OpUpdate, OpDelete:
	default:
		return nil, syncErrors.NewValidationError(syncErrors.OpCalculate,
			fmt.Errorf("unknown operation %q", op))
	}

	start := time.Now()
	defer func() {
		s.metrics.RecordOperationDuration("calculate_delta", time.Since(start))
	}()

	if data == nil {
		data = RecordData{}
	}

	now := time.Now().UTC()
	change := &DeltaChange{
		ID:        uuid.NewString(),
		TableName: table,
		RecordID:  recordID,
		Operation: op,
		Timestamp: now,
		UserID:    userID,
	}

	prior, hasPrior := s.snapshots.Get(table, recordID)

	switch op {
	case OpDelete:
		// Tombstone: checksum over whatever state the caller passed
		// (usually nil, hashing as the empty record).
		change.Checksum = Checksum(data)
		change.ChangeSize = serializedLen(data)
		if err := s.snapshots.Delete(ctx, table, recordID); err != nil {
			s.metrics.RecordError("calculate_delta")
			return nil, err
		}

	case OpUpdate:
		change.Data = data
		change.Checksum = Checksum(data)

		if hasPrior {
			if change.Checksum == prior.Checksum && canonicalEqual(data, prior.Snapshot) {
				// Logical no-op: suppress the change entirely.
				s.logger.Debug("suppressing no-op update",
					slog.String("table", string(table)),
					slog.String("record_id", recordID),
				)
				return nil, nil
			}
			if s.fieldLevelEnabled() {
				deltas := diffFields(prior.Snapshot, data)
				if len(deltas) == 0 {
					return nil, nil
				}
				change.FieldDeltas = deltas
				change.ChangeSize = serializedLen(deltas)
			} else {
				change.ChangeSize = serializedLen(data)
			}
		} else {
			// No baseline to diff against: carry the full payload.
			change.ChangeSize = serializedLen(data)
		}

		if err := s.putSnapshot(ctx, table, recordID, data, now, change.Checksum); err != nil {
			s.metrics.RecordError("calculate_delta")
			return nil, err
		}

	case OpInsert:
		change.Data = data
		change.Checksum = Checksum(data)
		change.ChangeSize = serializedLen(data)

		if err := s.putSnapshot(ctx, table, recordID, data, now, change.Checksum); err != nil {
			s.metrics.RecordError("calculate_delta")
			return nil, err
		}
	}

	change.Priority = s.registry.DeterminePriority(table, op, change.ChangeSize)
	s.metrics.RecordDeltaCalculated(table, op, change.ChangeSize)
	return change, nil
}

func (s *Service) fieldLevelEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config.EnableFieldLevelDelta
}

func (s *Service) putSnapshot(ctx context.Context, table SyncableTable, recordID string, data RecordData, ts time.Time, checksum string) error {
	return s.snapshots.Put(ctx, DeltaSnapshot{
		ID:        SnapshotID(table, recordID),
		TableName: table,
		RecordID:  recordID,
		Snapshot:  data,
		Timestamp: ts,
		Checksum:  checksum,
	})
}

// diffFields compares two record states field by field. Keys present only
// in old become deletes, keys present only in new become adds, keys whose
// canonical serialization differs become updates. Deltas are emitted in
// sorted field order so the output is deterministic.
func diffFields(old, new RecordData) []FieldDelta {
	fields := make(map[string]struct{}, len(old)+len(new))
	for k := range old {
		fields[k] = struct{}{}
	}
	for k := range new {
		fields[k] = struct{}{}
	}

	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)

	var deltas []FieldDelta
	for _, field := range names {
		oldVal, inOld := old[field]
		newVal, inNew := new[field]

		switch {
		case inOld && !inNew:
			deltas = append(deltas, FieldDelta{
				Field:     field,
				OldValue:  oldVal,
				Operation: FieldDelete,
			})
		case !inOld && inNew:
			deltas = append(deltas, FieldDelta{
				Field:     field,
				NewValue:  newVal,
				Operation: FieldAdd,
			})
		case !canonicalEqual(oldVal, newVal):
			deltas = append(deltas, FieldDelta{
				Field:     field,
				OldValue:  oldVal,
				NewValue:  newVal,
				Operation: FieldUpdate,
			})
		}
	}
	return deltas
}
