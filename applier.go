package deltakit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	syncErrors "github.com/c0deZ3R0/go-delta-kit/errors"
)

// ApplyDeltas replays batches of changes against the local snapshot
// store and reports per-change outcomes. It is the single point of truth
// for conflict/failure/success bookkeeping; resolution of conflicts is
// the caller's responsibility.
//
// Each batch is first run through OptimizeDeltaOrder. For an update whose
// record already has a local snapshot, the snapshot's current content
// checksum is compared to the change's declared checksum: a mismatch
// means local state diverged since the change was computed, and the
// change is counted as a conflict instead of being applied. Applying the
// same change twice is harmless; the second application finds matching
// checksums and rewrites the same state.
//
// A failure in one batch never aborts the remaining batches.
func (s *Service) ApplyDeltas(ctx context.Context, batches []DeltaBatch) (*ApplyResult, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	start := time.Now()
	result := &ApplyResult{}

	for _, batch := range batches {
		changes, err := s.batchChanges(batch)
		if err != nil {
			// The whole batch is unusable; count every change we know
			// about (at least one for an undecodable payload) as failed.
			n := len(batch.Changes)
			if n == 0 {
				n = 1
			}
			result.Failed += n
			s.logger.LogError(ctx, err, "batch unusable, skipping",
				slog.String("batch_id", batch.ID),
			)
			continue
		}

		for _, change := range s.OptimizeDeltaOrder(changes) {
			applied, conflict, err := s.applyDeltaChange(ctx, change)
			switch {
			case err != nil:
				result.Failed++
				s.logger.LogError(ctx, err, "change application failed",
					slog.String("change_id", change.ID),
					slog.String("table", string(change.TableName)),
					slog.String("record_id", change.RecordID),
				)
			case conflict:
				result.Conflicts++
				s.logger.Warn("change conflicts with local state",
					slog.String("change_id", change.ID),
					slog.String("table", string(change.TableName)),
					slog.String("record_id", change.RecordID),
				)
			case applied:
				result.Applied++
			}
		}
	}

	s.metrics.RecordApplyResult(*result)
	s.metrics.RecordOperationDuration("apply_deltas", time.Since(start))
	s.logger.Info("batches applied",
		slog.Int("batches", len(batches)),
		slog.Int("applied", result.Applied),
		slog.Int("failed", result.Failed),
		slog.Int("conflicts", result.Conflicts),
	)
	return result, nil
}

// batchChanges returns the batch's changes, decoding the compressed
// payload when the change list was stripped for transport.
func (s *Service) batchChanges(batch DeltaBatch) ([]DeltaChange, error) {
	if len(batch.Changes) > 0 {
		return batch.Changes, nil
	}
	if len(batch.Payload) > 0 {
		return s.DecodeBatchPayload(batch.Payload)
	}
	return nil, nil
}

// applyDeltaChange applies one change. Returns (applied, conflict, err);
// exactly one of the three outcomes holds.
func (s *Service) applyDeltaChange(ctx context.Context, change DeltaChange) (bool, bool, error) {
	switch change.Operation {
	case OpInsert, OpUpdate, OpDelete:
	default:
		return false, false, syncErrors.NewValidationError(syncErrors.OpApply,
			fmt.Errorf("unknown operation %q", change.Operation))
	}

	if change.Operation == OpDelete {
		if err := s.snapshots.Delete(ctx, change.TableName, change.RecordID); err != nil {
			return false, false, err
		}
		return true, false, nil
	}

	if change.Operation == OpUpdate {
		if prior, ok := s.snapshots.Get(change.TableName, change.RecordID); ok {
			// Divergence check: the snapshot's actual content hash must
			// match what the change declares. A stale declared checksum
			// means concurrent edits happened since it was computed.
			if Checksum(prior.Snapshot) != change.Checksum {
				return false, true, nil
			}
		}
	}

	ts := change.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	if err := s.putSnapshot(ctx, change.TableName, change.RecordID, change.Data, ts, Checksum(change.Data)); err != nil {
		return false, false, err
	}
	return true, false, nil
}
