package deltakit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	syncErrors "github.com/c0deZ3R0/go-delta-kit/errors"
)

// CreateDeltaBatch assembles changes into a single transmission-ready
// batch. Changes are ordered by priority (high first) and, within equal
// priority, by timestamp (oldest first); the sort is stable so equal
// keys keep their input order. The batch holds as many ordered changes
// as the configured BatchSize and MaxDeltaSize budgets allow; the rest
// are returned as the remainder, still ordered, for the caller to batch
// on a following call. No change is ever dropped.
func (s *Service) CreateDeltaBatch(ctx context.Context, changes []DeltaChange) (*DeltaBatch, []DeltaChange, error) {
	if err := s.checkOpen(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if len(changes) == 0 {
		return nil, nil, syncErrors.NewValidationError(syncErrors.OpBatch,
			fmt.Errorf("no changes to batch"))
	}

	start := time.Now()
	defer func() {
		s.metrics.RecordOperationDuration("create_batch", time.Since(start))
	}()

	s.mu.RLock()
	batchSize := s.config.BatchSize
	maxBytes := s.config.MaxDeltaSize
	s.mu.RUnlock()

	ordered := make([]DeltaChange, len(changes))
	copy(ordered, changes)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority.rank() > ordered[j].Priority.rank()
		}
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	selected := ordered[:0:0]
	totalSize := 0
	for _, c := range ordered {
		if len(selected) >= batchSize {
			break
		}
		if totalSize+c.ChangeSize > maxBytes && len(selected) > 0 {
			break
		}
		selected = append(selected, c)
		totalSize += c.ChangeSize
	}
	remainder := ordered[len(selected):]

	payload, err := json.Marshal(selected)
	if err != nil {
		s.metrics.RecordError("create_batch")
		return nil, nil, syncErrors.NewWithComponent(syncErrors.OpBatch, "batcher", err)
	}

	result, err := s.compressor.Compress(payload)
	if err != nil {
		s.metrics.RecordError("create_batch")
		return nil, nil, syncErrors.NewCompressionError(syncErrors.OpCompress, err)
	}

	batch := &DeltaBatch{
		ID:        uuid.NewString(),
		Changes:   selected,
		TotalSize: totalSize,
		Compression: CompressionInfo{
			OriginalSize:   result.Stats.OriginalSize,
			CompressedSize: result.Stats.CompressedSize,
			Ratio:          result.Stats.Ratio,
		},
		Payload:   result.Data,
		Timestamp: time.Now().UTC(),
	}

	s.logger.Debug("batch created",
		slog.String("batch_id", batch.ID),
		slog.Int("changes", len(selected)),
		slog.Int("remainder", len(remainder)),
		slog.Int("total_size", totalSize),
		slog.Float64("compression_ratio", batch.Compression.Ratio),
	)
	s.metrics.RecordBatchCreated(len(selected), totalSize, result.Stats.CompressedSize)
	return batch, remainder, nil
}

// DecodeBatchPayload decompresses and decodes a batch's wire payload back
// into its changes. Used by receivers that transmit only the compressed
// payload.
func (s *Service) DecodeBatchPayload(payload []byte) ([]DeltaChange, error) {
	raw, err := s.compressor.Decompress(payload)
	if err != nil {
		return nil, syncErrors.NewCompressionError(syncErrors.OpCompress, err)
	}
	var changes []DeltaChange
	if err := json.Unmarshal(raw, &changes); err != nil {
		return nil, syncErrors.NewWithComponent(syncErrors.OpBatch, "batcher", err)
	}
	return changes, nil
}
