package deltakit

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func makeChange(id string, table SyncableTable, recordID string, p Priority, ts time.Time, size int) DeltaChange {
	return DeltaChange{
		ID:         id,
		TableName:  table,
		RecordID:   recordID,
		Operation:  OpUpdate,
		Timestamp:  ts,
		Priority:   p,
		ChangeSize: size,
	}
}

func TestCreateDeltaBatchOrdering(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	base := time.Now()
	changes := []DeltaChange{
		makeChange("c1", "usage_logs", "1", PriorityLow, base, 10),
		makeChange("c2", "users", "2", PriorityHigh, base.Add(time.Second), 10),
		makeChange("c3", "flashcards", "3", PriorityMedium, base.Add(2*time.Second), 10),
		makeChange("c4", "users", "4", PriorityHigh, base.Add(3*time.Second), 10),
	}

	batch, remainder, err := svc.CreateDeltaBatch(ctx, changes)
	if err != nil {
		t.Fatalf("CreateDeltaBatch: %v", err)
	}
	if len(remainder) != 0 {
		t.Fatalf("remainder = %d changes, want 0", len(remainder))
	}

	wantOrder := []string{"c2", "c4", "c3", "c1"}
	if len(batch.Changes) != len(wantOrder) {
		t.Fatalf("got %d changes, want %d", len(batch.Changes), len(wantOrder))
	}
	for i, want := range wantOrder {
		if batch.Changes[i].ID != want {
			t.Errorf("position %d: got %s, want %s", i, batch.Changes[i].ID, want)
		}
	}

	if batch.TotalSize != 40 {
		t.Errorf("TotalSize = %d, want 40", batch.TotalSize)
	}
	if batch.ID == "" {
		t.Error("batch must carry an id")
	}
}

func TestCreateDeltaBatchRespectsBatchSize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BatchSize = 2
	svc := newTestService(t, WithConfig(cfg))

	base := time.Now()
	changes := []DeltaChange{
		makeChange("c1", "users", "1", PriorityHigh, base, 10),
		makeChange("c2", "users", "2", PriorityHigh, base.Add(time.Second), 10),
		makeChange("c3", "users", "3", PriorityHigh, base.Add(2*time.Second), 10),
	}

	batch, remainder, err := svc.CreateDeltaBatch(context.Background(), changes)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch.Changes) != 2 {
		t.Errorf("got %d changes, want 2", len(batch.Changes))
	}
	if len(remainder) != 1 || remainder[0].ID != "c3" {
		t.Errorf("remainder = %+v, want the overflow change c3", remainder)
	}
}

func TestCreateDeltaBatchRespectsByteBudget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDeltaSize = 25
	svc := newTestService(t, WithConfig(cfg))

	base := time.Now()
	changes := []DeltaChange{
		makeChange("c1", "users", "1", PriorityHigh, base, 10),
		makeChange("c2", "users", "2", PriorityHigh, base.Add(time.Second), 10),
		makeChange("c3", "users", "3", PriorityHigh, base.Add(2*time.Second), 10),
	}

	batch, remainder, err := svc.CreateDeltaBatch(context.Background(), changes)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch.Changes) != 2 {
		t.Errorf("got %d changes, want 2 within 25 byte budget", len(batch.Changes))
	}
	if len(remainder) != 1 {
		t.Errorf("remainder = %d changes, want 1", len(remainder))
	}
}

func TestCreateDeltaBatchOversizedSingleChange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDeltaSize = 5
	svc := newTestService(t, WithConfig(cfg))

	changes := []DeltaChange{
		makeChange("c1", "users", "1", PriorityHigh, time.Now(), 100),
	}
	batch, remainder, err := svc.CreateDeltaBatch(context.Background(), changes)
	if err != nil {
		t.Fatal(err)
	}
	// A single change larger than the budget still ships, alone.
	if len(batch.Changes) != 1 {
		t.Errorf("got %d changes, want 1", len(batch.Changes))
	}
	if len(remainder) != 0 {
		t.Errorf("remainder = %d changes, want 0", len(remainder))
	}
}

func TestCreateDeltaBatchEmptyInput(t *testing.T) {
	svc := newTestService(t)
	if _, _, err := svc.CreateDeltaBatch(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestCreateDeltaBatchNoChangeLost(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	base := time.Now()
	changes := make([]DeltaChange, 150)
	for i := range changes {
		changes[i] = makeChange(fmt.Sprintf("c%03d", i), "users", fmt.Sprintf("%d", i),
			PriorityMedium, base.Add(time.Duration(i)*time.Second), 10)
	}

	batch, remainder, err := svc.CreateDeltaBatch(ctx, changes)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch.Changes) != DefaultConfig().BatchSize {
		t.Errorf("batch holds %d changes, want %d", len(batch.Changes), DefaultConfig().BatchSize)
	}
	if len(batch.Changes)+len(remainder) != len(changes) {
		t.Fatalf("batch(%d) + remainder(%d) != input(%d)",
			len(batch.Changes), len(remainder), len(changes))
	}

	seen := make(map[string]bool, len(changes))
	for _, c := range batch.Changes {
		seen[c.ID] = true
	}
	for _, c := range remainder {
		if seen[c.ID] {
			t.Errorf("change %s in both batch and remainder", c.ID)
		}
		seen[c.ID] = true
	}
	for _, c := range changes {
		if !seen[c.ID] {
			t.Errorf("change %s lost", c.ID)
		}
	}

	// The remainder is still ordered and re-batchable as-is.
	second, rest, err := svc.CreateDeltaBatch(ctx, remainder)
	if err != nil {
		t.Fatal(err)
	}
	if len(second.Changes) != len(remainder) || len(rest) != 0 {
		t.Errorf("second batch = %d changes with %d left, want %d and 0",
			len(second.Changes), len(rest), len(remainder))
	}
}

func TestBatchPayloadRoundTrip(t *testing.T) {
	svc := newTestService(t)

	base := time.Now().UTC().Truncate(time.Second)
	changes := []DeltaChange{
		makeChange("c1", "users", "1", PriorityHigh, base, 10),
		makeChange("c2", "flashcards", "2", PriorityMedium, base.Add(time.Second), 20),
	}

	batch, _, err := svc.CreateDeltaBatch(context.Background(), changes)
	if err != nil {
		t.Fatal(err)
	}
	if batch.Compression.OriginalSize <= 0 || batch.Compression.CompressedSize <= 0 {
		t.Errorf("compression stats missing: %+v", batch.Compression)
	}

	decoded, err := svc.DecodeBatchPayload(batch.Payload)
	if err != nil {
		t.Fatalf("DecodeBatchPayload: %v", err)
	}
	if len(decoded) != len(batch.Changes) {
		t.Fatalf("decoded %d changes, want %d", len(decoded), len(batch.Changes))
	}
	for i := range decoded {
		if decoded[i].ID != batch.Changes[i].ID {
			t.Errorf("position %d: got %s, want %s", i, decoded[i].ID, batch.Changes[i].ID)
		}
	}
}
