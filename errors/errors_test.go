package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestSyncErrorMessage(t *testing.T) {
	cause := fmt.Errorf("disk full")

	tests := []struct {
		name string
		err  *SyncError
		want []string
	}{
		{
			"with component and code",
			NewStorageError(OpSnapshotStore, cause),
			[]string{"store_snapshot", "storage", "STORAGE_FAILURE", "disk full"},
		},
		{
			"without component",
			New(OpSync, cause),
			[]string{"sync operation failed", "disk full"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, want := range tt.want {
				if !strings.Contains(msg, want) {
					t.Errorf("message %q missing %q", msg, want)
				}
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := NewNetworkError(OpPush, cause)

	if !stderrors.Is(err, cause) {
		t.Error("errors.Is did not find wrapped cause")
	}
}

func TestIsRetryable(t *testing.T) {
	cause := fmt.Errorf("boom")

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"network error", NewNetworkError(OpPush, cause), true},
		{"storage error", NewStorageError(OpSnapshotStore, cause), true},
		{"validation error", NewValidationError(OpCalculate, cause), false},
		{"compression error", NewCompressionError(OpCompress, cause), false},
		{"plain error", cause, false},
		{"wrapped sync error", fmt.Errorf("outer: %w", NewRetryable(OpPull, cause)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWrapOpComponent(t *testing.T) {
	if WrapOpComponent(nil, OpApply, "applier") != nil {
		t.Error("wrapping nil must return nil")
	}

	cause := fmt.Errorf("boom")
	err := WrapOpComponent(cause, OpApply, "applier")

	var syncErr *SyncError
	if !stderrors.As(err, &syncErr) {
		t.Fatal("expected *SyncError")
	}
	if syncErr.Op != OpApply || syncErr.Component != "applier" {
		t.Errorf("got op=%s component=%s", syncErr.Op, syncErr.Component)
	}
}
