package deltakit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config controls sizing, ageing, and feature toggles for the sync core.
type Config struct {
	// MaxDeltaSize is the byte budget for a single batch's serialized
	// changes. CreateDeltaBatch fills a batch up to it and returns the
	// overflow as the remainder.
	MaxDeltaSize int `json:"max_delta_size" yaml:"max_delta_size"`

	// MaxDeltaAge is how long a pending change may wait before it is
	// dropped from the outgoing queue.
	MaxDeltaAge time.Duration `json:"max_delta_age" yaml:"max_delta_age"`

	// EnableFieldLevelDelta turns on per-field diffing for updates.
	// When off, updates carry the full record payload.
	EnableFieldLevelDelta bool `json:"enable_field_level_delta" yaml:"enable_field_level_delta"`

	// BatchSize caps the number of changes per batch.
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// SnapshotMaxAge bounds snapshot retention during cleanup.
	SnapshotMaxAge time.Duration `json:"snapshot_max_age" yaml:"snapshot_max_age"`
}

// DefaultConfig returns the configuration tuned for mobile clients:
// small batches, field-level deltas on, week-long snapshot retention.
func DefaultConfig() Config {
	return Config{
		MaxDeltaSize:          50_000,
		MaxDeltaAge:           24 * time.Hour,
		EnableFieldLevelDelta: true,
		BatchSize:             100,
		SnapshotMaxAge:        7 * 24 * time.Hour,
	}
}

// Validate checks the configuration for values that would break batching
// or retention.
func (c Config) Validate() error {
	if c.MaxDeltaSize <= 0 {
		return fmt.Errorf("max_delta_size must be positive, got %d", c.MaxDeltaSize)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.MaxDeltaAge < 0 {
		return fmt.Errorf("max_delta_age must not be negative, got %s", c.MaxDeltaAge)
	}
	if c.SnapshotMaxAge < 0 {
		return fmt.Errorf("snapshot_max_age must not be negative, got %s", c.SnapshotMaxAge)
	}
	return nil
}

// ConfigPatch is a partial configuration update. Nil fields leave the
// current value untouched, so callers can adjust a single knob at runtime
// without restating the rest.
type ConfigPatch struct {
	MaxDeltaSize          *int           `json:"max_delta_size,omitempty" yaml:"max_delta_size,omitempty"`
	MaxDeltaAge           *time.Duration `json:"max_delta_age,omitempty" yaml:"max_delta_age,omitempty"`
	EnableFieldLevelDelta *bool          `json:"enable_field_level_delta,omitempty" yaml:"enable_field_level_delta,omitempty"`
	BatchSize             *int           `json:"batch_size,omitempty" yaml:"batch_size,omitempty"`
	SnapshotMaxAge        *time.Duration `json:"snapshot_max_age,omitempty" yaml:"snapshot_max_age,omitempty"`
}

// merge applies the patch on top of base and returns the result.
func (p ConfigPatch) merge(base Config) Config {
	out := base
	if p.MaxDeltaSize != nil {
		out.MaxDeltaSize = *p.MaxDeltaSize
	}
	if p.MaxDeltaAge != nil {
		out.MaxDeltaAge = *p.MaxDeltaAge
	}
	if p.EnableFieldLevelDelta != nil {
		out.EnableFieldLevelDelta = *p.EnableFieldLevelDelta
	}
	if p.BatchSize != nil {
		out.BatchSize = *p.BatchSize
	}
	if p.SnapshotMaxAge != nil {
		out.SnapshotMaxAge = *p.SnapshotMaxAge
	}
	return out
}

// LoadConfigFromFile reads a Config from a YAML or JSON file, selected by
// extension, applied over DefaultConfig so partial files work.
func LoadConfigFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return Config{}, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return Config{}, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return Config{}, fmt.Errorf("unsupported config format: %s", filepath.Ext(path))
	}

	if err := config.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config in %s: %w", path, err)
	}
	return config, nil
}
