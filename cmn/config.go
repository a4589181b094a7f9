// Package cmn holds the module-wide configuration and sentinel errors, in
// the style of the reference codebase's own cmn package.
/*
 * Copyright (c) 2024-2025, Ray Project contributors.
 */
package cmn

import (
	"os"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

// DefaultSpilledObjectDeleteRetries is the retry budget handed to a
// freshly enqueued base-url deletion.
const DefaultSpilledObjectDeleteRetries = 3

// Config carries every control-plane tunable. Zero values are invalid
// except where noted; use DefaultConfig() as a base.
type Config struct {
	// MinSpillingSize is the minimum cumulative byte size a spill batch
	// must reach before TryToSpillObjects will dispatch it, unless the
	// batch already holds MaxFusedObjectCount objects or the caller passes
	// the "spill-at-least-one" hint.
	MinSpillingSize int64 `json:"min_spilling_size"`

	// MaxFusedObjectCount bounds how many objects may be fused into one
	// spill batch/file.
	MaxFusedObjectCount int64 `json:"max_fused_object_count"`

	// MaxActiveWorkers bounds num_active_workers, shared between spills
	// and restores (they draw from the same I/O worker pool).
	MaxActiveWorkers int64 `json:"max_active_workers"`

	// FreeObjectsBatchSize is the free-flusher's flush-by-count trigger.
	FreeObjectsBatchSize int `json:"free_objects_batch_size"`

	// FreeObjectsPeriod is the free-flusher's flush-by-time trigger.
	FreeObjectsPeriod time.Duration `json:"free_objects_period"`

	// SpilledObjectDeleteRetries is the retry budget for a base-url
	// delete batch; see DeletionQueue.
	SpilledObjectDeleteRetries int64 `json:"spilled_object_delete_retries"`

	// VerboseSpillLogBytes seeds next_spill_error_log_bytes_; zero
	// disables the doubling error log entirely.
	VerboseSpillLogBytes int64 `json:"verbose_spill_log_bytes"`

	// IsExternalStorageFS selects the filesystem-vs-distributed spill
	// protocol: when true, spilled URLs are only ever readable from this
	// node and must be advertised through the object directory.
	IsExternalStorageFS bool `json:"is_external_storage_fs"`
}

// DefaultConfig returns reasonable defaults for a single-node deployment.
func DefaultConfig() *Config {
	return &Config{
		MinSpillingSize:            100 * 1024 * 1024,
		MaxFusedObjectCount:        64,
		MaxActiveWorkers:           4,
		FreeObjectsBatchSize:       100,
		FreeObjectsPeriod:          time.Second,
		SpilledObjectDeleteRetries: DefaultSpilledObjectDeleteRetries,
		VerboseSpillLogBytes:       0,
		IsExternalStorageFS:        true,
	}
}

// LoadConfig reads JSON config from path (if non-empty) and then applies
// LOM_-prefixed environment overrides, matching the corpus's preference
// for a JSON-tagged config struct with env override over a flags package.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read config file")
		}
		if err := jsoniter.Unmarshal(b, cfg); err != nil {
			return nil, errors.Wrap(err, "parse config file")
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := envInt64("LOM_MIN_SPILLING_SIZE"); ok {
		cfg.MinSpillingSize = v
	}
	if v, ok := envInt64("LOM_MAX_FUSED_OBJECT_COUNT"); ok {
		cfg.MaxFusedObjectCount = v
	}
	if v, ok := envInt64("LOM_MAX_ACTIVE_WORKERS"); ok {
		cfg.MaxActiveWorkers = v
	}
	if v, ok := envInt64("LOM_SPILLED_OBJECT_DELETE_RETRIES"); ok {
		cfg.SpilledObjectDeleteRetries = v
	}
	if v, ok := envInt64("LOM_VERBOSE_SPILL_LOG_BYTES"); ok {
		cfg.VerboseSpillLogBytes = v
	}
	if v, ok := os.LookupEnv("LOM_IS_EXTERNAL_STORAGE_FS"); ok {
		cfg.IsExternalStorageFS = v == "true" || v == "1"
	}
}

func envInt64(key string) (int64, bool) {
	s, ok := os.LookupEnv(key)
	if !ok || s == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
