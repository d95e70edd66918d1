package config

// Defaults returns the default value for every configuration key.
// Keys mirror the Config struct layout.
func Defaults() map[string]any {
	return map[string]any{
		// Analysis scheduler
		"analysis.concurrency":      1,
		"analysis.cache_capacity":   30,
		"analysis.cache_key_policy": "mtime",
		"analysis.cancel_grace_ms":  500,

		// Batch queue
		"batch.debounce_ms":    500,
		"batch.drain_ms":       800,
		"batch.backoff_ms":     1000,
		"batch.chunk_delay_ms": 2000,
		"batch.chunk_size":     10,

		// Rendering
		"render.thumbnail_dpi": 72,
		"render.preview_dpi":   150,
		"render.preview_pages": 5,

		// Merge
		"merge.output_name": "merged.pdf",

		// Logging
		"log.level": "info",
	}
}

// DefaultConfig returns a fully populated Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Analysis: AnalysisConfig{
			Concurrency:    1,
			CacheCapacity:  30,
			CacheKeyPolicy: "mtime",
			CancelGraceMS:  500,
		},
		Batch: BatchConfig{
			DebounceMS:   500,
			DrainMS:      800,
			BackoffMS:    1000,
			ChunkDelayMS: 2000,
			ChunkSize:    10,
		},
		Render: RenderConfig{
			ThumbnailDPI: 72,
			PreviewDPI:   150,
			PreviewPages: 5,
		},
		Merge: MergeConfig{
			OutputName: "merged.pdf",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
