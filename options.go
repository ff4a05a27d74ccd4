package logclean

import (
	"log/slog"
	"runtime"
	"time"
)

const (
	DefaultPartitionSize = 100_000
	DefaultMemoryBudget  = 1 << 30
)

// options defines all configuration options for the pipeline.
type options struct {
	source  string
	output  string
	workDir string

	// Partitioning options
	partitionSize   int           // Maximum records per partition
	partitionWindow time.Duration // Maximum key span per partition, 0 for none

	// Resource options
	memoryBudget   uint64 // Bytes available to partitions sorted at the same time
	maxConcurrency int    // Maximum number of partitions processed at once

	skipMalformed     bool
	dedupPartitions   bool
	keepIntermediates bool

	logger *slog.Logger
}

// Option is a function that configures the pipeline options.
type Option func(*options)

// WithSource sets the raw log to clean.
func WithSource(path string) Option {
	return func(o *options) {
		o.source = path
	}
}

// WithOutput sets the path of the cleaned log.
func WithOutput(path string) Option {
	return func(o *options) {
		o.output = path
	}
}

// WithWorkDir sets the directory holding intermediate partition files. It
// defaults to a hidden directory next to the output.
func WithWorkDir(dir string) Option {
	return func(o *options) {
		o.workDir = dir
	}
}

// WithPartitionSize sets the maximum number of records per partition.
func WithPartitionSize(n int) Option {
	return func(o *options) {
		o.partitionSize = n
	}
}

// WithPartitionWindow closes a partition once its keys span more than d
// seconds.
func WithPartitionWindow(d time.Duration) Option {
	return func(o *options) {
		o.partitionWindow = d
	}
}

// WithMemoryBudget sets the memory, in bytes, that partitions being sorted
// may use together.
func WithMemoryBudget(bytes uint64) Option {
	return func(o *options) {
		o.memoryBudget = bytes
	}
}

// WithMaxConcurrency sets the maximum number of partitions processed at
// once.
func WithMaxConcurrency(m int) Option {
	return func(o *options) {
		o.maxConcurrency = m
	}
}

// WithSkipMalformed drops malformed source lines instead of failing.
func WithSkipMalformed(skip bool) Option {
	return func(o *options) {
		o.skipMalformed = skip
	}
}

// WithDedupPartitions removes duplicates while sorting each partition.
func WithDedupPartitions(dedup bool) Option {
	return func(o *options) {
		o.dedupPartitions = dedup
	}
}

// WithKeepIntermediates keeps partition files after a successful run.
func WithKeepIntermediates(keep bool) Option {
	return func(o *options) {
		o.keepIntermediates = keep
	}
}

// WithLogger sets the logger. Without it, the logger carried by the context
// passed to Run is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// defaultOptions returns the default configuration.
func defaultOptions() options {
	return options{
		partitionSize:  DefaultPartitionSize,
		memoryBudget:   DefaultMemoryBudget,
		maxConcurrency: runtime.GOMAXPROCS(0),
	}
}
