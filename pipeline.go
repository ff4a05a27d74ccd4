package logclean

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/davidvella/logclean/compactor"
	"github.com/davidvella/logclean/errdefs"
	"github.com/davidvella/logclean/extract"
	"github.com/davidvella/logclean/internal/logctx"
	"github.com/davidvella/logclean/materialize"
	"github.com/davidvella/logclean/metrics"
	"github.com/davidvella/logclean/partition"
	"github.com/davidvella/logclean/partition/strategy/timewindow"
	"github.com/davidvella/logclean/record"
	"github.com/davidvella/logclean/sorter"
	"github.com/davidvella/logclean/sstable"
	"github.com/davidvella/logclean/storage/local"
)

// Stats summarizes a run.
type Stats struct {
	RunID string
	// Lines is the number of source lines read, Skipped the malformed ones
	// among them.
	Lines      int
	Skipped    int
	Partitions int
	Written    int
	Duplicates int
	// Durations maps a stage name to the time it took.
	Durations map[string]time.Duration
}

// Pipeline cleans one log. A Pipeline must not run twice at the same time
// since runs share the working directory.
type Pipeline struct {
	opts  options
	store *local.Storage
}

// New returns a Pipeline configured by opts. Invalid options are reported
// as an *errdefs.ConfigError.
func New(opts ...Option) (*Pipeline, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if err := o.validate(); err != nil {
		return nil, err
	}
	if o.workDir == "" {
		dir, base := filepath.Split(o.output)
		o.workDir = filepath.Join(dir, "."+base+".logclean")
	}

	return &Pipeline{opts: o, store: local.NewLocalStorage(o.workDir)}, nil
}

func (o *options) validate() error {
	switch {
	case o.output == "":
		return errdefs.NewConfigError("output", "is required")
	case o.source != "" && filepath.Clean(o.source) == filepath.Clean(o.output):
		return errdefs.NewConfigError("output", "must differ from the source")
	case o.partitionSize <= 0:
		return errdefs.NewConfigError("partition_size", "must be positive, got %d", o.partitionSize)
	case o.partitionWindow < 0:
		return errdefs.NewConfigError("partition_window", "must not be negative, got %s", o.partitionWindow)
	case o.maxConcurrency <= 0:
		return errdefs.NewConfigError("max_concurrency", "must be positive, got %d", o.maxConcurrency)
	case o.memoryBudget == 0:
		return errdefs.NewConfigError("memory_budget", "must be positive")
	}

	if fits := o.memoryBudget / record.MaxFootprint; uint64(o.partitionSize) > fits {
		return errdefs.NewConfigError("partition_size",
			"a partition of %d records exceeds the memory budget of %s, which holds at most %d",
			o.partitionSize, bytefmt.ByteSize(o.memoryBudget), fits)
	}
	return nil
}

// WorkDir returns the directory holding intermediate files.
func (p *Pipeline) WorkDir() string {
	return p.store.Dir()
}

// Workers returns how many partitions are processed at once: the
// concurrency limit, lowered so that the partitions in flight fit in the
// memory budget, and at least one.
func (p *Pipeline) Workers() int {
	fits := p.opts.memoryBudget / record.MaxFootprint / uint64(p.opts.partitionSize)
	return int(max(1, min(uint64(p.opts.maxConcurrency), fits)))
}

// Run cleans the source log into the output file. The output is replaced
// only when the run succeeds.
func (p *Pipeline) Run(ctx context.Context) (Stats, error) {
	stats := newStats()
	ctx = p.withLogger(ctx, stats.RunID)

	if p.opts.source == "" {
		return stats, p.finish(ctx, &stats, errdefs.NewConfigError("source", "is required"))
	}

	logctx.FromContext(ctx).Info("starting run",
		slog.String("source", p.opts.source),
		slog.String("output", p.opts.output),
		slog.String("storage", p.store.String()),
		slog.Int("partition_size", p.opts.partitionSize),
		slog.String("memory_budget", bytefmt.ByteSize(p.opts.memoryBudget)),
		slog.Int("workers", p.Workers()))

	resumable, err := p.run(ctx, &stats)
	if err != nil && !resumable {
		if cerr := p.removeIntermediates(ctx); cerr != nil {
			logctx.FromContext(ctx).Warn("failed to remove intermediate files", slog.Any("error", cerr))
		}
	}
	return stats, p.finish(ctx, &stats, err)
}

// run returns whether the working directory holds enough to resume after
// a failure.
func (p *Pipeline) run(ctx context.Context, stats *Stats) (bool, error) {
	logger := logctx.FromContext(ctx)

	if err := p.removeIntermediates(ctx); err != nil {
		return false, err
	}
	if err := p.store.Init(ctx); err != nil {
		return false, err
	}

	var idx extract.Result
	err := p.timed(ctx, stats, StageExtract, func() (err error) {
		idx, err = extract.ExtractFile(ctx, p.opts.source, extract.Options{SkipMalformed: p.opts.skipMalformed})
		return err
	})
	if err != nil {
		return false, err
	}
	stats.Lines, stats.Skipped = idx.Lines, idx.Skipped
	metrics.RecordExtracted(ctx, len(idx.Entries))
	metrics.RecordSkipped(ctx, idx.Skipped)

	if need := uint64(len(idx.Entries)) * record.EntrySize; need > p.opts.memoryBudget {
		logger.Warn("key index is larger than the memory budget",
			slog.String("index", bytefmt.ByteSize(need)),
			slog.String("memory_budget", bytefmt.ByteSize(p.opts.memoryBudget)))
	}

	var partitions []partition.Partition
	err = p.timed(ctx, stats, StagePartition, func() (err error) {
		partitions, err = partition.Build(idx.Entries, p.opts.partitionSize, p.strategies()...)
		if err != nil {
			return err
		}
		return p.store.WriteManifest(ctx, local.Manifest{
			RunID:      stats.RunID,
			Source:     p.opts.source,
			Partitions: len(partitions),
			Lines:      idx.Lines,
			Skipped:    idx.Skipped,
		})
	})
	if err != nil {
		return false, err
	}
	stats.Partitions = len(partitions)

	if err := p.timed(ctx, stats, StageSort, func() error { return p.sortAll(ctx, partitions) }); err != nil {
		return true, err
	}

	return true, p.mergeAndCleanup(ctx, stats, len(partitions))
}

// Resume restarts a failed run from the sort or merge stage using the files
// left in the working directory.
func (p *Pipeline) Resume(ctx context.Context, from Stage) (Stats, error) {
	stats := newStats()
	ctx = p.withLogger(ctx, stats.RunID)

	err := p.resume(ctx, &stats, from)
	return stats, p.finish(ctx, &stats, err)
}

func (p *Pipeline) resume(ctx context.Context, stats *Stats, from Stage) error {
	if from != StageSort && from != StageMerge {
		return errdefs.NewConfigError("from", "cannot resume from %s, expected sort or merge", from)
	}

	m, err := p.store.ReadManifest(ctx)
	if err != nil {
		return err
	}
	stats.Lines, stats.Skipped, stats.Partitions = m.Lines, m.Skipped, m.Partitions

	logctx.FromContext(ctx).Info("resuming run",
		slog.String("from", from.String()),
		slog.String("resumed_run_id", m.RunID),
		slog.String("source", m.Source),
		slog.String("work_dir", p.opts.workDir),
		slog.Int("partitions", m.Partitions))

	if from == StageSort {
		if err := p.timed(ctx, stats, StageSort, func() error { return p.resortAll(ctx, m.Partitions) }); err != nil {
			return err
		}
	}

	return p.mergeAndCleanup(ctx, stats, m.Partitions)
}

func (p *Pipeline) mergeAndCleanup(ctx context.Context, stats *Stats, partitions int) error {
	if err := p.timed(ctx, stats, StageMerge, func() error { return p.merge(ctx, stats, partitions) }); err != nil {
		return err
	}

	// The output is published; a failed cleanup only leaves files behind.
	if p.opts.keepIntermediates {
		return nil
	}
	if err := p.timed(ctx, stats, StageCleanup, func() error { return p.removeIntermediates(ctx) }); err != nil {
		logctx.FromContext(ctx).Warn("failed to remove intermediate files",
			slog.String("work_dir", p.opts.workDir),
			slog.Any("error", err))
	}
	return nil
}

func (p *Pipeline) strategies() []partition.Strategy {
	if p.opts.partitionWindow > 0 {
		return []partition.Strategy{timewindow.NewStrategy(p.opts.partitionWindow)}
	}
	return nil
}

func (p *Pipeline) sortAll(ctx context.Context, partitions []partition.Partition) error {
	src, err := os.Open(p.opts.source)
	if err != nil {
		return errdefs.NewIOError("open", p.opts.source, errdefs.NoPartition, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return errdefs.NewIOError("stat", p.opts.source, errdefs.NoPartition, err)
	}
	m := materialize.New(src, info.Size(), p.store)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Workers())
	for _, part := range partitions {
		g.Go(func() error {
			pctx := logctx.With(gctx, slog.Int("partition", part.ID))
			if _, err := m.Materialize(pctx, part); err != nil {
				return err
			}
			return p.sortPartition(pctx, part.ID, part.Len())
		})
	}
	return g.Wait()
}

// resortAll sorts the raw partitions that have no sorted file yet.
func (p *Pipeline) resortAll(ctx context.Context, partitions int) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Workers())
	for id := range partitions {
		if p.store.Exists(ctx, local.Sorted, id) {
			continue
		}
		if !p.store.Exists(ctx, local.Raw, id) {
			return &errdefs.InvariantViolation{
				Partition: id,
				Detail:    "partition has neither a raw nor a sorted file, run again from the start",
			}
		}
		g.Go(func() error {
			return p.sortPartition(logctx.With(gctx, slog.Int("partition", id)), id, 0)
		})
	}
	return g.Wait()
}

func (p *Pipeline) sortPartition(ctx context.Context, id, sizeHint int) error {
	r, err := p.store.Open(ctx, local.Raw, id)
	if err != nil {
		return err
	}
	defer r.Close()

	w, err := p.store.Create(ctx, local.Sorted, id)
	if err != nil {
		return err
	}
	defer w.Close()

	res, err := sorter.Sort(ctx, id, r, w, sorter.Options{Dedup: p.opts.dedupPartitions, SizeHint: sizeHint})
	if err != nil {
		return err
	}
	if err := w.Commit(); err != nil {
		return err
	}

	metrics.RecordPartitionSorted(ctx)
	logctx.FromContext(ctx).Debug("partition sorted",
		slog.Int("records", res.Records),
		slog.Int("written", res.Written))

	if p.opts.keepIntermediates {
		return nil
	}
	return p.store.Delete(ctx, local.Raw, id)
}

func (p *Pipeline) merge(ctx context.Context, stats *Stats, partitions int) error {
	bounds, total, err := p.sortedBounds(ctx, partitions)
	if err != nil {
		return err
	}

	out, err := local.CreateOutput(ctx, p.opts.output, stats.RunID)
	if err != nil {
		return err
	}
	defer func() {
		if err := out.Abort(); err != nil {
			logctx.FromContext(ctx).Warn("failed to remove temporary output",
				slog.String("path", out.Path()),
				slog.Any("error", err))
		}
	}()

	cw := compactor.NewWriter(out)
	for _, group := range partition.Plan(bounds) {
		if err := p.mergeGroup(ctx, cw, group); err != nil {
			return err
		}
	}
	if err := cw.Flush(); err != nil {
		return err
	}

	res := cw.Result()
	if int64(res.Read) != total {
		return &errdefs.InvariantViolation{
			Partition: errdefs.NoPartition,
			Expected:  fmt.Sprintf("%d records", total),
			Actual:    fmt.Sprintf("%d records", res.Read),
			Detail:    "merge did not read every sorted record",
		}
	}
	if err := out.Publish(ctx); err != nil {
		return err
	}

	stats.Written, stats.Duplicates = res.Written, res.Duplicates
	metrics.RecordWritten(ctx, res.Written)
	metrics.RecordDuplicates(ctx, res.Duplicates)
	return nil
}

// sortedBounds checks that every partition has a sorted file and returns
// the key bounds of the non-empty ones and the number of records they hold.
func (p *Pipeline) sortedBounds(ctx context.Context, partitions int) ([]partition.Bounds, int64, error) {
	ids, err := p.store.List(ctx, local.Sorted)
	if err != nil {
		return nil, 0, err
	}

	for id := range partitions {
		if id >= len(ids) || ids[id] != id {
			return nil, 0, &errdefs.InvariantViolation{
				Partition: id,
				Detail:    "sorted partition file missing",
			}
		}
	}
	if len(ids) != partitions {
		return nil, 0, &errdefs.InvariantViolation{
			Partition: ids[partitions],
			Detail:    fmt.Sprintf("unexpected sorted partition file, the run has %d partitions", partitions),
		}
	}

	var total int64
	bounds := make([]partition.Bounds, 0, partitions)
	for _, id := range ids {
		path := p.store.Path(local.Sorted, id)
		r, err := sstable.OpenReaderFile(path, nil)
		if err != nil {
			return nil, 0, errdefs.NewIOError("open", path, id, err)
		}
		total += r.Count()
		first, last, ok := r.Bounds()
		if err := r.Close(); err != nil {
			return nil, 0, errdefs.NewIOError("close", path, id, err)
		}
		if ok {
			bounds = append(bounds, partition.Bounds{ID: id, First: first, Last: last})
		}
	}
	return bounds, total, nil
}

func (p *Pipeline) mergeGroup(ctx context.Context, cw *compactor.Writer, group []partition.Bounds) (err error) {
	readers := make([]*sstable.TableReader, 0, len(group))
	defer func() {
		var errs *multierror.Error
		for i, r := range readers {
			if cerr := r.Close(); cerr != nil {
				errs = multierror.Append(errs, errdefs.NewIOError("close", p.store.Path(local.Sorted, group[i].ID), group[i].ID, cerr))
			}
		}
		if err == nil {
			err = errs.ErrorOrNil()
		}
	}()

	inputs := make([]compactor.Input, 0, len(group))
	for _, b := range group {
		path := p.store.Path(local.Sorted, b.ID)
		r, err := sstable.OpenReaderFile(path, nil)
		if err != nil {
			return errdefs.NewIOError("open", path, b.ID, err)
		}
		readers = append(readers, r)
		inputs = append(inputs, compactor.Input{ID: b.ID, Seq: r})
	}

	if len(group) > 1 {
		logctx.FromContext(ctx).Debug("merging partitions sharing a key",
			slog.Int("first", group[0].ID),
			slog.Int("last", group[len(group)-1].ID),
			slog.Uint64("key", group[0].Last))
	}
	return cw.Merge(ctx, inputs...)
}

func (p *Pipeline) removeIntermediates(ctx context.Context) error {
	var errs *multierror.Error
	for _, stage := range []local.Stage{local.Raw, local.Sorted} {
		if err := p.store.Clear(ctx, stage); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if err := p.store.RemoveManifest(ctx); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := p.store.RemoveDir(ctx); err != nil {
		errs = multierror.Append(errs, err)
	}
	return errs.ErrorOrNil()
}

func (p *Pipeline) withLogger(ctx context.Context, runID string) context.Context {
	logger := p.opts.logger
	if logger == nil {
		logger = logctx.FromContext(ctx)
	}
	return logctx.WithLogger(ctx, logger.With(slog.String("run_id", runID)))
}

// timed runs fn as stage, recording its duration.
func (p *Pipeline) timed(ctx context.Context, stats *Stats, stage Stage, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	stats.Durations[stage.String()] = elapsed
	metrics.RecordStageDuration(ctx, stage.String(), elapsed)
	if err != nil {
		return fmt.Errorf("%s: %w", stage, err)
	}

	logctx.FromContext(ctx).Info("stage complete",
		slog.String("stage", stage.String()),
		slog.Duration("duration", elapsed))
	return nil
}

func (p *Pipeline) finish(ctx context.Context, stats *Stats, err error) error {
	logger := logctx.FromContext(ctx)
	if err != nil {
		logger.Error("run failed",
			slog.String("kind", errdefs.Kind(err)),
			slog.String("work_dir", p.opts.workDir),
			slog.Any("error", err))
		return err
	}

	logger.Info("run complete",
		slog.Int("lines", stats.Lines),
		slog.Int("skipped", stats.Skipped),
		slog.Int("partitions", stats.Partitions),
		slog.Int("written", stats.Written),
		slog.Int("duplicates", stats.Duplicates))
	return nil
}

func newStats() Stats {
	return Stats{
		RunID:     uuid.New().String(),
		Durations: make(map[string]time.Duration),
	}
}
