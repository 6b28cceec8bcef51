// Package pipeline orchestrates the two phases of the daily statistics
// run: acquisition, which fills the raw observation cache, and processing,
// which reads only from that cache and writes daily regional tables.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"gridfusion/internal/aggregate"
	"gridfusion/internal/domain"
	"gridfusion/internal/observability"
	"gridfusion/internal/store"
)

// MappingBuilder produces the grid-to-region mapping, from cache or by
// spatially joining the coordinate and boundary sources.
type MappingBuilder interface {
	BuildMapping(forceRebuild bool) (*domain.Mapping, error)
}

// AcquisitionSource downloads one (date, variable) worth of observations.
type AcquisitionSource interface {
	FetchDay(ctx context.Context, date domain.Date, v domain.Variable, expectedN int) (domain.ObservationFrame, error)
}

// PointCounter reports the grid size without loading coordinates.
type PointCounter interface {
	Count() (int, error)
}

// Publisher pushes a finished daily table to a downstream sink.
type Publisher interface {
	PublishDaily(ctx context.Context, table *domain.DailyTable) error
}

// Unit identifies one (date, variable) work item.
type Unit struct {
	Date     domain.Date
	Variable string
}

func (u Unit) String() string { return string(u.Date) + "/" + u.Variable }

// Summary collects per-unit outcomes of a phase. A failed unit never aborts
// the run; it is recorded here and the remaining units continue.
type Summary struct {
	mu        sync.Mutex
	Processed []Unit
	Skipped   []Unit
	Failed    []Unit
	Errors    []error
}

func (s *Summary) processed(u Unit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Processed = append(s.Processed, u)
}

func (s *Summary) skipped(u Unit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Skipped = append(s.Skipped, u)
}

func (s *Summary) failed(u Unit, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Failed = append(s.Failed, u)
	s.Errors = append(s.Errors, fmt.Errorf("%s: %w", u, err))
}

// Sort orders each outcome list by date then variable for stable reporting.
func (s *Summary) Sort() {
	for _, list := range [][]Unit{s.Processed, s.Skipped, s.Failed} {
		sort.Slice(list, func(i, j int) bool {
			if list[i].Date != list[j].Date {
				return list[i].Date < list[j].Date
			}
			return list[i].Variable < list[j].Variable
		})
	}
}

// Orchestrator wires the mapping, acquisition, aggregation, and storage
// collaborators and runs them over date ranges with a bounded worker pool.
type Orchestrator struct {
	builder   MappingBuilder
	source    AcquisitionSource
	counter   PointCounter
	publisher Publisher // nil when publishing is disabled
	layout    store.Layout
	logger    *slog.Logger
	metrics   *observability.Metrics
	workers   int

	mu        sync.Mutex
	mapping   *domain.Mapping
	expectedN int
	ready     atomic.Bool
}

// New creates an Orchestrator. publisher may be nil.
func New(builder MappingBuilder, source AcquisitionSource, counter PointCounter, publisher Publisher, layout store.Layout, logger *slog.Logger, metrics *observability.Metrics, workers int) *Orchestrator {
	return &Orchestrator{
		builder:   builder,
		source:    source,
		counter:   counter,
		publisher: publisher,
		layout:    layout,
		logger:    logger,
		metrics:   metrics,
		workers:   workers,
	}
}

// CheckReadiness returns nil once the mapping has been loaded.
func (o *Orchestrator) CheckReadiness(_ context.Context) error {
	if !o.ready.Load() {
		return errors.New("grid-to-region mapping not loaded yet")
	}
	return nil
}

// MappingSize returns the grid point count and how many of those points fall
// inside a region, with ok=false until the mapping is loaded.
func (o *Orchestrator) MappingSize() (gridPoints, mapped int, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.mapping == nil {
		return 0, 0, false
	}
	return o.mapping.Len(), o.mapping.MappedCount(), true
}

// EnsureMapping loads or builds the mapping. It is idempotent: repeated
// calls without forceRebuild return the mapping already in memory. Mapping
// failures are fatal for the run; nothing downstream can proceed without it.
func (o *Orchestrator) EnsureMapping(forceRebuild bool) (*domain.Mapping, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.mapping != nil && !forceRebuild {
		return o.mapping, nil
	}
	mapping, err := o.builder.BuildMapping(forceRebuild)
	if err != nil {
		return nil, err
	}
	o.mapping = mapping
	o.ready.Store(true)
	return mapping, nil
}

// AcquireRange runs the acquisition phase over dates x variables. Cached
// units are skipped unless force is set; unavailable units (before a
// variable's start year, or out of season) are skipped; download failures
// mark the unit failed and the pool moves on.
func (o *Orchestrator) AcquireRange(ctx context.Context, dates []domain.Date, vars []domain.Variable, force bool) (*Summary, error) {
	expectedN, err := o.gridSize()
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	jobs := make(chan Unit)
	var wg sync.WaitGroup

	for range o.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range jobs {
				o.acquireUnit(ctx, u, expectedN, force, summary)
			}
		}()
	}

	for _, d := range dates {
		for _, v := range vars {
			jobs <- Unit{Date: d, Variable: v.Key}
		}
	}
	close(jobs)
	wg.Wait()

	summary.Sort()
	o.logger.Info("acquisition finished",
		"processed", len(summary.Processed), "skipped", len(summary.Skipped), "failed", len(summary.Failed))
	return summary, nil
}

func (o *Orchestrator) acquireUnit(ctx context.Context, u Unit, expectedN int, force bool, summary *Summary) {
	v, err := domain.VariableByKey(u.Variable)
	if err != nil {
		summary.failed(u, err)
		o.metrics.Units.WithLabelValues("acquire", "failed").Inc()
		return
	}
	if !v.AvailableOn(u.Date) {
		summary.skipped(u)
		o.metrics.Units.WithLabelValues("acquire", "skipped").Inc()
		return
	}
	if !force && store.ObservationExists(o.layout, u.Date, u.Variable) {
		o.logger.Debug("observations cached", "unit", u.String())
		summary.skipped(u)
		o.metrics.Units.WithLabelValues("acquire", "skipped").Inc()
		return
	}

	frame, err := o.source.FetchDay(ctx, u.Date, v, expectedN)
	if err != nil {
		o.logger.Error("acquisition failed", "unit", u.String(), "error", err)
		summary.failed(u, err)
		o.metrics.Units.WithLabelValues("acquire", "failed").Inc()
		return
	}
	path := o.layout.ObservationPath(u.Date, u.Variable)
	if err := store.WriteObservations(path, frame.Rows); err != nil {
		o.logger.Error("observation write failed", "unit", u.String(), "error", err)
		summary.failed(u, err)
		o.metrics.Units.WithLabelValues("acquire", "failed").Inc()
		return
	}
	summary.processed(u)
	o.metrics.Units.WithLabelValues("acquire", "processed").Inc()
}

// ProcessRange runs the processing phase over dates. It reads exclusively
// from the raw observation cache, never from the network: a missing unit
// is a skip, not a trigger to fetch. One output table is written per date
// covering whichever variables had cached observations.
func (o *Orchestrator) ProcessRange(ctx context.Context, dates []domain.Date, vars []domain.Variable) (*Summary, error) {
	mapping, err := o.EnsureMapping(false)
	if err != nil {
		return nil, err
	}
	agg := aggregate.NewSpatialAggregator(mapping)

	summary := &Summary{}
	jobs := make(chan domain.Date)
	var wg sync.WaitGroup

	for range o.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for d := range jobs {
				o.processDate(ctx, d, vars, agg, mapping, summary)
			}
		}()
	}

	for _, d := range dates {
		jobs <- d
	}
	close(jobs)
	wg.Wait()

	summary.Sort()
	o.logger.Info("processing finished",
		"processed", len(summary.Processed), "skipped", len(summary.Skipped), "failed", len(summary.Failed))
	return summary, nil
}

func (o *Orchestrator) processDate(ctx context.Context, d domain.Date, vars []domain.Variable, agg *aggregate.SpatialAggregator, mapping *domain.Mapping, summary *Summary) {
	var dayAggs []domain.RegionDailyAggregate
	// Units aggregated for this date count as processed only once the
	// date's output table is durable.
	var done []Unit

	for _, v := range vars {
		u := Unit{Date: d, Variable: v.Key}
		if !v.AvailableOn(d) {
			summary.skipped(u)
			o.metrics.Units.WithLabelValues("process", "skipped").Inc()
			continue
		}
		rows, err := store.ReadObservations(o.layout.ObservationPath(d, v.Key))
		if err != nil {
			if errors.Is(err, domain.ErrCacheMiss) {
				o.logger.Warn("observations not cached, skipping", "unit", u.String())
				summary.skipped(u)
				o.metrics.Units.WithLabelValues("process", "skipped").Inc()
				continue
			}
			o.logger.Error("observation read failed", "unit", u.String(), "error", err)
			summary.failed(u, err)
			o.metrics.Units.WithLabelValues("process", "failed").Inc()
			continue
		}
		frame := domain.ObservationFrame{Date: d, Variable: v.Key, Rows: rows}
		dayAggs = append(dayAggs, agg.Aggregate(frame, v)...)
		done = append(done, u)
	}

	if len(done) == 0 {
		return
	}

	table := aggregate.MergeVariables(d, dayAggs)
	aggregate.AttachRegionNames(table, mapping)

	path := o.layout.DailyOutputPath(d)
	if err := store.WriteDailyOutput(path, table); err != nil {
		o.logger.Error("daily output write failed", "date", d, "error", err)
		for _, u := range done {
			summary.failed(u, fmt.Errorf("write daily output: %w", err))
			o.metrics.Units.WithLabelValues("process", "failed").Inc()
		}
		return
	}
	for _, u := range done {
		summary.processed(u)
		o.metrics.Units.WithLabelValues("process", "processed").Inc()
	}
	o.metrics.PublishedRows.Add(float64(len(table.Rows)))
	o.logger.Info("daily table written", "date", d, "regions", len(table.Rows), "path", path)

	if o.publisher != nil {
		if err := o.publisher.PublishDaily(ctx, table); err != nil {
			// The parquet artifact is already durable; a sink outage is
			// logged rather than failing the date.
			o.logger.Error("daily publish failed", "date", d, "error", err)
		}
	}
}

func (o *Orchestrator) gridSize() (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.expectedN > 0 {
		return o.expectedN, nil
	}
	n, err := o.counter.Count()
	if err != nil {
		return 0, err
	}
	o.expectedN = n
	return n, nil
}
