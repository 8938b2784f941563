// Package pipeline orchestrates one ETL run: fetch both crash sources since
// the cursor, merge and enrich, write the snapshot, then publish.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/couchcryptid/crash-injury-etl/internal/domain"
	"github.com/couchcryptid/crash-injury-etl/internal/observability"
)

// InjurySource fetches normalized injury records with report date >= since.
type InjurySource interface {
	FetchInjuries(ctx context.Context, since time.Time) ([]domain.CrashRecord, error)
}

// FatalitySource fetches normalized fatality records with report date >= since.
type FatalitySource interface {
	FetchFatalities(ctx context.Context, since time.Time) ([]domain.CrashRecord, error)
}

// CursorStore persists the incremental fetch cursor between runs.
type CursorStore interface {
	Load() (time.Time, error)
	Save(cursor time.Time) error
}

// SnapshotWriter writes the full enriched table to the snapshot file and
// reads back the previously published rows so a delta fetch can rebuild the
// complete table.
type SnapshotWriter interface {
	WriteSnapshot(ctx context.Context, records []domain.EnrichedRecord, lastRecord, lastUpdate time.Time) error
	ReadPrevious() ([]domain.CrashRecord, error)
	Path() string
}

// Publisher pushes the written snapshot downstream.
type Publisher interface {
	Publish(ctx context.Context, snapshotPath string) error
}

// RecordSink receives the enriched records as a side feed. Optional.
type RecordSink interface {
	PublishRecords(ctx context.Context, records []domain.EnrichedRecord) error
}

// Stages wires the pipeline's collaborators. Sink may be nil.
type Stages struct {
	Injuries   InjurySource
	Fatalities FatalitySource
	Cursor     CursorStore
	Locator    domain.BoundaryLocator
	Snapshot   SnapshotWriter
	Mirror     Publisher
	Sink       RecordSink
}

// Result summarizes a completed run. InjuryCount and FatalityCount are the
// freshly fetched records; MergedCount is the full published table including
// rows carried over from the previous snapshot.
type Result struct {
	InjuryCount   int
	FatalityCount int
	PreviousCount int
	MergedCount   int
	UnplacedCount int
	Cursor        time.Time
	SnapshotPath  string
}

// Pipeline runs the crash ETL once per invocation; scheduling lives outside
// the process.
type Pipeline struct {
	stages    Stages
	logger    *slog.Logger
	metrics   *observability.Metrics
	scheduled bool
}

// New creates a Pipeline. scheduled enables the stale-cursor guard, which only
// makes sense for unattended runs.
func New(stages Stages, logger *slog.Logger, metrics *observability.Metrics, scheduled bool) *Pipeline {
	return &Pipeline{
		stages:    stages,
		logger:    logger,
		metrics:   metrics,
		scheduled: scheduled,
	}
}

// Run executes one fetch-merge-enrich-publish cycle. The cursor is read once
// at the start and written once after the snapshot; the mirror push and record
// sink run after the cursor save and never roll it back. The returned Result
// is valid whenever the snapshot was written, even if a publish step failed.
//
// The sources are fetched incrementally from the cursor, but the published
// file is always the full table: the previous snapshot's rows are merged back
// in before writing, with freshly fetched versions winning on conflict.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	since, err := p.stages.Cursor.Load()
	if err != nil {
		return Result{}, err
	}
	p.logger.Info("run started", "cursor", since, "scheduled", p.scheduled)

	previous, err := p.stages.Snapshot.ReadPrevious()
	if err != nil {
		return Result{}, err
	}

	injuries, err := p.fetchInjuries(ctx, since)
	if err != nil {
		return Result{}, err
	}
	fatalities, err := p.fetchFatalities(ctx, since)
	if err != nil {
		return Result{}, err
	}

	if err := p.verifyRecentInjuries(previous, injuries); err != nil {
		return Result{}, err
	}

	merged := domain.Merge(previous, injuries, fatalities)
	if len(merged) == 0 {
		return Result{}, domain.ErrNoRecords
	}
	duplicates := len(previous) + len(injuries) + len(fatalities) - len(merged)
	p.metrics.RecordsDropped.WithLabelValues("duplicate").Add(float64(duplicates))

	newCursor := domain.MaxReportDate(merged)
	if p.scheduled && !newCursor.After(since) {
		return Result{}, domain.ErrCursorUnchanged
	}

	enriched := p.enrich(merged)
	domain.SortForSnapshot(enriched)

	result := Result{
		InjuryCount:   len(injuries),
		FatalityCount: len(fatalities),
		PreviousCount: len(previous),
		MergedCount:   len(merged),
		UnplacedCount: countUnplaced(enriched),
		Cursor:        newCursor,
		SnapshotPath:  p.stages.Snapshot.Path(),
	}

	if err := p.writeSnapshot(ctx, enriched, newCursor); err != nil {
		return Result{}, err
	}
	p.metrics.SnapshotRows.Set(float64(len(enriched)))

	if err := p.stages.Cursor.Save(newCursor); err != nil {
		return result, err
	}
	p.metrics.CursorTimestamp.Set(float64(newCursor.Unix()))

	// Publish side effects are independent: a mirror failure does not skip
	// the sink, and neither rolls back the saved cursor.
	var publishErrs []error
	if err := p.publishMirror(ctx, result.SnapshotPath); err != nil {
		publishErrs = append(publishErrs, err)
	}
	if p.stages.Sink != nil {
		if err := p.publishRecords(ctx, enriched); err != nil {
			publishErrs = append(publishErrs, err)
		}
	}
	if len(publishErrs) > 0 {
		return result, errors.Join(publishErrs...)
	}

	p.metrics.LastSuccess.SetToCurrentTime()
	p.logger.Info("run completed",
		"injuries", result.InjuryCount,
		"fatalities", result.FatalityCount,
		"carried", result.PreviousCount,
		"rows", result.MergedCount,
		"unplaced", result.UnplacedCount,
		"cursor", result.Cursor,
	)
	return result, nil
}

// verifyRecentInjuries applies the staleness guard over the full injury
// table. Carried-over snapshot rows count toward recency, so a delta run
// with nothing new upstream does not trip the guard unless the feed has
// actually been silent past the window.
func (p *Pipeline) verifyRecentInjuries(previous, fresh []domain.CrashRecord) error {
	all := make([]domain.CrashRecord, 0, len(previous)+len(fresh))
	for _, r := range previous {
		if r.Source == domain.SourceInjury {
			all = append(all, r)
		}
	}
	all = append(all, fresh...)
	return domain.VerifyRecentInjuries(all)
}

func (p *Pipeline) fetchInjuries(ctx context.Context, since time.Time) ([]domain.CrashRecord, error) {
	stop := p.stageTimer("fetch_injuries")
	defer stop()

	records, err := p.stages.Injuries.FetchInjuries(ctx, since)
	if err != nil {
		return nil, err
	}
	p.metrics.RecordsFetched.WithLabelValues(domain.SourceInjury).Add(float64(len(records)))
	return records, nil
}

func (p *Pipeline) fetchFatalities(ctx context.Context, since time.Time) ([]domain.CrashRecord, error) {
	stop := p.stageTimer("fetch_fatalities")
	defer stop()

	records, err := p.stages.Fatalities.FetchFatalities(ctx, since)
	if err != nil {
		return nil, err
	}
	p.metrics.RecordsFetched.WithLabelValues(domain.SourceFatality).Add(float64(len(records)))
	return records, nil
}

func (p *Pipeline) enrich(merged []domain.CrashRecord) []domain.EnrichedRecord {
	stop := p.stageTimer("spatial_join")
	defer stop()

	enriched := domain.EnrichRecords(merged, p.stages.Locator)
	for _, rec := range enriched {
		if rec.Geo == nil {
			p.metrics.RecordsUnplaced.Inc()
			continue
		}
		if rec.Ward != nil {
			p.metrics.LayerMatches.WithLabelValues("ward").Inc()
		}
		if rec.ANC != nil {
			p.metrics.LayerMatches.WithLabelValues("anc").Inc()
		}
		if rec.SMD != nil {
			p.metrics.LayerMatches.WithLabelValues("smd").Inc()
		}
		if rec.GridID != nil {
			p.metrics.LayerMatches.WithLabelValues("hexgrid").Inc()
		}
	}
	return enriched
}

func (p *Pipeline) writeSnapshot(ctx context.Context, enriched []domain.EnrichedRecord, cursor time.Time) error {
	stop := p.stageTimer("write_snapshot")
	defer stop()
	return p.stages.Snapshot.WriteSnapshot(ctx, enriched, cursor, domain.Now())
}

func (p *Pipeline) publishMirror(ctx context.Context, snapshotPath string) error {
	stop := p.stageTimer("publish_mirror")
	defer stop()

	if err := p.stages.Mirror.Publish(ctx, snapshotPath); err != nil {
		p.logger.Error("mirror publish failed", "error", err)
		return err
	}
	return nil
}

func (p *Pipeline) publishRecords(ctx context.Context, enriched []domain.EnrichedRecord) error {
	stop := p.stageTimer("publish_records")
	defer stop()

	if err := p.stages.Sink.PublishRecords(ctx, enriched); err != nil {
		p.logger.Error("record sink publish failed", "error", err)
		return err
	}
	return nil
}

func (p *Pipeline) stageTimer(stage string) func() {
	start := time.Now()
	return func() {
		p.metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}

func countUnplaced(records []domain.EnrichedRecord) int {
	n := 0
	for _, r := range records {
		if r.Geo == nil {
			n++
		}
	}
	return n
}
