package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/crash-injury-etl/internal/domain"
	"github.com/couchcryptid/crash-injury-etl/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var runTime = time.Date(2024, time.May, 1, 6, 0, 0, 0, time.UTC)

type stubInjuries struct {
	records  []domain.CrashRecord
	err      error
	gotSince time.Time
}

func (s *stubInjuries) FetchInjuries(_ context.Context, since time.Time) ([]domain.CrashRecord, error) {
	s.gotSince = since
	return s.records, s.err
}

type stubFatalities struct {
	records  []domain.CrashRecord
	err      error
	gotSince time.Time
}

func (s *stubFatalities) FetchFatalities(_ context.Context, since time.Time) ([]domain.CrashRecord, error) {
	s.gotSince = since
	return s.records, s.err
}

type memCursor struct {
	cursor  time.Time
	saved   []time.Time
	saveErr error
}

func (c *memCursor) Load() (time.Time, error) { return c.cursor, nil }
func (c *memCursor) Save(t time.Time) error {
	if c.saveErr != nil {
		return c.saveErr
	}
	c.saved = append(c.saved, t)
	return nil
}

type stubLocator struct {
	ward string
}

func (l *stubLocator) Locate(_, _ float64) domain.GeoContext {
	ward := l.ward
	return domain.GeoContext{Ward: &ward}
}

type stubSnapshot struct {
	previous   []domain.CrashRecord
	written    []domain.EnrichedRecord
	lastRecord time.Time
	lastUpdate time.Time
	err        error
	writes     int
}

func (s *stubSnapshot) ReadPrevious() ([]domain.CrashRecord, error) {
	return s.previous, nil
}

func (s *stubSnapshot) WriteSnapshot(_ context.Context, records []domain.EnrichedRecord, lastRecord, lastUpdate time.Time) error {
	if s.err != nil {
		return s.err
	}
	s.writes++
	s.written = records
	s.lastRecord = lastRecord
	s.lastUpdate = lastUpdate
	return nil
}

func (s *stubSnapshot) Path() string { return "/tmp/crashes.parquet" }

type stubMirror struct {
	published []string
	err       error
}

func (m *stubMirror) Publish(_ context.Context, snapshotPath string) error {
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, snapshotPath)
	return nil
}

type stubSink struct {
	published [][]domain.EnrichedRecord
	err       error
}

func (s *stubSink) PublishRecords(_ context.Context, records []domain.EnrichedRecord) error {
	if s.err != nil {
		return s.err
	}
	s.published = append(s.published, records)
	return nil
}

func freezeClock(t *testing.T) {
	t.Helper()
	domain.SetClock(clockwork.NewFakeClockAt(runTime))
	t.Cleanup(func() { domain.SetClock(nil) })
}

func injuryRecord(id string, reportDate time.Time) domain.CrashRecord {
	return domain.CrashRecord{
		Source:     domain.SourceInjury,
		ID:         id,
		ReportDate: reportDate,
		Mode:       "Driver",
		Severity:   domain.SeverityMinor,
		Geo:        &domain.Geo{Lat: 38.9, Lon: -77.02},
	}
}

func fatalityRecord(id string, reportDate time.Time) domain.CrashRecord {
	return domain.CrashRecord{
		Source:     domain.SourceFatality,
		ID:         id,
		ReportDate: reportDate,
		Mode:       "Pedestrian",
		Severity:   domain.SeverityFatal,
		Geo:        &domain.Geo{Lat: 38.88, Lon: -76.99},
	}
}

type fixture struct {
	injuries   *stubInjuries
	fatalities *stubFatalities
	cursor     *memCursor
	snapshot   *stubSnapshot
	mirror     *stubMirror
	sink       *stubSink
}

func newFixture() *fixture {
	return &fixture{
		injuries: &stubInjuries{records: []domain.CrashRecord{
			injuryRecord("1", runTime.Add(-48*time.Hour)),
			injuryRecord("2", runTime.Add(-24*time.Hour)),
		}},
		fatalities: &stubFatalities{records: []domain.CrashRecord{
			fatalityRecord("7", runTime.Add(-72*time.Hour)),
		}},
		cursor:   &memCursor{cursor: runTime.Add(-30 * 24 * time.Hour)},
		snapshot: &stubSnapshot{},
		mirror:   &stubMirror{},
		sink:     &stubSink{},
	}
}

func (f *fixture) pipeline(scheduled bool) *Pipeline {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var sink RecordSink
	if f.sink != nil {
		sink = f.sink
	}
	return New(Stages{
		Injuries:   f.injuries,
		Fatalities: f.fatalities,
		Cursor:     f.cursor,
		Locator:    &stubLocator{ward: "6"},
		Snapshot:   f.snapshot,
		Mirror:     f.mirror,
		Sink:       sink,
	}, logger, observability.NewMetricsForTesting(), scheduled)
}

func TestRun_HappyPath(t *testing.T) {
	freezeClock(t)
	f := newFixture()

	result, err := f.pipeline(false).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.InjuryCount)
	assert.Equal(t, 1, result.FatalityCount)
	assert.Equal(t, 3, result.MergedCount)
	assert.Equal(t, 0, result.UnplacedCount)
	assert.True(t, result.Cursor.Equal(runTime.Add(-24*time.Hour)))

	// Sources see the persisted cursor.
	assert.True(t, f.injuries.gotSince.Equal(f.cursor.cursor))
	assert.True(t, f.fatalities.gotSince.Equal(f.cursor.cursor))

	// Snapshot is sorted newest-first and stamped with cursor and run time.
	require.Len(t, f.snapshot.written, 3)
	assert.Equal(t, "2", f.snapshot.written[0].ID)
	assert.Equal(t, "1", f.snapshot.written[1].ID)
	assert.Equal(t, "7", f.snapshot.written[2].ID)
	assert.True(t, f.snapshot.lastRecord.Equal(result.Cursor))
	assert.True(t, f.snapshot.lastUpdate.Equal(runTime))

	// Enrichment attached the locator's context.
	require.NotNil(t, f.snapshot.written[0].Ward)
	assert.Equal(t, "6", *f.snapshot.written[0].Ward)

	// Cursor saved once, then both publishers ran.
	require.Len(t, f.cursor.saved, 1)
	assert.True(t, f.cursor.saved[0].Equal(result.Cursor))
	assert.Equal(t, []string{"/tmp/crashes.parquet"}, f.mirror.published)
	require.Len(t, f.sink.published, 1)
	assert.Len(t, f.sink.published[0], 3)
}

func TestRun_FetchFailureAbortsBeforePublish(t *testing.T) {
	freezeClock(t)
	f := newFixture()
	f.injuries.err = &domain.FetchError{Source: domain.SourceInjury, Err: errors.New("boom")}

	_, err := f.pipeline(false).Run(context.Background())
	require.Error(t, err)

	var fetchErr *domain.FetchError
	assert.ErrorAs(t, err, &fetchErr)
	assert.Zero(t, f.snapshot.writes)
	assert.Empty(t, f.cursor.saved)
	assert.Empty(t, f.mirror.published)
}

func TestRun_StaleInjuryFeed(t *testing.T) {
	freezeClock(t)
	f := newFixture()
	f.injuries.records = []domain.CrashRecord{
		injuryRecord("1", runTime.Add(-45*24*time.Hour)),
	}

	_, err := f.pipeline(false).Run(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoRecentInjuries)
	assert.Zero(t, f.snapshot.writes)
}

func TestRun_NothingFetched(t *testing.T) {
	freezeClock(t)
	f := newFixture()
	f.injuries.records = nil
	f.fatalities.records = nil

	// The recency guard trips before the empty-merge check when the injury
	// source comes back empty.
	_, err := f.pipeline(false).Run(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoRecentInjuries)
	assert.Zero(t, f.snapshot.writes)
	assert.Empty(t, f.cursor.saved)
}

func TestRun_SecondRunRetainsPublishedHistory(t *testing.T) {
	freezeClock(t)

	// First run publishes two injuries and a fatality.
	f := newFixture()
	first, err := f.pipeline(true).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, f.snapshot.written, 3)

	prev := make([]domain.CrashRecord, len(f.snapshot.written))
	for i, rec := range f.snapshot.written {
		prev[i] = rec.CrashRecord
	}

	// Second run fetches only the delta since the saved cursor: one new
	// record and a fresher version of an already published one.
	updated := injuryRecord("2", runTime.Add(-12*time.Hour))
	updated.Mode = "Bicyclist"

	second := newFixture()
	second.cursor.cursor = first.Cursor
	second.snapshot.previous = prev
	second.injuries.records = []domain.CrashRecord{
		injuryRecord("3", runTime.Add(-6*time.Hour)),
		updated,
	}
	second.fatalities.records = nil

	result, err := second.pipeline(true).Run(context.Background())
	require.NoError(t, err)

	// The full table survives: carried rows plus the delta, duplicates
	// resolved in favor of the fresh fetch.
	assert.Equal(t, 3, result.PreviousCount)
	assert.Equal(t, 4, result.MergedCount)
	require.Len(t, second.snapshot.written, 4)

	ids := make([]string, len(second.snapshot.written))
	for i, rec := range second.snapshot.written {
		ids[i] = rec.ID
	}
	assert.Equal(t, []string{"3", "2", "1", "7"}, ids)
	assert.Equal(t, "Bicyclist", second.snapshot.written[1].Mode)
	assert.True(t, result.Cursor.Equal(runTime.Add(-6*time.Hour)))
}

func TestRun_QuietDeltaKeepsRecencyFromHistory(t *testing.T) {
	freezeClock(t)

	f := newFixture()
	f.snapshot.previous = []domain.CrashRecord{
		injuryRecord("1", runTime.Add(-48*time.Hour)),
	}
	f.cursor.cursor = runTime.Add(-48 * time.Hour)
	f.injuries.records = nil
	f.fatalities.records = nil

	// A manual run with nothing new upstream republishes the carried table;
	// the recency guard is satisfied by the history, not the empty delta.
	result, err := f.pipeline(false).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.MergedCount)
	require.Len(t, f.snapshot.written, 1)
	assert.Equal(t, "1", f.snapshot.written[0].ID)
}

func TestRun_ScheduledStaleCursor(t *testing.T) {
	freezeClock(t)
	f := newFixture()
	f.cursor.cursor = runTime.Add(-24 * time.Hour) // equals max report date

	_, err := f.pipeline(true).Run(context.Background())
	assert.ErrorIs(t, err, domain.ErrCursorUnchanged)
	assert.Zero(t, f.snapshot.writes)
	assert.Empty(t, f.cursor.saved)
}

func TestRun_ManualRunIgnoresStaleCursor(t *testing.T) {
	freezeClock(t)
	f := newFixture()
	f.cursor.cursor = runTime.Add(-24 * time.Hour)

	_, err := f.pipeline(false).Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, f.cursor.saved, 1)
}

func TestRun_SnapshotFailureKeepsCursor(t *testing.T) {
	freezeClock(t)
	f := newFixture()
	f.snapshot.err = errors.New("disk full")

	_, err := f.pipeline(false).Run(context.Background())
	require.Error(t, err)
	assert.Empty(t, f.cursor.saved)
	assert.Empty(t, f.mirror.published)
}

func TestRun_MirrorFailureDoesNotRollBackCursor(t *testing.T) {
	freezeClock(t)
	f := newFixture()
	f.mirror.err = &domain.PublishError{Target: "mirror", Err: errors.New("push rejected")}

	result, err := f.pipeline(false).Run(context.Background())
	require.Error(t, err)

	var pubErr *domain.PublishError
	assert.ErrorAs(t, err, &pubErr)

	// The cursor save happened and the sink still ran.
	assert.Len(t, f.cursor.saved, 1)
	assert.Len(t, f.sink.published, 1)
	assert.False(t, result.Cursor.IsZero())
}

func TestRun_BothPublishersFailJoinsErrors(t *testing.T) {
	freezeClock(t)
	f := newFixture()
	f.mirror.err = &domain.PublishError{Target: "mirror", Err: errors.New("push rejected")}
	f.sink.err = &domain.PublishError{Target: "kafka", Err: errors.New("broker down")}

	_, err := f.pipeline(false).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mirror")
	assert.Contains(t, err.Error(), "kafka")
}

func TestRun_NilSink(t *testing.T) {
	freezeClock(t)
	f := newFixture()
	f.sink = nil

	_, err := f.pipeline(false).Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, f.mirror.published, 1)
}

func TestRun_UnplacedRecordsCounted(t *testing.T) {
	freezeClock(t)
	f := newFixture()
	unplaced := injuryRecord("3", runTime.Add(-12*time.Hour))
	unplaced.Geo = nil
	f.injuries.records = append(f.injuries.records, unplaced)

	result, err := f.pipeline(false).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.UnplacedCount)

	// The unplaced record is first by report date and carries no context.
	require.Len(t, f.snapshot.written, 4)
	assert.Equal(t, "3", f.snapshot.written[0].ID)
	assert.Nil(t, f.snapshot.written[0].Ward)
}
