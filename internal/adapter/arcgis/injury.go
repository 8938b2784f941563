package arcgis

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/crash-injury-etl/internal/domain"
)

// InjurySource fetches the public crash point and crash detail tables and
// joins them into normalized injury records. It implements
// pipeline.InjurySource.
type InjurySource struct {
	client     *Client
	pointsURL  string
	detailsURL string
	logger     *slog.Logger
}

// NewInjurySource creates the injury connector over the two DC GIS tables.
func NewInjurySource(client *Client, pointsURL, detailsURL string, logger *slog.Logger) *InjurySource {
	return &InjurySource{
		client:     client,
		pointsURL:  pointsURL,
		detailsURL: detailsURL,
		logger:     logger,
	}
}

// FetchInjuries returns normalized injury records with report date >= since.
// The point table supports a server-side REPORTDATE filter; the detail table
// has no timestamp column, so it is fetched whole and trimmed by the join.
func (s *InjurySource) FetchInjuries(ctx context.Context, since time.Time) ([]domain.CrashRecord, error) {
	points, err := s.client.FetchAll(ctx, s.pointsURL, whereSince("REPORTDATE", since), "")
	if err != nil {
		return nil, &domain.FetchError{Source: domain.SourceInjury, Err: err}
	}

	details, err := s.client.FetchAll(ctx, s.detailsURL, "1=1", "")
	if err != nil {
		return nil, &domain.FetchError{Source: domain.SourceInjury, Err: err}
	}

	records := domain.NormalizeInjuryRows(points, details)
	records = filterSince(records, since)

	s.logger.Info("injury source fetched",
		"points", len(points),
		"details", len(details),
		"records", len(records),
	)
	return records, nil
}

// filterSince enforces the cursor contract client-side as well: every
// returned record satisfies report date >= since regardless of how much the
// server honored the where clause.
func filterSince(records []domain.CrashRecord, since time.Time) []domain.CrashRecord {
	if since.IsZero() {
		return records
	}
	kept := records[:0]
	for _, r := range records {
		if !r.ReportDate.Before(since) {
			kept = append(kept, r)
		}
	}
	return kept
}
