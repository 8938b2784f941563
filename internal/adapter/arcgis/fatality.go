package arcgis

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/crash-injury-etl/internal/domain"
)

// FatalitySource fetches the authenticated Vision Zero fatality layer. It
// implements pipeline.FatalitySource.
type FatalitySource struct {
	client       *Client
	portalURL    string
	clientID     string
	clientSecret string
	itemID       string
	logger       *slog.Logger
}

// NewFatalitySource creates the fatality connector. The feature layer is
// resolved from the portal item id at fetch time, after authentication.
func NewFatalitySource(client *Client, portalURL, clientID, clientSecret, itemID string, logger *slog.Logger) *FatalitySource {
	return &FatalitySource{
		client:       client,
		portalURL:    portalURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		itemID:       itemID,
		logger:       logger,
	}
}

// FetchFatalities returns normalized fatality records with report date >=
// since. The hosted layer does not reliably support where clauses on its
// datetime field, so the cursor is applied client-side.
func (s *FatalitySource) FetchFatalities(ctx context.Context, since time.Time) ([]domain.CrashRecord, error) {
	token, err := s.client.RequestToken(ctx, s.portalURL, s.clientID, s.clientSecret)
	if err != nil {
		return nil, err
	}

	serviceURL, err := s.client.LookupItemURL(ctx, s.portalURL, s.itemID, token)
	if err != nil {
		return nil, &domain.FetchError{Source: domain.SourceFatality, Err: err}
	}

	rows, err := s.client.FetchAll(ctx, serviceURL+"/0/query", "1=1", token)
	if err != nil {
		return nil, &domain.FetchError{Source: domain.SourceFatality, Err: err}
	}

	records := filterSince(domain.NormalizeFatalityRows(rows), since)

	s.logger.Info("fatality source fetched", "features", len(rows), "records", len(records))
	return records, nil
}
