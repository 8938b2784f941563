package arcgis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/crash-injury-etl/internal/domain"
	"github.com/go-resty/resty/v2"
)

// Client queries ESRI REST feature endpoints. It handles pagination and the
// API's habit of returning errors inside a 200 response. It does not retry;
// a run that cannot reach a source should fail loudly.
type Client struct {
	http   *resty.Client
	logger *slog.Logger
}

// NewClient creates an ArcGIS REST client with the given request timeout.
func NewClient(timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		http:   resty.New().SetTimeout(timeout),
		logger: logger,
	}
}

// ESRI REST API response types.

type queryResponse struct {
	Features []struct {
		Attributes map[string]any `json:"attributes"`
		Geometry   *pointGeometry `json:"geometry"`
	} `json:"features"`
	MaxRecordCount        int        `json:"maxRecordCount"`
	ExceededTransferLimit bool       `json:"exceededTransferLimit"`
	Error                 *esriError `json:"error"`
}

type pointGeometry struct {
	X float64 `json:"x"` // longitude
	Y float64 `json:"y"` // latitude
}

type esriError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// FetchAll pages through a query endpoint and returns every feature's
// attributes, advancing resultOffset until a short page. Point geometries are
// folded into the attribute map as LATITUDE/LONGITUDE when the row itself
// lacks those fields.
func (c *Client) FetchAll(ctx context.Context, endpoint, where, token string) ([]domain.RawRow, error) {
	var rows []domain.RawRow
	offset := 0

	for {
		params := map[string]string{
			"where":        where,
			"outFields":    "*",
			"outSR":        "4326",
			"f":            "json",
			"resultOffset": strconv.Itoa(offset),
		}
		if token != "" {
			params["token"] = token
		}

		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParams(params).
			Get(endpoint)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", endpoint, err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("query %s: status %d: %s", endpoint, resp.StatusCode(), resp.String())
		}

		// The API reports f=json responses as text/plain, so decode manually.
		var out queryResponse
		if err := json.Unmarshal(resp.Body(), &out); err != nil {
			return nil, fmt.Errorf("query %s: decode response: %w", endpoint, err)
		}
		if out.Error != nil {
			return nil, fmt.Errorf("query %s: arcgis error %d: %s", endpoint, out.Error.Code, out.Error.Message)
		}
		if len(out.Features) == 0 {
			break
		}

		for _, f := range out.Features {
			row := domain.RawRow(f.Attributes)
			if row == nil {
				row = domain.RawRow{}
			}
			if f.Geometry != nil {
				if _, ok := row["LATITUDE"]; !ok {
					row["LATITUDE"] = f.Geometry.Y
				}
				if _, ok := row["LONGITUDE"]; !ok {
					row["LONGITUDE"] = f.Geometry.X
				}
			}
			rows = append(rows, row)
		}

		c.logger.Debug("fetched feature page",
			"endpoint", endpoint,
			"page_size", len(out.Features),
			"total", len(rows),
		)

		pageLimit := out.MaxRecordCount
		if pageLimit == 0 {
			pageLimit = len(out.Features)
		}
		if len(out.Features) < pageLimit && !out.ExceededTransferLimit {
			break
		}
		offset += len(out.Features)
	}

	return rows, nil
}

// whereSince builds the server-side incremental filter for endpoints whose
// rows carry the given timestamp field. A zero cursor fetches everything.
func whereSince(field string, since time.Time) string {
	if since.IsZero() {
		return "1=1"
	}
	return fmt.Sprintf("%s >= TIMESTAMP '%s'", field, since.UTC().Format("2006-01-02 15:04:05"))
}
