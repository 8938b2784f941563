package domain

import (
	"sort"
	"time"
)

// BoundaryLocator resolves a WGS-84 coordinate to the boundary ids that
// contain it. Implementations return nil fields for layers with no match.
type BoundaryLocator interface {
	Locate(lat, lon float64) GeoContext
}

// EnrichRecords attaches a GeoContext to every record. Records without a
// usable coordinate keep an all-nil context rather than being dropped.
func EnrichRecords(records []CrashRecord, locator BoundaryLocator) []EnrichedRecord {
	enriched := make([]EnrichedRecord, 0, len(records))
	for _, rec := range records {
		e := EnrichedRecord{CrashRecord: rec}
		if rec.Geo != nil {
			e.GeoContext = locator.Locate(rec.Geo.Lat, rec.Geo.Lon)
		}
		enriched = append(enriched, e)
	}
	return enriched
}

// SortForSnapshot orders records by report date descending, with a
// (source, id) tiebreak so identical inputs always serialize to identical
// snapshot bytes.
func SortForSnapshot(records []EnrichedRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.ReportDate.Equal(b.ReportDate) {
			return a.ReportDate.After(b.ReportDate)
		}
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		return a.ID < b.ID
	})
}

// Now exposes the package clock so callers can stamp run-level fields
// (LAST_UPDATE) through the same swappable time source used by enrichment.
func Now() time.Time {
	return clock.Now()
}
