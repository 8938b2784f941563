package domain

import (
	"strconv"
	"strings"
	"time"
)

// reportLocation is the timezone the district publishes report dates in.
// Falls back to UTC when the tz database is unavailable.
var reportLocation = func() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.UTC
	}
	return loc
}()

// fatalityModes relabels the fatality layer's lowercase vehicle_type values to
// the display vocabulary shared with the injury source. Values not in the map
// pass through unchanged.
var fatalityModes = map[string]string{
	"pedestrian": "Pedestrian",
	"driver":     "Driver",
	"motorcycle": "Motorcyclist*",
	"passenger":  "Passenger",
	"bicyclist":  "Bicyclist",
	"sco":        "Scooter*",
	"unknown":    "Unknown",
}

// NormalizeInjuryRows joins the crash point and crash detail tables on CRIMEID
// and converts the result to CrashRecords. The detail table holds one row per
// involved person; the point table contributes the report date, address, and
// coordinates. Detail rows without a matching point (and therefore without a
// timestamp) are dropped, as are rows whose injury flags resolve to no injury.
func NormalizeInjuryRows(points, details []RawRow) []CrashRecord {
	byCrime := make(map[string]RawRow, len(points))
	for _, p := range points {
		if id := rowString(p, "CRIMEID"); id != "" {
			byCrime[id] = p
		}
	}

	records := make([]CrashRecord, 0, len(details))
	for _, d := range details {
		severity, injured := injurySeverity(d)
		if !injured {
			continue
		}

		point, ok := byCrime[rowString(d, "CRIMEID")]
		if !ok {
			continue
		}

		id := rowString(d, "OBJECTID")
		reportDate := rowEpochMillis(point, "REPORTDATE")
		if id == "" && reportDate.IsZero() {
			continue
		}
		if reportDate.IsZero() {
			// No timestamp means the row cannot participate in cursoring.
			continue
		}

		records = append(records, CrashRecord{
			Source:     SourceInjury,
			ID:         id,
			CrimeID:    rowString(d, "CRIMEID"),
			CCN:        rowString(d, "CCN"),
			ReportDate: reportDate,
			Mode:       rowString(d, "PERSONTYPE"),
			Severity:   severity,
			Age:        rowFloat(d, "AGE"),
			Address:    rowString(point, "ADDRESS"),
			Geo:        rowGeo(point),

			PersonID:          rowString(d, "PERSONID"),
			FatalFlag:         rowString(d, "FATAL"),
			VehicleID:         rowString(d, "VEHICLEID"),
			InVehicleType:     rowString(d, "INVEHICLETYPE"),
			TicketIssued:      rowString(d, "TICKETISSUED"),
			LicensePlateState: rowString(d, "LICENSEPLATESTATE"),
			Impaired:          rowString(d, "IMPAIRED"),
			Speeding:          rowString(d, "SPEEDING"),

			RouteID:      rowString(point, "ROUTEID"),
			StreetSegID:  rowString(point, "STREETSEGID"),
			RoadwaySegID: rowString(point, "ROADWAYSEGID"),
			EventID:      rowString(point, "EVENTID"),
			BlockKey:     rowString(point, "BLOCKKEY"),
			SubBlockKey:  rowString(point, "SUBBLOCKKEY"),
			CorridorID:   rowString(point, "CORRIDORID"),
		})
	}
	return records
}

// NormalizeFatalityRows converts fatality layer features to CrashRecords.
// Every fatality row carries severity Fatal; the mode vocabulary is relabeled
// to match the injury source.
func NormalizeFatalityRows(rows []RawRow) []CrashRecord {
	records := make([]CrashRecord, 0, len(rows))
	for _, r := range rows {
		id := rowString(r, "objectid")
		reportDate := rowEpochMillis(r, "datetime")
		if id == "" && reportDate.IsZero() {
			continue
		}
		if reportDate.IsZero() {
			continue
		}

		mode := rowString(r, "vehicle_type")
		if relabeled, ok := fatalityModes[strings.ToLower(mode)]; ok {
			mode = relabeled
		}

		records = append(records, CrashRecord{
			Source:     SourceFatality,
			ID:         id,
			CCN:        rowString(r, "ccn"),
			ReportDate: reportDate,
			Mode:       mode,
			Severity:   SeverityFatal,
			Age:        rowFloat(r, "age_years"),
			Address:    rowString(r, "address_location"),
			Geo:        rowGeo(r),

			StrikingVehicle:       rowString(r, "crash_type"),
			SecondStrikingVehicle: rowString(r, "second_striking_vehicleobject"),
			SiteVisitStatus:       rowString(r, "site_visit"),
			FactorsDiscussed:      rowString(r, "factors_discussed_at_site"),
			ActionsPlanned:        rowString(r, "actions_planned_completed"),
			ActionsConsidered:     rowString(r, "actions_under_consideration"),
		})
	}
	return records
}

// injurySeverity derives the severity label from the detail row's injury
// flags. The minor flag wins when both are set, matching the upstream
// dashboard's precedence. The second return is false for uninjured persons,
// whose rows are excluded from the snapshot.
func injurySeverity(row RawRow) (string, bool) {
	switch {
	case rowString(row, "MINORINJURY") == "Y":
		return SeverityMinor, true
	case rowString(row, "MAJORINJURY") == "Y":
		return SeverityMajor, true
	default:
		return "", false
	}
}

// Merge concatenates normalized tables and deduplicates by (source, id). When
// two records share a key, the one with the later report date wins; on equal
// dates the later-fetched record wins. Input order is preserved for the
// surviving records, so merging a table with itself is a no-op.
func Merge(tables ...[]CrashRecord) []CrashRecord {
	index := make(map[string]int)
	var merged []CrashRecord
	for _, table := range tables {
		for _, rec := range table {
			i, seen := index[rec.Key()]
			if !seen {
				index[rec.Key()] = len(merged)
				merged = append(merged, rec)
				continue
			}
			if !rec.ReportDate.Before(merged[i].ReportDate) {
				merged[i] = rec
			}
		}
	}
	return merged
}

// MaxReportDate returns the latest report timestamp across records, used as
// the next run's cursor. Zero when records is empty.
func MaxReportDate(records []CrashRecord) time.Time {
	var maxDate time.Time
	for _, r := range records {
		if r.ReportDate.After(maxDate) {
			maxDate = r.ReportDate
		}
	}
	return maxDate
}

// recencyWindow is how far back the newest injury record may be before the
// feed is considered stalled.
const recencyWindow = 30 * 24 * time.Hour

// VerifyRecentInjuries fails when no injury record falls within the recency
// window. A healthy upstream publishes injury crashes near-daily; silence
// means the feed broke, not that the district had a month without crashes.
func VerifyRecentInjuries(injuries []CrashRecord) error {
	cutoff := clock.Now().Add(-recencyWindow)
	for _, r := range injuries {
		if !r.ReportDate.Before(cutoff) {
			return nil
		}
	}
	return ErrNoRecentInjuries
}

// rowString reads a row value as a string, stringifying numeric ids.
func rowString(row RawRow, key string) string {
	switch v := row[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return ""
	}
}

// rowFloat reads a row value as a float, tolerating string encodings.
// Unparsable values become nil, never an error.
func rowFloat(row RawRow, key string) *float64 {
	switch v := row[key].(type) {
	case float64:
		return &v
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}

// rowEpochMillis reads an epoch-milliseconds value and converts it to the
// report timezone. Zero time when missing or unparsable.
func rowEpochMillis(row RawRow, key string) time.Time {
	var ms int64
	switch v := row[key].(type) {
	case float64:
		ms = int64(v)
	case int64:
		ms = v
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return time.Time{}
		}
		ms = n
	default:
		return time.Time{}
	}
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).In(reportLocation)
}

// rowGeo parses LATITUDE/LONGITUDE defensively: malformed or missing values
// yield a nil Geo, and the record stays in the table (geographically unplaced
// but still counted).
func rowGeo(row RawRow) *Geo {
	lat := rowFloat(row, "LATITUDE")
	lon := rowFloat(row, "LONGITUDE")
	if lat == nil || lon == nil {
		return nil
	}
	return &Geo{Lat: *lat, Lon: *lon}
}
