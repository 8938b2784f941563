package domain

import "time"

// Source names attached to every record. The injury source is the public DC
// GIS crash tables; the fatality source is the Vision Zero review layer.
const (
	SourceInjury   = "dcgis-crash"
	SourceFatality = "vision-zero"
)

// Severity labels used in the published snapshot.
const (
	SeverityMinor = "Minor"
	SeverityMajor = "Major"
	SeverityFatal = "Fatal"
)

// RawRow is one feature's attribute map as returned by an ESRI query endpoint.
// Connectors fold point geometries into LATITUDE/LONGITUDE keys before handing
// rows to the normalizer.
type RawRow map[string]any

// Geo is a WGS-84 coordinate pair.
type Geo struct {
	Lat float64
	Lon float64
}

// CrashRecord is one crash injury or fatality event, normalized across sources.
// ID is unique within a source; ReportDate is always set (rows without a
// usable timestamp never survive normalization).
type CrashRecord struct {
	Source     string
	ID         string
	CrimeID    string
	CCN        string
	ReportDate time.Time
	Mode       string
	Severity   string
	Age        *float64
	Address    string
	Geo        *Geo // nil when the source row was ungeocoded

	// Injury person and vehicle attributes from the crash detail table,
	// empty for fatality records. FatalFlag is the table's raw Y/N column;
	// severity classification does not use it.
	PersonID          string
	FatalFlag         string
	VehicleID         string
	InVehicleType     string
	TicketIssued      string
	LicensePlateState string
	Impaired          string
	Speeding          string

	// Roadway identifiers from the crash point table, empty for fatality
	// records.
	RouteID      string
	StreetSegID  string
	RoadwaySegID string
	EventID      string
	BlockKey     string
	SubBlockKey  string
	CorridorID   string

	// Fatality-review attributes, empty for injury records.
	StrikingVehicle       string
	SecondStrikingVehicle string
	SiteVisitStatus       string
	FactorsDiscussed      string
	ActionsPlanned        string
	ActionsConsidered     string
}

// GeoContext holds the boundary ids attached after the spatial join. A nil
// field means the point fell outside every polygon of that layer, or the
// record had no coordinate at all. Ids are never fabricated.
type GeoContext struct {
	Ward   *string
	ANC    *string
	SMD    *string
	GridID *string
}

// EnrichedRecord pairs a crash record with its geographic context.
type EnrichedRecord struct {
	CrashRecord
	GeoContext
}

// Key identifies a record for deduplication.
func (r CrashRecord) Key() string {
	return r.Source + "|" + r.ID
}
