// Package parquetfile renders the enriched crash table as the Parquet
// snapshot consumed downstream. Every run writes the full table; the file is
// replaced, never appended to.
package parquetfile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/couchcryptid/crash-injury-etl/internal/domain"
	"github.com/parquet-go/parquet-go"
)

// Row is the snapshot schema. Column names match the upstream feature
// services so downstream dashboards keep their field bindings.
type Row struct {
	OBJECTID   string    `parquet:"OBJECTID"`
	SOURCE     string    `parquet:"SOURCE,dict"`
	CRIMEID    *string   `parquet:"CRIMEID,optional"`
	CCN        *string   `parquet:"CCN,optional"`
	REPORTDATE time.Time `parquet:"REPORTDATE,timestamp(millisecond)"`
	MODE       string    `parquet:"MODE,dict"`
	SEVERITY   string    `parquet:"SEVERITY,dict"`
	AGE        *float64  `parquet:"AGE,optional"`
	ADDRESS    *string   `parquet:"ADDRESS,optional"`
	LATITUDE   *float64  `parquet:"LATITUDE,optional"`
	LONGITUDE  *float64  `parquet:"LONGITUDE,optional"`

	WARD   *string `parquet:"WARD,optional,dict"`
	ANC    *string `parquet:"ANC,optional,dict"`
	SMD    *string `parquet:"SMD,optional,dict"`
	GRIDID *string `parquet:"GRID_ID,optional,dict"`

	PersonID          *string `parquet:"PERSONID,optional"`
	FatalFlag         *string `parquet:"FATAL,optional,dict"`
	VehicleID         *string `parquet:"VEHICLEID,optional"`
	InVehicleType     *string `parquet:"INVEHICLETYPE,optional,dict"`
	TicketIssued      *string `parquet:"TICKETISSUED,optional,dict"`
	LicensePlateState *string `parquet:"LICENSEPLATESTATE,optional,dict"`
	Impaired          *string `parquet:"IMPAIRED,optional,dict"`
	Speeding          *string `parquet:"SPEEDING,optional,dict"`

	RouteID      *string `parquet:"ROUTEID,optional"`
	StreetSegID  *string `parquet:"STREETSEGID,optional"`
	RoadwaySegID *string `parquet:"ROADWAYSEGID,optional"`
	EventID      *string `parquet:"EVENTID,optional"`
	BlockKey     *string `parquet:"BLOCKKEY,optional"`
	SubBlockKey  *string `parquet:"SUBBLOCKKEY,optional"`
	CorridorID   *string `parquet:"CORRIDORID,optional"`

	StrikingVehicle       *string `parquet:"STRIKING_VEHICLE,optional"`
	SecondStrikingVehicle *string `parquet:"SECOND_STRIKING_VEHICLE,optional"`
	SiteVisitStatus       *string `parquet:"SITE_VISIT_STATUS,optional"`
	FactorsDiscussed      *string `parquet:"FACTORS_DISCUSSED,optional"`
	ActionsPlanned        *string `parquet:"ACTIONS_PLANNED,optional"`
	ActionsConsidered     *string `parquet:"ACTIONS_CONSIDERED,optional"`

	// COUNT is always 1; dashboards sum it instead of counting rows.
	COUNT int32 `parquet:"COUNT"`

	LastRecord time.Time `parquet:"LAST_RECORD,timestamp(millisecond)"`
	LastUpdate time.Time `parquet:"LAST_UPDATE,timestamp(millisecond)"`
}

// Writer writes snapshots to a fixed path.
type Writer struct {
	path   string
	logger *slog.Logger
}

func NewWriter(path string, logger *slog.Logger) *Writer {
	return &Writer{path: path, logger: logger}
}

// WriteSnapshot replaces the snapshot file with the given records. lastRecord
// is the cursor the run will persist and lastUpdate the run's wall time; both
// repeat on every row so the file is self-describing. Callers pass records
// already in snapshot order, making byte-identical re-runs possible.
func (w *Writer) WriteSnapshot(ctx context.Context, records []domain.EnrichedRecord, lastRecord, lastUpdate time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("create snapshot %s: %w", w.path, err)
	}

	pw := parquet.NewGenericWriter[Row](f, parquet.Compression(&parquet.Snappy))

	rows := make([]Row, len(records))
	for i, rec := range records {
		rows[i] = toRow(rec, lastRecord, lastUpdate)
	}
	if _, err := pw.Write(rows); err != nil {
		f.Close()
		return fmt.Errorf("write snapshot %s: %w", w.path, err)
	}
	if err := pw.Close(); err != nil {
		f.Close()
		return fmt.Errorf("close snapshot %s: %w", w.path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close snapshot %s: %w", w.path, err)
	}

	w.logger.Info("snapshot written", "path", w.path, "rows", len(rows))
	return nil
}

// Path returns where snapshots are written, for handing to the publisher.
func (w *Writer) Path() string {
	return w.path
}

// ReadPrevious loads the records of the snapshot currently at the writer's
// path, so a delta run can rebuild the full table before overwriting it. A
// missing file yields no records: the first run starts from nothing. Boundary
// ids are not carried over; records are re-enriched every run.
func (w *Writer) ReadPrevious() ([]domain.CrashRecord, error) {
	if _, err := os.Stat(w.path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	rows, err := parquet.ReadFile[Row](w.path)
	if err != nil {
		return nil, fmt.Errorf("read previous snapshot %s: %w", w.path, err)
	}

	records := make([]domain.CrashRecord, len(rows))
	for i, row := range rows {
		records[i] = toRecord(row)
	}
	return records, nil
}

// ReadSnapshot loads a snapshot back into rows, used by the validator.
func ReadSnapshot(path string) ([]Row, error) {
	rows, err := parquet.ReadFile[Row](path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", path, err)
	}
	return rows, nil
}

func toRow(rec domain.EnrichedRecord, lastRecord, lastUpdate time.Time) Row {
	row := Row{
		OBJECTID:   rec.ID,
		SOURCE:     rec.Source,
		CRIMEID:    optString(rec.CrimeID),
		CCN:        optString(rec.CCN),
		REPORTDATE: rec.ReportDate,
		MODE:       rec.Mode,
		SEVERITY:   rec.Severity,
		AGE:        rec.Age,
		ADDRESS:    optString(rec.Address),

		WARD:   rec.Ward,
		ANC:    rec.ANC,
		SMD:    rec.SMD,
		GRIDID: rec.GridID,

		PersonID:          optString(rec.PersonID),
		FatalFlag:         optString(rec.FatalFlag),
		VehicleID:         optString(rec.VehicleID),
		InVehicleType:     optString(rec.InVehicleType),
		TicketIssued:      optString(rec.TicketIssued),
		LicensePlateState: optString(rec.LicensePlateState),
		Impaired:          optString(rec.Impaired),
		Speeding:          optString(rec.Speeding),

		RouteID:      optString(rec.RouteID),
		StreetSegID:  optString(rec.StreetSegID),
		RoadwaySegID: optString(rec.RoadwaySegID),
		EventID:      optString(rec.EventID),
		BlockKey:     optString(rec.BlockKey),
		SubBlockKey:  optString(rec.SubBlockKey),
		CorridorID:   optString(rec.CorridorID),

		StrikingVehicle:       optString(rec.StrikingVehicle),
		SecondStrikingVehicle: optString(rec.SecondStrikingVehicle),
		SiteVisitStatus:       optString(rec.SiteVisitStatus),
		FactorsDiscussed:      optString(rec.FactorsDiscussed),
		ActionsPlanned:        optString(rec.ActionsPlanned),
		ActionsConsidered:     optString(rec.ActionsConsidered),

		COUNT:      1,
		LastRecord: lastRecord,
		LastUpdate: lastUpdate,
	}
	if rec.Geo != nil {
		lat, lon := rec.Geo.Lat, rec.Geo.Lon
		row.LATITUDE = &lat
		row.LONGITUDE = &lon
	}
	return row
}

// toRecord inverts toRow for ReadPrevious.
func toRecord(row Row) domain.CrashRecord {
	rec := domain.CrashRecord{
		Source:     row.SOURCE,
		ID:         row.OBJECTID,
		CrimeID:    strVal(row.CRIMEID),
		CCN:        strVal(row.CCN),
		ReportDate: row.REPORTDATE,
		Mode:       row.MODE,
		Severity:   row.SEVERITY,
		Age:        row.AGE,
		Address:    strVal(row.ADDRESS),

		PersonID:          strVal(row.PersonID),
		FatalFlag:         strVal(row.FatalFlag),
		VehicleID:         strVal(row.VehicleID),
		InVehicleType:     strVal(row.InVehicleType),
		TicketIssued:      strVal(row.TicketIssued),
		LicensePlateState: strVal(row.LicensePlateState),
		Impaired:          strVal(row.Impaired),
		Speeding:          strVal(row.Speeding),

		RouteID:      strVal(row.RouteID),
		StreetSegID:  strVal(row.StreetSegID),
		RoadwaySegID: strVal(row.RoadwaySegID),
		EventID:      strVal(row.EventID),
		BlockKey:     strVal(row.BlockKey),
		SubBlockKey:  strVal(row.SubBlockKey),
		CorridorID:   strVal(row.CorridorID),

		StrikingVehicle:       strVal(row.StrikingVehicle),
		SecondStrikingVehicle: strVal(row.SecondStrikingVehicle),
		SiteVisitStatus:       strVal(row.SiteVisitStatus),
		FactorsDiscussed:      strVal(row.FactorsDiscussed),
		ActionsPlanned:        strVal(row.ActionsPlanned),
		ActionsConsidered:     strVal(row.ActionsConsidered),
	}
	if row.LATITUDE != nil && row.LONGITUDE != nil {
		rec.Geo = &domain.Geo{Lat: *row.LATITUDE, Lon: *row.LONGITUDE}
	}
	return rec
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func strVal(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
