// Command validate performs integrity checks over a produced crash snapshot:
// vocabulary, geographic consistency, identity uniqueness, and ordering. Run
// it against a freshly written snapshot before trusting a pipeline change.
//
// Usage:
//
//	go run ./cmd/validate -snapshot crashes.parquet
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/couchcryptid/crash-injury-etl/internal/adapter/parquetfile"
	"github.com/couchcryptid/crash-injury-etl/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	snapshot := flag.String("snapshot", "", "path to a crash snapshot parquet file")
	flag.Parse()

	if *snapshot == "" {
		flag.Usage()
		os.Exit(1)
	}

	os.Exit(run(*snapshot))
}

func run(snapshotPath string) int {
	fmt.Println("=== Crash Snapshot Integrity Validation ===")
	fmt.Println()

	rows, err := parquetfile.ReadSnapshot(snapshotPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load snapshot: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateVocabulary(rows),
		validateGeoConsistency(rows),
		validateIdentity(rows),
		validateOrdering(rows),
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Rows: %d\n", len(rows))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// validateVocabulary checks that categorical columns carry only known values
// and that severity agrees with the record's source.
func validateVocabulary(rows []parquetfile.Row) *phase {
	p := &phase{name: "Vocabulary"}

	severities := map[string]bool{
		domain.SeverityMinor: true,
		domain.SeverityMajor: true,
		domain.SeverityFatal: true,
	}
	sources := map[string]bool{
		domain.SourceInjury:   true,
		domain.SourceFatality: true,
	}

	for i, r := range rows {
		if !severities[r.SEVERITY] {
			p.errorf("row %d: unknown severity %q", i, r.SEVERITY)
		}
		if !sources[r.SOURCE] {
			p.errorf("row %d: unknown source %q", i, r.SOURCE)
		}
		if r.SOURCE == domain.SourceFatality && r.SEVERITY != domain.SeverityFatal {
			p.errorf("row %d: fatality source with severity %q", i, r.SEVERITY)
		}
		if r.SOURCE == domain.SourceInjury && r.SEVERITY == domain.SeverityFatal {
			p.errorf("row %d: injury source with fatal severity", i)
		}
		if r.COUNT != 1 {
			p.errorf("row %d: COUNT is %d, want 1", i, r.COUNT)
		}
	}
	return p
}

// validateGeoConsistency checks that boundary ids only appear on rows with
// coordinates and that grid ids carry the HEX_ prefix.
func validateGeoConsistency(rows []parquetfile.Row) *phase {
	p := &phase{name: "Geographic consistency"}

	for i, r := range rows {
		if (r.LATITUDE == nil) != (r.LONGITUDE == nil) {
			p.errorf("row %d: latitude/longitude nullness disagrees", i)
		}
		if r.LATITUDE == nil {
			if r.WARD != nil || r.ANC != nil || r.SMD != nil || r.GRIDID != nil {
				p.errorf("row %d: boundary id on a row without coordinates", i)
			}
			continue
		}
		if *r.LATITUDE < 38.5 || *r.LATITUDE > 39.2 || *r.LONGITUDE < -77.5 || *r.LONGITUDE > -76.5 {
			p.errorf("row %d: coordinate (%f, %f) outside the district area", i, *r.LATITUDE, *r.LONGITUDE)
		}
		if r.GRIDID != nil && !strings.HasPrefix(*r.GRIDID, "HEX_") {
			p.errorf("row %d: grid id %q missing HEX_ prefix", i, *r.GRIDID)
		}
	}
	return p
}

// validateIdentity checks that every row has an id and that (source, id) is
// unique across the snapshot.
func validateIdentity(rows []parquetfile.Row) *phase {
	p := &phase{name: "Identity uniqueness"}

	seen := make(map[string]int, len(rows))
	for i, r := range rows {
		if r.OBJECTID == "" {
			p.errorf("row %d: empty OBJECTID", i)
			continue
		}
		key := r.SOURCE + "|" + r.OBJECTID
		if prev, dup := seen[key]; dup {
			p.errorf("row %d: duplicate of row %d (%s)", i, prev, key)
			continue
		}
		seen[key] = i
	}
	return p
}

// validateOrdering checks the newest-first sort and the run-level timestamp
// columns.
func validateOrdering(rows []parquetfile.Row) *phase {
	p := &phase{name: "Ordering and timestamps"}
	if len(rows) == 0 {
		p.errorf("snapshot has no rows")
		return p
	}

	lastRecord := rows[0].LastRecord
	lastUpdate := rows[0].LastUpdate

	for i, r := range rows {
		if i > 0 && r.REPORTDATE.After(rows[i-1].REPORTDATE) {
			p.errorf("row %d: report date out of order", i)
		}
		if r.REPORTDATE.After(lastRecord) {
			p.errorf("row %d: report date after LAST_RECORD", i)
		}
		if !r.LastRecord.Equal(lastRecord) || !r.LastUpdate.Equal(lastUpdate) {
			p.errorf("row %d: run-level timestamps vary across rows", i)
		}
	}

	if !rows[0].REPORTDATE.Equal(lastRecord) {
		p.errorf("LAST_RECORD %v does not match newest report date %v", lastRecord, rows[0].REPORTDATE)
	}
	if lastUpdate.Before(lastRecord) {
		p.errorf("LAST_UPDATE %v precedes LAST_RECORD %v", lastUpdate, lastRecord)
	}
	return p
}
