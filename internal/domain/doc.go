// Package domain models District of Columbia crash injury and fatality data.
//
// # Data sources
//
// Injury crashes come from the public DC GIS Public_Safety map service: a
// crash point table (one row per crash, with coordinates and report date) and
// a crash detail table (one row per involved person, with injury flags and
// person type). The two are joined on CRIMEID during normalization.
//
// Fatalities come from the Vision Zero fatality review feature layer, which
// requires an OAuth2 client-credentials token. It is person-level already and
// carries review attributes (striking vehicle, site visit status, planned
// actions) that injury records do not have.
//
// # Conventions
//
//	Report dates arrive as epoch milliseconds and are converted to
//	America/New_York, the timezone the district publishes in.
//
//	Injury severity derives from the MINORINJURY/MAJORINJURY flags
//	("Y"/"N" strings). Minor wins when both are set. Rows with neither flag
//	set describe uninjured persons and are excluded from the snapshot.
//	Fatality rows are always severity "Fatal".
//
//	Mode is the person type for injuries (Pedestrian, Bicyclist, Driver, ...)
//	and the relabeled vehicle_type for fatalities. The starred labels
//	(Motorcyclist*, Scooter*) are the dashboard's footnoted categories.
//
//	Coordinates are parsed defensively: a malformed or missing value yields a
//	nil Geo and the record survives as geographically unplaced. The boundary
//	join later leaves all GeoContext fields nil for such records.
//
// # Deduplication
//
// Records are unique by (source, id). The injury and fatality sources share
// no documented join key, so a crash reported by both remains two records.
// Within a source, the record with the later report date wins.
package domain
