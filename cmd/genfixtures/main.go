// Command genfixtures generates local development fixtures: the four boundary
// GeoJSON layers over a synthetic district grid, plus ESRI query responses for
// the injury point and detail tables whose coordinates fall inside those
// boundaries. Everything is deterministic, so regenerating produces identical
// files.
//
// Usage:
//
//	go run ./cmd/genfixtures -boundary-out Spatial-Files -esri-out testdata/esri
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Synthetic district bounding box, roughly the real one.
const (
	minLon = -77.12
	maxLon = -76.90
	minLat = 38.80
	maxLat = 39.00
)

var baseDate = time.Date(2024, time.April, 26, 0, 0, 0, 0, time.UTC)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	boundaryOut := flag.String("boundary-out", "", "output directory for boundary GeoJSON layers")
	esriOut := flag.String("esri-out", "", "output directory for ESRI query response fixtures")
	flag.Parse()

	if *boundaryOut == "" || *esriOut == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -boundary-out, -esri-out")
	}

	for _, dir := range []string{*boundaryOut, *esriOut} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	layers := map[string]*geojson.FeatureCollection{
		"Wards_from_2022.geojson":                  wards(),
		"anc_2023.geojson":                         ancs(),
		"Single_Member_District_from_2023.geojson": smds(),
		"crash-hexgrid.geojson":                    hexgrid(),
	}
	for file, fc := range layers {
		path := filepath.Join(*boundaryOut, file)
		if err := writeJSON(path, fc); err != nil {
			return fmt.Errorf("writing %s: %w", file, err)
		}
		log.Printf("wrote %s: %d features", path, len(fc.Features))
	}

	points, details := injuryTables()
	if err := writeJSON(filepath.Join(*esriOut, "crash_points.json"), queryResponse(points)); err != nil {
		return fmt.Errorf("writing crash points: %w", err)
	}
	if err := writeJSON(filepath.Join(*esriOut, "crash_details.json"), queryResponse(details)); err != nil {
		return fmt.Errorf("writing crash details: %w", err)
	}
	log.Printf("wrote ESRI fixtures: %d points, %d details", len(points), len(details))

	return nil
}

// rect builds a closed rectangular polygon.
func rect(lo, la, hi, ha float64) orb.Polygon {
	return orb.Polygon{{
		{lo, la}, {hi, la}, {hi, ha}, {lo, ha}, {lo, la},
	}}
}

// wards splits the bounding box into a 4x2 grid of eight wards.
func wards() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	id := 1
	for row := 0; row < 2; row++ {
		for col := 0; col < 4; col++ {
			lo := minLon + float64(col)*(maxLon-minLon)/4
			la := minLat + float64(row)*(maxLat-minLat)/2
			f := geojson.NewFeature(rect(lo, la, lo+(maxLon-minLon)/4, la+(maxLat-minLat)/2))
			f.Properties["WARD_ID"] = fmt.Sprintf("%d", id)
			fc.Append(f)
			id++
		}
	}
	return fc
}

// ancs halves each ward vertically: ward 3 yields ANCs 3A and 3B.
func ancs() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i, ward := range wards().Features {
		b := ward.Geometry.Bound()
		mid := (b.Min[0] + b.Max[0]) / 2
		for j, half := range []orb.Polygon{
			rect(b.Min[0], b.Min[1], mid, b.Max[1]),
			rect(mid, b.Min[1], b.Max[0], b.Max[1]),
		} {
			f := geojson.NewFeature(half)
			f.Properties["ANC"] = fmt.Sprintf("%d%c", i+1, 'A'+rune(j))
			fc.Append(f)
		}
	}
	return fc
}

// smds halve each ANC horizontally: ANC 3A yields SMDs 3A01 and 3A02.
func smds() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, anc := range ancs().Features {
		b := anc.Geometry.Bound()
		mid := (b.Min[1] + b.Max[1]) / 2
		for j, half := range []orb.Polygon{
			rect(b.Min[0], b.Min[1], b.Max[0], mid),
			rect(b.Min[0], mid, b.Max[0], b.Max[1]),
		} {
			f := geojson.NewFeature(half)
			f.Properties["SMD_ID"] = fmt.Sprintf("%s%02d", anc.Properties["ANC"], j+1)
			fc.Append(f)
		}
	}
	return fc
}

// hexgrid tiles the bounding box with flat-top hexagons, ids numbered in
// row-major order to match the committed production grid's convention.
func hexgrid() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	const r = 0.01 // hex circumradius in degrees

	id := 1
	for row := 0; ; row++ {
		cy := minLat + r + float64(row)*r*math.Sqrt(3)
		if cy > maxLat {
			break
		}
		offset := 0.0
		if row%2 == 1 {
			offset = 1.5 * r
		}
		for col := 0; ; col++ {
			cx := minLon + r + offset + float64(col)*3*r
			if cx > maxLon {
				break
			}
			f := geojson.NewFeature(hexagon(cx, cy, r))
			f.Properties["grid_id"] = id
			fc.Append(f)
			id++
		}
	}
	return fc
}

func hexagon(cx, cy, r float64) orb.Polygon {
	ring := make(orb.Ring, 0, 7)
	for i := 0; i < 6; i++ {
		angle := math.Pi / 3 * float64(i)
		ring = append(ring, orb.Point{cx + r*math.Cos(angle), cy + r*math.Sin(angle)})
	}
	ring = append(ring, ring[0])
	return orb.Polygon{ring}
}

// injuryTables builds matched crash point and detail rows. Crash i sits on a
// diagonal through the district; every third crash gets a second involved
// person so the join produces more detail rows than points.
func injuryTables() (points, details []map[string]any) {
	modes := []string{"Driver", "Passenger", "Bicyclist", "Pedestrian"}
	detailID := 1

	for i := 0; i < 40; i++ {
		frac := float64(i) / 40
		crimeID := fmt.Sprintf("FIX%05d", i+1)

		points = append(points, map[string]any{
			"CRIMEID":    crimeID,
			"REPORTDATE": baseDate.Add(time.Duration(i) * 6 * time.Hour).UnixMilli(),
			"ADDRESS":    fmt.Sprintf("%d FIXTURE AVE NW", 100+i),
			"LATITUDE":   minLat + frac*(maxLat-minLat),
			"LONGITUDE":  minLon + frac*(maxLon-minLon),
		})

		persons := 1
		if i%3 == 0 {
			persons = 2
		}
		for p := 0; p < persons; p++ {
			minor, major := "Y", "N"
			if (i+p)%4 == 0 {
				minor, major = "N", "Y"
			}
			details = append(details, map[string]any{
				"OBJECTID":    detailID,
				"CRIMEID":     crimeID,
				"CCN":         fmt.Sprintf("24%06d", i+1),
				"PERSONTYPE":  modes[(i+p)%len(modes)],
				"AGE":         20 + (i+p*7)%50,
				"MINORINJURY": minor,
				"MAJORINJURY": major,
			})
			detailID++
		}
	}
	return points, details
}

// queryResponse wraps attribute rows in the ESRI query envelope.
func queryResponse(rows []map[string]any) map[string]any {
	features := make([]map[string]any, len(rows))
	for i, row := range rows {
		features[i] = map[string]any{"attributes": row}
	}
	return map[string]any{
		"features":              features,
		"maxRecordCount":        1000,
		"exceededTransferLimit": false,
	}
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
