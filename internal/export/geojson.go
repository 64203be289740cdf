package export

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"github.com/MarkHewis/tfl-drift/internal/stops"
	"github.com/MarkHewis/tfl-drift/internal/track"
)

// Traffic-light classification of a stop's mean drift.
const (
	colorGreen = "#00ff00" // |mean drift| under a minute
	colorAmber = "#f1c40f" // under three minutes
	colorRed   = "#ff0000"
)

// FeatureCollection is the GeoJSON snapshot served to map frontends.
type FeatureCollection struct {
	Type        string    `json:"type"`
	GeneratedAt string    `json:"generatedAt"`
	LineID      string    `json:"lineId"`
	Direction   string    `json:"direction"`
	Features    []Feature `json:"features"`
}

// Feature is one stop on the map.
type Feature struct {
	Type       string     `json:"type"`
	Geometry   Geometry   `json:"geometry"`
	Properties Properties `json:"properties"`
}

// Geometry is a GeoJSON point, coordinates ordered lon, lat.
type Geometry struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// Properties carries the derived scoring for one stop.
type Properties struct {
	StopID             string  `json:"stopId"`
	Name               string  `json:"name"`
	Direction          string  `json:"direction"`
	PredictionDriftSec float64 `json:"predictionDriftSec"`
	Samples            int     `json:"samples"`
	PhantomRate        float64 `json:"phantomRate"`
	Color              string  `json:"color"`
}

// Collection projects the stop metadata and scoring counters into a
// feature collection. Stops without resolved coordinates are left out;
// their counters keep accumulating and they appear once resolution
// succeeds. Features are ordered by stop id so successive snapshots
// diff cleanly.
func Collection(meta map[string]*stops.Metadata, agg *track.Aggregator, lineID, direction string, generatedAt time.Time) *FeatureCollection {
	fc := &FeatureCollection{
		Type:        "FeatureCollection",
		GeneratedAt: generatedAt.UTC().Format(time.RFC3339),
		LineID:      lineID,
		Direction:   direction,
		Features:    []Feature{},
	}

	stopIDs := make([]string, 0, len(meta))
	for stopID := range meta {
		stopIDs = append(stopIDs, stopID)
	}
	sort.Strings(stopIDs)

	for _, stopID := range stopIDs {
		m := meta[stopID]
		if !m.Resolved() {
			continue
		}
		s := agg.Snapshot(stopID)

		fc.Features = append(fc.Features, Feature{
			Type: "Feature",
			Geometry: Geometry{
				Type:        "Point",
				Coordinates: [2]float64{*m.Lon, *m.Lat},
			},
			Properties: Properties{
				StopID:             stopID,
				Name:               m.Name,
				Direction:          direction,
				PredictionDriftSec: round(s.MeanDriftSec, 1),
				Samples:            s.Samples,
				PhantomRate:        round(s.PhantomRate, 3),
				Color:              driftColor(s.MeanDriftSec),
			},
		})
	}
	return fc
}

// Write marshals the collection as indented JSON and writes it through
// a sibling temp file renamed over the target. The written bytes come
// back so callers can publish the exact snapshot they persisted.
func (fc *FeatureCollection) Write(path string) ([]byte, error) {
	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return nil, fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return data, nil
}

func driftColor(meanDriftSec float64) string {
	switch abs := math.Abs(meanDriftSec); {
	case abs < 60:
		return colorGreen
	case abs < 180:
		return colorAmber
	default:
		return colorRed
	}
}

func round(v float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(v*scale) / scale
}
