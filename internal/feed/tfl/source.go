package tfl

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/MarkHewis/tfl-drift/internal/feed"
)

// Source adapts a line's arrival predictions to the tracker's
// observation feed, filtered to one direction.
type Source struct {
	client    *Client
	lineID    string
	direction string
}

// NewSource creates a feed source for one line and direction.
func NewSource(client *Client, lineID, direction string) *Source {
	return &Source{client: client, lineID: lineID, direction: direction}
}

// Fetch implements feed.Source. Records are filtered to the configured
// direction (case-insensitive); records missing a required field or
// carrying an unparseable timestamp are skipped individually.
func (s *Source) Fetch(ctx context.Context) ([]feed.Observation, error) {
	arrivals, err := s.client.Arrivals(ctx, s.lineID)
	if err != nil {
		return nil, err
	}

	obs := make([]feed.Observation, 0, len(arrivals))
	skipped := 0
	for _, a := range arrivals {
		if !strings.EqualFold(a.Direction, s.direction) {
			continue
		}
		if a.NaptanID == "" || a.VehicleID == "" || a.TimeToStation == nil || a.ExpectedArrival == "" {
			skipped++
			continue
		}
		expected, err := time.Parse(time.RFC3339, a.ExpectedArrival)
		if err != nil {
			skipped++
			continue
		}

		name := a.StationName
		if name == "" {
			name = a.PlatformName
		}

		obs = append(obs, feed.Observation{
			StopID:          a.NaptanID,
			StopName:        name,
			VehicleID:       a.VehicleID,
			TimeToStation:   *a.TimeToStation,
			ExpectedArrival: expected.Unix(),
		})
	}

	if skipped > 0 {
		log.Printf("TfL: skipped %d malformed arrival records", skipped)
	}
	return obs, nil
}
