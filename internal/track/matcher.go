package track

import (
	"sort"
	"time"
)

// StopVehicle keys the per-cycle observation snapshot.
type StopVehicle struct {
	StopID    string
	VehicleID string
}

// MatchEvent reports one scored arrival.
type MatchEvent struct {
	StopID   string
	DriftSec int
}

// MatchArrivals pairs each vehicle currently at or inside the arrival
// threshold with its oldest open prediction at that stop and scores the
// drift. The actual arrival instant is inferred as now plus the
// remaining time to station (clamped at 0); the predicted instant is
// the one implied by the prediction at creation time, createdAt plus
// the time-to-station observed then. Positive drift means the
// prediction was optimistic.
//
// Matched predictions move to StatusMatched and are never selected
// again. Vehicles with no open prediction produce no event; they stay
// candidates for a later cycle. Keys are walked in sorted order so a
// given snapshot always yields the same event sequence.
func (l *Ledger) MatchArrivals(current map[StopVehicle]int, threshold time.Duration, now int64) []MatchEvent {
	thresholdSec := int(threshold / time.Second)

	keys := make([]StopVehicle, 0, len(current))
	for k := range current {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].StopID != keys[j].StopID {
			return keys[i].StopID < keys[j].StopID
		}
		return keys[i].VehicleID < keys[j].VehicleID
	})

	var events []MatchEvent
	for _, k := range keys {
		tts := current[k]
		if tts > thresholdSec {
			continue
		}
		p := l.oldestOpen(k.StopID, k.VehicleID)
		if p == nil {
			continue
		}

		actual := now + int64(max(0, tts))
		predicted := p.CreatedAt + int64(p.TimeToStation)
		drift := int(predicted - actual)

		p.Status = StatusMatched
		p.ActualArrival = &actual
		p.DriftSec = &drift
		events = append(events, MatchEvent{StopID: k.StopID, DriftSec: drift})
	}
	return events
}

// oldestOpen returns the first open prediction for the vehicle at the
// stop in insertion order, or nil if none is open.
func (l *Ledger) oldestOpen(stopID, vehicleID string) *Prediction {
	for _, p := range l.byStop[stopID] {
		if p.Status == StatusOpen && p.VehicleID == vehicleID {
			return p
		}
	}
	return nil
}
