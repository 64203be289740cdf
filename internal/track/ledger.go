package track

import "time"

// Status is the lifecycle state of a Prediction.
type Status string

const (
	// StatusOpen marks a prediction still waiting for its vehicle.
	StatusOpen Status = "open"
	// StatusMatched marks a prediction paired with an observed arrival.
	StatusMatched Status = "matched"
	// StatusPhantom marks a prediction whose vehicle never showed up.
	StatusPhantom Status = "phantom"
)

// Prediction is one recorded arrival estimate for a vehicle at a stop.
// The JSON tags are the persisted state-file schema.
type Prediction struct {
	VehicleID       string `json:"vehicleId"`
	CreatedAt       int64  `json:"createdAtTs"`
	TimeToStation   int    `json:"timeToStationSec"`
	ExpectedArrival int64  `json:"expectedArrivalTs"`
	Status          Status `json:"status"`
	ActualArrival   *int64 `json:"actualArrivalTs,omitempty"`
	DriftSec        *int   `json:"driftSec,omitempty"`
}

// Ledger holds the tracked predictions per stop in insertion order.
// Insertion order doubles as match priority: the oldest open prediction
// for a vehicle is the one an observed arrival settles.
type Ledger struct {
	byStop map[string][]*Prediction
}

// NewLedger wraps an existing per-stop prediction map, typically the one
// loaded from the state file. Mutations are made through that map so the
// caller sees them when persisting.
func NewLedger(byStop map[string][]*Prediction) *Ledger {
	if byStop == nil {
		byStop = make(map[string][]*Prediction)
	}
	return &Ledger{byStop: byStop}
}

// Ingest appends a new open prediction for a vehicle approaching a stop.
// Every sighting appends a fresh record, so a vehicle observed over
// several cycles accumulates one prediction per sighting; the oldest
// open one wins when the arrival is matched and later ones age out as
// phantoms or get evicted.
func (l *Ledger) Ingest(stopID, vehicleID string, timeToStation int, expectedArrival, now int64) {
	l.byStop[stopID] = append(l.byStop[stopID], &Prediction{
		VehicleID:       vehicleID,
		CreatedAt:       now,
		TimeToStation:   timeToStation,
		ExpectedArrival: expectedArrival,
		Status:          StatusOpen,
	})
}

// EvictExpired drops predictions older than maxAge regardless of status
// and removes stops whose sequence becomes empty. Returns the number of
// predictions dropped.
func (l *Ledger) EvictExpired(now int64, maxAge time.Duration) int {
	maxAgeSec := int64(maxAge / time.Second)
	evicted := 0
	for stopID, preds := range l.byStop {
		kept := preds[:0]
		for _, p := range preds {
			if now-p.CreatedAt > maxAgeSec {
				evicted++
				continue
			}
			kept = append(kept, p)
		}
		if len(kept) == 0 {
			delete(l.byStop, stopID)
			continue
		}
		l.byStop[stopID] = kept
	}
	return evicted
}

// Size returns the total number of predictions across all stops.
func (l *Ledger) Size() int {
	n := 0
	for _, preds := range l.byStop {
		n += len(preds)
	}
	return n
}
