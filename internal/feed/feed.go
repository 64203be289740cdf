package feed

import "context"

// Observation is one feed record for a vehicle approaching a stop,
// already filtered to the tracked route and direction. It lives only
// for the cycle that fetched it.
type Observation struct {
	StopID          string
	StopName        string // display hint used until metadata resolves
	VehicleID       string
	TimeToStation   int   // seconds
	ExpectedArrival int64 // epoch seconds
}

// Source defines the interface for fetching the current arrival
// observations of the tracked route.
type Source interface {
	Fetch(ctx context.Context) ([]Observation, error)
}
