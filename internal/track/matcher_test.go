package track

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const arrivalThreshold = 30 * time.Second

func TestMatchArrivalsScoresDrift(t *testing.T) {
	l := NewLedger(nil)
	l.Ingest("490001", "LTZ1000", 300, 300, 0)

	events := l.MatchArrivals(map[StopVehicle]int{
		{StopID: "490001", VehicleID: "LTZ1000"}: 8,
	}, arrivalThreshold, 290)

	require.Len(t, events, 1)
	assert.Equal(t, "490001", events[0].StopID)
	assert.Equal(t, 2, events[0].DriftSec)

	p := l.byStop["490001"][0]
	assert.Equal(t, StatusMatched, p.Status)
	require.NotNil(t, p.ActualArrival)
	assert.Equal(t, int64(298), *p.ActualArrival)
	require.NotNil(t, p.DriftSec)
	assert.Equal(t, 2, *p.DriftSec)
}

func TestMatchArrivalsDriftSign(t *testing.T) {
	tests := []struct {
		name      string
		tts       int
		wantDrift int
	}{
		// Prediction made at t=0 said arrival at t=300. Observed at
		// t=290 with the remaining seconds below; drift is positive
		// when the vehicle beats the promised instant.
		{"vehicle later than promised", 20, -10},
		{"vehicle on time", 10, 0},
		{"vehicle earlier than promised", 2, 8},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l := NewLedger(nil)
			l.Ingest("490001", "LTZ1000", 300, 300, 0)

			events := l.MatchArrivals(map[StopVehicle]int{
				{StopID: "490001", VehicleID: "LTZ1000"}: tc.tts,
			}, arrivalThreshold, 290)

			require.Len(t, events, 1)
			assert.Equal(t, tc.wantDrift, events[0].DriftSec)
		})
	}
}

func TestMatchArrivalsThresholdBoundary(t *testing.T) {
	tests := []struct {
		name      string
		tts       int
		wantMatch bool
	}{
		{"exactly at threshold", 30, true},
		{"just above threshold", 31, false},
		{"zero seconds out", 0, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l := NewLedger(nil)
			l.Ingest("490001", "LTZ1000", 120, 120, 0)

			events := l.MatchArrivals(map[StopVehicle]int{
				{StopID: "490001", VehicleID: "LTZ1000"}: tc.tts,
			}, arrivalThreshold, 100)

			if tc.wantMatch {
				assert.Len(t, events, 1)
			} else {
				assert.Empty(t, events)
				assert.Equal(t, StatusOpen, l.byStop["490001"][0].Status)
			}
		})
	}
}

func TestMatchArrivalsClampsNegativeTimeToStation(t *testing.T) {
	l := NewLedger(nil)
	l.Ingest("490001", "LTZ1000", 300, 300, 0)

	events := l.MatchArrivals(map[StopVehicle]int{
		{StopID: "490001", VehicleID: "LTZ1000"}: -5,
	}, arrivalThreshold, 305)

	require.Len(t, events, 1)
	require.NotNil(t, l.byStop["490001"][0].ActualArrival)
	assert.Equal(t, int64(305), *l.byStop["490001"][0].ActualArrival)
}

func TestMatchArrivalsOldestFirst(t *testing.T) {
	l := NewLedger(nil)
	l.Ingest("490001", "LTZ1000", 300, 300, 0)
	l.Ingest("490001", "LTZ1000", 240, 300, 60)

	events := l.MatchArrivals(map[StopVehicle]int{
		{StopID: "490001", VehicleID: "LTZ1000"}: 5,
	}, arrivalThreshold, 295)

	require.Len(t, events, 1)
	assert.Equal(t, StatusMatched, l.byStop["490001"][0].Status)
	assert.Equal(t, StatusOpen, l.byStop["490001"][1].Status)
}

func TestMatchArrivalsNeverReselectsTerminal(t *testing.T) {
	l := NewLedger(map[string][]*Prediction{
		"490001": {
			{VehicleID: "LTZ1000", CreatedAt: 0, TimeToStation: 300, Status: StatusMatched},
			{VehicleID: "LTZ1000", CreatedAt: 60, TimeToStation: 240, Status: StatusPhantom},
		},
	})

	events := l.MatchArrivals(map[StopVehicle]int{
		{StopID: "490001", VehicleID: "LTZ1000"}: 5,
	}, arrivalThreshold, 400)

	assert.Empty(t, events)
	assert.Equal(t, StatusMatched, l.byStop["490001"][0].Status)
	assert.Equal(t, StatusPhantom, l.byStop["490001"][1].Status)
}

func TestMatchArrivalsIgnoresUnknownVehicle(t *testing.T) {
	l := NewLedger(nil)
	l.Ingest("490001", "LTZ1000", 300, 300, 0)

	events := l.MatchArrivals(map[StopVehicle]int{
		{StopID: "490001", VehicleID: "LTZ9999"}: 5,
		{StopID: "490777", VehicleID: "LTZ1000"}: 5,
	}, arrivalThreshold, 290)

	assert.Empty(t, events)
	assert.Equal(t, StatusOpen, l.byStop["490001"][0].Status)
}

func TestMatchArrivalsEmitsSortedEvents(t *testing.T) {
	l := NewLedger(nil)
	l.Ingest("490002", "LTZ1001", 300, 300, 0)
	l.Ingest("490001", "LTZ1009", 300, 300, 0)
	l.Ingest("490001", "LTZ1000", 300, 300, 0)

	events := l.MatchArrivals(map[StopVehicle]int{
		{StopID: "490002", VehicleID: "LTZ1001"}: 3,
		{StopID: "490001", VehicleID: "LTZ1009"}: 3,
		{StopID: "490001", VehicleID: "LTZ1000"}: 3,
	}, arrivalThreshold, 290)

	require.Len(t, events, 3)
	assert.Equal(t, "490001", events[0].StopID)
	assert.Equal(t, "490001", events[1].StopID)
	assert.Equal(t, "490002", events[2].StopID)
}
