package poller

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MarkHewis/tfl-drift/internal/config"
	"github.com/MarkHewis/tfl-drift/internal/feed"
	"github.com/MarkHewis/tfl-drift/internal/state"
	"github.com/MarkHewis/tfl-drift/internal/stops"
	"github.com/MarkHewis/tfl-drift/internal/track"
)

type fakeSource struct {
	obs []feed.Observation
	err error
}

func (f *fakeSource) Fetch(ctx context.Context) ([]feed.Observation, error) {
	return f.obs, f.err
}

type fakeResolver struct {
	points map[string]stops.Point
}

func (f *fakeResolver) ResolveStop(ctx context.Context, stopID string) (stops.Point, error) {
	pt, ok := f.points[stopID]
	if !ok {
		return stops.Point{}, errors.New("unknown stop")
	}
	return pt, nil
}

type fakeSink struct {
	data        []byte
	generatedAt time.Time
	published   int
}

func (f *fakeSink) Publish(data []byte, generatedAt time.Time) {
	f.data = data
	f.generatedAt = generatedAt
	f.published++
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		LineID:           "430",
		Direction:        "inbound",
		PollInterval:     time.Minute,
		ArrivalThreshold: 30 * time.Second,
		MaxPredictionAge: 1500 * time.Second,
		PhantomGrace:     360 * time.Second,
		StatePath:        filepath.Join(dir, "430-inbound-state.json"),
		SnapshotPath:     filepath.Join(dir, "stops-430-inbound.geojson"),
	}
}

func TestRunCycleFetchFailureMutatesNothing(t *testing.T) {
	cfg := testConfig(t)
	st := state.New("inbound")
	p := New(cfg, &fakeSource{err: errors.New("upstream down")}, &fakeResolver{}, st, nil)

	err := p.RunCycle(context.Background())

	require.Error(t, err)
	assert.Empty(t, st.Predictions)
	assert.Empty(t, st.Stops)
	assert.Nil(t, st.LastUpdated)
	_, statErr := os.Stat(cfg.StatePath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunCycleIngestsAndPersists(t *testing.T) {
	cfg := testConfig(t)
	st := state.New("inbound")
	source := &fakeSource{obs: []feed.Observation{
		{StopID: "490001", StopName: "Roehampton", VehicleID: "LTZ1000", TimeToStation: 300, ExpectedArrival: 1700000300},
	}}
	resolver := &fakeResolver{points: map[string]stops.Point{
		"490001": {Name: "Roehampton, Danebury Avenue", Lat: 51.45, Lon: -0.24},
	}}
	p := New(cfg, source, resolver, st, nil)
	p.now = func() time.Time { return time.Unix(1700000000, 0) }

	require.NoError(t, p.RunCycle(context.Background()))

	require.Len(t, st.Predictions["490001"], 1)
	pred := st.Predictions["490001"][0]
	assert.Equal(t, track.StatusOpen, pred.Status)
	assert.Equal(t, int64(1700000000), pred.CreatedAt)

	require.Contains(t, st.Stops, "490001")
	assert.True(t, st.Stops["490001"].Resolved())
	assert.Equal(t, "Roehampton, Danebury Avenue", st.Stops["490001"].Name)

	require.NotNil(t, st.LastUpdated)
	_, err := os.Stat(cfg.StatePath)
	assert.NoError(t, err)
	_, err = os.Stat(cfg.SnapshotPath)
	assert.NoError(t, err)
}

func TestRunCycleMatchesAndPublishes(t *testing.T) {
	cfg := testConfig(t)
	st := state.New("inbound")
	st.Predictions["490001"] = []*track.Prediction{{
		VehicleID:       "LTZ1000",
		CreatedAt:       1700000000,
		TimeToStation:   300,
		ExpectedArrival: 1700000300,
		Status:          track.StatusOpen,
	}}
	source := &fakeSource{obs: []feed.Observation{
		{StopID: "490001", StopName: "Roehampton", VehicleID: "LTZ1000", TimeToStation: 8, ExpectedArrival: 1700000298},
	}}
	resolver := &fakeResolver{points: map[string]stops.Point{
		"490001": {Name: "Roehampton", Lat: 51.45, Lon: -0.24},
	}}
	sink := &fakeSink{}
	p := New(cfg, source, resolver, st, sink)
	p.now = func() time.Time { return time.Unix(1700000290, 0) }

	require.NoError(t, p.RunCycle(context.Background()))

	// Seeded prediction matched with drift 2; the cycle's own sighting
	// of the same vehicle appended a second, still open record.
	require.Len(t, st.Predictions["490001"], 2)
	matched := st.Predictions["490001"][0]
	assert.Equal(t, track.StatusMatched, matched.Status)
	require.NotNil(t, matched.DriftSec)
	assert.Equal(t, 2, *matched.DriftSec)
	assert.Equal(t, track.StatusOpen, st.Predictions["490001"][1].Status)

	require.Contains(t, st.StopStats, "490001")
	assert.Equal(t, 1, st.StopStats["490001"].SampleCount)
	assert.Equal(t, float64(2), st.StopStats["490001"].DriftSecSum)

	assert.Equal(t, 1, sink.published)
	assert.Contains(t, string(sink.data), "490001")
	assert.Equal(t, time.Unix(1700000290, 0), sink.generatedAt)
}

func TestRunCycleReapsPhantoms(t *testing.T) {
	cfg := testConfig(t)
	st := state.New("inbound")
	st.Predictions["490001"] = []*track.Prediction{{
		VehicleID:       "LTZ1000",
		CreatedAt:       1700000000,
		TimeToStation:   300,
		ExpectedArrival: 1700000300,
		Status:          track.StatusOpen,
	}}
	p := New(cfg, &fakeSource{}, &fakeResolver{}, st, nil)
	p.now = func() time.Time { return time.Unix(1700000300+361, 0) }

	require.NoError(t, p.RunCycle(context.Background()))

	assert.Equal(t, track.StatusPhantom, st.Predictions["490001"][0].Status)
	require.Contains(t, st.StopStats, "490001")
	assert.Equal(t, 1, st.StopStats["490001"].PhantomCount)
}

func TestRunCycleSnapshotFailureStillSavesState(t *testing.T) {
	cfg := testConfig(t)
	cfg.SnapshotPath = filepath.Join(cfg.SnapshotPath, "not-a-dir", "out.geojson")
	st := state.New("inbound")
	sink := &fakeSink{}
	p := New(cfg, &fakeSource{obs: []feed.Observation{
		{StopID: "490001", VehicleID: "LTZ1000", TimeToStation: 300, ExpectedArrival: 1700000300},
	}}, &fakeResolver{}, st, sink)

	require.NoError(t, p.RunCycle(context.Background()))

	assert.Zero(t, sink.published)
	_, err := os.Stat(cfg.StatePath)
	assert.NoError(t, err)
}

func TestCurrentSnapshotKeepsClosestApproach(t *testing.T) {
	current := currentSnapshot([]feed.Observation{
		{StopID: "490001", VehicleID: "LTZ1000", TimeToStation: 120},
		{StopID: "490001", VehicleID: "LTZ1000", TimeToStation: 15},
		{StopID: "490001", VehicleID: "LTZ1000", TimeToStation: 90},
		{StopID: "490002", VehicleID: "LTZ1000", TimeToStation: 45},
	})

	assert.Equal(t, map[track.StopVehicle]int{
		{StopID: "490001", VehicleID: "LTZ1000"}: 15,
		{StopID: "490002", VehicleID: "LTZ1000"}: 45,
	}, current)
}
