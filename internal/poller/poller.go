package poller

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/MarkHewis/tfl-drift/internal/config"
	"github.com/MarkHewis/tfl-drift/internal/export"
	"github.com/MarkHewis/tfl-drift/internal/feed"
	"github.com/MarkHewis/tfl-drift/internal/state"
	"github.com/MarkHewis/tfl-drift/internal/stops"
	"github.com/MarkHewis/tfl-drift/internal/track"
)

// Sink receives each freshly written snapshot, typically to publish it
// over HTTP. Publish must not retain or mutate tracker state; it gets
// the exact bytes written to disk.
type Sink interface {
	Publish(data []byte, generatedAt time.Time)
}

// Poller runs one scoring cycle at a time over a shared state object.
// It owns no logic beyond sequencing; the components it composes do the
// work.
type Poller struct {
	cfg    *config.Config
	source feed.Source
	st     *state.State
	cache  *stops.Cache
	ledger *track.Ledger
	agg    *track.Aggregator
	sink   Sink
	now    func() time.Time
}

// New composes the tracking components around a loaded state. The
// cache, ledger and aggregator mutate the state's maps directly, so a
// save at the end of a cycle captures everything they changed. sink
// may be nil.
func New(cfg *config.Config, source feed.Source, resolver stops.Resolver, st *state.State, sink Sink) *Poller {
	return &Poller{
		cfg:    cfg,
		source: source,
		st:     st,
		cache:  stops.NewCache(st.Stops, resolver),
		ledger: track.NewLedger(st.Predictions),
		agg:    track.NewAggregator(st.StopStats),
		sink:   sink,
		now:    time.Now,
	}
}

// RunCycle executes one fetch → score → persist pass. A fetch failure
// abandons the cycle before any state mutation; later failures are
// logged and the in-memory state catches up with disk on the next
// successful save.
func (p *Poller) RunCycle(ctx context.Context) error {
	cycleID := uuid.NewString()[:8]

	obs, err := p.source.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("cycle %s abandoned: %w", cycleID, err)
	}

	now := p.now()
	nowSec := now.Unix()

	// One resolution attempt per distinct stop per cycle.
	seen := make(map[string]bool)
	for _, o := range obs {
		if seen[o.StopID] {
			continue
		}
		seen[o.StopID] = true
		p.cache.EnsureResolved(ctx, o.StopID, o.StopName)
	}

	for _, o := range obs {
		p.ledger.Ingest(o.StopID, o.VehicleID, o.TimeToStation, o.ExpectedArrival, nowSec)
	}
	evicted := p.ledger.EvictExpired(nowSec, p.cfg.MaxPredictionAge)

	matches := p.ledger.MatchArrivals(currentSnapshot(obs), p.cfg.ArrivalThreshold, nowSec)
	for _, m := range matches {
		p.agg.RecordMatch(m.StopID, m.DriftSec)
	}

	phantoms := p.ledger.ReapPhantoms(nowSec, p.cfg.PhantomGrace)
	for _, ph := range phantoms {
		p.agg.RecordPhantom(ph.StopID)
	}

	fc := export.Collection(p.st.Stops, p.agg, p.cfg.LineID, p.cfg.Direction, now)
	if data, err := fc.Write(p.cfg.SnapshotPath); err != nil {
		log.Printf("Poller: snapshot write failed, retrying next cycle: %v", err)
	} else if p.sink != nil {
		p.sink.Publish(data, now)
	}

	p.st.Touch(now)
	if err := p.st.Save(p.cfg.StatePath); err != nil {
		return fmt.Errorf("cycle %s: %w", cycleID, err)
	}

	log.Printf("Poller: cycle %s: %d observations, %d matched, %d phantom, %d evicted, %d stops tracked",
		cycleID, len(obs), len(matches), len(phantoms), evicted, len(p.st.Stops))
	return nil
}

// currentSnapshot collapses the cycle's observations into one
// time-to-station per (stop, vehicle). When the feed repeats a pair
// within a batch the smallest value wins, so the matcher sees the
// closest approach.
func currentSnapshot(obs []feed.Observation) map[track.StopVehicle]int {
	current := make(map[track.StopVehicle]int, len(obs))
	for _, o := range obs {
		k := track.StopVehicle{StopID: o.StopID, VehicleID: o.VehicleID}
		if tts, ok := current[k]; !ok || o.TimeToStation < tts {
			current[k] = o.TimeToStation
		}
	}
	return current
}
