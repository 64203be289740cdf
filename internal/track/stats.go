package track

// StopStats accumulates scoring outcomes for one stop. Counters only
// grow; resetting them means deleting the state file.
type StopStats struct {
	SampleCount  int     `json:"sampleCount"`
	DriftSecSum  float64 `json:"driftSecSum"`
	PhantomCount int     `json:"phantomCount"`
}

// Summary is the derived read-only view of a stop's counters.
type Summary struct {
	MeanDriftSec float64
	PhantomRate  float64
	Samples      int
}

// Aggregator maintains the per-stop counters fed by match and phantom
// events.
type Aggregator struct {
	stats map[string]*StopStats
}

// NewAggregator wraps an existing per-stop stats map, typically the one
// loaded from the state file.
func NewAggregator(stats map[string]*StopStats) *Aggregator {
	if stats == nil {
		stats = make(map[string]*StopStats)
	}
	return &Aggregator{stats: stats}
}

// RecordMatch adds one scored arrival to the stop's counters.
func (a *Aggregator) RecordMatch(stopID string, driftSec int) {
	s := a.ensure(stopID)
	s.SampleCount++
	s.DriftSecSum += float64(driftSec)
}

// RecordPhantom counts one prediction that never materialized.
func (a *Aggregator) RecordPhantom(stopID string) {
	a.ensure(stopID).PhantomCount++
}

func (a *Aggregator) ensure(stopID string) *StopStats {
	s, ok := a.stats[stopID]
	if !ok {
		s = &StopStats{}
		a.stats[stopID] = s
	}
	return s
}

// Snapshot derives the mean drift and phantom rate for a stop. Both are
// 0 for a stop with no recorded events, including unknown stops.
func (a *Aggregator) Snapshot(stopID string) Summary {
	s, ok := a.stats[stopID]
	if !ok {
		return Summary{}
	}
	sum := Summary{Samples: s.SampleCount}
	if s.SampleCount > 0 {
		sum.MeanDriftSec = s.DriftSecSum / float64(s.SampleCount)
	}
	if total := s.SampleCount + s.PhantomCount; total > 0 {
		sum.PhantomRate = float64(s.PhantomCount) / float64(total)
	}
	return sum
}
