package track

import (
	"sort"
	"time"
)

// PhantomEvent reports a prediction that outlived its grace window
// without an observed arrival.
type PhantomEvent struct {
	StopID string
}

// ReapPhantoms moves open predictions whose expected arrival passed
// more than grace ago to StatusPhantom. It must run after MatchArrivals
// within a cycle so a prediction matched this cycle is never also
// reaped. Reaped predictions stay in the ledger until age eviction but
// are no longer match candidates. Stops are walked in sorted order.
func (l *Ledger) ReapPhantoms(now int64, grace time.Duration) []PhantomEvent {
	graceSec := int64(grace / time.Second)

	stopIDs := make([]string, 0, len(l.byStop))
	for stopID := range l.byStop {
		stopIDs = append(stopIDs, stopID)
	}
	sort.Strings(stopIDs)

	var events []PhantomEvent
	for _, stopID := range stopIDs {
		for _, p := range l.byStop[stopID] {
			if p.Status != StatusOpen {
				continue
			}
			if now > p.ExpectedArrival+graceSec {
				p.Status = StatusPhantom
				events = append(events, PhantomEvent{StopID: stopID})
			}
		}
	}
	return events
}
