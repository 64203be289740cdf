package state

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/MarkHewis/tfl-drift/internal/stops"
	"github.com/MarkHewis/tfl-drift/internal/track"
)

// State is the durable tracker snapshot persisted between cycles. The
// maps inside are shared with the live components, so saving the struct
// captures whatever they have mutated during the cycle.
type State struct {
	LastUpdated *time.Time                     `json:"lastUpdated"`
	Direction   string                         `json:"direction"`
	Stops       map[string]*stops.Metadata     `json:"stops"`
	Predictions map[string][]*track.Prediction `json:"predictions"`
	StopStats   map[string]*track.StopStats    `json:"stopStats"`
}

// New returns an empty state tagged with the configured direction.
func New(direction string) *State {
	return &State{
		Direction:   direction,
		Stops:       make(map[string]*stops.Metadata),
		Predictions: make(map[string][]*track.Prediction),
		StopStats:   make(map[string]*track.StopStats),
	}
}

// Load reads the state file at path. A missing, empty or corrupt file
// is not fatal: tracking starts over with an empty state. The direction
// tag always reflects the current configuration, whatever the file
// says.
func Load(path, direction string) *State {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("State: no previous state at %s, starting fresh", path)
		} else {
			log.Printf("State: reading %s failed, starting fresh: %v", path, err)
		}
		return New(direction)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		log.Printf("State: %s is corrupt, starting fresh: %v", path, err)
		return New(direction)
	}

	st.Direction = direction
	if st.Stops == nil {
		st.Stops = make(map[string]*stops.Metadata)
	}
	if st.Predictions == nil {
		st.Predictions = make(map[string][]*track.Prediction)
	}
	if st.StopStats == nil {
		st.StopStats = make(map[string]*track.StopStats)
	}
	return &st
}

// Save writes the state as indented JSON through a sibling temp file
// renamed over the target, so a crash mid-write leaves the previous
// file intact.
func (s *State) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// Touch stamps the state with the time of the last successful cycle.
func (s *State) Touch(now time.Time) {
	t := now.UTC()
	s.LastUpdated = &t
}
