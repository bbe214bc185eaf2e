package alerting

import (
	"encoding/json"
	"os"
	"time"
)

// State is the persisted alerting state: open breach windows, active
// silences, and last-seen counter values for delta calculations.
type State struct {
	Breaches   map[string]time.Time `json:"breaches"`
	Silenced   map[string]time.Time `json:"silenced"`
	LastValues map[string]float64   `json:"last_values"`

	path string
}

// LoadState reads state from path, returning a fresh empty State if the
// file does not exist or fails to parse.
func LoadState(path string) *State {
	s := &State{
		Breaches:   map[string]time.Time{},
		Silenced:   map[string]time.Time{},
		LastValues: map[string]float64{},
		path:       path,
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return s
	}
	var loaded State
	if err := json.Unmarshal(raw, &loaded); err != nil {
		return s
	}
	if loaded.Breaches != nil {
		s.Breaches = loaded.Breaches
	}
	if loaded.Silenced != nil {
		s.Silenced = loaded.Silenced
	}
	if loaded.LastValues != nil {
		s.LastValues = loaded.LastValues
	}
	return s
}

// Save persists the current state to its backing file.
func (s *State) Save() error {
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, raw, 0o644)
}

// IsSilenced reports whether ruleName is within an active silence window.
func (s *State) IsSilenced(ruleName string, now time.Time) bool {
	until, ok := s.Silenced[ruleName]
	if !ok {
		return false
	}
	return now.Before(until)
}

// SetSilence opens a silence window of the given duration for ruleName.
func (s *State) SetSilence(ruleName string, seconds int, now time.Time) {
	s.Silenced[ruleName] = now.Add(time.Duration(seconds) * time.Second)
}

// UpdateBreach tracks how long ruleName has been continuously breached,
// returning true once it has been breached for the full windowSeconds.
// A non-breaching call clears any open breach window.
func (s *State) UpdateBreach(ruleName string, breached bool, windowSeconds int, now time.Time) bool {
	if !breached {
		delete(s.Breaches, ruleName)
		return false
	}

	first, ok := s.Breaches[ruleName]
	if !ok {
		s.Breaches[ruleName] = now
		return false
	}
	return now.Sub(first).Seconds() >= float64(windowSeconds)
}

// GetDelta returns max(0, currentValue - lastValue) for metricKey,
// recording currentValue as the new baseline. Counters only increase, so
// a negative delta (a reset) is clamped to zero.
func (s *State) GetDelta(metricKey string, currentValue float64) float64 {
	last := s.LastValues[metricKey]
	delta := currentValue - last
	s.LastValues[metricKey] = currentValue
	if delta < 0 {
		return 0
	}
	return delta
}
