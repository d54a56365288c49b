package dashboard

import (
	"sync"

	"github.com/LeonardoBeccarini/pumpwatch/internal/model"
)

// Store keeps the latest value of every field and the link state, and pushes
// a freshly rendered DisplayState to its observers on every change.
// It is the sink the connection manager and the MQTT bridge write into.
type Store struct {
	thresholds model.ThresholdConfig

	mu        sync.RWMutex
	snap      model.TelemetrySnapshot
	conn      model.Connectivity
	observers []func(DisplayState)
}

func NewStore(th model.ThresholdConfig) *Store {
	return &Store{thresholds: th}
}

// Observe registers fn; it is called with the current state right away.
// Observers run synchronously and must not call back into the Store.
func (s *Store) Observe(fn func(DisplayState)) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	ds := Render(s.snap, s.conn, s.thresholds)
	s.mu.Unlock()
	fn(ds)
}

// ApplySnapshot merges snap: absent fields keep their last known value.
func (s *Store) ApplySnapshot(snap model.TelemetrySnapshot) {
	if snap.IsEmpty() {
		return
	}
	s.mu.Lock()
	s.snap = s.snap.Merge(snap)
	s.notifyLocked()
	s.mu.Unlock()
}

func (s *Store) SetConnectivity(c model.Connectivity) {
	s.mu.Lock()
	s.conn = c
	s.notifyLocked()
	s.mu.Unlock()
}

// Snapshot returns the merged telemetry.
func (s *Store) Snapshot() model.TelemetrySnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// View renders the current state.
func (s *Store) View() DisplayState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Render(s.snap, s.conn, s.thresholds)
}

// notifyLocked keeps observers in the same order as the updates.
func (s *Store) notifyLocked() {
	if len(s.observers) == 0 {
		return
	}
	ds := Render(s.snap, s.conn, s.thresholds)
	for _, fn := range s.observers {
		fn(ds)
	}
}
