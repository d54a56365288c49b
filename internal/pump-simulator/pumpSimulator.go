package pump_simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/LeonardoBeccarini/pumpwatch/internal/model"
	"github.com/LeonardoBeccarini/pumpwatch/internal/model/messages"
)

// Publisher riceve il documento di stato Home Assistant (retained).
type Publisher interface {
	Publish(payload string) error
}

// PumpSimulator is a fake pump controller: it serves the same /events,
// /command and /reboot endpoints as the firmware.
// In AUTO the motor follows a pressure hysteresis; in MANUAL it follows the
// toggle switch.
type PumpSimulator struct {
	mu              sync.Mutex
	gen             *DataGenerator
	thresholds      model.ThresholdConfig
	motor           bool
	manualMotor     bool
	override        bool
	rebootRequested bool
	last            model.TelemetrySnapshot
	subs            map[chan []byte]struct{}

	publisher   Publisher // nil = niente MQTT
	clock       clockwork.Clock
	rebootDelay time.Duration
	logger      *log.Logger
}

func NewPumpSimulator(gen *DataGenerator, publisher Publisher, clk clockwork.Clock, logger *log.Logger) *PumpSimulator {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &PumpSimulator{
		gen:         gen,
		thresholds:  model.DefaultThresholds(),
		subs:        make(map[chan []byte]struct{}),
		publisher:   publisher,
		clock:       clk,
		rebootDelay: time.Second,
		logger:      logger,
	}
}

func (s *PumpSimulator) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/command", s.handleCommand)
	mux.HandleFunc("/reboot", s.handleReboot)
	return mux
}

// Start campiona ogni interval finché ctx non termina.
func (s *PumpSimulator) Start(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			s.dropClients()
			return
		case <-t.C:
			s.Tick(interval)
		}
	}
}

// Tick advances the simulation by dt and pushes a full update.
func (s *PumpSimulator) Tick(dt time.Duration) {
	s.mu.Lock()
	s.control()
	snap := s.gen.Next(dt, s.motor)
	snap.MotorOn = model.Bool(s.motor)
	snap.ManualOverride = model.Bool(s.override)
	s.last = s.last.Merge(snap)
	s.broadcastLocked(snap)
	doc := s.stateDocLocked()
	s.mu.Unlock()

	s.publish(doc)
}

// control: in AUTO parte sotto Min e si ferma oltre la soglia di warning.
func (s *PumpSimulator) control() {
	if s.override {
		s.motor = s.manualMotor
		return
	}
	p := s.gen.Pressure()
	switch {
	case p <= s.thresholds.Pressure.Min:
		s.motor = true
	case p >= s.thresholds.Pressure.WarningThreshold:
		s.motor = false
	}
}

func (s *PumpSimulator) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ch := make(chan []byte, 16)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	first := s.last
	s.mu.Unlock()
	defer s.unsubscribe(ch)

	// il client riceve subito l'ultimo stato noto
	if !first.IsEmpty() {
		writeEvent(w, encode(first))
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case data, ok := <-ch:
			if !ok {
				return
			}
			writeEvent(w, data)
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, data []byte) {
	fmt.Fprintf(w, "event: update\ndata: %s\n\n", data)
}

func (s *PumpSimulator) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req messages.CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid body"})
		return
	}

	s.mu.Lock()
	switch req.Command {
	case "toggle":
		s.manualMotor = !s.manualMotor
	case "override":
		s.override = !s.override
		s.manualMotor = s.motor // passando a MANUAL il motore non cambia stato
	default:
		s.mu.Unlock()
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unknown command"})
		return
	}
	s.control()
	change := model.TelemetrySnapshot{MotorOn: model.Bool(s.motor), ManualOverride: model.Bool(s.override)}
	s.last = s.last.Merge(change)
	s.broadcastLocked(change)
	doc := s.stateDocLocked()
	resp := map[string]any{"status": "ok", "motor": onOff(s.motor), "override": onOff(s.override)}
	s.mu.Unlock()

	s.logger.Printf("pump-sim: command %s [%s] -> motor=%s override=%s",
		req.Command, r.Header.Get("X-Request-ID"), resp["motor"], resp["override"])
	s.publish(doc)
	writeJSON(w, http.StatusOK, resp)
}

func (s *PumpSimulator) handleReboot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.mu.Lock()
	s.rebootRequested = true
	doc := s.stateDocLocked()
	s.mu.Unlock()
	s.publish(doc)

	s.logger.Printf("pump-sim: reboot in %s", s.rebootDelay)
	s.clock.AfterFunc(s.rebootDelay, s.reboot)
	writeJSON(w, http.StatusOK, map[string]any{"status": "rebooting"})
}

// reboot drops every event stream; clients have to reconnect.
func (s *PumpSimulator) reboot() {
	s.dropClients()
	s.mu.Lock()
	s.rebootRequested = false
	s.mu.Unlock()
	s.logger.Printf("pump-sim: rebooted")
}

func (s *PumpSimulator) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *PumpSimulator) dropClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		close(ch)
		delete(s.subs, ch)
	}
}

func (s *PumpSimulator) unsubscribe(ch chan []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[ch]; ok {
		delete(s.subs, ch)
		close(ch)
	}
}

// broadcastLocked: un client lento perde aggiornamenti, non blocca gli altri.
func (s *PumpSimulator) broadcastLocked(snap model.TelemetrySnapshot) {
	data := encode(snap)
	for ch := range s.subs {
		select {
		case ch <- data:
		default:
		}
	}
}

// stateDocLocked builds the homeassistant/<device>/state document.
func (s *PumpSimulator) stateDocLocked() map[string]any {
	doc := map[string]any{
		"motor":            onOff(s.motor),
		"override":         onOff(s.override),
		"main":             "ON",
		"error":            "OFF",
		"reboot_requested": s.rebootRequested,
	}
	if s.last.Pressure != nil {
		doc["pressure"] = *s.last.Pressure
	}
	if s.last.Temperature != nil {
		doc["temperature"] = *s.last.Temperature
	}
	if s.last.Flow != nil {
		doc["flow"] = *s.last.Flow
	}
	return doc
}

func (s *PumpSimulator) publish(doc map[string]any) {
	if s.publisher == nil {
		return
	}
	b, _ := json.Marshal(doc)
	if err := s.publisher.Publish(string(b)); err != nil {
		s.logger.Printf("pump-sim: publish state: %v", err)
	}
}

func encode(snap model.TelemetrySnapshot) []byte {
	b, _ := json.Marshal(snap)
	return b
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
