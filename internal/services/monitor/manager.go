package monitor

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"

	"github.com/LeonardoBeccarini/pumpwatch/internal/model"
)

const (
	// UpdateEventType is the SSE event carrying telemetry.
	UpdateEventType = "update"
	// ReconnectDelay is the fixed client-driven backoff after a stream error.
	ReconnectDelay = 3000 * time.Millisecond
)

// StreamCallbacks are invoked by a Stream, always from a goroutine other than
// the one calling Dialer.Open.
type StreamCallbacks struct {
	OnOpen    func()
	OnError   func(err error)
	OnMessage func(eventType string, data []byte)
}

// Stream is one live connection to the device event source.
type Stream interface {
	Close() error
}

// Dialer creates streams. Open must return immediately; the outcome is
// reported through the callbacks.
type Dialer interface {
	Open(cb StreamCallbacks) Stream
}

// Sink receives decoded telemetry and connectivity changes.
type Sink interface {
	ApplySnapshot(snap model.TelemetrySnapshot)
	SetConnectivity(c model.Connectivity)
}

// StateReader is the read-only view of the connection other components get.
type StateReader interface {
	State() model.ConnectionState
}

type Config struct {
	Host      string          // shown by the dashboard while connected
	EventType string          // default UpdateEventType
	Backoff   backoff.BackOff // default constant ReconnectDelay
	Clock     clockwork.Clock // default real clock
	Metrics   *Metrics
	Logger    *log.Logger
}

// ConnectionManager owns the device event stream and the ConnectionState.
// Every machine step and its effects run under mu, so callbacks are handled
// one at a time in arrival order.
type ConnectionManager struct {
	cfg    Config
	dialer Dialer
	sinks  []Sink

	mu                sync.Mutex
	machine           Machine
	streams           map[Handle]Stream
	pendingReconnects int
	closed            bool

	state atomic.Int32
}

type message struct {
	eventType string
	data      []byte
}

func NewConnectionManager(cfg Config, dialer Dialer, sinks ...Sink) *ConnectionManager {
	if cfg.EventType == "" {
		cfg.EventType = UpdateEventType
	}
	if cfg.Backoff == nil {
		cfg.Backoff = backoff.NewConstantBackOff(ReconnectDelay)
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	m := &ConnectionManager{
		cfg:     cfg,
		dialer:  dialer,
		sinks:   sinks,
		streams: make(map[Handle]Stream),
	}
	m.cfg.Metrics.setState(model.StateDisconnected)
	return m
}

// Subscribe adds a sink; it sees connectivity changes from the next step on.
func (m *ConnectionManager) Subscribe(s Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, s)
}

// Open (re)connects: any existing stream is closed before a new one is created.
func (m *ConnectionManager) Open() {
	m.handle(Event{Kind: EventOpenRequested}, nil)
}

// Close stops the manager for good. Timers already scheduled still fire but
// do nothing.
func (m *ConnectionManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for h, s := range m.streams {
		m.closeStream(h, s)
	}
	m.machine = Machine{State: model.StateDisconnected, last: m.machine.last}
	m.publishState()
}

func (m *ConnectionManager) State() model.ConnectionState {
	return model.ConnectionState(m.state.Load())
}

func (m *ConnectionManager) Host() string { return m.cfg.Host }

// PendingReconnects returns how many reconnect timers are scheduled and not fired.
func (m *ConnectionManager) PendingReconnects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pendingReconnects
}

func (m *ConnectionManager) handle(ev Event, msg *message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}

	next, effects := m.machine.Step(ev)
	m.machine = next
	m.publishState()

	if ev.Kind == EventStreamFailed && len(effects) > 0 {
		m.cfg.Metrics.StreamErrors.Inc()
	}
	for _, e := range effects {
		m.run(e, msg)
	}
}

func (m *ConnectionManager) run(e Effect, msg *message) {
	switch e.Kind {
	case EffectCloseStream:
		if s, ok := m.streams[e.Handle]; ok {
			m.closeStream(e.Handle, s)
		}

	case EffectOpenStream:
		m.cfg.Logger.Printf("monitor: opening stream #%d to %s", e.Handle, m.cfg.Host)
		m.cfg.Metrics.StreamOpens.Inc()
		m.streams[e.Handle] = m.dialer.Open(m.callbacksFor(e.Handle))

	case EffectEmitConnectivity:
		if e.Connected {
			m.cfg.Logger.Printf("monitor: connected to %s", m.cfg.Host)
		} else {
			m.cfg.Logger.Printf("monitor: disconnected from %s", m.cfg.Host)
		}
		c := model.Connectivity{Connected: e.Connected, Host: m.cfg.Host}
		for _, s := range m.sinks {
			s.SetConnectivity(c)
		}

	case EffectScheduleReconnect:
		delay := m.cfg.Backoff.NextBackOff()
		if delay == backoff.Stop || delay <= 0 {
			delay = ReconnectDelay
		}
		m.pendingReconnects++
		m.cfg.Metrics.ReconnectsScheduled.Inc()
		m.cfg.Logger.Printf("monitor: reconnecting in %s", delay)
		// single shot, never cancelled: Open is safe to run twice
		m.cfg.Clock.AfterFunc(delay, m.reconnectDue)

	case EffectDeliverMessage:
		if msg != nil {
			m.deliver(msg)
		}
	}
}

func (m *ConnectionManager) reconnectDue() {
	m.mu.Lock()
	m.pendingReconnects--
	m.mu.Unlock()
	m.handle(Event{Kind: EventReconnectDue}, nil)
}

func (m *ConnectionManager) deliver(msg *message) {
	if msg.eventType != m.cfg.EventType {
		return
	}
	snap, err := DecodeSnapshot(msg.eventType, msg.data)
	if err != nil {
		// il messaggio viene scartato, lo stream resta aperto
		m.cfg.Metrics.DecodeErrors.Inc()
		m.cfg.Logger.Printf("monitor: %v", err)
		return
	}
	m.cfg.Metrics.Snapshots.Inc()
	if snap.IsEmpty() {
		return
	}
	for _, s := range m.sinks {
		s.ApplySnapshot(snap)
	}
}

func (m *ConnectionManager) callbacksFor(h Handle) StreamCallbacks {
	return StreamCallbacks{
		OnOpen: func() {
			m.handle(Event{Kind: EventStreamOpened, Handle: h}, nil)
		},
		OnError: func(err error) {
			m.cfg.Logger.Printf("monitor: stream #%d error: %v", h, err)
			m.handle(Event{Kind: EventStreamFailed, Handle: h}, nil)
		},
		OnMessage: func(eventType string, data []byte) {
			m.handle(Event{Kind: EventMessageReceived, Handle: h}, &message{eventType: eventType, data: data})
		},
	}
}

func (m *ConnectionManager) closeStream(h Handle, s Stream) {
	delete(m.streams, h)
	if s == nil {
		return
	}
	if err := s.Close(); err != nil {
		m.cfg.Logger.Printf("monitor: closing stream #%d: %v", h, err)
	}
}

func (m *ConnectionManager) publishState() {
	m.state.Store(int32(m.machine.State))
	m.cfg.Metrics.setState(m.machine.State)
}
