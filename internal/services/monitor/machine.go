package monitor

import "github.com/LeonardoBeccarini/pumpwatch/internal/model"

// Handle identifies one stream instance. Zero means "no stream".
type Handle uint64

type EventKind int

const (
	EventOpenRequested EventKind = iota // Open() called by the owner
	EventReconnectDue                   // the reconnect timer fired
	EventStreamOpened                   // transport reported the stream open
	EventStreamFailed                   // transport reported an error/EOF
	EventMessageReceived                // transport delivered a message
)

// Event fed to the Machine. Handle is set for transport callbacks.
type Event struct {
	Kind   EventKind
	Handle Handle
}

type EffectKind int

const (
	EffectCloseStream EffectKind = iota
	EffectOpenStream
	EffectEmitConnectivity
	EffectScheduleReconnect
	EffectDeliverMessage
)

// Effect is a side effect the Machine asks its owner to perform, in order.
type Effect struct {
	Kind      EffectKind
	Handle    Handle
	Connected bool
}

// Machine is the pure connection state machine. Step never performs I/O:
// it returns the next machine and the effects to run.
type Machine struct {
	State  model.ConnectionState
	Active Handle // stream currently owned, 0 if none
	last   Handle // last handle issued
}

// Step applies ev and returns the next machine and its effects.
func (m Machine) Step(ev Event) (Machine, []Effect) {
	switch ev.Kind {
	case EventOpenRequested, EventReconnectDue:
		return m.open()

	case EventStreamOpened:
		if m.isStale(ev.Handle) || m.State == model.StateConnected {
			return m, nil
		}
		m.State = model.StateConnected
		return m, []Effect{{Kind: EffectEmitConnectivity, Connected: true}}

	case EventStreamFailed:
		if m.isStale(ev.Handle) {
			return m, nil
		}
		h := m.Active
		m.Active = 0
		m.State = model.StateDisconnected
		return m, []Effect{
			{Kind: EffectCloseStream, Handle: h},
			{Kind: EffectEmitConnectivity, Connected: false},
			{Kind: EffectScheduleReconnect},
		}

	case EventMessageReceived:
		if m.isStale(ev.Handle) {
			return m, nil
		}
		return m, []Effect{{Kind: EffectDeliverMessage, Handle: ev.Handle}}
	}
	return m, nil
}

func (m Machine) open() (Machine, []Effect) {
	var effects []Effect
	if m.Active != 0 {
		effects = append(effects, Effect{Kind: EffectCloseStream, Handle: m.Active})
	}
	if m.State == model.StateConnected {
		effects = append(effects, Effect{Kind: EffectEmitConnectivity, Connected: false})
	}
	m.last++
	m.Active = m.last
	m.State = model.StateConnecting
	effects = append(effects, Effect{Kind: EffectOpenStream, Handle: m.Active})
	return m, effects
}

// isStale: callbacks from superseded (or already failed) handles are ignored.
func (m Machine) isStale(h Handle) bool {
	return h == 0 || h != m.Active
}
