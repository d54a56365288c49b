// Package command validates operator intents and delivers them to the device.
package command

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/LeonardoBeccarini/pumpwatch/internal/model"
	"github.com/LeonardoBeccarini/pumpwatch/internal/model/messages"
)

const (
	Toggle   = "toggle"
	Override = "override"

	CommandPath = "/command"
	RebootPath  = "/reboot"

	RebootMessage = "Device will reboot shortly"
)

// Valid reports whether name is a command the device accepts.
func Valid(name string) bool {
	return name == Toggle || name == Override
}

// StateReader is satisfied by the connection manager.
type StateReader interface {
	State() model.ConnectionState
}

type Dispatcher struct {
	client  *DeviceClient
	state   StateReader
	metrics *Metrics
	logger  *log.Logger
}

func NewDispatcher(client *DeviceClient, state StateReader, metrics *Metrics, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.Default()
	}
	return &Dispatcher{client: client, state: state, metrics: metrics, logger: logger}
}

// SendCommand posts {"command": name} once. Validation and the connectivity
// check happen before any I/O.
func (d *Dispatcher) SendCommand(ctx context.Context, name string) (messages.CommandResponse, error) {
	if !Valid(name) {
		d.metrics.observe(name, resultRejected)
		return nil, fmt.Errorf("%w: %q", ErrInvalidCommand, name)
	}
	if st := d.state.State(); st != model.StateConnected {
		d.metrics.observe(name, resultRejected)
		return nil, fmt.Errorf("%w (state %s)", ErrNotConnected, st)
	}

	id := uuid.NewString()
	resp, err := d.client.PostJSON(ctx, CommandPath, id, messages.CommandRequest{Command: name})
	if err != nil {
		d.metrics.observe(name, resultFailed)
		d.logger.Printf("command: %s [%s] failed (breaker %s): %v", name, id, d.client.BreakerState(CommandPath), err)
		return nil, err
	}
	d.metrics.observe(name, resultOK)
	d.logger.Printf("command: %s [%s] ok: %v", name, id, resp)
	return messages.CommandResponse(resp), nil
}

// ApplySnapshot is a no-op: the dispatcher only cares about connectivity.
func (d *Dispatcher) ApplySnapshot(model.TelemetrySnapshot) {}

// SetConnectivity: a stream that comes up proves the device is reachable, so
// failures recorded on /command before that point no longer apply.
func (d *Dispatcher) SetConnectivity(c model.Connectivity) {
	if c.Connected {
		d.client.ResetBreaker(CommandPath)
	}
}

// Reboot non controlla la connessione: il device può essere raggiungibile
// anche con lo stream giù.
func (d *Dispatcher) Reboot(ctx context.Context) (messages.RebootAck, error) {
	id := uuid.NewString()
	resp, err := d.client.PostJSON(ctx, RebootPath, id, nil)
	if err != nil {
		d.metrics.observe("reboot", resultFailed)
		d.logger.Printf("command: reboot [%s] failed (breaker %s): %v", id, d.client.BreakerState(RebootPath), err)
		return messages.RebootAck{}, err
	}
	d.metrics.observe("reboot", resultOK)
	d.logger.Printf("command: reboot [%s] accepted: %v", id, resp)
	return messages.RebootAck{Message: RebootMessage, Response: messages.CommandResponse(resp)}, nil
}
