package pump_simulator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"

	"github.com/LeonardoBeccarini/pumpwatch/internal/model"
	"github.com/LeonardoBeccarini/pumpwatch/internal/model/messages"
	"github.com/LeonardoBeccarini/pumpwatch/internal/services/command"
	"github.com/LeonardoBeccarini/pumpwatch/internal/services/dashboard"
	"github.com/LeonardoBeccarini/pumpwatch/internal/services/monitor"
)

var quiet = log.New(io.Discard, "", 0)

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func TestGenerator_MotorDrivesPressure(t *testing.T) {
	g := NewDataGenerator(1)
	start := g.Pressure()
	for i := 0; i < 60; i++ {
		g.Next(time.Second, true)
	}
	if g.Pressure() <= start {
		t.Fatalf("pressure %v did not rise from %v with motor on", g.Pressure(), start)
	}
	high := g.Pressure()
	for i := 0; i < 60; i++ {
		g.Next(time.Second, false)
	}
	if g.Pressure() >= high {
		t.Fatalf("pressure %v did not fall from %v with motor off", g.Pressure(), high)
	}
}

func TestGenerator_SnapshotIsComplete(t *testing.T) {
	snap := NewDataGenerator(7).Next(time.Second, false)
	if snap.Pressure == nil || snap.Temperature == nil || snap.Flow == nil {
		t.Fatalf("snapshot=%+v", snap)
	}
	if *snap.Flow < 0 || *snap.Pressure < 0 {
		t.Fatalf("negative reading: %+v", snap)
	}
}

type docRecorder struct {
	mu   sync.Mutex
	docs []string
}

func (r *docRecorder) Publish(p string) error {
	r.mu.Lock()
	r.docs = append(r.docs, p)
	r.mu.Unlock()
	return nil
}

func (r *docRecorder) last() messages.DeviceState {
	r.mu.Lock()
	defer r.mu.Unlock()
	var st messages.DeviceState
	_ = json.Unmarshal([]byte(r.docs[len(r.docs)-1]), &st)
	return st
}

func TestCommandEndpoint(t *testing.T) {
	rec := &docRecorder{}
	sim := NewPumpSimulator(NewDataGenerator(1), rec, clockwork.NewFakeClockAt(time.Unix(0, 0)), quiet)
	srv := httptest.NewServer(sim.Handler())
	defer srv.Close()

	post := func(body string) (int, map[string]any) {
		resp, err := http.Post(srv.URL+"/command", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		var out map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&out)
		return resp.StatusCode, out
	}

	if code, _ := post(`{"command":"reset"}`); code != http.StatusBadRequest {
		t.Fatalf("unknown command code=%d", code)
	}
	code, out := post(`{"command":"override"}`)
	if code != http.StatusOK || out["override"] != "ON" {
		t.Fatalf("override code=%d out=%v", code, out)
	}
	_, out = post(`{"command":"toggle"}`)
	if out["motor"] != "ON" {
		t.Fatalf("toggle in manual: %v", out)
	}
	st := rec.last()
	if st.Motor == nil || !*st.Motor || st.Override == nil || !*st.Override {
		t.Fatalf("state document=%+v", st)
	}
}

// The full client against the simulated device: stream, commands, reboot, reconnect.
func TestClientAgainstSimulator(t *testing.T) {
	simClock := clockwork.NewFakeClockAt(time.Unix(0, 0))
	sim := NewPumpSimulator(NewDataGenerator(42), nil, simClock, quiet)
	sim.Tick(time.Second)
	srv := httptest.NewServer(sim.Handler())
	defer srv.Close()

	store := dashboard.NewStore(model.DefaultThresholds())
	mgr := monitor.NewConnectionManager(monitor.Config{
		Host:    "sim",
		Backoff: backoff.NewConstantBackOff(20 * time.Millisecond),
		Logger:  quiet,
	}, monitor.NewSSEDialer(srv.URL, nil), store)
	defer mgr.Close()

	client := command.NewDeviceClient(srv.URL, 2*time.Second, command.DefaultBreakerConfig())
	disp := command.NewDispatcher(client, mgr, nil, quiet)
	mgr.Subscribe(disp)

	mgr.Open()
	eventually(t, "connected with telemetry", func() bool {
		v := store.View()
		return v.Connection.Connected && v.Pressure.Set && v.Motor.Set
	})
	if got := store.View().Connection.Label; got != "sim" {
		t.Fatalf("label=%q", got)
	}

	if _, err := disp.SendCommand(context.Background(), command.Override); err != nil {
		t.Fatalf("override: %v", err)
	}
	eventually(t, "manual mode on the dashboard", func() bool {
		return store.View().Mode.Text == dashboard.ModeManual
	})

	ack, err := disp.Reboot(context.Background())
	if err != nil || ack.Message != command.RebootMessage {
		t.Fatalf("reboot: %+v %v", ack, err)
	}
	simClock.Advance(time.Second) // the device drops its streams

	eventually(t, "reconnected after reboot", func() bool {
		return mgr.State() == model.StateConnected && sim.Clients() == 1
	})
	if _, err := disp.SendCommand(context.Background(), "reset"); !errors.Is(err, command.ErrInvalidCommand) {
		t.Fatalf("err=%v", err)
	}
}
