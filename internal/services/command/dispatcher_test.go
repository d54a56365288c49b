package command

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"

	"github.com/LeonardoBeccarini/pumpwatch/internal/model"
)

type fixedState model.ConnectionState

func (s fixedState) State() model.ConnectionState { return model.ConnectionState(s) }

type recorded struct {
	method, path, body, requestID, contentType string
}

type fakeDevice struct {
	srv    *httptest.Server
	hits   atomic.Int32
	status atomic.Int32

	mu   sync.Mutex
	reqs []recorded
}

func newFakeDevice(t *testing.T) *fakeDevice {
	t.Helper()
	d := &fakeDevice{}
	d.status.Store(http.StatusOK)
	d.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d.hits.Add(1)
		b, _ := io.ReadAll(r.Body)
		d.mu.Lock()
		d.reqs = append(d.reqs, recorded{
			method:      r.Method,
			path:        r.URL.Path,
			body:        string(b),
			requestID:   r.Header.Get(RequestIDHeader),
			contentType: r.Header.Get("Content-Type"),
		})
		d.mu.Unlock()

		code := int(d.status.Load())
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if code == http.StatusOK {
			_, _ = w.Write([]byte(`{"status":"ok","motor":"ON"}`))
		}
	}))
	t.Cleanup(d.srv.Close)
	return d
}

func (d *fakeDevice) last() recorded {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reqs[len(d.reqs)-1]
}

func newTestDispatcher(base string, st model.ConnectionState, bc BreakerConfig, reg prometheus.Registerer) *Dispatcher {
	client := NewDeviceClient(base, 2*time.Second, bc)
	return NewDispatcher(client, fixedState(st), NewMetrics(reg), log.New(io.Discard, "", 0))
}

func TestSendCommand_InvalidNameSendsNothing(t *testing.T) {
	dev := newFakeDevice(t)
	d := newTestDispatcher(dev.srv.URL, model.StateConnected, DefaultBreakerConfig(), nil)

	_, err := d.SendCommand(context.Background(), "reset")
	if !errors.Is(err, ErrInvalidCommand) {
		t.Fatalf("err=%v want ErrInvalidCommand", err)
	}
	if n := dev.hits.Load(); n != 0 {
		t.Fatalf("requests=%d want 0", n)
	}
}

func TestSendCommand_NotConnectedSendsNothing(t *testing.T) {
	dev := newFakeDevice(t)
	for _, st := range []model.ConnectionState{model.StateDisconnected, model.StateConnecting} {
		d := newTestDispatcher(dev.srv.URL, st, DefaultBreakerConfig(), nil)
		_, err := d.SendCommand(context.Background(), Toggle)
		if !errors.Is(err, ErrNotConnected) {
			t.Fatalf("state %s: err=%v want ErrNotConnected", st, err)
		}
	}
	if n := dev.hits.Load(); n != 0 {
		t.Fatalf("requests=%d want 0", n)
	}
}

func TestSendCommand_Success(t *testing.T) {
	dev := newFakeDevice(t)
	reg := prometheus.NewRegistry()
	d := newTestDispatcher(dev.srv.URL+"/", model.StateConnected, DefaultBreakerConfig(), reg)

	resp, err := d.SendCommand(context.Background(), Override)
	if err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if resp["status"] != "ok" {
		t.Fatalf("resp=%v", resp)
	}

	got := dev.last()
	if got.method != http.MethodPost || got.path != CommandPath {
		t.Fatalf("request %s %s", got.method, got.path)
	}
	var body map[string]string
	if err := json.Unmarshal([]byte(got.body), &body); err != nil || body["command"] != Override {
		t.Fatalf("body=%q err=%v", got.body, err)
	}
	if got.contentType != "application/json" {
		t.Fatalf("content-type=%q", got.contentType)
	}
	if got.requestID == "" {
		t.Fatal("missing request id")
	}
	if v := testutil.ToFloat64(d.metrics.Commands.WithLabelValues(Override, resultOK)); v != 1 {
		t.Fatalf("commands_total{override,ok}=%v", v)
	}
}

func TestSendCommand_ServerErrorIsDeliveryError(t *testing.T) {
	dev := newFakeDevice(t)
	dev.status.Store(http.StatusInternalServerError)
	d := newTestDispatcher(dev.srv.URL, model.StateConnected, DefaultBreakerConfig(), nil)

	_, err := d.SendCommand(context.Background(), Toggle)
	var de *DeliveryError
	if !errors.As(err, &de) {
		t.Fatalf("err=%v want *DeliveryError", err)
	}
	if de.Status != http.StatusInternalServerError || de.Op != "POST /command" {
		t.Fatalf("delivery error=%+v", de)
	}
	if n := dev.hits.Load(); n != 1 {
		t.Fatalf("requests=%d want exactly 1 (no retry)", n)
	}
}

func TestSendCommand_NetworkFailure(t *testing.T) {
	dev := newFakeDevice(t)
	url := dev.srv.URL
	dev.srv.Close()
	d := newTestDispatcher(url, model.StateConnected, DefaultBreakerConfig(), nil)

	_, err := d.SendCommand(context.Background(), Toggle)
	var de *DeliveryError
	if !errors.As(err, &de) {
		t.Fatalf("err=%v want *DeliveryError", err)
	}
	if de.Status != 0 {
		t.Fatalf("status=%d want 0", de.Status)
	}
}

func TestReboot_IgnoresConnectivity(t *testing.T) {
	dev := newFakeDevice(t)
	d := newTestDispatcher(dev.srv.URL, model.StateDisconnected, DefaultBreakerConfig(), nil)

	ack, err := d.Reboot(context.Background())
	if err != nil {
		t.Fatalf("Reboot: %v", err)
	}
	if ack.Message != RebootMessage {
		t.Fatalf("message=%q", ack.Message)
	}
	got := dev.last()
	if got.path != RebootPath || got.body != "" {
		t.Fatalf("request path=%s body=%q", got.path, got.body)
	}
}

func TestReboot_FailureIsDeliveryError(t *testing.T) {
	dev := newFakeDevice(t)
	dev.status.Store(http.StatusServiceUnavailable)
	d := newTestDispatcher(dev.srv.URL, model.StateConnected, DefaultBreakerConfig(), nil)

	_, err := d.Reboot(context.Background())
	var de *DeliveryError
	if !errors.As(err, &de) || de.Status != http.StatusServiceUnavailable {
		t.Fatalf("err=%v", err)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	dev := newFakeDevice(t)
	dev.status.Store(http.StatusBadGateway)
	d := newTestDispatcher(dev.srv.URL, model.StateConnected, BreakerConfig{Fails: 2, OpenFor: time.Minute}, nil)

	for i := 0; i < 2; i++ {
		if _, err := d.SendCommand(context.Background(), Toggle); err == nil {
			t.Fatalf("call %d: expected failure", i)
		}
	}
	_, err := d.SendCommand(context.Background(), Toggle)
	var de *DeliveryError
	if !errors.As(err, &de) {
		t.Fatalf("err=%v want *DeliveryError", err)
	}
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("err=%v want open breaker", err)
	}
	if n := dev.hits.Load(); n != 2 {
		t.Fatalf("requests=%d want 2", n)
	}
	if st := d.client.BreakerState(CommandPath); st != gobreaker.StateOpen {
		t.Fatalf("breaker=%s", st)
	}
}

func TestRebootFailuresDoNotBlockCommands(t *testing.T) {
	dev := newFakeDevice(t)
	dev.status.Store(http.StatusInternalServerError)
	d := newTestDispatcher(dev.srv.URL, model.StateConnected, BreakerConfig{Fails: 3, OpenFor: time.Minute}, nil)

	for i := 0; i < 4; i++ {
		_, _ = d.Reboot(context.Background())
	}
	if st := d.client.BreakerState(RebootPath); st != gobreaker.StateOpen {
		t.Fatalf("reboot breaker=%s", st)
	}

	dev.status.Store(http.StatusOK)
	before := dev.hits.Load()
	if _, err := d.SendCommand(context.Background(), Toggle); err != nil {
		t.Fatalf("connected toggle: %v", err)
	}
	if n := dev.hits.Load() - before; n != 1 {
		t.Fatalf("/command requests=%d want 1", n)
	}
}

func TestClientErrorsDoNotTripBreaker(t *testing.T) {
	dev := newFakeDevice(t)
	dev.status.Store(http.StatusBadRequest)
	d := newTestDispatcher(dev.srv.URL, model.StateConnected, BreakerConfig{Fails: 1, OpenFor: time.Minute}, nil)

	for i := 0; i < 3; i++ {
		_, err := d.SendCommand(context.Background(), Toggle)
		var de *DeliveryError
		if !errors.As(err, &de) || de.Status != http.StatusBadRequest {
			t.Fatalf("call %d: err=%v", i, err)
		}
	}
	if n := dev.hits.Load(); n != 3 {
		t.Fatalf("requests=%d want 3", n)
	}
	if st := d.client.BreakerState(CommandPath); st != gobreaker.StateClosed {
		t.Fatalf("breaker=%s", st)
	}
}

func TestUndecodableBodyDoesNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()
	d := newTestDispatcher(srv.URL, model.StateConnected, BreakerConfig{Fails: 1, OpenFor: time.Minute}, nil)

	for i := 0; i < 2; i++ {
		_, err := d.SendCommand(context.Background(), Override)
		var de *DeliveryError
		if !errors.As(err, &de) || de.Status != http.StatusOK || errors.Is(err, gobreaker.ErrOpenState) {
			t.Fatalf("call %d: err=%v", i, err)
		}
	}
}

func TestConnectedResetsCommandBreaker(t *testing.T) {
	dev := newFakeDevice(t)
	dev.status.Store(http.StatusBadGateway)
	d := newTestDispatcher(dev.srv.URL, model.StateConnected, BreakerConfig{Fails: 1, OpenFor: time.Hour}, nil)

	_, _ = d.SendCommand(context.Background(), Toggle)
	if st := d.client.BreakerState(CommandPath); st != gobreaker.StateOpen {
		t.Fatalf("breaker=%s", st)
	}

	d.SetConnectivity(model.Connectivity{Connected: false, Host: "pump"})
	if st := d.client.BreakerState(CommandPath); st != gobreaker.StateOpen {
		t.Fatalf("disconnect reset the breaker: %s", st)
	}

	dev.status.Store(http.StatusOK)
	d.SetConnectivity(model.Connectivity{Connected: true, Host: "pump"})
	if _, err := d.SendCommand(context.Background(), Toggle); err != nil {
		t.Fatalf("toggle after reconnect: %v", err)
	}
	if n := dev.hits.Load(); n != 2 {
		t.Fatalf("requests=%d want 2", n)
	}
}
