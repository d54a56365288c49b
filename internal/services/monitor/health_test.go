package monitor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/LeonardoBeccarini/pumpwatch/internal/model"
)

type fixedState model.ConnectionState

func (s fixedState) State() model.ConnectionState { return model.ConnectionState(s) }

type fixedBroker bool

func (b fixedBroker) IsConnectionOpen() bool { return bool(b) }

func TestHealthHandler(t *testing.T) {
	cases := []struct {
		name       string
		state      model.ConnectionState
		broker     BrokerStatus
		wantStatus string
		wantCode   int
	}{
		{"stream only, connected", model.StateConnected, nil, "ok", http.StatusOK},
		{"stream only, connecting", model.StateConnecting, nil, "down", http.StatusServiceUnavailable},
		{"both up", model.StateConnected, fixedBroker(true), "ok", http.StatusOK},
		{"broker down", model.StateConnected, fixedBroker(false), "degraded", http.StatusOK},
		{"stream down", model.StateDisconnected, fixedBroker(true), "degraded", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewHealthHandler(fixedState(tc.state), tc.broker).
				ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			if rec.Code != tc.wantCode {
				t.Fatalf("code=%d want %d", rec.Code, tc.wantCode)
			}
			var body struct {
				Status      string `json:"status"`
				StreamState string `json:"stream_state"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Status != tc.wantStatus {
				t.Fatalf("status=%q want %q", body.Status, tc.wantStatus)
			}
			if body.StreamState != tc.state.String() {
				t.Fatalf("stream_state=%q", body.StreamState)
			}
		})
	}
}
