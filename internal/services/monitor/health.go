package monitor

import (
	"encoding/json"
	"net/http"

	"github.com/LeonardoBeccarini/pumpwatch/internal/model"
)

// BrokerStatus is satisfied by mqtt.Client.
type BrokerStatus interface {
	IsConnectionOpen() bool
}

type healthHandler struct {
	stream StateReader
	broker BrokerStatus // nil when the MQTT bridge is disabled
}

// NewHealthHandler serves /healthz: "ok" when the stream (and the broker, if
// configured) is connected, "degraded" when only one of them is, "down" otherwise.
func NewHealthHandler(stream StateReader, broker BrokerStatus) http.Handler {
	return &healthHandler{stream: stream, broker: broker}
}

func (h *healthHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	type status struct {
		Status        string `json:"status"`
		StreamState   string `json:"stream_state"`
		MQTTEnabled   bool   `json:"mqtt_enabled"`
		MQTTConnected bool   `json:"mqtt_connected"`
	}
	state := h.stream.State()
	st := status{
		StreamState:   state.String(),
		MQTTEnabled:   h.broker != nil,
		MQTTConnected: h.broker != nil && h.broker.IsConnectionOpen(),
	}
	streamOK := state == model.StateConnected

	switch {
	case streamOK && (!st.MQTTEnabled || st.MQTTConnected):
		st.Status = "ok"
	case streamOK || st.MQTTConnected:
		st.Status = "degraded"
	default:
		st.Status = "down"
	}

	w.Header().Set("Content-Type", "application/json")
	if st.Status == "down" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(st)
}
