// Package bridge connects pumpwatch to the MQTT broker the firmware already
// talks to: the retained Home Assistant state document is a second telemetry
// source, and the stream connectivity is mirrored on an availability topic.
package bridge

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/LeonardoBeccarini/pumpwatch/internal/model"
	"github.com/LeonardoBeccarini/pumpwatch/internal/model/messages"
	"github.com/LeonardoBeccarini/pumpwatch/pkg/dedup"
)

// StateTopic is where the firmware publishes its state document.
func StateTopic(deviceID string) string {
	return "homeassistant/" + deviceID + "/state"
}

// SnapshotSink is the part of the dashboard store the bridge writes into.
type SnapshotSink interface {
	ApplySnapshot(snap model.TelemetrySnapshot)
}

// StateHandler decodes state documents and merges them into the sink.
// The firmware republishes the same retained document on every reconnect,
// identical payloads inside the dedup window are dropped. A retained replay
// is only used until the first document has been applied: after that it can
// be older than what the event stream already delivered.
type StateHandler struct {
	sink    SnapshotSink
	seen    *dedup.Deduper
	logger  *log.Logger
	applied atomic.Bool
}

func NewStateHandler(sink SnapshotSink, seen *dedup.Deduper, logger *log.Logger) *StateHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &StateHandler{sink: sink, seen: seen, logger: logger}
}

// Handle matches broker.Handler.
func (h *StateHandler) Handle(topic string, msg mqtt.Message) error {
	if msg.Retained() && h.applied.Load() {
		return nil
	}
	payload := msg.Payload()
	if h.seen != nil {
		sum := sha256.Sum256(payload)
		if !h.seen.ShouldProcess(hex.EncodeToString(sum[:])) {
			return nil
		}
	}

	var st messages.DeviceState
	if err := json.Unmarshal(payload, &st); err != nil {
		return fmt.Errorf("decode %s: %w", topic, err)
	}
	if st.RebootRequested {
		h.logger.Printf("bridge: device reports a pending reboot")
	}
	snap := st.Snapshot()
	if snap.IsEmpty() {
		return nil
	}
	h.sink.ApplySnapshot(snap)
	h.applied.Store(true)
	return nil
}
