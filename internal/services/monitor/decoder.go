package monitor

import (
	"encoding/json"
	"fmt"

	"github.com/LeonardoBeccarini/pumpwatch/internal/model"
)

// DecodeError: payload of a stream message that is not a valid snapshot.
type DecodeError struct {
	EventType string
	Err       error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("discarding malformed %q message: %v", e.EventType, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// DecodeSnapshot parses an update payload. All fields are optional and
// unknown fields are ignored; a field of the wrong type is an error.
func DecodeSnapshot(eventType string, data []byte) (model.TelemetrySnapshot, error) {
	var snap model.TelemetrySnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return model.TelemetrySnapshot{}, &DecodeError{EventType: eventType, Err: err}
	}
	return snap, nil
}
