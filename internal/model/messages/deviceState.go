package messages

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/LeonardoBeccarini/pumpwatch/internal/model"
)

// DeviceState is the retained state document the firmware publishes on
// homeassistant/<device>/state. Switches travel as "ON"/"OFF" strings.
type DeviceState struct {
	Pressure        *float64 `json:"pressure,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
	Flow            *float64 `json:"flow,omitempty"`
	Motor           *bool    `json:"motor,omitempty"`
	Override        *bool    `json:"override,omitempty"`
	Main            *bool    `json:"main,omitempty"`
	Error           *bool    `json:"error,omitempty"`
	RebootRequested bool     `json:"reboot_requested"`
}

// UnmarshalJSON accetta numeri anche come stringa e switch come "ON"/"OFF" o bool.
func (d *DeviceState) UnmarshalJSON(b []byte) error {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	d.Pressure = number(m["pressure"])
	d.Temperature = number(m["temperature"])
	d.Flow = number(m["flow"])
	d.Motor = onOff(m["motor"])
	d.Override = onOff(m["override"])
	d.Main = onOff(m["main"])
	d.Error = onOff(m["error"])
	if v := onOff(m["reboot_requested"]); v != nil {
		d.RebootRequested = *v
	}
	return nil
}

// Snapshot maps the device document onto the telemetry fields the dashboard shows.
func (d DeviceState) Snapshot() model.TelemetrySnapshot {
	return model.TelemetrySnapshot{
		Pressure:       d.Pressure,
		Temperature:    d.Temperature,
		Flow:           d.Flow,
		MotorOn:        d.Motor,
		ManualOverride: d.Override,
	}
}

func number(v any) *float64 {
	switch x := v.(type) {
	case float64:
		return model.Float(x)
	case string:
		// ParseFloat accetta anche "NaN" e "Inf"
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return model.Float(f)
		}
	}
	return nil
}

func onOff(v any) *bool {
	switch x := v.(type) {
	case bool:
		return model.Bool(x)
	case string:
		switch strings.ToUpper(strings.TrimSpace(x)) {
		case "ON", "TRUE":
			return model.Bool(true)
		case "OFF", "FALSE":
			return model.Bool(false)
		}
	}
	return nil
}
