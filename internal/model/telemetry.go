package model

// TelemetrySnapshot is one partial update coming from the device.
// A nil field means "not present in this message": the last known value stays.
type TelemetrySnapshot struct {
	Pressure       *float64 `json:"pressure,omitempty"`       // bar
	Temperature    *float64 `json:"temperature,omitempty"`    // °C
	Flow           *float64 `json:"flow,omitempty"`           // L/min
	MotorOn        *bool    `json:"motor,omitempty"`          // pump motor running
	ManualOverride *bool    `json:"manualOverride,omitempty"` // automatic control suspended
}

// Merge returns s updated with every field present in later.
// Fields absent in later keep the value they had in s.
func (s TelemetrySnapshot) Merge(later TelemetrySnapshot) TelemetrySnapshot {
	out := s
	if later.Pressure != nil {
		out.Pressure = Float(*later.Pressure)
	}
	if later.Temperature != nil {
		out.Temperature = Float(*later.Temperature)
	}
	if later.Flow != nil {
		out.Flow = Float(*later.Flow)
	}
	if later.MotorOn != nil {
		out.MotorOn = Bool(*later.MotorOn)
	}
	if later.ManualOverride != nil {
		out.ManualOverride = Bool(*later.ManualOverride)
	}
	return out
}

// IsEmpty reports whether the snapshot carries no recognised field.
func (s TelemetrySnapshot) IsEmpty() bool {
	return s.Pressure == nil && s.Temperature == nil && s.Flow == nil &&
		s.MotorOn == nil && s.ManualOverride == nil
}

// Float and Bool return pointers to copies of v (handy for literals).
func Float(v float64) *float64 { return &v }

func Bool(v bool) *bool { return &v }
