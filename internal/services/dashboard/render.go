// Package dashboard turns the merged telemetry into display state.
// Nothing here touches the network: Render is a pure function and Store only
// keeps the latest merged values.
package dashboard

import (
	"fmt"
	"math"
	"strconv"

	"github.com/LeonardoBeccarini/pumpwatch/internal/model"
)

// Tier is the severity class of a reading.
type Tier string

const (
	TierNormal  Tier = "normal"
	TierWarning Tier = "warning"
	TierDanger  Tier = "danger"
)

const (
	MotorOn    = "ON"
	MotorOff   = "OFF"
	ModeManual = "MANUAL"
	ModeAuto   = "AUTO"

	DisconnectedLabel = "Disconnected"
	Unset             = "--"
)

// Reading is a numeric value as displayed.
type Reading struct {
	Set  bool
	Text string // two decimals, Unset before the first value
	Unit string
	Tier Tier
}

// Gauge is the pressure bar.
type Gauge struct {
	FillPercent float64
	Tier        Tier
}

// Status is a text plus its machine readable status attribute.
type Status struct {
	Set    bool
	Text   string
	Status string
}

type ConnectionIndicator struct {
	Connected bool
	Label     string
}

type Controls struct {
	ToggleEnabled    bool
	OverrideEnabled  bool
	OverrideEmphasis bool // manual mode: override control highlighted
}

// DisplayState is everything the UI needs to draw one frame.
type DisplayState struct {
	Pressure    Reading
	PressureBar Gauge
	Temperature Reading
	Flow        Reading
	Motor       Status
	Mode        Status
	Connection  ConnectionIndicator
	Controls    Controls
}

// Render maps the merged snapshot and connectivity to display state.
// Same input, same output.
func Render(snap model.TelemetrySnapshot, conn model.Connectivity, th model.ThresholdConfig) DisplayState {
	ds := DisplayState{
		Pressure:    Reading{Text: Unset, Unit: "bar", Tier: TierNormal},
		PressureBar: Gauge{Tier: TierNormal},
		Temperature: Reading{Text: Unset, Unit: "°C", Tier: TierNormal},
		Flow:        Reading{Text: Unset, Unit: "L/min", Tier: TierNormal},
		Motor:       Status{Text: Unset},
		Mode:        Status{Text: Unset},
	}

	if snap.Pressure != nil {
		p := *snap.Pressure
		tier := Classify(p, th.Pressure)
		ds.Pressure = Reading{Set: true, Text: formatValue(p), Unit: "bar", Tier: tier}
		ds.PressureBar = Gauge{FillPercent: FillPercent(p, th.Pressure.Max), Tier: tier}
	}
	if snap.Temperature != nil {
		v := *snap.Temperature
		ds.Temperature = Reading{Set: true, Text: formatValue(v), Unit: "°C", Tier: Classify(v, th.Temperature)}
	}
	if snap.Flow != nil {
		ds.Flow = Reading{Set: true, Text: formatValue(*snap.Flow), Unit: "L/min", Tier: TierNormal}
	}
	if snap.MotorOn != nil {
		s := MotorOff
		if *snap.MotorOn {
			s = MotorOn
		}
		ds.Motor = Status{Set: true, Text: s, Status: s}
	}
	manual := false
	if snap.ManualOverride != nil {
		manual = *snap.ManualOverride
		s := ModeAuto
		if manual {
			s = ModeManual
		}
		ds.Mode = Status{Set: true, Text: s, Status: s}
	}

	ds.Connection = ConnectionIndicator{Connected: conn.Connected, Label: DisconnectedLabel}
	if conn.Connected {
		ds.Connection.Label = conn.Host
	}
	ds.Controls = Controls{
		ToggleEnabled:    conn.Connected,
		OverrideEnabled:  conn.Connected,
		OverrideEmphasis: manual,
	}
	return ds
}

// Classify checks danger before warning: the two ranges may meet at the boundary.
func Classify(v float64, th model.MetricThresholds) Tier {
	switch {
	case v >= th.DangerThreshold:
		return TierDanger
	case v >= th.WarningThreshold:
		return TierWarning
	default:
		return TierNormal
	}
}

// FillPercent = clamp(v/max*100, 0, 100).
func FillPercent(v, max float64) float64 {
	if max <= 0 {
		return 0
	}
	pct := v / max * 100
	switch {
	case math.IsNaN(pct), pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return pct
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// String is the one-line form used by the plain (non TUI) output.
func (ds DisplayState) String() string {
	return fmt.Sprintf("%s | pressure %s %s [%s] %.0f%% | temperature %s %s [%s] | flow %s %s | motor %s | mode %s",
		ds.Connection.Label,
		ds.Pressure.Text, ds.Pressure.Unit, ds.Pressure.Tier, ds.PressureBar.FillPercent,
		ds.Temperature.Text, ds.Temperature.Unit, ds.Temperature.Tier,
		ds.Flow.Text, ds.Flow.Unit,
		ds.Motor.Text, ds.Mode.Text)
}
