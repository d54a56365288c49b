package model

import (
	"encoding/json"
	"testing"
)

func TestMergeKeepsAbsentFields(t *testing.T) {
	base := TelemetrySnapshot{Pressure: Float(1), Temperature: Float(20), MotorOn: Bool(true)}
	later := TelemetrySnapshot{MotorOn: Bool(false), Flow: Float(12.5)}
	got := base.Merge(later)

	if *got.Pressure != 1 || *got.Temperature != 20 {
		t.Fatalf("absent fields changed: %+v", got)
	}
	if *got.MotorOn || *got.Flow != 12.5 {
		t.Fatalf("present fields not applied: %+v", got)
	}
	if got.ManualOverride != nil {
		t.Fatal("manualOverride appeared from nowhere")
	}

	// Merge copies: mutating the input must not leak into the result
	*later.MotorOn = true
	if *got.MotorOn {
		t.Fatal("merge aliased the later snapshot")
	}
}

func TestIsEmpty(t *testing.T) {
	if !(TelemetrySnapshot{}).IsEmpty() {
		t.Fatal("zero snapshot not empty")
	}
	if (TelemetrySnapshot{ManualOverride: Bool(false)}).IsEmpty() {
		t.Fatal("false is a value, not absence")
	}
}

func TestSnapshotJSON(t *testing.T) {
	var s TelemetrySnapshot
	if err := json.Unmarshal([]byte(`{"pressure":3.2,"motor":true,"manualOverride":false,"rssi":-60}`), &s); err != nil {
		t.Fatal(err)
	}
	if *s.Pressure != 3.2 || !*s.MotorOn || *s.ManualOverride || s.Flow != nil {
		t.Fatalf("decoded=%+v", s)
	}
}

func TestConnectionStateString(t *testing.T) {
	for st, want := range map[ConnectionState]string{
		StateDisconnected:  "disconnected",
		StateConnecting:    "connecting",
		StateConnected:     "connected",
		ConnectionState(9): "unknown",
	} {
		if got := st.String(); got != want {
			t.Errorf("%d: %q want %q", st, got, want)
		}
	}
}
