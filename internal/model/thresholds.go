package model

// MetricThresholds holds the display range and the alarm levels of a metric.
type MetricThresholds struct {
	Min              float64 `json:"min"`
	Max              float64 `json:"max"`
	WarningThreshold float64 `json:"warning_threshold"`
	DangerThreshold  float64 `json:"danger_threshold"`
}

// RangeThresholds is used by metrics with no tiering (flow).
type RangeThresholds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// ThresholdConfig is fixed at startup and passed by value: nobody can mutate
// the copy held by another component.
type ThresholdConfig struct {
	Pressure    MetricThresholds `json:"pressure"`
	Temperature MetricThresholds `json:"temperature"`
	Flow        RangeThresholds  `json:"flow"`
}

// DefaultThresholds returns the thresholds of the pump controller.
func DefaultThresholds() ThresholdConfig {
	return ThresholdConfig{
		Pressure: MetricThresholds{
			Min:              2,
			Max:              4,
			WarningThreshold: 3.5,
			DangerThreshold:  4,
		},
		Temperature: MetricThresholds{
			Min:              0,
			Max:              50,
			WarningThreshold: 40,
			DangerThreshold:  45,
		},
		Flow: RangeThresholds{Min: 0, Max: 40},
	}
}
