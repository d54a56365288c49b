package pump_simulator

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/LeonardoBeccarini/pumpwatch/internal/model"
)

// ====== Tunables ======
const (
	ambientTemp = 20.0 // °C a motore fermo
	runningTemp = 38.0 // °C a regime

	ratedFlow = 12.0 // L/min a regime

	pressureOnTarget  = 4.5 // bar, asintoto con motore acceso
	pressureOffTarget = 0.5 // bar, il circuito si scarica lentamente

	tauPressureOn  = 60 * time.Second
	tauPressureOff = 120 * time.Second
	tauFlow        = 5 * time.Second
	tauTemp        = 10 * time.Minute

	noise = 0.02
)

// DataGenerator evolve pressione, temperatura e portata nel tempo in funzione
// dello stato del motore (approccio esponenziale al target + rumore).
type DataGenerator struct {
	mu          sync.Mutex
	rnd         *rand.Rand
	pressure    float64
	temperature float64
	flow        float64
}

func NewDataGenerator(seed int64) *DataGenerator {
	return &DataGenerator{
		rnd:         rand.New(rand.NewSource(seed)),
		pressure:    2.5,
		temperature: ambientTemp,
	}
}

// Next advances the model by dt and returns a full snapshot.
func (g *DataGenerator) Next(dt time.Duration, motorOn bool) model.TelemetrySnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	if motorOn {
		g.pressure = approach(g.pressure, pressureOnTarget, dt, tauPressureOn)
		g.flow = approach(g.flow, ratedFlow, dt, tauFlow)
		g.temperature = approach(g.temperature, runningTemp, dt, tauTemp)
	} else {
		g.pressure = approach(g.pressure, pressureOffTarget, dt, tauPressureOff)
		g.flow = approach(g.flow, 0, dt, tauFlow)
		g.temperature = approach(g.temperature, ambientTemp, dt, tauTemp)
	}

	return model.TelemetrySnapshot{
		Pressure:    model.Float(round2(math.Max(0, g.pressure+g.jitter()))),
		Temperature: model.Float(round2(g.temperature + g.jitter())),
		Flow:        model.Float(round2(math.Max(0, g.flow+g.jitter()))),
	}
}

// Pressure is the noiseless internal value.
func (g *DataGenerator) Pressure() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pressure
}

func (g *DataGenerator) jitter() float64 {
	return g.rnd.NormFloat64() * noise
}

func approach(x, target float64, dt, tau time.Duration) float64 {
	if dt <= 0 {
		return x
	}
	return x + (target-x)*(1-math.Exp(-dt.Seconds()/tau.Seconds()))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
