package bridge

import (
	"context"
	"log"
	"sync"

	"github.com/LeonardoBeccarini/pumpwatch/internal/model"
)

const (
	Online  = "online"
	Offline = "offline"
)

// AvailabilityTopic carries the retained online/offline flag.
func AvailabilityTopic(deviceID string) string {
	return "pumpwatch/" + deviceID + "/availability"
}

type Publisher interface {
	Publish(payload string) error
}

// Availability mirrors the stream connectivity on the availability topic.
// SetConnectivity is called with the connection manager's lock held, so it only
// records the wanted value; Run does the (blocking) publishing. Intermediate
// values may be coalesced, the last one always wins.
type Availability struct {
	pub    Publisher
	logger *log.Logger

	mu    sync.Mutex
	want  string
	force bool
	kick  chan struct{}
}

func NewAvailability(pub Publisher, logger *log.Logger) *Availability {
	if logger == nil {
		logger = log.Default()
	}
	return &Availability{pub: pub, logger: logger, want: Offline, kick: make(chan struct{}, 1)}
}

func (a *Availability) ApplySnapshot(model.TelemetrySnapshot) {}

func (a *Availability) SetConnectivity(c model.Connectivity) {
	v := Offline
	if c.Connected {
		v = Online
	}
	a.mu.Lock()
	a.want = v
	a.mu.Unlock()
	a.wake()
}

// Republish sends the current value again even if unchanged. After an
// unclean drop the broker has published the retained "offline" will, so
// it runs on every reconnect (broker.Hooks).
func (a *Availability) Republish() {
	a.mu.Lock()
	a.force = true
	a.mu.Unlock()
	a.wake()
}

func (a *Availability) wake() {
	select {
	case a.kick <- struct{}{}:
	default:
	}
}

// Run publishes changes until ctx is done, then publishes offline once.
func (a *Availability) Run(ctx context.Context) {
	published := ""
	publish := func(v string, force bool) {
		if v == published && !force {
			return
		}
		if err := a.pub.Publish(v); err != nil {
			a.logger.Printf("bridge: availability %s: %v", v, err)
			published = "" // riprova al prossimo giro
			return
		}
		published = v
	}

	publish(a.take())
	for {
		select {
		case <-ctx.Done():
			publish(Offline, false)
			return
		case <-a.kick:
			publish(a.take())
		}
	}
}

func (a *Availability) take() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	force := a.force
	a.force = false
	return a.want, force
}
