// Package broker wraps the paho MQTT client: connection with retry and a
// last-will message, a topic consumer and a publisher.
package broker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	ClientID string

	// Will, if WillTopic is set, is published retained by the broker when
	// the client drops without a clean disconnect.
	WillTopic   string
	WillPayload string

	// OnConnect runs after every successful connect, reconnects included.
	// With a clean session the broker forgets subscriptions on a drop, so
	// this is where they get restored.
	OnConnect func(client mqtt.Client)

	MaxRetries     int           // connect attempts, default 5
	MaxElapsedTime time.Duration // default 10s
	Logger         *log.Logger
}

// Hooks collects OnConnect callbacks that are registered after Connect
// (consumers and publishers need the client first). Use Hooks.Run as
// Config.OnConnect.
type Hooks struct {
	mu  sync.Mutex
	fns []func(mqtt.Client)
}

func (h *Hooks) Add(fn func(mqtt.Client)) {
	h.mu.Lock()
	h.fns = append(h.fns, fn)
	h.mu.Unlock()
}

func (h *Hooks) Run(client mqtt.Client) {
	h.mu.Lock()
	fns := append([]func(mqtt.Client){}, h.fns...)
	h.mu.Unlock()
	for _, fn := range fns {
		fn(client)
	}
}

func (c *Config) URL() string {
	return fmt.Sprintf("tcp://%s:%d", c.Host, c.Port)
}

// Connect dials the broker retrying with exponential backoff. The client is
// disconnected when ctx is done.
func Connect(ctx context.Context, cfg *Config) (mqtt.Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	addr := cfg.URL()

	opts := mqtt.NewClientOptions()
	opts.AddBroker(addr)
	opts.SetUsername(cfg.User)
	opts.SetPassword(cfg.Password)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	if cfg.WillTopic != "" {
		opts.SetWill(cfg.WillTopic, cfg.WillPayload, 1, true)
	}
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Printf("broker: connection lost: %v", err)
	})
	opts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		logger.Printf("broker: reconnecting to %s", addr)
	})
	// paho lo chiama in una goroutine propria: si può fare Subscribe qui
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		if cfg.OnConnect != nil {
			cfg.OnConnect(c)
		}
	})

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = cfg.MaxElapsedTime
	if bo.MaxElapsedTime <= 0 {
		bo.MaxElapsedTime = 10 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}

	var client mqtt.Client
	err := backoff.Retry(func() error {
		client = mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			logger.Printf("broker: failed to connect to %s: %v", addr, token.Error())
			return token.Error()
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(maxRetries-1)), ctx))
	if err != nil {
		return nil, fmt.Errorf("could not establish MQTT connection after retries: %w", err)
	}

	logger.Printf("broker: connected to %s", addr)

	go func() {
		<-ctx.Done()
		Close(client)
		logger.Println("broker: connection closed")
	}()

	return client, nil
}

// Close disconnects with a short quiesce so queued publishes can leave.
func Close(client mqtt.Client) {
	if client != nil && client.IsConnected() {
		client.Disconnect(250)
	}
}
