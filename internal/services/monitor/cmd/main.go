package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/LeonardoBeccarini/pumpwatch/internal/model"
	"github.com/LeonardoBeccarini/pumpwatch/internal/services/bridge"
	"github.com/LeonardoBeccarini/pumpwatch/internal/services/command"
	"github.com/LeonardoBeccarini/pumpwatch/internal/services/dashboard"
	"github.com/LeonardoBeccarini/pumpwatch/internal/services/monitor"
	"github.com/LeonardoBeccarini/pumpwatch/internal/tui"
	"github.com/LeonardoBeccarini/pumpwatch/pkg/broker"
	"github.com/LeonardoBeccarini/pumpwatch/pkg/dedup"
)

func newLogger(cfg Config) *log.Logger {
	var out io.Writer = os.Stderr
	switch {
	case cfg.LogFile != "":
		out = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     28, // days
		}
	case !cfg.Plain:
		// la TUI occupa il terminale: senza --log-file i log andrebbero persi a video
		out = io.Discard
	}
	return log.New(out, "", log.LstdFlags|log.Lmicroseconds)
}

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if errors.Is(err, errHelp) {
		return
	}
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	store := dashboard.NewStore(model.DefaultThresholds())
	sinks := []monitor.Sink{store}

	// === MQTT (opzionale) ===
	var (
		mqttClient mqtt.Client
		brokerStat monitor.BrokerStatus
		bg         sync.WaitGroup
	)
	brokerCtx, brokerCancel := context.WithCancel(context.Background())
	defer brokerCancel()

	if cfg.MQTT.Enabled {
		availTopic := bridge.AvailabilityTopic(cfg.MQTT.DeviceID)
		hooks := &broker.Hooks{}
		mqttClient, err = broker.Connect(brokerCtx, &broker.Config{
			Host:        cfg.MQTT.Host,
			Port:        cfg.MQTT.Port,
			User:        cfg.MQTT.User,
			Password:    cfg.MQTT.Password,
			ClientID:    cfg.MQTT.ClientID,
			WillTopic:   availTopic,
			WillPayload: bridge.Offline,
			OnConnect:   hooks.Run,
			Logger:      logger,
		})
		if err != nil {
			log.Fatalf("mqtt connection error: %v", err)
		}
		brokerStat = mqttClient

		seen := dedup.New(time.Duration(cfg.MQTT.DedupTTLMs)*time.Millisecond, 1000, clockwork.NewRealClock())
		state := bridge.NewStateHandler(store, seen, logger)
		consumer := broker.NewConsumer(mqttClient, bridge.StateTopic(cfg.MQTT.DeviceID), 1, state.Handle, logger)

		avail := bridge.NewAvailability(broker.NewPublisher(mqttClient, availTopic, 1, true), logger)
		sinks = append(sinks, avail)
		// clean session: after a reconnect subscription and availability are gone
		hooks.Add(consumer.Resubscribe)
		hooks.Add(func(mqtt.Client) { avail.Republish() })

		bg.Add(2)
		go func() {
			defer bg.Done()
			if err := consumer.ConsumeMessage(ctx); err != nil {
				logger.Printf("pumpwatch: %v", err)
			}
		}()
		go func() {
			defer bg.Done()
			avail.Run(ctx)
		}()
	}

	// === Stream verso il device ===
	mgr := monitor.NewConnectionManager(monitor.Config{
		Host:    cfg.Host,
		Clock:   clockwork.NewRealClock(),
		Metrics: monitor.NewMetrics(reg),
		Logger:  logger,
	}, monitor.NewSSEDialer(cfg.BaseURL, &http.Client{}), sinks...)

	// === Comandi ===
	client := command.NewDeviceClient(cfg.BaseURL, cfg.Timeout(), command.BreakerConfig{
		Fails:    cfg.Breaker.Fails,
		OpenFor:  time.Duration(cfg.Breaker.OpenMs) * time.Millisecond,
		Interval: time.Duration(cfg.Breaker.IntervalMs) * time.Millisecond,
	})
	dispatcher := command.NewDispatcher(client, mgr, command.NewMetrics(reg), logger)
	mgr.Subscribe(dispatcher)

	// === HTTP (metrics + health) ===
	var hs *http.Server
	if cfg.HTTPAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		mux.Handle("/healthz", monitor.NewHealthHandler(mgr, brokerStat))
		hs = &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Printf("pumpwatch: HTTP listening on %s", cfg.HTTPAddr)
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Printf("pumpwatch: http server error: %v", err)
			}
		}()
	}

	mgr.Open()

	if cfg.Plain {
		out := log.New(os.Stdout, "", log.LstdFlags)
		store.Observe(func(ds dashboard.DisplayState) { out.Println(ds.String()) })
		<-ctx.Done()
	} else if err := runTUI(ctx, store, dispatcher, cfg.Timeout()); err != nil {
		logger.Printf("pumpwatch: tui: %v", err)
	}
	stop()
	logger.Printf("pumpwatch: shutting down...")

	mgr.Close()
	if hs != nil {
		shCtx, shCancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = hs.Shutdown(shCtx)
		shCancel()
	}
	// the availability publisher sends "offline" before the broker goes away
	bg.Wait()
	brokerCancel()
	broker.Close(mqttClient)
}

// runTUI blocks until the operator quits or ctx is done.
func runTUI(ctx context.Context, store *dashboard.Store, cmds tui.Commander, timeout time.Duration) error {
	p := tea.NewProgram(tui.New(store.View(), cmds, timeout), tea.WithContext(ctx), tea.WithAltScreen())

	// Observe runs under the store lock: frames are handed to a goroutine
	// that owns p.Send, keeping only the newest pending one.
	frames := make(chan dashboard.DisplayState, 1)
	store.Observe(func(ds dashboard.DisplayState) {
		select {
		case <-frames:
		default:
		}
		frames <- ds
	})
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ds := <-frames:
				p.Send(tui.DisplayMsg(ds))
			}
		}
	}()

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	return nil
}
