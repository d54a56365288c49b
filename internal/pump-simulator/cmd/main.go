// pump-sim: finto controller pompa per sviluppare e provare pumpwatch senza hardware.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/pflag"

	pumpSimulator "github.com/LeonardoBeccarini/pumpwatch/internal/pump-simulator"
	"github.com/LeonardoBeccarini/pumpwatch/internal/services/bridge"
	"github.com/LeonardoBeccarini/pumpwatch/pkg/broker"
)

func main() {
	// define flags
	addr := pflag.String("addr", ":8080", "HTTP listen address")
	interval := pflag.Duration("interval", time.Second, "sample interval")
	seed := pflag.Int64("seed", time.Now().UnixNano(), "noise seed")
	mqttHost := pflag.String("mqtt-host", "", "publish the state document to this MQTT broker (empty = off)")
	mqttPort := pflag.Int("mqtt-port", 1883, "MQTT broker port")
	deviceID := pflag.String("device-id", "pump", "device id used in MQTT topics")
	pflag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pub pumpSimulator.Publisher
	if *mqttHost != "" {
		client, err := broker.Connect(ctx, &broker.Config{
			Host:     *mqttHost,
			Port:     *mqttPort,
			ClientID: *deviceID,
		})
		if err != nil {
			log.Fatal(err)
		}
		pub = broker.NewPublisher(client, bridge.StateTopic(*deviceID), 1, true)
	}

	sim := pumpSimulator.NewPumpSimulator(pumpSimulator.NewDataGenerator(*seed), pub, clockwork.NewRealClock(), log.Default())

	hs := &http.Server{
		Addr:              *addr,
		Handler:           sim.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("pump-sim: HTTP listening on %s", *addr)
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	sim.Start(ctx, *interval)

	shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = hs.Shutdown(shCtx)
}
