package broker

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Handler processes one message received on topic.
type Handler func(topic string, message mqtt.Message) error

// Consumer subscribes a single topic and feeds a Handler.
type Consumer struct {
	client  mqtt.Client
	topic   string
	qos     byte
	handler Handler
	logger  *log.Logger
	active  atomic.Bool
}

func NewConsumer(client mqtt.Client, topic string, qos byte, handler Handler, logger *log.Logger) *Consumer {
	if logger == nil {
		logger = log.Default()
	}
	return &Consumer{client: client, topic: topic, qos: qos, handler: handler, logger: logger}
}

// Dispatch runs the handler for one message, logging its error.
func (c *Consumer) Dispatch(message mqtt.Message) {
	if c.handler == nil {
		c.logger.Printf("broker: no handler set for topic %s", c.topic)
		return
	}
	if err := c.handler(c.topic, message); err != nil {
		c.logger.Printf("broker: error handling message on %s: %v", c.topic, err)
	}
}

func (c *Consumer) subscribe() error {
	token := c.client.Subscribe(c.topic, c.qos, func(_ mqtt.Client, m mqtt.Message) {
		c.Dispatch(m)
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", c.topic, token.Error())
	}
	c.logger.Printf("broker: subscribed to %s", c.topic)
	return nil
}

// Resubscribe restores the subscription after a reconnect. It is meant for
// Hooks.Add and does nothing unless ConsumeMessage is running.
func (c *Consumer) Resubscribe(mqtt.Client) {
	if !c.active.Load() {
		return
	}
	if err := c.subscribe(); err != nil {
		c.logger.Printf("broker: %v", err)
	}
}

// ConsumeMessage subscribes and blocks until ctx is done, then unsubscribes.
func (c *Consumer) ConsumeMessage(ctx context.Context) error {
	c.active.Store(true)
	if err := c.subscribe(); err != nil {
		c.active.Store(false)
		return err
	}

	<-ctx.Done()

	c.active.Store(false)
	if c.client.IsConnected() {
		c.client.Unsubscribe(c.topic).Wait()
	}
	return nil
}
