package broker

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher sends messages to one topic.
type Publisher struct {
	client   mqtt.Client
	topic    string
	qos      byte
	retained bool
	timeout  time.Duration
}

func NewPublisher(client mqtt.Client, topic string, qos byte, retained bool) *Publisher {
	return &Publisher{client: client, topic: topic, qos: qos, retained: retained, timeout: 5 * time.Second}
}

// Publish waits for the broker ack (QoS > 0) at most p.timeout.
func (p *Publisher) Publish(payload string) error {
	token := p.client.Publish(p.topic, p.qos, p.retained, payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("publish to %s: timeout after %s", p.topic, p.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	return nil
}
