package mqtt

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// RealPublisher publishes to an actual MQTT broker.
type RealPublisher struct {
	client paho.Client
	topic  string
}

// NewRealPublisher publishes status snapshots on an already connected client.
func NewRealPublisher(client paho.Client, baseTopic string) *RealPublisher {
	return &RealPublisher{
		client: client,
		topic:  AutomationTopic(baseTopic),
	}
}

// PublishStatus sends a cycle snapshot, retained so new subscribers see the
// latest one.
func (p *RealPublisher) PublishStatus(status Status) error {
	payload, err := FormatStatusPayload(status)
	if err != nil {
		return fmt.Errorf("format status payload: %w", err)
	}
	return waitToken(p.client.Publish(p.topic, 0, true, payload), 5*time.Second, "publish status")
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}
