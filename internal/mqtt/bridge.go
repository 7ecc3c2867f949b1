package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/purifier-controller/internal/appliance"
	"github.com/thatsimonsguy/purifier-controller/internal/model"
)

// Bridge is an appliance living on the other side of a broker. The device
// (or its gateway) publishes a JSON property object on <base>/state and
// accepts single values on <base>/set/<property>.
type Bridge struct {
	client  Client
	base    string
	timeout time.Duration

	mu       sync.RWMutex
	props    model.Properties
	registry *appliance.Registry
}

// NewBridge registers one setter per property name, in the order given.
func NewBridge(client Client, baseTopic string, properties []string) *Bridge {
	b := &Bridge{
		client:   client,
		base:     baseTopic,
		timeout:  5 * time.Second,
		props:    model.Properties{},
		registry: appliance.NewRegistry(),
	}
	for _, name := range properties {
		b.registry.Register(name, b.setter(name))
	}
	return b
}

// Subscribe starts following the device state topic.
func (b *Bridge) Subscribe() error {
	topic := StateTopic(b.base)
	if err := waitToken(b.client.Subscribe(topic, 1, b.handleState), b.timeout, "subscribe "+topic); err != nil {
		return err
	}
	log.Info().Str("topic", topic).Msg("Subscribed to appliance state")
	return nil
}

func (b *Bridge) Properties() model.Properties {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(model.Properties, len(b.props))
	for k, v := range b.props {
		out[k] = v
	}
	return out
}

func (b *Bridge) Capabilities() *appliance.Registry {
	return b.registry
}

func (b *Bridge) handleState(_ paho.Client, msg paho.Message) {
	var update model.Properties
	if err := json.Unmarshal(msg.Payload(), &update); err != nil {
		log.Warn().
			Err(err).
			Str("topic", msg.Topic()).
			Msg("Dropping malformed appliance state")
		return
	}

	b.mu.Lock()
	for k, v := range update {
		b.props[k] = v
	}
	b.mu.Unlock()

	log.Debug().
		Int("properties", len(update)).
		Msg("Appliance state updated")
}

func (b *Bridge) setter(name string) appliance.Setter {
	topic := SetTopic(b.base, name)
	return func(ctx context.Context, v model.Value) (model.Value, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		token := b.client.Publish(topic, 1, false, []byte(v))
		select {
		case <-token.Done():
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(b.timeout):
			return "", fmt.Errorf("set %s: publish timeout", name)
		}
		if err := token.Error(); err != nil {
			return "", fmt.Errorf("set %s: %w", name, err)
		}

		// the next state message confirms or corrects this
		b.mu.Lock()
		b.props[name] = v
		b.mu.Unlock()

		log.Debug().
			Str("topic", topic).
			Str("value", string(v)).
			Msg("Published property change")
		return v, nil
	}
}
