// Package mqtt connects the controller to an MQTT broker: a bridge appliance
// driven by state and set topics, and a publisher for cycle results.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/thatsimonsguy/purifier-controller/internal/config"
)

// Client is the subset of paho.Client the bridge and publisher use.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// Publisher publishes automation results to MQTT.
type Publisher interface {
	// PublishStatus sends the outcome of one cycle. Failures are returned
	// and must not stop the control loop.
	PublishStatus(status Status) error

	// Close disconnects from the broker.
	Close() error
}

// Status is the per-cycle snapshot published to <base>/automation.
type Status struct {
	Timestamp  time.Time
	Sensor     *float64
	Lower      float64
	Upper      float64
	State      string
	PausedFor  string
	Result     json.RawMessage
	Properties json.RawMessage
}

type statusPayload struct {
	Timestamp  string          `json:"timestamp"`
	Sensor     *float64        `json:"sensor,omitempty"`
	Band       [2]float64      `json:"band"`
	State      string          `json:"state"`
	PausedFor  string          `json:"paused_for,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Properties json.RawMessage `json:"properties,omitempty"`
}

// FormatStatusPayload creates the JSON payload for a status snapshot.
func FormatStatusPayload(s Status) ([]byte, error) {
	return json.Marshal(statusPayload{
		Timestamp:  s.Timestamp.UTC().Format(time.RFC3339),
		Sensor:     s.Sensor,
		Band:       [2]float64{s.Lower, s.Upper},
		State:      s.State,
		PausedFor:  s.PausedFor,
		Result:     s.Result,
		Properties: s.Properties,
	})
}

func StateTopic(base string) string      { return base + "/state" }
func AutomationTopic(base string) string { return base + "/automation" }

func SetTopic(base, property string) string {
	return fmt.Sprintf("%s/set/%s", base, property)
}

// Connect opens a broker connection that reconnects on its own.
func Connect(cfg config.MQTT) (paho.Client, error) {
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(AutomationTopic(cfg.BaseTopic)+"/online", "false", 1, true)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	client.Publish(AutomationTopic(cfg.BaseTopic)+"/online", 1, true, "true")
	return client, nil
}

func waitToken(token paho.Token, timeout time.Duration, what string) error {
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%s timeout", what)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}
