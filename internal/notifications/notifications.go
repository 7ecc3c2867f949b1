package notifications

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/purifier-controller/internal/env"
)

// ntfy priorities, 1 (min) to 5 (max).
const (
	PriorityLow     = 2
	PriorityDefault = 3
	PriorityHigh    = 4
)

// Notice is a single push message about the purifier automation.
type Notice struct {
	Title    string
	Message  string
	Priority int
	Tags     []string
}

// AutomationError reports that a command to the purifier failed. Automation
// stays in error until a later cycle applies its commands.
func AutomationError(message string) Notice {
	return Notice{
		Title:    "Purifier automation error",
		Message:  message,
		Priority: PriorityHigh,
		Tags:     []string{"warning", "purifier"},
	}
}

// AutomationPaused reports a manual change on the unit. property is the
// setting that opened the pause and may be empty.
func AutomationPaused(property, status string) Notice {
	msg := "Manual change detected, automation " + status
	tags := []string{"pause_button", "purifier"}
	if property != "" {
		msg = fmt.Sprintf("Manual change of %s detected, automation %s", property, status)
		tags = append(tags, property)
	}
	return Notice{
		Title:    "Purifier automation paused",
		Message:  msg,
		Priority: PriorityDefault,
		Tags:     tags,
	}
}

func AutomationRecovered() Notice {
	return Notice{
		Title:    "Purifier automation recovered",
		Message:  "Commands are reaching the purifier again",
		Priority: PriorityLow,
		Tags:     []string{"white_check_mark", "purifier"},
	}
}

var client *http.Client
var topic string
var initialized bool

// baseURL is swapped out in tests.
var baseURL = "https://ntfy.sh"

// Init sets up the ntfy client. Without a topic notifications stay off.
func Init() {
	if env.Cfg.NtfyTopic == "" {
		log.Warn().Msg("Ntfy topic not configured - purifier notifications disabled")
		return
	}

	client = &http.Client{
		Timeout: 10 * time.Second,
	}
	topic = env.Cfg.NtfyTopic
	initialized = true

	log.Info().
		Str("topic", topic).
		Msg("Ntfy notifications initialized")
}

type payload struct {
	Topic    string   `json:"topic"`
	Title    string   `json:"title"`
	Message  string   `json:"message"`
	Priority int      `json:"priority,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// Send publishes n to the configured ntfy topic.
func Send(n Notice) error {
	if !initialized {
		return fmt.Errorf("notifications not initialized")
	}

	body, err := json.Marshal(payload{
		Topic:    topic,
		Title:    n.Title,
		Message:  n.Message,
		Priority: n.Priority,
		Tags:     n.Tags,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, baseURL, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy returned non-success status: %d", resp.StatusCode)
	}

	log.Debug().
		Str("title", n.Title).
		Int("priority", n.Priority).
		Int("status", resp.StatusCode).
		Msg("Notification sent successfully")

	return nil
}
