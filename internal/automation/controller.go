package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/purifier-controller/internal/appliance"
	"github.com/thatsimonsguy/purifier-controller/internal/model"
)

// Controller runs the automation loop for a single appliance. It does no
// locking of its own: callers must not invoke it concurrently.
type Controller struct {
	appliance appliance.Appliance
	cfg       model.AutomationConfig
	state     State

	// Now is the wall clock used for pause windows.
	Now func() time.Time

	// OnOverride, when set, is called for every manual change detected.
	OnOverride func(Override)
}

// Result is the outcome of one automation cycle. It marshals to a flat
// object: {"automation": ..., "error": ..., "<property>": <applied value>}.
type Result struct {
	Automation string
	Error      string
	Applied    model.Commands
}

func (r Result) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Applied)+2)
	for k, v := range r.Applied {
		out[k] = v
	}
	if r.Automation != "" {
		out["automation"] = r.Automation
	}
	if r.Error != "" {
		out["error"] = r.Error
	}
	return json.Marshal(out)
}

// Toggle is the enabled flag as reported to users: either a bool or, while a
// pause window is open, a "paused for Nm" message.
type Toggle struct {
	Enabled bool
	Paused  string
}

func (t Toggle) MarshalJSON() ([]byte, error) {
	if t.Paused != "" {
		return json.Marshal(map[string]any{"automation": t.Paused})
	}
	return json.Marshal(map[string]any{"automation": t.Enabled})
}

func New(a appliance.Appliance, cfg model.AutomationConfig) (*Controller, error) {
	if err := validateConfig(cfg, a.Capabilities()); err != nil {
		return nil, fmt.Errorf("invalid automation config: %w", err)
	}
	return &Controller{
		appliance: a,
		cfg:       cfg.Clone(),
		state: State{
			Pending: model.Commands{},
			Status:  model.StatusReady,
		},
		Now: time.Now,
	}, nil
}

// State returns a copy of the automation record.
func (c *Controller) State() State {
	return c.state.clone()
}

func (c *Controller) Automation() Toggle {
	if !c.state.PauseEnd.IsZero() {
		if left := c.state.PauseEnd.Sub(c.Now()); left > 0 {
			return Toggle{Enabled: c.state.Enabled, Paused: pausedMessage(left)}
		}
	}
	return Toggle{Enabled: c.state.Enabled}
}

// SetAutomation turns automation on or off. Either way an open pause window
// is dropped.
func (c *Controller) SetAutomation(enabled bool) Toggle {
	c.state.PauseEnd = time.Time{}
	c.state.Enabled = enabled
	log.Info().Bool("enabled", enabled).Msg("Automation toggled")
	return Toggle{Enabled: enabled}
}

func (c *Controller) Config() model.AutomationConfig {
	return c.cfg.Clone()
}

// SetConfig replaces the switch table. A table that differs from the current
// one drops the band so the next cycle derives its target from scratch.
func (c *Controller) SetConfig(cfg model.AutomationConfig) error {
	if err := validateConfig(cfg, c.appliance.Capabilities()); err != nil {
		return fmt.Errorf("invalid automation config: %w", err)
	}
	if cfg.Equal(c.cfg) {
		return nil
	}
	c.cfg = cfg.Clone()
	c.state.resetBounds()
	log.Info().Int("switch_points", len(cfg.SwitchPoints)).Msg("Automation config replaced")
	return nil
}

// DoAutomation evaluates one sample. With a nil reading the configured sensor
// property is read from the appliance. Failures are reported in the result.
func (c *Controller) DoAutomation(ctx context.Context, reading *float64) Result {
	s := &c.state
	if !s.Enabled {
		return Result{Automation: string(model.StatusDisabled)}
	}
	if s.Status == model.StatusBusy {
		return Result{Automation: string(s.Status)}
	}

	v, raw, ok := c.sensorValue(reading)
	if !ok {
		log.Warn().Str("sensor", raw).Msg("Rejecting invalid sensor value")
		return Result{Error: fmt.Sprintf("Automation > Invalid sensor value `%s`", raw)}
	}

	now := c.Now()
	if !s.PauseEnd.IsZero() {
		if left := s.PauseEnd.Sub(now); left > 0 {
			return Result{Automation: pausedMessage(left)}
		}
		log.Info().Msg("Automation pause expired")
		s.PauseEnd = time.Time{}
	}

	if c.detectOverride(c.appliance.Properties(), now) {
		return Result{Automation: pausedMessage(s.PauseEnd.Sub(now))}
	}

	c.evaluate(v)

	if s.Status != model.StatusReady {
		return c.apply(ctx)
	}
	return Result{Automation: string(s.Status)}
}

// applyPasses bounds how often apply walks the tracked keys. A second pass
// corrects keys that a later setter moved as a side effect, such as a fan
// level write that switches the mode.
const applyPasses = 2

// apply pushes every pending command that differs from the live property,
// one at a time in registry order. The first failure stops the cycle.
func (c *Controller) apply(ctx context.Context) Result {
	s := &c.state
	applied := model.Commands{}

	for pass := 0; pass < applyPasses; pass++ {
		wrote := false
		for _, key := range c.trackedKeys() {
			target := s.Pending[key]
			if live, ok := c.appliance.Properties()[key]; ok && live == target {
				continue
			}

			setter, ok := c.appliance.Capabilities().Lookup(key)
			if !ok {
				return c.fail(key, fmt.Errorf("no capability registered for %q", key))
			}
			got, err := setter(ctx, target)
			if err != nil {
				return c.fail(key, err)
			}
			applied[key] = got
			wrote = true

			log.Info().
				Str("property", key).
				Str("value", string(got)).
				Int("pass", pass+1).
				Msg("Applied automation command")
		}
		if !wrote {
			break
		}
	}

	s.Status = model.StatusReady
	return Result{Automation: string(s.Status), Applied: applied}
}

func (c *Controller) fail(key string, err error) Result {
	c.state.Status = model.StatusError
	log.Error().Err(err).Str("property", key).Msg("Automation command failed")
	return Result{Error: fmt.Sprintf("Automation > %v", err)}
}

// sensorValue resolves and range-checks the reading for this cycle.
func (c *Controller) sensorValue(reading *float64) (float64, string, bool) {
	var (
		v   float64
		raw string
	)
	if reading != nil {
		v = *reading
		raw = string(model.Num(v))
	} else {
		prop, ok := c.appliance.Properties()[c.cfg.SensorKey]
		raw = string(prop)
		if !ok {
			return 0, raw, false
		}
		if v, ok = prop.Float(); !ok {
			return 0, raw, false
		}
	}

	if math.IsNaN(v) || v < c.cfg.SensorMin() || v > c.cfg.SensorMax() {
		return 0, raw, false
	}
	return v, raw, true
}

func pausedMessage(left time.Duration) string {
	return fmt.Sprintf("paused for %dm", int(math.Ceil(left.Minutes())))
}
