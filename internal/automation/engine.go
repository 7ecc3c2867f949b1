package automation

import (
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/purifier-controller/internal/model"
)

// State is the mutable automation record of one appliance. Only the owning
// Controller writes to it.
type State struct {
	Enabled  bool
	Lower    float64
	Upper    float64
	Pending  model.Commands
	PauseEnd time.Time
	Status   model.Status
}

// Override describes one managed property found changed by something other
// than the controller.
type Override struct {
	At       time.Time
	Property string
	Expected model.Value
	Actual   model.Value
	Armed    bool
}

// armed reports whether a band has been derived since the last reset.
func (s *State) armed() bool {
	return s.Upper != 0
}

func (s *State) resetBounds() {
	s.Lower, s.Upper = 0, 0
}

func (s *State) inBand(v float64) bool {
	return s.Lower <= v && v <= s.Upper
}

func (s State) clone() State {
	s.Pending = s.Pending.Clone()
	return s
}

// trackedKeys lists the pending command keys in application order: registry
// order first, then anything left over sorted by name.
func (c *Controller) trackedKeys() []string {
	keys := make([]string, 0, len(c.state.Pending))
	seen := make(map[string]bool, len(c.state.Pending))
	for _, name := range c.appliance.Capabilities().Names() {
		if _, ok := c.state.Pending[name]; ok {
			keys = append(keys, name)
			seen[name] = true
		}
	}
	var rest []string
	for key := range c.state.Pending {
		if !seen[key] {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

// detectOverride compares the command baseline to the live properties. Every
// mismatch moves the baseline to the live value; the first one seen while the
// engine is armed opens a pause window and drops the band so the target is
// derived again once the pause ends. It reports whether a pause was opened.
func (c *Controller) detectOverride(props model.Properties, now time.Time) bool {
	s := &c.state
	if s.Status == model.StatusError {
		// keep the failed target so the next cycle retries it
		return false
	}

	armed := s.armed()
	opened := false
	for _, key := range c.trackedKeys() {
		live, ok := props[key]
		if !ok || live == s.Pending[key] {
			continue
		}

		log.Info().
			Str("property", key).
			Str("expected", string(s.Pending[key])).
			Str("actual", string(live)).
			Bool("armed", armed).
			Msg("Manual change detected on managed property")

		if c.OnOverride != nil {
			c.OnOverride(Override{
				At:       now,
				Property: key,
				Expected: s.Pending[key],
				Actual:   live,
				Armed:    armed,
			})
		}

		s.Pending[key] = live
		if armed && !opened {
			s.resetBounds()
			if pause := c.pauseDuration(); pause > 0 {
				s.PauseEnd = now.Add(pause)
				opened = true
				log.Info().
					Time("pause_end", s.PauseEnd).
					Msg("Pausing automation after manual override")
			}
		}
	}
	return opened
}

// evaluate re-derives the target operating point when v has left the band.
// It returns the selected index, or -1 when nothing changed.
func (c *Controller) evaluate(v float64) int {
	s := &c.state
	if s.inBand(v) {
		return -1
	}

	i := selectPoint(c.cfg.SwitchPoints, v)
	if i < 0 {
		log.Warn().
			Float64("sensor", v).
			Msg("No switch point below sensor value, keeping current target")
		return -1
	}

	point := c.cfg.SwitchPoints[i]
	for key, value := range point.Commands {
		s.Pending[key] = value
	}
	s.Lower, s.Upper = boundsFor(c.cfg, i)
	s.Status = model.StatusBusy

	log.Info().
		Float64("sensor", v).
		Float64("threshold", point.Threshold).
		Float64("lower_bound", s.Lower).
		Float64("upper_bound", s.Upper).
		Msg("Selected new switch point")
	return i
}

func (c *Controller) pauseDuration() time.Duration {
	return time.Duration(c.cfg.PauseMinutes * float64(time.Minute))
}
