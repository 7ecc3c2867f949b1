package model

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

type Status string

const (
	StatusReady    Status = "ready"
	StatusBusy     Status = "busy"
	StatusError    Status = "error"
	StatusDisabled Status = "disabled"
)

// Value is a property value in canonical text form. Numbers, strings and
// booleans decoded from JSON all land here, so "2" from a config file and 2
// reported by the appliance compare equal.
type Value string

func Num(f float64) Value {
	return Value(strconv.FormatFloat(f, 'f', -1, 64))
}

func (v Value) Float() (float64, bool) {
	f, err := strconv.ParseFloat(string(v), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func (v Value) Int() (int, error) {
	f, ok := v.Float()
	if !ok {
		return 0, fmt.Errorf("not a number: %q", string(v))
	}
	return int(f), nil
}

func (v *Value) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*v = Value(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*v = Num(f)
		return nil
	}
	var flag bool
	if err := json.Unmarshal(b, &flag); err == nil {
		*v = Value(strconv.FormatBool(flag))
		return nil
	}
	return fmt.Errorf("unsupported property value %s", b)
}

func (v Value) MarshalJSON() ([]byte, error) {
	if f, ok := v.Float(); ok {
		return json.Marshal(f)
	}
	if v == "true" || v == "false" {
		return []byte(v), nil
	}
	return json.Marshal(string(v))
}

// Properties is a snapshot of an appliance's last known property values.
type Properties map[string]Value

// Commands maps a property name to the value the controller wants it to hold.
type Commands map[string]Value

func (c Commands) Clone() Commands {
	out := make(Commands, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

func (c Commands) Equal(o Commands) bool {
	if len(c) != len(o) {
		return false
	}
	for k, v := range c {
		if ov, ok := o[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

type SwitchPoint struct {
	Threshold float64  `json:"threshold"`
	Commands  Commands `json:"commands"`
}

type AutomationConfig struct {
	SensorKey     string        `json:"sensor_key"`
	SensorRange   [2]float64    `json:"sensor_range"`
	PauseMinutes  float64       `json:"pause_minutes"`
	SwitchDelta   float64       `json:"switch_delta"`
	SwitchOnPoint float64       `json:"switch_on_point"`
	SwitchPoints  []SwitchPoint `json:"switch_points"`
}

func (c AutomationConfig) SensorMin() float64 { return c.SensorRange[0] }
func (c AutomationConfig) SensorMax() float64 { return c.SensorRange[1] }

// Validate checks the structural shape of the table. Command keys are checked
// against an appliance's capabilities by the automation package.
func (c AutomationConfig) Validate() error {
	if c.SensorKey == "" {
		return fmt.Errorf("sensor_key is required")
	}
	if c.SensorMin() >= c.SensorMax() {
		return fmt.Errorf("sensor_range [%v, %v] is empty", c.SensorMin(), c.SensorMax())
	}
	if c.PauseMinutes < 0 {
		return fmt.Errorf("pause_minutes must not be negative, got %v", c.PauseMinutes)
	}
	if len(c.SwitchPoints) == 0 {
		return fmt.Errorf("switch_points must not be empty")
	}
	for i := 1; i < len(c.SwitchPoints); i++ {
		prev, cur := c.SwitchPoints[i-1].Threshold, c.SwitchPoints[i].Threshold
		if cur <= prev {
			return fmt.Errorf("switch_points[%d] threshold %v does not exceed %v", i, cur, prev)
		}
	}
	return nil
}

// CommandKeys lists every property the table drives, in order of first
// appearance.
func (c AutomationConfig) CommandKeys() []string {
	var keys []string
	seen := map[string]bool{}
	for _, p := range c.SwitchPoints {
		names := make([]string, 0, len(p.Commands))
		for k := range p.Commands {
			if !seen[k] {
				names = append(names, k)
				seen[k] = true
			}
		}
		sort.Strings(names)
		keys = append(keys, names...)
	}
	return keys
}

func (c AutomationConfig) Clone() AutomationConfig {
	out := c
	out.SwitchPoints = make([]SwitchPoint, len(c.SwitchPoints))
	for i, p := range c.SwitchPoints {
		out.SwitchPoints[i] = SwitchPoint{Threshold: p.Threshold, Commands: p.Commands.Clone()}
	}
	return out
}

func (c AutomationConfig) Equal(o AutomationConfig) bool {
	if c.SensorKey != o.SensorKey ||
		c.SensorRange != o.SensorRange ||
		c.PauseMinutes != o.PauseMinutes ||
		c.SwitchDelta != o.SwitchDelta ||
		c.SwitchOnPoint != o.SwitchOnPoint ||
		len(c.SwitchPoints) != len(o.SwitchPoints) {
		return false
	}
	for i := range c.SwitchPoints {
		if c.SwitchPoints[i].Threshold != o.SwitchPoints[i].Threshold ||
			!c.SwitchPoints[i].Commands.Equal(o.SwitchPoints[i].Commands) {
			return false
		}
	}
	return true
}

// DefaultAutomationConfig is the table shipped with the Air Purifier 3: idle at
// clean air, sixteen favorite levels in steps of 25 AQI and auto mode above 400.
func DefaultAutomationConfig() AutomationConfig {
	points := []SwitchPoint{
		{Threshold: 0, Commands: Commands{"mode": "idle"}},
	}
	for level := 1; level <= 16; level++ {
		threshold := float64(level-1) * 25
		if level == 1 {
			threshold = 11
		}
		points = append(points, SwitchPoint{
			Threshold: threshold,
			Commands:  Commands{"mode": "favorite", "favoriteLevel": Num(float64(level))},
		})
	}
	points = append(points, SwitchPoint{Threshold: 400, Commands: Commands{"mode": "auto"}})

	return AutomationConfig{
		SensorKey:     "aqi",
		SensorRange:   [2]float64{0, 999},
		PauseMinutes:  30,
		SwitchDelta:   0,
		SwitchOnPoint: 25,
		SwitchPoints:  points,
	}
}
