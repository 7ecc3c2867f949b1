package appliance

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/purifier-controller/internal/model"
)

const (
	MinFavoriteLevel = 0
	MaxFavoriteLevel = 16
)

var PurifierModes = []string{"auto", "silent", "favorite", "idle"}

// LEDBrightnessLevels are the display brightness steps in percent.
var LEDBrightnessLevels = []int{0, 25, 50, 75, 100}

// Purifier is an in-memory air purifier. It behaves like the Air Purifier 3:
// idle powers the unit off, any other mode powers it on, and changing the
// favorite level switches the unit into favorite mode.
//
// Setters run in registration order. favoriteLevel is registered ahead of mode
// so a table point that moves off favorite still ends in the mode it asked for.
type Purifier struct {
	mu       sync.RWMutex
	props    model.Properties
	registry *Registry
	failures map[string]error
}

func NewPurifier() *Purifier {
	p := &Purifier{
		props: model.Properties{
			"power":         "false",
			"mode":          "idle",
			"favoriteLevel": "0",
			"buzzer":        "true",
			"ledBrightness": "100",
			"childLock":     "false",
			"aqi":           "0",
		},
		failures: make(map[string]error),
	}

	p.registry = NewRegistry()
	p.registry.Register("power", p.setPower)
	p.registry.Register("favoriteLevel", p.setFavoriteLevel)
	p.registry.Register("mode", p.setMode)
	p.registry.Register("buzzer", p.boolSetter("buzzer"))
	p.registry.Register("ledBrightness", p.setLEDBrightness)
	p.registry.Register("childLock", p.boolSetter("childLock"))
	return p
}

func (p *Purifier) Properties() model.Properties {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(model.Properties, len(p.props))
	for k, v := range p.props {
		out[k] = v
	}
	return out
}

func (p *Purifier) Capabilities() *Registry {
	return p.registry
}

// SetProperty writes a property directly, the way a sensor update or a button
// press on the unit would. It bypasses the setters.
func (p *Purifier) SetProperty(name string, value model.Value) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.props[name] = value
}

// SetFailure makes the named setter return err until cleared with a nil err.
func (p *Purifier) SetFailure(name string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.failures, name)
		return
	}
	p.failures[name] = err
}

func (p *Purifier) failure(name string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.failures[name]
}

func (p *Purifier) setPower(ctx context.Context, value model.Value) (model.Value, error) {
	if err := p.precheck(ctx, "power"); err != nil {
		return "", err
	}
	on, err := strconv.ParseBool(string(value))
	if err != nil {
		return "", fmt.Errorf("invalid power value `%s`", value)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.props["power"] = model.Value(strconv.FormatBool(on))
	if !on {
		p.props["mode"] = "idle"
	}
	log.Debug().Bool("power", on).Msg("Purifier power changed")
	return p.props["power"], nil
}

func (p *Purifier) setMode(ctx context.Context, value model.Value) (model.Value, error) {
	if err := p.precheck(ctx, "mode"); err != nil {
		return "", err
	}
	if !supportedMode(string(value)) {
		return "", fmt.Errorf("mode `%s` not supported", value)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.props["mode"] = value
	p.props["power"] = model.Value(strconv.FormatBool(value != "idle"))
	log.Debug().Str("mode", string(value)).Msg("Purifier mode changed")
	return value, nil
}

func (p *Purifier) setFavoriteLevel(ctx context.Context, value model.Value) (model.Value, error) {
	if err := p.precheck(ctx, "favoriteLevel"); err != nil {
		return "", err
	}
	level, err := value.Int()
	if err != nil {
		return "", fmt.Errorf("invalid favoriteLevel value `%s`", value)
	}
	if level < MinFavoriteLevel {
		level = MinFavoriteLevel
	} else if level > MaxFavoriteLevel {
		level = MaxFavoriteLevel
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.props["favoriteLevel"] = model.Num(float64(level))
	p.props["power"] = "true"
	p.props["mode"] = "favorite"
	log.Debug().Int("favorite_level", level).Msg("Purifier favorite level changed")
	return p.props["favoriteLevel"], nil
}

// boolSetter covers the plain on/off switches of the unit.
func (p *Purifier) boolSetter(name string) Setter {
	return func(ctx context.Context, value model.Value) (model.Value, error) {
		if err := p.precheck(ctx, name); err != nil {
			return "", err
		}
		on, err := strconv.ParseBool(string(value))
		if err != nil {
			return "", fmt.Errorf("invalid %s value `%s`", name, value)
		}

		p.mu.Lock()
		defer p.mu.Unlock()
		p.props[name] = model.Value(strconv.FormatBool(on))
		log.Debug().Bool(name, on).Msg("Purifier switch changed")
		return p.props[name], nil
	}
}

func (p *Purifier) setLEDBrightness(ctx context.Context, value model.Value) (model.Value, error) {
	if err := p.precheck(ctx, "ledBrightness"); err != nil {
		return "", err
	}
	level, err := value.Int()
	if err != nil || !supportedBrightness(level) {
		return "", fmt.Errorf("invalid LED brightness `%s`", value)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.props["ledBrightness"] = model.Num(float64(level))
	log.Debug().Int("led_brightness", level).Msg("Purifier LED brightness changed")
	return p.props["ledBrightness"], nil
}

func (p *Purifier) precheck(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.failure(name)
}

func supportedMode(mode string) bool {
	for _, m := range PurifierModes {
		if m == mode {
			return true
		}
	}
	return false
}

func supportedBrightness(level int) bool {
	for _, l := range LEDBrightnessLevels {
		if l == level {
			return true
		}
	}
	return false
}
