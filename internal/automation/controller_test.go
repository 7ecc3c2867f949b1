package automation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/purifier-controller/internal/appliance"
	"github.com/thatsimonsguy/purifier-controller/internal/model"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

func newTestController(t *testing.T) (*Controller, *appliance.Purifier, *fakeClock) {
	t.Helper()
	p := appliance.NewPurifier()
	c, err := New(p, model.DefaultAutomationConfig())
	require.NoError(t, err)

	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	c.Now = clock.Now
	c.SetAutomation(true)
	return c, p, clock
}

func reading(v float64) *float64 { return &v }

func TestDoAutomation_SelectsBandAndApplies(t *testing.T) {
	c, p, _ := newTestController(t)
	ctx := context.Background()

	res := c.DoAutomation(ctx, reading(30))
	assert.Empty(t, res.Error)
	assert.Equal(t, "ready", res.Automation)
	assert.Equal(t, model.Commands{"favoriteLevel": "2"}, res.Applied, "the level write already switches the mode")

	st := c.State()
	assert.Equal(t, 25.0, st.Lower)
	assert.Equal(t, 50.0, st.Upper)
	assert.Equal(t, model.StatusReady, st.Status)
	assert.Equal(t, model.Value("favorite"), p.Properties()["mode"])

	res = c.DoAutomation(ctx, reading(49))
	assert.Equal(t, Result{Automation: "ready"}, res)
	assert.Equal(t, st, c.State())

	res = c.DoAutomation(ctx, reading(51))
	assert.Equal(t, model.Commands{"favoriteLevel": "3"}, res.Applied)
	st = c.State()
	assert.Equal(t, 50.0, st.Lower)
	assert.Equal(t, 75.0, st.Upper)
}

func TestDoAutomation_IdempotentInBand(t *testing.T) {
	c, _, _ := newTestController(t)
	ctx := context.Background()

	c.DoAutomation(ctx, reading(60))
	before := c.State()

	for _, v := range []float64{50, 55, 60, 75} {
		res := c.DoAutomation(ctx, reading(v))
		assert.Equal(t, Result{Automation: "ready"}, res, "value %v", v)
		assert.Equal(t, before, c.State(), "value %v", v)
	}
}

func TestDoAutomation_TopAndBottomBounds(t *testing.T) {
	c, p, _ := newTestController(t)
	ctx := context.Background()

	res := c.DoAutomation(ctx, reading(5))
	assert.Equal(t, "ready", res.Automation)
	assert.Empty(t, res.Applied, "purifier is already idle")
	assert.Equal(t, 0.0, c.State().Lower)
	assert.Equal(t, 25.0, c.State().Upper)

	res = c.DoAutomation(ctx, reading(500))
	assert.Equal(t, model.Commands{"mode": "auto"}, res.Applied)
	assert.Equal(t, 400.0, c.State().Lower)
	assert.Equal(t, 1000.0, c.State().Upper)
	assert.Equal(t, model.Value("auto"), p.Properties()["mode"])
}

func TestDoAutomation_MergesCommandsKeyByKey(t *testing.T) {
	c, _, _ := newTestController(t)
	ctx := context.Background()

	c.DoAutomation(ctx, reading(30))
	res := c.DoAutomation(ctx, reading(5))
	assert.Equal(t, model.Commands{"mode": "idle"}, res.Applied)

	pending := c.State().Pending
	assert.Equal(t, model.Value("idle"), pending["mode"])
	assert.Equal(t, model.Value("2"), pending["favoriteLevel"], "keys missing from the idle point keep their baseline")
}

func TestDoAutomation_ManualOverridePauses(t *testing.T) {
	c, p, clock := newTestController(t)
	ctx := context.Background()

	c.DoAutomation(ctx, reading(30))
	p.SetProperty("mode", "auto")

	res := c.DoAutomation(ctx, reading(30))
	assert.Equal(t, Result{Automation: "paused for 30m"}, res)

	st := c.State()
	assert.Equal(t, 0.0, st.Lower)
	assert.Equal(t, 0.0, st.Upper)
	assert.Equal(t, model.Value("auto"), st.Pending["mode"])
	assert.Equal(t, model.Value("auto"), p.Properties()["mode"], "controller must not fight the user")

	res = c.DoAutomation(ctx, reading(30))
	assert.Equal(t, Result{Automation: "paused for 30m"}, res)
	assert.Equal(t, "paused for 30m", c.Automation().Paused)

	clock.Advance(10*time.Minute + 30*time.Second)
	res = c.DoAutomation(ctx, reading(30))
	assert.Equal(t, Result{Automation: "paused for 20m"}, res)

	clock.Advance(20 * time.Minute)
	res = c.DoAutomation(ctx, reading(30))
	assert.Equal(t, "ready", res.Automation)
	assert.Equal(t, model.Commands{"mode": "favorite"}, res.Applied)
	assert.True(t, c.State().PauseEnd.IsZero())
	assert.Equal(t, 25.0, c.State().Lower)
	assert.Equal(t, 50.0, c.State().Upper)
	assert.Equal(t, Toggle{Enabled: true}, c.Automation())
}

func TestDoAutomation_MismatchBeforeArmedDoesNotPause(t *testing.T) {
	c, p, _ := newTestController(t)
	ctx := context.Background()

	c.DoAutomation(ctx, reading(30))

	cfg := c.Config()
	cfg.PauseMinutes = 10
	require.NoError(t, c.SetConfig(cfg))
	p.SetProperty("mode", "silent")

	res := c.DoAutomation(ctx, reading(30))
	assert.Equal(t, "ready", res.Automation)
	assert.Equal(t, model.Commands{"mode": "favorite"}, res.Applied)
	assert.True(t, c.State().PauseEnd.IsZero())
}

func TestDoAutomation_StickyErrorAndRetry(t *testing.T) {
	c, p, _ := newTestController(t)
	ctx := context.Background()

	p.SetFailure("favoriteLevel", errors.New("device timeout"))

	res := c.DoAutomation(ctx, reading(30))
	assert.Equal(t, Result{Error: "Automation > device timeout"}, res)
	assert.Equal(t, model.StatusError, c.State().Status)
	assert.Equal(t, model.Value("idle"), p.Properties()["mode"], "nothing after the failed command is applied")

	res = c.DoAutomation(ctx, reading(30))
	assert.Equal(t, "Automation > device timeout", res.Error)
	assert.Equal(t, model.StatusError, c.State().Status)
	assert.Equal(t, model.Value("2"), c.State().Pending["favoriteLevel"], "failed target is retained")

	p.SetFailure("favoriteLevel", nil)
	res = c.DoAutomation(ctx, reading(30))
	assert.Equal(t, "ready", res.Automation)
	assert.Equal(t, model.Commands{"favoriteLevel": "2"}, res.Applied)
	assert.Equal(t, model.StatusReady, c.State().Status)
	assert.Equal(t, model.Value("favorite"), p.Properties()["mode"])
}

func TestDoAutomation_FirstFailureSkipsRemainingCommands(t *testing.T) {
	c, p, _ := newTestController(t)

	p.SetFailure("favoriteLevel", errors.New("level rejected"))
	res := c.DoAutomation(context.Background(), reading(500))

	assert.Equal(t, "Automation > level rejected", res.Error)
	assert.Empty(t, res.Applied)
	assert.Equal(t, model.Value("idle"), p.Properties()["mode"])
	assert.Equal(t, model.Value("false"), p.Properties()["power"])
}

func TestDoAutomation_Disabled(t *testing.T) {
	c, _, _ := newTestController(t)
	c.SetAutomation(false)
	before := c.State()

	for _, v := range []float64{30, 5000, -1} {
		res := c.DoAutomation(context.Background(), reading(v))
		assert.Equal(t, Result{Automation: "disabled"}, res)
	}
	assert.Equal(t, before, c.State())
}

func TestDoAutomation_InvalidSensor(t *testing.T) {
	c, p, _ := newTestController(t)
	ctx := context.Background()
	before := c.State()

	res := c.DoAutomation(ctx, reading(1000))
	assert.Equal(t, "Automation > Invalid sensor value `1000`", res.Error)
	assert.Equal(t, before, c.State())

	p.SetProperty("aqi", "n/a")
	res = c.DoAutomation(ctx, nil)
	assert.Contains(t, res.Error, "Invalid sensor value `n/a`")
	assert.Equal(t, before, c.State())
}

func TestDoAutomation_ReadsSensorProperty(t *testing.T) {
	c, p, _ := newTestController(t)

	p.SetProperty("aqi", "130")
	res := c.DoAutomation(context.Background(), nil)

	assert.Equal(t, model.Commands{"favoriteLevel": "6"}, res.Applied)
	assert.Equal(t, model.Value("favorite"), p.Properties()["mode"])
	assert.Equal(t, 125.0, c.State().Lower)
}

func TestDoAutomation_BusyBlocksNewDecision(t *testing.T) {
	c, _, _ := newTestController(t)
	c.state.Status = model.StatusBusy

	res := c.DoAutomation(context.Background(), reading(30))
	assert.Equal(t, Result{Automation: "busy"}, res)
	assert.Empty(t, c.State().Pending)
}

func TestSetConfig_ResetsBoundsOnlyOnChange(t *testing.T) {
	c, _, _ := newTestController(t)
	ctx := context.Background()
	c.DoAutomation(ctx, reading(30))

	require.NoError(t, c.SetConfig(model.DefaultAutomationConfig()))
	assert.Equal(t, 50.0, c.State().Upper)

	cfg := model.DefaultAutomationConfig()
	cfg.SwitchDelta = 2
	require.NoError(t, c.SetConfig(cfg))
	assert.Equal(t, 0.0, c.State().Lower)
	assert.Equal(t, 0.0, c.State().Upper)
	assert.Equal(t, cfg, c.Config())

	res := c.DoAutomation(ctx, reading(30))
	assert.Equal(t, "ready", res.Automation)
	assert.Equal(t, 23.0, c.State().Lower)
	assert.Equal(t, 52.0, c.State().Upper)

	bad := model.DefaultAutomationConfig()
	bad.SwitchPoints[1].Commands["unknown"] = "1"
	assert.Error(t, c.SetConfig(bad))
	assert.Equal(t, cfg, c.Config())
}

func TestSetAutomation_ClearsPause(t *testing.T) {
	c, p, _ := newTestController(t)
	ctx := context.Background()

	c.DoAutomation(ctx, reading(30))
	p.SetProperty("favoriteLevel", "9")
	res := c.DoAutomation(ctx, reading(30))
	require.Equal(t, "paused for 30m", res.Automation)

	assert.Equal(t, Toggle{Enabled: true}, c.SetAutomation(true))
	assert.True(t, c.State().PauseEnd.IsZero())

	res = c.DoAutomation(ctx, reading(30))
	assert.Equal(t, model.Commands{"favoriteLevel": "2"}, res.Applied)
}

func TestResultAndToggleJSON(t *testing.T) {
	b, err := json.Marshal(Result{Automation: "ready", Applied: model.Commands{"mode": "favorite", "favoriteLevel": "4"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"automation":"ready","mode":"favorite","favoriteLevel":4}`, string(b))

	b, err = json.Marshal(Result{Error: "Automation > boom"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"Automation > boom"}`, string(b))

	b, err = json.Marshal(Toggle{Enabled: false})
	require.NoError(t, err)
	assert.JSONEq(t, `{"automation":false}`, string(b))

	b, err = json.Marshal(Toggle{Enabled: true, Paused: "paused for 3m"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"automation":"paused for 3m"}`, string(b))
}

func TestDoAutomation_ReportsOverrides(t *testing.T) {
	c, p, clock := newTestController(t)
	ctx := context.Background()

	var seen []Override
	c.OnOverride = func(o Override) { seen = append(seen, o) }

	c.DoAutomation(ctx, reading(30))
	require.Empty(t, seen)

	p.SetProperty("favoriteLevel", "5")
	c.DoAutomation(ctx, reading(30))

	require.Len(t, seen, 1)
	assert.Equal(t, Override{
		At:       clock.Now(),
		Property: "favoriteLevel",
		Expected: "2",
		Actual:   "5",
		Armed:    true,
	}, seen[0])
}

func TestDoAutomation_RetryAfterErrorDoesNotPauseItself(t *testing.T) {
	c, p, _ := newTestController(t)
	ctx := context.Background()

	p.SetFailure("favoriteLevel", errors.New("device timeout"))
	res := c.DoAutomation(ctx, reading(30))
	require.Equal(t, "Automation > device timeout", res.Error)

	// The auto point leaves the failed level target in place.
	p.SetFailure("favoriteLevel", nil)
	res = c.DoAutomation(ctx, reading(500))
	assert.Equal(t, "ready", res.Automation)
	assert.Equal(t, model.Commands{"favoriteLevel": "2", "mode": "auto"}, res.Applied)
	assert.Equal(t, model.Value("auto"), p.Properties()["mode"])

	res = c.DoAutomation(ctx, reading(500))
	assert.Equal(t, Result{Automation: "ready"}, res)
	assert.True(t, c.State().PauseEnd.IsZero())
	assert.Equal(t, model.Value("auto"), p.Properties()["mode"])
}

// linkedAppliance applies mode before the fan level, and the level write
// forces favorite mode, like a bridged unit whose properties arrive in
// table order.
type linkedAppliance struct {
	props    model.Properties
	registry *appliance.Registry
}

func newLinkedAppliance() *linkedAppliance {
	a := &linkedAppliance{props: model.Properties{"mode": "idle", "favoriteLevel": "0", "aqi": "0"}}
	a.registry = appliance.NewRegistry()
	a.registry.Register("mode", func(_ context.Context, v model.Value) (model.Value, error) {
		a.props["mode"] = v
		return v, nil
	})
	a.registry.Register("favoriteLevel", func(_ context.Context, v model.Value) (model.Value, error) {
		a.props["favoriteLevel"] = v
		a.props["mode"] = "favorite"
		return v, nil
	})
	return a
}

func (a *linkedAppliance) Properties() model.Properties {
	out := make(model.Properties, len(a.props))
	for k, v := range a.props {
		out[k] = v
	}
	return out
}

func (a *linkedAppliance) Capabilities() *appliance.Registry { return a.registry }

func TestDoAutomation_SecondPassRestoresMovedProperty(t *testing.T) {
	a := newLinkedAppliance()
	c, err := New(a, model.DefaultAutomationConfig())
	require.NoError(t, err)
	c.SetAutomation(true)
	ctx := context.Background()

	c.state.Pending = model.Commands{"mode": "favorite", "favoriteLevel": "7"}
	c.state.Status = model.StatusError

	res := c.DoAutomation(ctx, reading(500))
	assert.Equal(t, "ready", res.Automation)
	assert.Equal(t, model.Value("auto"), a.props["mode"])
	assert.Equal(t, model.Value("7"), a.props["favoriteLevel"])

	res = c.DoAutomation(ctx, reading(500))
	assert.Equal(t, Result{Automation: "ready"}, res)
	assert.True(t, c.State().PauseEnd.IsZero())
}
