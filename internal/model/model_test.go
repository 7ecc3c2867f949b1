package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_DecodesNumbersStringsAndBools(t *testing.T) {
	var cmds Commands
	err := json.Unmarshal([]byte(`{"mode":"favorite","favoriteLevel":2,"ratio":2.50,"power":true}`), &cmds)
	require.NoError(t, err)

	assert.Equal(t, Commands{"mode": "favorite", "favoriteLevel": "2", "ratio": "2.5", "power": "true"}, cmds)
	assert.Equal(t, Num(2), cmds["favoriteLevel"])

	var bad Value
	assert.Error(t, json.Unmarshal([]byte(`{"nested":1}`), &bad))
}

func TestValue_EncodesNumbersAsNumbers(t *testing.T) {
	b, err := json.Marshal(Commands{"favoriteLevel": "4"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"favoriteLevel":4}`, string(b))

	b, err = json.Marshal(Properties{"power": "false", "mode": "NaN"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"power":false,"mode":"NaN"}`, string(b))
}

func TestAutomationConfig_EqualAndClone(t *testing.T) {
	a := DefaultAutomationConfig()
	b := a.Clone()
	assert.True(t, a.Equal(b))

	b.SwitchPoints[4].Commands["favoriteLevel"] = "9"
	assert.False(t, a.Equal(b))
	assert.Equal(t, Value("4"), a.SwitchPoints[4].Commands["favoriteLevel"], "clone must not share maps")

	c := a.Clone()
	c.SwitchOnPoint = 30
	assert.False(t, a.Equal(c))
}

func TestDefaultAutomationConfig(t *testing.T) {
	cfg := DefaultAutomationConfig()
	require.NoError(t, cfg.Validate())

	assert.Len(t, cfg.SwitchPoints, 18)
	assert.Equal(t, 11.0, cfg.SwitchPoints[1].Threshold)
	assert.Equal(t, 375.0, cfg.SwitchPoints[16].Threshold)
	assert.Equal(t, Commands{"mode": "auto"}, cfg.SwitchPoints[17].Commands)
}

func TestAutomationConfig_CommandKeys(t *testing.T) {
	assert.Equal(t, []string{"mode", "favoriteLevel"}, DefaultAutomationConfig().CommandKeys())

	cfg := AutomationConfig{SwitchPoints: []SwitchPoint{
		{Threshold: 0, Commands: Commands{"power": "false"}},
		{Threshold: 10, Commands: Commands{"speed": "2", "power": "true"}},
	}}
	assert.Equal(t, []string{"power", "speed"}, cfg.CommandKeys())
}
