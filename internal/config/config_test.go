package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/purifier-controller/internal/model"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadFile_Defaults(t *testing.T) {
	path := writeConfig(t, `{"mqtt": {"broker": "tcp://localhost:1883"}}`)

	var cfg Config
	require.NoError(t, loadFile(path, &cfg))

	assert.Equal(t, 30, cfg.PollIntervalSeconds)
	assert.Equal(t, 8080, cfg.APIPort)
	assert.Equal(t, "home/purifier", cfg.MQTT.BaseTopic)
	assert.True(t, cfg.Automation.Equal(model.DefaultAutomationConfig()))

	cfg.validate() // should not panic
}

func TestLoadFile_AutomationTable(t *testing.T) {
	path := writeConfig(t, `{
		"poll_interval_seconds": 10,
		"automation": {
			"sensor_key": "pm25",
			"sensor_range": [0, 500],
			"pause_minutes": 15,
			"switch_delta": 2,
			"switch_on_point": 20,
			"switch_points": [
				{"threshold": 0, "commands": {"mode": "idle"}},
				{"threshold": 20, "commands": {"mode": "favorite", "favoriteLevel": 3}},
				{"threshold": 150, "commands": {"mode": "auto"}}
			]
		},
		"mqtt": {"broker": "tcp://broker:1883"}
	}`)

	var cfg Config
	require.NoError(t, loadFile(path, &cfg))

	assert.Equal(t, 10, cfg.PollIntervalSeconds)
	assert.Equal(t, "pm25", cfg.Automation.SensorKey)
	assert.Equal(t, 500.0, cfg.Automation.SensorMax())
	require.Len(t, cfg.Automation.SwitchPoints, 3)
	assert.Equal(t, model.Value("3"), cfg.Automation.SwitchPoints[1].Commands["favoriteLevel"])
}

func TestLoadFile_Errors(t *testing.T) {
	var cfg Config
	assert.Error(t, loadFile(filepath.Join(t.TempDir(), "missing.json"), &cfg))
	assert.Error(t, loadFile(writeConfig(t, `{not json`), &cfg))
}

func TestValidate_PanicsOnBadTable(t *testing.T) {
	cfg := Config{Simulate: true, Automation: model.DefaultAutomationConfig()}
	cfg.Automation.SwitchPoints[5].Threshold = 1

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic due to unordered switch points, but got none")
		}
	}()

	cfg.validate()
}

func TestValidate_PanicsWithoutBroker(t *testing.T) {
	cfg := Config{Automation: model.DefaultAutomationConfig()}

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic due to missing broker, but got none")
		}
	}()

	cfg.validate()
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, parseLogLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, parseLogLevel("warn"))
	assert.Equal(t, zerolog.ErrorLevel, parseLogLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, parseLogLevel("verbose"))
}
