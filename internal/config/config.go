package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/thatsimonsguy/purifier-controller/internal/model"
)

type MQTT struct {
	Broker    string `json:"broker"`
	ClientID  string `json:"client_id"`
	BaseTopic string `json:"base_topic"`
}

type Config struct {
	ConfigFile string
	DBPath     string
	LogLevel   zerolog.Level
	Simulate   bool

	LogFile string `json:"log_file"`

	PollIntervalSeconds int  `json:"poll_interval_seconds"`
	APIPort             int  `json:"api_port"`
	AutomationEnabled   bool `json:"automation_enabled"`

	Automation model.AutomationConfig `json:"automation"`

	MQTT MQTT `json:"mqtt"`

	EnableDatadog bool     `json:"enable_datadog"`
	DDAgentAddr   string   `json:"dd_agent_addr"`
	DDNamespace   string   `json:"dd_namespace"`
	DDTags        []string `json:"dd_tags"`

	NtfyTopic string `json:"ntfy_topic"`
}

func Load() Config {
	var cfg Config
	var logLevel string

	flag.StringVar(&cfg.ConfigFile, "config-file", "config.json", "Path to controller config file")
	flag.StringVar(&cfg.DBPath, "db", "data/purifier.db", "Path to the SQLite history database")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.BoolVar(&cfg.Simulate, "simulate", false, "Drive an in-memory purifier instead of the MQTT bridge")
	flag.Parse()

	cfg.LogLevel = parseLogLevel(logLevel)

	if err := loadFile(cfg.ConfigFile, &cfg); err != nil {
		panic("Failed to load config file: " + err.Error())
	}

	cfg.validate()
	return cfg
}

func loadFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	return nil
}

func (cfg *Config) applyDefaults() {
	if cfg.PollIntervalSeconds == 0 {
		cfg.PollIntervalSeconds = 30
	}
	if cfg.APIPort == 0 {
		cfg.APIPort = 8080
	}
	if len(cfg.Automation.SwitchPoints) == 0 {
		cfg.Automation = model.DefaultAutomationConfig()
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "purifier-controller"
	}
	if cfg.MQTT.BaseTopic == "" {
		cfg.MQTT.BaseTopic = "home/purifier"
	}
	if cfg.DDNamespace == "" {
		cfg.DDNamespace = "purifier."
	}
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (cfg *Config) validate() {
	var problems []string

	if err := cfg.Automation.Validate(); err != nil {
		problems = append(problems, "automation: "+err.Error())
	}
	if cfg.PollIntervalSeconds < 0 {
		problems = append(problems, "poll_interval_seconds must be positive")
	}
	if !cfg.Simulate && cfg.MQTT.Broker == "" {
		problems = append(problems, "mqtt.broker is required unless -simulate is set")
	}
	if cfg.EnableDatadog && cfg.DDAgentAddr == "" {
		problems = append(problems, "dd_agent_addr is required when enable_datadog is set")
	}

	if len(problems) > 0 {
		panic("Invalid config: " + strings.Join(problems, "; "))
	}
}
