package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/purifier-controller/db"
	"github.com/thatsimonsguy/purifier-controller/internal/api"
	"github.com/thatsimonsguy/purifier-controller/internal/appliance"
	"github.com/thatsimonsguy/purifier-controller/internal/automation"
	"github.com/thatsimonsguy/purifier-controller/internal/config"
	"github.com/thatsimonsguy/purifier-controller/internal/controllers/automationcontroller"
	"github.com/thatsimonsguy/purifier-controller/internal/datadog"
	"github.com/thatsimonsguy/purifier-controller/internal/env"
	"github.com/thatsimonsguy/purifier-controller/internal/logging"
	"github.com/thatsimonsguy/purifier-controller/internal/mqtt"
	"github.com/thatsimonsguy/purifier-controller/internal/notifications"
	"github.com/thatsimonsguy/purifier-controller/system/shutdown"
)

func main() {
	cfg := config.Load()
	env.Cfg = &cfg
	logging.Init(cfg.LogLevel, cfg.LogFile)

	log.Info().
		Str("config_file", cfg.ConfigFile).
		Str("db", cfg.DBPath).
		Bool("simulate", cfg.Simulate).
		Msg("Starting purifier controller")

	datadog.InitMetrics()
	shutdown.Register("datadog", datadog.Close)
	notifications.Init()

	dbConn, err := db.Open(cfg.DBPath)
	if err != nil {
		shutdown.ShutdownWithError(err, "Failed to open history database")
		return
	}
	shutdown.Register("db", dbConn.Close)

	var device appliance.Appliance
	var publisher mqtt.Publisher
	if cfg.Simulate {
		log.Warn().Msg("SIMULATE MODE ENABLED, driving an in-memory purifier")
		device = appliance.NewPurifier()
	}
	if !cfg.Simulate || cfg.MQTT.Broker != "" {
		client, err := mqtt.Connect(cfg.MQTT)
		if err != nil {
			shutdown.ShutdownWithError(err, "Failed to connect to MQTT broker")
			return
		}
		if device == nil {
			bridge := mqtt.NewBridge(client, cfg.MQTT.BaseTopic, cfg.Automation.CommandKeys())
			if err := bridge.Subscribe(); err != nil {
				shutdown.ShutdownWithError(err, "Failed to subscribe to appliance state")
				return
			}
			device = bridge
		}
		publisher = mqtt.NewRealPublisher(client, cfg.MQTT.BaseTopic)
		shutdown.Register("mqtt", publisher.Close)
	}

	ctrl, err := automation.New(device, cfg.Automation)
	if err != nil {
		shutdown.ShutdownWithError(err, "Refusing to start with an invalid automation table")
		return
	}

	var notify automationcontroller.NotifyFunc
	if cfg.NtfyTopic != "" {
		notify = notifications.Send
	}
	runner := automationcontroller.New(ctrl, device, dbConn, publisher, notify)
	runner.SetAutomation(cfg.AutomationEnabled)

	ctx, cancel := context.WithCancel(context.Background())
	shutdown.Register("automation", func() error { cancel(); return nil })
	automationcontroller.RunAutomationController(ctx, runner, time.Duration(cfg.PollIntervalSeconds)*time.Second)

	server := api.NewServer(runner)
	shutdown.Register("api", server.Close)
	go func() {
		if err := server.Start(cfg.APIPort); err != nil {
			shutdown.ShutdownWithError(err, "REST API server failed")
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigs
	log.Info().Str("signal", sig.String()).Msg("Shutting down")
	shutdown.Shutdown()
}
