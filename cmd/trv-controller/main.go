package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/trv-controller/db"
	"github.com/thatsimonsguy/trv-controller/internal/api"
	"github.com/thatsimonsguy/trv-controller/internal/config"
	"github.com/thatsimonsguy/trv-controller/internal/controllers/roomcontroller"
	"github.com/thatsimonsguy/trv-controller/internal/datadog"
	"github.com/thatsimonsguy/trv-controller/internal/env"
	"github.com/thatsimonsguy/trv-controller/internal/logging"
	"github.com/thatsimonsguy/trv-controller/internal/model"
	"github.com/thatsimonsguy/trv-controller/internal/notifications"
	"github.com/thatsimonsguy/trv-controller/internal/sensors"
	"github.com/thatsimonsguy/trv-controller/internal/valve"
	"github.com/thatsimonsguy/trv-controller/system/shutdown"
)

type ntfyNotifier struct{}

func (ntfyNotifier) Send(title, message string) error {
	return notifications.Send(title, message)
}

func main() {
	cfg := config.Load()
	logging.Init(cfg.LogLevel)
	env.Cfg = &cfg

	log.Info().
		Str("db_path", cfg.DBPath).
		Int("rooms", len(cfg.Rooms)).
		Msg("Starting TRV controller")

	if cfg.EnableDatadog {
		datadog.InitMetrics()
	}
	notifications.Init()

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}

	rooms := make([]model.Room, 0, len(cfg.Rooms))
	for _, rc := range cfg.Rooms {
		rooms = append(rooms, rc.Room())
	}
	if err := db.SeedRooms(database, rooms); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed rooms")
	}

	sensorService := sensors.NewService(
		time.Duration(cfg.SensorMaxAgeSeconds)*time.Second,
		cfg.SensorMaxDeltaC,
	)
	registry := roomcontroller.NewRegistry()
	valves := valve.NewDispatcher()
	shutdown.Init(valves, rooms)

	deps := roomcontroller.Deps{
		DB:              database,
		Sensors:         sensorService,
		Valves:          valves,
		Registry:        registry,
		Notifier:        ntfyNotifier{},
		FlowSensorID:    cfg.FlowSensorID,
		OutdoorSensorID: cfg.OutdoorSensorID,
		PollInterval:    time.Duration(cfg.PollIntervalSeconds) * time.Second,
	}

	for _, rc := range cfg.Rooms {
		ctrl := roomcontroller.New(roomcontroller.Config{
			Model:                  rc.Model,
			FeedForward:            rc.FeedForward,
			BlendHalfWidth:         cfg.Control.BlendHalfWidth,
			DecayTau:               cfg.Control.DecayTauSeconds,
			BoostDuration:          time.Duration(cfg.Control.BoostMinutes) * time.Minute,
			MinSendInterval:        time.Duration(cfg.Control.MinSendIntervalSeconds) * time.Second,
			WindowThresholdPerMin:  cfg.Control.WindowThresholdPerMin,
			WindowOpenDuration:     time.Duration(cfg.Control.WindowOpenMinutes) * time.Minute,
			WindowCheckMinInterval: time.Duration(cfg.Control.WindowCheckSeconds) * time.Second,
			HeatingActionThreshold: cfg.Control.HeatingActionThreshold,
		})
		if !ctrl.Valid() {
			log.Error().Str("room", rc.ID).Msg("Room has an unusable process model, valve will stay closed")
		}
		roomcontroller.Run(rc.Room(), ctrl, deps)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Info().Str("signal", sig.String()).Msg("Shutting down, closing all valves")
		shutdown.Shutdown()
	}()

	server := api.NewServer(database, sensorService, registry, &cfg)
	if err := server.Start(cfg.ListenAddr); err != nil {
		log.Fatal().Err(err).Msg("API server failed")
	}
}
