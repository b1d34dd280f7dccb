// arlod bridges an Arlo base station to Home Assistant and a local REST API.
// It logs into the cloud, discovers the station and its cameras, subscribes
// to the push event feed, and serves state over MQTT, HTTP, and websocket.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wrauf/arlo/internal/config"
	"github.com/wrauf/arlo/internal/core/auth"
	"github.com/wrauf/arlo/internal/core/basestation"
	"github.com/wrauf/arlo/internal/core/camera"
	"github.com/wrauf/arlo/internal/core/device"
	"github.com/wrauf/arlo/internal/core/eventstream"
	"github.com/wrauf/arlo/internal/core/media"
	"github.com/wrauf/arlo/internal/core/state"
	"github.com/wrauf/arlo/internal/httpapi"
	"github.com/wrauf/arlo/internal/mqtt"
)

// Version information, set at build time via ldflags.
var version = "dev"

const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := newLogger(cfg.Log)
	log.Info("starting arlod", "version", version)

	// --- Cloud session ---
	session := auth.NewSession(cfg.Arlo.APIBase, cfg.Session.Path, log)
	if session.Token() == "" {
		if cfg.Arlo.Username == "" || cfg.Arlo.Password == "" {
			return errors.New("no stored session and no credentials configured")
		}
		if err := session.Login(ctx, cfg.Arlo.Username, cfg.Arlo.Password); err != nil {
			return fmt.Errorf("login: %w", err)
		}
		log.Info("logged in", "user_id", session.UserID())
	} else {
		log.Info("reusing stored session", "user_id", session.UserID())
	}

	// --- Device discovery ---
	devices, err := session.Devices(ctx)
	if err != nil {
		return fmt.Errorf("listing devices: %w", err)
	}
	stationAttrs, cameraAttrs, err := splitDevices(devices, cfg.Arlo.BaseStationID)
	if err != nil {
		return err
	}
	log.Info("devices discovered",
		"base_station", stationAttrs.DeviceID,
		"cameras", len(cameraAttrs),
	)

	bus := state.NewEventBus(log)

	// --- Event stream ---
	stream := eventstream.New(session, stationAttrs.DeviceID, stationAttrs.XCloudID, bus, log)
	if err := stream.Start(ctx); err != nil {
		return fmt.Errorf("starting event stream: %w", err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		if stopErr := stream.Stop(stopCtx); stopErr != nil {
			log.Error("error stopping event stream", "error", stopErr)
		}
	}()

	// --- Station, cameras, media library ---
	station := basestation.New(stationAttrs, stream, session, log)
	if err := station.Refresh(ctx); err != nil {
		log.Warn("initial station refresh failed", "error", err)
	}

	library := media.NewLibrary(session, log)
	cameras := make([]*camera.Camera, 0, len(cameraAttrs))
	camInfos := make([]mqtt.CameraInfo, 0, len(cameraAttrs))
	for _, attrs := range cameraAttrs {
		cam := camera.New(attrs, session, station, library, log)
		cam.SetVideoCacheDays(cfg.Media.PreloadDays)
		cameras = append(cameras, cam)
		camInfos = append(camInfos, mqtt.CameraInfo{DeviceID: attrs.DeviceID, Name: attrs.DeviceName})
	}

	// --- MQTT publisher ---
	var publisher mqtt.Publisher
	if cfg.MQTT.Enabled {
		publisher = mqtt.NewHAPublisher(mqtt.MQTTConfig{
			Broker:      cfg.MQTT.Broker,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			DeviceID:    cfg.MQTT.DeviceID,
		}, station, station, camInfos, bus, log)
	} else {
		publisher = mqtt.NewStubPublisher(log)
	}
	if err := publisher.Start(ctx); err != nil {
		return fmt.Errorf("starting MQTT publisher: %w", err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		if stopErr := publisher.Stop(stopCtx); stopErr != nil {
			log.Error("error stopping MQTT publisher", "error", stopErr)
		}
	}()

	// --- HTTP API ---
	api := httpapi.NewServer(station, cameras, library, bus, cfg.HTTP.CORSAll, log)
	httpSrv := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: api.Handler(),
	}
	httpErr := make(chan error, 1)
	go func() {
		log.Info("HTTP API listening", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
	}()
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		if stopErr := httpSrv.Shutdown(stopCtx); stopErr != nil {
			log.Error("error shutting down HTTP server", "error", stopErr)
		}
	}()

	// --- Poll loop ---
	go pollLoop(ctx, station, bus, cfg.Arlo.PollInterval.Std(), log)

	log.Info("initialisation complete, waiting for shutdown signal")

	select {
	case <-ctx.Done():
	case err := <-httpErr:
		return fmt.Errorf("http server: %w", err)
	}

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// pollLoop periodically refreshes the station snapshot and publishes the
// resulting state onto the bus for the MQTT and websocket surfaces.
func pollLoop(ctx context.Context, station *basestation.BaseStation, bus *state.EventBus, interval time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := station.Update(ctx); err != nil {
			log.Warn("station update failed", "error", err)
			continue
		}

		if mode := station.Mode(); mode != "" {
			bus.Publish(state.Event{
				Type:     state.EventModeUpdate,
				DeviceID: station.DeviceID(),
				Data:     mode,
			})
		}

		reading := state.AmbientReading{
			Temperature: station.AmbientTemperature(ctx),
			Humidity:    station.AmbientHumidity(ctx),
			AirQuality:  station.AmbientAirQuality(ctx),
		}
		if reading.Temperature != nil || reading.Humidity != nil || reading.AirQuality != nil {
			bus.Publish(state.Event{
				Type:     state.EventAmbientUpdate,
				DeviceID: station.DeviceID(),
				Data:     reading,
			})
		}

		levels := state.CameraLevels{
			Battery: station.CamerasBatteryLevel(ctx),
			Signal:  station.CamerasSignalStrength(ctx),
		}
		if len(levels.Battery) > 0 || len(levels.Signal) > 0 {
			bus.Publish(state.Event{
				Type:     state.EventCameraUpdate,
				DeviceID: station.DeviceID(),
				Data:     levels,
			})
		}
	}
}

// splitDevices picks the base station (by configured id, or the first one
// found) and the cameras paired to it.
func splitDevices(devices []device.Attrs, stationID string) (device.Attrs, []device.Attrs, error) {
	var station device.Attrs
	found := false
	for _, d := range devices {
		if !d.IsBaseStation() {
			continue
		}
		if stationID != "" && d.DeviceID != stationID {
			continue
		}
		station = d
		found = true
		break
	}
	if !found {
		if stationID != "" {
			return device.Attrs{}, nil, fmt.Errorf("base station %q not found in account", stationID)
		}
		return device.Attrs{}, nil, errors.New("no base station found in account")
	}

	var cameras []device.Attrs
	for _, d := range devices {
		if d.IsCamera() && d.ParentID == station.DeviceID {
			cameras = append(cameras, d)
		}
	}
	return station, cameras, nil
}

func configPath() string {
	if path := os.Getenv("ARLO_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
