// Package mqtt provides MQTT publishing for Home Assistant integration.
// It defines the Publisher interface and includes both a StubPublisher (no-op)
// and a full HAPublisher that connects to an MQTT broker, publishes HA
// auto-discovery configs, relays commands to the base station, and forwards
// state updates from the EventBus.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/wrauf/arlo/internal/core/state"
)

// ---------------------------------------------------------------------------
// Publisher interface
// ---------------------------------------------------------------------------

// Publisher sends events and state to an MQTT broker.
type Publisher interface {
	// Start begins publishing events from the event bus.
	Start(ctx context.Context) error
	// Stop shuts down the publisher.
	Stop(ctx context.Context) error
}

// ---------------------------------------------------------------------------
// StubPublisher (no-op, used when MQTT is disabled)
// ---------------------------------------------------------------------------

// StubPublisher is a no-op publisher for when MQTT is not configured.
type StubPublisher struct {
	log *slog.Logger
}

// NewStubPublisher creates a no-op MQTT publisher.
func NewStubPublisher(log *slog.Logger) *StubPublisher {
	return &StubPublisher{log: log}
}

// Start is a no-op.
func (s *StubPublisher) Start(_ context.Context) error {
	s.log.Info("MQTT publisher disabled (stub)")
	return nil
}

// Stop is a no-op.
func (s *StubPublisher) Stop(_ context.Context) error {
	return nil
}

// Ensure StubPublisher implements Publisher.
var _ Publisher = (*StubPublisher)(nil)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// MQTTConfig holds MQTT publisher configuration.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	DeviceID    string `yaml:"device_id"`
}

// CameraInfo identifies one paired camera for discovery purposes.
type CameraInfo struct {
	DeviceID string
	Name     string
}

// ---------------------------------------------------------------------------
// StationCommander – abstraction over base station control methods
// ---------------------------------------------------------------------------

// StationCommander sends commands to the base station without importing the
// basestation package directly.
type StationCommander interface {
	SetMode(ctx context.Context, mode string) error
	SetNightLight(ctx context.Context, enabled bool) error
	SetNightLightBrightness(ctx context.Context, brightness int) error
	SetSpeakerVolume(ctx context.Context, mute bool, volume int) error
	SetCameraEnabled(ctx context.Context, cameraID string, enabled bool) error
}

// StationReader reads current station state for the initial snapshot.
type StationReader interface {
	Name() string
	ModelID() string
	Mode() string
	AmbientTemperature(ctx context.Context) *float64
	AmbientHumidity(ctx context.Context) *float64
	AmbientAirQuality(ctx context.Context) *float64
	CamerasBatteryLevel(ctx context.Context) map[string]int
	CamerasSignalStrength(ctx context.Context) map[string]int
	NightLightState(ctx context.Context) *string
	NightLightBrightness(ctx context.Context) *int
	SpeakerVolume(ctx context.Context) *int
	AvailableModes(ctx context.Context) []string
}

// ---------------------------------------------------------------------------
// HAPublisher – full Home Assistant MQTT implementation
// ---------------------------------------------------------------------------

// Ensure HAPublisher implements Publisher at compile time.
var _ Publisher = (*HAPublisher)(nil)

// HAPublisher publishes Home Assistant auto-discovery configs, subscribes to
// command topics and relays commands to the base station, and forwards state
// updates from the EventBus.
type HAPublisher struct {
	cfg      MQTTConfig
	station  StationCommander
	reader   StationReader
	cameras  []CameraInfo
	bus      *state.EventBus
	log      *slog.Logger

	client pahomqtt.Client

	unsub func() // EventBus unsubscribe
	stopC chan struct{}
	wg    sync.WaitGroup
}

// NewHAPublisher creates a new Home Assistant MQTT publisher.
func NewHAPublisher(cfg MQTTConfig, station StationCommander, reader StationReader, cameras []CameraInfo, bus *state.EventBus, log *slog.Logger) *HAPublisher {
	return &HAPublisher{
		cfg:     cfg,
		station: station,
		reader:  reader,
		cameras: cameras,
		bus:     bus,
		log:     log,
		stopC:   make(chan struct{}),
	}
}

// ---------------------------------------------------------------------------
// Start / Stop
// ---------------------------------------------------------------------------

// Start connects to the MQTT broker, publishes discovery configs, subscribes
// to command topics, publishes initial state, and starts listening on the
// EventBus for real-time updates.
func (p *HAPublisher) Start(_ context.Context) error {
	availTopic := p.topic("status")

	opts := pahomqtt.NewClientOptions().
		AddBroker(p.cfg.Broker).
		SetClientID(fmt.Sprintf("arlo-%s", p.cfg.DeviceID)).
		SetUsername(p.cfg.Username).
		SetPassword(p.cfg.Password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(availTopic, "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			p.log.Info("MQTT connected, publishing discovery and state")
			p.onConnect()
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			p.log.Warn("MQTT connection lost", "error", err)
		})

	p.client = pahomqtt.NewClient(opts)

	token := p.client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	// Subscribe to EventBus.
	evtCh, unsub := p.bus.Subscribe(128)
	p.unsub = unsub

	p.wg.Add(1)
	go p.eventLoop(evtCh)

	p.log.Info("MQTT publisher started", "broker", p.cfg.Broker)
	return nil
}

// Stop gracefully disconnects from the MQTT broker and stops the event loop.
func (p *HAPublisher) Stop(_ context.Context) error {
	p.log.Info("MQTT publisher stopping")

	// Signal event loop to exit.
	close(p.stopC)

	// Unsubscribe from EventBus (will close channel and drain).
	if p.unsub != nil {
		p.unsub()
	}

	p.wg.Wait()

	if p.client != nil && p.client.IsConnected() {
		// Publish offline before disconnecting.
		p.publish(p.topic("status"), "offline", true)
		p.client.Disconnect(1000)
	}
	p.log.Info("MQTT publisher stopped")
	return nil
}

// ---------------------------------------------------------------------------
// onConnect – called on every (re)connect
// ---------------------------------------------------------------------------

func (p *HAPublisher) onConnect() {
	// 1. Publish online availability (retained).
	p.publish(p.topic("status"), "online", true)

	// 2. Publish all discovery configs.
	p.publishDiscovery()

	// 3. Subscribe to command topics.
	p.subscribeCommands()

	// 4. Subscribe to HA birth topic for re-discovery.
	p.client.Subscribe("homeassistant/status", 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		if string(msg.Payload()) == "online" {
			p.log.Info("Home Assistant came online, re-publishing discovery")
			p.publishDiscovery()
			p.publishFullState()
		}
	})

	// 5. Publish initial state snapshot.
	p.publishFullState()
}

// ---------------------------------------------------------------------------
// Discovery configs
// ---------------------------------------------------------------------------

// deviceInfo returns the shared HA device block.
func (p *HAPublisher) deviceInfo() map[string]any {
	return map[string]any{
		"identifiers":  []string{p.cfg.DeviceID},
		"name":         fmt.Sprintf("Arlo %s", p.reader.Name()),
		"manufacturer": "Arlo",
		"model":        p.reader.ModelID(),
	}
}

// discoveryTopic builds the HA auto-discovery topic.
func discoveryTopic(component, deviceID, objectID string) string {
	return fmt.Sprintf("homeassistant/%s/%s_%s/config", component, deviceID, objectID)
}

func (p *HAPublisher) publishDiscovery() {
	dev := p.deviceInfo()
	avail := map[string]any{
		"topic": p.topic("status"),
	}
	id := p.cfg.DeviceID
	stationName := p.reader.Name()

	// --- Mode select ---
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	modes := p.reader.AvailableModes(ctx)
	cancel()
	p.publishDiscoveryConfig("select", "mode", map[string]any{
		"name":          fmt.Sprintf("Arlo %s Mode", stationName),
		"unique_id":     fmt.Sprintf("%s_mode", id),
		"state_topic":   p.topic("mode/state"),
		"command_topic": p.topic("mode/set"),
		"options":       modes,
		"device":        dev,
		"availability":  avail,
	})

	// --- Ambient sensors ---
	p.publishDiscoveryConfig("sensor", "temperature", map[string]any{
		"name":                fmt.Sprintf("Arlo %s Temperature", stationName),
		"unique_id":           fmt.Sprintf("%s_temperature", id),
		"state_topic":         p.topic("sensors/state"),
		"value_template":      "{{ value_json.temperature }}",
		"unit_of_measurement": "°C",
		"device_class":        "temperature",
		"state_class":         "measurement",
		"device":              dev,
		"availability":        avail,
	})

	p.publishDiscoveryConfig("sensor", "humidity", map[string]any{
		"name":                fmt.Sprintf("Arlo %s Humidity", stationName),
		"unique_id":           fmt.Sprintf("%s_humidity", id),
		"state_topic":         p.topic("sensors/state"),
		"value_template":      "{{ value_json.humidity }}",
		"unit_of_measurement": "%",
		"device_class":        "humidity",
		"state_class":         "measurement",
		"device":              dev,
		"availability":        avail,
	})

	p.publishDiscoveryConfig("sensor", "air_quality", map[string]any{
		"name":           fmt.Sprintf("Arlo %s Air Quality", stationName),
		"unique_id":      fmt.Sprintf("%s_air_quality", id),
		"state_topic":    p.topic("sensors/state"),
		"value_template": "{{ value_json.air_quality }}",
		"state_class":    "measurement",
		"device":         dev,
		"availability":   avail,
	})

	// --- Connectivity ---
	p.publishDiscoveryConfig("binary_sensor", "connection", map[string]any{
		"name":         fmt.Sprintf("Arlo %s Connection", stationName),
		"unique_id":    fmt.Sprintf("%s_connection", id),
		"state_topic":  p.topic("connection/state"),
		"device_class": "connectivity",
		"payload_on":   "ON",
		"payload_off":  "OFF",
		"device":       dev,
		"availability": avail,
	})

	// --- Night light switch + brightness ---
	p.publishDiscoveryConfig("switch", "night_light", map[string]any{
		"name":          fmt.Sprintf("Arlo %s Night Light", stationName),
		"unique_id":     fmt.Sprintf("%s_night_light", id),
		"state_topic":   p.topic("nightlight/state"),
		"command_topic": p.topic("nightlight/set"),
		"payload_on":    "ON",
		"payload_off":   "OFF",
		"device":        dev,
		"availability":  avail,
	})

	p.publishDiscoveryConfig("number", "night_light_brightness", map[string]any{
		"name":          fmt.Sprintf("Arlo %s Night Light Brightness", stationName),
		"unique_id":     fmt.Sprintf("%s_night_light_brightness", id),
		"state_topic":   p.topic("nightlight_brightness/state"),
		"command_topic": p.topic("nightlight_brightness/set"),
		"min":           0,
		"max":           255,
		"step":          1,
		"mode":          "slider",
		"device":        dev,
		"availability":  avail,
	})

	// --- Speaker volume ---
	p.publishDiscoveryConfig("number", "volume", map[string]any{
		"name":                fmt.Sprintf("Arlo %s Volume", stationName),
		"unique_id":           fmt.Sprintf("%s_volume", id),
		"state_topic":         p.topic("volume/state"),
		"command_topic":       p.topic("volume/set"),
		"min":                 0,
		"max":                 100,
		"step":                1,
		"mode":                "slider",
		"unit_of_measurement": "%",
		"device":              dev,
		"availability":        avail,
	})

	// --- Per-camera entities ---
	for _, cam := range p.cameras {
		p.publishDiscoveryConfig("sensor", fmt.Sprintf("%s_battery", cam.DeviceID), map[string]any{
			"name":                fmt.Sprintf("%s Battery", cam.Name),
			"unique_id":           fmt.Sprintf("%s_%s_battery", id, cam.DeviceID),
			"state_topic":         p.cameraTopic(cam.DeviceID, "battery/state"),
			"unit_of_measurement": "%",
			"device_class":        "battery",
			"state_class":         "measurement",
			"device":              dev,
			"availability":        avail,
		})

		p.publishDiscoveryConfig("sensor", fmt.Sprintf("%s_signal", cam.DeviceID), map[string]any{
			"name":         fmt.Sprintf("%s Signal", cam.Name),
			"unique_id":    fmt.Sprintf("%s_%s_signal", id, cam.DeviceID),
			"state_topic":  p.cameraTopic(cam.DeviceID, "signal/state"),
			"state_class":  "measurement",
			"device":       dev,
			"availability": avail,
		})

		p.publishDiscoveryConfig("switch", fmt.Sprintf("%s_enabled", cam.DeviceID), map[string]any{
			"name":          fmt.Sprintf("%s Enabled", cam.Name),
			"unique_id":     fmt.Sprintf("%s_%s_enabled", id, cam.DeviceID),
			"state_topic":   p.cameraTopic(cam.DeviceID, "enabled/state"),
			"command_topic": p.cameraTopic(cam.DeviceID, "enabled/set"),
			"payload_on":    "ON",
			"payload_off":   "OFF",
			"device":        dev,
			"availability":  avail,
		})
	}
}

func (p *HAPublisher) publishDiscoveryConfig(component, objectID string, payload map[string]any) {
	topic := discoveryTopic(component, p.cfg.DeviceID, objectID)
	data, err := json.Marshal(payload)
	if err != nil {
		p.log.Error("failed to marshal discovery config", "component", component, "object_id", objectID, "error", err)
		return
	}
	p.publish(topic, string(data), true)
}

// ---------------------------------------------------------------------------
// Command subscriptions
// ---------------------------------------------------------------------------

func (p *HAPublisher) subscribeCommands() {
	cmds := map[string]pahomqtt.MessageHandler{
		p.topic("mode/set"):                  p.handleModeCmd,
		p.topic("nightlight/set"):            p.handleNightLightCmd,
		p.topic("nightlight_brightness/set"): p.handleBrightnessCmd,
		p.topic("volume/set"):                p.handleVolumeCmd,
	}
	for _, cam := range p.cameras {
		cmds[p.cameraTopic(cam.DeviceID, "enabled/set")] = p.cameraEnableHandler(cam.DeviceID)
	}

	for t, h := range cmds {
		token := p.client.Subscribe(t, 1, h)
		token.Wait()
		if err := token.Error(); err != nil {
			p.log.Error("failed to subscribe to command topic", "topic", t, "error", err)
		}
	}
}

func (p *HAPublisher) handleModeCmd(_ pahomqtt.Client, msg pahomqtt.Message) {
	mode := strings.TrimSpace(string(msg.Payload()))
	p.log.Info("MQTT command: mode", "mode", mode)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := p.station.SetMode(ctx, mode); err != nil {
		p.log.Error("failed to set mode", "mode", mode, "error", err)
		return
	}
	p.publish(p.topic("mode/state"), mode, true)
}

func (p *HAPublisher) handleNightLightCmd(_ pahomqtt.Client, msg pahomqtt.Message) {
	on := strings.EqualFold(strings.TrimSpace(string(msg.Payload())), "ON")
	p.log.Info("MQTT command: night_light", "on", on)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.station.SetNightLight(ctx, on); err != nil {
		p.log.Error("failed to set night light", "error", err)
		return
	}
	p.publish(p.topic("nightlight/state"), boolToOnOff(on), true)
}

func (p *HAPublisher) handleBrightnessCmd(_ pahomqtt.Client, msg pahomqtt.Message) {
	raw := strings.TrimSpace(string(msg.Payload()))
	brightness, err := strconv.Atoi(raw)
	if err != nil {
		p.log.Error("invalid brightness value", "payload", raw, "error", err)
		return
	}
	p.log.Info("MQTT command: night_light_brightness", "brightness", brightness)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.station.SetNightLightBrightness(ctx, brightness); err != nil {
		p.log.Error("failed to set night light brightness", "error", err)
		return
	}
	p.publish(p.topic("nightlight_brightness/state"), raw, true)
}

func (p *HAPublisher) handleVolumeCmd(_ pahomqtt.Client, msg pahomqtt.Message) {
	raw := strings.TrimSpace(string(msg.Payload()))
	level, err := strconv.Atoi(raw)
	if err != nil {
		p.log.Error("invalid volume value", "payload", raw, "error", err)
		return
	}
	p.log.Info("MQTT command: volume", "level", level)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.station.SetSpeakerVolume(ctx, false, level); err != nil {
		p.log.Error("failed to set volume", "error", err)
		return
	}
	p.publish(p.topic("volume/state"), raw, true)
}

func (p *HAPublisher) cameraEnableHandler(cameraID string) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		on := strings.EqualFold(strings.TrimSpace(string(msg.Payload())), "ON")
		p.log.Info("MQTT command: camera_enabled", "camera_id", cameraID, "enabled", on)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := p.station.SetCameraEnabled(ctx, cameraID, on); err != nil {
			p.log.Error("failed to set camera enabled", "camera_id", cameraID, "error", err)
			return
		}
		p.publish(p.cameraTopic(cameraID, "enabled/state"), boolToOnOff(on), true)
	}
}

// ---------------------------------------------------------------------------
// State publishing
// ---------------------------------------------------------------------------

// publishFullState queries the station and publishes a complete snapshot.
func (p *HAPublisher) publishFullState() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if mode := p.reader.Mode(); mode != "" {
		p.publish(p.topic("mode/state"), mode, true)
	}

	p.publishAmbientState(
		p.reader.AmbientTemperature(ctx),
		p.reader.AmbientHumidity(ctx),
		p.reader.AmbientAirQuality(ctx),
	)

	if nl := p.reader.NightLightState(ctx); nl != nil {
		p.publish(p.topic("nightlight/state"), strings.ToUpper(*nl), true)
	}
	if brightness := p.reader.NightLightBrightness(ctx); brightness != nil {
		p.publish(p.topic("nightlight_brightness/state"), strconv.Itoa(*brightness), true)
	}
	if volume := p.reader.SpeakerVolume(ctx); volume != nil {
		p.publish(p.topic("volume/state"), strconv.Itoa(*volume), true)
	}

	p.publishCameraLevels(p.reader.CamerasBatteryLevel(ctx), "battery/state")
	p.publishCameraLevels(p.reader.CamerasSignalStrength(ctx), "signal/state")
}

func (p *HAPublisher) publishAmbientState(temperature, humidity, airQuality *float64) {
	payload := map[string]any{}
	if temperature != nil {
		payload["temperature"] = *temperature
	}
	if humidity != nil {
		payload["humidity"] = *humidity
	}
	if airQuality != nil {
		payload["air_quality"] = *airQuality
	}
	if len(payload) == 0 {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		p.log.Error("failed to marshal sensor state", "error", err)
		return
	}
	p.publish(p.topic("sensors/state"), string(data), true)
}

func (p *HAPublisher) publishCameraLevels(levels map[string]int, suffix string) {
	for cameraID, v := range levels {
		p.publish(p.cameraTopic(cameraID, suffix), strconv.Itoa(v), true)
	}
}

// ---------------------------------------------------------------------------
// EventBus loop
// ---------------------------------------------------------------------------

func (p *HAPublisher) eventLoop(ch <-chan state.Event) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopC:
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			p.handleEvent(evt)
		}
	}
}

func (p *HAPublisher) handleEvent(evt state.Event) {
	switch evt.Type {
	case state.EventModeUpdate:
		mode, ok := evt.Data.(string)
		if !ok {
			p.log.Warn("unexpected data type for mode_update")
			return
		}
		p.publish(p.topic("mode/state"), mode, true)

	case state.EventAmbientUpdate:
		reading, ok := evt.Data.(state.AmbientReading)
		if !ok {
			p.log.Warn("unexpected data type for ambient_update")
			return
		}
		p.publishAmbientState(reading.Temperature, reading.Humidity, reading.AirQuality)

	case state.EventCameraUpdate:
		update, ok := evt.Data.(state.CameraLevels)
		if !ok {
			p.log.Warn("unexpected data type for camera_update")
			return
		}
		p.publishCameraLevels(update.Battery, "battery/state")
		p.publishCameraLevels(update.Signal, "signal/state")

	case state.EventConnected:
		p.publish(p.topic("connection/state"), "ON", true)

	case state.EventDisconnected:
		p.publish(p.topic("connection/state"), "OFF", true)
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// topic builds a full topic path: {prefix}/{device_id}/{suffix}.
func (p *HAPublisher) topic(suffix string) string {
	return fmt.Sprintf("%s/%s/%s", p.cfg.TopicPrefix, p.cfg.DeviceID, suffix)
}

// cameraTopic builds a per-camera topic path.
func (p *HAPublisher) cameraTopic(cameraID, suffix string) string {
	return fmt.Sprintf("%s/%s/cameras/%s/%s", p.cfg.TopicPrefix, p.cfg.DeviceID, cameraID, suffix)
}

// publish is a convenience wrapper that publishes a message and logs errors.
func (p *HAPublisher) publish(topic, payload string, retained bool) {
	if p.client == nil || !p.client.IsConnected() {
		return
	}
	token := p.client.Publish(topic, 1, retained, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		p.log.Error("mqtt publish failed", "topic", topic, "error", err)
	}
}

func boolToOnOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}
