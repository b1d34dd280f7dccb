package basestation

import (
	"context"
	"fmt"

	"github.com/wrauf/arlo/internal/core/jsonq"
)

// fetch issues one correlated get for resource and extracts the properties
// block. Timeouts, transport failures, missing keys and non-object
// properties all come back as (nil, false).
func (b *BaseStation) fetch(ctx context.Context, resource string) (map[string]any, bool) {
	payload, err := b.pub.SendAndWait(ctx, resource)
	if err != nil || payload == nil {
		return nil, false
	}
	return jsonq.Map(payload, "properties")
}

// Properties returns the station's own property group, nil when unavailable.
func (b *BaseStation) Properties(ctx context.Context) map[string]any {
	props, _ := b.fetch(ctx, string(ResourceBaseStation))
	return props
}

// CameraProperties returns the per-camera property group keyed by camera
// serial number. The map is empty, not nil, when the query yields nothing.
func (b *BaseStation) CameraProperties(ctx context.Context) map[string]map[string]any {
	result := make(map[string]map[string]any)

	payload, err := b.pub.SendAndWait(ctx, string(ResourceCameras))
	if err != nil || payload == nil {
		return result
	}
	entries, ok := jsonq.Slice(payload, "properties")
	if !ok {
		return result
	}

	for _, entry := range entries {
		props, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		serial, ok := jsonq.Str(props, "serialNumber")
		if !ok {
			continue
		}
		result[serial] = props
	}
	return result
}

// CamerasBatteryLevel returns each camera's battery percentage keyed by
// serial number. Cameras without a reported level are omitted.
func (b *BaseStation) CamerasBatteryLevel(ctx context.Context) map[string]int {
	levels := make(map[string]int)
	for serial, props := range b.CameraProperties(ctx) {
		if v, ok := jsonq.Int(props, "batteryLevel"); ok {
			levels[serial] = v
		}
	}
	return levels
}

// CamerasSignalStrength returns each camera's signal strength keyed by
// serial number.
func (b *BaseStation) CamerasSignalStrength(ctx context.Context) map[string]int {
	strength := make(map[string]int)
	for serial, props := range b.CameraProperties(ctx) {
		if v, ok := jsonq.Int(props, "signalStrength"); ok {
			strength[serial] = v
		}
	}
	return strength
}

// CameraRules returns the rule set configured on the station, nil when
// unavailable.
func (b *BaseStation) CameraRules(ctx context.Context) map[string]any {
	props, _ := b.fetch(ctx, string(ResourceRules))
	return props
}

// CameraSchedule returns the schedule configured on the station, nil when
// unavailable.
func (b *BaseStation) CameraSchedule(ctx context.Context) map[string]any {
	props, _ := b.fetch(ctx, string(ResourceSchedule))
	return props
}

// IsInScheduleMode reports whether the station currently follows its
// schedule rather than a fixed mode.
func (b *BaseStation) IsInScheduleMode(ctx context.Context) bool {
	props, ok := b.fetch(ctx, string(ResourceSchedule))
	if !ok {
		return false
	}
	active, _ := jsonq.Bool(props, "active")
	return active
}

// fetchMode resolves the current arm state: schedule wins, otherwise the
// active mode id is matched against the mode list.
func (b *BaseStation) fetchMode(ctx context.Context) string {
	if b.IsInScheduleMode(ctx) {
		return ModeSchedule
	}

	props, ok := b.fetch(ctx, string(ResourceModes))
	if !ok {
		return ""
	}
	active, ok := jsonq.Str(props, "active")
	if !ok {
		return ""
	}
	modes, ok := jsonq.Slice(props, "modes")
	if !ok {
		return ""
	}

	for _, m := range modes {
		mode, ok := m.(map[string]any)
		if !ok {
			continue
		}
		id, _ := jsonq.Str(mode, "id")
		if id != active {
			continue
		}
		if typ, ok := jsonq.Str(mode, "type"); ok {
			return typ
		}
		if name, ok := jsonq.Str(mode, "name"); ok {
			return name
		}
	}
	return ""
}

// AvailableModes returns the mode names this account can set on the station.
func (b *BaseStation) AvailableModes(ctx context.Context) []string {
	withIDs := b.AvailableModesWithIDs(ctx)
	names := make([]string, 0, len(withIDs))
	for name := range withIDs {
		names = append(names, name)
	}
	return names
}

// AvailableModesWithIDs returns mode names mapped to their cloud ids: the
// fixed modes every account has, plus any custom modes the station reports.
// The merged map is cached after the first successful query.
func (b *BaseStation) AvailableModesWithIDs(ctx context.Context) map[string]string {
	b.mu.RLock()
	cached := b.modeIDs
	b.mu.RUnlock()
	if cached != nil {
		return cached
	}

	all := fixedModes()
	if props, ok := b.fetch(ctx, string(ResourceModes)); ok {
		if modes, ok := jsonq.Slice(props, "modes"); ok {
			for _, m := range modes {
				mode, ok := m.(map[string]any)
				if !ok {
					continue
				}
				name, ok := jsonq.Str(mode, "type")
				if !ok {
					name, ok = jsonq.Str(mode, "name")
				}
				id, idOK := jsonq.Str(mode, "id")
				if ok && idOK {
					all[name] = id
				}
			}
			b.mu.Lock()
			b.modeIDs = all
			b.mu.Unlock()
		}
	}
	return all
}

// ExtendedProperties returns the speaker/night-light property group of the
// station's own camera resource, nil when unavailable.
func (b *BaseStation) ExtendedProperties(ctx context.Context) map[string]any {
	props, _ := b.fetch(ctx, fmt.Sprintf("cameras/%s", b.DeviceID()))
	return props
}

// SpeakerMuted reports whether the speaker is muted, nil when unknown.
func (b *BaseStation) SpeakerMuted(ctx context.Context) *bool {
	if v, ok := jsonq.Bool(b.ExtendedProperties(ctx), "speaker", "mute"); ok {
		return &v
	}
	return nil
}

// SpeakerVolume returns the speaker volume (0-100), nil when unknown.
func (b *BaseStation) SpeakerVolume(ctx context.Context) *int {
	if v, ok := jsonq.Int(b.ExtendedProperties(ctx), "speaker", "volume"); ok {
		return &v
	}
	return nil
}

// Night light state names.
const (
	NightLightOn  = "on"
	NightLightOff = "off"
)

// NightLightState returns "on" or "off", nil when the night light group is
// absent.
func (b *BaseStation) NightLightState(ctx context.Context) *string {
	v, ok := jsonq.Bool(b.ExtendedProperties(ctx), "nightLight", "enabled")
	if !ok {
		return nil
	}
	s := NightLightOff
	if v {
		s = NightLightOn
	}
	return &s
}

// NightLightBrightness returns the night light brightness (0-255), nil when
// unknown.
func (b *BaseStation) NightLightBrightness(ctx context.Context) *int {
	if v, ok := jsonq.Int(b.ExtendedProperties(ctx), "nightLight", "brightness"); ok {
		return &v
	}
	return nil
}

// AudioPlaybackStatus returns the raw playback status payload, including the
// available track list, nil when unavailable.
func (b *BaseStation) AudioPlaybackStatus(ctx context.Context) map[string]any {
	payload, err := b.pub.SendAndWait(ctx, "audioPlayback")
	if err != nil {
		return nil
	}
	return payload
}

// AmbientSensorHistory fetches and decodes the ambient sensor history,
// oldest bucket first. It returns nil when the query or decode fails.
func (b *BaseStation) AmbientSensorHistory(ctx context.Context) []SensorReading {
	resource := fmt.Sprintf("cameras/%s/ambientSensors/history", b.DeviceID())
	props, ok := b.fetch(ctx, resource)
	if !ok {
		return nil
	}

	readings, err := decodeSensorHistory(props)
	if err != nil {
		b.log.Debug("ambient history decode failed", "device_id", b.DeviceID(), "error", err)
		return nil
	}
	return readings
}

// LatestAmbientSensorStatistic returns the most recent recorded value for
// the named channel, scanning past empty buckets, or nil when the channel
// has no data.
func (b *BaseStation) LatestAmbientSensorStatistic(ctx context.Context, channel string) *float64 {
	readings := b.AmbientSensorHistory(ctx)
	for i := len(readings) - 1; i >= 0; i-- {
		if v := readings[i].Statistic(channel); v != nil {
			return v
		}
	}
	return nil
}

// AmbientTemperature returns the latest temperature in degrees celsius.
func (b *BaseStation) AmbientTemperature(ctx context.Context) *float64 {
	return b.LatestAmbientSensorStatistic(ctx, ChannelTemperature)
}

// AmbientHumidity returns the latest relative humidity in percent.
func (b *BaseStation) AmbientHumidity(ctx context.Context) *float64 {
	return b.LatestAmbientSensorStatistic(ctx, ChannelHumidity)
}

// AmbientAirQuality returns the latest air quality reading in VOC ppm.
func (b *BaseStation) AmbientAirQuality(ctx context.Context) *float64 {
	return b.LatestAmbientSensorStatistic(ctx, ChannelAirQuality)
}
