// Package camera models one camera: identity from the account device
// listing, live properties through the owning base station, and the
// cloud endpoints for snapshots and user streams.
package camera

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/wrauf/arlo/internal/core/auth"
	"github.com/wrauf/arlo/internal/core/device"
	"github.com/wrauf/arlo/internal/core/jsonq"
	"github.com/wrauf/arlo/internal/core/media"
)

// Cloud endpoints the camera talks to directly, outside the base station's
// notify channel.
const (
	streamPath   = "/hmsweb/users/devices/startStream"
	snapshotPath = "/hmsweb/users/devices/fullFrameSnapshot"
	resetPath    = "/hmsweb/users/library/reset/?uniqueId=%s"
)

// Trigger types inside a camera's capability list.
const (
	triggerMotion = "pirMotionActive"
	triggerAudio  = "audioAmplitude"
)

// Cloud is the slice of the session the camera posts through.
type Cloud interface {
	Query(ctx context.Context, method, path string, body any, extraHeaders map[string]string) (auth.Envelope, error)
	RefreshAttributes(ctx context.Context, deviceID string) (device.Attrs, bool, error)
	UserID() string
}

// PropertySource provides the per-camera property groups the owning base
// station resolves, keyed by camera serial number.
type PropertySource interface {
	CameraProperties(ctx context.Context) map[string]map[string]any
	Refresh(ctx context.Context) error
}

// Camera is one camera paired to a base station. Identity accessors read a
// cached attribute snapshot; property accessors go through the station.
type Camera struct {
	cloud   Cloud
	station PropertySource
	library *media.Library
	httpc   *http.Client
	log     *slog.Logger

	// minCacheDays is the lookback window for the recording cache.
	minCacheDays int

	mu     sync.RWMutex
	attrs  device.Attrs
	videos []media.Video
	cached bool
}

// New creates a camera from its discovered attributes. station may be nil for
// cameras whose base station is not managed; property accessors then report
// absent.
func New(attrs device.Attrs, cloud Cloud, station PropertySource, library *media.Library, log *slog.Logger) *Camera {
	return &Camera{
		cloud:        cloud,
		station:      station,
		library:      library,
		httpc:        &http.Client{Timeout: 30 * time.Second},
		log:          log,
		minCacheDays: media.DefaultPreloadDays,
		attrs:        attrs,
	}
}

// SetVideoCacheDays overrides the recording cache lookback window.
func (c *Camera) SetVideoCacheDays(days int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if days > 0 {
		c.minCacheDays = days
	}
}

func (c *Camera) snapshot() device.Attrs {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.attrs
}

func (c *Camera) Name() string         { return c.snapshot().DeviceName }
func (c *Camera) DeviceID() string     { return c.snapshot().DeviceID }
func (c *Camera) SerialNumber() string { return c.snapshot().DeviceID }
func (c *Camera) DeviceType() string   { return c.snapshot().DeviceType }
func (c *Camera) ModelID() string      { return c.snapshot().ModelID }
func (c *Camera) ParentID() string     { return c.snapshot().ParentID }
func (c *Camera) UniqueID() string     { return c.snapshot().UniqueID() }
func (c *Camera) UserID() string       { return c.snapshot().UserID }
func (c *Camera) UserRole() string     { return c.snapshot().UserRole }
func (c *Camera) XCloudID() string     { return c.snapshot().XCloudID }

func (c *Camera) HWVersion() string {
	return c.snapshot().Properties.HwVersion
}

func (c *Camera) Timezone() string {
	return c.snapshot().Properties.OlsonTimeZone
}

// UnseenVideos returns the cloud's unseen recording counter.
func (c *Camera) UnseenVideos() int {
	return c.snapshot().MediaObjectCount
}

// Properties returns this camera's live property group from the base
// station, nil when the station has no entry for it.
func (c *Camera) Properties(ctx context.Context) map[string]any {
	if c.station == nil {
		return nil
	}
	return c.station.CameraProperties(ctx)[c.DeviceID()]
}

// Capabilities returns the camera's capability list.
func (c *Camera) Capabilities(ctx context.Context) []any {
	caps, _ := jsonq.Slice(c.Properties(ctx), "capabilities")
	return caps
}

// Triggers returns the trigger definitions from the first capability that
// carries them.
func (c *Camera) Triggers(ctx context.Context) []any {
	for _, capability := range c.Capabilities(ctx) {
		m, ok := capability.(map[string]any)
		if !ok {
			continue
		}
		if triggers, ok := jsonq.Slice(m, "Triggers"); ok {
			return triggers
		}
	}
	return nil
}

// BatteryLevel returns the battery percentage.
func (c *Camera) BatteryLevel(ctx context.Context) *int {
	return c.intProperty(ctx, "batteryLevel")
}

// SignalStrength returns the wireless signal level.
func (c *Camera) SignalStrength(ctx context.Context) *int {
	return c.intProperty(ctx, "signalStrength")
}

// Brightness returns the image brightness adjustment.
func (c *Camera) Brightness(ctx context.Context) *int {
	return c.intProperty(ctx, "brightness")
}

// PowerSaveMode returns the stream quality / power tradeoff setting.
func (c *Camera) PowerSaveMode(ctx context.Context) *int {
	return c.intProperty(ctx, "powerSaveMode")
}

// MirrorState reports whether the image is mirrored.
func (c *Camera) MirrorState(ctx context.Context) *bool {
	return c.boolProperty(ctx, "mirror")
}

// FlipState reports whether the image is flipped.
func (c *Camera) FlipState(ctx context.Context) *bool {
	return c.boolProperty(ctx, "flip")
}

// IsConnected reports whether the camera currently reaches its base station.
func (c *Camera) IsConnected(ctx context.Context) *bool {
	state, ok := jsonq.Str(c.Properties(ctx), "connectionState")
	if !ok {
		return nil
	}
	connected := state == "available"
	return &connected
}

// MotionDetectionSensitivity returns the default motion trigger sensitivity.
func (c *Camera) MotionDetectionSensitivity(ctx context.Context) *int {
	return c.triggerSensitivity(ctx, triggerMotion)
}

// AudioDetectionSensitivity returns the default audio trigger sensitivity.
func (c *Camera) AudioDetectionSensitivity(ctx context.Context) *int {
	return c.triggerSensitivity(ctx, triggerAudio)
}

func (c *Camera) triggerSensitivity(ctx context.Context, triggerType string) *int {
	for _, trigger := range c.Triggers(ctx) {
		m, ok := trigger.(map[string]any)
		if !ok {
			continue
		}
		if kind, _ := jsonq.Str(m, "type"); kind != triggerType {
			continue
		}
		if v, ok := jsonq.Int(m, "sensitivity", "default"); ok {
			return &v
		}
	}
	return nil
}

func (c *Camera) intProperty(ctx context.Context, key string) *int {
	if v, ok := jsonq.Int(c.Properties(ctx), key); ok {
		return &v
	}
	return nil
}

func (c *Camera) boolProperty(ctx context.Context, key string) *bool {
	if v, ok := jsonq.Bool(c.Properties(ctx), key); ok {
		return &v
	}
	return nil
}

// LastImage fetches the most recent thumbnail the camera uploaded. The URL
// is presigned; no session headers are sent.
func (c *Camera) LastImage(ctx context.Context) ([]byte, error) {
	url := c.snapshot().PresignedLastImageURL
	if url == "" {
		return nil, fmt.Errorf("camera: %s: no last image URL", c.DeviceID())
	}
	return c.fetch(ctx, url)
}

// SnapshotURL returns the presigned full-frame snapshot location. A snapshot
// must be scheduled first; the upload lands a few seconds later.
func (c *Camera) SnapshotURL() string {
	return c.snapshot().PresignedFullFrameSnapshot
}

// ScheduleSnapshot asks the camera to upload a fresh full-frame snapshot and
// reports whether the cloud accepted the request. The image is not immediate.
func (c *Camera) ScheduleSnapshot(ctx context.Context) (bool, error) {
	env, err := c.cloud.Query(ctx, http.MethodPost, snapshotPath,
		c.activityBody("fullFrameSnapshot"), c.cloudHeaders())
	if err != nil {
		return false, fmt.Errorf("camera: schedule snapshot: %w", err)
	}
	return env.Success, nil
}

// LiveStreamURL asks the cloud to start a user stream and returns the
// playback URL.
func (c *Camera) LiveStreamURL(ctx context.Context) (string, error) {
	env, err := c.cloud.Query(ctx, http.MethodPost, streamPath,
		c.activityBody("startUserStream"), c.cloudHeaders())
	if err != nil {
		return "", fmt.Errorf("camera: start stream: %w", err)
	}
	if !env.Success {
		return "", fmt.Errorf("camera: start stream: cloud refused")
	}

	var data struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return "", fmt.Errorf("camera: start stream: decode: %w", err)
	}
	if data.URL == "" {
		return "", fmt.Errorf("camera: start stream: no URL in response")
	}
	return data.URL, nil
}

// ResetUnseenVideos zeroes the cloud's unseen recording counter.
func (c *Camera) ResetUnseenVideos(ctx context.Context) (bool, error) {
	env, err := c.cloud.Query(ctx, http.MethodGet, fmt.Sprintf(resetPath, c.UniqueID()), nil, nil)
	if err != nil {
		return false, fmt.Errorf("camera: reset unseen videos: %w", err)
	}
	return env.Success, nil
}

// Videos loads this camera's recordings for the given lookback window,
// bypassing the cache. days <= 0 selects the configured cache window.
func (c *Camera) Videos(ctx context.Context, days int) ([]media.Video, error) {
	if c.library == nil {
		return nil, fmt.Errorf("camera: %s: no media library", c.DeviceID())
	}
	if days <= 0 {
		c.mu.RLock()
		days = c.minCacheDays
		c.mu.RUnlock()
	}
	return c.library.Load(ctx, media.LoadOptions{
		Days:      days,
		CameraIDs: []string{c.DeviceID()},
	})
}

// MakeVideoCache reloads the recording cache.
func (c *Camera) MakeVideoCache(ctx context.Context) error {
	videos, err := c.Videos(ctx, 0)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.videos = videos
	c.cached = true
	c.mu.Unlock()
	return nil
}

func (c *Camera) ensureVideoCache(ctx context.Context) {
	c.mu.RLock()
	cached := c.cached
	c.mu.RUnlock()
	if cached {
		return
	}
	if err := c.MakeVideoCache(ctx); err != nil {
		c.log.Debug("video cache load failed", "device_id", c.DeviceID(), "error", err)
	}
}

// LastVideo returns the newest cached recording, nil when there is none.
func (c *Camera) LastVideo(ctx context.Context) *media.Video {
	c.ensureVideoCache(ctx)
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.videos) == 0 {
		return nil
	}
	v := c.videos[0]
	return &v
}

// CapturedToday returns the cached recordings made today.
func (c *Camera) CapturedToday(ctx context.Context) []media.Video {
	c.ensureVideoCache(ctx)
	c.mu.RLock()
	defer c.mu.RUnlock()

	var today []media.Video
	for _, v := range c.videos {
		if v.CreatedToday() {
			today = append(today, v)
		}
	}
	return today
}

// Update re-fetches the camera's attributes and refreshes the owning base
// station so the property group follows.
func (c *Camera) Update(ctx context.Context) error {
	attrs, found, err := c.cloud.RefreshAttributes(ctx, c.DeviceID())
	if err != nil {
		return fmt.Errorf("camera: update %s: %w", c.DeviceID(), err)
	}
	if found {
		c.mu.Lock()
		c.attrs = attrs
		c.mu.Unlock()
	}

	if c.station != nil {
		if err := c.station.Refresh(ctx); err != nil {
			return fmt.Errorf("camera: update %s: %w", c.DeviceID(), err)
		}
	}
	return nil
}

// activityBody builds the notify-shaped envelope the stream and snapshot
// endpoints expect.
func (c *Camera) activityBody(activityState string) map[string]any {
	deviceID := c.DeviceID()
	return map[string]any{
		"action": "set",
		"from":   fmt.Sprintf("%s_web", c.cloud.UserID()),
		"properties": map[string]any{
			"activityState": activityState,
			"cameraId":      deviceID,
		},
		"publishResponse": true,
		"resource":        fmt.Sprintf("cameras/%s", deviceID),
		"responseUrl":     "",
		"to":              deviceID,
		"transId":         fmt.Sprintf("web!%s", c.XCloudID()),
	}
}

func (c *Camera) cloudHeaders() map[string]string {
	return map[string]string{"xCloudId": c.XCloudID()}
}

func (c *Camera) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("camera: fetch: %w", err)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("camera: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("camera: fetch: HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("camera: fetch: %w", err)
	}
	return body, nil
}
