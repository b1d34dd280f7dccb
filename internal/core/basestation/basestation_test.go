package basestation

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/wrauf/arlo/internal/core/device"
	"github.com/wrauf/arlo/internal/core/eventstream"
)

const stationAttrsJSON = `{
	"deviceId": "48B14CBBBBBBB",
	"deviceName": "Home",
	"deviceType": "basestation",
	"modelId": "VMB3010",
	"uniqueId": "235-48B14CBBBBBBB",
	"userId": "999-123456",
	"userRole": "ADMIN",
	"xCloudId": "1005-123-999999",
	"properties": {
		"hwVersion": "VMB3010r2",
		"olsonTimeZone": "America/New_York",
		"serialNumber": "48B14CBBBBBBB"
	}
}`

func testAttrs(t *testing.T) device.Attrs {
	t.Helper()
	var attrs device.Attrs
	if err := json.Unmarshal([]byte(stationAttrsJSON), &attrs); err != nil {
		t.Fatalf("decode attrs fixture: %v", err)
	}
	return attrs
}

// fakePublisher serves canned payloads by resource and records every
// command it is handed.
type fakePublisher struct {
	payloads map[string]map[string]any
	sent     []eventstream.Command
	sendErr  error
}

func (f *fakePublisher) SendAndWait(_ context.Context, resource string) (map[string]any, error) {
	return f.payloads[resource], nil
}

func (f *fakePublisher) Send(_ context.Context, cmd eventstream.Command) error {
	f.sent = append(f.sent, cmd)
	return f.sendErr
}

// fakeAttrsSource counts refresh calls.
type fakeAttrsSource struct {
	attrs device.Attrs
	calls int
}

func (f *fakeAttrsSource) RefreshAttributes(_ context.Context, _ string) (device.Attrs, bool, error) {
	f.calls++
	return f.attrs, true, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mustPayload decodes a JSON literal the way the wire layer would, so
// numbers become float64 like real payloads.
func mustPayload(t *testing.T, raw string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("decode payload fixture: %v", err)
	}
	return m
}

func newTestStation(t *testing.T, pub *fakePublisher) *BaseStation {
	t.Helper()
	if pub.payloads == nil {
		pub.payloads = map[string]map[string]any{}
	}
	return New(testAttrs(t), pub, nil, discardLogger())
}

func TestIdentityAccessors(t *testing.T) {
	b := newTestStation(t, &fakePublisher{})

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"DeviceID", b.DeviceID(), "48B14CBBBBBBB"},
		{"UniqueID", b.UniqueID(), "235-48B14CBBBBBBB"},
		{"DeviceType", b.DeviceType(), "basestation"},
		{"ModelID", b.ModelID(), "VMB3010"},
		{"HWVersion", b.HWVersion(), "VMB3010r2"},
		{"Timezone", b.Timezone(), "America/New_York"},
		{"UserID", b.UserID(), "999-123456"},
		{"UserRole", b.UserRole(), "ADMIN"},
		{"XCloudID", b.XCloudID(), "1005-123-999999"},
		{"Name", b.Name(), "Home"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestUniqueIDIsDerived(t *testing.T) {
	attrs := testAttrs(t)
	if attrs.ClassID != "235" {
		t.Fatalf("ClassID = %q, want 235", attrs.ClassID)
	}

	// Mutating the parts must change the derived id.
	attrs.DeviceID = "AAAA"
	if got := attrs.UniqueID(); got != "235-AAAA" {
		t.Errorf("UniqueID = %q, want 235-AAAA", got)
	}
}

func TestAvailableResources(t *testing.T) {
	b := newTestStation(t, &fakePublisher{})

	want := map[Resource]bool{
		ResourceBaseStation: true,
		ResourceCameras:     true,
		ResourceModes:       true,
		ResourceRules:       true,
		ResourceSchedule:    true,
	}
	got := b.AvailableResources()
	if len(got) != len(want) {
		t.Fatalf("AvailableResources returned %d entries, want %d", len(got), len(want))
	}
	for _, r := range got {
		if !want[r] {
			t.Errorf("unexpected resource %q", r)
		}
	}
}

const modesPayloadJSON = `{
	"resource": "modes",
	"properties": {
		"active": "mode1",
		"modes": [
			{"id": "mode0", "type": "disarmed", "name": ""},
			{"id": "mode1", "type": "armed", "name": ""},
			{"id": "mode2", "name": "Custom Night"}
		]
	}
}`

func TestRefreshCachesMode(t *testing.T) {
	pub := &fakePublisher{payloads: map[string]map[string]any{
		"modes": mustPayload(t, modesPayloadJSON),
	}}
	b := newTestStation(t, pub)

	if b.Mode() != "" {
		t.Fatalf("Mode before refresh = %q, want empty", b.Mode())
	}
	if b.IsMotionDetectionEnabled() {
		t.Fatal("motion detection enabled before refresh")
	}

	if err := b.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if got := b.Mode(); got != ModeArmed {
		t.Errorf("Mode = %q, want %q", got, ModeArmed)
	}
	if !b.IsMotionDetectionEnabled() {
		t.Error("motion detection should be enabled while armed")
	}
}

func TestRefreshScheduleModeWins(t *testing.T) {
	pub := &fakePublisher{payloads: map[string]map[string]any{
		"modes":    mustPayload(t, modesPayloadJSON),
		"schedule": mustPayload(t, `{"resource": "schedule", "properties": {"active": true}}`),
	}}
	b := newTestStation(t, pub)

	if err := b.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got := b.Mode(); got != ModeSchedule {
		t.Errorf("Mode = %q, want %q", got, ModeSchedule)
	}
	if b.IsMotionDetectionEnabled() {
		t.Error("schedule mode is not armed")
	}
}

func TestRefreshReplacesAttributes(t *testing.T) {
	newAttrs := testAttrs(t)
	newAttrs.Properties.HwVersion = "VMB3010r3"
	src := &fakeAttrsSource{attrs: newAttrs}

	b := New(testAttrs(t), &fakePublisher{payloads: map[string]map[string]any{}}, src, discardLogger())

	if err := b.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if src.calls != 1 {
		t.Fatalf("RefreshAttributes called %d times, want 1", src.calls)
	}
	if got := b.HWVersion(); got != "VMB3010r3" {
		t.Errorf("HWVersion after refresh = %q, want VMB3010r3", got)
	}
}

func TestUpdateThrottles(t *testing.T) {
	src := &fakeAttrsSource{attrs: testAttrs(t)}
	b := New(testAttrs(t), &fakePublisher{payloads: map[string]map[string]any{}}, src, discardLogger())
	b.SetRefreshInterval(time.Hour)

	if err := b.Update(context.Background()); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := b.Update(context.Background()); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if src.calls != 1 {
		t.Errorf("RefreshAttributes called %d times, want 1 (second update throttled)", src.calls)
	}
}

func TestAvailableModesMergesCustom(t *testing.T) {
	pub := &fakePublisher{payloads: map[string]map[string]any{
		"modes": mustPayload(t, modesPayloadJSON),
	}}
	b := newTestStation(t, pub)

	withIDs := b.AvailableModesWithIDs(context.Background())
	if got := withIDs["armed"]; got != "mode1" {
		t.Errorf("armed id = %q, want mode1", got)
	}
	if got := withIDs["Custom Night"]; got != "mode2" {
		t.Errorf("custom mode id = %q, want mode2", got)
	}
	if _, ok := withIDs["schedule"]; !ok {
		t.Error("fixed schedule mode missing")
	}
}

func TestAvailableModesFixedOnlyWhenQueryFails(t *testing.T) {
	b := newTestStation(t, &fakePublisher{})

	withIDs := b.AvailableModesWithIDs(context.Background())
	if len(withIDs) != 3 {
		t.Fatalf("got %d modes, want the 3 fixed ones: %v", len(withIDs), withIDs)
	}
	if withIDs["disarmed"] != "mode0" {
		t.Errorf("disarmed id = %q, want mode0", withIDs["disarmed"])
	}
}
