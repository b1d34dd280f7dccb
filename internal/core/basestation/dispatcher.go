package basestation

import (
	"context"
	"fmt"

	"github.com/wrauf/arlo/internal/core/eventstream"
)

// DefaultTrackID is the lullaby the player falls back to when no track is
// named.
const DefaultTrackID = "229dca67-7e3c-4a5f-8f43-90e1a9bffc38"

// LoopMode selects how the audio player repeats.
type LoopMode string

const (
	// LoopModeContinuous repeats the entire playlist.
	LoopModeContinuous LoopMode = "continuous"
	// LoopModeSingleTrack repeats the current track.
	LoopModeSingleTrack LoopMode = "singleTrack"
)

const (
	playerResource = "audioPlayback/player"
	configResource = "audioPlayback/config"
)

// PlayTrack starts playback of trackID at the given position in seconds.
// An empty trackID selects the default track.
func (b *BaseStation) PlayTrack(ctx context.Context, trackID string, position int) error {
	if trackID == "" {
		trackID = DefaultTrackID
	}
	return b.pub.Send(ctx, eventstream.Command{
		Action:   "playTrack",
		Resource: playerResource,
		Properties: map[string]any{
			"trackId":  trackID,
			"position": position,
		},
	})
}

// PauseTrack pauses the currently playing track.
func (b *BaseStation) PauseTrack(ctx context.Context) error {
	return b.pub.Send(ctx, eventstream.Command{
		Action:   "pause",
		Resource: playerResource,
	})
}

// SkipTrack advances to the next track in the playlist.
func (b *BaseStation) SkipTrack(ctx context.Context) error {
	return b.pub.Send(ctx, eventstream.Command{
		Action:   "nextTrack",
		Resource: playerResource,
	})
}

// SetMusicLoopMode selects playlist or single-track repetition.
func (b *BaseStation) SetMusicLoopMode(ctx context.Context, mode LoopMode) error {
	return b.pub.Send(ctx, eventstream.Command{
		Action:   "set",
		Resource: configResource,
		Properties: map[string]any{
			"config": map[string]any{"loopbackMode": string(mode)},
		},
	})
}

// SetShuffle toggles shuffled playback.
func (b *BaseStation) SetShuffle(ctx context.Context, active bool) error {
	return b.pub.Send(ctx, eventstream.Command{
		Action:   "set",
		Resource: configResource,
		Properties: map[string]any{
			"config": map[string]any{"shuffleActive": active},
		},
	})
}

// SetSpeakerVolume sets the speaker mute flag and volume (0-100) together.
func (b *BaseStation) SetSpeakerVolume(ctx context.Context, mute bool, volume int) error {
	return b.pub.Send(ctx, eventstream.Command{
		Action:   "set",
		Resource: fmt.Sprintf("cameras/%s", b.DeviceID()),
		Properties: map[string]any{
			"speaker": map[string]any{"mute": mute, "volume": volume},
		},
	})
}

// SetNightLight turns the night light on or off.
func (b *BaseStation) SetNightLight(ctx context.Context, enabled bool) error {
	return b.pub.Send(ctx, eventstream.Command{
		Action:   "set",
		Resource: fmt.Sprintf("cameras/%s", b.DeviceID()),
		Properties: map[string]any{
			"nightLight": map[string]any{"enabled": enabled},
		},
	})
}

// SetNightLightBrightness sets the night light brightness (0-255).
func (b *BaseStation) SetNightLightBrightness(ctx context.Context, brightness int) error {
	return b.pub.Send(ctx, eventstream.Command{
		Action:   "set",
		Resource: fmt.Sprintf("cameras/%s", b.DeviceID()),
		Properties: map[string]any{
			"nightLight": map[string]any{"brightness": brightness},
		},
	})
}

// SetCameraEnabled toggles a camera's privacy shutter. The cloud must
// acknowledge the command; on success the station state is refreshed once.
func (b *BaseStation) SetCameraEnabled(ctx context.Context, cameraID string, enabled bool) error {
	err := b.pub.Send(ctx, eventstream.Command{
		Action:          "set",
		Resource:        "privacy",
		CameraID:        cameraID,
		Enabled:         enabled,
		PublishResponse: true,
	})
	if err != nil {
		return fmt.Errorf("basestation: set camera %s enabled: %w", cameraID, err)
	}
	return b.Refresh(ctx)
}

// SetMode arms or disarms the station. The mode must be one of the
// available modes; the cloud must acknowledge, and the cached state is
// refreshed afterwards.
func (b *BaseStation) SetMode(ctx context.Context, mode string) error {
	modeIDs := b.AvailableModesWithIDs(ctx)
	id, ok := modeIDs[mode]
	if !ok {
		return fmt.Errorf("basestation: unknown mode %q", mode)
	}

	cmd := eventstream.Command{
		Action:          "set",
		Resource:        string(ResourceModes),
		Properties:      map[string]any{"active": id},
		PublishResponse: true,
	}
	if mode == ModeSchedule {
		cmd.Resource = string(ResourceSchedule)
		cmd.Properties = nil
	}

	if err := b.pub.Send(ctx, cmd); err != nil {
		return fmt.Errorf("basestation: set mode %q: %w", mode, err)
	}
	return b.Refresh(ctx)
}
