// Package arlo provides a public facade re-exporting core types
// for external consumers of this module.
package arlo

import (
	"github.com/wrauf/arlo/internal/core/auth"
	"github.com/wrauf/arlo/internal/core/basestation"
	"github.com/wrauf/arlo/internal/core/camera"
	"github.com/wrauf/arlo/internal/core/device"
	"github.com/wrauf/arlo/internal/core/eventstream"
	"github.com/wrauf/arlo/internal/core/media"
	"github.com/wrauf/arlo/internal/core/state"
)

// Re-export core types for external use.
type (
	// Session authenticates against the cloud and issues API requests.
	Session = auth.Session
	// DeviceAttrs holds one entry from the account device listing.
	DeviceAttrs = device.Attrs
	// BaseStation models one hub device.
	BaseStation = basestation.BaseStation
	// SensorReading is one decoded ambient sensor history bucket.
	SensorReading = basestation.SensorReading
	// LoopMode selects how the audio player repeats.
	LoopMode = basestation.LoopMode
	// Camera models one camera paired to a base station.
	Camera = camera.Camera
	// Library queries the cloud recording library.
	Library = media.Library
	// Video is one cloud recording.
	Video = media.Video
	// LoadOptions controls a library query.
	LoadOptions = media.LoadOptions
	// Stream is the server-sent event feed and command channel.
	Stream = eventstream.Stream
	// Command is one control message sent over the event stream.
	Command = eventstream.Command
	// EventBus fans out state events to subscribers.
	EventBus = state.EventBus
	// Event represents a state change event.
	Event = state.Event
	// EventType identifies event categories.
	EventType = state.EventType
)

// Constructors.
var (
	// NewSession creates a cloud session persisting to the given path.
	NewSession = auth.NewSession
	// NewBaseStation wraps discovery attributes and a command transport.
	NewBaseStation = basestation.New
	// NewCamera wraps a camera's discovery attributes.
	NewCamera = camera.New
	// NewLibrary creates a recording library client.
	NewLibrary = media.NewLibrary
	// NewStream creates the event stream for a base station.
	NewStream = eventstream.New
	// NewEventBus creates an event bus.
	NewEventBus = state.NewEventBus
)

// Mode constants.
const (
	ModeArmed    = basestation.ModeArmed
	ModeDisarmed = basestation.ModeDisarmed
	ModeSchedule = basestation.ModeSchedule
)

// Loop mode constants.
const (
	LoopModeContinuous  = basestation.LoopModeContinuous
	LoopModeSingleTrack = basestation.LoopModeSingleTrack
)

// Event type constants.
const (
	EventModeUpdate    = state.EventModeUpdate
	EventCameraUpdate  = state.EventCameraUpdate
	EventAmbientUpdate = state.EventAmbientUpdate
	EventPush          = state.EventPush
	EventConnected     = state.EventConnected
	EventDisconnected  = state.EventDisconnected
)
