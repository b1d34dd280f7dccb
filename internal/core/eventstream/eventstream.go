// Package eventstream implements the cloud transport a base station talks
// through: commands are POSTed to the notify endpoint, responses arrive as
// server-sent events on a long-lived subscription feed and are matched back
// to waiting callers by resource name.
package eventstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/r3labs/sse/v2"

	"github.com/wrauf/arlo/internal/core/auth"
	"github.com/wrauf/arlo/internal/core/state"
)

// ErrCommandRejected is returned for response-checked commands the cloud
// refused to accept.
var ErrCommandRejected = errors.New("eventstream: command rejected")

// DefaultWaitTimeout bounds how long SendAndWait blocks for a correlated
// event before yielding an absent payload.
const DefaultWaitTimeout = 10 * time.Second

// Command is one control action addressed to a base station sub-resource.
type Command struct {
	// Action is the verb: get, set, playTrack, pause, nextTrack.
	Action string
	// Resource identifies the target sub-resource, e.g. "cameras/XYZ" or
	// "audioPlayback/config". A few resource names are rewritten into their
	// wire form by the stream (privacy, subscribe, schedule).
	Resource string
	// Properties is the optional nested parameter mapping.
	Properties map[string]any
	// CameraID targets the privacy resource at a specific camera.
	CameraID string
	// Enabled carries the privacy toggle for the privacy resource.
	Enabled bool
	// PublishResponse marks commands whose rejection must surface to the
	// caller.
	PublishResponse bool
}

// Publisher is the transport surface the base station model consumes.
// SendAndWait returns a nil payload for timeouts and transport failures;
// callers translate nil into their own absent values.
type Publisher interface {
	SendAndWait(ctx context.Context, resource string) (map[string]any, error)
	Send(ctx context.Context, cmd Command) error
}

// Stream is the event-stream transport for one base station.
type Stream struct {
	session  *auth.Session
	deviceID string
	xCloudID string
	bus      *state.EventBus
	log      *slog.Logger
	timeout  time.Duration

	cancel  context.CancelFunc
	stopped chan struct{}

	mu         sync.Mutex
	subscribed bool
	pending    map[string][]chan map[string]any
}

var _ Publisher = (*Stream)(nil)

// New creates a stream bound to one base station identity.
func New(session *auth.Session, deviceID, xCloudID string, bus *state.EventBus, log *slog.Logger) *Stream {
	return &Stream{
		session:  session,
		deviceID: deviceID,
		xCloudID: xCloudID,
		bus:      bus,
		log:      log,
		timeout:  DefaultWaitTimeout,
		pending:  make(map[string][]chan map[string]any),
	}
}

// Start opens the SSE feed and registers this base station for events.
// The feed reconnects internally until Stop is called.
func (s *Stream) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.subscribed {
		s.mu.Unlock()
		return fmt.Errorf("eventstream: already started")
	}
	s.subscribed = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.stopped = make(chan struct{})

	client := sse.NewClient(s.session.SubscribeURL())

	go func() {
		defer close(s.stopped)
		err := client.SubscribeRawWithContext(ctx, func(msg *sse.Event) {
			s.handleEvent(msg.Data)
		})
		if err != nil && ctx.Err() == nil {
			s.log.Error("event feed terminated", "device_id", s.deviceID, "error", err)
		}
		s.bus.Publish(state.Event{Type: state.EventDisconnected, DeviceID: s.deviceID})
	}()

	// Register this station on the freshly opened feed.
	if err := s.Send(ctx, Command{Action: "set", Resource: "subscribe"}); err != nil {
		s.log.Warn("subscribe command failed", "device_id", s.deviceID, "error", err)
	}
	return nil
}

// Stop unsubscribes and tears the feed down.
func (s *Stream) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.subscribed {
		s.mu.Unlock()
		return nil
	}
	s.subscribed = false
	s.mu.Unlock()

	if err := s.session.Unsubscribe(ctx); err != nil {
		s.log.Debug("unsubscribe failed", "error", err)
	}
	if s.cancel != nil {
		s.cancel()
		<-s.stopped
	}
	return nil
}

// SendAndWait publishes a get for resource and blocks for the correlated
// event. A timeout, rejected publish, or transport failure yields a nil
// payload and no error; the property layer treats all of those as absent.
// Concurrent waits on the same resource each get their own event: events are
// delivered to waiters in registration order.
func (s *Stream) SendAndWait(ctx context.Context, resource string) (map[string]any, error) {
	ch := make(chan map[string]any, 1)

	s.mu.Lock()
	s.pending[resource] = append(s.pending[resource], ch)
	s.mu.Unlock()

	defer s.removeWaiter(resource, ch)

	if err := s.Send(ctx, Command{Action: "get", Resource: resource}); err != nil {
		s.log.Debug("get publish failed", "resource", resource, "error", err)
		return nil, nil
	}

	select {
	case payload := <-ch:
		return payload, nil
	case <-time.After(s.timeout):
		s.log.Debug("no correlated event before timeout", "resource", resource)
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// removeWaiter drops one waiter's registration, leaving any other waiters on
// the same resource in place.
func (s *Stream) removeWaiter(resource string, ch chan map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	waiters := s.pending[resource]
	for i, w := range waiters {
		if w == ch {
			waiters = append(waiters[:i], waiters[i+1:]...)
			break
		}
	}
	if len(waiters) == 0 {
		delete(s.pending, resource)
	} else {
		s.pending[resource] = waiters
	}
}

// Send publishes one command to the notify endpoint. Rejections surface only
// for response-checked commands.
func (s *Stream) Send(ctx context.Context, cmd Command) error {
	body := s.buildBody(cmd)

	commandsSent.WithLabelValues(cmd.Action).Inc()

	ok, err := s.session.Notify(ctx, s.deviceID, s.xCloudID, body)
	if err != nil {
		commandFailures.Inc()
		return fmt.Errorf("eventstream: %s %s: %w", cmd.Action, cmd.Resource, err)
	}
	if cmd.PublishResponse && !ok {
		commandFailures.Inc()
		return fmt.Errorf("eventstream: %s %s: %w", cmd.Action, cmd.Resource, ErrCommandRejected)
	}
	return nil
}

// buildBody assembles the notify envelope, rewriting the few resource names
// whose wire form differs from their logical name.
func (s *Stream) buildBody(cmd Command) map[string]any {
	resource := cmd.Resource
	props := cmd.Properties

	if cmd.Action == "get" {
		props = nil
	} else {
		// The rewrites below must not touch the caller's map.
		props = make(map[string]any, len(cmd.Properties)+1)
		for k, v := range cmd.Properties {
			props[k] = v
		}
		switch cmd.Resource {
		case "schedule":
			props["active"] = true
		case "subscribe":
			resource = fmt.Sprintf("subscriptions/%s_web", s.session.UserID())
			props["devices"] = []string{s.deviceID}
		case "privacy":
			props["privacyActive"] = !cmd.Enabled
			resource = fmt.Sprintf("cameras/%s", cmd.CameraID)
		}
	}

	return map[string]any{
		"action":          cmd.Action,
		"resource":        resource,
		"properties":      props,
		"publishResponse": cmd.PublishResponse,
		"from":            fmt.Sprintf("%s_web", s.session.UserID()),
		"to":              s.deviceID,
		"transId":         fmt.Sprintf("web!%s", s.xCloudID),
	}
}

/// handleEvent parses one SSE payload and routes it: correlated "is" events
// wake their waiter, everything else goes to the bus.
func (s *Stream) handleEvent(data []byte) {
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		s.log.Debug("discarding unparsable event", "error", err)
		return
	}

	eventsReceived.Inc()

	if status, _ := payload["status"].(string); status == "connected" {
		s.log.Debug("event feed subscribed", "device_id", s.deviceID)
		s.bus.Publish(state.Event{Type: state.EventConnected, DeviceID: s.deviceID})
		return
	}

	action, _ := payload["action"].(string)
	resource, _ := payload["resource"].(string)

	switch {
	case action == "logout":
		s.log.Info("event feed logged out by another session", "device_id", s.deviceID)
		s.bus.Publish(state.Event{Type: state.EventDisconnected, DeviceID: s.deviceID})

	case action == "is" && !isSubscriptionResource(resource):
		s.mu.Lock()
		var ch chan map[string]any
		if waiters := s.pending[resource]; len(waiters) > 0 {
			ch = waiters[0]
			if len(waiters) == 1 {
				delete(s.pending, resource)
			} else {
				s.pending[resource] = waiters[1:]
			}
		}
		s.mu.Unlock()

		if ch != nil {
			select {
			case ch <- payload:
			default:
			}
			return
		}

		s.bus.Publish(state.Event{
			Type:     state.EventPush,
			Resource: resource,
			DeviceID: s.deviceID,
			Data:     payload["properties"],
		})
	}
}

func isSubscriptionResource(resource string) bool {
	return len(resource) >= len("subscriptions/") && resource[:len("subscriptions/")] == "subscriptions/"
}
