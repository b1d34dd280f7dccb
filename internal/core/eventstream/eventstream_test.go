package eventstream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/wrauf/arlo/internal/core/auth"
	"github.com/wrauf/arlo/internal/core/state"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// notifyRecorder is a cloud stand-in that captures every notify body and
// answers with a configurable success flag.
type notifyRecorder struct {
	mu      sync.Mutex
	bodies  []map[string]any
	success bool
}

func newNotifyRecorder() *notifyRecorder {
	return &notifyRecorder{success: true}
}

func (r *notifyRecorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var body map[string]any
	json.NewDecoder(req.Body).Decode(&body)

	r.mu.Lock()
	r.bodies = append(r.bodies, body)
	success := r.success
	r.mu.Unlock()

	json.NewEncoder(w).Encode(map[string]any{"success": success})
}

func (r *notifyRecorder) last(t *testing.T) map[string]any {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.bodies) == 0 {
		t.Fatal("no notify bodies recorded")
	}
	return r.bodies[len(r.bodies)-1]
}

// newTestStream wires a stream to an httptest cloud through a restored
// session token.
func newTestStream(t *testing.T, rec *notifyRecorder) (*Stream, *state.EventBus) {
	t.Helper()

	srv := httptest.NewServer(rec)
	t.Cleanup(srv.Close)

	sessionPath := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(sessionPath, []byte(`{"token":"tok123","user_id":"999-123"}`), 0o600); err != nil {
		t.Fatalf("seed session file: %v", err)
	}

	session := auth.NewSession(srv.URL, sessionPath, discardLogger())
	bus := state.NewEventBus(discardLogger())
	return New(session, "48B14CBBBBBBB", "1005-123-999999", bus, discardLogger()), bus
}

func TestSendEnvelope(t *testing.T) {
	rec := newNotifyRecorder()
	s, _ := newTestStream(t, rec)

	err := s.Send(context.Background(), Command{
		Action:     "set",
		Resource:   "audioPlayback/config",
		Properties: map[string]any{"config": map[string]any{"shuffleActive": true}},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	body := rec.last(t)
	if body["action"] != "set" || body["resource"] != "audioPlayback/config" {
		t.Errorf("envelope = %v %v, want set audioPlayback/config", body["action"], body["resource"])
	}
	if body["from"] != "999-123_web" {
		t.Errorf("from = %v, want 999-123_web", body["from"])
	}
	if body["to"] != "48B14CBBBBBBB" {
		t.Errorf("to = %v, want 48B14CBBBBBBB", body["to"])
	}
	if body["transId"] != "web!1005-123-999999" {
		t.Errorf("transId = %v, want web!1005-123-999999", body["transId"])
	}
	if body["publishResponse"] != false {
		t.Errorf("publishResponse = %v, want false", body["publishResponse"])
	}
}

func TestBuildBodyRewrites(t *testing.T) {
	rec := newNotifyRecorder()
	s, _ := newTestStream(t, rec)

	tests := []struct {
		name         string
		cmd          Command
		wantResource string
		wantProps    map[string]any
	}{
		{
			name:         "get clears properties",
			cmd:          Command{Action: "get", Resource: "modes", Properties: map[string]any{"stray": 1}},
			wantResource: "modes",
			wantProps:    nil,
		},
		{
			name:         "schedule activates",
			cmd:          Command{Action: "set", Resource: "schedule"},
			wantResource: "schedule",
			wantProps:    map[string]any{"active": true},
		},
		{
			name:         "subscribe targets the session",
			cmd:          Command{Action: "set", Resource: "subscribe"},
			wantResource: "subscriptions/999-123_web",
			wantProps:    map[string]any{"devices": []any{"48B14CBBBBBBB"}},
		},
		{
			name:         "privacy enable",
			cmd:          Command{Action: "set", Resource: "privacy", CameraID: "48B14C1299999", Enabled: true},
			wantResource: "cameras/48B14C1299999",
			wantProps:    map[string]any{"privacyActive": false},
		},
		{
			name:         "privacy disable",
			cmd:          Command{Action: "set", Resource: "privacy", CameraID: "48B14C1299999", Enabled: false},
			wantResource: "cameras/48B14C1299999",
			wantProps:    map[string]any{"privacyActive": true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.Send(context.Background(), tt.cmd); err != nil {
				t.Fatalf("Send: %v", err)
			}
			body := rec.last(t)
			if body["resource"] != tt.wantResource {
				t.Errorf("resource = %v, want %v", body["resource"], tt.wantResource)
			}
			props := body["properties"]
			if tt.wantProps == nil {
				if props != nil {
					t.Errorf("properties = %v, want absent", props)
				}
				return
			}
			if !reflect.DeepEqual(props, map[string]any(tt.wantProps)) {
				t.Errorf("properties = %v, want %v", props, tt.wantProps)
			}
		})
	}
}

func TestBuildBodyLeavesCommandPropertiesAlone(t *testing.T) {
	rec := newNotifyRecorder()
	s, _ := newTestStream(t, rec)

	props := map[string]any{"config": "x"}
	s.buildBody(Command{Action: "set", Resource: "schedule", Properties: props})

	if _, ok := props["active"]; ok {
		t.Error(`caller properties gained "active", want untouched`)
	}
	if len(props) != 1 || props["config"] != "x" {
		t.Errorf("caller properties = %v, want unchanged", props)
	}
}

func TestSendRejection(t *testing.T) {
	rec := newNotifyRecorder()
	rec.success = false
	s, _ := newTestStream(t, rec)
	ctx := context.Background()

	err := s.Send(ctx, Command{Action: "set", Resource: "modes", PublishResponse: true})
	if !errors.Is(err, ErrCommandRejected) {
		t.Fatalf("err = %v, want ErrCommandRejected", err)
	}

	// Fire-and-forget commands swallow the refusal.
	if err := s.Send(ctx, Command{Action: "pause", Resource: "audioPlayback/player"}); err != nil {
		t.Fatalf("fire-and-forget Send: %v", err)
	}
}

func TestSendAndWaitDeliversCorrelatedEvent(t *testing.T) {
	rec := newNotifyRecorder()
	s, _ := newTestStream(t, rec)

	done := make(chan map[string]any, 1)
	go func() {
		payload, err := s.SendAndWait(context.Background(), "basestation")
		if err != nil {
			t.Errorf("SendAndWait: %v", err)
		}
		done <- payload
	}()

	// Wait for the get to register, then feed the matching event.
	deadline := time.After(2 * time.Second)
	for {
		s.mu.Lock()
		_, waiting := s.pending["basestation"]
		s.mu.Unlock()
		if waiting {
			break
		}
		select {
		case <-deadline:
			t.Fatal("SendAndWait never registered a waiter")
		case <-time.After(time.Millisecond):
		}
	}

	s.handleEvent([]byte(`{"action":"is","resource":"basestation","properties":{"antiFlicker":{"mode":0}}}`))

	payload := <-done
	if payload == nil {
		t.Fatal("payload is nil, want correlated event")
	}
	if payload["resource"] != "basestation" {
		t.Errorf("resource = %v, want basestation", payload["resource"])
	}
}

func TestSendAndWaitConcurrentSameResource(t *testing.T) {
	rec := newNotifyRecorder()
	s, _ := newTestStream(t, rec)

	waitForWaiters := func(t *testing.T, want int) {
		t.Helper()
		deadline := time.After(2 * time.Second)
		for {
			s.mu.Lock()
			n := len(s.pending["cameras"])
			s.mu.Unlock()
			if n == want {
				return
			}
			select {
			case <-deadline:
				t.Fatalf("pending waiters = %d, want %d", n, want)
			case <-time.After(time.Millisecond):
			}
		}
	}

	first := make(chan map[string]any, 1)
	go func() {
		payload, err := s.SendAndWait(context.Background(), "cameras")
		if err != nil {
			t.Errorf("first SendAndWait: %v", err)
		}
		first <- payload
	}()
	waitForWaiters(t, 1)

	ctx, cancel := context.WithCancel(context.Background())
	second := make(chan struct{})
	go func() {
		s.SendAndWait(ctx, "cameras")
		close(second)
	}()
	waitForWaiters(t, 2)

	// Abandoning the second wait must not strip the first one's
	// registration.
	cancel()
	<-second
	waitForWaiters(t, 1)

	s.handleEvent([]byte(`{"action":"is","resource":"cameras","properties":[{"serialNumber":"48B14C1299999"}]}`))

	if payload := <-first; payload == nil {
		t.Fatal("first waiter got nil, want its correlated event")
	}
}

func TestSendAndWaitTimeout(t *testing.T) {
	rec := newNotifyRecorder()
	s, _ := newTestStream(t, rec)
	s.timeout = 10 * time.Millisecond

	payload, err := s.SendAndWait(context.Background(), "modes")
	if err != nil {
		t.Fatalf("SendAndWait: %v", err)
	}
	if payload != nil {
		t.Errorf("payload = %v, want nil on timeout", payload)
	}
}

func TestSendAndWaitContextCancelled(t *testing.T) {
	rec := newNotifyRecorder()
	s, _ := newTestStream(t, rec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.SendAndWait(ctx, "modes"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestHandleEventRouting(t *testing.T) {
	rec := newNotifyRecorder()
	s, bus := newTestStream(t, rec)

	events, unsub := bus.Subscribe(8)
	defer unsub()

	next := func(t *testing.T) state.Event {
		t.Helper()
		select {
		case evt := <-events:
			return evt
		default:
			t.Fatal("no event published")
			return state.Event{}
		}
	}

	t.Run("connected", func(t *testing.T) {
		s.handleEvent([]byte(`{"status":"connected"}`))
		if evt := next(t); evt.Type != state.EventConnected {
			t.Errorf("type = %v, want connected", evt.Type)
		}
	})

	t.Run("logout", func(t *testing.T) {
		s.handleEvent([]byte(`{"action":"logout"}`))
		if evt := next(t); evt.Type != state.EventDisconnected {
			t.Errorf("type = %v, want disconnected", evt.Type)
		}
	})

	t.Run("uncorrelated push", func(t *testing.T) {
		s.handleEvent([]byte(`{"action":"is","resource":"cameras","properties":[{"serialNumber":"48B14C1299999"}]}`))
		evt := next(t)
		if evt.Type != state.EventPush {
			t.Errorf("type = %v, want push", evt.Type)
		}
		if evt.Resource != "cameras" {
			t.Errorf("resource = %v, want cameras", evt.Resource)
		}
		if evt.Data == nil {
			t.Error("data is nil, want the event properties")
		}
	})

	t.Run("subscription acks are ignored", func(t *testing.T) {
		s.handleEvent([]byte(`{"action":"is","resource":"subscriptions/999-123_web"}`))
		select {
		case evt := <-events:
			t.Errorf("unexpected event %v for subscription ack", evt.Type)
		default:
		}
	})

	t.Run("unparsable payloads are dropped", func(t *testing.T) {
		s.handleEvent([]byte(`{not json`))
		select {
		case evt := <-events:
			t.Errorf("unexpected event %v for garbage payload", evt.Type)
		default:
		}
	})
}
