// Package auth implements the cloud session: login, token persistence,
// device discovery, and the authenticated query helper every other layer
// posts through.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/wrauf/arlo/internal/core/device"
)

// DefaultAPIBase is the production cloud endpoint.
const DefaultAPIBase = "https://arlo.netgear.com"

// Cloud API paths. The notify path is completed with a base station id.
const (
	loginPath       = "/hmsweb/login/v2"
	logoutPath      = "/hmsweb/logout"
	devicesPath     = "/hmsweb/users/devices"
	notifyPath      = "/hmsweb/users/devices/notify/%s"
	subscribePath   = "/hmsweb/client/subscribe"
	unsubscribePath = "/hmsweb/client/unsubscribe"
	libraryPath     = "/hmsweb/users/library"
)

// ErrNotAuthenticated is returned by queries issued before a successful login.
var ErrNotAuthenticated = errors.New("auth: not authenticated")

// Envelope is the response wrapper every cloud endpoint uses.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

type sessionFile struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

// Session is an authenticated connection to the vendor cloud. It is safe for
// concurrent use; the token is replaced atomically on login.
type Session struct {
	apiBase     string
	sessionPath string
	httpc       *http.Client
	log         *slog.Logger

	mu     sync.RWMutex
	token  string
	userID string
}

// NewSession creates an unauthenticated session against apiBase. When
// sessionPath is non-empty a previously persisted token is reloaded so
// restarts do not force a fresh login.
func NewSession(apiBase, sessionPath string, log *slog.Logger) *Session {
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	s := &Session{
		apiBase:     apiBase,
		sessionPath: sessionPath,
		httpc:       &http.Client{Timeout: 30 * time.Second},
		log:         log,
	}
	s.loadSession()
	return s
}

// Login authenticates against the cloud and stores the session token.
func (s *Session) Login(ctx context.Context, username, password string) error {
	body := map[string]string{"email": username, "password": password}

	env, err := s.do(ctx, http.MethodPost, loginPath, body, nil, false)
	if err != nil {
		return fmt.Errorf("auth: login: %w", err)
	}
	if !env.Success {
		return fmt.Errorf("auth: login rejected by cloud")
	}

	var data struct {
		Token  string `json:"token"`
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return fmt.Errorf("auth: login: decode: %w", err)
	}
	if data.Token == "" {
		return fmt.Errorf("auth: login: empty token")
	}

	s.mu.Lock()
	s.token = data.Token
	s.userID = data.UserID
	s.mu.Unlock()

	s.saveSession()
	s.log.Info("logged in", "user_id", data.UserID)
	return nil
}

// Logout invalidates the session server-side and clears the cached token.
func (s *Session) Logout(ctx context.Context) error {
	_, err := s.Query(ctx, http.MethodPut, logoutPath, nil, nil)

	s.mu.Lock()
	s.token = ""
	s.userID = ""
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("auth: logout: %w", err)
	}
	return nil
}

// Token returns the current session token, empty when not logged in.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// UserID returns the cloud account id captured at login.
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// SubscribeURL returns the SSE feed URL for this session.
func (s *Session) SubscribeURL() string {
	return s.apiBase + subscribePath + "?token=" + s.Token()
}

// Unsubscribe tears down the server-side event subscription.
func (s *Session) Unsubscribe(ctx context.Context) error {
	if _, err := s.Query(ctx, http.MethodGet, unsubscribePath, nil, nil); err != nil {
		return fmt.Errorf("auth: unsubscribe: %w", err)
	}
	return nil
}

// Query issues an authenticated request and returns the decoded envelope.
// extraHeaders are applied on top of the session headers.
func (s *Session) Query(ctx context.Context, method, path string, body any, extraHeaders map[string]string) (Envelope, error) {
	if s.Token() == "" {
		return Envelope{}, ErrNotAuthenticated
	}
	return s.do(ctx, method, path, body, extraHeaders, true)
}

// Notify posts a command envelope to a base station's notify endpoint and
// reports whether the cloud accepted it.
func (s *Session) Notify(ctx context.Context, deviceID, xCloudID string, body map[string]any) (bool, error) {
	headers := map[string]string{"xcloudId": xCloudID}
	env, err := s.Query(ctx, http.MethodPost, fmt.Sprintf(notifyPath, deviceID), body, headers)
	if err != nil {
		return false, err
	}
	return env.Success, nil
}

// Devices fetches the full device listing for the account.
func (s *Session) Devices(ctx context.Context) ([]device.Attrs, error) {
	env, err := s.Query(ctx, http.MethodGet, devicesPath, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("auth: devices: %w", err)
	}
	if !env.Success {
		return nil, fmt.Errorf("auth: devices: cloud reported failure")
	}

	var devices []device.Attrs
	if err := json.Unmarshal(env.Data, &devices); err != nil {
		return nil, fmt.Errorf("auth: devices: decode: %w", err)
	}
	return devices, nil
}

// RefreshAttributes re-fetches the device listing and returns the entry for
// deviceID, reporting false when the device is no longer listed.
func (s *Session) RefreshAttributes(ctx context.Context, deviceID string) (device.Attrs, bool, error) {
	devices, err := s.Devices(ctx)
	if err != nil {
		return device.Attrs{}, false, err
	}
	for _, d := range devices {
		if d.DeviceID == deviceID {
			return d, true, nil
		}
	}
	return device.Attrs{}, false, nil
}

// QueryLibrary posts a date-window query to the media library endpoint.
func (s *Session) QueryLibrary(ctx context.Context, dateFrom, dateTo string) (Envelope, error) {
	body := map[string]any{"dateFrom": dateFrom, "dateTo": dateTo}
	return s.Query(ctx, http.MethodPost, libraryPath, body, nil)
}

func (s *Session) do(ctx context.Context, method, path string, body any, extraHeaders map[string]string, authed bool) (Envelope, error) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.apiBase+path, reader)
	if err != nil {
		return Envelope{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", s.Token())
	}
	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}

	resp, err := s.httpc.Do(req)
	if err != nil {
		return Envelope{}, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Envelope{}, fmt.Errorf("%s %s: HTTP %d", method, path, resp.StatusCode)
	}

	var env Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return Envelope{}, fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	return env, nil
}

// loadSession restores a persisted token; absence is not an error.
func (s *Session) loadSession() {
	if s.sessionPath == "" {
		return
	}
	data, err := os.ReadFile(s.sessionPath)
	if err != nil {
		return
	}
	var sf sessionFile
	if err := json.Unmarshal(data, &sf); err != nil {
		s.log.Warn("ignoring corrupt session file", "path", s.sessionPath, "error", err)
		return
	}
	s.token = sf.Token
	s.userID = sf.UserID
	if sf.Token != "" {
		s.log.Info("restored session", "path", s.sessionPath, "user_id", sf.UserID)
	}
}

func (s *Session) saveSession() {
	if s.sessionPath == "" {
		return
	}
	s.mu.RLock()
	sf := sessionFile{Token: s.token, UserID: s.userID}
	s.mu.RUnlock()

	data, err := json.Marshal(sf)
	if err != nil {
		return
	}
	if err := os.WriteFile(s.sessionPath, data, 0o600); err != nil {
		s.log.Warn("failed to persist session", "path", s.sessionPath, "error", err)
	}
}
