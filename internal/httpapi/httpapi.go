// Package httpapi exposes the base station, its cameras, and the media
// library over a local REST surface, plus a websocket feed of bus events and
// a Prometheus metrics endpoint.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wrauf/arlo/internal/core/basestation"
	"github.com/wrauf/arlo/internal/core/camera"
	"github.com/wrauf/arlo/internal/core/media"
	"github.com/wrauf/arlo/internal/core/state"
)

// Server is the HTTP API server.
type Server struct {
	station  *basestation.BaseStation
	cameras  []*camera.Camera
	library  *media.Library
	bus      *state.EventBus
	corsAll  bool
	log      *slog.Logger
	mux      *http.ServeMux
	upgrader websocket.Upgrader
}

// NewServer creates a new HTTP API server.
func NewServer(
	station *basestation.BaseStation,
	cameras []*camera.Camera,
	library *media.Library,
	bus *state.EventBus,
	corsAll bool,
	log *slog.Logger,
) *Server {
	s := &Server{
		station: station,
		cameras: cameras,
		library: library,
		bus:     bus,
		corsAll: corsAll,
		log:     log,
		mux:     http.NewServeMux(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	if !s.corsAll {
		return s.mux
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		s.mux.ServeHTTP(w, r)
	})
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/status", s.handleGetStatus)
	s.mux.HandleFunc("GET /api/devices", s.handleGetDevices)
	s.mux.HandleFunc("GET /api/mode", s.handleGetMode)
	s.mux.HandleFunc("POST /api/mode", s.handleSetMode)
	s.mux.HandleFunc("GET /api/sensors", s.handleGetSensors)
	s.mux.HandleFunc("GET /api/sensors/history", s.handleGetSensorHistory)
	s.mux.HandleFunc("GET /api/playback", s.handleGetPlayback)

	s.mux.HandleFunc("POST /api/control/play", s.handleControlPlay)
	s.mux.HandleFunc("POST /api/control/pause", s.handleControlPause)
	s.mux.HandleFunc("POST /api/control/skip", s.handleControlSkip)
	s.mux.HandleFunc("POST /api/control/loop", s.handleControlLoop)
	s.mux.HandleFunc("POST /api/control/shuffle", s.handleControlShuffle)
	s.mux.HandleFunc("POST /api/control/nightlight", s.handleControlNightlight)
	s.mux.HandleFunc("POST /api/control/nightlight/brightness", s.handleControlBrightness)
	s.mux.HandleFunc("POST /api/control/volume", s.handleControlVolume)

	s.mux.HandleFunc("GET /api/cameras", s.handleGetCameras)
	s.mux.HandleFunc("POST /api/cameras/{id}/enabled", s.handleSetCameraEnabled)
	s.mux.HandleFunc("POST /api/cameras/{id}/snapshot", s.handleCameraSnapshot)
	s.mux.HandleFunc("POST /api/cameras/{id}/stream", s.handleCameraStream)

	s.mux.HandleFunc("GET /api/media", s.handleGetMedia)

	s.mux.HandleFunc("GET /api/ws", s.handleWebsocket)
	s.mux.Handle("GET /metrics", promhttp.Handler())
}

func (s *Server) corsHeaders(w http.ResponseWriter) {
	if s.corsAll {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	s.corsHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.corsHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// cameraByID finds a paired camera by its device ID.
func (s *Server) cameraByID(id string) *camera.Camera {
	for _, cam := range s.cameras {
		if cam.DeviceID() == id {
			return cam
		}
	}
	return nil
}

// --- Status and devices ---

type statusResponse struct {
	BaseStationID string `json:"base_station_id"`
	Name          string `json:"name"`
	Mode          string `json:"mode"`
	Cameras       int    `json:"cameras"`
}

func (s *Server) handleGetStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, statusResponse{
		BaseStationID: s.station.DeviceID(),
		Name:          s.station.Name(),
		Mode:          s.station.Mode(),
		Cameras:       len(s.cameras),
	})
}

type deviceSummary struct {
	DeviceID   string `json:"device_id"`
	UniqueID   string `json:"unique_id"`
	Name       string `json:"name"`
	DeviceType string `json:"device_type"`
	ModelID    string `json:"model_id"`
}

func (s *Server) handleGetDevices(w http.ResponseWriter, _ *http.Request) {
	devices := []deviceSummary{{
		DeviceID:   s.station.DeviceID(),
		UniqueID:   s.station.UniqueID(),
		Name:       s.station.Name(),
		DeviceType: s.station.DeviceType(),
		ModelID:    s.station.ModelID(),
	}}
	for _, cam := range s.cameras {
		devices = append(devices, deviceSummary{
			DeviceID:   cam.DeviceID(),
			UniqueID:   cam.UniqueID(),
			Name:       cam.Name(),
			DeviceType: cam.DeviceType(),
			ModelID:    cam.ModelID(),
		})
	}
	s.writeJSON(w, map[string]any{"devices": devices})
}

// --- Mode ---

func (s *Server) handleGetMode(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]any{
		"mode":            s.station.Mode(),
		"available_modes": s.station.AvailableModes(r.Context()),
	})
}

type modeBody struct {
	Mode string `json:"mode"`
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var body modeBody
	if err := s.readJSON(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if err := s.station.SetMode(r.Context(), body.Mode); err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok", "mode": body.Mode})
}

// --- Ambient sensors ---

func (s *Server) handleGetSensors(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s.writeJSON(w, state.AmbientReading{
		Temperature: s.station.AmbientTemperature(ctx),
		Humidity:    s.station.AmbientHumidity(ctx),
		AirQuality:  s.station.AmbientAirQuality(ctx),
	})
}

func (s *Server) handleGetSensorHistory(w http.ResponseWriter, r *http.Request) {
	history := s.station.AmbientSensorHistory(r.Context())
	if history == nil {
		history = []basestation.SensorReading{}
	}
	s.writeJSON(w, map[string]any{"history": history})
}

// --- Audio playback ---

func (s *Server) handleGetPlayback(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]any{
		"playback": s.station.AudioPlaybackStatus(r.Context()),
		"volume":   s.station.SpeakerVolume(r.Context()),
	})
}

type playBody struct {
	TrackID  string `json:"track_id"`
	Position int    `json:"position"`
}

func (s *Server) handleControlPlay(w http.ResponseWriter, r *http.Request) {
	var body playBody
	if err := s.readJSON(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if err := s.station.PlayTrack(r.Context(), body.TrackID, body.Position); err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleControlPause(w http.ResponseWriter, r *http.Request) {
	if err := s.station.PauseTrack(r.Context()); err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleControlSkip(w http.ResponseWriter, r *http.Request) {
	if err := s.station.SkipTrack(r.Context()); err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

type loopBody struct {
	Mode string `json:"mode"`
}

func (s *Server) handleControlLoop(w http.ResponseWriter, r *http.Request) {
	var body loopBody
	if err := s.readJSON(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	mode := basestation.LoopMode(body.Mode)
	if mode != basestation.LoopModeContinuous && mode != basestation.LoopModeSingleTrack {
		s.writeError(w, http.StatusBadRequest, "mode must be continuous or singleTrack")
		return
	}
	if err := s.station.SetMusicLoopMode(r.Context(), mode); err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

type enabledBody struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleControlShuffle(w http.ResponseWriter, r *http.Request) {
	var body enabledBody
	if err := s.readJSON(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if err := s.station.SetShuffle(r.Context(), body.Enabled); err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

// --- Night light and volume ---

func (s *Server) handleControlNightlight(w http.ResponseWriter, r *http.Request) {
	var body enabledBody
	if err := s.readJSON(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if err := s.station.SetNightLight(r.Context(), body.Enabled); err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

type brightnessBody struct {
	Level int `json:"level"`
}

func (s *Server) handleControlBrightness(w http.ResponseWriter, r *http.Request) {
	var body brightnessBody
	if err := s.readJSON(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if body.Level < 0 || body.Level > 255 {
		s.writeError(w, http.StatusBadRequest, "level must be between 0 and 255")
		return
	}
	if err := s.station.SetNightLightBrightness(r.Context(), body.Level); err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

type volumeBody struct {
	Mute  bool `json:"mute"`
	Level int  `json:"level"`
}

func (s *Server) handleControlVolume(w http.ResponseWriter, r *http.Request) {
	var body volumeBody
	if err := s.readJSON(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if body.Level < 0 || body.Level > 100 {
		s.writeError(w, http.StatusBadRequest, "level must be between 0 and 100")
		return
	}
	if err := s.station.SetSpeakerVolume(r.Context(), body.Mute, body.Level); err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

// --- Cameras ---

type cameraSummary struct {
	DeviceID       string `json:"device_id"`
	Name           string `json:"name"`
	ModelID        string `json:"model_id"`
	BatteryLevel   *int   `json:"battery_level,omitempty"`
	SignalStrength *int   `json:"signal_strength,omitempty"`
	Connected      *bool  `json:"connected,omitempty"`
	UnseenVideos   int    `json:"unseen_videos"`
}

func (s *Server) handleGetCameras(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	summaries := make([]cameraSummary, 0, len(s.cameras))
	for _, cam := range s.cameras {
		summaries = append(summaries, cameraSummary{
			DeviceID:       cam.DeviceID(),
			Name:           cam.Name(),
			ModelID:        cam.ModelID(),
			BatteryLevel:   cam.BatteryLevel(ctx),
			SignalStrength: cam.SignalStrength(ctx),
			Connected:      cam.IsConnected(ctx),
			UnseenVideos:   cam.UnseenVideos(),
		})
	}
	s.writeJSON(w, map[string]any{"cameras": summaries})
}

func (s *Server) handleSetCameraEnabled(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.cameraByID(id) == nil {
		s.writeError(w, http.StatusNotFound, "unknown camera: "+id)
		return
	}
	var body enabledBody
	if err := s.readJSON(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if err := s.station.SetCameraEnabled(r.Context(), id, body.Enabled); err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleCameraSnapshot(w http.ResponseWriter, r *http.Request) {
	cam := s.cameraByID(r.PathValue("id"))
	if cam == nil {
		s.writeError(w, http.StatusNotFound, "unknown camera: "+r.PathValue("id"))
		return
	}
	accepted, err := cam.ScheduleSnapshot(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if !accepted {
		s.writeError(w, http.StatusConflict, "snapshot request refused")
		return
	}
	s.writeJSON(w, map[string]string{"status": "scheduled"})
}

func (s *Server) handleCameraStream(w http.ResponseWriter, r *http.Request) {
	cam := s.cameraByID(r.PathValue("id"))
	if cam == nil {
		s.writeError(w, http.StatusNotFound, "unknown camera: "+r.PathValue("id"))
		return
	}
	url, err := cam.LiveStreamURL(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, map[string]string{"url": url})
}

// --- Media library ---

func (s *Server) handleGetMedia(w http.ResponseWriter, r *http.Request) {
	opts := media.LoadOptions{Days: media.DefaultPreloadDays}

	q := r.URL.Query()
	if raw := q.Get("days"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days <= 0 {
			s.writeError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		opts.Days = days
	}
	if cameraID := q.Get("camera"); cameraID != "" {
		opts.CameraIDs = []string{cameraID}
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		opts.Limit = limit
	}

	videos, err := s.library.Load(r.Context(), opts)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if videos == nil {
		videos = []media.Video{}
	}
	s.writeJSON(w, map[string]any{"videos": videos})
}

// --- Websocket event feed ---

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events, unsub := s.bus.Subscribe(128)
	defer unsub()

	// Drain client messages so close frames are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				conn.Close()
				return
			}
		}
	}()

	for evt := range events {
		if err := conn.WriteJSON(evt); err != nil {
			s.log.Debug("websocket client gone", "error", err)
			return
		}
	}
}
