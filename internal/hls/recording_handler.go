package hls

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"hls-recorder/internal/recorder"

	"github.com/go-chi/chi/v5"
)

// RecordingHandler exposes the recorder over HTTP.
type RecordingHandler struct {
	rec *Recordings
	log *slog.Logger
}

func NewRecordingHandler(rec *Recordings, log *slog.Logger) *RecordingHandler {
	return &RecordingHandler{rec: rec, log: log}
}

type startResponse struct {
	StreamID string `json:"stream_id"`
	Playlist string `json:"playlist"`
}

type permissionResponse struct {
	Granted bool `json:"granted"`
}

// RequestPermission handles POST /recording/permission.
func (h *RecordingHandler) RequestPermission(w http.ResponseWriter, r *http.Request) {
	granted, err := h.rec.RequestPermission(r.Context())
	if err != nil {
		h.log.Warn("permission request failed", slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, permissionResponse{Granted: granted})
}

// Start handles POST /recording/start. The body is optional:
// { "segment_duration": 4, "preset": "medium" }.
func (h *RecordingHandler) Start(w http.ResponseWriter, r *http.Request) {
	var opts StartOptions
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
		h.log.Debug("invalid start body", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err)
		return
	}

	id, err := h.rec.Start(r.Context(), opts)
	if err != nil {
		status := startStatus(err)
		if status == http.StatusInternalServerError {
			h.log.Error("start recording failed", slog.String("error", err.Error()))
		} else {
			h.log.Info("start recording rejected", slog.String("error", err.Error()))
		}
		writeError(w, status, err)
		return
	}

	writeJSON(w, http.StatusCreated, startResponse{StreamID: string(id), Playlist: PlaylistPath(id)})
}

// Stop handles POST /recording/stop.
func (h *RecordingHandler) Stop(w http.ResponseWriter, r *http.Request) {
	id, err := h.rec.Stop(r.Context())
	if err != nil {
		h.log.Error("stop recording failed", slog.String("stream_id", string(id)), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, h.rec.Status())
}

// Status handles GET /recording.
func (h *RecordingHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.rec.Status())
}

// Routes mounts the recording endpoints on r.
func (h *RecordingHandler) Routes(r chi.Router) {
	r.Route("/recording", func(r chi.Router) {
		r.Get("/", h.Status)
		r.Post("/permission", h.RequestPermission)
		r.Post("/start", h.Start)
		r.Post("/stop", h.Stop)
	})
}

func startStatus(err error) int {
	switch {
	case errors.Is(err, recorder.ErrShouldRequestRecordPermission):
		return http.StatusPreconditionRequired
	case errors.Is(err, recorder.ErrRecordPermissionIsDenied):
		return http.StatusForbidden
	case errors.Is(err, recorder.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, recorder.ErrInvalidConfiguration):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
