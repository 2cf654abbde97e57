package hls

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"hls-recorder/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
)

const (
	playlistContentType = "application/vnd.apple.mpegurl"
	segmentContentType  = "audio/mp4"
)

// Handler exposes stream endpoints using go-chi.
type Handler struct {
	svc     *Service
	cache   *SegmentCache
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewHandler returns a Handler serving playlists from svc and payloads from
// cache. Metrics may be nil to disable metric recording (e.g. in tests).
func NewHandler(svc *Service, cache *SegmentCache, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{svc: svc, cache: cache, log: log, metrics: m}
}

// RegisterSegment handles POST /streams/{stream_id}/renditions/{rendition}/segments.
// Body: { "sequence": 42, "duration": 2.0, "path": "/segments/42.ts" }.
func (h *Handler) RegisterSegment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	streamID := StreamID(chi.URLParam(r, "stream_id"))
	renditionID := RenditionID(chi.URLParam(r, "rendition"))
	if streamID == "" || renditionID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var seg Segment
	if err := json.NewDecoder(r.Body).Decode(&seg); err != nil {
		h.log.Debug("invalid segment body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := h.svc.RegisterSegment(streamID, renditionID, seg); err != nil {
		switch {
		case errors.Is(err, ErrInvalidSegment):
			h.log.Debug("invalid segment", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusBadRequest)
		case errors.Is(err, ErrStreamEnded), errors.Is(err, ErrRenditionEnded):
			h.log.Info("segment rejected stream or rendition ended",
				slog.String("stream_id", string(streamID)),
				slog.String("rendition", string(renditionID)),
				slog.Int64("sequence", seg.Sequence),
				slog.String("error", err.Error()))
			w.WriteHeader(http.StatusConflict)
		default:
			h.log.Error("register segment failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}

	h.log.Debug("segment registered",
		slog.String("stream_id", string(streamID)),
		slog.String("rendition", string(renditionID)),
		slog.Int64("sequence", seg.Sequence))
	w.WriteHeader(http.StatusCreated)
	if h.metrics != nil {
		h.metrics.IncSegmentsRegistered()
	}
}

// GetPlaylist handles GET /streams/{stream_id}/renditions/{rendition}/playlist.m3u8.
func (h *Handler) GetPlaylist(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	streamID := StreamID(chi.URLParam(r, "stream_id"))
	renditionID := RenditionID(chi.URLParam(r, "rendition"))
	if streamID == "" || renditionID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	m3u8, ok := h.svc.GetPlaylist(streamID, renditionID)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", playlistContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(m3u8))
}

// GetSegment handles GET /streams/{stream_id}/renditions/{rendition}/{segment}
// for recorded payloads still in the cache.
func (h *Handler) GetSegment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	streamID := StreamID(chi.URLParam(r, "stream_id"))
	renditionID := RenditionID(chi.URLParam(r, "rendition"))
	name := chi.URLParam(r, "segment")
	if streamID == "" || renditionID == "" || name == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	data, ok := h.cache.Get(streamID, renditionID, name)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", segmentContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// EndStream handles POST /streams/{stream_id}/end.
func (h *Handler) EndStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	streamID := StreamID(chi.URLParam(r, "stream_id"))
	if streamID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := h.svc.EndStream(streamID); err != nil {
		h.log.Error("end stream failed", slog.String("stream_id", string(streamID)), slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	h.log.Info("stream ended", slog.String("stream_id", string(streamID)))
	w.WriteHeader(http.StatusOK)
	if h.metrics != nil {
		h.metrics.IncStreamsEnded()
	}
}

// Routes mounts the stream endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/streams/{stream_id}", func(r chi.Router) {
		r.Post("/end", h.EndStream)
		r.Route("/renditions/{rendition}", func(r chi.Router) {
			r.Post("/segments", h.RegisterSegment)
			r.Get("/playlist.m3u8", h.GetPlaylist)
			r.Get("/{segment}", h.GetSegment)
		})
	})
}
