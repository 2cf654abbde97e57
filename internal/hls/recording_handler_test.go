package hls

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"hls-recorder/internal/recorder"
)

func newRecordingRouter(t *testing.T) (*chi.Mux, *recordingsFixture) {
	t.Helper()
	f := newRecordingsFixture(t)
	r := chi.NewRouter()
	NewRecordingHandler(f.rec, slog.New(slog.DiscardHandler)).Routes(r)
	return r, f
}

func serve(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRecordingHandler_start_status_stop(t *testing.T) {
	r, _ := newRecordingRouter(t)

	rec := serve(r, http.MethodPost, "/recording/start", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("start: expected 201, got %d: %s", rec.Code, rec.Body)
	}
	var started startResponse
	if err := json.NewDecoder(rec.Body).Decode(&started); err != nil {
		t.Fatal(err)
	}
	if started.StreamID != "rec-1" || started.Playlist != PlaylistPath("rec-1") {
		t.Errorf("start response: %+v", started)
	}

	rec = serve(r, http.MethodGet, "/recording", "")
	var st RecordingStatus
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK || st.State != "running" || st.StreamID != "rec-1" {
		t.Errorf("status: code=%d %+v", rec.Code, st)
	}

	rec = serve(r, http.MethodPost, "/recording/stop", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"state":"stopped"`) {
		t.Errorf("stop: code=%d body=%s", rec.Code, rec.Body)
	}
}

func TestRecordingHandler_start_body(t *testing.T) {
	r, f := newRecordingRouter(t)

	rec := serve(r, http.MethodPost, "/recording/start", `{"segment_duration": 4, "preset": "medium"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if got := f.ctrl.cfgs[0]; got.SegmentDuration != 4 || got.Preset != recorder.PresetMedium {
		t.Errorf("configuration: %+v", got)
	}

	r2, _ := newRecordingRouter(t)
	if rec := serve(r2, http.MethodPost, "/recording/start", "{"); rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body: expected 400, got %d", rec.Code)
	}
}

func TestRecordingHandler_start_errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"should request", recorder.ErrShouldRequestRecordPermission, http.StatusPreconditionRequired},
		{"denied", recorder.ErrRecordPermissionIsDenied, http.StatusForbidden},
		{"already running", recorder.ErrAlreadyRunning, http.StatusConflict},
		{"invalid", recorder.ErrInvalidConfiguration, http.StatusBadRequest},
		{"no device", recorder.ErrMicrophoneDeviceNotFound, http.StatusInternalServerError},
		{"writer", recorder.ErrCannotStartWriting, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, f := newRecordingRouter(t)
			f.ctrl.startErr = tt.err

			rec := serve(r, http.MethodPost, "/recording/start", "")
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.err.Error()) {
				t.Errorf("error body %s", rec.Body)
			}
		})
	}
}

func TestRecordingHandler_start_twice_conflicts(t *testing.T) {
	r, _ := newRecordingRouter(t)
	if rec := serve(r, http.MethodPost, "/recording/start", ""); rec.Code != http.StatusCreated {
		t.Fatalf("first start: %d", rec.Code)
	}
	if rec := serve(r, http.MethodPost, "/recording/start", ""); rec.Code != http.StatusConflict {
		t.Errorf("second start: expected 409, got %d", rec.Code)
	}
}

func TestRecordingHandler_stop_error(t *testing.T) {
	r, f := newRecordingRouter(t)
	serve(r, http.MethodPost, "/recording/start", "")
	f.ctrl.stopErr = recorder.ErrFinishWritingWithError

	if rec := serve(r, http.MethodPost, "/recording/stop", ""); rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

func TestRecordingHandler_permission(t *testing.T) {
	r, f := newRecordingRouter(t)
	f.ctrl.perm = recorder.PermissionDenied

	rec := serve(r, http.MethodPost, "/recording/permission", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"granted":false}` {
		t.Errorf("permission: code=%d body=%s", rec.Code, rec.Body)
	}
}
