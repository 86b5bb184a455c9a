package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bryanchriswhite/TileShot/internal/browser"
	"github.com/bryanchriswhite/TileShot/internal/capture"
	"github.com/bryanchriswhite/TileShot/internal/config"
	"github.com/bryanchriswhite/TileShot/internal/failure"
	"github.com/bryanchriswhite/TileShot/internal/geometry"
	"github.com/bryanchriswhite/TileShot/internal/history"
	"github.com/bryanchriswhite/TileShot/internal/job"
	"github.com/bryanchriswhite/TileShot/internal/output"
	"github.com/gorilla/websocket"
)

// stillPage is a page that never scrolls and always shows one color
type stillPage struct {
	viewport geometry.Size
}

func (p *stillPage) Name() string { return "still" }

func (p *stillPage) Capture(ctx context.Context) (*capture.Frame, error) {
	img := image.NewRGBA(image.Rect(0, 0, int(p.viewport.Width), int(p.viewport.Height)))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 40, 80, 120, 255
	}
	return capture.NewFrame(img, nil), nil
}

func (p *stillPage) ScrollTo(ctx context.Context, to geometry.Point) (capture.ScrollOutcome, error) {
	return capture.ScrollOutcome{Requested: to, Actual: geometry.Point{}}, nil
}

func (p *stillPage) HideScrollbars(ctx context.Context) (capture.ScrollbarState, error) {
	return capture.ScrollbarState{}, nil
}

func (p *stillPage) ShowScrollbars(ctx context.Context, state capture.ScrollbarState) error {
	return nil
}

func (p *stillPage) ShowBorder(ctx context.Context, region geometry.Rect) (capture.BorderState, error) {
	return capture.BorderState{}, nil
}

func (p *stillPage) HideBorder(ctx context.Context, state capture.BorderState) error { return nil }

func (p *stillPage) Layout(ctx context.Context) (browser.Layout, error) {
	return browser.Layout{Viewport: p.viewport, Document: p.viewport, DPR: 1}, nil
}

func (p *stillPage) Element(ctx context.Context, selector string) (geometry.Rect, error) {
	return geometry.Rect{}, failure.New(failure.InvalidRegion, "no element matches %q", selector)
}

func (p *stillPage) ScreenRect(ctx context.Context) (image.Rectangle, error) {
	return image.Rect(0, 0, int(p.viewport.Width), int(p.viewport.Height)), nil
}

func (p *stillPage) URL() string  { return "about:blank" }
func (p *stillPage) Close() error { return nil }

type testServer struct {
	*httptest.Server
	cfg *config.Manager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()

	cfg, err := config.NewManager(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	prefs := cfg.GetPreferences()
	prefs.Sink = output.SinkMemory
	if err := cfg.SetPreferences(prefs); err != nil {
		t.Fatalf("SetPreferences: %v", err)
	}

	store, err := history.Open(filepath.Join(dir, "history.db"))
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	runner := job.NewRunner(job.Config{Defaults: job.PreferenceDefaults(prefs)}, nil,
		output.NewMemorySink(8), output.NewFileSink(filepath.Join(dir, "out")))
	runner.Attach(&stillPage{viewport: geometry.Size{Width: 320, Height: 200}})
	runner.SetHistory(store)

	srv := httptest.NewServer(NewServer(runner, cfg, store, nil).Handler())
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, cfg: cfg}
}

func (s *testServer) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestCaptureLifecycle(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPost, "/api/captures", `{"target":"viewport"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST status: got %d, want 200", resp.StatusCode)
	}
	var res job.Result
	decode(t, resp, &res)
	if !res.Success || res.Width != 320 || res.Height != 200 {
		t.Fatalf("result: got %+v", res)
	}

	resp = s.do(t, http.MethodGet, "/api/captures", "")
	var entries []history.Entry
	decode(t, resp, &entries)
	if len(entries) != 1 || entries[0].ID != res.ID {
		t.Fatalf("list: got %+v", entries)
	}

	resp = s.do(t, http.MethodGet, "/api/captures/"+res.ID, "")
	var entry history.Entry
	decode(t, resp, &entry)
	if entry.Filename != res.Filename || entry.Sink != output.SinkMemory {
		t.Fatalf("entry: got %+v", entry)
	}

	resp = s.do(t, http.MethodGet, "/api/captures/"+res.ID+"/image", "")
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("image content type: got %q", ct)
	}
	data, _ := io.ReadAll(resp.Body)
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("image decode: %v", err)
	}
	if got := color.RGBAModel.Convert(img.At(10, 10)); got != (color.RGBA{40, 80, 120, 255}) {
		t.Fatalf("image pixel: got %v", got)
	}
}

func TestCaptureErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		body   string
		status int
		kind   failure.Kind
	}{
		{`{"region":{"x":0,"y":0,"width":0,"height":10},"viewportSize":{"width":320,"height":200},"documentSize":{"width":320,"height":200},"devicePixelRatio":1}`, http.StatusUnprocessableEntity, failure.InvalidRegion},
		{`{"target":"viewport","sink":"printer"}`, http.StatusBadGateway, failure.DeliveryFailed},
		{`{"target":"viewport","url":"https://example.test/"}`, http.StatusServiceUnavailable, failure.CaptureUnavailable},
	}
	for _, tt := range tests {
		resp := s.do(t, http.MethodPost, "/api/captures", tt.body)
		if resp.StatusCode != tt.status {
			t.Fatalf("%s: status got %d, want %d", tt.body, resp.StatusCode, tt.status)
		}
		var res job.Result
		decode(t, resp, &res)
		if res.Success || res.Kind != tt.kind || res.Error == "" {
			t.Fatalf("%s: got %+v, want kind %s", tt.body, res, tt.kind)
		}
	}

	if resp := s.do(t, http.MethodPost, "/api/captures", `{not json`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad JSON: got %d, want 400", resp.StatusCode)
	}
	if resp := s.do(t, http.MethodGet, "/api/captures/nope", ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown id: got %d, want 404", resp.StatusCode)
	}
	if resp := s.do(t, http.MethodGet, "/api/captures?limit=x", ""); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad limit: got %d, want 400", resp.StatusCode)
	}
	if resp := s.do(t, http.MethodGet, "/api/preview", ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("preview without output: got %d, want 404", resp.StatusCode)
	}
}

func TestPreferences(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPut, "/api/preferences", `{"format":"jpeg","quality":60}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT status: got %d", resp.StatusCode)
	}
	var p config.Preferences
	decode(t, resp, &p)
	if p.Format != "jpeg" || p.Quality != 60 || p.Sink != output.SinkMemory {
		t.Fatalf("PUT result: got %+v", p)
	}
	if got := s.cfg.GetPreferences(); got != p {
		t.Fatalf("stored: got %+v, want %+v", got, p)
	}

	// new defaults apply to the next job
	resp = s.do(t, http.MethodPost, "/api/captures", `{"target":"viewport"}`)
	var res job.Result
	decode(t, resp, &res)
	if !strings.HasSuffix(res.Filename, ".jpg") {
		t.Fatalf("filename after preference change: got %s", res.Filename)
	}

	if resp := s.do(t, http.MethodPut, "/api/preferences", `{"quality":0}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid PUT: got %d, want 400", resp.StatusCode)
	}
	resp = s.do(t, http.MethodGet, "/api/preferences", "")
	decode(t, resp, &p)
	if p.Quality != 60 {
		t.Fatalf("invalid PUT changed quality to %d", p.Quality)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	resp := s.do(t, http.MethodGet, "/api/health", "")
	var body map[string]interface{}
	decode(t, resp, &body)
	if body["status"] != "healthy" {
		t.Fatalf("health: got %v", body)
	}
}

func TestCaptureStream(t *testing.T) {
	s := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(s.URL, "http") + "/api/captures/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	// the subscription is registered after the upgrade; give the handler a moment
	time.Sleep(50 * time.Millisecond)
	s.do(t, http.MethodPost, "/api/captures", `{"target":"viewport"}`)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	sawProgress := false
	for {
		var ev job.Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("ReadJSON: %v", err)
		}
		if ev.Type == job.EventProgress {
			sawProgress = true
		}
		if ev.Type == job.EventFinished {
			if ev.Result == nil || !ev.Result.Success {
				t.Fatalf("finished event: got %+v", ev)
			}
			break
		}
	}
	if !sawProgress {
		t.Fatalf("no progress events before finish")
	}
}
