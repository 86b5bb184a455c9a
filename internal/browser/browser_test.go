package browser

import (
	"context"
	"strings"
	"testing"

	"github.com/bryanchriswhite/TileShot/internal/capture"
	"github.com/bryanchriswhite/TileShot/internal/codec"
	"github.com/bryanchriswhite/TileShot/internal/geometry"
	"github.com/go-rod/rod/lib/proto"
)

func TestFrameRequest(t *testing.T) {
	req := FrameOptions{}.request()
	if req.Format != proto.PageCaptureScreenshotFormatPng {
		t.Fatalf("default format: got %s, want png", req.Format)
	}
	if req.Quality != nil {
		t.Fatalf("png request carries quality %d", *req.Quality)
	}

	req = FrameOptions{Format: codec.JPEG, Quality: 250}.request()
	if req.Format != proto.PageCaptureScreenshotFormatJpeg {
		t.Fatalf("jpeg format: got %s", req.Format)
	}
	if req.Quality == nil || *req.Quality != 100 {
		t.Fatalf("jpeg quality: got %v, want 100", req.Quality)
	}
}

func TestLayoutRegions(t *testing.T) {
	l := Layout{
		Viewport: geometry.Size{Width: 1000, Height: 800},
		Document: geometry.Size{Width: 1700, Height: 4000},
		Scroll:   geometry.Point{X: 0, Y: 1200},
		DPR:      2,
	}

	if got, want := l.ViewportRegion(), (geometry.Rect{Y: 1200, Width: 1000, Height: 800}); got != want {
		t.Fatalf("viewport region: got %v, want %v", got, want)
	}
	if got, want := l.DocumentRegion(), (geometry.Rect{Width: 1700, Height: 4000}); got != want {
		t.Fatalf("document region: got %v, want %v", got, want)
	}
}

func TestNewManagerDefaultsXvfbDisplay(t *testing.T) {
	m := NewManager(Config{Xvfb: true})
	if m.Display() != ":99" {
		t.Fatalf("display: got %q, want :99", m.Display())
	}
	if NewManager(Config{}).Browser() != nil {
		t.Fatalf("browser set before Start")
	}
}

func TestRestoreWithNothingApplied(t *testing.T) {
	// neither call may reach the browser when nothing was changed
	p := &Page{}
	if err := p.ShowScrollbars(context.Background(), capture.ScrollbarState{}); err != nil {
		t.Fatalf("ShowScrollbars: %v", err)
	}
	if err := p.HideBorder(context.Background(), capture.BorderState{}); err != nil {
		t.Fatalf("HideBorder: %v", err)
	}
}

func TestDisplayEnv(t *testing.T) {
	env := displayEnv([]string{"HOME=/home/u", "DISPLAY=:0", "XAUTHORITY=/x"}, ":99")
	got := strings.Join(env, " ")
	if got != "HOME=/home/u XAUTHORITY=/x DISPLAY=:99" {
		t.Fatalf("env: got %q", got)
	}
}
