package commands

import (
	"testing"
	"time"

	"github.com/bryanchriswhite/TileShot/internal/geometry"
	"github.com/bryanchriswhite/TileShot/internal/job"
	"github.com/bryanchriswhite/TileShot/internal/output"
)

func TestParseRegion(t *testing.T) {
	r, err := parseRegion("10, 20.5,300,4000")
	if err != nil {
		t.Fatalf("parseRegion: %v", err)
	}
	if want := (geometry.Rect{X: 10, Y: 20.5, Width: 300, Height: 4000}); r != want {
		t.Fatalf("parseRegion: got %+v, want %+v", r, want)
	}

	for _, bad := range []string{"", "1,2,3", "1,2,3,x", "1,2,3,4,5"} {
		if _, err := parseRegion(bad); err == nil {
			t.Fatalf("parseRegion(%q): expected error", bad)
		}
	}
}

func TestCaptureDescriptor(t *testing.T) {
	reset := func() {
		captureSelector, captureRegion, captureMode, captureFormat = "", "", "", ""
		captureViewport, captureClipboard, captureDebug = false, false, false
		captureDelay = 0
	}
	t.Cleanup(reset)

	reset()
	d, err := captureDescriptor("https://example.test/")
	if err != nil {
		t.Fatalf("captureDescriptor: %v", err)
	}
	if d.Target != job.TargetFull || d.URL != "https://example.test/" || d.Sink != "" {
		t.Fatalf("default: got %+v", d)
	}

	reset()
	captureSelector = "#main"
	captureClipboard = true
	captureDelay = 1500 * time.Millisecond
	d, _ = captureDescriptor("u")
	if d.Target != job.TargetElement || d.Selector != "#main" || d.Sink != output.SinkClipboard || d.DelayMs != 1500 {
		t.Fatalf("element: got %+v", d)
	}

	reset()
	captureRegion = "0,0,100,50"
	captureMode = "TILED"
	d, _ = captureDescriptor("u")
	if d.Target != job.TargetRegion || d.Region.Height != 50 || d.Mode != "tiled" {
		t.Fatalf("region: got %+v", d)
	}
	if err := d.Validate(); err != nil {
		t.Fatalf("region Validate: %v", err)
	}

	reset()
	captureRegion = "0,0"
	if _, err := captureDescriptor("u"); err == nil {
		t.Fatalf("bad region: expected error")
	}
}
