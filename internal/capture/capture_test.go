package capture

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/bryanchriswhite/TileShot/internal/geometry"
)

type countingSource struct {
	calls []time.Time
}

func (s *countingSource) Capture(ctx context.Context) (*Frame, error) {
	s.calls = append(s.calls, time.Now())
	return NewFrame(image.NewRGBA(image.Rect(0, 0, 4, 4)), nil), nil
}

func (s *countingSource) Name() string { return "counting" }

func TestLimitSpacesCaptures(t *testing.T) {
	src := &countingSource{}
	limited := Limit(src, 40*time.Millisecond)

	for i := 0; i < 3; i++ {
		f, err := limited.Capture(context.Background())
		if err != nil {
			t.Fatalf("capture %d: %v", i, err)
		}
		f.Release()
	}
	for i := 1; i < len(src.calls); i++ {
		if gap := src.calls[i].Sub(src.calls[i-1]); gap < 35*time.Millisecond {
			t.Fatalf("gap %d: got %v, want >= ~40ms", i, gap)
		}
	}
	if limited.Name() != "counting" {
		t.Fatalf("Name: got %q, want %q", limited.Name(), "counting")
	}
}

func TestLimitZeroIntervalIsPassthrough(t *testing.T) {
	src := &countingSource{}
	if Limit(src, 0) != FrameSource(src) {
		t.Fatal("Limit(0) should return the source unchanged")
	}
}

func TestLimitHonorsContext(t *testing.T) {
	limited := Limit(&countingSource{}, time.Hour)
	if _, err := limited.Capture(context.Background()); err != nil {
		t.Fatalf("first capture: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := limited.Capture(ctx); err == nil {
		t.Fatal("expected an error from a cancelled context")
	}
}

func TestFrameReleaseOnce(t *testing.T) {
	released := 0
	f := NewFrame(image.NewRGBA(image.Rect(0, 0, 2, 2)), func() { released++ })
	if f.Bounds() != image.Rect(0, 0, 2, 2) {
		t.Fatalf("Bounds: got %v", f.Bounds())
	}
	f.Release()
	f.Release()
	if released != 1 {
		t.Fatalf("release calls: got %d, want 1", released)
	}
	if !f.Bounds().Empty() {
		t.Fatal("released frame should have empty bounds")
	}

	var nilFrame *Frame
	nilFrame.Release()
}

func TestScrollOutcomeClamped(t *testing.T) {
	o := ScrollOutcome{Requested: geometry.Point{X: 1500}, Actual: geometry.Point{X: 700}}
	if !o.Clamped() {
		t.Fatal("expected clamped outcome")
	}
	if (ScrollOutcome{}).Clamped() {
		t.Fatal("zero outcome is not clamped")
	}
}

func TestRouterFallsBackToCDP(t *testing.T) {
	cdp := &countingSource{}
	failing := func(ctx context.Context) (image.Rectangle, error) {
		return image.Rectangle{}, errors.New("no window")
	}
	r := NewRouter("bogus", "", cdp, failing)
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop()

	if r.Name() != "counting" {
		t.Fatalf("active backend: got %q, want the cdp source", r.Name())
	}
	f, err := r.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	f.Release()
	if len(cdp.calls) != 1 {
		t.Fatalf("cdp calls: got %d, want 1", len(cdp.calls))
	}
}

func TestConvertImageData(t *testing.T) {
	data := []byte{
		10, 20, 30, 0, 40, 50, 60, 0,
	}
	img, err := convertImageData(data, 2, 1, 24)
	if err != nil {
		t.Fatalf("convertImageData: %v", err)
	}
	want := []byte{30, 20, 10, 255, 60, 50, 40, 255}
	for i, b := range want {
		if img.Pix[i] != b {
			t.Fatalf("Pix[%d]: got %d, want %d", i, img.Pix[i], b)
		}
	}
	if _, err := convertImageData(data, 2, 1, 16); err == nil {
		t.Fatal("expected an error for depth 16")
	}
}
