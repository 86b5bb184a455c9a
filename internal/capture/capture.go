package capture

import (
	"context"
	"image"
	"sync"

	"github.com/bryanchriswhite/TileShot/internal/geometry"
)

// FrameSource grabs the currently visible rendering surface at physical
// resolution. Implementations are rate limited by their environment and
// must not be called concurrently.
type FrameSource interface {
	// Capture returns one frame of what is on screen right now
	Capture(ctx context.Context) (*Frame, error)

	// Name returns a human-readable name for this source
	Name() string
}

// Backend is a FrameSource with a lifecycle, selected by the Router
type Backend interface {
	FrameSource

	// Start initializes the backend and any required resources
	Start() error

	// Stop releases resources
	Stop() error

	// IsAvailable checks if this backend can be used in the current environment
	IsAvailable() bool
}

// RegionFunc reports where the page viewport currently sits on screen, in
// physical pixels. Screen-grabbing backends crop to it.
type RegionFunc func(ctx context.Context) (image.Rectangle, error)

// Frame is one captured screen grab. Release it as soon as it has been
// composited so only one frame is alive at a time.
type Frame struct {
	Image image.Image

	once    sync.Once
	release func()
}

// NewFrame wraps img. release, if non-nil, runs once on Release.
func NewFrame(img image.Image, release func()) *Frame {
	return &Frame{Image: img, release: release}
}

// Bounds returns the frame's pixel bounds
func (f *Frame) Bounds() image.Rectangle {
	if f == nil || f.Image == nil {
		return image.Rectangle{}
	}
	return f.Image.Bounds()
}

// Release drops the pixel buffer. Safe to call more than once and on nil.
func (f *Frame) Release() {
	if f == nil {
		return
	}
	f.once.Do(func() {
		if f.release != nil {
			f.release()
		}
		f.Image = nil
	})
}

// ScrollOutcome is the result of a scroll request. Actual differs from
// Requested when the document could not scroll any further.
type ScrollOutcome struct {
	Requested geometry.Point `json:"requested"`
	Actual    geometry.Point `json:"actual"`
}

// Clamped reports whether the page stopped short of the requested position
func (o ScrollOutcome) Clamped() bool {
	return o.Requested != o.Actual
}

// ScrollbarState is what HideScrollbars changed, threaded back into
// ShowScrollbars. The zero value means nothing was hidden.
type ScrollbarState struct {
	Hidden   bool   `json:"hidden"`
	Previous string `json:"previous,omitempty"`
}

// ScrollDriver moves the page and reports where it actually ended up
type ScrollDriver interface {
	// ScrollTo requests a page-absolute CSS scroll position
	ScrollTo(ctx context.Context, p geometry.Point) (ScrollOutcome, error)

	// HideScrollbars suppresses visual scrollbars and returns how to undo it
	HideScrollbars(ctx context.Context) (ScrollbarState, error)

	// ShowScrollbars undoes HideScrollbars. A zero state is a no-op.
	ShowScrollbars(ctx context.Context, state ScrollbarState) error
}

// BorderState is what ShowBorder put on the page. The zero value means
// nothing is shown.
type BorderState struct {
	Shown bool   `json:"shown"`
	ID    string `json:"id,omitempty"`
}

// DebugOverlay marks the capture region on the page while a debug job runs
type DebugOverlay interface {
	// ShowBorder outlines a page-absolute region
	ShowBorder(ctx context.Context, region geometry.Rect) (BorderState, error)

	// HideBorder removes what ShowBorder added. A zero state is a no-op.
	HideBorder(ctx context.Context, state BorderState) error
}
