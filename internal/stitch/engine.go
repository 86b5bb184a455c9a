// Package stitch drives the capture of a page region that may be larger
// than one screen grab: it walks the tile grid, scrolls the page to each
// tile, grabs a frame, extracts the tile's pixels and composites them onto
// a single output surface.
//
// Tiles are strictly sequential. The page has one scroll position and the
// frame source is rate limited, so there is nothing to gain from
// parallelism and a lot to lose.
package stitch

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/bryanchriswhite/TileShot/internal/capture"
	"github.com/bryanchriswhite/TileShot/internal/failure"
	"github.com/bryanchriswhite/TileShot/internal/geometry"
	"github.com/bryanchriswhite/TileShot/internal/logger"
	"github.com/bryanchriswhite/TileShot/internal/tiles"
	"github.com/rs/zerolog"
	"golang.org/x/image/draw"
)

// DefaultSettle is how long the engine waits after a scroll before grabbing
const DefaultSettle = 150 * time.Millisecond

// State is a step of the engine's state machine
type State string

const (
	StateIdle          State = "idle"
	StatePreparing     State = "preparing"
	StateCapturingTile State = "capturing_tile"
	StateFinalizing    State = "finalizing"
	StateDone          State = "done"
	StateFailed        State = "failed"
)

// Mode selects the single-shot or tiled path
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeSingle Mode = "single"
	ModeTiled  Mode = "tiled"
)

// Request describes one capture. All geometry is in CSS pixels.
type Request struct {
	// Region is the area to capture, page-absolute
	Region geometry.Rect
	// Scroll is the page scroll position when the job starts
	Scroll geometry.Point
	// Viewport is the visible area size
	Viewport geometry.Size
	// Document is the full scrollable size, used for logging only
	Document geometry.Size
	DPR      float64
	Mode     Mode
	Debug    bool
}

// Event reports engine progress
type Event struct {
	State   State                  `json:"state"`
	Index   int                    `json:"index"`
	Total   int                    `json:"total"`
	Tile    *tiles.Tile            `json:"tile,omitempty"`
	Outcome *capture.ScrollOutcome `json:"outcome,omitempty"`
	Warning string                 `json:"warning,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// Hooks observe a running capture. Both are optional. Composite receives the
// live surface; it must copy anything it keeps.
type Hooks struct {
	Event     func(Event)
	Composite func(surface *image.RGBA, grid tiles.Grid, tile tiles.Tile, dst image.Rectangle)
}

// Engine composes the collaborators of a capture job
type Engine struct {
	frames  capture.FrameSource
	scroll  capture.ScrollDriver
	overlay capture.DebugOverlay
	settle  time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
	hooks   Hooks

	mu    sync.RWMutex
	state State
}

// Option configures an Engine
type Option func(*Engine)

// WithSettle sets the delay between a scroll and the following grab
func WithSettle(d time.Duration) Option {
	return func(e *Engine) { e.settle = d }
}

// WithDebugOverlay sets the page overlay used for debug jobs
func WithDebugOverlay(o capture.DebugOverlay) Option {
	return func(e *Engine) { e.overlay = o }
}

// WithHooks sets progress hooks
func WithHooks(h Hooks) Option {
	return func(e *Engine) { e.hooks = h }
}

// New creates an engine
func New(frames capture.FrameSource, scroll capture.ScrollDriver, opts ...Option) *Engine {
	e := &Engine{
		frames: frames,
		scroll: scroll,
		settle: DefaultSettle,
		sleep:  sleepContext,
		state:  StateIdle,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns the current state
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

func (e *Engine) emit(ev Event) {
	e.mu.Lock()
	e.state = ev.State
	e.mu.Unlock()
	if e.hooks.Event != nil {
		e.hooks.Event(ev)
	}
}

// plan is a validated request
type plan struct {
	req   Request
	tiled bool
	size  image.Point
}

// prepare validates the request and sizes the output. It has no side effects.
func prepare(req Request) (plan, error) {
	if err := geometry.ValidateRegion(req.Region); err != nil {
		return plan{}, err
	}
	if err := geometry.ValidateDPR(req.DPR); err != nil {
		return plan{}, err
	}
	if req.Viewport.Empty() {
		return plan{}, failure.New(failure.InvalidRegion, "viewport %s must have positive width and height", req.Viewport)
	}

	var tiled bool
	switch req.Mode {
	case ModeSingle:
		tiled = false
	case ModeTiled:
		tiled = true
	case ModeAuto, "":
		tiled = !req.Region.Size().Fits(req.Viewport)
	default:
		return plan{}, failure.New(failure.InvalidRegion, "unknown capture mode %q", req.Mode)
	}

	size := geometry.SurfaceSize(req.Region.Size(), req.DPR, tiled)
	if err := geometry.CheckRaster(size); err != nil {
		return plan{}, err
	}
	return plan{req: req, tiled: tiled, size: size}, nil
}

// Capture runs one job and returns the composited surface. A context that is
// already done prevents the job from starting; once preparation succeeds the
// job runs to completion regardless of ctx.
func (e *Engine) Capture(ctx context.Context, req Request) (*image.RGBA, *Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("capture not started: %w", err)
	}

	log := logger.WithComponent("engine")
	start := time.Now()

	surface, report, err := e.run(context.WithoutCancel(ctx), req, log)
	report.Duration = time.Since(start)

	if err != nil {
		e.emit(Event{State: StateFailed, Error: err.Error()})
		log.Error().
			Err(err).
			Str("kind", string(failure.KindOf(err))).
			Msg("Capture failed")
		return nil, report, err
	}

	e.emit(Event{State: StateDone, Index: report.Composited, Total: len(report.Tiles)})
	log.Info().
		Str("mode", string(report.Mode)).
		Int("width", report.Size.X).
		Int("height", report.Size.Y).
		Int("tiles", len(report.Tiles)).
		Int("skipped", report.Skipped).
		Dur("duration", report.Duration).
		Msg("Capture complete")
	return surface, report, nil
}

func (e *Engine) run(ctx context.Context, req Request, log *zerolog.Logger) (*image.RGBA, *Report, error) {
	report := &Report{Mode: req.Mode}

	e.emit(Event{State: StatePreparing})
	p, err := prepare(req)
	if err != nil {
		return nil, report, err
	}
	report.Size = p.size
	report.Mode = ModeSingle
	if p.tiled {
		report.Mode = ModeTiled
	}

	var grid tiles.Grid
	if p.tiled {
		grid, err = tiles.Plan(req.Region, req.Viewport, req.Scroll)
		if err != nil {
			return nil, report, err
		}
		report.Cols, report.Rows = grid.Cols, grid.Rows
	}

	log.Info().
		Str("mode", string(report.Mode)).
		Stringer("region", req.Region).
		Stringer("viewport", req.Viewport).
		Stringer("document", req.Document).
		Stringer("scroll", req.Scroll).
		Float64("dpr", req.DPR).
		Int("width", p.size.X).
		Int("height", p.size.Y).
		Int("cols", grid.Cols).
		Int("rows", grid.Rows).
		Msg("Preparing capture")

	surface := image.NewRGBA(image.Rectangle{Max: p.size})

	c := e.acquire(ctx, p, log)
	defer e.release(ctx, c, log)

	if p.tiled {
		err = e.captureTiled(ctx, p, grid, surface, c, report, log)
	} else {
		err = e.captureSingle(ctx, p, surface, report, log)
	}
	if err != nil {
		return nil, report, err
	}
	return surface, report, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// grab takes one frame and tags untagged failures as CaptureUnavailable
func (e *Engine) grab(ctx context.Context) (*capture.Frame, error) {
	frame, err := e.frames.Capture(ctx)
	if err != nil {
		return nil, tag(failure.CaptureUnavailable, err, "frame source "+e.frames.Name())
	}
	if frame == nil || frame.Image == nil {
		return nil, failure.New(failure.CaptureUnavailable, "frame source %s returned no image", e.frames.Name())
	}
	return frame, nil
}

// composite copies the placement from frame onto surface
func composite(surface *image.RGBA, frame *capture.Frame, p geometry.Placement) {
	draw.Draw(surface, p.Dst, frame.Image, p.Src.Min, draw.Src)
}
