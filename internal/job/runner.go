package job

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/bryanchriswhite/TileShot/internal/browser"
	"github.com/bryanchriswhite/TileShot/internal/capture"
	"github.com/bryanchriswhite/TileShot/internal/codec"
	"github.com/bryanchriswhite/TileShot/internal/failure"
	"github.com/bryanchriswhite/TileShot/internal/geometry"
	"github.com/bryanchriswhite/TileShot/internal/history"
	"github.com/bryanchriswhite/TileShot/internal/logger"
	"github.com/bryanchriswhite/TileShot/internal/notify"
	"github.com/bryanchriswhite/TileShot/internal/output"
	"github.com/bryanchriswhite/TileShot/internal/stitch"
	"github.com/bryanchriswhite/TileShot/internal/tiles"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Page is a browser page a job can capture. *browser.Page implements it.
type Page interface {
	capture.FrameSource
	capture.ScrollDriver
	capture.DebugOverlay

	Layout(ctx context.Context) (browser.Layout, error)
	Element(ctx context.Context, selector string) (geometry.Rect, error)
	ScreenRect(ctx context.Context) (image.Rectangle, error)
	URL() string
	Close() error
}

// Opener opens a fresh page at url
type Opener func(ctx context.Context, url string) (Page, error)

// Recorder stores job outcomes. *history.Store implements it.
type Recorder interface {
	Record(ctx context.Context, e history.Entry) error
}

// Config tunes the runner
type Config struct {
	Defaults Defaults
	// Backend and Display select the frame source, see capture.NewRouter
	Backend string
	Display string
	// Interval is the minimum gap between grabs; DebugInterval applies to debug jobs
	Interval      time.Duration
	DebugInterval time.Duration
	Settle        time.Duration
}

// AfterJobTimeout bounds recording and reporting a finished job
const AfterJobTimeout = 5 * time.Second

// Runner executes capture jobs one at a time
type Runner struct {
	cfg   Config
	open  Opener
	sinks map[string]output.Sink

	attached Page
	// shared by every job so the grab gap holds from one job to the next
	pacer    *capture.Pacer
	history  Recorder
	notifier notify.Notifier
	preview  *Preview

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
	// bounds history and notification calls, which run while jobMu is held
	afterTimeout time.Duration

	// held for the whole job
	jobMu sync.Mutex

	mu        sync.RWMutex
	listeners []chan Event
}

// NewRunner creates a runner delivering through sinks, keyed by name. open
// may be nil when every job uses the attached page.
func NewRunner(cfg Config, open Opener, sinks ...output.Sink) *Runner {
	r := &Runner{
		cfg:      cfg,
		open:     open,
		sinks:    make(map[string]output.Sink, len(sinks)),
		pacer:    capture.NewPacer(),
		notifier: notify.Nop{},
		sleep:    sleepContext,
		now:      time.Now,

		afterTimeout: AfterJobTimeout,
	}
	for _, s := range sinks {
		r.sinks[s.Name()] = s
	}
	return r
}

// Attach sets the page used by descriptors without a URL
func (r *Runner) Attach(p Page) {
	r.mu.Lock()
	r.attached = p
	r.mu.Unlock()
}

// SetHistory records every finished job in h
func (r *Runner) SetHistory(h Recorder) {
	r.history = h
}

// SetNotifier reports every finished job through n
func (r *Runner) SetNotifier(n notify.Notifier) {
	if n == nil {
		n = notify.Nop{}
	}
	r.notifier = n
}

// SetPreview streams debug jobs to p
func (r *Runner) SetPreview(p *Preview) {
	r.preview = p
}

// Sink returns the named sink
func (r *Runner) Sink(name string) (output.Sink, bool) {
	s, ok := r.sinks[name]
	return s, ok
}

// SetDefaults replaces the defaults applied to later jobs
func (r *Runner) SetDefaults(d Defaults) {
	r.mu.Lock()
	r.cfg.Defaults = d
	r.mu.Unlock()
}

func (r *Runner) defaults() Defaults {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg.Defaults
}

// Subscribe adds a listener for job events
func (r *Runner) Subscribe() chan Event {
	ch := make(chan Event, 64)
	r.mu.Lock()
	r.listeners = append(r.listeners, ch)
	r.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener
func (r *Runner) Unsubscribe(ch chan Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, listener := range r.listeners {
		if listener == ch {
			r.listeners = append(r.listeners[:i], r.listeners[i+1:]...)
			close(ch)
			break
		}
	}
}

func (r *Runner) publish(ev Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, listener := range r.listeners {
		select {
		case listener <- ev:
		default:
			// Skip if channel is full
		}
	}
}

// Run executes one job and always returns its result. A context that is done
// before the job starts, including during the start delay, cancels it; after
// that the job runs to completion.
func (r *Runner) Run(ctx context.Context, d Descriptor) Result {
	res := Result{ID: uuid.NewString(), URL: d.URL, Region: d.Region, DPR: d.DevicePixelRatio}
	log := logger.WithComponent("job").With().Str("job", res.ID).Logger()

	if err := d.Validate(); err != nil {
		res.fail(err)
		log.Warn().Err(err).Msg("Rejected job")
		r.publish(Event{Type: EventFinished, JobID: res.ID, Result: &res})
		return res
	}

	settings, err := d.output(r.defaults())
	if err != nil {
		res.fail(err)
		r.publish(Event{Type: EventFinished, JobID: res.ID, Result: &res})
		return res
	}
	res.Format = settings.format

	if err := r.sleep(ctx, settings.delay); err != nil {
		res.fail(fmt.Errorf("job not started: %w", err))
		log.Info().Msg("Job cancelled before start")
		r.publish(Event{Type: EventFinished, JobID: res.ID, Result: &res})
		return res
	}

	r.jobMu.Lock()
	defer r.jobMu.Unlock()

	if err := ctx.Err(); err != nil {
		res.fail(fmt.Errorf("job not started: %w", err))
		log.Info().Msg("Job cancelled before start")
		r.publish(Event{Type: EventFinished, JobID: res.ID, Result: &res})
		return res
	}

	started := r.now()
	r.publish(Event{Type: EventStarted, JobID: res.ID})
	log.Info().
		Str("url", d.URL).
		Str("target", d.target()).
		Str("format", string(settings.format)).
		Str("sink", settings.sink).
		Msg("Job started")

	jobCtx := context.WithoutCancel(ctx)
	err = r.execute(jobCtx, d, settings, &res, &log)
	res.Duration = r.now().Sub(started)

	if err != nil {
		res.fail(err)
		log.Error().Err(err).Str("kind", string(res.Kind)).Msg("Job failed")
	} else {
		res.Success = true
		log.Info().
			Str("filename", res.Filename).
			Int("width", res.Width).
			Int("height", res.Height).
			Dur("duration", res.Duration).
			Msg("Job complete")
	}

	r.record(jobCtx, res, settings, started, &log)
	r.report(jobCtx, res, &log)
	r.publish(Event{Type: EventFinished, JobID: res.ID, Result: &res})
	return res
}

func (r *Runner) execute(ctx context.Context, d Descriptor, settings outputSettings, res *Result, log *zerolog.Logger) error {
	sink, ok := r.sinks[settings.sink]
	if !ok {
		return failure.New(failure.DeliveryFailed, "unknown sink %q", settings.sink)
	}

	page, closePage, err := r.page(ctx, d.URL)
	if err != nil {
		return err
	}
	defer closePage()
	res.URL = page.URL()

	req, err := resolve(ctx, page, d)
	if err != nil {
		return err
	}
	req.Debug = req.Debug || r.defaults().Debug
	res.Region, res.DPR = req.Region, req.DPR

	frames, stop, err := r.frames(page, req.Debug)
	if err != nil {
		return err
	}
	defer stop()

	preview := r.preview
	if !req.Debug {
		preview = nil
	}
	if preview != nil {
		preview.Begin(res.ID)
	}

	engine := stitch.New(frames, page,
		stitch.WithSettle(r.cfg.Settle),
		stitch.WithDebugOverlay(page),
		stitch.WithHooks(r.hooks(res.ID, preview)),
	)
	surface, report, err := engine.Capture(ctx, req)
	if report != nil {
		res.Report = report
		res.Mode = report.Mode
		res.Width, res.Height = report.Size.X, report.Size.Y
		res.Tiles, res.Skipped = len(report.Tiles), report.Skipped
		res.Warnings = report.Warnings
	}
	if err != nil {
		return err
	}
	if preview != nil {
		preview.Finish(surface, report)
	}

	data, err := codec.Encode(surface, settings.format, settings.quality)
	if err != nil {
		return failure.Wrap(failure.DeliveryFailed, err, "encode "+string(settings.format))
	}

	res.Filename = filename(d.Filename, res.Mode, settings.format, r.now())
	delivery, err := sink.Deliver(ctx, data, res.Filename)
	if err != nil {
		return err
	}
	res.Delivery = &delivery
	if delivery.Filename != "" {
		res.Filename = delivery.Filename
	}

	log.Debug().
		Str("sink", delivery.Sink).
		Str("location", delivery.Location).
		Int("bytes", delivery.Bytes).
		Msg("Capture delivered")
	return nil
}

// page returns the job's page and a func that releases it
func (r *Runner) page(ctx context.Context, url string) (Page, func(), error) {
	if url == "" {
		r.mu.RLock()
		p := r.attached
		r.mu.RUnlock()
		if p == nil {
			return nil, nil, failure.New(failure.CaptureUnavailable, "no page attached and no url given")
		}
		return p, func() {}, nil
	}
	if r.open == nil {
		return nil, nil, failure.New(failure.CaptureUnavailable, "cannot open %s: no browser", url)
	}
	p, err := r.open(ctx, url)
	if err != nil {
		return nil, nil, tag(failure.CaptureUnavailable, err, "open "+url)
	}
	return p, func() {
		if err := p.Close(); err != nil {
			logger.WithComponent("job").Warn().Err(err).Str("url", url).Msg("Failed to close page")
		}
	}, nil
}

// frames builds the rate-limited frame source for page
func (r *Runner) frames(page Page, debug bool) (capture.FrameSource, func(), error) {
	router := capture.NewRouter(r.cfg.Backend, r.cfg.Display, page, page.ScreenRect)
	if err := router.Start(); err != nil {
		return nil, nil, failure.Wrap(failure.CaptureUnavailable, err, "frame source")
	}
	interval := r.cfg.Interval
	if debug {
		interval = r.cfg.DebugInterval
	}
	return r.pacer.Limit(router, interval), func() { router.Stop() }, nil
}

func (r *Runner) hooks(id string, preview *Preview) stitch.Hooks {
	h := stitch.Hooks{
		Event: func(ev stitch.Event) {
			r.publish(Event{Type: EventProgress, JobID: id, Progress: &ev})
		},
	}
	if preview != nil {
		h.Composite = func(surface *image.RGBA, grid tiles.Grid, tile tiles.Tile, dst image.Rectangle) {
			preview.Tile(surface, grid, tile, dst)
		}
	}
	return h
}

// resolve turns a descriptor into an engine request, measuring the page when
// the descriptor asks for a target or leaves geometry open
func resolve(ctx context.Context, page Page, d Descriptor) (stitch.Request, error) {
	region := d.Region
	if d.target() == TargetElement {
		rect, err := page.Element(ctx, d.Selector)
		if err != nil {
			return stitch.Request{}, tag(failure.CaptureUnavailable, err, "locate "+d.Selector)
		}
		region = rect
	}

	var layout browser.Layout
	if d.needsLayout() {
		l, err := page.Layout(ctx)
		if err != nil {
			return stitch.Request{}, tag(failure.CaptureUnavailable, err, "measure page")
		}
		layout = l
	}

	switch d.target() {
	case TargetViewport:
		region = layout.ViewportRegion()
	case TargetFull:
		region = layout.DocumentRegion()
	}

	if d.target() != TargetRegion {
		// measured targets use the measured page state
		d.ScrollOrigin, d.ViewportSize, d.DocumentSize = layout.Scroll, layout.Viewport, layout.Document
		if d.DevicePixelRatio == 0 {
			d.DevicePixelRatio = layout.DPR
		}
	}
	return d.request(layout, region), nil
}

func (r *Runner) record(ctx context.Context, res Result, settings outputSettings, at time.Time, log *zerolog.Logger) {
	if r.history == nil {
		return
	}
	e := history.Entry{
		ID:        res.ID,
		CreatedAt: at,
		URL:       res.URL,
		Mode:      string(res.Mode),
		Region:    res.Region,
		DPR:       res.DPR,
		Width:     res.Width,
		Height:    res.Height,
		Tiles:     res.Tiles,
		Skipped:   res.Skipped,
		Format:    string(settings.format),
		Sink:      settings.sink,
		Filename:  res.Filename,
		Success:   res.Success,
		ErrorKind: string(res.Kind),
		Error:     res.Error,
		Duration:  res.Duration,
	}
	if res.Delivery != nil {
		e.Location, e.Bytes = res.Delivery.Location, res.Delivery.Bytes
	}
	ctx, cancel := context.WithTimeout(ctx, r.afterTimeout)
	defer cancel()
	if err := r.history.Record(ctx, e); err != nil {
		log.Warn().Err(err).Msg("Failed to record history")
	}
}

func (r *Runner) report(ctx context.Context, res Result, log *zerolog.Logger) {
	n := notify.Notification{Summary: "Capture saved", Urgency: notify.UrgencyNormal}
	if res.Success {
		n.Body = fmt.Sprintf("%s (%dx%d)", res.Filename, res.Width, res.Height)
		if res.Delivery != nil && res.Delivery.Sink == output.SinkClipboard {
			n.Summary = "Capture copied to clipboard"
		}
	} else {
		n.Summary = "Capture failed"
		n.Body = res.Error
		n.Urgency = notify.UrgencyCritical
	}
	ctx, cancel := context.WithTimeout(ctx, r.afterTimeout)
	defer cancel()
	if err := r.notifier.Notify(ctx, n); err != nil {
		log.Debug().Err(err).Msg("Notification not shown")
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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

// tag marks untagged errors with kind
func tag(kind failure.Kind, err error, detail string) error {
	if failure.KindOf(err) != failure.Internal {
		return err
	}
	return failure.Wrap(kind, err, detail)
}

var _ Page = (*browser.Page)(nil)
