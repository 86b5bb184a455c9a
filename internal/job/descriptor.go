// Package job runs capture jobs end to end: it resolves a descriptor against
// a browser page, runs the stitch engine, encodes the surface, delivers the
// bytes and records the outcome.
package job

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/bryanchriswhite/TileShot/internal/browser"
	"github.com/bryanchriswhite/TileShot/internal/codec"
	"github.com/bryanchriswhite/TileShot/internal/config"
	"github.com/bryanchriswhite/TileShot/internal/failure"
	"github.com/bryanchriswhite/TileShot/internal/geometry"
	"github.com/bryanchriswhite/TileShot/internal/output"
	"github.com/bryanchriswhite/TileShot/internal/stitch"
)

// What a descriptor captures
const (
	// TargetRegion uses the descriptor's own geometry
	TargetRegion   = "region"
	TargetElement  = "element"
	TargetViewport = "viewport"
	TargetFull     = "full"
)

// Descriptor is a capture request. The geometry fields are the wire shape
// shared with page scripts; the rest selects the page and the output.
type Descriptor struct {
	Region           geometry.Rect  `json:"region"`
	ScrollOrigin     geometry.Point `json:"scrollOrigin"`
	DocumentSize     geometry.Size  `json:"documentSize"`
	ViewportSize     geometry.Size  `json:"viewportSize"`
	DevicePixelRatio float64        `json:"devicePixelRatio"`
	Mode             stitch.Mode    `json:"mode,omitempty"`
	Debug            bool           `json:"debug"`

	// URL opens a fresh page. Empty uses the runner's attached page.
	URL string `json:"url,omitempty"`
	// Target measures the region on the page instead of taking Region as is
	Target   string `json:"target,omitempty"`
	Selector string `json:"selector,omitempty"`

	Format   string `json:"format,omitempty"`
	Quality  int    `json:"quality,omitempty"`
	Sink     string `json:"sink,omitempty"`
	Filename string `json:"filename,omitempty"`
	// DelayMs waits before the job starts. Zero uses the default delay.
	DelayMs int `json:"delayMs,omitempty"`
}

func (d Descriptor) target() string {
	if d.Target == "" {
		if d.Selector != "" {
			return TargetElement
		}
		return TargetRegion
	}
	return strings.ToLower(d.Target)
}

// Validate rejects descriptors that can never run
func (d Descriptor) Validate() error {
	switch d.target() {
	case TargetRegion, TargetViewport, TargetFull:
	case TargetElement:
		if d.Selector == "" {
			return failure.New(failure.InvalidRegion, "element target needs a selector")
		}
	default:
		return failure.New(failure.InvalidRegion, "unknown target %q (use region, element, viewport or full)", d.Target)
	}
	switch d.Mode {
	case "", stitch.ModeAuto, stitch.ModeSingle, stitch.ModeTiled:
	default:
		return failure.New(failure.InvalidRegion, "unknown mode %q (use auto, single or tiled)", d.Mode)
	}
	if d.DelayMs < 0 {
		return failure.New(failure.InvalidRegion, "negative delay %dms", d.DelayMs)
	}
	if d.Filename != "" && d.Filename != filepath.Base(d.Filename) {
		return failure.New(failure.DeliveryFailed, "filename %q must not contain a directory", d.Filename)
	}
	return nil
}

// request builds the engine request, taking whatever the descriptor leaves
// open from the measured layout l
func (d Descriptor) request(l browser.Layout, region geometry.Rect) stitch.Request {
	req := stitch.Request{
		Region:   region,
		Scroll:   d.ScrollOrigin,
		Viewport: d.ViewportSize,
		Document: d.DocumentSize,
		DPR:      d.DevicePixelRatio,
		Mode:     d.Mode,
		Debug:    d.Debug,
	}
	if req.Viewport.Empty() {
		req.Viewport = l.Viewport
		req.Scroll = l.Scroll
	}
	if req.Document.Empty() {
		req.Document = l.Document
	}
	if req.DPR == 0 {
		req.DPR = l.DPR
	}
	if req.Mode == "" {
		req.Mode = stitch.ModeAuto
	}
	return req
}

// needsLayout reports whether the page must be measured
func (d Descriptor) needsLayout() bool {
	return d.target() != TargetRegion || d.ViewportSize.Empty() || d.DocumentSize.Empty() || d.DevicePixelRatio == 0
}

// Defaults fill descriptor fields that are left empty
type Defaults struct {
	Format  codec.Format
	Quality int
	Sink    string
	Delay   time.Duration
	Debug   bool
}

// PreferenceDefaults converts saved preferences. An unparsable format falls
// back to PNG.
func PreferenceDefaults(p config.Preferences) Defaults {
	f, err := codec.ParseFormat(p.Format)
	if err != nil {
		f = codec.PNG
	}
	return Defaults{
		Format:  f,
		Quality: p.Quality,
		Sink:    p.Sink,
		Delay:   time.Duration(p.DelayMs) * time.Millisecond,
		Debug:   p.Debug,
	}
}

// outputSettings are the resolved encoding and delivery choices of a job
type outputSettings struct {
	format  codec.Format
	quality int
	sink    string
	delay   time.Duration
}

func (d Descriptor) output(def Defaults) (outputSettings, error) {
	s := outputSettings{format: def.Format, quality: def.Quality, sink: def.Sink, delay: def.Delay}
	if d.Format != "" {
		f, err := codec.ParseFormat(d.Format)
		if err != nil {
			return s, failure.Wrap(failure.DeliveryFailed, err, "format")
		}
		s.format = f
	}
	if s.format == "" {
		s.format = codec.PNG
	}
	if d.Quality != 0 {
		s.quality = d.Quality
	}
	s.quality = codec.ClampQuality(s.quality)
	if d.Sink != "" {
		s.sink = d.Sink
	}
	if s.sink == "" {
		s.sink = output.SinkFile
	}
	if d.DelayMs > 0 {
		s.delay = time.Duration(d.DelayMs) * time.Millisecond
	}
	return s, nil
}

// DefaultFilename is tileshot-<mode>-<YYYYMMDD-HHMMSS>.<ext>
func DefaultFilename(mode stitch.Mode, f codec.Format, at time.Time) string {
	return fmt.Sprintf("tileshot-%s-%s.%s", mode, at.Format("20060102-150405"), f.Extension())
}

// filename returns the requested name with the format's extension, or the
// default name
func filename(requested string, mode stitch.Mode, f codec.Format, at time.Time) string {
	if requested == "" {
		return DefaultFilename(mode, f, at)
	}
	if filepath.Ext(requested) == "" {
		return requested + "." + f.Extension()
	}
	return requested
}

// Result is the outcome of one job
type Result struct {
	ID       string           `json:"id"`
	Success  bool             `json:"success"`
	Error    string           `json:"error,omitempty"`
	Kind     failure.Kind     `json:"kind,omitempty"`
	URL      string           `json:"url,omitempty"`
	Mode     stitch.Mode      `json:"mode,omitempty"`
	Region   geometry.Rect    `json:"region"`
	DPR      float64          `json:"dpr"`
	Format   codec.Format     `json:"format,omitempty"`
	Filename string           `json:"filename,omitempty"`
	Delivery *output.Delivery `json:"delivery,omitempty"`
	Width    int              `json:"width"`
	Height   int              `json:"height"`
	Tiles    int              `json:"tiles"`
	Skipped  int              `json:"skipped"`
	Warnings []string         `json:"warnings,omitempty"`
	Duration time.Duration    `json:"duration"`

	Report *stitch.Report `json:"-"`
}

func (r *Result) fail(err error) {
	r.Success = false
	r.Error = failure.Message(err)
	r.Kind = failure.KindOf(err)
}

// Event is published to subscribers while jobs run
type Event struct {
	Type     string        `json:"type"`
	JobID    string        `json:"job_id"`
	Progress *stitch.Event `json:"progress,omitempty"`
	Result   *Result       `json:"result,omitempty"`
}

// Event types
const (
	EventStarted  = "started"
	EventProgress = "progress"
	EventFinished = "finished"
)
