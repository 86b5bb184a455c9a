package stitch

import (
	"context"
	"image"

	"github.com/bryanchriswhite/TileShot/internal/capture"
	"github.com/bryanchriswhite/TileShot/internal/failure"
	"github.com/bryanchriswhite/TileShot/internal/geometry"
	"github.com/bryanchriswhite/TileShot/internal/tiles"
	"github.com/rs/zerolog"
)

// captureSingle crops one frame without touching the scroll position
func (e *Engine) captureSingle(ctx context.Context, p plan, surface *image.RGBA, report *Report, log *zerolog.Logger) error {
	req := p.req
	tile := tiles.Tile{
		ScrollTarget: req.Scroll,
		Origin:       req.Region.Origin(),
		Visible:      req.Region.Size(),
	}
	grid := tiles.Grid{Cols: 1, Rows: 1, Viewport: req.Viewport, Tiles: []tiles.Tile{tile}}
	report.Cols, report.Rows = 1, 1

	e.emit(Event{State: StateCapturingTile, Index: 0, Total: 1, Tile: &tile})

	frame, err := e.grab(ctx)
	if err != nil {
		return err
	}
	defer frame.Release()

	offset := req.Region.Origin().Sub(req.Scroll)
	src := geometry.Round(req.Region.Translate(req.Scroll), req.DPR).Add(frame.Bounds().Min)
	placement := geometry.Place(src, image.Point{})

	tr := TileReport{
		Tile:    tile,
		Outcome: capture.ScrollOutcome{Requested: req.Scroll, Actual: req.Scroll},
		Offset:  offset,
	}

	clamped, ok := placement.ClampSource(frame.Bounds())
	if !ok {
		tr.Src, tr.Skipped = placement.Src, true
		report.Tiles = append(report.Tiles, tr)
		return failure.New(failure.ElementOutsideViewport,
			"region %s lies outside the captured %dx%d frame", req.Region, frame.Bounds().Dx(), frame.Bounds().Dy())
	}
	if clamped != placement {
		msg := report.warn("%s: source %v clamped to frame %v", failure.PartialTileOutOfBounds, placement.Src, frame.Bounds())
		log.Warn().Stringer("src", placement.Src).Stringer("clamped", clamped.Src).Msg("Region partly outside the frame")
		e.emit(Event{State: StateCapturingTile, Index: 0, Total: 1, Tile: &tile, Warning: msg})
	}
	clamped, ok = clamped.ClampDest(surface.Bounds())
	if !ok {
		return failure.New(failure.ElementOutsideViewport, "region %s has no pixels on the output surface", req.Region)
	}

	composite(surface, frame, clamped)
	tr.Src, tr.Dst = clamped.Src, clamped.Dst
	report.Tiles = append(report.Tiles, tr)
	report.Composited++

	if e.hooks.Composite != nil {
		e.hooks.Composite(surface, grid, tile, clamped.Dst)
	}
	return nil
}
