package stitch

import (
	"context"
	"image"

	"github.com/bryanchriswhite/TileShot/internal/failure"
	"github.com/bryanchriswhite/TileShot/internal/geometry"
	"github.com/bryanchriswhite/TileShot/internal/tiles"
	"github.com/rs/zerolog"
)

// captureTiled walks the grid in row-major order. Each tile is composited and
// its frame released before the next scroll is issued.
func (e *Engine) captureTiled(ctx context.Context, p plan, grid tiles.Grid, surface *image.RGBA, c *cosmetics, report *Report, log *zerolog.Logger) error {
	if e.scroll == nil {
		return failure.New(failure.CaptureUnavailable, "tiled capture needs a scroll driver")
	}

	dpr := p.req.DPR
	total := len(grid.Tiles)
	report.Tiles = make([]TileReport, 0, total)

	// running Y of the current row, in physical px
	y := 0

	for i := range grid.Tiles {
		tile := grid.Tiles[i]
		e.emit(Event{State: StateCapturingTile, Index: i, Total: total, Tile: &tile})

		c.moved = true
		outcome, err := e.scroll.ScrollTo(ctx, tile.ScrollTarget)
		if err != nil {
			return tag(failure.CaptureUnavailable, err, "scroll to "+tile.ScrollTarget.String())
		}
		if outcome.Clamped() {
			log.Debug().
				Stringer("tile", tile).
				Stringer("requested", outcome.Requested).
				Stringer("actual", outcome.Actual).
				Msg("Scroll stopped at the document edge")
		}

		offset := tile.Origin.Sub(outcome.Actual)

		if err := e.sleep(ctx, e.settle); err != nil {
			return err
		}

		frame, err := e.grab(ctx)
		if err != nil {
			return err
		}

		src := geometry.Source(offset, tile.Visible, dpr).Add(frame.Bounds().Min)
		dst := image.Pt(geometry.TileDestX(tile.Col, grid.Viewport.Width, dpr), y)
		placement := geometry.Place(src, dst)

		tr := TileReport{Tile: tile, Outcome: outcome, Offset: offset, Src: placement.Src, Dst: placement.Dst}

		clamped, ok := placement.ClampSource(frame.Bounds())
		if ok && clamped != placement {
			msg := report.warn("%s: %s source %v clamped to frame %v",
				failure.PartialTileOutOfBounds, tile, placement.Src, frame.Bounds())
			log.Warn().Stringer("tile", tile).Stringer("src", placement.Src).Stringer("clamped", clamped.Src).Msg("Tile partly outside the frame")
			e.emit(Event{State: StateCapturingTile, Index: i, Total: total, Tile: &tile, Outcome: &outcome, Warning: msg})
		}
		if ok {
			clamped, ok = clamped.ClampDest(surface.Bounds())
		}

		if ok {
			composite(surface, frame, clamped)
			tr.Src, tr.Dst = clamped.Src, clamped.Dst
			report.Composited++
		} else {
			msg := report.warn("%s: %s source %v outside frame %v, skipped",
				failure.PartialTileOutOfBounds, tile, placement.Src, frame.Bounds())
			log.Warn().Stringer("tile", tile).Stringer("src", placement.Src).Msg("Tile outside the frame, skipping")
			e.emit(Event{State: StateCapturingTile, Index: i, Total: total, Tile: &tile, Outcome: &outcome, Warning: msg})
			tr.Skipped = true
			report.Skipped++
		}
		frame.Release()
		report.Tiles = append(report.Tiles, tr)

		log.Debug().
			Stringer("tile", tile).
			Stringer("offset", offset).
			Stringer("src", tr.Src).
			Stringer("dst", tr.Dst).
			Bool("skipped", tr.Skipped).
			Msg("Tile composited")

		if ok && e.hooks.Composite != nil {
			e.hooks.Composite(surface, grid, tile, tr.Dst)
		}

		if grid.LastInRow(tile) {
			y += geometry.RowAdvance(grid.RowHeight(tile.Row), dpr)
		}
	}
	return nil
}

// tag marks untagged collaborator errors with kind
func tag(kind failure.Kind, err error, detail string) error {
	if failure.KindOf(err) != failure.Internal {
		return err
	}
	return failure.Wrap(kind, err, detail)
}
