package job

import (
	"fmt"
	"image"

	"github.com/bryanchriswhite/TileShot/internal/logger"
	"github.com/bryanchriswhite/TileShot/internal/output"
	"github.com/bryanchriswhite/TileShot/internal/overlay"
	"github.com/bryanchriswhite/TileShot/internal/stitch"
	"github.com/bryanchriswhite/TileShot/internal/tiles"
	"golang.org/x/image/draw"
)

// Preview streams the surface of a debug job as it grows. Frames are scaled
// down first and then annotated with the tile grid, so the delivered image
// never carries annotations.
type Preview struct {
	out     *output.MJPEGOutput
	widgets *overlay.Manager
	grid    *overlay.TileGridWidget
	status  *overlay.TextWidget
}

// NewPreview annotates frames written to out
func NewPreview(out *output.MJPEGOutput) *Preview {
	p := &Preview{
		out:     out,
		widgets: overlay.NewManager(),
		grid:    overlay.NewTileGridWidget("tiles"),
		status:  overlay.NewTextWidget("status", "", 6, 6),
	}
	p.widgets.AddWidget(p.grid)
	p.widgets.AddWidget(p.status)
	return p
}

// Begin clears the annotations of the previous job
func (p *Preview) Begin(jobID string) {
	p.grid.Reset()
	if len(jobID) > 8 {
		jobID = jobID[:8]
	}
	p.status.SetText("job " + jobID)
}

// Tile marks a composited tile and writes the surface
func (p *Preview) Tile(surface *image.RGBA, grid tiles.Grid, tile tiles.Tile, dst image.Rectangle) {
	p.grid.Mark(overlay.TileMark{Col: tile.Col, Row: tile.Row, Rect: dst})
	p.status.SetText(fmt.Sprintf("tile %d,%d  %d/%d", tile.Col, tile.Row, tile.Row*grid.Cols+tile.Col+1, len(grid.Tiles)))
	p.write(surface)
}

// Finish redraws the grid from the report, including skipped tiles
func (p *Preview) Finish(surface *image.RGBA, report *stitch.Report) {
	p.grid.Reset()
	for _, tr := range report.Tiles {
		p.grid.Mark(overlay.TileMark{Col: tr.Tile.Col, Row: tr.Tile.Row, Rect: tr.Dst, Skipped: tr.Skipped})
	}
	p.status.SetText(fmt.Sprintf("done %dx%d  skipped %d", report.Size.X, report.Size.Y, report.Skipped))
	p.write(surface)
}

func (p *Preview) write(surface *image.RGBA) {
	if !p.out.IsRunning() || surface.Bounds().Empty() {
		return
	}
	size := p.out.Fit(surface.Bounds().Size())
	frame := image.NewRGBA(image.Rectangle{Max: size})
	draw.ApproxBiLinear.Scale(frame, frame.Bounds(), surface, surface.Bounds(), draw.Src, nil)

	p.grid.SetScale(float64(size.X) / float64(surface.Bounds().Dx()))
	if err := p.widgets.Render(frame); err != nil {
		logger.WithComponent("preview").Debug().Err(err).Msg("Overlay render failed")
	}
	if err := p.out.WriteFrame(frame); err != nil {
		logger.WithComponent("preview").Debug().Err(err).Msg("Preview frame dropped")
	}
}
