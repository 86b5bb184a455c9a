// Package tiles plans the viewport-sized grid a capture walks when a region
// is larger than what one screen grab covers.
package tiles

import (
	"fmt"
	"math"

	"github.com/bryanchriswhite/TileShot/internal/failure"
	"github.com/bryanchriswhite/TileShot/internal/geometry"
)

// Tile is one cell of the capture grid
type Tile struct {
	Col int `json:"col"`
	Row int `json:"row"`

	// ScrollTarget is the page-absolute scroll position requested for this tile
	ScrollTarget geometry.Point `json:"scroll_target"`

	// Origin is where the tile's content starts, page-absolute
	Origin geometry.Point `json:"origin"`

	// Visible is the part of the region this tile covers, clipped at the region edge
	Visible geometry.Size `json:"visible"`
}

func (t Tile) String() string {
	return fmt.Sprintf("tile(%d,%d)", t.Col, t.Row)
}

// Grid is an ordered, row-major tile plan
type Grid struct {
	Cols     int
	Rows     int
	Viewport geometry.Size
	Tiles    []Tile
}

// At returns the tile at (col,row)
func (g Grid) At(col, row int) Tile {
	return g.Tiles[row*g.Cols+col]
}

// RowHeight is the visible CSS height of row r
func (g Grid) RowHeight(r int) float64 {
	return g.At(0, r).Visible.Height
}

// LastInRow reports whether t closes its row
func (g Grid) LastInRow(t Tile) bool {
	return t.Col == g.Cols-1
}

// count is ceil(total/step) with float noise absorbed
func count(total, step float64) int {
	n := int(math.Ceil(total/step - 1e-9))
	if n < 1 {
		n = 1
	}
	return n
}

// Plan divides region into viewport-sized tiles. A region that fits the
// viewport on both axes gets one tile targeting the current scroll, so the
// page is not moved.
func Plan(region geometry.Rect, viewport geometry.Size, current geometry.Point) (Grid, error) {
	if err := geometry.ValidateRegion(region); err != nil {
		return Grid{}, err
	}
	if viewport.Empty() {
		return Grid{}, failure.New(failure.InvalidRegion, "viewport %s must have positive width and height", viewport)
	}

	if region.Size().Fits(viewport) {
		return Grid{
			Cols:     1,
			Rows:     1,
			Viewport: viewport,
			Tiles: []Tile{{
				ScrollTarget: current,
				Origin:       region.Origin(),
				Visible:      region.Size(),
			}},
		}, nil
	}

	cols := count(region.Width, viewport.Width)
	rows := count(region.Height, viewport.Height)

	grid := Grid{
		Cols:     cols,
		Rows:     rows,
		Viewport: viewport,
		Tiles:    make([]Tile, 0, cols*rows),
	}
	for r := 0; r < rows; r++ {
		dy := float64(r) * viewport.Height
		h := math.Min(viewport.Height, region.Height-dy)
		for c := 0; c < cols; c++ {
			dx := float64(c) * viewport.Width
			w := math.Min(viewport.Width, region.Width-dx)
			origin := region.Origin().Add(geometry.Point{X: dx, Y: dy})
			grid.Tiles = append(grid.Tiles, Tile{
				Col:          c,
				Row:          r,
				ScrollTarget: origin,
				Origin:       origin,
				Visible:      geometry.Size{Width: w, Height: h},
			})
		}
	}
	return grid, nil
}
