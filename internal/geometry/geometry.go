// Package geometry converts CSS-pixel page geometry into the physical-pixel
// rectangles used to extract and place captured frames.
//
// Source offsets are floored and source sizes ceiled so neighbouring tiles
// never leave a sub-pixel gap between them. A single-shot crop has no
// neighbours and uses symmetric rounding instead.
package geometry

import (
	"fmt"
	"image"
	"math"

	"github.com/bryanchriswhite/TileShot/internal/failure"
)

// MaxRasterDimension is the largest output surface edge, in physical pixels
const MaxRasterDimension = 16384

// epsilon absorbs float noise such as 700*1.1 = 770.0000000000001
const epsilon = 1e-9

// Point is a position in CSS pixels
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Add returns p+q
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Sub returns p-q
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

func (p Point) String() string {
	return fmt.Sprintf("(%g,%g)", p.X, p.Y)
}

// Size is a width and height in CSS pixels
type Size struct {
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// Empty reports whether either dimension is not positive
func (s Size) Empty() bool {
	return !(s.Width > 0 && s.Height > 0)
}

// Fits reports whether s fits inside o on both axes
func (s Size) Fits(o Size) bool {
	return s.Width <= o.Width && s.Height <= o.Height
}

func (s Size) String() string {
	return fmt.Sprintf("%gx%g", s.Width, s.Height)
}

// Rect is a rectangle in CSS pixels. Whether it is page-absolute or
// viewport-relative is up to the caller.
type Rect struct {
	X      float64 `json:"x" yaml:"x"`
	Y      float64 `json:"y" yaml:"y"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// RectAt builds a Rect from an origin and a size
func RectAt(origin Point, size Size) Rect {
	return Rect{X: origin.X, Y: origin.Y, Width: size.Width, Height: size.Height}
}

// Origin returns the top-left corner
func (r Rect) Origin() Point {
	return Point{X: r.X, Y: r.Y}
}

// Size returns the dimensions of r
func (r Rect) Size() Size {
	return Size{Width: r.Width, Height: r.Height}
}

// Translate moves r by -p, e.g. from page-absolute to viewport-relative
func (r Rect) Translate(p Point) Rect {
	return Rect{X: r.X - p.X, Y: r.Y - p.Y, Width: r.Width, Height: r.Height}
}

func (r Rect) String() string {
	return fmt.Sprintf("%s+%s", r.Size(), r.Origin())
}

// ValidateRegion rejects regions with a non-positive or non-finite dimension
func ValidateRegion(r Rect) error {
	for _, v := range []float64{r.X, r.Y, r.Width, r.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return failure.New(failure.InvalidRegion, "region %s has a non-finite coordinate", r)
		}
	}
	if r.Size().Empty() {
		return failure.New(failure.InvalidRegion, "region %s must have positive width and height", r.Size())
	}
	return nil
}

// ValidateDPR rejects non-positive device pixel ratios
func ValidateDPR(dpr float64) error {
	if !(dpr > 0) || math.IsInf(dpr, 0) {
		return failure.New(failure.InvalidRegion, "device pixel ratio %g must be positive", dpr)
	}
	return nil
}

func floorPx(v float64) int {
	return int(math.Floor(v + epsilon))
}

func ceilPx(v float64) int {
	return int(math.Ceil(v - epsilon))
}

func roundPx(v float64) int {
	return int(math.Round(v))
}

// Round scales r by dpr with symmetric rounding on every field
func Round(r Rect, dpr float64) image.Rectangle {
	x, y := roundPx(r.X*dpr), roundPx(r.Y*dpr)
	return image.Rect(x, y, x+roundPx(r.Width*dpr), y+roundPx(r.Height*dpr))
}

// Source scales a tile's extraction rectangle: offset floored, size ceiled
func Source(offset Point, size Size, dpr float64) image.Rectangle {
	x, y := floorPx(offset.X*dpr), floorPx(offset.Y*dpr)
	return image.Rect(x, y, x+ceilPx(size.Width*dpr), y+ceilPx(size.Height*dpr))
}

// TileDestX is the physical X at which column col is placed
func TileDestX(col int, viewportWidth, dpr float64) int {
	return floorPx(float64(col) * viewportWidth * dpr)
}

// RowAdvance is how far the running Y offset moves after a row of the given CSS height.
// Callers must sum these instead of multiplying the row index by the viewport height.
func RowAdvance(rowHeight, dpr float64) int {
	return ceilPx(rowHeight * dpr)
}

// SurfaceSize is the physical output size for a region: rounded for a
// single-shot crop, ceiled for a tiled capture
func SurfaceSize(size Size, dpr float64, tiled bool) image.Point {
	if tiled {
		return image.Pt(ceilPx(size.Width*dpr), ceilPx(size.Height*dpr))
	}
	return image.Pt(roundPx(size.Width*dpr), roundPx(size.Height*dpr))
}

// CheckRaster fails with RasterTooLarge when either axis exceeds MaxRasterDimension
func CheckRaster(p image.Point) error {
	if p.X > MaxRasterDimension || p.Y > MaxRasterDimension {
		return failure.New(failure.RasterTooLarge,
			"output %dx%d exceeds the %d px raster limit", p.X, p.Y, MaxRasterDimension)
	}
	if p.X <= 0 || p.Y <= 0 {
		return failure.New(failure.InvalidRegion, "output %dx%d has no pixels", p.X, p.Y)
	}
	return nil
}
