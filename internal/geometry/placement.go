package geometry

import "image"

// Placement pairs a source rectangle inside a captured frame with the
// destination rectangle it is copied to on the output surface. Both always
// have the same size.
type Placement struct {
	Src image.Rectangle
	Dst image.Rectangle
}

// Place builds a placement whose destination starts at dst
func Place(src image.Rectangle, dst image.Point) Placement {
	return Placement{Src: src, Dst: image.Rectangle{Min: dst, Max: dst.Add(src.Size())}}
}

// ClampSource trims the placement so its source lies inside frame. The
// destination loses exactly the rows and columns the source lost. ok is
// false when nothing is left.
func (p Placement) ClampSource(frame image.Rectangle) (Placement, bool) {
	src, dst, ok := trim(p.Src, p.Dst, frame)
	return Placement{Src: src, Dst: dst}, ok
}

// ClampDest trims the placement so its destination lies inside surface
func (p Placement) ClampDest(surface image.Rectangle) (Placement, bool) {
	dst, src, ok := trim(p.Dst, p.Src, surface)
	return Placement{Src: src, Dst: dst}, ok
}

// Empty reports whether the placement copies no pixels
func (p Placement) Empty() bool {
	return p.Src.Empty()
}

// trim intersects a with bounds and cuts the same amount from each edge of b
func trim(a, b, bounds image.Rectangle) (image.Rectangle, image.Rectangle, bool) {
	clipped := a.Intersect(bounds)
	if clipped.Empty() {
		return image.Rectangle{}, image.Rectangle{}, false
	}
	origin := b.Min.Add(clipped.Min.Sub(a.Min))
	return clipped, image.Rectangle{Min: origin, Max: origin.Add(clipped.Size())}, true
}
