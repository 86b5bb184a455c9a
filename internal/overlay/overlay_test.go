package overlay

import (
	"image"
	"image/color"
	"testing"
)

func TestDrawOutline(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 20, 20))
	red := color.RGBA{255, 0, 0, 255}
	DrawOutline(img, image.Rect(5, 5, 15, 15), red, 2)

	for _, p := range []image.Point{{5, 5}, {14, 14}, {6, 10}, {13, 10}, {10, 5}, {10, 14}} {
		if got := img.RGBAAt(p.X, p.Y); got != red {
			t.Fatalf("edge pixel %v: got %v, want %v", p, got, red)
		}
	}
	for _, p := range []image.Point{{7, 7}, {10, 10}, {4, 4}, {15, 15}} {
		if got := img.RGBAAt(p.X, p.Y); got.A != 0 {
			t.Fatalf("pixel %v should be untouched, got %v", p, got)
		}
	}
}

func TestBlendImageOpaque(t *testing.T) {
	dst := image.NewRGBA(image.Rect(0, 0, 4, 4))
	DrawRectangle(dst, image.Rect(1, 1, 3, 3), color.RGBA{10, 20, 30, 255}, 1)

	if got := dst.RGBAAt(2, 2); got != (color.RGBA{10, 20, 30, 255}) {
		t.Fatalf("inside: got %v", got)
	}
	if got := dst.RGBAAt(0, 0); got.A != 0 {
		t.Fatalf("outside: got %v", got)
	}
}

func TestBlendImageHalfOpacity(t *testing.T) {
	dst := image.NewRGBA(image.Rect(0, 0, 1, 1))
	dst.SetRGBA(0, 0, color.RGBA{0, 0, 0, 255})
	DrawRectangle(dst, dst.Bounds(), color.RGBA{200, 200, 200, 255}, 0.5)

	got := dst.RGBAAt(0, 0)
	if got.A != 255 || got.R < 99 || got.R > 101 {
		t.Fatalf("blend: got %v, want about (100,100,100,255)", got)
	}
}

func TestTextWidgetRenders(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 40))
	w := NewTextWidget("label", "0,1", 10, 10)
	if err := w.Render(img); err != nil {
		t.Fatalf("Render: %v", err)
	}

	size := w.Size()
	drawn := 0
	for y := 0; y < img.Bounds().Dy(); y++ {
		for x := 0; x < img.Bounds().Dx(); x++ {
			if img.RGBAAt(x, y).A == 0 {
				continue
			}
			if !image.Pt(x, y).In(image.Rectangle{Max: size}.Add(image.Pt(10, 10))) {
				t.Fatalf("pixel (%d,%d) drawn outside the label box", x, y)
			}
			drawn++
		}
	}
	if drawn == 0 {
		t.Fatalf("nothing drawn")
	}

	w.SetEnabled(false)
	blank := image.NewRGBA(image.Rect(0, 0, 100, 40))
	w.Render(blank)
	if blank.RGBAAt(12, 15).A != 0 {
		t.Fatalf("disabled widget rendered")
	}
}

func TestTileGridWidget(t *testing.T) {
	w := NewTileGridWidget("grid")
	w.SetScale(0.5)
	w.Mark(TileMark{Col: 0, Row: 0, Rect: image.Rect(0, 0, 100, 100)})
	w.Mark(TileMark{Col: 1, Row: 0, Rect: image.Rect(100, 0, 200, 100), Skipped: true})
	w.Mark(TileMark{Col: 0, Row: 1, Rect: image.Rect(0, 100, 100, 200)})

	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	if err := w.Render(img); err != nil {
		t.Fatalf("Render: %v", err)
	}

	tests := []struct {
		p    image.Point
		want color.RGBA
	}{
		{image.Pt(49, 25), doneColor},
		{image.Pt(99, 25), skippedColor},
		{image.Pt(25, 99), currentColor},
	}
	for _, tt := range tests {
		if got := img.RGBAAt(tt.p.X, tt.p.Y); got != tt.want {
			t.Fatalf("pixel %v: got %v, want %v", tt.p, got, tt.want)
		}
	}

	w.Reset()
	if len(w.Marks()) != 0 {
		t.Fatalf("Reset kept %d marks", len(w.Marks()))
	}
}

func TestManagerOrderAndIDs(t *testing.T) {
	m := NewManager()
	a := NewTextWidget("a", "A", 0, 0)
	if err := m.AddWidget(a); err != nil {
		t.Fatalf("AddWidget: %v", err)
	}
	if err := m.AddWidget(NewTextWidget("a", "again", 0, 0)); err == nil {
		t.Fatalf("duplicate ID accepted")
	}

	a.SetEnabled(false)
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	m.Render(img)
	for _, v := range img.Pix {
		if v != 0 {
			t.Fatalf("disabled widget rendered")
		}
	}
}
