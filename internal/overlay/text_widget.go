package overlay

import (
	"image"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// TextWidget draws a short label with an optional background box
type TextWidget struct {
	*BaseWidget
	text      string
	textColor color.RGBA
	bgColor   *color.RGBA
	padding   int
}

// NewTextWidget creates a white label at (x,y)
func NewTextWidget(id, text string, x, y int) *TextWidget {
	return &TextWidget{
		BaseWidget: NewBaseWidget(id, x, y, 1.0),
		text:       text,
		textColor:  color.RGBA{255, 255, 255, 255},
		padding:    3,
	}
}

// Type returns the widget type
func (w *TextWidget) Type() string {
	return "text"
}

// SetText updates the text content
func (w *TextWidget) SetText(text string) {
	w.text = text
}

// Text returns the current text
func (w *TextWidget) Text() string {
	return w.text
}

// SetColor sets the text color
func (w *TextWidget) SetColor(c color.RGBA) {
	w.textColor = c
}

// SetBackground sets the background color (nil for transparent)
func (w *TextWidget) SetBackground(c *color.RGBA) {
	w.bgColor = c
}

// Size returns the rendered size including padding
func (w *TextWidget) Size() image.Point {
	face := basicfont.Face7x13
	width := font.MeasureString(face, w.text).Ceil()
	return image.Pt(width+w.padding*2, face.Height+w.padding*2)
}

// Render draws the label
func (w *TextWidget) Render(img *image.RGBA) error {
	if !w.IsEnabled() || w.text == "" {
		return nil
	}

	face := basicfont.Face7x13
	size := w.Size()

	if w.bgColor != nil {
		DrawRectangle(img, image.Rectangle{Max: size}.Add(image.Pt(w.x, w.y)), *w.bgColor, w.opacity)
	}

	textImg := image.NewRGBA(image.Rect(0, 0, size.X-w.padding*2, face.Height))
	d := &font.Drawer{
		Dst:  textImg,
		Src:  image.NewUniform(w.textColor),
		Face: face,
		Dot:  fixed.P(0, face.Ascent),
	}
	d.DrawString(w.text)

	BlendImage(img, textImg, w.x+w.padding, w.y+w.padding, w.opacity)
	return nil
}

// drawLabel renders text with a background at (x,y), a convenience for other widgets
func drawLabel(img *image.RGBA, text string, x, y int, fg color.RGBA, bg color.RGBA) {
	label := NewTextWidget("", text, x, y)
	label.SetColor(fg)
	label.SetBackground(&bg)
	label.Render(img)
}
