// Package codec encodes the stitched surface into an output format and
// decodes captured frames for compositing.
package codec

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"

	"github.com/bryanchriswhite/TileShot/internal/logger"
	"github.com/jung-kurt/gofpdf"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// Format is an output image format
type Format string

const (
	PNG  Format = "png"
	JPEG Format = "jpeg"
	TIFF Format = "tiff"
	BMP  Format = "bmp"
	PDF  Format = "pdf"
)

// DefaultQuality is the lossy quality used when none is configured
const DefaultQuality = 95

// ParseFormat accepts a format name or common alias. "lossless" maps to PNG
// and "lossy" to JPEG.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "png", "lossless":
		return PNG, nil
	case "jpeg", "jpg", "lossy":
		return JPEG, nil
	case "tiff", "tif":
		return TIFF, nil
	case "bmp":
		return BMP, nil
	case "pdf":
		return PDF, nil
	default:
		return "", fmt.Errorf("unsupported format: %s (use png, jpeg, tiff, bmp or pdf)", s)
	}
}

// Lossy reports whether quality applies to f
func (f Format) Lossy() bool {
	return f == JPEG
}

// Extension returns the file extension without a dot
func (f Format) Extension() string {
	switch f {
	case JPEG:
		return "jpg"
	case TIFF:
		return "tiff"
	case BMP:
		return "bmp"
	case PDF:
		return "pdf"
	default:
		return "png"
	}
}

// MIMEType returns the media type of f
func (f Format) MIMEType() string {
	switch f {
	case JPEG:
		return "image/jpeg"
	case TIFF:
		return "image/tiff"
	case BMP:
		return "image/bmp"
	case PDF:
		return "application/pdf"
	default:
		return "image/png"
	}
}

// ClampQuality maps quality into 1..100, using DefaultQuality for 0
func ClampQuality(quality int) int {
	switch {
	case quality == 0:
		return DefaultQuality
	case quality < 1:
		return 1
	case quality > 100:
		return 100
	}
	return quality
}

// Encode encodes img in format f. quality is only used for lossy formats.
func Encode(img image.Image, f Format, quality int) ([]byte, error) {
	buf := new(bytes.Buffer)

	var err error
	switch f {
	case PNG, "":
		err = png.Encode(buf, img)
	case JPEG:
		err = jpeg.Encode(buf, img, &jpeg.Options{Quality: ClampQuality(quality)})
	case TIFF:
		err = tiff.Encode(buf, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	case BMP:
		err = bmp.Encode(buf, img)
	case PDF:
		err = encodePDF(buf, img)
	default:
		return nil, fmt.Errorf("unsupported format: %s", f)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", f, err)
	}

	logger.WithComponent("codec").Debug().
		Str("format", string(f)).
		Int("width", img.Bounds().Dx()).
		Int("height", img.Bounds().Dy()).
		Int("bytes", buf.Len()).
		Msg("Encoded image")
	return buf.Bytes(), nil
}

// encodePDF writes a single page sized to the image, one point per pixel,
// embedding the image as PNG
func encodePDF(buf *bytes.Buffer, img image.Image) error {
	b := img.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: w, Ht: h},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreator("TileShot", true)
	pdf.AddPage()

	raw := new(bytes.Buffer)
	if err := png.Encode(raw, img); err != nil {
		return err
	}
	opt := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("capture", opt, raw)
	pdf.ImageOptions("capture", 0, 0, w, h, false, opt, 0, "")
	if err := pdf.Error(); err != nil {
		return err
	}

	return pdf.Output(buf)
}

// Decode decodes a PNG or JPEG frame
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	return img, nil
}
