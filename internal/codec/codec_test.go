package codec

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"golang.org/x/image/tiff"
)

func checker(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x+y)%2 == 0 {
				img.Set(x, y, color.RGBA{200, 10, 10, 255})
			} else {
				img.Set(x, y, color.RGBA{10, 10, 200, 255})
			}
		}
	}
	return img
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"", PNG},
		{"lossless", PNG},
		{"PNG", PNG},
		{"jpg", JPEG},
		{"lossy", JPEG},
		{"tif", TIFF},
		{"bmp", BMP},
		{"pdf", PDF},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if err != nil {
			t.Fatalf("ParseFormat(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
	if _, err := ParseFormat("webp"); err == nil {
		t.Fatal("ParseFormat(webp): expected error")
	}
}

func TestClampQuality(t *testing.T) {
	tests := map[int]int{0: DefaultQuality, -3: 1, 1: 1, 50: 50, 100: 100, 250: 100}
	for in, want := range tests {
		if got := ClampQuality(in); got != want {
			t.Errorf("ClampQuality(%d): got %d, want %d", in, got, want)
		}
	}
}

func TestEncodePNGIsLossless(t *testing.T) {
	src := checker(8, 6)
	data, err := Encode(src, PNG, 10)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	img, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if img.Bounds() != src.Bounds() {
		t.Fatalf("bounds: got %v, want %v", img.Bounds(), src.Bounds())
	}
	for y := 0; y < 6; y++ {
		for x := 0; x < 8; x++ {
			r1, g1, b1, _ := img.At(x, y).RGBA()
			r2, g2, b2, _ := src.At(x, y).RGBA()
			if r1 != r2 || g1 != g2 || b1 != b2 {
				t.Fatalf("pixel (%d,%d) differs", x, y)
			}
		}
	}
}

func TestEncodeJPEGQualityAffectsSize(t *testing.T) {
	src := checker(64, 64)
	low, err := Encode(src, JPEG, 5)
	if err != nil {
		t.Fatalf("Encode q5: %v", err)
	}
	high, err := Encode(src, JPEG, 100)
	if err != nil {
		t.Fatalf("Encode q100: %v", err)
	}
	if len(low) >= len(high) {
		t.Fatalf("quality 5 (%d bytes) should be smaller than quality 100 (%d bytes)", len(low), len(high))
	}
	if !JPEG.Lossy() || PNG.Lossy() {
		t.Fatal("only JPEG is lossy")
	}
}

func TestEncodeOtherFormats(t *testing.T) {
	src := checker(16, 9)

	data, err := Encode(src, TIFF, 0)
	if err != nil {
		t.Fatalf("Encode tiff: %v", err)
	}
	img, err := tiff.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("tiff.Decode: %v", err)
	}
	if img.Bounds().Dx() != 16 || img.Bounds().Dy() != 9 {
		t.Fatalf("tiff bounds: got %v", img.Bounds())
	}

	data, err = Encode(src, BMP, 0)
	if err != nil {
		t.Fatalf("Encode bmp: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("BM")) {
		t.Fatal("bmp output should start with BM")
	}

	data, err = Encode(src, PDF, 0)
	if err != nil {
		t.Fatalf("Encode pdf: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Fatal("pdf output should start with %PDF-")
	}
}

func TestFormatMetadata(t *testing.T) {
	if JPEG.Extension() != "jpg" || JPEG.MIMEType() != "image/jpeg" {
		t.Fatal("jpeg metadata mismatch")
	}
	if PDF.Extension() != "pdf" || PDF.MIMEType() != "application/pdf" {
		t.Fatal("pdf metadata mismatch")
	}
}

func TestDecodeGarbage(t *testing.T) {
	if _, err := Decode([]byte("not an image")); err == nil {
		t.Fatal("Decode: expected error")
	}
}
