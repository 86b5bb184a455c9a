package browser

import (
	"context"
	"fmt"

	"github.com/bryanchriswhite/TileShot/internal/capture"
	"github.com/bryanchriswhite/TileShot/internal/codec"
	"github.com/bryanchriswhite/TileShot/internal/failure"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
)

// FrameOptions selects how the DevTools screenshot is encoded on the wire.
// PNG is exact; JPEG is faster for large viewports but lossy.
type FrameOptions struct {
	Format  codec.Format
	Quality int
}

func (o FrameOptions) request() *proto.PageCaptureScreenshot {
	req := &proto.PageCaptureScreenshot{
		Format:           proto.PageCaptureScreenshotFormatPng,
		OptimizeForSpeed: true,
	}
	if o.Format == codec.JPEG {
		req.Format = proto.PageCaptureScreenshotFormatJpeg
		req.Quality = gson.Int(codec.ClampQuality(o.Quality))
	}
	return req
}

// Name returns the frame source name
func (p *Page) Name() string {
	return capture.BackendCDP
}

// Capture grabs the visible viewport at device resolution
func (p *Page) Capture(ctx context.Context) (*capture.Frame, error) {
	res, err := p.frames.request().Call(p.page.Context(ctx))
	if err != nil {
		return nil, failure.Wrap(failure.CaptureUnavailable, err, "devtools screenshot")
	}

	img, err := codec.Decode(res.Data)
	if err != nil {
		return nil, failure.Wrap(failure.CaptureUnavailable, err, fmt.Sprintf("decode %d byte screenshot", len(res.Data)))
	}
	return capture.NewFrame(img, nil), nil
}
