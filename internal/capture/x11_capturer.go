package capture

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/TileShot/internal/logger"
)

// X11Capturer grabs the page viewport from the X11 root window. It is used
// when Chrome runs headful on a real or virtual (Xvfb) display.
type X11Capturer struct {
	display string
	region  RegionFunc

	conn   *xgb.Conn
	root   xproto.Window
	screen *xproto.ScreenInfo
	mu     sync.Mutex
}

// NewX11Capturer creates a capturer for the given display (empty = $DISPLAY)
func NewX11Capturer(display string, region RegionFunc) *X11Capturer {
	return &X11Capturer{display: display, region: region}
}

// Start connects to the X server
func (c *X11Capturer) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	conn, err := xgb.NewConnDisplay(c.display)
	if err != nil {
		return fmt.Errorf("failed to connect to X server: %w", err)
	}

	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	c.conn = conn
	c.screen = screen
	c.root = screen.Root

	logger.WithComponent("x11-capturer").Info().
		Str("display", c.display).
		Uint16("width", screen.WidthInPixels).
		Uint16("height", screen.HeightInPixels).
		Uint8("depth", screen.RootDepth).
		Msg("Connected to X server")
	return nil
}

// Stop closes the X11 connection
func (c *X11Capturer) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	return nil
}

// Name returns the capturer name
func (c *X11Capturer) Name() string {
	return "x11"
}

// IsAvailable checks if X11 capture is available
func (c *X11Capturer) IsAvailable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && c.region != nil
}

// Capture grabs the current viewport rectangle
func (c *X11Capturer) Capture(ctx context.Context) (*Frame, error) {
	if c.region == nil {
		return nil, fmt.Errorf("x11 capturer has no viewport region")
	}
	rect, err := c.region(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to locate viewport: %w", err)
	}

	img, err := c.CaptureRegion(rect.Min.X, rect.Min.Y, rect.Dx(), rect.Dy())
	if err != nil {
		return nil, err
	}
	return NewFrame(img, nil), nil
}

// CaptureRegion captures a region of the root window
func (c *X11Capturer) CaptureRegion(x, y, width, height int) (*image.RGBA, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, fmt.Errorf("x11 capturer not started")
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid capture region %dx%d", width, height)
	}

	reply, err := xproto.GetImage(
		c.conn,
		xproto.ImageFormatZPixmap,
		xproto.Drawable(c.root),
		int16(x), int16(y),
		uint16(width), uint16(height),
		0xffffffff,
	).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get image: %w", err)
	}

	logger.WithComponent("x11-capturer").Debug().
		Int("x", x).
		Int("y", y).
		Int("width", width).
		Int("height", height).
		Msg("Captured root region")

	return convertImageData(reply.Data, width, height, int(c.screen.RootDepth))
}

// convertImageData converts 24/32-bit BGRX rows to RGBA
func convertImageData(data []byte, width, height, depth int) (*image.RGBA, error) {
	if depth != 24 && depth != 32 {
		return nil, fmt.Errorf("unsupported X11 depth %d", depth)
	}
	if len(data) < width*height*4 {
		return nil, fmt.Errorf("short X11 image: %d bytes for %dx%d", len(data), width, height)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		src := data[y*width*4 : (y+1)*width*4]
		dst := img.Pix[y*img.Stride : y*img.Stride+width*4]
		for i := 0; i < len(src); i += 4 {
			dst[i] = src[i+2]
			dst[i+1] = src[i+1]
			dst[i+2] = src[i]
			dst[i+3] = 255
		}
	}
	return img, nil
}
