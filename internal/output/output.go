package output

import (
	"context"
	"image"
)

// Output receives preview frames while a capture is being stitched
type Output interface {
	// Start initializes the output mechanism
	Start() error

	// Stop cleanly shuts down the output
	Stop() error

	// WriteFrame sends a frame to the output. The frame may be reused by the
	// caller once WriteFrame returns.
	WriteFrame(frame *image.RGBA) error

	// Name returns a human-readable name for this output type
	Name() string

	// IsRunning returns true if the output is currently active
	IsRunning() bool
}

// Config holds preview output configuration
type Config struct {
	// MaxWidth and MaxHeight bound preview frames; larger frames are scaled down
	MaxWidth  int
	MaxHeight int
	Quality   int
}

// Sink delivers an encoded capture
type Sink interface {
	// Deliver persists data under filename. Failures are DeliveryFailed.
	Deliver(ctx context.Context, data []byte, filename string) (Delivery, error)

	// Name returns the sink name
	Name() string
}

// Delivery describes where a capture ended up
type Delivery struct {
	Sink     string `json:"sink"`
	Location string `json:"location"`
	// Filename is the name actually used, which differs from the requested
	// one when that was taken
	Filename string `json:"filename"`
	Bytes    int    `json:"bytes"`
}
