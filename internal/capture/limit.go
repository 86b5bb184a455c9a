package capture

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Default minimum gaps between two grabs
const (
	DefaultInterval      = 550 * time.Millisecond
	DefaultDebugInterval = 1000 * time.Millisecond
)

// Pacer keeps the gap between grabs across every source it limits, so a
// new job cannot grab sooner than interval after the previous job's last
// grab. Sources from one Pacer must not capture concurrently.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer returns a Pacer whose first grab is not delayed
func NewPacer() *Pacer {
	return &Pacer{limiter: rate.NewLimiter(rate.Every(DefaultInterval), 1)}
}

// Limit wraps src so its captures are at least interval after the previous
// capture through p
func (p *Pacer) Limit(src FrameSource, interval time.Duration) FrameSource {
	if interval <= 0 {
		return src
	}
	p.limiter.SetLimit(rate.Every(interval))
	return &limitedSource{src: src, limiter: p.limiter}
}

type limitedSource struct {
	src     FrameSource
	limiter *rate.Limiter
}

// Limit wraps src so consecutive captures are at least interval apart. The
// first capture is not delayed.
func Limit(src FrameSource, interval time.Duration) FrameSource {
	return NewPacer().Limit(src, interval)
}

func (l *limitedSource) Capture(ctx context.Context) (*Frame, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return l.src.Capture(ctx)
}

func (l *limitedSource) Name() string {
	return l.src.Name()
}
