package capture

import (
	"context"
	"fmt"
	"sync"

	"github.com/bryanchriswhite/TileShot/internal/logger"
)

// Backend names accepted by the router
const (
	BackendCDP     = "cdp"
	BackendX11     = "x11"
	BackendDesktop = "desktop"
)

// Router routes capture requests to the configured backend, falling back to
// the DevTools screenshot when a screen-grabbing backend is not available
type Router struct {
	preferred string
	cdp       FrameSource
	backends  map[string]Backend

	mu      sync.RWMutex
	active  FrameSource
	started bool
}

// NewRouter creates a router. cdp is the browser's own screenshot source and
// is always available; region locates the viewport for screen grabs.
func NewRouter(preferred, display string, cdp FrameSource, region RegionFunc) *Router {
	return &Router{
		preferred: preferred,
		cdp:       cdp,
		backends: map[string]Backend{
			BackendX11:     NewX11Capturer(display, region),
			BackendDesktop: NewDesktopCapturer(region),
		},
	}
}

// Start initializes the preferred backend
func (r *Router) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil
	}

	log := logger.WithComponent("capture-router")

	r.active = r.cdp
	if backend, ok := r.backends[r.preferred]; ok {
		if err := backend.Start(); err != nil {
			log.Warn().Err(err).Str("backend", r.preferred).Msg("Capture backend not available, using cdp")
		} else if !backend.IsAvailable() {
			log.Warn().Str("backend", r.preferred).Msg("Capture backend cannot locate the viewport, using cdp")
			backend.Stop()
		} else {
			r.active = backend
		}
	} else if r.preferred != "" && r.preferred != BackendCDP {
		log.Warn().Str("backend", r.preferred).Msg("Unknown capture backend, using cdp")
	}

	if r.active == nil {
		return fmt.Errorf("no capture backends available")
	}

	log.Info().Str("backend", r.active.Name()).Msg("Capture backend selected")
	r.started = true
	return nil
}

// Stop stops all backends
func (r *Router) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, b := range r.backends {
		b.Stop()
	}
	r.active = nil
	r.started = false
	return nil
}

// Capture grabs a frame from the active backend
func (r *Router) Capture(ctx context.Context) (*Frame, error) {
	r.mu.RLock()
	active := r.active
	r.mu.RUnlock()

	if active == nil {
		return nil, fmt.Errorf("capture router not started")
	}
	return active.Capture(ctx)
}

// Name returns the active backend name
func (r *Router) Name() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.active == nil {
		return "router"
	}
	return r.active.Name()
}
