package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bryanchriswhite/TileShot/internal/geometry"
	"github.com/bryanchriswhite/TileShot/internal/logger"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// DefaultNavigateTimeout bounds navigation and the initial load wait
const DefaultNavigateTimeout = 30 * time.Second

// PageOptions describes how a page is opened
type PageOptions struct {
	URL      string
	Viewport geometry.Size
	DPR      float64
	// Frames selects the CDP screenshot encoding
	Frames FrameOptions
}

// Page is one browser tab prepared for capture
type Page struct {
	page   *rod.Page
	url    string
	frames FrameOptions
}

// OpenPage creates a tab with the requested viewport and device pixel ratio
// and navigates it to opts.URL
func (m *Manager) OpenPage(ctx context.Context, opts PageOptions) (*Page, error) {
	b := m.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: not started")
	}
	log := logger.WithComponent("browser")

	var page *rod.Page
	var err error
	if m.cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	if !opts.Viewport.Empty() {
		dpr := opts.DPR
		if dpr <= 0 {
			dpr = 1
		}
		err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             int(opts.Viewport.Width),
			Height:            int(opts.Viewport.Height),
			DeviceScaleFactor: dpr,
		})
		if err != nil {
			page.Close()
			return nil, fmt.Errorf("browser: set viewport: %w", err)
		}
	}

	navCtx, cancel := context.WithTimeout(ctx, DefaultNavigateTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(opts.URL); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", opts.URL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		log.Warn().Err(err).Str("url", opts.URL).Msg("Timed out waiting for page load")
	}

	log.Info().
		Str("url", opts.URL).
		Stringer("viewport", opts.Viewport).
		Float64("dpr", opts.DPR).
		Bool("stealth", m.cfg.Stealth).
		Msg("Page opened")

	return &Page{page: page, url: opts.URL, frames: opts.Frames}, nil
}

// URL returns the address the page was opened with
func (p *Page) URL() string {
	return p.url
}

// Close closes the tab
func (p *Page) Close() error {
	if p.page != nil {
		return p.page.Close()
	}
	return nil
}

// eval runs js with args and decodes its JSON-stringified result into v
func (p *Page) eval(ctx context.Context, v interface{}, js string, args ...interface{}) error {
	res, err := p.page.Context(ctx).Eval(js, args...)
	if err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	return json.Unmarshal([]byte(res.Value.Str()), v)
}
