package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/bryanchriswhite/TileShot/internal/browser"
	"github.com/bryanchriswhite/TileShot/internal/codec"
	"github.com/bryanchriswhite/TileShot/internal/config"
	"github.com/bryanchriswhite/TileShot/internal/geometry"
	"github.com/bryanchriswhite/TileShot/internal/history"
	"github.com/bryanchriswhite/TileShot/internal/job"
	"github.com/bryanchriswhite/TileShot/internal/logger"
	"github.com/bryanchriswhite/TileShot/internal/notify"
	"github.com/bryanchriswhite/TileShot/internal/output"
)

// app holds the components shared by capture and serve
type app struct {
	cfg      *config.Config
	browser  *browser.Manager
	store    *history.Store
	notifier notify.Notifier
	runner   *job.Runner
}

// newApp starts the browser and wires a runner around it
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	log := logger.WithComponent("cli")
	a := &app{cfg: cfg}

	a.browser = browser.NewManager(browser.Config{
		RemoteURL: cfg.Browser.RemoteURL,
		Headless:  cfg.Browser.Headless,
		Display:   cfg.Browser.Display,
		Xvfb:      cfg.Browser.Xvfb,
		Stealth:   cfg.Browser.Stealth,
		Bin:       cfg.Browser.Bin,
	})
	if _, err := a.browser.Start(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	a.runner = job.NewRunner(job.Config{
		Defaults:      job.PreferenceDefaults(cfg.Preferences),
		Backend:       cfg.Capture.Backend,
		Display:       a.browser.Display(),
		Interval:      ms(cfg.Capture.IntervalMs),
		DebugInterval: ms(cfg.Capture.DebugIntervalMs),
		Settle:        ms(cfg.Capture.SettleMs),
	}, a.open,
		output.NewFileSink(cfg.Preferences.OutputDir),
		output.NewClipboardSink(""),
		output.NewMemorySink(0),
	)

	if cfg.HistoryPath != "" {
		store, err := history.Open(cfg.HistoryPath)
		if err != nil {
			// captures still work without history
			log.Warn().Err(err).Str("path", cfg.HistoryPath).Msg("History disabled")
		} else {
			a.store = store
			a.runner.SetHistory(store)
			log.Debug().Str("path", store.Path()).Msg("Recording capture history")
		}
	}

	a.notifier = notify.New(cfg.Notify)
	a.runner.SetNotifier(a.notifier)
	return a, nil
}

// open is the runner's Opener
func (a *app) open(ctx context.Context, url string) (job.Page, error) {
	frameFormat, err := codec.ParseFormat(a.cfg.Capture.FrameFormat)
	if err != nil {
		frameFormat = codec.PNG
	}
	p, err := a.browser.OpenPage(ctx, browser.PageOptions{
		URL: url,
		Viewport: geometry.Size{
			Width:  float64(a.cfg.Browser.Viewport.Width),
			Height: float64(a.cfg.Browser.Viewport.Height),
		},
		DPR: a.cfg.Browser.DevicePixelRatio,
		Frames: browser.FrameOptions{
			Format:  frameFormat,
			Quality: a.cfg.Capture.FrameQuality,
		},
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Close releases everything newApp acquired
func (a *app) Close() {
	if a.notifier != nil {
		a.notifier.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
	if a.browser != nil {
		a.browser.Close()
	}
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
