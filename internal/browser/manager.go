// Package browser drives Chrome through the DevTools protocol. It launches or
// connects to a browser, opens pages with a fixed viewport and device pixel
// ratio, and exposes each page as the scroll driver and frame source of a
// capture job.
package browser

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/bryanchriswhite/TileShot/internal/logger"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// Config configures the browser manager
type Config struct {
	// RemoteURL is the DevTools WebSocket URL of an already running Chrome.
	// Empty launches a local Chrome.
	RemoteURL string

	// Headless runs the local Chrome without a window
	Headless bool

	// Display is the X display a headful Chrome renders on. Empty uses $DISPLAY.
	Display string

	// Xvfb starts a virtual X server on Display before launching
	Xvfb bool

	// Stealth opens pages with go-rod/stealth evasions applied
	Stealth bool

	// Bin is the Chrome binary. Empty lets the launcher find or download one.
	Bin string
}

// Manager owns the Chrome process (or remote connection)
type Manager struct {
	cfg     Config
	mu      sync.RWMutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	xvfb    *exec.Cmd
	closed  bool
}

// NewManager creates a Manager. Call Start to launch Chrome.
func NewManager(cfg Config) *Manager {
	if cfg.Xvfb && cfg.Display == "" {
		cfg.Display = ":99"
	}
	return &Manager{cfg: cfg}
}

// Start launches Chrome or connects to the remote instance
func (m *Manager) Start(ctx context.Context) (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("browser: manager is closed")
	}
	if m.browser != nil {
		return m.browser, nil
	}

	b, err := m.launch(ctx)
	if err != nil {
		m.cleanup()
		return nil, err
	}
	m.browser = b
	return b, nil
}

// Browser returns the current browser handle, nil before Start
func (m *Manager) Browser() *rod.Browser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser
}

// Display returns the X display a headful browser renders on
func (m *Manager) Display() string {
	return m.cfg.Display
}

// Close shuts down Chrome and Xvfb
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cleanup()
	return nil
}

func (m *Manager) launch(ctx context.Context) (*rod.Browser, error) {
	log := logger.WithComponent("browser")

	if m.cfg.Xvfb && !m.cfg.Headless && m.cfg.RemoteURL == "" {
		if err := m.startXvfb(); err != nil {
			return nil, fmt.Errorf("browser: xvfb: %w", err)
		}
	}

	var wsURL string
	if m.cfg.RemoteURL != "" {
		wsURL = m.cfg.RemoteURL
		log.Info().Str("url", wsURL).Msg("Connecting to remote browser")
	} else {
		l := launcher.New().Context(ctx).Headless(m.cfg.Headless)
		if m.cfg.Bin != "" {
			l = l.Bin(m.cfg.Bin)
		}
		if !m.cfg.Headless && m.cfg.Display != "" {
			l = l.Env(displayEnv(os.Environ(), m.cfg.Display)...)
		}
		l = l.Set("disable-blink-features", "AutomationControlled")

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info().
			Str("url", wsURL).
			Bool("headless", m.cfg.Headless).
			Str("display", m.cfg.Display).
			Msg("Launched local browser")
	}

	b := rod.New().Context(ctx).ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	// detach from the start context so the browser outlives it
	b = b.Context(context.Background())

	if err := b.IgnoreCertErrors(true); err != nil {
		log.Warn().Err(err).Msg("Failed to ignore certificate errors")
	}
	return b, nil
}

func (m *Manager) cleanup() {
	if m.browser != nil {
		m.browser.Close()
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	m.stopXvfb()
}

// displayEnv returns environ with DISPLAY set to display. Chrome still needs
// the rest of the environment (HOME, XAUTHORITY, locale).
func displayEnv(environ []string, display string) []string {
	env := make([]string, 0, len(environ)+1)
	for _, kv := range environ {
		if !strings.HasPrefix(kv, "DISPLAY=") {
			env = append(env, kv)
		}
	}
	return append(env, "DISPLAY="+display)
}
