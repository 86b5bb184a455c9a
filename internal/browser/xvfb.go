package browser

import (
	"fmt"
	"os/exec"
	"time"

	"github.com/bryanchriswhite/TileShot/internal/logger"
)

// startXvfb launches a virtual X server for headful capture
func (m *Manager) startXvfb() error {
	if m.xvfb != nil {
		return nil
	}

	cmd := exec.Command("Xvfb", m.cfg.Display, "-screen", "0", "1920x1080x24", "-ac")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start xvfb: %w", err)
	}
	m.xvfb = cmd

	// Xvfb has no readiness signal
	time.Sleep(500 * time.Millisecond)

	logger.WithComponent("browser").Info().
		Str("display", m.cfg.Display).
		Int("pid", cmd.Process.Pid).
		Msg("Xvfb started")
	return nil
}

func (m *Manager) stopXvfb() {
	if m.xvfb == nil {
		return
	}
	if m.xvfb.Process != nil {
		m.xvfb.Process.Kill()
		m.xvfb.Wait()
	}
	logger.WithComponent("browser").Info().Str("display", m.cfg.Display).Msg("Xvfb stopped")
	m.xvfb = nil
}
