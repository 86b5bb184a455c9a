package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bryanchriswhite/TileShot/internal/capture"
	"github.com/bryanchriswhite/TileShot/internal/codec"
	"github.com/bryanchriswhite/TileShot/internal/logger"
	"github.com/bryanchriswhite/TileShot/internal/output"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. TILESHOT_SERVER_PORT
const EnvPrefix = "TILESHOT"

// Preferences are the user-facing capture defaults
type Preferences struct {
	Format    string `json:"format" yaml:"format" mapstructure:"format"`
	Quality   int    `json:"quality" yaml:"quality" mapstructure:"quality"`
	DelayMs   int    `json:"delay_ms" yaml:"delay_ms" mapstructure:"delay_ms"`
	Debug     bool   `json:"debug" yaml:"debug" mapstructure:"debug"`
	Sink      string `json:"sink" yaml:"sink" mapstructure:"sink"`
	OutputDir string `json:"output_dir" yaml:"output_dir" mapstructure:"output_dir"`
}

// ViewportConfig is the emulated browser window size in CSS pixels
type ViewportConfig struct {
	Width  int `json:"width" yaml:"width" mapstructure:"width"`
	Height int `json:"height" yaml:"height" mapstructure:"height"`
}

// BrowserConfig configures the Chrome instance captures run in
type BrowserConfig struct {
	RemoteURL        string         `json:"remote_url" yaml:"remote_url" mapstructure:"remote_url"`
	Headless         bool           `json:"headless" yaml:"headless" mapstructure:"headless"`
	Display          string         `json:"display" yaml:"display" mapstructure:"display"`
	Xvfb             bool           `json:"xvfb" yaml:"xvfb" mapstructure:"xvfb"`
	Stealth          bool           `json:"stealth" yaml:"stealth" mapstructure:"stealth"`
	Bin              string         `json:"bin" yaml:"bin" mapstructure:"bin"`
	Viewport         ViewportConfig `json:"viewport" yaml:"viewport" mapstructure:"viewport"`
	DevicePixelRatio float64        `json:"device_pixel_ratio" yaml:"device_pixel_ratio" mapstructure:"device_pixel_ratio"`
}

// CaptureConfig tunes the frame source
type CaptureConfig struct {
	Backend         string `json:"backend" yaml:"backend" mapstructure:"backend"`
	IntervalMs      int    `json:"interval_ms" yaml:"interval_ms" mapstructure:"interval_ms"`
	DebugIntervalMs int    `json:"debug_interval_ms" yaml:"debug_interval_ms" mapstructure:"debug_interval_ms"`
	SettleMs        int    `json:"settle_ms" yaml:"settle_ms" mapstructure:"settle_ms"`
	FrameFormat     string `json:"frame_format" yaml:"frame_format" mapstructure:"frame_format"`
	FrameQuality    int    `json:"frame_quality" yaml:"frame_quality" mapstructure:"frame_quality"`
}

// Config represents the application configuration
type Config struct {
	ServerPort  int           `json:"server_port" yaml:"server_port" mapstructure:"server_port"`
	LogLevel    string        `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
	Preferences Preferences   `json:"preferences" yaml:"preferences" mapstructure:"preferences"`
	Browser     BrowserConfig `json:"browser" yaml:"browser" mapstructure:"browser"`
	Capture     CaptureConfig `json:"capture" yaml:"capture" mapstructure:"capture"`
	HistoryPath string        `json:"history_path" yaml:"history_path" mapstructure:"history_path"`
	Notify      bool          `json:"notify" yaml:"notify" mapstructure:"notify"`
}

// Validate checks values that would otherwise fail deep inside a job
func (c *Config) Validate() error {
	if c.ServerPort < 0 || c.ServerPort > 65535 {
		return fmt.Errorf("invalid server_port: %d", c.ServerPort)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log_level: %s (use: debug, info, warn, error)", c.LogLevel)
	}
	if err := c.Preferences.Validate(); err != nil {
		return err
	}
	switch c.Capture.Backend {
	case "", capture.BackendCDP, capture.BackendX11, capture.BackendDesktop:
	default:
		return fmt.Errorf("invalid capture.backend: %s (use: cdp, x11, desktop)", c.Capture.Backend)
	}
	if c.Capture.FrameFormat != "" {
		f, err := codec.ParseFormat(c.Capture.FrameFormat)
		if err != nil || (f != codec.PNG && f != codec.JPEG) {
			return fmt.Errorf("invalid capture.frame_format: %s (use: png, jpeg)", c.Capture.FrameFormat)
		}
	}
	if c.Capture.IntervalMs < 0 || c.Capture.DebugIntervalMs < 0 || c.Capture.SettleMs < 0 {
		return fmt.Errorf("capture intervals must not be negative")
	}
	if c.Browser.DevicePixelRatio < 0 {
		return fmt.Errorf("invalid browser.device_pixel_ratio: %g", c.Browser.DevicePixelRatio)
	}
	if c.Browser.Viewport.Width <= 0 || c.Browser.Viewport.Height <= 0 {
		return fmt.Errorf("invalid browser.viewport: %dx%d", c.Browser.Viewport.Width, c.Browser.Viewport.Height)
	}
	return nil
}

// Validate checks the preference values
func (p Preferences) Validate() error {
	if _, err := codec.ParseFormat(p.Format); err != nil {
		return err
	}
	if p.Quality < 1 || p.Quality > 100 {
		return fmt.Errorf("invalid quality: %d (use 1-100)", p.Quality)
	}
	if p.DelayMs < 0 {
		return fmt.Errorf("invalid delay_ms: %d", p.DelayMs)
	}
	switch p.Sink {
	case output.SinkFile, output.SinkClipboard, output.SinkMemory:
	default:
		return fmt.Errorf("invalid sink: %s (use: file, clipboard, memory)", p.Sink)
	}
	return nil
}

// Manager handles configuration
type Manager struct {
	configPath string
	config     *Config
	mu         sync.RWMutex
}

// DefaultDir returns ~/.config/tileshot
func DefaultDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "tileshot"), nil
}

// NewManager loads configFile, or the default path when empty. A missing
// file is created with defaults.
func NewManager(configFile string) (*Manager, error) {
	actualConfigPath := configFile
	if actualConfigPath == "" {
		configDir, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		actualConfigPath = filepath.Join(configDir, "config.yaml")
	}

	if err := os.MkdirAll(filepath.Dir(actualConfigPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	m := &Manager{
		configPath: actualConfigPath,
	}

	if err := m.load(); err != nil {
		if os.IsNotExist(err) {
			logger.WithComponent("config").Info().
				Str("path", m.configPath).
				Msg("Config file not found, creating new config")
			m.config = m.getDefaults()
			if err := m.Save(); err != nil {
				return nil, fmt.Errorf("failed to create default config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Str("format", m.config.Preferences.Format).
		Str("sink", m.config.Preferences.Sink).
		Msg("Config loaded")

	return m, nil
}

// getDefaults returns default configuration
func (m *Manager) getDefaults() *Config {
	dir := filepath.Dir(m.configPath)
	return &Config{
		ServerPort: 8080,
		LogLevel:   "info",
		Preferences: Preferences{
			Format:    string(codec.PNG),
			Quality:   codec.DefaultQuality,
			Sink:      output.SinkFile,
			OutputDir: defaultOutputDir(),
		},
		Browser: BrowserConfig{
			Headless:         true,
			Stealth:          true,
			Viewport:         ViewportConfig{Width: 1280, Height: 800},
			DevicePixelRatio: 1,
		},
		Capture: CaptureConfig{
			Backend:         capture.BackendCDP,
			IntervalMs:      int(capture.DefaultInterval.Milliseconds()),
			DebugIntervalMs: int(capture.DefaultDebugInterval.Milliseconds()),
			SettleMs:        150,
			FrameFormat:     string(codec.PNG),
		},
		HistoryPath: filepath.Join(dir, "history.db"),
		Notify:      true,
	}
}

// defaultOutputDir is ~/Pictures/TileShot, or the working directory when
// there is no home
func defaultOutputDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, "Pictures", "TileShot")
}

// load reads the configuration from disk. Keys missing from the file keep
// their defaults.
func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	cfg := m.getDefaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", m.configPath, err)
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return m.getDefaults()
	}
	cfg := *m.config
	return &cfg
}

// Save saves the current configuration to disk
func (m *Manager) Save() error {
	cfg := m.Get()

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Saving config")

	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("path", m.configPath).
			Msg("Failed to write config")
		return err
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Msg("Config saved successfully")
	return nil
}

// Update validates and replaces the entire configuration
func (m *Manager) Update(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c := *cfg
	m.mu.Lock()
	m.config = &c
	m.mu.Unlock()
	return m.Save()
}

// GetPreferences returns the capture preferences
func (m *Manager) GetPreferences() Preferences {
	return m.Get().Preferences
}

// SetPreferences validates and stores new capture preferences
func (m *Manager) SetPreferences(p Preferences) error {
	cfg := m.Get()
	cfg.Preferences = p
	return m.Update(cfg)
}

// GetViper returns a viper instance holding the current configuration, with
// TILESHOT_* environment overrides applied. Changes made through it are not
// saved; use Set.
func (m *Manager) GetViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	data, err := yaml.Marshal(m.Get())
	if err == nil {
		err = v.ReadConfig(bytes.NewReader(data))
	}
	if err != nil {
		logger.WithComponent("config").Warn().Err(err).Msg("Failed to load config into viper")
	}
	return v
}

// Set changes one dotted key, e.g. "preferences.quality", and saves. String
// values are converted to the key's type.
func (m *Manager) Set(key string, value interface{}) error {
	v := viper.New()
	v.SetConfigType("yaml")
	data, err := yaml.Marshal(m.Get())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	key = strings.ToLower(key)
	if !v.IsSet(key) {
		return fmt.Errorf("configuration key not found: %s", key)
	}
	if _, nested := v.Get(key).(map[string]interface{}); nested {
		return fmt.Errorf("%s is a section, set one of its keys", key)
	}
	v.Set(key, value)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return m.Update(&cfg)
}

// GetConfigPath returns the path to the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// GetConfigDir returns the config directory path
func (m *Manager) GetConfigDir() string {
	return filepath.Dir(m.configPath)
}
