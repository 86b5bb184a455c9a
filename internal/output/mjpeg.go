package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"sync"
	"time"

	"github.com/bryanchriswhite/TileShot/internal/logger"
	"golang.org/x/image/draw"
)

// Default preview bounds
const (
	DefaultPreviewWidth   = 1280
	DefaultPreviewHeight  = 1280
	DefaultPreviewQuality = 80
)

var _ Output = (*MJPEGOutput)(nil)

// MJPEGOutput streams preview frames as Motion JPEG over HTTP. A debug
// capture writes the partially stitched surface after every tile, so the
// stream shows the image growing tile by tile.
type MJPEGOutput struct {
	config  Config
	running bool
	mu      sync.RWMutex

	// Last encoded frame, replayed to clients that connect mid-job
	frameMu    sync.RWMutex
	lastFrame  []byte
	lastUpdate time.Time

	clientsMu sync.RWMutex
	clients   map[chan []byte]struct{}

	frameCount uint64
	startTime  time.Time
}

// NewMJPEGOutput creates a preview stream
func NewMJPEGOutput(config Config) *MJPEGOutput {
	if config.MaxWidth <= 0 {
		config.MaxWidth = DefaultPreviewWidth
	}
	if config.MaxHeight <= 0 {
		config.MaxHeight = DefaultPreviewHeight
	}
	if config.Quality <= 0 || config.Quality > 100 {
		config.Quality = DefaultPreviewQuality
	}
	return &MJPEGOutput{
		config:  config,
		clients: make(map[chan []byte]struct{}),
	}
}

// Start marks the output running. The handler is mounted separately.
func (m *MJPEGOutput) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("MJPEG output already running")
	}

	m.running = true
	m.startTime = time.Now()
	m.frameCount = 0

	logger.WithComponent("preview").Info().
		Int("max_width", m.config.MaxWidth).
		Int("max_height", m.config.MaxHeight).
		Msg("Preview stream started")
	return nil
}

// Stop disconnects all clients
func (m *MJPEGOutput) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}
	m.running = false

	m.clientsMu.Lock()
	for ch := range m.clients {
		close(ch)
	}
	m.clients = make(map[chan []byte]struct{})
	m.clientsMu.Unlock()

	logger.WithComponent("preview").Info().Uint64("frames", m.frameCount).Msg("Preview stream stopped")
	return nil
}

// Fit returns the size of a frame scaled down to fit within the preview bounds
func (m *MJPEGOutput) Fit(size image.Point) image.Point {
	w, h := size.X, size.Y
	if w > m.config.MaxWidth {
		h = h * m.config.MaxWidth / w
		w = m.config.MaxWidth
	}
	if h > m.config.MaxHeight {
		w = w * m.config.MaxHeight / h
		h = m.config.MaxHeight
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return image.Pt(w, h)
}

// WriteFrame scales the frame into the preview bounds and broadcasts it
func (m *MJPEGOutput) WriteFrame(frame *image.RGBA) error {
	if !m.IsRunning() {
		return fmt.Errorf("MJPEG output not running")
	}

	var img image.Image = frame
	if size := m.Fit(frame.Bounds().Size()); size != frame.Bounds().Size() {
		scaled := image.NewRGBA(image.Rectangle{Max: size})
		draw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), frame, frame.Bounds(), draw.Src, nil)
		img = scaled
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: m.config.Quality}); err != nil {
		return fmt.Errorf("failed to encode JPEG: %w", err)
	}
	data := buf.Bytes()

	m.frameMu.Lock()
	m.lastFrame = data
	m.lastUpdate = time.Now()
	m.frameMu.Unlock()

	m.mu.Lock()
	m.frameCount++
	m.mu.Unlock()

	m.clientsMu.RLock()
	for ch := range m.clients {
		select {
		case ch <- data:
		default:
			// slow client, drop the frame
		}
	}
	m.clientsMu.RUnlock()

	return nil
}

// Name returns the output type name
func (m *MJPEGOutput) Name() string {
	return "MJPEG preview"
}

// IsRunning returns true if the output is active
func (m *MJPEGOutput) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// Clients returns the number of connected viewers
func (m *MJPEGOutput) Clients() int {
	m.clientsMu.RLock()
	defer m.clientsMu.RUnlock()
	return len(m.clients)
}

// GetHTTPHandler returns the multipart stream handler
func (m *MJPEGOutput) GetHTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !m.IsRunning() {
			http.Error(w, "preview not running", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		w.Header().Set("Connection", "close")

		frameChan := make(chan []byte, 2)

		m.frameMu.RLock()
		if m.lastFrame != nil {
			frameChan <- m.lastFrame
		}
		m.frameMu.RUnlock()

		m.clientsMu.Lock()
		m.clients[frameChan] = struct{}{}
		clientCount := len(m.clients)
		m.clientsMu.Unlock()

		log := logger.WithComponent("preview")
		log.Info().Int("clients", clientCount).Msg("Preview client connected")

		defer func() {
			m.clientsMu.Lock()
			if _, ok := m.clients[frameChan]; ok {
				delete(m.clients, frameChan)
			}
			clientCount := len(m.clients)
			m.clientsMu.Unlock()
			log.Info().Int("clients", clientCount).Msg("Preview client disconnected")
		}()

		for {
			select {
			case <-r.Context().Done():
				return
			case data, ok := <-frameChan:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(data)); err != nil {
					return
				}
				if _, err := w.Write(data); err != nil {
					return
				}
				if _, err := fmt.Fprintf(w, "\r\n"); err != nil {
					return
				}
				if f, ok := w.(http.Flusher); ok {
					f.Flush()
				}
			}
		}
	}
}

// PreviewStats is reported by GetStatsHandler
type PreviewStats struct {
	Running    bool      `json:"running"`
	Frames     uint64    `json:"frames"`
	Clients    int       `json:"clients"`
	LastUpdate time.Time `json:"last_update,omitempty"`
	Uptime     string    `json:"uptime,omitempty"`
}

// Stats returns current stream statistics
func (m *MJPEGOutput) Stats() PreviewStats {
	m.mu.RLock()
	stats := PreviewStats{Running: m.running, Frames: m.frameCount}
	startTime := m.startTime
	m.mu.RUnlock()

	m.frameMu.RLock()
	stats.LastUpdate = m.lastUpdate
	m.frameMu.RUnlock()

	stats.Clients = m.Clients()
	if stats.Running && !startTime.IsZero() {
		stats.Uptime = time.Since(startTime).Round(time.Second).String()
	}
	return stats
}

// GetStatsHandler returns stream statistics as JSON
func (m *MJPEGOutput) GetStatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m.Stats())
	}
}
