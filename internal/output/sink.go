package output

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bryanchriswhite/TileShot/internal/failure"
	"github.com/bryanchriswhite/TileShot/internal/logger"
)

// Sink names
const (
	SinkFile      = "file"
	SinkClipboard = "clipboard"
	SinkMemory    = "memory"
)

// FileSink writes captures into a directory
type FileSink struct {
	Dir string
}

// NewFileSink creates a sink writing into dir. Empty dir uses the current directory.
func NewFileSink(dir string) *FileSink {
	if dir == "" {
		dir = "."
	}
	return &FileSink{Dir: dir}
}

// Name returns the sink name
func (s *FileSink) Name() string {
	return SinkFile
}

// Deliver writes data atomically: a temp file in Dir renamed into place. An
// existing file is never replaced; the name gets a -1, -2, ... suffix instead.
func (s *FileSink) Deliver(ctx context.Context, data []byte, filename string) (Delivery, error) {
	if filename == "" || filename != filepath.Base(filename) {
		return Delivery{}, failure.New(failure.DeliveryFailed, "invalid filename %q", filename)
	}
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return Delivery{}, failure.Wrap(failure.DeliveryFailed, err, "create output directory")
	}

	tmp, err := os.CreateTemp(s.Dir, "."+filename+".*.tmp")
	if err != nil {
		return Delivery{}, failure.Wrap(failure.DeliveryFailed, err, "create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return Delivery{}, failure.Wrap(failure.DeliveryFailed, err, "write capture")
	}
	if err := tmp.Close(); err != nil {
		return Delivery{}, failure.Wrap(failure.DeliveryFailed, err, "write capture")
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return Delivery{}, failure.Wrap(failure.DeliveryFailed, err, "set permissions")
	}

	name, path, err := s.reserve(filename)
	if err != nil {
		return Delivery{}, failure.Wrap(failure.DeliveryFailed, err, "reserve file name")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(path)
		return Delivery{}, failure.Wrap(failure.DeliveryFailed, err, "move capture into place")
	}

	logger.WithComponent("output").Info().
		Str("path", path).
		Int("bytes", len(data)).
		Msg("Capture written")
	return Delivery{Sink: SinkFile, Location: path, Filename: name, Bytes: len(data)}, nil
}

// reserve creates an empty placeholder under the first free name
func (s *FileSink) reserve(filename string) (string, string, error) {
	for n := 0; n < maxNameAttempts; n++ {
		name := numbered(filename, n)
		path := filepath.Join(s.Dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", "", err
		}
		f.Close()
		return name, path, nil
	}
	return "", "", fmt.Errorf("%d files named like %s already exist", maxNameAttempts, filename)
}

// maxNameAttempts bounds the collision suffix search
const maxNameAttempts = 1000

// numbered inserts "-n" before the extension; n == 0 keeps filename as is
func numbered(filename string, n int) string {
	if n == 0 {
		return filename
	}
	ext := filepath.Ext(filename)
	return fmt.Sprintf("%s-%d%s", strings.TrimSuffix(filename, ext), n, ext)
}

// ClipboardTimeout bounds one clipboard hand-off
const ClipboardTimeout = 10 * time.Second

// ClipboardSink copies captures to the desktop clipboard through wl-copy
// (Wayland) or xclip (X11)
type ClipboardSink struct {
	// MIMEType is announced to the clipboard. Empty derives it from the
	// delivered filename.
	MIMEType string

	lookPath func(string) (string, error)
	command  func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewClipboardSink creates a clipboard sink for the given MIME type
func NewClipboardSink(mimeType string) *ClipboardSink {
	return &ClipboardSink{MIMEType: mimeType, lookPath: exec.LookPath, command: exec.CommandContext}
}

// Name returns the sink name
func (s *ClipboardSink) Name() string {
	return SinkClipboard
}

// clipboardCommand picks the clipboard tool for the running session
func (s *ClipboardSink) clipboardCommand(filename string) (string, []string, error) {
	mt := s.mimeType(filename)
	if os.Getenv("WAYLAND_DISPLAY") != "" {
		if path, err := s.lookPath("wl-copy"); err == nil {
			return path, []string{"--type", mt}, nil
		}
	}
	if path, err := s.lookPath("xclip"); err == nil {
		return path, []string{"-selection", "clipboard", "-t", mt, "-i"}, nil
	}
	if path, err := s.lookPath("wl-copy"); err == nil {
		return path, []string{"--type", mt}, nil
	}
	return "", nil, fmt.Errorf("neither wl-copy nor xclip is installed")
}

func (s *ClipboardSink) mimeType(filename string) string {
	if s.MIMEType != "" {
		return s.MIMEType
	}
	if t := mime.TypeByExtension(filepath.Ext(filename)); t != "" {
		return t
	}
	return "image/png"
}

// Deliver pipes data into the clipboard tool
func (s *ClipboardSink) Deliver(ctx context.Context, data []byte, filename string) (Delivery, error) {
	name, args, err := s.clipboardCommand(filename)
	if err != nil {
		return Delivery{}, failure.Wrap(failure.DeliveryFailed, err, "clipboard unavailable")
	}

	ctx, cancel := context.WithTimeout(ctx, ClipboardTimeout)
	defer cancel()

	// xclip and wl-copy fork a child that owns the selection until another
	// program takes it. The child inherits stdout and stderr, so both must be
	// real files: a Go-side pipe would make Wait block on the child.
	stderr, err := os.CreateTemp("", "tileshot-clipboard-*.log")
	if err != nil {
		return Delivery{}, failure.Wrap(failure.DeliveryFailed, err, "clipboard stderr")
	}
	defer os.Remove(stderr.Name())
	defer stderr.Close()

	cmd := s.command(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(data)
	cmd.Stderr = stderr
	cmd.WaitDelay = time.Second

	if err := cmd.Run(); err != nil {
		detail := filepath.Base(name)
		if msg, _ := os.ReadFile(stderr.Name()); len(msg) > 0 {
			detail += ": " + strings.TrimSpace(string(msg))
		}
		return Delivery{}, failure.Wrap(failure.DeliveryFailed, err, detail)
	}

	logger.WithComponent("output").Info().
		Str("tool", filepath.Base(name)).
		Str("mime", s.mimeType(filename)).
		Int("bytes", len(data)).
		Msg("Capture copied to clipboard")
	return Delivery{Sink: SinkClipboard, Location: filename, Filename: filename, Bytes: len(data)}, nil
}

// MemorySink keeps captures in memory, keyed by name, for API downloads
type MemorySink struct {
	mu    sync.RWMutex
	items map[string][]byte
	order []string
	limit int
	// every name ever delivered, so an evicted name is not handed out again
	used map[string]struct{}
}

// NewMemorySink keeps at most limit captures, evicting the oldest
func NewMemorySink(limit int) *MemorySink {
	if limit <= 0 {
		limit = 16
	}
	return &MemorySink{items: make(map[string][]byte), limit: limit, used: make(map[string]struct{})}
}

// Name returns the sink name
func (s *MemorySink) Name() string {
	return SinkMemory
}

// Deliver stores a copy of data under filename, or under a -1, -2, ...
// variant when filename was used before
func (s *MemorySink) Deliver(ctx context.Context, data []byte, filename string) (Delivery, error) {
	if filename == "" {
		return Delivery{}, failure.New(failure.DeliveryFailed, "empty filename")
	}
	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	name := filename
	for n := 1; ; n++ {
		if _, taken := s.used[name]; !taken {
			break
		}
		name = numbered(filename, n)
	}
	s.used[name] = struct{}{}
	s.order = append(s.order, name)
	s.items[name] = buf
	for len(s.order) > s.limit {
		delete(s.items, s.order[0])
		s.order = s.order[1:]
	}
	s.mu.Unlock()

	return Delivery{Sink: SinkMemory, Location: name, Filename: name, Bytes: len(buf)}, nil
}

// Get returns a stored capture
func (s *MemorySink) Get(filename string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.items[filename]
	return data, ok
}
