package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/bryanchriswhite/TileShot/internal/codec"
	"github.com/bryanchriswhite/TileShot/internal/config"
	"github.com/bryanchriswhite/TileShot/internal/failure"
	"github.com/bryanchriswhite/TileShot/internal/history"
	"github.com/bryanchriswhite/TileShot/internal/job"
	"github.com/bryanchriswhite/TileShot/internal/logger"
	"github.com/bryanchriswhite/TileShot/internal/output"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// History is the part of the history store the API reads
type History interface {
	List(ctx context.Context, limit int) ([]history.Entry, error)
	Get(ctx context.Context, id string) (history.Entry, error)
}

// Server represents the HTTP API server
type Server struct {
	router    *mux.Router
	runner    *job.Runner
	configMgr *config.Manager
	history   History
	preview   *output.MJPEGOutput
	upgrader  websocket.Upgrader
	httpSrv   *http.Server
	started   time.Time
}

// NewServer creates a new API server. history and preview may be nil.
func NewServer(runner *job.Runner, configMgr *config.Manager, hist History, preview *output.MJPEGOutput) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		runner:    runner,
		configMgr: configMgr,
		history:   hist,
		preview:   preview,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for development
			},
		},
		started: time.Now(),
	}

	s.setupRoutes()
	return s
}

// Handler returns the routed handler with CORS applied
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Captures
	api.HandleFunc("/captures", s.handleCreateCapture).Methods("POST")
	api.HandleFunc("/captures", s.handleListCaptures).Methods("GET")
	api.HandleFunc("/captures/stream", s.handleCaptureStream)
	api.HandleFunc("/captures/{id}", s.handleGetCapture).Methods("GET")
	api.HandleFunc("/captures/{id}/image", s.handleGetCaptureImage).Methods("GET")

	// Debug preview
	api.HandleFunc("/preview", s.handlePreview).Methods("GET")
	api.HandleFunc("/preview/stats", s.handlePreviewStats).Methods("GET")

	// Preferences
	api.HandleFunc("/preferences", s.handleGetPreferences).Methods("GET")
	api.HandleFunc("/preferences", s.handleUpdatePreferences).Methods("PUT")

	// Health check
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start serves on port until Shutdown
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.WithComponent("api").Info().Str("addr", "http://localhost"+addr).Msg("Starting server")
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server, waiting for running requests until ctx is done
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps a failed job onto an HTTP status
func statusFor(res job.Result) int {
	if res.Success {
		return http.StatusOK
	}
	switch res.Kind {
	case failure.InvalidRegion, failure.RasterTooLarge, failure.ElementOutsideViewport:
		return http.StatusUnprocessableEntity
	case failure.CaptureUnavailable:
		return http.StatusServiceUnavailable
	case failure.DeliveryFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// HTTP Handlers

func (s *Server) handleCreateCapture(w http.ResponseWriter, r *http.Request) {
	var d job.Descriptor
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res := s.runner.Run(r.Context(), d)
	writeJSON(w, statusFor(res), res)
}

func (s *Server) handleListCaptures(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.Error(w, "history disabled", http.StatusServiceUnavailable)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit: "+v, http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := s.history.List(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) entry(w http.ResponseWriter, r *http.Request) (history.Entry, bool) {
	if s.history == nil {
		http.Error(w, "history disabled", http.StatusServiceUnavailable)
		return history.Entry{}, false
	}
	e, err := s.history.Get(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, history.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return history.Entry{}, false
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return history.Entry{}, false
	}
	return e, true
}

func (s *Server) handleGetCapture(w http.ResponseWriter, r *http.Request) {
	if e, ok := s.entry(w, r); ok {
		writeJSON(w, http.StatusOK, e)
	}
}

func (s *Server) handleGetCaptureImage(w http.ResponseWriter, r *http.Request) {
	e, ok := s.entry(w, r)
	if !ok {
		return
	}
	if !e.Success {
		http.Error(w, "capture failed: "+e.Error, http.StatusNotFound)
		return
	}

	f, err := codec.ParseFormat(e.Format)
	if err != nil {
		f = codec.PNG
	}

	switch e.Sink {
	case output.SinkMemory:
		sink, ok := s.runner.Sink(output.SinkMemory)
		mem, isMem := sink.(*output.MemorySink)
		if !ok || !isMem {
			http.Error(w, "no memory sink", http.StatusNotFound)
			return
		}
		data, ok := mem.Get(e.Location)
		if !ok {
			http.Error(w, "image evicted", http.StatusGone)
			return
		}
		w.Header().Set("Content-Type", f.MIMEType())
		w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", e.Filename))
		w.Write(data)
	case output.SinkFile:
		w.Header().Set("Content-Type", f.MIMEType())
		http.ServeFile(w, r, e.Location)
	default:
		http.Error(w, "capture was delivered to "+e.Sink, http.StatusNotFound)
	}
}

func (s *Server) handleCaptureStream(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}
	defer conn.Close()

	events := s.runner.Subscribe()
	defer s.runner.Unsubscribe(events)

	// the client only ever closes; reading surfaces that
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				log.Debug().Err(err).Msg("WebSocket write error")
				return
			}
		}
	}
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if s.preview == nil {
		http.Error(w, "preview disabled", http.StatusNotFound)
		return
	}
	s.preview.GetHTTPHandler()(w, r)
}

func (s *Server) handlePreviewStats(w http.ResponseWriter, r *http.Request) {
	if s.preview == nil {
		http.Error(w, "preview disabled", http.StatusNotFound)
		return
	}
	s.preview.GetStatsHandler()(w, r)
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.configMgr.GetPreferences())
}

func (s *Server) handleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	p := s.configMgr.GetPreferences()
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.configMgr.SetPreferences(p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.runner.SetDefaults(job.PreferenceDefaults(p))

	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"version": Version,
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	})
}

// Version is reported by the health check
var Version = "0.1.0"
