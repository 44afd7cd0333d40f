package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/SplitScreen/internal/capture"
	"github.com/bryanchriswhite/SplitScreen/internal/config"
	"github.com/bryanchriswhite/SplitScreen/internal/logger"
	"github.com/bryanchriswhite/SplitScreen/internal/overlay"
	"github.com/bryanchriswhite/SplitScreen/internal/session"
	"github.com/bryanchriswhite/SplitScreen/internal/window"
)

// Version is reported by the health endpoint
const Version = "0.1.0"

// Controller is the part of a session the API drives
type Controller interface {
	ID() string
	Windows() ([]window.Handle, error)
	SelectByID(id uint32) error
	Deselect() error
	Status() session.Status
	Subscribe() <-chan session.Status
	Unsubscribe(ch <-chan session.Status)
	SetCameraEnabled(ctx context.Context, enabled bool) error
	RetryCamera(ctx context.Context) error
	Surface() *image.RGBA
	Overlay() *overlay.Manager
}

// Server represents the HTTP control API
type Server struct {
	router    *mux.Router
	session   Controller
	configMgr *config.Manager
	upgrader  websocket.Upgrader
	log       *zerolog.Logger
}

// NewServer creates a new API server. configMgr may be nil.
func NewServer(ctrl Controller, configMgr *config.Manager) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		session:   ctrl,
		configMgr: configMgr,
		upgrader: websocket.Upgrader{
			// the server only listens on loopback
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: logger.WithComponent("api"),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Window selection
	api.HandleFunc("/windows", s.handleGetWindows).Methods("GET")
	api.HandleFunc("/windows/select", s.handleSelectWindow).Methods("POST")
	api.HandleFunc("/windows/select", s.handleDeselectWindow).Methods("DELETE")

	// Session state
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/status/stream", s.handleStatusStream)
	api.HandleFunc("/frame.png", s.handleFrame).Methods("GET")

	// Camera
	api.HandleFunc("/camera", s.handleSetCamera).Methods("PUT")
	api.HandleFunc("/camera/retry", s.handleRetryCamera).Methods("POST")

	// Overlay widgets
	api.HandleFunc("/overlay", s.handleSetOverlay).Methods("PUT")
	api.HandleFunc("/overlay/widgets", s.handleGetWidgets).Methods("GET")
	api.HandleFunc("/overlay/widgets", s.handleAddWidget).Methods("POST")
	api.HandleFunc("/overlay/widgets/{id}", s.handleGetWidget).Methods("GET")
	api.HandleFunc("/overlay/widgets/{id}", s.handleRemoveWidget).Methods("DELETE")

	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Start serves on 127.0.0.1:port until ctx is done
func (s *Server) Start(ctx context.Context, port int) error {
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", "http://"+addr).Msg("Starting API server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("API server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Warn().Err(err).Msg("API server shutdown incomplete")
		return srv.Close()
	}
	s.log.Info().Msg("API server stopped")
	return nil
}

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

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// writeError maps session and capture errors to status codes
func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, window.ErrWindowNotFound),
		errors.Is(err, overlay.ErrWidgetNotFound):
		code = http.StatusNotFound
	case errors.Is(err, overlay.ErrWidgetExists):
		code = http.StatusConflict
	case errors.Is(err, session.ErrCameraDisabled):
		code = http.StatusConflict
	case errors.Is(err, session.ErrClosed),
		errors.Is(err, window.ErrRegistryUnavailable),
		errors.Is(err, capture.ErrDeviceUnavailable):
		code = http.StatusServiceUnavailable
	}
	if code == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("Request failed")
	}
	writeJSON(w, code, map[string]string{
		"error": err.Error(),
		"kind":  capture.Kind(err),
	})
}

func (s *Server) handleGetWindows(w http.ResponseWriter, r *http.Request) {
	windows, err := s.session.Windows()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, windows)
}

func (s *Server) handleSelectWindow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID *uint32 `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.ID == nil {
		http.Error(w, "missing window id", http.StatusBadRequest)
		return
	}

	if err := s.session.SelectByID(*req.ID); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.Status().Window)
}

func (s *Server) handleDeselectWindow(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Deselect(); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Status())
}

func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	updates := s.session.Subscribe()
	defer s.session.Unsubscribe(updates)

	// the reader notices the client going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(s.session.Status()); err != nil {
		s.log.Debug().Err(err).Msg("WebSocket write failed")
		return
	}

	for {
		select {
		case st, ok := <-updates:
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"))
				return
			}
			if err := conn.WriteJSON(st); err != nil {
				s.log.Debug().Err(err).Msg("WebSocket write failed")
				return
			}
		case <-gone:
			return
		}
	}
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	surface := s.session.Surface()
	if surface == nil {
		http.Error(w, "no frame rendered yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := png.Encode(w, surface); err != nil {
		s.log.Debug().Err(err).Msg("Failed to encode frame")
	}
}

func (s *Server) handleSetCamera(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Enabled == nil {
		http.Error(w, "missing enabled", http.StatusBadRequest)
		return
	}

	if err := s.session.SetCameraEnabled(r.Context(), *req.Enabled); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.Status().Camera)
}

func (s *Server) handleRetryCamera(w http.ResponseWriter, r *http.Request) {
	if err := s.session.RetryCamera(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.Status().Camera)
}

func (s *Server) handleSetOverlay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Enabled == nil {
		http.Error(w, "missing enabled", http.StatusBadRequest)
		return
	}

	m := s.session.Overlay()
	m.SetEnabled(*req.Enabled)
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": m.IsEnabled()})
}

func (s *Server) handleGetWidgets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Overlay().ExportConfig())
}

func (s *Server) handleAddWidget(w http.ResponseWriter, r *http.Request) {
	var cfg overlay.WidgetConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if cfg.ID == "" {
		http.Error(w, "missing widget id", http.StatusBadRequest)
		return
	}

	m := s.session.Overlay()
	widget, err := m.CreateWidget(cfg)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := m.AddWidget(widget); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, widget.Config())
}

func (s *Server) handleGetWidget(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	widget, ok := s.session.Overlay().Widget(id)
	if !ok {
		s.writeError(w, fmt.Errorf("%w: %s", overlay.ErrWidgetNotFound, id))
		return
	}
	writeJSON(w, http.StatusOK, widget.Config())
}

func (s *Server) handleRemoveWidget(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Overlay().RemoveWidget(mux.Vars(r)["id"]); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if s.configMgr == nil {
		http.Error(w, "no configuration loaded", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.configMgr.Get())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": Version,
		"session": s.session.ID(),
	})
}
