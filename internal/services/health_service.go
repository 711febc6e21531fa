package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/benmeehan/garden-agent/internal/constants"
	"github.com/benmeehan/garden-agent/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// HealthService serves the device liveness endpoint.
type HealthService struct {
	listenAddr string
	deviceID   string
	logger     zerolog.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	wg       sync.WaitGroup
}

// NewHealthService creates a HealthService listening on listenAddr.
func NewHealthService(listenAddr, deviceID string, logger zerolog.Logger) *HealthService {
	return &HealthService{
		listenAddr: listenAddr,
		deviceID:   deviceID,
		logger:     logger,
	}
}

// Router builds the HTTP routes.
func (h *HealthService) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", h.handleHealth)
	return r
}

func (h *HealthService) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // best-effort write, the client may be gone
	json.NewEncoder(w).Encode(models.HealthStatus{Status: constants.StatusOK, DeviceID: h.deviceID})
}

// Start binds the listener and serves in the background.
func (h *HealthService) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.server != nil {
		h.logger.Warn().Msg("HealthService is already running")
		return errors.New("health service is already running")
	}

	listener, err := net.Listen("tcp", h.listenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.listenAddr, err)
	}

	h.listener = listener
	h.server = &http.Server{
		Handler:           h.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	server := h.server
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error().Err(err).Msg("Health server stopped unexpectedly")
		}
	}()

	h.logger.Info().Str("addr", listener.Addr().String()).Msg("Health server running")
	return nil
}

// Addr returns the bound address, or nil when not running.
func (h *HealthService) Addr() net.Addr {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listener == nil {
		return nil
	}
	return h.listener.Addr()
}

// Stop shuts the server down gracefully.
func (h *HealthService) Stop() error {
	h.mu.Lock()
	server := h.server
	h.server = nil
	h.listener = nil
	h.mu.Unlock()

	if server == nil {
		h.logger.Warn().Msg("HealthService is not running")
		return errors.New("health service is not running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := server.Shutdown(ctx)
	h.wg.Wait()
	if err != nil {
		return fmt.Errorf("failed to shut down health server: %w", err)
	}

	h.logger.Info().Msg("HealthService stopped successfully")
	return nil
}
