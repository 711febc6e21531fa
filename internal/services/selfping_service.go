package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/benmeehan/garden-agent/internal/utils"
	"github.com/benmeehan/garden-agent/pkg/clock"
	"github.com/rs/zerolog"
)

// SelfPingService polls a health endpoint on a randomized interval and logs
// the answer. It keeps free-tier hosts from idling the device out.
type SelfPingService struct {
	healthURL   string
	minInterval time.Duration
	maxInterval time.Duration
	httpClient  *http.Client
	clock       clock.Clock
	logger      zerolog.Logger

	mu      sync.Mutex
	rng     *rand.Rand
	timer   clock.Timer
	ctx     context.Context
	cancel  context.CancelFunc
	token   uint64
	running bool
}

// NewSelfPingService creates a SelfPingService for serverURL, which is the
// base address without the /health suffix.
func NewSelfPingService(
	serverURL string,
	minInterval, maxInterval, timeout time.Duration,
	clk clock.Clock,
	logger zerolog.Logger,
) *SelfPingService {
	return &SelfPingService{
		healthURL:   strings.TrimRight(serverURL, "/") + "/health",
		minInterval: minInterval,
		maxInterval: maxInterval,
		httpClient:  &http.Client{Timeout: timeout},
		clock:       clk,
		logger:      logger,
		rng:         rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// Start schedules the first ping.
func (s *SelfPingService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.logger.Warn().Msg("SelfPingService is already running")
		return errors.New("self-ping service is already running")
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.token++
	s.scheduleLocked(s.token)

	s.logger.Info().Str("url", s.healthURL).Msg("SelfPingService started successfully")
	return nil
}

// Stop cancels the pending ping and any request in flight.
func (s *SelfPingService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		s.logger.Warn().Msg("SelfPingService is not running")
		return errors.New("self-ping service is not running")
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.cancel()
	s.token++
	s.running = false

	s.logger.Info().Msg("SelfPingService stopped successfully")
	return nil
}

func (s *SelfPingService) scheduleLocked(token uint64) {
	delay := utils.RandomDuration(s.rng, s.minInterval, s.maxInterval)
	s.timer = s.clock.AfterFunc(delay, func() { s.tick(token) })
}

func (s *SelfPingService) tick(token uint64) {
	s.mu.Lock()
	if !s.running || token != s.token {
		s.mu.Unlock()
		return
	}
	ctx := s.ctx
	s.mu.Unlock()

	// Reschedule whatever the outcome.
	defer func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.running && token == s.token {
			s.scheduleLocked(token)
		}
	}()
	defer utils.RecoverPanic(s.logger, "self-ping")

	body, err := s.Ping(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("SelfPing ERR")
		return
	}
	s.logger.Info().Interface("response", body).Msg("SelfPing")
}

// Ping performs one health request and decodes the JSON answer.
func (s *SelfPingService) Ping(ctx context.Context) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.healthURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode response (status %d): %w", resp.StatusCode, err)
	}
	return body, nil
}
