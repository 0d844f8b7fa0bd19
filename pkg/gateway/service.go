package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"lineecho/pkg/bus"
	"lineecho/pkg/channel"
	"lineecho/pkg/config"
)

const shutdownTimeout = 5 * time.Second

// Service runs the HTTP server that hosts channel webhooks and status endpoints.
type Service struct {
	cfg      *config.Config
	log      *slog.Logger
	handler  channel.Handler
	channels []channel.Adapter
	events   *bus.EventBus

	mu            sync.RWMutex
	startedAt     time.Time
	serving       bool
	channelStates map[string]channelState
	counters      counters
}

type channelState struct {
	Path    string `json:"path"`
	Mounted bool   `json:"mounted"`
}

type counters struct {
	WebhooksReceived   int64 `json:"webhooks_received"`
	SignaturesRejected int64 `json:"signatures_rejected"`
	RepliesSent        int64 `json:"replies_sent"`
	RepliesFailed      int64 `json:"replies_failed"`
}

type statusResponse struct {
	Status        string                  `json:"status"`
	UptimeSeconds int64                   `json:"uptime_seconds"`
	Channels      map[string]channelState `json:"channels"`
	Counters      counters                `json:"counters"`
}

// NewService wires adapters to handler. events may be nil, in which case the
// service owns a private bus for its counters.
func NewService(cfg *config.Config, adapters []channel.Adapter, handler channel.Handler, events *bus.EventBus, log *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if len(adapters) == 0 {
		return nil, errors.New("at least one channel adapter is required")
	}
	if handler == nil {
		return nil, errors.New("handler is required")
	}
	if events == nil {
		events = bus.NewEventBus()
	}
	if log == nil {
		log = slog.Default()
	}

	channelStates := make(map[string]channelState, len(adapters))
	for _, adapter := range adapters {
		if _, exists := channelStates[adapter.Name()]; exists {
			return nil, fmt.Errorf("duplicate channel %q", adapter.Name())
		}
		channelStates[adapter.Name()] = channelState{Path: adapter.Path()}
	}

	return &Service{
		cfg:           cfg,
		log:           log.With("component", "gateway.service"),
		handler:       handler,
		channels:      adapters,
		events:        events,
		channelStates: channelStates,
	}, nil
}

// Run listens on the configured address until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	listener, err := net.Listen("tcp", s.cfg.Server.Address())
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	return s.Serve(ctx, listener)
}

// Serve runs the HTTP server on listener until ctx is cancelled.
func (s *Service) Serve(ctx context.Context, listener net.Listener) error {
	mux, err := s.routes()
	if err != nil {
		_ = listener.Close()
		return err
	}

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	eventStream, unsubscribe := s.events.SubscribeEvents(ctx, 0)
	defer unsubscribe()
	go s.countEvents(eventStream)

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.serving = true
	s.mu.Unlock()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(listener)
	}()

	s.log.Info("Gateway server started", "address", listener.Addr().String())

	select {
	case <-ctx.Done():
		s.setServing(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serveErr:
		s.setServing(false)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	}
}

func (s *Service) routes() (*http.ServeMux, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)

	for _, adapter := range s.channels {
		path := adapter.Path()
		if path == "/healthz" || path == "/readyz" {
			return nil, fmt.Errorf("channel %s path %s collides with a status endpoint", adapter.Name(), path)
		}

		mux.Handle(path, adapter.Webhook(s.handler))
		s.setChannelState(adapter.Name(), channelState{Path: path, Mounted: true})
		s.log.Info("Channel webhook mounted", "channel", adapter.Name(), "path", path)
	}

	return mux, nil
}

func (s *Service) countEvents(stream <-chan bus.Event) {
	for event := range stream {
		s.mu.Lock()
		switch event.Type {
		case bus.EventWebhookReceived:
			s.counters.WebhooksReceived++
		case bus.EventSignatureRejected:
			s.counters.SignaturesRejected++
		case bus.EventReplySent:
			s.counters.RepliesSent++
		case bus.EventReplyFailed:
			s.counters.RepliesFailed++
		}
		s.mu.Unlock()
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondStatus(w, http.StatusOK, "ok")
}

func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	statusCode := http.StatusOK
	status := "ready"
	if !s.isReady() {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	s.respondStatus(w, statusCode, status)
}

func (s *Service) respondStatus(w http.ResponseWriter, statusCode int, status string) {
	payload := s.currentStatus(status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write status response", "error", err)
	}
}

func (s *Service) currentStatus(status string) statusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}

	channels := make(map[string]channelState, len(s.channelStates))
	for name, state := range s.channelStates {
		channels[name] = state
	}

	return statusResponse{
		Status:        status,
		UptimeSeconds: uptime,
		Channels:      channels,
		Counters:      s.counters,
	}
}

// isReady requires a serving listener and at least one mounted webhook.
func (s *Service) isReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.serving {
		return false
	}

	for _, state := range s.channelStates {
		if state.Mounted {
			return true
		}
	}

	return false
}

func (s *Service) setServing(serving bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serving = serving
}

func (s *Service) setChannelState(name string, state channelState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channelStates[name] = state
}
