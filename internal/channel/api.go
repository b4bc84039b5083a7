// Package channel exposes the engine to the outside world: the platform's
// HTTP API and an optional Telegram transport for live decoy numbers.
package channel

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"honeypot/internal/config"
	"honeypot/internal/domain"
	"honeypot/internal/metrics"
)

// EventHandler processes one inbound scam event. Implemented by the engine.
type EventHandler interface {
	HandleEvent(ctx context.Context, evt domain.InboundEvent) (domain.EventResponse, error)
}

// API is the HTTP server the messaging platform posts scam events to.
type API struct {
	host    string
	port    int
	apiKey  string
	expose  bool // serve /metrics
	handler EventHandler
	logger  *slog.Logger
	server  *http.Server
}

func NewAPI(cfg config.APIConfig, metricsCfg config.MetricsConfig, handler EventHandler, logger *slog.Logger) *API {
	return &API{
		host:    cfg.Host,
		port:    cfg.Port,
		apiKey:  cfg.APIKey,
		expose:  metricsCfg.Enabled,
		handler: handler,
		logger:  logger,
	}
}

// wire types mirror the platform's payload.
type wireMessage struct {
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

type wireMetadata struct {
	Channel  string `json:"channel"`
	Language string `json:"language"`
	Locale   string `json:"locale"`
}

type scamEventRequest struct {
	SessionID           string        `json:"sessionId"`
	Message             wireMessage   `json:"message"`
	ConversationHistory []wireMessage `json:"conversationHistory"`
	Metadata            *wireMetadata `json:"metadata"`
}

// Start runs the server until ctx is cancelled.
func (a *API) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /scam-event", a.handleScamEvent)
	mux.HandleFunc("GET /health", a.handleHealth)
	if a.expose {
		mux.HandleFunc("GET /metrics", metrics.Collector.Handler())
	}

	a.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.host, a.port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("api server starting", "addr", a.server.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("api server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("api server: %w", err)
	}
}

func (a *API) handleHealth(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "application/json")
	json.NewEncoder(rw).Encode(map[string]string{
		"status":  "healthy",
		"service": "agentic-honeypot",
	})
}

func (a *API) handleScamEvent(rw http.ResponseWriter, r *http.Request) {
	if a.apiKey != "" {
		key := r.Header.Get("X-API-Key")
		if key == "" {
			http.Error(rw, "Missing API key", http.StatusUnauthorized)
			return
		}
		if subtle.ConstantTimeCompare([]byte(key), []byte(a.apiKey)) != 1 {
			a.logger.Warn("invalid api key attempt", "remote", r.RemoteAddr)
			http.Error(rw, "Invalid API Key", http.StatusForbidden)
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(rw, "Bad Request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var payload scamEventRequest
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(rw, "Invalid JSON", http.StatusBadRequest)
		return
	}

	evt, err := decodeEvent(payload)
	if err != nil {
		http.Error(rw, err.Error(), http.StatusBadRequest)
		return
	}

	resp, err := a.handler.HandleEvent(r.Context(), evt)
	if err != nil {
		a.logger.Error("event processing failed", "session", evt.SessionID, "error", err)
		http.Error(rw, "Internal server error", http.StatusInternalServerError)
		return
	}

	rw.Header().Set("Content-Type", "application/json")
	json.NewEncoder(rw).Encode(resp)
}

func decodeEvent(payload scamEventRequest) (domain.InboundEvent, error) {
	if payload.SessionID == "" {
		return domain.InboundEvent{}, fmt.Errorf("sessionId is required")
	}
	msg, err := decodeMessage(payload.Message)
	if err != nil {
		return domain.InboundEvent{}, fmt.Errorf("message: %w", err)
	}

	history := make([]domain.Message, 0, len(payload.ConversationHistory))
	for i, wm := range payload.ConversationHistory {
		m, err := decodeMessage(wm)
		if err != nil {
			return domain.InboundEvent{}, fmt.Errorf("conversationHistory[%d]: %w", i, err)
		}
		history = append(history, m)
	}

	evt := domain.InboundEvent{
		SessionID: payload.SessionID,
		Message:   msg,
		History:   history,
	}
	if payload.Metadata != nil {
		evt.Metadata = domain.Metadata{
			Channel:  payload.Metadata.Channel,
			Language: payload.Metadata.Language,
			Locale:   payload.Metadata.Locale,
		}
	}
	return evt, nil
}

func decodeMessage(wm wireMessage) (domain.Message, error) {
	if wm.Text == "" {
		return domain.Message{}, fmt.Errorf("text is required")
	}
	var sender domain.Sender
	switch wm.Sender {
	case string(domain.SenderScammer):
		sender = domain.SenderScammer
	case string(domain.SenderAgent):
		sender = domain.SenderAgent
	default:
		return domain.Message{}, fmt.Errorf("unknown sender %q", wm.Sender)
	}
	ts, err := parseTimestamp(wm.Timestamp)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{Sender: sender, Text: wm.Text, Timestamp: ts}, nil
}

// parseTimestamp accepts RFC 3339 and a few zone-less variants senders use.
func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("timestamp is required")
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}
