package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angeloszaimis/failover-router/internal/queue"
	"github.com/angeloszaimis/failover-router/internal/registry"
	"github.com/angeloszaimis/failover-router/internal/router"
)

// RouteHandler exposes the failover router over HTTP. A routing request is
// served synchronously: when the router parks the request in the retry queue
// the handler holds the connection open until the ticket resolves.
type RouteHandler struct {
	logger   *slog.Logger
	router   *router.FailoverRouter
	registry *registry.Registry
}

func NewRouteHandler(logger *slog.Logger, fr *router.FailoverRouter, reg *registry.Registry) *RouteHandler {
	return &RouteHandler{
		logger:   logger,
		router:   fr,
		registry: reg,
	}
}

type routeRequest struct {
	Prompt       string   `json:"prompt"`
	Capability   string   `json:"capability,omitempty"`
	MaxTokens    int      `json:"max_tokens,omitempty"`
	Timeout      string   `json:"timeout,omitempty"`
	Deadline     string   `json:"deadline,omitempty"`
	Provider     string   `json:"provider,omitempty"`
	Chain        []string `json:"chain,omitempty"`
	DisableQueue bool     `json:"disable_queue,omitempty"`
}

type routeResponse struct {
	RequestID  string           `json:"request_id"`
	Outcome    string           `json:"outcome"`
	Provider   string           `json:"provider,omitempty"`
	Text       string           `json:"text,omitempty"`
	Model      string           `json:"model,omitempty"`
	TokensUsed int              `json:"tokens_used,omitempty"`
	LatencyMs  int64            `json:"latency_ms"`
	Cost       float64          `json:"cost,omitempty"`
	Attempted  []router.Attempt `json:"attempted,omitempty"`
	Error      string           `json:"error,omitempty"`
}

func (h *RouteHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	clientIP := extractClientIP(r)

	var body routeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if strings.TrimSpace(body.Prompt) == "" {
		http.Error(w, "prompt is required", http.StatusBadRequest)
		return
	}

	req, err := toRouterRequest(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.logger.Info("Received routing request",
		slog.String("request_id", req.ID),
		slog.String("from", clientIP),
		slog.String("capability", req.Capability),
		slog.String("provider", req.Provider))

	result := h.router.Route(r.Context(), req)

	if result.Outcome == router.OutcomeQueued {
		// Hold the connection until the queued request resolves or the
		// client goes away.
		select {
		case result = <-result.Ticket.Done():
		case <-r.Context().Done():
			h.logger.Warn("Client disconnected while request was queued",
				slog.String("request_id", req.ID))
			return
		}
	}

	writeResult(w, req.ID, result)
}

func toRouterRequest(body routeRequest) (router.Request, error) {
	req := router.Request{
		ID:           uuid.NewString(),
		Prompt:       body.Prompt,
		Capability:   body.Capability,
		MaxTokens:    body.MaxTokens,
		Provider:     body.Provider,
		Chain:        body.Chain,
		DisableQueue: body.DisableQueue,
	}

	if body.Timeout != "" {
		d, err := time.ParseDuration(body.Timeout)
		if err != nil {
			return router.Request{}, errors.New("invalid timeout duration")
		}
		req.Timeout = d
	}

	if body.Deadline != "" {
		d, err := time.ParseDuration(body.Deadline)
		if err != nil {
			return router.Request{}, errors.New("invalid deadline duration")
		}
		req.Deadline = d
	}

	return req, nil
}

func writeResult(w http.ResponseWriter, requestID string, result router.Result) {
	resp := routeResponse{
		RequestID: requestID,
		Outcome:   result.Outcome.String(),
		Provider:  result.Provider,
		LatencyMs: result.Latency.Milliseconds(),
		Cost:      result.Cost,
		Attempted: result.Attempted,
	}

	status := http.StatusOK
	if result.Outcome == router.OutcomeSuccess {
		resp.Text = result.Response.Text
		resp.Model = result.Response.Model
		resp.TokensUsed = result.Response.TokensUsed
	} else {
		status = statusFor(result.Err)
		if result.Err != nil {
			resp.Error = result.Err.Error()
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if result.Provider != "" {
		w.Header().Set("X-Served-By", result.Provider)
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrUnknownProvider):
		return http.StatusNotFound
	case errors.Is(err, queue.ErrQueueFull):
		return http.StatusTooManyRequests
	case errors.Is(err, router.ErrDeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, router.ErrAllProvidersUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}

	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}
