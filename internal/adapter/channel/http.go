package channel

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"flowrelay/internal/domain"
	"flowrelay/internal/infra/middleware"
)

// HTTPChannel implements domain.Channel for a request/response HTTP API.
// Each POST /api/v1/chat call blocks until the pipeline delivers its
// reply through Send.
type HTTPChannel struct {
	server  *http.Server
	logger  *slog.Logger
	addr    string
	handler domain.MessageHandler

	// Extra handlers mounted on the mux, e.g. /metrics.
	extra map[string]http.Handler

	// Actual bound address (set after Start)
	boundAddr string

	mu      sync.Mutex
	pending map[string]chan domain.OutboundMessage

	ctx    context.Context
	cancel context.CancelFunc
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Content   string `json:"content"`
}

type chatResponse struct {
	SessionID string `json:"session_id"`
	Content   string `json:"content"`
	Error     string `json:"error,omitempty"`
}

// NewHTTPChannel creates an HTTP API channel.
func NewHTTPChannel(addr string, logger *slog.Logger) *HTTPChannel {
	return &HTTPChannel{
		addr:    addr,
		logger:  logger,
		pending: make(map[string]chan domain.OutboundMessage),
		extra:   make(map[string]http.Handler),
	}
}

var _ domain.Channel = (*HTTPChannel)(nil)

// Mount registers an additional handler on the channel's mux. Must be
// called before Start.
func (h *HTTPChannel) Mount(pattern string, handler http.Handler) {
	h.extra[pattern] = handler
}

// Addr returns the bound listen address once Start has returned.
func (h *HTTPChannel) Addr() string { return h.boundAddr }

// Start begins the HTTP server. Non-blocking (starts in goroutine).
func (h *HTTPChannel) Start(ctx context.Context, handler domain.MessageHandler) error {
	h.handler = handler
	h.ctx, h.cancel = context.WithCancel(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/chat", h.handleChat)
	mux.HandleFunc("/api/v1/health", h.handleHealth)
	for pattern, extra := range h.extra {
		mux.Handle(pattern, extra)
	}

	// Hardening headers plus 100 req/min per client with a burst of 20.
	secureHandler := middleware.SecurityHeaders(
		middleware.RateLimit(h.ctx, 100, 20)(mux),
	)

	h.server = &http.Server{
		Addr:              h.addr,
		Handler:           secureHandler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", h.addr, err)
	}
	h.boundAddr = ln.Addr().String()

	go func() {
		h.logger.Info("http channel started", "addr", h.boundAddr)
		if err := h.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			h.logger.Error("http server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (h *HTTPChannel) Stop(ctx context.Context) error {
	if h.cancel != nil {
		h.cancel()
	}
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}

// Send delivers a reply to the request blocked on this session.
func (h *HTTPChannel) Send(ctx context.Context, msg domain.OutboundMessage) error {
	h.mu.Lock()
	ch, ok := h.pending[msg.SessionID]
	h.mu.Unlock()

	if !ok {
		return domain.NewDomainError("HTTPChannel.Send", domain.ErrSessionNotFound, msg.SessionID)
	}

	select {
	case ch <- msg:
		return nil
	case <-ctx.Done():
		return domain.NewDomainError("HTTPChannel.Send", ctx.Err(),
			fmt.Sprintf("context cancelled for session %s", msg.SessionID))
	case <-time.After(5 * time.Second):
		return domain.NewDomainError("HTTPChannel.Send", fmt.Errorf("timeout"),
			fmt.Sprintf("timeout sending to session %s", msg.SessionID))
	}
}

// Name implements domain.Channel.
func (h *HTTPChannel) Name() string { return "http" }

func (h *HTTPChannel) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	// Keep request bodies bounded.
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errMsg := "invalid JSON: " + err.Error()
		if err.Error() == "http: request body too large" {
			errMsg = "request body too large (max 1MB)"
		}
		writeJSON(w, http.StatusBadRequest, chatResponse{Error: errMsg})
		return
	}

	if req.SessionID == "" {
		// Fresh sessions get a sortable unique id.
		req.SessionID = ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
	}
	if req.Content == "" {
		writeJSON(w, http.StatusBadRequest, chatResponse{
			SessionID: req.SessionID,
			Error:     "content is required",
		})
		return
	}

	respCh := make(chan domain.OutboundMessage, 1)
	h.mu.Lock()
	if _, inFlight := h.pending[req.SessionID]; inFlight {
		// A second concurrent request for the same session would steal
		// the first one's reply; refuse it instead.
		h.mu.Unlock()
		writeJSON(w, http.StatusConflict, chatResponse{
			SessionID: req.SessionID,
			Error:     "a request for this session is already in flight",
		})
		return
	}
	h.pending[req.SessionID] = respCh
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.pending, req.SessionID)
		h.mu.Unlock()
	}()

	msg := domain.InboundMessage{
		SessionID:   req.SessionID,
		Content:     req.Content,
		ChannelName: "http",
	}

	if err := h.handler(r.Context(), msg); err != nil {
		writeJSON(w, http.StatusInternalServerError, chatResponse{
			SessionID: req.SessionID,
			Error:     err.Error(),
		})
		return
	}

	select {
	case out := <-respCh:
		writeJSON(w, http.StatusOK, chatResponse{
			SessionID: req.SessionID,
			Content:   out.Content,
		})
	case <-r.Context().Done():
		http.Error(w, `{"error":"request cancelled"}`, http.StatusRequestTimeout)
	}
}

func (h *HTTPChannel) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
