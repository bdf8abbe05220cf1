package langflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"flowrelay/internal/domain"
	"flowrelay/internal/infra/config"
	"flowrelay/internal/infra/tracer"
)

// maxResponseBody caps how much of a backend response we read.
const maxResponseBody = 10 * 1024 * 1024 // 10 MB

// defaultTimeout bounds the whole request/response cycle when the config
// leaves it unset.
const defaultTimeout = 30 * time.Second

// Client invokes flows on the workflow-execution backend. One Client per
// process; the embedded pacer is the global invocation throttle.
type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	client  *http.Client
	pacer   *pacer
	logger  *slog.Logger
}

// runRequest is the backend's run payload.
type runRequest struct {
	InputValue string         `json:"input_value"`
	OutputType string         `json:"output_type"`
	InputType  string         `json:"input_type"`
	SessionID  string         `json:"session_id,omitempty"`
	Tweaks     map[string]any `json:"tweaks,omitempty"`
}

// NewClient creates a backend client from configuration.
func NewClient(cfg config.BackendConfig, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		timeout: timeout,
		client:  newHTTPClient(cfg),
		pacer:   newPacer(cfg.RateLimit),
		logger:  logger,
	}
}

// Run executes one flow invocation: exactly one round trip, no retries,
// no caching. Every failure is classified into the domain taxonomy;
// nothing unclassified escapes. The reply text comes back already
// normalized from the response envelope.
func (c *Client) Run(ctx context.Context, target domain.Target, text, sessionID string) (string, error) {
	const op = "Client.Run"

	if err := c.pacer.wait(ctx); err != nil {
		return "", domain.NewDomainError(op, domain.ErrTimeout, "cancelled while pacing")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ctx, span := tracer.StartSpan(ctx, "langflow.run")
	defer span.End()
	span.SetAttributes(
		tracer.StringAttr("target.key", target.Key),
		tracer.StringAttr("target.remote_id", target.RemoteID),
	)

	payload := runRequest{
		InputValue: text,
		OutputType: "chat",
		InputType:  "chat",
		SessionID:  sessionID,
		Tweaks:     target.Tweaks,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		tracer.RecordError(span, err)
		return "", domain.NewDomainError(op, err, "marshal payload")
	}

	endpoint := fmt.Sprintf("%s/api/v1/run/%s?stream=false", c.baseURL, url.PathEscape(target.RemoteID))
	c.logger.Info("invoking flow",
		"target", target.Key,
		"remote_id", target.RemoteID,
		"session", sessionID,
	)

	raw, err := c.post(ctx, endpoint, body)
	if err != nil {
		tracer.RecordError(span, err)
		return "", err
	}

	reply, err := ExtractReply(raw)
	if err != nil {
		tracer.RecordError(span, err)
		return "", err
	}

	tracer.SetOK(span)
	c.logger.Debug("flow invocation completed",
		"target", target.Key,
		"reply_len", len(reply),
	)
	return reply, nil
}

// post performs the JSON POST and maps transport and status failures into
// the domain taxonomy.
func (c *Client) post(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	const op = "Client.Run"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, domain.NewDomainError(op, err, "create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransport(op, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, classifyTransport(op, err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, &domain.StatusError{Code: httpResp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}

// classifyTransport maps a transport error to Timeout, Unreachable, or
// (rarely) an unclassified wrapped error the caller reports verbatim.
func classifyTransport(op string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return domain.NewDomainError(op, domain.ErrTimeout, err.Error())
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.EHOSTUNREACH), errors.Is(err, syscall.ENETUNREACH):
		return domain.NewDomainError(op, domain.ErrUnreachable, err.Error())
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.NewDomainError(op, domain.ErrTimeout, err.Error())
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return domain.NewDomainError(op, domain.ErrUnreachable, err.Error())
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return domain.NewDomainError(op, domain.ErrUnreachable, err.Error())
	}

	return domain.NewDomainError(op, err, "http request")
}
