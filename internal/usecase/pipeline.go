package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"flowrelay/internal/domain"
	"flowrelay/internal/infra/metrics"
)

// Backend performs one invocation round trip against the flow-execution
// service and returns the normalized reply text.
type Backend interface {
	Run(ctx context.Context, target domain.Target, text, sessionID string) (string, error)
}

// Catalog provides the current target registry snapshot. Implementations
// refresh behind the scenes; the returned registry is immutable.
type Catalog interface {
	Registry(ctx context.Context) *domain.Registry
}

// PipelineConfig holds reply formatting policy.
type PipelineConfig struct {
	// MultiTarget prepends the target display name to every reply. In
	// single-target mode replies carry no annotation.
	MultiTarget bool
}

// Pipeline is the stateful service that turns a raw chat message into a
// displayable reply: parse directive, resolve target, invoke backend,
// format outcome. One instance per process owns the session bindings;
// there are no package-level globals.
type Pipeline struct {
	router   *Router
	catalog  Catalog
	backend  Backend
	sessions domain.SessionStore
	cfg      PipelineConfig
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewPipeline wires the pipeline service. m must not be nil; pass a
// fresh &metrics.Metrics{} when scraping is disabled.
func NewPipeline(router *Router, catalog Catalog, backend Backend, sessions domain.SessionStore,
	cfg PipelineConfig, logger *slog.Logger, m *metrics.Metrics) *Pipeline {
	return &Pipeline{
		router:   router,
		catalog:  catalog,
		backend:  backend,
		sessions: sessions,
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
	}
}

// Respond handles one chat turn and always returns displayable text.
// Backend failures are fully recovered here: they become formatted error
// strings, never errors propagated to the channel.
func (p *Pipeline) Respond(ctx context.Context, sessionID, message string) string {
	prefix, body := p.respond(ctx, sessionID, message)
	return prefix + body
}

// Stream returns the reply as an ordered sequence of chunks. Concatenated
// with no separators the chunks reconstruct exactly what Respond returns.
func (p *Pipeline) Stream(ctx context.Context, sessionID, message string) <-chan string {
	out := make(chan string, 2)
	go func() {
		defer close(out)
		prefix, body := p.respond(ctx, sessionID, message)
		if prefix != "" {
			out <- prefix
		}
		out <- body
	}()
	return out
}

// respond returns the annotation prefix (possibly empty) and the reply
// body separately so Stream can chunk along the same boundary.
func (p *Pipeline) respond(ctx context.Context, sessionID, message string) (string, string) {
	p.metrics.MessagesRecv.Add(1)

	intent := Parse(message)
	reg := p.catalog.Registry(ctx)
	action := p.router.Resolve(intent, sessionID, reg)

	switch action.Kind {
	case domain.ActionList:
		p.metrics.ListCommands.Add(1)
		return "", p.renderList(reg)

	case domain.ActionSetDefault:
		p.metrics.SetCommands.Add(1)
		if action.NotFound {
			return "", fmt.Sprintf("error: unknown target %q. Known targets: %s",
				intent.TargetKey, strings.Join(action.KnownKeys, ", "))
		}
		if err := p.sessions.Set(sessionID, action.Target.Key); err != nil {
			p.logger.Error("persist session binding", "session", sessionID, "error", err)
			return "", "error: could not remember the default target for this session"
		}
		p.logger.Info("session default set",
			"session", sessionID,
			"target", action.Target.Key,
		)
		return "", fmt.Sprintf("Default target set to %s for this session.", action.Target.DisplayName)

	default: // ActionInvoke
		return p.invoke(ctx, sessionID, action)
	}
}

func (p *Pipeline) invoke(ctx context.Context, sessionID string, action domain.ResolvedAction) (string, string) {
	p.metrics.InvocationsTotal.Add(1)

	reply, err := p.backend.Run(ctx, action.Target, action.Text, sessionID)
	if err != nil {
		p.metrics.InvocationErrors.Add(1)
		p.logger.Error("backend invocation failed",
			"target", action.Target.Key,
			"code", string(domain.ErrorCodeOf(err)),
			"error", err,
		)
		return "", formatFailure(err, action.Target)
	}

	if p.cfg.MultiTarget && action.Target.DisplayName != "" {
		return action.Target.DisplayName + ": ", reply
	}
	return "", reply
}

// formatFailure maps an invocation error to the user-facing string for
// that failure class. Every backend failure lands in exactly one branch.
func formatFailure(err error, target domain.Target) string {
	name := target.DisplayName
	if name == "" {
		name = target.Key
	}

	var statusErr *domain.StatusError
	switch {
	case errors.As(err, &statusErr):
		return fmt.Sprintf("error: backend rejected the request (status %d)", statusErr.Code)
	case errors.Is(err, domain.ErrTimeout):
		return fmt.Sprintf("error: timed out waiting for a reply from %s", name)
	case errors.Is(err, domain.ErrUnreachable), errors.Is(err, domain.ErrCircuitOpen):
		return "error: could not reach the backend service"
	case errors.Is(err, domain.ErrMalformedReply):
		return fmt.Sprintf("error: %s returned an unreadable reply", name)
	default:
		return fmt.Sprintf("error: unexpected failure talking to %s: %v", name, err)
	}
}

// renderList formats the registry contents plus a short usage hint.
func (p *Pipeline) renderList(reg *domain.Registry) string {
	targets := reg.Targets()
	if len(targets) == 0 {
		return "error: no targets available"
	}

	var b strings.Builder
	b.WriteString("Available targets:\n\n")
	for _, t := range targets {
		b.WriteString(fmt.Sprintf("- %s\n", t.DisplayName))
		b.WriteString(fmt.Sprintf("  key: %s\n", t.Key))
		b.WriteString(fmt.Sprintf("  id: %s\n", truncateID(t.RemoteID)))
	}
	b.WriteString("\nUsage:\n")
	b.WriteString("- @workflow:<key> <message> to pick a target\n")
	b.WriteString("- @flow:<id> <message> to address a flow id directly\n")
	b.WriteString("- @set-workflow:<key> to set this session's default\n")
	b.WriteString("- @agent <message> to route by content\n")
	return b.String()
}

func truncateID(id string) string {
	if len(id) > 20 {
		return id[:20] + "..."
	}
	return id
}
