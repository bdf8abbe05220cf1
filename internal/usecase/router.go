package usecase

import (
	"log/slog"
	"strings"

	"flowrelay/internal/domain"
)

// RouteConfig holds the routing policy knobs. The algorithm shape is
// fixed; only thresholds and designated targets come from configuration.
type RouteConfig struct {
	// DefaultTarget is the process-wide fallback target key.
	DefaultTarget string
	// LongFormTarget handles keyword-less messages longer than
	// LongFormThreshold bytes.
	LongFormTarget string
	// ConversationalTarget handles keyword-less messages containing
	// question or exclamation marks.
	ConversationalTarget string
	// LongFormThreshold is the long-form cutoff (default 500).
	LongFormThreshold int
	// AutoRouting enables content-based selection for @agent messages.
	// When disabled, @agent messages go to the default target.
	AutoRouting bool
	// SessionMemory enables sticky per-session default targets.
	SessionMemory bool
}

// DefaultLongFormThreshold is used when RouteConfig.LongFormThreshold is 0.
const DefaultLongFormThreshold = 500

// Router maps a parsed intent to a concrete target. Session bindings are
// read (never written) here; persisting a set-default binding is the
// pipeline's job so that all mutation lives in one place.
type Router struct {
	sessions domain.SessionStore
	cfg      RouteConfig
	logger   *slog.Logger
}

// NewRouter creates a router over the given session store.
func NewRouter(sessions domain.SessionStore, cfg RouteConfig, logger *slog.Logger) *Router {
	if cfg.LongFormThreshold <= 0 {
		cfg.LongFormThreshold = DefaultLongFormThreshold
	}
	return &Router{sessions: sessions, cfg: cfg, logger: logger}
}

// Resolve decides what to do with an intent against the current registry
// snapshot. The registry is immutable for the duration of the call.
func (r *Router) Resolve(intent domain.Intent, sessionID string, reg *domain.Registry) domain.ResolvedAction {
	switch intent.Kind {
	case domain.IntentListTargets:
		return domain.ResolvedAction{Kind: domain.ActionList}

	case domain.IntentSetDefault:
		target, ok := reg.ByKey(intent.TargetKey)
		if !ok {
			return domain.ResolvedAction{
				Kind:      domain.ActionSetDefault,
				NotFound:  true,
				KnownKeys: reg.Keys(),
			}
		}
		return domain.ResolvedAction{Kind: domain.ActionSetDefault, Target: target}

	case domain.IntentUseExplicit:
		target, ok := r.lookupExplicit(intent, reg)
		if !ok {
			// Unknown key is non-fatal: warn and downgrade to the default
			// target. The user's text is never dropped.
			r.logger.Warn("unknown target in directive, using default",
				"key", intent.TargetKey,
			)
			target = r.defaultTarget(reg)
		}
		return domain.ResolvedAction{Kind: domain.ActionInvoke, Target: target, Text: intent.Text}

	case domain.IntentUseAuto:
		target := r.defaultTarget(reg)
		if r.cfg.AutoRouting {
			target = r.selectByContent(intent.Text, reg)
		}
		return domain.ResolvedAction{Kind: domain.ActionInvoke, Target: target, Text: intent.Text}

	default: // IntentUseDefault
		return domain.ResolvedAction{
			Kind:   domain.ActionInvoke,
			Target: r.sessionTarget(sessionID, reg),
			Text:   intent.Text,
		}
	}
}

func (r *Router) lookupExplicit(intent domain.Intent, reg *domain.Registry) (domain.Target, bool) {
	if intent.ByRemoteID {
		return reg.ByRemoteID(intent.TargetKey)
	}
	return reg.ByKey(intent.TargetKey)
}

// sessionTarget returns the session's bound target if the binding is still
// valid, else the process default. A binding whose key vanished in a
// discovery refresh is stale and ignored.
func (r *Router) sessionTarget(sessionID string, reg *domain.Registry) domain.Target {
	if r.cfg.SessionMemory && sessionID != "" {
		if key, ok := r.sessions.Get(sessionID); ok {
			if target, ok := reg.ByKey(key); ok {
				return target
			}
			r.logger.Warn("session binding is stale, using default",
				"session", sessionID,
				"key", key,
			)
		}
	}
	return r.defaultTarget(reg)
}

// defaultTarget resolves the configured default key, falling back to the
// first registered target when the key is absent from the registry.
func (r *Router) defaultTarget(reg *domain.Registry) domain.Target {
	if target, ok := reg.ByKey(r.cfg.DefaultTarget); ok {
		return target
	}
	if targets := reg.Targets(); len(targets) > 0 {
		return targets[0]
	}
	return domain.Target{}
}

// selectByContent scores every keyword-bearing target by how many of its
// keywords occur as substrings of the lower-cased text. The strictly
// highest score wins; ties keep the first-registered target, which makes
// selection deterministic for a fixed registry.
func (r *Router) selectByContent(text string, reg *domain.Registry) domain.Target {
	lower := strings.ToLower(text)

	var best domain.Target
	bestScore := 0
	for _, target := range reg.Targets() {
		if len(target.Keywords) == 0 {
			continue
		}
		score := 0
		for _, kw := range target.Keywords {
			if strings.Contains(lower, kw) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = target, score
		}
	}
	if bestScore > 0 {
		return best
	}

	// No keyword matched anywhere: fall back on shape heuristics.
	if len(text) > r.cfg.LongFormThreshold {
		if target, ok := reg.ByKey(r.cfg.LongFormTarget); ok {
			return target
		}
	} else if strings.ContainsAny(text, "?!") {
		if target, ok := reg.ByKey(r.cfg.ConversationalTarget); ok {
			return target
		}
	}
	return r.defaultTarget(reg)
}
