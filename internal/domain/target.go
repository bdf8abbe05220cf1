package domain

import "strings"

// Target is one invokable backend identity: a workflow hosted by the
// flow-execution service, addressable from chat by a short key.
type Target struct {
	// Key is the stable lowercase identifier used in directives.
	Key string
	// RemoteID is the opaque flow id passed to the backend.
	RemoteID string
	// DisplayName is the human-readable label shown in responses.
	DisplayName string
	// Keywords drive content-based routing. Empty means the target is
	// only ever selected explicitly.
	Keywords []string
	// Tweaks are backend-side overrides (temperature, model, api keys)
	// embedded in the run payload when this target is invoked.
	Tweaks map[string]any
}

// Registry is an immutable, insertion-ordered set of targets with unique
// keys. Build one with NewRegistry and replace it wholesale on refresh;
// never mutate a Registry that readers may hold.
type Registry struct {
	targets []Target
	byKey   map[string]int
	byID    map[string]int
}

// NewRegistry builds a registry from targets in registration order.
// A duplicate key keeps the first registration and drops the rest.
func NewRegistry(targets []Target) *Registry {
	r := &Registry{
		byKey: make(map[string]int, len(targets)),
		byID:  make(map[string]int, len(targets)),
	}
	for _, t := range targets {
		key := strings.ToLower(t.Key)
		if _, dup := r.byKey[key]; dup {
			continue
		}
		t.Key = key
		r.byKey[key] = len(r.targets)
		if _, dup := r.byID[t.RemoteID]; !dup && t.RemoteID != "" {
			r.byID[t.RemoteID] = len(r.targets)
		}
		r.targets = append(r.targets, t)
	}
	return r
}

// ByKey looks up a target by its directive key.
func (r *Registry) ByKey(key string) (Target, bool) {
	i, ok := r.byKey[strings.ToLower(key)]
	if !ok {
		return Target{}, false
	}
	return r.targets[i], true
}

// ByRemoteID looks up a target by the backend flow id.
func (r *Registry) ByRemoteID(id string) (Target, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Target{}, false
	}
	return r.targets[i], true
}

// Targets returns targets in registration order. Callers must not modify
// the returned slice.
func (r *Registry) Targets() []Target { return r.targets }

// Keys returns target keys in registration order.
func (r *Registry) Keys() []string {
	keys := make([]string, len(r.targets))
	for i, t := range r.targets {
		keys[i] = t.Key
	}
	return keys
}

// Len returns the number of registered targets.
func (r *Registry) Len() int { return len(r.targets) }
