package domain

// IntentKind classifies the routing intent parsed from a chat message.
type IntentKind int

const (
	// IntentListTargets lists the available targets; no backend call.
	IntentListTargets IntentKind = iota
	// IntentSetDefault binds a target as the session default.
	IntentSetDefault
	// IntentUseExplicit invokes a directive-named target.
	IntentUseExplicit
	// IntentUseAuto selects a target from message content.
	IntentUseAuto
	// IntentUseDefault invokes the session or process default.
	IntentUseDefault
)

// Intent is the parsed routing intent plus the cleaned message text.
type Intent struct {
	Kind IntentKind
	// TargetKey is set for IntentSetDefault and IntentUseExplicit.
	TargetKey string
	// ByRemoteID marks an explicit intent that addresses the target by
	// its backend flow id rather than by key.
	ByRemoteID bool
	// Text is the message with any directive prefix stripped. For
	// IntentUseDefault it is the original message unchanged.
	Text string
}

// ActionKind classifies the router's resolution of an intent.
type ActionKind int

const (
	// ActionList renders the registry contents.
	ActionList ActionKind = iota
	// ActionSetDefault persists a session binding (or reports NotFound).
	ActionSetDefault
	// ActionInvoke calls the backend with the resolved target.
	ActionInvoke
)

// ResolvedAction is the router's decision for one message.
type ResolvedAction struct {
	Kind   ActionKind
	Target Target
	Text   string
	// NotFound is set on ActionSetDefault when the requested key is
	// unknown; KnownKeys then carries the valid keys for the error reply.
	NotFound  bool
	KnownKeys []string
}
