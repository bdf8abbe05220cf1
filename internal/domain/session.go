package domain

// SessionStore maps a session id to the target key the user bound with a
// set-default directive. Bindings are created on the first set-default for
// a session and overwritten by later ones. A binding may reference a key
// that a later discovery refresh removed; the router handles staleness by
// falling back to the process default.
type SessionStore interface {
	// Get returns the bound target key for a session, if any.
	Get(sessionID string) (string, bool)
	// Set binds a target key to a session, replacing any prior binding.
	Set(sessionID, targetKey string) error
	// Len reports the number of live bindings.
	Len() int
}
