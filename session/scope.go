package session

// Scope selects where a session is persisted
type Scope int

const (
	ScopeDurable   Scope = iota // Survives restarts ("remember me")
	ScopeEphemeral              // Cleared when the browsing/terminal session ends
)

func (s Scope) String() string {
	switch s {
	case ScopeDurable:
		return "durable"
	case ScopeEphemeral:
		return "ephemeral"
	}
	return "unknown"
}

// ChooseScope maps the "remember me" flag to a persistence scope
func ChooseScope(rememberMe bool) Scope {
	if rememberMe {
		return ScopeDurable
	}
	return ScopeEphemeral
}
