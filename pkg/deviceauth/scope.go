package deviceauth

import "fmt"

// Scope is a capability granted to an access token
type Scope string

// Known scopes. Any other value fails to decode.
const (
	ScopeAssistant   Scope = "ASSISTANT"
	ScopeOffline     Scope = "OFFLINE"
	ScopeProfileRead Scope = "PROFILE_READ"
)

// ParseScope maps a wire value onto a known scope
func ParseScope(s string) (Scope, error) {
	switch scope := Scope(s); scope {
	case ScopeAssistant, ScopeOffline, ScopeProfileRead:
		return scope, nil
	default:
		return "", &DecodeError{Field: "scopes", Err: fmt.Errorf("%w %q", ErrUnknownScope, s)}
	}
}

func (s Scope) String() string {
	return string(s)
}
