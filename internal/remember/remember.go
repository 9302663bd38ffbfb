// Package remember computes whether an accepted login or consent decision is
// remembered by the authorization server, and for how long.
package remember

import "github.com/sing3demons/oryfm/internal/config"

// Decision is the remember part of an accept payload. The zero value means
// "do not remember".
type Decision struct {
	Remember    bool
	RememberFor int
}

// Policy is built once per flow from configuration.
type Policy struct {
	userRememberTime    int
	defaultRememberTime int
}

func NewPolicy(cfg config.RememberConfig) Policy {
	return Policy{
		userRememberTime:    cfg.UserRememberTime,
		defaultRememberTime: cfg.DefaultRememberTime,
	}
}

// extends reports whether opting in buys a longer window than the default.
func (p Policy) extends() bool {
	return p.userRememberTime > p.defaultRememberTime
}

// ShowChoice reports whether the remember checkbox is offered at all. It uses
// the same comparison as Decide, so a visible checkbox always changes the
// outcome when ticked.
func (p Policy) ShowChoice() bool {
	return p.extends()
}

// Decide applies the policy. optIn is the user's explicit checkbox; automatic
// accepts pass false.
func (p Policy) Decide(optIn bool) Decision {
	if optIn && p.extends() {
		return Decision{Remember: true, RememberFor: p.userRememberTime}
	}
	if p.defaultRememberTime > 0 {
		return Decision{Remember: true, RememberFor: p.defaultRememberTime}
	}
	return Decision{}
}
