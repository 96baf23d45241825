// Package scope models the tenant filter every list and batch call is evaluated against.
package scope

import "fmt"

// Scope is either a single franchise (owner) or the unscoped system scope used by
// scheduled batch runs and administrators.
type Scope struct {
	OwnerID string
	System  bool
	// ActorID identifies who acts inside the scope; recorded as creator on new rows.
	ActorID string
}

func ForOwner(ownerID string) Scope {
	return Scope{OwnerID: ownerID}
}

func System() Scope {
	return Scope{System: true}
}

func (s Scope) WithActor(actorID string) Scope {
	s.ActorID = actorID
	return s
}

func (s Scope) IsZero() bool {
	return !s.System && s.OwnerID == ""
}

// Allows reports whether a row owned by ownerID is visible in this scope.
func (s Scope) Allows(ownerID string) bool {
	if s.System {
		return true
	}
	return s.OwnerID != "" && s.OwnerID == ownerID
}

func (s Scope) String() string {
	if s.System {
		return "system"
	}
	return fmt.Sprintf("owner:%s", s.OwnerID)
}
