// Package access holds the capability checks shared by the HTTP
// middleware and the lifecycle service. Checks are pure functions of the
// caller and the resource.
package access

import (
	"github.com/sudo-init-do/bidhub/internal/apperr"
	"github.com/sudo-init-do/bidhub/internal/user"
)

const MsgNoPermission = "You do not have permission to perform this action"

type Caller struct {
	ID   string
	Role user.Role
}

func CallerOf(u *user.User) Caller {
	if u == nil {
		return Caller{}
	}
	return Caller{ID: u.ID, Role: u.Role}
}

type Decision struct {
	Allowed bool
	Reason  string
}

func Allow() Decision { return Decision{Allowed: true} }

func Deny(reason string) Decision { return Decision{Reason: reason} }

// Err converts a denial into a Forbidden error.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	reason := d.Reason
	if reason == "" {
		reason = MsgNoPermission
	}
	return apperr.Forbidden(reason)
}

// Or replaces the reason of a denial.
func (d Decision) Or(reason string) Decision {
	if d.Allowed {
		return d
	}
	return Deny(reason)
}

func HasRole(c Caller, roles ...user.Role) Decision {
	for _, r := range roles {
		if c.Role == r {
			return Allow()
		}
	}
	return Deny(MsgNoPermission)
}

func Owns(c Caller, ownerID string) Decision {
	if c.ID != "" && c.ID == ownerID {
		return Allow()
	}
	return Deny(MsgNoPermission)
}

// All returns the first denial, or Allow.
func All(ds ...Decision) Decision {
	for _, d := range ds {
		if !d.Allowed {
			return d
		}
	}
	return Allow()
}
