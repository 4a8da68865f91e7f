package api

import (
	"strings"
	"time"
)

// User is one isolated browser identity.
type User struct {
	ID              string    `json:"id" yaml:"id"`
	Name            string    `json:"name" yaml:"name"`
	LastActive      time.Time `json:"lastActive" yaml:"lastActive"`
	IsAuthenticated bool      `json:"isAuthenticated" yaml:"isAuthenticated"`
	Email           string    `json:"email,omitempty" yaml:"email,omitempty"`
	Picture         string    `json:"picture,omitempty" yaml:"picture,omitempty"`
}

// UserLookup answers "is this a known user?". The Identity Store is the
// single source of truth; every other component reads through this.
type UserLookup interface {
	GetUser(id string) (*User, error)
}

// NormalizeUserID trims surrounding whitespace from a user id.
func NormalizeUserID(id string) string {
	return strings.TrimSpace(id)
}

// PrincipalKind distinguishes the privileged control surface from a
// per-user browsing context.
type PrincipalKind int

const (
	// PrincipalNone is the zero value and is never authorized.
	PrincipalNone PrincipalKind = iota
	// PrincipalControlSurface is the top-level presentation layer.
	PrincipalControlSurface
	// PrincipalUser is a browsing context owned by a specific user.
	PrincipalUser
)

// Principal identifies the caller of a request. It is attached at the
// transport boundary and never inferred later.
type Principal struct {
	Kind   PrincipalKind
	UserID string
}

// ControlSurface returns the privileged control-surface principal.
func ControlSurface() Principal {
	return Principal{Kind: PrincipalControlSurface}
}

// UserPrincipal returns the principal of the browsing context owned by userID.
func UserPrincipal(userID string) Principal {
	return Principal{Kind: PrincipalUser, UserID: NormalizeUserID(userID)}
}

// IsControlSurface reports whether p is the privileged control surface.
func (p Principal) IsControlSurface() bool {
	return p.Kind == PrincipalControlSurface
}

func (p Principal) String() string {
	switch p.Kind {
	case PrincipalControlSurface:
		return "control-surface"
	case PrincipalUser:
		return "user:" + p.UserID
	default:
		return "none"
	}
}

// LayoutState is the pair of visible users. Secondary is only set when
// Primary is set, and the two are never equal.
type LayoutState struct {
	Primary   string `json:"primary,omitempty"`
	Secondary string `json:"secondary,omitempty"`
}

// IsSplit reports whether two regions are visible.
func (s LayoutState) IsSplit() bool {
	return s.Secondary != ""
}

// Valid reports whether the layout invariants hold.
func (s LayoutState) Valid() bool {
	if s.Secondary != "" && s.Primary == "" {
		return false
	}
	if s.Secondary != "" && s.Primary == s.Secondary {
		return false
	}
	return true
}

// Bounds is a rectangle in window coordinates.
type Bounds struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}
