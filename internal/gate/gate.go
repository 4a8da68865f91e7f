package gate

import (
	"github.com/giantswarm/tandem/internal/api"
	"github.com/giantswarm/tandem/pkg/logging"
)

// OwnerLookup maps a browsing-context handle to the user that owns it.
type OwnerLookup interface {
	ContextOwner(handle string) (string, bool)
}

// Gate authorizes destructive operations.
type Gate struct {
	users  api.UserLookup
	owners OwnerLookup

	// controlHandle is the handle of the control surface's own view, if it
	// has one. Requests from it map to the control-surface principal.
	controlHandle string
}

// Option configures a Gate.
type Option func(*Gate)

// WithControlSurfaceHandle registers the handle of the control surface.
func WithControlSurfaceHandle(handle string) Option {
	return func(g *Gate) { g.controlHandle = handle }
}

// New creates a Gate.
func New(users api.UserLookup, owners OwnerLookup, opts ...Option) *Gate {
	g := &Gate{users: users, owners: owners}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// AuthorizeDataClear reports whether principal may clear target's data.
// The target must exist; the control surface may clear anyone; a user may
// only clear itself.
func (g *Gate) AuthorizeDataClear(principal api.Principal, targetUserID string) error {
	const op = "clear_user_data"

	target := api.NormalizeUserID(targetUserID)
	if target == "" {
		return api.InvalidIdentity(op, target, "user id is empty")
	}
	if _, err := g.users.GetUser(target); err != nil {
		return err
	}

	switch {
	case principal.IsControlSurface():
		logging.Audit("data_clear_authorized", "Data clear authorized",
			"principal", principal.String(), "target_user", target)
		return nil
	case principal.Kind == api.PrincipalUser && principal.UserID != "" && principal.UserID == target:
		logging.Audit("data_clear_authorized", "Data clear authorized",
			"principal", principal.String(), "target_user", target)
		return nil
	}

	logging.Audit("data_clear_denied", "Data clear denied",
		"principal", principal.String(), "target_user", target)
	return api.Unauthorized(op, target)
}

// PrincipalForHandle returns the principal for requests arriving from the
// view with the given handle. Unknown handles get the zero principal, which
// is never authorized.
func (g *Gate) PrincipalForHandle(handle string) api.Principal {
	if handle == "" {
		return api.Principal{}
	}
	if g.controlHandle != "" && handle == g.controlHandle {
		return api.ControlSurface()
	}
	if owner, ok := g.owners.ContextOwner(handle); ok {
		return api.UserPrincipal(owner)
	}
	return api.Principal{}
}

// AuthorizeHandle authorizes a data clear for a request identified only by
// its originating view handle.
func (g *Gate) AuthorizeHandle(handle, targetUserID string) error {
	principal := g.PrincipalForHandle(handle)
	if principal.Kind == api.PrincipalNone {
		target := api.NormalizeUserID(targetUserID)
		if _, err := g.users.GetUser(target); err != nil {
			return err
		}
		logging.Audit("data_clear_denied", "Data clear denied for unknown view",
			"target_user", target)
		return api.Unauthorized("clear_user_data", target)
	}
	return g.AuthorizeDataClear(principal, targetUserID)
}
