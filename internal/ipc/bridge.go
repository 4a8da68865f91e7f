package ipc

import (
	"context"

	"github.com/giantswarm/tandem/internal/api"
	"github.com/giantswarm/tandem/internal/session"
	"github.com/giantswarm/tandem/internal/shell"
	"github.com/giantswarm/tandem/pkg/logging"
)

// ContextBridge serves requests coming from one browsing context.
type ContextBridge struct {
	shell     *shell.Shell
	policy    session.Policy
	handle    string
	principal api.Principal
}

// AttachBridge binds a bridge to the context with the given handle. The
// principal is looked up once, here, and never taken from a request.
func AttachBridge(sh *shell.Shell, policy session.Policy, handle string) (*ContextBridge, error) {
	principal := sh.Gate().PrincipalForHandle(handle)
	if principal.Kind == api.PrincipalNone {
		return nil, api.Unauthorized("attach_bridge", handle)
	}
	logging.Debug("IPC", "Attached bridge for context %s as %s", handle, principal)
	return &ContextBridge{shell: sh, policy: policy, handle: handle, principal: principal}, nil
}

// Principal returns the identity the bridge acts as.
func (b *ContextBridge) Principal() api.Principal {
	return b.principal
}

// ClearOwnData wipes the owning user's data.
func (b *ContextBridge) ClearOwnData(ctx context.Context) error {
	return b.shell.ClearUserData(ctx, b.principal, b.principal.UserID)
}

// ClearUserData asks to wipe target's data. The gate denies any target
// other than the owner.
func (b *ContextBridge) ClearUserData(ctx context.Context, target string) error {
	return b.shell.ClearUserData(ctx, b.principal, target)
}

// AllowNavigation reports whether the context may load url.
func (b *ContextBridge) AllowNavigation(url string) bool {
	return b.policy.AllowOrigin(url)
}

// AllowPermission reports whether the context may be granted permission
// for origin.
func (b *ContextBridge) AllowPermission(origin, permission string) bool {
	allowed := b.policy.AllowPermission(origin, permission)
	if !allowed {
		logging.Debug("IPC", "Denied %s permission for %s in context %s", permission, origin, b.handle)
	}
	return allowed
}
