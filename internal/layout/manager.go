package layout

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/giantswarm/tandem/internal/api"
	"github.com/giantswarm/tandem/internal/session"
	"github.com/giantswarm/tandem/pkg/logging"
)

// Resolver hands out browsing contexts, creating them on first use.
type Resolver interface {
	ResolveContext(ctx context.Context, userID string) (*session.BrowsingContext, error)
}

// ViewHost is the window system the views live in.
type ViewHost interface {
	// Attach makes the context's view visible at b.
	Attach(bc *session.BrowsingContext, b api.Bounds) error
	// SetBounds moves an attached view.
	SetBounds(handle string, b api.Bounds) error
	// Detach removes a view from the window without destroying it.
	Detach(handle string) error
}

// view is an attached context and its current bounds.
type view struct {
	ctx    *session.BrowsingContext
	bounds api.Bounds
}

// Manager owns the layout state and the set of attached views.
type Manager struct {
	resolver Resolver
	host     ViewHost
	sidebar  int

	mu     sync.Mutex
	window api.Bounds
	state  api.LayoutState
	views  map[string]*view
}

// NewManager creates a Manager with an empty layout.
func NewManager(resolver Resolver, host ViewHost, sidebarWidth int, window api.Bounds) *Manager {
	return &Manager{
		resolver: resolver,
		host:     host,
		sidebar:  sidebarWidth,
		window:   window,
		views:    make(map[string]*view),
	}
}

// State returns the current (primary, secondary) pair.
func (m *Manager) State() api.LayoutState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Window returns the current window bounds.
func (m *Manager) Window() api.Bounds {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.window
}

// Regions returns the current geometry.
func (m *Manager) Regions() []Region {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Compute(m.window, m.sidebar, m.state)
}

// SwitchTo shows userID alone.
func (m *Manager) SwitchTo(ctx context.Context, userID string) error {
	id := api.NormalizeUserID(userID)
	if id == "" {
		return api.InvalidIdentity("switch_to", id, "user id is empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	bc, err := m.resolver.ResolveContext(ctx, id)
	if err != nil {
		return err
	}

	m.state = api.LayoutState{Primary: id}
	return m.reconcileLocked(map[string]*session.BrowsingContext{id: bc})
}

// EnableSplit shows primary and secondary side by side. Equal ids leave the
// layout unchanged. Both contexts are resolved before anything changes.
func (m *Manager) EnableSplit(ctx context.Context, primary, secondary string) error {
	p := api.NormalizeUserID(primary)
	s := api.NormalizeUserID(secondary)
	if p == "" || s == "" {
		return api.InvalidIdentity("enable_split", p+","+s, "user id is empty")
	}
	if p == s {
		logging.Debug("Layout", "Ignoring split of user %s with itself", p)
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pc, err := m.resolver.ResolveContext(ctx, p)
	if err != nil {
		return err
	}
	sc, err := m.resolver.ResolveContext(ctx, s)
	if err != nil {
		return err
	}

	m.state = api.LayoutState{Primary: p, Secondary: s}
	return m.reconcileLocked(map[string]*session.BrowsingContext{p: pc, s: sc})
}

// OnResize records new window bounds and moves the views. The layout state
// is not touched.
func (m *Manager) OnResize(ctx context.Context, window api.Bounds) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.window = window
	return m.refreshLocked(ctx)
}

// Refresh re-resolves the visible users and re-attaches any view whose
// context was replaced, e.g. after its data was cleared.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshLocked(ctx)
}

func (m *Manager) refreshLocked(ctx context.Context) error {
	contexts := make(map[string]*session.BrowsingContext, 2)
	for _, id := range []string{m.state.Primary, m.state.Secondary} {
		if id == "" {
			continue
		}
		bc, err := m.resolver.ResolveContext(ctx, id)
		if err != nil {
			return err
		}
		contexts[id] = bc
	}
	return m.reconcileLocked(contexts)
}

// Forget drops userID from the layout. Removing the secondary ends the
// split; removing the primary promotes the secondary.
func (m *Manager) Forget(ctx context.Context, userID string) error {
	id := api.NormalizeUserID(userID)

	m.mu.Lock()
	defer m.mu.Unlock()

	switch id {
	case m.state.Secondary:
		m.state.Secondary = ""
	case m.state.Primary:
		m.state = api.LayoutState{Primary: m.state.Secondary}
	default:
		return nil
	}

	contexts := make(map[string]*session.BrowsingContext, 1)
	if m.state.Primary != "" {
		if v, ok := m.views[m.state.Primary]; ok {
			contexts[m.state.Primary] = v.ctx
		} else {
			bc, err := m.resolver.ResolveContext(ctx, m.state.Primary)
			if err != nil {
				return err
			}
			contexts[m.state.Primary] = bc
		}
	}
	// The forgotten user's view is detached by reconcile even though its
	// context may already be gone.
	return m.reconcileLocked(contexts)
}

// reconcileLocked brings the attached views in line with the desired
// regions: detach what is no longer wanted, attach what is missing, move
// what stayed. Running it twice in a row is a no-op.
func (m *Manager) reconcileLocked(contexts map[string]*session.BrowsingContext) error {
	desired := Compute(m.window, m.sidebar, m.state)
	want := make(map[string]api.Bounds, len(desired))
	for _, r := range desired {
		want[r.UserID] = r.Bounds
	}

	var errs []error

	for id, v := range m.views {
		b, keep := want[id]
		if keep && contexts[id] != nil && contexts[id].Handle == v.ctx.Handle {
			if b != v.bounds {
				if err := m.host.SetBounds(v.ctx.Handle, b); err != nil {
					errs = append(errs, fmt.Errorf("set bounds for %s: %w", id, err))
					continue
				}
				v.bounds = b
			}
			continue
		}
		if err := m.host.Detach(v.ctx.Handle); err != nil {
			errs = append(errs, fmt.Errorf("detach %s: %w", id, err))
		}
		delete(m.views, id)
	}

	for _, r := range desired {
		if _, ok := m.views[r.UserID]; ok {
			continue
		}
		bc := contexts[r.UserID]
		if bc == nil {
			errs = append(errs, fmt.Errorf("no browsing context for %s", r.UserID))
			continue
		}
		if err := m.host.Attach(bc, r.Bounds); err != nil {
			errs = append(errs, fmt.Errorf("attach %s: %w", r.UserID, err))
			continue
		}
		m.views[r.UserID] = &view{ctx: bc, bounds: r.Bounds}
	}

	return errors.Join(errs...)
}

// Attached returns the handles currently attached, keyed by user id.
func (m *Manager) Attached() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]string, len(m.views))
	for id, v := range m.views {
		out[id] = v.ctx.Handle
	}
	return out
}
