package layout

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/tandem/internal/api"
	"github.com/giantswarm/tandem/internal/session"
)

type staticUsers map[string]bool

func (s staticUsers) GetUser(id string) (*api.User, error) {
	if !s[id] {
		return nil, api.UnknownUser("get_user", id)
	}
	return &api.User{ID: id}, nil
}

// recordingHost is a ViewHost that remembers which views are attached.
type recordingHost struct {
	mu       sync.Mutex
	attached map[string]api.Bounds
	calls    []string
}

func newRecordingHost() *recordingHost {
	return &recordingHost{attached: make(map[string]api.Bounds)}
}

func (h *recordingHost) Attach(bc *session.BrowsingContext, b api.Bounds) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attached[bc.Handle] = b
	h.calls = append(h.calls, "attach "+bc.UserID)
	return nil
}

func (h *recordingHost) SetBounds(handle string, b api.Bounds) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attached[handle] = b
	h.calls = append(h.calls, "bounds")
	return nil
}

func (h *recordingHost) Detach(handle string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.attached, handle)
	h.calls = append(h.calls, "detach")
	return nil
}

func (h *recordingHost) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

type harness struct {
	registry *session.Registry
	host     *recordingHost
	manager  *Manager
}

func newHarness(users ...string) *harness {
	known := staticUsers{}
	for _, u := range users {
		known[u] = true
	}
	registry := session.NewRegistry(known, session.NewMemoryBackend())
	host := newRecordingHost()
	return &harness{
		registry: registry,
		host:     host,
		manager:  NewManager(registry, host, 72, api.Bounds{Width: 1272, Height: 800}),
	}
}

func TestManager_SwitchTo(t *testing.T) {
	ctx := context.Background()
	h := newHarness("u1", "u2")

	require.NoError(t, h.manager.SwitchTo(ctx, "u1"))
	assert.Equal(t, api.LayoutState{Primary: "u1"}, h.manager.State())

	bc, ok := h.registry.Lookup("u1")
	require.True(t, ok)
	assert.Equal(t, api.Bounds{X: 72, Width: 1200, Height: 800}, h.host.attached[bc.Handle])

	require.NoError(t, h.manager.SwitchTo(ctx, "u2"))
	assert.Equal(t, api.LayoutState{Primary: "u2"}, h.manager.State())
	assert.Len(t, h.host.attached, 1, "previous view must be detached")
}

func TestManager_SwitchToUnknownUser(t *testing.T) {
	h := newHarness("u1")

	err := h.manager.SwitchTo(context.Background(), "ghost")
	assert.True(t, api.IsCode(err, api.CodeUnknownUser), "got %v", err)
	assert.Equal(t, api.LayoutState{}, h.manager.State())
	_, ok := h.registry.Lookup("ghost")
	assert.False(t, ok)
}

func TestManager_EnableSplit(t *testing.T) {
	ctx := context.Background()
	h := newHarness("u1", "u2")

	require.NoError(t, h.manager.EnableSplit(ctx, "u1", "u2"))
	assert.Equal(t, api.LayoutState{Primary: "u1", Secondary: "u2"}, h.manager.State())

	regions := h.manager.Regions()
	require.Len(t, regions, 2)
	assert.Equal(t, 600, regions[0].Bounds.Width)
	assert.Equal(t, 600, regions[1].Bounds.Width)
	assert.Len(t, h.host.attached, 2)
}

func TestManager_EnableSplitSameUserIsNoop(t *testing.T) {
	ctx := context.Background()
	h := newHarness("u1", "u2")
	require.NoError(t, h.manager.SwitchTo(ctx, "u2"))

	require.NoError(t, h.manager.EnableSplit(ctx, "u1", "u1"))
	assert.Equal(t, api.LayoutState{Primary: "u2"}, h.manager.State())
}

func TestManager_EnableSplitEmptyID(t *testing.T) {
	h := newHarness("u1")

	err := h.manager.EnableSplit(context.Background(), "u1", " ")
	assert.True(t, api.IsCode(err, api.CodeInvalidIdentity), "got %v", err)
}

func TestManager_EnableSplitUnknownSecondary(t *testing.T) {
	ctx := context.Background()
	h := newHarness("u1")
	require.NoError(t, h.manager.SwitchTo(ctx, "u1"))
	calls := h.host.callCount()

	err := h.manager.EnableSplit(ctx, "u1", "u2")
	assert.True(t, api.IsCode(err, api.CodeUnknownUser), "got %v", err)
	assert.Equal(t, api.LayoutState{Primary: "u1"}, h.manager.State())
	assert.Equal(t, calls, h.host.callCount(), "no view may change")

	_, ok := h.registry.Lookup("u2")
	assert.False(t, ok, "no context for the unknown user")
}

func TestManager_OnResizeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness("u1", "u2")
	require.NoError(t, h.manager.EnableSplit(ctx, "u1", "u2"))

	bounds := api.Bounds{Width: 1073, Height: 700}
	require.NoError(t, h.manager.OnResize(ctx, bounds))
	first := h.manager.Regions()
	calls := h.host.callCount()

	require.NoError(t, h.manager.OnResize(ctx, bounds))
	assert.Equal(t, first, h.manager.Regions())
	assert.Equal(t, calls, h.host.callCount())
	assert.Equal(t, api.LayoutState{Primary: "u1", Secondary: "u2"}, h.manager.State())

	assert.Equal(t, 500, first[0].Bounds.Width)
	assert.Equal(t, 501, first[1].Bounds.Width)
}

func TestManager_RefreshReattachesClearedContext(t *testing.T) {
	ctx := context.Background()
	h := newHarness("u1")
	require.NoError(t, h.manager.SwitchTo(ctx, "u1"))
	before := h.manager.Attached()["u1"]

	require.NoError(t, h.registry.ClearData(ctx, "u1"))
	require.NoError(t, h.manager.Refresh(ctx))

	after := h.manager.Attached()["u1"]
	assert.NotEqual(t, before, after)
	assert.NotContains(t, h.host.attached, before)
	assert.Contains(t, h.host.attached, after)
}

func TestManager_Forget(t *testing.T) {
	tests := []struct {
		name   string
		forget string
		want   api.LayoutState
	}{
		{name: "secondary ends split", forget: "u2", want: api.LayoutState{Primary: "u1"}},
		{name: "primary promotes secondary", forget: "u1", want: api.LayoutState{Primary: "u2"}},
		{name: "invisible user", forget: "u3", want: api.LayoutState{Primary: "u1", Secondary: "u2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness("u1", "u2", "u3")
			require.NoError(t, h.manager.EnableSplit(ctx, "u1", "u2"))

			require.NoError(t, h.manager.Forget(ctx, tt.forget))
			assert.Equal(t, tt.want, h.manager.State())
			assert.Len(t, h.host.attached, len(h.manager.Regions()))
		})
	}
}

func TestManager_ForgetLastUserEmptiesLayout(t *testing.T) {
	ctx := context.Background()
	h := newHarness("u1")
	require.NoError(t, h.manager.SwitchTo(ctx, "u1"))

	require.NoError(t, h.manager.Forget(ctx, "u1"))
	assert.Equal(t, api.LayoutState{}, h.manager.State())
	assert.Empty(t, h.host.attached)
}

func TestManager_WithHeadlessHost(t *testing.T) {
	ctx := context.Background()
	known := staticUsers{"u1": true, "u2": true}
	registry := session.NewRegistry(known, session.NewMemoryBackend())
	host := NewHeadlessHost()
	m := NewManager(registry, host, 0, api.Bounds{Width: 101, Height: 50})

	require.NoError(t, m.EnableSplit(ctx, "u1", "u2"))
	views := host.Views()
	require.Len(t, views, 2)
	assert.Equal(t, "u1", views[0].UserID)
	assert.Equal(t, 50, views[0].Bounds.Width)
	assert.Equal(t, "u2", views[1].UserID)
	assert.Equal(t, 51, views[1].Bounds.Width)

	require.NoError(t, m.SwitchTo(ctx, "u2"))
	views = host.Views()
	require.Len(t, views, 1)
	assert.Equal(t, "u2", views[0].UserID)
	assert.Equal(t, 101, views[0].Bounds.Width)
}
