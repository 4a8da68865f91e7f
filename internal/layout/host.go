package layout

import (
	"fmt"
	"sort"
	"sync"

	"github.com/giantswarm/tandem/internal/api"
	"github.com/giantswarm/tandem/internal/session"
	"github.com/giantswarm/tandem/pkg/logging"
)

// HeadlessHost is a ViewHost without a window. It records which views
// would be shown and where, for the CLI and for an external presentation
// layer that polls the layout.
type HeadlessHost struct {
	mu    sync.Mutex
	views map[string]AttachedView
}

// AttachedView is one view known to a HeadlessHost.
type AttachedView struct {
	Handle    string     `json:"handle"`
	UserID    string     `json:"userId"`
	Partition string     `json:"partition"`
	Bounds    api.Bounds `json:"bounds"`
}

// NewHeadlessHost returns an empty host.
func NewHeadlessHost() *HeadlessHost {
	return &HeadlessHost{views: make(map[string]AttachedView)}
}

func (h *HeadlessHost) Attach(bc *session.BrowsingContext, b api.Bounds) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.views[bc.Handle]; ok {
		return fmt.Errorf("view %s is already attached", bc.Handle)
	}
	h.views[bc.Handle] = AttachedView{Handle: bc.Handle, UserID: bc.UserID, Partition: bc.Partition, Bounds: b}
	logging.Debug("Layout", "Attached view for user %s at %dx%d+%d+%d", bc.UserID, b.Width, b.Height, b.X, b.Y)
	return nil
}

func (h *HeadlessHost) SetBounds(handle string, b api.Bounds) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	v, ok := h.views[handle]
	if !ok {
		return fmt.Errorf("view %s is not attached", handle)
	}
	v.Bounds = b
	h.views[handle] = v
	return nil
}

func (h *HeadlessHost) Detach(handle string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.views[handle]; !ok {
		return fmt.Errorf("view %s is not attached", handle)
	}
	delete(h.views, handle)
	return nil
}

// Views returns the attached views ordered by x position.
func (h *HeadlessHost) Views() []AttachedView {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]AttachedView, 0, len(h.views))
	for _, v := range h.views {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Bounds.X < out[j].Bounds.X })
	return out
}
