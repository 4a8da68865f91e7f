package layout

import "github.com/giantswarm/tandem/internal/api"

// Region is one visible user and where it is drawn.
type Region struct {
	UserID string     `json:"userId"`
	Bounds api.Bounds `json:"bounds"`
}

// ContentBounds returns the window area to the right of the sidebar.
func ContentBounds(window api.Bounds, sidebarWidth int) api.Bounds {
	sidebar := max(0, sidebarWidth)
	return api.Bounds{
		X:      window.X + min(sidebar, max(0, window.Width)),
		Y:      window.Y,
		Width:  max(0, window.Width-sidebar),
		Height: max(0, window.Height),
	}
}

// Compute returns the regions for state. With only a primary it fills the
// content area; with both, the content width w is split into floor(w/2) and
// w-floor(w/2) so the regions meet exactly and the odd pixel goes right.
func Compute(window api.Bounds, sidebarWidth int, state api.LayoutState) []Region {
	if state.Primary == "" {
		return nil
	}

	content := ContentBounds(window, sidebarWidth)
	if state.Secondary == "" {
		return []Region{{UserID: state.Primary, Bounds: content}}
	}

	left := content.Width / 2
	return []Region{
		{
			UserID: state.Primary,
			Bounds: api.Bounds{X: content.X, Y: content.Y, Width: left, Height: content.Height},
		},
		{
			UserID: state.Secondary,
			Bounds: api.Bounds{X: content.X + left, Y: content.Y, Width: content.Width - left, Height: content.Height},
		},
	}
}
