package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/giantswarm/tandem/internal/api"
)

func TestCompute(t *testing.T) {
	window := api.Bounds{X: 0, Y: 0, Width: 1280, Height: 800}

	tests := []struct {
		name    string
		window  api.Bounds
		sidebar int
		state   api.LayoutState
		want    []Region
	}{
		{
			name:    "empty layout",
			window:  window,
			sidebar: 72,
			state:   api.LayoutState{},
			want:    nil,
		},
		{
			name:    "single region fills content",
			window:  window,
			sidebar: 72,
			state:   api.LayoutState{Primary: "a"},
			want: []Region{
				{UserID: "a", Bounds: api.Bounds{X: 72, Y: 0, Width: 1208, Height: 800}},
			},
		},
		{
			name:    "even split",
			window:  window,
			sidebar: 80,
			state:   api.LayoutState{Primary: "a", Secondary: "b"},
			want: []Region{
				{UserID: "a", Bounds: api.Bounds{X: 80, Y: 0, Width: 600, Height: 800}},
				{UserID: "b", Bounds: api.Bounds{X: 680, Y: 0, Width: 600, Height: 800}},
			},
		},
		{
			name:    "odd width gives remainder to second region",
			window:  api.Bounds{X: 10, Y: 20, Width: 1001, Height: 600},
			sidebar: 0,
			state:   api.LayoutState{Primary: "a", Secondary: "b"},
			want: []Region{
				{UserID: "a", Bounds: api.Bounds{X: 10, Y: 20, Width: 500, Height: 600}},
				{UserID: "b", Bounds: api.Bounds{X: 510, Y: 20, Width: 501, Height: 600}},
			},
		},
		{
			name:    "sidebar wider than window",
			window:  api.Bounds{Width: 50, Height: 100},
			sidebar: 72,
			state:   api.LayoutState{Primary: "a", Secondary: "b"},
			want: []Region{
				{UserID: "a", Bounds: api.Bounds{X: 50, Width: 0, Height: 100}},
				{UserID: "b", Bounds: api.Bounds{X: 50, Width: 0, Height: 100}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(tt.window, tt.sidebar, tt.state)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompute_RegionsTileContent(t *testing.T) {
	for w := 0; w < 50; w++ {
		window := api.Bounds{Width: 72 + w, Height: 10}
		regions := Compute(window, 72, api.LayoutState{Primary: "a", Secondary: "b"})
		if len(regions) != 2 {
			t.Fatalf("width %d: got %d regions", w, len(regions))
		}
		left, right := regions[0].Bounds, regions[1].Bounds
		if left.Width+right.Width != w {
			t.Errorf("width %d: regions sum to %d", w, left.Width+right.Width)
		}
		if left.X+left.Width != right.X {
			t.Errorf("width %d: regions do not meet (%d vs %d)", w, left.X+left.Width, right.X)
		}
	}
}
