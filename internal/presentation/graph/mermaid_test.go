package graph_test

import (
	"strings"
	"testing"

	"github.com/aretw0/waypoint/internal/presentation/graph"
	"github.com/aretw0/waypoint/pkg/domain"
	flow "github.com/aretw0/waypoint/pkg/graph"
	"github.com/stretchr/testify/assert"
)

var reviewSteps = []flow.Descriptor{
	{Name: "start", Next: "agent"},
	{Name: "agent", Next: "finalize"},
	{Name: "finalize", Next: domain.End, Interrupt: true},
}

func TestMermaid(t *testing.T) {
	tests := []struct {
		name     string
		steps    []flow.Descriptor
		overlay  *graph.Overlay
		contains []string
		excludes []string
	}{
		{
			name:  "Shapes",
			steps: reviewSteps,
			contains: []string{
				"graph TD\n",
				`start(("start"))`,
				`agent["agent"]`,
				`finalize[/"finalize"/]`,
				`__end__((("end")))`,
			},
		},
		{
			name:  "Edges",
			steps: reviewSteps,
			contains: []string{
				"start --> agent",
				`agent -. "review" .-> finalize`,
				"finalize --> __end__",
			},
		},
		{
			name: "ID Sanitization",
			steps: []flow.Descriptor{
				{Name: "load.input", Next: "run-model"},
				{Name: "run-model", Next: domain.End},
			},
			contains: []string{
				`load_input(("load.input"))`,
				"load_input --> run_model",
			},
		},
		{
			name:     "No Overlay",
			steps:    reviewSteps,
			excludes: []string{"classDef"},
		},
		{
			name:    "Overlay",
			steps:   reviewSteps,
			overlay: &graph.Overlay{Visited: []string{"start", "agent", "agent"}, Cursor: "finalize"},
			contains: []string{
				"classDef visited",
				"class start visited;",
				"class finalize current;",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := graph.Mermaid(tt.steps, tt.overlay)
			for _, want := range tt.contains {
				assert.Contains(t, out, want)
			}
			for _, unwanted := range tt.excludes {
				assert.NotContains(t, out, unwanted)
			}
			if tt.overlay != nil {
				assert.Equal(t, 1, strings.Count(out, "class agent visited;"))
			}
		})
	}
}

func TestOverlayFor(t *testing.T) {
	assert.Nil(t, graph.OverlayFor(nil))

	cp := &domain.Checkpoint{Cursor: "finalize", History: []string{"start", "agent"}}
	o := graph.OverlayFor(cp)
	assert.Equal(t, "finalize", o.Cursor)
	assert.Equal(t, []string{"start", "agent"}, o.Visited)
}
