package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/waypoint/pkg/domain"
	flow "github.com/aretw0/waypoint/pkg/graph"
)

// Overlay marks the path a thread has taken on top of the static graph.
type Overlay struct {
	Visited []string
	Cursor  string
}

// OverlayFor builds an overlay from a checkpoint's history and cursor.
func OverlayFor(cp *domain.Checkpoint) *Overlay {
	if cp == nil {
		return nil
	}
	return &Overlay{Visited: cp.History, Cursor: cp.Cursor}
}

// Mermaid renders steps as a Mermaid flowchart.
// Shapes:
// - Entry: ((Circle))
// - Interrupt target: [/Parallelogram/]
// - End: (((Double circle)))
// - Default: [Rectangle]
// Edges into an interrupt target are dotted and labelled with the pause.
func Mermaid(steps []flow.Descriptor, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	interrupts := make(map[string]bool, len(steps))
	for _, s := range steps {
		interrupts[s.Name] = s.Interrupt
	}

	endUsed := false
	for i, s := range steps {
		safeID := sanitizeMermaidID(s.Name)

		opener, closer := "[", "]"
		switch {
		case i == 0:
			opener, closer = "((", "))"
		case s.Interrupt:
			opener, closer = "[/", "/]"
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", safeID, opener, s.Name, closer)

		if s.Next == "" {
			continue
		}
		if s.Next == domain.End {
			endUsed = true
		}
		arrow := "-->"
		if interrupts[s.Next] {
			arrow = "-. \"review\" .->"
		}
		fmt.Fprintf(&sb, "    %s %s %s\n", safeID, arrow, sanitizeMermaidID(s.Next))
	}
	if endUsed {
		fmt.Fprintf(&sb, "    %s(((\"end\")))\n", sanitizeMermaidID(domain.End))
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Black text keeps contrast on light fills in both themes.
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		seen := make(map[string]bool)
		for _, name := range overlay.Visited {
			safeID := sanitizeMermaidID(name)
			if safeID == "" || seen[safeID] {
				continue
			}
			seen[safeID] = true
			fmt.Fprintf(&sb, "    class %s visited;\n", safeID)
		}
		if overlay.Cursor != "" {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(overlay.Cursor))
		}
	}

	return sb.String()
}

func sanitizeMermaidID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", " ", "_")
	return r.Replace(id)
}
