package viz

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"
	"github.com/pkg/errors"

	"go.viam.com/motionkit/motionplan"
)

// DefaultMaxTreeNodes caps the nodes written to a DOT graph. Graphviz layout time grows quickly beyond it.
const DefaultMaxTreeNodes = 2000

// TreeToDOT converts the first maxNodes nodes of an RRT tree to a DOT digraph, edges pointing from parent to
// child. Nodes lying on path are highlighted. maxNodes <= 0 means DefaultMaxTreeNodes.
func TreeToDOT(tree *motionplan.Tree, path *motionplan.Path, maxNodes int) string {
	if maxNodes <= 0 {
		maxNodes = DefaultMaxTreeNodes
	}
	n := min(tree.Size(), maxNodes)
	onPath := map[string]bool{}
	if path != nil {
		for _, c := range path.Points() {
			onPath[c.String()] = true
		}
	}

	var buf bytes.Buffer
	name := "tree"
	if tree != nil {
		name = tree.Name()
	}
	fmt.Fprintf(&buf, "digraph %q {\n", name)
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  node [shape=point, width=0.05];\n")
	buf.WriteString("  edge [arrowhead=none, color=grey];\n\n")
	for i := 0; i < n; i++ {
		c := tree.Configuration(i)
		attrs := fmt.Sprintf("tooltip=%q", c.String())
		if onPath[c.String()] {
			attrs += ", color=red, width=0.12"
		}
		fmt.Fprintf(&buf, "  n%d [%s];\n", i, attrs)
	}
	buf.WriteString("\n")
	for i := 0; i < n; i++ {
		if p := tree.Parent(i); p >= 0 {
			fmt.Fprintf(&buf, "  n%d -> n%d;\n", p, i)
		}
	}
	buf.WriteString("}\n")
	return buf.String()
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "init graphviz")
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, errors.Wrap(err, "parse DOT")
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, errors.Wrap(err, "render")
	}
	return buf.Bytes(), nil
}
