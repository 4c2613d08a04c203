package cfg

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// PrintDot writes the graph in GraphViz dot format.
func (g *Graph) PrintDot(w io.Writer) {
	fmt.Fprintf(w, "digraph %q {\n", g.Name)
	fmt.Fprintf(w, "\tmode=\"heir\";\n")
	fmt.Fprintf(w, "\tsplines=\"ortho\";\n\n")

	for _, b := range g.Blocks {
		fmt.Fprintf(w, "\t%q [shape=box label=%q]\n", b.String(), blockLabel(b))
	}
	for _, b := range g.Blocks {
		for _, e := range b.Succs {
			if e.Kind == Regular {
				fmt.Fprintf(w, "\t%q -> %q\n", e.From.String(), e.To.String())
				continue
			}
			fmt.Fprintf(w, "\t%q -> %q [label=%q]\n", e.From.String(), e.To.String(), e.Kind.String())
		}
	}
	fmt.Fprintln(w, "}")
}

func blockLabel(b *Block) string {
	lines := []string{b.String()}
	if b.Region.Kind != RegionNone {
		lines[0] += fmt.Sprintf(" [%s %d]", b.Region.Kind, b.Region.Index)
	}
	for _, op := range b.Operations {
		lines = append(lines, op.String())
	}
	if b.Condition != nil {
		lines = append(lines, "if "+b.Condition.String())
	}
	return strings.Join(lines, "\n")
}

// RenderToGraphVizFile renders dot source with the `dot` binary. The output
// format follows the file extension (png when missing).
func RenderToGraphVizFile(dot []byte, output string) error {
	format := strings.TrimPrefix(filepath.Ext(output), ".")
	if format == "" {
		format = "png"
	}

	cmd := exec.Command("dot", "-T"+format, "-o", output)
	cmd.Stdin = strings.NewReader(string(dot))
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("error running dot: %w", err)
	}
	return nil
}
