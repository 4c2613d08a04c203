package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gnolang/flowsym/internal/analysis/cfg"
	"github.com/gnolang/flowsym/internal/frontend"
)

// variable for flags
var (
	funcName string
	funcLine int
	output   string
)

var errFunctionNotFound = errors.New("function not found")

var cfgCmd = &cobra.Command{
	Use:   "cfg [paths...]",
	Short: "Print the control flow graph explored for a function",
	Long: `Outputs the control flow graph the engine explores for a function, in
GraphViz dot format, or renders it to a file with the dot binary.
Example) flowsym cfg --func MyFunction *.go
         flowsym cfg --line 42 main.go -o main.svg`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			fmt.Println("error: Please provide file paths")
			os.Exit(1)
		}
		if err := runCFGAnalysis(os.Stdout, args, funcName, funcLine, output); err != nil {
			logger.Error("CFG analysis failed", zap.Error(err))
			os.Exit(1)
		}
	},
}

func init() {
	cfgCmd.Flags().StringVar(&funcName, "func", "", "Function name, as printed in issues (F, T.M or (*T).M)")
	cfgCmd.Flags().IntVar(&funcLine, "line", 0, "Select the function enclosing this line instead of --func")
	cfgCmd.Flags().StringVarP(&output, "output", "o", "", "Output path for rendered GraphViz file")
}

func runCFGAnalysis(w io.Writer, paths []string, funcName string, line int, output string) error {
	for _, path := range paths {
		file, err := frontend.ParseSource(path, nil)
		if err != nil {
			logger.Error("Failed to parse file", zap.String("path", path), zap.Error(err))
			continue
		}

		var (
			proc *frontend.Procedure
			ok   bool
		)
		if line > 0 {
			proc, ok = file.Enclosing(line)
		} else {
			proc, ok = file.Lookup(funcName)
		}
		if !ok {
			continue
		}

		var buf bytes.Buffer
		printGraph(&buf, proc.Graph)
		if output != "" {
			if err := cfg.RenderToGraphVizFile(buf.Bytes(), output); err != nil {
				return err
			}
			fmt.Fprintf(w, "GraphViz file created: %s\n", output)
			return nil
		}
		fmt.Fprintf(w, "CFG for function %s in file %s:\n%s", proc.Name, path, buf.String())
		return nil
	}

	if line > 0 {
		return fmt.Errorf("%w at line %d", errFunctionNotFound, line)
	}
	return fmt.Errorf("%w: %s", errFunctionNotFound, funcName)
}

// printGraph prints g followed by the graphs of its function literals.
func printGraph(w io.Writer, g *cfg.Graph) {
	g.PrintDot(w)
	for _, nested := range g.NestedGraphs {
		printGraph(w, nested)
	}
}
