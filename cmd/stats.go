package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gnolang/flowsym/internal/analysis/symbolic"
	"github.com/gnolang/flowsym/internal/frontend"
	"github.com/gnolang/flowsym/lint"
)

// stats command flags
var (
	threshold       int
	statsJsonOutput bool
)

var statsCmd = &cobra.Command{
	Use:   "stats [paths...]",
	Short: "Show per-function complexity and exploration cost",
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			fmt.Println("error: Please provide file paths")
			os.Exit(1)
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		config, err := lint.LoadConfig(cfgFile)
		if err != nil {
			logger.Fatal("Failed to load configuration", zap.Error(err))
		}
		stats, err := collectStats(ctx, args, config.Exploration.Options(), threshold)
		if err != nil {
			logger.Error("Error collecting statistics", zap.Error(err))
			os.Exit(1)
		}
		if err := printStats(os.Stdout, stats, statsJsonOutput); err != nil {
			logger.Error("Error printing statistics", zap.Error(err))
			os.Exit(1)
		}
	},
}

func init() {
	statsCmd.Flags().IntVar(&threshold, "threshold", 0, "Only show functions whose cyclomatic complexity is at least this")
	statsCmd.Flags().BoolVar(&statsJsonOutput, "json", false, "Output statistics in JSON format")
}

// ProcedureStats describes one exploration.
type ProcedureStats struct {
	Filename       string `json:"filename"`
	Procedure      string `json:"procedure"`
	Complexity     int    `json:"complexity"`
	Blocks         int    `json:"blocks"`
	Steps          int    `json:"steps"`
	ReturnStates   int    `json:"return_states"`
	BudgetExceeded bool   `json:"budget_exceeded"`
}

func collectStats(ctx context.Context, paths []string, opts symbolic.Options, threshold int) ([]ProcedureStats, error) {
	var stats []ProcedureStats
	for _, path := range paths {
		file, err := frontend.ParseSource(path, nil)
		if err != nil {
			return nil, fmt.Errorf("error analyzing %s: %w", path, err)
		}
		for _, proc := range file.Procedures {
			if proc.Context.Complexity < threshold {
				continue
			}
			res, err := symbolic.NewExplorer(opts, logger).Run(ctx, proc.Graph, proc.Context)
			if err != nil {
				return nil, fmt.Errorf("error exploring %s: %w", proc.Name, err)
			}
			stats = append(stats, ProcedureStats{
				Filename:       path,
				Procedure:      proc.Name,
				Complexity:     proc.Context.Complexity,
				Blocks:         len(proc.Graph.Blocks),
				Steps:          res.Steps,
				ReturnStates:   len(res.ReturnStates),
				BudgetExceeded: res.BudgetExceeded,
			})
		}
	}
	return stats, nil
}

func printStats(w io.Writer, stats []ProcedureStats, isJson bool) error {
	if isJson {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tFUNCTION\tCOMPLEXITY\tBLOCKS\tSTEPS\tRETURNS\tBUDGET")
	for _, s := range stats {
		budget := "ok"
		if s.BudgetExceeded {
			budget = "exceeded"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			s.Filename, s.Procedure, s.Complexity, s.Blocks, s.Steps, s.ReturnStates, budget)
	}
	return tw.Flush()
}
