package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gnolang/flowsym/formatter"
	"github.com/gnolang/flowsym/internal"
	tt "github.com/gnolang/flowsym/internal/types"
	"github.com/gnolang/flowsym/lint"
)

var (
	ignoreRules  string
	ignorePaths  string
	jsonOutput   bool
	outPath      string
	watchMode    bool
	useCache     bool
	cacheDir     string
	packagesMode bool
)

var analyzeCmd = &cobra.Command{
	Use:     "analyze [paths...]",
	Aliases: []string{"lint"},
	Short:   "Explore every function of the given files and report defects",
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			fmt.Println("error: Please provide file or directory paths")
			os.Exit(1)
		}

		engine, err := newEngine()
		if err != nil {
			logger.Fatal("Failed to initialize engine", zap.Error(err))
		}

		if watchMode {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			if err := runWatch(ctx, engine, args); err != nil && ctx.Err() == nil {
				logger.Fatal("Watch failed", zap.Error(err))
			}
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		var issues []tt.Issue
		if packagesMode {
			issues, err = lint.ProcessPackages(engine, args...)
		} else {
			issues, err = lint.ProcessFiles(ctx, logger, engine, args, lint.ProcessFile)
		}
		if err != nil {
			logger.Error("Error processing files", zap.Error(err))
			os.Exit(1)
		}

		if err := printIssues(os.Stdout, issues, jsonOutput, outPath); err != nil {
			logger.Error("Error printing issues", zap.Error(err))
			os.Exit(1)
		}
		if hasErrors(issues) {
			os.Exit(1)
		}
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&ignoreRules, "ignore", "", "Comma-separated list of rules to ignore")
	analyzeCmd.Flags().StringVar(&ignorePaths, "ignore-paths", "", "Comma-separated list of paths to ignore")
	analyzeCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output issues in JSON format")
	analyzeCmd.Flags().StringVarP(&outPath, "output", "o", "", "Output path (when using JSON)")
	analyzeCmd.Flags().BoolVarP(&watchMode, "watch", "w", false, "Re-analyze files when they change")
	analyzeCmd.Flags().BoolVar(&useCache, "cache", false, "Reuse the results of unchanged files")
	analyzeCmd.Flags().StringVar(&cacheDir, "cache-dir", defaultCacheDir(), "Directory of the result cache")
	analyzeCmd.Flags().BoolVar(&packagesMode, "packages", false, "Treat arguments as package patterns and load them with full type information")
}

func newEngine() (*internal.Engine, error) {
	engine, err := lint.New(logger, cfgFile)
	if err != nil {
		return nil, err
	}

	for _, rule := range splitList(ignoreRules) {
		engine.IgnoreRule(rule)
	}
	for _, path := range splitList(ignorePaths) {
		engine.IgnorePath(path)
	}

	if useCache {
		var deps []string
		if _, err := os.Stat(cfgFile); err == nil {
			deps = append(deps, cfgFile)
		}
		cache, err := internal.NewCache(cacheDir, deps...)
		if err != nil {
			return nil, err
		}
		engine.SetCache(cache)
	}
	return engine, nil
}

func runWatch(ctx context.Context, engine *internal.Engine, paths []string) error {
	issues, err := lint.ProcessFiles(ctx, logger, engine, paths, lint.ProcessFile)
	if err != nil {
		logger.Error("Error processing files", zap.Error(err))
	}
	if err := printIssues(os.Stdout, issues, false, ""); err != nil {
		return err
	}

	watcher, err := internal.NewWatcher(engine, logger, func(filename string, issues []tt.Issue) {
		fmt.Printf("--- %s: %d issue(s)\n", filename, len(issues))
		if err := printIssues(os.Stdout, issues, false, ""); err != nil {
			logger.Error("Error printing issues", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(paths...); err != nil {
		return err
	}
	fmt.Println("watching for changes, press Ctrl+C to stop")
	return watcher.Run(ctx)
}

func printIssues(w io.Writer, issues []tt.Issue, isJson bool, jsonOutput string) error {
	issuesByFile := make(map[string][]tt.Issue)
	for _, issue := range issues {
		issuesByFile[issue.Filename] = append(issuesByFile[issue.Filename], issue)
	}

	sortedFiles := make([]string, 0, len(issuesByFile))
	for filename := range issuesByFile {
		sortedFiles = append(sortedFiles, filename)
	}
	sort.Strings(sortedFiles)

	if isJson {
		d, err := json.MarshalIndent(issuesByFile, "", "  ")
		if err != nil {
			return fmt.Errorf("error marshalling issues to JSON: %w", err)
		}
		if jsonOutput == "" {
			_, err = fmt.Fprintln(w, string(d))
			return err
		}
		return os.WriteFile(jsonOutput, d, 0o644)
	}

	for _, filename := range sortedFiles {
		sourceCode, err := internal.ReadSourceCode(filename)
		if err != nil {
			logger.Warn("Error reading source file", zap.String("file", filename), zap.Error(err))
		}
		fmt.Fprint(w, formatter.GenerateFormattedIssue(issuesByFile[filename], sourceCode))
	}
	return nil
}

func hasErrors(issues []tt.Issue) bool {
	for _, issue := range issues {
		if issue.Severity == tt.SeverityError {
			return true
		}
	}
	return false
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ".flowsym-cache"
	}
	return filepath.Join(dir, "flowsym")
}
