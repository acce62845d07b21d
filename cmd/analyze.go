package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gnolang/dfa/analyze"
	"github.com/gnolang/dfa/formatter"
	"github.com/gnolang/dfa/internal"
	tt "github.com/gnolang/dfa/internal/types"
)

var (
	ignoreRules string
	ignorePaths string
	jsonOutput  bool
	outPath     string
	watchMode   bool
)

var analyzeCmd = &cobra.Command{
	Use:     "analyze [paths...]",
	Aliases: []string{"run"},
	Short:   "Analyse program files and directories",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := analyze.New(logger, cfgFile)
		if err != nil {
			return fmt.Errorf("failed to initialize engine: %w", err)
		}
		applyIgnores(engine, ignoreRules, ignorePaths)

		opts := outputOptions{json: jsonOutput, path: outPath}
		if watchMode {
			return runWatch(cmd.Context(), engine, args, opts, cmd.OutOrStdout())
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		n, err := runAnalysis(ctx, logger, engine, args, opts, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrIssuesFound
		}
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&ignoreRules, "ignore", "", "Comma-separated list of rules to ignore")
	analyzeCmd.Flags().StringVar(&ignorePaths, "ignore-paths", "", "Comma-separated list of path patterns to ignore")
	analyzeCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output issues in JSON format")
	analyzeCmd.Flags().StringVarP(&outPath, "output", "o", "", "Output path (when using JSON)")
	analyzeCmd.Flags().BoolVarP(&watchMode, "watch", "w", false, "Analyse again whenever a program file changes")
}

type outputOptions struct {
	json bool
	path string
}

func applyIgnores(engine analyze.Engine, rules, paths string) {
	for _, rule := range splitList(rules) {
		engine.IgnoreRule(rule)
	}
	for _, path := range splitList(paths) {
		engine.IgnorePath(path)
	}
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

// runAnalysis analyses paths, prints the issues and returns their number.
func runAnalysis(ctx context.Context, logger *zap.Logger, engine analyze.Engine, paths []string, opts outputOptions, w io.Writer) (int, error) {
	issues, err := analyze.ProcessFiles(ctx, logger, engine, paths, analyze.ProcessFile)
	if perr := printIssues(logger, w, issues, opts); perr != nil && err == nil {
		err = perr
	}
	if err != nil {
		return len(issues), fmt.Errorf("error processing files: %w", err)
	}
	return len(issues), nil
}

func printIssues(logger *zap.Logger, w io.Writer, issues []tt.Issue, opts outputOptions) error {
	if opts.json {
		if opts.path == "" {
			return formatter.WriteJSON(w, issues)
		}
		f, err := os.Create(opts.path)
		if err != nil {
			return fmt.Errorf("error creating JSON output file: %w", err)
		}
		defer f.Close()
		return formatter.WriteJSON(f, issues)
	}

	issuesByFile := make(map[string][]tt.Issue)
	for _, issue := range issues {
		issuesByFile[issue.Filename] = append(issuesByFile[issue.Filename], issue)
	}

	sortedFiles := make([]string, 0, len(issuesByFile))
	for filename := range issuesByFile {
		sortedFiles = append(sortedFiles, filename)
	}
	sort.Strings(sortedFiles)

	for _, filename := range sortedFiles {
		sourceCode, err := internal.ReadSourceCode(filename)
		if err != nil {
			logger.Error("Error reading source file", zap.String("file", filename), zap.Error(err))
			sourceCode = &internal.SourceCode{}
		}
		fmt.Fprint(w, formatter.GenerateFormattedIssue(issuesByFile[filename], sourceCode))
	}
	return nil
}

// runWatch analyses paths once, then again on every change until ctx is
// done.
func runWatch(ctx context.Context, engine *internal.Engine, paths []string, opts outputOptions, w io.Writer) error {
	if _, err := runAnalysis(ctx, logger, engine, paths, opts, w); err != nil {
		logger.Error("Initial analysis failed", zap.Error(err))
	}

	var dirs []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("error accessing %s: %w", path, err)
		}
		if info.IsDir() {
			dirs = append(dirs, path)
		} else {
			dirs = append(dirs, filepath.Dir(path))
		}
	}

	watcher, err := engine.NewWatcher(dirs, func(filename string, issues []tt.Issue, err error) {
		if err != nil {
			fmt.Fprintf(w, "%s: %v\n", filename, err)
			return
		}
		if len(issues) == 0 {
			fmt.Fprintf(w, "%s: no issues\n", filename)
			return
		}
		if err := printIssues(logger, w, issues, opts); err != nil {
			logger.Error("Error printing issues", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "watching %s\n", strings.Join(dirs, ", "))
	return watcher.Watch(ctx)
}
