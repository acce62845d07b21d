package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gnolang/dfa/internal/analysis/cfg"
	"github.com/gnolang/dfa/internal/analysis/instr"
	"github.com/gnolang/dfa/internal/program"
)

// variable for flags
var (
	funcName string
	output   string
)

var cfgCmd = &cobra.Command{
	Use:   "cfg [file]",
	Short: "Print the control flow graph of a function",
	Long: `Outputs the Control Flow Graph (CFG) of the specified function in DOT format,
or renders it with GraphViz when an output file is given.
Closures are named after their enclosing function, as in outer/inner.
Example) dfa cfg --func main program.dfa`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// timeout is a global variable declared in root.go
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		return runCFGAnalysis(ctx, cmd.OutOrStdout(), args[0], funcName, output)
	},
}

func init() {
	cfgCmd.Flags().StringVar(&funcName, "func", "", "Function name for CFG analysis")
	cfgCmd.Flags().StringVarP(&output, "output", "o", "", "Output path for rendered GraphViz file")
	_ = cfgCmd.MarkFlagRequired("func")
}

func runCFGAnalysis(ctx context.Context, w io.Writer, path, funcName, output string) error {
	file, err := program.Load(path)
	if err != nil {
		return err
	}
	fn, err := findFunction(file, funcName)
	if err != nil {
		return err
	}

	graph := cfg.New(fn)
	var buf bytes.Buffer
	graph.PrintDot(&buf, func(pc int) string {
		if graph.IsLoopHead(pc) {
			return "loop"
		}
		return ""
	})

	if output == "" {
		fmt.Fprintf(w, "CFG for function %s in file %s:\n%s", funcName, path, buf.String())
		return nil
	}
	if err := renderToGraphVizFile(ctx, buf.Bytes(), output); err != nil {
		return err
	}
	fmt.Fprintf(w, "GraphViz file created: %s\n", output)
	return nil
}

// findFunction resolves names such as outer/inner to a closure.
func findFunction(file *program.File, name string) (*instr.Program, error) {
	parts := strings.Split(name, "/")
	fn, ok := file.Function(parts[0])
	if !ok {
		return nil, fmt.Errorf("function not found: %s", name)
	}
	for _, part := range parts[1:] {
		var next *instr.Program
		for _, c := range fn.Closures {
			if c.Name == part {
				next = c
				break
			}
		}
		if next == nil {
			return nil, fmt.Errorf("function not found: %s", name)
		}
		fn = next
	}
	return fn, nil
}

// renderToGraphVizFile runs the GraphViz dot tool. The output format
// follows the extension of output and defaults to svg.
func renderToGraphVizFile(ctx context.Context, dot []byte, output string) error {
	format := strings.TrimPrefix(filepath.Ext(output), ".")
	if format == "" {
		format = "svg"
	}
	cmd := exec.CommandContext(ctx, "dot", "-T"+format, "-o", output)
	cmd.Stdin = bytes.NewReader(dot)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("error running dot: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
