package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gnolang/dfa/analyze"
	"github.com/gnolang/dfa/formatter"
)

const defaultTimeout = 5 * time.Minute

// ErrIssuesFound is returned when the analysis reported issues.
var ErrIssuesFound = errors.New("issues found")

var (
	cfgFile string
	timeout time.Duration
	verbose bool
	noColor bool

	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:              "dfa [paths...]",
	Short:            "dfa - a data flow analyser for stack machine programs",
	TraverseChildren: true, // Prioritize subcommands
	SilenceErrors:    true,
	SilenceUsage:     true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := newLogger(verbose)
		if err != nil {
			return fmt.Errorf("error initializing logger: %w", err)
		}
		logger = l
		formatter.SetColor(os.Stdout, !noColor)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// no subcommand
		if len(args) == 0 {
			// display help when only 'dfa' is entered
			return cmd.Help()
		}
		// Format: dfa [path1 path2 ...] => behaves like the analyze subcommand
		analyzeCmd.SetContext(cmd.Context())
		return analyzeCmd.RunE(analyzeCmd, args)
	},
}

// Execute runs the command line.
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the command line until ctx is done.
func ExecuteContext(ctx context.Context) error {
	defer func() { _ = logger.Sync() }()
	return rootCmd.ExecuteContext(ctx)
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	config := zap.NewProductionConfig()
	config.Encoding = "console"
	config.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return config.Build()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", analyze.DefaultConfigFile, "Path to the configuration file")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", defaultTimeout, "Give up the analysis after this long")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(cfgCmd)
	rootCmd.AddCommand(rulesCmd)
}
