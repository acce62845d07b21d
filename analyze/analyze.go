// Package analyze runs the engine over program files and directories.
package analyze

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/gnolang/dfa/internal"
	"github.com/gnolang/dfa/internal/program"
	tt "github.com/gnolang/dfa/internal/types"
)

const maxShowRecentFiles = 25

// Engine analyses program files.
type Engine interface {
	Run(ctx context.Context, filename string) ([]tt.Issue, error)
	RunSource(ctx context.Context, filename string, src []byte) ([]tt.Issue, error)
	IgnoreRule(rule string)
	IgnorePath(pattern string)
}

// FileProcessor analyses one file.
type FileProcessor func(ctx context.Context, engine Engine, filename string) ([]tt.Issue, error)

// SourceProcessor analyses the contents of one file.
type SourceProcessor func(ctx context.Context, engine Engine, filename string, src []byte) ([]tt.Issue, error)

// New creates an engine configured by the file at configPath. The
// configuration file is a dependency of the cache: editing it invalidates
// every cached result.
func New(logger *zap.Logger, configPath string) (*internal.Engine, error) {
	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return NewWithConfig(logger, config, configPath)
}

// NewWithConfig creates an engine from an already loaded configuration.
func NewWithConfig(logger *zap.Logger, config Config, configPath string) (*internal.Engine, error) {
	engine, err := internal.NewEngine(logger, config.Rules, config.Analysis)
	if err != nil {
		return nil, err
	}
	for _, pattern := range config.Ignore {
		engine.IgnorePath(pattern)
	}

	if config.CacheDir != "" {
		cache, err := internal.NewCache(config.CacheDir)
		if err != nil {
			return nil, err
		}
		if configPath != "" {
			if _, err := os.Stat(configPath); err == nil {
				if err := cache.SetDependencies(configPath); err != nil {
					return nil, err
				}
			}
		}
		engine.UseCache(cache)
	}

	return engine, nil
}

// ProcessSources analyses in-memory sources. They are named source0.dfa,
// source1.dfa and so on in the issues.
func ProcessSources(
	ctx context.Context,
	logger *zap.Logger,
	engine Engine,
	sources [][]byte,
	processor SourceProcessor,
) ([]tt.Issue, error) {
	var allIssues []tt.Issue
	for i, source := range sources {
		if err := ctx.Err(); err != nil {
			return allIssues, err
		}
		issues, err := processor(ctx, engine, fmt.Sprintf("source%d%s", i, program.Ext), source)
		if err != nil {
			if logger != nil {
				logger.Error("Error processing source", zap.Int("source", i), zap.Error(err))
			}
			return nil, err
		}
		allIssues = append(allIssues, issues...)
	}

	return allIssues, nil
}

// ProcessFiles analyses every path in turn. It stops at the first path
// that cannot be processed.
func ProcessFiles(
	ctx context.Context,
	logger *zap.Logger,
	engine Engine,
	paths []string,
	processor FileProcessor,
) ([]tt.Issue, error) {
	var allIssues []tt.Issue
	for _, path := range paths {
		issues, err := ProcessPath(ctx, logger, engine, path, processor)
		allIssues = append(allIssues, issues...)
		if err != nil {
			if logger != nil {
				logger.Error("Error processing path", zap.String("path", path), zap.Error(err))
			}
			return allIssues, err
		}
	}

	return allIssues, nil
}

// ProcessPath analyses a program file, or every program file below a
// directory. Files of a directory are analysed concurrently; the issues of
// the files that succeeded are returned together with the errors of those
// that failed. On cancellation the issues gathered so far are returned with
// the context error.
func ProcessPath(
	ctx context.Context,
	logger *zap.Logger,
	engine Engine,
	path string,
	processor FileProcessor,
) ([]tt.Issue, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("error accessing %s: %w", path, err)
	}

	if !info.IsDir() {
		if !hasDesiredExtension(path) {
			return []tt.Issue{}, nil
		}
		issues, err := processor(ctx, engine, path)
		if err != nil {
			return []tt.Issue{}, err
		}
		return issues, nil
	}

	var files []string
	err = filepath.Walk(path, func(filePath string, fileInfo os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !fileInfo.IsDir() && hasDesiredExtension(filePath) {
			files = append(files, filePath)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error walking %s: %w", path, err)
	}

	p := newProgress(path, len(files))
	defer p.finish()

	type result struct {
		issues []tt.Issue
		err    error
	}
	results := make(chan result, len(files))

	// limit the number of workers
	sem := make(chan struct{}, runtime.NumCPU())
	var wg sync.WaitGroup

	cancelled := false
	for _, filePath := range files {
		select {
		case <-ctx.Done():
			cancelled = true
		case sem <- struct{}{}:
		}
		if cancelled {
			break
		}

		wg.Add(1)
		go func(fp string) {
			defer wg.Done()
			defer func() { <-sem }()

			p.start(filepath.Base(fp))
			fileIssues, err := processor(ctx, engine, fp)
			if err != nil && logger != nil {
				logger.Error("Error processing file", zap.String("file", fp), zap.Error(err))
			}
			results <- result{issues: fileIssues, err: err}
			p.done()
		}(filePath)
	}

	wg.Wait()
	close(results)

	issues := []tt.Issue{}
	var errs []error
	for r := range results {
		if r.err != nil {
			errs = append(errs, r.err)
			continue
		}
		issues = append(issues, r.issues...)
	}

	if cancelled || ctx.Err() != nil {
		return issues, ctx.Err()
	}
	return issues, errors.Join(errs...)
}

// ProcessFile analyses the file at filename.
func ProcessFile(ctx context.Context, engine Engine, filename string) ([]tt.Issue, error) {
	return engine.Run(ctx, filename)
}

// ProcessSource analyses src as if read from filename.
func ProcessSource(ctx context.Context, engine Engine, filename string, src []byte) ([]tt.Issue, error) {
	return engine.RunSource(ctx, filename, src)
}

func hasDesiredExtension(path string) bool {
	return filepath.Ext(path) == program.Ext
}

// progress shows a progress bar and the most recently started files while a
// directory is analysed. It stays silent unless stderr is a terminal.
type progress struct {
	mu          sync.Mutex
	out         io.Writer
	bar         *progressbar.ProgressBar
	recentFiles []string
}

func newProgress(description string, total int) *progress {
	if !isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		return nil
	}
	p := &progress{out: os.Stderr, recentFiles: make([]string, maxShowRecentFiles)}

	// make space for recent files
	for range maxShowRecentFiles + 1 {
		fmt.Fprintln(p.out)
	}
	fmt.Fprintf(p.out, "\033[%dA", maxShowRecentFiles+1)

	p.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(p.out),
		progressbar.OptionSetDescription(description),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
	return p
}

func (p *progress) start(filename string) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	copy(p.recentFiles[1:], p.recentFiles[:maxShowRecentFiles-1])
	p.recentFiles[0] = filename

	// move the cursor up
	fmt.Fprintf(p.out, "\033[%dA", maxShowRecentFiles)
	for _, f := range p.recentFiles {
		// \033[2K: clear the line
		// \r: move the cursor to the beginning of the line
		fmt.Fprintf(p.out, "\033[2K\r%s\n", f)
	}
}

func (p *progress) done() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.bar.Add(1)
}

func (p *progress) finish() {
	if p == nil {
		return
	}
	fmt.Fprintln(p.out)
}
