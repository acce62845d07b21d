package internal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/gnolang/dfa/internal/program"
	tt "github.com/gnolang/dfa/internal/types"
)

// settleDelay lets editors finish writing before a file is analysed again.
const settleDelay = 100 * time.Millisecond

// Watcher re-analyses program files when they are written.
type Watcher struct {
	engine   *Engine
	watcher  *fsnotify.Watcher
	dirs     []string
	onResult func(filename string, issues []tt.Issue, err error)
}

// NewWatcher watches dirs and their subdirectories. onResult is called from
// the goroutine running Watch after every analysis.
func (e *Engine) NewWatcher(dirs []string, onResult func(filename string, issues []tt.Issue, err error)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("error creating watcher: %w", err)
	}
	return &Watcher{engine: e, watcher: w, dirs: dirs, onResult: onResult}, nil
}

// Watch blocks until ctx is done or the watcher fails.
func (w *Watcher) Watch(ctx context.Context) error {
	defer w.watcher.Close()

	for _, dir := range w.dirs {
		err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				return w.watcher.Add(path)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("error adding directory to watcher: %w", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleFileEvent(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.engine.logger.Error("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleFileEvent(ctx context.Context, event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || filepath.Ext(event.Name) != program.Ext {
		return
	}
	// consider a burst of writes as one change
	time.Sleep(settleDelay)
	issues, err := w.engine.Run(ctx, event.Name)
	if err != nil {
		w.engine.logger.Error("error analysing file", zap.String("file", event.Name), zap.Error(err))
	} else {
		w.engine.logger.Debug("file analysed", zap.String("file", event.Name), zap.Int("issues", len(issues)))
	}
	if w.onResult != nil {
		w.onResult(event.Name, issues, err)
	}
}
