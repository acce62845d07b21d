package internal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnolang/dfa/internal/analysis/interp"
	"github.com/gnolang/dfa/internal/checks"
	tt "github.com/gnolang/dfa/internal/types"
)

func TestWatcher(t *testing.T) {
	t.Parallel()

	dir := createTempDir(t, "watch_test")
	engine, err := NewEngine(nil, nil, interp.DefaultConfig())
	require.NoError(t, err)

	type result struct {
		filename string
		issues   []tt.Issue
	}
	results := make(chan result, 8)
	w, err := engine.NewWatcher([]string{dir}, func(filename string, issues []tt.Issue, err error) {
		assert.NoError(t, err)
		results <- result{filename, issues}
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()
	// give the watcher time to register the directory
	time.Sleep(200 * time.Millisecond)

	src, err := os.ReadFile(filepath.Join("testdata", "defects.dfa"))
	require.NoError(t, err)
	path := writeProgram(t, dir, "defects.dfa", string(src))
	writeProgram(t, dir, "notes.txt", "not a program")

	select {
	case r := <-results:
		assert.Equal(t, path, r.filename)
		require.NotEmpty(t, r.issues)
		assert.Equal(t, checks.NullDereference, r.issues[0].Rule)
	case <-time.After(5 * time.Second):
		t.Fatal("no analysis after the file was written")
	}

	cancel()
	assert.NoError(t, <-done)
}
