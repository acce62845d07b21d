package analyze

import (
	"context"
	"go/token"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gnolang/dfa/internal/checks"
	tt "github.com/gnolang/dfa/internal/types"
)

type mockEngine struct {
	mock.Mock
}

func (m *mockEngine) Run(ctx context.Context, filename string) ([]tt.Issue, error) {
	args := m.Called(filename)
	return args.Get(0).([]tt.Issue), args.Error(1)
}

func (m *mockEngine) RunSource(ctx context.Context, filename string, src []byte) ([]tt.Issue, error) {
	args := m.Called(filename, src)
	return args.Get(0).([]tt.Issue), args.Error(1)
}

func (m *mockEngine) IgnoreRule(rule string) {
	m.Called(rule)
}

func (m *mockEngine) IgnorePath(pattern string) {
	m.Called(pattern)
}

func issueAt(filename string, line int) tt.Issue {
	return tt.Issue{
		Rule:     checks.NullDereference,
		Filename: filename,
		Message:  "dereference of a value that is always null",
		Start:    token.Position{Filename: filename, Line: line},
		End:      token.Position{Filename: filename, Line: line},
	}
}

func TestProcessFile(t *testing.T) {
	t.Parallel()

	expectedIssues := []tt.Issue{issueAt("test.dfa", 1)}
	engine := new(mockEngine)
	engine.On("Run", "test.dfa").Return(expectedIssues, nil)

	issues, err := ProcessFile(context.Background(), engine, "test.dfa")
	assert.NoError(t, err)
	assert.Equal(t, expectedIssues, issues)
	engine.AssertExpectations(t)
}

func TestProcessSource(t *testing.T) {
	t.Parallel()

	src := []byte("functions: []\n")
	expectedIssues := []tt.Issue{issueAt("in.dfa", 1)}
	engine := new(mockEngine)
	engine.On("RunSource", "in.dfa", src).Return(expectedIssues, nil)

	issues, err := ProcessSource(context.Background(), engine, "in.dfa", src)
	assert.NoError(t, err)
	assert.Equal(t, expectedIssues, issues)
	engine.AssertExpectations(t)
}

func TestProcessSources(t *testing.T) {
	t.Parallel()

	first, second := []byte("a"), []byte("b")
	engine := new(mockEngine)
	engine.On("RunSource", "source0.dfa", first).Return([]tt.Issue{issueAt("source0.dfa", 1)}, nil)
	engine.On("RunSource", "source1.dfa", second).Return([]tt.Issue{issueAt("source1.dfa", 2)}, nil)

	issues, err := ProcessSources(context.Background(), zap.NewNop(), engine, [][]byte{first, second}, ProcessSource)
	require.NoError(t, err)
	require.Len(t, issues, 2)
	assert.Equal(t, "source0.dfa", issues[0].Filename)
	assert.Equal(t, "source1.dfa", issues[1].Filename)
	engine.AssertExpectations(t)
}

func TestProcessPath(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	paths := []string{
		filepath.Join(tempDir, "a.dfa"),
		filepath.Join(tempDir, "nested", "b.dfa"),
	}
	require.NoError(t, os.MkdirAll(filepath.Join(tempDir, "nested"), 0o755))
	for _, p := range paths {
		require.NoError(t, os.WriteFile(p, []byte("functions: []\n"), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "README.md"), []byte("# notes"), 0o644))

	engine := new(mockEngine)
	engine.On("Run", paths[0]).Return([]tt.Issue{issueAt(paths[0], 1)}, nil)
	engine.On("Run", paths[1]).Return([]tt.Issue{issueAt(paths[1], 2)}, nil)

	issues, err := ProcessPath(context.Background(), zap.NewNop(), engine, tempDir, ProcessFile)
	require.NoError(t, err)
	assert.ElementsMatch(t, []tt.Issue{issueAt(paths[0], 1), issueAt(paths[1], 2)}, issues)
	engine.AssertExpectations(t)
	engine.AssertNotCalled(t, "Run", filepath.Join(tempDir, "README.md"))
}

func TestProcessPath_NotAProgram(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	engine := new(mockEngine)
	issues, err := ProcessPath(context.Background(), nil, engine, path, ProcessFile)
	require.NoError(t, err)
	assert.Empty(t, issues)
	engine.AssertNotCalled(t, "Run", path)
}

func TestProcessPath_Missing(t *testing.T) {
	t.Parallel()

	_, err := ProcessPath(context.Background(), nil, new(mockEngine), filepath.Join(t.TempDir(), "missing"), ProcessFile)
	assert.ErrorContains(t, err, "error accessing")
}

func TestProcessFiles(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	a := filepath.Join(tempDir, "a.dfa")
	b := filepath.Join(tempDir, "b.dfa")
	for _, p := range []string{a, b} {
		require.NoError(t, os.WriteFile(p, []byte("functions: []\n"), 0o644))
	}

	engine := new(mockEngine)
	engine.On("Run", a).Return([]tt.Issue{issueAt(a, 3)}, nil)
	engine.On("Run", b).Return([]tt.Issue{}, nil)

	issues, err := ProcessFiles(context.Background(), nil, engine, []string{a, b}, ProcessFile)
	require.NoError(t, err)
	assert.Equal(t, []tt.Issue{issueAt(a, 3)}, issues)
	engine.AssertExpectations(t)
}

func TestHasDesiredExtension(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want bool
	}{
		{"a.dfa", true},
		{"dir/b.dfa", true},
		{"a.go", false},
		{"dfa", false},
		{"a.dfa.bak", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, hasDesiredExtension(tt.path))
		})
	}
}
