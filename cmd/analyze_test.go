package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"go/token"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gnolang/dfa/internal/checks"
	tt "github.com/gnolang/dfa/internal/types"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

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

func copyTestdata(t *testing.T, name string) string {
	t.Helper()
	src, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, src, 0o644))
	return path
}

func nullDereference(path string) tt.Issue {
	return tt.Issue{
		Rule:     checks.NullDereference,
		Category: "nullness",
		Filename: path,
		Function: "alwaysNull",
		Message:  "dereference of a value that is always null",
		Note:     "field next",
		Start:    token.Position{Filename: path, Line: 16, Column: 9},
		End:      token.Position{Filename: path, Line: 16, Column: 9},
		Severity: tt.SeverityError,
	}
}

func TestRunAnalysis(t *testing.T) {
	t.Parallel()

	path := copyTestdata(t, "defects.dfa")
	engine := new(mockEngine)
	engine.On("Run", path).Return([]tt.Issue{nullDereference(path)}, nil)

	var out bytes.Buffer
	n, err := runAnalysis(context.Background(), zap.NewNop(), engine, []string{path}, outputOptions{}, &out)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Contains(t, out.String(), "error: null-dereference\n")
	assert.Contains(t, out.String(), "--> "+path+":16:9\n")
	assert.Contains(t, out.String(), "16 | - field next\n")
	assert.Contains(t, out.String(), "= dereference of a value that is always null\n")
	engine.AssertExpectations(t)
}

func TestRunAnalysis_NoIssues(t *testing.T) {
	t.Parallel()

	path := copyTestdata(t, "defects.dfa")
	engine := new(mockEngine)
	engine.On("Run", path).Return([]tt.Issue{}, nil)

	var out bytes.Buffer
	n, err := runAnalysis(context.Background(), nil, engine, []string{path}, outputOptions{}, &out)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, out.String())
}

func TestRunAnalysis_JSON(t *testing.T) {
	t.Parallel()

	path := copyTestdata(t, "defects.dfa")
	engine := new(mockEngine)
	engine.On("Run", path).Return([]tt.Issue{nullDereference(path)}, nil)

	jsonPath := filepath.Join(t.TempDir(), "out.json")
	var out bytes.Buffer
	n, err := runAnalysis(context.Background(), zap.NewNop(), engine, []string{path}, outputOptions{json: true, path: jsonPath}, &out)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, out.String())

	d, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	var got map[string][]tt.Issue
	require.NoError(t, json.Unmarshal(d, &got))
	assert.Equal(t, []tt.Issue{nullDereference(path)}, got[path])
}

func TestRunAnalysis_Error(t *testing.T) {
	t.Parallel()

	path := copyTestdata(t, "defects.dfa")
	engine := new(mockEngine)
	engine.On("Run", path).Return([]tt.Issue{}, errors.New("boom"))

	var out bytes.Buffer
	_, err := runAnalysis(context.Background(), zap.NewNop(), engine, []string{path}, outputOptions{}, &out)
	assert.ErrorContains(t, err, "error processing files")
	assert.ErrorContains(t, err, "boom")
}

func TestApplyIgnores(t *testing.T) {
	t.Parallel()

	engine := new(mockEngine)
	engine.On("IgnoreRule", checks.TooComplex).Return()
	engine.On("IgnoreRule", checks.FailingCall).Return()
	engine.On("IgnorePath", "generated/*").Return()

	applyIgnores(engine, "too-complex, failing-call,", " generated/* ")
	engine.AssertExpectations(t)
	engine.AssertNumberOfCalls(t, "IgnoreRule", 2)
}

func TestSplitList(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"a", []string{"a"}},
		{"a, b", []string{"a", "b"}},
		{" , a ,, ", []string{"a"}},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, splitList(tc.in), tc.in)
	}
}
