package internal

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnolang/dfa/internal/analysis/interp"
	"github.com/gnolang/dfa/internal/checks"
	"github.com/gnolang/dfa/internal/program"
	tt "github.com/gnolang/dfa/internal/types"
)

// createTempDir creates a temporary directory and returns its path.
// It also registers a cleanup function to remove the directory after the test.
func createTempDir(t testing.TB, prefix string) string {
	tempDir, err := os.MkdirTemp("", prefix)
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tempDir) })
	return tempDir
}

func writeProgram(t testing.TB, dir, name, src string) string {
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

// brief keeps the fields of an issue worth comparing.
type brief struct {
	Rule     string
	Function string
	Line     int
	Severity tt.Severity
}

func briefs(issues []tt.Issue) []brief {
	out := make([]brief, len(issues))
	for i, issue := range issues {
		out[i] = brief{issue.Rule, issue.Function, issue.Start.Line, issue.Severity}
	}
	return out
}

func TestNewEngine(t *testing.T) {
	t.Parallel()

	engine, err := NewEngine(nil, nil, interp.DefaultConfig())
	require.NoError(t, err)
	assert.Len(t, engine.rules, len(allRuleConstructors))

	_, err = NewEngine(nil, map[string]tt.ConfigRule{"no-such-rule": {}}, interp.DefaultConfig())
	assert.ErrorContains(t, err, "unknown rule")
}

func TestEngine_IgnoreRule(t *testing.T) {
	t.Parallel()
	engine := &Engine{}
	engine.IgnoreRule("test_rule")

	assert.True(t, engine.ignoredRules["test_rule"])
}

func TestEngine_Run(t *testing.T) {
	t.Parallel()

	engine, err := NewEngine(nil, nil, interp.DefaultConfig())
	require.NoError(t, err)

	filename := filepath.Join("testdata", "defects.dfa")
	issues, err := engine.Run(context.Background(), filename)
	require.NoError(t, err)

	want := []brief{
		{checks.NullDereference, "alwaysNull", 16, tt.SeverityError},
		{checks.ConstantCondition, "redundant", 31, tt.SeverityWarning},
	}
	if diff := cmp.Diff(want, briefs(issues)); diff != "" {
		t.Errorf("issues mismatch (-want +got):\n%s", diff)
	}
	for _, issue := range issues {
		assert.Equal(t, filename, issue.Filename)
		assert.Equal(t, filename, issue.Start.Filename)
		assert.NotEmpty(t, issue.Category)
	}
}

func TestEngine_RuleSeverities(t *testing.T) {
	t.Parallel()

	engine, err := NewEngine(nil, map[string]tt.ConfigRule{
		checks.NullDereference:   {Severity: tt.SeverityOff},
		checks.ConstantCondition: {Severity: tt.SeverityError},
	}, interp.DefaultConfig())
	require.NoError(t, err)

	issues, err := engine.Run(context.Background(), filepath.Join("testdata", "defects.dfa"))
	require.NoError(t, err)
	assert.Equal(t, []brief{{checks.ConstantCondition, "redundant", 31, tt.SeverityError}}, briefs(issues))
}

func TestEngine_Nolint(t *testing.T) {
	t.Parallel()

	engine, err := NewEngine(nil, nil, interp.DefaultConfig())
	require.NoError(t, err)

	issues, err := engine.RunSource(context.Background(), "nolint.dfa", []byte(`fields:
  next: {type: Node}
functions:
  - name: f
    locals: [{name: x, type: Node}]
    code:
      - push x
      - push null
      - assign
      - push x
      - field next # nolint:null-dereference
      - pop
      - return
`))
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestEngine_TooComplex(t *testing.T) {
	t.Parallel()

	config := interp.DefaultConfig()
	config.MaxSteps = 5
	engine, err := NewEngine(nil, nil, config)
	require.NoError(t, err)

	issues, err := engine.Run(context.Background(), filepath.Join("testdata", "defects.dfa"))
	require.NoError(t, err)

	var tooComplex []brief
	for _, b := range briefs(issues) {
		if b.Rule == checks.TooComplex {
			tooComplex = append(tooComplex, b)
		}
	}
	require.NotEmpty(t, tooComplex)
	for _, b := range tooComplex {
		assert.Equal(t, tt.SeverityInfo, b.Severity)
	}
}

func TestEngine_Closures(t *testing.T) {
	t.Parallel()

	engine, err := NewEngine(nil, nil, interp.DefaultConfig())
	require.NoError(t, err)

	issues, err := engine.RunSource(context.Background(), "closure.dfa", []byte(`fields:
  next: {type: Node, null: nullable}
functions:
  - name: outer
    locals: [{name: x, type: Node, null: nullable}]
    code:
      - push x
      - push null
      - assign
      - closure inner
      - return
    closures:
      - name: inner
        code:
          - push x
          - field next
          - pop
          - return
`))
	require.NoError(t, err)
	assert.Equal(t, []brief{{checks.NullDereference, "outer/inner", 16, tt.SeverityError}}, briefs(issues))
}

func TestEngine_NestedClosures(t *testing.T) {
	t.Parallel()

	engine, err := NewEngine(nil, nil, interp.DefaultConfig())
	require.NoError(t, err)

	issues, err := engine.RunSource(context.Background(), "nested.dfa", []byte(`fields:
  next: {type: Node, null: nullable}
functions:
  - name: outer
    locals: [{name: x, type: Node, null: nullable}]
    code:
      - push x
      - push null
      - assign
      - closure middle
      - return
    closures:
      - name: middle
        code:
          - closure inner
          - return
        closures:
          - name: inner
            code:
              - push x
              - field next
              - pop
              - return
`))
	require.NoError(t, err)
	assert.Equal(t, []brief{{checks.NullDereference, "outer/middle/inner", 21, tt.SeverityError}}, briefs(issues))
}

func TestEngine_InvalidProgram(t *testing.T) {
	t.Parallel()

	engine, err := NewEngine(nil, nil, interp.DefaultConfig())
	require.NoError(t, err)

	dir := createTempDir(t, "engine_invalid")
	path := writeProgram(t, dir, "bad.dfa", "functions: []\n")
	_, err = engine.Run(context.Background(), path)
	assert.ErrorIs(t, err, program.ErrInvalidProgram)

	_, err = engine.Run(context.Background(), filepath.Join(dir, "missing.dfa"))
	assert.Error(t, err)
}

func TestEngine_IgnorePath(t *testing.T) {
	t.Parallel()

	engine, err := NewEngine(nil, nil, interp.DefaultConfig())
	require.NoError(t, err)
	engine.IgnorePath("defects.*")

	issues, err := engine.Run(context.Background(), filepath.Join("testdata", "defects.dfa"))
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestEngine_Cache(t *testing.T) {
	t.Parallel()

	dir := createTempDir(t, "engine_cache")
	src, err := os.ReadFile(filepath.Join("testdata", "defects.dfa"))
	require.NoError(t, err)
	path := writeProgram(t, dir, "defects.dfa", string(src))

	cache, err := NewCache(filepath.Join(dir, "cache"))
	require.NoError(t, err)

	engine, err := NewEngine(nil, nil, interp.DefaultConfig())
	require.NoError(t, err)
	engine.UseCache(cache)

	issues, err := engine.Run(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, issues, 2)

	cached, ok := cache.Get(path)
	require.True(t, ok)
	assert.Equal(t, issues, cached)

	again, err := engine.Run(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, issues, again)

	// another configuration does not reuse the entry
	other, err := NewEngine(nil, map[string]tt.ConfigRule{checks.NullDereference: {Severity: tt.SeverityOff}}, interp.DefaultConfig())
	require.NoError(t, err)
	other.UseCache(cache)
	issues, err = other.Run(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, issues, 1)
}

func TestDefaultRules(t *testing.T) {
	t.Parallel()

	rules := DefaultRules()
	assert.Equal(t, tt.SeverityError, rules[checks.NullDereference].Severity)
	assert.Equal(t, tt.SeverityInfo, rules[checks.TooComplex].Severity)
	assert.Equal(t, RuleNames(), []string{
		checks.ConstantCondition,
		checks.DivisionByZero,
		checks.FailingCall,
		checks.IndexOutOfBounds,
		checks.NullDereference,
		checks.TooComplex,
	})
}

func BenchmarkRun(b *testing.B) {
	engine, err := NewEngine(nil, nil, interp.DefaultConfig())
	if err != nil {
		b.Fatalf("failed to create engine: %v", err)
	}
	filename := filepath.Join("testdata", "defects.dfa")

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := engine.Run(context.Background(), filename); err != nil {
			b.Fatalf("failed to run engine: %v", err)
		}
	}
}

func TestRules(t *testing.T) {
	t.Parallel()

	infos := Rules()
	require.Len(t, infos, len(allRuleConstructors))
	assert.Equal(t, RuleInfo{Name: checks.ConstantCondition, Category: "reachability", Severity: tt.SeverityWarning}, infos[0])
	for _, info := range infos {
		assert.NotEmpty(t, info.Category, info.Name)
	}
}
