package formatter

import (
	"bytes"
	"encoding/json"
	"go/token"
	"os"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnolang/dfa/internal"
	"github.com/gnolang/dfa/internal/checks"
	tt "github.com/gnolang/dfa/internal/types"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

var program = &internal.SourceCode{
	Lines: []string{
		"functions:",
		"  - name: f",
		"    code:",
		"      - push x",
		"      - field next # nolint:other",
		"      - return",
	},
}

func TestGenerateFormattedIssue(t *testing.T) {
	t.Parallel()

	issues := []tt.Issue{
		{
			Rule:     checks.NullDereference,
			Filename: "p.dfa",
			Start:    token.Position{Line: 5, Column: 9},
			End:      token.Position{Line: 5, Column: 9},
			Message:  "dereference of a value that is always null",
			Note:     "field next",
			Severity: tt.SeverityError,
		},
		{
			Rule:     checks.ConstantCondition,
			Filename: "p.dfa",
			Start:    token.Position{Line: 12, Column: 7},
			End:      token.Position{Line: 12, Column: 7},
			Message:  "condition is always true",
			Severity: tt.SeverityWarning,
		},
	}

	expected := `error: null-dereference
 --> p.dfa:5:9
  |
5 | - field next # nolint:other
  |   ~~~~~~~~~~
  = dereference of a value that is always null
Note: field next

warning: constant-condition
  --> p.dfa:12:7
   |
   | condition is always true

`

	result := GenerateFormattedIssue(issues, program)
	assert.Equal(t, expected, result)
}

func TestTooComplexFormatter(t *testing.T) {
	t.Parallel()

	issue := tt.Issue{
		Rule:     checks.TooComplex,
		Filename: "p.dfa",
		Start:    token.Position{Line: 2, Column: 5},
		End:      token.Position{Line: 2, Column: 5},
		Message:  "f is too complex to analyse: too many steps",
		Note:     "stopped after 5 steps with 3 live states",
		Severity: tt.SeverityInfo,
	}

	expected := `info: too-complex
 --> p.dfa:2:5
  |
2 | - name: f
  |   ~~~~~~~
  = f is too complex to analyse: too many steps
  = help: raise analysis.max_steps or analysis.max_states in the configuration file
Note: stopped after 5 steps with 3 live states

`

	assert.Equal(t, expected, GenerateFormattedIssue([]tt.Issue{issue}, program))
}

func TestSuggestion(t *testing.T) {
	t.Parallel()

	issue := tt.Issue{
		Rule:       "example",
		Filename:   "p.dfa",
		Start:      token.Position{Line: 4, Column: 9},
		End:        token.Position{Line: 4, Column: 9},
		Message:    "example issue",
		Suggestion: "a\nb",
		Severity:   tt.SeverityWarning,
	}

	expected := `warning: example
 --> p.dfa:4:9
  |
4 | - push x
  |   ~~~~~~
  = example issue
Suggestion:
  |
4 | a
5 | b
  |

`

	assert.Equal(t, expected, buildIssue(issue, program, &GeneralIssueFormatter{}))
}

func TestInstructionEnd(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		line   string
		column int
		want   int
	}{
		{"plain", "  - pop", 5, 7},
		{"comment", "  - pop # nolint", 5, 7},
		{"trailing space", "  - pop   ", 5, 7},
		{"out of range", "  - pop", 20, 20},
		{"no column", "  - pop", 0, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, instructionEnd(tc.line, tc.column))
		})
	}
}

func TestWriteJSON(t *testing.T) {
	t.Parallel()

	issues := []tt.Issue{
		{Rule: checks.NullDereference, Filename: "a.dfa", Severity: tt.SeverityError},
		{Rule: checks.ConstantCondition, Filename: "b.dfa", Severity: tt.SeverityWarning},
		{Rule: checks.DivisionByZero, Filename: "a.dfa", Severity: tt.SeverityWarning},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, issues))

	var got map[string][]map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got["a.dfa"], 2)
	require.Len(t, got["b.dfa"], 1)
	assert.Equal(t, checks.NullDereference, got["a.dfa"][0]["Rule"])
	assert.Equal(t, "error", got["a.dfa"][0]["Severity"])
	assert.Equal(t, "warning", got["b.dfa"][0]["Severity"])
}

func TestFindCommonIndent(t *testing.T) {
	tests := []struct {
		name     string
		expected string
		lines    []string
	}{
		{
			name: "whitespace indent",
			lines: []string{
				"    - push x",
				"      - pop",
				"    - return",
			},
			expected: "    ",
		},
		{
			name: "tab indent",
			lines: []string{
				"\t- push x",
				"\t\t- pop",
				"\t- return",
			},
			expected: "\t",
		},
		{
			name: "mixed indent (space and tab)",
			lines: []string{
				"\t    - push x",
				"\t    \t- pop",
				"\t    - return",
			},
			expected: "\t    ",
		},
		{
			name: "no indent",
			lines: []string{
				"functions:",
				"  - name: f",
			},
			expected: "",
		},
		{
			name: "empty line",
			lines: []string{
				"    - push x",
				"",
				"      - pop",
				"    - return",
			},
			expected: "    ",
		},
		{
			name:     "empty input",
			lines:    []string{},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := findCommonIndent(tt.lines)
			if result != tt.expected {
				t.Errorf("findCommonIndent() = %q, want %q", result, tt.expected)
			}
		})
	}
}
