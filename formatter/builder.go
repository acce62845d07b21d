package formatter

import (
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"unicode"

	"github.com/fatih/color"

	"github.com/gnolang/dfa/internal"
	"github.com/gnolang/dfa/internal/checks"
	tt "github.com/gnolang/dfa/internal/types"
)

const tabWidth = 8

var (
	errorStyle      = color.New(color.FgRed, color.Bold)
	warningStyle    = color.New(color.FgHiYellow, color.Bold)
	infoStyle       = color.New(color.FgHiCyan, color.Bold)
	ruleStyle       = color.New(color.FgYellow, color.Bold)
	fileStyle       = color.New(color.FgCyan, color.Bold)
	lineStyle       = color.New(color.FgHiBlue, color.Bold)
	messageStyle    = color.New(color.FgRed, color.Bold)
	suggestionStyle = color.New(color.FgGreen, color.Bold)
)

// issueFormatter renders one issue from an issueView.
type issueFormatter interface {
	Template() *template.Template
}

func getIssueFormatter(rule string) issueFormatter {
	switch rule {
	case checks.TooComplex:
		return &TooComplexFormatter{}
	default:
		return &GeneralIssueFormatter{}
	}
}

// GenerateFormattedIssue renders issues against the lines of their program
// file, one block per issue.
func GenerateFormattedIssue(issues []tt.Issue, src *internal.SourceCode) string {
	var b strings.Builder
	for _, issue := range issues {
		b.WriteString(buildIssue(issue, src, getIssueFormatter(issue.Rule)))
	}
	return b.String()
}

func buildIssue(issue tt.Issue, src *internal.SourceCode, f issueFormatter) string {
	var b strings.Builder
	if err := f.Template().Execute(&b, newIssueView(issue, src)); err != nil {
		return fmt.Sprintf("Error formatting issue: %v", err)
	}
	return b.String()
}

// issueView is what the issue templates see. Every method returns complete
// lines, or nothing.
type issueView struct {
	issue  tt.Issue
	lines  []string
	width  int // of the largest line number
	pad    string
	indent string
	endCol int
}

func newIssueView(issue tt.Issue, src *internal.SourceCode) *issueView {
	var lines []string
	if src != nil {
		lines = src.Lines
	}
	v := &issueView{
		issue:  issue,
		lines:  lines,
		width:  len(strconv.Itoa(issue.End.Line)),
		endCol: issue.End.Column,
	}
	v.pad = strings.Repeat(" ", v.width+1)
	if v.inRange() {
		v.indent = findCommonIndent(lines[issue.Start.Line-1 : issue.End.Line])
		if issue.Start.Line == issue.End.Line && v.endCol <= issue.Start.Column {
			v.endCol = instructionEnd(lines[issue.Start.Line-1], issue.Start.Column)
		}
	}
	return v
}

func (v *issueView) inRange() bool {
	start, end := v.issue.Start.Line, v.issue.End.Line
	return start > 0 && start <= end && end <= len(v.lines)
}

func (v *issueView) Header() string {
	var s string
	switch v.issue.Severity {
	case tt.SeverityError:
		s = errorStyle.Sprint("error: ")
	case tt.SeverityWarning:
		s = warningStyle.Sprint("warning: ")
	case tt.SeverityInfo:
		s = infoStyle.Sprint("info: ")
	}
	s += ruleStyle.Sprint(v.issue.Rule) + "\n"
	s += lineStyle.Sprintf("%s--> ", strings.Repeat(" ", v.width))
	s += fileStyle.Sprintf("%s:%d:%d", v.issue.Filename, v.issue.Start.Line, v.issue.Start.Column) + "\n"
	return s
}

func (v *issueView) Snippet() string {
	s := lineStyle.Sprintf("%s|", v.pad) + "\n"
	for i := v.issue.Start.Line; i <= v.issue.End.Line; i++ {
		if i < 1 || i > len(v.lines) {
			continue
		}
		line := strings.TrimPrefix(v.lines[i-1], v.indent)
		s += lineStyle.Sprintf("%*d | ", v.width, i) + line + "\n"
	}
	return s
}

// Underline marks the reported columns and prints the message below them.
// Without source lines only the message is printed.
func (v *issueView) Underline() string {
	s := lineStyle.Sprintf("%s| ", v.pad)
	if !v.inRange() {
		return s + messageStyle.Sprint(v.issue.Message) + "\n"
	}

	shift := visualColumn(v.indent, len(v.indent)+1)
	start := max(visualColumn(v.lines[v.issue.Start.Line-1], v.issue.Start.Column)-shift, 0)
	end := visualColumn(v.lines[v.issue.End.Line-1], v.endCol) - shift

	s += strings.Repeat(" ", start)
	s += messageStyle.Sprint(strings.Repeat("~", max(end-start+1, 1))) + "\n"
	s += lineStyle.Sprintf("%s= ", v.pad)
	s += messageStyle.Sprint(v.issue.Message) + "\n"
	return s
}

func (v *issueView) Suggestion() string {
	if v.issue.Suggestion == "" {
		return ""
	}
	s := suggestionStyle.Sprint("Suggestion:") + "\n"
	s += lineStyle.Sprintf("%s|", v.pad) + "\n"
	for i, line := range strings.Split(v.issue.Suggestion, "\n") {
		s += lineStyle.Sprintf("%*d | ", v.width, v.issue.Start.Line+i) + line + "\n"
	}
	s += lineStyle.Sprintf("%s|", v.pad) + "\n"
	return s
}

func (v *issueView) Help(text string) string {
	return lineStyle.Sprintf("%s= ", v.pad) + suggestionStyle.Sprint("help: ") + text + "\n"
}

func (v *issueView) Note() string {
	if v.issue.Note == "" {
		return ""
	}
	return suggestionStyle.Sprint("Note: ") + v.issue.Note + "\n"
}

// visualColumn returns the width of line before column, expanding tabs.
func visualColumn(line string, column int) int {
	if column < 0 {
		return 0
	}
	col := 0
	for i, ch := range line {
		if i+1 == column {
			break
		}
		if ch == '\t' {
			col += tabWidth - (col % tabWidth)
		} else {
			col++
		}
	}
	return col
}

// instructionEnd returns the column of the last character of the
// instruction starting at column, ignoring a trailing comment.
func instructionEnd(line string, column int) int {
	if column < 1 || column > len(line) {
		return column
	}
	rest := line[column-1:]
	if i := strings.Index(rest, " #"); i >= 0 {
		rest = rest[:i]
	}
	rest = strings.TrimRightFunc(rest, unicode.IsSpace)
	if rest == "" {
		return column
	}
	return column + len(rest) - 1
}

// findCommonIndent returns the leading whitespace shared by every
// non-blank line.
func findCommonIndent(lines []string) string {
	var common []rune
	found := false
	for _, line := range lines {
		trimmed := strings.TrimLeftFunc(line, unicode.IsSpace)
		if trimmed == "" {
			continue
		}
		indent := []rune(line[:len(line)-len(trimmed)])
		if !found {
			common, found = indent, true
			continue
		}
		n := 0
		for n < len(common) && n < len(indent) && common[n] == indent[n] {
			n++
		}
		common = common[:n]
	}
	return string(common)
}
