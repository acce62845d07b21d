// Package nolint finds "nolint" comments in program files.
//
// A comment "# nolint" silences every rule, "# nolint:rule1,rule2" only the
// listed ones. Its scope depends on where it is written:
//
//   - before any other content of the file: the whole file;
//   - before a function or closure entry: that function;
//   - before or after an instruction: that instruction.
package nolint

import (
	"fmt"
	"go/token"
	"strings"

	"gopkg.in/yaml.v3"
)

const nolintPrefix = "nolint"

// Manager manages nolint scopes and checks if a position is nolinted.
type Manager struct {
	// scopes maps filename to a slice of nolint scopes.
	scopes map[string][]nolintScope
}

// nolintScope is a range of lines where nolint applies.
type nolintScope struct {
	rules map[string]struct{}
	start int
	end   int
}

// Parse reads the nolint comments of the program file src.
func Parse(filename string, src []byte) (*Manager, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(src, &doc); err != nil {
		return nil, fmt.Errorf("error parsing %s: %w", filename, err)
	}
	m := &Manager{scopes: make(map[string][]nolintScope)}
	if doc.Kind == 0 {
		return m, nil
	}
	p := &parser{m: m, filename: filename}

	fileEnd := lastLine(&doc)
	p.add(doc.HeadComment, 1, fileEnd)
	if len(doc.Content) > 0 {
		root := doc.Content[0]
		p.add(root.HeadComment, 1, fileEnd)
		if root.Kind == yaml.MappingNode && len(root.Content) > 0 {
			p.add(root.Content[0].HeadComment, 1, fileEnd)
		}
		p.functions(lookup(root, "functions"))
	}
	return m, nil
}

type parser struct {
	m        *Manager
	filename string
}

func (p *parser) add(comment string, start, end int) {
	for _, line := range strings.Split(comment, "\n") {
		rules, ok := parseComment(line)
		if !ok {
			continue
		}
		p.m.scopes[p.filename] = append(p.m.scopes[p.filename], nolintScope{rules: rules, start: start, end: end})
	}
}

// functions handles a sequence of function entries and their closures.
func (p *parser) functions(seq *yaml.Node) {
	if seq == nil || seq.Kind != yaml.SequenceNode {
		return
	}
	for i, fn := range seq.Content {
		start, end := fn.Line, lastLine(fn)
		if i == 0 {
			p.add(seq.HeadComment, start, end)
		}
		p.add(fn.HeadComment, start, end)
		if fn.Kind == yaml.MappingNode && len(fn.Content) > 0 {
			p.add(fn.Content[0].HeadComment, start, end)
		}
		if code := lookup(fn, "code"); code != nil && code.Kind == yaml.SequenceNode {
			for i, in := range code.Content {
				if i == 0 {
					p.add(code.HeadComment, in.Line, in.Line)
				}
				p.add(in.HeadComment, in.Line, in.Line)
				p.add(in.LineComment, in.Line, in.Line)
			}
		}
		p.functions(lookup(fn, "closures"))
	}
}

// parseComment parses one comment line such as "# nolint:rule1,rule2".
func parseComment(text string) (map[string]struct{}, bool) {
	text = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), "#"))
	if !strings.HasPrefix(text, nolintPrefix) {
		return nil, false
	}
	rest := text[len(nolintPrefix):]

	// A nolint comment can either have a list of rules after a colon (:)
	// or if no rules are specified, it applies to all rules
	if rest == "" {
		return parseIgnoreRuleNames(""), true
	}
	if rest[0] != ':' {
		return nil, false
	}
	rest = strings.TrimSpace(rest[1:])
	if rest == "" {
		return nil, false
	}
	return parseIgnoreRuleNames(rest), true
}

// parseIgnoreRuleNames parses the rule list from the nolint comment.
func parseIgnoreRuleNames(text string) map[string]struct{} {
	rulesMap := make(map[string]struct{})
	if text == "" {
		return rulesMap
	}
	rules := strings.Split(text, ",")
	for _, rule := range rules {
		rule = strings.TrimSpace(rule)
		if rule != "" {
			rulesMap[rule] = struct{}{}
		}
	}
	return rulesMap
}

func lookup(m *yaml.Node, key string) *yaml.Node {
	if m == nil || m.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func lastLine(n *yaml.Node) int {
	line := n.Line
	for _, c := range n.Content {
		line = max(line, lastLine(c))
	}
	return line
}

// IsNolint checks if a given position and rule are nolinted.
func (m *Manager) IsNolint(pos token.Position, ruleName string) bool {
	if m == nil {
		return false
	}
	scopes, exists := m.scopes[pos.Filename]
	if !exists {
		return false
	}
	for _, ns := range scopes {
		if pos.Line < ns.start || pos.Line > ns.end {
			continue
		}
		// If the rules list is empty, nolint applies to all rules
		if len(ns.rules) == 0 {
			return true
		}
		if _, exists := ns.rules[ruleName]; exists {
			return true
		}
	}
	return false
}
