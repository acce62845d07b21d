package internal

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/gnolang/dfa/internal/analysis/instr"
	"github.com/gnolang/dfa/internal/analysis/interp"
	"github.com/gnolang/dfa/internal/checks"
	"github.com/gnolang/dfa/internal/nolint"
	"github.com/gnolang/dfa/internal/program"
	tt "github.com/gnolang/dfa/internal/types"
)

// Engine manages the analysis process.
type Engine struct {
	logger       *zap.Logger
	config       interp.Config
	ignoredRules map[string]bool
	ignoredPaths []string
	rules        map[string]AnalysisRule
	cache        *Cache
}

// NewEngine creates a new analysis engine. rules overrides the severity of
// the built-in rules; a nil logger discards everything.
func NewEngine(logger *zap.Logger, rules map[string]tt.ConfigRule, config interp.Config) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	engine := &Engine{
		logger: logger,
		config: config,
	}
	if err := engine.applyRules(rules); err != nil {
		return nil, err
	}

	return engine, nil
}

// Define the ruleConstructor type
type ruleConstructor func() AnalysisRule

// Define the ruleMap type
type ruleMap map[string]ruleConstructor

// Create a map to hold the mappings of rule names to their constructors
var allRuleConstructors = ruleMap{
	checks.ConstantCondition: NewConstantConditionRule,
	checks.NullDereference:   NewNullDereferenceRule,
	checks.FailingCall:       NewFailingCallRule,
	checks.IndexOutOfBounds:  NewIndexOutOfBoundsRule,
	checks.DivisionByZero:    NewDivisionByZeroRule,
	checks.TooComplex:        NewTooComplexRule,
}

// RuleNames returns the names of every known rule, sorted.
func RuleNames() []string {
	names := make([]string, 0, len(allRuleConstructors))
	for name := range allRuleConstructors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// DefaultRules returns the configuration of every rule at its default
// severity.
func DefaultRules() map[string]tt.ConfigRule {
	rules := make(map[string]tt.ConfigRule, len(allRuleConstructors))
	for name, newRule := range allRuleConstructors {
		rules[name] = tt.ConfigRule{Severity: newRule().Severity()}
	}
	return rules
}

// RuleInfo describes a built-in rule.
type RuleInfo struct {
	Name     string
	Category string
	Severity tt.Severity
}

// Rules describes every built-in rule at its default severity, sorted by
// name.
func Rules() []RuleInfo {
	infos := make([]RuleInfo, 0, len(allRuleConstructors))
	for _, name := range RuleNames() {
		r := allRuleConstructors[name]()
		infos = append(infos, RuleInfo{Name: name, Category: r.Category(), Severity: r.Severity()})
	}
	return infos
}

func (e *Engine) applyRules(rules map[string]tt.ConfigRule) error {
	e.rules = make(map[string]AnalysisRule)
	e.registerDefaultRules()

	for key, rule := range rules {
		r := e.findRule(key)
		if r == nil {
			newRuleCstr := allRuleConstructors[key]
			if newRuleCstr == nil {
				return fmt.Errorf("unknown rule %q", key)
			}
			r = newRuleCstr()
			e.rules[key] = r
		}
		if rule.Severity == tt.SeverityOff {
			e.IgnoreRule(key)
		}
		r.SetSeverity(rule.Severity)
	}
	return nil
}

func (e *Engine) registerDefaultRules() {
	for key, newRuleCstr := range allRuleConstructors {
		newRule := newRuleCstr()
		if newRule.Severity() != tt.SeverityOff {
			e.rules[key] = newRule
		}
	}
}

func (e *Engine) findRule(name string) AnalysisRule {
	if rule, ok := e.rules[name]; ok {
		return rule
	}
	return nil
}

// UseCache stores results in cache. Entries made with other rules or limits
// are not reused.
func (e *Engine) UseCache(cache *Cache) {
	cache.SetSettings(e.settings())
	e.cache = cache
}

// settings identifies what the engine reports.
func (e *Engine) settings() string {
	var b strings.Builder
	for _, name := range RuleNames() {
		r := e.findRule(name)
		if r == nil || e.ignoredRules[name] {
			continue
		}
		fmt.Fprintf(&b, "%s=%s;", name, r.Severity())
	}
	fmt.Fprintf(&b, "%+v", e.config)
	return b.String()
}

func (e *Engine) IgnoreRule(rule string) {
	if e.ignoredRules == nil {
		e.ignoredRules = make(map[string]bool)
	}
	e.ignoredRules[rule] = true
}

// IgnorePath skips files matching the glob pattern.
func (e *Engine) IgnorePath(pattern string) {
	e.ignoredPaths = append(e.ignoredPaths, pattern)
}

func (e *Engine) isIgnoredPath(filename string) bool {
	for _, pattern := range e.ignoredPaths {
		if ok, _ := filepath.Match(pattern, filename); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, filepath.Base(filename)); ok {
			return true
		}
	}
	return false
}

// Run analyses every function of the program file and returns the issues
// found, sorted by position.
func (e *Engine) Run(ctx context.Context, filename string) ([]tt.Issue, error) {
	if e.isIgnoredPath(filename) {
		return nil, nil
	}
	if e.cache != nil {
		if issues, ok := e.cache.Get(filename); ok {
			e.logger.Debug("cache hit", zap.String("file", filename))
			return issues, nil
		}
	}

	src, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading program file: %w", err)
	}
	issues, err := e.RunSource(ctx, filename, src)
	if err != nil {
		return nil, err
	}

	if e.cache != nil && ctx.Err() == nil {
		if err := e.cache.Set(filename, issues); err != nil {
			e.logger.Warn("failed to cache issues", zap.String("file", filename), zap.Error(err))
		}
	}
	return issues, nil
}

// RunSource analyses the program file contents src.
func (e *Engine) RunSource(ctx context.Context, filename string, src []byte) ([]tt.Issue, error) {
	file, err := program.Parse(filename, src)
	if err != nil {
		return nil, err
	}
	nolintMgr, err := nolint.Parse(filename, src)
	if err != nil {
		return nil, err
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	sem := make(chan struct{}, runtime.NumCPU())

	var allIssues []tt.Issue
	for _, fn := range file.Functions {
		wg.Add(1)
		go func(fn *instr.Program) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			issues := e.analyse(ctx, file, fn)

			mu.Lock()
			allIssues = append(allIssues, issues...)
			mu.Unlock()
		}(fn)
	}
	wg.Wait()

	allIssues = filterNolintIssues(nolintMgr, allIssues)
	sortIssues(allIssues)
	return allIssues, nil
}

// analyse runs one function, closures included, with a collector per
// enabled rule.
func (e *Engine) analyse(ctx context.Context, file *program.File, fn *instr.Program) []tt.Issue {
	type active struct {
		rule      AnalysisRule
		collector checks.Collector
	}
	var rules []active
	opts := []interp.Option{interp.WithLogger(e.logger), interp.WithParallelism(1)}
	for _, name := range RuleNames() {
		r := e.findRule(name)
		if r == nil || e.ignoredRules[name] {
			continue
		}
		c := r.NewCollector()
		rules = append(rules, active{rule: r, collector: c})
		opts = append(opts, interp.WithListener(c))
	}

	res := interp.New(file.Model, e.config, opts...).Run(ctx, fn)
	res.Walk(func(r interp.Result) {
		if r.Status == interp.StatusNotApplicable {
			e.logger.Error("function not analysed",
				zap.String("file", file.Name),
				zap.String("function", r.Program.Name),
				zap.String("reason", r.Reason),
				zap.Error(r.Err),
			)
		}
	})

	var issues []tt.Issue
	for _, a := range rules {
		for _, f := range a.collector.Findings(res) {
			issues = append(issues, e.issue(file, res, a.rule, f))
		}
	}
	return issues
}

func (e *Engine) issue(file *program.File, res interp.Result, rule AnalysisRule, f checks.Finding) tt.Issue {
	severity := rule.Severity()
	if !f.Definite && severity == tt.SeverityError {
		severity = tt.SeverityWarning
	}
	pos := f.Program.Position(f.PC)
	if pos.Filename == "" {
		pos.Filename = file.Name
	}
	function := res.Program.Name
	if path := res.Path(f.Program); len(path) > 1 {
		names := make([]string, len(path))
		for i, p := range path {
			names[i] = p.Name
		}
		function = strings.Join(names, "/")
	}
	return tt.Issue{
		Rule:     rule.Name(),
		Category: rule.Category(),
		Filename: file.Name,
		Function: function,
		Message:  f.Message,
		Note:     f.Note,
		Start:    pos,
		End:      pos,
		Severity: severity,
	}
}

// filterNolintIssues filters issues based on nolint comments.
func filterNolintIssues(mgr *nolint.Manager, issues []tt.Issue) []tt.Issue {
	if mgr == nil {
		return issues
	}
	filtered := make([]tt.Issue, 0, len(issues))
	for _, issue := range issues {
		if !mgr.IsNolint(issue.Start, issue.Rule) {
			filtered = append(filtered, issue)
		}
	}
	return filtered
}

func sortIssues(issues []tt.Issue) {
	slices.SortStableFunc(issues, func(a, b tt.Issue) int {
		if c := cmp.Compare(a.Start.Line, b.Start.Line); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Start.Column, b.Start.Column); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Rule, b.Rule); c != 0 {
			return c
		}
		return cmp.Compare(a.Message, b.Message)
	})
}
