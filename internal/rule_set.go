package internal

import (
	"github.com/gnolang/dfa/internal/checks"
	tt "github.com/gnolang/dfa/internal/types"
)

// AnalysisRule defines the interface for all analysis rules.
type AnalysisRule interface {
	// NewCollector returns a collector for one analysis run.
	NewCollector() checks.Collector

	// Name returns the name of the rule.
	Name() string

	Category() string

	Severity() tt.Severity
	SetSeverity(tt.Severity)
}

// checkRule exposes a check as a configurable rule.
type checkRule struct {
	name     string
	category string
	severity tt.Severity
	collect  checks.Constructor
}

func (r *checkRule) NewCollector() checks.Collector   { return r.collect() }
func (r *checkRule) Name() string                     { return r.name }
func (r *checkRule) Category() string                 { return r.category }
func (r *checkRule) Severity() tt.Severity            { return r.severity }
func (r *checkRule) SetSeverity(severity tt.Severity) { r.severity = severity }

func newCheckRule(name, category string, severity tt.Severity) AnalysisRule {
	return &checkRule{
		name:     name,
		category: category,
		severity: severity,
		collect:  checks.All[name],
	}
}

func NewConstantConditionRule() AnalysisRule {
	return newCheckRule(checks.ConstantCondition, "reachability", tt.SeverityWarning)
}

func NewNullDereferenceRule() AnalysisRule {
	return newCheckRule(checks.NullDereference, "nullness", tt.SeverityError)
}

func NewFailingCallRule() AnalysisRule {
	return newCheckRule(checks.FailingCall, "contracts", tt.SeverityError)
}

func NewIndexOutOfBoundsRule() AnalysisRule {
	return newCheckRule(checks.IndexOutOfBounds, "bounds", tt.SeverityError)
}

func NewDivisionByZeroRule() AnalysisRule {
	return newCheckRule(checks.DivisionByZero, "arithmetic", tt.SeverityError)
}

func NewTooComplexRule() AnalysisRule {
	return newCheckRule(checks.TooComplex, "complexity", tt.SeverityInfo)
}
