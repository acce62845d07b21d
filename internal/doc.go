// Package internal provides the analysis engine behind the dfa command.
//
// Engine parses a program file, runs the abstract interpreter over every
// function and turns what the enabled rules collected into issues. Each rule
// pairs a collector from the checks package with a category and a severity
// that the configuration file may override; a rule set to off is never run.
//
// Key components:
//
// Engine: coordinates the analysis of one file. Functions are analysed
// concurrently and the issues are sorted by position.
//
// AnalysisRule: a named rule with a category and a severity. It creates a
// fresh collector for every function.
//
// Cache: keeps the issues of unchanged files between runs. Entries expire
// when the file, the configuration file or the rule settings change.
//
// Watcher: analyses program files again whenever they are written.
//
// Issues can be silenced with "# nolint" comments, see the nolint package.
//
// Usage:
//
//	engine, err := internal.NewEngine(logger, rules, interp.DefaultConfig())
//	if err != nil {
//	    // handle error
//	}
//	issues, err := engine.Run(ctx, "program.dfa")
package internal
