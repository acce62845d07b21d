package instr

import (
	"fmt"
	"strings"
)

// ConditionKind is what a contract condition requires of an argument.
type ConditionKind uint8

const (
	CondNull ConditionKind = iota
	CondNotNull
	CondTrue
	CondFalse
)

func (k ConditionKind) String() string {
	switch k {
	case CondNull:
		return "null"
	case CondNotNull:
		return "!null"
	case CondTrue:
		return "true"
	case CondFalse:
		return "false"
	default:
		return "?"
	}
}

// QualifierArg designates the call qualifier in a Condition.
const QualifierArg = -1

// Condition constrains one argument of a call.
type Condition struct {
	Arg  int
	Kind ConditionKind
}

func (c Condition) String() string {
	if c.Arg == QualifierArg {
		return "this=" + c.Kind.String()
	}
	return fmt.Sprintf("$%d=%s", c.Arg, c.Kind)
}

// ReturnKind is the declared outcome of a contract.
type ReturnKind uint8

const (
	ReturnAny ReturnKind = iota
	ReturnNull
	ReturnNotNull
	ReturnTrue
	ReturnFalse
	// ReturnParam returns argument Param unchanged.
	ReturnParam
	ReturnQualifier
	// ReturnFail means the call never completes normally.
	ReturnFail
)

func (k ReturnKind) String() string {
	switch k {
	case ReturnAny:
		return "_"
	case ReturnNull:
		return "null"
	case ReturnNotNull:
		return "!null"
	case ReturnTrue:
		return "true"
	case ReturnFalse:
		return "false"
	case ReturnParam:
		return "param"
	case ReturnQualifier:
		return "this"
	case ReturnFail:
		return "fail"
	default:
		return "?"
	}
}

// Contract maps argument conditions to a return behaviour. Contracts of a
// method are tried in order; the first whose conditions hold applies.
type Contract struct {
	Conditions []Condition
	Return     ReturnKind
	Param      int
}

func (c Contract) String() string {
	conds := make([]string, len(c.Conditions))
	for i, cond := range c.Conditions {
		conds[i] = cond.String()
	}
	ret := c.Return.String()
	if c.Return == ReturnParam {
		ret = fmt.Sprintf("$%d", c.Param)
	}
	return strings.Join(conds, ", ") + " -> " + ret
}

// ParseCondition parses forms such as "null", "!null", "true" and "false".
func ParseCondition(s string) (ConditionKind, error) {
	switch strings.TrimSpace(s) {
	case "null":
		return CondNull, nil
	case "!null":
		return CondNotNull, nil
	case "true":
		return CondTrue, nil
	case "false":
		return CondFalse, nil
	}
	return 0, fmt.Errorf("unknown contract condition %q", s)
}

// ParseReturn parses a contract return: one of "_", "null", "!null",
// "true", "false", "this", "fail", or "$N" for parameter N.
func ParseReturn(s string) (ReturnKind, int, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "_", "":
		return ReturnAny, 0, nil
	case "null":
		return ReturnNull, 0, nil
	case "!null":
		return ReturnNotNull, 0, nil
	case "true":
		return ReturnTrue, 0, nil
	case "false":
		return ReturnFalse, 0, nil
	case "this":
		return ReturnQualifier, 0, nil
	case "fail":
		return ReturnFail, 0, nil
	}
	var n int
	if _, err := fmt.Sscanf(s, "$%d", &n); err == nil && n >= 0 {
		return ReturnParam, n, nil
	}
	return 0, 0, fmt.Errorf("unknown contract return %q", s)
}

// ParseContracts parses a semicolon separated list of contracts. Each
// contract is "conditions -> return". Conditions are either explicit, as in
// "$1=null" or "this=!null", or positional, as in "null, _" where "_" leaves
// the argument unconstrained.
func ParseContracts(s string) ([]Contract, error) {
	var out []Contract
	for _, clause := range strings.Split(s, ";") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		lhs, rhs, ok := strings.Cut(clause, "->")
		if !ok {
			return nil, fmt.Errorf("contract %q: missing \"->\"", clause)
		}
		var c Contract
		var err error
		if c.Return, c.Param, err = ParseReturn(rhs); err != nil {
			return nil, fmt.Errorf("contract %q: %w", clause, err)
		}
		if strings.TrimSpace(lhs) != "" {
			for i, part := range strings.Split(lhs, ",") {
				cond, skip, err := parseConditionAt(strings.TrimSpace(part), i)
				if err != nil {
					return nil, fmt.Errorf("contract %q: %w", clause, err)
				}
				if !skip {
					c.Conditions = append(c.Conditions, cond)
				}
			}
		}
		out = append(out, c)
	}
	return out, nil
}

func parseConditionAt(part string, pos int) (Condition, bool, error) {
	if part == "_" {
		return Condition{}, true, nil
	}
	target, kind, explicit := strings.Cut(part, "=")
	if !explicit {
		k, err := ParseCondition(part)
		return Condition{Arg: pos, Kind: k}, false, err
	}
	k, err := ParseCondition(kind)
	if err != nil {
		return Condition{}, false, err
	}
	target = strings.TrimSpace(target)
	if target == "this" {
		return Condition{Arg: QualifierArg, Kind: k}, false, nil
	}
	var n int
	if _, err := fmt.Sscanf(target, "$%d", &n); err != nil || n < 0 {
		return Condition{}, false, fmt.Errorf("unknown contract argument %q", target)
	}
	return Condition{Arg: n, Kind: k}, false, nil
}
