package interp

// Config bounds a single analysis run. Every limit is deterministic: the
// same program and configuration always give the same result.
type Config struct {
	// MaxStates is the number of live states above which the run gives up.
	MaxStates int `yaml:"max_states"`
	// MaxSteps bounds the total number of executed instructions.
	MaxSteps int `yaml:"max_steps"`
	// WideningThreshold is the number of visits of a loop head after which
	// ranges are widened instead of joined.
	WideningThreshold int `yaml:"widening_threshold"`
	MaxLoopVisits     int `yaml:"max_loop_visits"`
	// MergeThreshold is the number of states at one instruction above
	// which states are merged by stripping boolean facts.
	MergeThreshold int `yaml:"merge_threshold"`
	// ForceMergeThreshold is the number of states with the same key at one
	// instruction above which they are joined unconditionally.
	ForceMergeThreshold int  `yaml:"force_merge_threshold"`
	MergeBudget         int  `yaml:"merge_budget"`
	MaxContractForks    int  `yaml:"max_contract_forks"`
	CheckInvariants     bool `yaml:"check_invariants"`
}

// DefaultConfig returns the limits used when none are configured.
func DefaultConfig() Config {
	return Config{
		MaxStates:           20000,
		MaxSteps:            200000,
		WideningThreshold:   3,
		MaxLoopVisits:       64,
		MergeThreshold:      8,
		ForceMergeThreshold: 32,
		MergeBudget:         100000,
		MaxContractForks:    16,
	}
}

// withDefaults replaces unset limits by their defaults.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	fill := func(v *int, def int) {
		if *v <= 0 {
			*v = def
		}
	}
	fill(&c.MaxStates, d.MaxStates)
	fill(&c.MaxSteps, d.MaxSteps)
	fill(&c.WideningThreshold, d.WideningThreshold)
	fill(&c.MaxLoopVisits, d.MaxLoopVisits)
	fill(&c.MergeThreshold, d.MergeThreshold)
	fill(&c.ForceMergeThreshold, d.ForceMergeThreshold)
	fill(&c.MergeBudget, d.MergeBudget)
	fill(&c.MaxContractForks, d.MaxContractForks)
	return c
}
