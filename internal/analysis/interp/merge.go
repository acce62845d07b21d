package interp

import (
	"slices"
	"strconv"
	"strings"

	"github.com/hashicorp/go-set/v3"
	"go.uber.org/zap"

	"github.com/gnolang/dfa/internal/analysis/lattice"
	"github.com/gnolang/dfa/internal/analysis/state"
	"github.com/gnolang/dfa/internal/analysis/value"
)

// group is a set of states sharing a mergeability key.
type group struct {
	key    string
	states []*state.State
}

// byKey partitions states by key, keeping first-seen order.
func byKey(states []*state.State) []*group {
	var groups []*group
	index := make(map[string]*group)
	for _, s := range states {
		k := s.Key()
		g, ok := index[k]
		if !ok {
			g = &group{key: k}
			index[k] = g
			groups = append(groups, g)
		}
		g.states = append(g.states, s)
	}
	return groups
}

// merge reduces the states waiting at pc. States covered by another one are
// dropped; large groups are joined; and when too many states remain they are
// merged by stripping boolean facts.
func (r *run) merge(pc int, states []*state.State) []*state.State {
	if len(states) < 2 {
		return states
	}
	groups := byKey(states)
	total := 0
	for _, g := range groups {
		g.states = dropSubsumed(g.states)
		if len(g.states) > r.cfg.ForceMergeThreshold {
			g.states = []*state.State{joinAll(g.states)}
		}
		total += len(g.states)
	}
	if total > r.cfg.MergeThreshold {
		before := total
		total = 0
		for _, g := range groups {
			if len(g.states) > 1 {
				g.states = r.mergeByFacts(g.states)
			}
			total += len(g.states)
		}
		r.it.logger.Debug("merged states by facts",
			zap.String("function", r.prog.Name),
			zap.Int("pc", pc),
			zap.Int("before", before),
			zap.Int("after", total),
		)
	}
	out := make([]*state.State, 0, total)
	for _, g := range groups {
		out = append(out, g.states...)
	}
	return out
}

// dropSubsumed removes the states described by another state of the slice.
func dropSubsumed(states []*state.State) []*state.State {
	var kept []*state.State
next:
	for _, s := range states {
		for _, k := range kept {
			if k.IsSuperStateOf(s) {
				continue next
			}
		}
		kept = slices.DeleteFunc(kept, s.IsSuperStateOf)
		kept = append(kept, s)
	}
	return kept
}

func joinAll(states []*state.State) *state.State {
	acc := states[0]
	for _, s := range states[1:] {
		acc = state.Merge(acc, s, false)
	}
	return acc
}

// mergeByFacts repeatedly merges states that differ in a single boolean
// fact until no such pair is left or the merge budget is spent.
func (r *run) mergeByFacts(states []*state.State) []*state.State {
	budget := r.cfg.MergeBudget
	for len(states) > 1 {
		merged, cost, ok := r.stripOne(states)
		budget -= cost
		if budget < 0 {
			r.it.logger.Debug("fact merge budget exhausted",
				zap.String("function", r.prog.Name),
				zap.Int("states", len(states)),
			)
			return states
		}
		if !ok {
			return states
		}
		states = merged
	}
	return states
}

// stripOne looks for a fact F, in ascending packed order, such that some
// states where F holds and some where F is refuted agree on every fact not
// about the subjects of F. Those states are replaced by one state that
// knows nothing about the subjects beyond the join of their facts.
func (r *run) stripOne(states []*state.State) ([]*state.State, int, bool) {
	facts := make([][]state.BoolFact, len(states))
	var candidates []state.BoolFact
	for i, s := range states {
		facts[i] = s.BoolFacts()
		candidates = append(candidates, facts[i]...)
	}
	slices.Sort(candidates)
	candidates = slices.Compact(candidates)

	cost := 0
	for _, f := range candidates {
		cost += len(states)
		holds := make([]bool, len(states))
		var members []int
		for i, s := range states {
			switch {
			case s.Holds(f):
				holds[i] = true
				members = append(members, i)
			case s.Refutes(f):
				members = append(members, i)
			}
		}
		subjects := f.Subjects(r.f)
		if len(subjects) == 0 {
			continue
		}
		ids := set.New[value.ID](len(subjects))
		for _, v := range subjects {
			ids.Insert(v.ID())
		}
		buckets := make(map[string][]int)
		var order []string
		for _, i := range members {
			k := restKey(facts[i], ids, r.f)
			if _, ok := buckets[k]; !ok {
				order = append(order, k)
			}
			buckets[k] = append(buckets[k], i)
		}
		for _, k := range order {
			bucket := buckets[k]
			if !mixed(bucket, holds) {
				continue
			}
			cost += len(bucket) * len(facts[bucket[0]])
			return r.strip(states, bucket, f, subjects), cost, true
		}
	}
	return states, cost, false
}

// mixed reports whether bucket has states on both sides of the fact.
func mixed(bucket []int, holds []bool) bool {
	var yes, no bool
	for _, i := range bucket {
		if holds[i] {
			yes = true
		} else {
			no = true
		}
	}
	return yes && no
}

// restKey renders the facts that mention none of the subjects.
func restKey(facts []state.BoolFact, subjects *set.Set[value.ID], f *value.Factory) string {
	var b strings.Builder
	for _, fact := range facts {
		about := false
		for _, v := range fact.Subjects(f) {
			if subjects.Contains(v.ID()) {
				about = true
				break
			}
		}
		if about {
			continue
		}
		b.WriteString(strconv.FormatInt(int64(fact), 36))
		b.WriteByte(',')
	}
	return b.String()
}

// strip replaces the states of bucket by their merge after forgetting f.
func (r *run) strip(states []*state.State, bucket []int, f state.BoolFact, subjects []*value.Value) []*state.State {
	joined := make(map[value.ID]lattice.Fact, len(subjects))
	for _, v := range subjects {
		acc := lattice.Bottom()
		for _, i := range bucket {
			acc = acc.Join(states[i].Fact(v))
		}
		joined[v.ID()] = acc
	}
	var acc *state.State
	for _, i := range bucket {
		s := states[i].Strip(f, joined)
		if acc == nil {
			acc = s
		} else {
			acc = state.Merge(acc, s, false)
		}
	}
	out := []*state.State{acc}
	for i, s := range states {
		if !slices.Contains(bucket, i) {
			out = append(out, s)
		}
	}
	return out
}
