// Package interp executes instruction streams over abstract memory states.
//
// An Interpreter explores every feasible path of a program with a worklist
// ordered by instruction index. States reaching the same instruction are
// merged when one covers another; loop heads join and eventually widen
// their states so that exploration terminates. Budgets on steps, live
// states and loop visits turn pathological inputs into StatusTooComplex
// instead of unbounded work.
package interp

import (
	"container/heap"
	"context"
	"errors"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/gnolang/dfa/internal/analysis/cfg"
	"github.com/gnolang/dfa/internal/analysis/instr"
	"github.com/gnolang/dfa/internal/analysis/state"
	"github.com/gnolang/dfa/internal/analysis/value"
)

// Interpreter runs analyses. It is safe for concurrent use; every run owns
// its value factory and states.
type Interpreter struct {
	model     instr.Model
	cfg       Config
	logger    *zap.Logger
	listeners []Listener
	mu        sync.Mutex
	// sem bounds the number of runs exploring at the same time.
	sem chan struct{}
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(it *Interpreter) {
		if l != nil {
			it.logger = l
		}
	}
}

// WithListener adds a listener notified of every executed instruction.
func WithListener(l Listener) Option {
	return func(it *Interpreter) { it.listeners = append(it.listeners, l) }
}

// WithParallelism bounds the number of runs exploring at the same time,
// closures included.
func WithParallelism(n int) Option {
	return func(it *Interpreter) {
		if n > 0 {
			it.sem = make(chan struct{}, n)
		}
	}
}

// New returns an interpreter answering program queries with model.
func New(model instr.Model, cfg Config, opts ...Option) *Interpreter {
	if model == nil {
		model = instr.NewStaticModel()
	}
	it := &Interpreter{
		model:  model,
		cfg:    cfg.withDefaults(),
		logger: zap.NewNop(),
		sem:    make(chan struct{}, runtime.NumCPU()),
	}
	for _, opt := range opts {
		opt(it)
	}
	return it
}

// Run analyses p from its entry, then every closure it creates from the
// states captured where it is created.
func (it *Interpreter) Run(ctx context.Context, p *instr.Program) Result {
	if err := p.Validate(); err != nil {
		return Result{Program: p, Status: StatusNotApplicable, Reason: "malformed program", Err: err}
	}
	f := value.NewFactory()
	return it.analyse(ctx, p, f, []*state.State{state.New(f)})
}

func (it *Interpreter) analyse(ctx context.Context, p *instr.Program, f *value.Factory, entries []*state.State) Result {
	r := newRun(it, p, f)
	res := it.explore(ctx, r, entries)
	if len(p.Closures) > 0 {
		res.Closures = it.runClosures(ctx, r)
	}
	return res
}

// explore runs the worklist of r. A broken state invariant ends the run,
// never the process.
func (it *Interpreter) explore(ctx context.Context, r *run, entries []*state.State) (res Result) {
	it.sem <- struct{}{}
	defer func() { <-it.sem }()
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		err, ok := rec.(*state.InvariantError)
		if !ok {
			panic(rec)
		}
		it.logger.Error("analysis aborted",
			zap.String("function", r.prog.Name),
			zap.Int("pc", r.pc),
			zap.Error(err),
		)
		res = r.result(StatusNotApplicable, "internal consistency failure")
		res.Err = err
	}()
	return r.loop(ctx, entries)
}

// runClosures analyses every nested program from the states captured for
// it. Captures with the same key are joined first. Closures never reached
// are not analysed.
func (it *Interpreter) runClosures(ctx context.Context, r *run) []Result {
	out := make([]Result, len(r.prog.Closures))
	var wg sync.WaitGroup
	for i, cp := range r.prog.Closures {
		captured := r.captures[i]
		if len(captured) == 0 {
			out[i] = Result{Program: cp, Status: StatusOk}
			continue
		}
		var entries []*state.State
		for _, g := range byKey(captured) {
			entries = append(entries, joinAll(g.states))
		}
		f := r.f.Clone()
		for j, e := range entries {
			entries[j] = e.Rebind(f)
		}
		wg.Add(1)
		go func(i int, cp *instr.Program) {
			defer wg.Done()
			out[i] = it.analyse(ctx, cp, f, entries)
		}(i, cp)
	}
	wg.Wait()
	return out
}

func (it *Interpreter) notify(e Event) {
	if len(it.listeners) == 0 {
		return
	}
	it.mu.Lock()
	defer it.mu.Unlock()
	for _, l := range it.listeners {
		l.OnInstruction(e)
	}
}

// run is the state of one analysis of one program.
type run struct {
	it    *Interpreter
	cfg   Config
	prog  *instr.Program
	f     *value.Factory
	graph *cfg.Graph

	queue   pcQueue
	pending map[int][]*state.State
	live    int
	// visits counts how often each loop head was processed; seen holds
	// the state last processed there for every key.
	visits map[int]int
	seen   map[int]map[string]*state.State
	// captures holds the closure states recorded per nested program.
	captures map[int][]*state.State

	pc    int
	steps int
	peak  int
}

func newRun(it *Interpreter, p *instr.Program, f *value.Factory) *run {
	return &run{
		it:       it,
		cfg:      it.cfg,
		prog:     p,
		f:        f,
		graph:    cfg.New(p),
		pending:  make(map[int][]*state.State),
		visits:   make(map[int]int),
		seen:     make(map[int]map[string]*state.State),
		captures: make(map[int][]*state.State),
	}
}

func (r *run) result(status Status, reason string) Result {
	return Result{
		Program:    r.prog,
		Status:     status,
		Reason:     reason,
		PC:         r.pc,
		Steps:      r.steps,
		PeakStates: r.peak,
	}
}

func (r *run) tooComplex(reason string) Result {
	r.it.logger.Debug("analysis too complex",
		zap.String("function", r.prog.Name),
		zap.String("reason", reason),
		zap.Int("pc", r.pc),
		zap.Int("steps", r.steps),
		zap.Int("states", r.live),
	)
	return r.result(StatusTooComplex, reason)
}

func (r *run) enqueue(pc int, s *state.State) {
	if _, ok := r.pending[pc]; !ok {
		heap.Push(&r.queue, pc)
	}
	r.pending[pc] = append(r.pending[pc], s)
	r.live++
}

func (r *run) loop(ctx context.Context, entries []*state.State) Result {
	for _, e := range entries {
		r.enqueue(0, e)
	}
	for r.queue.Len() > 0 {
		if err := ctx.Err(); err != nil {
			reason := "cancelled"
			if errors.Is(err, context.DeadlineExceeded) {
				reason = "deadline exceeded"
			}
			return r.tooComplex(reason)
		}
		pc := heap.Pop(&r.queue).(int)
		states := r.pending[pc]
		delete(r.pending, pc)
		r.live -= len(states)
		r.pc = pc

		states = r.merge(pc, states)
		if r.graph.IsLoopHead(pc) {
			r.visits[pc]++
			if r.visits[pc] > r.cfg.MaxLoopVisits {
				return r.tooComplex("loop visited too often")
			}
			states = r.joinLoopHead(pc, states)
		}

		in := r.prog.At(pc)
		for _, s := range states {
			r.steps++
			if r.steps > r.cfg.MaxSteps {
				return r.tooComplex("too many steps")
			}
			succs, err := r.exec(pc, in, s)
			if err != nil {
				res := r.result(StatusNotApplicable, "malformed program")
				res.Err = err
				return res
			}
			if r.cfg.CheckInvariants {
				for _, sc := range succs {
					if err := sc.State.CheckInvariants(); err != nil {
						panic(err)
					}
				}
			}
			r.it.notify(Event{Program: r.prog, PC: pc, Instr: in, Before: s, Succs: succs})
			for _, sc := range succs {
				if sc.Exceptional && sc.PC == instr.NoHandler {
					continue
				}
				r.enqueue(sc.PC, sc.State)
			}
		}
		r.peak = max(r.peak, r.live)
		if r.live > r.cfg.MaxStates {
			return r.tooComplex("too many states")
		}
	}
	return r.result(StatusOk, "")
}

// joinLoopHead joins the states arriving at a loop head with the state last
// processed there under the same key. States already covered are dropped,
// which is how loops reach their fixpoint; after WideningThreshold visits
// the join widens.
func (r *run) joinLoopHead(pc int, states []*state.State) []*state.State {
	seen := r.seen[pc]
	if seen == nil {
		seen = make(map[string]*state.State)
		r.seen[pc] = seen
	}
	widen := r.visits[pc] > r.cfg.WideningThreshold
	next := make(map[string]*state.State)
	var order []string
	for _, s := range states {
		key := s.Key()
		if cur, ok := next[key]; ok {
			if !cur.IsSuperStateOf(s) {
				next[key] = state.Merge(cur, s, widen)
			}
			continue
		}
		if prev, ok := seen[key]; ok {
			if prev.IsSuperStateOf(s) {
				continue
			}
			s = state.Merge(prev, s, widen)
			if widen {
				r.it.logger.Debug("widened loop state",
					zap.String("function", r.prog.Name),
					zap.Int("pc", pc),
					zap.Int("visit", r.visits[pc]),
				)
			}
		}
		next[key] = s
		order = append(order, key)
	}
	out := make([]*state.State, 0, len(order))
	for _, key := range order {
		seen[key] = next[key]
		out = append(out, next[key])
	}
	return out
}

// pcQueue is a min-heap of instruction indices: lower instructions run
// first so that forward joins see all their incoming states at once.
type pcQueue []int

func (q pcQueue) Len() int           { return len(q) }
func (q pcQueue) Less(i, j int) bool { return q[i] < q[j] }
func (q pcQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *pcQueue) Push(x any)        { *q = append(*q, x.(int)) }

func (q *pcQueue) Pop() any {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[:n-1]
	return x
}
