// Package verifier checks decoded eBPF programs by abstract interpretation:
// an interval per register and tracked stack slot is propagated through the
// program's control-flow graph until a fixpoint, and safety findings are
// collected along the way.
package verifier

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/SeanHeelan/ebpf-verifier/asm"
	"github.com/SeanHeelan/ebpf-verifier/cfg"
	"github.com/SeanHeelan/ebpf-verifier/fixpoint"
	"github.com/SeanHeelan/ebpf-verifier/interval"
)

// Options configures one verification run.
type Options struct {
	// CheckTermination additionally requires a provably bounded statement
	// count on every path to the exit.
	CheckTermination bool
	// WideningDelay is how many joins a loop head gets before widening.
	WideningDelay int
	// NarrowingPasses is how many descending sweeps follow stabilization.
	NarrowingPasses int
	// Thresholds are the widening stopping points, in addition to ±∞.
	Thresholds []int64
	// Logger receives per-block invariants at debug level. Nil disables
	// logging.
	Logger *logrus.Logger
}

// DefaultOptions returns the options the CLI starts from.
func DefaultOptions() Options {
	return Options{
		WideningDelay:   1,
		NarrowingPasses: 2,
		Thresholds:      []int64{0, 1, 16, 32, 64, 256, 1024, 4096, 65536},
	}
}

// Warning is one safety finding, attached to the slot pc of the
// instruction that caused it (-1 for whole-program findings).
type Warning struct {
	PC      int
	Message string
}

func (w Warning) String() string {
	if w.PC < 0 {
		return w.Message
	}
	return fmt.Sprintf("%d: %s", w.PC, w.Message)
}

// Result is the outcome of a verification run.
type Result struct {
	// OK is true when no warning was raised.
	OK       bool
	Warnings []Warning
	// Invariants holds the abstract state on entry to every block.
	Invariants map[cfg.Label]State
}

// Verifier drives one analysis over one graph.
type Verifier struct {
	opts Options
	log  *logrus.Logger

	seen     map[string]bool
	warnings []Warning
}

// New returns a verifier with the given options.
func New(opts Options) *Verifier {
	log := opts.Logger
	if log == nil {
		log = logrus.New()
		log.SetLevel(logrus.PanicLevel)
	}
	return &Verifier{opts: opts, log: log, seen: map[string]bool{}}
}

// warnf records a deduplicated finding. Transfer functions run many times
// per statement on the way to the fixpoint, so the same finding recurs.
func (v *Verifier) warnf(pc int, format string, args ...any) {
	w := Warning{PC: pc, Message: fmt.Sprintf(format, args...)}
	key := w.String()
	if v.seen[key] {
		return
	}
	v.seen[key] = true
	v.warnings = append(v.warnings, w)
}

// Verify analyzes the program graph. The graph must have been produced by
// asm.MakeCfg (entry and exit blocks present).
func (v *Verifier) Verify(g *cfg.Cfg[asm.Statement]) *Result {
	fw := &fixpoint.Framework[asm.Statement, State]{
		Domain:          domain{ts: interval.NewThresholds(v.opts.Thresholds...)},
		Transfer:        v.transfer,
		Enter:           v.enter,
		WideningDelay:   v.opts.WideningDelay,
		NarrowingPasses: v.opts.NarrowingPasses,
	}

	res := fw.Analyze(cfg.NewRef(g), entryState())

	exitState := res.Pre[g.Exit()]
	if exitState.IsBottom() {
		v.warnf(-1, "exit is unreachable")
	}
	if v.opts.CheckTermination {
		v.checkTermination(exitState)
	}

	for _, l := range g.Labels() {
		v.log.WithFields(logrus.Fields{
			"block":     l,
			"invariant": res.Pre[l].String(),
		}).Debug("fixpoint reached")
	}

	sort.Slice(v.warnings, func(i, j int) bool {
		if v.warnings[i].PC != v.warnings[j].PC {
			return v.warnings[i].PC < v.warnings[j].PC
		}
		return v.warnings[i].Message < v.warnings[j].Message
	})

	return &Result{
		OK:         len(v.warnings) == 0,
		Warnings:   v.warnings,
		Invariants: res.Pre,
	}
}

// checkTermination inspects the block-entry counter at the exit. An interval
// domain carries no relation between a loop's guard and its counter, so any
// loop whose trip count the domain cannot bound is reported; that is
// conservative but sound.
func (v *Verifier) checkTermination(exit State) {
	if exit.IsBottom() {
		v.warnf(-1, "program may not terminate: no path reaches the exit")
		return
	}
	if exit.count.Ub().IsPlusInfinity() {
		v.warnf(-1, "program may not terminate: unbounded instruction count")
	}
}

// Verify is the package-level convenience wrapper: build, analyze, report.
func Verify(g *cfg.Cfg[asm.Statement], opts Options) *Result {
	return New(opts).Verify(g)
}
