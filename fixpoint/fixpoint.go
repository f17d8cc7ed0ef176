// Package fixpoint runs worklist dataflow analyses over control-flow graphs.
//
// The engine is generic in both the statement payload S and the abstract
// state D. It demands little of its inputs, but what it demands is load
// bearing:
//
//   - the graph must give every node a stable identity (labels never change
//     or get reused while an analysis runs), enumerate successors and
//     predecessors deterministically, and tolerate repeated traversal;
//   - the domain must be a lattice: Join commutative, associative and
//     idempotent with bottom as neutral element, Leq the matching partial
//     order, Widen an upper bound of both arguments that stabilizes every
//     ascending chain, and Narrow a refinement that never climbs.
//
// Both forward and backward analyses use the same engine; a backward
// analysis simply passes the reversed view of its graph.
package fixpoint

import (
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/SeanHeelan/ebpf-verifier/cfg"
)

// Domain bundles the lattice operations over the abstract state D. A Domain
// implementation carries any policy the operations need, such as the
// threshold set its Widen consults; the engine itself has no threshold
// policy.
type Domain[D any] interface {
	Bottom() D
	Join(a, b D) D
	// Widen extrapolates from the previous state a to the grown state b.
	Widen(a, b D) D
	// Narrow refines a using b after widening has stabilized.
	Narrow(a, b D) D
	// Leq reports whether a is below b in the lattice order.
	Leq(a, b D) bool
}

// Graph is the part of the CFG contract the engine consumes. Both
// cfg.Ref[S] and cfg.Rev[S] satisfy it.
type Graph[S any] interface {
	Entry() cfg.Label
	Labels() []cfg.Label
	Successors(cfg.Label) []cfg.Label
	Predecessors(cfg.Label) []cfg.Label
	ForEachStatement(cfg.Label, func(S))
}

// Framework describes one analysis: a domain and a statement-level transfer
// function. Transfer must be monotone in its state argument.
type Framework[S, D any] struct {
	Domain   Domain[D]
	Transfer func(l cfg.Label, s S, d D) D
	// Enter, if set, transforms the state once on entry to each block,
	// before its statements. Analyses use it for per-block bookkeeping such
	// as trip counting.
	Enter func(l cfg.Label, d D) D
	// WideningDelay is how many times a loop head is joined, its first
	// visit included, before the engine starts widening it. Zero widens
	// immediately.
	WideningDelay int
	// NarrowingPasses is how many descending sweeps run after the ascending
	// phase stabilizes.
	NarrowingPasses int
}

// Result holds, for every node, the abstract state on entry to the node and
// on exit from it.
type Result[D any] struct {
	Pre, Post map[cfg.Label]D
}

// iterationBudget bounds the ascending phase. With a lawful domain the
// budget is unreachable: widening forces stabilization long before it. Blowing
// it means a Domain or Transfer contract violation, which is a bug in the
// caller, not an analysis result.
const iterationBudget = 64

// Analyze runs the analysis over g with the given state at the entry node.
func (fw *Framework[S, D]) Analyze(g Graph[S], entryState D) *Result[D] {
	order, heads := preorder(g)
	index := make(map[cfg.Label]int, len(order))
	for i, l := range order {
		index[l] = i
	}

	res := &Result[D]{
		Pre:  map[cfg.Label]D{},
		Post: map[cfg.Label]D{},
	}
	for _, l := range g.Labels() {
		res.Pre[l] = fw.Domain.Bottom()
		res.Post[l] = fw.Domain.Bottom()
	}

	visits := map[cfg.Label]int{}

	// Ascending phase. The worklist is kept in preorder so that two runs
	// over the same graph take identical steps.
	work := newWorklist(index)
	work.push(g.Entry())
	for !work.empty() {
		l := work.pop()
		visits[l]++
		if visits[l] > iterationBudget {
			panic(fmt.Sprintf("fixpoint: node %s failed to stabilize; the domain's widening or the transfer function is broken", l))
		}

		in := fw.joinPreds(g, res, l, entryState)
		if heads[l] && visits[l] > fw.WideningDelay {
			in = fw.Domain.Widen(res.Pre[l], in)
		}
		if visits[l] > 1 && fw.Domain.Leq(in, res.Pre[l]) {
			continue
		}
		res.Pre[l] = in

		out := fw.transferBlock(g, l, in)
		res.Post[l] = out
		for _, s := range g.Successors(l) {
			work.push(s)
		}
	}

	// Descending phase: recompute with narrowing at the loop heads to claw
	// back the precision the widening gave up.
	for pass := 0; pass < fw.NarrowingPasses; pass++ {
		for _, l := range order {
			in := fw.joinPreds(g, res, l, entryState)
			if heads[l] {
				in = fw.Domain.Narrow(res.Pre[l], in)
			}
			res.Pre[l] = in
			res.Post[l] = fw.transferBlock(g, l, in)
		}
	}

	return res
}

func (fw *Framework[S, D]) joinPreds(g Graph[S], res *Result[D], l cfg.Label, entryState D) D {
	in := fw.Domain.Bottom()
	if l == g.Entry() {
		in = entryState
	}
	for _, p := range g.Predecessors(l) {
		in = fw.Domain.Join(in, res.Post[p])
	}
	return in
}

func (fw *Framework[S, D]) transferBlock(g Graph[S], l cfg.Label, in D) D {
	out := in
	if fw.Enter != nil {
		out = fw.Enter(l, out)
	}
	g.ForEachStatement(l, func(s S) {
		out = fw.Transfer(l, s, out)
	})
	return out
}

// preorder returns the DFS preorder of the nodes reachable from the entry
// and the set of loop heads, i.e. targets of back edges.
func preorder[S any](g Graph[S]) ([]cfg.Label, map[cfg.Label]bool) {
	var order []cfg.Label
	heads := map[cfg.Label]bool{}
	visited := map[cfg.Label]bool{}
	onStack := map[cfg.Label]bool{}

	var dfs func(cfg.Label)
	dfs = func(l cfg.Label) {
		visited[l] = true
		onStack[l] = true
		order = append(order, l)
		for _, n := range g.Successors(l) {
			if onStack[n] {
				heads[n] = true
			} else if !visited[n] {
				dfs(n)
			}
		}
		onStack[l] = false
	}
	dfs(g.Entry())
	return order, heads
}

// worklist is a deduplicating priority queue ordered by preorder index.
type worklist struct {
	index   map[cfg.Label]int
	pending []cfg.Label
	queued  map[cfg.Label]bool
}

func newWorklist(index map[cfg.Label]int) *worklist {
	return &worklist{index: index, queued: map[cfg.Label]bool{}}
}

func (w *worklist) push(l cfg.Label) {
	if w.queued[l] {
		return
	}
	if _, ok := w.index[l]; !ok {
		// Not reachable from the entry; nothing to analyze.
		return
	}
	w.queued[l] = true
	w.pending = append(w.pending, l)
}

func (w *worklist) pop() cfg.Label {
	best := 0
	for i, l := range w.pending[1:] {
		if w.index[l] < w.index[w.pending[best]] {
			best = i + 1
		}
	}
	l := w.pending[best]
	w.pending = slices.Delete(w.pending, best, best+1)
	delete(w.queued, l)
	return l
}

func (w *worklist) empty() bool { return len(w.pending) == 0 }
