package cfg

import (
	"fmt"
	"strings"
)

// Ref wraps a graph in a copyable, assignable handle. Cfg values themselves
// are only handled by pointer so that block ownership stays in one place;
// analysis passes that want a value-like handle take a Ref. Every operation
// delegates to the underlying graph, and a Ref must not outlive it.
type Ref[S any] struct {
	g *Cfg[S]
}

func NewRef[S any](g *Cfg[S]) Ref[S] { return Ref[S]{g} }

func (r Ref[S]) Entry() Label                 { return r.g.Entry() }
func (r Ref[S]) HasExit() bool                { return r.g.HasExit() }
func (r Ref[S]) Exit() Label                  { return r.g.Exit() }
func (r Ref[S]) Get(l Label) *Block[S]        { return r.g.Get(l) }
func (r Ref[S]) Size() int                    { return r.g.Size() }
func (r Ref[S]) Labels() []Label              { return r.g.Labels() }
func (r Ref[S]) Successors(l Label) []Label   { return r.g.Successors(l) }
func (r Ref[S]) Predecessors(l Label) []Label { return r.g.Predecessors(l) }
func (r Ref[S]) Simplify()                    { r.g.Simplify() }

func (r Ref[S]) ForEachStatement(l Label, f func(S)) { r.g.ForEachStatement(l, f) }
func (r Ref[S]) ForEachReachable(f func(*Block[S]))  { r.g.ForEachReachable(f) }

func (r Ref[S]) String() string { return r.g.String() }

// Rev presents a graph with every edge reversed and each block's statements
// iterated back-to-front, which is what a backward dataflow analysis wants
// to see. It is a pure adapter: nothing is copied or reordered, and
// structural mutation has to go through the underlying forward graph, which
// must not be mutated while the view is in use.
type Rev[S any] struct {
	g *Cfg[S]
}

// NewRev returns the reversed view of g. The reversed entry is the forward
// exit, so g must have one.
func NewRev[S any](g *Cfg[S]) Rev[S] {
	if !g.HasExit() {
		panic(ErrNoExit)
	}
	return Rev[S]{g}
}

func (r Rev[S]) Entry() Label  { return r.g.Exit() }
func (r Rev[S]) Exit() Label   { return r.g.Entry() }
func (r Rev[S]) HasExit() bool { return true }

func (r Rev[S]) Size() int       { return r.g.Size() }
func (r Rev[S]) Labels() []Label { return r.g.Labels() }

func (r Rev[S]) Successors(l Label) []Label   { return r.g.Predecessors(l) }
func (r Rev[S]) Predecessors(l Label) []Label { return r.g.Successors(l) }

func (r Rev[S]) Get(l Label) RevBlock[S] { return RevBlock[S]{r.g.Get(l)} }

// ForEachStatement calls f for every statement of l in reverse execution
// order.
func (r Rev[S]) ForEachStatement(l Label, f func(S)) {
	r.Get(l).ForEachStatement(f)
}

// ForEachReachable visits every block reachable from the reversed entry
// exactly once, in depth-first preorder over the reversed edges.
func (r Rev[S]) ForEachReachable(f func(RevBlock[S])) {
	visited := map[Label]bool{}
	var dfs func(Label)
	dfs = func(cur Label) {
		if visited[cur] {
			return
		}
		visited[cur] = true
		f(r.Get(cur))
		for _, n := range r.Successors(cur) {
			dfs(n)
		}
	}
	dfs(r.Entry())
}

// Simplify on a reversed view is a no-op; structural simplification must be
// requested on the underlying forward graph.
func (r Rev[S]) Simplify() {}

func (r Rev[S]) String() string {
	var sb strings.Builder
	r.ForEachReachable(func(b RevBlock[S]) {
		sb.WriteString(b.String())
	})
	return sb.String()
}

// RevBlock is the reversed projection of a single block: same label, same
// storage, statement iteration back-to-front and adjacency swapped.
type RevBlock[S any] struct {
	b *Block[S]
}

func (rb RevBlock[S]) Label() Label { return rb.b.Label() }
func (rb RevBlock[S]) Len() int     { return rb.b.Len() }

// At returns the i-th statement in reverse execution order.
func (rb RevBlock[S]) At(i int) S {
	return rb.b.stmts[len(rb.b.stmts)-1-i]
}

// ForEachStatement calls f for every statement in reverse execution order.
func (rb RevBlock[S]) ForEachStatement(f func(S)) {
	rb.b.ForEachReversed(f)
}

func (rb RevBlock[S]) Successors() []Label   { return rb.b.Predecessors() }
func (rb RevBlock[S]) Predecessors() []Label { return rb.b.Successors() }

func (rb RevBlock[S]) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s:\n", rb.b.label)
	rb.ForEachStatement(func(s S) {
		fmt.Fprintf(&sb, "  %v;\n", s)
	})
	sb.WriteString("--> [")
	for i, n := range rb.Successors() {
		if i > 0 {
			sb.WriteString(";")
		}
		sb.WriteString(string(n))
	}
	sb.WriteString("]\n")
	return sb.String()
}
