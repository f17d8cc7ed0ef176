package cfg

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"
)

// Label identifies a basic block within its graph. Labels are assigned by
// the graph's builder and never reused during a graph's lifetime.
type Label string

// Block is a basic block: a labelled, ordered list of statements plus the
// labels of its predecessors and successors. Blocks are owned by exactly one
// Cfg and are only created through Cfg.Insert.
//
// The adjacency sets are deduplicated insertion-ordered sequences rather
// than hash sets. Most blocks have no more than two neighbours, and keeping
// insertion order makes every traversal of the graph deterministic.
type Block[S any] struct {
	label Label
	stmts []S
	prev  []Label
	next  []Label
}

func (b *Block[S]) Label() Label { return b.label }

// Append adds one statement at the tail of the block.
func (b *Block[S]) Append(s S) {
	b.stmts = append(b.stmts, s)
}

// MoveBackFrom appends all statements of o to b, leaving o empty.
// References into either statement list are invalidated.
func (b *Block[S]) MoveBackFrom(o *Block[S]) {
	b.stmts = append(b.stmts, o.stmts...)
	o.stmts = nil
}

// Statements returns the block's statement list in execution order. The
// returned slice is the block's own storage; callers must not modify it, and
// it is invalidated by merges and block removal.
func (b *Block[S]) Statements() []S { return b.stmts }

func (b *Block[S]) Len() int { return len(b.stmts) }

// ForEachReversed calls f for every statement in reverse execution order.
func (b *Block[S]) ForEachReversed(f func(S)) {
	for i := len(b.stmts) - 1; i >= 0; i-- {
		f(b.stmts[i])
	}
}

// Successors returns the labels of the blocks control can transfer to, in
// edge insertion order. Callers must not modify the returned slice.
func (b *Block[S]) Successors() []Label { return b.next }

// Predecessors returns the labels of the blocks control can arrive from, in
// edge insertion order. Callers must not modify the returned slice.
func (b *Block[S]) Predecessors() []Label { return b.prev }

func insertAdjacent(c []Label, l Label) []Label {
	if slices.Contains(c, l) {
		return c
	}
	return append(c, l)
}

func removeAdjacent(c []Label, l Label) []Label {
	if i := slices.Index(c, l); i >= 0 {
		return slices.Delete(c, i, i+1)
	}
	return c
}

// ConnectTo adds the edge b→o, updating both endpoints. Adding an edge that
// already exists is a no-op.
func (b *Block[S]) ConnectTo(o *Block[S]) {
	b.next = insertAdjacent(b.next, o.label)
	o.prev = insertAdjacent(o.prev, b.label)
}

// DisconnectFrom removes the edge b→o, updating both endpoints. Removing an
// absent edge is a no-op.
func (b *Block[S]) DisconnectFrom(o *Block[S]) {
	b.next = removeAdjacent(b.next, o.label)
	o.prev = removeAdjacent(o.prev, b.label)
}

func (b *Block[S]) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s:\n", b.label)
	for _, s := range b.stmts {
		fmt.Fprintf(&sb, "  %v;\n", s)
	}
	if len(b.next) > 0 {
		sb.WriteString("  goto ")
		for i, n := range b.next {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString(string(n))
		}
		sb.WriteString(";")
	}
	sb.WriteString("\n")
	return sb.String()
}
