// Package cfg provides the control-flow graph the verifier's analyses run
// over: basic blocks of opaque statements connected by directed edges, with
// structural simplification and non-owning forward and reversed views.
//
// The statement payload is a type parameter; the container assigns it no
// semantics beyond being printable, so the same graph serves both decoded
// eBPF programs and intermediate forms.
//
// A Cfg exclusively owns its blocks and must only be handled by pointer.
// Ref is the copyable value handle for passing a graph into analysis passes,
// and Rev is the backward projection used by backward dataflow analyses.
package cfg

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// The error kinds below are panic values: every one of them indicates a
// precondition violation by the caller, never a recoverable condition.
var (
	ErrUnknownLabel   = errors.New("cfg: basic block not found in the CFG")
	ErrDuplicateLabel = errors.New("cfg: basic block already exists")
	ErrNoExit         = errors.New("cfg: CFG does not have an exit block")
	ErrRemoveEntry    = errors.New("cfg: entry block may not be removed")
)

// Cfg is a control-flow graph over statements of type S: a set of owned
// basic blocks keyed by label, a designated entry and an optional exit.
type Cfg[S any] struct {
	entry   Label
	exit    Label
	hasExit bool
	blocks  map[Label]*Block[S]
}

// New returns a graph holding a single empty entry block.
func New[S any](entry Label) *Cfg[S] {
	g := &Cfg[S]{entry: entry, blocks: map[Label]*Block[S]{}}
	g.blocks[entry] = &Block[S]{label: entry}
	return g
}

// NewWithExit returns a graph holding empty entry and exit blocks.
func NewWithExit[S any](entry, exit Label) *Cfg[S] {
	g := New[S](entry)
	g.blocks[exit] = &Block[S]{label: exit}
	g.exit = exit
	g.hasExit = true
	return g
}

func (g *Cfg[S]) Entry() Label  { return g.entry }
func (g *Cfg[S]) HasExit() bool { return g.hasExit }

func (g *Cfg[S]) Exit() Label {
	if !g.hasExit {
		panic(ErrNoExit)
	}
	return g.exit
}

// SetExit marks an existing block as the exit after the graph has been
// built.
func (g *Cfg[S]) SetExit(exit Label) {
	if _, ok := g.blocks[exit]; !ok {
		panic(fmt.Errorf("%w: %s", ErrUnknownLabel, exit))
	}
	g.exit = exit
	g.hasExit = true
}

// Insert adds a new empty block and returns it.
func (g *Cfg[S]) Insert(l Label) *Block[S] {
	if _, ok := g.blocks[l]; ok {
		panic(fmt.Errorf("%w: %s", ErrDuplicateLabel, l))
	}
	b := &Block[S]{label: l}
	g.blocks[l] = b
	return b
}

// Remove deletes the block and every edge incident to it. Removing an
// absent label is a no-op; removing the entry is a caller bug.
func (g *Cfg[S]) Remove(l Label) {
	if l == g.entry {
		panic(ErrRemoveEntry)
	}
	b, ok := g.blocks[l]
	if !ok {
		return
	}
	for _, p := range slices.Clone(b.prev) {
		g.Get(p).DisconnectFrom(b)
	}
	for _, n := range slices.Clone(b.next) {
		b.DisconnectFrom(g.Get(n))
	}
	delete(g.blocks, l)
	if g.hasExit && g.exit == l {
		g.hasExit = false
		g.exit = ""
	}
}

// Get returns the block with the given label.
func (g *Cfg[S]) Get(l Label) *Block[S] {
	b, ok := g.blocks[l]
	if !ok {
		panic(fmt.Errorf("%w: %s", ErrUnknownLabel, l))
	}
	return b
}

func (g *Cfg[S]) Has(l Label) bool {
	_, ok := g.blocks[l]
	return ok
}

func (g *Cfg[S]) Size() int { return len(g.blocks) }

// Successors returns the successor labels of l in deterministic order.
func (g *Cfg[S]) Successors(l Label) []Label { return g.Get(l).Successors() }

// Predecessors returns the predecessor labels of l in deterministic order.
func (g *Cfg[S]) Predecessors(l Label) []Label { return g.Get(l).Predecessors() }

// Labels returns all block labels in sorted order.
func (g *Cfg[S]) Labels() []Label {
	ls := maps.Keys(g.blocks)
	slices.Sort(ls)
	return ls
}

// ForEachStatement calls f for every statement of l in execution order.
func (g *Cfg[S]) ForEachStatement(l Label, f func(S)) {
	for _, s := range g.Get(l).stmts {
		f(s)
	}
}

// ForEach visits every block, reachable or not, in sorted label order.
func (g *Cfg[S]) ForEach(f func(*Block[S])) {
	for _, l := range g.Labels() {
		f(g.blocks[l])
	}
}

// ForEachReachable visits every block reachable from the entry exactly once,
// in depth-first preorder. Sibling order follows edge insertion order.
func (g *Cfg[S]) ForEachReachable(f func(*Block[S])) {
	visited := map[Label]bool{}
	g.dfs(g.entry, visited, f)
}

func (g *Cfg[S]) dfs(cur Label, visited map[Label]bool, f func(*Block[S])) {
	if visited[cur] {
		return
	}
	visited[cur] = true
	b := g.Get(cur)
	f(b)
	for _, n := range b.next {
		g.dfs(n, visited, f)
	}
}

func (g *Cfg[S]) String() string {
	var sb strings.Builder
	g.ForEachReachable(func(b *Block[S]) {
		sb.WriteString(b.String())
	})
	return sb.String()
}
