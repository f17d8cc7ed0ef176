package cfg

import "golang.org/x/exp/slices"

// Simplify rewrites the graph without changing what any statement-local
// dataflow analysis can observe: straight-line chains are merged into single
// blocks, blocks unreachable from the entry are dropped, and, when an exit
// is set, so are blocks from which the exit cannot be reached.
//
// The passes run in a loop until none of them changes the graph; deletions
// expose new merge opportunities and vice versa.
func (g *Cfg[S]) Simplify() {
	for {
		changed := g.mergeBlocks()
		if g.removeUnreachableBlocks() {
			changed = true
		}
		if g.removeUselessBlocks() {
			changed = true
		}
		if !changed {
			return
		}
	}
}

// mergeBlocks merges every block that has exactly one predecessor into that
// predecessor, provided the predecessor has no other successor. The entry
// never takes part in a merge, and the exit block is kept so that the
// graph's distinguished endpoints survive simplification.
func (g *Cfg[S]) mergeBlocks() bool {
	changed := false
	visited := map[Label]bool{}
	g.mergeRec(g.entry, visited, &changed)
	return changed
}

func (g *Cfg[S]) mergeRec(cur Label, visited map[Label]bool, changed *bool) {
	if visited[cur] {
		return
	}
	visited[cur] = true
	b := g.Get(cur)

	if cur != g.entry && (!g.hasExit || cur != g.exit) &&
		len(b.prev) == 1 && b.prev[0] != cur {
		parent := g.Get(b.prev[0])
		if parent.label != g.entry && len(parent.next) == 1 {
			parent.MoveBackFrom(b)
			parent.DisconnectFrom(b)
			for _, n := range slices.Clone(b.next) {
				succ := g.Get(n)
				b.DisconnectFrom(succ)
				parent.ConnectTo(succ)
			}
			delete(g.blocks, cur)
			*changed = true
			for _, n := range slices.Clone(parent.next) {
				g.mergeRec(n, visited, changed)
			}
			return
		}
	}

	for _, n := range slices.Clone(b.next) {
		g.mergeRec(n, visited, changed)
	}
}

func (g *Cfg[S]) reachableFromEntry() map[Label]bool {
	alive := map[Label]bool{}
	var mark func(Label)
	mark = func(l Label) {
		if alive[l] {
			return
		}
		alive[l] = true
		for _, n := range g.Get(l).next {
			mark(n)
		}
	}
	mark(g.entry)
	return alive
}

// removeUnreachableBlocks drops every block the entry cannot reach.
func (g *Cfg[S]) removeUnreachableBlocks() bool {
	alive := g.reachableFromEntry()
	changed := false
	for _, l := range g.Labels() {
		if !alive[l] {
			g.Remove(l)
			changed = true
		}
	}
	return changed
}

// removeUselessBlocks drops every block from which the exit cannot be
// reached. Without an exit there is no notion of useless.
func (g *Cfg[S]) removeUselessBlocks() bool {
	if !g.hasExit {
		return false
	}
	useful := map[Label]bool{}
	var mark func(Label)
	mark = func(l Label) {
		if useful[l] {
			return
		}
		useful[l] = true
		for _, p := range g.Get(l).prev {
			mark(p)
		}
	}
	mark(g.exit)

	changed := false
	for _, l := range g.Labels() {
		if !useful[l] && l != g.entry {
			g.Remove(l)
			changed = true
		}
	}
	return changed
}
