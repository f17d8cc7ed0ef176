package asm

import (
	"fmt"
	"strconv"

	"golang.org/x/exp/slices"

	"github.com/SeanHeelan/ebpf-verifier/cfg"
)

// EntryLabel and ExitLabel are the distinguished blocks every built graph
// has. Program blocks are labelled by the slot pc of their first
// instruction.
const (
	EntryLabel cfg.Label = "entry"
	ExitLabel  cfg.Label = "exit"
)

// PCLabel returns the label of the block starting at the given slot pc.
func PCLabel(pc int) cfg.Label { return cfg.Label(strconv.Itoa(pc)) }

// MakeCfg lowers a decoded program into a control-flow graph over
// Statements. Basic blocks are split at jump targets and after every jump
// or exit; conditional jumps become two edges whose successor blocks start
// with the matching Assume guard. The result is not simplified; callers
// decide when to run Simplify.
func MakeCfg(prog []Inst) (*cfg.Cfg[Statement], error) {
	if len(prog) == 0 {
		return nil, fmt.Errorf("asm: empty program")
	}

	// Slot pc of every decoded instruction, and the reverse mapping for
	// resolving jump targets, which are counted in slots.
	pcs := make([]int, len(prog))
	index := map[int]int{}
	pc := 0
	for i, ins := range prog {
		pcs[i] = pc
		index[pc] = i
		pc++
		if ins.IsWide() {
			pc++
		}
	}
	total := pc

	if !prog[len(prog)-1].IsExit() && !prog[len(prog)-1].IsJump() {
		return nil, fmt.Errorf("asm: program falls off the end")
	}

	// Find the leaders: instruction 0, every jump target, and every
	// fallthrough after a jump or exit.
	leaders := map[int]bool{pcs[0]: true}
	for i, ins := range prog {
		if ins.IsJump() {
			t := ins.Target(pcs[i])
			if _, ok := index[t]; !ok {
				return nil, fmt.Errorf("asm: instruction %d jumps to invalid pc %d", pcs[i], t)
			}
			leaders[t] = true
		}
		if (ins.IsJump() || ins.IsExit()) && i+1 < len(prog) {
			leaders[pcs[i+1]] = true
		}
	}

	g := cfg.NewWithExit[Statement](EntryLabel, ExitLabel)
	sorted := make([]int, 0, len(leaders))
	for l := range leaders {
		sorted = append(sorted, l)
	}
	slices.Sort(sorted)
	for _, l := range sorted {
		g.Insert(PCLabel(l))
	}
	g.Get(EntryLabel).ConnectTo(g.Get(PCLabel(pcs[0])))

	// Guard blocks get labels that cannot collide with slot pcs.
	assumeLabel := func(from, to int, taken bool) cfg.Label {
		return cfg.Label(fmt.Sprintf("%d:%d:%t", from, to, taken))
	}

	cur := g.Get(PCLabel(pcs[0]))
	for i, ins := range prog {
		pc := pcs[i]
		if leaders[pc] {
			cur = g.Get(PCLabel(pc))
		}

		switch {
		case ins.IsExit():
			cur.Append(Stmt{PC: pc, Inst: ins})
			cur.ConnectTo(g.Get(ExitLabel))
		case ins.IsJump() && !ins.IsConditional():
			cur.ConnectTo(g.Get(PCLabel(ins.Target(pc))))
		case ins.IsConditional():
			target := ins.Target(pc)
			fall := pc + 1
			if _, ok := index[fall]; !ok || fall >= total {
				return nil, fmt.Errorf("asm: conditional at pc %d has no fallthrough", pc)
			}
			taken := g.Insert(assumeLabel(pc, target, true))
			taken.Append(guard(ins, false))
			cur.ConnectTo(taken)
			taken.ConnectTo(g.Get(PCLabel(target)))

			nottaken := g.Insert(assumeLabel(pc, fall, false))
			nottaken.Append(guard(ins, true))
			cur.ConnectTo(nottaken)
			nottaken.ConnectTo(g.Get(PCLabel(fall)))
		default:
			cur.Append(Stmt{PC: pc, Inst: ins})
			if i+1 < len(prog) && leaders[pcs[i+1]] {
				cur.ConnectTo(g.Get(PCLabel(pcs[i+1])))
			}
		}
	}

	return g, nil
}

// guard builds the Assume statement for one arm of a conditional jump.
func guard(ins Inst, negate bool) Assume {
	op := ins.Op.JumpOp()
	if negate {
		op = op.Negate()
	}
	return Assume{
		Op:     op,
		Wide:   ins.Op.Class() == ClassJmp,
		Dst:    ins.Dst,
		SrcReg: ins.Src,
		Imm:    ins.Imm,
		UseReg: ins.Op&SourceReg != 0,
	}
}
