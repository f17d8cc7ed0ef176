package asm

import "fmt"

// Statement is the payload stored in CFG blocks: either a program
// instruction or a guard synthesized while lowering conditional jumps.
type Statement interface {
	fmt.Stringer
	isStatement()
}

// Stmt is one program instruction together with its program counter, in
// slot units.
type Stmt struct {
	PC   int
	Inst Inst
}

func (Stmt) isStatement() {}

func (s Stmt) String() string { return s.Inst.String() }

// Assume is a synthesized guard: a conditional jump lowers into two
// successor edges, each beginning with the assumption that makes its path
// feasible. Transfer functions refine register state from it; it has no
// concrete counterpart.
type Assume struct {
	Op     JumpOp
	Wide   bool // 64-bit comparison
	Dst    Reg
	SrcReg Reg
	Imm    int64
	UseReg bool
}

func (Assume) isStatement() {}

func (a Assume) String() string {
	if a.UseReg {
		return fmt.Sprintf("assume %s %s %s", a.Dst, a.Op, a.SrcReg)
	}
	return fmt.Sprintf("assume %s %s %d", a.Dst, a.Op, a.Imm)
}
