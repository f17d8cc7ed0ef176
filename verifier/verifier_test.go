package verifier

import (
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SeanHeelan/ebpf-verifier/asm"
	"github.com/SeanHeelan/ebpf-verifier/cfg"
	"github.com/SeanHeelan/ebpf-verifier/interval"
)

var (
	opMov    = asm.Opcode(asm.ClassAlu64) | asm.Opcode(asm.ALUMov)
	opMovReg = opMov | asm.SourceReg
	opAdd    = asm.Opcode(asm.ClassAlu64) | asm.Opcode(asm.ALUAdd)
	opDivReg = asm.Opcode(asm.ClassAlu64) | asm.Opcode(asm.ALUDiv) | asm.SourceReg
	opDiv    = asm.Opcode(asm.ClassAlu64) | asm.Opcode(asm.ALUDiv)
	opJsgt   = asm.Opcode(asm.ClassJmp) | asm.Opcode(asm.JumpSgt)
	opJa     = asm.Opcode(asm.ClassJmp) | asm.Opcode(asm.JumpAlways)
	opExit   = asm.Opcode(asm.ClassJmp) | asm.Opcode(asm.JumpExit)
	opStxDW  = asm.Opcode(asm.ClassStx) | asm.Opcode(asm.SizeDW) | asm.Opcode(asm.ModeMem)
	opLdxDW  = asm.Opcode(asm.ClassLdx) | asm.Opcode(asm.SizeDW) | asm.Opcode(asm.ModeMem)
)

func mustCfg(t *testing.T, prog []asm.Inst) *cfg.Cfg[asm.Statement] {
	t.Helper()
	g, err := asm.MakeCfg(prog)
	require.NoError(t, err)
	return g
}

func hasWarning(res *Result, substr string) bool {
	for _, w := range res.Warnings {
		if strings.Contains(w.Message, substr) {
			return true
		}
	}
	return false
}

func TestStraightLinePasses(t *testing.T) {
	g := mustCfg(t, []asm.Inst{
		{Op: opMov, Dst: asm.R0, Imm: 7},
		{Op: opAdd, Dst: asm.R0, Imm: 3},
		{Op: opExit},
	})
	opts := DefaultOptions()
	opts.CheckTermination = true
	res := Verify(g, opts)

	assert.True(t, res.OK, "warnings: %v", res.Warnings)
	got := res.Invariants[asm.ExitLabel].Reg(asm.R0)
	assert.True(t, got.Equal(interval.Of(10)), "r0 at exit = %s", got)
}

// Trivial infinite loop: entry → B, B → B, B → exit. The graph survives
// simplification with all three nodes, and the termination check must flag
// the program.
func TestTrivialInfiniteLoop(t *testing.T) {
	g := cfg.NewWithExit[asm.Statement](asm.EntryLabel, asm.ExitLabel)
	b := g.Insert("b")
	g.Get(asm.EntryLabel).ConnectTo(b)
	b.ConnectTo(b)
	b.ConnectTo(g.Get(asm.ExitLabel))

	g.Simplify()
	require.Equal(t, 3, g.Size())

	opts := DefaultOptions()
	opts.CheckTermination = true
	res := Verify(g, opts)

	assert.False(t, res.OK)
	assert.True(t, hasWarning(res, "may not terminate"), "warnings: %v", res.Warnings)
}

func TestLoopWithoutTerminationCheck(t *testing.T) {
	// 0: r0 = 0
	// 1: r0 += 1
	// 2: goto -2 (back to 1)  — exit never reached
	g := mustCfg(t, []asm.Inst{
		{Op: opMov, Dst: asm.R0, Imm: 0},
		{Op: opAdd, Dst: asm.R0, Imm: 1},
		{Op: opJa, Off: -2},
	})
	res := Verify(g, DefaultOptions())
	assert.False(t, res.OK)
	assert.True(t, hasWarning(res, "exit is unreachable"), "warnings: %v", res.Warnings)
}

func TestDivisionByZeroWarning(t *testing.T) {
	// r1 comes in unconstrained, so dividing by it may trap.
	g := mustCfg(t, []asm.Inst{
		{Op: opMov, Dst: asm.R0, Imm: 100},
		{Op: opDivReg, Dst: asm.R0, Src: asm.R1},
		{Op: opExit},
	})
	res := Verify(g, DefaultOptions())
	assert.False(t, res.OK)
	assert.True(t, hasWarning(res, "division by zero"), "warnings: %v", res.Warnings)
}

func TestDivisionByConstantOK(t *testing.T) {
	g := mustCfg(t, []asm.Inst{
		{Op: opMov, Dst: asm.R0, Imm: 100},
		{Op: opDiv, Dst: asm.R0, Imm: 4},
		{Op: opExit},
	})
	res := Verify(g, DefaultOptions())
	assert.True(t, res.OK, "warnings: %v", res.Warnings)
	got := res.Invariants[asm.ExitLabel].Reg(asm.R0)
	assert.True(t, got.Equal(interval.Of(25)), "r0 at exit = %s", got)
}

func TestUninitializedRegister(t *testing.T) {
	g := mustCfg(t, []asm.Inst{
		{Op: opAdd, Dst: asm.R0, Imm: 1}, // r0 never written
		{Op: opExit},
	})
	res := Verify(g, DefaultOptions())
	assert.False(t, res.OK)
	assert.True(t, hasWarning(res, "not initialized"), "warnings: %v", res.Warnings)
}

func TestExitWithoutR0(t *testing.T) {
	g := mustCfg(t, []asm.Inst{
		{Op: opExit},
	})
	res := Verify(g, DefaultOptions())
	assert.False(t, res.OK)
	assert.True(t, hasWarning(res, "r0 is not initialized at exit"), "warnings: %v", res.Warnings)
}

func TestFramePointerWrite(t *testing.T) {
	g := mustCfg(t, []asm.Inst{
		{Op: opMov, Dst: asm.R10, Imm: 0},
		{Op: opMov, Dst: asm.R0, Imm: 0},
		{Op: opExit},
	})
	res := Verify(g, DefaultOptions())
	assert.True(t, hasWarning(res, "frame pointer"), "warnings: %v", res.Warnings)
}

// A branch on a signed comparison refines the register in both arms.
func TestBranchRefinement(t *testing.T) {
	// 0: r0 = 0
	// 1: if r0 s> 5 goto +1 (to 3)   — never taken
	// 2: exit
	// 3: r0 /= 0 — dead path, must not be reported
	// 4: exit
	g := mustCfg(t, []asm.Inst{
		{Op: opMov, Dst: asm.R0, Imm: 0},
		{Op: opJsgt, Dst: asm.R0, Off: 1, Imm: 5},
		{Op: opExit},
		{Op: opDiv, Dst: asm.R0, Imm: 0},
		{Op: opExit},
	})
	res := Verify(g, DefaultOptions())
	assert.False(t, hasWarning(res, "division by zero"), "dead branch must stay dead: %v", res.Warnings)
}

func TestStackRoundTrip(t *testing.T) {
	// r1 = 5; *(fp-8) = r1; r0 = *(fp-8); exit
	g := mustCfg(t, []asm.Inst{
		{Op: opMov, Dst: asm.R1, Imm: 5},
		{Op: opStxDW, Dst: asm.R10, Src: asm.R1, Off: -8},
		{Op: opLdxDW, Dst: asm.R0, Src: asm.R10, Off: -8},
		{Op: opExit},
	})
	res := Verify(g, DefaultOptions())
	require.True(t, res.OK, "warnings: %v", res.Warnings)
	got := res.Invariants[asm.ExitLabel].Reg(asm.R0)
	assert.True(t, got.Equal(interval.Of(5)), "r0 at exit = %s", got)
}

func TestStackOutOfBounds(t *testing.T) {
	g := mustCfg(t, []asm.Inst{
		{Op: opMov, Dst: asm.R1, Imm: 5},
		{Op: opStxDW, Dst: asm.R10, Src: asm.R1, Off: -520},
		{Op: opMov, Dst: asm.R0, Imm: 0},
		{Op: opExit},
	})
	res := Verify(g, DefaultOptions())
	assert.True(t, hasWarning(res, "out of bounds"), "warnings: %v", res.Warnings)
}

func TestHelperCallScratchesRegisters(t *testing.T) {
	callOp := asm.Opcode(asm.ClassJmp) | asm.Opcode(asm.JumpCall)
	// r1 = 1; call 1; r0 = r1 — r1 is dead after the call
	g := mustCfg(t, []asm.Inst{
		{Op: opMov, Dst: asm.R1, Imm: 1},
		{Op: callOp, Imm: 1},
		{Op: opMovReg, Dst: asm.R0, Src: asm.R1},
		{Op: opExit},
	})
	res := Verify(g, DefaultOptions())
	assert.True(t, hasWarning(res, "not initialized"), "warnings: %v", res.Warnings)
}

func TestWriteDot(t *testing.T) {
	g := mustCfg(t, []asm.Inst{
		{Op: opMov, Dst: asm.R0, Imm: 0},
		{Op: opExit},
	})
	var sb strings.Builder
	require.NoError(t, WriteDot(&sb, g))
	out := sb.String()
	assert.Contains(t, out, "digraph cfg")
	assert.Contains(t, out, "entry")
	assert.Contains(t, out, "exit")
	assert.Contains(t, out, "->")
}

func TestInvariantContains(t *testing.T) {
	g := mustCfg(t, []asm.Inst{
		{Op: opMov, Dst: asm.R0, Imm: 3},
		{Op: opExit},
	})
	res := Verify(g, DefaultOptions())
	st := res.Invariants[asm.ExitLabel]
	assert.True(t, st.Reg(asm.R0).Contains(big.NewInt(3)))
	assert.False(t, st.Reg(asm.R0).Contains(big.NewInt(4)))
}
