package verifier

import (
	"fmt"
	"math/big"

	"github.com/SeanHeelan/ebpf-verifier/asm"
	"github.com/SeanHeelan/ebpf-verifier/cfg"
	"github.com/SeanHeelan/ebpf-verifier/interval"
)

var (
	u32Max   = interval.New(interval.NewBound(0), interval.NewBound(1<<32-1))
	i31Range = interval.New(interval.NewBound(0), interval.NewBound(1<<31-1))
	i64Range = interval.New(
		interval.NewBigBound(new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 63))),
		interval.NewBigBound(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 63), big.NewInt(1))),
	)
)

// clamp64 forces a computed interval back into the 64-bit value range. The
// interval algebra works on unbounded integers, so a result that escapes the
// machine range means the concrete computation may have wrapped and nothing
// precise can be said.
func clamp64(v interval.Interval) interval.Interval {
	if v.Leq(i64Range) {
		return v
	}
	return interval.Top()
}

// clamp32 is clamp64 for 32-bit ALU results, which zero-extend into the
// destination.
func clamp32(v interval.Interval) interval.Interval {
	if v.Leq(u32Max) {
		return v
	}
	return u32Max
}

// enter counts block executions. The counter is what the termination check
// reads: a loop whose trip count the domain cannot bound widens it to ∞.
func (v *Verifier) enter(_ cfg.Label, st State) State {
	if st.bottom {
		return st
	}
	st.count = st.count.Add(interval.Of(1))
	return st
}

// transfer interprets one statement over the abstract state, recording any
// safety findings along the way.
func (v *Verifier) transfer(l cfg.Label, s asm.Statement, st State) State {
	if st.bottom {
		return st
	}
	switch s := s.(type) {
	case asm.Stmt:
		return v.transferInst(s.PC, s.Inst, st)
	case asm.Assume:
		return transferAssume(s, st)
	default:
		panic(fmt.Sprintf("unhandled statement type %T", s))
	}
}

func (v *Verifier) transferInst(pc int, ins asm.Inst, st State) State {
	cls := ins.Op.Class()
	switch {
	case cls == asm.ClassAlu || cls == asm.ClassAlu64:
		return v.transferALU(pc, ins, st)
	case cls == asm.ClassLd:
		// Only the lddw form reaches here; the legacy packet access modes
		// are not part of verifiable programs.
		if ins.IsWide() {
			return st.withReg(ins.Dst, interval.Of(ins.Imm))
		}
		v.warnf(pc, "unsupported load mode %#x", uint8(ins.Op))
		return st.withReg(ins.Dst, interval.Top())
	case cls == asm.ClassLdx:
		return v.transferLoad(pc, ins, st)
	case cls == asm.ClassSt, cls == asm.ClassStx:
		return v.transferStore(pc, ins, st)
	case cls == asm.ClassJmp || cls == asm.ClassJmp32:
		switch ins.Op.JumpOp() {
		case asm.JumpCall:
			return v.transferCall(pc, st)
		case asm.JumpExit:
			if !st.initialized(asm.R0) {
				v.warnf(pc, "r0 is not initialized at exit")
			}
			return st
		default:
			// Jumps carry no dataflow; their guards were lowered into
			// Assume statements when the graph was built.
			return st
		}
	default:
		v.warnf(pc, "unknown instruction class %d", cls)
		return st
	}
}

func (v *Verifier) operand(pc int, ins asm.Inst, st State) interval.Interval {
	if ins.Op&asm.SourceReg == 0 {
		return interval.Of(ins.Imm)
	}
	if !st.initialized(ins.Src) {
		v.warnf(pc, "%s is not initialized", ins.Src)
		return interval.Top()
	}
	return st.Reg(ins.Src)
}

func (v *Verifier) transferALU(pc int, ins asm.Inst, st State) State {
	if ins.Dst == asm.R10 {
		v.warnf(pc, "write to frame pointer r10")
		return st
	}

	op := ins.Op.ALUOp()
	wide := ins.Op.Class() == asm.ClassAlu64
	clamp := clamp64
	if !wide {
		clamp = clamp32
	}

	// MOV defines the destination without reading it.
	if op == asm.ALUMov {
		return st.withReg(ins.Dst, clamp(v.operand(pc, ins, st)))
	}

	if !st.initialized(ins.Dst) {
		v.warnf(pc, "%s is not initialized", ins.Dst)
		st = st.withReg(ins.Dst, interval.Top())
	}
	dst := st.Reg(ins.Dst)

	if op == asm.ALUNeg {
		return st.withReg(ins.Dst, clamp(dst.Neg()))
	}
	if op == asm.ALUEnd {
		// Byte swap: width-dependent scrambling of the value.
		return st.withReg(ins.Dst, clamp(interval.Top()))
	}

	src := v.operand(pc, ins, st)

	var out interval.Interval
	switch op {
	case asm.ALUAdd:
		out = dst.Add(src)
	case asm.ALUSub:
		out = dst.Sub(src)
	case asm.ALUMul:
		out = dst.Mul(src)
	case asm.ALUDiv:
		if src.Contains(big.NewInt(0)) {
			v.warnf(pc, "possible division by zero")
		}
		out = dst.UDiv(src)
	case asm.ALUMod:
		if src.Contains(big.NewInt(0)) {
			v.warnf(pc, "possible division by zero")
		}
		out = dst.URem(src)
	case asm.ALUAnd:
		out = dst.And(src)
	case asm.ALUOr:
		out = dst.Or(src)
	case asm.ALUXor:
		out = dst.Xor(src)
	case asm.ALULsh:
		out = dst.Shl(src)
	case asm.ALURsh:
		out = dst.LShr(src)
	case asm.ALUArsh:
		out = dst.AShr(src)
	default:
		v.warnf(pc, "unknown ALU op %#x", uint8(op))
		out = interval.Top()
	}
	return st.withReg(ins.Dst, clamp(out))
}

// stackOffset reports whether the access is through the frame pointer and,
// if so, validates its bounds against the frame.
func (v *Verifier) stackOffset(pc int, base asm.Reg, off int16, width int) (int16, bool) {
	if base != asm.R10 {
		return 0, false
	}
	if int(off) < -StackSize || int(off)+width > 0 {
		v.warnf(pc, "stack access out of bounds: [%d, %d)", off, int(off)+width)
		return 0, false
	}
	return off, true
}

func (v *Verifier) transferLoad(pc int, ins asm.Inst, st State) State {
	if !st.initialized(ins.Src) {
		v.warnf(pc, "%s is not initialized", ins.Src)
	}
	width := ins.Op.Size().Bytes()
	if off, ok := v.stackOffset(pc, ins.Src, ins.Off, width); ok {
		if width == 8 && off%8 == 0 {
			return st.withReg(ins.Dst, st.Slot(off))
		}
	}
	return st.withReg(ins.Dst, interval.Top())
}

func (v *Verifier) transferStore(pc int, ins asm.Inst, st State) State {
	if !st.initialized(ins.Dst) {
		v.warnf(pc, "%s is not initialized", ins.Dst)
	}
	var val interval.Interval
	if ins.Op.Class() == asm.ClassSt {
		val = interval.Of(ins.Imm)
	} else {
		if !st.initialized(ins.Src) {
			v.warnf(pc, "%s is not initialized", ins.Src)
		}
		val = st.Reg(ins.Src)
	}

	width := ins.Op.Size().Bytes()
	off, onStack := v.stackOffset(pc, ins.Dst, ins.Off, width)
	if !onStack {
		// Writes through non-stack pointers do not touch tracked slots.
		return st
	}
	if width == 8 && off%8 == 0 {
		return st.withSlot(off, val)
	}
	// A partial or misaligned write clobbers whatever slots it overlaps.
	lo, hi := int(off), int(off)+width
	return st.dropSlots(func(slot int16) bool {
		return int(slot)+8 <= lo || int(slot) >= hi
	})
}

// transferCall models a helper call: the helper's result lands in r0 and
// the caller-saved registers r1-r5 become undefined.
func (v *Verifier) transferCall(pc int, st State) State {
	st = st.withReg(asm.R0, interval.Top())
	for r := asm.R1; r <= asm.R5; r++ {
		st.regs[r] = interval.Bottom()
		st.clearInit(r)
	}
	return st
}

// transferAssume refines register state from a branch guard.
func transferAssume(a asm.Assume, st State) State {
	if !st.initialized(a.Dst) {
		return st
	}
	dst := st.Reg(a.Dst)

	var rhs interval.Interval
	if a.UseReg {
		if !st.initialized(a.SrcReg) {
			return st
		}
		rhs = st.Reg(a.SrcReg)
	} else {
		rhs = interval.Of(a.Imm)
	}
	if rhs.IsBottom() || dst.IsBottom() {
		return st
	}

	signed := false
	switch a.Op {
	case asm.JumpSgt, asm.JumpSge, asm.JumpSlt, asm.JumpSle:
		signed = true
	case asm.JumpEq, asm.JumpNe:
		// Equality is sign-agnostic.
		signed = true
	case asm.JumpSet:
		// Bit tests do not refine an interval.
		return st
	}
	// The unsigned comparisons only order values the way the integer line
	// does when no negative value can flip to a huge unsigned one.
	if !signed && (dst.Lb().Sign() < 0 || rhs.Lb().Sign() < 0) {
		return st
	}
	// A 32-bit comparison reads only the low word. Unless both operands are
	// known to fit in a non-negative int32, the low word says nothing about
	// the 64-bit interval being tracked.
	if !a.Wide && (!dst.Leq(i31Range) || !rhs.Leq(i31Range)) {
		return st
	}

	one := interval.Of(1)
	var refined interval.Interval
	switch a.Op {
	case asm.JumpEq:
		refined = dst.Meet(rhs)
	case asm.JumpNe:
		refined = interval.Trim(dst, rhs)
	case asm.JumpGt, asm.JumpSgt:
		refined = dst.Meet(rhs.UpperHalfLine().Add(one))
	case asm.JumpGe, asm.JumpSge:
		refined = dst.Meet(rhs.UpperHalfLine())
	case asm.JumpLt, asm.JumpSlt:
		refined = dst.Meet(rhs.LowerHalfLine().Sub(one))
	case asm.JumpLe, asm.JumpSle:
		refined = dst.Meet(rhs.LowerHalfLine())
	default:
		return st
	}
	if refined.IsBottom() {
		// The guard is unsatisfiable: this path is dead.
		return bottomState()
	}
	st.regs[a.Dst] = refined
	return st
}
