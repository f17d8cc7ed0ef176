package asm

import (
	"encoding/binary"
	"fmt"
)

// SlotSize is the width of one instruction slot. Wide instructions (lddw)
// occupy two consecutive slots.
const SlotSize = 8

// Inst is one decoded eBPF instruction. Imm is sign-extended; for the wide
// lddw form it carries the full 64-bit constant assembled from both slots.
type Inst struct {
	Op  Opcode
	Dst Reg
	Src Reg
	Off int16
	Imm int64
}

// IsWide reports whether the instruction was encoded in two slots.
func (ins Inst) IsWide() bool {
	return ins.Op.Class() == ClassLd && ins.Op.Mode() == ModeImm && ins.Op.Size() == SizeDW
}

func (ins Inst) IsJump() bool {
	if !ins.Op.Class().isJump() {
		return false
	}
	op := ins.Op.JumpOp()
	return op != JumpCall && op != JumpExit
}

func (ins Inst) IsConditional() bool {
	return ins.IsJump() && ins.Op.JumpOp() != JumpAlways
}

func (ins Inst) IsExit() bool {
	return ins.Op.Class() == ClassJmp && ins.Op.JumpOp() == JumpExit
}

func (ins Inst) IsCall() bool {
	return ins.Op.Class() == ClassJmp && ins.Op.JumpOp() == JumpCall
}

// Target returns the jump target as a slot pc, given the slot pc of the
// instruction itself.
func (ins Inst) Target(pc int) int {
	return pc + 1 + int(ins.Off)
}

func (ins Inst) String() string {
	cls := ins.Op.Class()
	switch {
	case cls.isALU():
		op := ins.Op.ALUOp()
		suffix := ""
		if cls == ClassAlu {
			suffix = " (u32)"
		}
		if op == ALUNeg {
			return fmt.Sprintf("%s = -%s%s", ins.Dst, ins.Dst, suffix)
		}
		if ins.Op&SourceReg != 0 {
			return fmt.Sprintf("%s %s %s%s", ins.Dst, op, ins.Src, suffix)
		}
		return fmt.Sprintf("%s %s %d%s", ins.Dst, op, ins.Imm, suffix)
	case cls.isJump():
		op := ins.Op.JumpOp()
		switch op {
		case JumpAlways:
			return fmt.Sprintf("goto %+d", ins.Off)
		case JumpCall:
			return fmt.Sprintf("call %d", ins.Imm)
		case JumpExit:
			return "exit"
		}
		if ins.Op&SourceReg != 0 {
			return fmt.Sprintf("if %s %s %s goto %+d", ins.Dst, op, ins.Src, ins.Off)
		}
		return fmt.Sprintf("if %s %s %d goto %+d", ins.Dst, op, ins.Imm, ins.Off)
	case cls == ClassLd || cls == ClassLdx:
		if ins.IsWide() {
			return fmt.Sprintf("%s = %#x ll", ins.Dst, uint64(ins.Imm))
		}
		return fmt.Sprintf("%s = *(u%d *)(%s %+d)", ins.Dst, ins.Op.Size().Bytes()*8, ins.Src, ins.Off)
	case cls == ClassSt:
		return fmt.Sprintf("*(u%d *)(%s %+d) = %d", ins.Op.Size().Bytes()*8, ins.Dst, ins.Off, ins.Imm)
	case cls == ClassStx:
		return fmt.Sprintf("*(u%d *)(%s %+d) = %s", ins.Op.Size().Bytes()*8, ins.Dst, ins.Off, ins.Src)
	default:
		return fmt.Sprintf("inst(%#x)", uint8(ins.Op))
	}
}

// Decode unmarshals a raw little-endian instruction stream. Failures here
// are data errors in the analyzed object, not bugs in the caller, so they
// are reported as errors rather than raised.
func Decode(raw []byte) ([]Inst, error) {
	if len(raw)%SlotSize != 0 {
		return nil, fmt.Errorf("asm: program size %d is not a multiple of %d", len(raw), SlotSize)
	}
	n := len(raw) / SlotSize
	out := make([]Inst, 0, n)
	for i := 0; i < n; i++ {
		slot := raw[i*SlotSize:]
		ins := Inst{
			Op:  Opcode(slot[0]),
			Dst: Reg(slot[1] & 0x0f),
			Src: Reg(slot[1] >> 4),
			Off: int16(binary.LittleEndian.Uint16(slot[2:])),
			Imm: int64(int32(binary.LittleEndian.Uint32(slot[4:]))),
		}
		if ins.Dst >= NumRegs {
			return nil, fmt.Errorf("asm: instruction %d: bad destination register %s", i, ins.Dst)
		}
		if ins.Src >= NumRegs {
			return nil, fmt.Errorf("asm: instruction %d: bad source register %s", i, ins.Src)
		}
		if ins.IsWide() {
			if i+1 >= n {
				return nil, fmt.Errorf("asm: instruction %d: truncated lddw", i)
			}
			next := raw[(i+1)*SlotSize:]
			hi := binary.LittleEndian.Uint32(next[4:])
			ins.Imm = int64(uint64(uint32(ins.Imm)) | uint64(hi)<<32)
			i++
		}
		out = append(out, ins)
	}
	return out, nil
}
