package verifier

import (
	"fmt"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/SeanHeelan/ebpf-verifier/asm"
	"github.com/SeanHeelan/ebpf-verifier/interval"
)

// StackSize is the size of the eBPF stack frame, addressed through r10 with
// negative offsets.
const StackSize = 512

// State is the abstract machine state at one program point: an interval per
// register, which registers hold a defined value, the tracked stack slots,
// and the block-entry counter the termination check reads.
//
// State behaves as a value: transfer functions build new states and never
// mutate one that has been handed out. The stack map is copied on write.
type State struct {
	bottom bool
	regs   [asm.NumRegs]interval.Interval
	init   uint16 // bit n set: rn holds a defined value
	// 8-byte aligned stack slots keyed by r10-relative offset. A missing
	// key means the slot may hold anything.
	stack map[int16]interval.Interval
	count interval.Interval
}

// bottomState is the state of an unreachable program point.
func bottomState() State {
	return State{bottom: true}
}

// entryState is the state on program entry: r1 holds the context pointer,
// r10 the frame pointer; everything else is undefined.
func entryState() State {
	s := State{count: interval.Of(0)}
	for i := range s.regs {
		s.regs[i] = interval.Bottom()
	}
	s.regs[asm.R1] = interval.Top()
	s.regs[asm.R10] = interval.Top()
	s.setInit(asm.R1)
	s.setInit(asm.R10)
	return s
}

func (s State) IsBottom() bool { return s.bottom }

func (s *State) setInit(r asm.Reg)   { s.init |= 1 << r }
func (s *State) clearInit(r asm.Reg) { s.init &^= 1 << r }

func (s State) initialized(r asm.Reg) bool { return s.init&(1<<r) != 0 }

// Reg returns the tracked interval for r.
func (s State) Reg(r asm.Reg) interval.Interval {
	if s.bottom {
		return interval.Bottom()
	}
	return s.regs[r]
}

// Slot returns the tracked interval for the 8-byte stack slot at the given
// r10-relative offset.
func (s State) Slot(off int16) interval.Interval {
	if v, ok := s.stack[off]; ok {
		return v
	}
	return interval.Top()
}

func (s State) withReg(r asm.Reg, v interval.Interval) State {
	s.regs[r] = v
	s.setInit(r)
	return s
}

func (s State) withSlot(off int16, v interval.Interval) State {
	stack := make(map[int16]interval.Interval, len(s.stack)+1)
	maps.Copy(stack, s.stack)
	stack[off] = v
	s.stack = stack
	return s
}

func (s State) dropSlots(keep func(off int16) bool) State {
	stack := make(map[int16]interval.Interval, len(s.stack))
	for off, v := range s.stack {
		if keep(off) {
			stack[off] = v
		}
	}
	s.stack = stack
	return s
}

func (s State) String() string {
	if s.bottom {
		return "_|_"
	}
	var parts []string
	for r, v := range s.regs {
		if s.initialized(asm.Reg(r)) && !v.IsTop() {
			parts = append(parts, fmt.Sprintf("r%d=%s", r, v))
		}
	}
	offs := maps.Keys(s.stack)
	slices.Sort(offs)
	for _, off := range offs {
		parts = append(parts, fmt.Sprintf("fp%+d=%s", off, s.stack[off]))
	}
	parts = append(parts, fmt.Sprintf("count=%s", s.count))
	return strings.Join(parts, " ")
}

// domain implements fixpoint.Domain over State: every component is joined,
// widened and narrowed pointwise.
type domain struct {
	ts interval.Thresholds
}

func (d domain) Bottom() State { return bottomState() }

func (d domain) Join(a, b State) State {
	if a.bottom {
		return b
	}
	if b.bottom {
		return a
	}
	out := State{init: a.init & b.init, count: a.count.Join(b.count)}
	for i := range out.regs {
		out.regs[i] = a.regs[i].Join(b.regs[i])
	}
	out.stack = joinStacks(a.stack, b.stack, interval.Interval.Join)
	return out
}

func (d domain) Widen(a, b State) State {
	if a.bottom {
		return b
	}
	if b.bottom {
		return a
	}
	out := State{init: a.init & b.init}
	out.count = a.count.WidenThresholds(b.count, d.ts)
	for i := range out.regs {
		out.regs[i] = a.regs[i].WidenThresholds(b.regs[i], d.ts)
	}
	out.stack = joinStacks(a.stack, b.stack, func(x, y interval.Interval) interval.Interval {
		return x.WidenThresholds(y, d.ts)
	})
	return out
}

func (d domain) Narrow(a, b State) State {
	if a.bottom || b.bottom {
		return bottomState()
	}
	out := State{init: a.init, count: a.count.Narrow(b.count)}
	for i := range out.regs {
		out.regs[i] = a.regs[i].Narrow(b.regs[i])
	}
	out.stack = joinStacks(a.stack, b.stack, interval.Interval.Narrow)
	return out
}

func (d domain) Leq(a, b State) bool {
	if a.bottom {
		return true
	}
	if b.bottom {
		return false
	}
	// Fewer known-defined registers means less information, i.e. higher.
	if a.init&b.init != b.init {
		return false
	}
	for i := range a.regs {
		if !a.regs[i].Leq(b.regs[i]) {
			return false
		}
	}
	// A slot missing from a is top, so b must miss it too.
	for off, bv := range b.stack {
		av, ok := a.stack[off]
		if !ok || !av.Leq(bv) {
			return false
		}
	}
	return a.count.Leq(b.count)
}

// joinStacks combines two slot maps pointwise. Slots absent from either side
// are top and stay absent.
func joinStacks(a, b map[int16]interval.Interval, op func(x, y interval.Interval) interval.Interval) map[int16]interval.Interval {
	out := map[int16]interval.Interval{}
	for off, av := range a {
		if bv, ok := b[off]; ok {
			out[off] = op(av, bv)
		}
	}
	return out
}
