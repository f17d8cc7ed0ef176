package fixpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SeanHeelan/ebpf-verifier/cfg"
	"github.com/SeanHeelan/ebpf-verifier/interval"
)

// ivalDomain analyzes a single counter whose state is one interval.
type ivalDomain struct {
	ts interval.Thresholds
}

func (d ivalDomain) Bottom() interval.Interval { return interval.Bottom() }

func (d ivalDomain) Join(a, b interval.Interval) interval.Interval { return a.Join(b) }

func (d ivalDomain) Widen(a, b interval.Interval) interval.Interval {
	return a.WidenThresholds(b, d.ts)
}

func (d ivalDomain) Narrow(a, b interval.Interval) interval.Interval { return a.Narrow(b) }

func (d ivalDomain) Leq(a, b interval.Interval) bool { return a.Leq(b) }

func counterFramework() *Framework[string, interval.Interval] {
	return &Framework[string, interval.Interval]{
		Domain: ivalDomain{ts: interval.NewThresholds()},
		Transfer: func(_ cfg.Label, s string, d interval.Interval) interval.Interval {
			switch s {
			case "zero":
				return interval.Of(0)
			case "inc":
				return d.Add(interval.Of(1))
			case "clamp15":
				// A loop guard: only values <= 15 continue.
				return d.Meet(interval.New(interval.NInfinity, interval.NewBound(15)))
			default:
				return d
			}
		},
		WideningDelay:   1,
		NarrowingPasses: 1,
	}
}

func TestStraightLine(t *testing.T) {
	g := cfg.NewWithExit[string]("entry", "exit")
	a := g.Insert("a")
	a.Append("zero")
	a.Append("inc")
	a.Append("inc")
	g.Get("entry").ConnectTo(a)
	a.ConnectTo(g.Get("exit"))

	res := counterFramework().Analyze(cfg.NewRef(g), interval.Top())

	got := res.Post["a"]
	assert.True(t, got.Equal(interval.Of(2)), "got %s", got)
	assert.True(t, res.Pre["exit"].Equal(interval.Of(2)))
}

// A loop that increments forever: widening must drive the counter's upper
// bound to ∞ and the analysis must stabilize.
func TestLoopWidens(t *testing.T) {
	g := cfg.NewWithExit[string]("entry", "exit")
	head := g.Insert("head")
	body := g.Insert("body")
	body.Append("inc")
	g.Get("entry").ConnectTo(head)
	head.ConnectTo(body)
	body.ConnectTo(head)
	head.ConnectTo(g.Get("exit"))

	res := counterFramework().Analyze(cfg.NewRef(g), interval.Of(0))

	got := res.Pre["head"]
	require.False(t, got.IsBottom())
	assert.True(t, got.Lb().Equal(interval.NewBound(0)), "lower bound must survive widening, got %s", got)
	assert.True(t, got.Ub().IsPlusInfinity(), "upper bound must widen to ∞, got %s", got)
}

// Two branches joining: the join of [0,0] and [2,2] is [0,2].
func TestBranchJoin(t *testing.T) {
	g := cfg.NewWithExit[string]("entry", "exit")
	a := g.Insert("a")
	b := g.Insert("b")
	join := g.Insert("join")
	a.Append("zero")
	b.Append("zero")
	b.Append("inc")
	b.Append("inc")
	e := g.Get("entry")
	e.ConnectTo(a)
	e.ConnectTo(b)
	a.ConnectTo(join)
	b.ConnectTo(join)
	join.ConnectTo(g.Get("exit"))

	res := counterFramework().Analyze(cfg.NewRef(g), interval.Top())

	got := res.Pre["join"]
	assert.True(t, got.Equal(interval.New(interval.NewBound(0), interval.NewBound(2))), "got %s", got)
}

// The same engine runs backward when handed the reversed view: here we
// count statements on the way to the exit.
func TestBackwardAnalysis(t *testing.T) {
	g := cfg.NewWithExit[string]("entry", "exit")
	a := g.Insert("a")
	a.Append("inc")
	a.Append("inc")
	g.Get("entry").ConnectTo(a)
	a.ConnectTo(g.Get("exit"))

	fw := counterFramework()
	res := fw.Analyze(cfg.NewRev(g), interval.Of(0))

	// Walking backward from the exit, block a adds two statements.
	assert.True(t, res.Post["a"].Equal(interval.Of(2)), "got %s", res.Post["a"])
	assert.True(t, res.Pre["entry"].Equal(interval.Of(2)))
}

func TestDeterministicResult(t *testing.T) {
	build := func() *cfg.Cfg[string] {
		g := cfg.NewWithExit[string]("entry", "exit")
		head := g.Insert("head")
		b1 := g.Insert("b1")
		b2 := g.Insert("b2")
		b1.Append("inc")
		b2.Append("inc")
		b2.Append("inc")
		g.Get("entry").ConnectTo(head)
		head.ConnectTo(b1)
		head.ConnectTo(b2)
		b1.ConnectTo(head)
		b2.ConnectTo(g.Get("exit"))
		return g
	}

	run := func() string {
		res := counterFramework().Analyze(cfg.NewRef(build()), interval.Of(0))
		out := ""
		for _, l := range []cfg.Label{"entry", "head", "b1", "b2", "exit"} {
			out += string(l) + "=" + res.Pre[l].String() + ";"
		}
		return out
	}

	assert.Equal(t, run(), run())
}

// A guarded loop (while x <= 15: x++) analyzed with a matching threshold:
// widening jumps to the threshold instead of ∞ and the guard keeps it there,
// so the head stabilizes at [0, 16] without any narrowing needed.
func TestThresholdWidening(t *testing.T) {
	g := cfg.NewWithExit[string]("entry", "exit")
	head := g.Insert("head")
	body := g.Insert("body")
	body.Append("clamp15")
	body.Append("inc")
	g.Get("entry").ConnectTo(head)
	head.ConnectTo(body)
	body.ConnectTo(head)
	head.ConnectTo(g.Get("exit"))

	fw := counterFramework()
	fw.Domain = ivalDomain{ts: interval.NewThresholds(16)}
	res := fw.Analyze(cfg.NewRef(g), interval.Of(0))

	got := res.Pre["head"]
	require.False(t, got.IsBottom())
	assert.True(t, got.Ub().Equal(interval.NewBound(16)), "widening should stop at the threshold, got %s", got)
}
