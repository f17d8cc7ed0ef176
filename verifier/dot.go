package verifier

import (
	"fmt"
	"io"
	"strings"

	"github.com/SeanHeelan/ebpf-verifier/asm"
	"github.com/SeanHeelan/ebpf-verifier/cfg"
)

// WriteDot renders the program graph in Graphviz format, one record-shaped
// node per basic block.
func WriteDot(w io.Writer, g *cfg.Cfg[asm.Statement]) error {
	var err error
	pf := func(format string, args ...any) {
		if err == nil {
			_, err = fmt.Fprintf(w, format, args...)
		}
	}

	pf("digraph cfg {\n")
	pf("node [shape=record];\n")
	for _, l := range g.Labels() {
		b := g.Get(l)
		var lines []string
		lines = append(lines, string(l))
		for _, s := range b.Statements() {
			lines = append(lines, escapeDot(s.String()))
		}
		pf("%q [label=\"%s\"];\n", string(l), strings.Join(lines, "\\l"))
	}
	for _, l := range g.Labels() {
		for _, s := range g.Successors(l) {
			pf("%q -> %q;\n", string(l), string(s))
		}
	}
	pf("}\n")
	return err
}

func escapeDot(s string) string {
	r := strings.NewReplacer(`"`, `\"`, "{", `\{`, "}", `\}`, "<", `\<`, ">", `\>`, "|", `\|`)
	return r.Replace(s)
}
