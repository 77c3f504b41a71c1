package api

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// WriteDOT renders the schematic as a Graphviz digraph. Reentrant inputs are
// drawn as self loops and states with an entry connector carry its key in
// their label.
func (s *Schematic[S, I]) WriteDOT(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "digraph %s {\n", strconv.Quote(s.name))
	fmt.Fprintln(bw, "\trankdir=LR;")
	for _, v := range s.order {
		cfg := s.states[v]
		label := fmt.Sprint(v)
		if cfg.OnEntry != nil {
			label += "\\n[" + cfg.OnEntry.ConnectorKey + "]"
		}
		shape := "ellipse"
		if cfg.Initial {
			shape = "doublecircle"
		}
		fmt.Fprintf(bw, "\t%s [label=%s shape=%s];\n", dotID(v), strconv.Quote(label), shape)
	}
	for _, v := range s.order {
		cfg := s.states[v]
		for _, in := range cfg.ReentrantInputs {
			fmt.Fprintf(bw, "\t%s -> %s [label=%s style=dashed];\n", dotID(v), dotID(v), strconv.Quote(fmt.Sprint(in)))
		}
		for _, tr := range cfg.Transitions {
			fmt.Fprintf(bw, "\t%s -> %s [label=%s];\n", dotID(v), dotID(tr.ResultantState), strconv.Quote(fmt.Sprint(tr.Input)))
		}
		if cfg.OnEntry != nil && cfg.OnEntry.FailureTransition != nil {
			fmt.Fprintf(bw, "\t// %v on failure sends %v\n", v, cfg.OnEntry.FailureTransition.Input)
		}
	}
	fmt.Fprintln(bw, "}")
	return bw.Flush()
}

func dotID(v any) string {
	return strconv.Quote(fmt.Sprint(v))
}
