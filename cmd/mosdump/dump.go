package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/evanphx/mosk/abi"
	"github.com/evanphx/mosk/exec"
	"github.com/evanphx/mosk/loader"
)

func dump(w io.Writer, path string) error {
	prog, err := loader.NewLoader(0).LoadFile(path)
	if err != nil {
		return err
	}

	byIndex := make(map[int][]string)
	for name, idx := range prog.Labels {
		byIndex[idx] = append(byIndex[idx], name)
	}

	for _, names := range byIndex {
		sort.Strings(names)
	}

	fmt.Fprintf(w, "%s: %d instructions, entry %d\n", prog.Name, len(prog.Text), prog.Entry())

	fmt.Fprintf(w, "\n[labels]\n")

	labels := make([]string, 0, len(prog.Labels))
	for name := range prog.Labels {
		labels = append(labels, name)
	}

	sort.Slice(labels, func(i, j int) bool {
		return prog.Labels[labels[i]] < prog.Labels[labels[j]]
	})

	tr := tabwriter.NewWriter(w, 4, 8, 1, ' ', 0)
	for _, name := range labels {
		fmt.Fprintf(tr, "%3d\t%s\n", prog.Labels[name], name)
	}
	tr.Flush()

	fmt.Fprintf(w, "\n[text]\n")

	tr = tabwriter.NewWriter(w, 4, 8, 1, ' ', 0)

	for i, in := range prog.Text {
		for _, name := range byIndex[i] {
			fmt.Fprintf(tr, "\t%s:\t\t\n", name)
		}

		fmt.Fprintf(tr, "  %3d\t\t%s\t%s\n", i, in, annotate(prog, in))
	}

	return tr.Flush()
}

// annotate names syscall numbers loaded into a0 and branch targets.
func annotate(prog *exec.Program, in exec.Instr) string {
	switch in.Op {
	case exec.OpLi:
		if in.Rd == exec.RegA0 {
			if name, ok := abi.SyscallNames[uint32(in.Imm)]; ok {
				return "# " + name
			}
		}
	case exec.OpBeq, exec.OpBne, exec.OpJ:
		for name, idx := range prog.Labels {
			if idx == int(in.Imm) {
				return "# " + name
			}
		}
	}

	return ""
}
