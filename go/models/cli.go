package models

import (
	"flag"
	"fmt"
	"io"
	"strings"
)

// PrintFlags writes a usage table for flags to w, wrapping descriptions at
// 80 columns.
func PrintFlags(w io.Writer, flags []*flag.Flag) {
	wname := 0
	wdef := 0
	for _, f := range flags {
		if len(f.Name) > wname {
			wname = len(f.Name)
		}
		if len(f.DefValue) > wdef {
			wdef = len(f.DefValue)
		}
	}
	wdesc := 80 - wname - wdef - 7

	namefmt := fmt.Sprintf("%%-%ds", wname)
	deffmt := fmt.Sprintf("%%-%ds ", wdef+2)
	lpad := strings.Repeat(" ", wname+wdef+7)
	for _, f := range flags {
		fmt.Fprintf(w, "  -"+namefmt, f.Name)
		if f.DefValue != "" && f.DefValue != "0" && f.DefValue != "false" {
			fmt.Fprintf(w, " "+deffmt, "("+f.DefValue+")")
		} else {
			fmt.Fprintf(w, " "+deffmt, "  ")
		}
		for i, line := range wrap(f.Usage, wdesc) {
			if i > 0 {
				fmt.Fprint(w, lpad)
			}
			fmt.Fprintf(w, "%s\n", line)
		}
	}
}

// wrap splits s into lines of at most n bytes, breaking on spaces
func wrap(s string, n int) []string {
	var out []string
	for len(s) > n {
		// a space right at n still lets the first n bytes fit
		cut := strings.LastIndex(s[:n+1], " ")
		if cut <= 0 {
			cut = n
		}
		out = append(out, s[:cut])
		s = strings.TrimLeft(s[cut:], " ")
	}
	return append(out, s)
}
