package trace

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/stepcorn/stepcorn/go/cmd"
	"github.com/stepcorn/stepcorn/go/cpu"
	"github.com/stepcorn/stepcorn/go/models/trace"
)

// Print writes one line per step and the exit registers. dis, when set,
// renders each stepped instruction.
func Print(tf *trace.TraceReader, out io.Writer, dis *cpu.Capstr) error {
	fmt.Fprintf(out, "arch %s, version %d\n", tf.Header.Arch, tf.Header.Version)
	for {
		op, err := tf.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			return errors.Wrap(err, "error reading next trace operation")
		}
		switch o := op.(type) {
		case *trace.OpStep:
			if dis != nil {
				text, err := dis.Insn(o.Insn, o.PC)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%6d  %#08x: %08x  %s\n", o.Count, o.PC, o.Insn, text)
			} else {
				fmt.Fprintf(out, "%6d  %#08x: %08x\n", o.Count, o.PC, o.Insn)
			}
		case *trace.OpExit:
			fmt.Fprintf(out, "exit code %d\n%s\n", int32(o.Regs.R(1)), o.Regs.String())
		}
	}
	return nil
}

func Main(args []string) {
	fs := flag.NewFlagSet("trace", flag.ExitOnError)
	dis := fs.Bool("dis", false, "disassemble stepped instructions")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [-dis] <tracefile>\n", args[0])
		fs.PrintDefaults()
	}
	fs.Parse(args[1:])
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}
	c := cmd.NewStepcornCmd()
	f, err := os.Open(fs.Arg(0))
	if err != nil {
		c.PrintError(errors.Wrap(err, "failed to open trace"))
		os.Exit(1)
	}
	tf, err := trace.NewReader(f)
	if err != nil {
		f.Close()
		c.PrintError(err)
		os.Exit(1)
	}
	defer tf.Close()
	var cs *cpu.Capstr
	if *dis {
		cs = &cpu.Capstr{}
	}
	if err := Print(tf, os.Stdout, cs); err != nil {
		c.PrintError(err)
		os.Exit(1)
	}
}

func init() { cmd.Register("trace", "print a step trace file", Main) }
