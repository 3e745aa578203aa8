package cmd

import (
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"strings"

	"github.com/pkg/errors"

	stepcorn "github.com/stepcorn/stepcorn/go"
	"github.com/stepcorn/stepcorn/go/arch/arm"
	"github.com/stepcorn/stepcorn/go/cpu"
	"github.com/stepcorn/stepcorn/go/models"
	"github.com/stepcorn/stepcorn/go/models/trace"
	"github.com/stepcorn/stepcorn/go/step"
)

// Demos are built-in programs selectable with -demo, as instruction words
// for a given load address.
var Demos = map[string]func(base uint32) []uint32{}

type StepcornCmd struct {
	Config *models.Config
	Flags  *flag.FlagSet

	// where guest output and diagnostics go
	Stdout, Stderr io.Writer

	Machine *stepcorn.Machine
	Stepper *step.Stepper
}

func NewStepcornCmd() *StepcornCmd {
	fs := flag.NewFlagSet("cli", flag.ExitOnError)
	return &StepcornCmd{Flags: fs, Stdout: os.Stdout, Stderr: os.Stderr}
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

func (c *StepcornCmd) PrintError(err error) {
	// print an error, and a stacktrace if available
	fmt.Fprintf(c.Stderr, "%s\n", strings.Repeat("-", 40))
	fmt.Fprintf(c.Stderr, "Error: %s\n", err)
	if err, ok := err.(stackTracer); ok {
		// parse full path and method name for each stack frame
		var frames [][]string
		for _, f := range err.StackTrace() {
			fullpath := ""
			fileline := fmt.Sprintf("%s:%d", f, f)
			method := fmt.Sprintf("%n", f)

			frame := fmt.Sprintf("%+s", f)
			tmp := strings.SplitN(frame, "\n", 3)
			if len(tmp) == 2 {
				pathsplit := strings.Split(tmp[0], "/")
				method = pathsplit[len(pathsplit)-1]
				fullpath = strings.TrimSpace(tmp[1])
			}
			frames = append(frames, []string{fullpath, fileline, method})
			if method == "main.main" {
				break
			}
		}
		// calculate column widths
		widths := make([]int, 3)
		for _, f := range frames {
			for i, s := range f {
				if len(s) > widths[i] {
					widths[i] = len(s)
				}
			}
		}
		// print pretty stacktrace
		for _, f := range frames {
			method := f[2]
			for i := 0; i < 2; i++ {
				if widths[i] > 0 {
					pad := strings.Repeat(" ", widths[i]-len(f[i]))
					fmt.Fprintf(c.Stderr, "%s%s | ", f[i], pad)
				}
			}
			fmt.Fprintf(c.Stderr, "%s()\n", method)
		}
	}
}

// image produces the code to load at base: a built-in demo, an assembly
// source file, or a raw binary.
func (c *StepcornCmd) image(path, demo string, asm bool, base uint32) ([]byte, error) {
	if demo != "" {
		gen, ok := Demos[demo]
		if !ok {
			return nil, errors.Errorf("unknown demo %q", demo)
		}
		return arm.Assemble(gen(base)), nil
	}
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read image")
	}
	if !asm {
		return data, nil
	}
	ks := &cpu.Keystone{}
	defer ks.Close()
	code, err := ks.Asm(string(data), base)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to assemble %s", path)
	}
	return code, nil
}

// Run parses argv and single-steps the image. The return value is the
// process exit status: the traced function's exit code, or 1 on error.
func (c *StepcornCmd) Run(argv []string) (status int) {
	fs := c.Flags
	rtrace := fs.Bool("rtrace", false, "print changed registers after every instruction")
	etrace := fs.Bool("etrace", false, "print every executed instruction, kernel included")
	mtrace := fs.Bool("mtrace", false, "trace memory access")
	strace := fs.Bool("strace", false, "trace system calls")
	tracefile := fs.String("to", "", "binary step trace output file")
	dis := fs.Bool("dis", false, "disassemble each stepped instruction")
	color := fs.Bool("color", false, "color register changes")
	tnames := []string{"rtrace", "etrace", "mtrace", "strace", "to", "dis", "color"}

	verbose := fs.Bool("v", false, "verbose output: one line per step")
	base := fs.Uint("base", 0x8000, "image load address")
	entry := fs.Uint("entry", 0, "function entry point (default: -base)")
	arg := fs.Uint("arg", 0, "argument passed in r0")
	stack := fs.Uint("stack", 0, "stack size to allocate (0 runs with sp=0)")
	asm := fs.Bool("asm", false, "image is assembly source")
	demo := fs.String("demo", "", "run a built-in program instead of an image")
	drain := fs.Int("drain", 0, "uart cycles per byte")
	outfile := fs.String("o", "", "redirect debugging output to file (default stderr)")

	fs.Usage = func() {
		fmt.Fprintf(c.Stderr, "Usage: %s [options] <image>\n\nOptions:\n", argv[0])
		var flags []*flag.Flag
		var tflags []*flag.Flag
		fs.VisitAll(func(f *flag.Flag) {
			for _, name := range tnames {
				if name == f.Name {
					tflags = append(tflags, f)
					return
				}
			}
			flags = append(flags, f)
		})
		models.PrintFlags(c.Stderr, flags)
		fmt.Fprintf(c.Stderr, "\nTrace Options:\n")
		models.PrintFlags(c.Stderr, tflags)
		fmt.Fprintf(c.Stderr, "\nExample:\n  %s -v -demo count\n", argv[0])
	}
	fs.Parse(argv[1:])

	args := fs.Args()
	if len(args) < 1 && *demo == "" {
		fs.Usage()
		return 1
	}
	if *base < stepcorn.EXIT_TRAMPOLINE+stepcorn.PAGE_SIZE {
		c.PrintError(errors.Errorf("base %#x overlaps the exit trampoline", *base))
		return 1
	}
	path := ""
	if len(args) > 0 {
		path = args[0]
	}
	img, err := c.image(path, *demo, *asm, uint32(*base))
	if err != nil {
		c.PrintError(err)
		return 1
	}

	config := &models.Config{
		Color:     *color,
		TraceExec: *etrace,
		TraceMem:  *mtrace,
		TraceReg:  *rtrace,
		TraceSys:  *strace,
		Verbose:   *verbose,

		ImageBase: uint32(*base) &^ (stepcorn.PAGE_SIZE - 1),
		UartDrain: *drain,
		Output:    c.Stderr,
		UartOut:   c.Stdout,
	}
	if size := uint32(*base) - config.ImageBase + uint32(len(img)); size > 0x100000 {
		config.ImageSize = size
	}
	if *outfile != "" {
		out, err := os.OpenFile(*outfile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			c.PrintError(errors.Wrap(err, "failed to open output"))
			return 1
		}
		defer out.Close()
		config.Output = out
	}
	c.Config = config

	m, err := stepcorn.NewMachine(config, nil)
	if err != nil {
		c.PrintError(err)
		return 1
	}
	if err := m.Write(uint32(*base), img); err != nil {
		c.PrintError(err)
		return 1
	}
	c.Machine = m

	var handler step.Handler
	if *dis {
		cs := &cpu.Capstr{}
		handler = func(f *step.Fault) {
			text, err := cs.Insn(f.Insn, f.PC)
			if err != nil {
				text = err.Error()
			}
			fmt.Fprintf(config.Output, "  %#08x: %s\n", f.PC, text)
		}
	}
	c.Stepper = step.New(m, handler)

	var tw *trace.TraceWriter
	if *tracefile != "" {
		f, err := os.Create(*tracefile)
		if err != nil {
			c.PrintError(errors.Wrap(err, "failed to create trace file"))
			return 1
		}
		tw, err = trace.NewWriter(f, m.Arch(), binary.LittleEndian)
		if err != nil {
			f.Close()
			c.PrintError(err)
			return 1
		}
		c.Stepper.Record(tw)
	}

	defer func() {
		if r := recover(); r != nil {
			err, ok := r.(error)
			if !ok {
				panic(r)
			}
			c.PrintError(err)
			status = 1
		}
	}()

	var sp, size uint32
	if *stack > 0 {
		size = uint32(*stack)
		if sp, err = m.Malloc(size); err != nil {
			c.PrintError(err)
			return 1
		}
	}
	fn := uint32(*entry)
	if fn == 0 {
		fn = uint32(*base)
	}
	exit := c.Stepper.Run(fn, uint32(*arg), sp, size)

	if err := m.Flush(); err != nil {
		c.PrintError(err)
		return 1
	}
	if tw != nil {
		if err := c.Stepper.Err(); err != nil {
			c.PrintError(err)
			return 1
		}
		if err := tw.Close(); err != nil {
			c.PrintError(err)
			return 1
		}
	}
	code := models.ExitStatus(int32(exit.R(1)))
	if *verbose {
		fmt.Fprintf(config.Output, "%d instructions, %v\nnon-zero registers:\n", c.Stepper.Count(), code)
		for _, r := range m.RegDump(exit) {
			if r.Val != 0 {
				fmt.Fprintf(config.Output, "  %4s = %#x\n", r.Name, r.Val)
			}
		}
	}
	return int(code)
}
