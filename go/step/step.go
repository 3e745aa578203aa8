// Package step runs a function unprivileged one instruction at a time,
// trapping after each one with a mismatch breakpoint.
package step

import (
	"fmt"

	"github.com/pkg/errors"

	stepcorn "github.com/stepcorn/stepcorn/go"
	"github.com/stepcorn/stepcorn/go/arch/arm"
	"github.com/stepcorn/stepcorn/go/debug/brkpt"
	"github.com/stepcorn/stepcorn/go/models/trace"
)

// DefaultStackSize is the size of the stack Run allocates when asked for one
// without a size.
const DefaultStackSize = 64 * 1024

// HeapStack as Run's stack with a zero size asks for the stepper's own heap
// stack. Any other non-zero stack with a zero size means the same thing.
const HeapStack = 1

// Fault is what the client sees on each trap: the instruction about to run
// and the interrupted context, which it may edit.
type Fault struct {
	PC    uint32
	Insn  uint32
	Count uint64
	Regs  *arm.RegBlock
}

type Handler func(f *Fault)

type Stepper struct {
	m       *stepcorn.Machine
	handler Handler
	count   uint64

	// allocated on first use and reused by later runs
	stack uint32

	rec    *trace.TraceWriter
	recErr error
}

// New installs the stepper as m's prefetch abort handler. handler may be nil.
func New(m *stepcorn.Machine, handler Handler) *Stepper {
	s := &Stepper{m: m, handler: handler}
	m.Handle(stepcorn.PrefetchAbort, s.prefetchAbort)
	return s
}

// Record sends a step event per trap and the exit registers to w. Recording
// stops at the first write error, reported by Err.
func (s *Stepper) Record(w *trace.TraceWriter) {
	s.rec = w
	s.recErr = nil
}

func (s *Stepper) Err() error {
	return s.recErr
}

// Count is the number of instructions the last run trapped on.
func (s *Stepper) Count() uint64 {
	return s.count
}

func (s *Stepper) record(op trace.Op) {
	if s.rec == nil || s.recErr != nil {
		return
	}
	if err := s.rec.Pack(op); err != nil {
		s.recErr = errors.Wrap(err, "trace write failed")
	}
}

// stackTop picks the initial sp: 0 without a stack, the end of the caller's
// region when one is given, or the heap stack when size is 0. The value of
// stack is ignored in the last case.
func (s *Stepper) stackTop(stack, size uint32) (uint32, error) {
	if stack == 0 {
		return 0, nil
	}
	if size != 0 {
		return stack + size, nil
	}
	if s.stack == 0 {
		base, err := s.m.Malloc(DefaultStackSize)
		if err != nil {
			return 0, errors.Wrap(err, "stack allocation failed")
		}
		s.stack = base
	}
	return s.stack + DefaultStackSize, nil
}

// Run single-steps fn(arg) at user level and returns the registers of its
// exit call. The function returns into the machine's exit trampoline, so the
// exit code of a normal return is in r1. There is no step limit: a function
// that never exits never returns.
//
// stack 0 runs without a stack. A non-zero stack and size give the region
// [stack, stack+size). A non-zero stack with size 0, normally HeapStack,
// runs on a DefaultStackSize heap stack shared by every such run.
func (s *Stepper) Run(fn, arg, stack, size uint32) *arm.RegBlock {
	m := s.m
	sp, err := s.stackTop(stack, size)
	if err != nil {
		m.Halt(nil, "%v", err)
	}
	regs := arm.NewUserRegs(fn, arg, sp, m.ExitTrampoline(), m.Core().CPSR())

	s.count = 0
	dbg := m.Debug()
	// mismatch on 0 traps the first instruction fetched at user level
	dbg.MismatchStart()
	defer func() {
		if dbg.MismatchArmed() {
			dbg.MismatchStop()
		}
	}()
	if m.Config().Verbose {
		fmt.Fprintf(m.Config().Output, "single-stepping %#x(%#x) sp=%#x\n", fn, arg, sp)
	}

	exit := m.Run(&regs)
	s.record(&trace.OpExit{Regs: *exit})
	if m.Config().Verbose {
		fmt.Fprintf(m.Config().Output, "done: %d instructions, exit code %d\n", s.count, int32(exit.R(1)))
	}
	return exit
}

func (s *Stepper) prefetchAbort(m *stepcorn.Machine, regs *arm.RegBlock) {
	if mode := regs.Mode(); mode != arm.USR {
		m.Halt(regs, "single-step trap from %s mode", mode)
	}
	dbg := m.Debug()
	f := dbg.Fault(brkpt.Prefetch, regs)
	if f.Kind != brkpt.Mismatch {
		m.Halt(regs, "unexpected %s while single-stepping", f)
	}
	pc := regs.PC()
	insn, err := m.ReadUint32(pc)
	if err != nil {
		m.Halt(regs, "%v", err)
	}
	s.count++

	// step output shares the UART with the traced code
	if m.Config().Verbose {
		fmt.Fprintf(m.UART(), "fault:\t%x:\t%x  @ %d\n", pc, insn, s.count)
	}
	s.record(&trace.OpStep{PC: pc, Insn: insn, Count: s.count})
	if s.handler != nil {
		s.handler(&Fault{PC: pc, Insn: insn, Count: s.count, Regs: regs})
	}
	// the trap can land between the traced code's ready check and its
	// write to the FIFO, so leave it room
	m.UART().WaitSpace()

	dbg.MismatchSet(regs.PC())
	dbg.CheckResume(regs.PC())
	m.Resume(regs)
}
