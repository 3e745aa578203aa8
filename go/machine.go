// Package stepcorn runs ARMv6 code on an emulated core with host Go code
// acting as the privileged kernel: exception handlers, syscalls, and the
// scheduler that switches into traced contexts.
package stepcorn

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/stepcorn/stepcorn/go/arch/arm"
	"github.com/stepcorn/stepcorn/go/cpu/armv6"
	"github.com/stepcorn/stepcorn/go/debug/brkpt"
	"github.com/stepcorn/stepcorn/go/debug/cp14"
	"github.com/stepcorn/stepcorn/go/device/uart"
	"github.com/stepcorn/stepcorn/go/kernel/common"
	"github.com/stepcorn/stepcorn/go/models"
	"github.com/stepcorn/stepcorn/go/models/cpu"
)

// Class is a trap class with its own handler slot.
type Class int

const (
	Reset Class = iota
	Undefined
	Syscall
	PrefetchAbort
	DataAbort
	IRQ
	FIQ
)

var classNames = []string{"reset", "undefined", "syscall", "prefetch abort", "data abort", "irq", "fiq"}

func (c Class) String() string {
	if c >= 0 && int(c) < len(classNames) {
		return classNames[c]
	}
	return fmt.Sprintf("class(%d)", int(c))
}

func classOf(e armv6.Exception) Class {
	switch e {
	case armv6.Undefined:
		return Undefined
	case armv6.SWI:
		return Syscall
	case armv6.PrefetchAbort:
		return PrefetchAbort
	case armv6.DataAbort:
		return DataAbort
	case armv6.IRQ:
		return IRQ
	case armv6.FIQ:
		return FIQ
	}
	return Reset
}

// Handler receives the interrupted context. Returning resumes regs, edits
// included; Resume and ResumeContinuation leave without returning.
type Handler func(m *Machine, regs *arm.RegBlock)

type Handlers map[Class]Handler

type Machine struct {
	*Task

	cfg      *models.Config
	core     *armv6.Core
	handlers Handlers
	debug    *brkpt.Controller
	uart     *uart.UART
	kernel   *Kernel
	status   *StatusDiff

	// handler nesting; Resume is only legal inside one
	depth int

	// the context EXIT returns to, and what it left behind
	sched    Continuation
	exitRegs arm.RegBlock
}

// NewMachine builds a core with the image, heap, exit trampoline and UART
// mapped. Classes missing from handlers are fatal when they trap, except
// Syscall, which defaults to the built-in kernel.
func NewMachine(cfg *models.Config, handlers Handlers) (*Machine, error) {
	cfg = cfg.Init()
	core := armv6.New()
	m := &Machine{
		Task:     NewTask(core, arm.Arch),
		cfg:      cfg,
		core:     core,
		handlers: make(Handlers),
		debug:    brkpt.New(cp14.New(core)),
		uart:     uart.New(cfg.UartOut, cfg.UartDrain),
		status:   &StatusDiff{},
	}
	m.kernel = NewKernel(m)
	for class, h := range handlers {
		m.handlers[class] = h
	}
	if _, ok := m.handlers[Syscall]; !ok {
		m.handlers[Syscall] = m.kernel.handle
	}
	if err := m.Map(cfg.ImageBase, cfg.ImageSize, cpu.PROT_ALL, "image"); err != nil {
		return nil, err
	}
	if err := m.heap(cfg.HeapBase, cfg.HeapSize); err != nil {
		return nil, err
	}
	if err := m.Map(EXIT_TRAMPOLINE, PAGE_SIZE, cpu.PROT_READ|cpu.PROT_EXEC, "exit trampoline"); err != nil {
		return nil, err
	}
	tramp := arm.Assemble(
		arm.MovReg(1, 0),
		arm.MovImm(0, common.SysExit),
		arm.Swi(0),
		arm.B(EXIT_TRAMPOLINE+12, EXIT_TRAMPOLINE+12),
	)
	if err := m.Write(EXIT_TRAMPOLINE, tramp); err != nil {
		return nil, err
	}
	if err := m.MapDevice(uart.Base, uart.Size, m.uart, "uart"); err != nil {
		return nil, err
	}
	core.AddDevice(m.uart)
	if err := m.addTraceHooks(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Machine) Config() *models.Config {
	return m.cfg
}

func (m *Machine) Core() *armv6.Core {
	return m.core
}

// Debug is the breakpoint/watchpoint controller of the core.
func (m *Machine) Debug() *brkpt.Controller {
	return m.debug
}

func (m *Machine) UART() *uart.UART {
	return m.uart
}

// Handle replaces the handler of one class.
func (m *Machine) Handle(class Class, h Handler) {
	m.handlers[class] = h
}

// Mode is the mode the core is in now: the trap mode inside a handler.
func (m *Machine) Mode() arm.Mode {
	return m.core.Mode()
}

// ExitTrampoline is where a traced function returns to; it issues EXIT with
// the function's r0 as the code.
func (m *Machine) ExitTrampoline() uint32 {
	return EXIT_TRAMPOLINE
}

// ExitTrampolinePC is the pc recorded by the EXIT call the trampoline makes.
func (m *Machine) ExitTrampolinePC() uint32 {
	return EXIT_TRAMPOLINE + 12
}

// ExitRegisters is the context that made the last EXIT call.
func (m *Machine) ExitRegisters() *arm.RegBlock {
	regs := m.exitRegs
	return &regs
}

// Load installs regs on the core, in the mode its cpsr names, without running
// anything.
func (m *Machine) Load(regs *arm.RegBlock) {
	if err := m.core.Load(regs); err != nil {
		m.Halt(regs, "%v", err)
	}
}

// interrupted rebuilds the context a trap interrupted from the trap mode's
// lr and spsr
func (m *Machine) interrupted(exc armv6.Exception) arm.RegBlock {
	mode := m.core.Mode()
	spsr := m.core.SPSR(mode)
	pc := m.core.Reg(arm.RegLR)
	switch exc {
	case armv6.PrefetchAbort, armv6.IRQ, armv6.FIQ, armv6.Reset:
		pc -= 4
	case armv6.DataAbort:
		pc -= 8
	}
	return m.core.Save(arm.ModeOf(spsr), pc, spsr)
}

// run steps the core until a handler resumes slot
func (m *Machine) run(slot *Continuation) arm.RegBlock {
	for {
		exc := m.core.Step()
		if m.cfg.TraceReg {
			m.printStatus()
		}
		if exc == armv6.None {
			continue
		}
		if regs, done := m.dispatch(slot, exc); done {
			return regs
		}
	}
}

func (m *Machine) dispatch(slot *Continuation, exc armv6.Exception) (ret arm.RegBlock, done bool) {
	class := classOf(exc)
	regs := m.interrupted(exc)
	h, ok := m.handlers[class]
	if !ok || h == nil {
		m.Halt(&regs, "unhandled %s", class)
	}
	m.depth++
	defer func() {
		m.depth--
		if r := recover(); r != nil {
			switch sig := r.(type) {
			case *resumeSignal:
				m.Load(&sig.regs)
				return
			case *continuationSignal:
				if sig.slot == slot {
					ret, done = sig.regs, true
					return
				}
			}
			panic(r)
		}
	}()
	h(m, &regs)
	m.Load(&regs)
	return ret, false
}

// Halt stops the machine with a diagnostic. It never returns.
func (m *Machine) Halt(regs *arm.RegBlock, format string, a ...interface{}) {
	msg := fmt.Sprintf(format, a...)
	h := &Halt{Msg: msg, PC: m.core.PC(), Mode: m.core.Mode(), origin: errors.New(msg)}
	if regs != nil {
		r := *regs
		h.Regs = &r
	}
	panic(h)
}

// Halt is the panic value of every fatal machine condition.
type Halt struct {
	Msg  string
	PC   uint32
	Mode arm.Mode
	Regs *arm.RegBlock

	origin error
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// StackTrace is where the halt was raised.
func (h *Halt) StackTrace() errors.StackTrace {
	if st, ok := h.origin.(stackTracer); ok {
		return st.StackTrace()
	}
	return nil
}

func (h *Halt) Error() string {
	s := fmt.Sprintf("halt in %s at %#x: %s", h.Mode, h.PC, h.Msg)
	if h.Regs != nil {
		s += "\n" + h.Regs.String()
	}
	return s
}

// Flush drains the UART.
func (m *Machine) Flush() error {
	return errors.Wrap(m.uart.Flush(), "uart flush")
}
