package armv6

import (
	"fmt"

	"github.com/stepcorn/stepcorn/go/arch/arm"
	"github.com/stepcorn/stepcorn/go/models/cpu"
)

// Exception is what Step reports back: either nothing, or the exception the
// core just entered. The vectors themselves are never fetched; whoever drives
// the core decides what happens next.
type Exception int

const (
	None Exception = iota
	Reset
	Undefined
	SWI
	PrefetchAbort
	DataAbort
	IRQ
	FIQ
)

var excNames = []string{"none", "reset", "undefined", "swi", "prefetch abort", "data abort", "irq", "fiq"}

func (e Exception) String() string {
	if int(e) < len(excNames) {
		return excNames[e]
	}
	return fmt.Sprintf("exception(%d)", int(e))
}

// Mode is the processor mode the exception is taken in.
func (e Exception) Mode() arm.Mode {
	switch e {
	case Undefined:
		return arm.UND
	case PrefetchAbort, DataAbort:
		return arm.ABT
	case IRQ:
		return arm.IRQ
	case FIQ:
		return arm.FIQ
	}
	return arm.SVC
}

func (e Exception) Vector() uint32 {
	return []uint32{0, 0x00, 0x04, 0x08, 0x0c, 0x10, 0x18, 0x1c}[e]
}

// Ticker is a device clocked by the core.
type Ticker interface {
	Tick(cycle uint64)
}

type Builder struct{}

func (b *Builder) New() (cpu.Cpu, error) {
	return New(), nil
}

// Core is an ARM1176-flavoured ARMv6 core: A32 only, no MMU or caches, with
// the debug unit and the fault status registers a debug monitor relies on.
type Core struct {
	*cpu.Hooks
	*cpu.Mem

	usr  [16]uint32
	fiq  [7]uint32
	bank [4][2]uint32
	spsr [5]uint32
	cpsr uint32

	cp15 cp15
	dbg  debugUnit

	irqLine bool
	fiqLine bool
	cycles  uint64
	devices []Ticker

	// per-instruction state
	cur   uint32
	next  uint32
	abort *memAbort
	watch *watchHit
}

func New() *Core {
	c := &Core{Mem: cpu.NewMem()}
	c.Hooks = cpu.NewHooks(c, c.Mem)
	c.dbg.init()
	c.cpsr = uint32(arm.SVC) | arm.PsrI | arm.PsrF
	return c
}

func (c *Core) Cycles() uint64 {
	return c.cycles
}

// AddDevice clocks t once per Step.
func (c *Core) AddDevice(t Ticker) {
	c.devices = append(c.devices, t)
}

// SetIRQ drives the IRQ input; it is level sensitive.
func (c *Core) SetIRQ(level bool) { c.irqLine = level }

func (c *Core) SetFIQ(level bool) { c.fiqLine = level }

func (c *Core) enter(e Exception, lr uint32) {
	m := e.Mode()
	old := c.cpsr
	c.cpsr = arm.WithMode(old&^arm.PsrT, m) | arm.PsrI
	if e == Reset || e == FIQ {
		c.cpsr |= arm.PsrF
	}
	*c.spsrPtr(m) = old
	*c.regPtr(arm.RegLR, m) = lr
	c.usr[arm.RegPC] = e.Vector()
	c.OnIntr(uint32(e))
}

// Raise enters exception e as if it had been signalled before the
// instruction at pc.
func (c *Core) Raise(e Exception) {
	c.enter(e, c.usr[arm.RegPC]+4)
}

// Step runs one instruction, or takes one exception, and reports which
// exception (if any) the core entered.
func (c *Core) Step() Exception {
	c.cycles++
	for _, d := range c.devices {
		d.Tick(c.cycles)
	}
	if c.fiqLine && c.cpsr&arm.PsrF == 0 {
		c.Raise(FIQ)
		return FIQ
	}
	if c.irqLine && c.cpsr&arm.PsrI == 0 {
		c.Raise(IRQ)
		return IRQ
	}
	pc := c.usr[arm.RegPC]
	if c.dbg.breakpoint(pc, c.Mode()) {
		c.cp15.ifsr = fsDebug
		c.cp15.ifar = pc
		c.dbg.setMOE(moeBreakpoint)
		c.enter(PrefetchAbort, pc+4)
		return PrefetchAbort
	}
	if c.cpsr&arm.PsrT != 0 {
		c.enter(Undefined, pc+4)
		return Undefined
	}
	insn, err := c.ReadUint(pc, 4, cpu.PROT_EXEC)
	if err != nil {
		c.cp15.ifsr = faultStatus(err)
		c.cp15.ifar = pc
		c.enter(PrefetchAbort, pc+4)
		return PrefetchAbort
	}
	c.OnCode(pc, insn)

	c.cur, c.next = pc, pc+4
	c.abort, c.watch = nil, nil
	exc := c.exec(insn)
	if c.abort != nil {
		c.cp15.dfsr = c.abort.status
		if c.abort.write {
			c.cp15.dfsr |= dfsrWnR
		}
		c.cp15.far = c.abort.addr
		c.enter(DataAbort, pc+8)
		return DataAbort
	}
	switch exc {
	case Undefined, SWI:
		c.enter(exc, pc+4)
		return exc
	}
	c.usr[arm.RegPC] = c.next
	if w := c.watch; w != nil {
		// the access already happened: report it against the next instruction
		c.cp15.dfsr = fsDebug
		if w.write {
			c.cp15.dfsr |= dfsrWnR
		}
		c.cp15.far = w.addr
		c.dbg.wfar = pc + 8
		c.dbg.setMOE(moeWatchpoint)
		c.enter(DataAbort, c.next+8)
		return DataAbort
	}
	return None
}
