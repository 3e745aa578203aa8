// Package brkpt drives the three debug units a stepping monitor needs: an
// address mismatch breakpoint for single-stepping, an address match
// breakpoint, and a data watchpoint.
package brkpt

import (
	"github.com/pkg/errors"

	"github.com/stepcorn/stepcorn/go/arch/arm"
	"github.com/stepcorn/stepcorn/go/debug/cp14"
)

const (
	mismatchBRP = 0
	matchBRP    = 1
	watchWRP    = 0
)

var (
	mismatchBCR = cp14.BCR{Enable: true, Priv: cp14.PrivAny, ByteSelect: 0xf, Meaning: cp14.Mismatch}.Encode()
	matchBCR    = cp14.BCR{Enable: true, Priv: cp14.PrivAny, ByteSelect: 0xf, Meaning: cp14.Match}.Encode()
)

func watchWCR(addr uint32) uint32 {
	return cp14.WCR{
		Enable:     true,
		Priv:       cp14.PrivAny,
		Access:     cp14.Either,
		ByteSelect: 1 << (addr & 3),
	}.Encode()
}

// Abort is the trap a fault is being classified in.
type Abort int

const (
	Prefetch Abort = iota
	Data
)

func (a Abort) String() string {
	if a == Prefetch {
		return "prefetch abort"
	}
	return "data abort"
}

type unit struct {
	armed bool
	addr  uint32
}

// Controller owns the debug registers. It is not safe for concurrent use; the
// monitor only touches it from trap handlers and the code that arms a run.
type Controller struct {
	dbg *cp14.Debug

	mismatch unit
	match    unit
	watch    unit
}

func New(dbg *cp14.Debug) *Controller {
	return &Controller{dbg: dbg}
}

func (c *Controller) Debug() *cp14.Debug {
	return c.dbg
}

// a pair that is enabled but not tracked was programmed by someone else
func (c *Controller) claimBRP(n int, u *unit, what string) {
	if !u.armed && c.dbg.BCREnabled(n) {
		configErr(what, "breakpoint pair %d is busy (bcr=%#x)", n, c.dbg.BCR(n))
	}
}

func (c *Controller) armBRP(n int, u *unit, bcr, addr uint32) {
	c.dbg.SetBVR(n, addr&^3)
	if !u.armed {
		c.dbg.SetBCR(n, bcr)
	}
	*u = unit{armed: true, addr: addr}
}

func (c *Controller) stop(n int, u *unit, what string) {
	if !u.armed {
		configErr(what, "stopped while not armed")
	}
	c.dbg.DisableBCR(n)
	*u = unit{}
}

// MismatchStart enables the debug unit and arms mismatch at 0, so the next
// unprivileged instruction fetch traps.
func (c *Controller) MismatchStart() {
	c.dbg.Enable()
	c.MismatchSet(0)
}

// MismatchSet moves the mismatch target to pc, the one address allowed to
// execute without a fault, and returns the previous target.
func (c *Controller) MismatchSet(pc uint32) uint32 {
	c.claimBRP(mismatchBRP, &c.mismatch, "mismatch")
	old := c.mismatch.addr
	c.armBRP(mismatchBRP, &c.mismatch, mismatchBCR, pc)
	return old
}

func (c *Controller) MismatchStop() {
	c.stop(mismatchBRP, &c.mismatch, "mismatch")
}

func (c *Controller) MismatchArmed() bool {
	return c.mismatch.armed
}

// MatchSet arms (or moves) the match breakpoint at addr.
func (c *Controller) MatchSet(addr uint32) {
	c.claimBRP(matchBRP, &c.match, "match")
	c.dbg.Enable()
	c.armBRP(matchBRP, &c.match, matchBCR, addr)
}

// MatchGet returns the match target, or 0 when the unit is disabled.
func (c *Controller) MatchGet() uint32 {
	if !c.match.armed {
		return 0
	}
	return c.match.addr
}

func (c *Controller) MatchStop() {
	c.stop(matchBRP, &c.match, "match")
}

// WatchOn watches the single byte at addr for loads and stores.
func (c *Controller) WatchOn(addr uint32) {
	if c.watch.armed && c.watch.addr != addr {
		configErr("watch", "already watching %#x, cannot watch %#x", c.watch.addr, addr)
	}
	if !c.watch.armed && c.dbg.WCREnabled(watchWRP) {
		configErr("watch", "watchpoint pair %d is busy (wcr=%#x)", watchWRP, c.dbg.WCR(watchWRP))
	}
	c.dbg.Enable()
	c.dbg.SetWVR(watchWRP, addr&^3)
	c.dbg.SetWCR(watchWRP, watchWCR(addr))
	c.watch = unit{armed: true, addr: addr}
}

func (c *Controller) WatchOff(addr uint32) {
	if !c.watch.armed {
		configErr("watch", "stopped while not armed")
	}
	if c.watch.addr != addr {
		configErr("watch", "watching %#x, not %#x", c.watch.addr, addr)
	}
	c.dbg.DisableWCR(watchWRP)
	c.watch = unit{}
}

// WatchAddr returns the watched address and whether the watchpoint is armed.
func (c *Controller) WatchAddr() (uint32, bool) {
	return c.watch.addr, c.watch.armed
}

// CheckResume panics if resuming at pc would immediately hit the armed match
// breakpoint again.
func (c *Controller) CheckResume(pc uint32) {
	if c.match.armed && c.match.addr&^3 == pc&^3 {
		configErr("match", "resuming at %#x with the match breakpoint still armed there", pc)
	}
}

// Close disarms every unit and turns off monitor debug-mode.
func (c *Controller) Close() {
	if c.mismatch.armed {
		c.MismatchStop()
	}
	if c.match.armed {
		c.MatchStop()
	}
	if c.watch.armed {
		c.WatchOff(c.watch.addr)
	}
	c.dbg.Disable()
}

// The predicates below read the fault status registers and only mean
// something inside the trap they classify.

func (c *Controller) IsBreakpointFault() bool {
	return cp14.FaultStatus(c.dbg.IFSR()) == cp14.FaultDebug && c.dbg.MOE() == cp14.MOEBreakpoint
}

func (c *Controller) IsMatchFault(pc uint32) bool {
	return c.IsBreakpointFault() && c.match.armed && c.match.addr&^3 == pc&^3
}

func (c *Controller) IsMismatchFault(pc uint32) bool {
	return c.IsBreakpointFault() && c.mismatch.armed && c.mismatch.addr&^3 != pc&^3
}

func (c *Controller) IsWatchpointFault() bool {
	return cp14.FaultStatus(c.dbg.DFSR()) == cp14.FaultDebug && c.dbg.MOE() == cp14.MOEWatchpoint
}

func (c *Controller) IsLoadFault() bool {
	return c.dbg.DFSR()&cp14.DFSRWnR == 0
}

// WatchFaultPC is the address of the instruction that touched the watched
// byte.
func (c *Controller) WatchFaultPC() uint32 {
	return c.dbg.WFAR() - 8
}

func (c *Controller) WatchFaultAddr() uint32 {
	return c.dbg.FAR()
}

// Fault classifies the trap being handled. regs is the interrupted context;
// its pc is where execution continues. Anything that is not one of our armed
// units panics with a *FaultError.
func (c *Controller) Fault(abort Abort, regs *arm.RegBlock) FaultRecord {
	switch abort {
	case Prefetch:
		if !c.IsBreakpointFault() {
			c.faultErr(abort, c.dbg.IFSR(), c.dbg.IFAR(), "not a breakpoint")
		}
		pc := c.dbg.IFAR()
		rec := FaultRecord{Addr: pc, ResumePC: regs.PC()}
		switch {
		case c.IsMatchFault(pc):
			rec.Kind = Match
		case c.IsMismatchFault(pc):
			rec.Kind = Mismatch
		default:
			c.faultErr(abort, c.dbg.IFSR(), pc, "breakpoint matches no armed unit")
		}
		return rec
	case Data:
		if !c.IsWatchpointFault() {
			c.faultErr(abort, c.dbg.DFSR(), c.dbg.FAR(), "not a watchpoint")
		}
		addr := c.WatchFaultAddr()
		if !c.watch.armed || c.watch.addr&^3 != addr&^3 {
			c.faultErr(abort, c.dbg.DFSR(), addr, "watchpoint matches no armed unit")
		}
		rec := FaultRecord{Addr: addr, Kind: WatchStore, ResumePC: regs.PC()}
		if c.IsLoadFault() {
			rec.Kind = WatchLoad
		}
		return rec
	}
	panic(errors.Errorf("unknown abort %d", abort))
}
