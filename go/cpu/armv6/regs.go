package armv6

import (
	"github.com/pkg/errors"

	"github.com/stepcorn/stepcorn/go/arch/arm"
)

// bank slot for sp/lr (and spsr) of the exception modes; fiq only has an spsr
// slot here since its r8-r14 live in Core.fiq
func bankIndex(m arm.Mode) int {
	switch m {
	case arm.SVC:
		return 0
	case arm.ABT:
		return 1
	case arm.UND:
		return 2
	case arm.IRQ:
		return 3
	case arm.FIQ:
		return 4
	}
	return -1
}

// regPtr resolves register i as seen from mode m.
func (c *Core) regPtr(i int, m arm.Mode) *uint32 {
	switch {
	case i < 8 || i == arm.RegPC:
		return &c.usr[i]
	case m == arm.FIQ:
		return &c.fiq[i-8]
	case i < arm.RegSP:
		return &c.usr[i]
	}
	if b := bankIndex(m); b >= 0 && b < 4 {
		return &c.bank[b][i-arm.RegSP]
	}
	return &c.usr[i]
}

// user and system mode have no spsr; writes there land in a scratch slot
func (c *Core) spsrPtr(m arm.Mode) *uint32 {
	if b := bankIndex(m); b >= 0 {
		return &c.spsr[b]
	}
	var scratch uint32
	return &scratch
}

func (c *Core) Mode() arm.Mode {
	return arm.ModeOf(c.cpsr)
}

func (c *Core) CPSR() uint32 {
	return c.cpsr
}

// SetCPSR is the privileged write of the whole status word. Writes with an
// invalid mode keep the current one.
func (c *Core) SetCPSR(v uint32) {
	if !arm.ModeOf(v).Valid() {
		v = arm.WithMode(v, c.Mode())
	}
	c.cpsr = v
}

func (c *Core) SPSR(m arm.Mode) uint32 {
	return *c.spsrPtr(m)
}

func (c *Core) SetSPSR(m arm.Mode, v uint32) {
	*c.spsrPtr(m) = v
}

// Reg reads register i of the current mode.
func (c *Core) Reg(i int) uint32 {
	return *c.regPtr(i, c.Mode())
}

func (c *Core) SetReg(i int, v uint32) {
	*c.regPtr(i, c.Mode()) = v
}

// RegIn reads register i as mode m would see it.
func (c *Core) RegIn(m arm.Mode, i int) uint32 {
	return *c.regPtr(i, m)
}

func (c *Core) SetRegIn(m arm.Mode, i int, v uint32) {
	*c.regPtr(i, m) = v
}

// BankedSPLR returns the stack pointer and link register of mode m
// regardless of the current mode.
func (c *Core) BankedSPLR(m arm.Mode) (sp, lr uint32) {
	return *c.regPtr(arm.RegSP, m), *c.regPtr(arm.RegLR, m)
}

func (c *Core) SetBankedSPLR(m arm.Mode, sp, lr uint32) {
	*c.regPtr(arm.RegSP, m) = sp
	*c.regPtr(arm.RegLR, m) = lr
}

func (c *Core) PC() uint32 { return c.usr[arm.RegPC] }

func (c *Core) SetPC(v uint32) { c.usr[arm.RegPC] = v }

// Save captures the context of mode m: its view of r0-r14 plus the given pc
// and status word.
func (c *Core) Save(m arm.Mode, pc, cpsr uint32) arm.RegBlock {
	var r arm.RegBlock
	for i := 0; i < arm.RegPC; i++ {
		r[i] = *c.regPtr(i, m)
	}
	r.SetPC(pc)
	r.SetCPSR(cpsr)
	return r
}

// Load installs a complete context, banked registers included, and leaves the
// core in the block's mode ready to fetch from its pc.
func (c *Core) Load(r *arm.RegBlock) error {
	if err := r.Validate(); err != nil {
		return errors.Wrap(err, "load context")
	}
	m := r.Mode()
	for i := 0; i < arm.RegPC; i++ {
		*c.regPtr(i, m) = r[i]
	}
	c.usr[arm.RegPC] = r.PC()
	c.cpsr = r.CPSR()
	return nil
}
