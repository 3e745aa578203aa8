package armv6

import (
	"github.com/stepcorn/stepcorn/go/models/cpu"
)

const (
	// ARM1176JZF-S r0p7
	midrValue = 0x410fb767

	// fault status encodings (DFSR/IFSR [3:0])
	fsAlignment   = 0x1
	fsDebug       = 0x2
	fsTranslation = 0x5
	fsExternal    = 0x8
	fsPermission  = 0xd

	dfsrWnR = 1 << 11
)

type cp15 struct {
	ctrl uint32
	dfsr uint32
	ifsr uint32
	far  uint32
	ifar uint32
}

type memAbort struct {
	addr   uint32
	status uint32
	write  bool
}

type watchHit struct {
	addr  uint32
	write bool
}

func faultStatus(err error) uint32 {
	merr, ok := err.(*cpu.MemError)
	if !ok {
		return fsExternal
	}
	switch merr.Enum {
	case cpu.MEM_ALIGN:
		return fsAlignment
	case cpu.MEM_READ_UNMAPPED, cpu.MEM_WRITE_UNMAPPED, cpu.MEM_FETCH_UNMAPPED:
		return fsTranslation
	case cpu.MEM_READ_PROT, cpu.MEM_WRITE_PROT, cpu.MEM_FETCH_PROT:
		return fsPermission
	}
	return fsExternal
}

func (c *Core) cpRead(cp, opc1, crn, crm, opc2 int) (uint32, bool) {
	if opc1 != 0 {
		return 0, false
	}
	switch cp {
	case 14:
		if crn != 0 {
			return 0, false
		}
		return c.dbg.read(crm, opc2)
	case 15:
		switch {
		case crn == 0 && crm == 0 && opc2 == 0:
			return midrValue, true
		case crn == 1 && crm == 0 && opc2 == 0:
			return c.cp15.ctrl, true
		case crn == 5 && crm == 0 && opc2 == 0:
			return c.cp15.dfsr, true
		case crn == 5 && crm == 0 && opc2 == 1:
			return c.cp15.ifsr, true
		case crn == 6 && crm == 0 && opc2 == 0:
			return c.cp15.far, true
		case crn == 6 && crm == 0 && opc2 == 2:
			return c.cp15.ifar, true
		}
	}
	return 0, false
}

func (c *Core) cpWrite(cp, opc1, crn, crm, opc2 int, v uint32) bool {
	if opc1 != 0 {
		return false
	}
	switch cp {
	case 14:
		return crn == 0 && c.dbg.write(crm, opc2, v)
	case 15:
		switch {
		case crn == 1 && crm == 0 && opc2 == 0:
			c.cp15.ctrl = v
		case crn == 5 && crm == 0 && opc2 == 0:
			c.cp15.dfsr = v
		case crn == 5 && crm == 0 && opc2 == 1:
			c.cp15.ifsr = v
		case crn == 6 && crm == 0 && opc2 == 0:
			c.cp15.far = v
		case crn == 6 && crm == 0 && opc2 == 2:
			c.cp15.ifar = v
		case crn == 7 && crm == 5 && opc2 == 4:
			c.PrefetchFlush()
		case crn == 7:
			// cache maintenance and barriers: nothing to do without caches
		default:
			return false
		}
		return true
	}
	return false
}

// MRC reads a coprocessor register with kernel privilege. Registers that do
// not exist read as zero.
func (c *Core) MRC(cp, opc1, crn, crm, opc2 int) uint32 {
	v, _ := c.cpRead(cp, opc1, crn, crm, opc2)
	return v
}

// MCR writes a coprocessor register with kernel privilege. Debug register
// writes are not seen by the comparators until PrefetchFlush.
func (c *Core) MCR(cp, opc1, crn, crm, opc2 int, v uint32) {
	c.cpWrite(cp, opc1, crn, crm, opc2, v)
}

// PrefetchFlush is "mcr p15, 0, rX, c7, c5, 4".
func (c *Core) PrefetchFlush() {
	c.dbg.sync()
}
