package armv6

import (
	"math/bits"

	"github.com/stepcorn/stepcorn/go/arch/arm"
	"github.com/stepcorn/stepcorn/go/models/cpu"
)

// readReg is the instruction's view of a register: pc reads as the current
// instruction plus 8.
func (c *Core) readReg(i int) uint32 {
	if i == arm.RegPC {
		return c.cur + 8
	}
	return c.Reg(i)
}

// writeReg sends pc writes to the branch target instead of the register file.
func (c *Core) writeReg(i int, v uint32) {
	if i == arm.RegPC {
		if c.cpsr&arm.PsrT != 0 {
			c.next = v &^ 1
		} else {
			c.next = v &^ 3
		}
		return
	}
	c.SetReg(i, v)
}

func (c *Core) load(addr uint32, size int) (uint32, bool) {
	v, err := c.ReadUint(addr, size, cpu.PROT_READ)
	if err != nil {
		c.abort = &memAbort{addr: addr, status: faultStatus(err)}
		return 0, false
	}
	if c.watch == nil && c.dbg.watchpoint(addr, size, false, c.Mode()) {
		c.watch = &watchHit{addr: addr}
	}
	return v, true
}

func (c *Core) store(addr uint32, size int, v uint32) bool {
	if err := c.WriteUint(addr, size, cpu.PROT_WRITE, v); err != nil {
		c.abort = &memAbort{addr: addr, status: faultStatus(err), write: true}
		return false
	}
	if c.watch == nil && c.dbg.watchpoint(addr, size, true, c.Mode()) {
		c.watch = &watchHit{addr: addr, write: true}
	}
	return true
}

func (c *Core) exec(insn uint32) Exception {
	cond := insn >> 28
	if cond == 0xf {
		return c.execUncond(insn)
	}
	if !c.condPassed(cond) {
		return None
	}
	switch insn >> 25 & 7 {
	case 0:
		switch {
		case insn&0x0fc000f0 == 0x00000090:
			return c.multiply(insn)
		case insn&0x0f8000f0 == 0x00800090:
			return c.multiplyLong(insn)
		case insn&0x0e000090 == 0x00000090:
			if insn>>5&3 == 0 {
				// swp and the exclusives
				return Undefined
			}
			return c.halfword(insn)
		case insn&0x0fbf0fff == 0x010f0000:
			return c.mrs(insn)
		case insn&0x0fb0fff0 == 0x0120f000:
			return c.msr(insn, c.Reg(int(insn&0xf)))
		case insn&0x0ffffff0 == 0x012fff10:
			return c.bx(insn, false)
		case insn&0x0ffffff0 == 0x012fff30:
			return c.bx(insn, true)
		case insn&0x0fff0ff0 == 0x016f0f10:
			c.writeReg(int(insn>>12&0xf), uint32(bits.LeadingZeros32(c.readReg(int(insn&0xf)))))
			return None
		case insn&0x01900000 == 0x01000000:
			// compare opcodes without S are the misc space
			return Undefined
		}
		return c.dataProc(insn)
	case 1:
		switch {
		case insn&0x0fbff000 == 0x0320f000:
			// nop, yield, wfe, wfi, sev
			return None
		case insn&0x0fb0f000 == 0x0320f000:
			imm, _ := c.operand2(insn)
			return c.msr(insn, imm)
		case insn&0x01900000 == 0x01000000:
			return Undefined
		}
		return c.dataProc(insn)
	case 2:
		return c.transfer(insn)
	case 3:
		if insn&(1<<4) != 0 {
			return Undefined
		}
		return c.transfer(insn)
	case 4:
		return c.blockTransfer(insn)
	case 5:
		if insn&(1<<24) != 0 {
			c.writeReg(arm.RegLR, c.cur+4)
		}
		off := uint32(int32(insn<<8) >> 6)
		c.writeReg(arm.RegPC, c.cur+8+off)
		return None
	case 7:
		if insn&(1<<24) != 0 {
			return SWI
		}
		if insn&(1<<4) != 0 {
			return c.coproc(insn)
		}
	}
	return Undefined
}

func (c *Core) execUncond(insn uint32) Exception {
	switch {
	case insn&0xfff1fe20 == 0xf1000000:
		return c.cps(insn)
	case insn&0xfd70f000 == 0xf550f000:
		// pld
		return None
	}
	return Undefined
}

func (c *Core) cps(insn uint32) Exception {
	if !c.Mode().Privileged() {
		return None
	}
	cpsr := c.cpsr
	mask := insn & (arm.PsrI | arm.PsrF | 1<<8)
	switch insn >> 18 & 3 {
	case 2:
		cpsr &^= mask
	case 3:
		cpsr |= mask
	}
	if insn&(1<<17) != 0 {
		cpsr = arm.WithMode(cpsr, arm.Mode(insn&arm.ModeMask))
	}
	c.SetCPSR(cpsr)
	return None
}

func (c *Core) mrs(insn uint32) Exception {
	v := c.cpsr
	if insn&(1<<22) != 0 {
		if !c.Mode().HasSPSR() {
			return Undefined
		}
		v = c.SPSR(c.Mode())
	}
	c.writeReg(int(insn>>12&0xf), v)
	return None
}

func (c *Core) msr(insn, v uint32) Exception {
	var mask uint32
	for i := uint32(0); i < 4; i++ {
		if insn&(1<<(16+i)) != 0 {
			mask |= 0xff << (8 * i)
		}
	}
	if insn&(1<<22) != 0 {
		m := c.Mode()
		if !m.HasSPSR() {
			return Undefined
		}
		c.SetSPSR(m, c.SPSR(m)&^mask|v&mask)
		return None
	}
	if !c.Mode().Privileged() {
		// user code may only touch the flags
		mask &= 0xff000000
	}
	c.SetCPSR(c.cpsr&^mask | v&mask)
	return None
}

func (c *Core) bx(insn uint32, link bool) Exception {
	target := c.readReg(int(insn & 0xf))
	if link {
		c.writeReg(arm.RegLR, c.cur+4)
	}
	if target&1 != 0 {
		c.cpsr |= arm.PsrT
	}
	c.writeReg(arm.RegPC, target)
	return None
}

// single register transfer: ldr, str, ldrb, strb
func (c *Core) transfer(insn uint32) Exception {
	pre, up := insn&(1<<24) != 0, insn&(1<<23) != 0
	byt, wb, ld := insn&(1<<22) != 0, insn&(1<<21) != 0, insn&(1<<20) != 0
	rn, rd := int(insn>>16&0xf), int(insn>>12&0xf)

	var off uint32
	if insn&(1<<25) == 0 {
		off = insn & 0xfff
	} else {
		off, _ = c.shift(insn>>5&3, insn>>7&31, c.readReg(int(insn&0xf)), true)
	}
	base := c.readReg(rn)
	if !up {
		off = -off
	}
	addr := base
	if pre {
		addr += off
	}
	size := 4
	if byt {
		size = 1
	}

	var val uint32
	if ld {
		var ok bool
		if val, ok = c.load(addr, size); !ok {
			return None
		}
	} else {
		val = c.readReg(rd)
		if !c.store(addr, size, val) {
			return None
		}
	}
	if !pre {
		c.writeReg(rn, base+off)
	} else if wb {
		c.writeReg(rn, addr)
	}
	if ld {
		if rd == arm.RegPC && val&1 != 0 {
			c.cpsr |= arm.PsrT
		}
		c.writeReg(rd, val)
	}
	return None
}

// ldrh, strh, ldrsb, ldrsh
func (c *Core) halfword(insn uint32) Exception {
	pre, up := insn&(1<<24) != 0, insn&(1<<23) != 0
	immForm, wb, ld := insn&(1<<22) != 0, insn&(1<<21) != 0, insn&(1<<20) != 0
	rn, rd := int(insn>>16&0xf), int(insn>>12&0xf)
	sh := insn >> 5 & 3
	if !ld && sh != 1 {
		// ldrd/strd
		return Undefined
	}

	var off uint32
	if immForm {
		off = insn>>4&0xf0 | insn&0xf
	} else {
		off = c.readReg(int(insn & 0xf))
	}
	base := c.readReg(rn)
	if !up {
		off = -off
	}
	addr := base
	if pre {
		addr += off
	}

	var val uint32
	if ld {
		size := 2
		if sh == 2 {
			size = 1
		}
		v, ok := c.load(addr, size)
		if !ok {
			return None
		}
		switch sh {
		case 2:
			v = uint32(int32(int8(v)))
		case 3:
			v = uint32(int32(int16(v)))
		}
		val = v
	} else if !c.store(addr, 2, c.readReg(rd)&0xffff) {
		return None
	}
	if !pre {
		c.writeReg(rn, base+off)
	} else if wb {
		c.writeReg(rn, addr)
	}
	if ld {
		c.writeReg(rd, val)
	}
	return None
}

// ldm/stm, including the user-bank (^) and exception return forms
func (c *Core) blockTransfer(insn uint32) Exception {
	pre, up := insn&(1<<24) != 0, insn&(1<<23) != 0
	psr, wb, ld := insn&(1<<22) != 0, insn&(1<<21) != 0, insn&(1<<20) != 0
	rn := int(insn >> 16 & 0xf)
	list := insn & 0xffff
	if list == 0 {
		return Undefined
	}
	n := uint32(bits.OnesCount32(list))
	base := c.readReg(rn)

	addr := base
	switch {
	case up && pre:
		addr = base + 4
	case !up && pre:
		addr = base - 4*n
	case !up && !pre:
		addr = base - 4*n + 4
	}
	newBase := base + 4*n
	if !up {
		newBase = base - 4*n
	}

	excReturn := psr && ld && list&(1<<arm.RegPC) != 0
	view := c.Mode()
	if psr && !excReturn {
		view = arm.USR
	}
	if excReturn && !c.Mode().HasSPSR() {
		return Undefined
	}

	if !ld {
		for i := 0; i < 16; i++ {
			if list&(1<<uint(i)) == 0 {
				continue
			}
			v := c.readReg(i)
			if i != arm.RegPC {
				v = c.RegIn(view, i)
			}
			if !c.store(addr, 4, v) {
				return None
			}
			addr += 4
		}
		if wb {
			c.writeReg(rn, newBase)
		}
		return None
	}

	var vals [16]uint32
	for i := 0; i < 16; i++ {
		if list&(1<<uint(i)) == 0 {
			continue
		}
		v, ok := c.load(addr, 4)
		if !ok {
			return None
		}
		vals[i] = v
		addr += 4
	}
	if wb {
		c.writeReg(rn, newBase)
	}
	for i := 0; i < arm.RegPC; i++ {
		if list&(1<<uint(i)) != 0 {
			c.SetRegIn(view, i, vals[i])
		}
	}
	if list&(1<<arm.RegPC) != 0 {
		if excReturn {
			c.SetCPSR(c.SPSR(c.Mode()))
		} else if vals[arm.RegPC]&1 != 0 {
			c.cpsr |= arm.PsrT
		}
		c.writeReg(arm.RegPC, vals[arm.RegPC])
	}
	return None
}

// mcr/mrc; coprocessors are kernel only
func (c *Core) coproc(insn uint32) Exception {
	cp := int(insn >> 8 & 0xf)
	opc1, crn := int(insn>>21&7), int(insn>>16&0xf)
	rd, opc2, crm := int(insn>>12&0xf), int(insn>>5&7), int(insn&0xf)
	if !c.Mode().Privileged() {
		return Undefined
	}
	if insn&(1<<20) != 0 {
		v, ok := c.cpRead(cp, opc1, crn, crm, opc2)
		if !ok {
			return Undefined
		}
		if rd == arm.RegPC {
			c.cpsr = c.cpsr&^arm.PsrFlags | v&arm.PsrFlags
		} else {
			c.writeReg(rd, v)
		}
		return None
	}
	if !c.cpWrite(cp, opc1, crn, crm, opc2, c.readReg(rd)) {
		return Undefined
	}
	return None
}
