package armv6

import (
	"math/bits"

	"github.com/stepcorn/stepcorn/go/arch/arm"
)

func (c *Core) flag(f uint32) bool {
	return c.cpsr&f != 0
}

func (c *Core) setFlag(f uint32, on bool) {
	if on {
		c.cpsr |= f
	} else {
		c.cpsr &^= f
	}
}

func (c *Core) setNZ(v uint32) {
	c.setFlag(arm.PsrN, v>>31 != 0)
	c.setFlag(arm.PsrZ, v == 0)
}

func (c *Core) condPassed(cond uint32) bool {
	n, z, cf, v := c.flag(arm.PsrN), c.flag(arm.PsrZ), c.flag(arm.PsrC), c.flag(arm.PsrV)
	switch cond {
	case arm.EQ:
		return z
	case arm.NE:
		return !z
	case arm.CS:
		return cf
	case arm.CC:
		return !cf
	case arm.MI:
		return n
	case arm.PL:
		return !n
	case arm.VS:
		return v
	case arm.VC:
		return !v
	case arm.HI:
		return cf && !z
	case arm.LS:
		return !cf || z
	case arm.GE:
		return n == v
	case arm.LT:
		return n != v
	case arm.GT:
		return !z && n == v
	case arm.LE:
		return z || n != v
	case arm.AL:
		return true
	}
	return false
}

func addWithCarry(a, b, cin uint32) (res uint32, carry, overflow bool) {
	sum := uint64(a) + uint64(b) + uint64(cin)
	res = uint32(sum)
	carry = sum>>32 != 0
	overflow = (a^res)&(b^res)&(1<<31) != 0
	return
}

func bit(v uint32, n uint32) bool {
	return v>>n&1 != 0
}

// shift applies one of the four barrel shifter operations. imm selects the
// immediate-amount encoding, where an amount of 0 means LSR/ASR #32 and RRX.
func (c *Core) shift(typ, amount, v uint32, imm bool) (uint32, bool) {
	carry := c.flag(arm.PsrC)
	if imm {
		switch {
		case amount == 0 && typ == 0:
			return v, carry
		case amount == 0 && typ == 3:
			var in uint32
			if carry {
				in = 1 << 31
			}
			return in | v>>1, v&1 != 0
		case amount == 0:
			amount = 32
		}
	} else if amount == 0 {
		return v, carry
	}
	switch typ {
	case 0: // lsl
		switch {
		case amount < 32:
			return v << amount, bit(v, 32-amount)
		case amount == 32:
			return 0, v&1 != 0
		}
		return 0, false
	case 1: // lsr
		switch {
		case amount < 32:
			return v >> amount, bit(v, amount-1)
		case amount == 32:
			return 0, v>>31 != 0
		}
		return 0, false
	case 2: // asr
		if amount >= 32 {
			if v>>31 != 0 {
				return 0xffffffff, true
			}
			return 0, false
		}
		return uint32(int32(v) >> amount), bit(v, amount-1)
	default: // ror
		amount &= 31
		if amount == 0 {
			return v, v>>31 != 0
		}
		r := bits.RotateLeft32(v, -int(amount))
		return r, r>>31 != 0
	}
}

// operand2 decodes the shifter operand of a data processing instruction.
func (c *Core) operand2(insn uint32) (uint32, bool) {
	if insn&(1<<25) != 0 {
		rot := insn >> 8 & 0xf * 2
		v := bits.RotateLeft32(insn&0xff, -int(rot))
		if rot == 0 {
			return v, c.flag(arm.PsrC)
		}
		return v, v>>31 != 0
	}
	rm := c.readReg(int(insn & 0xf))
	typ := insn >> 5 & 3
	if insn&(1<<4) == 0 {
		return c.shift(typ, insn>>7&31, rm, true)
	}
	// register-specified shift: pc reads one word further along
	if insn&0xf == arm.RegPC {
		rm += 4
	}
	rs := c.readReg(int(insn>>8&0xf)) & 0xff
	return c.shift(typ, rs, rm, false)
}

func (c *Core) dataProc(insn uint32) Exception {
	op := insn >> 21 & 0xf
	s := insn&(1<<20) != 0
	rn := c.readReg(int(insn >> 16 & 0xf))
	rd := int(insn >> 12 & 0xf)
	if insn&(1<<25) == 0 && insn&(1<<4) != 0 && insn>>16&0xf == arm.RegPC {
		rn += 4
	}
	b, shc := c.operand2(insn)

	var res uint32
	carry, overflow := shc, c.flag(arm.PsrV)
	arith := false
	cin := uint32(0)
	if c.flag(arm.PsrC) {
		cin = 1
	}
	switch op {
	case 0x0, 0x8: // and, tst
		res = rn & b
	case 0x1, 0x9: // eor, teq
		res = rn ^ b
	case 0x2, 0xa: // sub, cmp
		res, carry, overflow = addWithCarry(rn, ^b, 1)
		arith = true
	case 0x3: // rsb
		res, carry, overflow = addWithCarry(b, ^rn, 1)
		arith = true
	case 0x4, 0xb: // add, cmn
		res, carry, overflow = addWithCarry(rn, b, 0)
		arith = true
	case 0x5: // adc
		res, carry, overflow = addWithCarry(rn, b, cin)
		arith = true
	case 0x6: // sbc
		res, carry, overflow = addWithCarry(rn, ^b, cin)
		arith = true
	case 0x7: // rsc
		res, carry, overflow = addWithCarry(b, ^rn, cin)
		arith = true
	case 0xc: // orr
		res = rn | b
	case 0xd: // mov
		res = b
	case 0xe: // bic
		res = rn &^ b
	case 0xf: // mvn
		res = ^b
	}
	test := op >= 0x8 && op <= 0xb
	if s && rd == arm.RegPC && !test {
		// exception return: the mode's spsr becomes the cpsr
		if !c.Mode().HasSPSR() {
			return Undefined
		}
		c.SetCPSR(c.SPSR(c.Mode()))
		c.writeReg(rd, res)
		return None
	}
	if s {
		c.setNZ(res)
		c.setFlag(arm.PsrC, carry)
		if arith {
			c.setFlag(arm.PsrV, overflow)
		}
	}
	if !test {
		c.writeReg(rd, res)
	}
	return None
}

func (c *Core) multiply(insn uint32) Exception {
	rd := int(insn >> 16 & 0xf)
	rn := c.readReg(int(insn >> 12 & 0xf))
	rs := c.readReg(int(insn >> 8 & 0xf))
	rm := c.readReg(int(insn & 0xf))
	res := rm * rs
	if insn&(1<<21) != 0 {
		res += rn
	}
	c.writeReg(rd, res)
	if insn&(1<<20) != 0 {
		c.setNZ(res)
	}
	return None
}

func (c *Core) multiplyLong(insn uint32) Exception {
	hi, lo := int(insn>>16&0xf), int(insn>>12&0xf)
	rs := c.readReg(int(insn >> 8 & 0xf))
	rm := c.readReg(int(insn & 0xf))
	var res uint64
	if insn&(1<<22) != 0 {
		res = uint64(int64(int32(rm)) * int64(int32(rs)))
	} else {
		res = uint64(rm) * uint64(rs)
	}
	if insn&(1<<21) != 0 {
		res += uint64(c.readReg(hi))<<32 | uint64(c.readReg(lo))
	}
	c.writeReg(lo, uint32(res))
	c.writeReg(hi, uint32(res>>32))
	if insn&(1<<20) != 0 {
		c.setFlag(arm.PsrN, res>>63 != 0)
		c.setFlag(arm.PsrZ, res == 0)
	}
	return None
}
