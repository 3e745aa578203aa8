package arm

import (
	"encoding/binary"
	"fmt"
)

// condition codes
const (
	EQ = iota
	NE
	CS
	CC
	MI
	PL
	VS
	VC
	HI
	LS
	GE
	LT
	GT
	LE
	AL
)

// data processing opcodes
const (
	opAND = iota
	opEOR
	opSUB
	opRSB
	opADD
	opADC
	opSBC
	opRSC
	opTST
	opTEQ
	opCMP
	opCMN
	opORR
	opMOV
	opBIC
	opMVN
)

const al = AL << 28

// EncodeImm finds the rotated 8-bit form of v.
func EncodeImm(v uint32) (uint32, bool) {
	for rot := uint32(0); rot < 32; rot += 2 {
		x := v<<rot | v>>((32-rot)&31)
		if x <= 0xff {
			return rot/2<<8 | x, true
		}
	}
	return 0, false
}

func mustImm(v uint32) uint32 {
	imm, ok := EncodeImm(v)
	if !ok {
		panic(fmt.Sprintf("%#x is not an ARM immediate", v))
	}
	return imm
}

func dpImm(op, s, rn, rd int, imm uint32) uint32 {
	return al | 1<<25 | uint32(op)<<21 | uint32(s)<<20 | uint32(rn)<<16 | uint32(rd)<<12 | mustImm(imm)
}

func dpReg(op, s, rn, rd, rm int) uint32 {
	return al | uint32(op)<<21 | uint32(s)<<20 | uint32(rn)<<16 | uint32(rd)<<12 | uint32(rm)
}

// Nop is "mov r0, r0", the canonical ARMv6 no-op.
func Nop() uint32 { return MovReg(0, 0) }

func MovImm(rd int, imm uint32) uint32      { return dpImm(opMOV, 0, 0, rd, imm) }
func MvnImm(rd int, imm uint32) uint32      { return dpImm(opMVN, 0, 0, rd, imm) }
func MovReg(rd, rm int) uint32              { return dpReg(opMOV, 0, 0, rd, rm) }
func AddImm(rd, rn int, imm uint32) uint32  { return dpImm(opADD, 0, rn, rd, imm) }
func SubImm(rd, rn int, imm uint32) uint32  { return dpImm(opSUB, 0, rn, rd, imm) }
func SubsImm(rd, rn int, imm uint32) uint32 { return dpImm(opSUB, 1, rn, rd, imm) }
func OrrImm(rd, rn int, imm uint32) uint32  { return dpImm(opORR, 0, rn, rd, imm) }
func BicImm(rd, rn int, imm uint32) uint32  { return dpImm(opBIC, 0, rn, rd, imm) }
func CmpImm(rn int, imm uint32) uint32      { return dpImm(opCMP, 1, rn, 0, imm) }
func TstImm(rn int, imm uint32) uint32      { return dpImm(opTST, 1, rn, 0, imm) }
func AddReg(rd, rn, rm int) uint32          { return dpReg(opADD, 0, rn, rd, rm) }
func SubReg(rd, rn, rm int) uint32          { return dpReg(opSUB, 0, rn, rd, rm) }

// MovsPCLR is the classic exception return: pc = lr, cpsr = spsr.
func MovsPCLR() uint32 { return dpReg(opMOV, 1, 0, RegPC, RegLR) }

// LoadImm materializes any 32-bit constant with a mov and up to three orrs.
func LoadImm(rd int, v uint32) []uint32 {
	if _, ok := EncodeImm(v); ok {
		return []uint32{MovImm(rd, v)}
	}
	if _, ok := EncodeImm(^v); ok {
		return []uint32{MvnImm(rd, ^v)}
	}
	var out []uint32
	for shift := uint(0); shift < 32; shift += 8 {
		b := v & (0xff << shift)
		if b == 0 {
			continue
		}
		if out == nil {
			out = append(out, MovImm(rd, b))
		} else {
			out = append(out, OrrImm(rd, rd, b))
		}
	}
	if out == nil {
		out = append(out, MovImm(rd, 0))
	}
	return out
}

func Mul(rd, rm, rs int) uint32 {
	return al | uint32(rd)<<16 | uint32(rs)<<8 | 0x90 | uint32(rm)
}

func memImm(load, byt bool, rd, rn int, off int32) uint32 {
	insn := al | 1<<26 | 1<<24 | uint32(rn)<<16 | uint32(rd)<<12
	if off >= 0 {
		insn |= 1<<23 | uint32(off)&0xfff
	} else {
		insn |= uint32(-off) & 0xfff
	}
	if byt {
		insn |= 1 << 22
	}
	if load {
		insn |= 1 << 20
	}
	return insn
}

func Ldr(rd, rn int, off int32) uint32  { return memImm(true, false, rd, rn, off) }
func Str(rd, rn int, off int32) uint32  { return memImm(false, false, rd, rn, off) }
func Ldrb(rd, rn int, off int32) uint32 { return memImm(true, true, rd, rn, off) }
func Strb(rd, rn int, off int32) uint32 { return memImm(false, true, rd, rn, off) }

func halfImm(load bool, sh uint32, rd, rn int, off int32) uint32 {
	insn := al | 1<<24 | 1<<22 | uint32(rn)<<16 | uint32(rd)<<12 | 1<<7 | sh<<5 | 1<<4
	u := uint32(off)
	if off >= 0 {
		insn |= 1 << 23
	} else {
		u = uint32(-off)
	}
	insn |= (u&0xf0)<<4 | u&0xf
	if load {
		insn |= 1 << 20
	}
	return insn
}

func Ldrh(rd, rn int, off int32) uint32  { return halfImm(true, 1, rd, rn, off) }
func Strh(rd, rn int, off int32) uint32  { return halfImm(false, 1, rd, rn, off) }
func Ldrsb(rd, rn int, off int32) uint32 { return halfImm(true, 2, rd, rn, off) }
func Ldrsh(rd, rn int, off int32) uint32 { return halfImm(true, 3, rd, rn, off) }

// Push is "stmdb sp!, {regs}".
func Push(regs ...int) uint32 { return 0xe92d0000 | regList(regs) }

// Pop is "ldmia sp!, {regs}".
func Pop(regs ...int) uint32 { return 0xe8bd0000 | regList(regs) }

func regList(regs []int) uint32 {
	var list uint32
	for _, r := range regs {
		list |= 1 << uint(r)
	}
	return list
}

func branch(cond uint32, link bool, from, to uint32) uint32 {
	insn := cond<<28 | 0x0a000000 | (to-from-8)>>2&0xffffff
	if link {
		insn |= 1 << 24
	}
	return insn
}

func B(from, to uint32) uint32  { return branch(AL, false, from, to) }
func Bl(from, to uint32) uint32 { return branch(AL, true, from, to) }

// BCond is a conditional branch; cond is one of EQ..AL.
func BCond(cond int, from, to uint32) uint32 { return branch(uint32(cond), false, from, to) }

func Bx(rm int) uint32 { return 0xe12fff10 | uint32(rm) }
func BxLR() uint32     { return Bx(RegLR) }

func Swi(imm uint32) uint32 { return 0xef000000 | imm&0xffffff }

// Udf is permanently undefined.
func Udf(imm uint32) uint32 { return 0xe7f000f0 | imm>>4&0xfff<<8 | imm&0xf }

func Mcr(cp, opc1, rd, crn, crm, opc2 int) uint32 {
	return al | 0x0e000010 | uint32(opc1)<<21 | uint32(crn)<<16 | uint32(rd)<<12 |
		uint32(cp)<<8 | uint32(opc2)<<5 | uint32(crm)
}

func Mrc(cp, opc1, rd, crn, crm, opc2 int) uint32 {
	return Mcr(cp, opc1, rd, crn, crm, opc2) | 1<<20
}

func Mrs(rd int) uint32     { return 0xe10f0000 | uint32(rd)<<12 }
func MrsSPSR(rd int) uint32 { return 0xe14f0000 | uint32(rd)<<12 }

// MsrCPSR writes rm to the cpsr fields selected by mask (c=1 x=2 s=4 f=8).
func MsrCPSR(mask, rm int) uint32 { return 0xe120f000 | uint32(mask&0xf)<<16 | uint32(rm) }

// Cps switches to mode m; privileged only.
func Cps(m Mode) uint32 { return 0xf1020000 | uint32(m) }

func CpsidI() uint32 { return 0xf10c0080 }
func CpsieI() uint32 { return 0xf1080080 }

// Assemble flattens instruction words into a little-endian image.
func Assemble(words ...interface{}) []byte {
	var out []byte
	var put func(w interface{})
	put = func(w interface{}) {
		switch v := w.(type) {
		case uint32:
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], v)
			out = append(out, b[:]...)
		case []uint32:
			for _, x := range v {
				put(x)
			}
		default:
			panic(fmt.Sprintf("cannot assemble %T", w))
		}
	}
	for _, w := range words {
		put(w)
	}
	return out
}
