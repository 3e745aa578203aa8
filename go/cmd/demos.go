package cmd

import (
	"github.com/stepcorn/stepcorn/go/arch/arm"
	"github.com/stepcorn/stepcorn/go/kernel/common"
)

func init() {
	// one instruction, then exit with r0 as the call number
	Demos["nop"] = func(base uint32) []uint32 {
		return []uint32{arm.Nop(), arm.Swi(0)}
	}
	// loops five times and returns the count
	Demos["count"] = func(base uint32) []uint32 {
		return []uint32{
			arm.MovImm(1, 0),
			arm.AddImm(1, 1, 1),
			arm.CmpImm(1, 5),
			arm.BCond(arm.NE, base+12, base+4),
			arm.MovReg(0, 1),
			arm.BxLR(),
		}
	}
	// prints through the putc call while being stepped
	Demos["hello"] = func(base uint32) []uint32 {
		var code []uint32
		for _, c := range []byte("hello\n") {
			code = append(code,
				arm.MovImm(0, common.SysPutc),
				arm.MovImm(1, uint32(c)),
				arm.Swi(0),
			)
		}
		return append(code, arm.MovImm(0, 0), arm.BxLR())
	}
}
