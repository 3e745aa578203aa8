package arm

import (
	"github.com/stepcorn/stepcorn/go/models"
)

var Arch = &models.Arch{
	Name: "arm",
	Bits: 32,
	PC:   RegPC,
	SP:   RegSP,
	Regs: regNames(),
}

func regNames() map[int]string {
	m := make(map[int]string, NumRegs)
	for i := 0; i < NumRegs; i++ {
		m[i] = RegName(i)
	}
	return m
}
