package common

import (
	"github.com/stepcorn/stepcorn/go/arch/arm"
)

// RegArgs returns the first n call arguments, which start at r1.
func RegArgs(regs *arm.RegBlock, n int) []uint64 {
	if n > 3 {
		n = 3
	}
	ret := make([]uint64, n)
	for i := range ret {
		ret[i] = uint64(regs.R(i + 1))
	}
	return ret
}
