package common

import (
	"github.com/lunixbochs/argjoy"
)

func (k *KernelBase) commonArgCodec(arg interface{}, vals []interface{}) error {
	if reg, ok := vals[0].(uint64); ok {
		switch v := arg.(type) {
		case *Char:
			*v = Char(reg)
		case *Code:
			*v = Code(int32(uint32(reg)))
		default:
			return argjoy.NoMatch
		}
		return nil
	}
	return argjoy.NoMatch
}
