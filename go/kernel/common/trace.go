package common

import (
	"fmt"
	"strings"
)

func (s Syscall) traceArg(arg interface{}) string {
	switch v := arg.(type) {
	case Char:
		return v.String()
	case Code:
		return fmt.Sprintf("%d", int32(v))
	case uint64, uint32:
		return fmt.Sprintf("0x%x", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (s Syscall) traceArgs(regs []uint64) string {
	if len(regs) < len(s.In) {
		return "?"
	}
	inRef, err := s.Kernel.Argjoy.Convert(s.In, false, regs[:len(s.In)])
	if err != nil {
		return err.Error()
	}
	ret := make([]string, len(inRef))
	for i, val := range inRef {
		ret[i] = s.traceArg(val.Interface())
	}
	return strings.Join(ret, ", ")
}

func (s Syscall) Trace(regs []uint64) string {
	return fmt.Sprintf("%s(%s)", s.Name, s.traceArgs(regs))
}

func (s Syscall) TraceRet(ret uint64) string {
	if len(s.Out) > 0 {
		return fmt.Sprintf(" = %s\n", s.traceArg(ret))
	}
	return "\n"
}
