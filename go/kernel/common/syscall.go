package common

import (
	"reflect"

	"github.com/pkg/errors"
)

// call numbers, passed in r0
const (
	SysExit = 0
	SysPutc = 1
)

var Names = map[uint32]string{
	SysExit: "exit",
	SysPutc: "putc",
}

// Syscall is one entry of a kernel's call table: a kernel method bound to
// the call number that selects it.
type Syscall struct {
	Num      uint32
	Name     string
	Kernel   *KernelBase
	Instance reflect.Value
	Method   reflect.Method
	In       []reflect.Type
	Out      []reflect.Type
}

var uint64Type = reflect.TypeOf(uint64(0))

// Call converts the register arguments and invokes the method.
// Panics with a stack-carrying error when the arguments do not fit.
func (sys Syscall) Call(args []uint64) uint64 {
	if len(args) < len(sys.In) {
		panic(errors.Errorf("not enough arguments to %s: wanted %d, got %d", sys.Name, len(sys.In), len(args)))
	}
	converted, err := sys.Kernel.Argjoy.Convert(sys.In, false, args[:len(sys.In)])
	if err != nil {
		panic(errors.Wrapf(err, "calling %s (call %d)", sys.Name, sys.Num))
	}
	in := append([]reflect.Value{sys.Instance}, converted...)
	out := sys.Method.Func.Call(in)
	if len(out) > 0 && out[0].Type().ConvertibleTo(uint64Type) {
		return out[0].Convert(uint64Type).Uint()
	}
	return 0
}
