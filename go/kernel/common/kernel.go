package common

import (
	"reflect"
	"strings"
	"unicode"

	"github.com/lunixbochs/argjoy"
)

type KernelBase struct {
	Syscalls map[uint32]Syscall
	Argjoy   argjoy.Argjoy
}

func (k *KernelBase) StepcornKernel() *KernelBase {
	return k
}

type Kernel interface {
	StepcornKernel() *KernelBase
}

func camelToSnakeCase(name string) string {
	var words []string
	last := 0
	for i, c := range name {
		if unicode.IsUpper(c) {
			if i > 0 {
				words = append(words, name[last:i])
			}
			last = i
		}
	}
	words = append(words, name[last:])
	return strings.ToLower(strings.Join(words, "_"))
}

// initKernel binds each exported method whose snake_case name appears in
// Names to that call number. Other methods are not reachable from r0.
func initKernel(kf Kernel) {
	k := kf.StepcornKernel()
	k.Syscalls = make(map[uint32]Syscall)
	nums := make(map[string]uint32, len(Names))
	for num, name := range Names {
		nums[name] = num
	}
	instance := reflect.ValueOf(kf)
	typ := instance.Type()
	for i := 0; i < typ.NumMethod(); i++ {
		method := typ.Method(i)
		name := camelToSnakeCase(method.Name)
		num, ok := nums[name]
		if !ok {
			continue
		}
		sys := Syscall{Num: num, Name: name, Kernel: k, Instance: instance, Method: method}
		for j := 1; j < method.Type.NumIn(); j++ {
			sys.In = append(sys.In, method.Type.In(j))
		}
		for j := 0; j < method.Type.NumOut(); j++ {
			sys.Out = append(sys.Out, method.Type.Out(j))
		}
		k.Syscalls[num] = sys
	}
	k.Argjoy.Register(k.commonArgCodec)
	k.Argjoy.Register(argjoy.IntToInt)
}

// Lookup finds a call by its snake_case name.
func Lookup(kf Kernel, name string) *Syscall {
	for num, n := range Names {
		if n == name {
			return LookupNum(kf, num)
		}
	}
	return nil
}

func LookupNum(kf Kernel, num uint32) *Syscall {
	k := kf.StepcornKernel()
	if k.Syscalls == nil {
		initKernel(kf)
	}
	if sys, ok := k.Syscalls[num]; ok {
		return &sys
	}
	return nil
}
