package stepcorn

import (
	"fmt"

	"github.com/stepcorn/stepcorn/go/arch/arm"
	"github.com/stepcorn/stepcorn/go/kernel/common"
)

// Kernel implements the syscalls traced code can make: r0 is the call number
// and r1 the first argument.
type Kernel struct {
	common.KernelBase
	m *Machine

	// caller of the call in progress
	regs *arm.RegBlock
}

func NewKernel(m *Machine) *Kernel {
	return &Kernel{m: m}
}

// Exit records the caller and resumes the scheduler.
func (k *Kernel) Exit(code common.Code) {
	k.m.exitRegs = *k.regs
	if !k.m.sched.Active() {
		k.m.Halt(k.regs, "exit(%d) with no scheduler to return to", code)
	}
	k.m.ResumeContinuation(&k.m.sched, k.regs)
}

// Putc waits for UART space and queues c.
func (k *Kernel) Putc(c common.Char) {
	k.m.uart.Put8(byte(c))
}

// handle is the default Syscall class handler.
func (k *Kernel) handle(m *Machine, regs *arm.RegBlock) {
	num := regs.R(0)
	sys := common.LookupNum(k, num)
	if sys == nil {
		m.Halt(regs, "illegal system call number: %d", num)
	}
	args := common.RegArgs(regs, len(sys.In))
	trace := m.cfg.TraceSys
	if trace {
		fmt.Fprint(m.cfg.Output, sys.Trace(args))
		// exit does not come back
		if len(sys.Out) == 0 {
			fmt.Fprint(m.cfg.Output, sys.TraceRet(0))
		}
	}
	k.regs = regs
	ret := sys.Call(args)
	if trace && len(sys.Out) > 0 {
		fmt.Fprint(m.cfg.Output, sys.TraceRet(ret))
	}
}
