package stepcorn

import (
	"fmt"

	"github.com/stepcorn/stepcorn/go/cpu/armv6"
	"github.com/stepcorn/stepcorn/go/models/cpu"
)

func (m *Machine) addTraceHooks() error {
	out := m.cfg.Output
	if m.cfg.TraceExec {
		_, err := m.HookAdd(cpu.HOOK_CODE, func(_ cpu.Cpu, addr, insn uint32) {
			fmt.Fprintf(out, "  0x%08x: %08x\n", addr, insn)
		}, 1, 0)
		if err != nil {
			return err
		}
	}
	if m.cfg.TraceMem {
		_, err := m.HookAdd(cpu.HOOK_MEM_READ|cpu.HOOK_MEM_WRITE, func(_ cpu.Cpu, access int, addr uint32, size int, val uint32) {
			rw := "R"
			if access == cpu.MEM_WRITE {
				rw = "W"
			}
			fmt.Fprintf(out, "%s 0x%08x [%d] = %#x\n", rw, addr, size, val)
		}, 1, 0)
		if err != nil {
			return err
		}
	}
	if m.cfg.TraceSys {
		_, err := m.HookAdd(cpu.HOOK_INTR, func(_ cpu.Cpu, intno uint32) {
			fmt.Fprintf(out, "+++ %s (mode %s)\n", armv6.Exception(intno), m.core.Mode())
		}, 1, 0)
		if err != nil {
			return err
		}
	}
	return nil
}

// printStatus prints the registers changed by the last step
func (m *Machine) printStatus() {
	regs := m.core.Save(m.core.Mode(), m.core.PC(), m.core.CPSR())
	if line := m.status.Line(&regs, m.cfg.Color); line != "" {
		fmt.Fprintln(m.cfg.Output, line)
	}
}
