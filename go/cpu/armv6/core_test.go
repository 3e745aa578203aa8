package armv6

import (
	"testing"

	"github.com/stepcorn/stepcorn/go/arch/arm"
	"github.com/stepcorn/stepcorn/go/models/cpu"
)

const (
	codeBase = 0x8000
	dataBase = 0x10000
)

func newCore(t *testing.T, code ...interface{}) *Core {
	c := New()
	if err := c.MemMap(codeBase, 0x1000, cpu.PROT_READ|cpu.PROT_EXEC, "code"); err != nil {
		t.Fatal(err)
	}
	if err := c.MemMap(dataBase, 0x1000, cpu.PROT_READ|cpu.PROT_WRITE, "data"); err != nil {
		t.Fatal(err)
	}
	if err := c.MemWrite(codeBase, arm.Assemble(code...)); err != nil {
		t.Fatal(err)
	}
	c.SetPC(codeBase)
	return c
}

func step(t *testing.T, c *Core, n int) {
	for i := 0; i < n; i++ {
		pc := c.PC()
		if exc := c.Step(); exc != None {
			t.Fatalf("unexpected %s at %#x", exc, pc)
		}
	}
}

func runTo(t *testing.T, c *Core, end uint32) {
	for i := 0; c.PC() != end; i++ {
		if i > 1000 {
			t.Fatalf("never reached %#x", end)
		}
		step(t, c, 1)
	}
}

func enterUser(t *testing.T, c *Core, pc, sp, lr uint32) {
	regs := arm.NewUserRegs(pc, 0, sp, lr, c.CPSR())
	if err := c.Load(&regs); err != nil {
		t.Fatal(err)
	}
}

func TestDataProcessing(t *testing.T) {
	c := newCore(t,
		arm.MovImm(0, 5),
		arm.AddImm(1, 0, 3),
		arm.SubsImm(2, 1, 8),
		arm.MvnImm(3, 0),
		arm.LoadImm(4, 0x7fffffff),
		uint32(0xe2945001), // adds r5, r4, #1
		uint32(0xe1a06100), // mov r6, r0, lsl #2
	)
	step(t, c, 7)
	want := []uint32{5, 8, 0, 0xffffffff, 0x7fffffff, 0x80000000, 20}
	for i, v := range want {
		if got := c.Reg(i); got != v {
			t.Errorf("r%d = %#x, want %#x", i, got, v)
		}
	}
	if f := c.CPSR() & arm.PsrFlags; f != arm.PsrN|arm.PsrV {
		t.Errorf("flags %#x, want N|V", f)
	}
}

func TestConditionalLoop(t *testing.T) {
	c := newCore(t,
		arm.MovImm(1, 3),
		arm.SubsImm(1, 1, 1),
		arm.BCond(arm.NE, codeBase+8, codeBase+4),
		arm.Nop(),
	)
	n := 0
	for c.PC() != codeBase+12 {
		step(t, c, 1)
		n++
	}
	if n != 7 {
		t.Fatalf("loop took %d steps, want 7", n)
	}
	if c.Reg(1) != 0 || c.CPSR()&(arm.PsrZ|arm.PsrC) != arm.PsrZ|arm.PsrC {
		t.Fatalf("r1=%d cpsr=%#x", c.Reg(1), c.CPSR())
	}
}

func TestLoadStore(t *testing.T) {
	code := []interface{}{
		arm.LoadImm(1, dataBase),
		arm.MovImm(0, 0xab),
		arm.Strb(0, 1, 1),
		arm.Ldr(2, 1, 0),
		arm.LoadImm(3, 0x8001),
		arm.Strh(3, 1, 4),
		arm.Ldrsh(4, 1, 4),
		arm.Ldrh(5, 1, 4),
		arm.Ldrsb(6, 1, 4),
		arm.Nop(),
	}
	c := newCore(t, code...)
	end := codeBase + uint32(len(arm.Assemble(code...))) - 4
	runTo(t, c, end)
	want := map[int]uint32{2: 0xab00, 4: 0xffff8001, 5: 0x8001, 6: 1}
	for r, v := range want {
		if got := c.Reg(r); got != v {
			t.Errorf("r%d = %#x, want %#x", r, got, v)
		}
	}
}

func TestPushPop(t *testing.T) {
	c := newCore(t, arm.Push(4, arm.RegLR), arm.Pop(5, 6))
	c.SetReg(arm.RegSP, dataBase+0x100)
	c.SetReg(4, 0x44)
	c.SetReg(arm.RegLR, 0x55)
	step(t, c, 1)
	if c.Reg(arm.RegSP) != dataBase+0xf8 {
		t.Fatalf("sp after push %#x", c.Reg(arm.RegSP))
	}
	p, _ := c.MemRead(dataBase+0xf8, 8)
	if p[0] != 0x44 || p[4] != 0x55 {
		t.Fatalf("pushed %x", p)
	}
	step(t, c, 1)
	if c.Reg(5) != 0x44 || c.Reg(6) != 0x55 || c.Reg(arm.RegSP) != dataBase+0x100 {
		t.Fatalf("pop: r5=%#x r6=%#x sp=%#x", c.Reg(5), c.Reg(6), c.Reg(arm.RegSP))
	}
}

func TestSWIBanking(t *testing.T) {
	c := newCore(t, arm.Nop(), arm.Swi(0))
	c.SetBankedSPLR(arm.SVC, 0x9999, 0)
	enterUser(t, c, codeBase, 0x111, 0x222)
	step(t, c, 1)
	if exc := c.Step(); exc != SWI {
		t.Fatalf("got %s, want swi", exc)
	}
	if c.Mode() != arm.SVC || c.CPSR()&arm.PsrI == 0 {
		t.Fatalf("cpsr %#x after swi", c.CPSR())
	}
	if c.Reg(arm.RegLR) != codeBase+8 || c.Reg(arm.RegSP) != 0x9999 {
		t.Fatalf("svc sp/lr = %#x/%#x", c.Reg(arm.RegSP), c.Reg(arm.RegLR))
	}
	if arm.ModeOf(c.SPSR(arm.SVC)) != arm.USR {
		t.Fatalf("spsr_svc %#x", c.SPSR(arm.SVC))
	}
	if sp, lr := c.BankedSPLR(arm.USR); sp != 0x111 || lr != 0x222 {
		t.Fatalf("user sp/lr clobbered: %#x/%#x", sp, lr)
	}
	if c.PC() != SWI.Vector() {
		t.Fatalf("pc %#x, want vector %#x", c.PC(), SWI.Vector())
	}
	saved := c.Save(arm.USR, c.Reg(arm.RegLR), c.SPSR(arm.SVC))
	if saved.PC() != codeBase+8 || saved.SP() != 0x111 || saved.LR() != 0x222 || saved.Mode() != arm.USR {
		t.Fatalf("bad saved context:\n%s", &saved)
	}
}

func TestFIQBank(t *testing.T) {
	c := New()
	c.SetReg(8, 1)
	c.SetRegIn(arm.FIQ, 8, 2)
	c.SetRegIn(arm.IRQ, 8, 3)
	if c.RegIn(arm.USR, 8) != 3 || c.RegIn(arm.FIQ, 8) != 2 {
		t.Fatal("r8 banking broken")
	}
	c.SetBankedSPLR(arm.FIQ, 0xf1, 0xf2)
	c.SetBankedSPLR(arm.IRQ, 0x11, 0x12)
	c.SetBankedSPLR(arm.SYS, 0x51, 0x52)
	if sp, lr := c.BankedSPLR(arm.USR); sp != 0x51 || lr != 0x52 {
		t.Fatal("sys and usr must share sp/lr")
	}
	if sp, _ := c.BankedSPLR(arm.FIQ); sp != 0xf1 {
		t.Fatal("fiq sp not banked")
	}
	if sp, _ := c.BankedSPLR(arm.IRQ); sp != 0x11 {
		t.Fatal("irq sp not banked")
	}
}

func TestExceptionReturn(t *testing.T) {
	c := newCore(t, arm.MovsPCLR())
	c.SetSPSR(arm.SVC, uint32(arm.USR)|arm.PsrZ)
	c.SetReg(arm.RegLR, codeBase+0x10)
	step(t, c, 1)
	if c.Mode() != arm.USR || c.CPSR()&arm.PsrZ == 0 || c.PC() != codeBase+0x10 {
		t.Fatalf("cpsr %#x pc %#x", c.CPSR(), c.PC())
	}
	// user mode has no spsr to return from
	c.SetPC(codeBase)
	if exc := c.Step(); exc != Undefined {
		t.Fatalf("got %s, want undefined", exc)
	}
}

func TestUndefined(t *testing.T) {
	c := newCore(t, arm.Nop(), uint32(0xe7f000f0))
	step(t, c, 1)
	if exc := c.Step(); exc != Undefined {
		t.Fatalf("got %s", exc)
	}
	if c.Mode() != arm.UND || c.Reg(arm.RegLR) != codeBase+8 {
		t.Fatalf("mode %s lr %#x", c.Mode(), c.Reg(arm.RegLR))
	}
}

func TestDataAbort(t *testing.T) {
	c := newCore(t, arm.LoadImm(1, 0x50000), arm.MovImm(0, 7), arm.Ldr(0, 1, 0))
	step(t, c, 2)
	if exc := c.Step(); exc != DataAbort {
		t.Fatalf("got %s", exc)
	}
	if c.Reg(0) != 7 {
		t.Fatal("faulting load wrote its destination")
	}
	if c.MRC(15, 0, 5, 0, 0)&0xf != fsTranslation || c.MRC(15, 0, 6, 0, 0) != 0x50000 {
		t.Fatalf("dfsr %#x far %#x", c.MRC(15, 0, 5, 0, 0), c.MRC(15, 0, 6, 0, 0))
	}
	if c.Mode() != arm.ABT || c.Reg(arm.RegLR) != codeBase+8+8 {
		t.Fatalf("mode %s lr_abt %#x", c.Mode(), c.Reg(arm.RegLR))
	}
}

func TestPrefetchAbort(t *testing.T) {
	c := New()
	c.SetPC(0x5000)
	if exc := c.Step(); exc != PrefetchAbort {
		t.Fatalf("got %s", exc)
	}
	if c.MRC(15, 0, 5, 0, 1) != fsTranslation || c.MRC(15, 0, 6, 0, 2) != 0x5000 {
		t.Fatal("bad ifsr/ifar")
	}
}

func armDebug(c *Core) {
	c.MCR(14, 0, 0, 1, 0, dscrMonitor)
}

func TestBreakpointNeedsFlush(t *testing.T) {
	c := newCore(t, arm.Nop(), arm.Nop(), arm.Nop(), arm.Nop())
	armDebug(c)
	c.MCR(14, 0, 0, 0, 4, codeBase+4)
	c.MCR(14, 0, 0, 0, 5, 0xf<<5|3<<1|1)
	step(t, c, 4)

	c.SetPC(codeBase)
	c.PrefetchFlush()
	step(t, c, 1)
	if exc := c.Step(); exc != PrefetchAbort {
		t.Fatalf("got %s, want prefetch abort", exc)
	}
	if c.MRC(15, 0, 5, 0, 1) != fsDebug || c.MRC(15, 0, 6, 0, 2) != codeBase+4 {
		t.Fatal("bad ifsr/ifar for debug event")
	}
	if moe := c.MRC(14, 0, 0, 1, 0) >> 2 & 0xf; moe != moeBreakpoint {
		t.Fatalf("method of entry %d", moe)
	}
	if c.Reg(arm.RegLR) != codeBase+8 {
		t.Fatalf("lr_abt %#x", c.Reg(arm.RegLR))
	}
}

func TestDebugNeedsMonitorMode(t *testing.T) {
	c := newCore(t, arm.Nop(), arm.Nop())
	c.MCR(14, 0, 0, 0, 4, codeBase)
	c.MCR(14, 0, 0, 0, 5, 0xf<<5|3<<1|1)
	c.PrefetchFlush()
	step(t, c, 1)
	c.SetPC(codeBase)
	c.MCR(14, 0, 0, 1, 0, dscrMonitor|dscrHalting)
	step(t, c, 1)
}

func TestMismatchUserOnly(t *testing.T) {
	c := newCore(t, arm.Nop(), arm.Nop(), arm.Nop())
	armDebug(c)
	c.MCR(14, 0, 0, 0, 4, codeBase)
	c.MCR(14, 0, 0, 0, 5, 2<<21|0xf<<5|3<<1|1)
	c.PrefetchFlush()
	step(t, c, 2)

	enterUser(t, c, codeBase, 0, 0)
	step(t, c, 1)
	if exc := c.Step(); exc != PrefetchAbort || c.MRC(15, 0, 6, 0, 2) != codeBase+4 {
		t.Fatalf("got %s at %#x", exc, c.MRC(15, 0, 6, 0, 2))
	}
}

func TestWatchpointAfterAccess(t *testing.T) {
	c := newCore(t,
		arm.LoadImm(1, dataBase),
		arm.MovImm(0, 0x5a),
		arm.Strb(0, 1, 1),
		arm.Strb(0, 1, 2),
		arm.Ldrb(2, 1, 2),
	)
	armDebug(c)
	c.MCR(14, 0, 0, 0, 6, dataBase)
	// byte lane 2, stores only, any mode
	c.MCR(14, 0, 0, 0, 7, 1<<2<<5|2<<3|3<<1|1)
	c.PrefetchFlush()
	step(t, c, 3)
	if exc := c.Step(); exc != DataAbort {
		t.Fatalf("got %s, want data abort", exc)
	}
	if p, _ := c.MemRead(dataBase+2, 1); p[0] != 0x5a {
		t.Fatal("watched store did not complete")
	}
	if dfsr := c.MRC(15, 0, 5, 0, 0); dfsr != dfsrWnR|fsDebug {
		t.Fatalf("dfsr %#x", dfsr)
	}
	if far := c.MRC(15, 0, 6, 0, 0); far != dataBase+2 {
		t.Fatalf("far %#x", far)
	}
	if wfar := c.MRC(14, 0, 0, 6, 0); wfar != codeBase+12+8 {
		t.Fatalf("wfar %#x", wfar)
	}
	if c.Reg(arm.RegLR) != codeBase+16+8 {
		t.Fatalf("lr_abt %#x", c.Reg(arm.RegLR))
	}
	if moe := c.MRC(14, 0, 0, 1, 0) >> 2 & 0xf; moe != moeWatchpoint {
		t.Fatalf("method of entry %d", moe)
	}

	// loads are not selected
	c.SetCPSR(uint32(arm.SVC))
	c.SetPC(codeBase + 16)
	step(t, c, 1)
	if c.Reg(2) != 0x5a {
		t.Fatalf("r2 = %#x", c.Reg(2))
	}
}

func TestIRQ(t *testing.T) {
	c := newCore(t, arm.Nop(), arm.Nop())
	c.SetCPSR(uint32(arm.SVC))
	c.SetIRQ(true)
	if exc := c.Step(); exc != IRQ {
		t.Fatalf("got %s", exc)
	}
	if c.Mode() != arm.IRQ || c.Reg(arm.RegLR) != codeBase+4 || arm.ModeOf(c.SPSR(arm.IRQ)) != arm.SVC {
		t.Fatalf("mode %s lr %#x", c.Mode(), c.Reg(arm.RegLR))
	}
	// masked now
	c.SetPC(codeBase)
	step(t, c, 1)
}

func TestUserCoprocessor(t *testing.T) {
	c := newCore(t, arm.Mrc(14, 0, 0, 0, 0, 0))
	enterUser(t, c, codeBase, 0, 0)
	if exc := c.Step(); exc != Undefined {
		t.Fatalf("user mrc p14 gave %s", exc)
	}
	c.SetPC(codeBase)
	c.SetCPSR(uint32(arm.SVC))
	step(t, c, 1)
	if c.Reg(0) != didrValue {
		t.Fatalf("didr %#x", c.Reg(0))
	}
}

func TestCodeHook(t *testing.T) {
	c := newCore(t, arm.Nop(), arm.Nop(), arm.Swi(0))
	var pcs []uint32
	var intr []uint32
	c.HookAdd(cpu.HOOK_CODE, func(_ cpu.Cpu, addr, insn uint32) {
		pcs = append(pcs, addr)
	}, 1, 0)
	c.HookAdd(cpu.HOOK_INTR, func(_ cpu.Cpu, intno uint32) {
		intr = append(intr, intno)
	}, 1, 0)
	step(t, c, 2)
	c.Step()
	if len(pcs) != 3 || pcs[2] != codeBase+8 {
		t.Fatalf("code hook saw %#x", pcs)
	}
	if len(intr) != 1 || Exception(intr[0]) != SWI {
		t.Fatalf("intr hook saw %v", intr)
	}
}
