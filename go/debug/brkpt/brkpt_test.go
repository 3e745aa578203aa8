package brkpt

import (
	"testing"

	"github.com/stepcorn/stepcorn/go/arch/arm"
	"github.com/stepcorn/stepcorn/go/cpu/armv6"
	"github.com/stepcorn/stepcorn/go/debug/cp14"
	"github.com/stepcorn/stepcorn/go/models/cpu"
)

const (
	codeBase = 0x8000
	dataBase = 0x10000
)

type rig struct {
	t   *testing.T
	c   *armv6.Core
	ctl *Controller
}

func newRig(t *testing.T, code ...interface{}) *rig {
	c := armv6.New()
	if err := c.MemMap(codeBase, 0x1000, cpu.PROT_READ|cpu.PROT_EXEC, "code"); err != nil {
		t.Fatal(err)
	}
	if err := c.MemMap(dataBase, 0x1000, cpu.PROT_READ|cpu.PROT_WRITE, "data"); err != nil {
		t.Fatal(err)
	}
	if err := c.MemWrite(codeBase, arm.Assemble(code...)); err != nil {
		t.Fatal(err)
	}
	return &rig{t: t, c: c, ctl: New(cp14.New(c))}
}

// user starts an unprivileged context at pc with r0=arg
func (r *rig) user(pc, arg uint32) {
	regs := arm.NewUserRegs(pc, arg, 0, 0, r.c.CPSR())
	r.resume(&regs)
}

func (r *rig) resume(regs *arm.RegBlock) {
	if err := r.c.Load(regs); err != nil {
		r.t.Fatal(err)
	}
}

// trap runs until the core takes an exception and returns it with the
// interrupted context, pc adjusted to where that context continues.
func (r *rig) trap() (armv6.Exception, arm.RegBlock) {
	for i := 0; i < 100; i++ {
		exc := r.c.Step()
		if exc == armv6.None {
			continue
		}
		m := r.c.Mode()
		spsr := r.c.SPSR(m)
		pc := r.c.Reg(arm.RegLR)
		switch exc {
		case armv6.PrefetchAbort:
			pc -= 4
		case armv6.DataAbort:
			pc -= 8
		}
		return exc, r.c.Save(arm.ModeOf(spsr), pc, spsr)
	}
	r.t.Fatal("no exception after 100 steps")
	return armv6.None, arm.RegBlock{}
}

func (r *rig) expect(want armv6.Exception) arm.RegBlock {
	exc, regs := r.trap()
	if exc != want {
		r.t.Fatalf("got %s at %#x, want %s", exc, regs.PC(), want)
	}
	return regs
}

func expectPanic(t *testing.T, fn func()) (v interface{}) {
	defer func() {
		v = recover()
		if v == nil {
			t.Fatal("did not panic")
		}
	}()
	fn()
	return nil
}

func TestMismatchSteps(t *testing.T) {
	r := newRig(t, arm.Nop(), arm.Nop(), arm.Nop(), arm.Swi(0))
	r.ctl.MismatchStart()
	r.user(codeBase, 0)
	for i := uint32(0); i < 4; i++ {
		regs := r.expect(armv6.PrefetchAbort)
		f := r.ctl.Fault(Prefetch, &regs)
		want := codeBase + i*4
		if f.Kind != Mismatch || f.Addr != want || f.ResumePC != want {
			t.Fatalf("step %d: %s", i, f)
		}
		if old := r.ctl.MismatchSet(f.Addr); i > 0 && old != want-4 {
			t.Fatalf("previous target %#x", old)
		}
		r.resume(&regs)
	}
	r.expect(armv6.SWI)
}

// mismatch never fires for privileged code
func TestMismatchIgnoresKernel(t *testing.T) {
	r := newRig(t, arm.Nop(), arm.Swi(0))
	r.ctl.MismatchStart()
	r.c.SetPC(codeBase)
	r.expect(armv6.SWI)
}

func TestWatchStoreLanes(t *testing.T) {
	code := []interface{}{
		arm.MovImm(1, 0x55),
		arm.Strb(1, 0, 0),
		arm.Strb(1, 0, 1),
		arm.Strb(1, 0, 2),
		arm.Strb(1, 0, 3),
		arm.Swi(0),
	}
	for k := uint32(0); k < 4; k++ {
		r := newRig(t, code...)
		addr := uint32(dataBase + k)
		r.ctl.WatchOn(addr)
		r.user(codeBase, dataBase)
		regs := r.expect(armv6.DataAbort)
		f := r.ctl.Fault(Data, &regs)
		insn := codeBase + 4 + k*4
		if f.Kind != WatchStore || f.Addr != addr || f.ResumePC != insn+4 {
			t.Fatalf("lane %d: %s", k, f)
		}
		if pc := r.ctl.WatchFaultPC(); pc != insn {
			t.Fatalf("lane %d: watch pc %#x, want %#x", k, pc, insn)
		}
		r.resume(&regs)
		r.expect(armv6.SWI)
	}
}

func TestWatchLoadObserves(t *testing.T) {
	const v = 0xdeadbeef
	code := []interface{}{
		arm.LoadImm(1, v),
		arm.Str(1, 0, 0),
		arm.Swi(0),
	}
	load := codeBase + uint32(len(arm.Assemble(code...)))
	code = append(code, arm.Ldr(2, 0, 0), arm.Swi(0))
	r := newRig(t, code...)

	r.user(codeBase, dataBase)
	r.expect(armv6.SWI)

	r.ctl.WatchOn(dataBase)
	r.user(load, dataBase)
	regs := r.expect(armv6.DataAbort)
	f := r.ctl.Fault(Data, &regs)
	if f.Kind != WatchLoad || f.Addr != dataBase {
		t.Fatal(f)
	}
	if regs.R(2) != v {
		t.Fatalf("load saw %#x, want %#x", regs.R(2), v)
	}
	r.resume(&regs)
	r.expect(armv6.SWI)
}

func TestMatchDisableDoesNotRetrigger(t *testing.T) {
	r := newRig(t, arm.Nop(), arm.Nop(), arm.Nop(), arm.Swi(0))
	r.ctl.MatchSet(codeBase + 4)
	r.user(codeBase, 0)
	regs := r.expect(armv6.PrefetchAbort)
	f := r.ctl.Fault(Prefetch, &regs)
	if f.Kind != Match || f.Addr != codeBase+4 || r.ctl.MatchGet() != codeBase+4 {
		t.Fatal(f)
	}
	r.ctl.MatchStop()
	r.ctl.CheckResume(regs.PC())
	if r.ctl.MatchGet() != 0 {
		t.Fatal("MatchGet after stop")
	}
	r.resume(&regs)
	r.expect(armv6.SWI)
}

// skipping the disable traps again at the same pc, every time
func TestMatchRetriggers(t *testing.T) {
	r := newRig(t, arm.Nop(), arm.Nop(), arm.Swi(0))
	r.ctl.MatchSet(codeBase + 4)
	r.user(codeBase, 0)
	for i := 0; i < 3; i++ {
		regs := r.expect(armv6.PrefetchAbort)
		if f := r.ctl.Fault(Prefetch, &regs); f.Kind != Match || f.ResumePC != codeBase+4 {
			t.Fatal(f)
		}
		r.resume(&regs)
	}
	v := expectPanic(t, func() { r.ctl.CheckResume(codeBase + 4) })
	if _, ok := v.(*ConfigError); !ok {
		t.Fatalf("CheckResume panicked with %v", v)
	}
}

func TestMatchRetarget(t *testing.T) {
	r := newRig(t, arm.Nop(), arm.Nop(), arm.Nop(), arm.Swi(0))
	r.ctl.MatchSet(codeBase + 4)
	r.user(codeBase, 0)
	regs := r.expect(armv6.PrefetchAbort)
	r.ctl.MatchSet(codeBase + 8)
	r.resume(&regs)
	regs = r.expect(armv6.PrefetchAbort)
	if f := r.ctl.Fault(Prefetch, &regs); f.Addr != codeBase+8 {
		t.Fatal(f)
	}
}

func TestStopKeepsOtherUnit(t *testing.T) {
	r := newRig(t)
	d := r.ctl.Debug()
	r.ctl.MismatchStart()
	r.ctl.MatchSet(0x8000)
	r.ctl.WatchOn(dataBase)
	mis, wcr := d.BCR(mismatchBRP), d.WCR(watchWRP)
	r.ctl.MatchStop()
	if d.BCR(mismatchBRP) != mis || d.WCR(watchWRP) != wcr {
		t.Fatal("match stop touched another unit")
	}
	if d.BCR(matchBRP) != matchBCR&^1 {
		t.Fatalf("match bcr %#x", d.BCR(matchBRP))
	}
}

func TestConfigErrors(t *testing.T) {
	r := newRig(t)
	cases := []struct {
		name string
		fn   func()
	}{
		{"mismatch stop unarmed", func() { r.ctl.MismatchStop() }},
		{"match stop unarmed", func() { r.ctl.MatchStop() }},
		{"watch off unarmed", func() { r.ctl.WatchOff(dataBase) }},
		{"watch second address", func() {
			r.ctl.WatchOn(dataBase)
			r.ctl.WatchOn(dataBase + 1)
		}},
		{"watch off wrong address", func() { r.ctl.WatchOff(dataBase + 4) }},
	}
	for _, tc := range cases {
		v := expectPanic(t, tc.fn)
		e, ok := v.(*ConfigError)
		if !ok {
			t.Errorf("%s: panicked with %v", tc.name, v)
		} else if len(e.StackTrace()) == 0 {
			t.Errorf("%s: no stack trace", tc.name)
		}
	}
	// re-arming the same byte is fine
	r.ctl.WatchOn(dataBase)
	if addr, ok := r.ctl.WatchAddr(); !ok || addr != dataBase {
		t.Fatal("watch lost")
	}
}

func TestBusyUnit(t *testing.T) {
	r := newRig(t)
	d := r.ctl.Debug()
	d.SetBCR(matchBRP, 0x1e7)
	v := expectPanic(t, func() { r.ctl.MatchSet(0x8000) })
	if _, ok := v.(*ConfigError); !ok {
		t.Fatalf("panicked with %v", v)
	}
	d.SetWCR(watchWRP, 0x1ff)
	expectPanic(t, func() { r.ctl.WatchOn(dataBase) })
	// a disabled pair may be taken over
	d.DisableBCR(matchBRP)
	r.ctl.MatchSet(0x8000)
}

func TestUnexpectedFault(t *testing.T) {
	r := newRig(t)
	r.ctl.Debug().Enable()
	r.user(0x4000, 0)
	regs := r.expect(armv6.PrefetchAbort)
	v := expectPanic(t, func() { r.ctl.Fault(Prefetch, &regs) })
	fe, ok := v.(*FaultError)
	if !ok {
		t.Fatalf("panicked with %v", v)
	}
	if len(fe.StackTrace()) == 0 {
		t.Fatal("fault error has no stack trace")
	}
	v = expectPanic(t, func() { r.ctl.Fault(Data, &regs) })
	if _, ok := v.(*FaultError); !ok {
		t.Fatalf("panicked with %v", v)
	}
}

func TestClose(t *testing.T) {
	r := newRig(t)
	d := r.ctl.Debug()
	r.ctl.MismatchStart()
	r.ctl.MatchSet(0x8000)
	r.ctl.WatchOn(dataBase)
	r.ctl.Close()
	if d.Enabled() || d.BCREnabled(mismatchBRP) || d.BCREnabled(matchBRP) || d.WCREnabled(watchWRP) {
		t.Fatal("Close left something enabled")
	}
	if r.ctl.MismatchArmed() || r.ctl.MatchGet() != 0 {
		t.Fatal("Close left units tracked")
	}
	r.ctl.Close()
}
