package stepcorn

import (
	"bytes"
	"math/rand"
	"strings"
	"testing"

	"github.com/stepcorn/stepcorn/go/arch/arm"
	"github.com/stepcorn/stepcorn/go/debug/brkpt"
	"github.com/stepcorn/stepcorn/go/device/uart"
	"github.com/stepcorn/stepcorn/go/kernel/common"
	"github.com/stepcorn/stepcorn/go/models"
)

func newMachine(t *testing.T, handlers Handlers, code ...interface{}) (*Machine, *bytes.Buffer) {
	var out bytes.Buffer
	cfg := &models.Config{Output: &out, UartOut: &out}
	m, err := NewMachine(cfg, handlers)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Write(cfg.ImageBase, arm.Assemble(code...)); err != nil {
		t.Fatal(err)
	}
	return m, &out
}

func (m *Machine) userRegs(arg uint32) arm.RegBlock {
	return arm.NewUserRegs(m.cfg.ImageBase, arg, 0, m.ExitTrampoline(), m.core.CPSR())
}

func expectHalt(t *testing.T, fn func()) *Halt {
	var h *Halt
	func() {
		defer func() {
			r := recover()
			var ok bool
			if h, ok = r.(*Halt); !ok {
				t.Fatalf("expected a halt, got %v", r)
			}
		}()
		fn()
	}()
	return h
}

func TestExitTrampoline(t *testing.T) {
	m, _ := newMachine(t, nil, arm.BxLR())
	regs := m.userRegs(42)
	exit := m.Run(&regs)
	if exit.R(0) != common.SysExit || exit.R(1) != 42 {
		t.Fatalf("exit regs r0=%d r1=%d", exit.R(0), exit.R(1))
	}
	if exit.PC() != m.ExitTrampolinePC() || exit.Mode() != arm.USR {
		t.Fatalf("exit pc %#x mode %s", exit.PC(), exit.Mode())
	}
	if *m.ExitRegisters() != *exit {
		t.Fatal("ExitRegisters differs from the Run result")
	}
	if m.Mode() != arm.SVC {
		t.Fatalf("scheduler context not restored: %s", m.Mode())
	}
}

func seeded(seed int64, mode arm.Mode, pc uint32) arm.RegBlock {
	rng := rand.New(rand.NewSource(seed))
	var regs arm.RegBlock
	for i := 0; i < arm.RegPC; i++ {
		regs.SetR(i, rng.Uint32())
	}
	regs.SetPC(pc)
	regs.SetCPSR(arm.WithMode(arm.PsrI|arm.PsrF, mode))
	return regs
}

func TestRegisterRoundTrip(t *testing.T) {
	var slot Continuation
	var inside arm.Mode
	m, _ := newMachine(t, Handlers{
		PrefetchAbort: func(m *Machine, regs *arm.RegBlock) {
			inside = m.Mode()
			m.ResumeContinuation(&slot, regs)
		},
	}, arm.Nop())
	for seed := int64(1); seed <= 4; seed++ {
		want := seeded(seed, arm.USR, m.cfg.ImageBase)
		want.SetCPSR(arm.UserCPSR(m.core.CPSR()))
		m.Debug().MismatchStart()
		got := m.CSwitch(&slot, &want)
		m.Debug().MismatchStop()
		if *got != want {
			t.Fatalf("seed %d: captured block differs:\n%s", seed, strings.Join(got.Diff(&want), "\n"))
		}
		if inside != arm.ABT {
			t.Fatalf("handler ran in %s", inside)
		}
		if m.Mode() != arm.SVC {
			t.Fatal("CSwitch did not restore the caller")
		}
	}
}

// a context interrupted in irq mode is captured with the irq bank
func TestPrivilegedRoundTrip(t *testing.T) {
	var slot Continuation
	m, _ := newMachine(t, Handlers{
		Undefined: func(m *Machine, regs *arm.RegBlock) {
			if m.Mode() != arm.UND {
				t.Errorf("handler ran in %s", m.Mode())
			}
			m.ResumeContinuation(&slot, regs)
		},
	}, arm.Udf(0))
	want := seeded(7, arm.IRQ, m.cfg.ImageBase)
	got := m.CSwitch(&slot, &want)
	want.SetPC(m.cfg.ImageBase + 4)
	if *got != want {
		t.Fatalf("captured block differs:\n%s", strings.Join(got.Diff(&want), "\n"))
	}
	sp, lr := m.core.BankedSPLR(arm.IRQ)
	if sp != want.SP() || lr != want.LR() {
		t.Fatal("irq bank not loaded")
	}
}

// a match breakpoint stops irq-mode code before its first instruction, and
// the captured block is the one switched in
func TestMatchPrivilegedRoundTrip(t *testing.T) {
	var slot Continuation
	var kind brkpt.Kind
	var inside arm.Mode
	m, _ := newMachine(t, Handlers{
		PrefetchAbort: func(m *Machine, regs *arm.RegBlock) {
			inside = m.Mode()
			kind = m.Debug().Fault(brkpt.Prefetch, regs).Kind
			m.ResumeContinuation(&slot, regs)
		},
	}, arm.Nop(), arm.Nop())
	for seed := int64(1); seed <= 3; seed++ {
		pc := m.cfg.ImageBase + 4*uint32(seed%2)
		want := seeded(seed, arm.IRQ, pc)
		m.Debug().MatchSet(pc)
		got := m.CSwitch(&slot, &want)
		m.Debug().MatchStop()
		if *got != want {
			t.Fatalf("seed %d: captured block differs:\n%s", seed, strings.Join(got.Diff(&want), "\n"))
		}
		if kind != brkpt.Match || inside != arm.ABT {
			t.Fatalf("seed %d: %s trap handled in %s", seed, kind, inside)
		}
		if sp, lr := m.core.BankedSPLR(arm.IRQ); sp != want.SP() || lr != want.LR() {
			t.Fatalf("seed %d: irq bank sp=%#x lr=%#x", seed, sp, lr)
		}
	}
}

func TestHandlerReturnResumes(t *testing.T) {
	var slot Continuation
	m, _ := newMachine(t, Handlers{
		Syscall: func(m *Machine, regs *arm.RegBlock) {
			switch regs.R(0) {
			case 0:
				regs.SetR(0, 5)
			case 5:
				r := *regs
				r.SetR(3, 7)
				r.SetR(0, 6)
				m.Resume(&r)
				t.Error("Resume returned")
			default:
				m.ResumeContinuation(&slot, regs)
			}
		},
	}, arm.Swi(0), arm.Swi(0), arm.Swi(0))
	regs := m.userRegs(0)
	got := m.CSwitch(&slot, &regs)
	if got.R(0) != 6 || got.R(3) != 7 || got.PC() != m.cfg.ImageBase+12 {
		t.Fatalf("r0=%d r3=%d pc=%#x", got.R(0), got.R(3), got.PC())
	}
}

// a handler can run its own switch, and resume an outer one from inside it
func TestNestedSwitch(t *testing.T) {
	var outer, inner Continuation
	depth := 0
	m, _ := newMachine(t, Handlers{
		Syscall: func(m *Machine, regs *arm.RegBlock) {
			depth++
			if depth == 1 {
				next := *regs
				m.CSwitch(&inner, &next)
				t.Error("inner switch returned")
			}
			m.ResumeContinuation(&outer, regs)
		},
	}, arm.Swi(0), arm.Swi(0))
	regs := m.userRegs(0)
	m.CSwitch(&outer, &regs)
	if depth != 2 || inner.Active() || outer.Active() {
		t.Fatalf("depth %d", depth)
	}
	if m.Mode() != arm.SVC {
		t.Fatal(m.Mode())
	}
}

func TestHalts(t *testing.T) {
	m, _ := newMachine(t, nil, arm.Udf(0))
	regs := m.userRegs(0)
	h := expectHalt(t, func() { m.Run(&regs) })
	if !strings.Contains(h.Msg, "undefined") || h.Regs == nil || h.Regs.PC() != m.cfg.ImageBase+4 {
		t.Fatalf("bad halt: %v", h)
	}

	m, _ = newMachine(t, nil, arm.Swi(0))
	regs = m.userRegs(9)
	h = expectHalt(t, func() { m.Run(&regs) })
	if !strings.Contains(h.Msg, "illegal system call") {
		t.Fatal(h)
	}

	expectHalt(t, func() { m.Resume(&regs) })

	bad := m.userRegs(0)
	bad.SetCPSR(0x15)
	expectHalt(t, func() { m.Run(&bad) })
}

func TestMemoryFaultUnhandled(t *testing.T) {
	m, _ := newMachine(t, nil, arm.Ldr(1, 0, 0))
	regs := m.userRegs(0x4000)
	h := expectHalt(t, func() { m.Run(&regs) })
	if !strings.Contains(h.Msg, "data abort") {
		t.Fatal(h)
	}
}

func TestPutcSyscall(t *testing.T) {
	m, out := newMachine(t, nil,
		arm.MovImm(0, common.SysPutc),
		arm.MovImm(1, 'h'),
		arm.Swi(0),
		arm.MovImm(1, 'i'),
		arm.Swi(0),
		arm.MovImm(0, 0),
		arm.BxLR(),
	)
	regs := m.userRegs(0)
	m.Run(&regs)
	if err := m.Flush(); err != nil {
		t.Fatal(err)
	}
	if out.String() != "hi" {
		t.Fatalf("got %q", out.String())
	}
}

func TestGuestUART(t *testing.T) {
	m, out := newMachine(t, nil,
		arm.LoadImm(2, uart.IOReg),
		arm.MovImm(1, 'x'),
		arm.Str(1, 2, 0),
		arm.Ldr(3, 2, uart.LSRReg-uart.IOReg),
		arm.MovReg(0, 3),
		arm.BxLR(),
	)
	regs := m.userRegs(0)
	exit := m.Run(&regs)
	m.Flush()
	if out.String() != "x" {
		t.Fatalf("got %q", out.String())
	}
	if exit.R(1)&uart.LSRTxEmpty == 0 {
		t.Fatalf("lsr %#x", exit.R(1))
	}
}

func TestMalloc(t *testing.T) {
	m, _ := newMachine(t, nil)
	a, err := m.Malloc(10)
	if err != nil {
		t.Fatal(err)
	}
	b, err := m.Malloc(PAGE_SIZE + 1)
	if err != nil {
		t.Fatal(err)
	}
	if a != m.cfg.HeapBase || b != a+PAGE_SIZE || b%PAGE_SIZE != 0 {
		t.Fatalf("a=%#x b=%#x", a, b)
	}
	c, _ := m.Malloc(1)
	if c != b+2*PAGE_SIZE {
		t.Fatalf("c=%#x", c)
	}
	if _, err := m.Malloc(m.cfg.HeapSize); err == nil {
		t.Fatal("heap never runs out")
	}
	if err := m.WriteUint32(c, 0x1234); err != nil {
		t.Fatal(err)
	}
	if v, _ := m.ReadUint32(c); v != 0x1234 {
		t.Fatalf("read back %#x", v)
	}
}

func TestTraceOutput(t *testing.T) {
	var out bytes.Buffer
	cfg := &models.Config{Output: &out, UartOut: &out, TraceExec: true, TraceReg: true, TraceSys: true}
	m, err := NewMachine(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	m.Write(cfg.ImageBase, arm.Assemble(arm.MovImm(0, 3), arm.BxLR()))
	regs := m.userRegs(0)
	m.Run(&regs)
	s := out.String()
	for _, want := range []string{"e3a00003", "exit(3)", "r0", "+++ "} {
		if !strings.Contains(s, want) {
			t.Errorf("trace lacks %q:\n%s", want, s)
		}
	}
}

// exception entries are syscall tracing, not part of -v
func TestVerboseOmitsTrapLines(t *testing.T) {
	var out bytes.Buffer
	cfg := &models.Config{Output: &out, UartOut: &out, Verbose: true}
	m, err := NewMachine(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	m.Write(cfg.ImageBase, arm.Assemble(arm.MovImm(0, 3), arm.BxLR()))
	regs := m.userRegs(0)
	if exit := m.Run(&regs); exit.R(1) != 3 {
		t.Fatalf("exit %d", exit.R(1))
	}
	if strings.Contains(out.String(), "+++") {
		t.Fatalf("verbose run printed trap lines:\n%s", out.String())
	}
}

func TestHaltCarriesStack(t *testing.T) {
	m, _ := newMachine(t, nil)
	h := expectHalt(t, func() { m.Halt(nil, "stop at %d", 3) })
	if h.Msg != "stop at 3" || len(h.StackTrace()) == 0 {
		t.Fatalf("halt %q with %d frames", h.Msg, len(h.StackTrace()))
	}
}

// every run starts its register trace with a full dump
func TestRunRestartsRegisterTrace(t *testing.T) {
	var out bytes.Buffer
	cfg := &models.Config{Output: &out, UartOut: &out, TraceReg: true}
	m, err := NewMachine(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	m.Write(cfg.ImageBase, arm.Assemble(arm.MovImm(0, 3), arm.BxLR()))
	for i := 0; i < 2; i++ {
		regs := m.userRegs(0)
		m.Run(&regs)
	}
	// r7 never changes, so it only shows up in full dumps
	if n := strings.Count(out.String(), " r7="); n != 2 {
		t.Fatalf("%d full dumps:\n%s", n, out.String())
	}
}
