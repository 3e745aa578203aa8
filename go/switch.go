package stepcorn

import (
	"github.com/stepcorn/stepcorn/go/arch/arm"
)

type resumeSignal struct {
	regs arm.RegBlock
}

type continuationSignal struct {
	slot *Continuation
	regs arm.RegBlock
}

// Continuation is the saved host side of a CSwitch, waiting for
// ResumeContinuation.
type Continuation struct {
	saved  arm.RegBlock
	active bool
}

// Active reports whether a CSwitch is waiting on c.
func (c *Continuation) Active() bool {
	return c.active
}

// Resume abandons the running handler and continues at regs. It only works
// inside a handler and never returns.
func (m *Machine) Resume(regs *arm.RegBlock) {
	if m.depth == 0 {
		m.Halt(regs, "resume outside of a trap handler")
	}
	if err := regs.Validate(); err != nil {
		m.Halt(regs, "resume: %v", err)
	}
	panic(&resumeSignal{regs: *regs})
}

// CSwitch saves the current core context into slot, loads next and runs it.
// It returns once a handler calls ResumeContinuation(slot, regs), with the
// core back in the saved context and regs as the result.
func (m *Machine) CSwitch(slot *Continuation, next *arm.RegBlock) *arm.RegBlock {
	if slot.active {
		m.Halt(next, "cswitch: continuation already waiting")
	}
	slot.saved = m.core.Save(m.core.Mode(), m.core.PC(), m.core.CPSR())
	slot.active = true
	defer func() { slot.active = false }()

	m.Load(next)
	regs := m.run(slot)
	m.Load(&slot.saved)
	return &regs
}

// ResumeContinuation makes the CSwitch waiting on slot return regs. Like
// Resume it never returns.
func (m *Machine) ResumeContinuation(slot *Continuation, regs *arm.RegBlock) {
	if m.depth == 0 {
		m.Halt(regs, "resume outside of a trap handler")
	}
	if !slot.active {
		m.Halt(regs, "resume of a continuation nobody is waiting on")
	}
	panic(&continuationSignal{slot: slot, regs: *regs})
}

// Run switches from the scheduler into regs and returns the context that made
// the EXIT call. Register tracing starts over with a full dump.
func (m *Machine) Run(regs *arm.RegBlock) *arm.RegBlock {
	m.status.Reset()
	return m.CSwitch(&m.sched, regs)
}
