package arm

import "fmt"

// Mode is the value of the CPSR mode field.
type Mode uint32

const (
	USR Mode = 0x10
	FIQ Mode = 0x11
	IRQ Mode = 0x12
	SVC Mode = 0x13
	ABT Mode = 0x17
	UND Mode = 0x1b
	SYS Mode = 0x1f
)

// program status register bits
const (
	PsrN     = 1 << 31
	PsrZ     = 1 << 30
	PsrC     = 1 << 29
	PsrV     = 1 << 28
	PsrI     = 1 << 7
	PsrF     = 1 << 6
	PsrT     = 1 << 5
	ModeMask = 0x1f

	// the condition flags: whatever the last comparison left behind
	PsrFlags = PsrN | PsrZ | PsrC | PsrV
)

func (m Mode) Valid() bool {
	switch m {
	case USR, FIQ, IRQ, SVC, ABT, UND, SYS:
		return true
	}
	return false
}

func (m Mode) Privileged() bool {
	return m.Valid() && m != USR
}

// HasSPSR is true for the exception modes.
func (m Mode) HasSPSR() bool {
	return m.Privileged() && m != SYS
}

func (m Mode) String() string {
	switch m {
	case USR:
		return "usr"
	case FIQ:
		return "fiq"
	case IRQ:
		return "irq"
	case SVC:
		return "svc"
	case ABT:
		return "abt"
	case UND:
		return "und"
	case SYS:
		return "sys"
	}
	return fmt.Sprintf("mode(%#x)", uint32(m))
}

func ModeOf(cpsr uint32) Mode {
	return Mode(cpsr & ModeMask)
}

// WithMode replaces the mode field of cpsr.
func WithMode(cpsr uint32, m Mode) uint32 {
	return cpsr&^ModeMask | uint32(m)
}

// UserCPSR derives an unprivileged status word from an inherited one: the mode
// is forced to USR, the condition flags are cleared and IRQs are enabled.
func UserCPSR(cpsr uint32) uint32 {
	return WithMode(cpsr&^(PsrFlags|PsrI), USR)
}
