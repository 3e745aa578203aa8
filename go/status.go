package stepcorn

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/mgutz/ansi"

	"github.com/stepcorn/stepcorn/go/arch/arm"
)

var (
	colSame = ansi.ColorCode("default")
	colNew  = ansi.ColorCode("green+b")
)

// StatusDiff reports the registers a step changed. Banked registers are
// tracked per mode, so entering an exception shows sp_abt and lr_abt rather
// than a write to the user's sp and lr.
type StatusDiff struct {
	prev map[string]uint32
}

type regChange struct {
	Name     string
	Old, New uint32
	Fresh    bool
}

// bankName is the register's name as seen in mode.
func bankName(i int, mode arm.Mode) string {
	name := arm.RegName(i)
	switch {
	case mode == arm.FIQ && i >= 8 && i <= arm.RegLR:
		return name + "_fiq"
	case (i == arm.RegSP || i == arm.RegLR) && mode.HasSPSR():
		return name + "_" + mode.String()
	}
	return name
}

// Reset forgets the previous state; the next Changes reports every register.
func (s *StatusDiff) Reset() {
	s.prev = nil
}

func (s *StatusDiff) Changes(regs *arm.RegBlock) []regChange {
	if s.prev == nil {
		s.prev = make(map[string]uint32)
	}
	mode := regs.Mode()
	var out []regChange
	for i, v := range regs {
		name := bankName(i, mode)
		old, seen := s.prev[name]
		if !seen || old != v {
			out = append(out, regChange{Name: name, Old: old, New: v, Fresh: !seen})
		}
		s.prev[name] = v
	}
	return out
}

// Line formats the changes of one step, or returns "" if nothing changed.
func (s *StatusDiff) Line(regs *arm.RegBlock, color bool) string {
	changes := s.Changes(regs)
	if len(changes) == 0 {
		return ""
	}
	parts := make([]string, len(changes))
	for i, c := range changes {
		if c.Name == "cpsr" {
			parts[i] = "cpsr=" + cpsrString(c)
		} else {
			parts[i] = c.Name + "=" + hexDiff(c, color)
		}
	}
	return "  " + strings.Join(parts, " ")
}

// hexDiff highlights the nibbles that changed.
func hexDiff(c regChange, color bool) string {
	s := fmt.Sprintf("%08x", c.New)
	if !color || c.Fresh {
		return s
	}
	o := fmt.Sprintf("%08x", c.Old)
	var b bytes.Buffer
	last := ""
	for i := range s {
		col := colSame
		if s[i] != o[i] {
			col = colNew
		}
		if col != last {
			b.WriteString(col)
			last = col
		}
		b.WriteByte(s[i])
	}
	b.WriteString(ansi.Reset)
	return b.String()
}

// cpsrString decodes the mode and flags, e.g. "usr->abt nZcv I".
func cpsrString(c regChange) string {
	mode := arm.ModeOf(c.New).String()
	if old := arm.ModeOf(c.Old); !c.Fresh && old != arm.ModeOf(c.New) {
		mode = old.String() + "->" + mode
	}
	return mode + " " + psrFlags(c.New)
}

func psrFlags(cpsr uint32) string {
	b := []byte("nzcv")
	for i, bit := range []uint32{arm.PsrN, arm.PsrZ, arm.PsrC, arm.PsrV} {
		if cpsr&bit != 0 {
			b[i] -= 'a' - 'A'
		}
	}
	for _, m := range []struct {
		bit uint32
		c   byte
	}{{arm.PsrI, 'I'}, {arm.PsrF, 'F'}, {arm.PsrT, 'T'}} {
		if cpsr&m.bit != 0 {
			b = append(b, ' ', m.c)
		}
	}
	return string(b)
}
