// Package cp14 wraps the ARMv6 debug coprocessor registers, and the CP15
// fault registers used to classify debug events, in bit-exact accessors.
package cp14

import (
	"fmt"
)

// Coproc is raw coprocessor access with kernel privilege.
type Coproc interface {
	MRC(cp, opc1, crn, crm, opc2 int) uint32
	MCR(cp, opc1, crn, crm, opc2 int, v uint32)
}

const (
	// the core implements six breakpoint and two watchpoint register pairs
	NumBRP = 6
	NumWRP = 2

	DSCRHalting = 1 << 14
	DSCRMonitor = 1 << 15

	// DSCR[5:2] method of entry
	MOEBreakpoint = 0x1
	MOEWatchpoint = 0x2

	// fault status of a debug event, in DFSR/IFSR
	FaultDebug = 0x2
	// DFSR: the access was a write
	DFSRWnR = 1 << 11
)

type Debug struct {
	cp Coproc
}

func New(cp Coproc) *Debug {
	return &Debug{cp: cp}
}

func (d *Debug) get(crm, opc2 int) uint32 {
	return d.cp.MRC(14, 0, 0, crm, opc2)
}

// every debug register write is followed by a prefetch flush, otherwise the
// comparators may keep using the old value
func (d *Debug) set(crm, opc2 int, v uint32) {
	d.cp.MCR(14, 0, 0, crm, opc2, v)
	d.PrefetchFlush()
}

func (d *Debug) PrefetchFlush() {
	d.cp.MCR(15, 0, 7, 5, 4, 0)
}

func checkBRP(n int) {
	if n < 0 || n >= NumBRP {
		panic(fmt.Sprintf("no breakpoint register pair %d", n))
	}
}

func checkWRP(n int) {
	if n < 0 || n >= NumWRP {
		panic(fmt.Sprintf("no watchpoint register pair %d", n))
	}
}

func (d *Debug) DIDR() uint32     { return d.get(0, 0) }
func (d *Debug) DSCR() uint32     { return d.get(1, 0) }
func (d *Debug) SetDSCR(v uint32) { d.set(1, 0, v) }
func (d *Debug) WFAR() uint32     { return d.get(6, 0) }

func (d *Debug) BVR(n int) uint32 {
	checkBRP(n)
	return d.get(n, 4)
}

func (d *Debug) SetBVR(n int, v uint32) {
	checkBRP(n)
	d.set(n, 4, v)
}

func (d *Debug) BCR(n int) uint32 {
	checkBRP(n)
	return d.get(n, 5)
}

func (d *Debug) SetBCR(n int, v uint32) {
	checkBRP(n)
	d.set(n, 5, v)
}

func (d *Debug) WVR(n int) uint32 {
	checkWRP(n)
	return d.get(n, 6)
}

func (d *Debug) SetWVR(n int, v uint32) {
	checkWRP(n)
	d.set(n, 6, v)
}

func (d *Debug) WCR(n int) uint32 {
	checkWRP(n)
	return d.get(n, 7)
}

func (d *Debug) SetWCR(n int, v uint32) {
	checkWRP(n)
	d.set(n, 7, v)
}

// cp15 fault registers
func (d *Debug) DFSR() uint32 { return d.cp.MRC(15, 0, 5, 0, 0) }
func (d *Debug) IFSR() uint32 { return d.cp.MRC(15, 0, 5, 0, 1) }
func (d *Debug) FAR() uint32  { return d.cp.MRC(15, 0, 6, 0, 0) }
func (d *Debug) IFAR() uint32 { return d.cp.MRC(15, 0, 6, 0, 2) }

// MOE is the method of entry of the last debug event.
func (d *Debug) MOE() uint32 {
	return d.DSCR() >> 2 & 0xf
}

// FaultStatus extracts FS[4:0] (bits 10 and 3:0) of a DFSR/IFSR value.
func FaultStatus(fsr uint32) uint32 {
	return fsr>>6&0x10 | fsr&0xf
}

// Enabled reports whether monitor debug-mode is selected and enabled.
func (d *Debug) Enabled() bool {
	s := d.DSCR()
	return s&DSCRMonitor != 0 && s&DSCRHalting == 0
}

func (d *Debug) Enable() {
	if d.Enabled() {
		return
	}
	d.SetDSCR(d.DSCR()&^DSCRHalting | DSCRMonitor)
}

func (d *Debug) Disable() {
	if !d.Enabled() {
		return
	}
	d.SetDSCR(d.DSCR() &^ DSCRMonitor)
}

func (d *Debug) BCREnabled(n int) bool { return d.BCR(n)&1 != 0 }
func (d *Debug) EnableBCR(n int)       { d.SetBCR(n, d.BCR(n)|1) }
func (d *Debug) DisableBCR(n int)      { d.SetBCR(n, d.BCR(n)&^1) }
func (d *Debug) WCREnabled(n int) bool { return d.WCR(n)&1 != 0 }
func (d *Debug) EnableWCR(n int)       { d.SetWCR(n, d.WCR(n)|1) }
func (d *Debug) DisableWCR(n int)      { d.SetWCR(n, d.WCR(n)&^1) }
