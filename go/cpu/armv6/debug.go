package armv6

import (
	"github.com/stepcorn/stepcorn/go/arch/arm"
)

const (
	numBRP = 6
	numWRP = 2

	// wrp=1 brp=5 context=1 version=2 (v6.1) rev=1
	didrValue = 0x15121000

	dscrHalting = 1 << 14
	dscrMonitor = 1 << 15
	// method of entry and the core status bits are read only
	dscrReadOnly = 0xf<<2 | 0x3

	moeBreakpoint = 1
	moeWatchpoint = 2
)

// debugUnit is the CP14 breakpoint/watchpoint logic. Writes land in the
// programmed registers; the comparators work from a copy that is refreshed
// only by a prefetch flush, like the real pipeline.
type debugUnit struct {
	dscr uint32
	wfar uint32
	prog comparators
	live comparators
}

type comparators struct {
	bvr, bcr [numBRP]uint32
	wvr, wcr [numWRP]uint32
}

func (d *debugUnit) init() {
	*d = debugUnit{}
}

func (d *debugUnit) sync() {
	d.live = d.prog
}

func (d *debugUnit) enabled() bool {
	return d.dscr&dscrMonitor != 0 && d.dscr&dscrHalting == 0
}

func (d *debugUnit) setMOE(moe uint32) {
	d.dscr = d.dscr&^(0xf<<2) | moe<<2
}

// privileged access control field of BCR/WCR
func privOK(field uint32, m arm.Mode) bool {
	switch field & 3 {
	case 1:
		return m.Privileged()
	case 2:
		return m == arm.USR
	case 3:
		return true
	}
	return false
}

// breakpoint checks an instruction fetch at pc in mode m.
func (d *debugUnit) breakpoint(pc uint32, m arm.Mode) bool {
	if !d.enabled() {
		return false
	}
	for n := 0; n < numBRP; n++ {
		bcr := d.live.bcr[n]
		if bcr&1 == 0 || !privOK(bcr>>1, m) {
			continue
		}
		same := d.live.bvr[n]&^3 == pc&^3 && bcr>>5&0xf != 0
		switch bcr >> 21 & 3 {
		case 0:
			if same {
				return true
			}
		case 2:
			// mismatch only ever fires for unprivileged fetches
			if !same && m == arm.USR {
				return true
			}
		}
	}
	return false
}

// watchpoint checks a completed data access; every byte of it is compared
// against the byte lanes selected in WCR.
func (d *debugUnit) watchpoint(addr uint32, size int, write bool, m arm.Mode) bool {
	if !d.enabled() {
		return false
	}
	lsc := uint32(1)
	if write {
		lsc = 2
	}
	for n := 0; n < numWRP; n++ {
		wcr := d.live.wcr[n]
		if wcr&1 == 0 || wcr>>3&lsc == 0 || !privOK(wcr>>1, m) {
			continue
		}
		bas := wcr >> 5 & 0xf
		for b := addr; b < addr+uint32(size); b++ {
			if b&^3 == d.live.wvr[n]&^3 && bas&(1<<(b&3)) != 0 {
				return true
			}
		}
	}
	return false
}

func (d *debugUnit) read(crm, opc2 int) (uint32, bool) {
	switch {
	case crm == 0 && opc2 == 0:
		return didrValue, true
	case crm == 1 && opc2 == 0:
		return d.dscr, true
	case crm == 6 && opc2 == 0:
		return d.wfar, true
	case opc2 == 4 && crm < numBRP:
		return d.prog.bvr[crm], true
	case opc2 == 5 && crm < numBRP:
		return d.prog.bcr[crm], true
	case opc2 == 6 && crm < numWRP:
		return d.prog.wvr[crm], true
	case opc2 == 7 && crm < numWRP:
		return d.prog.wcr[crm], true
	}
	return 0, false
}

func (d *debugUnit) write(crm, opc2 int, v uint32) bool {
	switch {
	case crm == 1 && opc2 == 0:
		d.dscr = d.dscr&dscrReadOnly | v&^dscrReadOnly
	case crm == 6 && opc2 == 0:
		d.wfar = v
	case opc2 == 4 && crm < numBRP:
		d.prog.bvr[crm] = v
	case opc2 == 5 && crm < numBRP:
		d.prog.bcr[crm] = v
	case opc2 == 6 && crm < numWRP:
		d.prog.wvr[crm] = v
	case opc2 == 7 && crm < numWRP:
		d.prog.wcr[crm] = v
	default:
		return false
	}
	return true
}
