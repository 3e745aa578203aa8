// Package uart models the transmit side of the BCM2835 mini-UART: an 8 byte
// FIFO drained onto an io.Writer at a fixed number of core cycles per byte.
package uart

import (
	"io"

	"github.com/pkg/errors"
)

const (
	// AUX peripheral page and the two registers traced code uses
	Base   = 0x20215000
	Size   = 0x1000
	IOReg  = 0x20215040
	LSRReg = 0x20215054

	FifoSize = 8

	// LSR bits
	LSRDataReady = 1 << 0
	LSRTxEmpty   = 1 << 5
	LSRTxIdle    = 1 << 6
)

type UART struct {
	out   io.Writer
	drain uint64

	fifo    []byte
	wait    uint64
	err     error
	Dropped int
}

// New returns a UART that sends one byte to out every drainCycles core
// cycles.
func New(out io.Writer, drainCycles int) *UART {
	if drainCycles < 1 {
		drainCycles = 1
	}
	return &UART{out: out, drain: uint64(drainCycles), fifo: make([]byte, 0, FifoSize)}
}

func (u *UART) CanPut8() bool {
	return len(u.fifo) < FifoSize
}

// WaitSpace busy-waits until CanPut8.
func (u *UART) WaitSpace() {
	for !u.CanPut8() {
		u.shift()
	}
}

// Put8 queues b, busy-waiting for FIFO space like kernel code has to.
func (u *UART) Put8(b byte) {
	u.WaitSpace()
	u.fifo = append(u.fifo, b)
}

// Write queues p a byte at a time through Put8, so host output waits for
// the FIFO the same way guest output does.
func (u *UART) Write(p []byte) (int, error) {
	for _, b := range p {
		u.Put8(b)
	}
	return len(p), u.err
}

func (u *UART) shift() {
	if len(u.fifo) == 0 {
		return
	}
	if u.err == nil {
		if _, err := u.out.Write(u.fifo[:1]); err != nil {
			u.err = errors.Wrap(err, "uart write failed")
		}
	}
	u.fifo = append(u.fifo[:0], u.fifo[1:]...)
	u.wait = 0
}

// Pending is the number of bytes still in the FIFO.
func (u *UART) Pending() int {
	return len(u.fifo)
}

// Flush drains the FIFO and reports the first write error.
func (u *UART) Flush() error {
	for len(u.fifo) > 0 {
		u.shift()
	}
	return u.err
}

func (u *UART) Tick(cycle uint64) {
	if len(u.fifo) == 0 {
		return
	}
	u.wait++
	if u.wait >= u.drain {
		u.shift()
	}
}

func (u *UART) lsr() uint32 {
	var v uint32
	if u.CanPut8() {
		v |= LSRTxEmpty
	}
	if len(u.fifo) == 0 {
		v |= LSRTxIdle
	}
	return v
}

// Load and Store implement cpu.Device for the AUX page.

func (u *UART) Load(off uint32, size int) uint32 {
	switch Base + off {
	case LSRReg:
		return u.lsr()
	}
	return 0
}

// a store to a full FIFO is lost, as on the hardware
func (u *UART) Store(off uint32, size int, val uint32) {
	switch Base + off {
	case IOReg:
		if !u.CanPut8() {
			u.Dropped++
			return
		}
		u.fifo = append(u.fifo, byte(val))
	}
}
