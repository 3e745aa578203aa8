package stepcorn

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/stepcorn/stepcorn/go/arch/arm"
	"github.com/stepcorn/stepcorn/go/cpu/armv6"
	"github.com/stepcorn/stepcorn/go/models"
	"github.com/stepcorn/stepcorn/go/models/cpu"
)

// Task is the guest address space of a core plus a bump heap.
type Task struct {
	*armv6.Core

	arch  *models.Arch
	order binary.ByteOrder

	heapBase uint32
	heapEnd  uint32
	brk      uint32
}

func NewTask(c *armv6.Core, arch *models.Arch) *Task {
	return &Task{
		Core:  c,
		arch:  arch,
		order: binary.LittleEndian,
	}
}

func (t *Task) Arch() *models.Arch {
	return t.arch
}

func (t *Task) ByteOrder() binary.ByteOrder {
	return t.order
}

// Map maps page-aligned memory covering [addr, addr+size).
func (t *Task) Map(addr, size uint32, prot int, desc string) error {
	addr, size = align(addr, size)
	err := t.Core.MemMap(addr, size, prot, desc)
	return errors.Wrap(err, "t.Map() failed")
}

func (t *Task) MapDevice(addr, size uint32, dev cpu.Device, desc string) error {
	err := t.Core.MemMapDevice(addr, size, dev, desc)
	return errors.Wrap(err, "t.MapDevice() failed")
}

// heap maps [base, base+size) and hands it out through Malloc
func (t *Task) heap(base, size uint32) error {
	if err := t.Map(base, size, cpu.PROT_READ|cpu.PROT_WRITE, "heap"); err != nil {
		return err
	}
	t.heapBase, t.brk = base, base
	t.heapEnd = base + size
	return nil
}

// Malloc returns size bytes of zeroed, page aligned heap memory. Memory is
// never freed.
func (t *Task) Malloc(size uint32) (uint32, error) {
	_, size = align(0, size)
	if size == 0 {
		size = PAGE_SIZE
	}
	if t.brk == 0 || uint64(t.brk)+uint64(size) > uint64(t.heapEnd) {
		return 0, errors.Errorf("out of heap: wanted %#x bytes, %#x left", size, t.heapEnd-t.brk)
	}
	addr := t.brk
	t.brk += size
	return addr, nil
}

func (t *Task) Read(addr, size uint32) ([]byte, error) {
	data, err := t.Core.MemRead(addr, size)
	return data, errors.Wrap(err, "t.Read() failed")
}

func (t *Task) Write(addr uint32, p []byte) error {
	err := t.Core.MemWrite(addr, p)
	return errors.Wrap(err, "t.Write() failed")
}

func (t *Task) ReadUint32(addr uint32) (uint32, error) {
	var buf [4]byte
	if err := t.Core.MemReadInto(buf[:], addr); err != nil {
		return 0, errors.Wrap(err, "t.ReadUint32() failed")
	}
	return t.order.Uint32(buf[:]), nil
}

func (t *Task) WriteUint32(addr, v uint32) error {
	var buf [4]byte
	t.order.PutUint32(buf[:], v)
	return t.Write(addr, buf[:])
}

// RegDump lists a register block in display order.
func (t *Task) RegDump(regs *arm.RegBlock) []models.RegVal {
	return t.arch.RegDump(func(enum int) uint32 { return regs[enum] })
}
