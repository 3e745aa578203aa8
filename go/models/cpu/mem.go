package cpu

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

type MemError struct {
	Addr uint32
	Size int
	Enum int
}

func (m *MemError) Error() string {
	reason := "memory error"
	switch m.Enum {
	case MEM_WRITE_UNMAPPED:
		reason = "unmapped write"
	case MEM_READ_UNMAPPED:
		reason = "unmapped read"
	case MEM_FETCH_UNMAPPED:
		reason = "unmapped fetch"
	case MEM_WRITE_PROT:
		reason = "protected write"
	case MEM_READ_PROT:
		reason = "protected read"
	case MEM_FETCH_PROT:
		reason = "protected exec"
	case MEM_ALIGN:
		reason = "unaligned access"
	}
	return fmt.Sprintf("%s at %#x(%d)", reason, m.Addr, m.Size)
}

// Mem is a little-endian 32-bit physical address space made of RAM pages and
// MMIO device pages. Guest accesses go through ReadUint/WriteUint, which check
// protections and report to the attached hooks once the access completed.
type Mem struct {
	// set when passing *Mem to NewHooks()
	hooks *Hooks
	pages Pages
}

func NewMem() *Mem {
	return &Mem{}
}

func (m *Mem) mapPage(pg *Page) error {
	if pg.Size == 0 || pg.end() > 1<<32 {
		return errors.Errorf("bad region %#x+%#x", pg.Addr, pg.Size)
	}
	for _, v := range m.pages {
		if v.Overlaps(pg.Addr, pg.Size) {
			return errors.Errorf("region %#x+%#x overlaps %s", pg.Addr, pg.Size, v)
		}
	}
	m.pages = m.pages.insert(pg)
	return nil
}

func (m *Mem) MemMap(addr, size uint32, prot int, desc string) error {
	return m.mapPage(&Page{Addr: addr, Size: size, Prot: prot, Data: make([]byte, size), Desc: desc})
}

func (m *Mem) MemMapDevice(addr, size uint32, dev Device, desc string) error {
	return m.mapPage(&Page{Addr: addr, Size: size, Prot: PROT_READ | PROT_WRITE, Dev: dev, Desc: desc})
}

func (m *Mem) Mappings() Pages {
	return m.pages
}

// walks the RAM pages covering addr..addr+n, failing on holes and devices
func (m *Mem) span(addr uint32, n int, enum int, fn func(pg *Page, off uint32, lo, hi int)) error {
	pos := 0
	for pos < n {
		a := addr + uint32(pos)
		pg := m.pages.Find(a)
		if pg == nil || pg.Dev != nil {
			return &MemError{Addr: a, Size: n - pos, Enum: enum}
		}
		off := a - pg.Addr
		chunk := int(pg.Size - off)
		if chunk > n-pos {
			chunk = n - pos
		}
		fn(pg, off, pos, pos+chunk)
		pos += chunk
	}
	return nil
}

func (m *Mem) MemReadInto(p []byte, addr uint32) error {
	return m.span(addr, len(p), MEM_READ_UNMAPPED, func(pg *Page, off uint32, lo, hi int) {
		copy(p[lo:hi], pg.Data[off:])
	})
}

func (m *Mem) MemRead(addr, size uint32) ([]byte, error) {
	p := make([]byte, size)
	if err := m.MemReadInto(p, addr); err != nil {
		return nil, err
	}
	return p, nil
}

func (m *Mem) MemWrite(addr uint32, p []byte) error {
	if err := m.span(addr, len(p), MEM_WRITE_UNMAPPED, func(*Page, uint32, int, int) {}); err != nil {
		return err
	}
	return m.span(addr, len(p), MEM_WRITE_UNMAPPED, func(pg *Page, off uint32, lo, hi int) {
		copy(pg.Data[off:], p[lo:hi])
	})
}

// guest accesses are naturally aligned, so they never cross a page
func (m *Mem) lookup(addr uint32, size, prot, access int) (*Page, error) {
	unmapped, denied := MEM_READ_UNMAPPED, MEM_READ_PROT
	switch access {
	case MEM_WRITE:
		unmapped, denied = MEM_WRITE_UNMAPPED, MEM_WRITE_PROT
	case MEM_FETCH:
		unmapped, denied = MEM_FETCH_UNMAPPED, MEM_FETCH_PROT
	}
	if addr&uint32(size-1) != 0 {
		return nil, &MemError{Addr: addr, Size: size, Enum: MEM_ALIGN}
	}
	pg := m.pages.Find(addr)
	if pg == nil || uint64(addr)+uint64(size) > pg.end() {
		return nil, &MemError{Addr: addr, Size: size, Enum: unmapped}
	}
	if prot != 0 && pg.Prot&prot != prot {
		return nil, &MemError{Addr: addr, Size: size, Enum: denied}
	}
	return pg, nil
}

func (m *Mem) fault(err error, access int, addr uint32, size int, val uint32) error {
	if m.hooks != nil {
		m.hooks.OnFault(access, addr, size, val)
	}
	return err
}

// ReadUint performs a guest load of size 1, 2 or 4 bytes.
func (m *Mem) ReadUint(addr uint32, size, prot int) (uint32, error) {
	access := MEM_READ
	if prot&PROT_EXEC != 0 {
		access = MEM_FETCH
	}
	pg, err := m.lookup(addr, size, prot, access)
	if err != nil {
		return 0, m.fault(err, access, addr, size, 0)
	}
	var val uint32
	off := addr - pg.Addr
	if pg.Dev != nil {
		val = pg.Dev.Load(off, size)
	} else {
		switch size {
		case 1:
			val = uint32(pg.Data[off])
		case 2:
			val = uint32(binary.LittleEndian.Uint16(pg.Data[off:]))
		case 4:
			val = binary.LittleEndian.Uint32(pg.Data[off:])
		default:
			return 0, errors.Errorf("ReadUint bad size: %d", size)
		}
	}
	if m.hooks != nil && access == MEM_READ {
		m.hooks.OnMem(access, addr, size, val)
	}
	return val, nil
}

// WriteUint performs a guest store of size 1, 2 or 4 bytes.
func (m *Mem) WriteUint(addr uint32, size, prot int, val uint32) error {
	pg, err := m.lookup(addr, size, prot, MEM_WRITE)
	if err != nil {
		return m.fault(err, MEM_WRITE, addr, size, val)
	}
	off := addr - pg.Addr
	if pg.Dev != nil {
		pg.Dev.Store(off, size, val)
	} else {
		switch size {
		case 1:
			pg.Data[off] = byte(val)
		case 2:
			binary.LittleEndian.PutUint16(pg.Data[off:], uint16(val))
		case 4:
			binary.LittleEndian.PutUint32(pg.Data[off:], val)
		default:
			return errors.Errorf("WriteUint bad size: %d", size)
		}
	}
	if m.hooks != nil {
		m.hooks.OnMem(MEM_WRITE, addr, size, val)
	}
	return nil
}
