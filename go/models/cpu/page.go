package cpu

import (
	"fmt"
	"sort"
	"strings"
)

// Device backs an MMIO page. off is relative to the page start.
type Device interface {
	Load(off uint32, size int) uint32
	Store(off uint32, size int, val uint32)
}

type Page struct {
	Addr uint32
	Size uint32
	Prot int
	Data []byte
	Dev  Device

	Desc string
}

func (p *Page) end() uint64 {
	return uint64(p.Addr) + uint64(p.Size)
}

func (p *Page) String() string {
	prots := []int{PROT_READ, PROT_WRITE, PROT_EXEC}
	chars := []string{"r", "w", "x"}
	prot := ""
	for i := range prots {
		if p.Prot&prots[i] != 0 {
			prot += chars[i]
		} else {
			prot += "-"
		}
	}
	desc := fmt.Sprintf("0x%08x-0x%08x %s", p.Addr, p.end(), prot)
	if p.Dev != nil {
		desc += " mmio"
	}
	if p.Desc != "" {
		desc += fmt.Sprintf(" [%s]", p.Desc)
	}
	return desc
}

func (p *Page) Contains(addr uint32) bool {
	return addr >= p.Addr && uint64(addr) < p.end()
}

func (p *Page) Overlaps(addr, size uint32) bool {
	return uint64(addr) < p.end() && uint64(addr)+uint64(size) > uint64(p.Addr)
}

// Pages is kept sorted by address and never overlaps.
type Pages []*Page

func (p Pages) String() string {
	s := make([]string, len(p))
	for i, v := range p {
		s[i] = v.String()
	}
	return strings.Join(s, "\n")
}

func (p Pages) Find(addr uint32) *Page {
	i := sort.Search(len(p), func(i int) bool { return p[i].end() > uint64(addr) })
	if i < len(p) && p[i].Contains(addr) {
		return p[i]
	}
	return nil
}

func (p Pages) insert(pg *Page) Pages {
	i := sort.Search(len(p), func(i int) bool { return p[i].Addr > pg.Addr })
	p = append(p, nil)
	copy(p[i+1:], p[i:])
	p[i] = pg
	return p
}
