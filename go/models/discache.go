package models

import (
	"bytes"
	"sync"
)

type DiscacheEntry struct {
	Addr uint32
	Mem  []byte
	Dis  []Ins
}

// Discache remembers disassembly by address, invalidated when the bytes at
// the address change.
type Discache struct {
	sync.RWMutex
	cache map[uint32]*DiscacheEntry
}

func NewDiscache() *Discache {
	return &Discache{cache: make(map[uint32]*DiscacheEntry)}
}

func (d *Discache) Get(addr uint32, mem []byte) *DiscacheEntry {
	d.RLock()
	defer d.RUnlock()
	if ent, ok := d.cache[addr]; ok && bytes.Equal(mem, ent.Mem) {
		return ent
	}
	return nil
}

func (d *Discache) Put(addr uint32, mem []byte, dis []Ins) {
	d.Lock()
	d.cache[addr] = &DiscacheEntry{
		Addr: addr,
		Mem:  append([]byte(nil), mem...),
		Dis:  dis,
	}
	d.Unlock()
}
