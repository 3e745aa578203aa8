package cpu

import (
	"github.com/pkg/errors"
)

type (
	CodeCb     func(c Cpu, addr uint32, insn uint32)
	IntrCb     func(c Cpu, intno uint32)
	MemCb      func(c Cpu, access int, addr uint32, size int, val uint32)
	MemFaultCb func(c Cpu, access int, addr uint32, size int, val uint32)
)

type hook struct {
	htype int
	begin uint32
	end   uint32
	cb    interface{}
}

// begin > end means "everywhere", which is what HookAdd(t, cb, 1, 0) gives you
func (h *hook) contains(addr uint32) bool {
	return h.begin > h.end || addr >= h.begin && addr <= h.end
}

// Hooks keeps the registered callbacks of a core and fans events out to them.
type Hooks struct {
	cpu   Cpu
	hooks []*hook
}

// NewHooks creates a dispatcher for cpu, optionally attaching it to mem so
// guest accesses report themselves.
func NewHooks(cpu Cpu, mem *Mem) *Hooks {
	h := &Hooks{cpu: cpu}
	if mem != nil {
		mem.hooks = h
	}
	return h
}

func (h *Hooks) HookAdd(htype int, cb interface{}, begin, end uint32) (Hook, error) {
	hh := &hook{htype: htype, begin: begin, end: end}
	switch htype {
	case HOOK_CODE:
		fn, ok := cb.(func(Cpu, uint32, uint32))
		if !ok {
			return nil, errors.Errorf("code hook has wrong signature: %T", cb)
		}
		hh.cb = CodeCb(fn)
	case HOOK_INTR:
		fn, ok := cb.(func(Cpu, uint32))
		if !ok {
			return nil, errors.Errorf("interrupt hook has wrong signature: %T", cb)
		}
		hh.cb = IntrCb(fn)
	case HOOK_MEM_READ, HOOK_MEM_WRITE, HOOK_MEM_READ | HOOK_MEM_WRITE:
		fn, ok := cb.(func(Cpu, int, uint32, int, uint32))
		if !ok {
			return nil, errors.Errorf("memory hook has wrong signature: %T", cb)
		}
		hh.cb = MemCb(fn)
	case HOOK_MEM_ERR:
		fn, ok := cb.(func(Cpu, int, uint32, int, uint32))
		if !ok {
			return nil, errors.Errorf("memory fault hook has wrong signature: %T", cb)
		}
		hh.cb = MemFaultCb(fn)
	default:
		return nil, errors.Errorf("unknown hook type: %d", htype)
	}
	h.hooks = append(h.hooks, hh)
	return hh, nil
}

func (h *Hooks) HookDel(hh Hook) error {
	for i, v := range h.hooks {
		if v == hh {
			h.hooks = append(h.hooks[:i:i], h.hooks[i+1:]...)
			return nil
		}
	}
	return errors.New("hook not found")
}

func (h *Hooks) OnCode(addr, insn uint32) {
	for _, v := range h.hooks {
		if v.htype == HOOK_CODE && v.contains(addr) {
			v.cb.(CodeCb)(h.cpu, addr, insn)
		}
	}
}

func (h *Hooks) OnIntr(intno uint32) {
	for _, v := range h.hooks {
		if v.htype == HOOK_INTR {
			v.cb.(IntrCb)(h.cpu, intno)
		}
	}
}

func (h *Hooks) OnMem(access int, addr uint32, size int, val uint32) {
	want := HOOK_MEM_READ
	if access == MEM_WRITE {
		want = HOOK_MEM_WRITE
	}
	for _, v := range h.hooks {
		if v.htype&want != 0 && v.htype != HOOK_MEM_ERR && v.contains(addr) {
			v.cb.(MemCb)(h.cpu, access, addr, size, val)
		}
	}
}

func (h *Hooks) OnFault(access int, addr uint32, size int, val uint32) {
	for _, v := range h.hooks {
		if v.htype == HOOK_MEM_ERR && v.contains(addr) {
			v.cb.(MemFaultCb)(h.cpu, access, addr, size, val)
		}
	}
}
