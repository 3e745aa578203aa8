package cpu

type Hook interface{}

// Cpu is the part of an emulated core that memory devices, hooks and
// tracing code are allowed to see. Register state is core specific.
type Cpu interface {
	// memory mapping
	MemMap(addr, size uint32, prot int, desc string) error
	MemMapDevice(addr, size uint32, dev Device, desc string) error
	Mappings() Pages

	// host-side memory IO, ignores protections
	MemRead(addr, size uint32) ([]byte, error)
	MemReadInto(p []byte, addr uint32) error
	MemWrite(addr uint32, p []byte) error

	// hooks
	HookAdd(htype int, cb interface{}, begin, end uint32) (Hook, error)
	HookDel(hook Hook) error

	// number of cycles executed so far
	Cycles() uint64
}
