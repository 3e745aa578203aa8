package cpu

// hook kinds, numbered like unicorn's so callers can keep their habits
const (
	// exception entry; the callback receives the exception number
	HOOK_INTR = 1

	// each executed instruction
	HOOK_CODE = 4

	// (after) each completed data access
	HOOK_MEM_READ  = 1024
	HOOK_MEM_WRITE = 2048

	// every failed access
	HOOK_MEM_ERR = 1008
)

// failed access reasons, reported by MemError and HOOK_MEM_ERR
const (
	MEM_READ_UNMAPPED  = 19
	MEM_WRITE_UNMAPPED = 20
	MEM_FETCH_UNMAPPED = 21
	MEM_WRITE_PROT     = 12
	MEM_READ_PROT      = 13
	MEM_FETCH_PROT     = 14
	MEM_ALIGN          = 15
)

const (
	PROT_NONE  = 0
	PROT_READ  = 1
	PROT_WRITE = 2
	PROT_EXEC  = 4
	PROT_ALL   = 7
)

// access kinds passed to memory hooks
const (
	MEM_WRITE = 16
	MEM_READ  = 17
	MEM_FETCH = 18
)
