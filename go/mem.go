package stepcorn

const (
	PAGE_SIZE = 4 * 1024

	// fixed guest layout; the image and heap come from models.Config
	EXIT_TRAMPOLINE = 0x1000
)

// align grows [addr, addr+size) to page boundaries
func align(addr, size uint32) (uint32, uint32) {
	to := uint64(PAGE_SIZE)
	mask := ^(to - 1)
	right := (uint64(addr) + uint64(size) + to - 1) & mask
	left := uint64(addr) & mask
	return uint32(left), uint32(right - left)
}
