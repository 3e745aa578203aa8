package arm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
)

const (
	RegSP   = 13
	RegLR   = 14
	RegPC   = 15
	RegCPSR = 16
	NumRegs = 17
)

// RegBlock is a complete execution context: r0-r15 followed by the CPSR.
// Trampolines and trace files depend on exactly this layout.
type RegBlock [NumRegs]uint32

// raw view used by Bytes/SetBytes
type rawBlock struct {
	Words []uint32 `struc:"[17]uint32,little"`
}

// NewUserRegs builds the initial context of a function run unprivileged:
// pc=entry, r0=arg, the given sp, lr pointing at an exit trampoline and a
// user-mode cpsr derived from cpsr.
func NewUserRegs(entry, arg, sp, lr, cpsr uint32) RegBlock {
	var r RegBlock
	r.SetPC(entry)
	r.SetR(0, arg)
	r.SetSP(sp)
	r.SetLR(lr)
	r.SetCPSR(UserCPSR(cpsr))
	return r
}

func checkGPR(i int) {
	if i < 0 || i > 15 {
		panic(fmt.Sprintf("bad general register index %d", i))
	}
}

func (r *RegBlock) R(i int) uint32 {
	checkGPR(i)
	return r[i]
}

func (r *RegBlock) SetR(i int, v uint32) {
	checkGPR(i)
	r[i] = v
}

func (r *RegBlock) PC() uint32       { return r[RegPC] }
func (r *RegBlock) SetPC(v uint32)   { r[RegPC] = v }
func (r *RegBlock) SP() uint32       { return r[RegSP] }
func (r *RegBlock) SetSP(v uint32)   { r[RegSP] = v }
func (r *RegBlock) LR() uint32       { return r[RegLR] }
func (r *RegBlock) SetLR(v uint32)   { r[RegLR] = v }
func (r *RegBlock) CPSR() uint32     { return r[RegCPSR] }
func (r *RegBlock) SetCPSR(v uint32) { r[RegCPSR] = v }
func (r *RegBlock) Mode() Mode       { return ModeOf(r[RegCPSR]) }

// Validate checks that the block describes a resumable context.
func (r *RegBlock) Validate() error {
	if m := r.Mode(); !m.Valid() {
		return errors.Errorf("cpsr %#08x: invalid mode %#x", r.CPSR(), uint32(m))
	}
	if r.CPSR()&PsrT != 0 {
		return errors.Errorf("cpsr %#08x: thumb state not supported", r.CPSR())
	}
	return nil
}

// Bytes returns the 68-byte little-endian image of the block.
func (r *RegBlock) Bytes() []byte {
	var buf bytes.Buffer
	raw := rawBlock{Words: r[:]}
	if err := struc.PackWithOrder(&buf, &raw, binary.LittleEndian); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func (r *RegBlock) SetBytes(p []byte) error {
	if len(p) != NumRegs*4 {
		return errors.Errorf("register block is %d bytes, got %d", NumRegs*4, len(p))
	}
	var raw rawBlock
	if err := struc.UnpackWithOrder(bytes.NewReader(p), &raw, binary.LittleEndian); err != nil {
		return errors.Wrap(err, "unpack register block")
	}
	copy(r[:], raw.Words)
	return nil
}

// Diff lists the registers that differ from o, by name.
func (r *RegBlock) Diff(o *RegBlock) []string {
	var out []string
	for i := range r {
		if r[i] != o[i] {
			out = append(out, fmt.Sprintf("%s: %#x != %#x", RegName(i), r[i], o[i]))
		}
	}
	return out
}

func (r *RegBlock) String() string {
	var lines []string
	for i := 0; i < 16; i += 4 {
		var cols []string
		for j := i; j < i+4; j++ {
			cols = append(cols, fmt.Sprintf("%4s %08x", RegName(j), r[j]))
		}
		lines = append(lines, strings.Join(cols, " "))
	}
	lines = append(lines, fmt.Sprintf("cpsr %08x (%s)", r.CPSR(), r.Mode()))
	return strings.Join(lines, "\n")
}

func RegName(i int) string {
	switch i {
	case RegSP:
		return "sp"
	case RegLR:
		return "lr"
	case RegPC:
		return "pc"
	case RegCPSR:
		return "cpsr"
	}
	return fmt.Sprintf("r%d", i)
}
