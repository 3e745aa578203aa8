package trace

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"

	"github.com/stepcorn/stepcorn/go/arch/arm"
)

var order = binary.LittleEndian

const (
	OP_NOP  = 0
	OP_STEP = 1
	OP_EXIT = 2
)

type Op interface {
	Pack(w io.Writer) (int, error)
	Unpack(r io.Reader) (int, error)
}

// Unpack reads one tagged event. A clean end of stream is reported as io.EOF.
func Unpack(r io.Reader) (Op, int, error) {
	var tmp [1]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return nil, 0, err
	}
	var op Op
	switch tmp[0] {
	case OP_NOP:
		op = &OpNop{}
	case OP_STEP:
		op = &OpStep{}
	case OP_EXIT:
		op = &OpExit{}
	default:
		return nil, 1, errors.Errorf("Unknown op: %d", tmp[0])
	}
	n, err := op.Unpack(r)
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return op, n + 1, err
}

func packTagged(w io.Writer, tag byte, body interface{}) (int, error) {
	if _, err := w.Write([]byte{tag}); err != nil {
		return 0, err
	}
	if body == nil {
		return 1, nil
	}
	if err := struc.PackWithOrder(w, body, order); err != nil {
		return 1, err
	}
	size, err := struc.Sizeof(body)
	return size + 1, err
}

func unpackBody(r io.Reader, body interface{}) (int, error) {
	if err := struc.UnpackWithOrder(r, body, order); err != nil {
		return 0, err
	}
	return struc.Sizeof(body)
}

type OpNop struct{}

func (o *OpNop) Pack(w io.Writer) (int, error)   { return packTagged(w, OP_NOP, nil) }
func (o *OpNop) Unpack(r io.Reader) (int, error) { return 0, nil }

// OpStep records one trapped instruction: its address, encoding and the
// per-run count at the time of the trap.
type OpStep struct {
	PC    uint32
	Insn  uint32
	Count uint64
}

func (o *OpStep) Pack(w io.Writer) (int, error)   { return packTagged(w, OP_STEP, o) }
func (o *OpStep) Unpack(r io.Reader) (int, error) { return unpackBody(r, o) }

func (o *OpStep) String() string {
	return fmt.Sprintf("step %#08x: %08x @ %d", o.PC, o.Insn, o.Count)
}

// OpExit carries the register block captured by the exit call.
type OpExit struct {
	Regs arm.RegBlock
}

func (o *OpExit) Pack(w io.Writer) (int, error) {
	if _, err := w.Write([]byte{OP_EXIT}); err != nil {
		return 0, err
	}
	n, err := w.Write(o.Regs.Bytes())
	return n + 1, err
}

func (o *OpExit) Unpack(r io.Reader) (int, error) {
	var tmp [arm.NumRegs * 4]byte
	n, err := io.ReadFull(r, tmp[:])
	if err == nil {
		err = o.Regs.SetBytes(tmp[:])
	}
	return n, err
}

func (o *OpExit) String() string {
	return "exit\n" + o.Regs.String()
}
