package trace

import (
	"encoding/binary"
	"io"
	"strings"

	"github.com/golang/snappy"
	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"

	"github.com/stepcorn/stepcorn/go/arch"
	"github.com/stepcorn/stepcorn/go/models"
)

var TRACE_MAGIC = "SCTR"

const TRACE_VERSION = 1

type TraceHeader struct {
	// MAGIC ("SCTR")
	Magic string `struc:"[4]byte"`
	// file format version
	Version uint32

	// Emulated architecture. Right-null-padded.
	Arch string `struc:"[32]byte"`

	// Byte Order - 0 for little, 1 for big
	OrderNum uint8
	Order    binary.ByteOrder `struc:"skip"`
}

type TraceWriter struct {
	w  io.WriteCloser
	zw *snappy.Writer
}

func NewWriter(w io.WriteCloser, a *models.Arch, order binary.ByteOrder) (*TraceWriter, error) {
	var num uint8
	if order == binary.BigEndian {
		num = 1
	}
	header := &TraceHeader{
		Magic:    TRACE_MAGIC,
		Version:  TRACE_VERSION,
		Arch:     a.Name,
		OrderNum: num,
		Order:    order,
	}
	if err := struc.Pack(w, header); err != nil {
		return nil, errors.Wrap(err, "failed to pack header")
	}
	return &TraceWriter{w: w, zw: snappy.NewBufferedWriter(w)}, nil
}

// write an event at a time
func (t *TraceWriter) Pack(op Op) error {
	_, err := op.Pack(t.zw)
	return err
}

func (t *TraceWriter) Close() error {
	if err := t.zw.Close(); err != nil {
		t.w.Close()
		return errors.Wrap(err, "failed to flush trace")
	}
	return t.w.Close()
}

type TraceReader struct {
	r      io.ReadCloser
	zr     *snappy.Reader
	Header TraceHeader

	Arch *models.Arch
}

func NewReader(r io.ReadCloser) (*TraceReader, error) {
	t := &TraceReader{r: r}
	if err := struc.Unpack(r, &t.Header); err != nil {
		return nil, errors.Wrap(err, "failed to unpack header")
	}
	if t.Header.Magic != TRACE_MAGIC {
		return nil, errors.New("invalid trace file magic")
	}
	if t.Header.Version != TRACE_VERSION {
		return nil, errors.Errorf("unsupported trace version %d", t.Header.Version)
	}
	t.Header.Arch = strings.TrimRight(t.Header.Arch, "\x00")
	switch t.Header.OrderNum {
	case 0:
		t.Header.Order = binary.LittleEndian
	case 1:
		t.Header.Order = binary.BigEndian
	default:
		return nil, errors.Errorf("bad byte order %d", t.Header.OrderNum)
	}
	var err error
	t.Arch, err = arch.GetArch(t.Header.Arch)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get arch")
	}
	t.zr = snappy.NewReader(r)
	return t, nil
}

// Next returns io.EOF once the stream is exhausted.
func (t *TraceReader) Next() (Op, error) {
	op, _, err := Unpack(t.zr)
	return op, err
}

func (t *TraceReader) Close() error {
	t.zr.Reset(nil)
	return t.r.Close()
}
