// Package cpu wraps the native assembler and disassembler used by the
// command line tools. Both need cgo and the engines' shared libraries.
package cpu

import (
	ks "github.com/keystone-engine/keystone/bindings/go/keystone"
	"github.com/pkg/errors"
)

// Keystone assembles A32 code.
type Keystone struct {
	ks *ks.Keystone
}

func (k *Keystone) Open() (err error) {
	k.ks, err = ks.New(ks.ARCH_ARM, ks.MODE_ARM)
	return errors.Wrap(err, "ks.New() failed")
}

// Asm assembles asm as if loaded at addr.
func (k *Keystone) Asm(asm string, addr uint32) ([]byte, error) {
	if k.ks == nil {
		if err := k.Open(); err != nil {
			return nil, err
		}
	}
	out, _, ok := k.ks.Assemble(asm, uint64(addr))
	if !ok {
		return nil, errors.Wrap(k.ks.LastError(), "ks.Assemble() failed")
	}
	return out, nil
}

func (k *Keystone) Close() error {
	if k.ks == nil {
		return nil
	}
	err := k.ks.Close()
	k.ks = nil
	return errors.Wrap(err, "ks.Close() failed")
}
