package cpu

import (
	"encoding/binary"
	"fmt"

	cs "github.com/lunixbochs/capstr"
	"github.com/pkg/errors"

	"github.com/stepcorn/stepcorn/go/models"
)

// Capstr disassembles A32 code, caching by address and bytes.
type Capstr struct {
	cs *cs.Engine
	dc *models.Discache
}

func (c *Capstr) Open() (err error) {
	engine, err := cs.New(cs.ARCH_ARM, cs.MODE_ARM)
	if err == nil {
		c.cs = engine
		c.dc = models.NewDiscache()
	}
	return errors.Wrap(err, "cs.New() failed")
}

func (c *Capstr) Dis(mem []byte, addr uint32) ([]models.Ins, error) {
	if c.cs == nil {
		if err := c.Open(); err != nil {
			return nil, err
		}
	}
	if ent := c.dc.Get(addr, mem); ent != nil {
		return ent.Dis, nil
	}
	dis, err := c.cs.Dis(mem, uint64(addr), 0)
	if err != nil {
		return nil, errors.Wrap(err, "capstone disassembly failed")
	}
	ret := make([]models.Ins, len(dis))
	for i, v := range dis {
		ret[i] = v
	}
	c.dc.Put(addr, mem, ret)
	return ret, nil
}

// Insn renders one instruction word as "mnemonic operands".
func (c *Capstr) Insn(insn, addr uint32) (string, error) {
	var mem [4]byte
	binary.LittleEndian.PutUint32(mem[:], insn)
	dis, err := c.Dis(mem[:], addr)
	if err != nil {
		return "", err
	}
	if len(dis) == 0 {
		return "(bad)", nil
	}
	return fmt.Sprintf("%s %s", dis[0].Mnemonic(), dis[0].OpStr()), nil
}
