package models

import (
	"sort"

	"github.com/lunixbochs/fvbommel-util/sortorder"
)

type Reg struct {
	Enum int
	Name string
}

type RegVal struct {
	Reg
	Val uint32
}

type regList []Reg

func (r regList) Len() int           { return len(r) }
func (r regList) Swap(i, j int)      { r[i], r[j] = r[j], r[i] }
func (r regList) Less(i, j int) bool { return sortorder.NaturalLess(r[i].Name, r[j].Name) }

// Arch describes a register file: Regs maps a register index (as used by the
// arch's register block) to its display name.
type Arch struct {
	Name string
	Bits int
	PC   int
	SP   int
	Regs map[int]string

	// sorted for RegDump
	regList regList
}

func (a *Arch) RegList() []Reg {
	if a.regList == nil {
		rl := make(regList, 0, len(a.Regs))
		for e, n := range a.Regs {
			rl = append(rl, Reg{e, n})
		}
		sort.Sort(rl)
		a.regList = rl
	}
	return a.regList
}

// RegDump reads every register through read, in natural name order.
func (a *Arch) RegDump(read func(enum int) uint32) []RegVal {
	rl := a.RegList()
	ret := make([]RegVal, len(rl))
	for i, r := range rl {
		ret[i] = RegVal{r, read(r.Enum)}
	}
	return ret
}
