package cp14

import "fmt"

// DebugID is the decoded DIDR.
type DebugID struct {
	Revision uint8
	Variant  uint8
	DebugRev uint8
	DebugVer uint8
	Contexts int
	BRPs     int
	WRPs     int
}

func DecodeDebugID(v uint32) DebugID {
	return DebugID{
		Revision: uint8(v & 0xf),
		Variant:  uint8(v >> 4 & 0xf),
		DebugRev: uint8(v >> 12 & 0xf),
		DebugVer: uint8(v >> 16 & 0xf),
		Contexts: int(v>>20&0xf) + 1,
		BRPs:     int(v>>24&0xf) + 1,
		WRPs:     int(v>>28&0xf) + 1,
	}
}

func (d *Debug) ID() DebugID {
	return DecodeDebugID(d.DIDR())
}

func (id DebugID) String() string {
	return fmt.Sprintf("debug v%d rev %d, %d breakpoints, %d watchpoints, %d contexts",
		id.DebugVer, id.DebugRev, id.BRPs, id.WRPs, id.Contexts)
}

// Priv is the privileged access control field, BCR/WCR[2:1].
type Priv uint32

const (
	PrivPrivileged Priv = 1
	PrivUser       Priv = 2
	PrivAny        Priv = 3
)

// Meaning is BCR[22:21].
type Meaning uint32

const (
	Match    Meaning = 0
	Mismatch Meaning = 2
)

// BCR is a breakpoint control register.
type BCR struct {
	Enable     bool
	Priv       Priv
	ByteSelect uint8
	Meaning    Meaning
}

func (b BCR) Encode() uint32 {
	v := uint32(b.Meaning&3)<<21 | uint32(b.ByteSelect&0xf)<<5 | uint32(b.Priv&3)<<1
	if b.Enable {
		v |= 1
	}
	return v
}

func DecodeBCR(v uint32) BCR {
	return BCR{
		Enable:     v&1 != 0,
		Priv:       Priv(v >> 1 & 3),
		ByteSelect: uint8(v >> 5 & 0xf),
		Meaning:    Meaning(v >> 21 & 3),
	}
}

// Access is the load/store select field, WCR[4:3].
type Access uint32

const (
	Load   Access = 1
	Store  Access = 2
	Either Access = 3
)

// WCR is a watchpoint control register.
type WCR struct {
	Enable     bool
	Priv       Priv
	Access     Access
	ByteSelect uint8
}

func (w WCR) Encode() uint32 {
	v := uint32(w.ByteSelect&0xf)<<5 | uint32(w.Access&3)<<3 | uint32(w.Priv&3)<<1
	if w.Enable {
		v |= 1
	}
	return v
}

func DecodeWCR(v uint32) WCR {
	return WCR{
		Enable:     v&1 != 0,
		Priv:       Priv(v >> 1 & 3),
		Access:     Access(v >> 3 & 3),
		ByteSelect: uint8(v >> 5 & 0xf),
	}
}
