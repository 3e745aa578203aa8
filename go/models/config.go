package models

import (
	"io"
	"os"
)

type Config struct {
	Color     bool
	TraceExec bool
	TraceMem  bool
	TraceReg  bool
	TraceSys  bool
	Verbose   bool

	// guest physical layout
	ImageBase uint32
	ImageSize uint32
	HeapBase  uint32
	HeapSize  uint32
	// cycles per UART byte
	UartDrain int

	// trace and status output, stderr when nil
	Output io.Writer
	// what the guest prints, stdout when nil
	UartOut io.Writer
}

func (c *Config) Init() *Config {
	if c == nil {
		c = &Config{}
	}
	if c.Output == nil {
		c.Output = os.Stderr
	}
	if c.UartOut == nil {
		c.UartOut = os.Stdout
	}
	if c.ImageBase == 0 {
		c.ImageBase = 0x8000
	}
	if c.ImageSize == 0 {
		c.ImageSize = 0x100000
	}
	if c.HeapBase == 0 {
		c.HeapBase = 0x200000
	}
	if c.HeapSize == 0 {
		c.HeapSize = 0x100000
	}
	if c.UartDrain == 0 {
		c.UartDrain = 4
	}
	return c
}
