package common

import "fmt"

type (
	// Char is the low byte of a register.
	Char byte
	// Code is an exit code.
	Code int32
)

func (c Char) String() string {
	return fmt.Sprintf("%q", rune(c))
}
