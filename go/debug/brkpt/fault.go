package brkpt

import (
	"fmt"

	"github.com/pkg/errors"
)

type Kind int

const (
	Mismatch Kind = iota + 1
	Match
	WatchLoad
	WatchStore
)

var kindNames = map[Kind]string{
	Mismatch:   "mismatch",
	Match:      "match",
	WatchLoad:  "watch-load",
	WatchStore: "watch-store",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// FaultRecord describes one debug trap. Addr is the faulting pc for
// breakpoints and the accessed address for watchpoints.
type FaultRecord struct {
	Addr     uint32
	Kind     Kind
	ResumePC uint32
}

func (f FaultRecord) String() string {
	return fmt.Sprintf("%s fault at %#x, resume %#x", f.Kind, f.Addr, f.ResumePC)
}

// ConfigError is a misuse of the debug units. It is raised with panic: the
// register state can no longer be trusted.
type ConfigError struct {
	Unit string
	Msg  string

	origin error
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

func traceOf(err error) errors.StackTrace {
	if st, ok := err.(stackTracer); ok {
		return st.StackTrace()
	}
	return nil
}

func (e *ConfigError) StackTrace() errors.StackTrace { return traceOf(e.origin) }

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s", e.Unit, e.Msg)
}

func configErr(unit, format string, a ...interface{}) {
	msg := fmt.Sprintf(format, a...)
	panic(&ConfigError{Unit: unit, Msg: msg, origin: errors.New(msg)})
}

// FaultError is a trap the controller did not expect.
type FaultError struct {
	Abort  Abort
	Status uint32
	Addr   uint32
	Msg    string

	origin error
}

func (e *FaultError) StackTrace() errors.StackTrace { return traceOf(e.origin) }

func (e *FaultError) Error() string {
	return fmt.Sprintf("unexpected %s at %#x (fsr=%#x): %s", e.Abort, e.Addr, e.Status, e.Msg)
}

func (c *Controller) faultErr(abort Abort, status, addr uint32, msg string) {
	panic(&FaultError{Abort: abort, Status: status, Addr: addr, Msg: msg, origin: errors.New(msg)})
}
