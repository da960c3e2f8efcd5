package kernel

import (
	"fmt"

	"github.com/evanphx/mosk/abi"
	"github.com/evanphx/mosk/memory"
	"github.com/pkg/errors"
)

type Kind int

const (
	Unspecified Kind = iota
	NoSuchEnvironment
	InvalidArgument
	OutOfMemory
	NoFreeEnvironmentSlots
	TargetNotReceiving

	// Fatal errors are never returned to user code. They stop the whole
	// system.
	Fatal
)

var kindCodes = map[Kind]int32{
	Unspecified:            abi.E_UNSPECIFIED,
	NoSuchEnvironment:      abi.E_BAD_ENV,
	InvalidArgument:        abi.E_INVAL,
	OutOfMemory:            abi.E_NO_MEM,
	NoFreeEnvironmentSlots: abi.E_NO_FREE_ENV,
	TargetNotReceiving:     abi.E_IPC_NOT_RECV,
}

func (k Kind) String() string {
	switch k {
	case NoSuchEnvironment:
		return "no such environment"
	case InvalidArgument:
		return "invalid argument"
	case OutOfMemory:
		return "out of memory"
	case NoFreeEnvironmentSlots:
		return "no free environment slots"
	case TargetNotReceiving:
		return "target not receiving"
	case Fatal:
		return "fatal"
	default:
		return "unspecified"
	}
}

type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}

	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Errno is the negative code handed back to user code.
func (e *Error) Errno() int32 {
	if code, ok := kindCodes[e.Kind]; ok {
		return -code
	}

	return -abi.E_UNSPECIFIED
}

func (e *Error) Fatal() bool {
	return e.Kind == Fatal
}

var (
	ErrBadEnv      = &Error{Kind: NoSuchEnvironment}
	ErrInval       = &Error{Kind: InvalidArgument}
	ErrNoMem       = &Error{Kind: OutOfMemory}
	ErrNoFreeEnv   = &Error{Kind: NoFreeEnvironmentSlots}
	ErrIPCNotRecv  = &Error{Kind: TargetNotReceiving}
	ErrUnspecified = &Error{Kind: Unspecified}
	ErrIdle        = errors.New("no runnable environments")
)

// Halt builds the fatal error that stops the system.
func Halt(format string, args ...interface{}) *Error {
	return &Error{Kind: Fatal, Msg: fmt.Sprintf(format, args...)}
}

// KindOf reports the kind of any error produced by the kernel or the
// memory collaborators, looking through wrapping.
func KindOf(err error) Kind {
	switch cause := errors.Cause(err).(type) {
	case *Error:
		return cause.Kind
	}

	if errors.Cause(err) == memory.ErrNoFreeFrames {
		return OutOfMemory
	}

	return Unspecified
}

// Errno converts err into the negative code returned from a syscall. A nil
// error is 0.
func Errno(err error) int32 {
	if err == nil {
		return 0
	}

	if code, ok := kindCodes[KindOf(err)]; ok {
		return -code
	}

	return -abi.E_UNSPECIFIED
}

// IsFatal reports whether err must halt the system.
func IsFatal(err error) bool {
	return KindOf(err) == Fatal
}
