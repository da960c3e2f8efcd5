package syscalls

import (
	"context"

	"github.com/evanphx/mosk/abi"
	"github.com/evanphx/mosk/kernel"
	hclog "github.com/hashicorp/go-hclog"
)

type SysArgs struct {
	Index uint32
	Args  SyscallRequest
}

// SyscallRequest holds the arguments in calling convention order: R0-R2
// come from a1-a3, R3 and R4 from the caller's stack at sp+16 and sp+20.
type SyscallRequest struct {
	R0, R1, R2, R3, R4 uint32
}

type Handler func(context.Context, hclog.Logger, *kernel.Task, SysArgs) int32

var Syscalls [abi.NumSyscalls]Handler

// stackArgs is how many arguments a syscall takes from the stack.
var stackArgs = map[uint32]int{
	abi.SYS_mem_map:      2,
	abi.SYS_ipc_can_send: 1,
}

func register(num uint32, h Handler) {
	Syscalls[num-abi.SyscallBase] = h
}

func lookup(num uint32) Handler {
	if num < abi.SyscallBase || num-abi.SyscallBase >= abi.NumSyscalls {
		return nil
	}

	return Syscalls[num-abi.SyscallBase]
}
