package syscalls

import (
	"context"

	"github.com/evanphx/mosk/abi"
	"github.com/evanphx/mosk/exec"
	"github.com/evanphx/mosk/kernel"
	"github.com/pkg/errors"
)

type Invoker struct {
	Kernel *kernel.Kernel
}

func decodeArgs(task *kernel.Task) (SysArgs, error) {
	regs := task.Regs()

	args := SysArgs{
		Index: regs.Regs[exec.RegA0],
		Args: SyscallRequest{
			R0: regs.Regs[exec.RegA1],
			R1: regs.Regs[exec.RegA2],
			R2: regs.Regs[exec.RegA3],
		},
	}

	sp := regs.Regs[exec.RegSP]

	extra := []*uint32{&args.Args.R3, &args.Args.R4}
	for i := 0; i < stackArgs[args.Index]; i++ {
		v, err := task.ReadWord(sp + 16 + uint32(i*4))
		if err != nil {
			return args, errors.Wrapf(err, "reading syscall argument %d", i+4)
		}

		*extra[i] = v
	}

	return args, nil
}

func (i *Invoker) InvokeSyscall(ctx context.Context) int32 {
	task, ok := kernel.GetTask(ctx)
	if !ok {
		return -abi.E_UNSPECIFIED
	}

	l := i.Kernel.L

	args, err := decodeArgs(task)
	if err != nil {
		l.Debug("bad syscall arguments", "env", task.ID, "error", err)
		return -abi.E_INVAL
	}

	f := lookup(args.Index)
	if f == nil {
		l.Debug("unknown syscall", "env", task.ID, "index", args.Index)
		return -abi.E_UNSPECIFIED
	}

	l.Trace("syscall", "env", task.ID, "name", abi.SyscallNames[args.Index], "args", args.Args)

	return f(ctx, l, task, args)
}
