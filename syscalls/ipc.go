package syscalls

import (
	"context"

	"github.com/evanphx/mosk/abi"
	"github.com/evanphx/mosk/kernel"
	hclog "github.com/hashicorp/go-hclog"
)

func sysIPCCanSend(ctx context.Context, l hclog.Logger, p *kernel.Task, args SysArgs) int32 {
	var (
		id    = kernel.EnvID(args.Args.R0)
		value = args.Args.R1
		srcva = args.Args.R2
		perm  = args.Args.R3
	)

	return result(l, p, "ipc_can_send", p.Kernel.IPCSend(p.Env, id, value, srcva, perm))
}

func sysIPCRecv(ctx context.Context, l hclog.Logger, p *kernel.Task, args SysArgs) int32 {
	dstva := args.Args.R0

	return result(l, p, "ipc_recv", p.Kernel.IPCRecv(p.Env, dstva))
}

func init() {
	register(abi.SYS_ipc_can_send, sysIPCCanSend)
	register(abi.SYS_ipc_recv, sysIPCRecv)
}
