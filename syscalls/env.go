package syscalls

import (
	"context"

	"github.com/evanphx/mosk/abi"
	"github.com/evanphx/mosk/kernel"
	hclog "github.com/hashicorp/go-hclog"
)

func sysGetenvid(ctx context.Context, l hclog.Logger, p *kernel.Task, args SysArgs) int32 {
	return int32(p.ID)
}

func sysYield(ctx context.Context, l hclog.Logger, p *kernel.Task, args SysArgs) int32 {
	p.Kernel.Yield()
	return 0
}

func sysEnvDestroy(ctx context.Context, l hclog.Logger, p *kernel.Task, args SysArgs) int32 {
	id := kernel.EnvID(args.Args.R0)

	return result(l, p, "env_destroy", p.Kernel.Destroy(p.Env, id))
}

func sysEnvAlloc(ctx context.Context, l hclog.Logger, p *kernel.Task, args SysArgs) int32 {
	child, err := p.Kernel.Fork(p.Env)
	if err != nil {
		return result(l, p, "env_alloc", err)
	}

	return int32(child)
}

func sysSetEnvStatus(ctx context.Context, l hclog.Logger, p *kernel.Task, args SysArgs) int32 {
	var (
		id     = kernel.EnvID(args.Args.R0)
		status = kernel.Status(args.Args.R1)
	)

	return result(l, p, "set_env_status", p.Kernel.SetStatus(p.Env, id, status))
}

func sysSetPgfaultHandler(ctx context.Context, l hclog.Logger, p *kernel.Task, args SysArgs) int32 {
	var (
		id        = kernel.EnvID(args.Args.R0)
		entry     = args.Args.R1
		xstacktop = args.Args.R2
	)

	return result(l, p, "set_pgfault_handler", p.Kernel.SetPgfaultHandler(p.Env, id, entry, xstacktop))
}

func sysSetTrapframe(ctx context.Context, l hclog.Logger, p *kernel.Task, args SysArgs) int32 {
	var (
		id = kernel.EnvID(args.Args.R0)
		va = args.Args.R1
	)

	return result(l, p, "set_trapframe", p.Kernel.SetTrapframe(p.Env, id, va))
}

func init() {
	register(abi.SYS_getenvid, sysGetenvid)
	register(abi.SYS_yield, sysYield)
	register(abi.SYS_env_destroy, sysEnvDestroy)
	register(abi.SYS_env_alloc, sysEnvAlloc)
	register(abi.SYS_set_env_status, sysSetEnvStatus)
	register(abi.SYS_set_pgfault_handler, sysSetPgfaultHandler)
	register(abi.SYS_set_trapframe, sysSetTrapframe)
}
