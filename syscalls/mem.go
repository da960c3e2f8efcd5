package syscalls

import (
	"context"

	"github.com/evanphx/mosk/abi"
	"github.com/evanphx/mosk/kernel"
	hclog "github.com/hashicorp/go-hclog"
)

func sysMemAlloc(ctx context.Context, l hclog.Logger, p *kernel.Task, args SysArgs) int32 {
	var (
		id   = kernel.EnvID(args.Args.R0)
		va   = args.Args.R1
		perm = args.Args.R2
	)

	return result(l, p, "mem_alloc", p.Kernel.AllocPage(p.Env, id, va, perm))
}

func sysMemMap(ctx context.Context, l hclog.Logger, p *kernel.Task, args SysArgs) int32 {
	var (
		srcid = kernel.EnvID(args.Args.R0)
		srcva = args.Args.R1
		dstid = kernel.EnvID(args.Args.R2)
		dstva = args.Args.R3
		perm  = args.Args.R4
	)

	return result(l, p, "mem_map", p.Kernel.MapPage(p.Env, srcid, srcva, dstid, dstva, perm))
}

func sysMemUnmap(ctx context.Context, l hclog.Logger, p *kernel.Task, args SysArgs) int32 {
	var (
		id = kernel.EnvID(args.Args.R0)
		va = args.Args.R1
	)

	return result(l, p, "mem_unmap", p.Kernel.UnmapPage(p.Env, id, va))
}

func init() {
	register(abi.SYS_mem_alloc, sysMemAlloc)
	register(abi.SYS_mem_map, sysMemMap)
	register(abi.SYS_mem_unmap, sysMemUnmap)
}
