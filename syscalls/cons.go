package syscalls

import (
	"context"
	"fmt"

	"github.com/evanphx/mosk/abi"
	"github.com/evanphx/mosk/kernel"
	hclog "github.com/hashicorp/go-hclog"
)

const maxPanicMessage = 256

func sysPutchar(ctx context.Context, l hclog.Logger, p *kernel.Task, args SysArgs) int32 {
	p.Kernel.PutChar(byte(args.Args.R0))
	return 0
}

func sysPanic(ctx context.Context, l hclog.Logger, p *kernel.Task, args SysArgs) int32 {
	va := args.Args.R0

	msg, err := p.ReadCString(va, maxPanicMessage)
	if err != nil {
		l.Debug("unreadable panic message", "env", p.ID, "va", hclog.Hex(va), "error", err)
		msg = []byte(fmt.Sprintf("panic with unreadable message at %#x", va))
	}

	p.Kernel.Panic(p.Env, string(msg))

	return 0
}

func init() {
	register(abi.SYS_putchar, sysPutchar)
	register(abi.SYS_panic, sysPanic)
}
