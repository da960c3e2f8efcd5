package syscalls

import (
	"github.com/evanphx/mosk/abi"
	"github.com/evanphx/mosk/kernel"
	hclog "github.com/hashicorp/go-hclog"
)

// result turns the error from a kernel operation into the value returned
// to user code. Fatal errors halt the kernel instead of being returned.
func result(l hclog.Logger, p *kernel.Task, op string, err error) int32 {
	if err == nil {
		return 0
	}

	if kernel.IsFatal(err) {
		l.Error("fatal error in syscall", "op", op, "env", p.ID, "error", err)
		p.Kernel.Abort(err)
		return -abi.E_UNSPECIFIED
	}

	l.Debug("syscall failed", "op", op, "env", p.ID, "error", err)
	return kernel.Errno(err)
}
