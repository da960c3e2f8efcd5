package kernel

import (
	"github.com/evanphx/mosk/abi"
	"github.com/evanphx/mosk/exec"
	"github.com/pkg/errors"
)

// CreateEnv boots prog in a new runnable env with no parent. The env gets
// a single writable stack page below USTACKTOP and starts at the program's
// entry point.
func (k *Kernel) CreateEnv(prog *exec.Program) (*Env, error) {
	e, err := k.envs.Alloc(0)
	if err != nil {
		return nil, err
	}

	f, err := k.frames.Alloc()
	if err != nil {
		k.envs.Free(e)
		return nil, errors.Wrapf(ErrNoMem, "allocating stack: %s", err)
	}

	if err := e.Pgdir.Insert(f, abi.USTACKTOP-abi.BY2PG, abi.PTE_V|abi.PTE_R); err != nil {
		k.frames.Free(f)
		k.envs.Free(e)
		return nil, errors.Wrapf(ErrNoMem, "mapping stack: %s", err)
	}

	e.Image = prog
	e.Tf.PC = prog.Entry()
	e.Status = Runnable

	k.L.Debug("env-create", "env", e.ID, "program", prog.Name, "slot", e.slot)

	return e, nil
}
