package kernel

import (
	"github.com/evanphx/mosk/abi"
	"github.com/evanphx/mosk/exec"
	"github.com/pkg/errors"
)

// snapshot stores the live registers into caller's saved context when
// caller is the env that trapped.
func (k *Kernel) snapshot(caller *Env) {
	if caller == k.cur {
		caller.Tf = k.regs
	}
}

// Fork creates a NotRunnable child of caller. The child resumes after the
// syscall that created it with v0 = 0, runs the same program, and gets its
// own copy of the caller's top stack page. No other memory is shared or
// copied.
func (k *Kernel) Fork(caller *Env) (EnvID, error) {
	k.snapshot(caller)

	child, err := k.envs.Alloc(caller.ID)
	if err != nil {
		return 0, err
	}

	child.Tf = caller.Tf
	child.Tf.PC = child.Tf.EPC
	child.Tf.Regs[exec.RegV0] = 0
	child.Image = caller.Image
	child.Status = NotRunnable

	const stackPage = abi.USTACKTOP - abi.BY2PG

	src, _, ok := caller.Pgdir.Lookup(stackPage)
	if !ok {
		k.envs.Free(child)
		return 0, errors.Wrapf(ErrInval, "env_alloc: %s has no stack page", caller.ID)
	}

	f, err := k.frames.Alloc()
	if err != nil {
		k.envs.Free(child)
		return 0, errors.Wrapf(ErrNoMem, "env_alloc: copying stack: %s", err)
	}

	copy(k.frames.Bytes(f), k.frames.Bytes(src))

	if err := child.Pgdir.Insert(f, stackPage, abi.PTE_V|abi.PTE_R); err != nil {
		k.frames.Free(f)
		k.envs.Free(child)
		return 0, errors.Wrapf(ErrNoMem, "env_alloc: mapping stack: %s", err)
	}

	k.L.Debug("env-alloc", "parent", caller.ID, "child", child.ID, "slot", child.slot)

	return child.ID, nil
}

// SetStatus stores status on env id. Nothing else happens; in particular
// making an env runnable does not run it.
func (k *Kernel) SetStatus(caller *Env, id EnvID, status Status) error {
	if !status.Valid() {
		return errors.Wrapf(ErrInval, "set_env_status: status=%d", uint32(status))
	}

	e, err := k.envs.Lookup(id, caller, true)
	if err != nil {
		return err
	}

	if status == Free {
		k.L.Warn("env marked free without being destroyed", "env", e.ID, "by", caller.ID)
	}

	e.Status = status
	return nil
}

// Destroy frees env id, which must be caller or a child of caller.
func (k *Kernel) Destroy(caller *Env, id EnvID) error {
	e, err := k.envs.Lookup(id, caller, true)
	if err != nil {
		return err
	}

	k.L.Info("destroying env", "by", caller.ID, "env", e.ID)
	k.destroy(e)

	return nil
}

// SetPgfaultHandler records where env id takes page faults. Neither value
// is checked here; a bad handler shows up when the first fault is
// delivered.
func (k *Kernel) SetPgfaultHandler(caller *Env, id EnvID, entry, xstacktop uint32) error {
	e, err := k.envs.Lookup(id, caller, true)
	if err != nil {
		return err
	}

	e.PgfaultHandler = entry
	e.XStackTop = xstacktop
	return nil
}

// SetTrapframe loads a trap frame stored at va in caller's memory into
// env id. Setting the caller's own frame replaces the registers it returns
// to, which is how a fault handler resumes the faulting code.
func (k *Kernel) SetTrapframe(caller *Env, id EnvID, va uint32) error {
	e, err := k.envs.Lookup(id, caller, true)
	if err != nil {
		return err
	}

	if !userVA(va, false) {
		return errors.Wrapf(ErrInval, "set_trapframe: illegal va=%x", va)
	}

	words := make([]uint32, exec.TrapframeWords)
	for i := range words {
		w, err := caller.Pgdir.Load32(va + uint32(i*4))
		if err != nil {
			return errors.Wrapf(ErrInval, "set_trapframe: %s", err)
		}
		words[i] = w
	}

	var tf exec.Trapframe
	tf.SetWords(words)

	if e == k.cur {
		k.regs = tf
		k.noReturn = true
	} else {
		e.Tf = tf
	}

	return nil
}
