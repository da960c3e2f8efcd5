package kernel

import (
	"github.com/evanphx/mosk/abi"
	"github.com/pkg/errors"
)

// IPCRecv blocks caller until another env sends to it. dstva is where a
// page sent along with the value should be mapped, or 0 for none. The
// caller gives up the CPU; it next runs once a send has completed, with the
// results in its IPC fields.
//
// Send and receive are not atomic against each other; both assume the
// kernel is never preempted.
func (k *Kernel) IPCRecv(caller *Env, dstva uint32) error {
	if !userVA(dstva, true) {
		return errors.Wrapf(ErrInval, "ipc_recv: illegal dstva=%x", dstva)
	}

	caller.IPCRecving = true
	caller.IPCDstVA = dstva
	caller.Status = NotRunnable

	k.Yield()
	return nil
}

// IPCSend delivers value, and optionally the page at srcva, to env id. Any
// env may send to any other. The target must be blocked in IPCRecv; it is
// made runnable but the sender keeps the CPU.
func (k *Kernel) IPCSend(caller *Env, id EnvID, value, srcva, perm uint32) error {
	e, err := k.envs.Lookup(id, caller, false)
	if err != nil {
		return err
	}

	if !e.IPCRecving {
		return errors.Wrapf(ErrIPCNotRecv, "ipc_send: %s", e.ID)
	}

	if srcva >= abi.UTOP || e.IPCDstVA >= abi.UTOP {
		return errors.Wrapf(ErrInval, "ipc_send: illegal va src=%x dst=%x", srcva, e.IPCDstVA)
	}

	if srcva != 0 && e.IPCDstVA != 0 {
		f, _, ok := caller.Pgdir.Lookup(srcva)
		if !ok {
			k.L.Debug("ipc_send: nothing mapped at srcva", "env", caller.ID, "srcva", hex(srcva))
			return errors.Wrapf(ErrInval, "ipc_send: nothing mapped at %x", srcva)
		}

		if err := e.Pgdir.Insert(f, e.IPCDstVA, perm); err != nil {
			return errors.Wrapf(ErrNoMem, "ipc_send: %s", err)
		}

		e.IPCPerm = perm
	} else {
		e.IPCPerm = 0
	}

	e.IPCFrom = caller.ID
	e.IPCValue = value
	e.IPCRecving = false
	e.Status = Runnable

	return nil
}
