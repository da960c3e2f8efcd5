package kernel

import (
	"context"

	"github.com/davecgh/go-spew/spew"
	"github.com/evanphx/mosk/abi"
	"github.com/evanphx/mosk/exec"
	"github.com/pkg/errors"
)

// Run drives the CPU: it dispatches environments chosen by the scheduler
// and services their traps until the system halts, ctx is cancelled or,
// with HaltWhenIdle, nothing is left to run.
func (k *Kernel) Run(ctx context.Context) error {
	for {
		if k.halt != nil {
			return k.halt
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		if k.cur == nil || k.resched {
			k.resched = false

			if !k.Schedule() {
				if k.cfg.HaltWhenIdle {
					return ErrIdle
				}

				// Only a running env can make another one runnable, so
				// the scheduler would scan forever. Wait for ctx instead.
				k.L.Debug("no runnable environments, idling")

				<-ctx.Done()
				return ctx.Err()
			}
		}

		k.step(ctx)
	}
}

// Schedule saves the current env's registers and dispatches the next
// runnable env. It returns false if there is none, leaving the CPU without
// a current env.
func (k *Kernel) Schedule() bool {
	k.save()

	slot, ok := k.sched.Pick(k.envs)
	if !ok {
		return false
	}

	k.dispatch(k.envs.Slot(slot))
	return true
}

func (k *Kernel) save() {
	if k.cur == nil {
		return
	}

	k.cur.Tf = k.regs
	k.cur = nil
}

func (k *Kernel) dispatch(e *Env) {
	if e.Status != Runnable {
		k.fatal(Halt("dispatching env %s in state %s", e.ID, e.Status))
		return
	}

	e.Runs++

	k.cur = e
	k.regs = e.Tf
	k.slice = k.cfg.Quantum

	k.L.Trace("env-run", "env", e.ID, "slot", e.slot, "pc", e.Tf.PC)
}

// Yield gives up the CPU once the current trap has been handled.
func (k *Kernel) Yield() {
	k.resched = true
}

func (k *Kernel) fatal(err *Error) {
	if k.halt == nil {
		k.halt = err
	}
}

// Abort halts the system because of err.
func (k *Kernel) Abort(err error) {
	if ke, ok := errors.Cause(err).(*Error); ok && ke.Fatal() {
		k.fatal(ke)
		return
	}

	k.fatal(Halt("%s", err))
}

// Panic stops the whole system.
func (k *Kernel) Panic(caller *Env, msg string) {
	k.L.Error("panic", "env", caller.ID, "message", msg)
	k.L.Trace("panic-regs", "regs", spew.Sdump(k.regs))

	k.fatal(Halt("%s", msg))
}

func (k *Kernel) step(ctx context.Context) {
	e := k.cur

	if e.Image == nil {
		k.fatal(Halt("env %s has no program", e.ID))
		return
	}

	vm := exec.VM{
		Program: e.Image,
		Memory:  e.Pgdir,
		Env:     e,
		Quantum: k.slice,
		Stop:    ctx.Done(),
	}

	trap := vm.Run(&k.regs)

	// The slice is charged across every trap of one dispatch.
	if k.cfg.Quantum > 0 {
		k.slice -= trap.Steps
		if k.slice <= 0 {
			k.Yield()
		}
	}

	switch trap.Kind {
	case exec.TrapSyscall:
		k.syscall(ctx, e)
	case exec.TrapTimer:
		k.regs.PC = k.regs.EPC
		k.Yield()
	case exec.TrapInterrupt:
		// Resume at the interrupted instruction; Run sees ctx is done.
		k.regs.PC = k.regs.EPC
	case exec.TrapFault:
		k.pageFault(e, trap.Err)
	default:
		k.L.Error("killing env", "env", e.ID, "trap", trap.Kind, "error", trap.Err)
		k.L.Trace("killed-regs", "regs", spew.Sdump(k.regs))
		k.destroy(e)
	}
}

func (k *Kernel) syscall(ctx context.Context, e *Env) {
	// Return to the instruction after the syscall.
	k.regs.EPC++
	k.regs.PC = k.regs.EPC

	if k.Invoker == nil {
		k.fatal(Halt("syscall from %s with no syscall handler installed", e.ID))
		return
	}

	k.noReturn = false

	ret := k.Invoker.InvokeSyscall(SetTask(ctx, &Task{Env: e, Kernel: k}))

	if k.cur == e && !k.noReturn {
		k.regs.Regs[exec.RegV0] = uint32(ret)
	}
}

// pageFault hands the fault to the env's registered handler, running on
// the exception stack with a0 pointing at the saved trap frame. Envs with
// no handler are destroyed.
func (k *Kernel) pageFault(e *Env, err error) {
	k.L.Debug("page fault", "env", e.ID, "va", hex(k.regs.BadVAddr), "pc", k.regs.EPC, "error", err)

	if e.PgfaultHandler == 0 || e.XStackTop == 0 {
		k.L.Info("unhandled page fault, destroying env", "env", e.ID, "va", hex(k.regs.BadVAddr))
		k.L.Trace("fault-regs", "regs", spew.Sdump(k.regs))
		k.destroy(e)
		return
	}

	sp := k.regs.Regs[exec.RegSP]
	if sp > e.XStackTop || sp <= e.XStackTop-abi.BY2PG {
		sp = e.XStackTop
	}

	sp -= exec.TrapframeWords * 4

	k.regs.PC = k.regs.EPC

	for i, w := range k.regs.Words() {
		if err := e.Pgdir.Store32(sp+uint32(i*4), w); err != nil {
			k.L.Info("exception stack unusable, destroying env", "env", e.ID, "sp", hex(sp), "error", err)
			k.destroy(e)
			return
		}
	}

	k.regs.Regs[exec.RegSP] = sp
	k.regs.Regs[exec.RegA0] = sp
	k.regs.PC = e.PgfaultHandler
}

// destroy frees e. If e is running, the CPU is rescheduled without saving
// its registers.
func (k *Kernel) destroy(e *Env) {
	k.envs.Free(e)

	if e == k.cur {
		k.cur = nil
		k.resched = true
	}
}
