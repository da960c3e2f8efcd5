// Package exec runs user programs on behalf of the kernel. It plays the
// part of the CPU in user mode: it executes instructions against a
// Trapframe until something makes it enter the kernel, and reports why.
package exec

import (
	"fmt"

	"github.com/pkg/errors"
)

// Exception codes stored in Trapframe.Cause.
const (
	CauseInt     = 0
	CauseTLBL    = 2
	CauseTLBS    = 3
	CauseSyscall = 8
	CauseRI      = 10
)

// Memory is the view of an address space the CPU needs.
type Memory interface {
	Load32(va uint32) (uint32, error)
	Store32(va, val uint32) error
}

// EnvView exposes the read-only per environment fields user code may
// inspect, the way programs read their own entry of the envs array.
type EnvView interface {
	EnvField(field int) (uint32, bool)
}

type TrapKind int

const (
	TrapSyscall TrapKind = iota
	TrapFault
	TrapTimer
	TrapIllegal

	// TrapInterrupt means Stop was closed while the program ran.
	TrapInterrupt
)

func (k TrapKind) String() string {
	switch k {
	case TrapSyscall:
		return "syscall"
	case TrapFault:
		return "page-fault"
	case TrapTimer:
		return "timer"
	case TrapIllegal:
		return "illegal-instruction"
	case TrapInterrupt:
		return "interrupt"
	default:
		return fmt.Sprintf("trap(%d)", int(k))
	}
}

type Trap struct {
	Kind TrapKind
	Err  error

	// Steps is how many instructions were retired before the trap. A
	// syscall counts as retired.
	Steps int
}

var ErrIllegalInstruction = errors.New("illegal instruction")

// stopInterval is how many instructions run between checks of Stop.
const stopInterval = 1024

// VM executes a Program. Quantum bounds the number of instructions run per
// call before a timer trap is taken; zero means run until the program
// traps on its own. Once Stop is closed the program is interrupted within
// stopInterval instructions, clock or not.
type VM struct {
	Program *Program
	Memory  Memory
	Env     EnvView
	Quantum int
	Stop    <-chan struct{}
}

func (vm *VM) stopped() bool {
	select {
	case <-vm.Stop:
		return true
	default:
		return false
	}
}

func (vm *VM) illegal(tf *Trapframe, format string, args ...interface{}) Trap {
	tf.EPC = tf.PC
	tf.Cause = CauseRI
	return Trap{Kind: TrapIllegal, Err: errors.Wrapf(ErrIllegalInstruction, format, args...)}
}

func (vm *VM) fault(tf *Trapframe, cause, va uint32, err error) Trap {
	tf.EPC = tf.PC
	tf.Cause = cause
	tf.BadVAddr = va
	return Trap{Kind: TrapFault, Err: err}
}

func (vm *VM) branch(tf *Trapframe, target int32) (Trap, bool) {
	if target < 0 || int(target) >= len(vm.Program.Text) {
		return vm.illegal(tf, "branch target %d out of range", target), false
	}

	tf.PC = uint32(target)
	return Trap{}, true
}

// Run executes from tf.PC until the program traps. On return tf holds the
// register state at the trap and EPC names the instruction that caused it.
func (vm *VM) Run(tf *Trapframe) Trap {
	var steps int

	trap := vm.run(tf, &steps)
	trap.Steps = steps

	if trap.Kind == TrapSyscall {
		trap.Steps++
	}

	return trap
}

func (vm *VM) run(tf *Trapframe, steps *int) Trap {
	text := vm.Program.Text
	regs := &tf.Regs

	for ; ; *steps++ {
		if vm.Quantum > 0 && *steps >= vm.Quantum {
			tf.EPC = tf.PC
			tf.Cause = CauseInt
			return Trap{Kind: TrapTimer}
		}

		if vm.Stop != nil && *steps%stopInterval == stopInterval-1 && vm.stopped() {
			tf.EPC = tf.PC
			tf.Cause = CauseInt
			return Trap{Kind: TrapInterrupt}
		}

		if int(tf.PC) >= len(text) {
			return vm.illegal(tf, "pc %d outside of program %s", tf.PC, vm.Program.Name)
		}

		in := text[tf.PC]

		switch in.Op {
		case OpNop:
		case OpLi:
			regs[in.Rd] = uint32(in.Imm)
		case OpMove:
			regs[in.Rd] = regs[in.Rs]
		case OpAdd:
			regs[in.Rd] = regs[in.Rs] + regs[in.Rt]
		case OpAddi:
			regs[in.Rd] = regs[in.Rs] + uint32(in.Imm)
		case OpSub:
			regs[in.Rd] = regs[in.Rs] - regs[in.Rt]
		case OpLw:
			va := regs[in.Rs] + uint32(in.Imm)
			v, err := vm.Memory.Load32(va)
			if err != nil {
				return vm.fault(tf, CauseTLBL, va, err)
			}
			regs[in.Rt] = v
		case OpSw:
			va := regs[in.Rs] + uint32(in.Imm)
			if err := vm.Memory.Store32(va, regs[in.Rt]); err != nil {
				return vm.fault(tf, CauseTLBS, va, err)
			}
		case OpBeq:
			if regs[in.Rs] == regs[in.Rt] {
				if trap, ok := vm.branch(tf, in.Imm); !ok {
					return trap
				}
				regs[RegZero] = 0
				continue
			}
		case OpBne:
			if regs[in.Rs] != regs[in.Rt] {
				if trap, ok := vm.branch(tf, in.Imm); !ok {
					return trap
				}
				regs[RegZero] = 0
				continue
			}
		case OpJ:
			if trap, ok := vm.branch(tf, in.Imm); !ok {
				return trap
			}
			regs[RegZero] = 0
			continue
		case OpSyscall:
			tf.EPC = tf.PC
			tf.Cause = CauseSyscall
			return Trap{Kind: TrapSyscall}
		case OpEnv:
			if vm.Env == nil {
				return vm.illegal(tf, "env read with no environment")
			}

			v, ok := vm.Env.EnvField(int(in.Imm))
			if !ok {
				return vm.illegal(tf, "unknown env field %d", in.Imm)
			}
			regs[in.Rd] = v
		default:
			return vm.illegal(tf, "unknown opcode %s", in.Op)
		}

		regs[RegZero] = 0
		tf.PC++
	}
}
