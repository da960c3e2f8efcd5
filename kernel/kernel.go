package kernel

import (
	"context"
	"io"
	"io/ioutil"

	"github.com/evanphx/mosk/exec"
	"github.com/evanphx/mosk/log"
	"github.com/evanphx/mosk/memory"
	hclog "github.com/hashicorp/go-hclog"
)

const (
	DefaultNEnv    = 1024
	DefaultNFrames = 8192
)

// SyscallInvoker handles a syscall trap. The trapping task is available
// from the context via GetTask. The returned value is placed in v0.
type SyscallInvoker interface {
	InvokeSyscall(ctx context.Context) int32
}

type Config struct {
	// NEnv is the size of the environment table, a power of two.
	NEnv int

	// NFrames is the number of physical frames available.
	NFrames int

	// Quantum is the number of instructions an env may run per dispatch
	// before the clock forces a reschedule. Instructions run between
	// syscalls count against the same slice. Zero disables the clock.
	Quantum int

	// HaltWhenIdle makes Run return ErrIdle when no env is runnable rather
	// than scanning forever.
	HaltWhenIdle bool

	Console io.Writer
	Logger  hclog.Logger
}

// Kernel owns every environment, the physical frames and the CPU. It
// assumes a single CPU: only the goroutine inside Run, or code it calls,
// may touch it.
type Kernel struct {
	L       hclog.Logger
	Invoker SyscallInvoker

	cfg    Config
	frames *memory.FrameAllocator
	envs   *EnvTable
	sched  Scheduler
	cons   io.Writer

	cur  *Env
	regs exec.Trapframe

	resched  bool
	slice    int
	noReturn bool
	halt     *Error
}

func NewKernel(cfg Config) (*Kernel, error) {
	if cfg.NEnv == 0 {
		cfg.NEnv = DefaultNEnv
	}

	if cfg.NFrames == 0 {
		cfg.NFrames = DefaultNFrames
	}

	if cfg.Logger == nil {
		cfg.Logger = log.L
	}

	if cfg.Console == nil {
		cfg.Console = ioutil.Discard
	}

	frames := memory.NewFrameAllocator(cfg.NFrames)

	envs, err := NewEnvTable(cfg.NEnv, frames)
	if err != nil {
		return nil, err
	}

	k := &Kernel{
		L:      cfg.Logger,
		cfg:    cfg,
		frames: frames,
		envs:   envs,
		cons:   cfg.Console,
	}

	return k, nil
}

func (k *Kernel) Frames() *memory.FrameAllocator {
	return k.frames
}

func (k *Kernel) Envs() *EnvTable {
	return k.envs
}

func (k *Kernel) Scheduler() *Scheduler {
	return &k.sched
}

// Current is the env owning the CPU, nil between a yield and the next
// dispatch.
func (k *Kernel) Current() *Env {
	return k.cur
}

// Regs are the live registers of the current env.
func (k *Kernel) Regs() *exec.Trapframe {
	return &k.regs
}

// Halted returns the error that stopped the system, if any.
func (k *Kernel) Halted() error {
	if k.halt == nil {
		return nil
	}

	return k.halt
}

type taskkey struct{}

// Task is the env a syscall is running on behalf of.
type Task struct {
	*Env
	Kernel *Kernel
}

func GetTask(ctx context.Context) (*Task, bool) {
	if v := ctx.Value(taskkey{}); v != nil {
		return v.(*Task), true
	}

	return nil, false
}

func SetTask(ctx context.Context, t *Task) context.Context {
	return context.WithValue(ctx, taskkey{}, t)
}

// Regs are the registers the task trapped with.
func (t *Task) Regs() *exec.Trapframe {
	return &t.Kernel.regs
}

func (t *Task) ReadWord(va uint32) (uint32, error) {
	return t.Pgdir.Load32(va)
}

func (t *Task) ReadCString(va uint32, max int) ([]byte, error) {
	return t.Pgdir.ReadCString(va, max)
}

func hex(v uint32) hclog.Hex {
	return hclog.Hex(v)
}

// PutChar writes c to the console.
func (k *Kernel) PutChar(c byte) {
	if _, err := k.cons.Write([]byte{c}); err != nil {
		k.L.Warn("console write failed", "error", err)
	}
}
