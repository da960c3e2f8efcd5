package kernel

import (
	"fmt"

	"github.com/evanphx/mosk/abi"
	"github.com/evanphx/mosk/exec"
	"github.com/evanphx/mosk/memory"
	"github.com/pkg/errors"
)

// EnvID names an environment: the table slot in the low bits and a
// generation above them. Zero always means "the calling environment".
type EnvID uint32

func (id EnvID) String() string {
	return fmt.Sprintf("%08x", uint32(id))
}

type Status uint32

const (
	Free        Status = abi.ENV_FREE
	Runnable    Status = abi.ENV_RUNNABLE
	NotRunnable Status = abi.ENV_NOT_RUNNABLE
)

func (s Status) Valid() bool {
	switch s {
	case Free, Runnable, NotRunnable:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	switch s {
	case Free:
		return "free"
	case Runnable:
		return "runnable"
	case NotRunnable:
		return "not-runnable"
	default:
		return fmt.Sprintf("status(%d)", uint32(s))
	}
}

type Env struct {
	ID     EnvID
	Parent EnvID
	Status Status

	// Tf is the saved register state. It is only current while the env is
	// not running; the running env's registers live in the kernel.
	Tf    exec.Trapframe
	Pgdir *memory.AddressSpace
	Image *exec.Program

	PgfaultHandler uint32
	XStackTop      uint32

	IPCRecving bool
	IPCDstVA   uint32
	IPCPerm    uint32
	IPCValue   uint32
	IPCFrom    EnvID

	Runs int

	slot int
}

func (e *Env) Slot() int {
	return e.slot
}

func (e *Env) EnvField(field int) (uint32, bool) {
	switch field {
	case exec.EnvFieldID:
		return uint32(e.ID), true
	case exec.EnvFieldParent:
		return uint32(e.Parent), true
	case exec.EnvFieldIPCValue:
		return e.IPCValue, true
	case exec.EnvFieldIPCFrom:
		return uint32(e.IPCFrom), true
	case exec.EnvFieldIPCPerm:
		return e.IPCPerm, true
	case exec.EnvFieldIPCRecving:
		if e.IPCRecving {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// EnvTable is the fixed size arena of environments. Slots are handed out
// from a free list and every allocation stamps a new generation into the
// id, so an id kept after its env is destroyed never resolves to the next
// occupant of the slot.
type EnvTable struct {
	fa *memory.FrameAllocator

	envs []Env
	free []int

	logN    uint
	genMask uint32
	gen     uint32
}

var ErrBadTableSize = errors.New("environment table size must be a power of two")

func NewEnvTable(n int, fa *memory.FrameAllocator) (*EnvTable, error) {
	if n <= 0 || n&(n-1) != 0 {
		return nil, errors.Wrapf(ErrBadTableSize, "size=%d", n)
	}

	var logN uint
	for 1<<logN < n {
		logN++
	}

	t := &EnvTable{
		fa:      fa,
		envs:    make([]Env, n),
		free:    make([]int, 0, n),
		logN:    logN,
		genMask: ^uint32(0) >> (2 + logN),
	}

	for i := n - 1; i >= 0; i-- {
		t.envs[i].slot = i
		t.free = append(t.free, i)
	}

	return t, nil
}

// mkenvid hands out the next generation for slot. Generations wrap after
// genMask allocations, so a stale id can only alias a live one after that
// many allocations. A generation equal to the slot's last one is skipped so
// back to back reuse of a slot never repeats an id.
func (t *EnvTable) mkenvid(slot int) EnvID {
	prev := t.envs[slot].ID

	for {
		t.gen = (t.gen + 1) & t.genMask
		if t.gen == 0 {
			continue
		}

		id := EnvID(t.gen<<(1+t.logN) | uint32(slot))
		if id != prev {
			return id
		}
	}
}

// SlotOf decodes the table slot out of an id.
func (t *EnvTable) SlotOf(id EnvID) int {
	return int(uint32(id) & uint32(len(t.envs)-1))
}

// Alloc takes a free slot and gives it a fresh id, an empty address space
// and a stack pointer at USTACKTOP. The env starts out NotRunnable.
func (t *EnvTable) Alloc(parent EnvID) (*Env, error) {
	if len(t.free) == 0 {
		return nil, ErrNoFreeEnv
	}

	slot := t.free[len(t.free)-1]

	pgdir, err := memory.NewAddressSpace(t.fa)
	if err != nil {
		return nil, errors.Wrapf(ErrNoMem, "allocating address space: %s", err)
	}

	t.free = t.free[:len(t.free)-1]

	e := &t.envs[slot]
	*e = Env{
		ID:     t.mkenvid(slot),
		Parent: parent,
		Status: NotRunnable,
		Pgdir:  pgdir,
		slot:   slot,
	}

	e.Tf.Regs[exec.RegSP] = abi.USTACKTOP

	return e, nil
}

// Free releases every mapping of e and returns its slot.
func (t *EnvTable) Free(e *Env) {
	if e.Status == Free && e.Pgdir == nil {
		return
	}

	if e.Pgdir != nil {
		e.Pgdir.Release()
		e.Pgdir = nil
	}

	e.Status = Free
	e.IPCRecving = false
	e.Image = nil

	t.free = append(t.free, e.slot)
}

// Lookup resolves id. Zero resolves to cur. With checkPerm the env must be
// cur itself or a direct child of cur.
func (t *EnvTable) Lookup(id EnvID, cur *Env, checkPerm bool) (*Env, error) {
	if id == 0 {
		if cur == nil {
			return nil, Halt("envid 0 resolved with no current environment")
		}

		return cur, nil
	}

	e := &t.envs[t.SlotOf(id)]
	if e.Status == Free || e.ID != id {
		return nil, errors.Wrapf(ErrBadEnv, "envid=%s", id)
	}

	if checkPerm {
		if cur == nil {
			return nil, Halt("permission check for %s with no current environment", id)
		}

		if e != cur && e.Parent != cur.ID {
			return nil, errors.Wrapf(ErrBadEnv, "envid=%s is not %s or its child", id, cur.ID)
		}
	}

	return e, nil
}

func (t *EnvTable) NumSlots() int {
	return len(t.envs)
}

func (t *EnvTable) Slot(i int) *Env {
	return &t.envs[i]
}

func (t *EnvTable) Runnable(i int) bool {
	return t.envs[i].Status == Runnable
}

func (t *EnvTable) FreeSlots() int {
	return len(t.free)
}
