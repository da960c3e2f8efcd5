package syscalls

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/evanphx/mosk/abi"
	"github.com/evanphx/mosk/kernel"
	"github.com/evanphx/mosk/loader"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
)

type testSystem struct {
	k   *kernel.Kernel
	out bytes.Buffer
	ld  *loader.Loader
}

func newSystem(t *testing.T, nenv int) *testSystem {
	return newClockedSystem(t, nenv, 0)
}

func newClockedSystem(t *testing.T, nenv, quantum int) *testSystem {
	ts := &testSystem{ld: loader.NewLoader(0)}

	k, err := kernel.NewKernel(kernel.Config{
		NEnv:         nenv,
		NFrames:      512,
		Quantum:      quantum,
		HaltWhenIdle: true,
		Console:      &ts.out,
		Logger:       hclog.NewNullLogger(),
	})
	require.NoError(t, err)

	k.Invoker = &Invoker{Kernel: k}
	ts.k = k

	return ts
}

func (ts *testSystem) boot(t *testing.T, name, src string) *kernel.Env {
	prog, err := ts.ld.LoadString(name, src)
	require.NoError(t, err)

	e, err := ts.k.CreateEnv(prog)
	require.NoError(t, err)

	return e
}

func (ts *testSystem) bootFile(t *testing.T, path string) *kernel.Env {
	prog, err := ts.ld.LoadFile(path)
	require.NoError(t, err)

	e, err := ts.k.CreateEnv(prog)
	require.NoError(t, err)

	return e
}

func (ts *testSystem) run(t *testing.T) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return ts.k.Run(ctx)
}

func TestSamples(t *testing.T) {
	n := neko.Modern(t)

	cases := []struct {
		file string
		out  string
	}{
		{"hello.s", "hello\n"},
		{"fork.s", "pc\n"},
		{"pingpong.s", "012345\n"},
		{"fault.s", "k\n"},
	}

	for _, c := range cases {
		c := c

		n.It("runs "+c.file, func(t *testing.T) {
			ts := newSystem(t, 16)
			ts.bootFile(t, "../samples/"+c.file)

			require.Equal(t, kernel.ErrIdle, ts.run(t))
			require.Equal(t, c.out, ts.out.String())
			require.Equal(t, 16, ts.k.Envs().FreeSlots())
		})
	}

	n.Meow()
}

const sendSrc = `
start:
	addi sp, sp, -32
	li   a0, SYS_env_alloc
	syscall
	beq  v0, zero, child

	move s0, v0
	li   a0, SYS_set_env_status
	move a1, s0
	li   a2, ENV_RUNNABLE
	syscall
send:
	li   a0, SYS_ipc_can_send
	move a1, s0
	li   a2, 42
	li   a3, 0
	sw   zero, 16(sp)
	syscall
	beq  v0, zero, done
	li   a0, SYS_yield
	syscall
	j    send
done:
	li   a0, SYS_env_destroy
	li   a1, 0
	syscall

child:
	li   a0, SYS_ipc_recv
	li   a1, 0
	syscall
	env  t0, ENV_IPC_VALUE
	env  t1, ENV_IPC_FROM
	env  t2, ENV_PARENT
	bne  t1, t2, out
	li   a0, SYS_putchar
	move a1, t0
	syscall
out:
	li   a0, SYS_env_destroy
	li   a1, 0
	syscall
`

// busySendSrc retries ipc_can_send without yielding, relying on the clock
// to let the child reach ipc_recv.
const busySendSrc = `
start:
	addi sp, sp, -32
	li   a0, SYS_env_alloc
	syscall
	beq  v0, zero, child

	move s0, v0
	li   a0, SYS_set_env_status
	move a1, s0
	li   a2, ENV_RUNNABLE
	syscall
send:
	li   a0, SYS_ipc_can_send
	move a1, s0
	li   a2, '*'
	li   a3, 0
	sw   zero, 16(sp)
	syscall
	bne  v0, zero, send

	li   a0, SYS_env_destroy
	li   a1, 0
	syscall

child:
	li   a0, SYS_ipc_recv
	li   a1, 0
	syscall
	li   a0, SYS_putchar
	env  a1, ENV_IPC_VALUE
	syscall
	li   a0, SYS_env_destroy
	li   a1, 0
	syscall
`

const getenvidSrc = `
start:
	li   a0, SYS_getenvid
	syscall
	env  t0, ENV_ID
	bne  v0, t0, out
	li   a0, SYS_putchar
	li   a1, 'I'
	syscall
out:
	li   a0, SYS_env_destroy
	li   a1, 0
	syscall
`

const unknownSrc = `
start:
	li   a0, 1
	syscall
	li   t0, -E_UNSPECIFIED
	bne  v0, t0, out
	li   a0, SYS_putchar
	li   a1, 'U'
	syscall
out:
	li   a0, SYS_env_destroy
	li   a1, 0
	syscall
`

const exhaustSrc = `
start:
	li   a0, SYS_env_alloc
	syscall
	beq  v0, zero, child

	li   a0, SYS_env_alloc
	syscall
	li   t0, -E_NO_FREE_ENV
	bne  v0, t0, out
	li   a0, SYS_putchar
	li   a1, 'F'
	syscall
out:
	li   a0, SYS_env_destroy
	li   a1, 0
	syscall
child:
	li   a0, SYS_putchar
	li   a1, 'C'
	syscall
`

const memMapSrc = `
.equ SRC, 0x00400000
.equ DST, 0x00500000

start:
	addi sp, sp, -32
	li   a0, SYS_mem_alloc
	li   a1, 0
	li   a2, SRC
	li   a3, PTE_V
	syscall

	li   a0, SYS_mem_map
	li   a1, 0
	li   a2, SRC
	li   a3, 0
	li   t0, DST
	sw   t0, 16(sp)
	li   t0, PTE_V|PTE_R
	sw   t0, 20(sp)
	syscall
	li   t0, -E_INVAL
	bne  v0, t0, out
	li   a0, SYS_putchar
	li   a1, 'E'
	syscall

	li   a0, SYS_mem_map
	li   a1, 0
	li   t0, PTE_V
	sw   t0, 20(sp)
	syscall
	bne  v0, zero, out
	li   t0, DST
	lw   t1, 0(t0)
	bne  t1, zero, out
	li   a0, SYS_putchar
	li   a1, 'M'
	syscall

	li   a0, SYS_mem_unmap
	li   a1, 0
	li   a2, DST
	syscall
	bne  v0, zero, out
	syscall
	bne  v0, zero, out
	li   a0, SYS_putchar
	li   a1, 'U'
	syscall
out:
	li   a0, SYS_env_destroy
	li   a1, 0
	syscall
`

const badAllocSrc = `
start:
	li   a0, SYS_mem_alloc
	li   a1, 0
	li   a2, UTOP
	li   a3, PTE_V|PTE_R
	syscall
	li   t0, -E_INVAL
	bne  v0, t0, out

	li   a0, SYS_mem_alloc
	li   a2, 0x00400000
	li   a3, PTE_V|PTE_COW
	syscall
	bne  v0, t0, out

	li   a0, SYS_mem_alloc
	li   a1, 0x7ff
	li   a3, PTE_V
	syscall
	li   t0, -E_BAD_ENV
	bne  v0, t0, out

	li   a0, SYS_putchar
	li   a1, 'B'
	syscall
out:
	li   a0, SYS_env_destroy
	li   a1, 0
	syscall
`

const panicSrc = `
start:
	addi sp, sp, -16
	li   t0, 0x6d6f6f62
	sw   t0, 0(sp)
	sw   zero, 4(sp)
	li   a0, SYS_panic
	move a1, sp
	syscall
	li   a0, SYS_putchar
	li   a1, 'X'
	syscall
`

const notRecvSrc = `
start:
	addi sp, sp, -32
	li   a0, SYS_env_alloc
	syscall
	beq  v0, zero, child

	li   a0, SYS_ipc_can_send
	move a1, v0
	li   a2, 7
	li   a3, 0
	sw   zero, 16(sp)
	syscall
	li   t0, -E_IPC_NOT_RECV
	bne  v0, t0, out
	li   a0, SYS_putchar
	li   a1, 'N'
	syscall
out:
	li   a0, SYS_env_destroy
	li   a1, 0
	syscall
child:
	li   a0, SYS_env_destroy
	li   a1, 0
	syscall
`

func TestSyscalls(t *testing.T) {
	n := neko.Modern(t)

	n.It("passes a value from parent to child", func(t *testing.T) {
		ts := newSystem(t, 4)
		parent := ts.boot(t, "send.s", sendSrc)
		parentID := parent.ID

		require.Equal(t, kernel.ErrIdle, ts.run(t))

		// 42 is '*'.
		require.Equal(t, "*", ts.out.String())
		require.Equal(t, 4, ts.k.Envs().FreeSlots())

		child := ts.k.Envs().Slot(1)
		require.Equal(t, parentID, child.Parent)
		require.Equal(t, parentID, child.IPCFrom)
		require.Equal(t, uint32(42), child.IPCValue)
	})

	n.It("preempts a sender that retries without yielding", func(t *testing.T) {
		ts := newClockedSystem(t, 4, 50)
		ts.boot(t, "busysend.s", busySendSrc)

		require.Equal(t, kernel.ErrIdle, ts.run(t))
		require.Equal(t, "*", ts.out.String())
		require.Equal(t, 4, ts.k.Envs().FreeSlots())
	})

	n.It("returns the caller's id from getenvid", func(t *testing.T) {
		ts := newSystem(t, 4)
		ts.boot(t, "getenvid.s", getenvidSrc)

		require.Equal(t, kernel.ErrIdle, ts.run(t))
		require.Equal(t, "I", ts.out.String())
	})

	n.It("rejects unknown syscall numbers", func(t *testing.T) {
		ts := newSystem(t, 4)
		ts.boot(t, "unknown.s", unknownSrc)

		require.Equal(t, kernel.ErrIdle, ts.run(t))
		require.Equal(t, "U", ts.out.String())
	})

	n.It("reports a full environment table", func(t *testing.T) {
		ts := newSystem(t, 2)
		ts.boot(t, "exhaust.s", exhaustSrc)

		require.Equal(t, kernel.ErrIdle, ts.run(t))
		require.Equal(t, "F", ts.out.String())

		// The child was never made runnable and outlives its parent.
		require.Equal(t, 1, ts.k.Envs().FreeSlots())
	})

	n.It("maps pages with arguments taken from the stack", func(t *testing.T) {
		ts := newSystem(t, 4)
		ts.boot(t, "memmap.s", memMapSrc)

		require.Equal(t, kernel.ErrIdle, ts.run(t))
		require.Equal(t, "EMU", ts.out.String())
	})

	n.It("validates mem_alloc arguments", func(t *testing.T) {
		ts := newSystem(t, 4)
		ts.boot(t, "badalloc.s", badAllocSrc)

		free := ts.k.Frames().FreeCount()

		require.Equal(t, kernel.ErrIdle, ts.run(t))
		require.Equal(t, "B", ts.out.String())

		// Everything the env held, including its stack, is back.
		require.True(t, ts.k.Frames().FreeCount() > free)
	})

	n.It("halts on panic", func(t *testing.T) {
		ts := newSystem(t, 4)
		ts.boot(t, "panic.s", panicSrc)

		err := ts.run(t)
		require.True(t, kernel.IsFatal(err))
		require.Contains(t, err.Error(), "boom")
		require.Equal(t, "", ts.out.String())
	})

	n.It("refuses to send to an env that is not receiving", func(t *testing.T) {
		ts := newSystem(t, 4)
		ts.boot(t, "notrecv.s", notRecvSrc)

		require.Equal(t, kernel.ErrIdle, ts.run(t))
		require.Equal(t, "N", ts.out.String())
	})

	n.Meow()
}

func TestLookup(t *testing.T) {
	for num := range abi.SyscallNames {
		require.NotNil(t, lookup(num), abi.SyscallNames[num])
	}

	require.Nil(t, lookup(0))
	require.Nil(t, lookup(abi.SyscallBase+abi.NumSyscalls))
}
