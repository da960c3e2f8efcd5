package kernel

import (
	"testing"

	"github.com/evanphx/mosk/abi"
	"github.com/evanphx/mosk/exec"
	"github.com/evanphx/mosk/memory"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
)

var stub = &exec.Program{
	Name: "stub",
	Text: []exec.Instr{{Op: exec.OpSyscall}},
}

func newTestKernel(t *testing.T, nenv int) *Kernel {
	k, err := NewKernel(Config{
		NEnv:         nenv,
		NFrames:      256,
		HaltWhenIdle: true,
		Logger:       hclog.NewNullLogger(),
	})
	require.NoError(t, err)

	return k
}

func TestEnvTable(t *testing.T) {
	n := neko.Modern(t)

	n.It("requires a power of two size", func(t *testing.T) {
		_, err := NewEnvTable(3, memory.NewFrameAllocator(8))
		require.Equal(t, ErrBadTableSize, errors.Cause(err))

		_, err = NewEnvTable(0, memory.NewFrameAllocator(8))
		require.Error(t, err)
	})

	n.It("encodes the slot in the id", func(t *testing.T) {
		tbl, err := NewEnvTable(8, memory.NewFrameAllocator(64))
		require.NoError(t, err)

		for i := 0; i < 8; i++ {
			e, err := tbl.Alloc(0)
			require.NoError(t, err)

			require.NotEqual(t, EnvID(0), e.ID)
			require.Equal(t, e.Slot(), tbl.SlotOf(e.ID))
			require.Equal(t, NotRunnable, e.Status)
			require.Equal(t, uint32(abi.USTACKTOP), e.Tf.Regs[exec.RegSP])
		}

		_, err = tbl.Alloc(0)
		require.Equal(t, NoFreeEnvironmentSlots, KindOf(err))
	})

	n.It("never resolves a stale id", func(t *testing.T) {
		tbl, err := NewEnvTable(2, memory.NewFrameAllocator(64))
		require.NoError(t, err)

		a, err := tbl.Alloc(0)
		require.NoError(t, err)

		old := a.ID
		slot := a.Slot()

		tbl.Free(a)

		b, err := tbl.Alloc(0)
		require.NoError(t, err)
		require.Equal(t, slot, b.Slot())
		require.NotEqual(t, old, b.ID)

		_, err = tbl.Lookup(old, b, false)
		require.Equal(t, NoSuchEnvironment, KindOf(err))

		got, err := tbl.Lookup(b.ID, nil, false)
		require.NoError(t, err)
		require.True(t, got == b)
	})

	n.It("keeps ids positive", func(t *testing.T) {
		tbl, err := NewEnvTable(1024, memory.NewFrameAllocator(16))
		require.NoError(t, err)

		tbl.gen = tbl.genMask - 1

		for i := 0; i < 4; i++ {
			e, err := tbl.Alloc(0)
			require.NoError(t, err)
			require.True(t, int32(e.ID) > 0, "id %s", e.ID)
			tbl.Free(e)
		}
	})

	n.It("never hands a slot its previous id when the generation wraps", func(t *testing.T) {
		tbl, err := NewEnvTable(2, memory.NewFrameAllocator(64))
		require.NoError(t, err)

		tbl.gen = tbl.genMask - 1

		a, err := tbl.Alloc(0)
		require.NoError(t, err)

		old := a.ID
		slot := a.Slot()

		tbl.Free(a)

		// Rewind so the next generation would rebuild the same id.
		tbl.gen = tbl.genMask - 1

		b, err := tbl.Alloc(0)
		require.NoError(t, err)
		require.Equal(t, slot, b.Slot())
		require.NotEqual(t, old, b.ID)
		require.True(t, int32(b.ID) > 0, "id %s", b.ID)

		_, err = tbl.Lookup(old, b, false)
		require.Equal(t, NoSuchEnvironment, KindOf(err))
	})

	n.It("resolves 0 to the caller", func(t *testing.T) {
		tbl, err := NewEnvTable(4, memory.NewFrameAllocator(64))
		require.NoError(t, err)

		a, err := tbl.Alloc(0)
		require.NoError(t, err)

		got, err := tbl.Lookup(0, a, true)
		require.NoError(t, err)
		require.True(t, got == a)

		_, err = tbl.Lookup(0, nil, false)
		require.True(t, IsFatal(err))
	})

	n.It("limits permission checked lookups to the caller and its children", func(t *testing.T) {
		tbl, err := NewEnvTable(4, memory.NewFrameAllocator(64))
		require.NoError(t, err)

		parent, err := tbl.Alloc(0)
		require.NoError(t, err)

		child, err := tbl.Alloc(parent.ID)
		require.NoError(t, err)

		grandchild, err := tbl.Alloc(child.ID)
		require.NoError(t, err)

		_, err = tbl.Lookup(child.ID, parent, true)
		require.NoError(t, err)

		_, err = tbl.Lookup(parent.ID, parent, true)
		require.NoError(t, err)

		_, err = tbl.Lookup(grandchild.ID, parent, true)
		require.Equal(t, NoSuchEnvironment, KindOf(err))

		_, err = tbl.Lookup(parent.ID, child, true)
		require.Equal(t, NoSuchEnvironment, KindOf(err))

		_, err = tbl.Lookup(parent.ID, child, false)
		require.NoError(t, err)
	})

	n.It("returns frames when an env is freed", func(t *testing.T) {
		fa := memory.NewFrameAllocator(64)

		tbl, err := NewEnvTable(4, fa)
		require.NoError(t, err)

		before := fa.FreeCount()

		e, err := tbl.Alloc(0)
		require.NoError(t, err)

		f, err := fa.Alloc()
		require.NoError(t, err)
		require.NoError(t, e.Pgdir.Insert(f, 0x400000, abi.PTE_V))

		tbl.Free(e)
		tbl.Free(e)

		require.Equal(t, before, fa.FreeCount())
		require.Equal(t, 4, tbl.FreeSlots())
		require.Equal(t, Free, e.Status)
	})

	n.Meow()
}

func TestErrno(t *testing.T) {
	require.Equal(t, int32(0), Errno(nil))
	require.Equal(t, int32(-abi.E_BAD_ENV), Errno(errors.Wrap(ErrBadEnv, "x")))
	require.Equal(t, int32(-abi.E_INVAL), Errno(ErrInval))
	require.Equal(t, int32(-abi.E_NO_MEM), Errno(memory.ErrNoFreeFrames))
	require.Equal(t, int32(-abi.E_NO_FREE_ENV), Errno(ErrNoFreeEnv))
	require.Equal(t, int32(-abi.E_IPC_NOT_RECV), Errno(ErrIPCNotRecv))
	require.Equal(t, int32(-abi.E_UNSPECIFIED), Errno(errors.New("boom")))
	require.Equal(t, int32(-abi.E_UNSPECIFIED), Errno(Halt("stop")))

	require.True(t, IsFatal(errors.Wrap(Halt("stop"), "context")))
	require.False(t, IsFatal(ErrInval))
}
