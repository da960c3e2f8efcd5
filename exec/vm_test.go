package exec

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
)

var errUnmapped = errors.New("unmapped")

type wordMemory map[uint32]uint32

func (m wordMemory) Load32(va uint32) (uint32, error) {
	v, ok := m[va]
	if !ok {
		return 0, errUnmapped
	}

	return v, nil
}

func (m wordMemory) Store32(va, val uint32) error {
	if _, ok := m[va]; !ok {
		return errUnmapped
	}

	m[va] = val
	return nil
}

type fields map[int]uint32

func (f fields) EnvField(n int) (uint32, bool) {
	v, ok := f[n]
	return v, ok
}

func TestVM(t *testing.T) {
	n := neko.Modern(t)

	n.It("runs arithmetic until a syscall", func(t *testing.T) {
		prog := &Program{
			Name: "arith",
			Text: []Instr{
				{Op: OpLi, Rd: RegT0, Imm: 40},
				{Op: OpAddi, Rd: RegT0, Rs: RegT0, Imm: 3},
				{Op: OpLi, Rd: RegT1, Imm: 1},
				{Op: OpSub, Rd: RegA1, Rs: RegT0, Rt: RegT1},
				{Op: OpSyscall},
			},
		}

		var tf Trapframe
		vm := &VM{Program: prog, Memory: wordMemory{}}

		trap := vm.Run(&tf)
		require.Equal(t, TrapSyscall, trap.Kind)
		require.Equal(t, uint32(42), tf.Regs[RegA1])
		require.Equal(t, uint32(4), tf.EPC)
		require.Equal(t, uint32(CauseSyscall), tf.Cause)
		require.Equal(t, 5, trap.Steps)
	})

	n.It("keeps the zero register zero", func(t *testing.T) {
		prog := &Program{
			Text: []Instr{
				{Op: OpLi, Rd: RegZero, Imm: 7},
				{Op: OpSyscall},
			},
		}

		var tf Trapframe
		vm := &VM{Program: prog}

		vm.Run(&tf)
		require.Equal(t, uint32(0), tf.Regs[RegZero])
	})

	n.It("branches and loops", func(t *testing.T) {
		prog := &Program{
			Text: []Instr{
				{Op: OpLi, Rd: RegT0, Imm: 5},
				{Op: OpAddi, Rd: RegV1, Rs: RegV1, Imm: 2},
				{Op: OpAddi, Rd: RegT0, Rs: RegT0, Imm: -1},
				{Op: OpBne, Rs: RegT0, Rt: RegZero, Imm: 1},
				{Op: OpSyscall},
			},
		}

		var tf Trapframe
		vm := &VM{Program: prog}

		trap := vm.Run(&tf)
		require.Equal(t, TrapSyscall, trap.Kind)
		require.Equal(t, uint32(10), tf.Regs[RegV1])
	})

	n.It("loads and stores through memory", func(t *testing.T) {
		mem := wordMemory{0x1000: 0, 0x1004: 9}

		prog := &Program{
			Text: []Instr{
				{Op: OpLi, Rd: RegS0, Imm: 0x1000},
				{Op: OpLw, Rt: RegT0, Rs: RegS0, Imm: 4},
				{Op: OpSw, Rt: RegT0, Rs: RegS0, Imm: 0},
				{Op: OpSyscall},
			},
		}

		var tf Trapframe
		vm := &VM{Program: prog, Memory: mem}

		trap := vm.Run(&tf)
		require.Equal(t, TrapSyscall, trap.Kind)
		require.Equal(t, uint32(9), mem[0x1000])
	})

	n.It("reports page faults with the faulting address", func(t *testing.T) {
		prog := &Program{
			Text: []Instr{
				{Op: OpLi, Rd: RegS0, Imm: 0x2000},
				{Op: OpSw, Rt: RegT0, Rs: RegS0, Imm: 8},
			},
		}

		var tf Trapframe
		vm := &VM{Program: prog, Memory: wordMemory{}}

		trap := vm.Run(&tf)
		require.Equal(t, TrapFault, trap.Kind)
		require.Equal(t, errUnmapped, trap.Err)
		require.Equal(t, uint32(0x2008), tf.BadVAddr)
		require.Equal(t, uint32(1), tf.EPC)
		require.Equal(t, uint32(CauseTLBS), tf.Cause)
	})

	n.It("takes a timer trap when the quantum runs out", func(t *testing.T) {
		prog := &Program{
			Text: []Instr{
				{Op: OpAddi, Rd: RegT0, Rs: RegT0, Imm: 1},
				{Op: OpJ, Imm: 0},
			},
		}

		var tf Trapframe
		vm := &VM{Program: prog, Quantum: 10}

		trap := vm.Run(&tf)
		require.Equal(t, TrapTimer, trap.Kind)
		require.Equal(t, uint32(5), tf.Regs[RegT0])
		require.Equal(t, tf.PC, tf.EPC)
		require.Equal(t, 10, trap.Steps)
	})

	n.It("stops a spinning program once Stop is closed", func(t *testing.T) {
		prog := &Program{
			Text: []Instr{
				{Op: OpJ, Imm: 0},
			},
		}

		stop := make(chan struct{})
		close(stop)

		var tf Trapframe
		vm := &VM{Program: prog, Stop: stop}

		trap := vm.Run(&tf)
		require.Equal(t, TrapInterrupt, trap.Kind)
		require.Equal(t, uint32(0), tf.EPC)
		require.Equal(t, uint32(CauseInt), tf.Cause)
		require.True(t, trap.Steps < 2*stopInterval, "ran %d steps", trap.Steps)
	})

	n.It("reads environment fields", func(t *testing.T) {
		prog := &Program{
			Text: []Instr{
				{Op: OpEnv, Rd: RegT0, Imm: EnvFieldIPCValue},
				{Op: OpSyscall},
			},
		}

		var tf Trapframe
		vm := &VM{Program: prog, Env: fields{EnvFieldIPCValue: 42}}

		trap := vm.Run(&tf)
		require.Equal(t, TrapSyscall, trap.Kind)
		require.Equal(t, uint32(42), tf.Regs[RegT0])
	})

	n.It("rejects running off the end of the program", func(t *testing.T) {
		prog := &Program{
			Text: []Instr{
				{Op: OpNop},
			},
		}

		var tf Trapframe
		vm := &VM{Program: prog}

		trap := vm.Run(&tf)
		require.Equal(t, TrapIllegal, trap.Kind)
		require.Equal(t, ErrIllegalInstruction, errors.Cause(trap.Err))
		require.Equal(t, uint32(1), tf.EPC)
	})

	n.Meow()
}

func TestTrapframeWords(t *testing.T) {
	var tf Trapframe
	tf.Regs[RegA0] = 1
	tf.Regs[RegSP] = 0x7f3fe000
	tf.PC = 12
	tf.EPC = 11

	var out Trapframe
	out.SetWords(tf.Words())

	require.Equal(t, tf, out)
}

func TestInstrString(t *testing.T) {
	require.Equal(t, "syscall", Instr{Op: OpSyscall}.String())
	require.Equal(t, "li a0, 9528", Instr{Op: OpLi, Rd: RegA0, Imm: 9528}.String())
	require.Equal(t, "add v0, a1, a2", Instr{Op: OpAdd, Rd: RegV0, Rs: RegA1, Rt: RegA2}.String())
	require.Equal(t, "sw t0, -4(sp)", Instr{Op: OpSw, Rt: RegT0, Rs: RegSP, Imm: -4}.String())
	require.Equal(t, "bne s0, zero, 3", Instr{Op: OpBne, Rs: RegS0, Imm: 3}.String())
	require.Equal(t, "move a1, $40", Instr{Op: OpMove, Rd: RegA1, Rs: 40}.String())
}
