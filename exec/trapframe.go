package exec

import "fmt"

// Register numbers, MIPS naming.
const (
	RegZero = 0
	RegAT   = 1
	RegV0   = 2
	RegV1   = 3
	RegA0   = 4
	RegA1   = 5
	RegA2   = 6
	RegA3   = 7
	RegT0   = 8
	RegT1   = 9
	RegT2   = 10
	RegT3   = 11
	RegT4   = 12
	RegT5   = 13
	RegT6   = 14
	RegT7   = 15
	RegS0   = 16
	RegS1   = 17
	RegS2   = 18
	RegS3   = 19
	RegS4   = 20
	RegS5   = 21
	RegS6   = 22
	RegS7   = 23
	RegT8   = 24
	RegT9   = 25
	RegK0   = 26
	RegK1   = 27
	RegGP   = 28
	RegSP   = 29
	RegFP   = 30
	RegRA   = 31

	NumRegs = 32
)

var RegNames = [NumRegs]string{
	"zero", "at", "v0", "v1", "a0", "a1", "a2", "a3",
	"t0", "t1", "t2", "t3", "t4", "t5", "t6", "t7",
	"s0", "s1", "s2", "s3", "s4", "s5", "s6", "s7",
	"t8", "t9", "k0", "k1", "gp", "sp", "fp", "ra",
}

// Trapframe is the register snapshot taken when an environment enters the
// kernel. PC is where execution continues; EPC is the PC the kernel will
// return to after handling a syscall or exception.
type Trapframe struct {
	Regs     [NumRegs]uint32
	PC       uint32
	EPC      uint32
	BadVAddr uint32
	Cause    uint32
}

// TrapframeWords is the size of a Trapframe when stored in user memory.
const TrapframeWords = NumRegs + 4

func (tf *Trapframe) Words() []uint32 {
	w := make([]uint32, 0, TrapframeWords)
	w = append(w, tf.Regs[:]...)
	return append(w, tf.PC, tf.EPC, tf.BadVAddr, tf.Cause)
}

func (tf *Trapframe) SetWords(w []uint32) {
	copy(tf.Regs[:], w[:NumRegs])
	tf.Regs[RegZero] = 0
	tf.PC = w[NumRegs]
	tf.EPC = w[NumRegs+1]
	tf.BadVAddr = w[NumRegs+2]
	tf.Cause = w[NumRegs+3]
}

func (tf *Trapframe) String() string {
	return fmt.Sprintf("pc=%d epc=%d v0=%x a0=%x a1=%x a2=%x a3=%x sp=%x",
		tf.PC, tf.EPC, tf.Regs[RegV0], tf.Regs[RegA0], tf.Regs[RegA1],
		tf.Regs[RegA2], tf.Regs[RegA3], tf.Regs[RegSP])
}
