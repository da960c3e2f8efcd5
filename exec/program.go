package exec

import "fmt"

type Op uint8

const (
	OpNop Op = iota
	OpLi
	OpMove
	OpAdd
	OpAddi
	OpSub
	OpLw
	OpSw
	OpBeq
	OpBne
	OpJ
	OpSyscall
	OpEnv
)

var opNames = map[Op]string{
	OpNop:     "nop",
	OpLi:      "li",
	OpMove:    "move",
	OpAdd:     "add",
	OpAddi:    "addi",
	OpSub:     "sub",
	OpLw:      "lw",
	OpSw:      "sw",
	OpBeq:     "beq",
	OpBne:     "bne",
	OpJ:       "j",
	OpSyscall: "syscall",
	OpEnv:     "env",
}

func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}

	return fmt.Sprintf("op(%d)", uint8(o))
}

func LookupOp(name string) (Op, bool) {
	for op, n := range opNames {
		if n == name {
			return op, true
		}
	}

	return 0, false
}

// Instr is one decoded instruction. Which fields are meaningful depends on
// Op: lw/sw use Rt as the data register, Rs as the base and Imm as the
// offset; branches and jumps use Imm as the target instruction index.
type Instr struct {
	Op         Op
	Rd, Rs, Rt uint8
	Imm        int32
}

// Fields readable with the env instruction.
const (
	EnvFieldID = iota
	EnvFieldParent
	EnvFieldIPCValue
	EnvFieldIPCFrom
	EnvFieldIPCPerm
	EnvFieldIPCRecving
)

// Program is the text of a user program. It is shared, read only, between
// an environment and every child it creates.
type Program struct {
	Name   string
	Text   []Instr
	Labels map[string]int
}

func (p *Program) Entry() uint32 {
	if idx, ok := p.Labels["start"]; ok {
		return uint32(idx)
	}

	return 0
}

func regName(n uint8) string {
	if int(n) < NumRegs {
		return RegNames[n]
	}

	return fmt.Sprintf("$%d", n)
}

// String renders in the way the assembler reads it, except that branch and
// jump targets are instruction indexes.
func (in Instr) String() string {
	switch in.Op {
	case OpNop, OpSyscall:
		return in.Op.String()
	case OpLi, OpEnv:
		return fmt.Sprintf("%s %s, %d", in.Op, regName(in.Rd), in.Imm)
	case OpMove:
		return fmt.Sprintf("%s %s, %s", in.Op, regName(in.Rd), regName(in.Rs))
	case OpAdd, OpSub:
		return fmt.Sprintf("%s %s, %s, %s", in.Op, regName(in.Rd), regName(in.Rs), regName(in.Rt))
	case OpAddi:
		return fmt.Sprintf("%s %s, %s, %d", in.Op, regName(in.Rd), regName(in.Rs), in.Imm)
	case OpLw, OpSw:
		return fmt.Sprintf("%s %s, %d(%s)", in.Op, regName(in.Rt), in.Imm, regName(in.Rs))
	case OpBeq, OpBne:
		return fmt.Sprintf("%s %s, %s, %d", in.Op, regName(in.Rs), regName(in.Rt), in.Imm)
	case OpJ:
		return fmt.Sprintf("%s %d", in.Op, in.Imm)
	default:
		return in.Op.String()
	}
}
