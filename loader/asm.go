package loader

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/evanphx/mosk/exec"
	"github.com/pkg/errors"
)

var ErrSyntax = errors.New("syntax error")

type asmError struct {
	name string
	line int
	msg  string
}

func (e *asmError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.name, e.line, e.msg)
}

type sourceLine struct {
	num  int
	op   string
	args []string
}

type assembler struct {
	name   string
	lines  []sourceLine
	labels map[string]int
	equs   map[string]int64
}

func (a *assembler) errorf(line int, format string, args ...interface{}) error {
	return errors.Wrap(ErrSyntax, (&asmError{a.name, line, fmt.Sprintf(format, args...)}).Error())
}

func stripComment(s string) string {
	inQuote := false
	for i, r := range s {
		switch r {
		case '\'':
			inQuote = !inQuote
		case '#', ';':
			if !inQuote {
				return s[:i]
			}
		}
	}

	return s
}

func splitArgs(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	return parts
}

// Assemble translates program source into a Program. The source is one
// instruction per line; `name:` defines a label and `.equ NAME, expr`
// defines a constant. Execution begins at the `start` label if present.
func Assemble(name string, r io.Reader) (*exec.Program, error) {
	a := &assembler{
		name:   name,
		labels: make(map[string]int),
		equs:   make(map[string]int64),
	}

	if err := a.scan(r); err != nil {
		return nil, err
	}

	prog := &exec.Program{
		Name:   name,
		Labels: a.labels,
	}

	for _, sl := range a.lines {
		if sl.op == ".equ" {
			continue
		}

		in, err := a.encode(sl)
		if err != nil {
			return nil, err
		}

		prog.Text = append(prog.Text, in)
	}

	return prog, nil
}

func (a *assembler) scan(r io.Reader) error {
	br := bufio.NewScanner(r)

	num := 0
	count := 0

	for br.Scan() {
		num++

		text := strings.TrimSpace(stripComment(br.Text()))

		for {
			i := strings.IndexByte(text, ':')
			if i < 0 || strings.ContainsAny(text[:i], " \t'") {
				break
			}

			label := text[:i]
			if _, dup := a.labels[label]; dup {
				return a.errorf(num, "duplicate label %q", label)
			}

			a.labels[label] = count
			text = strings.TrimSpace(text[i+1:])
		}

		if text == "" {
			continue
		}

		op := text
		rest := ""
		if i := strings.IndexAny(text, " \t"); i >= 0 {
			op = text[:i]
			rest = text[i+1:]
		}

		sl := sourceLine{
			num:  num,
			op:   strings.ToLower(op),
			args: splitArgs(rest),
		}

		if sl.op == ".equ" {
			if len(sl.args) != 2 {
				return a.errorf(num, ".equ takes a name and a value")
			}

			v, err := a.eval(num, sl.args[1])
			if err != nil {
				return err
			}

			a.equs[sl.args[0]] = v
		} else {
			count++
		}

		a.lines = append(a.lines, sl)
	}

	return br.Err()
}

func (a *assembler) want(sl sourceLine, n int) error {
	if len(sl.args) != n {
		return a.errorf(sl.num, "%s takes %d operands, got %d", sl.op, n, len(sl.args))
	}

	return nil
}

func (a *assembler) encode(sl sourceLine) (exec.Instr, error) {
	op, ok := exec.LookupOp(sl.op)
	if !ok {
		return exec.Instr{}, a.errorf(sl.num, "unknown instruction %q", sl.op)
	}

	in := exec.Instr{Op: op}

	var err error

	switch op {
	case exec.OpNop, exec.OpSyscall:
		err = a.want(sl, 0)
	case exec.OpLi, exec.OpEnv:
		if err = a.want(sl, 2); err != nil {
			break
		}

		if in.Rd, err = a.reg(sl.num, sl.args[0]); err != nil {
			break
		}

		in.Imm, err = a.imm(sl.num, sl.args[1])
	case exec.OpMove:
		if err = a.want(sl, 2); err != nil {
			break
		}

		if in.Rd, err = a.reg(sl.num, sl.args[0]); err != nil {
			break
		}

		in.Rs, err = a.reg(sl.num, sl.args[1])
	case exec.OpAdd, exec.OpSub:
		if err = a.want(sl, 3); err != nil {
			break
		}

		if in.Rd, err = a.reg(sl.num, sl.args[0]); err != nil {
			break
		}

		if in.Rs, err = a.reg(sl.num, sl.args[1]); err != nil {
			break
		}

		in.Rt, err = a.reg(sl.num, sl.args[2])
	case exec.OpAddi:
		if err = a.want(sl, 3); err != nil {
			break
		}

		if in.Rd, err = a.reg(sl.num, sl.args[0]); err != nil {
			break
		}

		if in.Rs, err = a.reg(sl.num, sl.args[1]); err != nil {
			break
		}

		in.Imm, err = a.imm(sl.num, sl.args[2])
	case exec.OpLw, exec.OpSw:
		if err = a.want(sl, 2); err != nil {
			break
		}

		if in.Rt, err = a.reg(sl.num, sl.args[0]); err != nil {
			break
		}

		in.Imm, in.Rs, err = a.memOperand(sl.num, sl.args[1])
	case exec.OpBeq, exec.OpBne:
		if err = a.want(sl, 3); err != nil {
			break
		}

		if in.Rs, err = a.reg(sl.num, sl.args[0]); err != nil {
			break
		}

		if in.Rt, err = a.reg(sl.num, sl.args[1]); err != nil {
			break
		}

		in.Imm, err = a.target(sl.num, sl.args[2])
	case exec.OpJ:
		if err = a.want(sl, 1); err != nil {
			break
		}

		in.Imm, err = a.target(sl.num, sl.args[0])
	}

	return in, err
}

func (a *assembler) reg(line int, s string) (uint8, error) {
	name := strings.TrimPrefix(s, "$")

	if n, err := strconv.Atoi(name); err == nil {
		if n < 0 || n >= exec.NumRegs {
			return 0, a.errorf(line, "register %q out of range", s)
		}

		return uint8(n), nil
	}

	for i, rn := range exec.RegNames {
		if rn == name {
			return uint8(i), nil
		}
	}

	return 0, a.errorf(line, "unknown register %q", s)
}

func (a *assembler) memOperand(line int, s string) (int32, uint8, error) {
	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return 0, 0, a.errorf(line, "bad memory operand %q", s)
	}

	var off int32

	if expr := strings.TrimSpace(s[:open]); expr != "" {
		v, err := a.imm(line, expr)
		if err != nil {
			return 0, 0, err
		}

		off = v
	}

	base, err := a.reg(line, strings.TrimSpace(s[open+1:len(s)-1]))
	if err != nil {
		return 0, 0, err
	}

	return off, base, nil
}

func (a *assembler) target(line int, s string) (int32, error) {
	if idx, ok := a.labels[s]; ok {
		return int32(idx), nil
	}

	return a.imm(line, s)
}

func (a *assembler) imm(line int, s string) (int32, error) {
	v, err := a.eval(line, s)
	if err != nil {
		return 0, err
	}

	if v > 0xffffffff || v < -0x80000000 {
		return 0, a.errorf(line, "value %d does not fit in a word", v)
	}

	return int32(uint32(v)), nil
}

// eval handles terms joined by +, - and |, evaluated left to right.
func (a *assembler) eval(line int, s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, a.errorf(line, "missing value")
	}

	var (
		total int64
		op    byte = '+'
		start      = 0
	)

	if s[0] == '-' {
		op = '-'
		start = 1
	}

	for i := start; i <= len(s); i++ {
		if i < len(s) {
			c := s[i]
			if c == '\'' {
				if j := strings.IndexByte(s[i+1:], '\''); j >= 0 {
					i += j + 1
				}
				continue
			}

			if c != '+' && c != '-' && c != '|' {
				continue
			}
		}

		v, err := a.term(line, strings.TrimSpace(s[start:i]))
		if err != nil {
			return 0, err
		}

		switch op {
		case '+':
			total += v
		case '-':
			total -= v
		case '|':
			total |= v
		}

		if i < len(s) {
			op = s[i]
		}

		start = i + 1
	}

	return total, nil
}

func (a *assembler) term(line int, s string) (int64, error) {
	if s == "" {
		return 0, a.errorf(line, "missing operand")
	}

	if len(s) == 3 && s[0] == '\'' && s[2] == '\'' {
		return int64(s[1]), nil
	}

	if s == `'\n'` {
		return '\n', nil
	}

	if v, err := strconv.ParseInt(s, 0, 64); err == nil {
		return v, nil
	}

	if v, ok := a.equs[s]; ok {
		return v, nil
	}

	if v, ok := a.labels[s]; ok {
		return int64(v), nil
	}

	if v, ok := Symbols[s]; ok {
		return v, nil
	}

	return 0, a.errorf(line, "undefined symbol %q", s)
}
