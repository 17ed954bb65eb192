package cpu

import (
	"bufio"
	"fmt"
	"io"

	"github.com/lookbusy1344/mips-sim/memory"
	"github.com/lookbusy1344/mips-sim/simerror"
)

// Environment call numbers, read from $v0 per spec §4.2.
const (
	SyscallPrintInt    = 1
	SyscallPrintString = 4
	SyscallReadInt     = 5
	SyscallReadString  = 8
	SyscallExit        = 10
	SyscallPrintChar   = 11
	SyscallReadChar    = 12
)

// Env carries the small fixed I/O surface environment calls are allowed to
// touch, grounded on the teacher's stdin-redirection pattern in
// vm/syscall.go (SetStdinReader) so a TUI/API front end can supply its own
// input stream instead of the process's os.Stdin.
type Env struct {
	Out    io.Writer
	in     *bufio.Reader
	Exited bool
	ExitCode int32
}

// NewEnv wraps stdout/stdin writers/readers for syscall dispatch.
func NewEnv(out io.Writer, in io.Reader) *Env {
	return &Env{Out: out, in: bufio.NewReader(in)}
}

// SetInput replaces the syscall input stream, e.g. to feed scripted input
// from a test or a TUI input pane.
func (e *Env) SetInput(r io.Reader) {
	e.in = bufio.NewReader(r)
}

// ExecSyscall dispatches on the call number in $v0 against the fixed table
// in spec §4.2. Unknown codes return simerror.InvalidSyscall; exit sets
// Env.Exited so the driver can terminate the run.
func ExecSyscall(r *Registers, mem *memory.Memory, env *Env, in Instruction) error {
	code := r.GetGPR(V0)
	switch code {
	case SyscallPrintInt:
		fmt.Fprintf(env.Out, "%d", int32(r.GetGPR(A0)))
		return nil
	case SyscallPrintString:
		s, err := readCString(mem, r.GetGPR(A0))
		if err != nil {
			return err
		}
		fmt.Fprint(env.Out, s)
		return nil
	case SyscallReadInt:
		var v int32
		if _, err := fmt.Fscan(env.in, &v); err != nil && err != io.EOF {
			return nil
		}
		r.SetGPR(V0, uint32(v))
		return nil
	case SyscallReadString:
		addr := r.GetGPR(A0)
		maxLen := r.GetGPR(V1)
		line, _ := env.in.ReadString('\n')
		if uint32(len(line)) >= maxLen && maxLen > 0 {
			line = line[:maxLen-1]
		}
		for i := 0; i < len(line); i++ {
			if err := mem.WriteByte(addr+uint32(i), line[i]); err != nil {
				return err
			}
		}
		if err := mem.WriteByte(addr+uint32(len(line)), 0); err != nil {
			return err
		}
		return nil
	case SyscallExit:
		env.Exited = true
		env.ExitCode = int32(r.GetGPR(A0))
		return nil
	case SyscallPrintChar:
		fmt.Fprintf(env.Out, "%c", rune(r.GetGPR(A0)))
		return nil
	case SyscallReadChar:
		b, err := env.in.ReadByte()
		if err != nil {
			r.SetGPR(V0, 0)
			return nil
		}
		r.SetGPR(V0, uint32(b))
		return nil
	default:
		return simerror.InvalidSyscall(code).WithPC(in.PC)
	}
}

func readCString(mem *memory.Memory, addr uint32) (string, error) {
	var buf []byte
	for {
		b, err := mem.ReadByte(addr)
		if err != nil {
			return "", err
		}
		if b == 0 {
			break
		}
		buf = append(buf, b)
		addr++
	}
	return string(buf), nil
}
