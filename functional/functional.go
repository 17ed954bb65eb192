// Package functional implements the non-timing execution loop: decode,
// apply semantics, advance PC, repeat. It is the reference model the
// out-of-order driver's architectural state must match (spec §8, property
// 3), and mirrors the teacher's VM.Step orchestration in vm/executor.go —
// one method owning the phase order, delegating to per-family semantics.
package functional

import (
	"errors"
	"io"

	"github.com/lookbusy1344/mips-sim/cpu"
	"github.com/lookbusy1344/mips-sim/memory"
	"github.com/lookbusy1344/mips-sim/simerror"
)

// Status reports why a Run call returned.
type Status int

const (
	StatusRunning Status = iota
	StatusExited
	StatusBreakpoint
	StatusCycleLimit
	StatusFault
)

// Machine bundles the register file, memory, and environment-call surface
// that together make up the functional core. There is exactly one Memory
// and one Registers per spec §3 ownership rules.
type Machine struct {
	Regs *cpu.Registers
	Mem  *memory.Memory
	Env  *cpu.Env

	Breakpoint    uint32
	HasBreakpoint bool

	Committed uint64
	Cycles    uint64

	LastFault error
}

// New creates a functional machine with PC set to entry.
func New(mem *memory.Memory, entry uint32, out io.Writer, in io.Reader) *Machine {
	return &Machine{
		Regs: cpu.New(entry),
		Mem:  mem,
		Env:  cpu.NewEnv(out, in),
	}
}

// nopRunLength sets end-of-program detection: two back-to-back NOPs at
// the tail of a program signal natural termination (spec §8 idempotence
// law), distinct from a cycle-budget or exit-syscall stop.
const nopRunLength = 2

// Step decodes and executes exactly one instruction, advancing PC under the
// no-delay-slot rule of spec §4.2: PC += 4 by default, branch/jump targets
// override it. Returns the instruction executed and any fault.
func (m *Machine) Step() (cpu.Instruction, error) {
	word, err := m.Mem.ReadWord(m.Regs.PC)
	if err != nil {
		return cpu.Instruction{}, err
	}
	instr, err := cpu.Decode(word, m.Regs.PC)
	if err != nil {
		return instr, err
	}

	nextPC := m.Regs.PC + 4

	switch instr.Family {
	case cpu.FamilyALU:
		err = cpu.ExecALU(m.Regs, instr)
	case cpu.FamilyMulDiv:
		err = cpu.ExecMulDiv(m.Regs, instr)
	case cpu.FamilyLoadStore:
		err = cpu.ExecMemory(m.Regs, m.Mem, instr)
	case cpu.FamilyFPAdd, cpu.FamilyFPMul:
		err = cpu.ExecFP(m.Regs, instr)
	case cpu.FamilyBranch:
		var out cpu.BranchOutcome
		out, err = cpu.EvalControl(m.Regs, m.Mem, instr)
		if err == nil {
			cpu.ApplyControl(m.Regs, out)
			if out.Taken {
				nextPC = out.NextPC
			}
		}
	case cpu.FamilySystem:
		if instr.Op == cpu.OpBreak {
			err = simerror.Breakpoint(instr.PC)
		} else {
			err = cpu.ExecSyscall(m.Regs, m.Mem, m.Env, instr)
		}
	}

	if err != nil {
		return instr, err
	}

	m.Regs.PC = nextPC
	m.Regs.Cycles++
	m.Committed++
	m.Cycles++
	return instr, nil
}

// Run executes instructions until exit, a breakpoint, a fault, or
// maxCycles is reached (default cycle budget 1,000,000 per spec §5).
func (m *Machine) Run(maxCycles uint64) (Status, error) {
	if maxCycles == 0 {
		maxCycles = 1_000_000
	}
	trailingNops := 0
	for m.Cycles < maxCycles {
		if m.HasBreakpoint && m.Regs.PC == m.Breakpoint {
			return StatusBreakpoint, nil
		}
		instr, err := m.Step()
		if err != nil {
			var fault *simerror.Fault
			if errors.As(err, &fault) {
				m.LastFault = fault
				if fault.Kind == simerror.KindBreakpoint {
					return StatusBreakpoint, nil
				}
				return StatusFault, fault
			}
			m.LastFault = err
			return StatusFault, err
		}
		if m.Env.Exited {
			return StatusExited, nil
		}
		if instr.Op == cpu.OpNop {
			trailingNops++
			if trailingNops >= nopRunLength {
				return StatusExited, nil
			}
		} else {
			trailingNops = 0
		}
	}
	return StatusCycleLimit, nil
}
