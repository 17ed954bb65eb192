package functional

import (
	"strings"
	"testing"

	"github.com/lookbusy1344/mips-sim/memory"
	"github.com/stretchr/testify/assert"
)

func encodeI(opcode, rs, rt, imm uint32) uint32 {
	return opcode<<26 | rs<<21 | rt<<16 | (imm & 0xFFFF)
}

func encodeR(opcode, rs, rt, rd, shamt, funct uint32) uint32 {
	return opcode<<26 | rs<<21 | rt<<16 | rd<<11 | shamt<<6 | funct
}

func TestStepExecutesAddiAndAdvancesPC(t *testing.T) {
	mem := memory.New(64)
	word := encodeI(0x08, 0, 1, 5) // addi $1, $0, 5
	assert.NoError(t, mem.LoadInitWord(0, word))

	m := New(mem, 0, &strings.Builder{}, strings.NewReader(""))
	instr, err := m.Step()
	assert.NoError(t, err)
	assert.EqualValues(t, 5, m.Regs.GetGPR(1))
	assert.Equal(t, uint32(4), m.Regs.PC)
	assert.EqualValues(t, 1, m.Committed)
	_ = instr
}

func TestRunStopsOnExitSyscall(t *testing.T) {
	mem := memory.New(64)
	// addi $2, $0, 10 ($v0 = SyscallExit code)
	assert.NoError(t, mem.LoadInitWord(0, encodeI(0x08, 0, 2, 10)))
	// syscall
	assert.NoError(t, mem.LoadInitWord(4, encodeR(0x00, 0, 0, 0, 0, 0x0C)))

	m := New(mem, 0, &strings.Builder{}, strings.NewReader(""))
	status, err := m.Run(0)
	assert.NoError(t, err)
	assert.Equal(t, StatusExited, status)
	assert.True(t, m.Env.Exited)
}

func TestRunStopsOnTrailingNops(t *testing.T) {
	mem := memory.New(64) // all zero words decode as nop
	m := New(mem, 0, &strings.Builder{}, strings.NewReader(""))
	status, err := m.Run(0)
	assert.NoError(t, err)
	assert.Equal(t, StatusExited, status)
}

func TestRunStopsOnBreakpoint(t *testing.T) {
	mem := memory.New(64)
	assert.NoError(t, mem.LoadInitWord(0, encodeI(0x08, 0, 1, 1))) // addi $1,$0,1
	assert.NoError(t, mem.LoadInitWord(4, encodeI(0x08, 0, 1, 1)))

	m := New(mem, 0, &strings.Builder{}, strings.NewReader(""))
	m.HasBreakpoint, m.Breakpoint = true, 4
	status, err := m.Run(0)
	assert.NoError(t, err)
	assert.Equal(t, StatusBreakpoint, status)
	assert.Equal(t, uint32(4), m.Regs.PC)
}

func TestRunStopsOnFault(t *testing.T) {
	mem := memory.New(8)
	// lw $1, 0x100($0) -- out of bounds
	assert.NoError(t, mem.LoadInitWord(0, encodeI(0x23, 0, 1, 0x100)))
	m := New(mem, 0, &strings.Builder{}, strings.NewReader(""))
	status, err := m.Run(0)
	assert.Error(t, err)
	assert.Equal(t, StatusFault, status)
	assert.NotNil(t, m.LastFault)
}

func TestRunRespectsCycleLimit(t *testing.T) {
	mem := memory.New(64)
	// beq $0, $0, -1: always taken, branches back to itself forever.
	assert.NoError(t, mem.LoadInitWord(0, encodeI(0x04, 0, 0, uint32(int16(-1))&0xFFFF)))
	m := New(mem, 0, &strings.Builder{}, strings.NewReader(""))
	status, _ := m.Run(5)
	assert.Equal(t, StatusCycleLimit, status)
	assert.EqualValues(t, 5, m.Cycles)
}
