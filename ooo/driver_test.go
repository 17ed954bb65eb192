package ooo

import (
	"strings"
	"testing"

	"github.com/lookbusy1344/mips-sim/cache"
	"github.com/lookbusy1344/mips-sim/cpu"
	"github.com/lookbusy1344/mips-sim/memory"
	"github.com/lookbusy1344/mips-sim/predict"
	"github.com/stretchr/testify/assert"
)

func encodeI(opcode, rs, rt, imm uint32) uint32 {
	return opcode<<26 | rs<<21 | rt<<16 | (imm & 0xFFFF)
}

func encodeR(opcode, rs, rt, rd, shamt, funct uint32) uint32 {
	return opcode<<26 | rs<<21 | rt<<16 | rd<<11 | shamt<<6 | funct
}

func newTestCache(mem *memory.Memory) *cache.Cache {
	return cache.New(cache.Config{
		NumSets: 8, Associativity: 2, BlockSize: 16,
		Replacement: cache.LRU, Write: cache.WriteBack,
		HitLatency: 1, MissPenalty: 4,
	}, mem)
}

func defaultUnits() map[UnitClass]ClassConfig {
	cfg := ClassConfig{NumStations: 4, IssueWidth: 2, Latency: 1}
	return map[UnitClass]ClassConfig{
		ClassALU: cfg, ClassMulDiv: cfg, ClassLoadStore: cfg,
		ClassFPAdd: cfg, ClassFPMul: cfg,
	}
}

func newTestDriver(mem *memory.Memory) *Driver {
	regs := cpu.New(0)
	env := cpu.NewEnv(&strings.Builder{}, strings.NewReader(""))
	cfg := Config{
		ROBCapacity: 16, DispatchWidth: 2, IssueWidthCDB: 2, CommitWidth: 2,
		Units:     defaultUnits(),
		Predictor: predict.New(predict.ModeTwoBit, 16),
		L1I:       newTestCache(mem),
		L1D:       newTestCache(mem),
	}
	return New(regs, mem, env, cfg)
}

func TestDriverRunsSimpleProgramToExit(t *testing.T) {
	mem := memory.New(256)
	assert.NoError(t, mem.LoadInitWord(0, encodeI(0x08, 0, 2, 10))) // addi $2,$0,10 (v0=exit)
	assert.NoError(t, mem.LoadInitWord(4, encodeI(0x08, 0, 4, 9)))  // addi $4,$0,9  (a0=9)
	assert.NoError(t, mem.LoadInitWord(8, encodeR(0x00, 0, 0, 0, 0, 0x0C))) // syscall

	d := newTestDriver(mem)
	status, err := d.Run()
	assert.NoError(t, err)
	assert.Equal(t, StatusExited, status)
	assert.True(t, d.Env.Exited)
	assert.Equal(t, int32(9), d.Env.ExitCode)
	assert.Greater(t, d.Stats.Committed, uint64(0))
}

func TestDriverDependentAddsProduceCorrectValue(t *testing.T) {
	mem := memory.New(256)
	assert.NoError(t, mem.LoadInitWord(0, encodeI(0x08, 0, 1, 4)))          // addi $1,$0,4
	assert.NoError(t, mem.LoadInitWord(4, encodeR(0x00, 1, 1, 8, 0, 0x20))) // add $8,$1,$1 -> 8
	assert.NoError(t, mem.LoadInitWord(8, encodeI(0x08, 0, 2, 10)))         // addi $2,$0,10 (v0=exit)
	assert.NoError(t, mem.LoadInitWord(12, encodeR(0x00, 8, 0, 4, 0, 0x21))) // addu $4,$8,$0 (a0 = result)
	assert.NoError(t, mem.LoadInitWord(16, encodeR(0x00, 0, 0, 0, 0, 0x0C))) // syscall

	d := newTestDriver(mem)
	status, err := d.Run()
	assert.NoError(t, err)
	assert.Equal(t, StatusExited, status)
	assert.Equal(t, int32(8), d.Env.ExitCode)
}

func TestDriverRespectsCycleLimit(t *testing.T) {
	mem := memory.New(256)
	// beq $0,$0,-1: infinite taken loop back to itself.
	assert.NoError(t, mem.LoadInitWord(0, encodeI(0x04, 0, 0, uint32(int16(-1))&0xFFFF)))
	d := newTestDriver(mem)
	status, _ := d.Run()
	assert.Equal(t, StatusCycleLimit, status)
}

func TestDriverMispredictedBranchSquashes(t *testing.T) {
	mem := memory.New(256)
	// beq $0,$0,+2 is always taken; the predictor's cold default is
	// not-taken, so this mispredicts and squashes the two fetched-ahead
	// instructions at pc4/pc8 that must never commit.
	assert.NoError(t, mem.LoadInitWord(0, encodeI(0x04, 0, 0, 2)))          // beq $0,$0,+2 -> taken
	assert.NoError(t, mem.LoadInitWord(4, encodeI(0x08, 0, 2, 99)))         // squashed: addi $2,$0,99
	assert.NoError(t, mem.LoadInitWord(8, encodeI(0x08, 0, 4, 99)))         // squashed: addi $4,$0,99
	assert.NoError(t, mem.LoadInitWord(12, encodeI(0x08, 0, 2, 10)))        // addi $2,$0,10 (v0=exit)
	assert.NoError(t, mem.LoadInitWord(16, encodeI(0x08, 0, 4, 5)))         // addi $4,$0,5 (a0=5)
	assert.NoError(t, mem.LoadInitWord(20, encodeR(0x00, 0, 0, 0, 0, 0x0C))) // syscall

	d := newTestDriver(mem)
	status, err := d.Run()
	assert.NoError(t, err)
	assert.Equal(t, StatusExited, status)
	assert.Equal(t, int32(5), d.Env.ExitCode)
	assert.Greater(t, d.Stats.Squashes, uint64(0))
}

func TestROBAllocCommitCycle(t *testing.T) {
	r := NewROB(2)
	assert.True(t, r.Empty())
	id0 := r.Alloc(cpu.Instruction{})
	id1 := r.Alloc(cpu.Instruction{})
	assert.True(t, r.Full())
	assert.True(t, r.IsOlder(id0, id1))
	r.CommitHead()
	assert.False(t, r.Full())
	assert.Equal(t, 1, r.Count())
	id2 := r.Alloc(cpu.Instruction{})
	assert.True(t, r.Full())
	_ = id2
}

func TestROBSquashAfterDiscardsNewer(t *testing.T) {
	r := NewROB(4)
	keep := r.Alloc(cpu.Instruction{})
	r.Alloc(cpu.Instruction{})
	r.Alloc(cpu.Instruction{})
	squashed := r.SquashAfter(keep)
	assert.Len(t, squashed, 2)
	assert.Equal(t, 1, r.Count())
}

func TestRATSetLookupAndClear(t *testing.T) {
	rat := NewRAT()
	_, ok := rat.LookupGPR(5)
	assert.False(t, ok)
	rat.SetGPR(5, 3)
	id, ok := rat.LookupGPR(5)
	assert.True(t, ok)
	assert.Equal(t, 3, id)
	rat.ClearGPRIfOwner(5, 3)
	_, ok = rat.LookupGPR(5)
	assert.False(t, ok)
}
