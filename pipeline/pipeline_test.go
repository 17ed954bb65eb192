package pipeline

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

func newTestPipeline(mem *memory.Memory, forwarding bool) *Pipeline {
	regs := cpu.New(0)
	env := cpu.NewEnv(&strings.Builder{}, strings.NewReader(""))
	cfg := Config{
		Forwarding: forwarding,
		Predictor:  predict.New(predict.ModeTwoBit, 16),
		L1I:        newTestCache(mem),
		L1D:        newTestCache(mem),
	}
	return New(regs, mem, env, cfg)
}

func TestPipelineRunsSimpleProgramToExit(t *testing.T) {
	mem := memory.New(256)
	assert.NoError(t, mem.LoadInitWord(0, encodeI(0x08, 0, 2, 10)))  // addi $2,$0,10 ($v0=exit)
	assert.NoError(t, mem.LoadInitWord(4, encodeI(0x08, 0, 4, 7)))   // addi $4,$0,7  ($a0=7)
	assert.NoError(t, mem.LoadInitWord(8, encodeR(0x00, 0, 0, 0, 0, 0x0C))) // syscall

	p := newTestPipeline(mem, true)
	status, err := p.Run()
	assert.NoError(t, err)
	assert.Equal(t, StatusExited, status)
	assert.True(t, p.Env.Exited)
	assert.Equal(t, int32(7), p.Env.ExitCode)
}

func TestPipelineLoadUseHazardStalls(t *testing.T) {
	mem := memory.New(512)
	assert.NoError(t, mem.LoadInitWord(0x100, 42))
	assert.NoError(t, mem.LoadInitWord(0, encodeI(0x23, 0, 1, 0x100))) // lw $1, 0x100($0)
	assert.NoError(t, mem.LoadInitWord(4, encodeR(0x00, 1, 1, 2, 0, 0x20))) // add $2,$1,$1

	p := newTestPipeline(mem, true)
	_, _ = p.Run()
	assert.Greater(t, p.Stats.DataStalls, uint64(0))
}

func TestPipelineNoForwardingStallsOnALUProducer(t *testing.T) {
	mem := memory.New(256)
	assert.NoError(t, mem.LoadInitWord(0, encodeI(0x08, 0, 1, 9)))            // addi $1,$0,9
	assert.NoError(t, mem.LoadInitWord(4, encodeR(0x00, 1, 1, 2, 0, 0x20)))   // add $2,$1,$1

	p := newTestPipeline(mem, false)
	_, _ = p.Run()
	assert.Greater(t, p.Stats.DataStalls, uint64(0))
}

func TestPipelineForwardingAvoidsALUStall(t *testing.T) {
	mem := memory.New(256)
	assert.NoError(t, mem.LoadInitWord(0, encodeI(0x08, 0, 1, 9)))
	assert.NoError(t, mem.LoadInitWord(4, encodeR(0x00, 1, 1, 2, 0, 0x20)))

	p := newTestPipeline(mem, true)
	_, _ = p.Run()
	assert.Equal(t, uint64(0), p.Stats.DataStalls)
}

func TestPipelineTracksCommittedAndCPI(t *testing.T) {
	mem := memory.New(256)
	assert.NoError(t, mem.LoadInitWord(0, encodeI(0x08, 0, 2, 10)))
	assert.NoError(t, mem.LoadInitWord(4, encodeI(0x08, 0, 4, 0)))
	assert.NoError(t, mem.LoadInitWord(8, encodeR(0x00, 0, 0, 0, 0, 0x0C)))

	p := newTestPipeline(mem, true)
	_, err := p.Run()
	assert.NoError(t, err)
	assert.Greater(t, p.Stats.Committed, uint64(0))
	assert.Greater(t, p.Stats.CPI(), 0.0)
}

func TestSnapshotReportsStageDisasm(t *testing.T) {
	mem := memory.New(256)
	assert.NoError(t, mem.LoadInitWord(0, encodeI(0x08, 0, 1, 5)))
	p := newTestPipeline(mem, true)
	_, err := p.tick()
	assert.NoError(t, err)
	rec := p.Snapshot()
	assert.Equal(t, uint64(1), rec.Cycle)
	assert.NotEqual(t, "-", rec.Stages[StageFetch].Disasm)
}

func TestRunRecordsHistoryWhenEnabled(t *testing.T) {
	mem := memory.New(256)
	assert.NoError(t, mem.LoadInitWord(0, encodeI(0x08, 0, 2, 10)))
	assert.NoError(t, mem.LoadInitWord(4, encodeR(0x00, 0, 0, 0, 0, 0x0C)))

	regs := cpu.New(0)
	env := cpu.NewEnv(&strings.Builder{}, strings.NewReader(""))
	cfg := Config{
		Forwarding:    true,
		Predictor:     predict.New(predict.ModeTwoBit, 16),
		L1I:           newTestCache(mem),
		L1D:           newTestCache(mem),
		RecordHistory: true,
	}
	p := New(regs, mem, env, cfg)
	_, err := p.Run()
	assert.NoError(t, err)
	assert.Greater(t, len(p.History), 0)
}
