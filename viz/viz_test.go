package viz

import (
	"strings"
	"testing"

	"github.com/lookbusy1344/mips-sim/cache"
	"github.com/lookbusy1344/mips-sim/cpu"
	"github.com/lookbusy1344/mips-sim/memory"
	"github.com/lookbusy1344/mips-sim/ooo"
	"github.com/lookbusy1344/mips-sim/pipeline"
	"github.com/lookbusy1344/mips-sim/predict"
	"github.com/stretchr/testify/assert"
)

func TestParseFormat(t *testing.T) {
	assert.Equal(t, FormatCSV, ParseFormat("csv"))
	assert.Equal(t, FormatCSV, ParseFormat("CSV"))
	assert.Equal(t, FormatJSON, ParseFormat("json"))
	assert.Equal(t, FormatText, ParseFormat("text"))
	assert.Equal(t, FormatText, ParseFormat("nonsense"))
}

func TestTraceRecordsOnlyChangedRegisters(t *testing.T) {
	tr := NewTrace()
	r := cpu.New(0)

	tr.Record(0, cpu.Instruction{PC: 0, Op: cpu.OpAddi}, r)
	assert.Len(t, tr.Entries(), 1)
	assert.Empty(t, tr.Entries()[0].Changes) // no prior snapshot to diff against

	r.SetGPR(1, 5)
	tr.Record(1, cpu.Instruction{PC: 4, Op: cpu.OpAddi}, r)
	entries := tr.Entries()
	assert.Len(t, entries, 2)
	assert.Equal(t, uint32(5), entries[1].Changes["R1"])
	assert.Len(t, entries[1].Changes, 1)
}

func TestTraceDisabledRecordsNothing(t *testing.T) {
	tr := NewTrace()
	tr.Enabled = false
	r := cpu.New(0)
	tr.Record(0, cpu.Instruction{PC: 0}, r)
	assert.Empty(t, tr.Entries())
}

func TestTraceMaxEntriesCapsRecording(t *testing.T) {
	tr := NewTrace()
	tr.MaxEntries = 2
	r := cpu.New(0)
	for i := 0; i < 5; i++ {
		r.SetGPR(1, uint32(i))
		tr.Record(uint64(i), cpu.Instruction{PC: uint32(i * 4)}, r)
	}
	assert.Len(t, tr.Entries(), 2)
}

func TestTraceFilterRegistersRestrictsChanges(t *testing.T) {
	tr := NewTrace()
	tr.SetFilterRegisters([]string{"R2"})
	r := cpu.New(0)
	tr.Record(0, cpu.Instruction{PC: 0}, r)

	r.SetGPR(1, 1)
	r.SetGPR(2, 2)
	tr.Record(1, cpu.Instruction{PC: 4}, r)

	changes := tr.Entries()[1].Changes
	assert.Len(t, changes, 1)
	assert.Equal(t, uint32(2), changes["R2"])
}

func TestTraceRecordsHiLoAndFCC(t *testing.T) {
	tr := NewTrace()
	r := cpu.New(0)
	tr.Record(0, cpu.Instruction{PC: 0}, r)

	r.HI = 7
	r.LO = 9
	r.FCC = true
	tr.Record(1, cpu.Instruction{PC: 4}, r)

	changes := tr.Entries()[1].Changes
	assert.Equal(t, uint32(7), changes["HI"])
	assert.Equal(t, uint32(9), changes["LO"])
	assert.Equal(t, uint32(1), changes["FCC"])
}

func TestTraceExportText(t *testing.T) {
	tr := NewTrace()
	r := cpu.New(0)
	tr.Record(0, cpu.Instruction{PC: 0, Op: cpu.OpAddi}, r)

	var b strings.Builder
	assert.NoError(t, tr.Export(&b, FormatText))
	assert.Contains(t, b.String(), "0x00000000")
}

func TestTraceExportCSV(t *testing.T) {
	tr := NewTrace()
	r := cpu.New(0)
	tr.Record(0, cpu.Instruction{PC: 0}, r)
	r.SetGPR(3, 11)
	tr.Record(1, cpu.Instruction{PC: 4}, r)

	var b strings.Builder
	assert.NoError(t, tr.Export(&b, FormatCSV))
	out := b.String()
	assert.Contains(t, out, "sequence,pc,disasm,register,value")
	assert.Contains(t, out, "R3")
}

func TestTraceExportJSON(t *testing.T) {
	tr := NewTrace()
	r := cpu.New(0)
	tr.Record(0, cpu.Instruction{PC: 0}, r)

	var b strings.Builder
	assert.NoError(t, tr.Export(&b, FormatJSON))
	assert.Contains(t, b.String(), "\"Sequence\": 0")
}

func TestExportCyclesText(t *testing.T) {
	history := []pipeline.CycleRecord{
		{Cycle: 1, Stages: [5]pipeline.StageSnapshot{
			{Disasm: "addi $1,$0,5", Status: pipeline.StatusBusy},
		}},
	}
	var b strings.Builder
	assert.NoError(t, ExportCycles(&b, history, FormatText))
	out := b.String()
	assert.Contains(t, out, "cycle")
	assert.Contains(t, out, "addi $1,$0,5")
}

func TestExportCyclesCSV(t *testing.T) {
	history := []pipeline.CycleRecord{
		{Cycle: 2, Stages: [5]pipeline.StageSnapshot{
			{Disasm: "nop", Status: pipeline.StatusEmpty},
		}},
	}
	var b strings.Builder
	assert.NoError(t, ExportCycles(&b, history, FormatCSV))
	out := b.String()
	assert.Contains(t, out, "cycle,IF,ID,EX,MEM,WB")
	assert.Contains(t, out, "empty:nop")
}

func TestExportCyclesJSON(t *testing.T) {
	history := []pipeline.CycleRecord{{Cycle: 3}}
	var b strings.Builder
	assert.NoError(t, ExportCycles(&b, history, FormatJSON))
	assert.Contains(t, b.String(), "\"Cycle\": 3")
}

func testCache(mem *memory.Memory) *cache.Cache {
	return cache.New(cache.Config{
		NumSets: 4, Associativity: 1, BlockSize: 4,
		Replacement: cache.LRU, Write: cache.WriteBack,
		HitLatency: 1, MissPenalty: 4,
	}, mem)
}

func TestReportFromFunctionalComputesCPI(t *testing.T) {
	r := ReportFromFunctional(10, 10)
	assert.Equal(t, "functional", r.Mode)
	assert.InDelta(t, 1.0, r.CPI, 1e-9)
}

func TestReportFromFunctionalZeroCommittedIsZeroCPI(t *testing.T) {
	r := ReportFromFunctional(0, 5)
	assert.Equal(t, 0.0, r.CPI)
}

func TestReportFromPipelineIncludesCachesAndPredictor(t *testing.T) {
	mem := memory.New(64)
	l1i := testCache(mem)
	l1d := testCache(mem)
	_, _, err := l1i.Read(0, 4)
	assert.NoError(t, err)

	pred := predict.New(predict.ModeTwoBit, 4)
	pred.Update(0x100, true, 0x200)

	stats := pipeline.Stats{Cycles: 20, Committed: 10, Branches: 1, Mispredicts: 0, DataStalls: 2}
	r := ReportFromPipeline(stats, pred, l1i, l1d)

	assert.Equal(t, "pipeline", r.Mode)
	assert.InDelta(t, 2.0, r.CPI, 1e-9)
	assert.Len(t, r.Caches, 2)
	assert.Equal(t, "L1I", r.Caches[0].Name)
	assert.Equal(t, "L1D", r.Caches[1].Name)
	assert.Greater(t, r.PredictorHitRate, 0.0)
}

func TestReportFromOoOIncludesSquashes(t *testing.T) {
	stats := ooo.Stats{Cycles: 8, Committed: 4, Squashes: 2}
	r := ReportFromOoO(stats, nil, nil, nil)
	assert.Equal(t, "ooo", r.Mode)
	assert.EqualValues(t, 2, r.Squashes)
	assert.Empty(t, r.Caches)
}

func TestCachesReportDeduplicatesSharedL2(t *testing.T) {
	mem := memory.New(256)
	l2 := testCache(mem)
	l1i := testCache(mem)
	l1d := testCache(mem)
	l1i.Next = l2
	l1d.Next = l2

	reports := cachesReport(l1i, l1d)
	names := make([]string, len(reports))
	for i, r := range reports {
		names[i] = r.Name
	}
	assert.Equal(t, []string{"L1I", "L2", "L1D"}, names)
}

func TestReportStringIncludesConditionalSections(t *testing.T) {
	r := Report{Mode: "pipeline", Cycles: 10, Committed: 5, CPI: 2, Branches: 3, Squashes: 1}
	out := r.String()
	assert.Contains(t, out, "mode: pipeline")
	assert.Contains(t, out, "branches: 3")
	assert.Contains(t, out, "squashes: 1")
}

func TestReportStringOmitsZeroSections(t *testing.T) {
	r := Report{Mode: "functional", Cycles: 1, Committed: 1, CPI: 1}
	out := r.String()
	assert.NotContains(t, out, "branches:")
	assert.NotContains(t, out, "squashes:")
	assert.NotContains(t, out, "stalls:")
}

func TestReportExportCSV(t *testing.T) {
	r := Report{Mode: "functional", Cycles: 4, Committed: 2, CPI: 2}
	var b strings.Builder
	assert.NoError(t, r.Export(&b, FormatCSV))
	out := b.String()
	assert.Contains(t, out, "metric,value")
	assert.Contains(t, out, "cycles,4")
}

func TestReportExportJSON(t *testing.T) {
	r := Report{Mode: "functional", Cycles: 4, Committed: 2, CPI: 2}
	var b strings.Builder
	assert.NoError(t, r.Export(&b, FormatJSON))
	assert.Contains(t, b.String(), "\"mode\": \"functional\"")
}

func TestReportExportTextDefault(t *testing.T) {
	r := Report{Mode: "functional", Cycles: 4, Committed: 2, CPI: 2}
	var b strings.Builder
	assert.NoError(t, r.Export(&b, FormatText))
	assert.Equal(t, r.String(), b.String())
}
