// Package pipeline implements the in-order N-stage pipeline of spec §4.4:
// stage latches advanced in lock-step, RAW/load-use/control/structural
// hazard detection, optional forwarding, and branch prediction at Fetch.
// The stage-advance loop is grounded on the teacher's single-method
// phase-ordered Step() in vm/executor.go, generalized from one instruction
// in flight to N overlapping ones; the per-cycle tick/stage-occupancy
// bookkeeping follows the shape of the pack's
// syifan-m2sim2 timing/pipeline_tick_narrow.go and fast_timing.go.
package pipeline

import (
	"fmt"

	"github.com/lookbusy1344/mips-sim/cache"
	"github.com/lookbusy1344/mips-sim/cpu"
	"github.com/lookbusy1344/mips-sim/memory"
	"github.com/lookbusy1344/mips-sim/predict"
	"github.com/lookbusy1344/mips-sim/simerror"
)

// StageKind names the classic 5-stage pipeline. The pipeline always has
// exactly these five stages; the depth is not configurable.
type StageKind int

const (
	StageFetch StageKind = iota
	StageDecode
	StageExecute
	StageMemory
	StageWriteback
)

// StageStatus is the per-cycle, per-stage status reported in visualization
// output (spec §6).
type StageStatus int

const (
	StatusEmpty StageStatus = iota
	StatusBusy
	StatusStalled
	StatusFlushed
)

func (s StageStatus) String() string {
	switch s {
	case StatusBusy:
		return "busy"
	case StatusStalled:
		return "stalled"
	case StatusFlushed:
		return "flushed"
	default:
		return "empty"
	}
}

// Latch is the per-stage content: a decoded instruction plus the values it
// carries forward, per spec §3 "Pipeline Latch (in-order)".
type Latch struct {
	Instr      *cpu.Instruction
	ALUResult  uint32
	MemValue   uint32
	PredTaken  bool
	PredTarget uint32
	Status     StageStatus
}

// Config configures pipeline geometry and policy, per spec §6's timing
// subcommand flags.
type Config struct {
	Forwarding bool
	Predictor  *predict.Predictor
	L1I        *cache.Cache
	L1D        *cache.Cache
	MaxCycles  uint64
	// RecordHistory appends a CycleRecord snapshot to History every cycle,
	// for the visualization output of spec §6. Off by default since a long
	// run's full history is memory the caller may not want.
	RecordHistory bool
}

// StallReason attributes a stall cycle to a hazard class, for the
// data/control/structural breakdown required by spec §4.4.
type StallReason int

const (
	StallNone StallReason = iota
	StallData
	StallControl
	StallStructural
)

// Stats accumulates the counters spec §4.4 requires the pipeline to report.
type Stats struct {
	Cycles          uint64
	Committed       uint64
	DataStalls      uint64
	ControlStalls   uint64
	StructuralStalls uint64
	Branches        uint64
	Mispredicts     uint64
	StageBusyCycles [5]uint64
}

func (s Stats) CPI() float64 {
	if s.Committed == 0 {
		return 0
	}
	return float64(s.Cycles) / float64(s.Committed)
}

// CycleRecord is one cycle's visualization-facing snapshot, per spec §6.
type CycleRecord struct {
	Cycle  uint64
	Stages [5]StageSnapshot
	Hazard StallReason
}

// StageSnapshot is one stage's contents for a CycleRecord.
type StageSnapshot struct {
	Disasm string
	Status StageStatus
}

// Pipeline is the in-order timing model. It owns the fetch/decode/execute
// latches and drives Regs/Mem through the L1I/L1D caches rather than
// directly, per spec §4.3's "caches sit between the pipeline and Memory".
type Pipeline struct {
	Regs *cpu.Registers
	Mem  *memory.Memory
	Env  *cpu.Env
	Cfg  Config

	fetch, decode, execute, mem, wb Latch
	fetchPC                         uint32
	flushFetch, flushDecode         bool

	Stats   Stats
	History []CycleRecord

	halted    bool
	haltCause error
}

// New creates an in-order pipeline starting fetch at entry.
func New(regs *cpu.Registers, mem *memory.Memory, env *cpu.Env, cfg Config) *Pipeline {
	return &Pipeline{Regs: regs, Mem: mem, Env: env, Cfg: cfg, fetchPC: regs.PC}
}

// Run advances the pipeline one cycle at a time until termination per
// spec §4.4: a NOP sequence propagating through WB, an exit syscall
// committing, or the cycle budget being reached.
func (p *Pipeline) Run() (Status, error) {
	budget := p.Cfg.MaxCycles
	if budget == 0 {
		budget = 1_000_000
	}
	trailingNops := 0
	for p.Stats.Cycles < budget {
		committedNop, err := p.tick()
		if p.Cfg.RecordHistory {
			p.History = append(p.History, p.Snapshot())
		}
		if err != nil {
			var fault *simerror.Fault
			if f, ok := err.(*simerror.Fault); ok {
				fault = f
				if fault.Kind == simerror.KindBreakpoint {
					return StatusBreakpoint, nil
				}
			}
			return StatusFault, err
		}
		if p.Env.Exited {
			return StatusExited, nil
		}
		if committedNop {
			trailingNops++
			if trailingNops >= 2 {
				return StatusExited, nil
			}
		} else if p.wb.Instr != nil {
			trailingNops = 0
		}
	}
	return StatusCycleLimit, nil
}

// Status mirrors functional.Status so the two drivers' run loops have a
// common vocabulary for the CLI to report.
type Status int

const (
	StatusRunning Status = iota
	StatusExited
	StatusBreakpoint
	StatusCycleLimit
	StatusFault
)

// tick advances every stage one cycle and returns whether the instruction
// that just left Writeback was a NOP (for end-of-program detection).
func (p *Pipeline) tick() (bool, error) {
	p.Stats.Cycles++

	// Writeback: commit architectural effects computed in Execute/Memory.
	committedNop := false
	if p.wb.Instr != nil {
		p.Stats.Committed++
		p.Stats.StageBusyCycles[StageWriteback]++
		if p.wb.Instr.Op == cpu.OpNop {
			committedNop = true
		}
		if err := p.writeback(); err != nil {
			return false, err
		}
	}

	// Memory: cache access for load/store.
	var memErr error
	if p.mem.Instr != nil {
		p.Stats.StageBusyCycles[StageMemory]++
		memErr = p.doMemory()
	}

	// Execute: ALU/branch resolution, forwarding sources.
	var exErr error
	var mispredicted bool
	if p.execute.Instr != nil {
		p.Stats.StageBusyCycles[StageExecute]++
		mispredicted, exErr = p.doExecute()
	}

	// Decode: hazard check against in-flight producers.
	stallDecode := false
	var stallReason StallReason
	if p.decode.Instr != nil {
		p.Stats.StageBusyCycles[StageDecode]++
		stallDecode, stallReason = p.hazardStall()
	}

	// Fetch.
	if !stallDecode && p.fetch.Instr != nil {
		p.Stats.StageBusyCycles[StageFetch]++
	}

	if memErr != nil {
		return false, memErr
	}
	if exErr != nil {
		return false, exErr
	}

	// Advance latches. On misprediction, Fetch/Decode are flushed (spec §4.4
	// control hazard) and Fetch redirected; this happens before the normal
	// shift so the flushed bubbles don't propagate.
	if mispredicted {
		p.Stats.ControlStalls++
		p.decode = Latch{Status: StatusFlushed}
		p.wb = p.mem
		p.mem = p.execute
		p.execute = Latch{}
		p.fetchOne()
		return committedNop, nil
	}

	p.wb = p.mem
	p.mem = p.execute

	if stallDecode {
		switch stallReason {
		case StallData:
			p.Stats.DataStalls++
		case StallStructural:
			p.Stats.StructuralStalls++
		}
		p.execute = Latch{Status: StatusStalled} // bubble
		// Decode and Fetch hold their instructions.
	} else {
		p.execute = p.decode
		p.decode = p.fetch
		p.fetchOne()
	}
	return committedNop, nil
}

func (p *Pipeline) fetchOne() {
	if p.fetchPC >= p.Mem.Size() {
		p.fetch = Latch{}
		return
	}
	word, cost, err := p.Cfg.L1I.Read(p.fetchPC, 4)
	_ = cost // fetch cost is not charged: an L1I miss does not stall Fetch
	if err != nil {
		p.fetch = Latch{}
		return
	}
	instr, derr := cpu.Decode(word, p.fetchPC)
	if derr != nil {
		p.fetch = Latch{Status: StatusFlushed}
		return
	}

	predTaken, predTarget := false, p.fetchPC+4
	if instr.IsBranch || instr.IsJump {
		predTaken, predTarget = p.Cfg.Predictor.Predict(p.fetchPC, p.fetchPC+4)
	}

	p.fetch = Latch{Instr: &instr, Status: StatusBusy, PredTaken: predTaken, PredTarget: predTarget}
	if predTaken {
		p.fetchPC = predTarget
	} else {
		p.fetchPC += 4
	}
}

// hazardStall implements spec §4.4's RAW/load-use/structural checks between
// Decode and the producers sitting in Execute/Memory.
func (p *Pipeline) hazardStall() (bool, StallReason) {
	in := p.decode.Instr
	srcs := readSources(in)

	producer := p.execute.Instr
	if producer != nil && producerWrites(producer) {
		if hazardOn(srcs, destOf(producer)) {
			if producer.IsLoad {
				// Load-use hazard: mandatory one-cycle stall even with
				// forwarding, per spec §4.4.
				return true, StallData
			}
			if !p.Cfg.Forwarding {
				return true, StallData
			}
		}
	}

	producer2 := p.mem.Instr
	if producer2 != nil && producerWrites(producer2) {
		if hazardOn(srcs, destOf(producer2)) && !p.Cfg.Forwarding {
			return true, StallData
		}
	}
	return false, StallNone
}

func readSources(in *cpu.Instruction) []uint8 {
	if in == nil {
		return nil
	}
	return []uint8{in.RS, in.RT}
}

func producerWrites(in *cpu.Instruction) bool {
	return in.Writes && in.Dest != 0
}

func destOf(in *cpu.Instruction) uint8 {
	return in.Dest
}

func hazardOn(srcs []uint8, dest uint8) bool {
	for _, s := range srcs {
		if s != 0 && s == dest {
			return true
		}
	}
	return false
}

// doExecute computes ALU results or resolves a branch, comparing against
// the Fetch-time prediction to detect a misprediction.
func (p *Pipeline) doExecute() (bool, error) {
	in := p.execute.Instr
	if in == nil {
		return false, nil
	}
	p.execute.Status = StatusBusy

	switch in.Family {
	case cpu.FamilyALU:
		return false, cpu.ExecALU(p.Regs, *in)
	case cpu.FamilyMulDiv:
		return false, cpu.ExecMulDiv(p.Regs, *in)
	case cpu.FamilyFPAdd, cpu.FamilyFPMul:
		return false, cpu.ExecFP(p.Regs, *in)
	case cpu.FamilyBranch:
		out, err := cpu.EvalControl(p.Regs, p.Mem, *in)
		if err != nil {
			return false, err
		}
		cpu.ApplyControl(p.Regs, out)
		p.Stats.Branches++
		predicted := p.execute.PredTaken
		actualTarget := out.NextPC
		mispredicted := predicted != out.Taken
		if predicted && out.Taken && p.execute.PredTarget != actualTarget {
			mispredicted = true
		}
		if mispredicted {
			p.Stats.Mispredicts++
			p.Cfg.Predictor.RecordMisprediction()
		}
		p.Cfg.Predictor.Update(in.PC, out.Taken, actualTarget)
		if mispredicted {
			p.fetchPC = actualTarget
		}
		return mispredicted, nil
	}
	return false, nil
}

func (p *Pipeline) doMemory() error {
	in := p.mem.Instr
	if in == nil {
		return nil
	}
	p.mem.Status = StatusBusy
	if !in.IsLoad && !in.IsStore {
		return nil
	}
	addr := cpu.EffectiveAddress(p.Regs, *in)
	switch {
	case in.IsLoad:
		v, _, err := p.Cfg.L1D.Read(addr, in.MemWidth)
		if err != nil {
			return err
		}
		p.mem.MemValue = extendLoad(*in, v)
	case in.IsStore:
		var v uint32
		if in.IsFP {
			v = p.Regs.GetFPRBits(in.RT)
		} else {
			v = p.Regs.GetGPR(in.RT)
		}
		_, err := p.Cfg.L1D.Write(addr, v, in.MemWidth)
		if err != nil {
			return err
		}
	}
	return nil
}

func extendLoad(in cpu.Instruction, v uint32) uint32 {
	switch in.Op {
	case cpu.OpLh:
		if v&0x8000 != 0 {
			return v | 0xFFFF0000
		}
		return v
	case cpu.OpLb:
		if v&0x80 != 0 {
			return v | 0xFFFFFF00
		}
		return v
	default:
		return v
	}
}

func (p *Pipeline) writeback() error {
	in := p.wb.Instr
	if in == nil {
		return nil
	}
	p.wb.Status = StatusBusy
	switch {
	case in.Op == cpu.OpBreak:
		return simerror.Breakpoint(in.PC)
	case in.Op == cpu.OpSyscall:
		return cpu.ExecSyscall(p.Regs, p.Mem, p.Env, *in)
	case in.IsLoad:
		if in.WritesFP {
			p.Regs.SetFPRBits(in.FPDest, p.wb.MemValue)
		} else {
			p.Regs.SetGPR(in.Dest, p.wb.MemValue)
		}
	}
	return nil
}

// Snapshot returns the current cycle's stage contents for visualization.
func (p *Pipeline) Snapshot() CycleRecord {
	rec := CycleRecord{Cycle: p.Stats.Cycles}
	stages := []Latch{p.fetch, p.decode, p.execute, p.mem, p.wb}
	for i, l := range stages {
		disasm := "-"
		if l.Instr != nil {
			disasm = fmt.Sprintf("0x%08X  %s", l.Instr.PC, l.Instr.Disasm())
		}
		rec.Stages[i] = StageSnapshot{Disasm: disasm, Status: l.Status}
	}
	return rec
}
