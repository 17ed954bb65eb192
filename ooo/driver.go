// Package ooo implements the Tomasulo-style out-of-order execution engine
// of spec §4.5-§4.7: reservation stations grouped by functional-unit class,
// a circular reorder buffer for in-order commit, a register alias table
// for renaming, and a common result bus. Optionally superscalar via
// Config widths > 1. Glued together by Driver, whose per-cycle phase order
// mirrors the teacher's single owning-method style for VM.Step
// (vm/executor.go), generalized to the commit→writeback→execute→issue→
// dispatch order spec §4.7/§5 mandates.
package ooo

import (
	"github.com/lookbusy1344/mips-sim/cache"
	"github.com/lookbusy1344/mips-sim/cpu"
	"github.com/lookbusy1344/mips-sim/memory"
	"github.com/lookbusy1344/mips-sim/predict"
	"github.com/lookbusy1344/mips-sim/simerror"
)

// Status mirrors functional.Status / pipeline.Status.
type Status int

const (
	StatusRunning Status = iota
	StatusExited
	StatusBreakpoint
	StatusCycleLimit
	StatusFault
)

// Config configures OoO widths and functional-unit geometry, per spec §6's
// "superscalar width" timing flag and §4.5's per-class configuration.
type Config struct {
	ROBCapacity    int
	DispatchWidth  int
	IssueWidthCDB  int // CDB slots per cycle, spec §4.6
	CommitWidth    int
	Units          map[UnitClass]ClassConfig
	Predictor      *predict.Predictor
	L1I            *cache.Cache
	L1D            *cache.Cache
	MaxCycles      uint64
}

// Driver owns the ROB, RAT, and per-class functional units, and drives them
// through one architectural register file and memory.
type Driver struct {
	Regs *cpu.Registers
	Mem  *memory.Memory
	Env  *cpu.Env
	Cfg  Config

	rob   *ROB
	rat   *RAT
	units map[UnitClass]*FunctionalUnits

	fetchPC uint32
	Stats   Stats

	trailingNops int
}

// nopRunLength mirrors the in-order engines' end-of-program heuristic: two
// back-to-back committed NOPs signal a run off the end of the program.
const nopRunLength = 2

// Stats accumulates commit-level counters for reporting.
type Stats struct {
	Cycles    uint64
	Committed uint64
	Squashes  uint64
}

// New builds an OoO driver with fetch/dispatch starting at entry.
func New(regs *cpu.Registers, mem *memory.Memory, env *cpu.Env, cfg Config) *Driver {
	d := &Driver{
		Regs: regs, Mem: mem, Env: env, Cfg: cfg,
		rob: NewROB(cfg.ROBCapacity), rat: NewRAT(),
		units:   make(map[UnitClass]*FunctionalUnits),
		fetchPC: regs.PC,
	}
	for class := UnitClass(0); class < numClasses; class++ {
		uc := cfg.Units[class]
		if uc.NumStations == 0 {
			uc = ClassConfig{NumStations: 4, IssueWidth: 1, Latency: 1}
		}
		d.units[class] = newFunctionalUnits(uc)
	}
	return d
}

// Run ticks the driver until exit, a breakpoint, a fault, or the cycle
// budget is reached, per §4.7's stop conditions.
func (d *Driver) Run() (Status, error) {
	budget := d.Cfg.MaxCycles
	if budget == 0 {
		budget = 1_000_000
	}
	for d.Stats.Cycles < budget {
		status, err := d.tick()
		if status != StatusRunning {
			return status, err
		}
	}
	return StatusCycleLimit, nil
}

func (d *Driver) tick() (Status, error) {
	d.Stats.Cycles++

	status, err := d.commit()
	if status != StatusRunning {
		return status, err
	}

	d.writeback()
	d.execute()
	d.issue()
	d.dispatch()

	if d.Env.Exited {
		return StatusExited, nil
	}
	if d.trailingNops >= nopRunLength {
		return StatusExited, nil
	}
	return StatusRunning, nil
}

// commit inspects up to CommitWidth head ROB entries; a ready entry's
// effects are applied to architectural state and, if it's a branch that
// was mispredicted, triggers a squash of everything newer, per spec §4.6.
func (d *Driver) commit() (Status, error) {
	width := d.Cfg.CommitWidth
	if width == 0 {
		width = 1
	}
	for i := 0; i < width; i++ {
		if d.rob.Empty() {
			return StatusRunning, nil
		}
		head := d.rob.Head()
		e := d.rob.At(head)
		if !e.Ready {
			return StatusRunning, nil
		}
		if e.Exception != nil {
			if f, ok := e.Exception.(*simerror.Fault); ok && f.Kind == simerror.KindBreakpoint {
				d.rob.CommitHead()
				return StatusBreakpoint, nil
			}
			return StatusFault, e.Exception
		}

		if e.Instr.Op == cpu.OpSyscall {
			if err := cpu.ExecSyscall(d.Regs, d.Mem, d.Env, e.Instr); err != nil {
				d.rob.CommitHead()
				return StatusFault, err
			}
		} else if e.IsStore {
			if _, err := d.Cfg.L1D.Write(e.StoreAddr, e.StoreValue, e.Instr.MemWidth); err != nil {
				d.rob.CommitHead()
				return StatusFault, err
			}
		} else if (e.Instr.Writes || e.Instr.WritesFP) && !e.IsBranch {
			if e.IsFPDest {
				d.Regs.SetFPRBits(e.DestReg, e.Value)
				d.rat.ClearFPRIfOwner(e.DestReg, head)
			} else {
				d.Regs.SetGPR(e.DestReg, e.Value)
				d.rat.ClearGPRIfOwner(e.DestReg, head)
			}
		}

		if e.LinkWrite {
			d.Regs.SetGPR(e.LinkReg, e.LinkValue)
			d.rat.ClearGPRIfOwner(e.LinkReg, head)
		}
		if e.FCCWrite {
			d.Regs.FCC = e.FCCValue
		}
		if e.HIWrite {
			d.Regs.HI = e.HIValue
		}
		if e.LOWrite {
			d.Regs.LO = e.LOValue
		}

		if e.IsBranch {
			actualTaken := e.Value&1 != 0
			actualTarget := e.Value &^ uint32(0x3)
			if actualTaken {
				if err := cpu.ValidateTarget(d.Mem, actualTarget); err != nil {
					d.rob.CommitHead()
					return StatusFault, err
				}
			}
			d.Cfg.Predictor.Update(e.PC, actualTaken, actualTarget)
			mispredicted := e.BranchPred != actualTaken || (actualTaken && actualTarget != e.BranchTarget)
			if mispredicted {
				d.Cfg.Predictor.RecordMisprediction()
				d.squashAfter(head)
				if actualTaken {
					d.fetchPC = actualTarget
				} else {
					d.fetchPC = e.PC + 4
				}
				d.Stats.Squashes++
				d.rob.CommitHead()
				d.Stats.Committed++
				return StatusRunning, nil
			}
		}

		d.Committed(e.Instr)
		d.rob.CommitHead()
		d.Stats.Committed++
	}
	return StatusRunning, nil
}

// Committed tracks trailing NOPs for end-of-program detection and is the
// hook point for a tracing wrapper to observe every commit without
// re-threading the loop.
func (d *Driver) Committed(in cpu.Instruction) {
	if in.Op == cpu.OpNop {
		d.trailingNops++
	} else {
		d.trailingNops = 0
	}
}

// writeback arbitrates the CDB among completed functional units, oldest
// ROB id first, broadcasting to reservation stations and the ROB. One slot
// per cycle by default, widened by Cfg.IssueWidthCDB for superscalar
// configurations.
func (d *Driver) writeback() []Completion {
	var all []Completion
	for class := UnitClass(0); class < numClasses; class++ {
		fu := d.units[class]
		all = append(all, fu.Advance(d.computeFor(class))...)
	}
	sortByAge(all, d.rob)

	slots := d.Cfg.IssueWidthCDB
	if slots == 0 {
		slots = 1
	}
	if len(all) > slots {
		all = all[:slots]
	}
	for _, c := range all {
		e := d.rob.At(c.RobID)
		e.Ready = true
		e.Value = c.Value
		e.Exception = c.Fault
		if e.IsStore {
			e.StoreValue = c.Value
		}

		class := classOf(e.Instr)
		d.units[class].Retire(c.StationID)
		for cls := UnitClass(0); cls < numClasses; cls++ {
			d.units[cls].CaptureBroadcast(c.RobID, c.Value)
		}
	}
	return all
}

func sortByAge(cs []Completion, rob *ROB) {
	for a := 0; a < len(cs); a++ {
		for b := a + 1; b < len(cs); b++ {
			if rob.IsOlder(cs[b].RobID, cs[a].RobID) {
				cs[a], cs[b] = cs[b], cs[a]
			}
		}
	}
}

// computeFor returns the pure value-computation function for class,
// operating only on Station operand values so speculative execution never
// touches architectural state ahead of commit.
func (d *Driver) computeFor(class UnitClass) func(Station) (uint32, error) {
	return func(s Station) (uint32, error) {
		in := s.Instr
		if in.Op == cpu.OpBreak {
			return 0, simerror.Breakpoint(in.PC)
		}
		if in.IsBranch || in.IsJump {
			out := cpu.ControlValue(in, s.Vj, s.Vk, d.Regs.FCC)
			if out.LinkWrite {
				e := d.rob.At(s.DestROB)
				e.LinkWrite, e.LinkReg, e.LinkValue = true, out.LinkReg, out.LinkValue
			}
			target := out.NextPC &^ uint32(0x3)
			return target | boolToBit(out.Taken), nil
		}
		switch class {
		case ClassALU:
			return cpu.ALUValue(in, s.Vj, s.Vk)
		case ClassMulDiv:
			e := d.rob.At(s.DestROB)
			switch in.Op {
			case cpu.OpMult, cpu.OpMultu, cpu.OpDiv, cpu.OpDivu:
				hi, lo, err := cpu.MulDivResult(in, s.Vj, s.Vk)
				e.HIWrite, e.HIValue = true, hi
				e.LOWrite, e.LOValue = true, lo
				return lo, err
			case cpu.OpMfhi:
				return d.Regs.HI, nil
			case cpu.OpMflo:
				return d.Regs.LO, nil
			case cpu.OpMthi:
				e.HIWrite, e.HIValue = true, s.Vj
				return 0, nil
			case cpu.OpMtlo:
				e.LOWrite, e.LOValue = true, s.Vj
				return 0, nil
			default:
				return s.Vj, nil
			}
		case ClassLoadStore:
			if in.IsStore {
				return s.Vk, nil
			}
			v, _, err := d.Cfg.L1D.Read(s.Address, in.MemWidth)
			return extendLoaded(in, v), err
		case ClassFPAdd, ClassFPMul:
			v, fcc := cpu.FPValue(in, s.Vj, s.Vk, d.Regs.FCC)
			if in.Op == cpu.OpCEqS || in.Op == cpu.OpCLtS || in.Op == cpu.OpCLeS {
				e := d.rob.At(s.DestROB)
				e.FCCWrite, e.FCCValue = true, fcc
			}
			return v, nil
		}
		return 0, nil
	}
}

func boolToBit(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func extendLoaded(in cpu.Instruction, v uint32) uint32 {
	switch in.Op {
	case cpu.OpLh:
		if v&0x8000 != 0 {
			return v | 0xFFFF0000
		}
	case cpu.OpLb:
		if v&0x80 != 0 {
			return v | 0xFFFFFF00
		}
	}
	return v
}

// execute starts address generation for any load/store station whose base
// register is ready but whose address hasn't been computed yet, per the
// "one cycle" address-generation phase of spec §4.5.
func (d *Driver) execute() {
	fu := d.units[ClassLoadStore]
	for i := range fu.stations {
		s := &fu.stations[i]
		if s.Busy && !s.AddrReady && !s.HasQj {
			s.Address = s.Vj + s.Instr.ImmSigned
			s.AddrReady = true
			if s.Instr.IsStore {
				e := d.rob.At(s.DestROB)
				e.StoreAddr = s.Address
			}
		}
	}
}

// issue selects up to IssueWidth oldest-ready stations per class and starts
// them on a free functional unit instance.
func (d *Driver) issue() {
	for class := UnitClass(0); class < numClasses; class++ {
		fu := d.units[class]
		issued := map[int]bool{}
		ready := fu.ReadyStations(issued)
		count := 0
		for _, stationID := range ready {
			if count >= fu.cfg.IssueWidth {
				break
			}
			if fu.Issue(stationID) {
				count++
			}
		}
	}
}

// dispatch fetches/decodes up to DispatchWidth instructions, allocates a
// ROB entry and reservation station for each, applies branch prediction for
// the next fetch, and stalls when the ROB is full, the needed RS class is
// full, or fetch is blocked (spec §4.6 dispatch-stall conditions).
func (d *Driver) dispatch() {
	width := d.Cfg.DispatchWidth
	if width == 0 {
		width = 1
	}
	for i := 0; i < width; i++ {
		if d.rob.Full() {
			return
		}
		if d.fetchPC >= d.Mem.Size() {
			return
		}
		word, _, err := d.Cfg.L1I.Read(d.fetchPC, 4)
		if err != nil {
			return
		}
		in, err := cpu.Decode(word, d.fetchPC)
		if err != nil {
			robID := d.rob.Alloc(in)
			e := d.rob.At(robID)
			e.Ready, e.Exception = true, err
			return
		}

		if (in.Op == cpu.OpMfhi || in.Op == cpu.OpMflo || in.Op == cpu.OpBc1t || in.Op == cpu.OpBc1f) && !d.rob.Empty() {
			return
		}

		class := classOf(in)
		fu := d.units[class]
		stationID := fu.FreeStation()
		if stationID < 0 {
			return
		}

		robID := d.rob.Alloc(in)
		e := d.rob.At(robID)
		e.IsStore = in.IsStore
		if in.IsBranch || in.IsJump {
			e.IsBranch = true
		}
		if in.Writes {
			e.DestReg = in.Dest
			d.rat.SetGPR(in.Dest, robID)
		}
		if in.WritesFP {
			e.IsFPDest, e.DestReg = true, in.FPDest
			d.rat.SetFPR(in.FPDest, robID)
		}

		vj, hasQj, qj := d.readGPR(in.RS)
		vk, hasQk, qk := d.readGPR(in.RT)
		if in.IsFP {
			vj, hasQj, qj = d.readFPR(in.RS)
			vk, hasQk, qk = d.readFPR(in.RT)
		}
		fu.Dispatch(stationID, in, robID, vj, hasQj, qj, vk, hasQk, qk)

		if in.IsBranch || in.IsJump {
			taken, target := d.Cfg.Predictor.Predict(d.fetchPC, d.fetchPC+4)
			e.BranchPred, e.BranchTarget = taken, target
			if taken {
				d.fetchPC = target
			} else {
				d.fetchPC += 4
			}
		} else {
			d.fetchPC += 4
		}
	}
}

func (d *Driver) readGPR(reg uint8) (value uint32, pending bool, robID int) {
	if id, ok := d.rat.LookupGPR(reg); ok {
		e := d.rob.At(id)
		if e.Ready {
			return e.Value, false, 0
		}
		return 0, true, id
	}
	return d.Regs.GetGPR(reg), false, 0
}

func (d *Driver) readFPR(reg uint8) (value uint32, pending bool, robID int) {
	if id, ok := d.rat.LookupFPR(reg); ok {
		e := d.rob.At(id)
		if e.Ready {
			return e.Value, false, 0
		}
		return 0, true, id
	}
	return d.Regs.GetFPRBits(reg), false, 0
}

// squashAfter discards every ROB entry and RS entry newer than keepID
// (the mispredicted branch itself), clearing RAT entries that pointed at
// squashed producers, per spec §4.6's squash invariant.
func (d *Driver) squashAfter(keepID int) {
	squashedIDs := d.rob.SquashAfter(keepID)
	squashed := make(map[int]bool, len(squashedIDs))
	for _, id := range squashedIDs {
		squashed[id] = true
	}
	for class := UnitClass(0); class < numClasses; class++ {
		d.units[class].Squash(squashed)
	}
	d.rat.Rebuild()
	d.rebuildRATFromSurvivors(keepID)
}

// rebuildRATFromSurvivors re-establishes RAT aliases for every entry still
// in flight ahead of the committing branch (head..keepID, exclusive of
// keepID itself, which the caller commits right after this returns), since
// Rebuild() above wiped aliases for them too. The most recent writer of
// each register wins, which walking head-to-tail in program order
// guarantees. Entries after keepID were just discarded by SquashAfter, so
// there is nothing to restore for them.
func (d *Driver) rebuildRATFromSurvivors(keepID int) {
	if d.rob.Empty() {
		return
	}
	idx := d.rob.head
	for idx != keepID {
		e := d.rob.At(idx)
		if e.Valid {
			if e.Instr.Writes && !e.IsBranch {
				d.rat.SetGPR(e.DestReg, idx)
			}
			if e.LinkWrite {
				d.rat.SetGPR(e.LinkReg, idx)
			}
			if e.Instr.WritesFP {
				d.rat.SetFPR(e.DestReg, idx)
			}
		}
		idx = (idx + 1) % d.rob.Capacity()
	}
}
