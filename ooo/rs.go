package ooo

import "github.com/lookbusy1344/mips-sim/cpu"

// UnitClass groups reservation stations by functional-unit type, per
// spec §4.5.
type UnitClass int

const (
	ClassALU UnitClass = iota
	ClassMulDiv
	ClassLoadStore
	ClassFPAdd
	ClassFPMul
	numClasses
)

func classOf(in cpu.Instruction) UnitClass {
	switch in.Family {
	case cpu.FamilyMulDiv:
		return ClassMulDiv
	case cpu.FamilyLoadStore:
		return ClassLoadStore
	case cpu.FamilyFPAdd:
		return ClassFPAdd
	case cpu.FamilyFPMul:
		return ClassFPMul
	default:
		return ClassALU
	}
}

// Station is one reservation-station slot, per spec §3: Vj/Vk hold ready
// operand values, Qj/Qk hold the producing ROB id when an operand is still
// in flight (HasQj/HasQk false once the value lands).
type Station struct {
	Busy    bool
	Instr   cpu.Instruction
	Vj, Vk  uint32
	HasQj, HasQk bool
	Qj, Qk  int
	DestROB int
	Address uint32
	AddrReady bool
	Age     int // dispatch order, for oldest-first issue tie-breaking
}

// ClassConfig configures one functional-unit class: how many stations it
// has, how many can issue per cycle, and its execution latency in cycles.
type ClassConfig struct {
	NumStations int
	IssueWidth  int
	Latency     int
}

// unit tracks an in-flight execution for one functional unit instance.
type unit struct {
	busy      bool
	stationID int
	remaining int
	result    uint32
	robID     int
	fault     error
}

// FunctionalUnits holds the reservation stations and in-flight executions
// for one UnitClass.
type FunctionalUnits struct {
	cfg      ClassConfig
	stations []Station
	units    []unit
	ageClock int
}

func newFunctionalUnits(cfg ClassConfig) *FunctionalUnits {
	return &FunctionalUnits{
		cfg:      cfg,
		stations: make([]Station, cfg.NumStations),
		units:    make([]unit, cfg.IssueWidth),
	}
}

// FreeStation returns a free station index, or -1 if the class is full
// (a dispatch-stall condition per spec §4.6).
func (f *FunctionalUnits) FreeStation() int {
	for i := range f.stations {
		if !f.stations[i].Busy {
			return i
		}
	}
	return -1
}

// Dispatch occupies station i with instr, wiring Qj/Qk from the RAT lookups
// the caller already performed.
func (f *FunctionalUnits) Dispatch(i int, instr cpu.Instruction, destROB int,
	vj uint32, hasQj bool, qj int,
	vk uint32, hasQk bool, qk int) {
	f.ageClock++
	f.stations[i] = Station{
		Busy: true, Instr: instr, DestROB: destROB,
		Vj: vj, HasQj: hasQj, Qj: qj,
		Vk: vk, HasQk: hasQk, Qk: qk,
		Age: f.ageClock,
	}
}

// CaptureBroadcast updates any station waiting on robID with the broadcast
// value, clearing its Qj/Qk as appropriate (CDB capture, spec §4.6).
func (f *FunctionalUnits) CaptureBroadcast(robID int, value uint32) {
	for i := range f.stations {
		s := &f.stations[i]
		if !s.Busy {
			continue
		}
		if s.HasQj && s.Qj == robID {
			s.Vj, s.HasQj = value, false
		}
		if s.HasQk && s.Qk == robID {
			s.Vk, s.HasQk = value, false
		}
	}
}

// ReadyStations returns station indices eligible to issue this cycle
// (operands ready, not yet issued to a unit), oldest-first.
func (f *FunctionalUnits) ReadyStations(issued map[int]bool) []int {
	var ready []int
	for i := range f.stations {
		s := &f.stations[i]
		if !s.Busy || issued[i] || s.HasQj || s.HasQk {
			continue
		}
		if s.Instr.Family == cpu.FamilyLoadStore && !s.AddrReady {
			continue
		}
		onUnit := false
		for _, u := range f.units {
			if u.busy && u.stationID == i {
				onUnit = true
			}
		}
		if onUnit {
			continue
		}
		ready = append(ready, i)
	}
	for a := 0; a < len(ready); a++ {
		for b := a + 1; b < len(ready); b++ {
			if f.stations[ready[b]].Age < f.stations[ready[a]].Age {
				ready[a], ready[b] = ready[b], ready[a]
			}
		}
	}
	return ready
}

// Issue starts execution of station i on a free unit instance, returning
// false if every unit instance is busy (issue width exhausted this cycle).
func (f *FunctionalUnits) Issue(stationID int) bool {
	for i := range f.units {
		if !f.units[i].busy {
			s := &f.stations[stationID]
			f.units[i] = unit{busy: true, stationID: stationID, remaining: f.cfg.Latency, robID: s.DestROB}
			return true
		}
	}
	return false
}

// Advance ticks every busy unit by one cycle, computing the instruction's
// result via compute when the unit's latency expires, and returns the set
// of units that completed this cycle (robID, value, fault, stationID).
type Completion struct {
	RobID     int
	Value     uint32
	Fault     error
	StationID int
}

func (f *FunctionalUnits) Advance(compute func(Station) (uint32, error)) []Completion {
	var completions []Completion
	for i := range f.units {
		u := &f.units[i]
		if !u.busy {
			continue
		}
		u.remaining--
		if u.remaining <= 0 {
			s := f.stations[u.stationID]
			val, err := compute(s)
			completions = append(completions, Completion{RobID: u.robID, Value: val, Fault: err, StationID: u.stationID})
			*u = unit{}
		}
	}
	return completions
}

// Retire frees a station after its result has broadcast on the CDB.
func (f *FunctionalUnits) Retire(stationID int) {
	f.stations[stationID] = Station{}
}

// Squash clears every station whose DestROB falls in the squashed set.
func (f *FunctionalUnits) Squash(squashed map[int]bool) {
	for i := range f.stations {
		if f.stations[i].Busy && squashed[f.stations[i].DestROB] {
			f.stations[i] = Station{}
		}
	}
	for i := range f.units {
		if f.units[i].busy && squashed[f.units[i].robID] {
			f.units[i] = unit{}
		}
	}
}
