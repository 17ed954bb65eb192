// Package viz implements spec §6's visualization/statistics surface: an
// instruction-by-instruction execution trace, a per-cycle pipeline-stage
// table, and a final run-statistics report, each exportable as text, CSV,
// or JSON. Grounded on the teacher's vm/trace.go (ExecutionTrace),
// vm/register_trace.go (RegisterTrace), and vm/statistics.go
// (PerformanceStatistics), adapted from ARM's R0-R15/CPSR register model to
// MIPS's GPR/HI/LO/FCC file and from single-engine execution to all three
// run modes (functional, in-order pipeline, out-of-order).
package viz

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/lookbusy1344/mips-sim/cpu"
)

// Format selects the rendering for every exporter in this package, per
// spec §6's "text, CSV, or JSON" requirement.
type Format int

const (
	FormatText Format = iota
	FormatCSV
	FormatJSON
)

// ParseFormat maps a command-line flag value to a Format, defaulting to
// FormatText for an unrecognized value.
func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "csv":
		return FormatCSV
	case "json":
		return FormatJSON
	default:
		return FormatText
	}
}

// TraceEntry is one retired instruction's execution record, the MIPS
// analogue of the teacher's vm.TraceEntry.
type TraceEntry struct {
	Sequence uint64
	PC       uint32
	Disasm   string
	Changes  map[string]uint32 // register name -> new value
}

// Trace accumulates a bounded instruction-execution history, grounded on
// vm/trace.go's ExecutionTrace (same Enabled/MaxEntries/filter shape,
// retargeted from CPSR-flag tracking to GPR/HI/LO/FCC tracking).
type Trace struct {
	Enabled    bool
	MaxEntries int
	FilterRegs map[string]bool // empty = record every register change

	entries []TraceEntry
	last    cpu.Snapshot
	haveLast bool
}

// NewTrace creates a trace with the teacher's default 100,000-entry cap
// (vm/trace.go's own MaxEntries default).
func NewTrace() *Trace {
	return &Trace{Enabled: true, MaxEntries: 100000, FilterRegs: map[string]bool{}}
}

// SetFilterRegisters restricts recorded register changes to the named
// subset; pass nil or empty to track every register.
func (t *Trace) SetFilterRegisters(names []string) {
	t.FilterRegs = make(map[string]bool, len(names))
	for _, n := range names {
		t.FilterRegs[strings.ToUpper(n)] = true
	}
}

// Record appends one instruction's trace entry, diffing regs against the
// previous snapshot to find which registers changed. Call once per retired
// instruction; main.go's functional loop calls it after each
// functional.Machine.Step. The pipeline and ooo engines do not record traces.
func (t *Trace) Record(seq uint64, in cpu.Instruction, regs *cpu.Registers) {
	if !t.Enabled {
		return
	}
	if t.MaxEntries > 0 && len(t.entries) >= t.MaxEntries {
		return
	}

	now := regs.Snapshot()
	changes := map[string]uint32{}
	if t.haveLast {
		diffGPR(t.last, now, changes, t.FilterRegs)
		if t.last.HI != now.HI && t.allowed("HI") {
			changes["HI"] = now.HI
		}
		if t.last.LO != now.LO && t.allowed("LO") {
			changes["LO"] = now.LO
		}
		if t.last.FCC != now.FCC && t.allowed("FCC") {
			changes["FCC"] = boolToUint32(now.FCC)
		}
	}
	t.last, t.haveLast = now, true

	t.entries = append(t.entries, TraceEntry{
		Sequence: seq,
		PC:       in.PC,
		Disasm:   in.Disasm(),
		Changes:  changes,
	})
}

func (t *Trace) allowed(name string) bool {
	return len(t.FilterRegs) == 0 || t.FilterRegs[name]
}

func diffGPR(prev, now cpu.Snapshot, out map[string]uint32, filter map[string]bool) {
	for i := 1; i < 32; i++ { // $zero never changes
		if prev.GPR[i] == now.GPR[i] {
			continue
		}
		name := fmt.Sprintf("R%d", i)
		if len(filter) > 0 && !filter[name] {
			continue
		}
		out[name] = now.GPR[i]
	}
}

func boolToUint32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// Entries returns the recorded trace entries in execution order.
func (t *Trace) Entries() []TraceEntry { return t.entries }

// Export writes the trace in the requested format, matching vm/trace.go's
// three render paths (plain text table, encoding/csv, encoding/json).
func (t *Trace) Export(w io.Writer, format Format) error {
	switch format {
	case FormatCSV:
		return t.exportCSV(w)
	case FormatJSON:
		return exportJSON(w, t.entries)
	default:
		return t.exportText(w)
	}
}

func (t *Trace) exportText(w io.Writer) error {
	var b strings.Builder
	for _, e := range t.entries {
		fmt.Fprintf(&b, "%6d  0x%08X  %-28s", e.Sequence, e.PC, e.Disasm)
		for name, v := range e.Changes {
			fmt.Fprintf(&b, "  %s=0x%08X", name, v)
		}
		b.WriteByte('\n')
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func (t *Trace) exportCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"sequence", "pc", "disasm", "register", "value"}); err != nil {
		return err
	}
	for _, e := range t.entries {
		if len(e.Changes) == 0 {
			if err := cw.Write([]string{fmt.Sprint(e.Sequence), hex(e.PC), e.Disasm, "", ""}); err != nil {
				return err
			}
			continue
		}
		for name, v := range e.Changes {
			if err := cw.Write([]string{fmt.Sprint(e.Sequence), hex(e.PC), e.Disasm, name, hex(v)}); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func hex(v uint32) string { return fmt.Sprintf("0x%08X", v) }
