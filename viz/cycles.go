package viz

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/lookbusy1344/mips-sim/pipeline"
)

var stageNames = [5]string{"IF", "ID", "EX", "MEM", "WB"}

// ExportCycles renders the in-order pipeline's per-cycle stage occupancy
// (spec §6's required visualization), grounded on vm/trace.go's
// sequence-by-sequence text rendering, generalized from one instruction per
// row to one cycle (5 stage columns) per row.
func ExportCycles(w io.Writer, history []pipeline.CycleRecord, format Format) error {
	switch format {
	case FormatCSV:
		return exportCyclesCSV(w, history)
	case FormatJSON:
		return exportJSON(w, history)
	default:
		return exportCyclesText(w, history)
	}
}

func exportCyclesText(w io.Writer, history []pipeline.CycleRecord) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%-6s", "cycle")
	for _, s := range stageNames {
		fmt.Fprintf(&b, "  %-30s", s)
	}
	b.WriteByte('\n')
	for _, rec := range history {
		fmt.Fprintf(&b, "%-6d", rec.Cycle)
		for _, s := range rec.Stages {
			fmt.Fprintf(&b, "  %-30s", fmt.Sprintf("[%s] %s", s.Status, s.Disasm))
		}
		b.WriteByte('\n')
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func exportCyclesCSV(w io.Writer, history []pipeline.CycleRecord) error {
	cw := csv.NewWriter(w)
	header := append([]string{"cycle"}, stageNames[:]...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, rec := range history {
		row := make([]string, 0, 6)
		row = append(row, fmt.Sprint(rec.Cycle))
		for _, s := range rec.Stages {
			row = append(row, fmt.Sprintf("%s:%s", s.Status, s.Disasm))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
