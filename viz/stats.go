package viz

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/lookbusy1344/mips-sim/cache"
	"github.com/lookbusy1344/mips-sim/ooo"
	"github.com/lookbusy1344/mips-sim/pipeline"
	"github.com/lookbusy1344/mips-sim/predict"
)

// CacheReport is the export-friendly projection of one cache.Cache's
// counters, grounded on cache.Stats but adding the derived hit rate the
// teacher's vm/statistics.go computes rather than stores.
type CacheReport struct {
	Name       string  `json:"name"`
	Accesses   uint64  `json:"accesses"`
	Hits       uint64  `json:"hits"`
	Misses     uint64  `json:"misses"`
	WriteBacks uint64  `json:"write_backs"`
	HitRate    float64 `json:"hit_rate"`
}

func newCacheReport(name string, s cache.Stats) CacheReport {
	r := CacheReport{Name: name, Accesses: s.Accesses, Hits: s.Hits, Misses: s.Misses, WriteBacks: s.WriteBacks}
	if s.Accesses > 0 {
		r.HitRate = float64(s.Hits) / float64(s.Accesses)
	}
	return r
}

// Report is the final run-statistics summary produced once a run ends,
// the MIPS analogue of the teacher's vm/statistics.go PerformanceStatistics
// (same Export{JSON,CSV}/String shape; the teacher's ExportHTML is not
// carried forward since spec §6 names only text/CSV/JSON output formats).
type Report struct {
	Mode      string  `json:"mode"` // functional, pipeline, ooo
	Cycles    uint64  `json:"cycles"`
	Committed uint64  `json:"committed"`
	CPI       float64 `json:"cpi"`

	Branches          uint64  `json:"branches"`
	Mispredicts       uint64  `json:"mispredicts"`
	PredictorHitRate  float64 `json:"predictor_hit_rate"`

	DataStalls       uint64 `json:"data_stalls,omitempty"`
	ControlStalls    uint64 `json:"control_stalls,omitempty"`
	StructuralStalls uint64 `json:"structural_stalls,omitempty"`
	Squashes         uint64 `json:"squashes,omitempty"`

	Caches []CacheReport `json:"caches,omitempty"`
}

func (r Report) cpi() float64 {
	if r.Committed == 0 {
		return 0
	}
	return float64(r.Cycles) / float64(r.Committed)
}

// ReportFromFunctional builds a Report for a plain functional run, where
// CPI is definitionally 1 and no cache/predictor/stall counters exist.
func ReportFromFunctional(committed, cycles uint64) Report {
	r := Report{Mode: "functional", Cycles: cycles, Committed: committed}
	r.CPI = r.cpi()
	return r
}

// ReportFromPipeline builds a Report from the in-order pipeline's Stats and
// the L1I/L1D caches and predictor it was configured with.
func ReportFromPipeline(s pipeline.Stats, pred *predict.Predictor, l1i, l1d *cache.Cache) Report {
	r := Report{
		Mode:             "pipeline",
		Cycles:           s.Cycles,
		Committed:        s.Committed,
		Branches:         s.Branches,
		Mispredicts:      s.Mispredicts,
		DataStalls:       s.DataStalls,
		ControlStalls:    s.ControlStalls,
		StructuralStalls: s.StructuralStalls,
	}
	r.CPI = r.cpi()
	if pred != nil {
		r.PredictorHitRate = pred.HitRate()
	}
	r.Caches = cachesReport(l1i, l1d)
	return r
}

// ReportFromOoO builds a Report from the out-of-order driver's Stats.
func ReportFromOoO(s ooo.Stats, pred *predict.Predictor, l1i, l1d *cache.Cache) Report {
	r := Report{
		Mode:      "ooo",
		Cycles:    s.Cycles,
		Committed: s.Committed,
		Squashes:  s.Squashes,
	}
	r.CPI = r.cpi()
	if pred != nil {
		r.PredictorHitRate = pred.HitRate()
	}
	r.Caches = cachesReport(l1i, l1d)
	return r
}

func cachesReport(l1i, l1d *cache.Cache) []CacheReport {
	var out []CacheReport
	var l2Reported *cache.Cache
	if l1i != nil {
		out = append(out, newCacheReport("L1I", l1i.Stats))
		if l1i.Next != nil {
			out = append(out, newCacheReport("L2", l1i.Next.Stats))
			l2Reported = l1i.Next
		}
	}
	if l1d != nil {
		out = append(out, newCacheReport("L1D", l1d.Stats))
		if l1d.Next != nil && l1d.Next != l2Reported {
			out = append(out, newCacheReport("L2", l1d.Next.Stats))
		}
	}
	return out
}

// Export writes the report in the requested format, matching
// vm/statistics.go's ExportJSON/ExportCSV/String trio (HTML dropped, see
// the Report doc comment).
func (r Report) Export(w io.Writer, format Format) error {
	switch format {
	case FormatCSV:
		return r.exportCSV(w)
	case FormatJSON:
		return exportJSON(w, r)
	default:
		_, err := io.WriteString(w, r.String())
		return err
	}
}

func (r Report) exportCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	rows := [][2]string{
		{"mode", r.Mode},
		{"cycles", fmt.Sprint(r.Cycles)},
		{"committed", fmt.Sprint(r.Committed)},
		{"cpi", fmt.Sprintf("%.4f", r.CPI)},
		{"branches", fmt.Sprint(r.Branches)},
		{"mispredicts", fmt.Sprint(r.Mispredicts)},
		{"predictor_hit_rate", fmt.Sprintf("%.4f", r.PredictorHitRate)},
		{"data_stalls", fmt.Sprint(r.DataStalls)},
		{"control_stalls", fmt.Sprint(r.ControlStalls)},
		{"structural_stalls", fmt.Sprint(r.StructuralStalls)},
		{"squashes", fmt.Sprint(r.Squashes)},
	}
	if err := cw.Write([]string{"metric", "value"}); err != nil {
		return err
	}
	for _, row := range rows {
		if err := cw.Write(row[:]); err != nil {
			return err
		}
	}
	for _, c := range r.Caches {
		if err := cw.Write([]string{c.Name + "_accesses", fmt.Sprint(c.Accesses)}); err != nil {
			return err
		}
		if err := cw.Write([]string{c.Name + "_hit_rate", fmt.Sprintf("%.4f", c.HitRate)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// String renders a plain-text summary, the default format, grounded on
// vm/statistics.go's String() method (strings.Builder, fixed field order).
func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "mode: %s\n", r.Mode)
	fmt.Fprintf(&b, "cycles: %d\n", r.Cycles)
	fmt.Fprintf(&b, "committed: %d\n", r.Committed)
	fmt.Fprintf(&b, "cpi: %.4f\n", r.CPI)
	if r.Branches > 0 {
		fmt.Fprintf(&b, "branches: %d  mispredicts: %d  predictor hit rate: %.2f%%\n",
			r.Branches, r.Mispredicts, r.PredictorHitRate*100)
	}
	if r.DataStalls+r.ControlStalls+r.StructuralStalls > 0 {
		fmt.Fprintf(&b, "stalls: data=%d control=%d structural=%d\n",
			r.DataStalls, r.ControlStalls, r.StructuralStalls)
	}
	if r.Squashes > 0 {
		fmt.Fprintf(&b, "squashes: %d\n", r.Squashes)
	}
	for _, c := range r.Caches {
		fmt.Fprintf(&b, "%s: accesses=%d hits=%d misses=%d hit-rate=%.2f%%\n",
			c.Name, c.Accesses, c.Hits, c.Misses, c.HitRate*100)
	}
	return b.String()
}

func exportJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
