// Command mips-sim is the MIPS32 simulator's command-line entry point: a
// "functional" subcommand for straight-line instruction-by-instruction
// execution and a "timing" subcommand for the cycle-accurate in-order
// pipeline or out-of-order engine, per spec §6. Grounded on the teacher's
// flat flag.X()-per-option declaration style in its own main.go, replacing
// the teacher's single ARM mode-switch surface with MIPS's two run modes.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/lookbusy1344/mips-sim/cache"
	"github.com/lookbusy1344/mips-sim/cpu"
	"github.com/lookbusy1344/mips-sim/functional"
	"github.com/lookbusy1344/mips-sim/loader"
	"github.com/lookbusy1344/mips-sim/memory"
	"github.com/lookbusy1344/mips-sim/ooo"
	"github.com/lookbusy1344/mips-sim/pipeline"
	"github.com/lookbusy1344/mips-sim/predict"
	"github.com/lookbusy1344/mips-sim/simerror"
	"github.com/lookbusy1344/mips-sim/viz"
)

// Version information, settable at build time with -ldflags, matching the
// teacher's own version-stamping convention.
var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "functional":
		err = runFunctional(os.Args[2:])
	case "timing":
		err = runTiming(os.Args[2:])
	case "-version", "--version", "version":
		fmt.Printf("mips-sim %s (%s)\n", Version, Commit)
		return
	case "-help", "--help", "help":
		usage()
		return
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "mips-sim:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: mips-sim <functional|timing> [flags] <image>")
	fmt.Fprintln(os.Stderr, "  mips-sim functional -help")
	fmt.Fprintln(os.Stderr, "  mips-sim timing -help")
}

// commonFlags are shared by both subcommands: memory size, cycle budget,
// the image to load, an optional breakpoint, and trace/statistics output.
// The breakpoint is honoured only by the functional subcommand; timing
// accepts -break but does not stop on it.
type commonFlags struct {
	memSize     uint
	maxCycles   uint64
	breakpoint  string
	traceFile   string
	traceFormat string
	statsFile   string
	statsFormat string
}

func addCommonFlags(fs *flag.FlagSet) *commonFlags {
	cf := &commonFlags{}
	fs.UintVar(&cf.memSize, "mem-size", 16*1024*1024, "Simulated memory size in bytes")
	fs.Uint64Var(&cf.maxCycles, "max-cycles", 1_000_000, "Maximum cycle/step budget before halting")
	fs.StringVar(&cf.breakpoint, "break", "", "Breakpoint address (hex or decimal); empty disables it")
	fs.StringVar(&cf.traceFile, "trace-file", "", "Execution trace output path; empty disables tracing")
	fs.StringVar(&cf.traceFormat, "trace-format", "text", "Trace format: text, csv, or json")
	fs.StringVar(&cf.statsFile, "stats-file", "", "Final statistics output path; empty disables it")
	fs.StringVar(&cf.statsFormat, "stats-format", "text", "Statistics format: text, csv, or json")
	return cf
}

func runFunctional(args []string) error {
	fs := flag.NewFlagSet("functional", flag.ExitOnError)
	cf := addCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	image := fs.Arg(0)
	if image == "" {
		return errors.New("functional: missing image path")
	}

	mem := memory.New(uint32(cf.memSize))
	if err := loader.LoadFile(mem, image); err != nil {
		return fmt.Errorf("loading image: %w", err)
	}

	m := functional.New(mem, memory.TextBase, os.Stdout, os.Stdin)
	if bp, ok := parseBreakpoint(cf.breakpoint); ok {
		m.HasBreakpoint, m.Breakpoint = true, bp
	}

	var tr *viz.Trace
	if cf.traceFile != "" {
		tr = viz.NewTrace()
	}

	status, runErr := runFunctionalLoop(m, tr, cf.maxCycles)

	if tr != nil {
		if err := writeToFile(cf.traceFile, func(w *os.File) error {
			return tr.Export(w, viz.ParseFormat(cf.traceFormat))
		}); err != nil {
			return fmt.Errorf("writing trace: %w", err)
		}
	}
	if cf.statsFile != "" {
		report := viz.ReportFromFunctional(m.Committed, m.Cycles)
		if err := writeToFile(cf.statsFile, func(w *os.File) error {
			return report.Export(w, viz.ParseFormat(cf.statsFormat))
		}); err != nil {
			return fmt.Errorf("writing statistics: %w", err)
		}
	}

	fmt.Printf("status: %s  cycles: %d  committed: %d\n", functionalStatusString(status), m.Cycles, m.Committed)
	return runErr
}

// runFunctionalLoop re-implements Machine.Run's loop inline so it can feed
// each retired instruction to the trace recorder; Machine.Run itself has no
// trace hook, keeping the functional core trace-agnostic.
func runFunctionalLoop(m *functional.Machine, tr *viz.Trace, maxCycles uint64) (functional.Status, error) {
	if maxCycles == 0 {
		maxCycles = 1_000_000
	}
	trailingNops := 0
	for m.Cycles < maxCycles {
		if m.HasBreakpoint && m.Regs.PC == m.Breakpoint {
			return functional.StatusBreakpoint, nil
		}
		instr, err := m.Step()
		if err != nil {
			var fault *simerror.Fault
			if errors.As(err, &fault) {
				if fault.Kind == simerror.KindBreakpoint {
					return functional.StatusBreakpoint, nil
				}
				return functional.StatusFault, fault
			}
			return functional.StatusFault, err
		}
		if tr != nil {
			tr.Record(m.Cycles, instr, m.Regs)
		}
		if m.Env.Exited {
			return functional.StatusExited, nil
		}
		if instr.Op == cpu.OpNop {
			trailingNops++
			if trailingNops >= 2 {
				return functional.StatusExited, nil
			}
		} else {
			trailingNops = 0
		}
	}
	return functional.StatusCycleLimit, nil
}

func functionalStatusString(s functional.Status) string {
	switch s {
	case functional.StatusExited:
		return "exited"
	case functional.StatusBreakpoint:
		return "breakpoint"
	case functional.StatusCycleLimit:
		return "cycle-limit"
	case functional.StatusFault:
		return "fault"
	default:
		return "running"
	}
}

// timingFlags configures the pipeline/predictor/cache geometry shared by
// both timing engines, per spec §6.
type timingFlags struct {
	engine        string
	stages        int
	forwarding    bool
	predictorMode string
	btbSize       int
	dispatchWidth int
	issueWidth    int
	commitWidth   int
	robCapacity   int
	l1Sets        int
	l1Assoc       int
	l1Block       int
	l1HitLatency  int
	l1MissPenalty int
	l2Enabled     bool
	l2Sets        int
	l2Assoc       int
	replacement   string
	writePolicy   string
	writeAllocate bool
}

func addTimingFlags(fs *flag.FlagSet) *timingFlags {
	tf := &timingFlags{}
	fs.StringVar(&tf.engine, "engine", "inorder", "Timing engine: inorder or ooo")
	fs.IntVar(&tf.stages, "stages", 5, "In-order pipeline stage count")
	fs.BoolVar(&tf.forwarding, "forwarding", true, "Enable operand forwarding in the in-order pipeline")
	fs.StringVar(&tf.predictorMode, "predictor", "twobit", "Branch predictor mode: twobit or static")
	fs.IntVar(&tf.btbSize, "btb-size", 64, "Branch target buffer capacity")
	fs.IntVar(&tf.dispatchWidth, "dispatch-width", 1, "OoO dispatch width")
	fs.IntVar(&tf.issueWidth, "issue-width", 1, "OoO CDB/issue width")
	fs.IntVar(&tf.commitWidth, "commit-width", 1, "OoO commit width")
	fs.IntVar(&tf.robCapacity, "rob-capacity", 32, "OoO reorder buffer capacity")
	fs.IntVar(&tf.l1Sets, "l1-sets", 64, "L1 cache set count")
	fs.IntVar(&tf.l1Assoc, "l1-associativity", 2, "L1 cache associativity")
	fs.IntVar(&tf.l1Block, "l1-block-size", 16, "L1 cache block size in bytes")
	fs.IntVar(&tf.l1HitLatency, "l1-hit-latency", 1, "L1 cache hit latency in cycles")
	fs.IntVar(&tf.l1MissPenalty, "l1-miss-penalty", 10, "L1 cache miss penalty in cycles")
	fs.BoolVar(&tf.l2Enabled, "l2-enabled", false, "Enable a chained L2 cache")
	fs.IntVar(&tf.l2Sets, "l2-sets", 256, "L2 cache set count")
	fs.IntVar(&tf.l2Assoc, "l2-associativity", 4, "L2 cache associativity")
	fs.StringVar(&tf.replacement, "replacement", "lru", "Cache replacement policy: lru, fifo, random, lfu")
	fs.StringVar(&tf.writePolicy, "write-policy", "writeback", "Cache write policy: writeback or writethrough")
	fs.BoolVar(&tf.writeAllocate, "write-allocate", true, "Write-allocate on a write-through store miss")
	return tf
}

func runTiming(args []string) error {
	fs := flag.NewFlagSet("timing", flag.ExitOnError)
	cf := addCommonFlags(fs)
	tf := addTimingFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	image := fs.Arg(0)
	if image == "" {
		return errors.New("timing: missing image path")
	}

	mem := memory.New(uint32(cf.memSize))
	if err := loader.LoadFile(mem, image); err != nil {
		return fmt.Errorf("loading image: %w", err)
	}

	pred := predict.New(predictorMode(tf.predictorMode), tf.btbSize)
	l1i, l1d := buildCaches(tf, mem)

	regs := cpu.New(memory.TextBase)
	env := cpu.NewEnv(os.Stdout, os.Stdin)

	switch tf.engine {
	case "ooo":
		return runOoO(regs, mem, env, pred, l1i, l1d, cf, tf)
	default:
		return runInOrder(regs, mem, env, pred, l1i, l1d, cf, tf)
	}
}

func predictorMode(s string) predict.Mode {
	if s == "static" {
		return predict.ModeStatic
	}
	return predict.ModeTwoBit
}

func replacementPolicy(s string) cache.Replacement {
	switch s {
	case "fifo":
		return cache.FIFO
	case "random":
		return cache.Random
	case "lfu":
		return cache.LFU
	default:
		return cache.LRU
	}
}

func writePolicy(s string) cache.WritePolicy {
	if s == "writethrough" {
		return cache.WriteThrough
	}
	return cache.WriteBack
}

func buildCaches(tf *timingFlags, mem *memory.Memory) (l1i, l1d *cache.Cache) {
	var backing *memory.Memory = mem
	var l2 *cache.Cache
	if tf.l2Enabled {
		l2cfg := cache.Config{
			NumSets: tf.l2Sets, Associativity: tf.l2Assoc, BlockSize: tf.l1Block,
			Replacement: replacementPolicy(tf.replacement), Write: writePolicy(tf.writePolicy),
			WriteAllocate: tf.writeAllocate, HitLatency: tf.l1HitLatency * 4, MissPenalty: tf.l1MissPenalty * 4,
		}
		l2 = cache.New(l2cfg, backing)
	}
	l1cfg := cache.Config{
		NumSets: tf.l1Sets, Associativity: tf.l1Assoc, BlockSize: tf.l1Block,
		Replacement: replacementPolicy(tf.replacement), Write: writePolicy(tf.writePolicy),
		WriteAllocate: tf.writeAllocate, HitLatency: tf.l1HitLatency, MissPenalty: tf.l1MissPenalty,
	}
	l1i = cache.New(l1cfg, backing)
	l1d = cache.New(l1cfg, backing)
	if l2 != nil {
		l1i.Next = l2
		l1d.Next = l2
	}
	return l1i, l1d
}

func runInOrder(regs *cpu.Registers, mem *memory.Memory, env *cpu.Env, pred *predict.Predictor, l1i, l1d *cache.Cache, cf *commonFlags, tf *timingFlags) error {
	if tf.stages != 5 {
		fmt.Fprintln(os.Stderr, "timing: the in-order model is fixed at 5 stages (IF/ID/EX/MEM/WB); -stages ignored")
	}
	cfg := pipeline.Config{
		Forwarding: tf.forwarding, Predictor: pred, L1I: l1i, L1D: l1d, MaxCycles: cf.maxCycles,
		RecordHistory: cf.traceFile != "",
	}
	p := pipeline.New(regs, mem, env, cfg)

	status, err := p.Run()

	if cf.traceFile != "" {
		if werr := writeToFile(cf.traceFile, func(w *os.File) error {
			return viz.ExportCycles(w, p.History, viz.ParseFormat(cf.traceFormat))
		}); werr != nil {
			return fmt.Errorf("writing cycle trace: %w", werr)
		}
	}
	if cf.statsFile != "" {
		report := viz.ReportFromPipeline(p.Stats, pred, l1i, l1d)
		if werr := writeToFile(cf.statsFile, func(w *os.File) error {
			return report.Export(w, viz.ParseFormat(cf.statsFormat))
		}); werr != nil {
			return fmt.Errorf("writing statistics: %w", werr)
		}
	}

	fmt.Printf("status: %s  cycles: %d  committed: %d  cpi: %.3f\n",
		pipelineStatusString(status), p.Stats.Cycles, p.Stats.Committed, p.Stats.CPI())
	return err
}

func pipelineStatusString(s pipeline.Status) string {
	switch s {
	case pipeline.StatusExited:
		return "exited"
	case pipeline.StatusBreakpoint:
		return "breakpoint"
	case pipeline.StatusCycleLimit:
		return "cycle-limit"
	case pipeline.StatusFault:
		return "fault"
	default:
		return "running"
	}
}

func runOoO(regs *cpu.Registers, mem *memory.Memory, env *cpu.Env, pred *predict.Predictor, l1i, l1d *cache.Cache, cf *commonFlags, tf *timingFlags) error {
	units := map[ooo.UnitClass]ooo.ClassConfig{
		ooo.ClassALU:       {NumStations: 4, IssueWidth: tf.issueWidth, Latency: 1},
		ooo.ClassMulDiv:    {NumStations: 2, IssueWidth: 1, Latency: 4},
		ooo.ClassLoadStore: {NumStations: 4, IssueWidth: 1, Latency: 1},
		ooo.ClassFPAdd:     {NumStations: 2, IssueWidth: 1, Latency: 2},
		ooo.ClassFPMul:     {NumStations: 2, IssueWidth: 1, Latency: 4},
	}
	cfg := ooo.Config{
		ROBCapacity: tf.robCapacity, DispatchWidth: tf.dispatchWidth, IssueWidthCDB: tf.issueWidth,
		CommitWidth: tf.commitWidth, Units: units, Predictor: pred, L1I: l1i, L1D: l1d, MaxCycles: cf.maxCycles,
	}
	d := ooo.New(regs, mem, env, cfg)
	status, err := d.Run()

	if cf.statsFile != "" {
		report := viz.ReportFromOoO(d.Stats, pred, l1i, l1d)
		if werr := writeToFile(cf.statsFile, func(w *os.File) error {
			return report.Export(w, viz.ParseFormat(cf.statsFormat))
		}); werr != nil {
			return fmt.Errorf("writing statistics: %w", werr)
		}
	}

	fmt.Printf("status: %s  cycles: %d  committed: %d  cpi: %.3f  squashes: %d\n",
		ooOStatusString(status), d.Stats.Cycles, d.Stats.Committed, cpi(d.Stats), d.Stats.Squashes)
	return err
}

func cpi(s ooo.Stats) float64 {
	if s.Committed == 0 {
		return 0
	}
	return float64(s.Cycles) / float64(s.Committed)
}

func ooOStatusString(s ooo.Status) string {
	switch s {
	case ooo.StatusExited:
		return "exited"
	case ooo.StatusBreakpoint:
		return "breakpoint"
	case ooo.StatusCycleLimit:
		return "cycle-limit"
	case ooo.StatusFault:
		return "fault"
	default:
		return "running"
	}
}

// parseBreakpoint parses a hex ("0x...") or decimal address, returning
// false when s is empty (no breakpoint configured).
func parseBreakpoint(s string) (uint32, bool) {
	if s == "" {
		return 0, false
	}
	var v uint32
	if _, err := fmt.Sscanf(s, "0x%x", &v); err == nil {
		return v, true
	}
	if _, err := fmt.Sscanf(s, "%d", &v); err == nil {
		return v, true
	}
	return 0, false
}

func writeToFile(path string, fn func(*os.File) error) error {
	f, err := os.Create(path) // #nosec G304 -- user-specified output path
	if err != nil {
		return err
	}
	defer f.Close()
	return fn(f)
}
