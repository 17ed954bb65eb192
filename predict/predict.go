// Package predict implements the branch direction predictor and branch
// target buffer of spec §4.8: a bounded table of 2-bit saturating counters
// plus a bounded PC→target map, both evicted LRU-style when full.
// Grounded on the teacher's bounded-map idiom in vm/symbol_resolver.go and,
// for the broader two-level-table shape this collapses from, on
// Maemo32-SupraX_Legacy/proto/tage/tage.go's multi-table saturating-counter
// design (scaled here to the spec's single 2-bit table).
package predict

// Counter is a 2-bit saturating counter with states SN < WN < WT < ST.
type Counter uint8

const (
	StronglyNotTaken Counter = iota
	WeaklyNotTaken
	WeaklyTaken
	StronglyTaken
)

// Taken reports whether this counter state predicts the branch taken.
func (c Counter) Taken() bool {
	return c == WeaklyTaken || c == StronglyTaken
}

func (c Counter) increment() Counter {
	if c == StronglyTaken {
		return StronglyTaken
	}
	return c + 1
}

func (c Counter) decrement() Counter {
	if c == StronglyNotTaken {
		return StronglyNotTaken
	}
	return c - 1
}

// Mode selects direction-prediction behavior.
type Mode int

const (
	ModeTwoBit Mode = iota
	ModeStatic      // always not-taken
)

type counterEntry struct {
	counter Counter
	lastUse uint64
}

type btbEntry struct {
	target  uint32
	lastUse uint64
}

// Predictor is a bounded branch-PC-indexed table of counters plus a bounded
// BTB, both LRU-evicted independently when at capacity.
type Predictor struct {
	mode     Mode
	capacity int
	counters map[uint32]*counterEntry
	btb      map[uint32]*btbEntry
	clock    uint64

	Branches      uint64
	Mispredicts   uint64
}

// New creates a predictor with the given table capacities (same bound
// applied to the counter table and the BTB).
func New(mode Mode, capacity int) *Predictor {
	return &Predictor{
		mode:     mode,
		capacity: capacity,
		counters: make(map[uint32]*counterEntry),
		btb:      make(map[uint32]*btbEntry),
	}
}

// Predict returns the predicted-taken decision and target PC to fetch next
// for a branch at pc, given the architectural fallthrough (pc+4). A
// predicted-taken branch with no BTB entry degrades to not-taken per
// spec §4.8.
func (p *Predictor) Predict(pc uint32, fallthroughPC uint32) (taken bool, target uint32) {
	if p.mode == ModeStatic {
		return false, fallthroughPC
	}
	entry, ok := p.counters[pc]
	if !ok || !entry.counter.Taken() {
		return false, fallthroughPC
	}
	bEntry, ok := p.btb[pc]
	if !ok {
		return false, fallthroughPC
	}
	p.touchBTB(pc, bEntry)
	return true, bEntry.target
}

// Update records the resolved outcome of a branch at pc and, if taken,
// its actual target, per spec §4.8's direction/BTB update rules.
func (p *Predictor) Update(pc uint32, taken bool, target uint32) {
	p.Branches++
	entry, ok := p.counters[pc]
	if !ok {
		entry = p.evictAndInsertCounter(pc)
	}
	if taken {
		entry.counter = entry.counter.increment()
		b, ok := p.btb[pc]
		if !ok {
			b = p.evictAndInsertBTB(pc)
		}
		b.target = target
		p.touchBTB(pc, b)
	} else {
		entry.counter = entry.counter.decrement()
	}
	p.touchCounter(pc, entry)
}

// RecordMisprediction increments the misprediction counter; callers decide
// misprediction by comparing their own Predict() result against the
// resolved outcome.
func (p *Predictor) RecordMisprediction() {
	p.Mispredicts++
}

// HitRate returns the fraction of branches this predictor predicted
// correctly, i.e. 1 - mispredicts/branches.
func (p *Predictor) HitRate() float64 {
	if p.Branches == 0 {
		return 0
	}
	return 1 - float64(p.Mispredicts)/float64(p.Branches)
}

func (p *Predictor) touchCounter(pc uint32, e *counterEntry) {
	p.clock++
	e.lastUse = p.clock
	p.counters[pc] = e
}

func (p *Predictor) touchBTB(pc uint32, e *btbEntry) {
	p.clock++
	e.lastUse = p.clock
	p.btb[pc] = e
}

func (p *Predictor) evictAndInsertCounter(pc uint32) *counterEntry {
	if len(p.counters) >= p.capacity {
		var oldestPC uint32
		var oldest uint64 = ^uint64(0)
		for k, v := range p.counters {
			if v.lastUse < oldest {
				oldest, oldestPC = v.lastUse, k
			}
		}
		delete(p.counters, oldestPC)
	}
	e := &counterEntry{counter: WeaklyNotTaken}
	p.counters[pc] = e
	return e
}

func (p *Predictor) evictAndInsertBTB(pc uint32) *btbEntry {
	if len(p.btb) >= p.capacity {
		var oldestPC uint32
		var oldest uint64 = ^uint64(0)
		for k, v := range p.btb {
			if v.lastUse < oldest {
				oldest, oldestPC = v.lastUse, k
			}
		}
		delete(p.btb, oldestPC)
	}
	e := &btbEntry{}
	p.btb[pc] = e
	return e
}
