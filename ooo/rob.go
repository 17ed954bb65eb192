package ooo

import "github.com/lookbusy1344/mips-sim/cpu"

// Entry is one Reorder Buffer slot, per spec §3: allocated at dispatch in
// program order, freed at commit or squash.
type Entry struct {
	Valid      bool
	Instr      cpu.Instruction
	IsFPDest   bool
	DestReg    uint8
	Value      uint32
	Ready      bool
	Exception  error
	PC         uint32
	IsStore    bool
	StoreAddr  uint32
	StoreValue uint32
	IsBranch   bool
	BranchPred bool
	BranchTarget uint32
	LinkWrite  bool
	LinkReg    uint8
	LinkValue  uint32
	FCCWrite   bool
	FCCValue   bool
	HIWrite    bool
	HIValue    uint32
	LOWrite    bool
	LOValue    uint32
}

// ROB is a circular FIFO of fixed capacity, head = next to commit, tail =
// next dispatch slot. Entries are addressed by integer index rather than
// pointer, per the index-addressed style in DESIGN.md (grounded on
// Maemo32-SupraX_Legacy's slot-indexed window).
type ROB struct {
	entries []Entry
	head    int
	tail    int
	count   int
}

// NewROB creates a ROB with the given capacity (typically 16-64, spec §3).
func NewROB(capacity int) *ROB {
	return &ROB{entries: make([]Entry, capacity)}
}

func (r *ROB) Capacity() int { return len(r.entries) }
func (r *ROB) Count() int    { return r.count }
func (r *ROB) Full() bool    { return r.count == len(r.entries) }
func (r *ROB) Empty() bool   { return r.count == 0 }

// Alloc reserves the tail slot for a newly dispatched instruction and
// returns its ROB id (its slot index). Caller must check !Full() first.
func (r *ROB) Alloc(instr cpu.Instruction) int {
	id := r.tail
	r.entries[id] = Entry{Valid: true, Instr: instr, PC: instr.PC}
	r.tail = (r.tail + 1) % len(r.entries)
	r.count++
	return id
}

// At returns a pointer to the entry for robID for in-place mutation
// (marking ready, storing a value, attaching an exception).
func (r *ROB) At(robID int) *Entry {
	return &r.entries[robID]
}

// Head returns the index of the oldest in-flight entry, valid only when
// !Empty().
func (r *ROB) Head() int { return r.head }

// CommitHead frees the head slot; caller must have already applied its
// architectural effects.
func (r *ROB) CommitHead() {
	r.entries[r.head] = Entry{}
	r.head = (r.head + 1) % len(r.entries)
	r.count--
}

// IsOlder reports whether robID a is older (closer to head) than robID b,
// used for oldest-first issue/CDB arbitration ties (spec §4.5/§4.6).
func (r *ROB) IsOlder(a, b int) bool {
	distA := (a - r.head + len(r.entries)) % len(r.entries)
	distB := (b - r.head + len(r.entries)) % len(r.entries)
	return distA < distB
}

// SquashAfter discards every entry newer than keepID (the branch's own ROB
// id is kept), resetting the tail to immediately after keepID. Returns the
// squashed ids so the caller can also purge matching RS entries and, for
// RAT entries still pointing at a squashed id, clear them.
func (r *ROB) SquashAfter(keepID int) []int {
	var squashed []int
	cur := (keepID + 1) % len(r.entries)
	for cur != r.tail {
		if r.entries[cur].Valid {
			squashed = append(squashed, cur)
		}
		r.entries[cur] = Entry{}
		r.count--
		cur = (cur + 1) % len(r.entries)
	}
	r.tail = (keepID + 1) % len(r.entries)
	return squashed
}
