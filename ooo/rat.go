package ooo

// RAT is the Register Alias Table: for each architectural GPR it holds
// either the ROB id of its latest in-flight writer, or "committed" meaning
// the architectural register file already holds the current value. FP
// registers get their own table since they're a disjoint namespace.
//
// Grounded on Maemo32-SupraX_Legacy/proto/ooo/ooo.go's index-addressed,
// no-pointer-cycle style (operations reference each other by small integer
// index, never by pointer), applied here to architectural-register →
// ROB-id aliasing instead of that model's age-ordered scoreboard.
type RAT struct {
	gpr [32]aliasEntry
	fpr [32]aliasEntry
}

type aliasEntry struct {
	pending bool
	robID   int
}

// NewRAT creates a RAT with every register mapped to "committed".
func NewRAT() *RAT {
	return &RAT{}
}

// LookupGPR returns (robID, true) if the register has a pending in-flight
// writer, or (0, false) if its value lives in the architectural file.
func (r *RAT) LookupGPR(reg uint8) (int, bool) {
	e := r.gpr[reg]
	return e.robID, e.pending
}

func (r *RAT) LookupFPR(reg uint8) (int, bool) {
	e := r.fpr[reg]
	return e.robID, e.pending
}

// SetGPR records that robID is now the latest writer of reg.
func (r *RAT) SetGPR(reg uint8, robID int) {
	if reg == 0 {
		return
	}
	r.gpr[reg] = aliasEntry{pending: true, robID: robID}
}

func (r *RAT) SetFPR(reg uint8, robID int) {
	r.fpr[reg] = aliasEntry{pending: true, robID: robID}
}

// ClearGPRIfOwner clears reg's alias back to "committed" only if it still
// points at robID — spec §4.6's commit rule, since a younger instruction
// may have since claimed the register.
func (r *RAT) ClearGPRIfOwner(reg uint8, robID int) {
	if reg == 0 {
		return
	}
	if e := r.gpr[reg]; e.pending && e.robID == robID {
		r.gpr[reg] = aliasEntry{}
	}
}

func (r *RAT) ClearFPRIfOwner(reg uint8, robID int) {
	if e := r.fpr[reg]; e.pending && e.robID == robID {
		r.fpr[reg] = aliasEntry{}
	}
}

// Rebuild clears every alias, used after a squash to fall back to "every
// register is committed" before replaying the surviving ROB prefix (the
// linear-rebuild option spec §4.6 offers as an alternative to snapshots).
func (r *RAT) Rebuild() {
	r.gpr = [32]aliasEntry{}
	r.fpr = [32]aliasEntry{}
}
