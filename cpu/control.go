package cpu

import (
	"github.com/lookbusy1344/mips-sim/memory"
	"github.com/lookbusy1344/mips-sim/simerror"
)

// BranchOutcome reports how a control-flow instruction affects PC, so that
// callers (functional driver, in-order pipeline Execute stage, OoO branch
// unit) can apply the new PC and compare against a prediction without
// re-deriving the target.
type BranchOutcome struct {
	Taken      bool
	NextPC     uint32
	IsJump     bool
	LinkWrite  bool
	LinkValue  uint32
	LinkReg    uint8
}

// EvalControl evaluates a branch/jump instruction and returns the resulting
// PC. Branch targets are PC-relative per spec §4.2:
// PC_of_branch + 4 + (sign_ext(imm16) << 2); jump targets combine the top 4
// bits of PC+4 with the 26-bit target field shifted left by 2. jal/jalr
// write PC_of_instr + 8 to the link register.
func EvalControl(r *Registers, mem *memory.Memory, in Instruction) (BranchOutcome, error) {
	pc := in.PC
	rs := r.GetGPR(in.RS)
	rt := r.GetGPR(in.RT)
	fallthroughPC := pc + 4
	branchTarget := fallthroughPC + (in.ImmSigned << 2)

	out := BranchOutcome{NextPC: fallthroughPC}

	switch in.Op {
	case OpBeq:
		out.Taken = rs == rt
	case OpBne:
		out.Taken = rs != rt
	case OpBgtz:
		out.Taken = int32(rs) > 0
	case OpBgez:
		out.Taken = int32(rs) >= 0
	case OpBltz:
		out.Taken = int32(rs) < 0
	case OpBlez:
		out.Taken = int32(rs) <= 0
	case OpBc1t:
		out.Taken = r.FCC
	case OpBc1f:
		out.Taken = !r.FCC
	case OpJ:
		out.IsJump, out.Taken = true, true
	case OpJal:
		out.IsJump, out.Taken = true, true
		out.LinkWrite, out.LinkReg, out.LinkValue = true, RA, pc+8
	case OpJr:
		out.IsJump, out.Taken, out.NextPC = true, true, rs
		return out, validateTarget(mem, out.NextPC)
	case OpJalr:
		out.IsJump, out.Taken, out.NextPC = true, true, rs
		out.LinkWrite, out.LinkReg, out.LinkValue = true, in.Dest, pc+8
		return out, validateTarget(mem, out.NextPC)
	default:
		return out, nil
	}

	if out.IsJump {
		target := (fallthroughPC & 0xF0000000) | (in.Target26 << 2)
		out.NextPC = target
		return out, validateTarget(mem, out.NextPC)
	}

	if out.Taken {
		out.NextPC = branchTarget
		return out, validateTarget(mem, out.NextPC)
	}
	return out, nil
}

// ControlValue is the pure computation behind a branch/jump: given operand
// values (and the current FCC) it returns the taken/not-taken outcome and
// target without touching the register file or validating the target
// against memory bounds, for the same speculation-safety reason as
// ALUValue/MulDivResult/FPValue. The out-of-order engine resolves the
// branch this way at execute time and defers memory-range validation to
// commit via ValidateTarget.
func ControlValue(in Instruction, rs, rt uint32, fcc bool) BranchOutcome {
	pc := in.PC
	fallthroughPC := pc + 4
	branchTarget := fallthroughPC + (in.ImmSigned << 2)

	out := BranchOutcome{NextPC: fallthroughPC}

	switch in.Op {
	case OpBeq:
		out.Taken = rs == rt
	case OpBne:
		out.Taken = rs != rt
	case OpBgtz:
		out.Taken = int32(rs) > 0
	case OpBgez:
		out.Taken = int32(rs) >= 0
	case OpBltz:
		out.Taken = int32(rs) < 0
	case OpBlez:
		out.Taken = int32(rs) <= 0
	case OpBc1t:
		out.Taken = fcc
	case OpBc1f:
		out.Taken = !fcc
	case OpJ:
		out.IsJump, out.Taken = true, true
		out.NextPC = (fallthroughPC & 0xF0000000) | (in.Target26 << 2)
	case OpJal:
		out.IsJump, out.Taken = true, true
		out.LinkWrite, out.LinkReg, out.LinkValue = true, RA, pc+8
		out.NextPC = (fallthroughPC & 0xF0000000) | (in.Target26 << 2)
	case OpJr:
		out.IsJump, out.Taken, out.NextPC = true, true, rs
	case OpJalr:
		out.IsJump, out.Taken, out.NextPC = true, true, rs
		out.LinkWrite, out.LinkReg, out.LinkValue = true, in.Dest, pc+8
	default:
		return out
	}

	if out.Taken && !out.IsJump {
		out.NextPC = branchTarget
	}
	return out
}

// ValidateTarget exposes the target-range/alignment check for callers that
// resolved a branch via ControlValue and need to validate separately
// (the out-of-order commit stage).
func ValidateTarget(mem *memory.Memory, target uint32) error {
	return validateTarget(mem, target)
}

func validateTarget(mem *memory.Memory, target uint32) error {
	if target&0x3 != 0 {
		return simerror.InvalidBranchTarget(target)
	}
	if target >= mem.Size() {
		return simerror.InvalidBranchTarget(target)
	}
	return nil
}

// ApplyControl applies a resolved BranchOutcome's register effects (link
// register write) to r. PC update is the caller's responsibility since the
// functional driver, pipeline, and OoO commit stage each decide PC
// differently around flush/stall timing.
func ApplyControl(r *Registers, out BranchOutcome) {
	if out.LinkWrite {
		r.SetGPR(out.LinkReg, out.LinkValue)
	}
}
