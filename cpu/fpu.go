package cpu

import "math"

// FPValue is the pure computation behind a single-precision FP instruction:
// given operand values (and, for compares, the current FCC) it returns the
// new FP result bits and/or FCC without touching the register file.
func FPValue(in Instruction, fsBits, ftBits uint32, fcc bool) (resultBits uint32, newFCC bool) {
	fs := asFloat32(fsBits)
	ft := asFloat32(ftBits)

	switch in.Op {
	case OpAddS:
		return asBits(fs + ft), fcc
	case OpSubS:
		return asBits(fs - ft), fcc
	case OpMulS:
		return asBits(fs * ft), fcc
	case OpDivS:
		return asBits(fs / ft), fcc
	case OpAbsS:
		if fs < 0 {
			return asBits(-fs), fcc
		}
		return asBits(fs), fcc
	case OpNegS:
		return asBits(-fs), fcc
	case OpMovS:
		return asBits(fs), fcc
	case OpCvtSW:
		return asBits(float32(int32(fsBits))), fcc
	case OpCvtWS:
		return uint32(int32(fs)), fcc
	case OpCEqS:
		return 0, fs == ft
	case OpCLtS:
		return 0, fs < ft
	case OpCLeS:
		return 0, fs <= ft
	default:
		return 0, fcc
	}
}

func asFloat32(bits uint32) float32 {
	return math.Float32frombits(bits)
}

func asBits(v float32) uint32 {
	return math.Float32bits(v)
}

// ExecFP applies a single-precision floating-point instruction. Compares
// set FCC instead of writing a destination register; bc1t/bc1f (handled in
// control.go as branches) read it back.
func ExecFP(r *Registers, in Instruction) error {
	fs := r.GetFPRBits(in.RS)
	ft := r.GetFPRBits(in.RT)
	result, fcc := FPValue(in, fs, ft, r.FCC)

	switch in.Op {
	case OpCEqS, OpCLtS, OpCLeS:
		r.FCC = fcc
	default:
		r.SetFPRBits(in.FPDest, result)
	}
	return nil
}
