package cpu

import "github.com/lookbusy1344/mips-sim/simerror"

// addOverflows reports whether the signed 32-bit addition a+b overflows,
// using the standard same-sign-operands/different-sign-result test.
func addOverflows(a, b, result uint32) bool {
	return (a^result)&(b^result)&0x80000000 != 0
}

func subOverflows(a, b, result uint32) bool {
	return (a^b)&(a^result)&0x80000000 != 0
}

// ALUValue is the pure, side-effect-free computation behind an ALU
// instruction: given operand values it returns the result without touching
// any register file. The in-order ExecALU below is built on this; the
// out-of-order execute stage (ooo package) uses it directly since
// speculative instructions must not write architectural state before
// commit.
func ALUValue(in Instruction, rs, rt uint32) (uint32, error) {
	switch in.Op {
	case OpNop:
		return 0, nil
	case OpAdd:
		result := rs + rt
		if addOverflows(rs, rt, result) {
			return 0, simerror.ArithmeticOverflow().WithPC(in.PC)
		}
		return result, nil
	case OpAddu:
		return rs + rt, nil
	case OpSub:
		result := rs - rt
		if subOverflows(rs, rt, result) {
			return 0, simerror.ArithmeticOverflow().WithPC(in.PC)
		}
		return result, nil
	case OpSubu:
		return rs - rt, nil
	case OpAnd:
		return rs & rt, nil
	case OpOr:
		return rs | rt, nil
	case OpXor:
		return rs ^ rt, nil
	case OpNor:
		return ^(rs | rt), nil
	case OpSlt:
		return boolToWord(int32(rs) < int32(rt)), nil
	case OpSltu:
		return boolToWord(rs < rt), nil
	case OpSll:
		return rt << in.Shamt, nil
	case OpSrl:
		return rt >> in.Shamt, nil
	case OpSra:
		return uint32(int32(rt) >> in.Shamt), nil
	case OpSllv:
		return rt << (rs & 0x1F), nil
	case OpSrlv:
		return rt >> (rs & 0x1F), nil
	case OpSrav:
		return uint32(int32(rt) >> (rs & 0x1F)), nil
	case OpAddi:
		result := rs + in.ImmSigned
		if addOverflows(rs, in.ImmSigned, result) {
			return 0, simerror.ArithmeticOverflow().WithPC(in.PC)
		}
		return result, nil
	case OpAddiu:
		return rs + in.ImmSigned, nil
	case OpSlti:
		return boolToWord(int32(rs) < int32(in.ImmSigned)), nil
	case OpSltiu:
		return boolToWord(rs < in.ImmSigned), nil
	case OpAndi:
		return rs & in.ImmZero, nil
	case OpOri:
		return rs | in.ImmZero, nil
	case OpXori:
		return rs ^ in.ImmZero, nil
	case OpLui:
		return in.ImmZero << 16, nil
	default:
		return 0, nil
	}
}

func boolToWord(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// ExecALU applies an integer ALU/immediate instruction to the register
// file. Returns an *simerror.Fault for signed overflow on add/sub/addi; all
// other ALU ops cannot fault.
func ExecALU(r *Registers, in Instruction) error {
	result, err := ALUValue(in, r.GetGPR(in.RS), r.GetGPR(in.RT))
	if err != nil {
		return err
	}
	r.SetGPR(in.Dest, result)
	return nil
}

// MulDivResult is the pure computation behind multiply/divide: given
// operand values it returns the new (HI, LO) pair without touching the
// register file, for the same speculation-safety reason as ALUValue.
func MulDivResult(in Instruction, rs, rt uint32) (hi, lo uint32, err error) {
	switch in.Op {
	case OpMult:
		product := int64(int32(rs)) * int64(int32(rt))
		return uint32(uint64(product) >> 32), uint32(uint64(product)), nil
	case OpMultu:
		product := uint64(rs) * uint64(rt)
		return uint32(product >> 32), uint32(product), nil
	case OpDiv:
		if rt == 0 {
			return 0, 0, simerror.DivisionByZero().WithPC(in.PC)
		}
		return uint32(int32(rs) % int32(rt)), uint32(int32(rs) / int32(rt)), nil
	case OpDivu:
		if rt == 0 {
			return 0, 0, simerror.DivisionByZero().WithPC(in.PC)
		}
		return rs % rt, rs / rt, nil
	default:
		return 0, 0, nil
	}
}

// ExecMulDiv applies multiply/divide and HI/LO move instructions.
func ExecMulDiv(r *Registers, in Instruction) error {
	rs := r.GetGPR(in.RS)
	rt := r.GetGPR(in.RT)

	switch in.Op {
	case OpMult, OpMultu, OpDiv, OpDivu:
		hi, lo, err := MulDivResult(in, rs, rt)
		r.HI, r.LO = hi, lo
		return err
	case OpMfhi:
		r.SetGPR(in.Dest, r.HI)
	case OpMflo:
		r.SetGPR(in.Dest, r.LO)
	case OpMthi:
		r.HI = rs
	case OpMtlo:
		r.LO = rs
	}
	return nil
}
