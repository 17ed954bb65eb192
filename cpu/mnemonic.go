package cpu

// String returns the assembler mnemonic for op, used by disassembly output
// in the viz package and by fault messages. Grounded on the teacher's
// per-instruction mnemonic tables in vm/data_processing.go and vm/branch.go,
// adapted from ARM's mnemonic set to MIPS's.
func (op Op) String() string {
	switch op {
	case OpNop:
		return "nop"
	case OpAdd:
		return "add"
	case OpAddu:
		return "addu"
	case OpSub:
		return "sub"
	case OpSubu:
		return "subu"
	case OpAnd:
		return "and"
	case OpOr:
		return "or"
	case OpXor:
		return "xor"
	case OpNor:
		return "nor"
	case OpSlt:
		return "slt"
	case OpSltu:
		return "sltu"
	case OpSll:
		return "sll"
	case OpSrl:
		return "srl"
	case OpSra:
		return "sra"
	case OpSllv:
		return "sllv"
	case OpSrlv:
		return "srlv"
	case OpSrav:
		return "srav"
	case OpAddi:
		return "addi"
	case OpAddiu:
		return "addiu"
	case OpAndi:
		return "andi"
	case OpOri:
		return "ori"
	case OpXori:
		return "xori"
	case OpSlti:
		return "slti"
	case OpSltiu:
		return "sltiu"
	case OpLui:
		return "lui"
	case OpMult:
		return "mult"
	case OpMultu:
		return "multu"
	case OpDiv:
		return "div"
	case OpDivu:
		return "divu"
	case OpMfhi:
		return "mfhi"
	case OpMflo:
		return "mflo"
	case OpMthi:
		return "mthi"
	case OpMtlo:
		return "mtlo"
	case OpLw:
		return "lw"
	case OpLh:
		return "lh"
	case OpLhu:
		return "lhu"
	case OpLb:
		return "lb"
	case OpLbu:
		return "lbu"
	case OpSw:
		return "sw"
	case OpSh:
		return "sh"
	case OpSb:
		return "sb"
	case OpLwc1:
		return "lwc1"
	case OpSwc1:
		return "swc1"
	case OpBeq:
		return "beq"
	case OpBne:
		return "bne"
	case OpBgtz:
		return "bgtz"
	case OpBgez:
		return "bgez"
	case OpBltz:
		return "bltz"
	case OpBlez:
		return "blez"
	case OpJ:
		return "j"
	case OpJal:
		return "jal"
	case OpJr:
		return "jr"
	case OpJalr:
		return "jalr"
	case OpAddS:
		return "add.s"
	case OpSubS:
		return "sub.s"
	case OpMulS:
		return "mul.s"
	case OpDivS:
		return "div.s"
	case OpAbsS:
		return "abs.s"
	case OpNegS:
		return "neg.s"
	case OpMovS:
		return "mov.s"
	case OpCvtSW:
		return "cvt.s.w"
	case OpCvtWS:
		return "cvt.w.s"
	case OpCEqS:
		return "c.eq.s"
	case OpCLtS:
		return "c.lt.s"
	case OpCLeS:
		return "c.le.s"
	case OpBc1t:
		return "bc1t"
	case OpBc1f:
		return "bc1f"
	case OpSyscall:
		return "syscall"
	case OpBreak:
		return "break"
	default:
		return "invalid"
	}
}

// Disasm renders a decoded instruction in a compact register-operand form
// suitable for trace/visualization output, not a full AT&T/MIPS assembler
// syntax.
func (in Instruction) Disasm() string {
	if in.Op == OpInvalid {
		return "invalid"
	}
	m := in.Op.String()
	switch {
	case in.Op == OpNop || in.Op == OpSyscall || in.Op == OpBreak:
		return m
	case in.IsJump && (in.Op == OpJ || in.Op == OpJal):
		return m + " " + hex32(in.Target26<<2)
	case in.IsJump:
		return m + " $" + regName(in.RS)
	case in.IsBranch:
		return m + " $" + regName(in.RS) + ", $" + regName(in.RT) + ", " + hex32(in.PC+4+(in.ImmSigned<<2))
	case in.IsLoad:
		return m + " $" + destName(in) + ", " + hex32(in.ImmSigned) + "($" + regName(in.RS) + ")"
	case in.IsStore:
		return m + " $" + regName(in.RT) + ", " + hex32(in.ImmSigned) + "($" + regName(in.RS) + ")"
	default:
		return m + " $" + destName(in) + ", $" + regName(in.RS) + ", $" + regName(in.RT)
	}
}

func destName(in Instruction) string {
	if in.WritesFP {
		return "f" + fpRegDigits(in.FPDest)
	}
	return regName(in.Dest)
}

func regName(i uint8) string {
	return gprNames[i%32]
}

func fpRegDigits(i uint8) string {
	const digits = "0123456789"
	n := i % 32
	if n < 10 {
		return string(digits[n])
	}
	return string(digits[n/10]) + string(digits[n%10])
}

var gprNames = [32]string{
	"zero", "at", "v0", "v1", "a0", "a1", "a2", "a3",
	"t0", "t1", "t2", "t3", "t4", "t5", "t6", "t7",
	"s0", "s1", "s2", "s3", "s4", "s5", "s6", "s7",
	"t8", "t9", "k0", "k1", "gp", "sp", "fp", "ra",
}

func hex32(v uint32) string {
	const hexdigits = "0123456789abcdef"
	b := [10]byte{'0', 'x'}
	for i := 0; i < 8; i++ {
		b[9-i] = hexdigits[(v>>(4*i))&0xF]
	}
	return string(b[:])
}
