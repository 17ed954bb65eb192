package cpu

import "github.com/lookbusy1344/mips-sim/simerror"

// Op identifies the semantic operation a decoded Instruction performs. The
// decoder computes this once; every later stage (functional engine,
// in-order pipeline, OoO dispatch) switches on it instead of re-inspecting
// opcode/funct bits, mirroring the teacher's decode-once-dispatch-often
// style in vm/executor.go.
type Op int

const (
	OpInvalid Op = iota
	OpNop

	// Integer ALU, register form
	OpAdd
	OpAddu
	OpSub
	OpSubu
	OpAnd
	OpOr
	OpXor
	OpNor
	OpSlt
	OpSltu
	OpSll
	OpSrl
	OpSra
	OpSllv
	OpSrlv
	OpSrav

	// Integer ALU, immediate form
	OpAddi
	OpAddiu
	OpAndi
	OpOri
	OpXori
	OpSlti
	OpSltiu
	OpLui

	// Multiply/divide
	OpMult
	OpMultu
	OpDiv
	OpDivu
	OpMfhi
	OpMflo
	OpMthi
	OpMtlo

	// Memory
	OpLw
	OpLh
	OpLhu
	OpLb
	OpLbu
	OpSw
	OpSh
	OpSb
	OpLwc1
	OpSwc1

	// Control
	OpBeq
	OpBne
	OpBgtz
	OpBgez
	OpBltz
	OpBlez
	OpJ
	OpJal
	OpJr
	OpJalr

	// Floating point
	OpAddS
	OpSubS
	OpMulS
	OpDivS
	OpAbsS
	OpNegS
	OpMovS
	OpCvtSW
	OpCvtWS
	OpCEqS
	OpCLtS
	OpCLeS
	OpBc1t
	OpBc1f

	// Environment
	OpSyscall
	OpBreak
)

// Family groups operations by pipeline/execution-unit routing, used by the
// OoO dispatcher to pick a reservation-station class and by the in-order
// pipeline to size the EX/MEM stage work.
type Family int

const (
	FamilyALU Family = iota
	FamilyMulDiv
	FamilyLoadStore
	FamilyBranch
	FamilyFPAdd
	FamilyFPMul
	FamilySystem
)

// Instruction is the decoded, tagged record consumed by every later stage.
// Fields beyond Op are populated according to the instruction's family; the
// decoder fills all fields it can extract even when semantics don't use
// them, so that disassembly/visualization can still describe the operands.
type Instruction struct {
	Raw    uint32
	PC     uint32
	Op     Op
	Family Family

	RS, RT, RD uint8
	Shamt      uint8
	Funct      uint8

	ImmSigned uint32 // sign-extended 16-bit immediate, already widened to 32 bits
	ImmZero   uint32 // zero-extended 16-bit immediate
	Target26  uint32 // raw 26-bit jump field (not yet shifted/combined with PC)

	IsFP   bool
	FmtBit uint8 // coprocessor-1 fmt field, for FP variant dispatch

	Writes    bool // true if the instruction has an architectural GPR destination
	Dest      uint8
	WritesFP  bool
	FPDest    uint8
	IsBranch  bool
	IsJump    bool
	IsLoad    bool
	IsStore   bool
	MemWidth  int // 1, 2, or 4 bytes for load/store ops
}

const (
	opSpecial = 0x00
	opRegimm  = 0x01
	opJ       = 0x02
	opJal     = 0x03
	opBeq     = 0x04
	opBne     = 0x05
	opBlez    = 0x06
	opBgtz    = 0x07
	opAddi    = 0x08
	opAddiu   = 0x09
	opSlti    = 0x0A
	opSltiu   = 0x0B
	opAndi    = 0x0C
	opOri     = 0x0D
	opXori    = 0x0E
	opLui     = 0x0F
	opCop1    = 0x11
	opLb      = 0x20
	opLh      = 0x21
	opLw      = 0x23
	opLbu     = 0x24
	opLhu     = 0x25
	opSb      = 0x28
	opSh      = 0x29
	opSw      = 0x2B
	opLwc1    = 0x31
	opSwc1    = 0x39
)

const (
	functSll  = 0x00
	functSrl  = 0x02
	functSra  = 0x03
	functSllv = 0x04
	functSrlv = 0x06
	functSrav = 0x07
	functJr   = 0x08
	functJalr = 0x09
	functSyscall = 0x0C
	functBreak   = 0x0D
	functMfhi = 0x10
	functMthi = 0x11
	functMflo = 0x12
	functMtlo = 0x13
	functMult  = 0x18
	functMultu = 0x19
	functDiv   = 0x1A
	functDivu  = 0x1B
	functAdd  = 0x20
	functAddu = 0x21
	functSub  = 0x22
	functSubu = 0x23
	functAnd  = 0x24
	functOr   = 0x25
	functXor  = 0x26
	functNor  = 0x27
	functSlt  = 0x2A
	functSltu = 0x2B
)

// cop1 fmt field values for coprocessor-1 dispatch.
const (
	fmtSingle = 16
	fmtWord   = 20
)

// cop1 funct field values, FP-R type.
const (
	fpFunctAdd  = 0x00
	fpFunctSub  = 0x01
	fpFunctMul  = 0x02
	fpFunctDiv  = 0x03
	fpFunctAbs  = 0x05
	fpFunctMov  = 0x06
	fpFunctNeg  = 0x07
	fpFunctCvtW = 0x24
	fpFunctCvtS = 0x20
	fpFunctCEq  = 0x32
	fpFunctCLt  = 0x3C
	fpFunctCLe  = 0x3E
)

func signExtend16(v uint32) uint32 {
	if v&0x8000 != 0 {
		return v | 0xFFFF0000
	}
	return v
}

// Decode extracts a tagged Instruction from a 32-bit word. It is a pure
// function: same word in, same record out, no side effects on any register
// file. Unknown encodings return simerror.InvalidInstruction.
func Decode(word uint32, pc uint32) (Instruction, error) {
	if word == 0 {
		return Instruction{Raw: word, PC: pc, Op: OpNop, Family: FamilyALU}, nil
	}

	opcode := (word >> 26) & 0x3F
	rs := uint8((word >> 21) & 0x1F)
	rt := uint8((word >> 16) & 0x1F)
	rd := uint8((word >> 11) & 0x1F)
	shamt := uint8((word >> 6) & 0x1F)
	funct := uint8(word & 0x3F)
	imm16 := word & 0xFFFF

	instr := Instruction{
		Raw: word, PC: pc, RS: rs, RT: rt, RD: rd, Shamt: shamt, Funct: funct,
		ImmSigned: signExtend16(imm16),
		ImmZero:   imm16,
		Target26:  word & 0x03FFFFFF,
	}

	switch opcode {
	case opSpecial:
		return decodeSpecial(instr, rd)
	case opRegimm:
		return decodeRegimm(instr)
	case opJ:
		instr.Op, instr.Family, instr.IsJump = OpJ, FamilyBranch, true
		return instr, nil
	case opJal:
		instr.Op, instr.Family, instr.IsJump = OpJal, FamilyBranch, true
		instr.Writes, instr.Dest = true, RA
		return instr, nil
	case opBeq:
		instr.Op, instr.Family, instr.IsBranch = OpBeq, FamilyBranch, true
		return instr, nil
	case opBne:
		instr.Op, instr.Family, instr.IsBranch = OpBne, FamilyBranch, true
		return instr, nil
	case opBlez:
		instr.Op, instr.Family, instr.IsBranch = OpBlez, FamilyBranch, true
		return instr, nil
	case opBgtz:
		instr.Op, instr.Family, instr.IsBranch = OpBgtz, FamilyBranch, true
		return instr, nil
	case opAddi:
		instr.Op, instr.Family = OpAddi, FamilyALU
		instr.Writes, instr.Dest = true, rt
		return instr, nil
	case opAddiu:
		instr.Op, instr.Family = OpAddiu, FamilyALU
		instr.Writes, instr.Dest = true, rt
		return instr, nil
	case opSlti:
		instr.Op, instr.Family = OpSlti, FamilyALU
		instr.Writes, instr.Dest = true, rt
		return instr, nil
	case opSltiu:
		instr.Op, instr.Family = OpSltiu, FamilyALU
		instr.Writes, instr.Dest = true, rt
		return instr, nil
	case opAndi:
		instr.Op, instr.Family = OpAndi, FamilyALU
		instr.Writes, instr.Dest = true, rt
		return instr, nil
	case opOri:
		instr.Op, instr.Family = OpOri, FamilyALU
		instr.Writes, instr.Dest = true, rt
		return instr, nil
	case opXori:
		instr.Op, instr.Family = OpXori, FamilyALU
		instr.Writes, instr.Dest = true, rt
		return instr, nil
	case opLui:
		instr.Op, instr.Family = OpLui, FamilyALU
		instr.Writes, instr.Dest = true, rt
		return instr, nil
	case opCop1:
		return decodeCop1(instr, rs, rt)
	case opLb:
		return loadInstr(instr, OpLb, rt, 1), nil
	case opLh:
		return loadInstr(instr, OpLh, rt, 2), nil
	case opLw:
		return loadInstr(instr, OpLw, rt, 4), nil
	case opLbu:
		return loadInstr(instr, OpLbu, rt, 1), nil
	case opLhu:
		return loadInstr(instr, OpLhu, rt, 2), nil
	case opSb:
		return storeInstr(instr, OpSb, 1), nil
	case opSh:
		return storeInstr(instr, OpSh, 2), nil
	case opSw:
		return storeInstr(instr, OpSw, 4), nil
	case opLwc1:
		instr.Op, instr.Family, instr.IsFP = OpLwc1, FamilyLoadStore, true
		instr.IsLoad, instr.MemWidth = true, 4
		instr.WritesFP, instr.FPDest = true, rt
		return instr, nil
	case opSwc1:
		instr.Op, instr.Family, instr.IsFP = OpSwc1, FamilyLoadStore, true
		instr.IsStore, instr.MemWidth = true, 4
		return instr, nil
	default:
		return Instruction{}, simerror.InvalidInstruction(word)
	}
}

func loadInstr(instr Instruction, op Op, rt uint8, width int) Instruction {
	instr.Op, instr.Family = op, FamilyLoadStore
	instr.IsLoad, instr.MemWidth = true, width
	instr.Writes, instr.Dest = true, rt
	return instr
}

func storeInstr(instr Instruction, op Op, width int) Instruction {
	instr.Op, instr.Family = op, FamilyLoadStore
	instr.IsStore, instr.MemWidth = true, width
	return instr
}

func decodeSpecial(instr Instruction, rd uint8) (Instruction, error) {
	if instr.Raw == 0 || (instr.RS == 0 && instr.RT == 0 && instr.RD == 0 && instr.Shamt == 0 && instr.Funct == functSll) {
		instr.Op, instr.Family = OpNop, FamilyALU
		return instr, nil
	}
	instr.Family = FamilyALU
	switch instr.Funct {
	case functSll:
		instr.Op = OpSll
	case functSrl:
		instr.Op = OpSrl
	case functSra:
		instr.Op = OpSra
	case functSllv:
		instr.Op = OpSllv
	case functSrlv:
		instr.Op = OpSrlv
	case functSrav:
		instr.Op = OpSrav
	case functJr:
		instr.Op, instr.Family, instr.IsJump = OpJr, FamilyBranch, true
		return instr, nil
	case functJalr:
		instr.Op, instr.Family, instr.IsJump = OpJalr, FamilyBranch, true
		dest := rd
		if dest == 0 {
			dest = RA
		}
		instr.Writes, instr.Dest = true, dest
		return instr, nil
	case functSyscall:
		instr.Op, instr.Family = OpSyscall, FamilySystem
		return instr, nil
	case functBreak:
		instr.Op, instr.Family = OpBreak, FamilySystem
		return instr, nil
	case functMfhi:
		instr.Op, instr.Family = OpMfhi, FamilyMulDiv
		instr.Writes, instr.Dest = true, rd
		return instr, nil
	case functMthi:
		instr.Op, instr.Family = OpMthi, FamilyMulDiv
		return instr, nil
	case functMflo:
		instr.Op, instr.Family = OpMflo, FamilyMulDiv
		instr.Writes, instr.Dest = true, rd
		return instr, nil
	case functMtlo:
		instr.Op, instr.Family = OpMtlo, FamilyMulDiv
		return instr, nil
	case functMult:
		instr.Op, instr.Family = OpMult, FamilyMulDiv
		return instr, nil
	case functMultu:
		instr.Op, instr.Family = OpMultu, FamilyMulDiv
		return instr, nil
	case functDiv:
		instr.Op, instr.Family = OpDiv, FamilyMulDiv
		return instr, nil
	case functDivu:
		instr.Op, instr.Family = OpDivu, FamilyMulDiv
		return instr, nil
	case functAdd:
		instr.Op = OpAdd
	case functAddu:
		instr.Op = OpAddu
	case functSub:
		instr.Op = OpSub
	case functSubu:
		instr.Op = OpSubu
	case functAnd:
		instr.Op = OpAnd
	case functOr:
		instr.Op = OpOr
	case functXor:
		instr.Op = OpXor
	case functNor:
		instr.Op = OpNor
	case functSlt:
		instr.Op = OpSlt
	case functSltu:
		instr.Op = OpSltu
	default:
		return Instruction{}, simerror.InvalidInstruction(instr.Raw)
	}
	instr.Writes, instr.Dest = true, rd
	return instr, nil
}

func decodeRegimm(instr Instruction) (Instruction, error) {
	instr.Family, instr.IsBranch = FamilyBranch, true
	switch instr.RT {
	case 0x00:
		instr.Op = OpBltz
	case 0x01:
		instr.Op = OpBgez
	default:
		return Instruction{}, simerror.InvalidInstruction(instr.Raw)
	}
	return instr, nil
}

func decodeCop1(instr Instruction, rs, rt uint8) (Instruction, error) {
	instr.IsFP = true
	instr.FmtBit = rs
	if rs == 0x08 { // BC1 family: rt selects t/f
		instr.Family, instr.IsBranch = FamilyBranch, true
		if rt&1 == 1 {
			instr.Op = OpBc1t
		} else {
			instr.Op = OpBc1f
		}
		return instr, nil
	}
	funct := instr.Funct
	fd := instr.RD
	switch rs {
	case fmtSingle:
		instr.Family = FamilyFPAdd
		switch funct {
		case fpFunctAdd:
			instr.Op = OpAddS
		case fpFunctSub:
			instr.Op = OpSubS
		case fpFunctMul:
			instr.Op, instr.Family = OpMulS, FamilyFPMul
		case fpFunctDiv:
			instr.Op, instr.Family = OpDivS, FamilyFPMul
		case fpFunctAbs:
			instr.Op = OpAbsS
		case fpFunctMov:
			instr.Op = OpMovS
		case fpFunctNeg:
			instr.Op = OpNegS
		case fpFunctCvtW:
			instr.Op = OpCvtWS
		case fpFunctCEq:
			instr.Op = OpCEqS
		case fpFunctCLt:
			instr.Op = OpCLtS
		case fpFunctCLe:
			instr.Op = OpCLeS
		default:
			return Instruction{}, simerror.InvalidInstruction(instr.Raw)
		}
		if instr.Op != OpCEqS && instr.Op != OpCLtS && instr.Op != OpCLeS {
			instr.WritesFP, instr.FPDest = true, fd
		}
		return instr, nil
	case fmtWord:
		if funct == fpFunctCvtS {
			instr.Op, instr.Family = OpCvtSW, FamilyFPAdd
			instr.WritesFP, instr.FPDest = true, fd
			return instr, nil
		}
		return Instruction{}, simerror.InvalidInstruction(instr.Raw)
	default:
		return Instruction{}, simerror.InvalidInstruction(instr.Raw)
	}
}
