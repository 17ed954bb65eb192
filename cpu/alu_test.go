package cpu

import (
	"errors"
	"testing"

	"github.com/lookbusy1344/mips-sim/simerror"
	"github.com/stretchr/testify/assert"
)

func TestALUValueAddOverflows(t *testing.T) {
	in := Instruction{Op: OpAdd}
	_, err := ALUValue(in, 0x7FFFFFFF, 1)
	var fault *simerror.Fault
	assert.True(t, errors.As(err, &fault))
	assert.Equal(t, simerror.KindArithmeticOverflow, fault.Kind)
}

func TestALUValueAdduWraps(t *testing.T) {
	in := Instruction{Op: OpAddu}
	v, err := ALUValue(in, 0x7FFFFFFF, 1)
	assert.NoError(t, err)
	assert.Equal(t, uint32(0x80000000), v)
}

func TestALUValueSltSigned(t *testing.T) {
	in := Instruction{Op: OpSlt}
	v, err := ALUValue(in, 0xFFFFFFFF, 1) // -1 < 1
	assert.NoError(t, err)
	assert.Equal(t, uint32(1), v)
}

func TestALUValueSltuUnsigned(t *testing.T) {
	in := Instruction{Op: OpSltu}
	v, err := ALUValue(in, 0xFFFFFFFF, 1) // huge unsigned, not less than 1
	assert.NoError(t, err)
	assert.Equal(t, uint32(0), v)
}

func TestALUValueShifts(t *testing.T) {
	in := Instruction{Op: OpSll, Shamt: 4}
	v, _ := ALUValue(in, 0, 1)
	assert.Equal(t, uint32(16), v)

	in = Instruction{Op: OpSra, Shamt: 1}
	v, _ = ALUValue(in, 0, 0x80000000)
	assert.Equal(t, uint32(0xC0000000), v)
}

func TestALUValueLui(t *testing.T) {
	in := Instruction{Op: OpLui, ImmZero: 0x1234}
	v, _ := ALUValue(in, 0, 0)
	assert.Equal(t, uint32(0x12340000), v)
}

func TestExecALUWritesDest(t *testing.T) {
	r := New(0)
	r.SetGPR(1, 5)
	r.SetGPR(2, 7)
	in := Instruction{Op: OpAdd, RS: 1, RT: 2, Writes: true, Dest: 3}
	assert.NoError(t, ExecALU(r, in))
	assert.Equal(t, uint32(12), r.GetGPR(3))
}

func TestExecALUDestZeroDiscarded(t *testing.T) {
	r := New(0)
	in := Instruction{Op: OpAddi, RS: 0, ImmSigned: 5, Writes: true, Dest: 0}
	assert.NoError(t, ExecALU(r, in))
	assert.Equal(t, uint32(0), r.GetGPR(0))
}

func TestMulDivResultMultSignExtends(t *testing.T) {
	in := Instruction{Op: OpMult}
	hi, lo, err := MulDivResult(in, 0xFFFFFFFF, 2) // -1 * 2 = -2
	assert.NoError(t, err)
	assert.Equal(t, uint32(0xFFFFFFFF), hi)
	assert.Equal(t, uint32(0xFFFFFFFE), lo)
}

func TestMulDivResultDivByZeroFaults(t *testing.T) {
	in := Instruction{Op: OpDiv}
	_, _, err := MulDivResult(in, 10, 0)
	var fault *simerror.Fault
	assert.True(t, errors.As(err, &fault))
	assert.Equal(t, simerror.KindDivisionByZero, fault.Kind)
}

func TestMulDivResultDivuTruncates(t *testing.T) {
	in := Instruction{Op: OpDivu}
	hi, lo, err := MulDivResult(in, 10, 3)
	assert.NoError(t, err)
	assert.Equal(t, uint32(1), hi)
	assert.Equal(t, uint32(3), lo)
}

func TestExecMulDivMoveHiLo(t *testing.T) {
	r := New(0)
	r.HI, r.LO = 11, 22
	assert.NoError(t, ExecMulDiv(r, Instruction{Op: OpMfhi, Writes: true, Dest: 4}))
	assert.Equal(t, uint32(11), r.GetGPR(4))
	assert.NoError(t, ExecMulDiv(r, Instruction{Op: OpMflo, Writes: true, Dest: 5}))
	assert.Equal(t, uint32(22), r.GetGPR(5))

	r.SetGPR(6, 99)
	assert.NoError(t, ExecMulDiv(r, Instruction{Op: OpMthi, RS: 6}))
	assert.Equal(t, uint32(99), r.HI)
}
