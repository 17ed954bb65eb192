package cpu

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func bits(f float32) uint32 { return math.Float32bits(f) }

func TestFPValueArithmetic(t *testing.T) {
	result, _ := FPValue(Instruction{Op: OpAddS}, bits(1.5), bits(2.5), false)
	assert.Equal(t, bits(4.0), result)

	result, _ = FPValue(Instruction{Op: OpSubS}, bits(5.0), bits(2.0), false)
	assert.Equal(t, bits(3.0), result)

	result, _ = FPValue(Instruction{Op: OpMulS}, bits(2.0), bits(3.0), false)
	assert.Equal(t, bits(6.0), result)

	result, _ = FPValue(Instruction{Op: OpDivS}, bits(6.0), bits(3.0), false)
	assert.Equal(t, bits(2.0), result)
}

func TestFPValueAbsAndNeg(t *testing.T) {
	result, _ := FPValue(Instruction{Op: OpAbsS}, bits(-4.0), 0, false)
	assert.Equal(t, bits(4.0), result)

	result, _ = FPValue(Instruction{Op: OpNegS}, bits(4.0), 0, false)
	assert.Equal(t, bits(-4.0), result)
}

func TestFPValueCompares(t *testing.T) {
	_, fcc := FPValue(Instruction{Op: OpCEqS}, bits(1.0), bits(1.0), false)
	assert.True(t, fcc)

	_, fcc = FPValue(Instruction{Op: OpCLtS}, bits(1.0), bits(2.0), false)
	assert.True(t, fcc)

	_, fcc = FPValue(Instruction{Op: OpCLeS}, bits(2.0), bits(2.0), false)
	assert.True(t, fcc)
}

func TestFPValueConversions(t *testing.T) {
	result, _ := FPValue(Instruction{Op: OpCvtSW}, uint32(int32(7)), 0, false)
	assert.Equal(t, bits(7.0), result)

	result, _ = FPValue(Instruction{Op: OpCvtWS}, bits(7.9), 0, false)
	assert.Equal(t, uint32(7), result)
}

func TestExecFPWritesDestForArithmetic(t *testing.T) {
	r := New(0)
	r.SetFPRBits(1, bits(2.0))
	r.SetFPRBits(2, bits(3.0))
	in := Instruction{Op: OpAddS, RS: 1, RT: 2, WritesFP: true, FPDest: 3}
	assert.NoError(t, ExecFP(r, in))
	assert.Equal(t, float32(5.0), r.GetFPR(3))
}

func TestExecFPCompareSetsFCCNotDest(t *testing.T) {
	r := New(0)
	r.SetFPRBits(1, bits(1.0))
	r.SetFPRBits(2, bits(2.0))
	in := Instruction{Op: OpCLtS, RS: 1, RT: 2}
	assert.NoError(t, ExecFP(r, in))
	assert.True(t, r.FCC)
}
