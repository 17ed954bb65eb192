package simerror

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFaultIsMatchesByKind(t *testing.T) {
	f := DivisionByZero().WithPC(0x1000)
	assert.True(t, errors.Is(f, DivisionByZero()))
	assert.False(t, errors.Is(f, ArithmeticOverflow()))
}

func TestFaultAsExtractsConcreteType(t *testing.T) {
	var err error = MemoryOutOfBounds(0x7FFFFFFF)
	var fault *Fault
	assert.True(t, errors.As(err, &fault))
	assert.Equal(t, KindMemoryOutOfBounds, fault.Kind)
	assert.Equal(t, uint32(0x7FFFFFFF), fault.Address)
}

func TestBreakpointIsRecoverable(t *testing.T) {
	bp := Breakpoint(0x400000)
	assert.True(t, bp.Recoverable())
	assert.False(t, DivisionByZero().Recoverable())
}

func TestKindStringCoversEveryConstructor(t *testing.T) {
	cases := []*Fault{
		MemoryOutOfBounds(0),
		MemoryMisaligned(0, 4),
		AddressOverflow(0),
		InvalidInstruction(0),
		InvalidBranchTarget(0),
		DivisionByZero(),
		ArithmeticOverflow(),
		InvalidSyscall(99),
		Breakpoint(0),
	}
	for _, f := range cases {
		assert.NotEqual(t, "Unknown", f.Kind.String())
		assert.NotEmpty(t, f.Error())
	}
}
