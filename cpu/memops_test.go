package cpu

import (
	"testing"

	"github.com/lookbusy1344/mips-sim/memory"
	"github.com/stretchr/testify/assert"
)

func TestExecMemoryLoadWordAndStoreWord(t *testing.T) {
	mem := memory.New(64)
	r := New(0)
	r.SetGPR(1, 0) // base
	r.SetGPR(2, 0xCAFEBABE)

	sw := Instruction{Op: OpSw, RS: 1, RT: 2, ImmSigned: 8}
	assert.NoError(t, ExecMemory(r, mem, sw))

	lw := Instruction{Op: OpLw, RS: 1, ImmSigned: 8, Writes: true, Dest: 3}
	assert.NoError(t, ExecMemory(r, mem, lw))
	assert.Equal(t, uint32(0xCAFEBABE), r.GetGPR(3))
}

func TestExecMemoryLoadByteSignExtends(t *testing.T) {
	mem := memory.New(16)
	assert.NoError(t, mem.WriteByte(4, 0xFF))
	r := New(0)

	lb := Instruction{Op: OpLb, RS: 0, ImmSigned: 4, Writes: true, Dest: 1}
	assert.NoError(t, ExecMemory(r, mem, lb))
	assert.Equal(t, uint32(0xFFFFFFFF), r.GetGPR(1))

	lbu := Instruction{Op: OpLbu, RS: 0, ImmSigned: 4, Writes: true, Dest: 2}
	assert.NoError(t, ExecMemory(r, mem, lbu))
	assert.Equal(t, uint32(0xFF), r.GetGPR(2))
}

func TestExecMemoryLoadHalfSignExtends(t *testing.T) {
	mem := memory.New(16)
	assert.NoError(t, mem.WriteHalf(8, 0x8001))
	r := New(0)

	lh := Instruction{Op: OpLh, RS: 0, ImmSigned: 8, Writes: true, Dest: 1}
	assert.NoError(t, ExecMemory(r, mem, lh))
	assert.Equal(t, uint32(0xFFFF8001), r.GetGPR(1))
}

func TestExecMemoryFloatLoadStore(t *testing.T) {
	mem := memory.New(16)
	r := New(0)
	r.SetFPRBits(1, 0x3F800000) // 1.0f

	swc1 := Instruction{Op: OpSwc1, RS: 0, RT: 1, ImmSigned: 0}
	assert.NoError(t, ExecMemory(r, mem, swc1))

	lwc1 := Instruction{Op: OpLwc1, RS: 0, ImmSigned: 0, WritesFP: true, FPDest: 2}
	assert.NoError(t, ExecMemory(r, mem, lwc1))
	assert.Equal(t, uint32(0x3F800000), r.GetFPRBits(2))
}

func TestEffectiveAddressComputesBasePlusOffset(t *testing.T) {
	r := New(0)
	r.SetGPR(1, 0x1000)
	in := Instruction{RS: 1, ImmSigned: 0xFFFFFFFC} // -4
	assert.Equal(t, uint32(0x0FFC), EffectiveAddress(r, in))
}

func TestExecMemoryPropagatesFault(t *testing.T) {
	mem := memory.New(8)
	r := New(0)
	lw := Instruction{Op: OpLw, RS: 0, ImmSigned: 0x100, Writes: true, Dest: 1}
	assert.Error(t, ExecMemory(r, mem, lw))
}
