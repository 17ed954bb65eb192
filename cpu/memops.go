package cpu

import (
	"github.com/lookbusy1344/mips-sim/memory"
)

// ExecMemory applies a load/store instruction against mem. Effective address
// is base + sign-extended offset, per spec §4.2; alignment and bounds
// checking are enforced inside memory.Memory and surface as typed faults.
func ExecMemory(r *Registers, mem *memory.Memory, in Instruction) error {
	base := r.GetGPR(in.RS)
	addr := base + in.ImmSigned

	switch in.Op {
	case OpLw:
		v, err := mem.ReadWord(addr)
		if err != nil {
			return err
		}
		r.SetGPR(in.Dest, v)
	case OpLh:
		v, err := mem.ReadHalf(addr)
		if err != nil {
			return err
		}
		r.SetGPR(in.Dest, signExtend16(uint32(v)))
	case OpLhu:
		v, err := mem.ReadHalf(addr)
		if err != nil {
			return err
		}
		r.SetGPR(in.Dest, uint32(v))
	case OpLb:
		v, err := mem.ReadByte(addr)
		if err != nil {
			return err
		}
		r.SetGPR(in.Dest, signExtendByte(v))
	case OpLbu:
		v, err := mem.ReadByte(addr)
		if err != nil {
			return err
		}
		r.SetGPR(in.Dest, uint32(v))
	case OpSw:
		return mem.WriteWord(addr, r.GetGPR(in.RT))
	case OpSh:
		return mem.WriteHalf(addr, uint16(r.GetGPR(in.RT)))
	case OpSb:
		return mem.WriteByte(addr, byte(r.GetGPR(in.RT)))
	case OpLwc1:
		v, err := mem.ReadWord(addr)
		if err != nil {
			return err
		}
		r.SetFPRBits(in.FPDest, v)
	case OpSwc1:
		return mem.WriteWord(addr, r.GetFPRBits(in.RT))
	}
	return nil
}

func signExtendByte(v byte) uint32 {
	if v&0x80 != 0 {
		return uint32(v) | 0xFFFFFF00
	}
	return uint32(v)
}

// EffectiveAddress computes the address a load/store will access, without
// performing the access. Used by the in-order pipeline's Memory stage to
// compute the address ahead of the actual cache access.
func EffectiveAddress(r *Registers, in Instruction) uint32 {
	return r.GetGPR(in.RS) + in.ImmSigned
}
