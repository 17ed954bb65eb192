// Package memory implements the byte-addressable store shared by the
// functional and timing cores: a flat little-endian array with aligned
// word/half/byte access, a read-only text region, and a small MMIO hook
// table (address range to read/write callbacks). The environment calls in
// cpu/syscall.go do their I/O through cpu.Env, not through these hooks.
package memory

import (
	"github.com/lookbusy1344/mips-sim/simerror"
)

// Standard segment bases, per spec §6.
const (
	TextBase  = 0x00000000
	DataBase  = 0x10000000
	StackTop  = 0x7FFFFFFC
	StackBase = 0x7F000000 // lowest address reserved for the stack's growth
)

// Memory is a single flat byte array plus a read-only watermark over the
// text region. Unlike the teacher's segment list (vm.Memory), the spec
// models one contiguous address space, so segments collapse to a single
// backing slice with a read-only range instead of named regions with
// independent permission bits.
type Memory struct {
	Bytes        []byte
	readOnlyFrom uint32
	readOnlyTo   uint32
	readOnly     bool

	hooks []mmioHook

	Accesses   uint64
	Reads      uint64
	Writes     uint64
}

type mmioHook struct {
	start, end uint32 // [start, end)
	read       func(addr uint32) (byte, bool)
	write      func(addr uint32, v byte) bool
}

// New allocates a zeroed memory of the given size in bytes.
func New(size uint32) *Memory {
	return &Memory{Bytes: make([]byte, size)}
}

// Size returns the configured memory size in bytes.
func (m *Memory) Size() uint32 {
	return uint32(len(m.Bytes))
}

// AddMMIOHook registers read/write callbacks for the half-open address range
// [start, end). Either callback may be nil if that direction isn't hooked.
func (m *Memory) AddMMIOHook(start, end uint32, read func(uint32) (byte, bool), write func(uint32, byte) bool) {
	m.hooks = append(m.hooks, mmioHook{start: start, end: end, read: read, write: write})
}

func (m *Memory) hookFor(addr uint32) *mmioHook {
	for i := range m.hooks {
		h := &m.hooks[i]
		if addr >= h.start && addr < h.end {
			return h
		}
	}
	return nil
}

// MarkReadOnly freezes [from, to) against ordinary writes; LoadInit* still
// bypasses it, matching the "initialization writes bypass this flag"
// invariant of spec §3.
func (m *Memory) MarkReadOnly(from, to uint32) {
	m.readOnlyFrom, m.readOnlyTo, m.readOnly = from, to, true
}

func (m *Memory) inReadOnlyRange(addr uint32) bool {
	return m.readOnly && addr >= m.readOnlyFrom && addr < m.readOnlyTo
}

func checkAlign(addr uint32, width int) *simerror.Fault {
	var mask uint32
	switch width {
	case 4:
		mask = 0x3
	case 2:
		mask = 0x1
	case 1:
		return nil
	}
	if addr&mask != 0 {
		return simerror.MemoryMisaligned(addr, width)
	}
	return nil
}

func (m *Memory) checkBounds(addr uint32, width int) *simerror.Fault {
	if uint64(addr)+uint64(width) > uint64(len(m.Bytes)) {
		return simerror.MemoryOutOfBounds(addr)
	}
	return nil
}

// ReadByte reads one byte, honoring MMIO hooks.
func (m *Memory) ReadByte(addr uint32) (byte, error) {
	if h := m.hookFor(addr); h != nil && h.read != nil {
		if v, ok := h.read(addr); ok {
			m.Accesses++
			m.Reads++
			return v, nil
		}
	}
	if err := m.checkBounds(addr, 1); err != nil {
		return 0, err
	}
	m.Accesses++
	m.Reads++
	return m.Bytes[addr], nil
}

// WriteByte writes one byte, respecting the read-only watermark and MMIO
// hooks.
func (m *Memory) WriteByte(addr uint32, v byte) error {
	if h := m.hookFor(addr); h != nil && h.write != nil {
		if h.write(addr, v) {
			m.Accesses++
			m.Writes++
			return nil
		}
	}
	if err := m.checkBounds(addr, 1); err != nil {
		return err
	}
	if m.inReadOnlyRange(addr) {
		return simerror.MemoryOutOfBounds(addr)
	}
	m.Accesses++
	m.Writes++
	m.Bytes[addr] = v
	return nil
}

// ReadHalf reads a 2-byte little-endian halfword, requiring 2-byte alignment.
func (m *Memory) ReadHalf(addr uint32) (uint16, error) {
	if err := checkAlign(addr, 2); err != nil {
		return 0, err
	}
	if err := m.checkBounds(addr, 2); err != nil {
		return 0, err
	}
	m.Accesses++
	m.Reads++
	return uint16(m.Bytes[addr]) | uint16(m.Bytes[addr+1])<<8, nil
}

// WriteHalf writes a 2-byte little-endian halfword.
func (m *Memory) WriteHalf(addr uint32, v uint16) error {
	if err := checkAlign(addr, 2); err != nil {
		return err
	}
	if err := m.checkBounds(addr, 2); err != nil {
		return err
	}
	if m.inReadOnlyRange(addr) {
		return simerror.MemoryOutOfBounds(addr)
	}
	m.Accesses++
	m.Writes++
	m.Bytes[addr] = byte(v)
	m.Bytes[addr+1] = byte(v >> 8)
	return nil
}

// ReadWord reads a 4-byte little-endian word, requiring 4-byte alignment.
func (m *Memory) ReadWord(addr uint32) (uint32, error) {
	if err := checkAlign(addr, 4); err != nil {
		return 0, err
	}
	if err := m.checkBounds(addr, 4); err != nil {
		return 0, err
	}
	m.Accesses++
	m.Reads++
	return uint32(m.Bytes[addr]) | uint32(m.Bytes[addr+1])<<8 |
		uint32(m.Bytes[addr+2])<<16 | uint32(m.Bytes[addr+3])<<24, nil
}

// WriteWord writes a 4-byte little-endian word.
func (m *Memory) WriteWord(addr uint32, v uint32) error {
	if err := checkAlign(addr, 4); err != nil {
		return err
	}
	if err := m.checkBounds(addr, 4); err != nil {
		return err
	}
	if m.inReadOnlyRange(addr) {
		return simerror.MemoryOutOfBounds(addr)
	}
	m.Accesses++
	m.Writes++
	m.Bytes[addr] = byte(v)
	m.Bytes[addr+1] = byte(v >> 8)
	m.Bytes[addr+2] = byte(v >> 16)
	m.Bytes[addr+3] = byte(v >> 24)
	return nil
}

// LoadInitWord writes a word bypassing the read-only watermark, for use by
// the loader populating the text/data segments.
func (m *Memory) LoadInitWord(addr uint32, v uint32) error {
	if err := m.checkBounds(addr, 4); err != nil {
		return err
	}
	m.Bytes[addr] = byte(v)
	m.Bytes[addr+1] = byte(v >> 8)
	m.Bytes[addr+2] = byte(v >> 16)
	m.Bytes[addr+3] = byte(v >> 24)
	return nil
}

// LoadInitBytes copies data into memory starting at addr, bypassing the
// read-only watermark.
func (m *Memory) LoadInitBytes(addr uint32, data []byte) error {
	if err := m.checkBounds(addr, len(data)); err != nil {
		return err
	}
	copy(m.Bytes[addr:], data)
	return nil
}

// ReadBlock copies length bytes starting at addr, used by the cache to fill
// a line from backing memory.
func (m *Memory) ReadBlock(addr uint32, length int) ([]byte, error) {
	if err := m.checkBounds(addr, length); err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, m.Bytes[addr:addr+uint32(length)])
	return out, nil
}

// WriteBlock writes length bytes starting at addr, used by the cache to
// write back a dirty line.
func (m *Memory) WriteBlock(addr uint32, data []byte) error {
	if err := m.checkBounds(addr, len(data)); err != nil {
		return err
	}
	copy(m.Bytes[addr:], data)
	return nil
}

// Reset zeroes memory and clears counters and the read-only watermark.
func (m *Memory) Reset() {
	for i := range m.Bytes {
		m.Bytes[i] = 0
	}
	m.Accesses, m.Reads, m.Writes = 0, 0, 0
	m.readOnly = false
}
