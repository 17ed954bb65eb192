// Package loader reads the flat binary image format of spec §6 into a
// memory.Memory: an 8-byte little-endian header (data_size, text_size)
// followed by that many bytes of initialized data and then instruction
// words. This deliberately does not parse ELF or any assembler-produced
// symbol/relocation metadata — per spec §1 the assembler and a fuller
// ELF loader are named as out-of-scope collaborators; this is the minimal
// loader the external interface in §6 actually specifies.
package loader

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/lookbusy1344/mips-sim/memory"
)

const headerSize = 8

// Image is a parsed binary image ready to place into memory.
type Image struct {
	Data []byte
	Text []byte
}

// Parse reads the header + data + text layout from r.
func Parse(r io.Reader) (Image, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Image{}, fmt.Errorf("loader: reading header: %w", err)
	}
	dataSize := binary.LittleEndian.Uint32(header[0:4])
	textSize := binary.LittleEndian.Uint32(header[4:8])

	data := make([]byte, dataSize)
	if _, err := io.ReadFull(r, data); err != nil {
		return Image{}, fmt.Errorf("loader: reading %d data bytes: %w", dataSize, err)
	}
	text := make([]byte, textSize)
	if _, err := io.ReadFull(r, text); err != nil {
		return Image{}, fmt.Errorf("loader: reading %d text bytes: %w", textSize, err)
	}
	return Image{Data: data, Text: text}, nil
}

// ParseFile opens path and parses it as a binary image.
func ParseFile(path string) (Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return Image{}, fmt.Errorf("loader: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Load places an Image into mem at the standard segment bases (text at
// memory.TextBase, data at memory.DataBase) and marks the text region
// read-only once loading completes, per spec §3. Loading uses the
// bypass-read-only write path since the region isn't locked until after
// this call returns.
func Load(mem *memory.Memory, img Image) error {
	if err := mem.LoadInitBytes(memory.TextBase, img.Text); err != nil {
		return fmt.Errorf("loader: placing text segment: %w", err)
	}
	if err := mem.LoadInitBytes(memory.DataBase, img.Data); err != nil {
		return fmt.Errorf("loader: placing data segment: %w", err)
	}
	mem.MarkReadOnly(memory.TextBase, memory.TextBase+uint32(len(img.Text)))
	return nil
}

// LoadFile is the convenience entry point used by main.go: parse path and
// load it into mem.
func LoadFile(mem *memory.Memory, path string) error {
	img, err := ParseFile(path)
	if err != nil {
		return err
	}
	return Load(mem, img)
}

// Write serializes an Image back to the binary format, used by tests and
// by tooling that assembles a program out-of-process and hands it to this
// simulator.
func Write(w io.Writer, data, text []byte) error {
	var header [headerSize]byte
	binary.LittleEndian.PutUint32(header[0:4], uint32(len(data)))
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(text)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err := w.Write(text)
	return err
}
