// Package cache implements the set-associative cache hierarchy of spec
// §4.3: configurable size/associativity/block/replacement/write policy,
// sitting between the pipeline and memory.Memory. Generalized from the
// teacher's layered-store shape in vm/memory_multi.go (one store backed by
// another) into an explicit tagged-line cache with replacement bookkeeping.
package cache

import (
	"github.com/lookbusy1344/mips-sim/memory"
)

// Replacement selects the victim-choice policy on a miss.
type Replacement int

const (
	LRU Replacement = iota
	FIFO
	Random
	LFU
)

// WritePolicy selects how stores interact with the backing store.
type WritePolicy int

const (
	WriteBack WritePolicy = iota
	WriteThrough
)

// Config describes one cache level's geometry and policy.
type Config struct {
	NumSets      int
	Associativity int
	BlockSize     int
	Replacement   Replacement
	Write         WritePolicy
	WriteAllocate bool // only consulted for WriteThrough
	HitLatency    int
	MissPenalty   int
}

// line is one way within a set.
type line struct {
	valid bool
	dirty bool
	tag   uint32
	data  []byte

	// replacement metadata
	lastUse uint64 // LRU
	fillSeq uint64 // FIFO
	freq    uint64 // LFU
}

// Stats holds per-level counters, per spec §4.3/§8 invariant 4.
type Stats struct {
	Accesses   uint64
	Hits       uint64
	Misses     uint64
	WriteBacks uint64
}

// Cache is one level of the hierarchy. Next is the backing store for a
// miss: another Cache (for L1 backed by L2) or nil to fall through to
// Backing (memory.Memory), mirroring a simple linear hierarchy.
type Cache struct {
	cfg     Config
	sets    [][]line
	clock   uint64
	Stats   Stats
	Next    *Cache
	Backing *memory.Memory
}

// New builds a cache of the given geometry backed directly by mem. Wire
// Next afterward (cache.Next = l2) to insert an intermediate level.
func New(cfg Config, backing *memory.Memory) *Cache {
	sets := make([][]line, cfg.NumSets)
	for i := range sets {
		ways := make([]line, cfg.Associativity)
		for w := range ways {
			ways[w].data = make([]byte, cfg.BlockSize)
		}
		sets[i] = ways
	}
	return &Cache{cfg: cfg, sets: sets, Backing: backing}
}

func (c *Cache) indexAndTag(addr uint32) (int, uint32, uint32) {
	blockAddr := addr / uint32(c.cfg.BlockSize)
	index := int(blockAddr) % c.cfg.NumSets
	tag := blockAddr / uint32(c.cfg.NumSets)
	blockBase := blockAddr * uint32(c.cfg.BlockSize)
	return index, tag, blockBase
}

func (c *Cache) lookup(set []line, tag uint32) int {
	for i := range set {
		if set[i].valid && set[i].tag == tag {
			return i
		}
	}
	return -1
}

// victim picks the way to evict per the configured Replacement policy.
// Tie-breaking matches spec §4.3: FIFO updates only on fill, LRU on every
// hit and fill, Random ignores validity when all ways are valid, LFU breaks
// ties by LRU.
func (c *Cache) victim(set []line) int {
	for i := range set {
		if !set[i].valid {
			return i
		}
	}
	switch c.cfg.Replacement {
	case FIFO:
		oldest := 0
		for i := range set {
			if set[i].fillSeq < set[oldest].fillSeq {
				oldest = i
			}
		}
		return oldest
	case Random:
		return int(c.clock % uint64(len(set)))
	case LFU:
		best := 0
		for i := 1; i < len(set); i++ {
			if set[i].freq < set[best].freq ||
				(set[i].freq == set[best].freq && set[i].lastUse < set[best].lastUse) {
				best = i
			}
		}
		return best
	default: // LRU
		oldest := 0
		for i := range set {
			if set[i].lastUse < set[oldest].lastUse {
				oldest = i
			}
		}
		return oldest
	}
}

func (c *Cache) fill(set []line, way int, tag, blockBase uint32) error {
	var data []byte
	var err error
	if c.Next != nil {
		data, err = c.Next.readBlock(blockBase, c.cfg.BlockSize)
	} else {
		data, err = c.Backing.ReadBlock(blockBase, c.cfg.BlockSize)
	}
	if err != nil {
		return err
	}
	copy(set[way].data, data)
	set[way].valid = true
	set[way].dirty = false
	set[way].tag = tag
	c.clock++
	set[way].fillSeq = c.clock
	set[way].lastUse = c.clock
	set[way].freq = 0
	return nil
}

// writeBackLine flushes one dirty line to the backing store/next level.
func (c *Cache) writeBackLine(index int, l *line) error {
	blockBase := (l.tag*uint32(c.cfg.NumSets) + uint32(index)) * uint32(c.cfg.BlockSize)
	c.Stats.WriteBacks++
	if c.Next != nil {
		return c.Next.writeBlock(blockBase, l.data)
	}
	return c.Backing.WriteBlock(blockBase, l.data)
}

func (c *Cache) readBlock(addr uint32, length int) ([]byte, error) {
	// Used when this cache backs a higher level: service length bytes,
	// one byte at a time, via ordinary Read.
	out := make([]byte, length)
	for i := 0; i < length; i++ {
		b, _, err := c.Read(addr+uint32(i), 1)
		if err != nil {
			return nil, err
		}
		out[i] = byte(b)
	}
	return out, nil
}

func (c *Cache) writeBlock(addr uint32, data []byte) error {
	for i, b := range data {
		if _, err := c.Write(addr+uint32(i), uint32(b), 1); err != nil {
			return err
		}
	}
	return nil
}

// Read performs a cached read of width bytes starting at addr, returning
// the value (little-endian assembled) and the cycle cost to charge
// (HitLatency or HitLatency+MissPenalty).
func (c *Cache) Read(addr uint32, width int) (uint32, int, error) {
	index, tag, blockBase := c.indexAndTag(addr)
	set := c.sets[index]
	c.Stats.Accesses++

	way := c.lookup(set, tag)
	cost := c.cfg.HitLatency
	if way < 0 {
		c.Stats.Misses++
		cost += c.cfg.MissPenalty
		way = c.victim(set)
		if set[way].valid && set[way].dirty {
			if err := c.writeBackLine(index, &set[way]); err != nil {
				return 0, cost, err
			}
		}
		if err := c.fill(set, way, tag, blockBase); err != nil {
			return 0, cost, err
		}
	} else {
		c.Stats.Hits++
	}
	c.touch(&set[way])

	offset := addr - blockBase
	var v uint32
	for i := 0; i < width; i++ {
		v |= uint32(set[way].data[int(offset)+i]) << (8 * i)
	}
	return v, cost, nil
}

// Write performs a cached write of width bytes starting at addr under the
// configured write policy.
func (c *Cache) Write(addr uint32, value uint32, width int) (int, error) {
	index, tag, blockBase := c.indexAndTag(addr)
	set := c.sets[index]
	c.Stats.Accesses++

	way := c.lookup(set, tag)
	cost := c.cfg.HitLatency
	hit := way >= 0

	if !hit {
		c.Stats.Misses++
		if c.cfg.Write == WriteThrough && !c.cfg.WriteAllocate {
			// No allocation on a write-through store miss: write straight
			// through without installing a line (spec §4.3, §8 invariant 4).
			return cost + c.cfg.MissPenalty, c.writeThroughOnly(addr, value, width)
		}
		cost += c.cfg.MissPenalty
		way = c.victim(set)
		if set[way].valid && set[way].dirty {
			if err := c.writeBackLine(index, &set[way]); err != nil {
				return cost, err
			}
		}
		if err := c.fill(set, way, tag, blockBase); err != nil {
			return cost, err
		}
	} else {
		c.Stats.Hits++
	}
	c.touch(&set[way])

	offset := addr - blockBase
	for i := 0; i < width; i++ {
		set[way].data[int(offset)+i] = byte(value >> (8 * i))
	}

	if c.cfg.Write == WriteThrough {
		if err := c.writeThroughOnly(addr, value, width); err != nil {
			return cost, err
		}
	} else {
		set[way].dirty = true
	}
	return cost, nil
}

func (c *Cache) writeThroughOnly(addr uint32, value uint32, width int) error {
	buf := make([]byte, width)
	for i := 0; i < width; i++ {
		buf[i] = byte(value >> (8 * i))
	}
	if c.Next != nil {
		return c.Next.writeBlock(addr, buf)
	}
	return c.Backing.WriteBlock(addr, buf)
}

func (c *Cache) touch(l *line) {
	c.clock++
	switch c.cfg.Replacement {
	case LRU:
		l.lastUse = c.clock
	case LFU:
		l.freq++
		l.lastUse = c.clock
	}
}
