package voxelhost

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"

	"voxelcraft.ai/blockphys/internal/sim/host"
)

const chunkSize = 16

type ChunkKey struct {
	CX int
	CZ int
}

// Chunk is a 16x16 column of blocks Height cells tall.
type Chunk struct {
	CX, CZ int
	Height int
	Blocks []uint16 // len = 16*16*Height

	dirty bool
	hash  [32]byte
}

func (c *Chunk) index(x, y, z int) int {
	// x fastest, then z, then y
	return x + z*chunkSize + y*chunkSize*chunkSize
}

func (c *Chunk) Get(x, y, z int) uint16 {
	return c.Blocks[c.index(x, y, z)]
}

func (c *Chunk) Set(x, y, z int, b uint16) {
	i := c.index(x, y, z)
	if c.Blocks[i] == b {
		return
	}
	c.Blocks[i] = b
	c.dirty = true
}

func (c *Chunk) Digest() [32]byte {
	if c.dirty || c.hash == ([32]byte{}) {
		h := sha256.New()
		var tmp [2]byte
		for _, v := range c.Blocks {
			binary.LittleEndian.PutUint16(tmp[:], v)
			h.Write(tmp[:])
		}
		copy(c.hash[:], h.Sum(nil))
		c.dirty = false
	}
	return c.hash
}

type WorldGen struct {
	Seed        int64
	Height      int
	GroundLevel int
	BoundaryR   int // blocks

	SpawnClearRadius int
	BoulderPermille  int

	// Palette ids.
	Air     uint16
	Floor   uint16
	Filler  uint16
	Surface uint16
	Boulder uint16
}

type ChunkStore struct {
	gen WorldGen
	// Accessed only from the simulation goroutine.
	chunks map[ChunkKey]*Chunk
}

func NewChunkStore(gen WorldGen) *ChunkStore {
	return &ChunkStore{
		gen:    gen,
		chunks: map[ChunkKey]*Chunk{},
	}
}

func (s *ChunkStore) inBounds(pos host.Vec3i) bool {
	if pos.Y < 0 || pos.Y >= s.gen.Height {
		return false
	}
	if s.gen.BoundaryR > 0 {
		if pos.X < -s.gen.BoundaryR || pos.X > s.gen.BoundaryR || pos.Z < -s.gen.BoundaryR || pos.Z > s.gen.BoundaryR {
			return false
		}
	}
	return true
}

func (s *ChunkStore) LoadedChunkKeys() []ChunkKey {
	keys := make([]ChunkKey, 0, len(s.chunks))
	for k := range s.chunks {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CX != keys[j].CX {
			return keys[i].CX < keys[j].CX
		}
		return keys[i].CZ < keys[j].CZ
	})
	return keys
}

func (s *ChunkStore) GetBlock(pos host.Vec3i) uint16 {
	if !s.inBounds(pos) {
		return s.gen.Air
	}
	ch := s.getOrGenChunk(floorDiv(pos.X, chunkSize), floorDiv(pos.Z, chunkSize))
	return ch.Get(mod(pos.X, chunkSize), pos.Y, mod(pos.Z, chunkSize))
}

func (s *ChunkStore) SetBlock(pos host.Vec3i, b uint16) {
	if !s.inBounds(pos) {
		return
	}
	ch := s.getOrGenChunk(floorDiv(pos.X, chunkSize), floorDiv(pos.Z, chunkSize))
	ch.Set(mod(pos.X, chunkSize), pos.Y, mod(pos.Z, chunkSize), b)
}

func (s *ChunkStore) getOrGenChunk(cx, cz int) *Chunk {
	k := ChunkKey{CX: cx, CZ: cz}
	if ch, ok := s.chunks[k]; ok {
		return ch
	}
	ch := &Chunk{
		CX:     cx,
		CZ:     cz,
		Height: s.gen.Height,
		Blocks: make([]uint16, chunkSize*chunkSize*s.gen.Height),
	}
	s.generateChunk(ch)
	ch.dirty = true
	_ = ch.Digest() // initialize digest
	s.chunks[k] = ch
	return ch
}

// generateChunk lays down a flat world: floor at y=0, filler up to the ground
// level, surface on top, plus the occasional boulder outside the spawn clearing.
func (s *ChunkStore) generateChunk(ch *Chunk) {
	top := s.gen.GroundLevel
	if top >= ch.Height {
		top = ch.Height - 1
	}
	for z := 0; z < chunkSize; z++ {
		for x := 0; x < chunkSize; x++ {
			wx := ch.CX*chunkSize + x
			wz := ch.CZ*chunkSize + z
			for y := 0; y <= top; y++ {
				b := s.gen.Filler
				switch y {
				case 0:
					b = s.gen.Floor
				case top:
					b = s.gen.Surface
				}
				ch.Set(x, y, z, b)
			}
			if top+1 < ch.Height && s.gen.BoulderPermille > 0 && !withinSpawnClear(wx, wz, s.gen.SpawnClearRadius) {
				if hash2(s.gen.Seed, wx, wz)%1000 < uint64(s.gen.BoulderPermille) {
					ch.Set(x, top+1, z, s.gen.Boulder)
				}
			}
		}
	}
}

func floorDiv(a, b int) int {
	// b > 0
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

func mod(a, b int) int {
	// b > 0
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

func withinSpawnClear(x, z, radius int) bool {
	if radius <= 0 {
		return false
	}
	r := int64(radius)
	dx := int64(x)
	dz := int64(z)
	return dx*dx+dz*dz <= r*r
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func hash2(seed int64, x, z int) uint64 {
	ux := uint64(uint32(int32(x)))
	uz := uint64(uint32(int32(z)))
	v := uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uz * 0xbf58476d1ce4e5b9)
	return mix64(v)
}
