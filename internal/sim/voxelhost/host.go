// Package voxelhost is an in-memory voxel world that satisfies host.Host.
// It is not safe for concurrent use; the simulation goroutine owns it.
package voxelhost

import (
	"fmt"
	"sort"

	"voxelcraft.ai/blockphys/internal/sim/catalogs"
	"voxelcraft.ai/blockphys/internal/sim/host"
	"voxelcraft.ai/blockphys/internal/sim/orient"
	"voxelcraft.ai/blockphys/internal/sim/tuning"
)

type Config struct {
	Name string
	Gen  tuning.WorldGen
}

type Host struct {
	name     string
	catalogs *catalogs.Catalogs
	chunks   *ChunkStore

	nextProxy host.ProxyID
	proxies   map[host.ProxyID]*Proxy
	players   map[string]host.Location
}

var _ host.Host = (*Host)(nil)

// Proxy is a visual stand-in entity.
type Proxy struct {
	ID   host.ProxyID
	Loc  host.Location
	Head host.Item
	Pose orient.Euler

	// Gravity and visibility are always off; the physics transform drives the pose.
	Gravity bool
	Visible bool

	Teleports int
}

func New(cfg Config, cats *catalogs.Catalogs) (*Host, error) {
	if cats == nil {
		return nil, fmt.Errorf("voxelhost: nil catalogs")
	}
	palette := cats.Blocks.Index
	lookup := func(id string) (uint16, error) {
		v, ok := palette[id]
		if !ok {
			return 0, fmt.Errorf("voxelhost: unknown block %q", id)
		}
		return v, nil
	}
	gen := WorldGen{
		Seed:             cfg.Gen.Seed,
		Height:           cfg.Gen.Height,
		GroundLevel:      cfg.Gen.GroundLevel,
		BoundaryR:        cfg.Gen.BoundaryR,
		SpawnClearRadius: cfg.Gen.SpawnClearRadius,
		BoulderPermille:  cfg.Gen.BoulderPermille,
	}
	var err error
	if gen.Floor, err = lookup(cfg.Gen.Floor); err != nil {
		return nil, err
	}
	if gen.Filler, err = lookup(cfg.Gen.Filler); err != nil {
		return nil, err
	}
	if gen.Surface, err = lookup(cfg.Gen.Surface); err != nil {
		return nil, err
	}
	if gen.Boulder, err = lookup(cfg.Gen.Boulder); err != nil {
		return nil, err
	}
	if gen.Height <= 0 {
		return nil, fmt.Errorf("voxelhost: height must be positive")
	}
	name := cfg.Name
	if name == "" {
		name = "world"
	}
	return &Host{
		name:     name,
		catalogs: cats,
		chunks:   NewChunkStore(gen),
		proxies:  map[host.ProxyID]*Proxy{},
		players:  map[string]host.Location{},
	}, nil
}

func (h *Host) Name() string { return h.name }

func (h *Host) LoadedChunks() int { return len(h.chunks.chunks) }

func (h *Host) blockDef(pos host.Vec3i) catalogs.BlockDef {
	id := h.chunks.GetBlock(pos)
	pal := h.catalogs.Blocks.Palette
	if int(id) >= len(pal) {
		return catalogs.BlockDef{ID: "AIR"}
	}
	return h.catalogs.Blocks.Defs[pal[id]]
}

func (h *Host) BlockAt(pos host.Vec3i) string { return h.blockDef(pos).ID }

func (h *Host) IsOccluding(pos host.Vec3i) bool { return h.blockDef(pos).Occluding }

func (h *Host) SetEmpty(pos host.Vec3i) { h.chunks.SetBlock(pos, h.chunks.gen.Air) }

// SetBlock places a catalog block; unknown ids are rejected.
func (h *Host) SetBlock(pos host.Vec3i, block string) error {
	id, ok := h.catalogs.Blocks.Index[block]
	if !ok {
		return fmt.Errorf("voxelhost: unknown block %q", block)
	}
	h.chunks.SetBlock(pos, id)
	return nil
}

func (h *Host) BlockState(pos host.Vec3i) host.BlockState {
	return host.BlockState{Pos: pos, Block: h.BlockAt(pos)}
}

func (h *Host) Drops(state host.BlockState) []host.Item {
	def, ok := h.catalogs.Blocks.Defs[state.Block]
	if !ok || len(def.Drops) == 0 {
		return nil
	}
	out := make([]host.Item, 0, len(def.Drops))
	for _, d := range def.Drops {
		out = append(out, host.Item{ID: d.Item, Count: d.Count})
	}
	return out
}

func (h *Host) ItemFor(block string) host.Item {
	def, ok := h.catalogs.Blocks.Defs[block]
	if !ok {
		return host.Item{ID: block, Count: 1}
	}
	return host.Item{ID: def.ItemID(), Count: 1}
}

func (h *Host) SpawnProxy(loc host.Location, head host.Item) host.ProxyID {
	h.nextProxy++
	id := h.nextProxy
	if loc.World == "" {
		loc.World = h.name
	}
	h.proxies[id] = &Proxy{ID: id, Loc: loc, Head: head}
	return id
}

func (h *Host) ProxyAlive(id host.ProxyID) bool {
	_, ok := h.proxies[id]
	return ok
}

func (h *Host) ProxyLocation(id host.ProxyID) (host.Location, bool) {
	p, ok := h.proxies[id]
	if !ok {
		return host.Location{}, false
	}
	return p.Loc, true
}

func (h *Host) TeleportProxy(id host.ProxyID, loc host.Location) bool {
	p, ok := h.proxies[id]
	if !ok {
		return false
	}
	if loc.World == "" {
		loc.World = p.Loc.World
	}
	p.Loc = loc
	p.Teleports++
	return true
}

func (h *Host) SetHeadPose(id host.ProxyID, pose orient.Euler) bool {
	p, ok := h.proxies[id]
	if !ok {
		return false
	}
	p.Pose = pose
	return true
}

func (h *Host) SetHeadItem(id host.ProxyID, head host.Item) bool {
	p, ok := h.proxies[id]
	if !ok {
		return false
	}
	p.Head = head
	return true
}

func (h *Host) RemoveProxy(id host.ProxyID) { delete(h.proxies, id) }

// Proxy returns a copy of the proxy state.
func (h *Host) Proxy(id host.ProxyID) (Proxy, bool) {
	p, ok := h.proxies[id]
	if !ok {
		return Proxy{}, false
	}
	return *p, true
}

func (h *Host) ProxyCount() int { return len(h.proxies) }

// ProxyIDs returns live proxy ids in ascending order.
func (h *Host) ProxyIDs() []host.ProxyID {
	ids := make([]host.ProxyID, 0, len(h.proxies))
	for id := range h.proxies {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (h *Host) PlayerLocation(playerID string) (host.Location, bool) {
	loc, ok := h.players[playerID]
	return loc, ok
}

// MovePlayer records a player's position; it also registers unknown players.
func (h *Host) MovePlayer(playerID string, loc host.Location) {
	if loc.World == "" {
		loc.World = h.name
	}
	h.players[playerID] = loc
}

func (h *Host) RemovePlayer(playerID string) { delete(h.players, playerID) }
