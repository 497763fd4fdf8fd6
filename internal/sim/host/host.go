// Package host declares what the block simulation needs from the surrounding
// voxel world: terrain queries, visual proxy entities and player positions.
package host

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"voxelcraft.ai/blockphys/internal/sim/orient"
)

type Vec3i struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

func (v Vec3i) Add(o Vec3i) Vec3i { return Vec3i{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z} }

func (v Vec3i) String() string { return fmt.Sprintf("(%d,%d,%d)", v.X, v.Y, v.Z) }

// Center returns the world-space center of the cell.
func (v Vec3i) Center() mgl64.Vec3 {
	return mgl64.Vec3{float64(v.X) + 0.5, float64(v.Y) + 0.5, float64(v.Z) + 0.5}
}

// Location is a point in a named world.
type Location struct {
	World string     `json:"world"`
	Pos   mgl64.Vec3 `json:"pos"`
}

func At(world string, x, y, z float64) Location {
	return Location{World: world, Pos: mgl64.Vec3{x, y, z}}
}

// Cell returns the integer cell containing the location.
func (l Location) Cell() Vec3i {
	return Vec3i{
		X: int(math.Floor(l.Pos.X())),
		Y: int(math.Floor(l.Pos.Y())),
		Z: int(math.Floor(l.Pos.Z())),
	}
}

func (l Location) Add(d mgl64.Vec3) Location {
	return Location{World: l.World, Pos: l.Pos.Add(d)}
}

func (l Location) DistanceSquared(o Location) float64 {
	d := l.Pos.Sub(o.Pos)
	return d.Dot(d)
}

// Item is an opaque item-like payload (head rendering, drops).
type Item struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
}

// BlockState is a snapshot of one cell before it was changed.
type BlockState struct {
	Pos   Vec3i  `json:"pos"`
	Block string `json:"block"`
}

// ProxyID names a visual proxy entity in the host world.
type ProxyID uint64

type Terrain interface {
	BlockAt(pos Vec3i) string
	// IsOccluding reports whether the cell is solid enough to block sight and movement.
	IsOccluding(pos Vec3i) bool
	SetEmpty(pos Vec3i)
	BlockState(pos Vec3i) BlockState
	// Drops returns what breaking a block of this state would release.
	Drops(state BlockState) []Item
	// ItemFor returns the item representation of a block material.
	ItemFor(block string) Item
}

// Entities manages visual proxies. Lookups on removed proxies fail.
type Entities interface {
	SpawnProxy(loc Location, head Item) ProxyID
	ProxyAlive(id ProxyID) bool
	ProxyLocation(id ProxyID) (Location, bool)
	TeleportProxy(id ProxyID, loc Location) bool
	SetHeadPose(id ProxyID, pose orient.Euler) bool
	SetHeadItem(id ProxyID, head Item) bool
	RemoveProxy(id ProxyID)
}

type Players interface {
	PlayerLocation(playerID string) (Location, bool)
}

type Host interface {
	Terrain
	Entities
	Players
}
