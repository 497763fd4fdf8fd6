package blockphys

import (
	"github.com/go-gl/mathgl/mgl64"

	"voxelcraft.ai/blockphys/internal/sim/host"
	"voxelcraft.ai/blockphys/internal/sim/physics"
)

type SlotState uint8

const (
	SlotActive SlotState = iota + 1
	SlotDisabled
	SlotReleased
)

func (s SlotState) String() string {
	switch s {
	case SlotActive:
		return "ACTIVE"
	case SlotDisabled:
		return "DISABLED"
	case SlotReleased:
		return "RELEASED"
	default:
		return "UNKNOWN"
	}
}

type poolSlot struct {
	body  physics.Body
	cell  host.Vec3i
	state SlotState
}

// SlotView is a read-only copy of one pool slot.
type SlotView struct {
	Cell  host.Vec3i `json:"cell"`
	State SlotState  `json:"state"`
}

// ProxyPool mirrors occluding terrain cells near dynamic bodies as static
// collision boxes. Slots are reused in insertion order and never freed
// while the scheduler runs, so the pool only grows.
type ProxyPool struct {
	world physics.World
	shape *physics.BoxShape

	slots []*poolSlot
	// offset counts slots consumed in the current tick.
	offset  int
	visited map[host.Vec3i]struct{}
}

func newProxyPool(world physics.World, halfExtent float64) *ProxyPool {
	return &ProxyPool{
		world:   world,
		shape:   physics.NewBoxShape(mgl64.Vec3{halfExtent, halfExtent, halfExtent}),
		visited: map[host.Vec3i]struct{}{},
	}
}

func (p *ProxyPool) begin() { p.offset = 0 }

// visit marks cell and reports whether it was unvisited this tick.
func (p *ProxyPool) visit(cell host.Vec3i) bool {
	if _, ok := p.visited[cell]; ok {
		return false
	}
	p.visited[cell] = struct{}{}
	return true
}

// plant places a static box on cell, recycling the next unused slot when
// one exists.
func (p *ProxyPool) plant(cell host.Vec3i) {
	xf := physics.Identity(cell.Center())
	if p.offset < len(p.slots) {
		s := p.slots[p.offset]
		s.body.SetWorldTransform(xf)
		// Re-adding refreshes the broadphase entry.
		p.world.RemoveRigidBody(s.body)
		p.world.AddRigidBody(s.body)
		s.body.ForceActivationState(physics.DisableDeactivation)
		s.cell = cell
		s.state = SlotActive
		p.offset++
		return
	}

	body := p.world.NewRigidBody(physics.BodyInfo{
		Mass:      0,
		Shape:     p.shape,
		Transform: xf,
	})
	body.ForceActivationState(physics.DisableDeactivation)
	body.SetCollisionFlags(body.CollisionFlags() | physics.StaticObject)
	p.world.AddRigidBody(body)
	p.slots = append(p.slots, &poolSlot{body: body, cell: cell, state: SlotActive})
	p.offset = len(p.slots)
}

// finish takes every slot not consumed this tick out of the simulation.
func (p *ProxyPool) finish() {
	for _, s := range p.slots[p.offset:] {
		if s.state == SlotReleased {
			continue
		}
		s.body.ForceActivationState(physics.DisableSimulation)
		s.state = SlotDisabled
	}
}

func (p *ProxyPool) clearVisited() {
	for k := range p.visited {
		delete(p.visited, k)
	}
}

// release disposes every slot. The pool is unusable afterwards.
func (p *ProxyPool) release() {
	for _, s := range p.slots {
		if s.state == SlotReleased {
			continue
		}
		p.world.RemoveRigidBody(s.body)
		s.body.Dispose()
		s.state = SlotReleased
	}
	p.offset = len(p.slots)
}

func (p *ProxyPool) Size() int { return len(p.slots) }

func (p *ProxyPool) Stats() PoolStats {
	st := PoolStats{Size: len(p.slots)}
	for _, s := range p.slots {
		switch s.state {
		case SlotActive:
			st.Active++
		case SlotDisabled:
			st.Disabled++
		}
	}
	return st
}

// Slots returns a copy of every slot in insertion order.
func (p *ProxyPool) Slots() []SlotView {
	out := make([]SlotView, 0, len(p.slots))
	for _, s := range p.slots {
		out = append(out, SlotView{Cell: s.cell, State: s.state})
	}
	return out
}

// ActiveCells returns the cells currently mirrored by active slots.
func (p *ProxyPool) ActiveCells() []host.Vec3i {
	var out []host.Vec3i
	for _, s := range p.slots {
		if s.state == SlotActive {
			out = append(out, s.cell)
		}
	}
	return out
}

// Visited reports whether cell was examined during the tick in progress.
func (p *ProxyPool) Visited(cell host.Vec3i) bool {
	_, ok := p.visited[cell]
	return ok
}
