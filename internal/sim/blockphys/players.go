package blockphys

import (
	"sort"

	"github.com/go-gl/mathgl/mgl64"

	"voxelcraft.ai/blockphys/internal/sim/host"
	"voxelcraft.ai/blockphys/internal/sim/physics"
)

// PlayerProxy is a kinematic box that follows one connected player so
// dynamic bodies collide with them.
type PlayerProxy struct {
	id   string
	body physics.Body
}

func (p *PlayerProxy) ID() string         { return p.id }
func (p *PlayerProxy) Body() physics.Body { return p.body }

type playerTable struct {
	world  physics.World
	shape  *physics.BoxShape
	anchor float64

	byID map[string]*PlayerProxy
}

func newPlayerTable(world physics.World, half [3]float64, anchor float64) *playerTable {
	return &playerTable{
		world:  world,
		shape:  physics.NewBoxShape(mgl64.Vec3{half[0], half[1], half[2]}),
		anchor: anchor,
		byID:   map[string]*PlayerProxy{},
	}
}

func (t *playerTable) transformFor(loc host.Location) physics.Transform {
	return physics.Identity(loc.Pos.Add(mgl64.Vec3{0, t.anchor, 0}))
}

// join creates the proxy for playerID, or repositions it when one exists.
func (t *playerTable) join(playerID string, loc host.Location) *PlayerProxy {
	if p, ok := t.byID[playerID]; ok {
		p.body.SetWorldTransform(t.transformFor(loc))
		return p
	}
	body := t.world.NewRigidBody(physics.BodyInfo{
		Mass:      0,
		Shape:     t.shape,
		Transform: t.transformFor(loc),
	})
	body.SetCollisionFlags(body.CollisionFlags() | physics.KinematicObject)
	t.world.AddRigidBody(body)
	p := &PlayerProxy{id: playerID, body: body}
	t.byID[playerID] = p
	return p
}

func (t *playerTable) quit(playerID string) bool {
	p, ok := t.byID[playerID]
	if !ok {
		return false
	}
	t.world.RemoveRigidBody(p.body)
	p.body.Dispose()
	delete(t.byID, playerID)
	return true
}

// reposition moves every proxy to its player's location. Players the host no
// longer knows keep their last position until they quit.
func (t *playerTable) reposition(players host.Players) {
	for id, p := range t.byID {
		loc, ok := players.PlayerLocation(id)
		if ok {
			p.body.SetWorldTransform(t.transformFor(loc))
		}
		p.body.ForceActivationState(physics.ActiveTag)
	}
}

func (t *playerTable) ids() []string {
	out := make([]string, 0, len(t.byID))
	for id := range t.byID {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (t *playerTable) views() []PlayerView {
	out := make([]PlayerView, 0, len(t.byID))
	for _, id := range t.ids() {
		out = append(out, PlayerView{ID: id, Pos: t.byID[id].body.WorldTransform().Origin})
	}
	return out
}
