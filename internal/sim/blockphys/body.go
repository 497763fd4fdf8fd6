package blockphys

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"voxelcraft.ai/blockphys/internal/sim/host"
	"voxelcraft.ai/blockphys/internal/sim/orient"
	"voxelcraft.ai/blockphys/internal/sim/physics"
)

type BodyID uint64

// Body couples one dynamic rigid body to one visual proxy in the host world.
// It is owned by the scheduler and must only be touched from its goroutine.
type Body struct {
	id    BodyID
	s     *Scheduler
	rigid physics.Body
	proxy host.ProxyID

	// loc is the proxy anchor derived from the last transform read-back.
	loc   host.Location
	pose  orient.Euler
	head  host.Item
	drops []host.Item
	// life is carried but never counted down.
	life float64

	doomed string
}

func newBody(s *Scheduler, loc host.Location, head host.Item, drops []host.Item) *Body {
	if loc.World == "" {
		loc.World = s.worldName
	}
	anchor := loc.Add(mgl64.Vec3{0, -s.tune.ProxyAnchorOffset, 0})
	proxy := s.host.SpawnProxy(anchor, head)

	rigid := s.world.NewRigidBody(physics.BodyInfo{
		Mass:              s.tune.BodyMass,
		Shape:             s.bodyShape,
		Inertia:           s.bodyInertia,
		Transform:         physics.Identity(loc.Pos),
		AdditionalDamping: true,
	})
	s.world.AddRigidBody(rigid)

	s.nextBodyID++
	return &Body{
		id:    s.nextBodyID,
		s:     s,
		rigid: rigid,
		proxy: proxy,
		loc:   anchor,
		head:  head,
		drops: drops,
		life:  s.tune.BodyLife,
	}
}

func (b *Body) ID() BodyID              { return b.id }
func (b *Body) Proxy() host.ProxyID     { return b.proxy }
func (b *Body) Rigid() physics.Body     { return b.rigid }
func (b *Body) Location() host.Location { return b.loc }
func (b *Body) Pose() orient.Euler      { return b.pose }
func (b *Body) HeadItem() host.Item     { return b.head }
func (b *Body) Life() float64           { return b.life }
func (b *Body) SetLife(life float64)    { b.life = life }
func (b *Body) Disposed() bool          { return b.rigid.IsDisposed() }

// Drops returns what the body would release when destroyed. Nothing spawns them.
func (b *Body) Drops() []host.Item {
	return append([]host.Item(nil), b.drops...)
}

func (b *Body) SetDrops(drops []host.Item) { b.drops = drops }

func (b *Body) SetHeadItem(head host.Item) {
	b.head = head
	b.s.host.SetHeadItem(b.proxy, head)
}

func (b *Body) Velocity() mgl64.Vec3 {
	if b.rigid.IsDisposed() {
		return mgl64.Vec3{}
	}
	return b.rigid.LinearVelocity()
}

// SetVelocity replaces the linear velocity of the rigid body.
func (b *Body) SetVelocity(v mgl64.Vec3) {
	if b.rigid.IsDisposed() {
		return
	}
	b.rigid.SetLinearVelocity(v)
}

// ApplyForce is an instantaneous velocity change, not a continuous force.
func (b *Body) ApplyForce(v mgl64.Vec3) { b.SetVelocity(v) }

// SetLocation moves the rigid body so that its proxy anchor lands on loc.
func (b *Body) SetLocation(loc host.Location) error {
	if !b.s.tune.AllowRelocate {
		return ErrRelocateDisabled
	}
	if loc.World == "" {
		loc.World = b.loc.World
	}
	if loc.World != b.loc.World {
		return ErrCrossWorld
	}
	if b.rigid.IsDisposed() {
		return nil
	}
	b.loc = loc
	b.rigid.SetWorldTransform(physics.Identity(loc.Pos.Add(mgl64.Vec3{0, b.s.tune.ProxyAnchorOffset, 0})))
	return nil
}

// tick pushes the rigid transform onto the proxy. Bodies that left the
// vertical bounds or lost their proxy are marked doomed.
func (b *Body) tick() {
	t := b.s.tune
	xf := b.rigid.WorldTransform()
	b.pose = orient.QuatToEuler(xf.Rotation)
	alive := b.s.host.SetHeadPose(b.proxy, b.pose)

	o := xf.Origin
	loc := host.Location{
		World: b.loc.World,
		Pos:   mgl64.Vec3{o.X(), o.Y() - t.ProxyAnchorOffset + t.VerticalCorrection, o.Z()},
	}
	b.loc = loc.Add(pivotCompensation(b.pose, t.BodyHalfExtent))

	y := b.loc.Pos.Y()
	switch {
	case y < t.MinY || y > t.MaxY:
		b.s.host.RemoveProxy(b.proxy)
		b.doomed = ReasonOutOfBounds
	case !alive:
		b.doomed = ReasonProxyGone
	default:
		b.s.host.TeleportProxy(b.proxy, b.loc)
	}
}

// pivotCompensation keeps the rendered head centered on a rotated box.
func pivotCompensation(pose orient.Euler, half float64) mgl64.Vec3 {
	return mgl64.Vec3{
		-math.Sin(pose.Pitch) * half / 2,
		-math.Cos(pose.Pitch)*half/2 - math.Cos(pose.Roll)*half/2,
		-math.Sin(pose.Roll) * half / 2,
	}
}

// kill removes the proxy and disposes the rigid body. It reports whether
// anything was released; a second call is a no-op.
func (b *Body) kill(reason string) bool {
	if b.rigid.IsDisposed() {
		return false
	}
	b.s.host.RemoveProxy(b.proxy)
	b.s.world.RemoveRigidBody(b.rigid)
	b.rigid.Dispose()
	b.s.audit(AuditEntry{
		Action: "KILL",
		Body:   uint64(b.id),
		World:  b.loc.World,
		Pos:    b.loc.Pos,
		Reason: reason,
	})
	return true
}

// Kill retires the body immediately and reports whether it was still alive.
// It is removed from the active set on the next tick.
func (b *Body) Kill() bool { return b.kill(ReasonAdmin) }

func (b *Body) view() BodyView {
	v := b.Velocity()
	state := "DISPOSED"
	if !b.rigid.IsDisposed() {
		state = b.rigid.ActivationState().String()
	}
	return BodyView{
		ID:       uint64(b.id),
		World:    b.loc.World,
		Pos:      b.loc.Pos,
		Pose:     b.pose,
		Velocity: v,
		State:    state,
		Head:     b.head.ID,
	}
}
