package boxworld

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"voxelcraft.ai/blockphys/internal/sim/physics"
)

type Body struct {
	world   *World
	inWorld bool

	mass    float64
	invMass float64
	shape   *physics.BoxShape
	inertia mgl64.Vec3

	xf     physics.Transform
	linVel mgl64.Vec3
	angVel mgl64.Vec3

	state             physics.ActivationState
	flags             physics.CollisionFlags
	deactivationTime  float64
	additionalDamping bool

	disposed bool
}

var _ physics.Body = (*Body)(nil)

func (b *Body) WorldTransform() physics.Transform { return b.xf }

func (b *Body) SetWorldTransform(t physics.Transform) {
	if t.Rotation.Dot(t.Rotation) == 0 {
		t.Rotation = mgl64.QuatIdent()
	}
	b.xf = t
}

func (b *Body) LinearVelocity() mgl64.Vec3 { return b.linVel }

// SetLinearVelocity replaces the velocity. A non-zero velocity wakes a
// sleeping body.
func (b *Body) SetLinearVelocity(v mgl64.Vec3) {
	b.linVel = v
	if b.state == physics.IslandSleeping && v.Dot(v) > 0 {
		b.wake()
	}
}

// AngularVelocity is exposed for tests and tools; the block simulation never spins bodies directly.
func (b *Body) AngularVelocity() mgl64.Vec3 { return b.angVel }

func (b *Body) SetAngularVelocity(v mgl64.Vec3) { b.angVel = v }

func (b *Body) Mass() float64 { return b.mass }

func (b *Body) ActivationState() physics.ActivationState { return b.state }

func (b *Body) SetActivationState(s physics.ActivationState) {
	if b.state == physics.DisableDeactivation || b.state == physics.DisableSimulation {
		return
	}
	b.state = s
}

func (b *Body) ForceActivationState(s physics.ActivationState) { b.state = s }

func (b *Body) IsActive() bool {
	return b.state != physics.IslandSleeping && b.state != physics.DisableSimulation
}

func (b *Body) CollisionFlags() physics.CollisionFlags     { return b.flags }
func (b *Body) SetCollisionFlags(f physics.CollisionFlags) { b.flags = f }

func (b *Body) IsDisposed() bool { return b.disposed }

func (b *Body) Dispose() {
	if b.disposed {
		return
	}
	if b.inWorld {
		b.world.RemoveRigidBody(b)
	}
	b.disposed = true
	b.shape = nil
}

// InWorld reports whether the body is currently part of its world.
func (b *Body) InWorld() bool { return b.inWorld }

func (b *Body) dynamic() bool {
	return b.invMass > 0 && b.flags&(physics.StaticObject|physics.KinematicObject) == 0
}

// simulated bodies are integrated and initiate contacts.
func (b *Body) simulated() bool {
	return b.dynamic() && b.IsActive()
}

// collidable bodies can be hit. Disabled proxies are skipped.
func (b *Body) collidable() bool {
	return b.state != physics.DisableSimulation && b.shape != nil
}

func (b *Body) wake() {
	if b.state == physics.IslandSleeping || b.state == physics.WantsDeactivation {
		b.state = physics.ActiveTag
	}
	b.deactivationTime = 0
}

func (b *Body) applyDamping(factor float64) {
	if !b.additionalDamping {
		return
	}
	if b.linVel.Dot(b.linVel) < additionalLinearThresholdSqr && b.angVel.Dot(b.angVel) < additionalAngularThresholdSqr {
		b.linVel = b.linVel.Mul(factor)
		b.angVel = b.angVel.Mul(factor)
	}
}

func (b *Body) integrate(dt float64) {
	b.xf.Origin = b.xf.Origin.Add(b.linVel.Mul(dt))
	if b.angVel.Dot(b.angVel) > 0 {
		spin := mgl64.Quat{W: 0, V: b.angVel.Mul(0.5 * dt)}
		b.xf.Rotation = b.xf.Rotation.Add(spin.Mul(b.xf.Rotation)).Normalize()
	}
}

func (b *Body) updateDeactivation(dt float64, cfg Config) {
	if b.state == physics.DisableDeactivation || b.state == physics.DisableSimulation || b.state == physics.IslandSleeping {
		return
	}
	lin := cfg.LinearSleepingThreshold
	ang := cfg.AngularSleepingThreshold
	if b.linVel.Dot(b.linVel) < lin*lin && b.angVel.Dot(b.angVel) < ang*ang {
		b.deactivationTime += dt
	} else {
		b.deactivationTime = 0
		b.state = physics.ActiveTag
		return
	}
	if b.deactivationTime >= cfg.DeactivationTime {
		b.state = physics.IslandSleeping
		b.linVel = mgl64.Vec3{}
		b.angVel = mgl64.Vec3{}
	} else if b.deactivationTime > 0 {
		b.state = physics.WantsDeactivation
	}
}

// aabbHalf returns the half extents of the world-space bounding box.
func (b *Body) aabbHalf() mgl64.Vec3 {
	if b.shape == nil {
		return mgl64.Vec3{}
	}
	h := b.shape.HalfExtents
	m := b.xf.Rotation.Normalize().Mat4()
	var out mgl64.Vec3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i] += math.Abs(m.At(i, j)) * h[j]
		}
	}
	return out
}
