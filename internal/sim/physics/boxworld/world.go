// Package boxworld is an in-process discrete dynamics world for box-shaped
// bodies. It implements physics.World with fixed sub-stepping, AABB contact
// resolution and Bullet-style deactivation.
package boxworld

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"voxelcraft.ai/blockphys/internal/sim/physics"
)

type Config struct {
	FixedTimeStep float64 // seconds per sub-step

	LinearSleepingThreshold  float64
	AngularSleepingThreshold float64
	DeactivationTime         float64 // seconds below thresholds before sleeping

	Friction          float64
	SolverIterations  int
	AdditionalDamping float64 // factor applied to near-still bodies that opted in
}

func DefaultConfig() Config {
	return Config{
		FixedTimeStep:            1.0 / 60.0,
		LinearSleepingThreshold:  0.8,
		AngularSleepingThreshold: 1.0,
		DeactivationTime:         2.0,
		Friction:                 0.5,
		SolverIterations:         4,
		AdditionalDamping:        0.005,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.FixedTimeStep <= 0 {
		c.FixedTimeStep = d.FixedTimeStep
	}
	if c.LinearSleepingThreshold <= 0 {
		c.LinearSleepingThreshold = d.LinearSleepingThreshold
	}
	if c.AngularSleepingThreshold <= 0 {
		c.AngularSleepingThreshold = d.AngularSleepingThreshold
	}
	if c.DeactivationTime <= 0 {
		c.DeactivationTime = d.DeactivationTime
	}
	if c.Friction < 0 {
		c.Friction = 0
	}
	if c.SolverIterations <= 0 {
		c.SolverIterations = d.SolverIterations
	}
	if c.AdditionalDamping <= 0 || c.AdditionalDamping > 1 {
		c.AdditionalDamping = d.AdditionalDamping
	}
}

// additional damping only kicks in below these squared speeds.
const (
	additionalLinearThresholdSqr  = 0.01
	additionalAngularThresholdSqr = 0.01
)

type World struct {
	cfg     Config
	gravity mgl64.Vec3

	// Insertion order; removal preserves order so stepping is deterministic.
	bodies    []*Body
	localTime float64
}

var _ physics.World = (*World)(nil)

func New(cfg Config) *World {
	cfg.applyDefaults()
	return &World{
		cfg:     cfg,
		gravity: mgl64.Vec3{0, -10, 0},
	}
}

func (w *World) SetGravity(g mgl64.Vec3) { w.gravity = g }
func (w *World) Gravity() mgl64.Vec3     { return w.gravity }

// NumBodies returns how many bodies are currently in the world.
func (w *World) NumBodies() int { return len(w.bodies) }

// Contains reports whether b is currently in the world.
func (w *World) Contains(b physics.Body) bool {
	bb, ok := b.(*Body)
	return ok && bb.world == w && bb.inWorld
}

func (w *World) NewRigidBody(info physics.BodyInfo) physics.Body {
	shape := info.Shape
	if shape == nil {
		shape = physics.NewBoxShape(mgl64.Vec3{0.5, 0.5, 0.5})
	}
	rot := info.Transform.Rotation
	if rot.Dot(rot) == 0 {
		rot = mgl64.QuatIdent()
	}
	b := &Body{
		world:             w,
		mass:              info.Mass,
		shape:             shape,
		inertia:           info.Inertia,
		xf:                physics.Transform{Origin: info.Transform.Origin, Rotation: rot},
		state:             physics.ActiveTag,
		additionalDamping: info.AdditionalDamping,
	}
	if info.Mass > 0 {
		b.invMass = 1 / info.Mass
	} else {
		b.flags |= physics.StaticObject
	}
	return b
}

func (w *World) AddRigidBody(pb physics.Body) {
	b, ok := pb.(*Body)
	if !ok || b.world != w || b.disposed || b.inWorld {
		return
	}
	b.inWorld = true
	w.bodies = append(w.bodies, b)
}

func (w *World) RemoveRigidBody(pb physics.Body) {
	b, ok := pb.(*Body)
	if !ok || b.world != w || !b.inWorld {
		return
	}
	for i, o := range w.bodies {
		if o == b {
			w.bodies = append(w.bodies[:i], w.bodies[i+1:]...)
			break
		}
	}
	b.inWorld = false
}

func (w *World) StepSimulation(elapsed float64, maxSubSteps int) int {
	if math.IsNaN(elapsed) || math.IsInf(elapsed, 0) || elapsed < 0 {
		elapsed = 0
	}
	fixed := w.cfg.FixedTimeStep
	steps := 0
	if maxSubSteps > 0 {
		w.localTime += elapsed
		if w.localTime >= fixed {
			// Tolerate rounding so that exactly N*fixed yields N steps.
			steps = int(math.Floor(w.localTime/fixed + 1e-9))
			w.localTime -= float64(steps) * fixed
			if w.localTime < 0 {
				w.localTime = 0
			}
		}
		// Time owed beyond maxSubSteps is dropped, not carried over.
		if steps > maxSubSteps {
			steps = maxSubSteps
		}
		for i := 0; i < steps; i++ {
			w.singleStep(fixed)
		}
		return steps
	}
	// Variable step.
	if elapsed > 0 {
		w.singleStep(elapsed)
		steps = 1
	}
	return steps
}

func (w *World) singleStep(dt float64) {
	for _, b := range w.bodies {
		if !b.simulated() {
			continue
		}
		b.linVel = b.linVel.Add(w.gravity.Mul(dt))
		b.applyDamping(w.cfg.AdditionalDamping)
		b.integrate(dt)
	}

	for iter := 0; iter < w.cfg.SolverIterations; iter++ {
		for i, a := range w.bodies {
			if !a.simulated() {
				continue
			}
			for j, o := range w.bodies {
				if i == j || !o.collidable() {
					continue
				}
				if o.dynamic() && j < i && o.simulated() {
					// Pair already resolved from the other side.
					continue
				}
				w.resolve(a, o)
			}
		}
	}

	for _, b := range w.bodies {
		if b.dynamic() {
			b.updateDeactivation(dt, w.cfg)
		}
	}
}

// resolve pushes dynamic body a out of o and removes the approaching velocity
// component along the contact normal.
func (w *World) resolve(a, o *Body) {
	ea := a.aabbHalf()
	eo := o.aabbHalf()
	d := a.xf.Origin.Sub(o.xf.Origin)

	var overlap [3]float64
	for k := 0; k < 3; k++ {
		overlap[k] = ea[k] + eo[k] - math.Abs(d[k])
		if overlap[k] <= 0 {
			return
		}
	}
	axis := 0
	for k := 1; k < 3; k++ {
		if overlap[k] < overlap[axis] {
			axis = k
		}
	}
	var n mgl64.Vec3
	if d[axis] < 0 {
		n[axis] = -1
	} else {
		n[axis] = 1
	}
	pen := overlap[axis]

	invA := a.invMass
	invO := 0.0
	if o.dynamic() {
		invO = o.invMass
		if o.state == physics.IslandSleeping {
			o.wake()
		}
	}
	total := invA + invO
	if total == 0 {
		return
	}
	a.xf.Origin = a.xf.Origin.Add(n.Mul(pen * invA / total))
	if invO > 0 {
		o.xf.Origin = o.xf.Origin.Sub(n.Mul(pen * invO / total))
	}

	rel := a.linVel.Sub(o.linVel)
	vn := rel.Dot(n)
	if vn >= 0 {
		return
	}
	jn := -vn / total
	a.linVel = a.linVel.Add(n.Mul(jn * invA))
	if invO > 0 {
		o.linVel = o.linVel.Sub(n.Mul(jn * invO))
	}

	// Coulomb friction on the tangential component.
	rel = a.linVel.Sub(o.linVel)
	tangent := rel.Sub(n.Mul(rel.Dot(n)))
	vt := tangent.Len()
	if vt < 1e-9 {
		return
	}
	jt := math.Min(vt/total, w.cfg.Friction*jn)
	dir := tangent.Mul(1 / vt)
	a.linVel = a.linVel.Sub(dir.Mul(jt * invA))
	if invO > 0 {
		o.linVel = o.linVel.Add(dir.Mul(jt * invO))
	}
	a.angVel = a.angVel.Mul(1 - math.Min(1, w.cfg.Friction*0.1))
}
