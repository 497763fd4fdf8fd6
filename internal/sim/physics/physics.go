// Package physics describes the rigid-body engine capabilities the block
// simulation consumes. Engines live in subpackages.
package physics

import "github.com/go-gl/mathgl/mgl64"

// ActivationState mirrors the engine-tracked sleep/wake flag. The numeric
// values follow Bullet's collision object constants.
type ActivationState int

const (
	ActiveTag           ActivationState = 1
	IslandSleeping      ActivationState = 2
	WantsDeactivation   ActivationState = 3
	DisableDeactivation ActivationState = 4
	DisableSimulation   ActivationState = 5
)

func (s ActivationState) String() string {
	switch s {
	case ActiveTag:
		return "ACTIVE"
	case IslandSleeping:
		return "SLEEPING"
	case WantsDeactivation:
		return "WANTS_DEACTIVATION"
	case DisableDeactivation:
		return "ALWAYS_ACTIVE"
	case DisableSimulation:
		return "DISABLED"
	default:
		return "UNKNOWN"
	}
}

// CollisionFlags is a bit set of body collision properties.
type CollisionFlags int

const (
	StaticObject    CollisionFlags = 1 << 0
	KinematicObject CollisionFlags = 1 << 1
)

// Transform is a rigid transform: rotation then translation.
type Transform struct {
	Origin   mgl64.Vec3
	Rotation mgl64.Quat
}

// Identity returns the identity transform translated to origin.
func Identity(origin mgl64.Vec3) Transform {
	return Transform{Origin: origin, Rotation: mgl64.QuatIdent()}
}

// BoxShape is an axis-aligned box collision shape, described by its half extents.
type BoxShape struct {
	HalfExtents mgl64.Vec3
}

func NewBoxShape(half mgl64.Vec3) *BoxShape {
	return &BoxShape{HalfExtents: half}
}

// LocalInertia returns the diagonal inertia tensor of a solid box of the given mass.
func (b *BoxShape) LocalInertia(mass float64) mgl64.Vec3 {
	lx := 2 * b.HalfExtents.X()
	ly := 2 * b.HalfExtents.Y()
	lz := 2 * b.HalfExtents.Z()
	return mgl64.Vec3{
		mass / 12 * (ly*ly + lz*lz),
		mass / 12 * (lx*lx + lz*lz),
		mass / 12 * (lx*lx + ly*ly),
	}
}

// BodyInfo carries rigid-body construction parameters. Zero mass makes a
// static or kinematic body.
type BodyInfo struct {
	Mass              float64
	Shape             *BoxShape
	Inertia           mgl64.Vec3
	Transform         Transform
	AdditionalDamping bool
}

// Body is a handle to one rigid body owned by its creator.
type Body interface {
	WorldTransform() Transform
	SetWorldTransform(t Transform)

	LinearVelocity() mgl64.Vec3
	SetLinearVelocity(v mgl64.Vec3)

	ActivationState() ActivationState
	SetActivationState(s ActivationState)
	// ForceActivationState sets s even when the body is disabled.
	ForceActivationState(s ActivationState)
	IsActive() bool

	CollisionFlags() CollisionFlags
	SetCollisionFlags(f CollisionFlags)

	IsDisposed() bool
	// Dispose frees engine resources. The body must already be out of any world.
	Dispose()
}

// World is a discrete dynamics world.
type World interface {
	NewRigidBody(info BodyInfo) Body
	AddRigidBody(b Body)
	RemoveRigidBody(b Body)

	SetGravity(g mgl64.Vec3)
	Gravity() mgl64.Vec3

	// StepSimulation advances by elapsed seconds using at most maxSubSteps
	// fixed sub-steps and returns the number of sub-steps actually
	// integrated, never more than maxSubSteps.
	StepSimulation(elapsed float64, maxSubSteps int) int
}
