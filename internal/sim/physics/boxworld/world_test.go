package boxworld

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"voxelcraft.ai/blockphys/internal/sim/physics"
)

func newGroundWorld(t *testing.T) (*World, physics.Body) {
	t.Helper()
	w := New(DefaultConfig())
	ground := w.NewRigidBody(physics.BodyInfo{
		Shape:     physics.NewBoxShape(mgl64.Vec3{0.5, 0.5, 0.5}),
		Transform: physics.Identity(mgl64.Vec3{0.5, 64.5, 0.5}),
	})
	w.AddRigidBody(ground)
	return w, ground
}

func newBox(w *World, at mgl64.Vec3) physics.Body {
	shape := physics.NewBoxShape(mgl64.Vec3{0.3125, 0.3125, 0.3125})
	b := w.NewRigidBody(physics.BodyInfo{
		Mass:              30,
		Shape:             shape,
		Inertia:           shape.LocalInertia(30),
		Transform:         physics.Identity(at),
		AdditionalDamping: true,
	})
	w.AddRigidBody(b)
	return b
}

func TestStepSimulation_FreeFall(t *testing.T) {
	w := New(DefaultConfig())
	b := newBox(w, mgl64.Vec3{0, 100, 0})

	steps := w.StepSimulation(1.0, 100)
	if steps != 60 {
		t.Fatalf("sub-steps: got %d want 60", steps)
	}
	v := b.LinearVelocity()
	if math.Abs(v.Y()+10) > 1e-6 {
		t.Fatalf("velocity after 1s: got %v want -10", v.Y())
	}
	y := b.WorldTransform().Origin.Y()
	if y > 95.1 || y < 94.8 {
		t.Fatalf("height after 1s: got %v want ~95", y)
	}
}

func TestStepSimulation_ClampsSubSteps(t *testing.T) {
	w := New(DefaultConfig())
	b := newBox(w, mgl64.Vec3{0, 100, 0})

	steps := w.StepSimulation(1.0, 6)
	if steps != 6 {
		t.Fatalf("reported sub-steps: got %d want 6", steps)
	}
	if got, want := b.LinearVelocity().Y(), -10.0*6/60; math.Abs(got-want) > 1e-9 {
		t.Fatalf("velocity: got %v want %v", got, want)
	}
	// The dropped backlog does not leak into the next step.
	if got := w.StepSimulation(0, 6); got != 0 {
		t.Fatalf("after clamp: got %d want 0", got)
	}
}

func TestStepSimulation_AccumulatesRemainder(t *testing.T) {
	w := New(DefaultConfig())
	if got := w.StepSimulation(0.01, 100); got != 0 {
		t.Fatalf("first partial step: got %d want 0", got)
	}
	if got := w.StepSimulation(0.01, 100); got != 1 {
		t.Fatalf("second partial step: got %d want 1", got)
	}
	if got := w.StepSimulation(-5, 100); got != 0 {
		t.Fatalf("negative elapsed: got %d want 0", got)
	}
}

func TestStepSimulation_RestsOnStaticAndSleeps(t *testing.T) {
	w, _ := newGroundWorld(t)
	b := newBox(w, mgl64.Vec3{0.5, 67, 0.5})

	for i := 0; i < 10 && b.IsActive(); i++ {
		w.StepSimulation(0.5, 100)
	}
	if b.IsActive() {
		t.Fatalf("expected body to fall asleep, state=%v", b.ActivationState())
	}
	y := b.WorldTransform().Origin.Y()
	if math.Abs(y-65.3125) > 0.05 {
		t.Fatalf("resting height: got %v want ~65.3125", y)
	}
	if b.ActivationState() != physics.IslandSleeping {
		t.Fatalf("state: got %v want %v", b.ActivationState(), physics.IslandSleeping)
	}
}

func TestStepSimulation_DisabledStaticIsIgnored(t *testing.T) {
	w, ground := newGroundWorld(t)
	ground.ForceActivationState(physics.DisableSimulation)
	b := newBox(w, mgl64.Vec3{0.5, 66, 0.5})

	w.StepSimulation(1.0, 100)
	if y := b.WorldTransform().Origin.Y(); y > 64 {
		t.Fatalf("body should have fallen through disabled proxy, y=%v", y)
	}
}

func TestSetActivationState_RespectsDisabledStates(t *testing.T) {
	w := New(DefaultConfig())
	b := newBox(w, mgl64.Vec3{})

	b.ForceActivationState(physics.DisableSimulation)
	b.SetActivationState(physics.ActiveTag)
	if b.ActivationState() != physics.DisableSimulation {
		t.Fatalf("plain set should not leave DisableSimulation, got %v", b.ActivationState())
	}
	b.ForceActivationState(physics.DisableDeactivation)
	if !b.IsActive() {
		t.Fatalf("always-active body reported inactive")
	}
}

func TestDispose_Idempotent(t *testing.T) {
	w := New(DefaultConfig())
	b := newBox(w, mgl64.Vec3{})

	w.RemoveRigidBody(b)
	b.Dispose()
	b.Dispose()
	if !b.IsDisposed() {
		t.Fatalf("expected disposed")
	}
	if w.NumBodies() != 0 {
		t.Fatalf("bodies: got %d want 0", w.NumBodies())
	}
	w.AddRigidBody(b)
	if w.NumBodies() != 0 {
		t.Fatalf("disposed body re-added")
	}
}

func TestAddRigidBody_NoDuplicates(t *testing.T) {
	w := New(DefaultConfig())
	b := newBox(w, mgl64.Vec3{})
	w.AddRigidBody(b)
	w.RemoveRigidBody(b)
	w.AddRigidBody(b)
	if w.NumBodies() != 1 || !w.Contains(b) || !b.(*Body).InWorld() {
		t.Fatalf("bodies: got %d want 1", w.NumBodies())
	}
	w.RemoveRigidBody(b)
	if b.(*Body).InWorld() || w.Contains(b) {
		t.Fatalf("removed body still in world")
	}
}

func TestStepSimulation_DynamicPairSeparates(t *testing.T) {
	w := New(DefaultConfig())
	w.SetGravity(mgl64.Vec3{})
	a := newBox(w, mgl64.Vec3{0, 0, 0})
	b := newBox(w, mgl64.Vec3{0.5, 0, 0})

	w.StepSimulation(1.0/60.0, 1)
	dx := b.WorldTransform().Origin.X() - a.WorldTransform().Origin.X()
	if dx < 0.625-1e-9 {
		t.Fatalf("boxes still overlap: dx=%v", dx)
	}
}
