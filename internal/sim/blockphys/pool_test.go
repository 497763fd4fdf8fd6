package blockphys

import (
	"testing"

	"voxelcraft.ai/blockphys/internal/sim/host"
	"voxelcraft.ai/blockphys/internal/sim/physics"
	"voxelcraft.ai/blockphys/internal/sim/physics/boxworld"
)

func plantAll(p *ProxyPool, cells ...host.Vec3i) {
	p.begin()
	for _, c := range cells {
		if p.visit(c) {
			p.plant(c)
		}
	}
	p.finish()
	p.clearVisited()
}

func TestProxyPool_RecyclesInInsertionOrder(t *testing.T) {
	w := boxworld.New(boxworld.DefaultConfig())
	p := newProxyPool(w, 0.5)

	a := host.Vec3i{X: 0, Y: 64, Z: 0}
	b := host.Vec3i{X: 1, Y: 64, Z: 0}
	c := host.Vec3i{X: 2, Y: 64, Z: 0}
	d := host.Vec3i{X: 9, Y: 60, Z: -4}

	plantAll(p, a, b, c, a)
	if p.Size() != 3 || w.NumBodies() != 3 {
		t.Fatalf("tick 1: size=%d world=%d want 3", p.Size(), w.NumBodies())
	}
	first := p.slots[0].body
	if first.CollisionFlags()&physics.StaticObject == 0 {
		t.Fatalf("pool bodies should be static")
	}

	plantAll(p, d)
	if p.Size() != 3 {
		t.Fatalf("tick 2: size=%d want 3", p.Size())
	}
	if p.slots[0].body != first || p.slots[0].cell != d {
		t.Fatalf("tick 2: slot 0 should be recycled for %v, got %v", d, p.slots[0].cell)
	}
	if got := first.WorldTransform().Origin; got != d.Center() {
		t.Fatalf("tick 2: recycled origin got %v want %v", got, d.Center())
	}
	if first.ActivationState() != physics.DisableDeactivation || !w.Contains(first) {
		t.Fatalf("tick 2: recycled slot state=%v in world=%v", first.ActivationState(), w.Contains(first))
	}
	for _, s := range p.slots[1:] {
		if s.state != SlotDisabled || s.body.ActivationState() != physics.DisableSimulation {
			t.Fatalf("tick 2: unused slot state=%v body=%v", s.state, s.body.ActivationState())
		}
	}
	if st := p.Stats(); st.Active != 1 || st.Disabled != 2 {
		t.Fatalf("tick 2: stats %+v", st)
	}

	plantAll(p, a, b, c, d)
	if p.Size() != 4 || w.NumBodies() != 4 {
		t.Fatalf("tick 3: size=%d world=%d want 4", p.Size(), w.NumBodies())
	}
	for i, s := range p.slots {
		if s.state != SlotActive || s.body.ActivationState() != physics.DisableDeactivation {
			t.Fatalf("tick 3: slot %d state=%v body=%v", i, s.state, s.body.ActivationState())
		}
	}
}

func TestProxyPool_VisitedIsPerTick(t *testing.T) {
	w := boxworld.New(boxworld.DefaultConfig())
	p := newProxyPool(w, 0.5)
	cell := host.Vec3i{X: 3, Y: 3, Z: 3}

	p.begin()
	if !p.visit(cell) || p.visit(cell) {
		t.Fatalf("second visit in one tick should be rejected")
	}
	if !p.Visited(cell) {
		t.Fatalf("cell should be marked")
	}
	p.finish()
	p.clearVisited()
	if p.Visited(cell) || !p.visit(cell) {
		t.Fatalf("visited set should reset between ticks")
	}
}

func TestProxyPool_Release(t *testing.T) {
	w := boxworld.New(boxworld.DefaultConfig())
	p := newProxyPool(w, 0.5)
	plantAll(p, host.Vec3i{}, host.Vec3i{X: 1})
	plantAll(p, host.Vec3i{})

	p.release()
	if w.NumBodies() != 0 {
		t.Fatalf("release left %d bodies in the world", w.NumBodies())
	}
	for _, s := range p.slots {
		if !s.body.IsDisposed() || s.state != SlotReleased {
			t.Fatalf("slot not released: %+v", s)
		}
	}
	if st := p.Stats(); st.Size != 2 || st.Active != 0 || st.Disabled != 0 {
		t.Fatalf("stats after release: %+v", st)
	}
}

func TestProxyPool_SlotsView(t *testing.T) {
	w := boxworld.New(boxworld.DefaultConfig())
	p := newProxyPool(w, 0.5)

	a := host.Vec3i{X: 0, Y: 64, Z: 0}
	b := host.Vec3i{X: 0, Y: 63, Z: 0}
	plantAll(p, a, b)
	plantAll(p, a)

	slots := p.Slots()
	if len(slots) != 2 {
		t.Fatalf("slots: got %d want 2", len(slots))
	}
	if slots[0] != (SlotView{Cell: a, State: SlotActive}) {
		t.Fatalf("slot 0: %+v", slots[0])
	}
	if slots[1].Cell != b || slots[1].State != SlotDisabled {
		t.Fatalf("slot 1: %+v", slots[1])
	}
	if slots[1].State.String() != "DISABLED" {
		t.Fatalf("state string: %q", slots[1].State.String())
	}
}
