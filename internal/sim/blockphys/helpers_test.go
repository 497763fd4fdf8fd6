package blockphys

import (
	"testing"
	"time"

	"voxelcraft.ai/blockphys/internal/sim/catalogs"
	"voxelcraft.ai/blockphys/internal/sim/host"
	"voxelcraft.ai/blockphys/internal/sim/physics/boxworld"
	"voxelcraft.ai/blockphys/internal/sim/tuning"
	"voxelcraft.ai/blockphys/internal/sim/voxelhost"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type memAudit struct{ entries []AuditEntry }

func (m *memAudit) WriteAudit(e AuditEntry) error {
	m.entries = append(m.entries, e)
	return nil
}

func (m *memAudit) count(action, reason string) int {
	n := 0
	for _, e := range m.entries {
		if e.Action == action && (reason == "" || e.Reason == reason) {
			n++
		}
	}
	return n
}

type memTicks struct{ entries []TickLogEntry }

func (m *memTicks) WriteTick(e TickLogEntry) error {
	m.entries = append(m.entries, e)
	return nil
}

type testEnv struct {
	s     *Scheduler
	host  *voxelhost.Host
	world *boxworld.World
	clock *fakeClock
	audit *memAudit
	ticks *memTicks
}

func newTestEnv(t *testing.T, mutate func(*tuning.Tuning)) *testEnv {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	tune := tuning.Defaults()
	if mutate != nil {
		mutate(&tune)
	}
	h, err := voxelhost.New(voxelhost.Config{Name: tune.World.Name, Gen: tune.World}, cats)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	w := boxworld.New(boxworld.DefaultConfig())
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	s, err := New(Config{Tuning: tune, Host: h, World: w, Clock: clock.Now})
	if err != nil {
		t.Fatalf("scheduler: %v", err)
	}
	env := &testEnv{s: s, host: h, world: w, clock: clock, audit: &memAudit{}, ticks: &memTicks{}}
	s.SetAuditLogger(env.audit)
	s.SetTickLogger(env.ticks)
	return env
}

// step advances the clock by one cadence interval and runs a tick.
func (e *testEnv) step() {
	e.clock.Advance(e.s.Tuning().TickInterval())
	e.s.StepSimulation()
}

func at(x, y, z float64) host.Location { return host.At("world", x, y, z) }

func contains(bodies []*Body, b *Body) bool {
	for _, o := range bodies {
		if o == b {
			return true
		}
	}
	return false
}
