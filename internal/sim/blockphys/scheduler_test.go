package blockphys

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"voxelcraft.ai/blockphys/internal/sim/host"
	"voxelcraft.ai/blockphys/internal/sim/orient"
	"voxelcraft.ai/blockphys/internal/sim/physics"
	"voxelcraft.ai/blockphys/internal/sim/tuning"
	"voxelcraft.ai/blockphys/internal/sim/voxelhost"
)

func TestStep_BodySettlesOnGroundAndRetires(t *testing.T) {
	env := newTestEnv(t, nil)
	// Cell (0,65,0) sits directly on the grass surface.
	b, _ := env.s.SpawnBlock(at(0.5, 65.5, 0.5))

	steps := 0
	for ; steps < 20 && contains(env.s.Bodies(), b); steps++ {
		env.step()
	}
	if contains(env.s.Bodies(), b) {
		t.Fatalf("body never settled after %d ticks", steps)
	}
	if steps < 2 {
		t.Fatalf("body retired too early: %d ticks", steps)
	}
	y := b.Rigid().WorldTransform().Origin.Y()
	if math.Abs(y-65.3125) > 0.02 {
		t.Fatalf("rest height: got %v want ~65.3125", y)
	}
	if got := env.audit.count("KILL", ReasonSettled); got != 1 {
		t.Fatalf("settled kills: got %d want 1", got)
	}
	if env.host.ProxyCount() != 0 {
		t.Fatalf("proxy leaked")
	}
}

func TestStep_PoolCoversNeighborhoodOnce(t *testing.T) {
	env := newTestEnv(t, nil)
	env.s.SpawnBlock(at(0.5, 65.5, 0.5))
	env.s.SpawnBlock(at(1.5, 65.5, 0.5))

	env.step()

	// x -2..3, z -2..2, and the four solid layers y 61..64.
	if got := env.s.Pool().Size(); got != 120 {
		t.Fatalf("pool size: got %d want 120", got)
	}
	seen := map[host.Vec3i]bool{}
	for _, c := range env.s.Pool().ActiveCells() {
		if seen[c] {
			t.Fatalf("cell %v mirrored twice", c)
		}
		seen[c] = true
		if !env.host.IsOccluding(c) {
			t.Fatalf("cell %v is not occluding", c)
		}
	}
	if len(seen) != 120 {
		t.Fatalf("active cells: got %d want 120", len(seen))
	}
	if env.s.Pool().Visited(host.Vec3i{X: 0, Y: 64, Z: 0}) {
		t.Fatalf("visited set should be cleared after the tick")
	}
}

func TestStep_PoolSizeNeverShrinks(t *testing.T) {
	env := newTestEnv(t, nil)
	env.s.SpawnBlock(at(0.5, 65.5, 0.5))
	env.s.SpawnBlock(at(8.5, 70.5, 8.5))

	last := 0
	for i := 0; i < 12; i++ {
		if i == 4 {
			env.s.SpawnBlock(at(-6.5, 65.5, 3.5))
		}
		env.step()
		size := env.s.Pool().Size()
		if size < last {
			t.Fatalf("tick %d: pool shrank from %d to %d", i, last, size)
		}
		last = size
		st := env.s.Pool().Stats()
		if st.Active+st.Disabled != st.Size {
			t.Fatalf("tick %d: stats do not add up: %+v", i, st)
		}
	}
	if last == 0 {
		t.Fatalf("pool never grew")
	}
}

func TestStep_InactiveBodyDoesNotBlockOthers(t *testing.T) {
	env := newTestEnv(t, nil)
	sleeping, _ := env.s.SpawnBlock(at(40.5, 65.5, 0.5))
	awake, _ := env.s.SpawnBlock(at(0.5, 65.5, 0.5))
	sleeping.Rigid().ForceActivationState(physics.IslandSleeping)

	env.step()

	if got := env.s.Pool().Size(); got != 100 {
		t.Fatalf("pool size: got %d want 100", got)
	}
	for _, c := range env.s.Pool().ActiveCells() {
		if c.X < -2 || c.X > 2 {
			t.Fatalf("cell %v planted for the sleeping body", c)
		}
	}
	if contains(env.s.Bodies(), sleeping) {
		t.Fatalf("sleeping body should be retired")
	}
	if !contains(env.s.Bodies(), awake) {
		t.Fatalf("awake body should still be simulated")
	}
}

func TestStep_TickLogAndMetrics(t *testing.T) {
	env := newTestEnv(t, nil)
	env.s.SpawnBlock(at(0.5, 65.5, 0.5))
	env.step()

	if len(env.ticks.entries) != 1 {
		t.Fatalf("tick entries: got %d want 1", len(env.ticks.entries))
	}
	e := env.ticks.entries[0]
	if e.Tick != 0 || e.SubSteps != 30 || e.Bodies != 1 || e.Spawned != 1 || e.PoolSize != 100 || e.PoolActive != 100 {
		t.Fatalf("tick entry: %+v", e)
	}
	if math.Abs(e.ElapsedS-0.5) > 1e-9 {
		t.Fatalf("elapsed: got %v want 0.5", e.ElapsedS)
	}
	m := env.s.Metrics()
	if m.Tick != 1 || m.SpawnedTotal != 1 || m.Bodies != 1 || m.SubSteps != 30 || m.PoolSize != 100 {
		t.Fatalf("metrics: %+v", m)
	}
	if !env.s.LastStep().Equal(env.clock.now) {
		t.Fatalf("last step: got %v want %v", env.s.LastStep(), env.clock.now)
	}
}

func TestStep_StallReportsClampedSubSteps(t *testing.T) {
	env := newTestEnv(t, func(tune *tuning.Tuning) { tune.MaxSubSteps = 4 })
	env.clock.Advance(10 * time.Second)
	env.s.StepSimulation()

	e := env.ticks.entries[0]
	if e.SubSteps != 4 || env.s.Metrics().SubSteps != 4 {
		t.Fatalf("sub-steps after stall: log=%d metrics=%d want 4", e.SubSteps, env.s.Metrics().SubSteps)
	}
	if math.Abs(e.ElapsedS-10) > 1e-9 {
		t.Fatalf("elapsed: got %v want 10", e.ElapsedS)
	}
}

type memFrames struct{ frames []Frame }

func (m *memFrames) PublishFrame(f Frame) { m.frames = append(m.frames, f) }

func TestStep_PublishesFrames(t *testing.T) {
	env := newTestEnv(t, nil)
	sink := &memFrames{}
	env.s.SetFrameSink(sink)
	b, _ := env.s.SpawnBlock(at(0.5, 100.5, 0.5))
	env.step()
	env.step()

	if len(sink.frames) != 2 {
		t.Fatalf("frames: got %d want 2", len(sink.frames))
	}
	f := sink.frames[1]
	if f.Tick != 1 || len(f.Bodies) != 1 {
		t.Fatalf("frame: %+v", f)
	}
	if f.Bodies[0].ID != uint64(b.ID()) || f.Bodies[0].Head != "STONE" {
		t.Fatalf("body view: %+v", f.Bodies[0])
	}
	if f.Bodies[0].Velocity[1] >= 0 {
		t.Fatalf("falling body should have negative vy: %+v", f.Bodies[0].Velocity)
	}
}

func TestExplode_ConvertsOccludingBlocks(t *testing.T) {
	env := newTestEnv(t, nil)
	near, _ := env.s.SpawnBlock(at(0.5, 70.5, 0.5))
	far, _ := env.s.SpawnBlock(at(40.5, 70.5, 0.5))

	grassA := host.Vec3i{X: 0, Y: 64, Z: 0}
	grassB := host.Vec3i{X: 1, Y: 64, Z: 0}
	tnt := host.Vec3i{X: 2, Y: 64, Z: 0}
	air := host.Vec3i{X: 3, Y: 66, Z: 0}
	glass := host.Vec3i{X: 4, Y: 65, Z: 0}
	if err := env.host.SetBlock(tnt, "TNT"); err != nil {
		t.Fatalf("set tnt: %v", err)
	}
	if err := env.host.SetBlock(glass, "GLASS"); err != nil {
		t.Fatalf("set glass: %v", err)
	}

	origin := at(0.5, 66.5, 0.5)
	spawned, err := env.s.Explode(origin, 3, []host.Vec3i{grassA, grassB, tnt, air, glass})
	if err != nil {
		t.Fatalf("explode: %v", err)
	}
	if len(spawned) != 2 {
		t.Fatalf("spawned: got %d want 2", len(spawned))
	}
	for _, c := range []host.Vec3i{grassA, grassB, tnt, air, glass} {
		if got := env.host.BlockAt(c); got != "AIR" {
			t.Fatalf("cell %v: got %s want AIR", c, got)
		}
	}
	for i, cell := range []host.Vec3i{grassA, grassB} {
		b := spawned[i]
		if b.HeadItem().ID != "GRASS" {
			t.Fatalf("head: got %+v", b.HeadItem())
		}
		dir := cell.Center().Sub(origin.Pos).Normalize()
		v := b.Velocity()
		if math.Abs(v.Len()-90) > 1e-9 {
			t.Fatalf("block %d speed: got %v want 90", i, v.Len())
		}
		if math.Abs(v.Dot(dir)-90) > 1e-9 {
			t.Fatalf("block %d not flung away from origin: %v", i, v)
		}
	}
	if v := near.Velocity(); !v.ApproxEqualThreshold(mgl64.Vec3{0, 150, 0}, 1e-9) {
		t.Fatalf("near body push: got %v want (0,150,0)", v)
	}
	if v := far.Velocity(); v.Len() != 0 {
		t.Fatalf("far body should not move: %v", v)
	}
	if got := env.audit.count("EXPLODE", ""); got != 1 {
		t.Fatalf("explode audits: got %d", got)
	}
	if got := env.audit.count("CLEAR_BLOCK", ""); got != 5 {
		t.Fatalf("clear audits: got %d want 5", got)
	}
	if got := len(env.s.Bodies()); got != 4 {
		t.Fatalf("bodies: got %d want 4", got)
	}
}

func TestAwayFrom_ZeroDistancePointsUp(t *testing.T) {
	p := mgl64.Vec3{1, 2, 3}
	if got := awayFrom(p, p); got != (mgl64.Vec3{0, 1, 0}) {
		t.Fatalf("got %v want (0,1,0)", got)
	}
}

func TestPlayers_JoinTrackQuit(t *testing.T) {
	env := newTestEnv(t, nil)
	env.host.MovePlayer("alice", at(3.5, 65, 3.5))

	if err := env.s.PlayerJoin("alice"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if got := env.s.Players(); len(got) != 1 || got[0] != "alice" {
		t.Fatalf("players: %v", got)
	}
	env.host.MovePlayer("alice", at(5.5, 65, 2.5))
	env.step()

	p, ok := env.s.Player("alice")
	if !ok {
		t.Fatalf("player proxy missing")
	}
	if got := p.Body().WorldTransform().Origin; !got.ApproxEqualThreshold(mgl64.Vec3{5.5, 65.9, 2.5}, 1e-9) {
		t.Fatalf("player proxy origin: got %v", got)
	}
	if p.Body().ActivationState() != physics.ActiveTag {
		t.Fatalf("player proxy state: %v", p.Body().ActivationState())
	}
	if p.Body().CollisionFlags()&physics.KinematicObject == 0 {
		t.Fatalf("player proxy should be kinematic")
	}

	if err := env.s.PlayerJoin("alice"); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if env.world.NumBodies() != 1 {
		t.Fatalf("duplicate join created a second proxy")
	}

	env.s.PlayerQuit("alice")
	env.s.PlayerQuit("nobody")
	if len(env.s.Players()) != 0 || env.world.NumBodies() != 0 {
		t.Fatalf("quit leaked: players=%v bodies=%d", env.s.Players(), env.world.NumBodies())
	}

	for i := 0; i < 25; i++ {
		if err := env.s.PlayerJoin("alice"); err != nil {
			t.Fatalf("cycle %d join: %v", i, err)
		}
		env.step()
		env.s.PlayerQuit("alice")
	}
	if env.world.NumBodies() != 0 {
		t.Fatalf("join/quit cycles leaked %d bodies", env.world.NumBodies())
	}

	if err := env.s.PlayerJoin("ghost"); !errors.Is(err, ErrUnknownPlayer) {
		t.Fatalf("unknown player: got %v", err)
	}
}

func TestPlayers_BodiesCollideWithProxy(t *testing.T) {
	env := newTestEnv(t, nil)
	// Player standing on the surface; the body falls onto the top of their box.
	env.host.MovePlayer("bob", at(0.5, 65, 0.5))
	if err := env.s.PlayerJoin("bob"); err != nil {
		t.Fatalf("join: %v", err)
	}
	b, _ := env.s.SpawnBlock(at(0.5, 67.5, 0.5))
	env.step()

	// Top of the player box is 65.9+0.9, the body rests half an extent above it.
	if y := b.Rigid().WorldTransform().Origin.Y(); math.Abs(y-(66.8+0.3125)) > 0.02 {
		t.Fatalf("body should rest on the player, y=%v", y)
	}
}

func TestShutdown_ReleasesEverything(t *testing.T) {
	env := newTestEnv(t, nil)
	env.host.MovePlayer("alice", at(3.5, 65, 3.5))
	_ = env.s.PlayerJoin("alice")
	for i := 0; i < 3; i++ {
		env.s.SpawnBlock(at(float64(i)+0.5, 66.5, 0.5))
	}
	env.step()
	if env.s.Pool().Size() == 0 {
		t.Fatalf("expected pool slots before shutdown")
	}

	env.s.Shutdown()
	env.s.Shutdown()

	if len(env.s.Bodies()) != 0 || env.host.ProxyCount() != 0 || env.world.NumBodies() != 0 {
		t.Fatalf("leak: bodies=%d proxies=%d world=%d", len(env.s.Bodies()), env.host.ProxyCount(), env.world.NumBodies())
	}
	if got := env.audit.count("KILL", ReasonShutdown); got != 3 {
		t.Fatalf("shutdown kills: got %d want 3", got)
	}
	if _, err := env.s.SpawnBlock(at(0.5, 70.5, 0.5)); !errors.Is(err, ErrStopped) {
		t.Fatalf("spawn after shutdown: got %v", err)
	}
	if _, err := env.s.Explode(at(0, 65, 0), 1, nil); !errors.Is(err, ErrStopped) {
		t.Fatalf("explode after shutdown: got %v", err)
	}
	tick := env.s.CurrentTick()
	env.step()
	if env.s.CurrentTick() != tick {
		t.Fatalf("stopped scheduler should not tick")
	}
}

// panicHost fails while posing one proxy.
type panicHost struct {
	*voxelhost.Host
	bad host.ProxyID
}

func (h *panicHost) SetHeadPose(id host.ProxyID, pose orient.Euler) bool {
	if id == h.bad {
		panic("pose failure")
	}
	return h.Host.SetHeadPose(id, pose)
}

func TestStep_PanicRetiresOnlyThatBody(t *testing.T) {
	env := newTestEnv(t, nil)
	ph := &panicHost{Host: env.host}
	s, err := New(Config{Tuning: tuning.Defaults(), Host: ph, World: env.world, Clock: env.clock.Now})
	if err != nil {
		t.Fatalf("scheduler: %v", err)
	}
	bad, _ := s.SpawnBlock(at(0.5, 100.5, 0.5))
	good, _ := s.SpawnBlock(at(5.5, 100.5, 0.5))
	ph.bad = bad.Proxy()

	env.clock.Advance(500 * time.Millisecond)
	s.StepSimulation()

	if contains(s.Bodies(), bad) || !bad.Disposed() {
		t.Fatalf("panicking body should be retired")
	}
	if !contains(s.Bodies(), good) {
		t.Fatalf("healthy body should survive")
	}
	if got := s.Metrics().PanicsTotal; got != 1 {
		t.Fatalf("panics: got %d want 1", got)
	}
}

func TestRun_StepsUntilCancelled(t *testing.T) {
	env := newTestEnv(t, func(tu *tuning.Tuning) { tu.TickIntervalMs = 5 })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- env.s.Run(ctx) }()

	var spawnErr error
	if err := env.s.Do(ctx, func() { _, spawnErr = env.s.SpawnBlock(at(0.5, 100.5, 0.5)) }); err != nil {
		t.Fatalf("do: %v", err)
	}
	if spawnErr != nil {
		t.Fatalf("spawn: %v", spawnErr)
	}

	deadline := time.Now().Add(5 * time.Second)
	for env.s.Metrics().Tick < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("scheduler did not tick")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("run: got %v want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not return")
	}
	if env.host.ProxyCount() != 0 {
		t.Fatalf("shutdown should remove proxies")
	}
	if err := env.s.Do(context.Background(), func() {}); !errors.Is(err, ErrStopped) {
		t.Fatalf("do after exit: got %v want ErrStopped", err)
	}
}
