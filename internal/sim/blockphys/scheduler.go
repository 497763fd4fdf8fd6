// Package blockphys turns detached blocks into simulated rigid bodies and
// keeps the physics world in step with the voxel terrain around them.
package blockphys

import (
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"voxelcraft.ai/blockphys/internal/sim/host"
	"voxelcraft.ai/blockphys/internal/sim/physics"
	"voxelcraft.ai/blockphys/internal/sim/tuning"
)

type Config struct {
	Tuning tuning.Tuning
	Host   host.Host
	World  physics.World

	// Clock defaults to time.Now.
	Clock  func() time.Time
	Logger *log.Logger
}

// Scheduler owns the physics world, the collision proxy pool, the player
// proxies and every dynamic body. All of it is mutated from a single
// goroutine: either the caller of StepSimulation or the Run loop.
type Scheduler struct {
	tune      tuning.Tuning
	host      host.Host
	world     physics.World
	worldName string
	clock     func() time.Time
	logger    *log.Logger

	bodyShape   *physics.BoxShape
	bodyInertia mgl64.Vec3

	bodies     []*Body
	nextBodyID BodyID
	pool       *ProxyPool
	players    *playerTable

	tick     uint64
	lastStep time.Time
	stopped  bool

	spawnedThisTick int
	spawnedTotal    uint64
	retiredTotal    uint64
	panicsTotal     uint64

	tickLogger  TickLogger
	auditLogger AuditLogger
	frameSink   FrameSink

	reqs chan loopReq
	stop chan struct{}
	done chan struct{}

	metrics atomic.Value
}

func New(cfg Config) (*Scheduler, error) {
	if cfg.Host == nil {
		return nil, fmt.Errorf("blockphys: nil host")
	}
	if cfg.World == nil {
		return nil, fmt.Errorf("blockphys: nil physics world")
	}
	t := cfg.Tuning
	t.ApplyDefaults()
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("blockphys: %w", err)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	cfg.World.SetGravity(mgl64.Vec3{t.Gravity[0], t.Gravity[1], t.Gravity[2]})
	shape := physics.NewBoxShape(mgl64.Vec3{t.BodyHalfExtent, t.BodyHalfExtent, t.BodyHalfExtent})

	s := &Scheduler{
		tune:        t,
		host:        cfg.Host,
		world:       cfg.World,
		worldName:   t.World.Name,
		clock:       clock,
		logger:      cfg.Logger,
		bodyShape:   shape,
		bodyInertia: shape.LocalInertia(t.BodyMass),
		pool:        newProxyPool(cfg.World, t.StaticHalfExtent),
		players:     newPlayerTable(cfg.World, t.PlayerHalfExtents, t.PlayerAnchorHeight),
		lastStep:    clock(),
		reqs:        make(chan loopReq, 64),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	s.metrics.Store(Metrics{})
	return s, nil
}

func (s *Scheduler) SetTickLogger(l TickLogger)   { s.tickLogger = l }
func (s *Scheduler) SetAuditLogger(l AuditLogger) { s.auditLogger = l }
func (s *Scheduler) SetFrameSink(f FrameSink)     { s.frameSink = f }

func (s *Scheduler) Tuning() tuning.Tuning { return s.tune }
func (s *Scheduler) CurrentTick() uint64   { return s.tick }
func (s *Scheduler) LastStep() time.Time   { return s.lastStep }
func (s *Scheduler) Pool() *ProxyPool      { return s.pool }

// Bodies returns the active bodies in spawn order.
func (s *Scheduler) Bodies() []*Body {
	return append([]*Body(nil), s.bodies...)
}

// Players returns the ids of players with a proxy, sorted.
func (s *Scheduler) Players() []string { return s.players.ids() }

func (s *Scheduler) Player(playerID string) (*PlayerProxy, bool) {
	p, ok := s.players.byID[playerID]
	return p, ok
}

func (s *Scheduler) Metrics() Metrics {
	if s == nil {
		return Metrics{}
	}
	m, ok := s.metrics.Load().(Metrics)
	if !ok {
		return Metrics{}
	}
	return m
}

func (s *Scheduler) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

func (s *Scheduler) audit(e AuditEntry) {
	if s.auditLogger == nil {
		return
	}
	e.Tick = s.tick
	if err := s.auditLogger.WriteAudit(e); err != nil {
		s.logf("audit: %v", err)
	}
}

// StepSimulation runs one tick: plant collision proxies around awake bodies,
// move player proxies, advance the physics world by the wall-clock time since
// the previous step, then sync and retire bodies.
func (s *Scheduler) StepSimulation() {
	if s.stopped {
		return
	}
	stepStart := time.Now()
	nowTick := s.tick

	s.pool.begin()
	for _, b := range s.bodies {
		if b.rigid.IsDisposed() || !b.rigid.IsActive() {
			continue
		}
		s.scanNeighborhood(b)
	}
	s.pool.finish()

	s.players.reposition(s.host)

	now := s.clock()
	elapsed := now.Sub(s.lastStep).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	subSteps := s.world.StepSimulation(elapsed, s.tune.MaxSubSteps)
	s.lastStep = now

	retired := 0
	kept := s.bodies[:0]
	for _, b := range s.bodies {
		if s.syncBody(b) {
			retired++
			continue
		}
		kept = append(kept, b)
	}
	for i := len(kept); i < len(s.bodies); i++ {
		s.bodies[i] = nil
	}
	s.bodies = kept
	s.pool.clearVisited()

	spawned := s.spawnedThisTick
	s.spawnedThisTick = 0
	s.retiredTotal += uint64(retired)
	stats := s.pool.Stats()

	if s.tickLogger != nil {
		err := s.tickLogger.WriteTick(TickLogEntry{
			Tick:       nowTick,
			StepMS:     float64(time.Since(stepStart).Microseconds()) / 1000.0,
			ElapsedS:   elapsed,
			SubSteps:   subSteps,
			Bodies:     len(s.bodies),
			PoolSize:   stats.Size,
			PoolActive: stats.Active,
			Players:    len(s.players.byID),
			Retired:    retired,
			Spawned:    spawned,
		})
		if err != nil {
			s.logf("tick log: %v", err)
		}
	}
	if s.frameSink != nil {
		s.frameSink.PublishFrame(s.frame(nowTick))
	}

	s.tick++
	s.metrics.Store(Metrics{
		Tick:         s.tick,
		StepMS:       float64(time.Since(stepStart).Microseconds()) / 1000.0,
		ElapsedS:     elapsed,
		SubSteps:     subSteps,
		Bodies:       len(s.bodies),
		Players:      len(s.players.byID),
		PoolSize:     stats.Size,
		PoolActive:   stats.Active,
		PoolDisabled: stats.Disabled,
		SpawnedTotal: s.spawnedTotal,
		RetiredTotal: s.retiredTotal,
		PanicsTotal:  s.panicsTotal,
	})
}

func (s *Scheduler) scanNeighborhood(b *Body) {
	center := b.loc.Cell()
	r := s.tune.NeighborhoodRadius
	for x := -r; x <= r; x++ {
		for y := -r; y <= r; y++ {
			for z := -r; z <= r; z++ {
				cell := center.Add(host.Vec3i{X: x, Y: y, Z: z})
				if !s.host.IsOccluding(cell) {
					continue
				}
				if !s.pool.visit(cell) {
					continue
				}
				s.pool.plant(cell)
			}
		}
	}
}

// syncBody ticks one body and kills it when it settled, left the bounds or
// lost its proxy. It reports whether the body is gone. A panic retires only
// the offending body.
func (s *Scheduler) syncBody(b *Body) (gone bool) {
	defer func() {
		if r := recover(); r != nil {
			s.panicsTotal++
			s.logf("body %d: recovered panic: %v", b.id, r)
			b.kill(ReasonPanic)
			gone = true
		}
	}()
	if b.rigid.IsDisposed() {
		return true
	}
	b.tick()
	switch {
	case b.doomed != "":
		b.kill(b.doomed)
	case !b.rigid.IsActive():
		b.kill(ReasonSettled)
	case !s.host.ProxyAlive(b.proxy):
		b.kill(ReasonProxyGone)
	}
	return b.rigid.IsDisposed()
}

func (s *Scheduler) addBody(b *Body) {
	s.bodies = append(s.bodies, b)
	s.spawnedThisTick++
	s.spawnedTotal++
	s.audit(AuditEntry{
		Action: "SPAWN",
		Body:   uint64(b.id),
		World:  b.loc.World,
		Pos:    b.rigid.WorldTransform().Origin,
		Block:  b.head.ID,
	})
}

func (s *Scheduler) defaultHead() host.Item {
	return host.Item{ID: s.tune.DefaultHead, Count: 1}
}

// SpawnBlock creates a body at loc rendered with the default head item.
func (s *Scheduler) SpawnBlock(loc host.Location) (*Body, error) {
	return s.SpawnBlockWithDrops(loc, s.defaultHead(), nil)
}

// SpawnBlockFromWorld creates a body that looks like state and would drop
// what breaking state drops.
func (s *Scheduler) SpawnBlockFromWorld(loc host.Location, state host.BlockState) (*Body, error) {
	return s.SpawnBlockWithDrops(loc, s.host.ItemFor(state.Block), s.host.Drops(state))
}

func (s *Scheduler) SpawnBlockItem(loc host.Location, head host.Item) (*Body, error) {
	return s.SpawnBlockWithDrops(loc, head, nil)
}

func (s *Scheduler) SpawnBlockWithDrops(loc host.Location, head host.Item, drops []host.Item) (*Body, error) {
	if s.stopped {
		return nil, ErrStopped
	}
	if head.ID == "" {
		head = s.defaultHead()
	}
	b := newBody(s, loc, head, drops)
	s.addBody(b)
	return b, nil
}

// Explode replaces the default destruction of cells: every occluding,
// non-explosive cell becomes a body flung away from origin, and every cell is
// emptied. Bodies that existed before the call and sit within yield³ squared
// distance of origin get a stronger push. It returns the new bodies.
func (s *Scheduler) Explode(origin host.Location, yield float64, cells []host.Vec3i) ([]*Body, error) {
	if s.stopped {
		return nil, ErrStopped
	}
	if origin.World == "" {
		origin.World = s.worldName
	}
	existing := append([]*Body(nil), s.bodies...)

	var spawned []*Body
	for _, cell := range cells {
		block := s.host.BlockAt(cell)
		if block != s.tune.ExplosiveBlock && s.host.IsOccluding(cell) {
			loc := host.Location{World: origin.World, Pos: cell.Center()}
			b, err := s.SpawnBlockFromWorld(loc, s.host.BlockState(cell))
			if err != nil {
				return spawned, err
			}
			b.SetVelocity(awayFrom(origin.Pos, loc.Pos).Mul(yield * s.tune.ExplosionBlockScale))
			spawned = append(spawned, b)
		}
		s.host.SetEmpty(cell)
		s.audit(AuditEntry{
			Action: "CLEAR_BLOCK",
			World:  origin.World,
			Pos:    mgl64.Vec3{float64(cell.X), float64(cell.Y), float64(cell.Z)},
			Block:  block,
		})
	}

	pushed := 0
	limit := yield * yield * yield
	for _, b := range existing {
		if b.rigid.IsDisposed() {
			continue
		}
		loc, ok := s.host.ProxyLocation(b.proxy)
		if !ok || loc.World != origin.World {
			continue
		}
		if origin.DistanceSquared(loc) >= limit {
			continue
		}
		b.SetVelocity(awayFrom(origin.Pos, loc.Pos).Mul(yield * s.tune.ExplosionPushScale))
		pushed++
	}

	s.audit(AuditEntry{
		Action: "EXPLODE",
		World:  origin.World,
		Pos:    origin.Pos,
		Details: map[string]any{
			"yield":   yield,
			"cells":   len(cells),
			"spawned": len(spawned),
			"pushed":  pushed,
		},
	})
	return spawned, nil
}

// awayFrom returns the unit direction from origin to p, or straight up when
// they coincide.
func awayFrom(origin, p mgl64.Vec3) mgl64.Vec3 {
	d := p.Sub(origin)
	if d.Len() == 0 {
		return mgl64.Vec3{0, 1, 0}
	}
	return d.Normalize()
}

// PlayerJoin creates the collision proxy of a connected player. Joining
// twice repositions the existing proxy.
func (s *Scheduler) PlayerJoin(playerID string) error {
	if s.stopped {
		return ErrStopped
	}
	loc, ok := s.host.PlayerLocation(playerID)
	if !ok {
		return ErrUnknownPlayer
	}
	s.players.join(playerID, loc)
	return nil
}

// PlayerQuit removes the player's proxy. Unknown players are ignored.
func (s *Scheduler) PlayerQuit(playerID string) {
	s.players.quit(playerID)
}

// Shutdown kills every body and releases every physics resource the
// scheduler created. Later calls are no-ops.
func (s *Scheduler) Shutdown() {
	if s.stopped {
		return
	}
	s.stopped = true
	for _, b := range s.bodies {
		if b.kill(ReasonShutdown) {
			s.retiredTotal++
		}
	}
	s.bodies = nil
	for _, id := range s.players.ids() {
		s.players.quit(id)
	}
	s.pool.release()
	stats := s.pool.Stats()
	m := s.Metrics()
	m.Bodies = 0
	m.Players = 0
	m.PoolActive = stats.Active
	m.PoolDisabled = stats.Disabled
	m.RetiredTotal = s.retiredTotal
	s.metrics.Store(m)
	s.logf("shutdown at tick %d", s.tick)
}

// State is a point-in-time copy of the simulation for admin endpoints.
type State struct {
	Tick     uint64       `json:"tick"`
	LastStep time.Time    `json:"last_step"`
	Bodies   []BodyView   `json:"bodies"`
	Players  []PlayerView `json:"players"`
	Pool     PoolStats    `json:"pool"`
	Stopped  bool         `json:"stopped"`
}

func (s *Scheduler) State() State {
	f := s.frame(s.tick)
	return State{
		Tick:     s.tick,
		LastStep: s.lastStep,
		Bodies:   f.Bodies,
		Players:  f.Players,
		Pool:     f.Pool,
		Stopped:  s.stopped,
	}
}

func (s *Scheduler) frame(tick uint64) Frame {
	bodies := make([]BodyView, 0, len(s.bodies))
	for _, b := range s.bodies {
		bodies = append(bodies, b.view())
	}
	return Frame{
		Tick:    tick,
		Bodies:  bodies,
		Players: s.players.views(),
		Pool:    s.pool.Stats(),
	}
}
