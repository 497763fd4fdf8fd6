package main

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	persistlog "voxelcraft.ai/blockphys/internal/persistence/log"
	"voxelcraft.ai/blockphys/internal/sim/blockphys"
	"voxelcraft.ai/blockphys/internal/sim/catalogs"
	"voxelcraft.ai/blockphys/internal/sim/host"
	"voxelcraft.ai/blockphys/internal/sim/physics/boxworld"
	"voxelcraft.ai/blockphys/internal/sim/tuning"
	"voxelcraft.ai/blockphys/internal/sim/voxelhost"
)

func TestVerify_RecordedRun(t *testing.T) {
	cats, err := catalogs.Load("../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	tune := tuning.Defaults()
	h, err := voxelhost.New(voxelhost.Config{Name: tune.World.Name, Gen: tune.World}, cats)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	now := time.Unix(1_700_000_000, 0)
	s, err := blockphys.New(blockphys.Config{
		Tuning: tune,
		Host:   h,
		World:  boxworld.New(boxworld.DefaultConfig()),
		Clock:  func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("scheduler: %v", err)
	}

	worldDir := filepath.Join(t.TempDir(), "worlds", tune.World.Name)
	tickLog := persistlog.NewTickLogger(worldDir)
	auditLog := persistlog.NewAuditLogger(worldDir)
	s.SetTickLogger(tickLog)
	s.SetAuditLogger(auditLog)

	step := func(n int) {
		for i := 0; i < n; i++ {
			now = now.Add(tune.TickInterval())
			s.StepSimulation()
		}
	}

	at := func(x, y, z float64) host.Location { return host.At(tune.World.Name, x, y, z) }
	if _, err := s.SpawnBlock(at(0.5, 66.5, 0.5)); err != nil {
		t.Fatalf("SpawnBlock: %v", err)
	}
	victim, err := s.SpawnBlock(at(8.5, 120.5, 8.5))
	if err != nil {
		t.Fatalf("SpawnBlock: %v", err)
	}
	step(2)
	if _, err := s.Explode(at(4.5, 64.5, 4.5), 1, []host.Vec3i{{X: 4, Y: 64, Z: 4}, {X: 4, Y: 63, Z: 4}}); err != nil {
		t.Fatalf("Explode: %v", err)
	}
	step(1)
	victim.Kill()
	step(12)
	s.Shutdown()

	if err := tickLog.Close(); err != nil {
		t.Fatalf("close tick log: %v", err)
	}
	if err := auditLog.Close(); err != nil {
		t.Fatalf("close audit log: %v", err)
	}

	sum, err := verify(worldDir, 0, 0)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if sum.Ticks != 15 || sum.FirstTick != 0 || sum.LastTick != 14 {
		t.Fatalf("ticks: %+v", sum)
	}
	if sum.Spawned != 4 || sum.Explosions != 1 || sum.Cleared != 2 {
		t.Fatalf("summary: %+v", sum)
	}
	if sum.KillsByReason[blockphys.ReasonAdmin] != 1 {
		t.Fatalf("admin kills: %v", sum.KillsByReason)
	}
	if sum.Bodies+sum.Retired != sum.Spawned {
		t.Fatalf("bodies=%d retired=%d spawned=%d", sum.Bodies, sum.Retired, sum.Spawned)
	}

	// A window starting mid-run still chains.
	if _, err := verify(worldDir, 3, 10); err != nil {
		t.Fatalf("verify window: %v", err)
	}
}

func TestVerify_DetectsMissingAudit(t *testing.T) {
	worldDir := t.TempDir()
	tickLog := persistlog.NewTickLogger(worldDir)
	_ = tickLog.WriteTick(blockphys.TickLogEntry{Tick: 0})
	_ = tickLog.WriteTick(blockphys.TickLogEntry{Tick: 1, Spawned: 1, Bodies: 1})
	if err := tickLog.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	_, err := verify(worldDir, 0, 0)
	if err == nil || !strings.Contains(err.Error(), "SPAWN audits") {
		t.Fatalf("got err=%v want SPAWN audit mismatch", err)
	}
}

func TestVerify_DetectsBodyDrift(t *testing.T) {
	worldDir := t.TempDir()
	tickLog := persistlog.NewTickLogger(worldDir)
	_ = tickLog.WriteTick(blockphys.TickLogEntry{Tick: 4, Bodies: 2})
	_ = tickLog.WriteTick(blockphys.TickLogEntry{Tick: 5, Bodies: 3})
	if err := tickLog.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := verify(worldDir, 0, 0); err == nil || !strings.Contains(err.Error(), "bodies=3 want 2") {
		t.Fatalf("got err=%v want body drift", err)
	}
	if _, err := verify(t.TempDir(), 0, 0); err == nil {
		t.Fatalf("empty dir should fail")
	}
}
