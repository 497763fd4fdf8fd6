package blockphys

import (
	"errors"

	"voxelcraft.ai/blockphys/internal/sim/orient"
)

var (
	// ErrRelocateDisabled is returned by Body.SetLocation unless relocation is enabled in tuning.
	ErrRelocateDisabled = errors.New("blockphys: relocation disabled")
	ErrCrossWorld       = errors.New("blockphys: cannot relocate across worlds")
	ErrStopped          = errors.New("blockphys: scheduler stopped")
	ErrUnknownPlayer    = errors.New("blockphys: unknown player")
)

// Kill reasons recorded in the audit log.
const (
	ReasonSettled     = "settled"
	ReasonOutOfBounds = "out_of_bounds"
	ReasonProxyGone   = "proxy_gone"
	ReasonPanic       = "panic"
	ReasonShutdown    = "shutdown"
	ReasonAdmin       = "admin"
)

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

// FrameSink receives a read-only view of every completed tick.
type FrameSink interface {
	PublishFrame(f Frame)
}

type TickLogEntry struct {
	Tick       uint64  `json:"tick"`
	StepMS     float64 `json:"step_ms"`
	ElapsedS   float64 `json:"elapsed_s"`
	SubSteps   int     `json:"sub_steps"`
	Bodies     int     `json:"bodies"`
	PoolSize   int     `json:"pool_size"`
	PoolActive int     `json:"pool_active"`
	Players    int     `json:"players"`
	Retired    int     `json:"retired"`
	Spawned    int     `json:"spawned"`
}

type AuditEntry struct {
	Tick    uint64         `json:"tick"`
	Action  string         `json:"action"` // SPAWN, KILL, CLEAR_BLOCK, EXPLODE
	Body    uint64         `json:"body,omitempty"`
	World   string         `json:"world"`
	Pos     [3]float64     `json:"pos"`
	Block   string         `json:"block,omitempty"`
	Reason  string         `json:"reason,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

type BodyView struct {
	ID       uint64       `json:"id"`
	World    string       `json:"world"`
	Pos      [3]float64   `json:"pos"`
	Pose     orient.Euler `json:"pose"`
	Velocity [3]float64   `json:"velocity"`
	State    string       `json:"state"`
	Head     string       `json:"head"`
}

type PlayerView struct {
	ID  string     `json:"id"`
	Pos [3]float64 `json:"pos"`
}

type PoolStats struct {
	Size     int `json:"size"`
	Active   int `json:"active"`
	Disabled int `json:"disabled"`
}

// Frame is the state of the simulation after one tick.
type Frame struct {
	Tick    uint64       `json:"tick"`
	Bodies  []BodyView   `json:"bodies"`
	Players []PlayerView `json:"players"`
	Pool    PoolStats    `json:"pool"`
}

// Metrics is a thread-safe read-only view of the scheduler.
// It is updated from the loop goroutine and read from HTTP handlers and tests.
type Metrics struct {
	Tick     uint64  `json:"tick"`
	StepMS   float64 `json:"step_ms"`
	ElapsedS float64 `json:"elapsed_s"`
	SubSteps int     `json:"sub_steps"`

	Bodies       int `json:"bodies"`
	Players      int `json:"players"`
	PoolSize     int `json:"pool_size"`
	PoolActive   int `json:"pool_active"`
	PoolDisabled int `json:"pool_disabled"`

	SpawnedTotal uint64 `json:"spawned_total"`
	RetiredTotal uint64 `json:"retired_total"`
	PanicsTotal  uint64 `json:"panics_total"`
}
