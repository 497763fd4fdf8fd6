package tuning

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Tuning holds every physical and operational constant of the block simulation.
type Tuning struct {
	TickIntervalMs int `yaml:"tick_interval_ms"`

	Gravity           [3]float64 `yaml:"gravity"`
	FixedTimeStep     float64    `yaml:"fixed_time_step"`
	MaxSubSteps       int        `yaml:"max_sub_steps"`
	BodyMass          float64    `yaml:"body_mass"`
	BodyHalfExtent    float64    `yaml:"body_half_extent"`
	StaticHalfExtent  float64    `yaml:"static_half_extent"`
	PlayerHalfExtents [3]float64 `yaml:"player_half_extents"`

	PlayerAnchorHeight float64 `yaml:"player_anchor_height"`
	ProxyAnchorOffset  float64 `yaml:"proxy_anchor_offset"`
	VerticalCorrection float64 `yaml:"vertical_correction"`

	MinY float64 `yaml:"min_y"`
	MaxY float64 `yaml:"max_y"`

	NeighborhoodRadius int `yaml:"neighborhood_radius"`

	ExplosionBlockScale float64 `yaml:"explosion_block_scale"`
	ExplosionPushScale  float64 `yaml:"explosion_push_scale"`
	ExplosiveBlock      string  `yaml:"explosive_block"`

	BodyLife      float64 `yaml:"body_life"`
	AllowRelocate bool    `yaml:"allow_relocate"`
	DefaultHead   string  `yaml:"default_head"`

	World WorldGen `yaml:"world"`
}

type WorldGen struct {
	Name        string `yaml:"name"`
	Height      int    `yaml:"height"`
	GroundLevel int    `yaml:"ground_level"`
	BoundaryR   int    `yaml:"boundary_r"`
	Surface     string `yaml:"surface"`
	Filler      string `yaml:"filler"`
	Floor       string `yaml:"floor"`

	Seed             int64  `yaml:"seed"`
	SpawnClearRadius int    `yaml:"spawn_clear_radius"`
	BoulderPermille  int    `yaml:"boulder_permille"`
	Boulder          string `yaml:"boulder"`
}

func Defaults() Tuning {
	return Tuning{
		TickIntervalMs:      500, // 10 host ticks at 20 Hz
		Gravity:             [3]float64{0, -10, 0},
		FixedTimeStep:       1.0 / 60.0,
		MaxSubSteps:         100,
		BodyMass:            30,
		BodyHalfExtent:      0.3125,
		StaticHalfExtent:    0.5,
		PlayerHalfExtents:   [3]float64{0.15, 0.9, 0.15},
		PlayerAnchorHeight:  0.9,
		ProxyAnchorOffset:   1.8,
		VerticalCorrection:  0.05,
		MinY:                -10,
		MaxY:                300,
		NeighborhoodRadius:  2,
		ExplosionBlockScale: 30,
		ExplosionPushScale:  50,
		ExplosiveBlock:      "TNT",
		BodyLife:            60,
		DefaultHead:         "STONE",
		World: WorldGen{
			Name:        "world",
			Height:      128,
			GroundLevel: 64,
			BoundaryR:   512,
			Surface:     "GRASS",
			Filler:      "DIRT",
			Floor:       "BEDROCK",

			Seed:             1337,
			SpawnClearRadius: 16,
			BoulderPermille:  4,
			Boulder:          "STONE",
		},
	}
}

// ApplyDefaults fills zero values from Defaults. Bounds are only defaulted
// when both are zero so a config may place MinY at 0.
func (t *Tuning) ApplyDefaults() {
	d := Defaults()
	if t.TickIntervalMs <= 0 {
		t.TickIntervalMs = d.TickIntervalMs
	}
	if t.Gravity == ([3]float64{}) {
		t.Gravity = d.Gravity
	}
	if t.FixedTimeStep <= 0 {
		t.FixedTimeStep = d.FixedTimeStep
	}
	if t.MaxSubSteps <= 0 {
		t.MaxSubSteps = d.MaxSubSteps
	}
	if t.BodyMass <= 0 {
		t.BodyMass = d.BodyMass
	}
	if t.BodyHalfExtent <= 0 {
		t.BodyHalfExtent = d.BodyHalfExtent
	}
	if t.StaticHalfExtent <= 0 {
		t.StaticHalfExtent = d.StaticHalfExtent
	}
	if t.PlayerHalfExtents == ([3]float64{}) {
		t.PlayerHalfExtents = d.PlayerHalfExtents
	}
	if t.PlayerAnchorHeight <= 0 {
		t.PlayerAnchorHeight = d.PlayerAnchorHeight
	}
	if t.ProxyAnchorOffset <= 0 {
		t.ProxyAnchorOffset = d.ProxyAnchorOffset
	}
	if t.VerticalCorrection == 0 {
		t.VerticalCorrection = d.VerticalCorrection
	}
	if t.MinY == 0 && t.MaxY == 0 {
		t.MinY = d.MinY
		t.MaxY = d.MaxY
	}
	if t.NeighborhoodRadius <= 0 {
		t.NeighborhoodRadius = d.NeighborhoodRadius
	}
	if t.ExplosionBlockScale <= 0 {
		t.ExplosionBlockScale = d.ExplosionBlockScale
	}
	if t.ExplosionPushScale <= 0 {
		t.ExplosionPushScale = d.ExplosionPushScale
	}
	if t.ExplosiveBlock == "" {
		t.ExplosiveBlock = d.ExplosiveBlock
	}
	if t.BodyLife <= 0 {
		t.BodyLife = d.BodyLife
	}
	if t.DefaultHead == "" {
		t.DefaultHead = d.DefaultHead
	}
	if t.World.Name == "" {
		t.World.Name = d.World.Name
	}
	if t.World.Height <= 0 {
		t.World.Height = d.World.Height
	}
	if t.World.GroundLevel <= 0 {
		t.World.GroundLevel = d.World.GroundLevel
	}
	if t.World.BoundaryR <= 0 {
		t.World.BoundaryR = d.World.BoundaryR
	}
	if t.World.Surface == "" {
		t.World.Surface = d.World.Surface
	}
	if t.World.Filler == "" {
		t.World.Filler = d.World.Filler
	}
	if t.World.Floor == "" {
		t.World.Floor = d.World.Floor
	}
	if t.World.SpawnClearRadius <= 0 {
		t.World.SpawnClearRadius = d.World.SpawnClearRadius
	}
	if t.World.BoulderPermille < 0 {
		t.World.BoulderPermille = 0
	}
	if t.World.Boulder == "" {
		t.World.Boulder = d.World.Boulder
	}
}

func (t Tuning) Validate() error {
	if t.MinY >= t.MaxY {
		return fmt.Errorf("min_y (%v) must be below max_y (%v)", t.MinY, t.MaxY)
	}
	if t.World.GroundLevel >= t.World.Height {
		return fmt.Errorf("world.ground_level (%d) must be below world.height (%d)", t.World.GroundLevel, t.World.Height)
	}
	if t.NeighborhoodRadius > 8 {
		return fmt.Errorf("neighborhood_radius %d too large", t.NeighborhoodRadius)
	}
	return nil
}

func (t Tuning) TickInterval() time.Duration {
	return time.Duration(t.TickIntervalMs) * time.Millisecond
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.ApplyDefaults()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}
