package tuning

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_RepoConfig(t *testing.T) {
	tune, err := Load("../../../configs/tuning.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tune.TickInterval() != 500*time.Millisecond {
		t.Fatalf("tick interval: got %v", tune.TickInterval())
	}
	if tune.BodyMass != 30 || tune.MaxSubSteps != 100 {
		t.Fatalf("mass/substeps: got %v/%v", tune.BodyMass, tune.MaxSubSteps)
	}
	if tune.MinY != -10 || tune.MaxY != 300 {
		t.Fatalf("bounds: got %v..%v", tune.MinY, tune.MaxY)
	}
	if tune.Gravity != [3]float64{0, -10, 0} {
		t.Fatalf("gravity: got %v", tune.Gravity)
	}
}

func TestLoad_PartialFileGetsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("body_mass: 12\nworld:\n  ground_level: 10\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	tune, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	d := Defaults()
	if tune.BodyMass != 12 {
		t.Fatalf("body_mass: got %v want 12", tune.BodyMass)
	}
	if tune.World.GroundLevel != 10 || tune.World.Height != d.World.Height {
		t.Fatalf("world: got %+v", tune.World)
	}
	if tune.ExplosionBlockScale != d.ExplosionBlockScale || tune.NeighborhoodRadius != d.NeighborhoodRadius {
		t.Fatalf("defaults not applied: %+v", tune)
	}
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"bad_bounds": "min_y: 50\nmax_y: 10\n",
		"bad_ground": "world:\n  height: 32\n  ground_level: 40\n",
		"bad_yaml":   "body_mass: [\n",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".yaml")
			if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
	if _, err := Load(filepath.Join(dir, "missing.yaml")); !os.IsNotExist(err) {
		t.Fatalf("missing file: got %v", err)
	}
}
