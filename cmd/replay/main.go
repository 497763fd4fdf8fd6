package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	persistlog "voxelcraft.ai/blockphys/internal/persistence/log"
	"voxelcraft.ai/blockphys/internal/sim/blockphys"
)

func main() {
	var (
		dataDir  = flag.String("data", "./data", "runtime data directory")
		worldID  = flag.String("world", "world", "world id")
		fromTick = flag.Uint64("from_tick", 0, "start verifying from tick (inclusive, optional)")
		toTick   = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
	)
	flag.Parse()

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	sum, err := verify(worldDir, *fromTick, *toTick)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: ticks=%d first=%d last=%d spawned=%d retired=%d bodies=%d explosions=%d cleared=%d\n",
		sum.Ticks, sum.FirstTick, sum.LastTick, sum.Spawned, sum.Retired, sum.Bodies, sum.Explosions, sum.Cleared)
	for _, r := range sortedKeys(sum.KillsByReason) {
		fmt.Printf("  kill reason=%s count=%d\n", r, sum.KillsByReason[r])
	}
}

type summary struct {
	Ticks      int
	FirstTick  uint64
	LastTick   uint64
	Spawned    int
	Retired    int
	Bodies     int
	Explosions int
	Cleared    int

	KillsByReason map[string]int
}

type tickAudits struct {
	spawns int
	kills  int
}

// verify replays the bookkeeping recorded in the tick log against the audit
// log: every tick's spawned/retired counts must match its SPAWN/KILL audits,
// and body counts must chain from one tick to the next.
func verify(worldDir string, fromTick, toTick uint64) (summary, error) {
	sum := summary{KillsByReason: map[string]int{}}
	inRange := func(t uint64) bool { return t >= fromTick && (toTick == 0 || t <= toTick) }

	perTick := map[uint64]*tickAudits{}
	auditFiles, err := listLogFiles(filepath.Join(worldDir, "audit"), "audit-")
	if err != nil {
		return sum, err
	}
	for _, path := range auditFiles {
		err := persistlog.ReadJSONLZstd(path, func(line []byte) error {
			var e blockphys.AuditEntry
			if err := json.Unmarshal(line, &e); err != nil {
				return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
			}
			if !inRange(e.Tick) {
				return nil
			}
			ta := perTick[e.Tick]
			if ta == nil {
				ta = &tickAudits{}
				perTick[e.Tick] = ta
			}
			switch e.Action {
			case "SPAWN":
				ta.spawns++
			case "KILL":
				sum.KillsByReason[e.Reason]++
				// Shutdown kills happen after the last logged tick.
				if e.Reason != blockphys.ReasonShutdown {
					ta.kills++
				}
			case "EXPLODE":
				sum.Explosions++
			case "CLEAR_BLOCK":
				sum.Cleared++
			}
			return nil
		})
		if err != nil {
			return sum, err
		}
	}

	tickFiles, err := listLogFiles(filepath.Join(worldDir, "ticks"), "ticks-")
	if err != nil {
		return sum, err
	}
	if len(tickFiles) == 0 {
		return sum, fmt.Errorf("no tick logs under %s", worldDir)
	}
	var prev *blockphys.TickLogEntry
	for _, path := range tickFiles {
		err := persistlog.ReadJSONLZstd(path, func(line []byte) error {
			var e blockphys.TickLogEntry
			if err := json.Unmarshal(line, &e); err != nil {
				return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
			}
			if !inRange(e.Tick) {
				return nil
			}
			if prev != nil {
				if e.Tick != prev.Tick+1 {
					return fmt.Errorf("tick gap: %d -> %d", prev.Tick, e.Tick)
				}
				if want := prev.Bodies + e.Spawned - e.Retired; e.Bodies != want {
					return fmt.Errorf("tick %d: bodies=%d want %d", e.Tick, e.Bodies, want)
				}
			} else {
				sum.FirstTick = e.Tick
			}
			var ta tickAudits
			if p := perTick[e.Tick]; p != nil {
				ta = *p
			}
			if ta.spawns != e.Spawned {
				return fmt.Errorf("tick %d: spawned=%d but %d SPAWN audits", e.Tick, e.Spawned, ta.spawns)
			}
			if ta.kills != e.Retired {
				return fmt.Errorf("tick %d: retired=%d but %d KILL audits", e.Tick, e.Retired, ta.kills)
			}
			sum.Ticks++
			sum.LastTick = e.Tick
			sum.Spawned += e.Spawned
			sum.Retired += e.Retired
			sum.Bodies = e.Bodies
			cp := e
			prev = &cp
			return nil
		})
		if err != nil {
			return sum, err
		}
	}
	return sum, nil
}

func listLogFiles(dir, prefix string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

func sortedKeys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
