package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	persistlog "voxelcraft.ai/blockphys/internal/persistence/log"
	"voxelcraft.ai/blockphys/internal/sim/blockphys"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "audit":
			auditCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "spawn", "explode", "kill", "join", "quit":
			postCmd(os.Args[1], os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (optional)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "worlds")
	if *worldID != "" {
		base = filepath.Join(base, *worldID)
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Println(e.Name())
	}
}

func auditCmd(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "world", "world id")
	action := fs.String("action", "", "action filter: SPAWN|KILL|CLEAR_BLOCK|EXPLODE (optional)")
	reason := fs.String("reason", "", "kill reason filter (optional)")
	body := fs.Uint64("body", 0, "body id filter (optional)")
	aabb := fs.String("aabb", "", "AABB filter: x1,y1,z1:x2,y2,z2 (optional)")
	sinceTick := fs.Uint64("since_tick", 0, "entries since tick (inclusive)")
	toTick := fs.Uint64("to_tick", 0, "entries up to tick (inclusive, optional)")
	summaryOnly := fs.Bool("summary", false, "print counts per action/reason instead of entries")
	_ = fs.Parse(args)

	f := auditFilter{
		Action:    strings.ToUpper(strings.TrimSpace(*action)),
		Reason:    strings.TrimSpace(*reason),
		Body:      *body,
		SinceTick: *sinceTick,
		ToTick:    *toTick,
	}
	if strings.TrimSpace(*aabb) != "" {
		min, max, err := parseAABB(*aabb)
		if err != nil {
			fmt.Fprintln(os.Stderr, "bad -aabb:", err)
			os.Exit(2)
		}
		f.Box = &[2][3]int{min, max}
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	recs, err := readAudit(worldDir, f)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read audit:", err)
		os.Exit(1)
	}
	if !*summaryOnly {
		for _, e := range recs {
			printJSON(e)
		}
		return
	}
	counts := summarize(recs)
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%s %d\n", k, counts[k])
	}
}

type auditFilter struct {
	Action    string
	Reason    string
	Body      uint64
	SinceTick uint64
	ToTick    uint64
	Box       *[2][3]int
}

func (f auditFilter) match(e blockphys.AuditEntry) bool {
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.Reason != "" && e.Reason != f.Reason {
		return false
	}
	if f.Body != 0 && e.Body != f.Body {
		return false
	}
	if e.Tick < f.SinceTick || (f.ToTick != 0 && e.Tick > f.ToTick) {
		return false
	}
	if f.Box != nil && !withinAABB(e.Pos, f.Box[0], f.Box[1]) {
		return false
	}
	return true
}

// readAudit returns the matching audit entries of a world in log order.
func readAudit(worldDir string, f auditFilter) ([]blockphys.AuditEntry, error) {
	dir := filepath.Join(worldDir, "audit")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "audit-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	out := make([]blockphys.AuditEntry, 0, 1024)
	for _, name := range names {
		path := filepath.Join(dir, name)
		err := persistlog.ReadJSONLZstd(path, func(line []byte) error {
			var e blockphys.AuditEntry
			if err := json.Unmarshal(line, &e); err != nil {
				return fmt.Errorf("%s: unmarshal: %w", name, err)
			}
			if f.match(e) {
				out = append(out, e)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// summarize counts entries by action, and KILL entries also by reason.
func summarize(recs []blockphys.AuditEntry) map[string]int {
	out := map[string]int{}
	for _, e := range recs {
		out[e.Action]++
		if e.Action == "KILL" && e.Reason != "" {
			out["KILL/"+e.Reason]++
		}
	}
	return out
}

func withinAABB(pos [3]float64, min, max [3]int) bool {
	for i := 0; i < 3; i++ {
		if pos[i] < float64(min[i]) || pos[i] >= float64(max[i]+1) {
			return false
		}
	}
	return true
}

func parseAABB(s string) (min, max [3]int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return min, max, fmt.Errorf("expected x1,y1,z1:x2,y2,z2")
	}
	a, err := parseVec3(parts[0])
	if err != nil {
		return min, max, err
	}
	b, err := parseVec3(parts[1])
	if err != nil {
		return min, max, err
	}
	for i := 0; i < 3; i++ {
		if a[i] <= b[i] {
			min[i], max[i] = a[i], b[i]
		} else {
			min[i], max[i] = b[i], a[i]
		}
	}
	return min, max, nil
}

func parseVec3(s string) ([3]int, error) {
	var v [3]int
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 3 {
		return v, fmt.Errorf("expected x,y,z")
	}
	for i := 0; i < 3; i++ {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return v, err
		}
		v[i] = n
	}
	return v, nil
}

func parsePos(s string) ([3]float64, error) {
	var v [3]float64
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 3 {
		return v, fmt.Errorf("expected x,y,z")
	}
	for i := 0; i < 3; i++ {
		f, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			return v, err
		}
		v[i] = f
	}
	return v, nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
