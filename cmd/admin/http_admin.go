package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/state"
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(u)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(string(b))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}

// postCmd sends one admin mutation (spawn, explode, kill, join, quit).
func postCmd(name string, args []string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	pos := fs.String("pos", "", "position x,y,z")
	item := fs.String("item", "", "spawn: head item")
	drops := fs.String("drops", "", "spawn: comma separated drop items")
	fromWorld := fs.Bool("from_world", false, "spawn: convert the block at -pos")
	yield := fs.Float64("yield", 4, "explode: yield")
	radius := fs.Int("radius", 0, "explode: cell radius (default ceil(yield))")
	id := fs.Uint64("id", 0, "kill: body id")
	player := fs.String("player", "", "join/quit: player id")
	_ = fs.Parse(args)

	payload, err := buildPayload(name, payloadFlags{
		Pos:       *pos,
		Item:      *item,
		Drops:     *drops,
		FromWorld: *fromWorld,
		Yield:     *yield,
		Radius:    *radius,
		ID:        *id,
		Player:    *player,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, name+":", err)
		os.Exit(2)
	}
	b, _ := json.Marshal(payload)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/" + name
	cl := &http.Client{Timeout: 10 * time.Second}
	resp, err := cl.Post(u, "application/json", bytes.NewReader(b))
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	fmt.Print(string(out))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}

type payloadFlags struct {
	Pos       string
	Item      string
	Drops     string
	FromWorld bool
	Yield     float64
	Radius    int
	ID        uint64
	Player    string
}

func buildPayload(name string, f payloadFlags) (map[string]any, error) {
	p := map[string]any{}
	needPos := name == "spawn" || name == "explode"
	if strings.TrimSpace(f.Pos) != "" {
		v, err := parsePos(f.Pos)
		if err != nil {
			return nil, fmt.Errorf("bad -pos: %w", err)
		}
		p["pos"] = v
	} else if needPos {
		return nil, fmt.Errorf("missing -pos")
	}

	switch name {
	case "spawn":
		if f.FromWorld {
			p["from_world"] = true
		}
		if f.Item != "" {
			p["item"] = f.Item
		}
		if f.Drops != "" {
			var ds []string
			for _, d := range strings.Split(f.Drops, ",") {
				if d = strings.TrimSpace(d); d != "" {
					ds = append(ds, d)
				}
			}
			p["drops"] = ds
		}
	case "explode":
		p["yield"] = f.Yield
		if f.Radius > 0 {
			p["radius"] = f.Radius
		}
	case "kill":
		if f.ID == 0 {
			return nil, fmt.Errorf("missing -id")
		}
		delete(p, "pos")
		p["id"] = f.ID
	case "join", "quit":
		if strings.TrimSpace(f.Player) == "" {
			return nil, fmt.Errorf("missing -player")
		}
		p["player"] = f.Player
		if name == "quit" {
			delete(p, "pos")
		}
	}
	return p, nil
}
