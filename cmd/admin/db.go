package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	action := fs.String("action", "", "audits: action filter")
	body := fs.Uint64("body", 0, "audits: body id filter")
	_ = fs.Parse(args)

	q := "ticks"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "blockphys.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if *limit <= 0 {
		*limit = 20
	}

	var out []any
	switch q {
	case "ticks":
		rows, err := queryTicks(db, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, r := range rows {
			out = append(out, r)
		}
	case "audits":
		rows, err := queryAudits(db, strings.ToUpper(strings.TrimSpace(*action)), *body, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, r := range rows {
			out = append(out, r)
		}
	case "kills":
		rows, err := queryKillReasons(db)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, r := range rows {
			out = append(out, r)
		}
	case "catalogs":
		rows, err := queryCatalogs(db)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, r := range rows {
			out = append(out, r)
		}
	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data] [-world WORLD|-db PATH] [-limit N] ticks|audits|kills|catalogs")
		os.Exit(2)
	}
	for _, r := range out {
		printJSON(r)
	}
}

type tickRow struct {
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

func queryTicks(db *sql.DB, limit int) ([]tickRow, error) {
	rows, err := db.Query(`SELECT tick,step_ms,elapsed_s,sub_steps,bodies,pool_size,pool_active,players,retired,spawned FROM ticks ORDER BY tick DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []tickRow
	for rows.Next() {
		var r tickRow
		var tick int64
		if err := rows.Scan(&tick, &r.StepMS, &r.ElapsedS, &r.SubSteps, &r.Bodies, &r.PoolSize, &r.PoolActive, &r.Players, &r.Retired, &r.Spawned); err != nil {
			return nil, err
		}
		r.Tick = uint64(tick)
		out = append(out, r)
	}
	return out, rows.Err()
}

type auditRow struct {
	Tick   uint64     `json:"tick"`
	Seq    int        `json:"seq"`
	Action string     `json:"action"`
	Body   uint64     `json:"body"`
	World  string     `json:"world"`
	Pos    [3]float64 `json:"pos"`
	Block  string     `json:"block,omitempty"`
	Reason string     `json:"reason,omitempty"`
}

func queryAudits(db *sql.DB, action string, body uint64, limit int) ([]auditRow, error) {
	q := `SELECT tick,seq,action,body,world,x,y,z,COALESCE(block,''),COALESCE(reason,'') FROM audits`
	var where []string
	var args []any
	if action != "" {
		where = append(where, "action=?")
		args = append(args, action)
	}
	if body != 0 {
		where = append(where, "body=?")
		args = append(args, int64(body))
	}
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY tick DESC, seq DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []auditRow
	for rows.Next() {
		var r auditRow
		var tick, bodyID int64
		if err := rows.Scan(&tick, &r.Seq, &r.Action, &bodyID, &r.World, &r.Pos[0], &r.Pos[1], &r.Pos[2], &r.Block, &r.Reason); err != nil {
			return nil, err
		}
		r.Tick = uint64(tick)
		r.Body = uint64(bodyID)
		out = append(out, r)
	}
	return out, rows.Err()
}

type killRow struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

func queryKillReasons(db *sql.DB) ([]killRow, error) {
	rows, err := db.Query(`SELECT COALESCE(reason,''),COUNT(*) FROM audits WHERE action='KILL' GROUP BY reason ORDER BY reason`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []killRow
	for rows.Next() {
		var r killRow
		if err := rows.Scan(&r.Reason, &r.Count); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type catalogRow struct {
	Name      string `json:"name"`
	Digest    string `json:"digest"`
	UpdatedAt string `json:"updated_at"`
}

func queryCatalogs(db *sql.DB) ([]catalogRow, error) {
	rows, err := db.Query(`SELECT name,digest,updated_at FROM catalogs ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []catalogRow
	for rows.Next() {
		var r catalogRow
		if err := rows.Scan(&r.Name, &r.Digest, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
