package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"voxelcraft.ai/blockphys/internal/sim/blockphys"
	"voxelcraft.ai/blockphys/internal/sim/host"
	"voxelcraft.ai/blockphys/internal/sim/tuning"
)

// adminHost is the slice of the host world the admin endpoints touch. All
// calls happen on the scheduler loop via Do.
type adminHost interface {
	Name() string
	IsOccluding(pos host.Vec3i) bool
	BlockState(pos host.Vec3i) host.BlockState
	SetEmpty(pos host.Vec3i)
	ItemFor(block string) host.Item
	MovePlayer(playerID string, loc host.Location)
	RemovePlayer(playerID string)
}

type adminAPI struct {
	sched *blockphys.Scheduler
	host  adminHost
	log   *log.Logger

	timeout time.Duration
}

func newAdminAPI(sched *blockphys.Scheduler, h adminHost, logger *log.Logger) *adminAPI {
	return &adminAPI{sched: sched, host: h, log: logger, timeout: 5 * time.Second}
}

func (a *adminAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("/admin/v1/state", a.local(http.MethodGet, a.handleState))
	mux.HandleFunc("/admin/v1/spawn", a.local(http.MethodPost, a.handleSpawn))
	mux.HandleFunc("/admin/v1/explode", a.local(http.MethodPost, a.handleExplode))
	mux.HandleFunc("/admin/v1/kill", a.local(http.MethodPost, a.handleKill))
	mux.HandleFunc("/admin/v1/join", a.local(http.MethodPost, a.handleJoin))
	mux.HandleFunc("/admin/v1/quit", a.local(http.MethodPost, a.handleQuit))
}

func (a *adminAPI) local(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

// do runs fn on the scheduler loop and maps loop errors to HTTP statuses.
func (a *adminAPI) do(rw http.ResponseWriter, r *http.Request, fn func() error) bool {
	ctx, cancel := context.WithTimeout(r.Context(), a.timeout)
	defer cancel()
	var fnErr error
	if err := a.sched.Do(ctx, func() { fnErr = fn() }); err != nil {
		writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
		return false
	}
	if fnErr != nil {
		code := http.StatusBadRequest
		switch {
		case errors.Is(fnErr, blockphys.ErrStopped):
			code = http.StatusServiceUnavailable
		case errors.Is(fnErr, blockphys.ErrUnknownPlayer):
			code = http.StatusNotFound
		}
		writeJSON(rw, code, map[string]any{"ok": false, "error": fnErr.Error()})
		return false
	}
	return true
}

func (a *adminAPI) handleState(rw http.ResponseWriter, r *http.Request) {
	var st blockphys.State
	if !a.do(rw, r, func() error { st = a.sched.State(); return nil }) {
		return
	}
	writeJSON(rw, http.StatusOK, struct {
		World   string            `json:"world"`
		State   blockphys.State   `json:"state"`
		Metrics blockphys.Metrics `json:"metrics"`
	}{
		World:   a.host.Name(),
		State:   st,
		Metrics: a.sched.Metrics(),
	})
}

type spawnReq struct {
	Pos       [3]float64 `json:"pos"`
	Item      string     `json:"item,omitempty"`
	Drops     []string   `json:"drops,omitempty"`
	FromWorld bool       `json:"from_world,omitempty"`
}

func (a *adminAPI) handleSpawn(rw http.ResponseWriter, r *http.Request) {
	var req spawnReq
	if !decodeJSON(rw, r, &req) {
		return
	}
	if err := checkPos(req.Pos, a.sched.Tuning()); err != nil {
		writeJSON(rw, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	// Bodies belong to the loop goroutine; copy what the response needs
	// while still on it.
	var (
		id   blockphys.BodyID
		pos  mgl64.Vec3
		head string
	)
	ok := a.do(rw, r, func() error {
		loc := host.Location{World: a.host.Name(), Pos: mgl64.Vec3(req.Pos)}
		var body *blockphys.Body
		var err error
		switch {
		case req.FromWorld:
			cell := loc.Cell()
			if !a.host.IsOccluding(cell) {
				return errors.New("no solid block at position")
			}
			state := a.host.BlockState(cell)
			a.host.SetEmpty(cell)
			body, err = a.sched.SpawnBlockFromWorld(host.Location{World: loc.World, Pos: cell.Center()}, state)
		case req.Item != "" && len(req.Drops) > 0:
			drops := make([]host.Item, 0, len(req.Drops))
			for _, d := range req.Drops {
				drops = append(drops, a.host.ItemFor(d))
			}
			body, err = a.sched.SpawnBlockWithDrops(loc, a.host.ItemFor(req.Item), drops)
		case req.Item != "":
			body, err = a.sched.SpawnBlockItem(loc, a.host.ItemFor(req.Item))
		default:
			body, err = a.sched.SpawnBlock(loc)
		}
		if err != nil {
			return err
		}
		id, pos, head = body.ID(), body.Location().Pos, body.HeadItem().ID
		return nil
	})
	if !ok {
		return
	}
	a.logf("admin spawn id=%d pos=%v head=%s", id, pos, head)
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "id": uint64(id)})
}

type explodeReq struct {
	Pos    [3]float64 `json:"pos"`
	Yield  float64    `json:"yield"`
	Radius int        `json:"radius,omitempty"`
}

func (a *adminAPI) handleExplode(rw http.ResponseWriter, r *http.Request) {
	var req explodeReq
	if !decodeJSON(rw, r, &req) {
		return
	}
	if req.Yield <= 0 || req.Yield > 64 {
		writeJSON(rw, http.StatusBadRequest, map[string]any{"ok": false, "error": "yield must be in (0, 64]"})
		return
	}
	if err := checkPos(req.Pos, a.sched.Tuning()); err != nil {
		writeJSON(rw, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	if req.Radius <= 0 {
		req.Radius = int(math.Ceil(req.Yield))
	}
	if req.Radius > 16 {
		req.Radius = 16
	}
	var ids []uint64
	var cells []host.Vec3i
	ok := a.do(rw, r, func() error {
		origin := host.Location{World: a.host.Name(), Pos: mgl64.Vec3(req.Pos)}
		cells = explosionCells(origin.Cell(), req.Radius)
		spawned, err := a.sched.Explode(origin, req.Yield, cells)
		if err != nil {
			return err
		}
		ids = make([]uint64, 0, len(spawned))
		for _, b := range spawned {
			ids = append(ids, uint64(b.ID()))
		}
		return nil
	})
	if !ok {
		return
	}
	a.logf("admin explode pos=%v yield=%.2f cells=%d spawned=%d", req.Pos, req.Yield, len(cells), len(ids))
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "cells": len(cells), "spawned": ids})
}

// checkPos rejects positions that are not finite or that lie outside the
// generated world's horizontal boundary or the body height bounds.
func checkPos(p [3]float64, tune tuning.Tuning) error {
	for _, v := range p {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New("pos must be finite")
		}
	}
	if r := float64(tune.World.BoundaryR) + 1; r > 1 && (math.Abs(p[0]) > r || math.Abs(p[2]) > r) {
		return fmt.Errorf("pos outside world boundary %d", tune.World.BoundaryR)
	}
	if p[1] < tune.MinY || p[1] > tune.MaxY {
		return fmt.Errorf("pos y must be within [%g, %g]", tune.MinY, tune.MaxY)
	}
	return nil
}

// explosionCells lists the cells within radius of center, inclusive.
func explosionCells(center host.Vec3i, radius int) []host.Vec3i {
	var out []host.Vec3i
	r2 := radius * radius
	for dx := -radius; dx <= radius; dx++ {
		for dy := -radius; dy <= radius; dy++ {
			for dz := -radius; dz <= radius; dz++ {
				if dx*dx+dy*dy+dz*dz > r2 {
					continue
				}
				out = append(out, host.Vec3i{X: center.X + dx, Y: center.Y + dy, Z: center.Z + dz})
			}
		}
	}
	return out
}

func (a *adminAPI) handleKill(rw http.ResponseWriter, r *http.Request) {
	var req struct {
		ID uint64 `json:"id"`
	}
	if !decodeJSON(rw, r, &req) {
		return
	}
	found := false
	ok := a.do(rw, r, func() error {
		for _, b := range a.sched.Bodies() {
			if uint64(b.ID()) == req.ID {
				found = b.Kill()
				break
			}
		}
		return nil
	})
	if !ok {
		return
	}
	if !found {
		writeJSON(rw, http.StatusNotFound, map[string]any{"ok": false, "error": "unknown body"})
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true})
}

type playerReq struct {
	Player string      `json:"player"`
	Pos    *[3]float64 `json:"pos,omitempty"`
}

func (a *adminAPI) handleJoin(rw http.ResponseWriter, r *http.Request) {
	var req playerReq
	if !decodeJSON(rw, r, &req) {
		return
	}
	req.Player = strings.TrimSpace(req.Player)
	if req.Player == "" {
		writeJSON(rw, http.StatusBadRequest, map[string]any{"ok": false, "error": "missing player"})
		return
	}
	if req.Pos != nil {
		if err := checkPos(*req.Pos, a.sched.Tuning()); err != nil {
			writeJSON(rw, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
			return
		}
	}
	ok := a.do(rw, r, func() error {
		if req.Pos != nil {
			a.host.MovePlayer(req.Player, host.Location{World: a.host.Name(), Pos: mgl64.Vec3(*req.Pos)})
		}
		return a.sched.PlayerJoin(req.Player)
	})
	if !ok {
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true})
}

func (a *adminAPI) handleQuit(rw http.ResponseWriter, r *http.Request) {
	var req playerReq
	if !decodeJSON(rw, r, &req) {
		return
	}
	ok := a.do(rw, r, func() error {
		a.sched.PlayerQuit(req.Player)
		a.host.RemovePlayer(req.Player)
		return nil
	})
	if !ok {
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true})
}

func (a *adminAPI) logf(format string, args ...any) {
	if a.log != nil {
		a.log.Printf(format, args...)
	}
}

func decodeJSON(rw http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(rw, r.Body, 64*1024))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(rw, http.StatusBadRequest, map[string]any{"ok": false, "error": "bad json: " + err.Error()})
		return false
	}
	return true
}

func writeJSON(rw http.ResponseWriter, code int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)
	_ = json.NewEncoder(rw).Encode(v)
}
