package main

import (
	"fmt"
	"io"
	"net/http"

	"voxelcraft.ai/blockphys/internal/persistence/objstore"
	"voxelcraft.ai/blockphys/internal/sim/blockphys"
	"voxelcraft.ai/blockphys/internal/transport/observer"
)

func metricsHandler(worldID string, sched *blockphys.Scheduler, obs *observer.Server, idx runtimeIndex, mirror *objstore.Mirror) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeSchedulerMetrics(rw, worldID, sched.Metrics())
		if obs != nil {
			fmt.Fprintf(rw, "# HELP blockphys_observer_sessions Connected observer sessions.\n")
			fmt.Fprintf(rw, "# TYPE blockphys_observer_sessions gauge\n")
			fmt.Fprintf(rw, "blockphys_observer_sessions{world=%q} %d\n", worldID, obs.Sessions())
		}
		if idx != nil {
			s := idx.Stats()
			fmt.Fprintf(rw, "# HELP blockphys_index_queue_depth Index writer backlog.\n")
			fmt.Fprintf(rw, "# TYPE blockphys_index_queue_depth gauge\n")
			fmt.Fprintf(rw, "blockphys_index_queue_depth{world=%q} %d\n", worldID, s.QueueDepth)
			fmt.Fprintf(rw, "# HELP blockphys_index_dropped_total Entries dropped because the index queue was full.\n")
			fmt.Fprintf(rw, "# TYPE blockphys_index_dropped_total counter\n")
			fmt.Fprintf(rw, "blockphys_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "tick", s.DropTickTotal)
			fmt.Fprintf(rw, "blockphys_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "audit", s.DropAuditTotal)
			fmt.Fprintf(rw, "# HELP blockphys_index_flush_fail_total Failed index flushes.\n")
			fmt.Fprintf(rw, "# TYPE blockphys_index_flush_fail_total counter\n")
			fmt.Fprintf(rw, "blockphys_index_flush_fail_total{world=%q} %d\n", worldID, s.FlushFailTotal)
		}
		if mirror != nil {
			writeMirrorMetrics(rw, mirror.Stats())
		}
	}
}

func writeMirrorMetrics(w io.Writer, s objstore.Stats) {
	fmt.Fprintf(w, "# HELP blockphys_log_mirror_queue_depth Current log mirror queue depth.\n")
	fmt.Fprintf(w, "# TYPE blockphys_log_mirror_queue_depth gauge\n")
	fmt.Fprintf(w, "blockphys_log_mirror_queue_depth %d\n", s.QueueDepth)

	fmt.Fprintf(w, "# HELP blockphys_log_mirror_dropped_total Files dropped because the mirror queue stayed saturated.\n")
	fmt.Fprintf(w, "# TYPE blockphys_log_mirror_dropped_total counter\n")
	fmt.Fprintf(w, "blockphys_log_mirror_dropped_total %d\n", s.DroppedTotal)

	fmt.Fprintf(w, "# HELP blockphys_log_mirror_uploads_total Mirror uploads by outcome.\n")
	fmt.Fprintf(w, "# TYPE blockphys_log_mirror_uploads_total counter\n")
	fmt.Fprintf(w, "blockphys_log_mirror_uploads_total{result=%q} %d\n", "success", s.UploadSuccessTotal)
	fmt.Fprintf(w, "blockphys_log_mirror_uploads_total{result=%q} %d\n", "fail", s.UploadFailTotal)

	fmt.Fprintf(w, "# HELP blockphys_log_mirror_last_success_unix Unix time of the last successful upload.\n")
	fmt.Fprintf(w, "# TYPE blockphys_log_mirror_last_success_unix gauge\n")
	fmt.Fprintf(w, "blockphys_log_mirror_last_success_unix %d\n", s.LastSuccessUnix)
}

// Minimal Prometheus exposition format.
func writeSchedulerMetrics(w io.Writer, worldID string, m blockphys.Metrics) {
	fmt.Fprintf(w, "# HELP blockphys_tick Current scheduler tick.\n")
	fmt.Fprintf(w, "# TYPE blockphys_tick gauge\n")
	fmt.Fprintf(w, "blockphys_tick{world=%q} %d\n", worldID, m.Tick)

	fmt.Fprintf(w, "# HELP blockphys_step_ms Last tick step duration in milliseconds.\n")
	fmt.Fprintf(w, "# TYPE blockphys_step_ms gauge\n")
	fmt.Fprintf(w, "blockphys_step_ms{world=%q} %.3f\n", worldID, m.StepMS)

	fmt.Fprintf(w, "# HELP blockphys_elapsed_seconds Simulated time advanced by the last tick.\n")
	fmt.Fprintf(w, "# TYPE blockphys_elapsed_seconds gauge\n")
	fmt.Fprintf(w, "blockphys_elapsed_seconds{world=%q} %.6f\n", worldID, m.ElapsedS)

	fmt.Fprintf(w, "# HELP blockphys_sub_steps Engine sub-steps taken by the last tick.\n")
	fmt.Fprintf(w, "# TYPE blockphys_sub_steps gauge\n")
	fmt.Fprintf(w, "blockphys_sub_steps{world=%q} %d\n", worldID, m.SubSteps)

	fmt.Fprintf(w, "# HELP blockphys_bodies Active dynamic bodies.\n")
	fmt.Fprintf(w, "# TYPE blockphys_bodies gauge\n")
	fmt.Fprintf(w, "blockphys_bodies{world=%q} %d\n", worldID, m.Bodies)

	fmt.Fprintf(w, "# HELP blockphys_players Player proxies.\n")
	fmt.Fprintf(w, "# TYPE blockphys_players gauge\n")
	fmt.Fprintf(w, "blockphys_players{world=%q} %d\n", worldID, m.Players)

	fmt.Fprintf(w, "# HELP blockphys_pool_slots Collision proxy pool slots by state.\n")
	fmt.Fprintf(w, "# TYPE blockphys_pool_slots gauge\n")
	fmt.Fprintf(w, "blockphys_pool_slots{world=%q,state=%q} %d\n", worldID, "active", m.PoolActive)
	fmt.Fprintf(w, "blockphys_pool_slots{world=%q,state=%q} %d\n", worldID, "disabled", m.PoolDisabled)
	fmt.Fprintf(w, "blockphys_pool_slots{world=%q,state=%q} %d\n", worldID, "total", m.PoolSize)

	fmt.Fprintf(w, "# HELP blockphys_bodies_spawned_total Dynamic bodies spawned.\n")
	fmt.Fprintf(w, "# TYPE blockphys_bodies_spawned_total counter\n")
	fmt.Fprintf(w, "blockphys_bodies_spawned_total{world=%q} %d\n", worldID, m.SpawnedTotal)

	fmt.Fprintf(w, "# HELP blockphys_bodies_retired_total Dynamic bodies killed.\n")
	fmt.Fprintf(w, "# TYPE blockphys_bodies_retired_total counter\n")
	fmt.Fprintf(w, "blockphys_bodies_retired_total{world=%q} %d\n", worldID, m.RetiredTotal)

	fmt.Fprintf(w, "# HELP blockphys_body_panics_total Bodies retired after a panic in their tick.\n")
	fmt.Fprintf(w, "# TYPE blockphys_body_panics_total counter\n")
	fmt.Fprintf(w, "blockphys_body_panics_total{world=%q} %d\n", worldID, m.PanicsTotal)
}
