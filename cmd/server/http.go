package main

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"

	"tankarena.gg/internal/persistence/r2s3"
	"tankarena.gg/internal/sim/broadcast"
	"tankarena.gg/internal/sim/world"
	"tankarena.gg/internal/transport/ws"
)

type routes struct {
	world  *world.World
	hub    *broadcast.Hub
	mirror *r2s3.Mirror
	ws     *ws.Server

	enableAdmin   bool
	enableMetrics bool
}

func (rt routes) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/v1/config", ws.ConfigHandler(rt.world.Tuning()))
	mux.HandleFunc("/v1/ws", rt.ws.Handler())
	if rt.enableMetrics {
		mux.HandleFunc("/metrics", rt.metrics)
	}
	if rt.enableAdmin {
		// Local-only admin endpoints (do not affect simulation determinism).
		mux.HandleFunc("/admin/v1/state", rt.adminState)
	}
	return mux
}

func (rt routes) metrics(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

	id := rt.world.ID()
	m := rt.world.Metrics()
	tick := rt.world.CurrentTick()
	if m.Tick != 0 {
		tick = m.Tick
	}
	bs := rt.hub.Stats()

	// Minimal Prometheus exposition format.
	fmt.Fprintf(rw, "# HELP tankarena_world_tick Current world tick.\n")
	fmt.Fprintf(rw, "# TYPE tankarena_world_tick gauge\n")
	fmt.Fprintf(rw, "tankarena_world_tick{world=%q} %d\n", id, tick)

	fmt.Fprintf(rw, "# HELP tankarena_world_players Tanks in the arena.\n")
	fmt.Fprintf(rw, "# TYPE tankarena_world_players gauge\n")
	fmt.Fprintf(rw, "tankarena_world_players{world=%q} %d\n", id, m.Players)

	fmt.Fprintf(rw, "# HELP tankarena_world_bullets Bullets in flight.\n")
	fmt.Fprintf(rw, "# TYPE tankarena_world_bullets gauge\n")
	fmt.Fprintf(rw, "tankarena_world_bullets{world=%q} %d\n", id, m.Bullets)

	fmt.Fprintf(rw, "# HELP tankarena_world_kills_total Kills since start.\n")
	fmt.Fprintf(rw, "# TYPE tankarena_world_kills_total counter\n")
	fmt.Fprintf(rw, "tankarena_world_kills_total{world=%q} %d\n", id, m.Kills)

	fmt.Fprintf(rw, "# HELP tankarena_world_queue_depth Channel backlog depth.\n")
	fmt.Fprintf(rw, "# TYPE tankarena_world_queue_depth gauge\n")
	fmt.Fprintf(rw, "tankarena_world_queue_depth{world=%q,queue=%q} %d\n", id, "inbox", m.QueueDepths.Inbox)
	fmt.Fprintf(rw, "tankarena_world_queue_depth{world=%q,queue=%q} %d\n", id, "join", m.QueueDepths.Join)
	fmt.Fprintf(rw, "tankarena_world_queue_depth{world=%q,queue=%q} %d\n", id, "leave", m.QueueDepths.Leave)

	fmt.Fprintf(rw, "# HELP tankarena_world_step_ms Last tick step duration in milliseconds.\n")
	fmt.Fprintf(rw, "# TYPE tankarena_world_step_ms gauge\n")
	fmt.Fprintf(rw, "tankarena_world_step_ms{world=%q} %.3f\n", id, m.StepMS)

	fmt.Fprintf(rw, "# HELP tankarena_broadcast_subscribers Connected clients.\n")
	fmt.Fprintf(rw, "# TYPE tankarena_broadcast_subscribers gauge\n")
	fmt.Fprintf(rw, "tankarena_broadcast_subscribers{world=%q} %d\n", id, bs.Subscribers)

	fmt.Fprintf(rw, "# HELP tankarena_broadcast_frames_total Frames queued to clients.\n")
	fmt.Fprintf(rw, "# TYPE tankarena_broadcast_frames_total counter\n")
	fmt.Fprintf(rw, "tankarena_broadcast_frames_total{world=%q,result=%q} %d\n", id, "sent", bs.Sent)
	fmt.Fprintf(rw, "tankarena_broadcast_frames_total{world=%q,result=%q} %d\n", id, "dropped", bs.Dropped)

	if rt.mirror != nil {
		ms := rt.mirror.Stats()
		fmt.Fprintf(rw, "# HELP tankarena_archive_files_total Journal files handed to the archive mirror.\n")
		fmt.Fprintf(rw, "# TYPE tankarena_archive_files_total counter\n")
		fmt.Fprintf(rw, "tankarena_archive_files_total{world=%q,result=%q} %d\n", id, "uploaded", ms.Uploaded)
		fmt.Fprintf(rw, "tankarena_archive_files_total{world=%q,result=%q} %d\n", id, "failed", ms.Failed)
		fmt.Fprintf(rw, "tankarena_archive_files_total{world=%q,result=%q} %d\n", id, "dropped", ms.Dropped)
		fmt.Fprintf(rw, "# TYPE tankarena_archive_queue_depth gauge\n")
		fmt.Fprintf(rw, "tankarena_archive_queue_depth{world=%q} %d\n", id, ms.Depth)
	}
}

func (rt routes) adminState(rw http.ResponseWriter, r *http.Request) {
	if !isLoopbackRemote(r.RemoteAddr) {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	resp := struct {
		WorldID      string             `json:"world_id"`
		Tick         uint64             `json:"tick"`
		TuningDigest string             `json:"tuning_digest"`
		Digest       string             `json:"state_digest,omitempty"`
		Metrics      world.WorldMetrics `json:"metrics"`
		Broadcast    broadcast.Stats    `json:"broadcast"`
		State        any                `json:"state,omitempty"`
	}{
		WorldID:      rt.world.ID(),
		Tick:         rt.world.CurrentTick(),
		TuningDigest: rt.world.Tuning().Digest(),
		Metrics:      rt.world.Metrics(),
		Broadcast:    rt.hub.Stats(),
	}
	if st := rt.world.LastState(); st != nil {
		resp.State = st
	}
	_ = json.NewEncoder(rw).Encode(resp)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
