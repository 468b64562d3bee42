package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"tankarena.gg/internal/sim/broadcast"
	"tankarena.gg/internal/sim/tuning"
	"tankarena.gg/internal/sim/world"
	"tankarena.gg/internal/transport/ws"
)

func newRoutes(t *testing.T, admin bool) (routes, *world.World) {
	t.Helper()
	w, err := world.New(world.WorldConfig{ID: "test", Tuning: tuning.Defaults(), EpochMs: 1_000})
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	hub := broadcast.NewHub(nil, zerolog.Nop())
	w.SetPublisher(hub)
	return routes{
		world:         w,
		hub:           hub,
		ws:            ws.NewServer(w, hub, zerolog.Nop()),
		enableAdmin:   admin,
		enableMetrics: true,
	}, w
}

func TestMetricsExposition(t *testing.T) {
	rt, w := newRoutes(t, false)
	w.StepOnce(nil, nil, nil)
	w.StepOnce(nil, nil, nil)

	rec := httptest.NewRecorder()
	rt.mux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`tankarena_world_tick{world="test"} 2`,
		`tankarena_world_players{world="test"} 0`,
		`tankarena_world_queue_depth{world="test",queue="inbox"} 0`,
		`tankarena_broadcast_subscribers{world="test"} 0`,
		"# TYPE tankarena_world_kills_total counter",
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("missing %q in:\n%s", want, body)
		}
	}
}

func TestAdminStateLoopbackOnly(t *testing.T) {
	rt, w := newRoutes(t, true)
	w.StepOnce(nil, nil, nil)
	mux := rt.mux()

	req := httptest.NewRequest(http.MethodGet, "/admin/v1/state", nil)
	req.RemoteAddr = "203.0.113.7:5555"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("remote status=%d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/v1/state", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("loopback status=%d", rec.Code)
	}
	var got struct {
		WorldID      string `json:"world_id"`
		Tick         uint64 `json:"tick"`
		TuningDigest string `json:"tuning_digest"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.WorldID != "test" || got.Tick != 1 || got.TuningDigest != w.Tuning().Digest() {
		t.Fatalf("unexpected state: %+v", got)
	}
}

func TestAdminDisabled(t *testing.T) {
	rt, _ := newRoutes(t, false)
	req := httptest.NewRequest(http.MethodGet, "/admin/v1/state", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	rec := httptest.NewRecorder()
	rt.mux().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:80": true,
		"[::1]:80":     true,
		"::1":          true,
		"10.0.0.1:80":  false,
		"not-an-ip:80": false,
		"":             false,
	}
	for in, want := range cases {
		if got := isLoopbackRemote(in); got != want {
			t.Fatalf("isLoopbackRemote(%q)=%v want %v", in, got, want)
		}
	}
}
