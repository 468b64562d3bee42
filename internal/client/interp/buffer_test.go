package interp

import (
	"math"
	"testing"
	"time"

	"tankarena.gg/internal/protocol"
)

func snap(ts int64, tanks ...protocol.TankRecord) *protocol.GameStateMsg {
	return &protocol.GameStateMsg{Type: protocol.TypeGameState, Timestamp: ts, Tanks: tanks}
}

func tank(id string, x, y, heading float64) protocol.TankRecord {
	return protocol.TankRecord{ID: id, X: x, Y: y, Heading: heading, Alive: true, Ammo: 5}
}

func TestSample_Midpoint(t *testing.T) {
	b := New(8, 100*time.Millisecond, 250*time.Millisecond)
	b.Push(snap(1000, tank("p", 0, 0, 0)))
	after := tank("p", 100, 0, 0)
	after.Ammo = 4
	b.Push(snap(1100, after))

	f, ok := b.Sample(1150)
	if !ok {
		t.Fatalf("expected a frame")
	}
	if f.TargetMs != 1050 || f.Alpha != 0.5 {
		t.Fatalf("target=%v alpha=%v", f.TargetMs, f.Alpha)
	}
	if len(f.Tanks) != 1 || f.Tanks[0].X != 50 {
		t.Fatalf("tanks=%+v", f.Tanks)
	}
	if f.Tanks[0].Ammo != 4 {
		t.Fatalf("discrete field should come from the later snapshot, ammo=%d", f.Tanks[0].Ammo)
	}
}

func TestSample_HeadingTakesShortestArc(t *testing.T) {
	b := New(8, 0, 0)
	b.Push(snap(0, tank("p", 0, 0, 350)))
	b.Push(snap(100, tank("p", 0, 0, 10)))
	f, _ := b.Sample(50)
	h := f.Tanks[0].Heading
	if math.Abs(h) > 1e-9 && math.Abs(h-360) > 1e-9 {
		t.Fatalf("heading=%v, want 0", h)
	}
}

func TestSample_OneSidedAndEmpty(t *testing.T) {
	b := New(8, 100*time.Millisecond, 0)
	if _, ok := b.Sample(1000); ok {
		t.Fatalf("empty buffer must not produce a frame")
	}
	b.Push(snap(1000, tank("p", 10, 0, 0)))
	b.Push(snap(1100, tank("p", 20, 0, 0)))

	f, ok := b.Sample(1050) // target 950: only an after snapshot
	if !ok || f.Tanks[0].X != 10 || f.Alpha != 1 {
		t.Fatalf("only-after frame=%+v ok=%v", f, ok)
	}
	f, ok = b.Sample(1500) // target 1400: hold the newest
	if !ok || f.Tanks[0].X != 20 || f.Alpha != 0 {
		t.Fatalf("only-before frame=%+v ok=%v", f, ok)
	}
}

func TestSample_EntitiesInOneSnapshotPassThrough(t *testing.T) {
	b := New(8, 0, 0)
	b.Push(snap(0, tank("gone", 5, 5, 0), tank("both", 0, 0, 0)))
	b.Push(snap(100, tank("both", 10, 0, 0), tank("new", 7, 7, 0)))
	f, _ := b.Sample(50)
	got := map[string]float64{}
	for _, tk := range f.Tanks {
		got[tk.ID] = tk.X
	}
	if len(got) != 3 || got["both"] != 5 || got["gone"] != 5 || got["new"] != 7 {
		t.Fatalf("tanks=%v", got)
	}
}

func TestSample_BulletsInterpolateByID(t *testing.T) {
	b := New(8, 0, 0)
	s0 := snap(0)
	s0.Bullets = []protocol.BulletRecord{{ID: 1, X: 0, Y: 0, VX: 8}}
	s1 := snap(100)
	s1.Bullets = []protocol.BulletRecord{{ID: 1, X: 40, Y: 20, VX: 8}, {ID: 2, X: 3}}
	b.Push(s0)
	b.Push(s1)
	f, _ := b.Sample(25)
	if len(f.Bullets) != 2 || f.Bullets[0].X != 10 || f.Bullets[0].Y != 5 || f.Bullets[1].X != 3 {
		t.Fatalf("bullets=%+v", f.Bullets)
	}
}

func TestSample_DeathIsNotBlended(t *testing.T) {
	b := New(8, 0, 0)
	dead := tank("p", 400, 400, 0)
	dead.Alive = false
	b.Push(snap(0, tank("p", 0, 0, 0)))
	b.Push(snap(100, dead))
	f, _ := b.Sample(50)
	if f.Tanks[0].X != 400 || f.Tanks[0].Alive {
		t.Fatalf("tank=%+v", f.Tanks[0])
	}
}

func TestPush_OrderingDuplicatesAndEviction(t *testing.T) {
	b := New(3, 0, 0)
	for _, ts := range []int64{200, 100, 300} {
		if !b.Push(snap(ts)) {
			t.Fatalf("push %d rejected", ts)
		}
	}
	if b.Push(snap(200)) {
		t.Fatalf("duplicate timestamp accepted")
	}
	if b.Push(snap(50)) {
		t.Fatalf("late snapshot older than a full buffer accepted")
	}
	if !b.Push(snap(400)) {
		t.Fatalf("newer snapshot rejected")
	}
	if b.Len() != 3 {
		t.Fatalf("len=%d", b.Len())
	}
	var got []int64
	for _, s := range b.snaps {
		got = append(got, s.Timestamp)
	}
	if got[0] != 200 || got[1] != 300 || got[2] != 400 {
		t.Fatalf("order=%v", got)
	}
	if b.Newest().Timestamp != 400 {
		t.Fatalf("newest=%d", b.Newest().Timestamp)
	}
	if !b.Push(snap(250)) || b.snaps[0].Timestamp != 250 {
		t.Fatalf("out-of-order insert inside the window")
	}
	b.Reset()
	if b.Len() != 0 || b.Newest() != nil {
		t.Fatalf("reset")
	}
}

func TestHealth(t *testing.T) {
	b := New(4, 100*time.Millisecond, 250*time.Millisecond)
	if h := b.Health(0); !h.Degraded || h.Score != 0 {
		t.Fatalf("empty health=%+v", h)
	}
	b.Push(snap(1000))
	b.Push(snap(1016))
	h := b.Health(1016)
	if h.Degraded || math.Abs(h.Score-1) > 1e-9 || h.Fullness != 0.5 || h.FreshnessMs != 0 {
		t.Fatalf("fresh health=%+v", h)
	}
	h = b.Health(1516)
	if !h.Degraded || h.FreshnessMs != 500 || math.Abs(h.Score-0.3) > 1e-9 {
		t.Fatalf("stale health=%+v", h)
	}
}
