package reconcile

import (
	"math"
	"testing"
	"time"

	"tankarena.gg/internal/client/predict"
	"tankarena.gg/internal/protocol"
	"tankarena.gg/internal/sim/arena"
	"tankarena.gg/internal/sim/rules"
	"tankarena.gg/internal/sim/tuning"
)

var testRows = []string{
	"#######",
	"#.....#",
	"#.....#",
	"#.....#",
	"#.....#",
	"#######",
}

func setup(t *testing.T) (*predict.Predictor, *Reconciler, *arena.Model) {
	t.Helper()
	layout, err := arena.ParseRows(testRows)
	if err != nil {
		t.Fatalf("ParseRows: %v", err)
	}
	tu := tuning.Defaults()
	m := arena.New(layout)
	p := predict.New(rules.New(tu), tu.TickInterval())
	p.SetArena(m)
	rec := record(1, 1, 0)
	p.Reset("me", &rec)
	return p, New(ConfigFrom(tu)), m
}

func record(gx, gy int, heading float64) protocol.TankRecord {
	x, y := rules.TileCenter(gx, 40), rules.TileCenter(gy, 40)
	target := heading
	return protocol.TankRecord{
		ID: "me", X: x, Y: y, GridX: &gx, GridY: &gy,
		Heading: heading, TargetHeading: &target,
		Ammo: 5, Shield: true, Alive: true,
	}
}

func state(ack uint64, tanks ...protocol.TankRecord) *protocol.GameStateMsg {
	return &protocol.GameStateMsg{
		Type:           protocol.TypeGameState,
		Tanks:          tanks,
		InputSequences: map[string]uint64{"me": ack},
	}
}

func TestApply_CleanPredictionIsSoftAndZero(t *testing.T) {
	p, r, _ := setup(t)
	p.Input(protocol.Move(protocol.Forward), 1000)

	res := r.Apply(p, state(1, record(2, 1, 0)), "me", 1016, 1016)
	if !res.Found || res.Hard || res.Acked != 1 || res.PositionError != 0 || res.HeadingError != 0 {
		t.Fatalf("result=%+v", res)
	}
	tk := p.Tank()
	if p.Pending().Len() != 0 || tk.GridX != 2 || tk.OffsetX != 0 || tk.HeadingCorrection != 0 {
		t.Fatalf("tank=%+v pending=%d", tk, p.Pending().Len())
	}
	if s := r.Stats(); s.Soft != 1 || s.Hard != 0 {
		t.Fatalf("stats=%+v", s)
	}
}

// The server acks only the first input and places the tank somewhere the
// client did not expect; the hard correction must equal the authoritative
// state with the two unacknowledged inputs applied through the same rules.
func TestApply_LossyHardCorrectionReplaysPending(t *testing.T) {
	p, r, m := setup(t)
	p.Input(protocol.Move(protocol.Forward), 1000)
	p.Input(protocol.Rotate(protocol.Right), 1050)
	p.Input(protocol.Move(protocol.Forward), 1400)

	auth := record(3, 2, 0)
	now := int64(1450)
	res := r.Apply(p, state(1, auth), "me", now, now)
	if !res.Hard || res.Acked != 1 || res.Replayed != 2 || p.Pending().Len() != 2 {
		t.Fatalf("result=%+v pending=%d", res, p.Pending().Len())
	}

	rs := p.Rules()
	want := predict.FromRecord(auth, 40)
	rs.Rotate(&want, protocol.Right)
	rs.AdvanceHeadingTicks(&want, 21) // 350ms
	rs.Shift(&want, protocol.Forward, m, 1400*time.Millisecond)
	rs.AdvanceHeadingTicks(&want, 3) // 50ms

	got := p.Tank()
	if got.GridX != want.GridX || got.GridY != want.GridY || got.X != want.X || got.Y != want.Y {
		t.Fatalf("position got (%d,%d) want (%d,%d)", got.GridX, got.GridY, want.GridX, want.GridY)
	}
	if got.Heading != want.Heading || got.TargetHeading != want.TargetHeading {
		t.Fatalf("heading got %v/%v want %v/%v", got.Heading, got.TargetHeading, want.Heading, want.TargetHeading)
	}
	if want.GridY != 3 || want.GridX != 3 {
		t.Fatalf("replay should have moved the tank down a row: %+v", want)
	}
}

func TestApply_SoftHeadingBlendsOverFrames(t *testing.T) {
	p, r, _ := setup(t)
	p.Tank().Heading = 10 // small drift against a server heading of 0

	res := r.Apply(p, state(0, record(1, 1, 0)), "me", 0, 0)
	if res.Hard || math.Abs(res.HeadingError-10) > 1e-9 {
		t.Fatalf("result=%+v", res)
	}
	tk := p.Tank()
	if tk.Heading != 10 || math.Abs(tk.HeadingCorrection+10) > 1e-9 {
		t.Fatalf("heading=%v correction=%v", tk.Heading, tk.HeadingCorrection)
	}
	prev := 10.0
	for i := 0; i < 120; i++ {
		r.Settle(tk, 16*time.Millisecond)
		d := math.Abs(tk.Heading)
		if tk.Heading > 180 {
			d = 360 - tk.Heading
		}
		if d > prev+1e-9 {
			t.Fatalf("frame %d: error grew %v -> %v", i, prev, d)
		}
		prev = d
	}
	if prev > 1e-3 || tk.HeadingCorrection != 0 {
		t.Fatalf("did not converge: heading=%v correction=%v", tk.Heading, tk.HeadingCorrection)
	}
}

func TestApply_SoftPositionUsesDecayingOffset(t *testing.T) {
	p, _, _ := setup(t)
	r := New(Config{PositionThreshold: 100, HeadingThresholdDeg: 30, SoftRate: 10})
	res := r.Apply(p, state(0, record(2, 1, 0)), "me", 0, 0)
	if res.Hard || res.PositionError != 40 {
		t.Fatalf("result=%+v", res)
	}
	tk := p.Tank()
	if tk.GridX != 2 || tk.OffsetX != -40 {
		t.Fatalf("grid=%d offset=%v", tk.GridX, tk.OffsetX)
	}
	if x, _ := tk.DisplayPosition(); x != 60 {
		t.Fatalf("display x=%v", x)
	}
	for i := 0; i < 120; i++ {
		r.Settle(tk, 16*time.Millisecond)
	}
	if tk.OffsetX != 0 {
		t.Fatalf("offset=%v", tk.OffsetX)
	}
}

func TestApply_AbsentPlayerAndPruning(t *testing.T) {
	p, r, _ := setup(t)
	p.Input(protocol.Shoot(), 1000)
	if res := r.Apply(p, state(0), "me", 1000, 1000); res.Found || p.Pending().Len() != 1 {
		t.Fatalf("absent player changed state: %+v", res)
	}
	// The shot was never acknowledged; past the max age it is dropped.
	res := r.Apply(p, state(0, record(1, 1, 0)), "me", 5000, 5000)
	if res.Pruned != 1 || p.Pending().Len() != 0 {
		t.Fatalf("result=%+v pending=%d", res, p.Pending().Len())
	}
}

func TestApply_DeathIsHard(t *testing.T) {
	p, r, _ := setup(t)
	dead := record(1, 1, 0)
	dead.Alive = false
	if res := r.Apply(p, state(0, dead), "me", 0, 0); !res.Hard || p.Tank().Alive {
		t.Fatalf("result=%+v alive=%v", res, p.Tank().Alive)
	}
}

// A rotate acknowledged by a snapshot produced a few ticks ago: nothing is
// pending any more, but the record still has to be carried forward to the
// present before it is compared with the prediction.
func TestApply_AckedRotateCarriedForwardIsSoft(t *testing.T) {
	p, r, _ := setup(t)
	p.Input(protocol.Rotate(protocol.Right), 1000)
	p.Advance(100 * time.Millisecond) // six ticks
	before := p.Tank().Heading

	server := predict.FromRecord(record(1, 1, 0), 40)
	p.Rules().Rotate(&server, protocol.Right)
	p.Rules().AdvanceHeading(&server) // the server applied it one tick ago
	auth := record(1, 1, server.Heading)
	auth.TargetHeading = &server.TargetHeading

	res := r.Apply(p, state(1, auth), "me", 1017, 1100)
	if res.Hard || res.Acked != 1 || p.Pending().Len() != 0 {
		t.Fatalf("result=%+v pending=%d", res, p.Pending().Len())
	}
	if res.HeadingError > 1e-6 || res.TargetHeadingError != 0 {
		t.Fatalf("heading error=%v target error=%v", res.HeadingError, res.TargetHeadingError)
	}
	tk := p.Tank()
	if math.Abs(tk.Heading-before) > 1e-6 || math.Abs(tk.HeadingCorrection) > 1e-6 {
		t.Fatalf("heading %v -> %v correction=%v", before, tk.Heading, tk.HeadingCorrection)
	}
}
