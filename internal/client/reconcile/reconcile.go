// Package reconcile folds authoritative snapshots back into the local
// prediction. The expected state is the server's record carried forward to
// the present with every unacknowledged input replayed on top; small
// differences from it are blended away over time, large ones are snapped.
package reconcile

import (
	"math"
	"time"

	"tankarena.gg/internal/client/clock"
	"tankarena.gg/internal/client/predict"
	"tankarena.gg/internal/protocol"
	"tankarena.gg/internal/sim/tuning"
	"tankarena.gg/internal/sim/world/logic/mathx"
)

type Config struct {
	PositionThreshold   float64 // world units
	HeadingThresholdDeg float64
	SoftRate            float64 // per second
	MaxPendingAge       time.Duration
}

func ConfigFrom(t tuning.Tuning) Config {
	return Config{
		PositionThreshold:   t.Reconcile.PositionThreshold,
		HeadingThresholdDeg: t.Reconcile.HeadingThresholdDeg,
		SoftRate:            t.Reconcile.SoftCorrectionRate,
		MaxPendingAge:       time.Duration(t.Net.MaxPendingAgeMs) * time.Millisecond,
	}
}

// Result describes one reconciliation pass.
type Result struct {
	Found bool
	Hard  bool

	Ack      uint64
	Acked    int
	Replayed int
	Pruned   int

	// Errors of the prediction against the expected state.
	PositionError      float64
	HeadingError       float64
	TargetHeadingError float64
}

// Stats accumulates over the session.
type Stats struct {
	Snapshots uint64
	Hard      uint64
	Soft      uint64
	MaxError  float64
}

type Reconciler struct {
	cfg   Config
	stats Stats
}

func New(cfg Config) *Reconciler { return &Reconciler{cfg: cfg} }

func (r *Reconciler) Stats() Stats { return r.stats }

func (r *Reconciler) Reset() { r.stats = Stats{} }

// Apply reconciles p against snap for the local player at local time nowMs.
// snapMs is the moment the snapshot describes on the local clock; the
// authoritative record is carried forward from there so it is compared with
// the prediction at the same instant. Callers without an estimate pass nowMs.
// When the player is absent from the snapshot nothing changes.
func (r *Reconciler) Apply(p *predict.Predictor, snap *protocol.GameStateMsg, localID string, snapMs, nowMs int64) Result {
	var res Result
	if snap == nil {
		return res
	}
	rec, ok := snap.Tank(localID)
	if !ok {
		return res
	}
	res.Found = true
	r.stats.Snapshots++

	pending := p.Pending()
	if ack, ok := snap.InputSequences[localID]; ok {
		res.Ack = ack
		res.Acked = pending.Ack(ack)
	}

	auth := predict.FromRecord(rec, p.Rules().TileSize)
	for _, in := range pending.Items() {
		if in.Applied {
			res.Replayed++
		}
	}
	expected := p.Replay(auth, min(snapMs, nowMs), pending.Items(), nowMs)

	tank := p.Tank()
	res.PositionError = math.Abs(tank.X-expected.X) + math.Abs(tank.Y-expected.Y)
	res.HeadingError = mathx.AngleDistance(tank.Heading, expected.Heading)
	res.TargetHeadingError = mathx.AngleDistance(tank.TargetHeading, expected.TargetHeading)
	if res.PositionError > r.stats.MaxError {
		r.stats.MaxError = res.PositionError
	}

	if !p.Ready() || res.PositionError > r.cfg.PositionThreshold ||
		res.HeadingError > r.cfg.HeadingThresholdDeg || !expected.Alive {
		res.Hard = true
		r.stats.Hard++
		p.Adopt(expected)
		tank.OffsetX, tank.OffsetY = 0, 0
		tank.HeadingCorrection = 0
	} else {
		r.stats.Soft++
		// Discrete state and the grid come from the expected state right
		// away; the drawn position and the heading catch up in Settle.
		tank.OffsetX += tank.X - expected.X
		tank.OffsetY += tank.Y - expected.Y
		heading := tank.Heading
		p.Adopt(expected)
		tank.HeadingCorrection = mathx.ShortestAngle(heading, expected.Heading)
		tank.Heading = heading
	}

	if r.cfg.MaxPendingAge > 0 {
		res.Pruned = pending.PruneBefore(nowMs - r.cfg.MaxPendingAge.Milliseconds())
	}
	return res
}

// Settle blends outstanding soft corrections into the displayed tank over a
// frame of length dt.
func (r *Reconciler) Settle(tank *predict.PredictedTank, dt time.Duration) {
	if dt <= 0 {
		return
	}
	tank.OffsetX = clock.Fade(tank.OffsetX, r.cfg.SoftRate, dt)
	tank.OffsetY = clock.Fade(tank.OffsetY, r.cfg.SoftRate, dt)
	if math.Abs(tank.OffsetX) < 1e-3 {
		tank.OffsetX = 0
	}
	if math.Abs(tank.OffsetY) < 1e-3 {
		tank.OffsetY = 0
	}
	if tank.HeadingCorrection == 0 {
		return
	}
	step := tank.HeadingCorrection * clock.ExpSmoothing(r.cfg.SoftRate, dt)
	if math.Abs(tank.HeadingCorrection-step) < 1e-3 {
		step = tank.HeadingCorrection
	}
	tank.Heading = mathx.NormalizeDegrees(tank.Heading + step)
	tank.HeadingCorrection -= step
}
