// Package predict runs the local player's tank ahead of the server. Inputs
// are applied immediately with the same rules the server uses, kept in a
// pending queue until acknowledged, and replayed on top of authoritative
// state during reconciliation.
package predict

import (
	"math"
	"time"

	"tankarena.gg/internal/protocol"
	"tankarena.gg/internal/sim/rules"
)

// Arena is what prediction needs from the local copy of the map. A predicted
// pickup takes the spawn locally; the next snapshot restores the server's view.
type Arena interface {
	rules.Grid
	rules.AmmoSource
	TakeAmmo(x, y int, respawn time.Duration) bool
}

// PredictedTank is the local player's tank as currently displayed.
type PredictedTank struct {
	rules.TankState
	ID string

	// OffsetX/OffsetY shift the drawn position after a soft correction and
	// decay to zero; the simulated position stays on the grid.
	OffsetX float64
	OffsetY float64
	// HeadingCorrection is the part of a soft heading correction not yet
	// blended in.
	HeadingCorrection float64
}

// DisplayPosition is the simulated position plus the correction offset.
func (t *PredictedTank) DisplayPosition() (float64, float64) {
	return t.X + t.OffsetX, t.Y + t.OffsetY
}

type Predictor struct {
	rules    rules.Rules
	interval time.Duration

	arena   Arena
	tank    PredictedTank
	pending PendingQueue
	nextSeq uint64
	acc     time.Duration
	ready   bool
}

func New(r rules.Rules, interval time.Duration) *Predictor {
	if interval <= 0 {
		interval = time.Second / 60
	}
	return &Predictor{rules: r, interval: interval}
}

func (p *Predictor) SetArena(a Arena) { p.arena = a }

// Reset adopts the authoritative record as the starting state and clears
// every pending input. Used on join and reconnect.
func (p *Predictor) Reset(id string, rec *protocol.TankRecord) {
	p.tank = PredictedTank{ID: id}
	p.pending.Reset()
	p.acc = 0
	p.ready = false
	if rec != nil {
		p.tank.TankState = FromRecord(*rec, p.rules.TileSize)
		p.ready = true
	}
}

// Adopt replaces the simulated state, keeping the local cooldown clocks
// which the server does not send.
func (p *Predictor) Adopt(s rules.TankState) {
	s.MoveReadyAt = p.tank.MoveReadyAt
	s.ShotReadyAt = p.tank.ShotReadyAt
	p.tank.TankState = s
	p.ready = true
}

func (p *Predictor) Ready() bool             { return p.ready }
func (p *Predictor) Tank() *PredictedTank    { return &p.tank }
func (p *Predictor) Pending() *PendingQueue  { return &p.pending }
func (p *Predictor) Rules() rules.Rules      { return p.rules }
func (p *Predictor) Interval() time.Duration { return p.interval }

// Input predicts cmd at local time nowMs and queues it. The returned input
// carries the stamped command to send to the server.
func (p *Predictor) Input(cmd protocol.Command, nowMs int64) PendingInput {
	p.nextSeq++
	in := PendingInput{
		Cmd:      protocol.Stamp(cmd, p.nextSeq, nowMs),
		Sequence: p.nextSeq,
		SentAt:   nowMs,
	}
	if p.ready {
		in.Applied = p.apply(&p.tank.TankState, cmd, msDuration(nowMs), true)
	}
	p.pending.Push(in)
	return in
}

// Advance runs heading convergence for every whole tick contained in dt,
// carrying the remainder to the next call.
func (p *Predictor) Advance(dt time.Duration) int {
	if dt <= 0 {
		return 0
	}
	p.acc += dt
	n := 0
	for p.acc >= p.interval {
		p.acc -= p.interval
		p.rules.AdvanceHeading(&p.tank.TankState)
		n++
	}
	return n
}

// Replay brings from, the state as of local time fromMs, forward to nowMs:
// the locally accepted pending inputs are applied without cooldown gates and
// the heading advances by the ticks elapsed before, between and after them.
// Inputs sent before fromMs were not yet part of from and still apply.
func (p *Predictor) Replay(from rules.TankState, fromMs int64, pending []PendingInput, nowMs int64) rules.TankState {
	s := from
	last := fromMs
	for _, in := range pending {
		if !in.Applied {
			continue
		}
		p.rules.AdvanceHeadingTicks(&s, p.ticksBetween(last, in.SentAt))
		p.apply(&s, in.Cmd, msDuration(in.SentAt), false)
		last = in.SentAt
	}
	p.rules.AdvanceHeadingTicks(&s, p.ticksBetween(last, nowMs))
	return s
}

func (p *Predictor) ticksBetween(fromMs, toMs int64) int {
	if toMs <= fromMs {
		return 0
	}
	return int(math.Round(float64(msDuration(toMs-fromMs)) / float64(p.interval)))
}

func (p *Predictor) apply(s *rules.TankState, cmd protocol.Command, now time.Duration, gated bool) bool {
	switch c := cmd.(type) {
	case protocol.MoveCmd:
		if gated {
			return p.rules.Move(s, c.Direction, p.arena, now)
		}
		return p.rules.Shift(s, c.Direction, p.arena, now)
	case protocol.RotateCmd:
		return p.rules.Rotate(s, c.Direction)
	case protocol.ShootCmd:
		if gated {
			return p.rules.Shoot(s, now)
		}
		return p.rules.Fire(s, now)
	case protocol.PickupAmmoCmd:
		if gated {
			if !p.rules.CanPickup(s, p.arena) || !p.arena.TakeAmmo(s.GridX, s.GridY, p.rules.AmmoRespawn) {
				return false
			}
		} else if !s.Alive {
			return false
		}
		p.rules.Refill(s)
		return true
	case protocol.SpeedModeCmd:
		return rules.SetSpeedMode(s, c.Enabled)
	}
	return false
}

// FromRecord converts an authoritative tank record into rule state. Missing
// grid fields are derived from the world position.
func FromRecord(rec protocol.TankRecord, tileSize float64) rules.TankState {
	s := rules.TankState{
		X:          rec.X,
		Y:          rec.Y,
		Heading:    rec.Heading,
		Ammo:       rec.Ammo,
		Shield:     rec.Shield,
		SpeedMode:  rec.SpeedMode,
		Alive:      rec.Alive,
		KillStreak: rec.KillStreak,
	}
	if rec.GridX != nil && rec.GridY != nil {
		s.GridX, s.GridY = *rec.GridX, *rec.GridY
	} else {
		s.GridX = rules.WorldToGrid(rec.X, tileSize)
		s.GridY = rules.WorldToGrid(rec.Y, tileSize)
	}
	s.TargetHeading = rec.Heading
	if rec.TargetHeading != nil {
		s.TargetHeading = *rec.TargetHeading
	}
	return s
}

func msDuration(ms int64) time.Duration { return time.Duration(ms) * time.Millisecond }
