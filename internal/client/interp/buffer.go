// Package interp keeps a short, time-ordered history of authoritative
// snapshots and renders remote entities a fixed delay behind the newest one,
// so their motion stays smooth across jitter and the odd lost packet.
package interp

import (
	"sort"
	"time"

	"tankarena.gg/internal/protocol"
	"tankarena.gg/internal/sim/world/logic/mathx"
)

// Buffer is a bounded ring of snapshots ordered by timestamp.
type Buffer struct {
	capacity int
	delayMs  float64
	staleMs  float64

	snaps []*protocol.GameStateMsg
}

func New(capacity int, delay, stale time.Duration) *Buffer {
	if capacity < 2 {
		capacity = 2
	}
	return &Buffer{
		capacity: capacity,
		delayMs:  float64(delay) / float64(time.Millisecond),
		staleMs:  float64(stale) / float64(time.Millisecond),
		snaps:    make([]*protocol.GameStateMsg, 0, capacity),
	}
}

// Push inserts s in timestamp order, evicting the oldest snapshot when full.
// A duplicate timestamp, or a late snapshot older than everything in a full
// buffer, is dropped and Push returns false.
func (b *Buffer) Push(s *protocol.GameStateMsg) bool {
	if s == nil {
		return false
	}
	i := sort.Search(len(b.snaps), func(i int) bool { return b.snaps[i].Timestamp >= s.Timestamp })
	if i < len(b.snaps) && b.snaps[i].Timestamp == s.Timestamp {
		return false
	}
	if len(b.snaps) == b.capacity {
		if i == 0 {
			return false
		}
		b.snaps = append(b.snaps[:0], b.snaps[1:]...)
		i--
	}
	b.snaps = append(b.snaps, nil)
	copy(b.snaps[i+1:], b.snaps[i:])
	b.snaps[i] = s
	return true
}

func (b *Buffer) Len() int             { return len(b.snaps) }
func (b *Buffer) Capacity() int        { return b.capacity }
func (b *Buffer) Delay() time.Duration { return time.Duration(b.delayMs * float64(time.Millisecond)) }
func (b *Buffer) Reset()               { b.snaps = b.snaps[:0] }

// Newest is the most recent snapshot, or nil.
func (b *Buffer) Newest() *protocol.GameStateMsg {
	if len(b.snaps) == 0 {
		return nil
	}
	return b.snaps[len(b.snaps)-1]
}

// Frame is the interpolated world at TargetMs.
type Frame struct {
	TargetMs float64
	// Alpha is the blend position between the bracketing snapshots; 0 or 1
	// when only one side exists.
	Alpha   float64
	Tanks   []protocol.TankRecord
	Bullets []protocol.BulletRecord
	Arena   protocol.ArenaState
}

// Sample renders the world at renderNowMs minus the interpolation delay.
// With snapshots on both sides of the target the continuous fields are
// blended and the discrete ones taken from the later snapshot. With only one
// side that snapshot is returned verbatim. ok is false on an empty buffer.
func (b *Buffer) Sample(renderNowMs float64) (Frame, bool) {
	target := renderNowMs - b.delayMs
	if len(b.snaps) == 0 {
		return Frame{TargetMs: target}, false
	}
	// First snapshot strictly after the target.
	j := sort.Search(len(b.snaps), func(i int) bool { return float64(b.snaps[i].Timestamp) > target })
	switch {
	case j == 0:
		return verbatim(b.snaps[0], target, 1), true
	case j == len(b.snaps):
		return verbatim(b.snaps[j-1], target, 0), true
	}
	before, after := b.snaps[j-1], b.snaps[j]
	span := float64(after.Timestamp - before.Timestamp)
	alpha := (target - float64(before.Timestamp)) / span
	return blend(before, after, target, mathx.Clamp(alpha, 0, 1)), true
}

func verbatim(s *protocol.GameStateMsg, target, alpha float64) Frame {
	return Frame{
		TargetMs: target,
		Alpha:    alpha,
		Tanks:    append([]protocol.TankRecord(nil), s.Tanks...),
		Bullets:  append([]protocol.BulletRecord(nil), s.Bullets...),
		Arena:    s.Arena,
	}
}

func blend(before, after *protocol.GameStateMsg, target, alpha float64) Frame {
	f := Frame{TargetMs: target, Alpha: alpha, Arena: after.Arena}

	prevTanks := make(map[string]protocol.TankRecord, len(before.Tanks))
	for _, t := range before.Tanks {
		prevTanks[t.ID] = t
	}
	seen := make(map[string]struct{}, len(after.Tanks))
	for _, t := range after.Tanks {
		seen[t.ID] = struct{}{}
		if p, ok := prevTanks[t.ID]; ok {
			t = blendTank(p, t, alpha)
		}
		f.Tanks = append(f.Tanks, t)
	}
	for _, t := range before.Tanks {
		if _, ok := seen[t.ID]; !ok {
			f.Tanks = append(f.Tanks, t)
		}
	}

	prevBullets := make(map[uint64]protocol.BulletRecord, len(before.Bullets))
	for _, bl := range before.Bullets {
		prevBullets[bl.ID] = bl
	}
	seenBullets := make(map[uint64]struct{}, len(after.Bullets))
	for _, bl := range after.Bullets {
		seenBullets[bl.ID] = struct{}{}
		if p, ok := prevBullets[bl.ID]; ok {
			bl.X = mathx.Lerp(p.X, bl.X, alpha)
			bl.Y = mathx.Lerp(p.Y, bl.Y, alpha)
			bl.VX = mathx.Lerp(p.VX, bl.VX, alpha)
			bl.VY = mathx.Lerp(p.VY, bl.VY, alpha)
		}
		f.Bullets = append(f.Bullets, bl)
	}
	for _, bl := range before.Bullets {
		if _, ok := seenBullets[bl.ID]; !ok {
			f.Bullets = append(f.Bullets, bl)
		}
	}
	return f
}

// blendTank interpolates position and heading; everything else comes from
// the later record. A tank that died or respawned in between jumps.
func blendTank(p, n protocol.TankRecord, alpha float64) protocol.TankRecord {
	if p.Alive != n.Alive {
		return n
	}
	n.X = mathx.Lerp(p.X, n.X, alpha)
	n.Y = mathx.Lerp(p.Y, n.Y, alpha)
	n.Heading = mathx.LerpAngle(p.Heading, n.Heading, alpha)
	return n
}

// Health summarises how well the buffer is keeping up.
type Health struct {
	// FreshnessMs is the age of the newest snapshot at renderNowMs.
	FreshnessMs float64
	// Fullness is occupancy in [0,1].
	Fullness float64
	// Score in [0,1]: 1 is a fresh, well-stocked buffer.
	Score    float64
	Degraded bool
}

func (b *Buffer) Health(renderNowMs float64) Health {
	h := Health{Fullness: float64(len(b.snaps)) / float64(b.capacity)}
	newest := b.Newest()
	if newest == nil {
		h.FreshnessMs = b.staleMs
		h.Degraded = true
		return h
	}
	h.FreshnessMs = renderNowMs - float64(newest.Timestamp)
	if h.FreshnessMs < 0 {
		h.FreshnessMs = 0
	}
	fresh := 1.0
	if b.staleMs > 0 {
		fresh = mathx.Clamp(1-h.FreshnessMs/b.staleMs, 0, 1)
	}
	// Two snapshots are enough to interpolate; beyond that the buffer is
	// fully stocked as far as the score is concerned.
	stock := mathx.Clamp(float64(len(b.snaps))/2, 0, 1)
	h.Score = 0.7*fresh + 0.3*stock
	h.Degraded = len(b.snaps) < 2 || (b.staleMs > 0 && h.FreshnessMs > b.staleMs)
	return h
}
