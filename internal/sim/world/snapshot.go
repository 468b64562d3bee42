package world

import (
	"time"

	"tankarena.gg/internal/protocol"
)

// buildSnapshot serializes the post-tick state. The result shares nothing with
// world state and is never mutated afterwards.
func (w *World) buildSnapshot(tick uint64, now time.Duration) *protocol.GameStateMsg {
	s := &protocol.GameStateMsg{
		Type:           protocol.TypeGameState,
		Tick:           tick,
		Timestamp:      w.timestampMs(now),
		Tanks:          make([]protocol.TankRecord, 0, w.tanks.Len()),
		Bullets:        make([]protocol.BulletRecord, 0, len(w.bullets)),
		InputSequences: w.ingest.Sequences().Copy(),
	}
	w.tanks.Each(func(t *Tank) {
		s.Tanks = append(s.Tanks, t.record(w.cfg.EpochMs))
	})
	for _, b := range w.bullets {
		s.Bullets = append(s.Bullets, b.record(w.rules.BulletRadius))
	}
	spawns := w.arena.Spawns()
	s.Arena.Ammo = make([]protocol.AmmoSpawnRecord, 0, len(spawns))
	for _, sp := range spawns {
		s.Arena.Ammo = append(s.Arena.Ammo, protocol.AmmoSpawnRecord{
			X:         sp.Pos.X,
			Y:         sp.Pos.Y,
			Present:   sp.Present,
			RespawnMs: sp.RespawnIn.Milliseconds(),
		})
	}
	return s
}
