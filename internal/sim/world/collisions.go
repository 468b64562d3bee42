package world

import (
	"context"
	"time"

	"tankarena.gg/internal/protocol"
)

// resolveCollisions tests every live bullet against every alive tank other
// than its owner. Bullets are visited in id order and tanks in id order; the
// first tank hit takes the bullet.
func (w *World) resolveCollisions(now time.Duration) {
	kept := w.bullets[:0]
	for _, b := range w.bullets {
		if w.collide(b, now) {
			continue
		}
		kept = append(kept, b)
	}
	clearTail(w.bullets, len(kept))
	w.bullets = kept
}

func (w *World) collide(b *Bullet, now time.Duration) bool {
	for _, id := range w.tanks.order {
		t := w.tanks.byID[id]
		if t.ID == b.OwnerID || !t.Alive {
			continue
		}
		if !w.rules.Hits(&t.TankState, b.X, b.Y) {
			continue
		}
		b.Active = false
		blocked := w.rules.Blocks(&t.TankState, b.VX, b.VY)
		w.emit(protocol.BulletHitMsg{
			Type:     protocol.TypeBulletHit,
			TargetID: t.ID,
			X:        b.X,
			Y:        b.Y,
			Blocked:  blocked,
		})
		if !blocked {
			w.kill(t, b.OwnerID, now)
		}
		w.inst.Kill(context.Background(), blocked)
		return true
	}
	return false
}

func (w *World) kill(victim *Tank, killerID string, now time.Duration) {
	victim.Alive = false
	victim.KillStreak = 0
	victim.RespawnAt = now + w.tuning.RespawnDelay()
	w.killsTotal++
	w.emit(protocol.PlayerKilledMsg{
		Type:      protocol.TypePlayerKilled,
		Killer:    killerID,
		Victim:    victim.ID,
		Timestamp: w.timestampMs(now),
	})
	w.emit(protocol.KillStreakUpdateMsg{Type: protocol.TypeKillStreakUpdate, PlayerID: victim.ID, Streak: 0})
	// The shooter may have left since firing.
	if killer := w.tanks.Get(killerID); killer != nil {
		killer.KillStreak++
		w.emit(protocol.KillStreakUpdateMsg{Type: protocol.TypeKillStreakUpdate, PlayerID: killer.ID, Streak: killer.KillStreak})
	}
}
