package world

import (
	"time"

	"tankarena.gg/internal/protocol"
	"tankarena.gg/internal/sim/arena"
	"tankarena.gg/internal/sim/rules"
)

// randomTile picks a valid tile with the world RNG, or the arena's safe
// default when there is none.
func (w *World) randomTile() arena.Point {
	tiles := w.arena.ValidTiles()
	if len(tiles) == 0 {
		return w.arena.SafeDefault()
	}
	return tiles[w.rng.Intn(len(tiles))]
}

// AddPlayer spawns a tank for id. Joining with an id already in the arena
// returns the existing tank.
func (w *World) AddPlayer(id, name string) *Tank {
	if t := w.tanks.Get(id); t != nil {
		return t
	}
	t := &Tank{
		ID:    id,
		Name:  name,
		Color: palette[w.joinedTotal%uint64(len(palette))],
	}
	w.joinedTotal++
	p := w.randomTile()
	w.rules.Spawn(&t.TankState, p.X, p.Y)
	w.tanks.Add(t)
	w.players.Store(int64(w.tanks.Len()))
	w.emit(protocol.PlayerJoinedMsg{
		Type:     protocol.TypePlayerJoined,
		PlayerID: id,
		Name:     name,
		Color:    t.Color,
	})
	w.log.Debug().Str("player", id).Str("name", name).Int("gx", p.X).Int("gy", p.Y).Msg("join")
	return t
}

// RemovePlayer drops the tank and its bookkeeping. Unknown ids are ignored.
// Bullets already fired stay in flight.
func (w *World) RemovePlayer(id string) {
	if !w.tanks.Remove(id) {
		return
	}
	w.ingest.Forget(id)
	w.players.Store(int64(w.tanks.Len()))
	w.emit(protocol.PlayerLeftMsg{Type: protocol.TypePlayerLeft, PlayerID: id})
	w.log.Debug().Str("player", id).Msg("leave")
}

func (w *World) ApplyMove(id string, dir protocol.MoveDirection) {
	t := w.tanks.Get(id)
	if t == nil {
		return
	}
	w.rules.Move(&t.TankState, dir, w.arena, w.now())
}

func (w *World) ApplyRotate(id string, dir protocol.RotateDirection) {
	t := w.tanks.Get(id)
	if t == nil {
		return
	}
	w.rules.Rotate(&t.TankState, dir)
}

func (w *World) ApplyShoot(id string) {
	t := w.tanks.Get(id)
	if t == nil {
		return
	}
	if !w.rules.Shoot(&t.TankState, w.now()) {
		return
	}
	w.spawnBullet(t)
	w.emit(protocol.PlayerShotMsg{Type: protocol.TypePlayerShot, PlayerID: id})
}

func (w *World) ApplyPickupAmmo(id string) {
	t := w.tanks.Get(id)
	if t == nil || !w.rules.CanPickup(&t.TankState, w.arena) {
		return
	}
	if !w.arena.TakeAmmo(t.GridX, t.GridY, w.rules.AmmoRespawn) {
		return
	}
	w.rules.Refill(&t.TankState)
}

func (w *World) ApplySpeedMode(id string, enabled bool) {
	t := w.tanks.Get(id)
	if t == nil {
		return
	}
	rules.SetSpeedMode(&t.TankState, enabled)
}

// advanceTanks runs heading convergence for live tanks and brings dead ones
// back once their timer is up.
func (w *World) advanceTanks(now time.Duration) {
	w.tanks.Each(func(t *Tank) {
		if t.Alive {
			w.rules.AdvanceHeading(&t.TankState)
			return
		}
		if now >= t.RespawnAt {
			w.respawn(t, now)
		}
	})
}

func (w *World) respawn(t *Tank, now time.Duration) {
	p := w.randomTile()
	streak := t.KillStreak
	w.rules.Spawn(&t.TankState, p.X, p.Y)
	t.KillStreak = streak
	t.RespawnAt = 0
	w.emit(protocol.PlayerRespawnedMsg{
		Type:      protocol.TypePlayerRespawned,
		PlayerID:  t.ID,
		Position:  protocol.Vec2{X: t.X, Y: t.Y},
		Timestamp: w.timestampMs(now),
	})
	w.log.Debug().Str("player", t.ID).Int("gx", p.X).Int("gy", p.Y).Msg("respawn")
}
