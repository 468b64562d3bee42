package world

import (
	"tankarena.gg/internal/protocol"
	"tankarena.gg/internal/sim/rules"
)

type Bullet struct {
	ID      uint64
	OwnerID string
	X, Y    float64
	VX, VY  float64
	Life    int
	Active  bool
}

func (w *World) spawnBullet(t *Tank) {
	x, y, vx, vy := w.rules.Muzzle(&t.TankState)
	w.bullets = append(w.bullets, &Bullet{
		ID:      w.nextBulletID.Add(1),
		OwnerID: t.ID,
		X:       x,
		Y:       y,
		VX:      vx,
		VY:      vy,
		Life:    w.rules.BulletLife,
		Active:  true,
	})
}

// advanceBullets integrates, applies drag, burns one tick of life and culls
// bullets that expired or flew into a wall.
func (w *World) advanceBullets() {
	kept := w.bullets[:0]
	for _, b := range w.bullets {
		b.X += b.VX
		b.Y += b.VY
		b.VX *= w.rules.BulletDrag
		b.VY *= w.rules.BulletDrag
		b.Life--
		if b.Life <= 0 {
			continue
		}
		gx := rules.WorldToGrid(b.X, w.rules.TileSize)
		gy := rules.WorldToGrid(b.Y, w.rules.TileSize)
		if !w.arena.IsValidTile(gx, gy) {
			continue
		}
		kept = append(kept, b)
	}
	clearTail(w.bullets, len(kept))
	w.bullets = kept
}

func clearTail(s []*Bullet, n int) {
	for i := n; i < len(s); i++ {
		s[i] = nil
	}
}

func (b *Bullet) record(radius float64) protocol.BulletRecord {
	return protocol.BulletRecord{
		ID:      b.ID,
		OwnerID: b.OwnerID,
		X:       b.X,
		Y:       b.Y,
		VX:      b.VX,
		VY:      b.VY,
		Life:    b.Life,
		Radius:  radius,
		Active:  b.Active,
	}
}
