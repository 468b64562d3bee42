// Package rules holds the movement, rotation and combat formulas shared by the
// authoritative world and the client predictor. Both sides call the same
// functions with the same tuning, so a prediction only diverges from the
// server when the inputs or timing differ.
package rules

import (
	"math"
	"time"

	"tankarena.gg/internal/protocol"
	"tankarena.gg/internal/sim/tuning"
	"tankarena.gg/internal/sim/world/logic/mathx"
)

// Grid answers tile validity.
type Grid interface {
	IsValidTile(x, y int) bool
}

// AmmoSource answers whether a tile currently holds ammo.
type AmmoSource interface {
	HasAmmo(x, y int) bool
}

// TankState is the part of a tank the formulas read and write.
type TankState struct {
	GridX int
	GridY int
	X     float64
	Y     float64

	Heading       float64
	TargetHeading float64

	Ammo       int
	Shield     bool
	SpeedMode  bool
	Alive      bool
	KillStreak int

	// Earliest clock values at which the next move/shot is accepted. The
	// server uses sim time, the predictor its local clock.
	MoveReadyAt time.Duration
	ShotReadyAt time.Duration
}

// Rules is the tuning-derived parameter set.
type Rules struct {
	TileSize          float64
	RotateStep        float64
	LerpFraction      float64
	SnapDeg           float64
	MoveCooldown      time.Duration
	SpeedMoveCooldown time.Duration
	ShootCooldown     time.Duration
	InitialAmmo       int
	MaxAmmo           int
	AmmoPerPickup     int
	AmmoRespawn       time.Duration
	TankRadius        float64
	BulletSpeed       float64
	BulletRadius      float64
	BulletLife        int
	BulletDrag        float64
	ShieldArcHalf     float64
}

func New(t tuning.Tuning) Rules {
	return Rules{
		TileSize:          t.TileSize,
		RotateStep:        t.Tank.RotateStepDeg,
		LerpFraction:      t.Tank.HeadingLerpFraction,
		SnapDeg:           t.Tank.HeadingSnapDeg,
		MoveCooldown:      t.MoveCooldown(false),
		SpeedMoveCooldown: t.MoveCooldown(true),
		ShootCooldown:     t.ShootCooldown(),
		InitialAmmo:       t.Tank.InitialAmmo,
		MaxAmmo:           t.Tank.MaxAmmo,
		AmmoPerPickup:     t.Tank.AmmoPerPickup,
		AmmoRespawn:       t.AmmoRespawn(),
		TankRadius:        t.Tank.Radius,
		BulletSpeed:       t.Bullet.Speed,
		BulletRadius:      t.Bullet.Radius,
		BulletLife:        t.Bullet.LifeTicks,
		BulletDrag:        t.Bullet.Drag,
		ShieldArcHalf:     t.Tank.ShieldArcHalfDeg,
	}
}

// TileCenter maps a grid coordinate to the world coordinate of its centre.
func TileCenter(g int, tileSize float64) float64 {
	return float64(g)*tileSize + tileSize/2
}

// WorldToGrid maps a world coordinate to the tile containing it.
func WorldToGrid(v, tileSize float64) int {
	return int(math.Floor(v / tileSize))
}

// Place puts the tank on tile (gx,gy) and derives its world position.
func (r Rules) Place(s *TankState, gx, gy int) {
	s.GridX, s.GridY = gx, gy
	s.X = TileCenter(gx, r.TileSize)
	s.Y = TileCenter(gy, r.TileSize)
}

// CardinalVector is the grid step for moving forward at the current heading:
// rounded cos/sin of the heading. Mid-rotation near a diagonal the rounded
// vector has two non-zero components; the target heading decides then.
func CardinalVector(heading, target float64) (dx, dy int) {
	dx, dy = roundedDir(heading)
	if dx != 0 && dy != 0 {
		dx, dy = roundedDir(target)
	}
	return dx, dy
}

func roundedDir(deg float64) (int, int) {
	rad := mathx.Radians(deg)
	return int(math.Round(math.Cos(rad))), int(math.Round(math.Sin(rad)))
}

// MoveCooldownFor is the move cooldown in the tank's current mode.
func (r Rules) MoveCooldownFor(s *TankState) time.Duration {
	if s.SpeedMode {
		return r.SpeedMoveCooldown
	}
	return r.MoveCooldown
}

// Move applies a move command at clock now, honouring the cooldown.
func (r Rules) Move(s *TankState, dir protocol.MoveDirection, g Grid, now time.Duration) bool {
	if !s.Alive || now < s.MoveReadyAt {
		return false
	}
	return r.Shift(s, dir, g, now)
}

// Shift moves the tank one tile without the cooldown gate. Invalid
// destinations are rejected.
func (r Rules) Shift(s *TankState, dir protocol.MoveDirection, g Grid, now time.Duration) bool {
	sign := dir.Sign()
	if sign == 0 || !s.Alive {
		return false
	}
	dx, dy := CardinalVector(s.Heading, s.TargetHeading)
	nx, ny := s.GridX+dx*sign, s.GridY+dy*sign
	if g == nil || !g.IsValidTile(nx, ny) {
		return false
	}
	r.Place(s, nx, ny)
	s.MoveReadyAt = now + r.MoveCooldownFor(s)
	return true
}

// Rotate steps the target heading; the heading itself follows in AdvanceHeading.
func (r Rules) Rotate(s *TankState, dir protocol.RotateDirection) bool {
	sign := dir.Sign()
	if sign == 0 || !s.Alive {
		return false
	}
	s.TargetHeading = mathx.NormalizeDegrees(s.TargetHeading + float64(sign)*r.RotateStep)
	return true
}

// AdvanceHeading runs one tick of heading convergence along the shortest arc.
func (r Rules) AdvanceHeading(s *TankState) {
	delta := mathx.ShortestAngle(s.Heading, s.TargetHeading)
	if delta == 0 {
		return
	}
	if math.Abs(delta) <= r.SnapDeg {
		s.Heading = s.TargetHeading
		return
	}
	s.Heading = mathx.NormalizeDegrees(s.Heading + delta*r.LerpFraction)
}

// AdvanceHeadingTicks runs n ticks of heading convergence.
func (r Rules) AdvanceHeadingTicks(s *TankState, n int) {
	for i := 0; i < n && s.Heading != s.TargetHeading; i++ {
		r.AdvanceHeading(s)
	}
}

// Shoot spends one round at clock now, honouring ammo and cooldown.
func (r Rules) Shoot(s *TankState, now time.Duration) bool {
	if !s.Alive || now < s.ShotReadyAt {
		return false
	}
	return r.Fire(s, now)
}

// Fire spends one round without the cooldown gate.
func (r Rules) Fire(s *TankState, now time.Duration) bool {
	if !s.Alive || s.Ammo <= 0 {
		return false
	}
	s.Ammo--
	s.ShotReadyAt = now + r.ShootCooldown
	return true
}

// Muzzle returns where a bullet fired now starts and its velocity.
func (r Rules) Muzzle(s *TankState) (x, y, vx, vy float64) {
	rad := mathx.Radians(s.Heading)
	cos, sin := math.Cos(rad), math.Sin(rad)
	return s.X + cos*r.TankRadius, s.Y + sin*r.TankRadius, cos * r.BulletSpeed, sin * r.BulletSpeed
}

// CanPickup reports whether a pickup at the tank's tile would succeed.
func (r Rules) CanPickup(s *TankState, ammo AmmoSource) bool {
	return s.Alive && s.Ammo < r.MaxAmmo && ammo != nil && ammo.HasAmmo(s.GridX, s.GridY)
}

// Refill adds one pickup worth of ammo, capped at the maximum.
func (r Rules) Refill(s *TankState) {
	s.Ammo += r.AmmoPerPickup
	if s.Ammo > r.MaxAmmo {
		s.Ammo = r.MaxAmmo
	}
}

// SetSpeedMode keeps shield and speed mode mutually exclusive.
func SetSpeedMode(s *TankState, enabled bool) bool {
	if !s.Alive {
		return false
	}
	s.SpeedMode = enabled
	s.Shield = !enabled
	return true
}

// Spawn resets a tank to its initial loadout on tile (gx,gy). The heading
// snaps rather than interpolating.
func (r Rules) Spawn(s *TankState, gx, gy int) {
	r.Place(s, gx, gy)
	s.Heading, s.TargetHeading = 0, 0
	s.Ammo = r.InitialAmmo
	s.Shield = true
	s.SpeedMode = false
	s.Alive = true
	s.MoveReadyAt, s.ShotReadyAt = 0, 0
}

// Blocks reports whether a shielded tank facing heading stops a bullet
// travelling with velocity (vx,vy). The approach angle is the direction the
// bullet comes from, seen from the tank.
func (r Rules) Blocks(s *TankState, vx, vy float64) bool {
	if !s.Shield || (vx == 0 && vy == 0) {
		return false
	}
	approach := mathx.Degrees(math.Atan2(-vy, -vx))
	return mathx.AngleDistance(approach, s.Heading) <= r.ShieldArcHalf
}

// Hits reports whether a bullet at (bx,by) overlaps the tank.
func (r Rules) Hits(s *TankState, bx, by float64) bool {
	dx, dy := bx-s.X, by-s.Y
	reach := r.TankRadius + r.BulletRadius
	return dx*dx+dy*dy <= reach*reach
}
