package world

import (
	"sort"
	"time"

	"tankarena.gg/internal/protocol"
	"tankarena.gg/internal/sim/rules"
)

type Tank struct {
	rules.TankState

	ID    string
	Name  string
	Color [3]int

	// RespawnAt is the simulation time the tank comes back; only meaningful
	// while dead.
	RespawnAt time.Duration
}

// TankRepo owns every tank. Iteration is in sorted id order so collision
// resolution and digests are deterministic.
type TankRepo struct {
	byID  map[string]*Tank
	order []string
}

func NewTankRepo() *TankRepo {
	return &TankRepo{byID: map[string]*Tank{}}
}

func (r *TankRepo) Get(id string) *Tank { return r.byID[id] }

func (r *TankRepo) Len() int { return len(r.order) }

func (r *TankRepo) Add(t *Tank) {
	if _, ok := r.byID[t.ID]; ok {
		r.byID[t.ID] = t
		return
	}
	r.byID[t.ID] = t
	i := sort.SearchStrings(r.order, t.ID)
	r.order = append(r.order, "")
	copy(r.order[i+1:], r.order[i:])
	r.order[i] = t.ID
}

func (r *TankRepo) Remove(id string) bool {
	if _, ok := r.byID[id]; !ok {
		return false
	}
	delete(r.byID, id)
	i := sort.SearchStrings(r.order, id)
	if i < len(r.order) && r.order[i] == id {
		r.order = append(r.order[:i], r.order[i+1:]...)
	}
	return true
}

// Each visits tanks in sorted id order.
func (r *TankRepo) Each(fn func(t *Tank)) {
	for _, id := range r.order {
		fn(r.byID[id])
	}
}

func (r *TankRepo) IDs() []string { return append([]string(nil), r.order...) }

func (t *Tank) record(epochMs int64) protocol.TankRecord {
	gx, gy := t.GridX, t.GridY
	target := t.TargetHeading
	rec := protocol.TankRecord{
		ID:            t.ID,
		Name:          t.Name,
		Color:         t.Color,
		X:             t.X,
		Y:             t.Y,
		GridX:         &gx,
		GridY:         &gy,
		Heading:       t.Heading,
		TargetHeading: &target,
		Ammo:          t.Ammo,
		Shield:        t.Shield,
		SpeedMode:     t.SpeedMode,
		KillStreak:    t.KillStreak,
		Alive:         t.Alive,
	}
	if !t.Alive {
		rec.RespawnAt = epochMs + t.RespawnAt.Milliseconds()
	}
	return rec
}

var palette = [][3]int{
	{231, 76, 60},
	{52, 152, 219},
	{46, 204, 113},
	{241, 196, 15},
	{155, 89, 182},
	{230, 126, 34},
	{26, 188, 156},
	{236, 240, 241},
}
