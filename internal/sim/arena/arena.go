// Package arena holds the tile grid and the ammo spawns of a match.
//
// Tile membership is static for the lifetime of a Model; ammo spawns are the
// only mutable state and are advanced by the owner (the world loop on the
// server, snapshot application on the client).
package arena

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	glyphWall  = '#'
	glyphFloor = '.'
	glyphAmmo  = 'A'
)

type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Layout is the static part of an arena.
type Layout struct {
	Width      int
	Height     int
	walls      []bool
	AmmoSpawns []Point
}

// Generator produces layouts; procedural content lives behind it.
type Generator interface {
	Generate(seed int64) (Layout, error)
}

// RowsGenerator returns a fixed hand-authored layout regardless of seed.
type RowsGenerator struct {
	Rows []string
}

func (g RowsGenerator) Generate(int64) (Layout, error) { return ParseRows(g.Rows) }

// ParseRows builds a layout from '#' (wall), '.' (floor) and 'A' (floor with
// an ammo spawn). All rows must have equal width.
func ParseRows(rows []string) (Layout, error) {
	if len(rows) == 0 {
		return Layout{}, fmt.Errorf("arena: no rows")
	}
	w := len(rows[0])
	if w == 0 {
		return Layout{}, fmt.Errorf("arena: empty row")
	}
	l := Layout{Width: w, Height: len(rows), walls: make([]bool, w*len(rows))}
	for y, row := range rows {
		if len(row) != w {
			return Layout{}, fmt.Errorf("arena: row %d has width %d, want %d", y, len(row), w)
		}
		for x := 0; x < w; x++ {
			switch row[x] {
			case glyphWall:
				l.walls[y*w+x] = true
			case glyphFloor:
			case glyphAmmo:
				l.AmmoSpawns = append(l.AmmoSpawns, Point{X: x, Y: y})
			default:
				return Layout{}, fmt.Errorf("arena: bad glyph %q at %d,%d", row[x], x, y)
			}
		}
	}
	return l, nil
}

// Rows renders the layout back into its textual form.
func (l Layout) Rows() []string {
	ammo := make(map[Point]bool, len(l.AmmoSpawns))
	for _, p := range l.AmmoSpawns {
		ammo[p] = true
	}
	out := make([]string, l.Height)
	var sb strings.Builder
	for y := 0; y < l.Height; y++ {
		sb.Reset()
		for x := 0; x < l.Width; x++ {
			switch {
			case l.walls[y*l.Width+x]:
				sb.WriteByte(glyphWall)
			case ammo[Point{X: x, Y: y}]:
				sb.WriteByte(glyphAmmo)
			default:
				sb.WriteByte(glyphFloor)
			}
		}
		out[y] = sb.String()
	}
	return out
}

func (l Layout) IsValidTile(x, y int) bool {
	if x < 0 || y < 0 || x >= l.Width || y >= l.Height {
		return false
	}
	return !l.walls[y*l.Width+x]
}

// SpawnState is the mutable state of one ammo spawn.
type SpawnState struct {
	Pos       Point         `json:"pos"`
	Present   bool          `json:"present"`
	RespawnIn time.Duration `json:"respawn_in"`
}

// Model is the query/mutation surface the simulation and the predictor use.
type Model struct {
	layout Layout
	spawns []SpawnState // sorted by (y,x)
	index  map[Point]int
}

func New(l Layout) *Model {
	m := &Model{layout: l, index: make(map[Point]int, len(l.AmmoSpawns))}
	pts := append([]Point(nil), l.AmmoSpawns...)
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].Y != pts[j].Y {
			return pts[i].Y < pts[j].Y
		}
		return pts[i].X < pts[j].X
	})
	for i, p := range pts {
		m.spawns = append(m.spawns, SpawnState{Pos: p, Present: true})
		m.index[p] = i
	}
	return m
}

func (m *Model) Layout() Layout { return m.layout }

func (m *Model) IsValidTile(x, y int) bool { return m.layout.IsValidTile(x, y) }

// ValidTiles lists every non-wall tile in row-major order.
func (m *Model) ValidTiles() []Point {
	var out []Point
	for y := 0; y < m.layout.Height; y++ {
		for x := 0; x < m.layout.Width; x++ {
			if m.layout.IsValidTile(x, y) {
				out = append(out, Point{X: x, Y: y})
			}
		}
	}
	return out
}

// SafeDefault is where a tank goes when no valid tile can be chosen: the
// first valid tile, or the grid centre of an arena with none.
func (m *Model) SafeDefault() Point {
	for y := 0; y < m.layout.Height; y++ {
		for x := 0; x < m.layout.Width; x++ {
			if m.layout.IsValidTile(x, y) {
				return Point{X: x, Y: y}
			}
		}
	}
	return Point{X: m.layout.Width / 2, Y: m.layout.Height / 2}
}

func (m *Model) HasAmmo(x, y int) bool {
	i, ok := m.index[Point{X: x, Y: y}]
	return ok && m.spawns[i].Present
}

// TakeAmmo removes the ammo at (x,y) and starts its respawn timer.
func (m *Model) TakeAmmo(x, y int, respawn time.Duration) bool {
	i, ok := m.index[Point{X: x, Y: y}]
	if !ok || !m.spawns[i].Present {
		return false
	}
	m.spawns[i].Present = false
	m.spawns[i].RespawnIn = respawn
	return true
}

// Advance runs respawn timers forward and returns the spawns that refilled.
func (m *Model) Advance(dt time.Duration) []Point {
	var refilled []Point
	for i := range m.spawns {
		s := &m.spawns[i]
		if s.Present {
			continue
		}
		s.RespawnIn -= dt
		if s.RespawnIn <= 0 {
			s.RespawnIn = 0
			s.Present = true
			refilled = append(refilled, s.Pos)
		}
	}
	return refilled
}

// Spawns returns a copy of the spawn states in deterministic order.
func (m *Model) Spawns() []SpawnState {
	return append([]SpawnState(nil), m.spawns...)
}

// ApplySpawns overwrites spawn state from an authoritative source. Unknown
// positions are ignored.
func (m *Model) ApplySpawns(states []SpawnState) {
	for _, s := range states {
		if i, ok := m.index[s.Pos]; ok {
			m.spawns[i] = s
		}
	}
}
