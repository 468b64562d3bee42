package arena

import (
	"reflect"
	"testing"
	"time"
)

var testRows = []string{
	"#####",
	"#.A.#",
	"#.#A#",
	"#####",
}

func mustModel(t *testing.T) *Model {
	t.Helper()
	l, err := ParseRows(testRows)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return New(l)
}

func TestParseRows_RoundTrip(t *testing.T) {
	l, err := ParseRows(testRows)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !reflect.DeepEqual(l.Rows(), testRows) {
		t.Fatalf("rows mismatch: %v", l.Rows())
	}
	if l.Width != 5 || l.Height != 4 {
		t.Fatalf("unexpected size %dx%d", l.Width, l.Height)
	}
}

func TestParseRows_Errors(t *testing.T) {
	if _, err := ParseRows(nil); err == nil {
		t.Fatalf("expected error for no rows")
	}
	if _, err := ParseRows([]string{"###", "##"}); err == nil {
		t.Fatalf("expected error for ragged rows")
	}
	if _, err := ParseRows([]string{"#?#"}); err == nil {
		t.Fatalf("expected error for bad glyph")
	}
}

func TestIsValidTile(t *testing.T) {
	m := mustModel(t)
	if !m.IsValidTile(1, 1) || !m.IsValidTile(2, 1) {
		t.Fatalf("floor tiles should be valid")
	}
	if m.IsValidTile(0, 0) || m.IsValidTile(2, 2) {
		t.Fatalf("walls should be invalid")
	}
	if m.IsValidTile(-1, 1) || m.IsValidTile(5, 1) || m.IsValidTile(1, 4) {
		t.Fatalf("out of bounds should be invalid")
	}
	// (1,1) (2,1) (3,1) (1,2) (3,2)
	if got := len(m.ValidTiles()); got != 5 {
		t.Fatalf("valid tiles: got %d want 5", got)
	}
	if got := m.SafeDefault(); got != (Point{X: 1, Y: 1}) {
		t.Fatalf("safe default: %+v", got)
	}
}

func TestAmmo_TakeAndRespawn(t *testing.T) {
	m := mustModel(t)
	if !m.HasAmmo(2, 1) {
		t.Fatalf("expected ammo at 2,1")
	}
	if m.HasAmmo(1, 1) {
		t.Fatalf("no spawn at 1,1")
	}
	if !m.TakeAmmo(2, 1, 100*time.Millisecond) {
		t.Fatalf("take should succeed")
	}
	if m.TakeAmmo(2, 1, 100*time.Millisecond) {
		t.Fatalf("second take should fail")
	}
	if refilled := m.Advance(60 * time.Millisecond); len(refilled) != 0 {
		t.Fatalf("refilled too early: %v", refilled)
	}
	refilled := m.Advance(40 * time.Millisecond)
	if len(refilled) != 1 || refilled[0] != (Point{X: 2, Y: 1}) {
		t.Fatalf("unexpected refill: %v", refilled)
	}
	if !m.HasAmmo(2, 1) {
		t.Fatalf("ammo should be back")
	}
}

func TestApplySpawns(t *testing.T) {
	server := mustModel(t)
	client := mustModel(t)
	server.TakeAmmo(3, 2, time.Second)
	client.ApplySpawns(server.Spawns())
	if client.HasAmmo(3, 2) {
		t.Fatalf("client should mirror the taken spawn")
	}
	client.ApplySpawns([]SpawnState{{Pos: Point{X: 9, Y: 9}, Present: true}})
	if len(client.Spawns()) != 2 {
		t.Fatalf("unknown spawn must be ignored")
	}
}
