package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"tankarena.gg/internal/protocol"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	// Round-trips through JSON so the validator sees the wire shape.
	validate := func(s *jsonschema.Schema, v any) {
		t.Helper()
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var doc any
		if err := json.Unmarshal(b, &doc); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if err := s.Validate(doc); err != nil {
			t.Fatalf("validate %s: %v", b, err)
		}
	}

	joinSchema := compile("join.schema.json")
	commandSchema := compile("command.schema.json")
	stateSchema := compile("game_state.schema.json")
	eventSchema := compile("event.schema.json")

	validate(joinSchema, protocol.JoinMsg{
		Type:            protocol.TypePlayerJoin,
		ProtocolVersion: protocol.Version,
		Name:            "alice",
		Encoding:        protocol.EncodingMsgpack,
	})

	cmds := []protocol.Command{
		protocol.Stamp(protocol.Move(protocol.Forward), 5, 1700000000000),
		protocol.Stamp(protocol.Rotate(protocol.Left), 6, 1700000000016),
		protocol.Stamp(protocol.Shoot(), 7, 1700000000032),
		protocol.PickupAmmo(),
		protocol.Stamp(protocol.SpeedMode(true), 8, 1700000000048),
	}
	for _, c := range cmds {
		validate(commandSchema, c)
	}

	gx, gy := 3, 4
	target := 90.0
	validate(stateSchema, &protocol.GameStateMsg{
		Type:      protocol.TypeGameState,
		Tick:      12,
		Timestamp: 1700000000200,
		Tanks: []protocol.TankRecord{{
			ID: "p1", Name: "alice", Color: [3]int{200, 40, 40},
			X: 140, Y: 180, GridX: &gx, GridY: &gy,
			Heading: 45, TargetHeading: &target,
			Ammo: 4, Shield: true, Alive: true,
		}},
		Bullets: []protocol.BulletRecord{{
			ID: 1, OwnerID: "p1", X: 160, Y: 180, VX: 8, Life: 119, Radius: 4, Active: true,
		}},
		Arena: protocol.ArenaState{Ammo: []protocol.AmmoSpawnRecord{
			{X: 2, Y: 2, Present: true},
			{X: 7, Y: 5, RespawnMs: 4200},
		}},
		InputSequences: map[string]uint64{"p1": 8},
	})

	events := []protocol.ServerMessage{
		protocol.PlayerJoinedMsg{Type: protocol.TypePlayerJoined, ProtocolVersion: protocol.Version, PlayerID: "p1", Name: "alice"},
		protocol.PlayerKilledMsg{Type: protocol.TypePlayerKilled, Killer: "p1", Victim: "p2", Timestamp: 1700000000200},
		protocol.PlayerRespawnedMsg{Type: protocol.TypePlayerRespawned, PlayerID: "p2", Position: protocol.Vec2{X: 60, Y: 60}, Timestamp: 1700000003200},
		protocol.KillStreakUpdateMsg{Type: protocol.TypeKillStreakUpdate, PlayerID: "p1", Streak: 2},
		protocol.PlayerShotMsg{Type: protocol.TypePlayerShot, PlayerID: "p1"},
		protocol.BulletHitMsg{Type: protocol.TypeBulletHit, TargetID: "p2", X: 100, Y: 60, Blocked: true},
		protocol.PlayerLeftMsg{Type: protocol.TypePlayerLeft, PlayerID: "p2"},
	}
	for _, e := range events {
		validate(eventSchema, e)
	}
}

func TestSchemas_RejectBadCommand(t *testing.T) {
	s, err := jsonschema.Compile(filepath.Join("..", "..", "schemas", "command.schema.json"))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	var doc any
	_ = json.Unmarshal([]byte(`{"type":"playerRotate","direction":"up","sequence":1}`), &doc)
	if err := s.Validate(doc); err == nil {
		t.Fatalf("expected rotate with bad direction to fail validation")
	}
}
