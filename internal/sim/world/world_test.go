package world

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"tankarena.gg/internal/protocol"
	"tankarena.gg/internal/sim/rules"
	"tankarena.gg/internal/sim/world/logic/mathx"
)

func TestAddPlayer_SpawnsOnValidTile(t *testing.T) {
	w, c := newTestWorld(t)
	w.step([]JoinRequest{joinReq("b", "bob"), joinReq("a", "alice")}, nil, nil)

	for _, id := range []string{"a", "b"} {
		tk := w.Tank(id)
		if tk == nil {
			t.Fatalf("tank %s missing", id)
		}
		if !w.arena.IsValidTile(tk.GridX, tk.GridY) {
			t.Fatalf("tank %s spawned on invalid tile (%d,%d)", id, tk.GridX, tk.GridY)
		}
		if tk.X != rules.TileCenter(tk.GridX, w.rules.TileSize) || tk.Y != rules.TileCenter(tk.GridY, w.rules.TileSize) {
			t.Fatalf("tank %s world position off grid", id)
		}
		if !tk.Alive || !tk.Shield || tk.SpeedMode || tk.Ammo != w.rules.InitialAmmo {
			t.Fatalf("tank %s loadout: %+v", id, tk.TankState)
		}
	}
	if got := countEvents[protocol.PlayerJoinedMsg](c); len(got) != 2 || got[0].PlayerID != "b" {
		t.Fatalf("joined events: %+v", got)
	}
	st := c.last()
	if len(st.Tanks) != 2 || st.Tanks[0].ID != "a" || st.Tanks[1].ID != "b" {
		t.Fatalf("snapshot tanks not in id order: %+v", st.Tanks)
	}
}

func TestAddPlayer_NoValidTileFallsBack(t *testing.T) {
	w, _ := newTestWorld(t, "###", "###")
	w.step([]JoinRequest{joinReq("a", "alice")}, nil, nil)
	tk := w.Tank("a")
	want := w.arena.SafeDefault()
	if tk == nil || tk.GridX != want.X || tk.GridY != want.Y {
		t.Fatalf("tank=%+v want safe default %+v", tk, want)
	}
}

func TestUnknownPlayer_NoOp(t *testing.T) {
	w, c := newTestWorld(t)
	w.step([]JoinRequest{joinReq("a", "alice")}, nil, nil)
	before := w.StateDigest()
	w.ApplyMove("ghost", protocol.Forward)
	w.ApplyRotate("ghost", protocol.Left)
	w.ApplyShoot("ghost")
	w.ApplyPickupAmmo("ghost")
	w.ApplySpeedMode("ghost", true)
	w.RemovePlayer("ghost")
	if w.StateDigest() != before {
		t.Fatalf("operations on unknown id changed state")
	}

	c.reset()
	w.step(nil, []string{"a", "a"}, []CommandEnvelope{env("a", protocol.Shoot())})
	if w.Tank("a") != nil {
		t.Fatalf("tank not removed")
	}
	if got := countEvents[protocol.PlayerLeftMsg](c); len(got) != 1 {
		t.Fatalf("left events: %+v", got)
	}
	if len(w.bullets) != 0 {
		t.Fatalf("command for a removed player was applied")
	}
	if _, ok := c.last().InputSequences["a"]; ok {
		t.Fatalf("sequence bookkeeping survived removal")
	}
}

func TestGridContainment_RandomCommands(t *testing.T) {
	w, _ := newTestWorld(t)
	ids := []string{"a", "b", "c"}
	var joins []JoinRequest
	for _, id := range ids {
		joins = append(joins, joinReq(id, id))
	}
	w.step(joins, nil, nil)

	rng := rand.New(rand.NewSource(7))
	for tick := 0; tick < 2000; tick++ {
		var cmds []CommandEnvelope
		for _, id := range ids {
			switch rng.Intn(4) {
			case 0:
				cmds = append(cmds, env(id, protocol.Move(protocol.Forward)))
			case 1:
				cmds = append(cmds, env(id, protocol.Move(protocol.Backward)))
			case 2:
				if rng.Intn(2) == 0 {
					cmds = append(cmds, env(id, protocol.Rotate(protocol.Left)))
				} else {
					cmds = append(cmds, env(id, protocol.Rotate(protocol.Right)))
				}
			case 3:
				cmds = append(cmds, env(id, protocol.SpeedMode(rng.Intn(2) == 0)))
			}
		}
		w.step(nil, nil, cmds)
		w.tanks.Each(func(tk *Tank) {
			if !w.arena.IsValidTile(tk.GridX, tk.GridY) {
				t.Fatalf("tick %d: %s on invalid tile (%d,%d)", tick, tk.ID, tk.GridX, tk.GridY)
			}
			if tk.X != rules.TileCenter(tk.GridX, w.rules.TileSize) || tk.Y != rules.TileCenter(tk.GridY, w.rules.TileSize) {
				t.Fatalf("tick %d: %s world/grid diverged", tick, tk.ID)
			}
			if tk.Shield && tk.SpeedMode {
				t.Fatalf("tick %d: %s shielded in speed mode", tick, tk.ID)
			}
		})
	}
}

func TestApplyMove_WallAndCooldown(t *testing.T) {
	w, _ := newTestWorld(t, "#####", "#...#", "#####")
	w.step([]JoinRequest{joinReq("a", "alice")}, nil, nil)
	place(w, "a", 2, 1, 0)

	w.step(nil, nil, []CommandEnvelope{env("a", protocol.Move(protocol.Forward))})
	if tk := w.Tank("a"); tk.GridX != 3 {
		t.Fatalf("move rejected: gx=%d", tk.GridX)
	}
	// Next tick is inside the cooldown; the tick after that would hit the wall.
	w.step(nil, nil, []CommandEnvelope{env("a", protocol.Move(protocol.Backward))})
	if tk := w.Tank("a"); tk.GridX != 3 {
		t.Fatalf("move inside cooldown accepted: gx=%d", tk.GridX)
	}
	stepN(w, 20)
	w.step(nil, nil, []CommandEnvelope{env("a", protocol.Move(protocol.Forward))})
	if tk := w.Tank("a"); tk.GridX != 3 {
		t.Fatalf("move into wall accepted: gx=%d", tk.GridX)
	}
}

func TestRotate_HeadingConvergesThroughWrap(t *testing.T) {
	w, _ := newTestWorld(t)
	w.step([]JoinRequest{joinReq("a", "alice")}, nil, nil)
	place(w, "a", 1, 1, 0)

	w.step(nil, nil, []CommandEnvelope{env("a", protocol.Rotate(protocol.Left))})
	tk := w.Tank("a")
	if tk.TargetHeading != 270 {
		t.Fatalf("target=%v", tk.TargetHeading)
	}
	prev := 90.0
	for i := 0; i < 300 && tk.Heading != tk.TargetHeading; i++ {
		d := mathx.AngleDistance(tk.Heading, tk.TargetHeading)
		if d > prev {
			t.Fatalf("tick %d: distance grew %v -> %v", i, prev, d)
		}
		if tk.Heading > 0 && tk.Heading < 270 {
			t.Fatalf("tick %d: heading %v took the long way", i, tk.Heading)
		}
		prev = d
		w.step(nil, nil, nil)
	}
	if tk.Heading != 270 {
		t.Fatalf("heading=%v did not settle", tk.Heading)
	}
}

func TestShoot_EmptyTankFiresNothing(t *testing.T) {
	w, c := newTestWorld(t)
	w.step([]JoinRequest{joinReq("a", "alice")}, nil, nil)
	w.Tank("a").Ammo = 0
	c.reset()

	w.step(nil, nil, []CommandEnvelope{env("a", protocol.Shoot())})
	if len(w.bullets) != 0 || len(c.last().Bullets) != 0 {
		t.Fatalf("bullet spawned from empty tank")
	}
	if w.Tank("a").Ammo != 0 {
		t.Fatalf("ammo changed: %d", w.Tank("a").Ammo)
	}
	if got := countEvents[protocol.PlayerShotMsg](c); len(got) != 0 {
		t.Fatalf("shot event emitted: %+v", got)
	}
}

func TestShoot_SpawnsBulletAndEvent(t *testing.T) {
	w, c := newTestWorld(t, "#########", "#.......#", "#########")
	w.step([]JoinRequest{joinReq("a", "alice")}, nil, nil)
	place(w, "a", 1, 1, 0)
	c.reset()

	w.step(nil, nil, []CommandEnvelope{
		env("a", protocol.Shoot()),
		env("a", protocol.Shoot()), // same tick: cooldown
	})
	if len(w.bullets) != 1 {
		t.Fatalf("bullets=%d want 1", len(w.bullets))
	}
	b := w.bullets[0]
	if b.ID != 1 || b.OwnerID != "a" || b.VX <= 0 || b.Life != w.rules.BulletLife-1 {
		t.Fatalf("bullet=%+v", b)
	}
	if w.Tank("a").Ammo != w.rules.InitialAmmo-1 {
		t.Fatalf("ammo=%d", w.Tank("a").Ammo)
	}
	if got := countEvents[protocol.PlayerShotMsg](c); len(got) != 1 || got[0].PlayerID != "a" {
		t.Fatalf("shot events: %+v", got)
	}

	// The bullet dies against the east wall well before its life runs out.
	stepN(w, 60)
	if len(w.bullets) != 0 {
		t.Fatalf("bullet passed through a wall: %+v", w.bullets[0])
	}
}

func TestBullet_ExpiresAfterLife(t *testing.T) {
	w, _ := newTestWorld(t)
	w.rules.BulletLife = 3
	w.step([]JoinRequest{joinReq("a", "alice")}, nil, nil)
	place(w, "a", 4, 3, 0)
	w.step(nil, nil, []CommandEnvelope{env("a", protocol.Shoot())})
	stepN(w, 1)
	if len(w.bullets) != 1 {
		t.Fatalf("bullet gone early")
	}
	stepN(w, 1)
	if len(w.bullets) != 0 {
		t.Fatalf("bullet outlived its life")
	}
}

func duelWorld(t *testing.T, victimHeading float64) (*World, *capture) {
	w, c := newTestWorld(t, "#######", "#.....#", "#######")
	w.step([]JoinRequest{joinReq("a", "alice"), joinReq("b", "bob")}, nil, nil)
	place(w, "a", 1, 1, 0)
	place(w, "b", 4, 1, victimHeading)
	c.reset()
	w.step(nil, nil, []CommandEnvelope{env("a", protocol.Shoot())})
	for i := 0; i < 60 && len(w.bullets) > 0; i++ {
		w.step(nil, nil, nil)
	}
	if len(w.bullets) != 0 {
		t.Fatalf("bullet never resolved")
	}
	return w, c
}

func TestCollision_ShieldBlocksFrontalHit(t *testing.T) {
	w, c := duelWorld(t, 180) // b faces the shooter

	b := w.Tank("b")
	if !b.Alive {
		t.Fatalf("shielded tank died")
	}
	if w.Tank("a").KillStreak != 0 {
		t.Fatalf("kill awarded for a blocked hit")
	}
	hits := countEvents[protocol.BulletHitMsg](c)
	if len(hits) != 1 || !hits[0].Blocked || hits[0].TargetID != "b" {
		t.Fatalf("hit events: %+v", hits)
	}
	if got := countEvents[protocol.PlayerKilledMsg](c); len(got) != 0 {
		t.Fatalf("kill events: %+v", got)
	}
}

func TestCollision_KillFromBehind(t *testing.T) {
	w, c := duelWorld(t, 0) // b faces away
	b := w.Tank("b")
	if b.Alive {
		t.Fatalf("tank hit from behind survived")
	}
	if b.KillStreak != 0 || w.Tank("a").KillStreak != 1 {
		t.Fatalf("streaks: a=%d b=%d", w.Tank("a").KillStreak, b.KillStreak)
	}
	killed := countEvents[protocol.PlayerKilledMsg](c)
	if len(killed) != 1 || killed[0].Killer != "a" || killed[0].Victim != "b" {
		t.Fatalf("kill events: %+v", killed)
	}
	streaks := countEvents[protocol.KillStreakUpdateMsg](c)
	if len(streaks) != 2 || streaks[1].PlayerID != "a" || streaks[1].Streak != 1 {
		t.Fatalf("streak events: %+v", streaks)
	}
	rec, ok := c.last().Tank("b")
	if !ok || rec.Alive || rec.RespawnAt != testEpochMs+b.RespawnAt.Milliseconds() {
		t.Fatalf("snapshot record: %+v", rec)
	}
}

func TestCollision_SpeedModeDropsShield(t *testing.T) {
	w, c := newTestWorld(t, "#######", "#.....#", "#######")
	w.step([]JoinRequest{joinReq("a", "alice"), joinReq("b", "bob")}, nil, nil)
	place(w, "a", 1, 1, 0)
	place(w, "b", 4, 1, 180)
	w.step(nil, nil, []CommandEnvelope{env("b", protocol.SpeedMode(true)), env("a", protocol.Shoot())})
	stepN(w, 60)
	if w.Tank("b").Alive {
		t.Fatalf("tank in speed mode blocked a frontal shot")
	}
	if hits := countEvents[protocol.BulletHitMsg](c); len(hits) != 1 || hits[0].Blocked {
		t.Fatalf("hits: %+v", hits)
	}
}

func TestRespawn_AfterDelay(t *testing.T) {
	w, c := duelWorld(t, 0)
	b := w.Tank("b")
	b.Ammo = 1
	c.reset()

	delayTicks := int(w.tuning.RespawnDelay() / w.interval)
	stepN(w, delayTicks+1)
	if !b.Alive {
		t.Fatalf("tank did not respawn after %d ticks", delayTicks+1)
	}
	if b.Ammo != w.rules.InitialAmmo || !b.Shield || b.SpeedMode || b.Heading != 0 || b.TargetHeading != 0 {
		t.Fatalf("respawn loadout: %+v", b.TankState)
	}
	if !w.arena.IsValidTile(b.GridX, b.GridY) {
		t.Fatalf("respawned on invalid tile")
	}
	got := countEvents[protocol.PlayerRespawnedMsg](c)
	if len(got) != 1 || got[0].Position.X != b.X || got[0].Position.Y != b.Y {
		t.Fatalf("respawn events: %+v", got)
	}
}

func TestPickupAmmo(t *testing.T) {
	w, c := newTestWorld(t, "#####", "#.A.#", "#####")
	w.step([]JoinRequest{joinReq("a", "alice")}, nil, nil)
	tk := place(w, "a", 1, 1, 0)

	w.step(nil, nil, []CommandEnvelope{env("a", protocol.PickupAmmo())})
	if tk.Ammo != w.rules.InitialAmmo {
		t.Fatalf("pickup on an empty tile changed ammo")
	}
	place(w, "a", 2, 1, 0)
	w.step(nil, nil, []CommandEnvelope{env("a", protocol.PickupAmmo())})
	if tk.Ammo != w.rules.InitialAmmo+w.rules.AmmoPerPickup {
		t.Fatalf("ammo=%d", tk.Ammo)
	}
	if sp := c.last().Arena.Ammo; len(sp) != 1 || sp[0].Present || sp[0].RespawnMs <= 0 {
		t.Fatalf("spawn state: %+v", sp)
	}
	w.step(nil, nil, []CommandEnvelope{env("a", protocol.PickupAmmo())})
	if tk.Ammo != w.rules.InitialAmmo+w.rules.AmmoPerPickup {
		t.Fatalf("picked up from a depleted spawn")
	}

	stepN(w, int(w.tuning.AmmoRespawn()/w.interval)+1)
	if !w.arena.HasAmmo(2, 1) {
		t.Fatalf("spawn did not refill")
	}
	tk.Ammo = w.rules.MaxAmmo
	w.step(nil, nil, []CommandEnvelope{env("a", protocol.PickupAmmo())})
	if !w.arena.HasAmmo(2, 1) {
		t.Fatalf("full tank consumed the spawn")
	}
}

func TestSnapshot_TimestampAndSequences(t *testing.T) {
	w, c := newTestWorld(t)
	w.step([]JoinRequest{joinReq("a", "alice")}, nil, nil)
	w.step(nil, nil, []CommandEnvelope{
		env("a", protocol.Stamp(protocol.Rotate(protocol.Right), 11, 0)),
		env("a", protocol.Stamp(protocol.Move(protocol.Forward), 12, 0)),
	})
	st := c.last()
	if st.Tick != 1 {
		t.Fatalf("tick=%d", st.Tick)
	}
	if want := int64(testEpochMs) + (time.Second / 60).Milliseconds(); st.Timestamp != want {
		t.Fatalf("timestamp=%d want %d", st.Timestamp, want)
	}
	if st.AckFor("a") != 12 {
		t.Fatalf("ack=%d want 12", st.AckFor("a"))
	}
	rec, _ := st.Tank("a")
	if rec.GridX == nil || rec.TargetHeading == nil || *rec.TargetHeading != 90 {
		t.Fatalf("record: %+v", rec)
	}
	if m := w.Metrics(); m.Tick != 2 || m.Players != 1 || m.Sequence != 1 {
		t.Fatalf("metrics: %+v", m)
	}
	if w.LastState() != st {
		t.Fatalf("LastState does not point at the published snapshot")
	}
}

func TestStep_AbandonedJoinIsDropped(t *testing.T) {
	w, _ := newTestWorld(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	resp := make(chan JoinResponse, 1)
	gone := JoinRequest{PlayerID: "a", Name: "alice", Resp: resp, Ctx: ctx}
	w.step([]JoinRequest{gone, joinReq("b", "bob")}, nil, nil)
	if w.Tank("a") != nil {
		t.Fatalf("abandoned join added a tank")
	}
	if w.Tank("b") == nil {
		t.Fatalf("live join dropped")
	}
	if len(resp) != 0 {
		t.Fatalf("abandoned join got a response")
	}
	if w.PlayerCount() != 1 {
		t.Fatalf("players=%d", w.PlayerCount())
	}
}
