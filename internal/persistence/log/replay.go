package log

import (
	"fmt"

	"tankarena.gg/internal/protocol"
	"tankarena.gg/internal/sim/tuning"
	"tankarena.gg/internal/sim/world"
)

// Rebuild constructs the world a journal was recorded from, at tick 0.
func Rebuild(h Header) (*world.World, error) {
	t, err := tuning.Parse([]byte(h.Tuning))
	if err != nil {
		return nil, fmt.Errorf("journal tuning: %w", err)
	}
	if h.TuningDigest != "" && t.Digest() != h.TuningDigest {
		return nil, fmt.Errorf("journal tuning digest %s does not match header %s", t.Digest(), h.TuningDigest)
	}
	return world.New(world.WorldConfig{ID: h.WorldID, Tuning: t, Seed: h.Seed, EpochMs: h.EpochMs})
}

// Verify re-runs entries on w and compares every digest from fromTick on.
// It returns how many ticks were checked.
func Verify(w *world.World, entries []world.TickLogEntry, fromTick uint64) (uint64, error) {
	var checked uint64
	for _, e := range entries {
		if e.Tick != w.CurrentTick() {
			return checked, fmt.Errorf("tick gap: want=%d got=%d", w.CurrentTick(), e.Tick)
		}
		joins := make([]world.JoinRequest, 0, len(e.Joins))
		for _, j := range e.Joins {
			joins = append(joins, world.JoinRequest{PlayerID: j.PlayerID, Name: j.Name})
		}
		cmds := make([]world.CommandEnvelope, 0, len(e.Commands))
		for _, rc := range e.Commands {
			cmd, err := protocol.DecodeCommand(rc.Cmd)
			if err != nil {
				return checked, fmt.Errorf("tick %d: %w", e.Tick, err)
			}
			cmds = append(cmds, world.CommandEnvelope{PlayerID: rc.PlayerID, Cmd: cmd})
		}
		tick, digest := w.StepOnce(joins, e.Leaves, cmds)
		if tick < fromTick {
			continue
		}
		checked++
		if digest != e.Digest {
			return checked, fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", tick, digest, e.Digest)
		}
	}
	return checked, nil
}
