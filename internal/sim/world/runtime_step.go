package world

import (
	"context"
	"encoding/json"
	"time"

	"tankarena.gg/internal/protocol"
)

// stepInternal runs one tick. Joins, leaves and commands queued since the
// previous tick are applied first, in arrival order; then the systems run in
// a fixed order: tanks, bullets, arena timers, collisions, snapshot.
func (w *World) stepInternal(joins []JoinRequest, leaves []string, cmds []CommandEnvelope) {
	stepStart := time.Now()
	ctx := context.Background()
	nowTick := w.tick.Load()
	now := w.simTime(nowTick)
	w.events = w.events[:0]

	recordedLeaves := make([]string, 0, len(leaves))
	for _, id := range leaves {
		if w.tanks.Get(id) != nil {
			w.RemovePlayer(id)
			recordedLeaves = append(recordedLeaves, id)
		}
	}
	recordedJoins := make([]RecordedJoin, 0, len(joins))
	for _, req := range joins {
		if req.Ctx != nil && req.Ctx.Err() != nil {
			continue
		}
		t := w.AddPlayer(req.PlayerID, req.Name)
		if req.Resp != nil {
			req.Resp <- w.joinResponse(t)
		}
		recordedJoins = append(recordedJoins, RecordedJoin{PlayerID: req.PlayerID, Name: req.Name})
	}

	// Commands apply in server receive order (the inbox order).
	var recorded []RecordedCommand
	for _, env := range cmds {
		if w.tanks.Get(env.PlayerID) == nil || env.Cmd == nil {
			continue
		}
		if !w.ingest.Ingest(w, env.PlayerID, env.Cmd) {
			continue
		}
		w.inst.Command(ctx, env.Cmd.CommandType())
		if w.tickLogger != nil {
			if raw, err := json.Marshal(env.Cmd); err == nil {
				recorded = append(recorded, RecordedCommand{PlayerID: env.PlayerID, Cmd: raw})
			}
		}
	}

	w.advanceTanks(now)
	w.advanceBullets()
	w.arena.Advance(w.interval)
	w.resolveCollisions(now)
	state := w.buildSnapshot(nowTick, now)

	w.lastState.Store(state)
	if w.publisher != nil {
		events := make([]protocol.Event, len(w.events))
		copy(events, w.events)
		w.publisher.Publish(events, state)
	}

	digest := w.stateDigest(nowTick)
	if w.tickLogger != nil {
		if err := w.tickLogger.WriteTick(TickLogEntry{Tick: nowTick, Joins: recordedJoins, Leaves: recordedLeaves, Commands: recorded, Digest: digest}); err != nil {
			w.log.Warn().Err(err).Uint64("tick", nowTick).Msg("tick log write failed")
		}
	}

	stepMS := float64(time.Since(stepStart).Microseconds()) / 1000.0
	nextTick := w.tick.Add(1)
	w.inst.Step(ctx, stepMS)

	w.metrics.Store(WorldMetrics{
		Tick:     nextTick,
		Players:  w.tanks.Len(),
		Bullets:  len(w.bullets),
		Events:   len(w.events),
		Kills:    w.killsTotal,
		Sequence: w.ingest.Sequences().Len(),
		QueueDepths: QueueDepths{
			Inbox: len(w.inbox),
			Join:  len(w.join),
			Leave: len(w.leave),
		},
		StepMS: stepMS,
	})
}
