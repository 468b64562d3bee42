package world

import (
	"context"
	"time"
)

func (w *World) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var pendingCommands []CommandEnvelope
	var pendingJoins []JoinRequest
	var pendingLeaves []string

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.join:
			pendingJoins = append(pendingJoins, req)
		case id := <-w.leave:
			pendingLeaves = append(pendingLeaves, id)
		case env := <-w.inbox:
			pendingCommands = append(pendingCommands, env)
		case <-ticker.C:
			w.stepInternal(pendingJoins, pendingLeaves, pendingCommands)
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
			pendingCommands = pendingCommands[:0]
		}
	}
}

func (w *World) Stop() { close(w.stop) }

func (w *World) step(joins []JoinRequest, leaves []string, cmds []CommandEnvelope) {
	w.stepInternal(joins, leaves, cmds)
}

// StepOnce advances the world by a single tick using the same ordering semantics as the server.
// It is primarily intended for deterministic replays/tests.
func (w *World) StepOnce(joins []JoinRequest, leaves []string, cmds []CommandEnvelope) (tick uint64, digest string) {
	tick = w.tick.Load()
	w.step(joins, leaves, cmds)
	return tick, w.stateDigest(tick)
}
