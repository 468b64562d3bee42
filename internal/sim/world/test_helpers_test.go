package world

import (
	"testing"

	"tankarena.gg/internal/protocol"
	"tankarena.gg/internal/sim/tuning"
)

type capture struct {
	events []protocol.Event
	states []*protocol.GameStateMsg
}

func (c *capture) Publish(events []protocol.Event, state *protocol.GameStateMsg) {
	c.events = append(c.events, events...)
	c.states = append(c.states, state)
}

func (c *capture) last() *protocol.GameStateMsg {
	if len(c.states) == 0 {
		return nil
	}
	return c.states[len(c.states)-1]
}

func (c *capture) reset() { c.events = nil }

func countEvents[T protocol.Event](c *capture) []T {
	var out []T
	for _, e := range c.events {
		if v, ok := e.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

const testEpochMs = 1_000_000

func newTestWorld(t *testing.T, rows ...string) (*World, *capture) {
	t.Helper()
	tu := tuning.Defaults()
	if len(rows) > 0 {
		tu.Arena.Rows = rows
	}
	w, err := New(WorldConfig{ID: "test", Tuning: tu, Seed: 42, EpochMs: testEpochMs})
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	c := &capture{}
	w.SetPublisher(c)
	return w, c
}

func joinReq(id, name string) JoinRequest {
	return JoinRequest{PlayerID: id, Name: name}
}

func env(id string, c protocol.Command) CommandEnvelope {
	return CommandEnvelope{PlayerID: id, Cmd: c}
}

// place moves a tank onto a tile with a settled heading.
func place(w *World, id string, gx, gy int, heading float64) *Tank {
	t := w.Tank(id)
	w.rules.Place(&t.TankState, gx, gy)
	t.Heading, t.TargetHeading = heading, heading
	return t
}

// stepN runs n empty ticks.
func stepN(w *World, n int) {
	for i := 0; i < n; i++ {
		w.step(nil, nil, nil)
	}
}
