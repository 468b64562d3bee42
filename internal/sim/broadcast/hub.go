// Package broadcast fans each tick's events and snapshot out to every
// connected client. Content is identical for every observer; only the wire
// encoding of the snapshot differs per subscriber.
package broadcast

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"tankarena.gg/internal/protocol"
	"tankarena.gg/internal/telemetry"
)

// Frame is one websocket message. Binary frames carry msgpack snapshots;
// everything else is JSON text.
type Frame struct {
	Data   []byte
	Binary bool
}

type subscriber struct {
	enc protocol.Encoding
	out chan Frame
}

type Stats struct {
	Subscribers int    `json:"subscribers"`
	Sent        uint64 `json:"frames_sent"`
	Dropped     uint64 `json:"frames_dropped"`
}

// Hub is safe for concurrent use. Publish is called from the world loop;
// Subscribe and Unsubscribe from connection goroutines.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]*subscriber

	inst *telemetry.Broadcast
	log  zerolog.Logger

	sent    atomic.Uint64
	dropped atomic.Uint64
}

func NewHub(inst *telemetry.Broadcast, log zerolog.Logger) *Hub {
	return &Hub{subs: map[string]*subscriber{}, inst: inst, log: log}
}

// Subscribe registers out under id, replacing any previous registration.
// The hub never closes out.
func (h *Hub) Subscribe(id string, enc protocol.Encoding, out chan Frame) {
	h.mu.Lock()
	h.subs[id] = &subscriber{enc: enc, out: out}
	h.mu.Unlock()
}

func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) Stats() Stats {
	return Stats{Subscribers: h.Len(), Sent: h.sent.Load(), Dropped: h.dropped.Load()}
}

// Publish encodes once per encoding and queues the tick's events followed by
// its snapshot on every subscriber without blocking.
func (h *Hub) Publish(events []protocol.Event, state *protocol.GameStateMsg) {
	ctx := context.Background()
	eventFrames := make([]Frame, 0, len(events))
	for _, e := range events {
		b, err := json.Marshal(e)
		if err != nil {
			h.log.Warn().Err(err).Str("type", e.MessageType()).Msg("encode event")
			continue
		}
		eventFrames = append(eventFrames, Frame{Data: b})
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.subs) == 0 {
		return
	}

	var stateFrames [2]*Frame
	frameFor := func(enc protocol.Encoding) *Frame {
		i := 0
		if enc == protocol.EncodingMsgpack {
			i = 1
		}
		if stateFrames[i] != nil || state == nil {
			return stateFrames[i]
		}
		var f Frame
		var err error
		if i == 1 {
			f.Data, err = protocol.EncodeMsgpack(state)
			f.Binary = true
		} else {
			f.Data, err = protocol.Encode(state)
		}
		if err != nil {
			h.log.Warn().Err(err).Str("encoding", string(enc)).Msg("encode snapshot")
			return nil
		}
		h.inst.Encoded(ctx, string(enc), len(f.Data))
		stateFrames[i] = &f
		return stateFrames[i]
	}

	var sent, dropped int
	for _, s := range h.subs {
		for _, f := range eventFrames {
			sent++
			if SendLatest(s.out, f) {
				dropped++
			}
		}
		if f := frameFor(s.enc); f != nil {
			sent++
			if SendLatest(s.out, *f) {
				dropped++
			}
		}
	}
	h.sent.Add(uint64(sent))
	h.dropped.Add(uint64(dropped))
	h.inst.Sent(ctx, sent, dropped)
}

// Send queues a single message for one subscriber, for per-client messages
// such as the join handshake.
func (h *Hub) Send(id string, m protocol.ServerMessage) bool {
	b, err := protocol.Encode(m)
	if err != nil {
		return false
	}
	h.mu.RLock()
	s := h.subs[id]
	h.mu.RUnlock()
	if s == nil {
		return false
	}
	if SendLatest(s.out, Frame{Data: b}) {
		h.dropped.Add(1)
	}
	h.sent.Add(1)
	return true
}

// SendLatest is a non-blocking send that makes room by dropping the oldest
// queued value. It reports whether anything was dropped.
func SendLatest[T any](ch chan T, v T) bool {
	select {
	case ch <- v:
		return false
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
	return true
}
