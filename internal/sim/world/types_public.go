package world

import (
	"context"
	"encoding/json"

	"tankarena.gg/internal/protocol"
)

// JoinRequest asks the world loop to add a tank. The transport assigns the id.
// A request whose Ctx is done by the time the loop reaches it is dropped.
type JoinRequest struct {
	PlayerID string
	Name     string
	Resp     chan JoinResponse
	Ctx      context.Context
}

type JoinResponse struct {
	Joined protocol.PlayerJoinedMsg
	Layout protocol.ArenaLayoutMsg
}

// CommandEnvelope is one decoded client command bound to the session that
// sent it.
type CommandEnvelope struct {
	PlayerID string
	Cmd      protocol.Command
}

// Publisher receives the events and the snapshot of every tick, from the world
// loop goroutine. Implementations must not block.
type Publisher interface {
	Publish(events []protocol.Event, state *protocol.GameStateMsg)
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type TickLogEntry struct {
	Tick     uint64            `json:"tick"`
	Joins    []RecordedJoin    `json:"joins,omitempty"`
	Leaves   []string          `json:"leaves,omitempty"`
	Commands []RecordedCommand `json:"commands,omitempty"`
	Digest   string            `json:"digest"`
}

type RecordedJoin struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
}

type RecordedCommand struct {
	PlayerID string          `json:"player_id"`
	Cmd      json.RawMessage `json:"cmd"`
}
