// Package ingest routes client commands into the simulation and keeps the
// per-player acknowledgement bookkeeping that snapshots carry back.
package ingest

import (
	"sort"

	"tankarena.gg/internal/protocol"
)

// Target is the simulation surface commands are forwarded to. Legality checks
// (cooldowns, ammo, tile validity) happen behind it.
type Target interface {
	ApplyMove(id string, dir protocol.MoveDirection)
	ApplyRotate(id string, dir protocol.RotateDirection)
	ApplyShoot(id string)
	ApplyPickupAmmo(id string)
	ApplySpeedMode(id string, enabled bool)
}

// SequenceView is the read-only side of Sequences handed to the broadcaster.
type SequenceView interface {
	Get(id string) (uint64, bool)
	Copy() map[string]uint64
}

// Sequences maps player id to the sequence of the last command processed for
// that player. One counter per player, shared by every command type: the most
// recently processed command wins.
type Sequences struct {
	m map[string]uint64
}

func NewSequences() *Sequences {
	return &Sequences{m: map[string]uint64{}}
}

func (s *Sequences) Set(id string, seq uint64) { s.m[id] = seq }

func (s *Sequences) Get(id string) (uint64, bool) {
	v, ok := s.m[id]
	return v, ok
}

func (s *Sequences) Delete(id string) { delete(s.m, id) }

func (s *Sequences) Len() int { return len(s.m) }

// Copy returns a snapshot of the map that the caller may keep.
func (s *Sequences) Copy() map[string]uint64 {
	out := make(map[string]uint64, len(s.m))
	for k, v := range s.m {
		out[k] = v
	}
	return out
}

// IDs lists tracked players in sorted order.
func (s *Sequences) IDs() []string {
	out := make([]string, 0, len(s.m))
	for k := range s.m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type Ingestor struct {
	seqs *Sequences
}

func New(seqs *Sequences) *Ingestor {
	if seqs == nil {
		seqs = NewSequences()
	}
	return &Ingestor{seqs: seqs}
}

func (in *Ingestor) Sequences() *Sequences { return in.seqs }

// Ingest records the command's sequence, if any, and forwards it to t. It
// reports false for command types it does not know.
func (in *Ingestor) Ingest(t Target, playerID string, cmd protocol.Command) bool {
	if cmd == nil {
		return false
	}
	switch c := cmd.(type) {
	case protocol.MoveCmd:
		in.record(playerID, c)
		t.ApplyMove(playerID, c.Direction)
	case protocol.RotateCmd:
		in.record(playerID, c)
		t.ApplyRotate(playerID, c.Direction)
	case protocol.ShootCmd:
		in.record(playerID, c)
		t.ApplyShoot(playerID)
	case protocol.PickupAmmoCmd:
		in.record(playerID, c)
		t.ApplyPickupAmmo(playerID)
	case protocol.SpeedModeCmd:
		in.record(playerID, c)
		t.ApplySpeedMode(playerID, c.Enabled)
	default:
		return false
	}
	return true
}

func (in *Ingestor) record(playerID string, cmd protocol.Command) {
	if seq, ok := cmd.Seq(); ok {
		in.seqs.Set(playerID, seq)
	}
}

// Forget drops bookkeeping for a departed player.
func (in *Ingestor) Forget(playerID string) { in.seqs.Delete(playerID) }
