package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
)

// stateDigest hashes everything that influences future ticks. Replays compare
// it tick by tick.
func (w *World) stateDigest(nowTick uint64) string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, nowTick)
	digestWriteU64(h, &tmp, w.nextBulletID.Load())

	digestWriteU64(h, &tmp, uint64(w.tanks.Len()))
	w.tanks.Each(func(t *Tank) {
		h.Write([]byte(t.ID))
		h.Write([]byte{0})
		digestWriteI64(h, &tmp, int64(t.GridX))
		digestWriteI64(h, &tmp, int64(t.GridY))
		digestWriteF64(h, &tmp, t.Heading)
		digestWriteF64(h, &tmp, t.TargetHeading)
		digestWriteI64(h, &tmp, int64(t.Ammo))
		digestWriteI64(h, &tmp, int64(t.KillStreak))
		h.Write([]byte{boolByte(t.Alive), boolByte(t.Shield), boolByte(t.SpeedMode)})
		digestWriteI64(h, &tmp, int64(t.RespawnAt))
		digestWriteI64(h, &tmp, int64(t.MoveReadyAt))
		digestWriteI64(h, &tmp, int64(t.ShotReadyAt))
	})

	digestWriteU64(h, &tmp, uint64(len(w.bullets)))
	for _, b := range w.bullets {
		digestWriteU64(h, &tmp, b.ID)
		h.Write([]byte(b.OwnerID))
		h.Write([]byte{0})
		digestWriteF64(h, &tmp, b.X)
		digestWriteF64(h, &tmp, b.Y)
		digestWriteF64(h, &tmp, b.VX)
		digestWriteF64(h, &tmp, b.VY)
		digestWriteI64(h, &tmp, int64(b.Life))
	}

	for _, s := range w.arena.Spawns() {
		digestWriteI64(h, &tmp, int64(s.Pos.X))
		digestWriteI64(h, &tmp, int64(s.Pos.Y))
		h.Write([]byte{boolByte(s.Present)})
		digestWriteI64(h, &tmp, int64(s.RespawnIn))
	}

	seqs := w.ingest.Sequences()
	for _, id := range seqs.IDs() {
		v, _ := seqs.Get(id)
		h.Write([]byte(id))
		h.Write([]byte{0})
		digestWriteU64(h, &tmp, v)
	}

	return hex.EncodeToString(h.Sum(nil))
}

// StateDigest is stateDigest for the current tick.
func (w *World) StateDigest() string { return w.stateDigest(w.tick.Load()) }

type hashWriter interface {
	Write(p []byte) (n int, err error)
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hashWriter, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}

func digestWriteF64(h hashWriter, tmp *[8]byte, v float64) {
	digestWriteU64(h, tmp, math.Float64bits(v))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
