package world

import (
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"tankarena.gg/internal/protocol"
	"tankarena.gg/internal/sim/arena"
	"tankarena.gg/internal/sim/ingest"
	"tankarena.gg/internal/sim/rules"
	"tankarena.gg/internal/sim/tuning"
	"tankarena.gg/internal/telemetry"
)

// World is the single-threaded authoritative simulation.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg      WorldConfig
	tuning   tuning.Tuning
	rules    rules.Rules
	interval time.Duration

	tick atomic.Uint64

	arena   *arena.Model
	tanks   *TankRepo
	bullets []*Bullet
	ingest  *ingest.Ingestor
	rng     *rand.Rand

	// Events produced during the current step, in emission order.
	events []protocol.Event

	inbox chan CommandEnvelope
	join  chan JoinRequest
	leave chan string
	stop  chan struct{}

	nextBulletID atomic.Uint64
	joinedTotal  uint64
	killsTotal   uint64

	// Optional collaborators (may be nil).
	publisher  Publisher
	tickLogger TickLogger
	inst       *telemetry.World
	log        zerolog.Logger

	metrics   atomic.Value
	lastState atomic.Pointer[protocol.GameStateMsg]
	players   atomic.Int64
}

func New(cfg WorldConfig) (*World, error) {
	cfg.applyDefaults()
	layout, err := arena.RowsGenerator{Rows: cfg.Tuning.Arena.Rows}.Generate(cfg.Seed)
	if err != nil {
		return nil, fmt.Errorf("world %s: %w", cfg.ID, err)
	}
	w := &World{
		cfg:      cfg,
		tuning:   cfg.Tuning,
		rules:    rules.New(cfg.Tuning),
		interval: cfg.Tuning.TickInterval(),
		arena:    arena.New(layout),
		tanks:    NewTankRepo(),
		ingest:   ingest.New(nil),
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		inbox:    make(chan CommandEnvelope, cfg.InboxSize),
		join:     make(chan JoinRequest, cfg.JoinSize),
		leave:    make(chan string, cfg.LeaveSize),
		stop:     make(chan struct{}),
		log:      zerolog.Nop(),
	}
	return w, nil
}

func (w *World) SetPublisher(p Publisher)          { w.publisher = p }
func (w *World) SetTickLogger(l TickLogger)        { w.tickLogger = l }
func (w *World) SetInstruments(i *telemetry.World) { w.inst = i }
func (w *World) SetLogger(l zerolog.Logger)        { w.log = l }
func (w *World) Inbox() chan<- CommandEnvelope     { return w.inbox }
func (w *World) Join() chan<- JoinRequest          { return w.join }
func (w *World) Leave() chan<- string              { return w.leave }
func (w *World) CurrentTick() uint64               { return w.tick.Load() }
func (w *World) Tuning() tuning.Tuning             { return w.tuning }
func (w *World) Sequences() ingest.SequenceView    { return w.ingest.Sequences() }
func (w *World) PlayerCount() int64                { return w.players.Load() }

func (w *World) ID() string {
	if w == nil {
		return ""
	}
	return w.cfg.ID
}

// Seed is the effective seed after defaults; a journal needs it to rebuild
// the world.
func (w *World) Seed() int64    { return w.cfg.Seed }
func (w *World) EpochMs() int64 { return w.cfg.EpochMs }

func (w *World) TickRateHz() int {
	if w == nil {
		return 0
	}
	return w.tuning.TickRateHz
}

// LastState is the most recent snapshot, safe to read from any goroutine.
func (w *World) LastState() *protocol.GameStateMsg { return w.lastState.Load() }

// Tank exposes a tank for tests and tools running on the loop goroutine.
func (w *World) Tank(id string) *Tank { return w.tanks.Get(id) }

func (w *World) Bullets() []*Bullet { return w.bullets }

func (w *World) Arena() *arena.Model { return w.arena }

func (w *World) Rules() rules.Rules { return w.rules }

func (w *World) simTime(tick uint64) time.Duration {
	return time.Duration(tick) * w.interval
}

func (w *World) now() time.Duration { return w.simTime(w.tick.Load()) }

func (w *World) timestampMs(at time.Duration) int64 {
	return w.cfg.EpochMs + at.Milliseconds()
}

func (w *World) emit(e protocol.Event) { w.events = append(w.events, e) }

// ArenaLayout describes the static grid for joining clients.
func (w *World) ArenaLayout() protocol.ArenaLayoutMsg {
	l := w.arena.Layout()
	return protocol.ArenaLayoutMsg{
		Type:     protocol.TypeArenaLayout,
		Width:    l.Width,
		Height:   l.Height,
		TileSize: w.tuning.TileSize,
		Rows:     l.Rows(),
	}
}

func (w *World) joinResponse(t *Tank) JoinResponse {
	return JoinResponse{
		Joined: protocol.PlayerJoinedMsg{
			Type:            protocol.TypePlayerJoined,
			ProtocolVersion: protocol.Version,
			PlayerID:        t.ID,
			Name:            t.Name,
			Color:           t.Color,
			TickRateHz:      w.tuning.TickRateHz,
			TuningDigest:    w.tuning.Digest(),
		},
		Layout: w.ArenaLayout(),
	}
}
