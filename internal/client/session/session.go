// Package session is the client-side context object. It owns the clocks,
// the predictor, the reconciler and the interpolation buffer for one
// connection, takes server messages from the network goroutine through a
// bounded channel and turns them into a renderable view once per frame.
package session

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"tankarena.gg/internal/client/clock"
	"tankarena.gg/internal/client/interp"
	"tankarena.gg/internal/client/predict"
	"tankarena.gg/internal/client/reconcile"
	"tankarena.gg/internal/protocol"
	"tankarena.gg/internal/sim/arena"
	"tankarena.gg/internal/sim/broadcast"
	"tankarena.gg/internal/sim/rules"
	"tankarena.gg/internal/sim/tuning"
)

type Config struct {
	Tuning      tuning.Tuning
	Now         func() time.Time
	InboundSize int
	Logger      zerolog.Logger
}

// View is what a renderer needs for one frame.
type View struct {
	SelfID string
	// Self is a copy of the predicted local tank; nil before the first
	// authoritative record arrives.
	Self           *predict.PredictedTank
	SelfX, SelfY   float64
	Remote         []protocol.TankRecord
	Bullets        []protocol.BulletRecord
	Arena          protocol.ArenaState
	TargetMs       float64
	Health         interp.Health
	Events         []protocol.Event
	Reconcile      reconcile.Result
	PendingInputs  int
	RTTMs          float64
	Delta          time.Duration
	TuningMismatch bool
	InboundDropped uint64
	// ShieldBlend fades between 0 (speed mode) and 1 (shield up) for the
	// local tank.
	ShieldBlend float64
}

type Session struct {
	cfg Config
	log zerolog.Logger

	render *clock.RenderClock
	timing *clock.InterpolationClock
	net    *clock.NetworkClock

	predictor  *predict.Predictor
	reconciler *reconcile.Reconciler
	buffer     *interp.Buffer
	arena      *arena.Model

	inbound chan protocol.ServerMessage
	dropped atomic.Uint64

	selfID   string
	shield   float64
	events   []protocol.Event
	last     reconcile.Result
	mismatch bool
}

func New(cfg Config) *Session {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.InboundSize <= 0 {
		cfg.InboundSize = 256
	}
	t := cfg.Tuning
	ms := func(v float64) time.Duration { return time.Duration(v * float64(time.Millisecond)) }
	delay := time.Duration(t.Net.InterpolationDelayMs) * time.Millisecond
	s := &Session{
		cfg:        cfg,
		log:        cfg.Logger,
		render:     clock.NewRenderClock(t.Render.FrameSmoothing, ms(t.Render.MinFrameMs), ms(t.Render.MaxFrameMs)),
		timing:     clock.NewInterpolationClock(delay, t.Render.ClockSlewRate),
		net:        clock.NewNetworkClock(cfg.Now),
		predictor:  predict.New(rules.New(t), t.TickInterval()),
		reconciler: reconcile.New(reconcile.ConfigFrom(t)),
		buffer:     interp.New(t.Net.InterpBufferSize, delay, time.Duration(t.Net.StaleSnapshotMs)*time.Millisecond),
		inbound:    make(chan protocol.ServerMessage, cfg.InboundSize),
	}
	return s
}

// Deliver hands a decoded server message to the session. It never blocks:
// when the frame loop falls behind the oldest queued message is dropped.
func (s *Session) Deliver(m protocol.ServerMessage) {
	if m == nil {
		return
	}
	if broadcast.SendLatest(s.inbound, m) {
		s.dropped.Add(1)
	}
}

// Input predicts cmd locally and returns the stamped command to send. ok is
// false before the server has assigned an identity.
func (s *Session) Input(cmd protocol.Command) (protocol.Command, bool) {
	if s.selfID == "" {
		return nil, false
	}
	in := s.predictor.Input(cmd, s.net.NowMs())
	return in.Cmd, true
}

// Frame drains pending messages, advances every clock and returns the view
// to draw.
func (s *Session) Frame() View {
	now := s.cfg.Now()
	nowMs := now.UnixMilli()
	s.events = s.events[:0]
	s.drain(nowMs)

	dt := s.render.Frame(now)
	if s.net.Synced() {
		s.timing.Advance(dt, s.net.ServerNowMs(nowMs))
	}
	s.predictor.Advance(dt)
	s.reconciler.Settle(s.predictor.Tank(), dt)
	s.blendShield(dt)

	v := View{
		SelfID:         s.selfID,
		Events:         append([]protocol.Event(nil), s.events...),
		Reconcile:      s.last,
		PendingInputs:  s.predictor.Pending().Len(),
		RTTMs:          s.net.RTTMs(),
		Delta:          dt,
		TuningMismatch: s.mismatch,
		TargetMs:       s.timing.TargetMs(),
		Health:         s.buffer.Health(s.timing.NowMs()),
		InboundDropped: s.dropped.Load(),
		ShieldBlend:    s.shield,
	}
	if s.predictor.Ready() {
		self := *s.predictor.Tank()
		v.Self = &self
		v.SelfX, v.SelfY = self.DisplayPosition()
	}
	if f, ok := s.buffer.Sample(s.timing.NowMs()); ok {
		for _, t := range f.Tanks {
			if t.ID != s.selfID {
				v.Remote = append(v.Remote, t)
			}
		}
		v.Bullets = f.Bullets
		v.Arena = f.Arena
	}
	return v
}

func (s *Session) blendShield(dt time.Duration) {
	if !s.predictor.Ready() {
		return
	}
	target := 0.0
	if s.predictor.Tank().Shield {
		target = 1
	}
	r := s.cfg.Tuning.Render
	s.shield = clock.Lerp(s.shield, target, clock.DecayFactor(r.ShieldBlendFraction, float64(s.cfg.Tuning.TickRateHz), dt))
	if math.Abs(s.shield-target) < 1e-3 {
		s.shield = target
	}
}

func (s *Session) drain(nowMs int64) {
	for {
		select {
		case m := <-s.inbound:
			s.handle(m, nowMs)
		default:
			return
		}
	}
}

func (s *Session) handle(m protocol.ServerMessage, nowMs int64) {
	switch msg := m.(type) {
	case protocol.PlayerJoinedMsg:
		if s.selfID == "" {
			s.selfID = msg.PlayerID
			want := s.cfg.Tuning.Digest()
			if msg.TuningDigest != "" && want != "" && msg.TuningDigest != want {
				s.mismatch = true
				s.log.Warn().Str("server", msg.TuningDigest).Str("local", want).Msg("tuning digest mismatch; predictions will drift")
			}
			s.log.Info().Str("player_id", msg.PlayerID).Msg("joined")
		}
		s.events = append(s.events, msg)
	case protocol.ArenaLayoutMsg:
		layout, err := arena.ParseRows(msg.Rows)
		if err != nil {
			s.log.Warn().Err(err).Msg("bad arena layout")
			return
		}
		s.arena = arena.New(layout)
		s.predictor.SetArena(s.arena)
	case *protocol.GameStateMsg:
		s.applyState(msg, nowMs)
	case protocol.Event:
		s.events = append(s.events, msg)
	}
}

func (s *Session) applyState(st *protocol.GameStateMsg, nowMs int64) {
	s.net.ObserveServerTime(st.Timestamp, nowMs)
	s.buffer.Push(st)
	if s.arena != nil {
		s.arena.ApplySpawns(spawnStates(st.Arena))
	}
	if s.selfID == "" {
		return
	}
	if ack := st.AckFor(s.selfID); ack > 0 {
		if in, ok := s.predictor.Pending().Find(ack); ok {
			s.net.ObserveRTT(in.SentAt, nowMs)
		}
	}
	if !s.predictor.Ready() {
		if rec, ok := st.Tank(s.selfID); ok {
			s.predictor.Reset(s.selfID, &rec)
		}
	}
	s.last = s.reconciler.Apply(s.predictor, st, s.selfID, s.snapshotLocalMs(st, nowMs), nowMs)
	if s.last.Hard {
		s.log.Debug().Uint64("tick", st.Tick).Float64("pos_err", s.last.PositionError).
			Float64("heading_err", s.last.HeadingError).Msg("hard correction")
	}
}

// snapshotLocalMs maps a snapshot timestamp onto the local clock: the offset
// estimate gives its arrival time, and half a round trip earlier is when the
// server produced it.
func (s *Session) snapshotLocalMs(st *protocol.GameStateMsg, nowMs int64) int64 {
	if !s.net.Synced() {
		return nowMs
	}
	at := int64(math.Round(float64(st.Timestamp) - s.net.OffsetMs() - s.net.RTTMs()/2))
	return min(at, nowMs)
}

func spawnStates(a protocol.ArenaState) []arena.SpawnState {
	out := make([]arena.SpawnState, 0, len(a.Ammo))
	for _, r := range a.Ammo {
		out = append(out, arena.SpawnState{
			Pos:       arena.Point{X: r.X, Y: r.Y},
			Present:   r.Present,
			RespawnIn: time.Duration(r.RespawnMs) * time.Millisecond,
		})
	}
	return out
}

// Reset clears every piece of connection state. Called before reconnecting
// so the new server identity starts from a clean slate.
func (s *Session) Reset() {
	for len(s.inbound) > 0 {
		<-s.inbound
	}
	s.selfID = ""
	s.shield = 0
	s.mismatch = false
	s.last = reconcile.Result{}
	s.arena = nil
	s.predictor.SetArena(nil)
	s.predictor.Reset("", nil)
	s.reconciler.Reset()
	s.buffer.Reset()
	s.render.Reset()
	s.timing.Reset()
	s.net.Reset()
	s.events = s.events[:0]
}

func (s *Session) SelfID() string                    { return s.selfID }
func (s *Session) Predictor() *predict.Predictor     { return s.predictor }
func (s *Session) Reconciler() *reconcile.Reconciler { return s.reconciler }
func (s *Session) Buffer() *interp.Buffer            { return s.buffer }
func (s *Session) Arena() *arena.Model               { return s.arena }
