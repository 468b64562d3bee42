package main

import (
	"context"
	"flag"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"tankarena.gg/internal/client/conn"
	"tankarena.gg/internal/client/session"
	"tankarena.gg/internal/logging"
	"tankarena.gg/internal/protocol"
)

func main() {
	var (
		server   = flag.String("server", "http://localhost:8080", "server base url")
		name     = flag.String("name", "bot", "tank name")
		encoding = flag.String("encoding", "json", "gameState encoding: json or msgpack")
		fps      = flag.Int("fps", 60, "frame rate of the local loop")
		inputHz  = flag.Float64("input_hz", 6, "average inputs per second")
		seed     = flag.Int64("seed", 0, "input rng seed (0 uses the clock)")
		level    = flag.String("log_level", "info", "log level")
	)
	flag.Parse()

	logger := logging.Component(logging.New(logging.Options{Level: *level, Auto: true}), "bot")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		cancel()
	}()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	b := &bot{
		base:    strings.TrimSuffix(*server, "/"),
		join:    protocol.JoinMsg{Name: *name, Encoding: protocol.ParseEncoding(*encoding)},
		frame:   time.Second / time.Duration(max(*fps, 1)),
		inputHz: *inputHz,
		rng:     rand.New(rand.NewSource(*seed)),
		log:     logger,
	}

	backoff := time.Second
	for ctx.Err() == nil {
		err := b.session(ctx)
		if ctx.Err() != nil {
			return
		}
		logger.Warn().Err(err).Dur("retry_in", backoff).Msg("disconnected")
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, 30*time.Second)
	}
}

type bot struct {
	base    string
	join    protocol.JoinMsg
	frame   time.Duration
	inputHz float64
	rng     *rand.Rand
	log     zerolog.Logger

	sess *session.Session
}

func wsURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://") + "/v1/ws"
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://") + "/v1/ws"
	}
	return base + "/v1/ws"
}

// session runs one connection until it drops or ctx ends.
func (b *bot) session(ctx context.Context) error {
	fetchCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	tun, err := conn.FetchTuning(fetchCtx, http.DefaultClient, b.base)
	cancel()
	if err != nil {
		return err
	}
	if b.sess == nil {
		b.sess = session.New(session.Config{Tuning: tun, Logger: b.log})
	} else {
		b.sess.Reset()
	}

	c, err := conn.Dial(ctx, wsURL(b.base), b.join, b.sess, b.log)
	if err != nil {
		return err
	}
	defer c.Close()
	b.log.Info().Str("tuning_digest", tun.Digest()).Msg("connected")

	ticker := time.NewTicker(b.frame)
	defer ticker.Stop()
	report := time.NewTicker(5 * time.Second)
	defer report.Stop()

	var frames int
	var view session.View
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.Done():
			return c.Err()
		case <-report.C:
			ev := b.log.Info().
				Str("self", view.SelfID).
				Int("frames", frames).
				Int("remote", len(view.Remote)).
				Int("bullets", len(view.Bullets)).
				Int("pending", view.PendingInputs).
				Float64("rtt_ms", view.RTTMs).
				Float64("buffer_score", view.Health.Score).
				Uint64("inbound_dropped", view.InboundDropped)
			if st := b.sess.Reconciler().Stats(); st.Snapshots > 0 {
				ev = ev.Uint64("hard", st.Hard).Uint64("soft", st.Soft).Float64("max_error", st.MaxError)
			}
			ev.Msg("view")
			frames = 0
		case <-ticker.C:
			view = b.sess.Frame()
			frames++
			if view.TuningMismatch {
				b.log.Warn().Msg("server tuning differs from fetched document")
			}
			if view.Self == nil || !view.Self.Alive {
				continue
			}
			if b.rng.Float64() >= b.inputHz*b.frame.Seconds() {
				continue
			}
			if cmd, ok := b.sess.Input(b.pick()); ok {
				if err := c.Send(cmd); err != nil {
					return err
				}
			}
		}
	}
}

func (b *bot) pick() protocol.Command {
	switch n := b.rng.Intn(10); {
	case n < 4:
		return protocol.Move(protocol.Forward)
	case n < 5:
		return protocol.Move(protocol.Backward)
	case n < 6:
		return protocol.Rotate(protocol.Left)
	case n < 7:
		return protocol.Rotate(protocol.Right)
	case n < 9:
		return protocol.Shoot()
	default:
		return protocol.PickupAmmo()
	}
}
