// Package ws is the player-facing websocket transport. Each connection
// performs a playerJoin handshake, then forwards decoded commands into the
// world inbox and writes broadcast frames back out.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"tankarena.gg/internal/protocol"
	"tankarena.gg/internal/sim/broadcast"
	"tankarena.gg/internal/sim/world"
)

const (
	joinTimeout  = 2 * time.Second
	writeTimeout = 5 * time.Second
	readTimeout  = 60 * time.Second
	maxNameLen   = 24
)

// handshakeTimeout bounds the wait for the world to answer a join.
var handshakeTimeout = 5 * time.Second

type Server struct {
	world *world.World
	hub   *broadcast.Hub
	log   zerolog.Logger
	queue int

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, hub *broadcast.Hub, logger zerolog.Logger) *Server {
	q := w.Tuning().Net.ClientQueue
	if q <= 0 {
		q = 16
	}
	return &Server{
		world: w,
		hub:   hub,
		log:   logger,
		queue: q,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		playerID, enc, out := s.handshake(conn)
		if playerID == "" {
			return
		}
		log := s.log.With().Str("player_id", playerID).Str("encoding", string(enc)).Logger()
		log.Info().Msg("connected")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		s.hub.Subscribe(playerID, enc, out)
		defer func() {
			s.hub.Unsubscribe(playerID)
			s.leave(playerID)
			log.Info().Msg("disconnected")
		}()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case f, ok := <-out:
					if !ok {
						return
					}
					kind := websocket.TextMessage
					if f.Binary {
						kind = websocket.BinaryMessage
					}
					_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
					if err := conn.WriteMessage(kind, f.Data); err != nil {
						cancel()
						_ = conn.Close()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			cmd, err := protocol.DecodeCommand(msg)
			if err != nil {
				log.Debug().Err(err).Msg("dropped command")
				continue
			}
			select {
			case s.world.Inbox() <- world.CommandEnvelope{PlayerID: playerID, Cmd: cmd}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Server) handshake(conn *websocket.Conn) (playerID string, enc protocol.Encoding, out chan broadcast.Frame) {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypePlayerJoin {
		closeWith(conn, websocket.ClosePolicyViolation, protocol.ErrProtoBadRequest)
		return "", "", nil
	}
	var join protocol.JoinMsg
	if err := json.Unmarshal(msg, &join); err != nil {
		closeWith(conn, websocket.ClosePolicyViolation, protocol.ErrProtoBadRequest)
		return "", "", nil
	}
	if join.ProtocolVersion != "" && join.ProtocolVersion != protocol.Version {
		closeWith(conn, websocket.ClosePolicyViolation, protocol.ErrProtoVersion)
		return "", "", nil
	}

	name := strings.TrimSpace(join.Name)
	if name == "" {
		name = "tank"
	}
	if len(name) > maxNameLen {
		name = name[:maxNameLen]
	}

	joinCtx, abandon := context.WithCancel(context.Background())
	defer abandon()
	respCh := make(chan world.JoinResponse, 1)
	req := world.JoinRequest{PlayerID: uuid.NewString(), Name: name, Resp: respCh, Ctx: joinCtx}
	select {
	case s.world.Join() <- req:
	case <-time.After(joinTimeout):
		closeWith(conn, websocket.CloseTryAgainLater, protocol.ErrWorldBusy)
		return "", "", nil
	}
	var resp world.JoinResponse
	select {
	case resp = <-respCh:
	case <-time.After(handshakeTimeout):
		// The loop may still reach the request: a queued one is dropped, an
		// added tank is removed by the leave.
		abandon()
		s.leave(req.PlayerID)
		closeWith(conn, websocket.CloseInternalServerErr, protocol.ErrInternal)
		return "", "", nil
	}

	// Identity and layout go out before any broadcast frame.
	if err := writeJSON(conn, resp.Joined); err != nil {
		s.leave(req.PlayerID)
		return "", "", nil
	}
	if err := writeJSON(conn, resp.Layout); err != nil {
		s.leave(req.PlayerID)
		return "", "", nil
	}
	return resp.Joined.PlayerID, protocol.ParseEncoding(string(join.Encoding)), make(chan broadcast.Frame, s.queue)
}

func (s *Server) leave(playerID string) {
	select {
	case s.world.Leave() <- playerID:
	case <-time.After(joinTimeout):
		s.log.Warn().Str("player_id", playerID).Msg("leave not delivered")
	}
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}
