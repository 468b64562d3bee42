// Package conn is the client side of the websocket transport: it fetches the
// shared tuning document, performs the playerJoin handshake and pumps frames
// between the socket and a session.
package conn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"tankarena.gg/internal/protocol"
	"tankarena.gg/internal/sim/tuning"
)

var ErrClosed = errors.New("conn: closed")

const writeTimeout = 5 * time.Second

// Sink receives decoded server messages from the read goroutine. It must
// not block.
type Sink interface {
	Deliver(protocol.ServerMessage)
}

// FetchTuning downloads the tuning document the server was started with.
func FetchTuning(ctx context.Context, client *http.Client, baseURL string) (tuning.Tuning, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/v1/config", nil)
	if err != nil {
		return tuning.Tuning{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return tuning.Tuning{}, fmt.Errorf("fetch tuning: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return tuning.Tuning{}, fmt.Errorf("fetch tuning: status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return tuning.Tuning{}, fmt.Errorf("fetch tuning: %w", err)
	}
	return tuning.Parse(raw)
}

type Conn struct {
	ws   *websocket.Conn
	out  chan []byte
	done chan struct{}
	log  zerolog.Logger

	once sync.Once
	mu   sync.Mutex
	err  error
}

// Dial connects to url, sends join and starts the read and write pumps.
// Every decoded message goes to sink, including the playerJoined reply.
func Dial(ctx context.Context, url string, join protocol.JoinMsg, sink Sink, log zerolog.Logger) (*Conn, error) {
	if join.Type == "" {
		join.Type = protocol.TypePlayerJoin
	}
	if join.ProtocolVersion == "" {
		join.ProtocolVersion = protocol.Version
	}
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	b, err := json.Marshal(join)
	if err != nil {
		_ = ws.Close()
		return nil, err
	}
	_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("send join: %w", err)
	}
	c := &Conn{ws: ws, out: make(chan []byte, 64), done: make(chan struct{}), log: log}
	go c.readLoop(sink)
	go c.writeLoop()
	return c, nil
}

// Send queues cmd for the write pump.
func (c *Conn) Send(cmd protocol.Command) error {
	b, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.out <- b:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Done is closed when the connection ends for any reason.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err reports why the connection ended; nil while it is open or after Close.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Conn) Close() error {
	c.shutdown(nil)
	return nil
}

func (c *Conn) shutdown(err error) {
	c.once.Do(func() {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		if err == nil {
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		}
		close(c.done)
		_ = c.ws.Close()
	})
}

func (c *Conn) readLoop(sink Sink) {
	for {
		kind, msg, err := c.ws.ReadMessage()
		if err != nil {
			c.shutdown(err)
			return
		}
		var m protocol.ServerMessage
		if kind == websocket.BinaryMessage {
			st, derr := protocol.DecodeStateMsgpack(msg)
			if derr == nil {
				m = st
			}
			err = derr
		} else {
			m, err = protocol.DecodeServer(msg)
		}
		if err != nil {
			c.log.Debug().Err(err).Msg("undecodable frame")
			continue
		}
		sink.Deliver(m)
	}
}

func (c *Conn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case b := <-c.out:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
				c.shutdown(err)
				return
			}
		}
	}
}
