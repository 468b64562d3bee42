package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Encoding selects how gameState frames are written for a client. Every other
// message is always JSON text.
type Encoding string

const (
	EncodingJSON    Encoding = "json"
	EncodingMsgpack Encoding = "msgpack"
)

// ParseEncoding maps anything unrecognized to JSON.
func ParseEncoding(s string) Encoding {
	if Encoding(s) == EncodingMsgpack {
		return EncodingMsgpack
	}
	return EncodingJSON
}

func Encode(m ServerMessage) ([]byte, error) {
	return json.Marshal(m)
}

// EncodeMsgpack writes v using the json field names so both encodings share
// one schema.
func EncodeMsgpack(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeStateMsgpack(b []byte) (*GameStateMsg, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.SetCustomStructTag("json")
	var m GameStateMsg
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode msgpack gameState: %w", err)
	}
	return &m, nil
}

// DecodeServer parses a JSON server message into its concrete type.
func DecodeServer(b []byte) (ServerMessage, error) {
	base, err := DecodeBase(b)
	if err != nil {
		return nil, err
	}
	var m ServerMessage
	switch base.Type {
	case TypePlayerJoined:
		m, err = decodeInto[PlayerJoinedMsg](b)
	case TypeArenaLayout:
		m, err = decodeInto[ArenaLayoutMsg](b)
	case TypeGameState:
		m, err = decodeInto[*GameStateMsg](b)
	case TypePlayerKilled:
		m, err = decodeInto[PlayerKilledMsg](b)
	case TypePlayerRespawned:
		m, err = decodeInto[PlayerRespawnedMsg](b)
	case TypeKillStreakUpdate:
		m, err = decodeInto[KillStreakUpdateMsg](b)
	case TypePlayerShot:
		m, err = decodeInto[PlayerShotMsg](b)
	case TypeBulletHit:
		m, err = decodeInto[BulletHitMsg](b)
	case TypePlayerLeft:
		m, err = decodeInto[PlayerLeftMsg](b)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, base.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", base.Type, err)
	}
	return m, nil
}

func decodeInto[T any](b []byte) (T, error) {
	var out T
	err := json.Unmarshal(b, &out)
	return out, err
}
