package protocol

import (
	"encoding/json"
	"errors"
)

const Version = "1.0"

// Client -> server message types.
const (
	TypePlayerJoin       = "playerJoin"
	TypePlayerMove       = "playerMove"
	TypePlayerRotate     = "playerRotate"
	TypePlayerShoot      = "playerShoot"
	TypePlayerPickupAmmo = "playerPickupAmmo"
	TypeSpeedModeToggle  = "speedModeToggle"
)

// Server -> client message types.
const (
	TypePlayerJoined     = "playerJoined"
	TypeArenaLayout      = "arenaLayout"
	TypeGameState        = "gameState"
	TypePlayerKilled     = "playerKilled"
	TypePlayerRespawned  = "playerRespawned"
	TypeKillStreakUpdate = "killStreakUpdate"
	TypePlayerShot       = "playerShot"
	TypeBulletHit        = "bulletHit"
	TypePlayerLeft       = "playerLeft"
)

var (
	ErrUnknownType = errors.New("protocol: unknown message type")
	ErrBadCommand  = errors.New("protocol: malformed command")
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
