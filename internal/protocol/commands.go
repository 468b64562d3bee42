package protocol

import (
	"encoding/json"
	"fmt"
)

type MoveDirection string

const (
	Forward  MoveDirection = "forward"
	Backward MoveDirection = "backward"
)

// Sign is +1 for forward, -1 for backward and 0 for anything else.
func (d MoveDirection) Sign() int {
	switch d {
	case Forward:
		return 1
	case Backward:
		return -1
	}
	return 0
}

type RotateDirection string

const (
	Left  RotateDirection = "left"
	Right RotateDirection = "right"
)

// Sign is +1 for right (clockwise with y pointing down) and -1 for left.
func (d RotateDirection) Sign() int {
	switch d {
	case Right:
		return 1
	case Left:
		return -1
	}
	return 0
}

// CommandMeta carries the optional client bookkeeping shared by every command.
type CommandMeta struct {
	Sequence  *uint64 `json:"sequence,omitempty"`
	Timestamp *int64  `json:"timestamp,omitempty"`
}

func (m CommandMeta) Seq() (uint64, bool) {
	if m.Sequence == nil {
		return 0, false
	}
	return *m.Sequence, true
}

func (m CommandMeta) SentAt() (int64, bool) {
	if m.Timestamp == nil {
		return 0, false
	}
	return *m.Timestamp, true
}

// Command is the closed set of gameplay inputs a client can send.
type Command interface {
	CommandType() string
	Seq() (uint64, bool)
	SentAt() (int64, bool)
	withMeta(CommandMeta) Command
}

type MoveCmd struct {
	Type      string        `json:"type"`
	Direction MoveDirection `json:"direction"`
	CommandMeta
}

type RotateCmd struct {
	Type      string          `json:"type"`
	Direction RotateDirection `json:"direction"`
	CommandMeta
}

type ShootCmd struct {
	Type string `json:"type"`
	CommandMeta
}

type PickupAmmoCmd struct {
	Type string `json:"type"`
	CommandMeta
}

type SpeedModeCmd struct {
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`
	CommandMeta
}

func (MoveCmd) CommandType() string       { return TypePlayerMove }
func (RotateCmd) CommandType() string     { return TypePlayerRotate }
func (ShootCmd) CommandType() string      { return TypePlayerShoot }
func (PickupAmmoCmd) CommandType() string { return TypePlayerPickupAmmo }
func (SpeedModeCmd) CommandType() string  { return TypeSpeedModeToggle }

func (c MoveCmd) withMeta(m CommandMeta) Command       { c.CommandMeta = m; return c }
func (c RotateCmd) withMeta(m CommandMeta) Command     { c.CommandMeta = m; return c }
func (c ShootCmd) withMeta(m CommandMeta) Command      { c.CommandMeta = m; return c }
func (c PickupAmmoCmd) withMeta(m CommandMeta) Command { c.CommandMeta = m; return c }
func (c SpeedModeCmd) withMeta(m CommandMeta) Command  { c.CommandMeta = m; return c }

func Move(dir MoveDirection) MoveCmd {
	return MoveCmd{Type: TypePlayerMove, Direction: dir}
}

func Rotate(dir RotateDirection) RotateCmd {
	return RotateCmd{Type: TypePlayerRotate, Direction: dir}
}

func Shoot() ShootCmd { return ShootCmd{Type: TypePlayerShoot} }

func PickupAmmo() PickupAmmoCmd { return PickupAmmoCmd{Type: TypePlayerPickupAmmo} }

func SpeedMode(enabled bool) SpeedModeCmd {
	return SpeedModeCmd{Type: TypeSpeedModeToggle, Enabled: enabled}
}

// Stamp returns a copy of cmd carrying the given sequence and client timestamp.
func Stamp(cmd Command, seq uint64, timestampMs int64) Command {
	return cmd.withMeta(CommandMeta{Sequence: &seq, Timestamp: &timestampMs})
}

// JoinMsg is the first message on every connection.
type JoinMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version,omitempty"`
	Name            string   `json:"name"`
	Encoding        Encoding `json:"encoding,omitempty"`
}

// DecodeCommand parses one gameplay command. Join messages and unknown types
// yield ErrUnknownType; structurally invalid commands yield ErrBadCommand.
func DecodeCommand(b []byte) (Command, error) {
	base, err := DecodeBase(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCommand, err)
	}
	switch base.Type {
	case TypePlayerMove:
		var c MoveCmd
		if err := json.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadCommand, err)
		}
		if c.Direction.Sign() == 0 {
			return nil, fmt.Errorf("%w: move direction %q", ErrBadCommand, c.Direction)
		}
		return c, nil
	case TypePlayerRotate:
		var c RotateCmd
		if err := json.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadCommand, err)
		}
		if c.Direction.Sign() == 0 {
			return nil, fmt.Errorf("%w: rotate direction %q", ErrBadCommand, c.Direction)
		}
		return c, nil
	case TypePlayerShoot:
		var c ShootCmd
		if err := json.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadCommand, err)
		}
		return c, nil
	case TypePlayerPickupAmmo:
		var c PickupAmmoCmd
		if err := json.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadCommand, err)
		}
		return c, nil
	case TypeSpeedModeToggle:
		var c SpeedModeCmd
		if err := json.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadCommand, err)
		}
		return c, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, base.Type)
}
