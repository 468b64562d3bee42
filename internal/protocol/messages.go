package protocol

// ServerMessage is anything the server pushes to clients.
type ServerMessage interface {
	MessageType() string
}

// Event is a domain event produced by the simulation during a tick.
type Event interface {
	ServerMessage
	isEvent()
}

type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PlayerJoined (server -> all) announces a new player. The joiner also learns
// its own id from it and checks TuningDigest against the fetched document.
type PlayerJoinedMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	PlayerID        string `json:"playerId"`
	Name            string `json:"name"`
	Color           [3]int `json:"color"`
	TickRateHz      int    `json:"tick_rate_hz,omitempty"`
	TuningDigest    string `json:"tuning_digest,omitempty"`
}

// ArenaLayout (server -> joiner) carries the static tile grid.
type ArenaLayoutMsg struct {
	Type     string   `json:"type"`
	Width    int      `json:"width"`
	Height   int      `json:"height"`
	TileSize float64  `json:"tile_size"`
	Rows     []string `json:"rows"`
}

// GameState (server -> all, every tick) is a full, idempotent snapshot.
type GameStateMsg struct {
	Type           string            `json:"type"`
	Tick           uint64            `json:"tick"`
	Timestamp      int64             `json:"timestamp"`
	Tanks          []TankRecord      `json:"tanks"`
	Bullets        []BulletRecord    `json:"bullets"`
	Arena          ArenaState        `json:"arena"`
	InputSequences map[string]uint64 `json:"inputSequences"`
}

type TankRecord struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Color         [3]int   `json:"color"`
	X             float64  `json:"x"`
	Y             float64  `json:"y"`
	GridX         *int     `json:"gridX,omitempty"`
	GridY         *int     `json:"gridY,omitempty"`
	Heading       float64  `json:"heading"`
	TargetHeading *float64 `json:"targetHeading,omitempty"`
	Ammo          int      `json:"ammo"`
	Shield        bool     `json:"shield"`
	SpeedMode     bool     `json:"speedMode"`
	KillStreak    int      `json:"killStreak"`
	Alive         bool     `json:"alive"`
	RespawnAt     int64    `json:"respawnAt,omitempty"`
}

type BulletRecord struct {
	ID      uint64  `json:"id"`
	OwnerID string  `json:"ownerId"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	VX      float64 `json:"vx"`
	VY      float64 `json:"vy"`
	Life    int     `json:"life"`
	Radius  float64 `json:"radius"`
	Active  bool    `json:"active"`
}

type ArenaState struct {
	Ammo []AmmoSpawnRecord `json:"ammo"`
}

type AmmoSpawnRecord struct {
	X         int   `json:"x"`
	Y         int   `json:"y"`
	Present   bool  `json:"present"`
	RespawnMs int64 `json:"respawnMs,omitempty"`
}

// Tank returns the record for id, if present.
func (m *GameStateMsg) Tank(id string) (TankRecord, bool) {
	for _, t := range m.Tanks {
		if t.ID == id {
			return t, true
		}
	}
	return TankRecord{}, false
}

// AckFor is the last processed input sequence for a player (0 when none).
func (m *GameStateMsg) AckFor(id string) uint64 {
	return m.InputSequences[id]
}

type PlayerKilledMsg struct {
	Type      string `json:"type"`
	Killer    string `json:"killer"`
	Victim    string `json:"victim"`
	Timestamp int64  `json:"timestamp"`
}

type PlayerRespawnedMsg struct {
	Type      string `json:"type"`
	PlayerID  string `json:"playerId"`
	Position  Vec2   `json:"position"`
	Timestamp int64  `json:"timestamp"`
}

type KillStreakUpdateMsg struct {
	Type     string `json:"type"`
	PlayerID string `json:"playerId"`
	Streak   int    `json:"streak"`
}

type PlayerShotMsg struct {
	Type     string `json:"type"`
	PlayerID string `json:"playerId"`
}

type BulletHitMsg struct {
	Type     string  `json:"type"`
	TargetID string  `json:"targetId"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Blocked  bool    `json:"blocked,omitempty"`
}

type PlayerLeftMsg struct {
	Type     string `json:"type"`
	PlayerID string `json:"playerId"`
}

func (PlayerJoinedMsg) MessageType() string     { return TypePlayerJoined }
func (ArenaLayoutMsg) MessageType() string      { return TypeArenaLayout }
func (GameStateMsg) MessageType() string        { return TypeGameState }
func (PlayerKilledMsg) MessageType() string     { return TypePlayerKilled }
func (PlayerRespawnedMsg) MessageType() string  { return TypePlayerRespawned }
func (KillStreakUpdateMsg) MessageType() string { return TypeKillStreakUpdate }
func (PlayerShotMsg) MessageType() string       { return TypePlayerShot }
func (BulletHitMsg) MessageType() string        { return TypeBulletHit }
func (PlayerLeftMsg) MessageType() string       { return TypePlayerLeft }

func (PlayerJoinedMsg) isEvent()     {}
func (PlayerKilledMsg) isEvent()     {}
func (PlayerRespawnedMsg) isEvent()  {}
func (KillStreakUpdateMsg) isEvent() {}
func (PlayerShotMsg) isEvent()       {}
func (BulletHitMsg) isEvent()        {}
func (PlayerLeftMsg) isEvent()       {}
