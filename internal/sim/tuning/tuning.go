package tuning

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed tuning.schema.json
var schemaJSON string

var ErrInvalid = errors.New("tuning: invalid document")

// Tuning is the single document both the server and every client compute
// their formulas from. Any field used by rules must be identical on both ends.
type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version" json:"protocol_version"`

	TickRateHz int     `yaml:"tick_rate_hz" json:"tick_rate_hz"`
	TileSize   float64 `yaml:"tile_size" json:"tile_size"`
	Seed       int64   `yaml:"seed" json:"seed"`

	Tank      TankTuning      `yaml:"tank" json:"tank"`
	Bullet    BulletTuning    `yaml:"bullet" json:"bullet"`
	Arena     ArenaTuning     `yaml:"arena" json:"arena"`
	Net       NetTuning       `yaml:"net" json:"net"`
	Reconcile ReconcileTuning `yaml:"reconcile" json:"reconcile"`
	Render    RenderTuning    `yaml:"render" json:"render"`

	raw    []byte
	digest string
}

type TankTuning struct {
	InitialAmmo         int     `yaml:"initial_ammo" json:"initial_ammo"`
	MaxAmmo             int     `yaml:"max_ammo" json:"max_ammo"`
	AmmoPerPickup       int     `yaml:"ammo_per_pickup" json:"ammo_per_pickup"`
	Radius              float64 `yaml:"radius" json:"radius"`
	RotateStepDeg       float64 `yaml:"rotate_step_deg" json:"rotate_step_deg"`
	HeadingLerpFraction float64 `yaml:"heading_lerp_fraction" json:"heading_lerp_fraction"`
	HeadingSnapDeg      float64 `yaml:"heading_snap_deg" json:"heading_snap_deg"`
	MoveCooldownMs      int     `yaml:"move_cooldown_ms" json:"move_cooldown_ms"`
	SpeedMoveCooldownMs int     `yaml:"speed_move_cooldown_ms" json:"speed_move_cooldown_ms"`
	ShootCooldownMs     int     `yaml:"shoot_cooldown_ms" json:"shoot_cooldown_ms"`
	RespawnDelayMs      int     `yaml:"respawn_delay_ms" json:"respawn_delay_ms"`
	ShieldArcHalfDeg    float64 `yaml:"shield_arc_half_deg" json:"shield_arc_half_deg"`
}

type BulletTuning struct {
	Speed     float64 `yaml:"speed" json:"speed"` // world units per tick
	Drag      float64 `yaml:"drag" json:"drag"`   // velocity multiplier per tick
	LifeTicks int     `yaml:"life_ticks" json:"life_ticks"`
	Radius    float64 `yaml:"radius" json:"radius"`
}

type ArenaTuning struct {
	AmmoRespawnMs int      `yaml:"ammo_respawn_ms" json:"ammo_respawn_ms"`
	Rows          []string `yaml:"rows" json:"rows"`
}

type NetTuning struct {
	InterpolationDelayMs int `yaml:"interpolation_delay_ms" json:"interpolation_delay_ms"`
	InterpBufferSize     int `yaml:"interp_buffer_size" json:"interp_buffer_size"`
	MaxPendingAgeMs      int `yaml:"max_pending_age_ms" json:"max_pending_age_ms"`
	StaleSnapshotMs      int `yaml:"stale_snapshot_ms" json:"stale_snapshot_ms"`
	ClientQueue          int `yaml:"client_queue" json:"client_queue"`
}

type ReconcileTuning struct {
	PositionThreshold   float64 `yaml:"position_threshold" json:"position_threshold"`
	HeadingThresholdDeg float64 `yaml:"heading_threshold_deg" json:"heading_threshold_deg"`
	SoftCorrectionRate  float64 `yaml:"soft_correction_rate" json:"soft_correction_rate"` // per second
}

type RenderTuning struct {
	FrameSmoothing float64 `yaml:"frame_smoothing" json:"frame_smoothing"`
	MinFrameMs     float64 `yaml:"min_frame_ms" json:"min_frame_ms"`
	MaxFrameMs     float64 `yaml:"max_frame_ms" json:"max_frame_ms"`
	ClockSlewRate  float64 `yaml:"clock_slew_rate" json:"clock_slew_rate"` // per second
	// ShieldBlendFraction is the share of the remaining shield fade closed
	// per tick at tick_rate_hz.
	ShieldBlendFraction float64 `yaml:"shield_blend_fraction" json:"shield_blend_fraction"`
}

func Load(path string) (Tuning, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Tuning{}, err
	}
	t, err := Parse(raw)
	if err != nil {
		return Tuning{}, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Parse decodes, validates and defaults a tuning document. The raw bytes are
// retained so the exact document can be served to clients.
func Parse(raw []byte) (Tuning, error) {
	t := Defaults()
	if err := validate(raw); err != nil {
		return Tuning{}, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil {
		return Tuning{}, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.check(); err != nil {
		return Tuning{}, err
	}
	t.raw = append([]byte(nil), raw...)
	sum := sha256.Sum256(raw)
	t.digest = hex.EncodeToString(sum[:])
	return t, nil
}

func validate(raw []byte) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("tuning.yaml: %w", err)
	}
	if doc == nil {
		return nil
	}
	// Round-trip through JSON so numbers and maps have the shapes the
	// validator expects.
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("tuning.yaml: %w", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("tuning.yaml: %w", err)
	}
	schema, err := jsonschema.CompileString("tuning.schema.json", schemaJSON)
	if err != nil {
		return fmt.Errorf("compile tuning schema: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

func (t Tuning) check() error {
	var errs []string
	if t.TickRateHz <= 0 {
		errs = append(errs, "tick_rate_hz must be > 0")
	}
	if t.TileSize <= 0 {
		errs = append(errs, "tile_size must be > 0")
	}
	if t.Tank.MaxAmmo < t.Tank.InitialAmmo {
		errs = append(errs, "tank.max_ammo must be >= tank.initial_ammo")
	}
	if f := t.Tank.HeadingLerpFraction; f <= 0 || f > 1 {
		errs = append(errs, "tank.heading_lerp_fraction must be in (0,1]")
	}
	if t.Net.InterpBufferSize < 2 {
		errs = append(errs, "net.interp_buffer_size must be >= 2")
	}
	if len(t.Arena.Rows) == 0 {
		errs = append(errs, "arena.rows must not be empty")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(errs, "; "))
	}
	return nil
}

// Raw returns the document bytes this tuning was parsed from (nil for Defaults).
func (t Tuning) Raw() []byte { return t.raw }

// Digest is the sha256 of the raw document; empty for Defaults.
func (t Tuning) Digest() string { return t.digest }

func (t Tuning) TickInterval() time.Duration {
	return time.Second / time.Duration(t.TickRateHz)
}

func (t Tuning) MoveCooldown(speedMode bool) time.Duration {
	if speedMode {
		return ms(t.Tank.SpeedMoveCooldownMs)
	}
	return ms(t.Tank.MoveCooldownMs)
}

func (t Tuning) ShootCooldown() time.Duration { return ms(t.Tank.ShootCooldownMs) }
func (t Tuning) RespawnDelay() time.Duration  { return ms(t.Tank.RespawnDelayMs) }
func (t Tuning) AmmoRespawn() time.Duration   { return ms(t.Arena.AmmoRespawnMs) }

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion: "1.0",
		TickRateHz:      60,
		TileSize:        40,
		Seed:            1337,
		Tank: TankTuning{
			InitialAmmo:         5,
			MaxAmmo:             10,
			AmmoPerPickup:       3,
			Radius:              16,
			RotateStepDeg:       90,
			HeadingLerpFraction: 0.2,
			HeadingSnapDeg:      0.5,
			MoveCooldownMs:      150,
			SpeedMoveCooldownMs: 80,
			ShootCooldownMs:     300,
			RespawnDelayMs:      3000,
			ShieldArcHalfDeg:    60,
		},
		Bullet: BulletTuning{
			Speed:     8,
			Drag:      0.995,
			LifeTicks: 120,
			Radius:    4,
		},
		Arena: ArenaTuning{
			AmmoRespawnMs: 5000,
			Rows: []string{
				"##########",
				"#...A....#",
				"#.##..##.#",
				"#........#",
				"#..A##A..#",
				"#........#",
				"#.##..##.#",
				"#....A...#",
				"##########",
			},
		},
		Net: NetTuning{
			InterpolationDelayMs: 100,
			InterpBufferSize:     32,
			MaxPendingAgeMs:      2000,
			StaleSnapshotMs:      250,
			ClientQueue:          16,
		},
		Reconcile: ReconcileTuning{
			PositionThreshold:   20,
			HeadingThresholdDeg: 30,
			SoftCorrectionRate:  10,
		},
		Render: RenderTuning{
			FrameSmoothing: 0.2,
			MinFrameMs:     1,
			MaxFrameMs:     100,
			ClockSlewRate:  2,

			ShieldBlendFraction: 0.15,
		},
	}
}
