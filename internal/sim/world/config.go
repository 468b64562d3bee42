package world

import "tankarena.gg/internal/sim/tuning"

type WorldConfig struct {
	ID     string
	Tuning tuning.Tuning

	// Seed drives spawn selection and colors. Zero falls back to the
	// tuning seed.
	Seed int64

	// EpochMs is the wall-clock time of tick 0; snapshot timestamps are
	// EpochMs plus simulation time.
	EpochMs int64

	InboxSize int
	JoinSize  int
	LeaveSize int
}

func (c *WorldConfig) applyDefaults() {
	if c.ID == "" {
		c.ID = "arena"
	}
	if c.Tuning.TickRateHz <= 0 {
		c.Tuning = tuning.Defaults()
	}
	if c.Seed == 0 {
		c.Seed = c.Tuning.Seed
	}
	if c.InboxSize <= 0 {
		c.InboxSize = 1024
	}
	if c.JoinSize <= 0 {
		c.JoinSize = 64
	}
	if c.LeaveSize <= 0 {
		c.LeaveSize = 64
	}
}
