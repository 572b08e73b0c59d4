package gate

import "time"

// Config holds quota tuning. Zero values fall back to the documented
// defaults.
type Config struct {
	// MessageWindow is the fixed rate-limit window.
	MessageWindow time.Duration `env:"GATE_MESSAGE_WINDOW" envDefault:"60s"`

	// MaxMessages caps inbound messages per client per window.
	MaxMessages int `env:"GATE_MAX_MESSAGES" envDefault:"100"`

	// MaxSubscriptions caps concurrent channel subscriptions per client.
	MaxSubscriptions int `env:"GATE_MAX_SUBSCRIPTIONS" envDefault:"10"`

	// SweepInterval is how often stale quota state is reclaimed.
	// Set to a negative value to disable the background sweeper.
	SweepInterval time.Duration `env:"GATE_SWEEP_INTERVAL" envDefault:"15m"`
}

func (c Config) withDefaults() Config {
	if c.MessageWindow <= 0 {
		c.MessageWindow = 60 * time.Second
	}
	if c.MaxMessages <= 0 {
		c.MaxMessages = 100
	}
	if c.MaxSubscriptions <= 0 {
		c.MaxSubscriptions = 10
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = 15 * time.Minute
	}
	return c
}
