package eventqueue

import "time"

// Config holds queue tuning. Zero values fall back to the documented defaults.
type Config struct {
	// Capacity bounds the in-memory buffer; the oldest event is dropped
	// when a new one arrives at capacity.
	Capacity int `env:"EVENT_QUEUE_CAPACITY" envDefault:"1000"`

	// FlushInterval is how long after the first buffered event a flush is
	// scheduled when the size threshold is not reached first.
	FlushInterval time.Duration `env:"EVENT_QUEUE_FLUSH_INTERVAL" envDefault:"5s"`

	// FlushThreshold triggers an immediate flush once the buffer reaches
	// this many events.
	FlushThreshold int `env:"EVENT_QUEUE_FLUSH_THRESHOLD" envDefault:"100"`

	// MaxRetries is the number of retry attempts after the initial persist
	// attempt fails.
	MaxRetries int `env:"EVENT_QUEUE_MAX_RETRIES" envDefault:"3"`

	// BaseDelay is the first retry delay; attempt n waits BaseDelay * 2^n.
	BaseDelay time.Duration `env:"EVENT_QUEUE_BASE_DELAY" envDefault:"1s"`
}

func (c Config) withDefaults() Config {
	if c.Capacity <= 0 {
		c.Capacity = 1000
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 5 * time.Second
	}
	if c.FlushThreshold <= 0 {
		c.FlushThreshold = 100
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	return c
}
