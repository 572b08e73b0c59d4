package redis

import "time"

type Config struct {
	ConnectionURL  string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"` // ConnectionURL should be in the format "redis://:password@localhost:6379/0".
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`             // RetryAttempts is the number of connection attempts before giving up.
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"5s"`            // RetryInterval is the wait between connection attempts.
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`          // ConnectTimeout bounds the whole connection procedure.
	KeyPrefix      string        `env:"REDIS_KEY_PREFIX" envDefault:"trendwatch:"`       // KeyPrefix namespaces counter keys within a shared Redis instance.
}
