package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var defaultEnvLoaded sync.Once

// Load parses environment variables into the provided configuration struct.
// The default .env file, when present, is loaded once per process before the
// first parse; a missing .env file is not an error.
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}

	defaultEnvLoaded.Do(func() {
		_ = godotenv.Load()
	})

	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	return nil
}

// MustLoad works like Load but panics on failure. Used for configuration
// the process cannot start without.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}
