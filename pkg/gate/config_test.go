package gate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigWithDefaults(t *testing.T) {
	t.Parallel()

	t.Run("zero config takes every default", func(t *testing.T) {
		t.Parallel()

		cfg := Config{}.withDefaults()
		assert.Equal(t, 60*time.Second, cfg.MessageWindow)
		assert.Equal(t, 100, cfg.MaxMessages)
		assert.Equal(t, 10, cfg.MaxSubscriptions)
		assert.Equal(t, 15*time.Minute, cfg.SweepInterval)
	})

	t.Run("negative sweep interval stays disabled", func(t *testing.T) {
		t.Parallel()

		cfg := Config{SweepInterval: -1}.withDefaults()
		assert.Equal(t, time.Duration(-1), cfg.SweepInterval)
	})

	t.Run("explicit values survive", func(t *testing.T) {
		t.Parallel()

		cfg := Config{
			MessageWindow:    time.Second,
			MaxMessages:      5,
			MaxSubscriptions: 1,
			SweepInterval:    time.Hour,
		}.withDefaults()
		assert.Equal(t, time.Second, cfg.MessageWindow)
		assert.Equal(t, 5, cfg.MaxMessages)
		assert.Equal(t, 1, cfg.MaxSubscriptions)
		assert.Equal(t, time.Hour, cfg.SweepInterval)
	})
}
