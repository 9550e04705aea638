package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/meterkit/pkg/config"
)

func TestLoad(t *testing.T) {
	t.Run("reads environment with defaults", func(t *testing.T) {
		type testConfig struct {
			Addr    string        `env:"TEST_LOAD_ADDR" envDefault:":8080"`
			Timeout time.Duration `env:"TEST_LOAD_TIMEOUT" envDefault:"5s"`
		}
		t.Setenv("TEST_LOAD_ADDR", ":9090")

		var cfg testConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, ":9090", cfg.Addr)
		assert.Equal(t, 5*time.Second, cfg.Timeout)
	})

	t.Run("caches the first parse per type", func(t *testing.T) {
		type cachedConfig struct {
			Value string `env:"TEST_CACHED_VALUE" envDefault:"first"`
		}
		t.Setenv("TEST_CACHED_VALUE", "first")

		var first cachedConfig
		require.NoError(t, config.Load(&first))
		require.Equal(t, "first", first.Value)

		t.Setenv("TEST_CACHED_VALUE", "second")
		var second cachedConfig
		require.NoError(t, config.Load(&second))
		assert.Equal(t, "first", second.Value, "later environment changes do not reparse")
	})

	t.Run("nil pointer", func(t *testing.T) {
		var cfg *struct{}
		assert.ErrorIs(t, config.Load(cfg), config.ErrNilPointer)
	})

	t.Run("parse failure", func(t *testing.T) {
		type badConfig struct {
			Count int `env:"TEST_BAD_COUNT"`
		}
		t.Setenv("TEST_BAD_COUNT", "not-a-number")

		var cfg badConfig
		assert.ErrorIs(t, config.Load(&cfg), config.ErrParsingConfig)
	})

	t.Run("required variable missing", func(t *testing.T) {
		type requiredConfig struct {
			Secret string `env:"TEST_REQUIRED_SECRET,required"`
		}
		var cfg requiredConfig
		assert.ErrorIs(t, config.Load(&cfg), config.ErrParsingConfig)
	})
}

func TestMustLoad(t *testing.T) {
	t.Run("panics on failure", func(t *testing.T) {
		type mustConfig struct {
			Secret string `env:"TEST_MUST_SECRET,required"`
		}
		assert.Panics(t, func() {
			var cfg mustConfig
			config.MustLoad(&cfg)
		})
	})

	t.Run("fills valid config", func(t *testing.T) {
		type mustOKConfig struct {
			Name string `env:"TEST_MUST_NAME" envDefault:"fallback"`
		}
		var cfg mustOKConfig
		assert.NotPanics(t, func() { config.MustLoad(&cfg) })
		assert.Equal(t, "fallback", cfg.Name)
	})
}
