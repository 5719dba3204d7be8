package config_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingsync/pkg/config"
)

type testConfig struct {
	Name    string        `env:"NAME" envDefault:"billing"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"10s"`
	Hosts   []string      `env:"HOSTS" envSeparator:","`
}

type requiredConfig struct {
	Secret string `env:"SECRET,required"`
}

type validatedConfig struct {
	Min int `env:"MIN" envDefault:"1"`
	Max int `env:"MAX" envDefault:"10"`
}

func (c validatedConfig) Validate() error {
	if c.Min > c.Max {
		return errors.New("min exceeds max")
	}
	return nil
}

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()

	var cfg testConfig
	require.NoError(t, config.Load(&cfg, config.WithEnvironment(map[string]string{})))
	assert.Equal(t, "billing", cfg.Name)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Empty(t, cfg.Hosts)
}

func TestLoad_Values(t *testing.T) {
	t.Parallel()

	var cfg testConfig
	err := config.Load(&cfg, config.WithEnvironment(map[string]string{
		"NAME":    "sync",
		"TIMEOUT": "3s",
		"HOSTS":   "app.example.com,localhost:3000",
	}))
	require.NoError(t, err)
	assert.Equal(t, "sync", cfg.Name)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	assert.Equal(t, []string{"app.example.com", "localhost:3000"}, cfg.Hosts)
}

func TestLoad_Prefix(t *testing.T) {
	t.Parallel()

	var cfg testConfig
	err := config.Load(&cfg, config.WithPrefix("APP_"), config.WithEnvironment(map[string]string{
		"APP_NAME": "prefixed",
		"NAME":     "ignored",
	}))
	require.NoError(t, err)
	assert.Equal(t, "prefixed", cfg.Name)
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	t.Run("nil pointer", func(t *testing.T) {
		t.Parallel()
		var cfg *testConfig
		assert.ErrorIs(t, config.Load(cfg), config.ErrNilPointer)
	})

	t.Run("missing required", func(t *testing.T) {
		t.Parallel()
		var cfg requiredConfig
		err := config.Load(&cfg, config.WithEnvironment(map[string]string{}))
		assert.ErrorIs(t, err, config.ErrParsingConfig)
	})

	t.Run("bad duration", func(t *testing.T) {
		t.Parallel()
		var cfg testConfig
		err := config.Load(&cfg, config.WithEnvironment(map[string]string{"TIMEOUT": "soon"}))
		assert.ErrorIs(t, err, config.ErrParsingConfig)
	})

	t.Run("validation", func(t *testing.T) {
		t.Parallel()
		var cfg validatedConfig
		err := config.Load(&cfg, config.WithEnvironment(map[string]string{"MIN": "5", "MAX": "2"}))
		assert.ErrorIs(t, err, config.ErrInvalidConfig)
	})

	t.Run("must load panics", func(t *testing.T) {
		t.Parallel()
		var cfg requiredConfig
		assert.Panics(t, func() { config.MustLoad(&cfg, config.WithEnvironment(map[string]string{})) })
	})
}
