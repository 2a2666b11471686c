package cmd

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hookstorm/internal/runner"
)

func newViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	require.NoError(t, bindFlags(v, rootCmd.Flags(), rootCmd.PersistentFlags()))
	return v
}

func TestConfigFromViper_Defaults(t *testing.T) {
	cfg, err := configFromViper(newViper(t))
	require.NoError(t, err)

	assert.Equal(t, runner.DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, runner.DefaultConcurrentUsers, cfg.ConcurrentUsers)
	assert.Equal(t, 5*time.Minute, cfg.Duration)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, runner.DefaultOutputDir, cfg.OutputDir)
	assert.True(t, cfg.InsecureTLS)
}

func TestConfigFromViper_Overrides(t *testing.T) {
	v := newViper(t)
	v.Set("api-url", "https://api.example.com/")
	v.Set("api-key", "k")
	v.Set("concurrent-users", 9)
	v.Set("duration", 2)
	v.Set("timeout", 5)
	v.Set("insecure", false)

	cfg, err := configFromViper(v)
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com/", cfg.BaseURL)
	assert.Equal(t, "k", cfg.APIKey)
	assert.Equal(t, 9, cfg.ConcurrentUsers)
	assert.Equal(t, 2*time.Minute, cfg.Duration)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.False(t, cfg.InsecureTLS)
	assert.Equal(t, 3, cfg.BatchSize(3))
}

func TestConfigFromViper_Env(t *testing.T) {
	t.Setenv("HOOKSTORM_CONCURRENT_USERS", "12")

	v := newViper(t)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(envReplacer())
	v.AutomaticEnv()

	cfg, err := configFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.ConcurrentUsers)
}

func TestConfigFromViper_Invalid(t *testing.T) {
	v := newViper(t)
	v.Set("concurrent-users", 2)

	_, err := configFromViper(v)
	assert.Error(t, err)
}

func TestRunLoadTest_InvalidConfigFails(t *testing.T) {
	v := newViper(t)
	v.Set("duration", 0)
	v.Set("headless", true)

	err := runLoadTest(context.Background(), v, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestRunLoadTest_BadLogLevel(t *testing.T) {
	v := newViper(t)
	v.Set("headless", true)
	v.Set("log-level", "loud")

	err := runLoadTest(context.Background(), v, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestBindDummyFlags(t *testing.T) {
	v := viper.New()
	require.NoError(t, bindDummyFlags(v, dummyCmd.Flags()))
	assert.Equal(t, 8080, v.GetInt("dummy.port"))
	assert.Empty(t, v.GetString("dummy.api-key"))

	partial := pflag.NewFlagSet("dummy", pflag.ContinueOnError)
	partial.Int("port", 8080, "")

	err := bindDummyFlags(viper.New(), partial)
	assert.ErrorContains(t, err, "api-key")
}

func TestDummyFlags(t *testing.T) {
	for _, name := range dummyFlags {
		assert.NotNil(t, dummyCmd.Flags().Lookup(name), name)
	}
	assert.Equal(t, "8080", dummyCmd.Flags().Lookup("port").DefValue)
}
