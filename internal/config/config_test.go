package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "https://www.netflix.com", cfg.Target.BaseURL)
	require.Equal(t, "US", cfg.Target.Country)
	require.Equal(t, 5.0, cfg.Session.RPS)
	require.Equal(t, 4, cfg.Retry.MaxAttempts)
	require.Equal(t, 32, cfg.Runner.Concurrency)
	require.Equal(t, 7*24*time.Hour, cfg.FreshnessWindow())
	require.Equal(t, 250*time.Millisecond, cfg.RetryBase())
	require.Equal(t, 5*time.Second, cfg.RetryMax())
	require.Equal(t, "node", cfg.Evaluator.Provider)
	require.Equal(t, "local", cfg.Blob.Provider)
	require.Equal(t, "none", cfg.Publisher.Provider)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
target:
  base_url: https://streaming.example.com
  country: DE
session:
  rps: 2.5
  max_in_flight: 3
runner:
  concurrency: 8
  freshness_days: 3
blob:
  provider: memory
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "https://streaming.example.com", cfg.Target.BaseURL)
	require.Equal(t, "DE", cfg.Target.Country)
	require.Equal(t, 2.5, cfg.Session.RPS)
	require.Equal(t, 3, cfg.Session.MaxInFlight)
	require.Equal(t, 8, cfg.Runner.Concurrency)
	require.Equal(t, 3*24*time.Hour, cfg.FreshnessWindow())
	require.Equal(t, "memory", cfg.Blob.Provider)
}

func TestLoadRejectsUnknownProviders(t *testing.T) {
	path := writeConfig(t, `
blob:
  provider: ftp
`)
	_, err := Load(path)
	require.Error(t, err)

	path = writeConfig(t, `
publisher:
  provider: kafka
`)
	_, err = Load(path)
	require.Error(t, err)
}

func TestValidateRequirements(t *testing.T) {
	base := func() Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	cfg := base()
	cfg.Session.RPS = 0
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Runner.FreshnessDays = 0
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Blob.Provider = "gcs"
	cfg.Blob.GCSBucket = ""
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Publisher.Provider = "pubsub"
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Publisher.Provider = "pubsub"
	cfg.Publisher.ProjectID = "proj"
	cfg.Publisher.TopicID = "topic"
	require.NoError(t, cfg.Validate())
}
