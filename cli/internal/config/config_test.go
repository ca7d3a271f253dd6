package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, DefaultProfile, cfg.CurrentProfile)
	p, err := cfg.GetProfile("")
	require.NoError(t, err)
	assert.Equal(t, DefaultWebhookURL, p.WebhookURL)
	assert.Empty(t, p.DatabaseURL)
}

func TestLoad_NoConfigFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultProfile, cfg.CurrentProfile)
}

func TestLoad_WithConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`current_profile: staging
profiles:
  staging:
    webhook_url: https://webhook.staging.example.com
    database_url: postgres://hw:hw@db:5432/haulwatch
`), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.CurrentProfile)
	p, err := cfg.GetProfile("")
	require.NoError(t, err)
	assert.Equal(t, "https://webhook.staging.example.com", p.WebhookURL)
	assert.Equal(t, "postgres://hw:hw@db:5432/haulwatch", p.DatabaseURL)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("profiles: [nope"), 0600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveProfile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.SaveProfile("prod", &Profile{WebhookURL: "https://hooks.example.com"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "prod", reloaded.CurrentProfile)
	p, err := reloaded.GetProfile("prod")
	require.NoError(t, err)
	assert.Equal(t, "https://hooks.example.com", p.WebhookURL)
}

func TestRemoveProfile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	require.NoError(t, cfg.SaveProfile("tmp", &Profile{WebhookURL: "http://x"}))

	require.NoError(t, cfg.RemoveProfile("tmp"))
	assert.Empty(t, cfg.CurrentProfile)

	_, err = cfg.GetProfile("tmp")
	assert.Error(t, err)
	assert.Error(t, cfg.RemoveProfile("tmp"))
}
