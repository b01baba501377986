package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewUpdaterConfigFromEnv(t *testing.T) {
	t.Setenv("ISOUPDATER_TARGET", "/media/usb")
	t.Setenv("ISOUPDATER_RETRIES", "2")
	t.Setenv("ISOUPDATER_HTTP_TIMEOUT", "30s")

	cfg, err := NewUpdaterConfigFromEnv()
	require.NoError(t, err)
	require.Equal(t, "/media/usb", cfg.TargetPath)
	require.Equal(t, 2, cfg.Retries)
	require.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	require.Equal(t, DefaultConfigFilename, cfg.ConfigFilename)
	require.Equal(t, filepath.Join("/media/usb", DefaultConfigFilename), cfg.ConfigPath())
	require.Equal(t, "127.0.0.1:8080", cfg.GetServerAddr())
	require.Equal(t, "/sys", cfg.SysfsRoot)
	require.False(t, cfg.MirrorEnabled())
	require.Equal(t, "", cfg.LogPath())

	cfg.LogFile = DefaultLogFilename
	require.Equal(t, filepath.Join("/media/usb", DefaultLogFilename), cfg.LogPath())
	cfg.LogFile = "/var/log/isoupdater.log"
	require.Equal(t, "/var/log/isoupdater.log", cfg.LogPath())
}

func TestCreateS3Client(t *testing.T) {
	cfg := &UpdaterConfig{MirrorBucket: "isos"}
	_, err := cfg.CreateS3Client()
	require.Error(t, err)

	cfg.MirrorEndpoint = "http://127.0.0.1:9000"
	client, err := cfg.CreateS3Client()
	require.NoError(t, err)
	require.NotNil(t, client)
	require.Equal(t, "isos", *cfg.GetBucket())
}

func TestCreateGitHubClient(t *testing.T) {
	cfg := &UpdaterConfig{HTTPRetries: 1, HTTPTimeout: time.Second}
	require.NotNil(t, cfg.CreateGitHubClient())
	cfg.GitHubToken = "token"
	require.NotNil(t, cfg.CreateGitHubClient())
}
