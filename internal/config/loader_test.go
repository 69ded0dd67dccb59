package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMasterConfig(t *testing.T) {
	path := writeFile(t, "master.yaml", `
rpcAddress: 127.0.0.1:28010
dataDir: /var/lib/stratadb-master
clusterName: prod
heartbeat:
  interval: 1s
  staleIntervals: 5
`)
	cfg, err := LoadMasterConfig(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:28010", cfg.RPCAddress)
	require.Equal(t, "prod", cfg.ClusterName)
	require.Equal(t, time.Second, cfg.Heartbeat.Interval)
	require.Equal(t, 5*time.Second, cfg.StaleAfter())
	// Unset fields pick up defaults.
	require.NotEmpty(t, cfg.HTTPAddress)
	require.Equal(t, 7*24*time.Hour, cfg.TSKValidity)
}

func TestLoadMasterConfigDefaults(t *testing.T) {
	cfg, err := LoadMasterConfig(writeFile(t, "master.yaml", "dataDir: /tmp/m\n"))
	require.NoError(t, err)
	require.Equal(t, 2*time.Second, cfg.Heartbeat.Interval)
	require.Equal(t, 3, cfg.Heartbeat.StaleIntervals)
	require.Equal(t, 6*time.Second, cfg.StaleAfter())
}

func TestLoadTabletServerConfig(t *testing.T) {
	path := writeFile(t, "tserver.yaml", `
masterAddress: 10.0.0.5:28010
dataDir: /var/lib/stratadb-tserver
rpcAddress: 10.0.0.6:7050
httpAddress: 10.0.0.6:8050
httpsEnabled: true
`)
	cfg, err := LoadTabletServerConfig(path)
	require.NoError(t, err)
	require.Equal(t, "10.0.0.5:28010", cfg.MasterAddress)
	require.True(t, cfg.HTTPSEnabled)
	require.Equal(t, 2*time.Second, cfg.HeartbeatInterval)
	require.Equal(t, 5*time.Second, cfg.HeartbeatTimeout)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadMasterConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
