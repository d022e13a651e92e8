package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0644))
	return dir
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"logLevel": "debug",
		"server": { "port": 9001, "path": "/ws" },
		"db": { "host": "10.0.0.1", "port": "5433" }
	}`)

	require.NoError(t, Load(dir))

	assert.Equal(t, "debug", viper.GetString("logLevel"))
	assert.Equal(t, 9001, viper.GetInt("server.port"))
	assert.Equal(t, "/ws", viper.GetString("server.path"))
	assert.Equal(t, "10.0.0.1", viper.GetString("db.host"))
	assert.Equal(t, "5433", viper.GetString("db.port"))
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{}`)))

	assert.Equal(t, "info", viper.GetString("logLevel"))
	assert.Equal(t, "./vizlogs", viper.GetString("logsDir"))
	assert.Equal(t, "", viper.GetString("server.host"))
	assert.Equal(t, 8001, viper.GetInt("server.port"))
	assert.Equal(t, "/", viper.GetString("server.path"))
	assert.Equal(t, 65536, viper.GetInt("hub.maxPending"))
	assert.Equal(t, "10s", viper.GetString("hub.writeWait"))
	assert.Equal(t, int64(1<<20), viper.GetInt64("hub.readLimit"))
	assert.Equal(t, false, viper.GetBool("visualizer.replayOnInit"))
	assert.Equal(t, "none", viper.GetString("storage.type"))
	assert.Equal(t, true, viper.GetBool("storage.memory.compressOutput"))
	assert.Equal(t, "3m", viper.GetString("storage.sqlite.dumpInterval"))
	assert.Equal(t, 4096, viper.GetInt("storage.relay.queueSize"))
	assert.Equal(t, "localhost", viper.GetString("db.host"))
	assert.Equal(t, "5432", viper.GetString("db.port"))
	assert.Equal(t, "vizserver", viper.GetString("db.database"))
	assert.Equal(t, false, viper.GetBool("influx.enabled"))
	assert.Equal(t, "8086", viper.GetString("influx.port"))
	assert.Equal(t, false, viper.GetBool("otel.enabled"))
	assert.Equal(t, "vizserver", viper.GetString("otel.serviceName"))
	assert.Equal(t, "5s", viper.GetString("otel.batchTimeout"))
	assert.Equal(t, "", viper.GetString("otel.endpoint"))
	assert.Equal(t, true, viper.GetBool("otel.insecure"))
}

func TestLoad_MissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load("/nonexistent/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")

	var notFound viper.ConfigFileNotFoundError
	assert.True(t, errors.As(err, &notFound))
	// defaults are still in place
	assert.Equal(t, 8001, GetServerConfig().Port)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Cleanup(viper.Reset)
	t.Setenv("VIZ_SERVER_PORT", "9100")
	t.Setenv("VIZ_STORAGE_TYPE", "memory")

	require.NoError(t, Load(writeConfig(t, `{"server": {"port": 9001}}`)))

	assert.Equal(t, 9100, GetServerConfig().Port)
	assert.Equal(t, "memory", GetStorageConfig().Type)
}

func TestGetString(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testKey", "testValue")
	assert.Equal(t, "testValue", GetString("testKey"))
}

func TestGetInt(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testInt", 42)
	assert.Equal(t, 42, GetInt("testInt"))
}

func TestGetBool(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testBool", true)
	assert.True(t, GetBool("testBool"))
}

func TestGetHubConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"hub": { "maxPending": 8, "writeWait": "2s", "idleTimeout": "1m" }
	}`)))

	cfg := GetHubConfig()
	assert.Equal(t, 8, cfg.MaxPending)
	assert.Equal(t, 2*time.Second, cfg.WriteWait)
	assert.Equal(t, time.Minute, cfg.IdleTimeout)
	assert.Equal(t, int64(1<<20), cfg.ReadLimit)
}

func TestGetStorageConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"storage": {
			"type": "sqlite",
			"memory": { "maxEntries": 100, "outputDir": "/tmp/scenes", "compressOutput": false },
			"sqlite": { "path": "/tmp/journal.db", "dumpInterval": "10m" },
			"relay": { "url": "ws://upstream:8001/" }
		}
	}`)))

	cfg := GetStorageConfig()
	assert.Equal(t, "sqlite", cfg.Type)
	assert.Equal(t, 100, cfg.Memory.MaxEntries)
	assert.Equal(t, "/tmp/scenes", cfg.Memory.OutputDir)
	assert.False(t, cfg.Memory.CompressOutput)
	assert.Equal(t, "/tmp/journal.db", cfg.SQLite.Path)
	assert.Equal(t, 10*time.Minute, cfg.SQLite.DumpInterval)
	assert.Equal(t, "ws://upstream:8001/", cfg.Relay.URL)
	assert.Equal(t, 4096, cfg.Relay.QueueSize)
	assert.Equal(t, 10, cfg.Relay.MaxReconnects)
}

func TestGetOTelConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"otel": { "enabled": true, "serviceName": "viewer", "batchTimeout": "30s", "endpoint": "collector:4318", "insecure": false }
	}`)))

	cfg := GetOTelConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "viewer", cfg.ServiceName)
	assert.Equal(t, 30*time.Second, cfg.BatchTimeout)
	assert.Equal(t, "collector:4318", cfg.Endpoint)
	assert.False(t, cfg.Insecure)
}

func TestGetOTelConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetOTelConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "vizserver", cfg.ServiceName)
	assert.Equal(t, 5*time.Second, cfg.BatchTimeout)
	assert.True(t, cfg.Insecure)
}

func TestGetInfluxConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"influx": { "enabled": true, "host": "influx", "protocol": "https", "interval": "1s" }
	}`)))

	cfg := GetInfluxConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "https://influx:8086", cfg.URL())
	assert.Equal(t, time.Second, cfg.Interval)
	assert.Equal(t, "hub", cfg.Bucket)
}

func TestGetVisualizerConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{"visualizer": {"replayOnInit": true}}`)))

	cfg := GetVisualizerConfig()
	assert.True(t, cfg.ReplayOnInit)
	assert.Equal(t, 30*time.Second, cfg.ReplayTimeout)
}

func TestBindFlags_OverridesFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--port", "9200", "--log-level", "debug"}))

	require.NoError(t, Load(writeConfig(t, `{"server": {"port": 9001, "host": "0.0.0.0"}, "logLevel": "warn"}`)))
	require.NoError(t, BindFlags(fs))

	server := GetServerConfig()
	assert.Equal(t, 9200, server.Port)
	assert.Equal(t, "0.0.0.0", server.Host, "unset flags leave the file value")
	assert.Equal(t, "debug", GetString("logLevel"))
	assert.Equal(t, "none", GetStorageConfig().Type)
}
