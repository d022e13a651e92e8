package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "vizserver.cfg.json"

// EnvPrefix prefixes environment overrides, e.g. VIZ_SERVER_PORT.
const EnvPrefix = "VIZ"

// ServerConfig holds the viewer listener settings.
type ServerConfig struct {
	Host string `json:"host" mapstructure:"host"`
	Port int    `json:"port" mapstructure:"port"`
	Path string `json:"path" mapstructure:"path"`
}

// HubConfig holds per-connection settings.
type HubConfig struct {
	MaxPending  int           `json:"maxPending" mapstructure:"maxPending"`
	WriteWait   time.Duration `json:"writeWait" mapstructure:"writeWait"`
	IdleTimeout time.Duration `json:"idleTimeout" mapstructure:"idleTimeout"`
	ReadLimit   int64         `json:"readLimit" mapstructure:"readLimit"`
}

// VisualizerConfig holds facade settings.
type VisualizerConfig struct {
	ReplayOnInit  bool          `json:"replayOnInit" mapstructure:"replayOnInit"`
	ReplayTimeout time.Duration `json:"replayTimeout" mapstructure:"replayTimeout"`
}

// MemoryConfig holds in-memory journal settings
type MemoryConfig struct {
	MaxEntries     int    `json:"maxEntries" mapstructure:"maxEntries"`
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds SQLite journal settings
type SQLiteConfig struct {
	Path         string        `json:"path" mapstructure:"path"`
	DumpPath     string        `json:"dumpPath" mapstructure:"dumpPath"`
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
}

// RelayConfig holds upstream relay settings
type RelayConfig struct {
	URL           string `json:"url" mapstructure:"url"`
	QueueSize     int    `json:"queueSize" mapstructure:"queueSize"`
	MaxReconnects int    `json:"maxReconnects" mapstructure:"maxReconnects"`
}

// StorageConfig selects and configures the scene journal
type StorageConfig struct {
	Type   string       `json:"type" mapstructure:"type"`
	Memory MemoryConfig `json:"memory" mapstructure:"memory"`
	SQLite SQLiteConfig `json:"sqlite" mapstructure:"sqlite"`
	Relay  RelayConfig  `json:"relay" mapstructure:"relay"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// InfluxConfig holds the stats reporter settings
type InfluxConfig struct {
	Enabled   bool          `json:"enabled" mapstructure:"enabled"`
	Host      string        `json:"host" mapstructure:"host"`
	Port      string        `json:"port" mapstructure:"port"`
	Protocol  string        `json:"protocol" mapstructure:"protocol"`
	Token     string        `json:"token" mapstructure:"token"`
	Org       string        `json:"org" mapstructure:"org"`
	Bucket    string        `json:"bucket" mapstructure:"bucket"`
	Interval  time.Duration `json:"interval" mapstructure:"interval"`
	BackupDir string        `json:"backupDir" mapstructure:"backupDir"`
}

// URL returns the InfluxDB server address.
func (c InfluxConfig) URL() string {
	return fmt.Sprintf("%s://%s:%s", c.Protocol, c.Host, c.Port)
}

// setDefaults registers every default value.
func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./vizlogs")

	viper.SetDefault("server.host", "")
	viper.SetDefault("server.port", 8001)
	viper.SetDefault("server.path", "/")

	viper.SetDefault("hub.maxPending", 65536)
	viper.SetDefault("hub.writeWait", "10s")
	viper.SetDefault("hub.idleTimeout", "0s")
	viper.SetDefault("hub.readLimit", 1<<20)

	viper.SetDefault("visualizer.replayOnInit", false)
	viper.SetDefault("visualizer.replayTimeout", "30s")

	viper.SetDefault("storage.type", "none")
	viper.SetDefault("storage.memory.maxEntries", 0)
	viper.SetDefault("storage.memory.outputDir", "")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.path", "")
	viper.SetDefault("storage.sqlite.dumpPath", "")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.relay.url", "")
	viper.SetDefault("storage.relay.queueSize", 4096)
	viper.SetDefault("storage.relay.maxReconnects", 10)

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "vizserver")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "vizserver")
	viper.SetDefault("influx.bucket", "hub")
	viper.SetDefault("influx.interval", "10s")
	viper.SetDefault("influx.backupDir", "")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "vizserver")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file. Environment
// variables such as VIZ_SERVER_PORT override both.
func Load(configDir string) error {
	setDefaults()

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// flagKeys maps command-line flags to config keys.
var flagKeys = map[string]string{
	"host":      "server.host",
	"port":      "server.port",
	"path":      "server.path",
	"log-level": "logLevel",
	"storage":   "storage.type",
}

// RegisterFlags adds the overridable settings to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("host", "", "interface to listen on")
	fs.Int("port", 8001, "port to listen on")
	fs.String("path", "/", "WebSocket endpoint path")
	fs.String("log-level", "info", "debug, info, warn or error")
	fs.String("storage", "none", "scene journal: none, memory, sqlite, postgres or relay")
}

// BindFlags makes flags set on the command line override the config file.
// Flags left at their defaults do not.
func BindFlags(fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := viper.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding flag %s: %w", name, err)
		}
	}
	return nil
}

// GetServerConfig returns the listener settings.
func GetServerConfig() ServerConfig {
	return ServerConfig{
		Host: viper.GetString("server.host"),
		Port: viper.GetInt("server.port"),
		Path: viper.GetString("server.path"),
	}
}

// GetHubConfig returns the per-connection settings.
func GetHubConfig() HubConfig {
	return HubConfig{
		MaxPending:  viper.GetInt("hub.maxPending"),
		WriteWait:   viper.GetDuration("hub.writeWait"),
		IdleTimeout: viper.GetDuration("hub.idleTimeout"),
		ReadLimit:   viper.GetInt64("hub.readLimit"),
	}
}

// GetVisualizerConfig returns the facade settings.
func GetVisualizerConfig() VisualizerConfig {
	return VisualizerConfig{
		ReplayOnInit:  viper.GetBool("visualizer.replayOnInit"),
		ReplayTimeout: viper.GetDuration("visualizer.replayTimeout"),
	}
}

// GetStorageConfig returns the journal settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			MaxEntries:     viper.GetInt("storage.memory.maxEntries"),
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			Path:         viper.GetString("storage.sqlite.path"),
			DumpPath:     viper.GetString("storage.sqlite.dumpPath"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
		},
		Relay: RelayConfig{
			URL:           viper.GetString("storage.relay.url"),
			QueueSize:     viper.GetInt("storage.relay.queueSize"),
			MaxReconnects: viper.GetInt("storage.relay.maxReconnects"),
		},
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetInfluxConfig returns the stats reporter settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:   viper.GetBool("influx.enabled"),
		Host:      viper.GetString("influx.host"),
		Port:      viper.GetString("influx.port"),
		Protocol:  viper.GetString("influx.protocol"),
		Token:     viper.GetString("influx.token"),
		Org:       viper.GetString("influx.org"),
		Bucket:    viper.GetString("influx.bucket"),
		Interval:  viper.GetDuration("influx.interval"),
		BackupDir: viper.GetString("influx.backupDir"),
	}
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}
