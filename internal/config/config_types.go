package config

import "time"

// TransportConfig represents the JSON-RPC/WebSocket front end settings (§3, §5).
type TransportConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	Path              string        `mapstructure:"path"`
	MaxConnections    int           `mapstructure:"max_connections"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	PingInterval      time.Duration `mapstructure:"ping_interval"`
	PongWait          time.Duration `mapstructure:"pong_wait"`
	MaxMessageSize    int64         `mapstructure:"max_message_size"`
	WorkerPoolSize    int           `mapstructure:"worker_pool_size"`
	WorkerTaskTimeout time.Duration `mapstructure:"worker_task_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// OperatingModeConfig selects live viewer streaming vs. archival recording
// (§4.5 P5): exactly one of SpawnViewer or SaveDir is expected to be set.
type OperatingModeConfig struct {
	ApplicationID string `mapstructure:"application_id"`
	SpawnViewer   bool   `mapstructure:"spawn_viewer"`
	SaveDir       string `mapstructure:"save_dir"`
}

// StorageConfig governs archival-mode disk usage checks (§5 disk space check).
type StorageConfig struct {
	WarnFreeBytes  int64 `mapstructure:"warn_free_bytes"`  // below this, log a warning at stream start
	BlockFreeBytes int64 `mapstructure:"block_free_bytes"` // below this, refuse to direct a new stream to disk
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level          string `mapstructure:"level"`
	Format         string `mapstructure:"format"`
	FileEnabled    bool   `mapstructure:"file_enabled"`
	FilePath       string `mapstructure:"file_path"`
	MaxFileSize    int64  `mapstructure:"max_file_size"`
	BackupCount    int    `mapstructure:"backup_count"`
	ConsoleEnabled bool   `mapstructure:"console_enabled"`
}

// HealthConfig represents the liveness/readiness/metrics HTTP endpoint (§5).
type HealthConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	Host                string        `mapstructure:"host"`
	Port                int           `mapstructure:"port"`
	MetricsEnabled      bool          `mapstructure:"metrics_enabled"`
	StatsLogInterval    time.Duration `mapstructure:"stats_log_interval"`
	StaleHandleInterval time.Duration `mapstructure:"stale_handle_interval"`
	StaleHandleAge      time.Duration `mapstructure:"stale_handle_age"`
}

// ServerDefaults holds process-wide operational defaults.
type ServerDefaults struct {
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Config represents the complete service configuration.
type Config struct {
	Transport      TransportConfig     `mapstructure:"transport"`
	OperatingMode  OperatingModeConfig `mapstructure:"operating_mode"`
	Storage        StorageConfig       `mapstructure:"storage"`
	Logging        LoggingConfig       `mapstructure:"logging"`
	Health         HealthConfig        `mapstructure:"health"`
	ServerDefaults ServerDefaults      `mapstructure:"server_defaults"`
}
