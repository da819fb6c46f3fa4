package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/cake-lab/arflow-go/internal/logging"
)

// ConfigManager manages configuration loading, validation, and hot reload.
type ConfigManager struct {
	config          *Config
	configPath      string
	updateCallbacks []func(*Config)
	watcher         *fsnotify.Watcher
	watcherActive   int32 // atomic: 0 = inactive, 1 = active
	watcherLock     sync.RWMutex
	lock            sync.RWMutex
	defaultConfig   *Config
	logger          *logging.Logger
	stopChan        chan struct{}
	wg              sync.WaitGroup
}

// CreateConfigManager creates a new configuration manager instance.
func CreateConfigManager() *ConfigManager {
	return &ConfigManager{
		updateCallbacks: make([]func(*Config), 0),
		defaultConfig:   getDefaultConfig(),
		logger:          logging.GetLogger("config-manager"),
		stopChan:        make(chan struct{}, 5),
	}
}

func getDefaultConfig() *Config {
	return &Config{
		Transport: TransportConfig{
			Host:              "0.0.0.0",
			Port:              8500,
			Path:              "/ws",
			MaxConnections:    1000,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      5 * time.Second,
			PingInterval:      30 * time.Second,
			PongWait:          60 * time.Second,
			MaxMessageSize:    4 * 1024 * 1024,
			WorkerPoolSize:    10,
			WorkerTaskTimeout: 30 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		OperatingMode: OperatingModeConfig{
			ApplicationID: "arflow",
			SpawnViewer:   true,
		},
		Storage: StorageConfig{
			WarnFreeBytes:  1 << 30,
			BlockFreeBytes: 100 << 20,
		},
		Logging: LoggingConfig{
			Level:          "info",
			Format:         "text",
			ConsoleEnabled: true,
		},
		Health: HealthConfig{
			Enabled:             true,
			Host:                "0.0.0.0",
			Port:                8501,
			MetricsEnabled:      true,
			StatsLogInterval:    time.Minute,
			StaleHandleInterval: 5 * time.Minute,
			StaleHandleAge:      time.Hour,
		},
		ServerDefaults: ServerDefaults{ShutdownTimeout: 30 * time.Second},
	}
}

// LoadConfig loads configuration from a YAML file with environment variable
// overrides and validation.
func (cm *ConfigManager) LoadConfig(configPath string) error {
	cm.lock.Lock()
	defer cm.lock.Unlock()

	cm.logger.WithFields(logging.Fields{"config_path": configPath}).Info("loading configuration")

	if err := cm.validateConfigFile(configPath); err != nil {
		return fmt.Errorf("invalid configuration file: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	cm.setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("ARFLOW")

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("cannot read configuration file %q: %w", configPath, err)
	}

	config := *cm.defaultConfig
	if err := v.Unmarshal(&config); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := ValidateConfig(&config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	oldConfig := cm.config
	cm.config = &config
	cm.configPath = configPath

	if os.Getenv("ARFLOW_ENABLE_HOT_RELOAD") == "true" {
		if err := cm.startFileWatching(); err != nil {
			cm.logger.WithError(err).Warn("failed to start file watching, hot reload disabled")
		}
	}

	cm.notifyConfigUpdated(oldConfig, &config)
	cm.logger.Info("configuration loaded")
	return nil
}

func (cm *ConfigManager) validateConfigFile(configPath string) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return fmt.Errorf("configuration file does not exist: %q", configPath)
	}
	content, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("cannot read configuration file %q: %w", configPath, err)
	}
	if len(content) == 0 {
		return fmt.Errorf("configuration file is empty: %q", configPath)
	}
	return nil
}

func (cm *ConfigManager) setDefaults(v *viper.Viper) {
	d := cm.defaultConfig
	v.SetDefault("transport.host", d.Transport.Host)
	v.SetDefault("transport.port", d.Transport.Port)
	v.SetDefault("transport.path", d.Transport.Path)
	v.SetDefault("transport.max_connections", d.Transport.MaxConnections)
	v.SetDefault("transport.read_timeout", d.Transport.ReadTimeout)
	v.SetDefault("transport.write_timeout", d.Transport.WriteTimeout)
	v.SetDefault("transport.ping_interval", d.Transport.PingInterval)
	v.SetDefault("transport.pong_wait", d.Transport.PongWait)
	v.SetDefault("transport.max_message_size", d.Transport.MaxMessageSize)
	v.SetDefault("transport.worker_pool_size", d.Transport.WorkerPoolSize)
	v.SetDefault("transport.worker_task_timeout", d.Transport.WorkerTaskTimeout)
	v.SetDefault("transport.shutdown_timeout", d.Transport.ShutdownTimeout)

	v.SetDefault("operating_mode.application_id", d.OperatingMode.ApplicationID)
	v.SetDefault("operating_mode.spawn_viewer", d.OperatingMode.SpawnViewer)
	v.SetDefault("operating_mode.save_dir", d.OperatingMode.SaveDir)

	v.SetDefault("storage.warn_free_bytes", d.Storage.WarnFreeBytes)
	v.SetDefault("storage.block_free_bytes", d.Storage.BlockFreeBytes)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.console_enabled", d.Logging.ConsoleEnabled)

	v.SetDefault("health.enabled", d.Health.Enabled)
	v.SetDefault("health.host", d.Health.Host)
	v.SetDefault("health.port", d.Health.Port)
	v.SetDefault("health.metrics_enabled", d.Health.MetricsEnabled)
	v.SetDefault("health.stats_log_interval", d.Health.StatsLogInterval)
	v.SetDefault("health.stale_handle_interval", d.Health.StaleHandleInterval)
	v.SetDefault("health.stale_handle_age", d.Health.StaleHandleAge)

	v.SetDefault("server_defaults.shutdown_timeout", d.ServerDefaults.ShutdownTimeout)
}

// startFileWatching starts watching the configuration file for changes.
func (cm *ConfigManager) startFileWatching() error {
	cm.stopFileWatching()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	cm.watcherLock.Lock()
	cm.watcher = watcher
	cm.watcherLock.Unlock()

	configDir := filepath.Dir(cm.configPath)
	if err := cm.watcher.Add(configDir); err != nil {
		cm.watcher.Close()
		cm.watcherLock.Lock()
		cm.watcher = nil
		cm.watcherLock.Unlock()
		return fmt.Errorf("failed to watch config directory %s: %w", configDir, err)
	}

	atomic.StoreInt32(&cm.watcherActive, 1)
	cm.wg.Add(1)
	go cm.watchFileChanges()

	cm.logger.WithFields(logging.Fields{"watch_dir": configDir}).Info("file watching started for hot reload")
	return nil
}

func (cm *ConfigManager) stopFileWatching() {
	atomic.StoreInt32(&cm.watcherActive, 0)

	cm.watcherLock.Lock()
	defer cm.watcherLock.Unlock()
	if cm.watcher != nil {
		if err := cm.watcher.Close(); err != nil {
			cm.logger.WithError(err).Warn("error closing file watcher")
		}
		cm.watcher = nil
	}
}

func (cm *ConfigManager) watchFileChanges() {
	defer cm.wg.Done()

	var reloadTimer *time.Timer
	for {
		if atomic.LoadInt32(&cm.watcherActive) == 0 {
			return
		}
		cm.watcherLock.RLock()
		if cm.watcher == nil {
			cm.watcherLock.RUnlock()
			return
		}
		events := cm.watcher.Events
		errs := cm.watcher.Errors
		cm.watcherLock.RUnlock()

		select {
		case <-cm.stopChan:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if event.Name != cm.configPath {
				continue
			}
			switch event.Op {
			case fsnotify.Write, fsnotify.Create:
				if reloadTimer != nil {
					reloadTimer.Stop()
				}
				reloadTimer = time.AfterFunc(100*time.Millisecond, cm.reloadConfiguration)
			case fsnotify.Remove:
				cm.logger.Warn("configuration file removed, hot reload disabled")
				cm.stopFileWatching()
				return
			}
		case err, ok := <-errs:
			if !ok {
				return
			}
			cm.logger.WithError(err).Error("file watcher error")
		case <-time.After(time.Second):
			continue
		}
	}
}

func (cm *ConfigManager) reloadConfiguration() {
	cm.logger.Info("reloading configuration due to file change")
	if _, err := os.Stat(cm.configPath); os.IsNotExist(err) {
		cm.logger.Warn("configuration file no longer exists, stopping hot reload")
		cm.stopFileWatching()
		return
	}
	if err := cm.LoadConfig(cm.configPath); err != nil {
		cm.logger.WithError(err).Error("failed to reload configuration")
		return
	}
	cm.logger.Info("configuration reloaded")
}

// Stop stops the configuration manager, satisfying internal/common.Stoppable.
func (cm *ConfigManager) Stop(ctx context.Context) error {
	select {
	case <-cm.stopChan:
	default:
		close(cm.stopChan)
	}
	cm.stopFileWatching()

	done := make(chan struct{})
	go func() {
		cm.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetConfig returns the current configuration, or the default if none has
// been loaded yet.
func (cm *ConfigManager) GetConfig() *Config {
	cm.lock.RLock()
	defer cm.lock.RUnlock()
	if cm.config == nil {
		return cm.defaultConfig
	}
	return cm.config
}

// AddUpdateCallback registers a callback invoked with the new configuration
// after every successful load, the first LoadConfig included.
func (cm *ConfigManager) AddUpdateCallback(cb func(*Config)) {
	cm.lock.Lock()
	defer cm.lock.Unlock()
	cm.updateCallbacks = append(cm.updateCallbacks, cb)
}

func (cm *ConfigManager) notifyConfigUpdated(old, new *Config) {
	for _, cb := range cm.updateCallbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					cm.logger.WithFields(logging.Fields{"panic": r}).Error("config update callback panicked")
				}
			}()
			cb(new)
		}()
	}
}
