package config

import (
	"fmt"
	"strings"
)

// ValidateConfig checks the final, merged configuration for values that
// would leave the service unable to start.
func ValidateConfig(c *Config) error {
	if strings.TrimSpace(c.Transport.Host) == "" {
		return fmt.Errorf("transport host cannot be empty")
	}
	if c.Transport.Port <= 0 || c.Transport.Port > 65535 {
		return fmt.Errorf("transport port must be between 1 and 65535, got %d", c.Transport.Port)
	}
	if c.Transport.WorkerPoolSize <= 0 {
		return fmt.Errorf("transport worker pool size must be positive, got %d", c.Transport.WorkerPoolSize)
	}
	if c.Transport.MaxMessageSize <= 0 {
		return fmt.Errorf("transport max message size must be positive, got %d", c.Transport.MaxMessageSize)
	}

	// Exactly one of spawn_viewer or save_dir must be set (§4.5 P5).
	if c.OperatingMode.SpawnViewer == (c.OperatingMode.SaveDir != "") {
		return fmt.Errorf("operating_mode: exactly one of spawn_viewer or save_dir must be set (spawn_viewer=%v save_dir=%q)",
			c.OperatingMode.SpawnViewer, c.OperatingMode.SaveDir)
	}
	if strings.TrimSpace(c.OperatingMode.ApplicationID) == "" {
		return fmt.Errorf("operating_mode application_id cannot be empty")
	}

	if c.Storage.BlockFreeBytes < 0 || c.Storage.WarnFreeBytes < 0 {
		return fmt.Errorf("storage thresholds cannot be negative")
	}
	if c.Storage.BlockFreeBytes > c.Storage.WarnFreeBytes {
		return fmt.Errorf("storage block_free_bytes (%d) must be <= warn_free_bytes (%d)", c.Storage.BlockFreeBytes, c.Storage.WarnFreeBytes)
	}

	validLevels := []string{"debug", "info", "warn", "warning", "error", "fatal", "panic"}
	found := false
	for _, lvl := range validLevels {
		if strings.EqualFold(c.Logging.Level, lvl) {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("logging level must be one of %v, got %q", validLevels, c.Logging.Level)
	}
	if c.Logging.FileEnabled && strings.TrimSpace(c.Logging.FilePath) == "" {
		return fmt.Errorf("logging file path cannot be empty when file logging is enabled")
	}

	if c.Health.Enabled && (c.Health.Port <= 0 || c.Health.Port > 65535) {
		return fmt.Errorf("health port must be between 1 and 65535, got %d", c.Health.Port)
	}

	return nil
}
