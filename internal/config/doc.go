// Package config provides centralized configuration management for the
// ARFlow ingestion core.
//
// It handles YAML loading via viper, environment variable overrides, hot
// reload via fsnotify, and validation, and provides type-safe access to all
// service configuration settings.
//
// Usage pattern:
//   - Create a ConfigManager with CreateConfigManager()
//   - Load configuration with LoadConfig(path)
//   - Access configuration with GetConfig()
//   - Register for updates with AddUpdateCallback(callback)
package config
