// Package config provides configuration management for photo-mirror.
//
// This package handles:
//   - Loading and saving settings as YAML through viper
//   - Default configuration values
//   - Environment overrides (PHOTOMIRROR_*, plus VK_TOKEN and YD_TOKEN)
//   - Conversion to engine.Options
//
// # Default Settings
//
// Use DefaultSettings() to get sensible defaults:
//
//	settings := config.DefaultSettings()
//	// Mirrors into Yandex Disk
//	// 4 concurrent transfers, one retry per photo
//	// Manifests under ~/.photo-mirror/manifests
//
// # Loading from File
//
//	settings, err := config.Load("~/.photo-mirror/config.yaml")
//	if err != nil {
//	    // Uses defaults if file doesn't exist
//	}
//
// # Saving Settings
//
//	settings.Destination.Backend = config.BackendS3
//	err := settings.Save("~/.photo-mirror/config.yaml")
package config
