package config

import (
	"os"
	"path/filepath"
)

type StorageConfig interface {
	GetDataFolder() string
	GetRuntimeFolder() string
	GetStoragePassphrase() string
	GetRedisURL() string
	GetRedisPassword() string
}

type Storage struct{}

var _ StorageConfig = Storage{}

// GetDataFolder is where the durable scope lives. It survives restarts.
func (Storage) GetDataFolder() string {
	if dir := os.Getenv("DATA_FOLDER"); dir != "" {
		return dir
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "wish-console")
	}
	return "./data"
}

// GetRuntimeFolder is where the ephemeral scope lives. XDG_RUNTIME_DIR is
// wiped at logout/reboot, the temp dir at reboot.
func (Storage) GetRuntimeFolder() string {
	if dir := os.Getenv("RUNTIME_FOLDER"); dir != "" {
		return dir
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "wish-console")
	}
	return filepath.Join(os.TempDir(), "wish-console")
}

// GetStoragePassphrase seals the on-disk scopes when set
func (Storage) GetStoragePassphrase() string {
	return GetEnv("STORAGE_PASSPHRASE", "")
}

// GetRedisURL switches the durable scope to redis when set (e.g. "localhost:6379")
func (Storage) GetRedisURL() string {
	return GetEnv("REDIS_URL", "")
}

func (Storage) GetRedisPassword() string {
	return GetEnv("REDIS_PASSWORD", "")
}
