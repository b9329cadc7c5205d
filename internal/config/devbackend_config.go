package config

import (
	"fmt"
	"time"
)

type DevBackendConfig interface {
	EnvConfig
	GetPort() string
	GetJWTSecret() string
	GetAccessTokenTTL() time.Duration
	GetRefreshTokenTTL() time.Duration
	GetRefreshTokenLength() int
	GetSeedAdminEmail() string
	GetSeedUserEmail() string
	GetSeedPassword() string
	GetRateLimit() int
}

type DevBackend struct {
	EnvVars
}

var _ DevBackendConfig = DevBackend{}

func NewDevBackend() DevBackendConfig {
	return DevBackend{}
}

func (DevBackend) GetPort() string {
	port := GetEnv("PORT", "8080")
	if port != "" && port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (DevBackend) GetJWTSecret() string {
	return GetEnv("JWT_SECRET", "dev-secret-change-me")
}

func (DevBackend) GetAccessTokenTTL() time.Duration {
	return GetEnvDuration("ACCESS_TOKEN_TTL", 15*time.Minute)
}

func (DevBackend) GetRefreshTokenTTL() time.Duration {
	return GetEnvDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour)
}

func (DevBackend) GetRefreshTokenLength() int {
	return GetEnvInt("REFRESH_TOKEN_LENGTH", 32) // 32 bytes = 256 bits
}

// Accounts created when the dev backend starts
func (DevBackend) GetSeedAdminEmail() string {
	return GetEnv("SEED_ADMIN_EMAIL", "admin@example.com")
}

func (DevBackend) GetSeedUserEmail() string {
	return GetEnv("SEED_USER_EMAIL", "user@example.com")
}

func (DevBackend) GetSeedPassword() string {
	return GetEnv("SEED_PASSWORD", "change-me-now")
}

// GetRateLimit is the number of public auth requests allowed per client IP per minute. Zero disables limiting.
func (DevBackend) GetRateLimit() int {
	return GetEnvInt("RATE_LIMIT", 30)
}
