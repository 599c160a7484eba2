package config

import (
	"fmt"
	"os"
)

// StoreBackend selects where the session is persisted
type StoreBackend string

const (
	StoreBackendFile   StoreBackend = "file"
	StoreBackendMemory StoreBackend = "memory"
	StoreBackendRedis  StoreBackend = "redis"
)

type EnvVars struct {
	AppName      string       `env:"APP_NAME" envDefault:"Device Console"`
	APIBaseURL   string       `env:"API_BASE_URL" envDefault:"http://localhost:3000/api"`
	DataFolder   string       `env:"FOLDER" envDefault:"./data"`
	StoreBackend StoreBackend `env:"STORE_BACKEND" envDefault:"file"`
	RedisURL     string       `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	LogLevel     string       `env:"LOG_LEVEL" envDefault:"info"`
	Env          string       `env:"ENV" envDefault:"DEV"`
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetAppName() string {
	return e.AppName
}

func (e EnvVars) GetAPIBaseURL() string {
	return e.APIBaseURL
}

func (e EnvVars) GetDataFolder() string {
	return e.DataFolder
}

func (e EnvVars) GetStoreBackend() StoreBackend {
	return e.StoreBackend
}

func (e EnvVars) GetRedisURL() string {
	return e.RedisURL
}

func (e EnvVars) GetLogLevel() string {
	return e.LogLevel
}

func (e EnvVars) GetEnv() string {
	return e.Env
}

func (e EnvVars) validate() error {
	switch e.StoreBackend {
	case StoreBackendFile, StoreBackendMemory, StoreBackendRedis:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", e.StoreBackend)
	}
	if e.APIBaseURL == "" {
		return fmt.Errorf("API_BASE_URL is required")
	}
	return nil
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
