package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

type Config interface {
	EnvConfig
	SessionConfig
	RouteConfig
}

type EnvConfig interface {
	GetAppName() string
	GetAPIBaseURL() string
	GetDataFolder() string
	GetStoreBackend() StoreBackend
	GetRedisURL() string
	GetLogLevel() string
	GetEnv() string
}

type mainConfig struct {
	EnvVars
	Session
	Routes
}

// New reads the configuration from the process environment
func New() (Config, error) {
	c := mainConfig{}
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("[config.New] env.Parse: %w", err)
	}
	if err := c.EnvVars.validate(); err != nil {
		return nil, fmt.Errorf("[config.New] %w", err)
	}
	return c, nil
}
