package config

import "time"

type SessionConfig interface {
	GetExpiryThreshold() time.Duration
	GetLoginTimeout() time.Duration
	GetRequestTimeout() time.Duration
}

type Session struct {
	ExpiryThreshold time.Duration `env:"EXPIRY_THRESHOLD" envDefault:"5m"`
	LoginTimeout    time.Duration `env:"LOGIN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"0s"` // 0 = no client timeout
}

var _ SessionConfig = Session{}

func (s Session) GetExpiryThreshold() time.Duration {
	return s.ExpiryThreshold
}

func (s Session) GetLoginTimeout() time.Duration {
	return s.LoginTimeout
}

func (s Session) GetRequestTimeout() time.Duration {
	return s.RequestTimeout
}
