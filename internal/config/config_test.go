package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-client/internal/config"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	unsetEnv(t, "API_BASE_URL", "STORE_BACKEND", "EXPIRY_THRESHOLD", "LOGIN_TIMEOUT", "REQUEST_TIMEOUT", "LOGIN_ROUTE", "LANDING_ROUTE", "ENV")

	c, err := config.New()
	require.NoError(t, err)
	require.Equal(t, "http://localhost:3000/api", c.GetAPIBaseURL())
	require.Equal(t, config.StoreBackendFile, c.GetStoreBackend())
	require.Equal(t, 5*time.Minute, c.GetExpiryThreshold())
	require.Equal(t, 10*time.Second, c.GetLoginTimeout())
	require.Zero(t, c.GetRequestTimeout())
	require.Equal(t, "/auth/login", c.GetLoginRoute())
	require.Equal(t, "/dashboard", c.GetLandingRoute())
	require.Equal(t, "DEV", c.GetEnv())
}

func TestNew_Overrides(t *testing.T) {
	t.Setenv("API_BASE_URL", "https://console.example.com/api")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("EXPIRY_THRESHOLD", "90s")
	t.Setenv("LANDING_ROUTE", "/devices")

	c, err := config.New()
	require.NoError(t, err)
	require.Equal(t, "https://console.example.com/api", c.GetAPIBaseURL())
	require.Equal(t, config.StoreBackendMemory, c.GetStoreBackend())
	require.Equal(t, 90*time.Second, c.GetExpiryThreshold())
	require.Equal(t, "/devices", c.GetLandingRoute())
}

func TestNew_UnknownBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "sqlite")

	_, err := config.New()
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown STORE_BACKEND")
}

func TestGetEnv(t *testing.T) {
	t.Setenv("SESSION_CLIENT_TEST_VAR", "")
	require.Equal(t, "fallback", config.GetEnv("SESSION_CLIENT_TEST_VAR", "fallback"))
	t.Setenv("SESSION_CLIENT_TEST_VAR", "set")
	require.Equal(t, "set", config.GetEnv("SESSION_CLIENT_TEST_VAR", "fallback"))
}

// unsetEnv clears variables for the duration of the test
func unsetEnv(t *testing.T, names ...string) {
	t.Helper()
	for _, name := range names {
		t.Setenv(name, "")
		require.NoError(t, os.Unsetenv(name))
	}
}
