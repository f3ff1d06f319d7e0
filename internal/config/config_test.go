package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{URL: "https://odoo.example.com", APIKey: "secret"}
}

func TestNewAppliesDefaults(t *testing.T) {
	cfg, err := New(validConfig())
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.DefaultLimit)
	assert.Equal(t, 100, cfg.MaxLimit)
	assert.Equal(t, 30, cfg.TimeoutSeconds)
	assert.Equal(t, TransportStdio, cfg.Transport)
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, YoloOff, cfg.YoloMode)
}

func TestNewTrimsTrailingSlash(t *testing.T) {
	base := validConfig()
	base.URL = "https://odoo.example.com/"
	cfg, err := New(base)
	require.NoError(t, err)
	assert.Equal(t, "https://odoo.example.com", cfg.URL)
}

func TestNewRejectsBadURL(t *testing.T) {
	for _, url := range []string{"", "odoo.example.com", "ftp://odoo.example.com"} {
		base := validConfig()
		base.URL = url
		_, err := New(base)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ODOO_URL must start with http:// or https://")
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	cases := []Config{
		{URL: "https://odoo.example.com"},
		{URL: "https://odoo.example.com", Username: "admin"},
		{URL: "https://odoo.example.com", Password: "pw"},
	}
	for _, cfg := range cases {
		_, err := New(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Authentication required")
	}

	_, err := New(Config{URL: "https://odoo.example.com", Username: "admin", Password: "pw"})
	assert.NoError(t, err)
}

func TestNewYoloNeedsFullCredentials(t *testing.T) {
	base := validConfig()
	base.YoloMode = YoloRead
	_, err := New(base)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "YOLO mode requires username")

	base.Username = "admin"
	_, err = New(base)
	assert.NoError(t, err, "username plus API key satisfies YOLO mode")
}

func TestNewRejectsInvalidYoloValue(t *testing.T) {
	base := validConfig()
	base.YoloMode = "maybe"
	_, err := New(base)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ODOO_YOLO")
}

func TestNewRejectsContradictoryLimits(t *testing.T) {
	base := validConfig()
	base.DefaultLimit = 500
	base.MaxLimit = 100
	_, err := New(base)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds max limit")
}

func TestNewRejectsUnknownTransport(t *testing.T) {
	base := validConfig()
	base.Transport = "websocket"
	_, err := New(base)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be stdio or streamable-http")
}

func TestFromEnvReadsEnvironment(t *testing.T) {
	t.Setenv("ODOO_URL", "https://env.example.com")
	t.Setenv("ODOO_DB", "production")
	t.Setenv("ODOO_API_KEY", "env-key")
	t.Setenv("ODOO_YOLO", "off")
	t.Setenv("ODOO_MCP_DEFAULT_LIMIT", "25")
	t.Setenv("ODOO_MCP_TRANSPORT", "streamable-http")
	t.Setenv("ODOO_SKIP_TLS_VERIFY", "true")

	cfg, err := FromEnv(Config{})
	require.NoError(t, err)

	assert.Equal(t, "https://env.example.com", cfg.URL)
	assert.Equal(t, "production", cfg.Database)
	assert.Equal(t, "env-key", cfg.APIKey)
	assert.Equal(t, 25, cfg.DefaultLimit)
	assert.Equal(t, TransportStreamableHTTP, cfg.Transport)
	assert.True(t, cfg.SkipTLSVerify)
}

func TestFromEnvFlagsTakePrecedence(t *testing.T) {
	t.Setenv("ODOO_URL", "https://env.example.com")
	t.Setenv("ODOO_API_KEY", "env-key")
	t.Setenv("ODOO_MCP_PORT", "9000")

	cfg, err := FromEnv(Config{URL: "https://flag.example.com", Port: 8080})
	require.NoError(t, err)

	assert.Equal(t, "https://flag.example.com", cfg.URL)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "env-key", cfg.APIKey, "unset fields still come from the environment")
}

func TestFromEnvRejectsMalformedInt(t *testing.T) {
	t.Setenv("ODOO_URL", "https://env.example.com")
	t.Setenv("ODOO_API_KEY", "env-key")
	t.Setenv("ODOO_MCP_MAX_LIMIT", "lots")

	_, err := FromEnv(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ODOO_MCP_MAX_LIMIT")
}

func TestAuthMethodSelection(t *testing.T) {
	cfg, err := New(validConfig())
	require.NoError(t, err)
	assert.True(t, cfg.UsesAPIKey())
	assert.False(t, cfg.UsesCredentials())

	cfg, err = New(Config{URL: "https://odoo.example.com", Username: "admin", Password: "pw"})
	require.NoError(t, err)
	assert.False(t, cfg.UsesAPIKey())
	assert.True(t, cfg.UsesCredentials())
}

func TestEndpointPaths(t *testing.T) {
	cfg, err := New(validConfig())
	require.NoError(t, err)

	paths := cfg.EndpointPaths()
	assert.Equal(t, "/xmlrpc/2/object", paths["object"])
	assert.Equal(t, "/web/session/authenticate", paths["web_session"])
	assert.Equal(t, "/mcp/models", paths["mcp_models"])
	assert.Equal(t, "/mcp/health", paths["health"])
}
