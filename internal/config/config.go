// Package config is the sole source of truth for runtime parameters of the
// bridge. A Config is validated at construction and never mutated afterwards;
// the one sanctioned runtime transition (clearing a rejected locale) is owned
// by the connection layer, not by Config itself.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// YoloMode is the client-side access-control bypass level.
type YoloMode string

const (
	// YoloOff enforces the ERP's per-model MCP allowlist.
	YoloOff YoloMode = "off"
	// YoloRead enables every model but permits only read operations.
	YoloRead YoloMode = "read"
	// YoloTrue enables every model for all CRUD operations.
	YoloTrue YoloMode = "true"
)

// Transport selects how the MCP surface is served.
type Transport string

const (
	// TransportStdio serves MCP over stdin/stdout.
	TransportStdio Transport = "stdio"
	// TransportStreamableHTTP serves MCP over the streamable HTTP transport.
	TransportStreamableHTTP Transport = "streamable-http"
)

// Defaults applied when neither flags nor environment provide a value.
const (
	DefaultLimit   = 10
	DefaultMaxUint = 100
	DefaultHost    = "127.0.0.1"
	DefaultPort    = 8000
	DefaultTimeout = 30 // seconds
)

// Config holds every runtime parameter of the bridge server.
type Config struct {
	URL      string
	APIKey   string
	Username string
	Password string
	Database string

	DefaultLimit int
	MaxLimit     int
	LogLevel     string
	Locale       string
	YoloMode     YoloMode

	Transport Transport
	Host      string
	Port      int

	// TimeoutSeconds bounds every RPC and the TCP reachability check.
	TimeoutSeconds int

	// SkipTLSVerify disables certificate verification on the ERP transport.
	// Development only.
	SkipTLSVerify bool
}

// New validates the given configuration and returns it, or an error when the
// combination is contradictory. Zero-valued limits and transport fields are
// filled with defaults.
func New(cfg Config) (*Config, error) {
	if !strings.HasPrefix(cfg.URL, "http://") && !strings.HasPrefix(cfg.URL, "https://") {
		return nil, fmt.Errorf("ODOO_URL must start with http:// or https://, got %q", cfg.URL)
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")

	if cfg.YoloMode == "" {
		cfg.YoloMode = YoloOff
	}
	switch cfg.YoloMode {
	case YoloOff, YoloRead, YoloTrue:
	default:
		return nil, fmt.Errorf("invalid ODOO_YOLO value %q: must be off, read or true", cfg.YoloMode)
	}

	if cfg.YoloMode != YoloOff {
		if cfg.Username == "" || (cfg.Password == "" && cfg.APIKey == "") {
			return nil, fmt.Errorf("YOLO mode requires username and a password or API key")
		}
	} else if cfg.APIKey == "" && (cfg.Username == "" || cfg.Password == "") {
		return nil, fmt.Errorf("Authentication required: set ODOO_API_KEY or ODOO_USER and ODOO_PASSWORD")
	}

	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = DefaultMaxUint
	}
	if cfg.DefaultLimit > cfg.MaxLimit {
		return nil, fmt.Errorf("default limit %d exceeds max limit %d", cfg.DefaultLimit, cfg.MaxLimit)
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = DefaultTimeout
	}

	if cfg.Transport == "" {
		cfg.Transport = TransportStdio
	}
	switch cfg.Transport {
	case TransportStdio, TransportStreamableHTTP:
	default:
		return nil, fmt.Errorf("invalid transport %q: must be stdio or streamable-http", cfg.Transport)
	}
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	return &cfg, nil
}

// FromEnv builds a Config from the ODOO_* environment variables. Flag values
// already applied to the returned struct by the caller take precedence, so
// this reads the environment only for fields still at their zero value.
func FromEnv(cfg Config) (*Config, error) {
	envStr := func(dst *string, key string) {
		if *dst == "" {
			*dst = os.Getenv(key)
		}
	}
	envStr(&cfg.URL, "ODOO_URL")
	envStr(&cfg.Database, "ODOO_DB")
	envStr(&cfg.APIKey, "ODOO_API_KEY")
	envStr(&cfg.Username, "ODOO_USER")
	envStr(&cfg.Password, "ODOO_PASSWORD")
	envStr(&cfg.LogLevel, "ODOO_MCP_LOG_LEVEL")
	envStr(&cfg.Locale, "ODOO_LOCALE")
	envStr(&cfg.Host, "ODOO_MCP_HOST")

	if cfg.YoloMode == "" {
		cfg.YoloMode = YoloMode(os.Getenv("ODOO_YOLO"))
	}
	if cfg.Transport == "" {
		cfg.Transport = Transport(os.Getenv("ODOO_MCP_TRANSPORT"))
	}
	var err error
	if cfg.DefaultLimit == 0 {
		if cfg.DefaultLimit, err = envInt("ODOO_MCP_DEFAULT_LIMIT"); err != nil {
			return nil, err
		}
	}
	if cfg.MaxLimit == 0 {
		if cfg.MaxLimit, err = envInt("ODOO_MCP_MAX_LIMIT"); err != nil {
			return nil, err
		}
	}
	if cfg.Port == 0 {
		if cfg.Port, err = envInt("ODOO_MCP_PORT"); err != nil {
			return nil, err
		}
	}
	if !cfg.SkipTLSVerify {
		cfg.SkipTLSVerify = os.Getenv("ODOO_SKIP_TLS_VERIFY") == "true"
	}

	return New(cfg)
}

func envInt(key string) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return v, nil
}

// UsesAPIKey reports whether the API-key authentication path applies.
func (c *Config) UsesAPIKey() bool {
	return c.APIKey != ""
}

// UsesCredentials reports whether username/password authentication applies.
func (c *Config) UsesCredentials() bool {
	return c.Username != "" && c.Password != ""
}

// EndpointPaths returns the fixed map of ERP endpoint paths the bridge talks
// to. Keys are stable identifiers used by the RPC and access layers.
func (c *Config) EndpointPaths() map[string]string {
	return map[string]string{
		"db":              "/xmlrpc/2/db",
		"common":          "/xmlrpc/2/common",
		"object":          "/xmlrpc/2/object",
		"web_session":     "/web/session/authenticate",
		"mcp_models":      "/mcp/models",
		"mcp_model_perms": "/mcp/models/{model}/permissions",
		"mcp_system_info": "/mcp/system/info",
		"health":          "/mcp/health",
	}
}
