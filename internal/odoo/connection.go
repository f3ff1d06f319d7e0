package odoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/ilcreatore32/godoo-mcp/internal/config"
	"github.com/ilcreatore32/godoo-mcp/internal/errs"
)

// Authentication methods recorded on the session.
const (
	AuthMethodAPIKey   = "api_key"
	AuthMethodPassword = "password"
)

const (
	rpcMaxAttempts = 3
	rpcBackoff     = time.Second
)

// rpcClient is the surface Connection needs from the XML-RPC layer. Proxy
// implements it; tests substitute a recording fake.
type rpcClient interface {
	Version(ctx context.Context) (map[string]interface{}, error)
	Authenticate(ctx context.Context, db, login, secret string) (int64, error)
	ListDatabases(ctx context.Context) ([]string, error)
	ExecuteKW(ctx context.Context, db string, uid int64, secret, model, method string, args []interface{}, kwargs map[string]interface{}, reply interface{}) error
	Close()
}

// Connection owns the authenticated Odoo session: lifecycle, database
// auto-selection, locale context injection, fault sanitization, metadata and
// record caches. One XML-RPC call is in flight at a time; callMu serializes
// the send/receive pair while stateMu guards session state.
type Connection struct {
	cfg    *config.Config
	logger *zap.Logger
	fields *fieldsCache
	perf   *perfTracker

	// dial builds the RPC client; replaced by tests.
	dial func() (rpcClient, error)

	httpClient *http.Client

	callMu  sync.Mutex
	stateMu sync.RWMutex

	rpc            rpcClient
	connected      bool
	authenticated  bool
	uid            int64
	database       string
	authMethod     string
	authCredential string
	serverVersion  string
	locale         string
}

// NewConnection creates a disconnected Connection for the given config.
func NewConnection(cfg *config.Config, logger *zap.Logger) *Connection {
	c := &Connection{
		cfg:    cfg,
		logger: logger,
		fields: newFieldsCache(),
		perf:   newPerfTracker(logger),
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
	c.dial = func() (rpcClient, error) {
		return NewProxy(cfg.URL, time.Duration(cfg.TimeoutSeconds)*time.Second, cfg.SkipTLSVerify, logger)
	}
	return c
}

// Connect establishes the XML-RPC proxies and verifies the server is
// reachable. It does not authenticate.
func (c *Connection) Connect(ctx context.Context) error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.connected {
		return nil
	}

	if err := c.checkReachable(); err != nil {
		return errs.Wrap(errs.Connection("Connection failed: Odoo server at %s is unreachable", c.cfg.URL), err)
	}

	rpc, err := c.dial()
	if err != nil {
		return errs.Wrap(errs.Connection("Connection failed: %v", err), err)
	}

	version, err := rpc.Version(ctx)
	if err != nil {
		rpc.Close()
		return errs.Wrap(errs.Connection("Connection failed: could not read server version"), err)
	}
	if v, ok := version["server_version"].(string); ok {
		c.serverVersion = v
	}

	c.rpc = rpc
	c.connected = true
	c.locale = c.cfg.Locale
	c.logger.Info("Connected to Odoo",
		zap.String("url", c.cfg.URL),
		zap.String("server_version", c.serverVersion),
		zap.String("op", "Connect"),
	)
	return nil
}

// checkReachable performs a plain TCP dial against the configured host so a
// down server fails fast with a clear message instead of an XML parse error.
func (c *Connection) checkReachable() error {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return err
	}
	port := u.Port()
	if port == "" {
		if u.Scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(u.Hostname(), port), time.Duration(c.cfg.TimeoutSeconds)*time.Second)
	if err != nil {
		return err
	}
	return conn.Close()
}

// Authenticate resolves the target database and authenticates the session
// using the API-key path when an API key is configured, the password path
// otherwise.
func (c *Connection) Authenticate(ctx context.Context) error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if !c.connected {
		return errs.Connection("Not connected to Odoo")
	}
	if c.authenticated {
		return nil
	}

	db, err := c.selectDatabase(ctx)
	if err != nil {
		return err
	}

	login := c.cfg.Username
	secret := c.cfg.Password
	method := AuthMethodPassword
	if c.cfg.UsesAPIKey() {
		if login == "" {
			login = "__api__"
		}
		secret = c.cfg.APIKey
		method = AuthMethodAPIKey
	}

	uid, err := c.rpc.Authenticate(ctx, db, login, secret)
	if err != nil {
		return errs.Wrap(errs.Authentication("Authentication failed"), err)
	}
	if uid == 0 {
		if method == AuthMethodAPIKey {
			return errs.Authentication("API key rejected by Odoo server")
		}
		return errs.Authentication("Authentication failed: invalid username or password")
	}

	c.uid = uid
	c.database = db
	c.authMethod = method
	c.authCredential = secret
	c.authenticated = true
	c.logger.Info("Authenticated with Odoo",
		zap.Int64("uid", uid),
		zap.String("db", db),
		zap.String("auth_method", method),
		zap.String("op", "Authenticate"),
	)
	return nil
}

// selectDatabase returns the configured database or auto-discovers one:
// a single hosted database wins outright, multiple databases fall back to
// the MCP system-info endpoint, anything else is an error.
func (c *Connection) selectDatabase(ctx context.Context) (string, error) {
	if c.cfg.Database != "" {
		return c.cfg.Database, nil
	}

	dbs, err := c.rpc.ListDatabases(ctx)
	if err != nil {
		c.logger.Warn("Database listing failed, trying system info endpoint",
			zap.Error(err),
			zap.String("op", "selectDatabase"),
		)
		dbs = nil
	}
	switch len(dbs) {
	case 1:
		c.logger.Info("Auto-selected the only hosted database",
			zap.String("db", dbs[0]),
			zap.String("op", "selectDatabase"),
		)
		return dbs[0], nil
	case 0:
	default:
		c.logger.Debug("Multiple databases hosted, consulting system info",
			zap.Int("count", len(dbs)),
			zap.String("op", "selectDatabase"),
		)
	}

	if db := c.systemInfoDatabase(ctx); db != "" {
		return db, nil
	}
	return "", errs.Validation("Could not determine target database: set ODOO_DB explicitly")
}

// systemInfoDatabase asks the ERP's MCP module which database it serves.
// Returns "" when the endpoint is missing or ambiguous.
func (c *Connection) systemInfoDatabase(ctx context.Context) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL+"/mcp/system/info", nil)
	if err != nil {
		return ""
	}
	if c.cfg.UsesAPIKey() {
		req.Header.Set("X-API-Key", c.cfg.APIKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}

	var payload struct {
		Success bool `json:"success"`
		Data    struct {
			Database string `json:"database"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil || !payload.Success {
		return ""
	}
	return payload.Data.Database
}

// Disconnect tears down the session. The metadata cache survives so a
// reconnect on the same instance skips re-reading stable schemas.
func (c *Connection) Disconnect() {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.rpc != nil {
		c.rpc.Close()
		c.rpc = nil
	}
	c.connected = false
	c.authenticated = false
	c.uid = 0
	c.authMethod = ""
	c.authCredential = ""
	c.perf.purge()
	c.logger.Info("Disconnected from Odoo", zap.String("op", "Disconnect"))
}

// Authenticated reports whether the session is usable.
func (c *Connection) Authenticated() bool {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.connected && c.authenticated
}

// Database returns the resolved database name, empty before authentication.
func (c *Connection) Database() string {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.database
}

// UID returns the authenticated user id.
func (c *Connection) UID() int64 {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.uid
}

// ServerVersion returns the raw server version string, e.g. "18.0" or
// "saas~17.4".
func (c *Connection) ServerVersion() string {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.serverVersion
}

// Locale returns the effective locale, which may have been cleared at
// runtime after an ERP rejection.
func (c *Connection) Locale() string {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.locale
}

// versionMajor extracts the major version integer from "NN.M" or
// "saas~NN.M" strings; 0 when unparseable.
func versionMajor(version string) int {
	version = strings.TrimPrefix(version, "saas~")
	head, _, _ := strings.Cut(version, ".")
	major, err := strconv.Atoi(head)
	if err != nil {
		return 0
	}
	return major
}

// BuildRecordURL returns the web URL of a record. Odoo 18 introduced the
// /odoo/{model}/{id} route; older and unknown versions get the legacy
// fragment form.
func (c *Connection) BuildRecordURL(model string, id int64) string {
	if versionMajor(c.ServerVersion()) >= 18 {
		return fmt.Sprintf("%s/odoo/%s/%d", c.cfg.URL, model, id)
	}
	return fmt.Sprintf("%s/web#id=%d&model=%s&view_type=form", c.cfg.URL, id, model)
}

// cloneKwargs deep-copies the first map level and the nested context map so
// injected keys never leak into a dictionary the caller may reuse.
func cloneKwargs(kwargs map[string]interface{}) map[string]interface{} {
	clone := make(map[string]interface{}, len(kwargs)+1)
	for k, v := range kwargs {
		clone[k] = v
	}
	if rawCtx, ok := clone["context"]; ok {
		if ctxMap, ok := rawCtx.(map[string]interface{}); ok {
			ctxClone := make(map[string]interface{}, len(ctxMap)+1)
			for k, v := range ctxMap {
				ctxClone[k] = v
			}
			clone["context"] = ctxClone
		}
	}
	return clone
}

// ExecuteKW invokes a model method with keyword arguments. It injects the
// configured locale into the call context unless the caller already set a
// lang key, retries transient transport errors, and falls back without the
// lang context exactly once when the ERP rejects the locale.
func (c *Connection) ExecuteKW(ctx context.Context, model, method string, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	c.callMu.Lock()
	defer c.callMu.Unlock()

	c.stateMu.RLock()
	ready := c.connected && c.authenticated
	locale := c.locale
	db, uid, secret := c.database, c.uid, c.authCredential
	rpc := c.rpc
	c.stateMu.RUnlock()
	if !ready {
		return nil, errs.Validation("Not authenticated with Odoo")
	}

	kw := cloneKwargs(kwargs)
	injected := false
	if locale != "" {
		injected = injectLang(kw, locale)
	}

	result, err := c.callWithRetry(ctx, rpc, db, uid, secret, model, method, args, kw)
	if err != nil {
		var fault *Fault
		if injected && errors.As(err, &fault) && invalidLocaleRe.MatchString(fault.Message) {
			c.stateMu.Lock()
			c.locale = ""
			c.stateMu.Unlock()
			c.logger.Warn("Odoo rejected the configured locale, retrying without lang context",
				zap.String("locale", locale),
				zap.String("model", model),
				zap.String("method", method),
				zap.String("op", "ExecuteKW"),
			)
			result, err = c.callWithRetry(ctx, rpc, db, uid, secret, model, method, args, cloneKwargs(kwargs))
		}
	}
	if err != nil {
		return nil, wrapRPCError(err)
	}
	return result, nil
}

// injectLang adds lang to the kwargs context unless the caller set one.
// Caller-provided lang always wins.
func injectLang(kwargs map[string]interface{}, locale string) bool {
	ctxMap, ok := kwargs["context"].(map[string]interface{})
	if !ok {
		ctxMap = make(map[string]interface{}, 1)
		kwargs["context"] = ctxMap
	}
	if _, exists := ctxMap["lang"]; exists {
		return false
	}
	ctxMap["lang"] = locale
	return true
}

// callWithRetry runs one execute_kw with bounded retries for transient
// transport errors. Application faults are permanent.
func (c *Connection) callWithRetry(ctx context.Context, rpc rpcClient, db string, uid int64, secret, model, method string, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	done := c.perf.track(model, method)
	defer done()

	operation := func() (interface{}, error) {
		var reply interface{}
		err := rpc.ExecuteKW(ctx, db, uid, secret, model, method, args, kwargs, &reply)
		if err == nil {
			return reply, nil
		}
		var fault *Fault
		if errors.As(err, &fault) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, backoff.Permanent(err)
		}
		c.logger.Warn("Transient Odoo RPC failure, will retry",
			zap.Error(err),
			zap.String("model", model),
			zap.String("method", method),
			zap.String("op", "callWithRetry"),
		)
		return nil, err
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(rpcBackoff)),
		backoff.WithMaxTries(rpcMaxAttempts),
	)
}

// wrapRPCError converts an RPC failure into the taxonomy, sanitizing fault
// messages so server-side paths and tracebacks never reach a client.
func wrapRPCError(err error) error {
	var fault *Fault
	if errors.As(err, &fault) {
		return errs.Wrap(errs.Connection("Operation failed: %s", sanitizeFault(fault.Message)), err)
	}
	return errs.Wrap(errs.Connection("Operation failed: %v", err), err)
}
