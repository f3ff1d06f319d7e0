package access

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ilcreatore32/godoo-mcp/internal/config"
	"github.com/ilcreatore32/godoo-mcp/internal/errs"
)

// restClient talks to the ERP's MCP REST endpoints. API-key configs send the
// X-API-Key header; credential-only configs authenticate a web session once
// and replay its session_id cookie, re-authenticating exactly once on a 401.
type restClient struct {
	cfg      *config.Config
	client   *http.Client
	dbLookup func() string
	logger   *zap.Logger

	mu        sync.Mutex
	sessionID string
}

func newRESTClient(cfg *config.Config, dbLookup func() string, logger *zap.Logger) *restClient {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.SkipTLSVerify {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- opt-in dev setting
	}
	return &restClient{
		cfg:      cfg,
		dbLookup: dbLookup,
		logger:   logger,
		client: &http.Client{
			Timeout:   time.Duration(cfg.TimeoutSeconds) * time.Second,
			Transport: tr,
		},
	}
}

// getJSON performs an authenticated GET against path and decodes the JSON
// body into out.
func (r *restClient) getJSON(ctx context.Context, path string, out interface{}) error {
	resp, err := r.do(ctx, path, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errs.Connection("Odoo MCP endpoint %s returned status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errs.Wrap(errs.Connection("Invalid response from Odoo MCP endpoint %s", path), err)
	}
	return nil
}

// do issues the request, handling the one-shot session re-authentication
// when the ERP answers 401 for a cookie-authenticated call.
func (r *restClient) do(ctx context.Context, path string, retryOn401 bool) (*http.Response, error) {
	useCookie := !r.cfg.UsesAPIKey()
	if useCookie {
		if err := r.ensureSession(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.URL+path, nil)
	if err != nil {
		return nil, errs.Wrap(errs.Server("Failed to build request for %s", path), err)
	}
	if db := r.dbLookup(); db != "" {
		req.Header.Set("X-Odoo-Database", db)
	}
	if r.cfg.UsesAPIKey() {
		req.Header.Set("X-API-Key", r.cfg.APIKey)
	} else {
		r.mu.Lock()
		req.Header.Set("Cookie", "session_id="+r.sessionID)
		r.mu.Unlock()
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.Connection("Odoo MCP endpoint %s is unreachable", path), err)
	}

	if resp.StatusCode == http.StatusUnauthorized && useCookie && retryOn401 {
		resp.Body.Close()
		r.logger.Debug("Session cookie expired, re-authenticating",
			zap.String("path", path),
			zap.String("op", "do"),
		)
		r.mu.Lock()
		r.sessionID = ""
		r.mu.Unlock()
		return r.do(ctx, path, false)
	}
	return resp, nil
}

// ensureSession authenticates a web session when no cookie is cached.
func (r *restClient) ensureSession(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessionID != "" {
		return nil
	}

	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"params": map[string]interface{}{
			"db":       r.dbLookup(),
			"login":    r.cfg.Username,
			"password": r.cfg.Password,
		},
	})
	if err != nil {
		return errs.Wrap(errs.Server("Failed to encode session authentication request"), err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.URL+"/web/session/authenticate", bytes.NewReader(body))
	if err != nil {
		return errs.Wrap(errs.Server("Failed to build session authentication request"), err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return errs.Wrap(errs.Connection("Session authentication endpoint unreachable"), err)
	}
	defer resp.Body.Close()

	var payload struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return errs.Wrap(errs.Authentication("Session authentication failed: invalid credentials"), err)
	}
	if payload.Error != nil {
		return errs.Authentication("Session authentication failed: invalid credentials")
	}

	sid := sessionIDFromCookies(resp.Cookies())
	if sid == "" {
		return errs.Authentication("Session authentication failed: invalid credentials")
	}
	r.sessionID = sid
	r.logger.Debug("Web session authenticated", zap.String("op", "ensureSession"))
	return nil
}

func sessionIDFromCookies(cookies []*http.Cookie) string {
	for _, c := range cookies {
		if c.Name == "session_id" {
			return c.Value
		}
	}
	return ""
}
