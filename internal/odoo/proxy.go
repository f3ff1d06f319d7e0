package odoo

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/kolo/xmlrpc"
	"go.uber.org/zap"
)

// endpoint is the call surface of one XML-RPC endpoint client.
type endpoint interface {
	Call(serviceMethod string, args interface{}, reply interface{}) error
	Close() error
}

// Proxy is a thin client for Odoo's XML-RPC surface: the common endpoint for
// version and authentication, the object endpoint for execute_kw, and the db
// endpoint for database discovery.
type Proxy struct {
	baseURL string
	timeout time.Duration
	common  endpoint
	object  endpoint
	db      endpoint
	logger  *zap.Logger
}

// NewProxy constructs an XML-RPC proxy for the given base URL. The transport
// timeout bounds every call; skipTLSVerify disables certificate checks and
// must never be used outside development.
func NewProxy(baseURL string, timeout time.Duration, skipTLSVerify bool, logger *zap.Logger) (*Proxy, error) {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.ResponseHeaderTimeout = timeout
	if skipTLSVerify {
		logger.Warn("TLS certificate verification is disabled for Odoo connections",
			zap.String("op", "NewProxy"),
		)
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- opt-in dev setting
	}

	p := &Proxy{baseURL: baseURL, timeout: timeout, logger: logger}
	for _, ep := range []struct {
		path string
		dst  *endpoint
	}{
		{"/xmlrpc/2/common", &p.common},
		{"/xmlrpc/2/object", &p.object},
		{"/xmlrpc/2/db", &p.db},
	} {
		client, err := xmlrpc.NewClient(baseURL+ep.path, tr)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to connect to Odoo endpoint %s: %w", ep.path, err)
		}
		*ep.dst = client
	}
	return p, nil
}

// Close releases every endpoint client.
func (p *Proxy) Close() {
	for _, ep := range []endpoint{p.common, p.object, p.db} {
		if ep != nil {
			_ = ep.Close()
		}
	}
	p.common, p.object, p.db = nil, nil, nil
}

// call runs one blocking XML-RPC call in a goroutine so the caller's context
// can cancel the wait. The kolo client has no native context support.
func (p *Proxy) call(ctx context.Context, ep endpoint, method string, args interface{}, reply interface{}) error {
	if ep == nil {
		return ErrNotConnected
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	done := make(chan error, 1)
	go func() {
		done <- ep.Call(method, args, reply)
	}()

	select {
	case <-ctx.Done():
		p.logger.Warn("Odoo RPC call abandoned by context",
			zap.Error(ctx.Err()),
			zap.String("method", method),
			zap.String("op", "call"),
		)
		return ctx.Err()
	case err := <-done:
		return parseFault(err)
	}
}

// Version returns the server version map of the common endpoint.
func (p *Proxy) Version(ctx context.Context) (map[string]interface{}, error) {
	var version map[string]interface{}
	if err := p.call(ctx, p.common, "version", []interface{}{}, &version); err != nil {
		return nil, err
	}
	return version, nil
}

// Authenticate performs the common-endpoint authenticate call, returning the
// user id or 0 when the ERP rejects the credentials. Odoo signals rejection
// by returning boolean false instead of an integer.
func (p *Proxy) Authenticate(ctx context.Context, db, login, secret string) (int64, error) {
	var reply interface{}
	args := []interface{}{db, login, secret, map[string]interface{}{}}
	if err := p.call(ctx, p.common, "authenticate", args, &reply); err != nil {
		return 0, err
	}
	switch uid := reply.(type) {
	case int64:
		return uid, nil
	case int:
		return int64(uid), nil
	case bool:
		return 0, nil
	default:
		return 0, nil
	}
}

// ListDatabases returns the databases hosted by the ERP. Multi-tenant
// servers commonly deny this call.
func (p *Proxy) ListDatabases(ctx context.Context) ([]string, error) {
	var dbs []string
	if err := p.call(ctx, p.db, "list", []interface{}{}, &dbs); err != nil {
		return nil, err
	}
	return dbs, nil
}

// ExecuteKW invokes a model method through the object endpoint. The reply is
// unmarshalled into reply, which must be a pointer.
func (p *Proxy) ExecuteKW(ctx context.Context, db string, uid int64, secret, model, method string, args []interface{}, kwargs map[string]interface{}, reply interface{}) error {
	if kwargs == nil {
		kwargs = map[string]interface{}{}
	}
	callArgs := []interface{}{db, uid, secret, model, method, args, kwargs}
	return p.call(ctx, p.object, "execute_kw", callArgs, reply)
}
