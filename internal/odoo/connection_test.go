package odoo

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ilcreatore32/godoo-mcp/internal/config"
	"github.com/ilcreatore32/godoo-mcp/internal/errs"
)

// fakeRPC is a programmable rpcClient that records every execute_kw call.
type fakeRPC struct {
	calls   []fakeCall
	replies []func(reply interface{}) error
	authUID int64
	dbs     []string
}

type fakeCall struct {
	model  string
	method string
	args   []interface{}
	kwargs map[string]interface{}
}

func (f *fakeRPC) Version(context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{"server_version": "18.0"}, nil
}

func (f *fakeRPC) Authenticate(_ context.Context, _, _, _ string) (int64, error) {
	return f.authUID, nil
}

func (f *fakeRPC) ListDatabases(context.Context) ([]string, error) {
	return f.dbs, nil
}

func (f *fakeRPC) ExecuteKW(_ context.Context, _ string, _ int64, _, model, method string, args []interface{}, kwargs map[string]interface{}, reply interface{}) error {
	f.calls = append(f.calls, fakeCall{model: model, method: method, args: args, kwargs: cloneKwargs(kwargs)})
	if len(f.replies) == 0 {
		return nil
	}
	next := f.replies[0]
	f.replies = f.replies[1:]
	return next(reply)
}

func (f *fakeRPC) Close() {}

func replyWith(value interface{}) func(interface{}) error {
	return func(reply interface{}) error {
		*(reply.(*interface{})) = value
		return nil
	}
}

func replyErr(err error) func(interface{}) error {
	return func(interface{}) error { return err }
}

func testConnection(t *testing.T, fake *fakeRPC, locale string) *Connection {
	t.Helper()
	cfg, err := config.New(config.Config{
		URL:    "https://erp.example.com",
		APIKey: "key",
		Locale: locale,
	})
	require.NoError(t, err)

	c := NewConnection(cfg, zap.NewNop())
	c.rpc = fake
	c.connected = true
	c.authenticated = true
	c.database = "main"
	c.uid = 2
	c.authCredential = "key"
	c.locale = locale
	return c
}

func TestBuildRecordURLVersionGating(t *testing.T) {
	tests := []struct {
		version string
		want    string
	}{
		{"18.0", "https://erp.example.com/odoo/res.partner/7"},
		{"19.1", "https://erp.example.com/odoo/res.partner/7"},
		{"saas~18.1", "https://erp.example.com/odoo/res.partner/7"},
		{"17.0", "https://erp.example.com/web#id=7&model=res.partner&view_type=form"},
		{"16.0", "https://erp.example.com/web#id=7&model=res.partner&view_type=form"},
		{"saas~17.4", "https://erp.example.com/web#id=7&model=res.partner&view_type=form"},
		{"", "https://erp.example.com/web#id=7&model=res.partner&view_type=form"},
		{"garbage", "https://erp.example.com/web#id=7&model=res.partner&view_type=form"},
	}
	for _, tt := range tests {
		c := testConnection(t, &fakeRPC{}, "")
		c.serverVersion = tt.version
		assert.Equal(t, tt.want, c.BuildRecordURL("res.partner", 7), "version %q", tt.version)
	}
}

func TestExecuteKWInjectsLocale(t *testing.T) {
	fake := &fakeRPC{replies: []func(interface{}) error{replyWith(true)}}
	c := testConnection(t, fake, "es_ES")

	_, err := c.ExecuteKW(context.Background(), "res.partner", "write", nil, nil)
	require.NoError(t, err)
	require.Len(t, fake.calls, 1)

	ctxMap := fake.calls[0].kwargs["context"].(map[string]interface{})
	assert.Equal(t, "es_ES", ctxMap["lang"])
}

func TestExecuteKWCallerLangWins(t *testing.T) {
	fake := &fakeRPC{replies: []func(interface{}) error{replyWith(true)}}
	c := testConnection(t, fake, "es_ES")

	kwargs := map[string]interface{}{
		"context": map[string]interface{}{"lang": "fr_FR"},
	}
	_, err := c.ExecuteKW(context.Background(), "res.partner", "read", nil, kwargs)
	require.NoError(t, err)

	ctxMap := fake.calls[0].kwargs["context"].(map[string]interface{})
	assert.Equal(t, "fr_FR", ctxMap["lang"])
}

func TestExecuteKWDoesNotMutateCallerKwargs(t *testing.T) {
	fake := &fakeRPC{replies: []func(interface{}) error{replyWith(true), replyWith(true)}}
	c := testConnection(t, fake, "es_ES")

	shared := map[string]interface{}{"context": map[string]interface{}{"tz": "UTC"}}
	_, err := c.ExecuteKW(context.Background(), "res.partner", "read", nil, shared)
	require.NoError(t, err)

	// The caller's dict must be untouched by the injection.
	ctxMap := shared["context"].(map[string]interface{})
	_, leaked := ctxMap["lang"]
	assert.False(t, leaked, "lang leaked into the caller's context dict")

	// A second call with an independent dict must not see the first call's context.
	_, err = c.ExecuteKW(context.Background(), "res.partner", "read", nil, map[string]interface{}{})
	require.NoError(t, err)
	secondCtx := fake.calls[1].kwargs["context"].(map[string]interface{})
	_, hasTZ := secondCtx["tz"]
	assert.False(t, hasTZ, "context from the first call leaked into the second")
}

func TestExecuteKWInvalidLocaleFallback(t *testing.T) {
	fault := &Fault{Code: 1, Message: "Invalid language code: es_ES"}
	fake := &fakeRPC{replies: []func(interface{}) error{
		replyErr(fault),
		replyWith([]interface{}{int64(1)}),
	}}
	c := testConnection(t, fake, "es_ES")

	result, err := c.ExecuteKW(context.Background(), "res.partner", "search", []interface{}{[]interface{}{}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(1)}, result)

	require.Len(t, fake.calls, 2, "exactly one retry expected")
	_, hasCtx := fake.calls[1].kwargs["context"]
	assert.False(t, hasCtx, "retry must not carry the lang context")
	assert.Empty(t, c.Locale(), "locale must stay cleared for the session")

	// Subsequent calls never inject lang again.
	fake.replies = []func(interface{}) error{replyWith(true)}
	_, err = c.ExecuteKW(context.Background(), "res.partner", "read", nil, nil)
	require.NoError(t, err)
	_, hasCtx = fake.calls[2].kwargs["context"]
	assert.False(t, hasCtx)
}

func TestExecuteKWSecondLocaleFaultPropagates(t *testing.T) {
	fake := &fakeRPC{replies: []func(interface{}) error{
		replyErr(&Fault{Message: "Invalid language code: es_ES"}),
		replyErr(&Fault{Message: "Invalid language code: es_ES"}),
	}}
	c := testConnection(t, fake, "es_ES")

	_, err := c.ExecuteKW(context.Background(), "res.partner", "search", nil, nil)
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.StatusConnection))
	assert.Len(t, fake.calls, 2)
}

func TestExecuteKWSanitizesFaults(t *testing.T) {
	fault := &Fault{Message: "Traceback (most recent call last):\n  File \"/opt/odoo/models.py\"\n\nAccess Denied by /usr/lib/odoo/security.py"}
	fake := &fakeRPC{replies: []func(interface{}) error{replyErr(fault)}}
	c := testConnection(t, fake, "")

	_, err := c.ExecuteKW(context.Background(), "res.partner", "read", nil, nil)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "/opt/")
	assert.NotContains(t, err.Error(), "Traceback")
	assert.Contains(t, err.Error(), "Operation failed")
}

func TestExecuteKWRequiresAuthentication(t *testing.T) {
	c := testConnection(t, &fakeRPC{}, "")
	c.authenticated = false

	_, err := c.ExecuteKW(context.Background(), "res.partner", "read", nil, nil)
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.StatusValidation))
}

func TestReadCacheInvalidation(t *testing.T) {
	record := map[string]interface{}{"id": int64(5), "name": "Azure"}
	fake := &fakeRPC{replies: []func(interface{}) error{
		replyWith([]interface{}{record}),
		replyWith(true),
		replyWith([]interface{}{map[string]interface{}{"id": int64(5), "name": "Renamed"}}),
	}}
	c := testConnection(t, fake, "")
	ctx := context.Background()

	first, err := c.Read(ctx, "res.partner", []int64{5}, []string{"name"})
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Cache satisfies an identical read without a server call.
	cached, err := c.Read(ctx, "res.partner", []int64{5}, []string{"name"})
	require.NoError(t, err)
	assert.Equal(t, "Azure", cached[0]["name"])
	assert.Len(t, fake.calls, 1)

	// A write invalidates, so the next read goes back to the server.
	_, err = c.Write(ctx, "res.partner", []int64{5}, Data{"name": "Renamed"})
	require.NoError(t, err)

	fresh, err := c.Read(ctx, "res.partner", []int64{5}, []string{"name"})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", fresh[0]["name"])
	assert.Len(t, fake.calls, 3)
}

func TestCreateInvalidatesModelCache(t *testing.T) {
	fake := &fakeRPC{replies: []func(interface{}) error{
		replyWith([]interface{}{map[string]interface{}{"id": int64(1), "name": "A"}}),
		replyWith(int64(9)),
		replyWith([]interface{}{map[string]interface{}{"id": int64(1), "name": "A"}}),
	}}
	c := testConnection(t, fake, "")
	ctx := context.Background()

	_, err := c.Read(ctx, "res.partner", []int64{1}, []string{"name"})
	require.NoError(t, err)

	id, err := c.Create(ctx, "res.partner", Data{"name": "B"})
	require.NoError(t, err)
	assert.Equal(t, int64(9), id)

	_, err = c.Read(ctx, "res.partner", []int64{1}, []string{"name"})
	require.NoError(t, err)
	assert.Len(t, fake.calls, 3, "create must drop every cached record of the model")
}

func TestFieldsGetMemoization(t *testing.T) {
	schema := map[string]interface{}{
		"name": map[string]interface{}{"type": "char", "string": "Name"},
	}
	fake := &fakeRPC{replies: []func(interface{}) error{
		replyWith(schema),
		replyWith(schema),
		replyWith(schema),
	}}
	c := testConnection(t, fake, "")
	ctx := context.Background()

	_, err := c.FieldsGet(ctx, "res.partner", nil)
	require.NoError(t, err)
	_, err = c.FieldsGet(ctx, "res.partner", nil)
	require.NoError(t, err)
	assert.Len(t, fake.calls, 1, "attribute-less fields_get must be memoized")

	// Attribute-filtered calls bypass the cache.
	_, err = c.FieldsGet(ctx, "res.partner", []string{"string", "type"})
	require.NoError(t, err)
	assert.Len(t, fake.calls, 2)

	// Explicit invalidation forces a refetch.
	c.InvalidateFieldsCache()
	_, err = c.FieldsGet(ctx, "res.partner", nil)
	require.NoError(t, err)
	assert.Len(t, fake.calls, 3)
}

func TestExecuteKWRetriesTransportErrors(t *testing.T) {
	fake := &fakeRPC{replies: []func(interface{}) error{
		replyErr(fmt.Errorf("read tcp: connection reset by peer")),
		replyWith(true),
	}}
	c := testConnection(t, fake, "")

	result, err := c.ExecuteKW(context.Background(), "res.partner", "write", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, true, result)
	assert.Len(t, fake.calls, 2)
}

func TestAuthenticateRejectedAPIKey(t *testing.T) {
	fake := &fakeRPC{authUID: 0, dbs: []string{"main"}}
	c := testConnection(t, fake, "")
	c.authenticated = false
	c.database = ""

	err := c.Authenticate(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.StatusAuthentication))
	assert.Contains(t, err.Error(), "API key rejected")
}

func TestAuthenticateAutoSelectsSingleDatabase(t *testing.T) {
	fake := &fakeRPC{authUID: 7, dbs: []string{"production"}}
	c := testConnection(t, fake, "")
	c.authenticated = false
	c.database = ""

	require.NoError(t, c.Authenticate(context.Background()))
	assert.Equal(t, "production", c.Database())
	assert.Equal(t, int64(7), c.UID())
}

func TestSanitizeFault(t *testing.T) {
	in := "Error in /opt/odoo/addons/sale/models/sale.py while confirming"
	out := sanitizeFault(in)
	assert.NotContains(t, out, "/opt/")
	assert.Contains(t, out, "while confirming")

	assert.Equal(t, "Internal server error", sanitizeFault("Traceback (most recent call last):\n  boom"))
}

func TestParseFaultClassification(t *testing.T) {
	err := parseFault(errors.New("API error: Fault 3: 'Access Denied'"))
	var fault *Fault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, 3, fault.Code)
	assert.Equal(t, "Access Denied", fault.Message)

	transport := parseFault(errors.New("dial tcp: connection refused"))
	assert.False(t, errors.As(transport, &fault), "transport errors must stay unclassified for retry")
}
