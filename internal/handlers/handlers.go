// Package handlers implements the MCP-facing operations of the bridge:
// resource reads returning formatted text, tools returning structured
// results, and the business workflow tools.
package handlers

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ilcreatore32/godoo-mcp/internal/access"
	"github.com/ilcreatore32/godoo-mcp/internal/errs"
	"github.com/ilcreatore32/godoo-mcp/internal/odoo"
	"github.com/ilcreatore32/godoo-mcp/internal/uri"
)

// Client is the slice of the Odoo connection the handlers depend on.
// *odoo.Connection satisfies it.
type Client interface {
	Authenticated() bool
	Database() string
	ServerVersion() string
	BuildRecordURL(model string, id int64) string

	Search(ctx context.Context, model string, domain odoo.Domain, opts *odoo.Options) ([]int64, error)
	Read(ctx context.Context, model string, ids []int64, fields []string) ([]odoo.Record, error)
	SearchRead(ctx context.Context, model string, domain odoo.Domain, opts *odoo.Options) ([]odoo.Record, error)
	SearchCount(ctx context.Context, model string, domain odoo.Domain) (int, error)
	FieldsGet(ctx context.Context, model string, attributes []string) (map[string]odoo.FieldInfo, error)
	Create(ctx context.Context, model string, values odoo.Data) (int64, error)
	Write(ctx context.Context, model string, ids []int64, values odoo.Data) (bool, error)
	Unlink(ctx context.Context, model string, ids []int64) (bool, error)
	Execute(ctx context.Context, model, action string, ids []int64) (interface{}, error)
}

// Access is the slice of the access controller the handlers depend on.
// *access.Controller satisfies it.
type Access interface {
	EnabledModels(ctx context.Context) ([]access.ModelInfo, error)
	ValidateModelAccess(ctx context.Context, model, op string) error
	AllPermissions(ctx context.Context) (map[string]access.ModelPermissions, error)
}

// LogContext receives progress and diagnostics for a running tool call.
// Implementations may fail; handlers never let that failure reach the caller.
type LogContext interface {
	Info(ctx context.Context, msg string) error
	Warning(ctx context.Context, msg string) error
	Progress(ctx context.Context, current, total float64) error
}

// NopLog discards everything.
type NopLog struct{}

func (NopLog) Info(context.Context, string) error { return nil }

func (NopLog) Warning(context.Context, string) error { return nil }

func (NopLog) Progress(context.Context, float64, float64) error { return nil }

// base carries the dependencies shared by all handler kinds.
type base struct {
	conn   Client
	access Access
	logger *zap.Logger
}

func (b *base) requireAuth() error {
	if !b.conn.Authenticated() {
		return errs.Validation("Not authenticated with Odoo")
	}
	return nil
}

// logInfo and friends push to the sink without ever failing the operation.
func (b *base) logInfo(ctx context.Context, sink LogContext, msg string) {
	if sink == nil {
		return
	}
	if err := sink.Info(ctx, msg); err != nil {
		b.logger.Debug("log context rejected info message", zap.Error(err))
	}
}

func (b *base) logWarning(ctx context.Context, sink LogContext, msg string) {
	if sink == nil {
		return
	}
	if err := sink.Warning(ctx, msg); err != nil {
		b.logger.Debug("log context rejected warning message", zap.Error(err))
	}
}

func (b *base) logProgress(ctx context.Context, sink LogContext, current, total float64) {
	if sink == nil {
		return
	}
	if err := sink.Progress(ctx, current, total); err != nil {
		b.logger.Debug("log context rejected progress update", zap.Error(err))
	}
}

// clampLimit bounds limit to [1, max], substituting def when unset.
func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}

// unsafeFieldTypes never appear in resource projections.
var unsafeFieldTypes = map[string]bool{"binary": true, "html": true, "serialized": true}

// safeFields filters a fields_get map down to the projection used by
// resource reads. Returns nil when nothing survives so callers can omit the
// projection entirely.
func safeFields(fieldsInfo map[string]odoo.FieldInfo) []string {
	out := make([]string, 0, len(fieldsInfo))
	for name, info := range fieldsInfo {
		if strings.HasPrefix(name, "_") {
			continue
		}
		if t, _ := info["type"].(string); unsafeFieldTypes[t] {
			continue
		}
		out = append(out, name)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

// smartDefaultColumns are always included when the model has them.
var smartDefaultColumns = []string{
	"name", "display_name", "code", "reference", "number",
	"active", "state", "email", "phone", "ref",
	"date", "date_order", "amount_total",
}

const smartDefaultCap = 15

// smartDefaultFields picks a compact field selection for get_record when the
// caller names none: identity and common columns first, then simple
// many2one links, capped.
func smartDefaultFields(fieldsInfo map[string]odoo.FieldInfo) []string {
	out := make([]string, 0, smartDefaultCap)
	picked := map[string]bool{}

	for _, name := range smartDefaultColumns {
		if _, ok := fieldsInfo[name]; ok && len(out) < smartDefaultCap {
			out = append(out, name)
			picked[name] = true
		}
	}

	links := make([]string, 0, len(fieldsInfo))
	for name, info := range fieldsInfo {
		if picked[name] || !strings.HasSuffix(name, "_id") {
			continue
		}
		if t, _ := info["type"].(string); t == "many2one" {
			links = append(links, name)
		}
	}
	sort.Strings(links)
	for _, name := range links {
		if len(out) >= smartDefaultCap {
			break
		}
		out = append(out, name)
	}
	return out
}

// decodeDomain accepts a search domain as a native list, a JSON string, or a
// Python literal string.
func decodeDomain(raw interface{}) (odoo.Domain, error) {
	switch v := raw.(type) {
	case nil:
		return odoo.Domain{}, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return odoo.Domain{}, nil
		}
		return uri.ParseDomain(v)
	case []interface{}:
		if len(v) == 0 {
			return odoo.Domain{}, nil
		}
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, errs.Validation("Invalid domain: %v", err)
		}
		return uri.ParseDomain(string(encoded))
	case odoo.Domain:
		return v, nil
	default:
		return nil, errs.Validation("Invalid domain: expected a list or string, got %T", raw)
	}
}

// decodeFields accepts a field list as a native list, a JSON array string,
// or a CSV string.
func decodeFields(raw interface{}) ([]string, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []string:
		return v, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, errs.Validation("Invalid fields list: expected strings")
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return nil, nil
		}
		if strings.HasPrefix(trimmed, "[") {
			var out []string
			if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
				return nil, errs.Validation("Invalid fields list: %v", err)
			}
			return out, nil
		}
		parts := strings.Split(trimmed, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	default:
		return nil, errs.Validation("Invalid fields list: expected a list or string, got %T", raw)
	}
}

// parseCSVIDs extracts the positive integer ids from a comma-separated
// string, silently dropping everything else.
func parseCSVIDs(csv string) []int64 {
	var ids []int64
	for _, token := range strings.Split(csv, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(token), 10, 64)
		if err == nil && id > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

// errMessage extracts the user-facing message of a taxonomy error, or the
// plain Error() text otherwise.
func errMessage(err error) string {
	return errs.MessageOf(err)
}
