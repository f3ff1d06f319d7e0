package odoo

import (
	"context"

	"go.uber.org/zap"

	"github.com/ilcreatore32/godoo-mcp/internal/errs"
)

// Search returns the ids matching the domain.
func (c *Connection) Search(ctx context.Context, model string, domain Domain, opts *Options) ([]int64, error) {
	kwargs := map[string]interface{}{}
	if opts != nil {
		kwargs = opts.ToRPC()
		delete(kwargs, "fields")
	}
	result, err := c.ExecuteKW(ctx, model, "search", []interface{}{domain.ToRPC()}, kwargs)
	if err != nil {
		return nil, err
	}
	return asInt64Slice(result), nil
}

// Read fetches the given records, optionally projected to fields. Cached
// copies are served when every requested id and field is present; anything
// else goes to the server and refreshes the cache.
func (c *Connection) Read(ctx context.Context, model string, ids []int64, fields []string) ([]Record, error) {
	if len(ids) == 0 {
		return []Record{}, nil
	}
	if cached, ok := c.readFromCache(model, ids, fields); ok {
		c.logger.Debug("Record cache hit",
			zap.String("model", model),
			zap.Int("ids", len(ids)),
			zap.String("op", "Read"),
		)
		return cached, nil
	}

	kwargs := map[string]interface{}{}
	if len(fields) > 0 {
		kwargs["fields"] = fields
	}
	result, err := c.ExecuteKW(ctx, model, "read", []interface{}{ids}, kwargs)
	if err != nil {
		return nil, err
	}
	records := asRecords(result)
	for _, rec := range records {
		if id, ok := recordID(rec); ok {
			c.perf.storeRecord(model, id, rec)
		}
	}
	return records, nil
}

// readFromCache assembles the requested records from the record cache. A
// single missing id or field forces a server round-trip for the whole batch.
func (c *Connection) readFromCache(model string, ids []int64, fields []string) ([]Record, bool) {
	if len(fields) == 0 {
		return nil, false
	}
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		rec, ok := c.perf.cachedRecord(model, id)
		if !ok {
			return nil, false
		}
		for _, f := range fields {
			if _, ok := rec[f]; !ok {
				return nil, false
			}
		}
		out = append(out, rec)
	}
	return out, true
}

// SearchRead combines search and read in one call.
func (c *Connection) SearchRead(ctx context.Context, model string, domain Domain, opts *Options) ([]Record, error) {
	kwargs := map[string]interface{}{}
	if opts != nil {
		kwargs = opts.ToRPC()
	}
	result, err := c.ExecuteKW(ctx, model, "search_read", []interface{}{domain.ToRPC()}, kwargs)
	if err != nil {
		return nil, err
	}
	return asRecords(result), nil
}

// SearchCount returns the number of records matching the domain.
func (c *Connection) SearchCount(ctx context.Context, model string, domain Domain) (int, error) {
	result, err := c.ExecuteKW(ctx, model, "search_count", []interface{}{domain.ToRPC()}, nil)
	if err != nil {
		return 0, err
	}
	return int(asInt64(result)), nil
}

// FieldsGet returns the field metadata of a model. Attribute-less calls are
// memoized for the session; passing attributes bypasses the cache.
func (c *Connection) FieldsGet(ctx context.Context, model string, attributes []string) (map[string]FieldInfo, error) {
	if len(attributes) == 0 {
		if cached, ok := c.fields.get(model); ok {
			return cached, nil
		}
	}

	kwargs := map[string]interface{}{}
	if len(attributes) > 0 {
		kwargs["attributes"] = attributes
	}
	result, err := c.ExecuteKW(ctx, model, "fields_get", []interface{}{}, kwargs)
	if err != nil {
		return nil, err
	}
	fields := asFieldsMap(result)
	if len(attributes) == 0 {
		c.fields.put(model, fields)
	}
	return fields, nil
}

// InvalidateFieldsCache drops every memoized schema, e.g. around a
// reconnect against a different server.
func (c *Connection) InvalidateFieldsCache() {
	c.fields.invalidate()
}

// Create inserts one record and returns its id. Every cached record of the
// model is invalidated: new rows can change computed fields of existing ones.
func (c *Connection) Create(ctx context.Context, model string, values Data) (int64, error) {
	result, err := c.ExecuteKW(ctx, model, "create", []interface{}{values.ToRPC()}, nil)
	if err != nil {
		return 0, err
	}
	id := asInt64(result)
	if id == 0 {
		return 0, errs.Server("Odoo did not return an id for the created %s record", model)
	}
	c.perf.invalidateModel(model)
	return id, nil
}

// Write updates the given records and invalidates their cached copies.
func (c *Connection) Write(ctx context.Context, model string, ids []int64, values Data) (bool, error) {
	if len(ids) == 0 {
		return false, errs.Validation("No record ids provided for write")
	}
	result, err := c.ExecuteKW(ctx, model, "write", []interface{}{ids, values.ToRPC()}, nil)
	if err != nil {
		return false, err
	}
	c.perf.invalidateRecords(model, ids)
	return asBool(result), nil
}

// Unlink deletes the given records and invalidates their cached copies.
func (c *Connection) Unlink(ctx context.Context, model string, ids []int64) (bool, error) {
	if len(ids) == 0 {
		return false, errs.Validation("No record ids provided for unlink")
	}
	result, err := c.ExecuteKW(ctx, model, "unlink", []interface{}{ids}, nil)
	if err != nil {
		return false, err
	}
	c.perf.invalidateRecords(model, ids)
	return asBool(result), nil
}

// Execute invokes an arbitrary model method on the given ids, e.g.
// action_confirm on a sale order. The result shape is method-specific.
func (c *Connection) Execute(ctx context.Context, model, action string, ids []int64) (interface{}, error) {
	return c.ExecuteKW(ctx, model, action, []interface{}{ids}, nil)
}

// --- result decoding -------------------------------------------------------

func asInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func asBool(v interface{}) bool {
	b, _ := v.(bool)
	return b
}

func asInt64Slice(v interface{}) []int64 {
	items, ok := v.([]interface{})
	if !ok {
		return []int64{}
	}
	out := make([]int64, 0, len(items))
	for _, item := range items {
		out = append(out, asInt64(item))
	}
	return out
}

func asRecords(v interface{}) []Record {
	items, ok := v.([]interface{})
	if !ok {
		return []Record{}
	}
	out := make([]Record, 0, len(items))
	for _, item := range items {
		if rec, ok := item.(map[string]interface{}); ok {
			out = append(out, rec)
		}
	}
	return out
}

func asFieldsMap(v interface{}) map[string]FieldInfo {
	raw, ok := v.(map[string]interface{})
	if !ok {
		return map[string]FieldInfo{}
	}
	out := make(map[string]FieldInfo, len(raw))
	for name, info := range raw {
		if m, ok := info.(map[string]interface{}); ok {
			out[name] = m
		}
	}
	return out
}

func recordID(rec Record) (int64, bool) {
	id := asInt64(rec["id"])
	return id, id > 0
}
