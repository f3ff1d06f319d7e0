package handlers

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ilcreatore32/godoo-mcp/internal/access"
	"github.com/ilcreatore32/godoo-mcp/internal/errs"
	"github.com/ilcreatore32/godoo-mcp/internal/format"
	"github.com/ilcreatore32/godoo-mcp/internal/odoo"
	"github.com/ilcreatore32/godoo-mcp/internal/uri"
)

// Resource serves odoo:// resource reads as formatted text.
type Resource struct {
	base
	formatter    *format.Formatter
	defaultLimit int
	maxLimit     int
}

// NewResource builds the resource handler.
func NewResource(conn Client, ac Access, formatter *format.Formatter, defaultLimit, maxLimit int, logger *zap.Logger) *Resource {
	return &Resource{
		base:         base{conn: conn, access: ac, logger: logger},
		formatter:    formatter,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}
}

// Read resolves an odoo:// URI to its rendered text.
func (r *Resource) Read(ctx context.Context, rawURI string) (string, error) {
	if err := r.requireAuth(); err != nil {
		return "", err
	}

	enabled, err := r.access.EnabledModels(ctx)
	if err != nil {
		return "", r.edge(err)
	}
	// In YOLO mode the enabled list is empty and model gating is skipped.
	var names []string
	for _, m := range enabled {
		names = append(names, m.Model)
	}

	parsed, err := uri.Parse(rawURI, names)
	if err != nil {
		return "", err
	}

	var text string
	switch {
	case parsed.RecordID > 0:
		text, err = r.Record(ctx, parsed.Model, parsed.RecordID)
	case parsed.Operation == uri.OpSearch:
		text, err = r.Search(ctx, parsed.Model, parsed.Params)
	case parsed.Operation == uri.OpBrowse:
		text, err = r.Browse(ctx, parsed.Model, parsed.Params["ids"])
	case parsed.Operation == uri.OpCount:
		text, err = r.Count(ctx, parsed.Model, parsed.Params["domain"])
	case parsed.Operation == uri.OpFields:
		text, err = r.Fields(ctx, parsed.Model)
	default:
		return "", errs.Validation("Unsupported operation: %s", parsed.Operation)
	}
	if err != nil {
		return "", r.edge(err)
	}
	return text, nil
}

// Record renders one record by id, projecting to safe fields.
func (r *Resource) Record(ctx context.Context, model string, id int64) (string, error) {
	if id <= 0 {
		return "", errs.Validation("Record ID must be a positive integer")
	}
	if err := r.access.ValidateModelAccess(ctx, model, access.OpRead); err != nil {
		return "", err
	}

	ids, err := r.conn.Search(ctx, model, odoo.Domain{{"id", "=", id}}, nil)
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", errs.NotFound("Record %d not found in %s", id, model)
	}

	fieldsInfo, err := r.conn.FieldsGet(ctx, model, nil)
	if err != nil {
		return "", err
	}
	records, err := r.conn.Read(ctx, model, []int64{id}, safeFields(fieldsInfo))
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", errs.NotFound("Record %d not found in %s", id, model)
	}
	return r.formatter.FormatRecord(model, records[0], fieldsInfo), nil
}

// Search runs a paginated search and renders the result page.
func (r *Resource) Search(ctx context.Context, model string, params map[string]string) (string, error) {
	if err := r.access.ValidateModelAccess(ctx, model, access.OpRead); err != nil {
		return "", err
	}

	domain, err := decodeDomain(anyString(params["domain"]))
	if err != nil {
		return "", err
	}
	fields, err := decodeFields(anyString(params["fields"]))
	if err != nil {
		return "", err
	}
	limit := clampLimit(atoiDefault(params["limit"], 0), r.defaultLimit, r.maxLimit)
	offset := atoiDefault(params["offset"], 0)
	if offset < 0 {
		offset = 0
	}

	total, err := r.conn.SearchCount(ctx, model, domain)
	if err != nil {
		return "", err
	}
	records, err := r.conn.SearchRead(ctx, model, domain, &odoo.Options{
		Fields: fields,
		Limit:  limit,
		Offset: offset,
		Order:  params["order"],
	})
	if err != nil {
		return "", err
	}
	return r.formatter.FormatSearchResults(model, records, total, limit, offset, domain), nil
}

// Browse renders a set of records given a comma-separated id list, reporting
// ids that do not exist.
func (r *Resource) Browse(ctx context.Context, model, csvIDs string) (string, error) {
	ids := parseCSVIDs(csvIDs)
	if len(ids) == 0 {
		return "", errs.Validation("No valid IDs provided")
	}
	if err := r.access.ValidateModelAccess(ctx, model, access.OpRead); err != nil {
		return "", err
	}

	fieldsInfo, err := r.conn.FieldsGet(ctx, model, nil)
	if err != nil {
		return "", err
	}
	records, err := r.conn.Read(ctx, model, ids, safeFields(fieldsInfo))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Browse: %s (%d of %d requested)\n\n", model, len(records), len(ids))

	found := map[int64]bool{}
	for _, rec := range records {
		if id, ok := rec["id"]; ok {
			found[toID(id)] = true
		}
		b.WriteString(r.formatter.FormatRecord(model, rec, fieldsInfo))
		b.WriteString("\n")
	}

	var missing []string
	for _, id := range ids {
		if !found[id] {
			missing = append(missing, fmt.Sprintf("%d", id))
		}
	}
	if len(missing) > 0 {
		fmt.Fprintf(&b, "Missing IDs: %s\n", strings.Join(missing, ", "))
	}
	return b.String(), nil
}

// Count renders the number of records matching a domain.
func (r *Resource) Count(ctx context.Context, model, rawDomain string) (string, error) {
	if err := r.access.ValidateModelAccess(ctx, model, access.OpRead); err != nil {
		return "", err
	}
	domain, err := decodeDomain(anyString(rawDomain))
	if err != nil {
		return "", err
	}

	total, err := r.conn.SearchCount(ctx, model, domain)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Count: %s\n", model)
	if len(domain) > 0 {
		fmt.Fprintf(&b, "Domain: %s\n", uri.MarshalDomain(domain))
	}
	fmt.Fprintf(&b, "Total count: %d record(s)\n", total)
	return b.String(), nil
}

// Fields renders the model's schema grouped by field type.
func (r *Resource) Fields(ctx context.Context, model string) (string, error) {
	if err := r.access.ValidateModelAccess(ctx, model, access.OpRead); err != nil {
		return "", err
	}
	fieldsInfo, err := r.conn.FieldsGet(ctx, model, nil)
	if err != nil {
		return "", err
	}

	byType := map[string][]string{}
	for name, info := range fieldsInfo {
		t, _ := info["type"].(string)
		if t == "" {
			t = "unknown"
		}
		byType[t] = append(byType[t], name)
	}
	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Strings(types)

	var b strings.Builder
	fmt.Fprintf(&b, "Fields: %s (%d fields)\n", model, len(fieldsInfo))
	for _, t := range types {
		names := byType[t]
		sort.Strings(names)
		fmt.Fprintf(&b, "\n%s:\n", strings.ToUpper(t))
		for _, name := range names {
			b.WriteString(describeField(name, fieldsInfo[name]))
		}
	}
	return b.String(), nil
}

// describeField renders one line (plus option lines) of the fields listing.
func describeField(name string, info odoo.FieldInfo) string {
	var b strings.Builder
	label, _ := info["string"].(string)
	if label == "" {
		label = name
	}
	fmt.Fprintf(&b, "  %s (%s)", name, label)

	var flags []string
	if req, _ := info["required"].(bool); req {
		flags = append(flags, "required")
	}
	if ro, _ := info["readonly"].(bool); ro {
		flags = append(flags, "readonly")
	}
	if len(flags) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(flags, ", "))
	}
	if rel, _ := info["relation"].(string); rel != "" {
		fmt.Fprintf(&b, " -> %s", rel)
	}
	if digits, ok := info["digits"].([]interface{}); ok && len(digits) == 2 {
		fmt.Fprintf(&b, " (precision %v,%v)", digits[0], digits[1])
	}
	b.WriteString("\n")

	if help, _ := info["help"].(string); help != "" {
		fmt.Fprintf(&b, "    %s\n", help)
	}
	if options, ok := info["selection"].([]interface{}); ok && len(options) > 0 {
		if len(options) > 5 {
			fmt.Fprintf(&b, "    %d choices available\n", len(options))
		} else {
			for _, opt := range options {
				if pair, ok := opt.([]interface{}); ok && len(pair) == 2 {
					fmt.Fprintf(&b, "    - %v: %v\n", pair[0], pair[1])
				}
			}
		}
	}
	return b.String()
}

// edge maps internal errors to the resource surface: permission denials pass
// through, transport faults read as validation problems for the client.
func (r *Resource) edge(err error) error {
	switch errs.StatusOf(err) {
	case errs.StatusPermission:
		return err
	case errs.StatusConnection:
		return errs.Validation("Connection error: %s", errMessage(err))
	default:
		return err
	}
}

func anyString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func toID(v interface{}) int64 {
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
