// Package format renders Odoo field values and records as human-readable
// text for the MCP resource surface, embedding odoo:// URIs so clients can
// follow relations.
package format

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ilcreatore32/godoo-mcp/internal/odoo"
	"github.com/ilcreatore32/godoo-mcp/internal/uri"
)

// Func renders one field value. info is the field's fields_get metadata and
// may be nil when the schema is unknown.
type Func func(label string, value interface{}, info odoo.FieldInfo) string

// Formatter dispatches on the Odoo field type name. The registry replaces
// the class-per-type design of classic formatters: formatters are plain
// functions, relational ones read the relation out of the field metadata.
type Formatter struct {
	registry map[string]Func
}

// New builds a Formatter with every standard Odoo field type registered.
func New() *Formatter {
	f := &Formatter{registry: map[string]Func{}}
	for _, t := range []string{"char", "text", "integer", "date", "datetime", "selection"} {
		f.registry[t] = formatScalar
	}
	f.registry["float"] = formatFloat
	f.registry["monetary"] = formatMonetary
	f.registry["boolean"] = formatBoolean
	f.registry["many2one"] = formatMany2one
	f.registry["one2many"] = formatX2many
	f.registry["many2many"] = formatX2many
	f.registry["binary"] = formatBinary
	return f
}

// Register installs or replaces the formatter of a field type.
func (f *Formatter) Register(fieldType string, fn Func) {
	f.registry[fieldType] = fn
}

// FormatField renders one field. Unknown types fall back to a literal
// rendering; nil and false values of non-boolean fields read as "Not set".
func (f *Formatter) FormatField(name string, value interface{}, info odoo.FieldInfo) string {
	fieldType, _ := info["type"].(string)
	label := fieldLabel(name, info)

	if fieldType != "boolean" && isAbsent(value) {
		return fmt.Sprintf("%s: Not set", label)
	}
	if fn, ok := f.registry[fieldType]; ok {
		return fn(label, value, info)
	}
	return fmt.Sprintf("%s: %v", label, value)
}

// technicalFields are excluded from record rendering.
var technicalFields = map[string]bool{
	"id": true, "__last_update": true,
	"create_uid": true, "create_date": true,
	"write_uid": true, "write_date": true,
	"message_ids": true, "message_follower_ids": true,
}

// priorityFields lead the rendering order of a record.
var priorityFields = []string{"name", "display_name", "code", "reference", "number"}

// FormatRecord renders a full record: a resource header followed by one line
// per field, identity fields first, the rest alphabetical.
func (f *Formatter) FormatRecord(model string, record odoo.Record, fieldsInfo map[string]odoo.FieldInfo) string {
	var b strings.Builder
	id := int64(0)
	if raw, ok := record["id"]; ok {
		id = toInt64(raw)
	}
	fmt.Fprintf(&b, "Resource: %s/record/%d\n", model, id)

	seen := map[string]bool{}
	ordered := make([]string, 0, len(record))
	for _, name := range priorityFields {
		if _, ok := record[name]; ok {
			ordered = append(ordered, name)
			seen[name] = true
		}
	}
	rest := make([]string, 0, len(record))
	for name := range record {
		if !seen[name] && !technicalFields[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	ordered = append(ordered, rest...)

	for _, name := range ordered {
		b.WriteString(f.FormatField(name, record[name], fieldsInfo[name]))
		b.WriteString("\n")
	}
	return b.String()
}

// FormatSearchResults renders a page of search results with pagination
// lines and next/previous URIs carrying the same domain and limit.
func (f *Formatter) FormatSearchResults(model string, records []odoo.Record, total, limit, offset int, domain odoo.Domain) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Search Results: %s (%d total matches)\n", model, total)

	if len(records) == 0 {
		b.WriteString("No records found\n")
		return b.String()
	}

	from := offset + 1
	to := offset + len(records)
	fmt.Fprintf(&b, "Showing: Records %d-%d of %d\n\n", from, to, total)

	for i, rec := range records {
		id := toInt64(rec["id"])
		fmt.Fprintf(&b, "%d. %s [%s]\n", i+1, RecordName(rec), uri.RecordURI(model, id))
	}

	pageParams := func(pageOffset int) map[string]interface{} {
		params := map[string]interface{}{
			"limit":  limit,
			"offset": pageOffset,
		}
		if len(domain) > 0 {
			params["domain"] = uri.MarshalDomain(domain)
		}
		return params
	}
	if to < total {
		fmt.Fprintf(&b, "\nNext page: %s\n", uri.Build(model, uri.OpSearch, pageParams(offset+limit)))
	}
	if offset > 0 {
		prev := offset - limit
		if prev < 0 {
			prev = 0
		}
		fmt.Fprintf(&b, "Previous page: %s\n", uri.Build(model, uri.OpSearch, pageParams(prev)))
	}
	return b.String()
}

// RecordName picks a display name for a record, falling back through the
// common identity fields down to "Record #id".
func RecordName(rec odoo.Record) string {
	for _, field := range priorityFields {
		if v, ok := rec[field]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return fmt.Sprintf("Record #%d", toInt64(rec["id"]))
}

// --- per-type formatters ---------------------------------------------------

func formatScalar(label string, value interface{}, _ odoo.FieldInfo) string {
	return fmt.Sprintf("%s: %v", label, value)
}

func formatFloat(label string, value interface{}, info odoo.FieldInfo) string {
	decimals := 2
	if d, ok := digitsPrecision(info); ok {
		decimals = d
	}
	return fmt.Sprintf("%s: %.*f", label, decimals, toFloat64(value))
}

func formatMonetary(label string, value interface{}, info odoo.FieldInfo) string {
	symbol := ""
	if s, ok := info["currency_symbol"].(string); ok && s != "" {
		symbol = s + " "
	}
	return fmt.Sprintf("%s: %s%.1f", label, symbol, toFloat64(value))
}

func formatBoolean(label string, value interface{}, _ odoo.FieldInfo) string {
	if b, ok := value.(bool); ok && b {
		return fmt.Sprintf("%s: Yes", label)
	}
	return fmt.Sprintf("%s: No", label)
}

func formatMany2one(label string, value interface{}, info odoo.FieldInfo) string {
	relation, _ := info["relation"].(string)
	switch v := value.(type) {
	case []interface{}:
		if len(v) == 2 {
			id := toInt64(v[0])
			name := fmt.Sprintf("%v", v[1])
			if relation != "" {
				return fmt.Sprintf("%s: %s [%s]", label, name, uri.RecordURI(relation, id))
			}
			return fmt.Sprintf("%s: %s", label, name)
		}
	case int64, int, float64:
		id := toInt64(v)
		if relation != "" {
			return fmt.Sprintf("%s: Record #%d [%s]", label, id, uri.RecordURI(relation, id))
		}
		return fmt.Sprintf("%s: Record #%d", label, id)
	}
	return fmt.Sprintf("%s: %v", label, value)
}

func formatX2many(label string, value interface{}, info odoo.FieldInfo) string {
	ids, ok := value.([]interface{})
	if !ok || len(ids) == 0 {
		return fmt.Sprintf("%s: 0 related records", label)
	}

	relation, _ := info["relation"].(string)
	if relation == "" {
		return fmt.Sprintf("%s: %d related records", label, len(ids))
	}

	csv := make([]string, 0, len(ids))
	for _, id := range ids {
		csv = append(csv, fmt.Sprintf("%d", toInt64(id)))
	}
	return fmt.Sprintf("%s: %d related records [odoo://%s/browse?ids=%s]",
		label, len(ids), relation, strings.Join(csv, ","))
}

func formatBinary(label string, value interface{}, _ odoo.FieldInfo) string {
	if s, ok := value.(string); ok && s != "" {
		// Estimate the decoded size of the base64 payload.
		size := int64(len(s)) * 3 / 4
		return fmt.Sprintf("%s: [Binary data, %s]", label, humanSize(size))
	}
	return fmt.Sprintf("%s: [Binary data]", label)
}

// --- helpers ---------------------------------------------------------------

func fieldLabel(name string, info odoo.FieldInfo) string {
	if label, ok := info["string"].(string); ok && label != "" {
		return label
	}
	return name
}

func isAbsent(value interface{}) bool {
	if value == nil {
		return true
	}
	b, ok := value.(bool)
	return ok && !b
}

func digitsPrecision(info odoo.FieldInfo) (int, bool) {
	digits, ok := info["digits"].([]interface{})
	if !ok || len(digits) != 2 {
		return 0, false
	}
	return int(toInt64(digits[1])), true
}

func toInt64(v interface{}) int64 {
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

func toFloat64(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	default:
		return 0
	}
}

func humanSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMG"[exp])
}
