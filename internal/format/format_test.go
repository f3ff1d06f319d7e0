package format

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ilcreatore32/godoo-mcp/internal/odoo"
)

func TestFormatScalarFields(t *testing.T) {
	f := New()

	tests := []struct {
		name  string
		info  odoo.FieldInfo
		value interface{}
		want  string
	}{
		{"name", odoo.FieldInfo{"type": "char", "string": "Name"}, "Azure Interior", "Name: Azure Interior"},
		{"sequence", odoo.FieldInfo{"type": "integer", "string": "Sequence"}, int64(10), "Sequence: 10"},
		{"date_order", odoo.FieldInfo{"type": "datetime", "string": "Order Date"}, "2024-05-01 10:30:00", "Order Date: 2024-05-01 10:30:00"},
		{"state", odoo.FieldInfo{"type": "selection", "string": "Status"}, "draft", "Status: draft"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, f.FormatField(tt.name, tt.value, tt.info))
	}
}

func TestFormatFloatPrecision(t *testing.T) {
	f := New()

	got := f.FormatField("weight", 12.3456, odoo.FieldInfo{"type": "float", "string": "Weight"})
	assert.Equal(t, "Weight: 12.35", got)

	info := odoo.FieldInfo{
		"type":   "float",
		"string": "Quantity",
		"digits": []interface{}{int64(16), int64(3)},
	}
	assert.Equal(t, "Quantity: 2.500", f.FormatField("qty", 2.5, info))
}

func TestFormatMonetary(t *testing.T) {
	f := New()

	got := f.FormatField("amount_total", 1234.56, odoo.FieldInfo{"type": "monetary", "string": "Total"})
	assert.Equal(t, "Total: 1234.6", got)

	info := odoo.FieldInfo{"type": "monetary", "string": "Total", "currency_symbol": "$"}
	assert.Equal(t, "Total: $ 149.5", f.FormatField("amount_total", 149.5, info))
}

func TestFormatBoolean(t *testing.T) {
	f := New()
	info := odoo.FieldInfo{"type": "boolean", "string": "Active"}

	assert.Equal(t, "Active: Yes", f.FormatField("active", true, info))
	assert.Equal(t, "Active: No", f.FormatField("active", false, info))
}

func TestFormatMany2one(t *testing.T) {
	f := New()
	info := odoo.FieldInfo{"type": "many2one", "string": "Customer", "relation": "res.partner"}

	got := f.FormatField("partner_id", []interface{}{int64(7), "Deco Addict"}, info)
	assert.Equal(t, "Customer: Deco Addict [odoo://res.partner/record/7]", got)

	got = f.FormatField("partner_id", int64(7), info)
	assert.Equal(t, "Customer: Record #7 [odoo://res.partner/record/7]", got)

	got = f.FormatField("partner_id", false, info)
	assert.Equal(t, "Customer: Not set", got)
}

func TestFormatX2many(t *testing.T) {
	f := New()
	info := odoo.FieldInfo{"type": "one2many", "string": "Order Lines", "relation": "sale.order.line"}

	got := f.FormatField("order_line", []interface{}{int64(1), int64(2), int64(3)}, info)
	assert.Equal(t, "Order Lines: 3 related records [odoo://sale.order.line/browse?ids=1,2,3]", got)

	got = f.FormatField("order_line", []interface{}{}, info)
	assert.Equal(t, "Order Lines: 0 related records", got)
}

func TestFormatBinary(t *testing.T) {
	f := New()
	info := odoo.FieldInfo{"type": "binary", "string": "Image"}

	payload := strings.Repeat("A", 2048)
	got := f.FormatField("image_1920", payload, info)
	assert.Equal(t, "Image: [Binary data, 1.5 KB]", got)
}

func TestFormatFieldUnknownType(t *testing.T) {
	f := New()
	got := f.FormatField("raw", "something", odoo.FieldInfo{"type": "json", "string": "Raw"})
	assert.Equal(t, "Raw: something", got)
}

func TestFormatFieldLabelFallback(t *testing.T) {
	f := New()
	got := f.FormatField("x_custom", "v", odoo.FieldInfo{"type": "char"})
	assert.Equal(t, "x_custom: v", got)
}

func TestFormatRecordOrderingAndExclusions(t *testing.T) {
	f := New()
	record := odoo.Record{
		"id":            int64(42),
		"name":          "Azure Interior",
		"email":         "azure@example.com",
		"active":        true,
		"create_uid":    []interface{}{int64(1), "Admin"},
		"write_date":    "2024-01-01 00:00:00",
		"__last_update": "2024-01-01 00:00:00",
	}
	fieldsInfo := map[string]odoo.FieldInfo{
		"name":   {"type": "char", "string": "Name"},
		"email":  {"type": "char", "string": "Email"},
		"active": {"type": "boolean", "string": "Active"},
	}

	out := f.FormatRecord("res.partner", record, fieldsInfo)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")

	assert.Equal(t, "Resource: res.partner/record/42", lines[0])
	assert.Equal(t, "Name: Azure Interior", lines[1])
	assert.Equal(t, []string{"Active: Yes", "Email: azure@example.com"}, lines[2:])
	assert.NotContains(t, out, "create_uid")
	assert.NotContains(t, out, "__last_update")
}

func TestFormatSearchResultsPagination(t *testing.T) {
	f := New()
	records := []odoo.Record{
		{"id": int64(11), "name": "First"},
		{"id": int64(12), "name": "Second"},
	}
	domain := odoo.Domain{{"is_company", "=", true}}

	out := f.FormatSearchResults("res.partner", records, 25, 2, 2, domain)

	assert.Contains(t, out, "Search Results: res.partner (25 total matches)")
	assert.Contains(t, out, "Showing: Records 3-4 of 25")
	assert.Contains(t, out, "1. First [odoo://res.partner/record/11]")
	assert.Contains(t, out, "2. Second [odoo://res.partner/record/12]")
	assert.Contains(t, out, "Next page: ")
	assert.Contains(t, out, "Previous page: ")
	assert.Contains(t, out, "offset=4")
	assert.Contains(t, out, "offset=0")
}

func TestFormatSearchResultsFirstPage(t *testing.T) {
	f := New()
	records := []odoo.Record{{"id": int64(1), "name": "Only"}}

	out := f.FormatSearchResults("res.partner", records, 1, 10, 0, nil)
	assert.NotContains(t, out, "Next page")
	assert.NotContains(t, out, "Previous page")
}

func TestFormatSearchResultsEmpty(t *testing.T) {
	f := New()
	out := f.FormatSearchResults("res.partner", nil, 0, 10, 0, nil)
	assert.Contains(t, out, "No records found")
}

func TestRecordNameFallbacks(t *testing.T) {
	assert.Equal(t, "ACME", RecordName(odoo.Record{"id": int64(1), "name": "ACME"}))
	assert.Equal(t, "SO0042", RecordName(odoo.Record{"id": int64(2), "number": "SO0042"}))
	assert.Equal(t, "Record #3", RecordName(odoo.Record{"id": int64(3)}))
}
