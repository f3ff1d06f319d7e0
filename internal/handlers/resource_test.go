package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilcreatore32/godoo-mcp/internal/access"
	"github.com/ilcreatore32/godoo-mcp/internal/errs"
	"github.com/ilcreatore32/godoo-mcp/internal/format"
	"github.com/ilcreatore32/godoo-mcp/internal/odoo"
)

func newTestResource(conn Client, ac Access) *Resource {
	return NewResource(conn, ac, format.New(), 10, 100, testLogger())
}

func partnerAccess() *fakeAccess {
	return &fakeAccess{models: []access.ModelInfo{{Model: "res.partner", Name: "Contact"}}}
}

func TestReadRecordURI(t *testing.T) {
	conn := &fakeClient{
		auth: true,
		searchFn: func(model string, domain odoo.Domain, _ *odoo.Options) ([]int64, error) {
			assert.Equal(t, odoo.Domain{{"id", "=", int64(1)}}, domain)
			return []int64{1}, nil
		},
		fieldsGetFn: func(string) (map[string]odoo.FieldInfo, error) {
			return map[string]odoo.FieldInfo{
				"name":  {"type": "char", "string": "Name"},
				"email": {"type": "char", "string": "Email"},
			}, nil
		},
		readFn: func(_ string, ids []int64, fields []string) ([]odoo.Record, error) {
			assert.Equal(t, []string{"email", "name"}, fields)
			return []odoo.Record{{"id": int64(1), "name": "Azure Interior", "email": "azure@example.com"}}, nil
		},
	}

	out, err := newTestResource(conn, partnerAccess()).Read(context.Background(), "odoo://res.partner/record/1")
	require.NoError(t, err)
	assert.Contains(t, out, "Resource: res.partner/record/1")
	assert.Contains(t, out, "Name: Azure Interior")
}

func TestRecordProjectsSafeFieldsOnly(t *testing.T) {
	var gotFields []string
	conn := &fakeClient{
		auth:     true,
		searchFn: func(string, odoo.Domain, *odoo.Options) ([]int64, error) { return []int64{1}, nil },
		fieldsGetFn: func(string) (map[string]odoo.FieldInfo, error) {
			return map[string]odoo.FieldInfo{
				"name":        {"type": "char"},
				"image_1920":  {"type": "binary"},
				"comment":     {"type": "html"},
				"_barcode":    {"type": "char"},
				"__internal":  {"type": "char"},
				"customer_id": {"type": "many2one", "relation": "res.partner"},
			}, nil
		},
		readFn: func(_ string, _ []int64, fields []string) ([]odoo.Record, error) {
			gotFields = fields
			return []odoo.Record{{"id": int64(1), "name": "A"}}, nil
		},
	}

	_, err := newTestResource(conn, partnerAccess()).Record(context.Background(), "res.partner", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"customer_id", "name"}, gotFields)
}

func TestRecordNotFound(t *testing.T) {
	conn := &fakeClient{
		auth:     true,
		searchFn: func(string, odoo.Domain, *odoo.Options) ([]int64, error) { return nil, nil },
	}

	_, err := newTestResource(conn, partnerAccess()).Record(context.Background(), "res.partner", 42)
	assert.True(t, errs.IsKind(err, errs.StatusNotFound))
}

func TestSearchClampsLimitFromQuery(t *testing.T) {
	var gotOpts *odoo.Options
	conn := &fakeClient{
		auth:          true,
		searchCountFn: func(string, odoo.Domain) (int, error) { return 0, nil },
		searchReadFn: func(_ string, _ odoo.Domain, opts *odoo.Options) ([]odoo.Record, error) {
			gotOpts = opts
			return nil, nil
		},
	}

	out, err := newTestResource(conn, partnerAccess()).Read(context.Background(), "odoo://res.partner/search?limit=9999")
	require.NoError(t, err)
	assert.Equal(t, 100, gotOpts.Limit)
	assert.Contains(t, out, "No records found")
}

func TestBrowseReportsMissingIDs(t *testing.T) {
	conn := &fakeClient{
		auth: true,
		fieldsGetFn: func(string) (map[string]odoo.FieldInfo, error) {
			return map[string]odoo.FieldInfo{"name": {"type": "char", "string": "Name"}}, nil
		},
		readFn: func(_ string, ids []int64, _ []string) ([]odoo.Record, error) {
			assert.Equal(t, []int64{1, 2, 3}, ids)
			return []odoo.Record{{"id": int64(1), "name": "A"}, {"id": int64(3), "name": "C"}}, nil
		},
	}

	out, err := newTestResource(conn, partnerAccess()).Browse(context.Background(), "res.partner", "1, 2, x, -5, 3")
	require.NoError(t, err)
	assert.Contains(t, out, "2 of 3 requested")
	assert.Contains(t, out, "Missing IDs: 2")
}

func TestBrowseRejectsEmptyIDList(t *testing.T) {
	r := newTestResource(&fakeClient{auth: true}, partnerAccess())

	_, err := r.Browse(context.Background(), "res.partner", "x, -1, zero")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No valid IDs provided")
}

func TestCountRendering(t *testing.T) {
	conn := &fakeClient{
		auth: true,
		searchCountFn: func(_ string, domain odoo.Domain) (int, error) {
			assert.Equal(t, odoo.Domain{{"is_company", "=", true}}, domain)
			return 3, nil
		},
	}

	out, err := newTestResource(conn, partnerAccess()).Count(context.Background(), "res.partner", `[["is_company", "=", true]]`)
	require.NoError(t, err)
	assert.Contains(t, out, "Total count: 3 record(s)")
	assert.Contains(t, out, "is_company")
}

func TestFieldsGroupingAndSelectionSummary(t *testing.T) {
	conn := &fakeClient{
		auth: true,
		fieldsGetFn: func(string) (map[string]odoo.FieldInfo, error) {
			return map[string]odoo.FieldInfo{
				"name": {"type": "char", "string": "Name", "required": true},
				"state": {"type": "selection", "string": "Status", "selection": []interface{}{
					[]interface{}{"draft", "Draft"},
					[]interface{}{"sent", "Sent"},
				}},
				"priority": {"type": "selection", "string": "Priority", "selection": []interface{}{
					[]interface{}{"0", "Low"}, []interface{}{"1", "Normal"}, []interface{}{"2", "High"},
					[]interface{}{"3", "Urgent"}, []interface{}{"4", "Critical"}, []interface{}{"5", "Blocker"},
				}},
				"partner_id": {"type": "many2one", "string": "Customer", "relation": "res.partner"},
			}, nil
		},
	}

	out, err := newTestResource(conn, partnerAccess()).Fields(context.Background(), "res.partner")
	require.NoError(t, err)
	assert.Contains(t, out, "CHAR:")
	assert.Contains(t, out, "SELECTION:")
	assert.Contains(t, out, "[required]")
	assert.Contains(t, out, "-> res.partner")
	assert.Contains(t, out, "- draft: Draft")
	assert.Contains(t, out, "6 choices available")
	assert.NotContains(t, out, "- 0: Low")
}

func TestReadRequiresAuthentication(t *testing.T) {
	r := newTestResource(&fakeClient{auth: false}, partnerAccess())

	_, err := r.Read(context.Background(), "odoo://res.partner/search")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Not authenticated with Odoo")
}

func TestReadRejectsDisabledModel(t *testing.T) {
	r := newTestResource(&fakeClient{auth: true}, partnerAccess())

	_, err := r.Read(context.Background(), "odoo://sale.order/search")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not enabled")
}

func TestAccessDeniedPassesThrough(t *testing.T) {
	ac := partnerAccess()
	ac.deny = map[string]string{"res.partner/read": "read not allowed on res.partner"}
	r := newTestResource(&fakeClient{auth: true}, ac)

	_, err := r.Read(context.Background(), "odoo://res.partner/count")
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.StatusPermission))
	assert.Contains(t, err.Error(), "Access denied")
}

func TestConnectionErrorsBecomeValidationAtResourceEdge(t *testing.T) {
	conn := &fakeClient{
		auth: true,
		searchCountFn: func(string, odoo.Domain) (int, error) {
			return 0, errs.Connection("Operation failed: server unavailable")
		},
	}
	r := newTestResource(conn, partnerAccess())

	_, err := r.Read(context.Background(), "odoo://res.partner/count")
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.StatusValidation))
	assert.Contains(t, err.Error(), "Connection error: Operation failed: server unavailable")
}
