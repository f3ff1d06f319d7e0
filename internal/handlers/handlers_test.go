package handlers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ilcreatore32/godoo-mcp/internal/access"
	"github.com/ilcreatore32/godoo-mcp/internal/errs"
	"github.com/ilcreatore32/godoo-mcp/internal/odoo"
)

// fakeClient implements Client with programmable function fields. A nil
// field means the test does not expect that call.
type fakeClient struct {
	auth     bool
	database string
	version  string

	searchFn      func(model string, domain odoo.Domain, opts *odoo.Options) ([]int64, error)
	readFn        func(model string, ids []int64, fields []string) ([]odoo.Record, error)
	searchReadFn  func(model string, domain odoo.Domain, opts *odoo.Options) ([]odoo.Record, error)
	searchCountFn func(model string, domain odoo.Domain) (int, error)
	fieldsGetFn   func(model string) (map[string]odoo.FieldInfo, error)
	createFn      func(model string, values odoo.Data) (int64, error)
	writeFn       func(model string, ids []int64, values odoo.Data) (bool, error)
	unlinkFn      func(model string, ids []int64) (bool, error)
	executeFn     func(model, action string, ids []int64) (interface{}, error)
}

func (f *fakeClient) Authenticated() bool   { return f.auth }
func (f *fakeClient) Database() string      { return f.database }
func (f *fakeClient) ServerVersion() string { return f.version }

func (f *fakeClient) BuildRecordURL(model string, id int64) string {
	return fmt.Sprintf("http://odoo.test/odoo/%s/%d", model, id)
}

func (f *fakeClient) Search(_ context.Context, model string, domain odoo.Domain, opts *odoo.Options) ([]int64, error) {
	if f.searchFn == nil {
		return nil, errs.Server("unexpected Search(%s)", model)
	}
	return f.searchFn(model, domain, opts)
}

func (f *fakeClient) Read(_ context.Context, model string, ids []int64, fields []string) ([]odoo.Record, error) {
	if f.readFn == nil {
		return nil, errs.Server("unexpected Read(%s)", model)
	}
	return f.readFn(model, ids, fields)
}

func (f *fakeClient) SearchRead(_ context.Context, model string, domain odoo.Domain, opts *odoo.Options) ([]odoo.Record, error) {
	if f.searchReadFn == nil {
		return nil, errs.Server("unexpected SearchRead(%s)", model)
	}
	return f.searchReadFn(model, domain, opts)
}

func (f *fakeClient) SearchCount(_ context.Context, model string, domain odoo.Domain) (int, error) {
	if f.searchCountFn == nil {
		return 0, errs.Server("unexpected SearchCount(%s)", model)
	}
	return f.searchCountFn(model, domain)
}

func (f *fakeClient) FieldsGet(_ context.Context, model string, _ []string) (map[string]odoo.FieldInfo, error) {
	if f.fieldsGetFn == nil {
		return nil, errs.Server("unexpected FieldsGet(%s)", model)
	}
	return f.fieldsGetFn(model)
}

func (f *fakeClient) Create(_ context.Context, model string, values odoo.Data) (int64, error) {
	if f.createFn == nil {
		return 0, errs.Server("unexpected Create(%s)", model)
	}
	return f.createFn(model, values)
}

func (f *fakeClient) Write(_ context.Context, model string, ids []int64, values odoo.Data) (bool, error) {
	if f.writeFn == nil {
		return false, errs.Server("unexpected Write(%s)", model)
	}
	return f.writeFn(model, ids, values)
}

func (f *fakeClient) Unlink(_ context.Context, model string, ids []int64) (bool, error) {
	if f.unlinkFn == nil {
		return false, errs.Server("unexpected Unlink(%s)", model)
	}
	return f.unlinkFn(model, ids)
}

func (f *fakeClient) Execute(_ context.Context, model, action string, ids []int64) (interface{}, error) {
	if f.executeFn == nil {
		return nil, errs.Server("unexpected Execute(%s.%s)", model, action)
	}
	return f.executeFn(model, action, ids)
}

// fakeAccess implements Access with a static model list and a denial map
// keyed "model/op".
type fakeAccess struct {
	models []access.ModelInfo
	perms  map[string]access.ModelPermissions
	deny   map[string]string
}

func (f *fakeAccess) EnabledModels(context.Context) ([]access.ModelInfo, error) {
	return f.models, nil
}

func (f *fakeAccess) ValidateModelAccess(_ context.Context, model, op string) error {
	if reason, ok := f.deny[model+"/"+op]; ok {
		return errs.Permission("Access denied: %s", reason)
	}
	return nil
}

func (f *fakeAccess) AllPermissions(context.Context) (map[string]access.ModelPermissions, error) {
	return f.perms, nil
}

// recordingSink captures log context traffic; fail makes every call error.
type recordingSink struct {
	infos    []string
	warnings []string
	fail     bool
}

func (s *recordingSink) Info(_ context.Context, msg string) error {
	s.infos = append(s.infos, msg)
	if s.fail {
		return fmt.Errorf("sink closed")
	}
	return nil
}

func (s *recordingSink) Warning(_ context.Context, msg string) error {
	s.warnings = append(s.warnings, msg)
	if s.fail {
		return fmt.Errorf("sink closed")
	}
	return nil
}

func (s *recordingSink) Progress(context.Context, float64, float64) error {
	if s.fail {
		return fmt.Errorf("sink closed")
	}
	return nil
}

func testLogger() *zap.Logger { return zap.NewNop() }
