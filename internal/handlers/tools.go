package handlers

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ilcreatore32/godoo-mcp/internal/access"
	"github.com/ilcreatore32/godoo-mcp/internal/config"
	"github.com/ilcreatore32/godoo-mcp/internal/errs"
	"github.com/ilcreatore32/godoo-mcp/internal/odoo"
)

// Tools implements the structured-result MCP tools.
type Tools struct {
	base
	cfg *config.Config
}

// NewTools builds the tool handler.
func NewTools(conn Client, ac Access, cfg *config.Config, logger *zap.Logger) *Tools {
	return &Tools{base: base{conn: conn, access: ac, logger: logger}, cfg: cfg}
}

// SearchResult is the envelope returned by SearchRecords.
type SearchResult struct {
	Model   string        `json:"model"`
	Total   int           `json:"total"`
	Limit   int           `json:"limit"`
	Offset  int           `json:"offset"`
	Records []odoo.Record `json:"records"`
}

// RecordResult is the envelope returned by GetRecord.
type RecordResult struct {
	Record   odoo.Record    `json:"record"`
	Metadata RecordMetadata `json:"metadata"`
}

// RecordMetadata describes how the field projection was chosen.
type RecordMetadata struct {
	Model                string `json:"model"`
	FieldSelectionMethod string `json:"field_selection_method"`
}

// RecordRef identifies a record in mutation results.
type RecordRef struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
}

// CreateResult is the envelope returned by CreateRecord.
type CreateResult struct {
	Success bool      `json:"success"`
	Record  RecordRef `json:"record"`
	URL     string    `json:"url"`
	Message string    `json:"message"`
}

// UpdateResult is the envelope returned by UpdateRecord.
type UpdateResult struct {
	Success bool      `json:"success"`
	Record  RecordRef `json:"record"`
	URL     string    `json:"url"`
	Message string    `json:"message"`
}

// DeleteResult is the envelope returned by DeleteRecord.
type DeleteResult struct {
	Success     bool   `json:"success"`
	DeletedID   int64  `json:"deleted_id"`
	DisplayName string `json:"display_name"`
	Message     string `json:"message"`
}

// ModelEntry is one row of a ModelsResult.
type ModelEntry struct {
	Model      string          `json:"model"`
	Name       string          `json:"name"`
	Operations map[string]bool `json:"operations"`
}

// ModelsResult is the envelope returned by ListModels.
type ModelsResult struct {
	Models   []ModelEntry           `json:"models"`
	YoloMode map[string]interface{} `json:"yolo_mode,omitempty"`
}

// ResourceTemplate describes one odoo:// template for client introspection.
type ResourceTemplate struct {
	URITemplate string `json:"uri_template"`
	Description string `json:"description"`
}

// SearchRecords searches a model and returns matching records. The domain
// may be a native list, JSON, or a Python literal; fields may be a native
// list, JSON array, or CSV.
func (t *Tools) SearchRecords(ctx context.Context, sink LogContext, model string, rawDomain, rawFields interface{}, limit, offset int, order string) (*SearchResult, error) {
	if err := t.requireAuth(); err != nil {
		return nil, err
	}
	if err := t.access.ValidateModelAccess(ctx, model, access.OpRead); err != nil {
		return nil, err
	}

	domain, err := decodeDomain(rawDomain)
	if err != nil {
		return nil, err
	}
	fields, err := decodeFields(rawFields)
	if err != nil {
		return nil, err
	}
	if len(fields) == 1 && fields[0] == "__all__" {
		t.logWarning(ctx, sink, "Requesting all fields can be slow on wide models; prefer an explicit field list")
		fields = nil
	}

	limit = clampLimit(limit, t.cfg.DefaultLimit, t.cfg.MaxLimit)
	if offset < 0 {
		offset = 0
	}

	total, err := t.conn.SearchCount(ctx, model, domain)
	if err != nil {
		return nil, err
	}
	t.logProgress(ctx, sink, 1, 2)

	records, err := t.conn.SearchRead(ctx, model, domain, &odoo.Options{
		Fields: fields,
		Limit:  limit,
		Offset: offset,
		Order:  order,
	})
	if err != nil {
		return nil, err
	}
	t.logProgress(ctx, sink, 2, 2)

	if records == nil {
		records = []odoo.Record{}
	}
	return &SearchResult{Model: model, Total: total, Limit: limit, Offset: offset, Records: records}, nil
}

// GetRecord reads one record; when fields are omitted a compact smart
// default projection is chosen from the model schema.
func (t *Tools) GetRecord(ctx context.Context, sink LogContext, model string, id int64, rawFields interface{}) (*RecordResult, error) {
	if err := t.requireAuth(); err != nil {
		return nil, err
	}
	if id <= 0 {
		return nil, errs.Validation("Record ID must be a positive integer")
	}
	if err := t.access.ValidateModelAccess(ctx, model, access.OpRead); err != nil {
		return nil, err
	}

	fields, err := decodeFields(rawFields)
	if err != nil {
		return nil, err
	}

	method := "explicit"
	if len(fields) == 0 {
		fieldsInfo, err := t.conn.FieldsGet(ctx, model, nil)
		if err != nil {
			return nil, err
		}
		fields = smartDefaultFields(fieldsInfo)
		method = "smart_defaults"
	}

	records, err := t.conn.Read(ctx, model, []int64{id}, fields)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errs.NotFound("Record %d not found in %s", id, model)
	}
	return &RecordResult{
		Record:   records[0],
		Metadata: RecordMetadata{Model: model, FieldSelectionMethod: method},
	}, nil
}

// yoloAllowlist holds technical models exposed by ListModels in YOLO mode
// despite their prefix.
var yoloAllowlist = map[string]bool{"ir.attachment": true}

// ListModels enumerates the models exposed over MCP. In YOLO mode the
// enabled-model REST endpoint is bypassed and ir.model is queried directly.
func (t *Tools) ListModels(ctx context.Context, sink LogContext) (*ModelsResult, error) {
	if err := t.requireAuth(); err != nil {
		return nil, err
	}
	if t.cfg.YoloMode != config.YoloOff {
		return t.listModelsYolo(ctx)
	}

	models, err := t.access.EnabledModels(ctx)
	if err != nil {
		return nil, err
	}
	perms, err := t.access.AllPermissions(ctx)
	if err != nil {
		return nil, err
	}

	result := &ModelsResult{Models: make([]ModelEntry, 0, len(models))}
	for _, m := range models {
		p := perms[m.Model]
		result.Models = append(result.Models, ModelEntry{
			Model: m.Model,
			Name:  m.Name,
			Operations: map[string]bool{
				"read":   p.CanRead,
				"write":  p.CanWrite,
				"create": p.CanCreate,
				"unlink": p.CanUnlink,
			},
		})
	}
	t.logInfo(ctx, sink, fmt.Sprintf("Listed %d enabled models", len(result.Models)))
	return result, nil
}

func (t *Tools) listModelsYolo(ctx context.Context) (*ModelsResult, error) {
	records, err := t.conn.SearchRead(ctx, string(odoo.ModelIrModel), odoo.Domain{{"transient", "=", false}}, &odoo.Options{
		Fields: []string{"model", "name"},
		Order:  "model asc",
	})
	if err != nil {
		return nil, err
	}

	write := t.cfg.YoloMode == config.YoloTrue
	result := &ModelsResult{
		YoloMode: map[string]interface{}{
			"enabled": true,
			"level":   string(t.cfg.YoloMode),
			"operations": map[string]bool{
				"read": true, "write": write, "create": write, "unlink": write,
			},
		},
	}
	for _, rec := range records {
		model, _ := rec["model"].(string)
		if model == "" {
			continue
		}
		if (strings.HasPrefix(model, "ir.") || strings.HasPrefix(model, "base.")) && !yoloAllowlist[model] {
			continue
		}
		name, _ := rec["name"].(string)
		result.Models = append(result.Models, ModelEntry{
			Model: model,
			Name:  name,
			Operations: map[string]bool{
				"read": true, "write": write, "create": write, "unlink": write,
			},
		})
	}
	sort.Slice(result.Models, func(i, j int) bool { return result.Models[i].Model < result.Models[j].Model })
	return result, nil
}

// CreateRecord creates a record and reports its id, display name and URL.
func (t *Tools) CreateRecord(ctx context.Context, sink LogContext, model string, values odoo.Data) (*CreateResult, error) {
	if err := t.requireAuth(); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, errs.Validation("Values must not be empty")
	}
	if err := t.access.ValidateModelAccess(ctx, model, access.OpCreate); err != nil {
		return nil, err
	}

	id, err := t.conn.Create(ctx, model, values)
	if err != nil {
		return nil, err
	}
	t.logInfo(ctx, sink, fmt.Sprintf("Created %s record %d", model, id))

	return &CreateResult{
		Success: true,
		Record:  RecordRef{ID: id, DisplayName: t.displayName(ctx, model, id)},
		URL:     t.conn.BuildRecordURL(model, id),
		Message: fmt.Sprintf("Created %s record %d", model, id),
	}, nil
}

// UpdateRecord writes values to an existing record.
func (t *Tools) UpdateRecord(ctx context.Context, sink LogContext, model string, id int64, values odoo.Data) (*UpdateResult, error) {
	if err := t.requireAuth(); err != nil {
		return nil, err
	}
	if id <= 0 {
		return nil, errs.Validation("Record ID must be a positive integer")
	}
	if len(values) == 0 {
		return nil, errs.Validation("Values must not be empty")
	}
	if err := t.access.ValidateModelAccess(ctx, model, access.OpWrite); err != nil {
		return nil, err
	}

	existing, err := t.conn.Read(ctx, model, []int64{id}, []string{"id"})
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		return nil, errs.Validation("Record not found")
	}

	if _, err := t.conn.Write(ctx, model, []int64{id}, values); err != nil {
		return nil, err
	}
	t.logInfo(ctx, sink, fmt.Sprintf("Updated %s record %d", model, id))

	return &UpdateResult{
		Success: true,
		Record:  RecordRef{ID: id, DisplayName: t.displayName(ctx, model, id)},
		URL:     t.conn.BuildRecordURL(model, id),
		Message: fmt.Sprintf("Updated %s record %d", model, id),
	}, nil
}

// DeleteRecord removes a record, reporting the display name it had.
func (t *Tools) DeleteRecord(ctx context.Context, sink LogContext, model string, id int64) (*DeleteResult, error) {
	if err := t.requireAuth(); err != nil {
		return nil, err
	}
	if id <= 0 {
		return nil, errs.Validation("Record ID must be a positive integer")
	}
	if err := t.access.ValidateModelAccess(ctx, model, access.OpUnlink); err != nil {
		return nil, err
	}

	existing, err := t.conn.Read(ctx, model, []int64{id}, []string{"id", "display_name"})
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		return nil, errs.Validation("Record not found")
	}
	name, _ := existing[0]["display_name"].(string)

	if _, err := t.conn.Unlink(ctx, model, []int64{id}); err != nil {
		return nil, err
	}
	t.logInfo(ctx, sink, fmt.Sprintf("Deleted %s record %d", model, id))

	return &DeleteResult{
		Success:     true,
		DeletedID:   id,
		DisplayName: name,
		Message:     fmt.Sprintf("Deleted %s record %d", model, id),
	}, nil
}

// ListResourceTemplates returns the odoo:// templates the server serves.
func (t *Tools) ListResourceTemplates(_ context.Context) []ResourceTemplate {
	return []ResourceTemplate{
		{URITemplate: "odoo://{model}", Description: "Default search over a model"},
		{URITemplate: "odoo://{model}/record/{id}", Description: "One record with all safe fields"},
		{URITemplate: "odoo://{model}/search", Description: "Search with domain, fields, limit, offset, order"},
		{URITemplate: "odoo://{model}/browse", Description: "Multiple records by comma-separated ids"},
		{URITemplate: "odoo://{model}/count", Description: "Count records matching a domain"},
		{URITemplate: "odoo://{model}/fields", Description: "Field definitions of a model"},
	}
}

// displayName fetches the display name of a record, tolerating failures.
func (t *Tools) displayName(ctx context.Context, model string, id int64) string {
	records, err := t.conn.Read(ctx, model, []int64{id}, []string{"display_name"})
	if err != nil || len(records) == 0 {
		t.logger.Debug("display name lookup failed",
			zap.String("op", "tools.displayName"),
			zap.String("model", model),
			zap.Int64("id", id),
			zap.Error(err))
		return ""
	}
	name, _ := records[0]["display_name"].(string)
	return name
}
