package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/ilcreatore32/godoo-mcp/internal/errs"
	"github.com/ilcreatore32/godoo-mcp/internal/handlers"
	"github.com/ilcreatore32/godoo-mcp/internal/odoo"
)

// toolResult renders a successful handler result as a JSON text content.
func (s *Server) toolResult(v interface{}) *mcp.CallToolResult {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("%d: %s", errs.StatusServer, err))
	}
	return mcp.NewToolResultText(string(encoded))
}

// toolError renders a handler error as the uniform "<status>: <message>"
// envelope. Internal faults keep their detail in the server log only.
func (s *Server) toolError(op string, err error) *mcp.CallToolResult {
	status := errs.StatusOf(err)
	if status >= 500 {
		s.logger.Error("tool failed", zap.String("op", op), zap.Error(err))
	}
	return mcp.NewToolResultError(fmt.Sprintf("%d: %s", status, errs.MessageOf(err)))
}

func (s *Server) registerTools() {
	s.registerCoreTools()
	s.registerWorkflowTools()
}

func (s *Server) registerCoreTools() {
	s.mcp.AddTool(mcp.NewTool("search_records",
		mcp.WithDescription("Search an Odoo model and return matching records"),
		mcp.WithString("model", mcp.Required(), mcp.Description("Technical model name, e.g. res.partner")),
		mcp.WithString("domain", mcp.Description("Search domain as JSON or Python literal, e.g. [[\"is_company\", \"=\", true]]")),
		mcp.WithString("fields", mcp.Description("Fields to return, as CSV or JSON array")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of records")),
		mcp.WithNumber("offset", mcp.Description("Pagination offset")),
		mcp.WithString("order", mcp.Description("Sort specification, e.g. \"name asc\"")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		model, err := req.RequireString("model")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		args := req.GetArguments()
		result, err := s.tools.SearchRecords(ctx, s.sink(), model,
			args["domain"], args["fields"],
			req.GetInt("limit", 0), req.GetInt("offset", 0), req.GetString("order", ""))
		if err != nil {
			return s.toolError("search_records", err), nil
		}
		return s.toolResult(result), nil
	})

	s.mcp.AddTool(mcp.NewTool("get_record",
		mcp.WithDescription("Read one record by ID, with smart default fields when none are given"),
		mcp.WithString("model", mcp.Required(), mcp.Description("Technical model name")),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Record ID")),
		mcp.WithString("fields", mcp.Description("Fields to return, as CSV or JSON array")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		model, err := req.RequireString("model")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		result, err := s.tools.GetRecord(ctx, s.sink(), model,
			int64(req.GetInt("id", 0)), req.GetArguments()["fields"])
		if err != nil {
			return s.toolError("get_record", err), nil
		}
		return s.toolResult(result), nil
	})

	s.mcp.AddTool(mcp.NewTool("list_models",
		mcp.WithDescription("List the Odoo models exposed over MCP with their permitted operations"),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := s.tools.ListModels(ctx, s.sink())
		if err != nil {
			return s.toolError("list_models", err), nil
		}
		return s.toolResult(result), nil
	})

	s.mcp.AddTool(mcp.NewTool("create_record",
		mcp.WithDescription("Create a record"),
		mcp.WithString("model", mcp.Required(), mcp.Description("Technical model name")),
		mcp.WithObject("values", mcp.Required(), mcp.Description("Field values for the new record")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		model, err := req.RequireString("model")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		values, err := objectArg(req, "values")
		if err != nil {
			return s.toolError("create_record", err), nil
		}
		result, err := s.tools.CreateRecord(ctx, s.sink(), model, values)
		if err != nil {
			return s.toolError("create_record", err), nil
		}
		return s.toolResult(result), nil
	})

	s.mcp.AddTool(mcp.NewTool("update_record",
		mcp.WithDescription("Update an existing record"),
		mcp.WithString("model", mcp.Required(), mcp.Description("Technical model name")),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Record ID")),
		mcp.WithObject("values", mcp.Required(), mcp.Description("Field values to write")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		model, err := req.RequireString("model")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		values, err := objectArg(req, "values")
		if err != nil {
			return s.toolError("update_record", err), nil
		}
		result, err := s.tools.UpdateRecord(ctx, s.sink(), model, int64(req.GetInt("id", 0)), values)
		if err != nil {
			return s.toolError("update_record", err), nil
		}
		return s.toolResult(result), nil
	})

	s.mcp.AddTool(mcp.NewTool("delete_record",
		mcp.WithDescription("Delete a record"),
		mcp.WithString("model", mcp.Required(), mcp.Description("Technical model name")),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Record ID")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		model, err := req.RequireString("model")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		result, err := s.tools.DeleteRecord(ctx, s.sink(), model, int64(req.GetInt("id", 0)))
		if err != nil {
			return s.toolError("delete_record", err), nil
		}
		return s.toolResult(result), nil
	})

	s.mcp.AddTool(mcp.NewTool("list_resource_templates",
		mcp.WithDescription("List the odoo:// resource URI templates this server serves"),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return s.toolResult(s.tools.ListResourceTemplates(ctx)), nil
	})
}

func (s *Server) registerWorkflowTools() {
	s.mcp.AddTool(mcp.NewTool("create_quotation",
		mcp.WithDescription("Create a draft sales quotation for a customer"),
		mcp.WithNumber("customer_id", mcp.Required(), mcp.Description("res.partner ID of the customer")),
		mcp.WithArray("product_lines", mcp.Required(),
			mcp.Description("Order lines; each needs product_id and quantity, price_unit optional")),
		mcp.WithString("order_date", mcp.Description("Order date, YYYY-MM-DD HH:MM:SS")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		lines, err := linesArg(req, "product_lines")
		if err != nil {
			return s.toolError("create_quotation", err), nil
		}
		result, err := s.workflows.CreateQuotation(ctx, s.sink(),
			int64(req.GetInt("customer_id", 0)), lines, req.GetString("order_date", ""))
		if err != nil {
			return s.toolError("create_quotation", err), nil
		}
		return s.toolResult(result), nil
	})

	s.mcp.AddTool(mcp.NewTool("confirm_quotation",
		mcp.WithDescription("Confirm a draft quotation into a sales order"),
		mcp.WithNumber("order_id", mcp.Required(), mcp.Description("sale.order ID")),
	), s.confirmHandler("confirm_quotation", s.workflows.ConfirmQuotation))

	s.mcp.AddTool(mcp.NewTool("create_manufacturing_order",
		mcp.WithDescription("Create a draft manufacturing order for a product"),
		mcp.WithNumber("product_id", mcp.Required(), mcp.Description("product.product ID")),
		mcp.WithNumber("quantity", mcp.Required(), mcp.Description("Quantity to produce")),
		mcp.WithNumber("bom_id", mcp.Description("Bill of materials ID, optional")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := s.workflows.CreateManufacturingOrder(ctx, s.sink(),
			int64(req.GetInt("product_id", 0)), floatArg(req, "quantity"), int64(req.GetInt("bom_id", 0)))
		if err != nil {
			return s.toolError("create_manufacturing_order", err), nil
		}
		return s.toolResult(result), nil
	})

	s.mcp.AddTool(mcp.NewTool("confirm_manufacturing_order",
		mcp.WithDescription("Confirm a draft manufacturing order and reserve materials"),
		mcp.WithNumber("order_id", mcp.Required(), mcp.Description("mrp.production ID")),
	), s.confirmHandler("confirm_manufacturing_order", s.workflows.ConfirmManufacturingOrder))

	s.mcp.AddTool(mcp.NewTool("create_purchase_order",
		mcp.WithDescription("Create a draft purchase order for a supplier"),
		mcp.WithNumber("supplier_id", mcp.Required(), mcp.Description("res.partner ID of the supplier")),
		mcp.WithArray("order_lines", mcp.Required(),
			mcp.Description("Order lines; each needs product_id, quantity and price_unit")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		lines, err := linesArg(req, "order_lines")
		if err != nil {
			return s.toolError("create_purchase_order", err), nil
		}
		result, err := s.workflows.CreatePurchaseOrder(ctx, s.sink(),
			int64(req.GetInt("supplier_id", 0)), lines)
		if err != nil {
			return s.toolError("create_purchase_order", err), nil
		}
		return s.toolResult(result), nil
	})

	s.mcp.AddTool(mcp.NewTool("confirm_purchase_order",
		mcp.WithDescription("Confirm a draft purchase order"),
		mcp.WithNumber("order_id", mcp.Required(), mcp.Description("purchase.order ID")),
	), s.confirmHandler("confirm_purchase_order", s.workflows.ConfirmPurchaseOrder))

	s.mcp.AddTool(mcp.NewTool("receive_inventory",
		mcp.WithDescription("Validate an incoming transfer, by picking ID or purchase order name"),
		mcp.WithNumber("picking_id", mcp.Description("stock.picking ID")),
		mcp.WithString("po_name", mcp.Description("Purchase order name, e.g. P00007")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := s.workflows.ReceiveInventory(ctx, s.sink(),
			int64(req.GetInt("picking_id", 0)), req.GetString("po_name", ""))
		if err != nil {
			return s.toolError("receive_inventory", err), nil
		}
		return s.toolResult(result), nil
	})

	s.mcp.AddTool(mcp.NewTool("deliver_to_customer",
		mcp.WithDescription("Validate an outgoing transfer, by picking ID or sales order name"),
		mcp.WithNumber("picking_id", mcp.Description("stock.picking ID")),
		mcp.WithString("so_name", mcp.Description("Sales order name, e.g. S00042")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := s.workflows.DeliverToCustomer(ctx, s.sink(),
			int64(req.GetInt("picking_id", 0)), req.GetString("so_name", ""))
		if err != nil {
			return s.toolError("deliver_to_customer", err), nil
		}
		return s.toolResult(result), nil
	})

	s.mcp.AddTool(mcp.NewTool("create_bom",
		mcp.WithDescription("Create a bill of materials for a product"),
		mcp.WithNumber("product_id", mcp.Required(), mcp.Description("product.product ID of the finished product")),
		mcp.WithArray("component_lines", mcp.Required(),
			mcp.Description("Components; each needs product_id and quantity")),
		mcp.WithString("bom_type", mcp.Description("BOM type, normal (default) or phantom")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		lines, err := linesArg(req, "component_lines")
		if err != nil {
			return s.toolError("create_bom", err), nil
		}
		result, err := s.workflows.CreateBom(ctx, s.sink(),
			int64(req.GetInt("product_id", 0)), lines, req.GetString("bom_type", ""))
		if err != nil {
			return s.toolError("create_bom", err), nil
		}
		return s.toolResult(result), nil
	})

	s.mcp.AddTool(mcp.NewTool("get_workflow_status",
		mcp.WithDescription("Read an order and the manufacturing orders, transfers and invoices it spawned"),
		mcp.WithNumber("order_id", mcp.Required(), mcp.Description("Order ID")),
		mcp.WithString("order_type", mcp.Required(), mcp.Description("One of sale, purchase, manufacturing")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := s.workflows.GetWorkflowStatus(ctx, s.sink(),
			int64(req.GetInt("order_id", 0)), req.GetString("order_type", ""))
		if err != nil {
			return s.toolError("get_workflow_status", err), nil
		}
		return s.toolResult(result), nil
	})
}

// confirmHandler adapts the one-argument confirmation workflows.
func (s *Server) confirmHandler(op string, fn func(context.Context, handlers.LogContext, int64) (map[string]interface{}, error)) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := fn(ctx, s.sink(), int64(req.GetInt("order_id", 0)))
		if err != nil {
			return s.toolError(op, err), nil
		}
		return s.toolResult(result), nil
	}
}

func (s *Server) registerResources() {
	templates := []struct {
		uri  string
		name string
		desc string
	}{
		{"odoo://{model}", "model", "Default search over a model"},
		{"odoo://{model}/record/{id}", "record", "One record with all safe fields"},
		{"odoo://{model}/search", "search", "Search with domain, fields, limit, offset, order"},
		{"odoo://{model}/browse", "browse", "Multiple records by comma-separated ids"},
		{"odoo://{model}/count", "count", "Count records matching a domain"},
		{"odoo://{model}/fields", "fields", "Field definitions of a model"},
	}
	for _, t := range templates {
		s.mcp.AddResourceTemplate(
			mcp.NewResourceTemplate(t.uri, t.name,
				mcp.WithTemplateDescription(t.desc),
				mcp.WithTemplateMIMEType("text/plain"),
			),
			func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
				text, err := s.resource.Read(ctx, req.Params.URI)
				if err != nil {
					return nil, fmt.Errorf("%d: %s", errs.StatusOf(err), errs.MessageOf(err))
				}
				return []mcp.ResourceContents{
					mcp.TextResourceContents{
						URI:      req.Params.URI,
						MIMEType: "text/plain",
						Text:     text,
					},
				}, nil
			},
		)
	}
}

// objectArg extracts a required map argument.
func objectArg(req mcp.CallToolRequest, name string) (odoo.Data, error) {
	raw, ok := req.GetArguments()[name]
	if !ok || raw == nil {
		return nil, errs.Validation("Missing required argument %q", name)
	}
	values, ok := raw.(map[string]interface{})
	if !ok {
		return nil, errs.Validation("Argument %q must be an object", name)
	}
	return odoo.Data(values), nil
}

// floatArg extracts a numeric argument, tolerating integer JSON values.
func floatArg(req mcp.CallToolRequest, name string) float64 {
	switch v := req.GetArguments()[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

// linesArg extracts a required array-of-objects argument.
func linesArg(req mcp.CallToolRequest, name string) ([]map[string]interface{}, error) {
	raw, ok := req.GetArguments()[name]
	if !ok || raw == nil {
		return nil, errs.Validation("Missing required argument %q", name)
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil, errs.Validation("Argument %q must be a list of objects", name)
	}
	lines := make([]map[string]interface{}, 0, len(items))
	for i, item := range items {
		line, ok := item.(map[string]interface{})
		if !ok {
			return nil, errs.Validation("Line %d of %q must be an object", i+1, name)
		}
		lines = append(lines, line)
	}
	return lines, nil
}
