package handlers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ilcreatore32/godoo-mcp/internal/access"
	"github.com/ilcreatore32/godoo-mcp/internal/errs"
	"github.com/ilcreatore32/godoo-mcp/internal/odoo"
)

// Workflows implements the business-transition tools: quotations,
// manufacturing orders, purchase orders, inventory transfers and BOMs.
type Workflows struct {
	base
}

// NewWorkflows builds the workflow handler.
func NewWorkflows(conn Client, ac Access, logger *zap.Logger) *Workflows {
	return &Workflows{base: base{conn: conn, access: ac, logger: logger}}
}

// Result is the generic workflow response shape.
type Result = map[string]interface{}

// edge converts access denials to validation errors: workflow tools always
// surface denials as input problems rather than permission faults.
func (w *Workflows) edge(err error) error {
	if errs.IsKind(err, errs.StatusPermission) {
		return errs.Validation("%s", errMessage(err))
	}
	return err
}

// orderLines converts raw line maps into the (0, 0, values) command triples
// Odoo expects for one2many creation. required lists the keys every line
// must carry.
func orderLines(lines []map[string]interface{}, required ...string) ([]interface{}, error) {
	if len(lines) == 0 {
		return nil, errs.Validation("At least one line is required")
	}
	out := make([]interface{}, 0, len(lines))
	for i, line := range lines {
		for _, key := range required {
			if _, ok := line[key]; !ok {
				return nil, errs.Validation("Line %d is missing required field %q", i+1, key)
			}
		}
		out = append(out, []interface{}{0, 0, line})
	}
	return out, nil
}

// CreateQuotation creates a draft sale order for a customer.
func (w *Workflows) CreateQuotation(ctx context.Context, sink LogContext, customerID int64, lines []map[string]interface{}, orderDate string) (Result, error) {
	res, err := w.createQuotation(ctx, sink, customerID, lines, orderDate)
	return res, w.edge(err)
}

func (w *Workflows) createQuotation(ctx context.Context, sink LogContext, customerID int64, lines []map[string]interface{}, orderDate string) (Result, error) {
	if err := w.requireAuth(); err != nil {
		return nil, err
	}
	if customerID <= 0 {
		return nil, errs.Validation("Customer ID must be a positive integer")
	}
	if err := w.access.ValidateModelAccess(ctx, string(odoo.ModelSaleOrder), access.OpCreate); err != nil {
		return nil, err
	}

	customers, err := w.conn.Read(ctx, string(odoo.ModelResPartner), []int64{customerID}, []string{"name"})
	if err != nil {
		return nil, err
	}
	if len(customers) == 0 {
		return nil, errs.Validation("Customer %d not found", customerID)
	}
	customerName, _ := customers[0]["name"].(string)

	orderLine, err := orderLines(lines, "product_id", "quantity")
	if err != nil {
		return nil, err
	}
	// Odoo's sale order lines carry the quantity as product_uom_qty.
	for _, cmd := range orderLine {
		line := cmd.([]interface{})[2].(map[string]interface{})
		if qty, ok := line["quantity"]; ok {
			line["product_uom_qty"] = qty
			delete(line, "quantity")
		}
	}

	values := odoo.Data{"partner_id": customerID, "order_line": orderLine}
	if orderDate != "" {
		values["date_order"] = orderDate
	}

	id, err := w.conn.Create(ctx, string(odoo.ModelSaleOrder), values)
	if err != nil {
		return nil, err
	}
	w.logInfo(ctx, sink, fmt.Sprintf("Created quotation %d for %s", id, customerName))

	result := Result{
		"success":  true,
		"order_id": id,
		"customer": customerName,
		"url":      w.conn.BuildRecordURL(string(odoo.ModelSaleOrder), id),
		"message":  fmt.Sprintf("Created quotation for %s", customerName),
	}
	w.mergeOrderFields(ctx, result, string(odoo.ModelSaleOrder), id, "name", "state", "amount_total")
	return result, nil
}

// ConfirmQuotation confirms a draft sale order.
func (w *Workflows) ConfirmQuotation(ctx context.Context, sink LogContext, orderID int64) (Result, error) {
	res, err := w.confirmOrder(ctx, sink, confirmSpec{
		model:   string(odoo.ModelSaleOrder),
		action:  "action_confirm",
		label:   "quotation",
		orderID: orderID,
	})
	return res, w.edge(err)
}

// ConfirmPurchaseOrder confirms a draft purchase order.
func (w *Workflows) ConfirmPurchaseOrder(ctx context.Context, sink LogContext, orderID int64) (Result, error) {
	res, err := w.confirmOrder(ctx, sink, confirmSpec{
		model:   string(odoo.ModelPurchaseOrder),
		action:  "button_confirm",
		label:   "purchase order",
		orderID: orderID,
	})
	return res, w.edge(err)
}

// ConfirmManufacturingOrder confirms a draft manufacturing order and then
// attempts to reserve materials. A reservation failure does not undo the
// confirmation.
func (w *Workflows) ConfirmManufacturingOrder(ctx context.Context, sink LogContext, orderID int64) (Result, error) {
	res, err := w.confirmOrder(ctx, sink, confirmSpec{
		model:       string(odoo.ModelMrpProduction),
		action:      "action_confirm",
		label:       "manufacturing order",
		orderID:     orderID,
		afterAction: "action_assign",
	})
	return res, w.edge(err)
}

type confirmSpec struct {
	model   string
	action  string
	label   string
	orderID int64
	// afterAction runs after the confirmation; its failure is logged and
	// swallowed.
	afterAction string
}

func (w *Workflows) confirmOrder(ctx context.Context, sink LogContext, spec confirmSpec) (Result, error) {
	if err := w.requireAuth(); err != nil {
		return nil, err
	}
	if spec.orderID <= 0 {
		return nil, errs.Validation("Order ID must be a positive integer")
	}
	if err := w.access.ValidateModelAccess(ctx, spec.model, access.OpWrite); err != nil {
		return nil, err
	}

	orders, err := w.conn.Read(ctx, spec.model, []int64{spec.orderID}, []string{"name", "state"})
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, errs.NotFound("%s %d not found", spec.label, spec.orderID)
	}
	name, _ := orders[0]["name"].(string)
	state, _ := orders[0]["state"].(string)
	if state != "draft" {
		return nil, errs.Validation("Cannot confirm %s %s: state must be 'draft', got %q", spec.label, name, state)
	}

	if _, err := w.conn.Execute(ctx, spec.model, spec.action, []int64{spec.orderID}); err != nil {
		return nil, err
	}
	if spec.afterAction != "" {
		if _, err := w.conn.Execute(ctx, spec.model, spec.afterAction, []int64{spec.orderID}); err != nil {
			w.logWarning(ctx, sink, fmt.Sprintf("%s on %s failed: %s", spec.afterAction, name, errMessage(err)))
			w.logger.Warn("post-confirmation action failed",
				zap.String("op", "workflows.confirmOrder"),
				zap.String("model", spec.model),
				zap.String("action", spec.afterAction),
				zap.Error(err))
		}
	}

	result := Result{
		"success":  true,
		"order_id": spec.orderID,
		"name":     name,
		"url":      w.conn.BuildRecordURL(spec.model, spec.orderID),
		"message":  fmt.Sprintf("Confirmed %s %s", spec.label, name),
	}
	w.mergeOrderFields(ctx, result, spec.model, spec.orderID, "state")
	return result, nil
}

// CreateManufacturingOrder creates a draft production order.
func (w *Workflows) CreateManufacturingOrder(ctx context.Context, sink LogContext, productID int64, quantity float64, bomID int64) (Result, error) {
	res, err := w.createManufacturingOrder(ctx, sink, productID, quantity, bomID)
	return res, w.edge(err)
}

func (w *Workflows) createManufacturingOrder(ctx context.Context, sink LogContext, productID int64, quantity float64, bomID int64) (Result, error) {
	if err := w.requireAuth(); err != nil {
		return nil, err
	}
	if productID <= 0 {
		return nil, errs.Validation("Product ID must be a positive integer")
	}
	if quantity <= 0 {
		return nil, errs.Validation("Quantity must be positive")
	}
	if err := w.access.ValidateModelAccess(ctx, string(odoo.ModelMrpProduction), access.OpCreate); err != nil {
		return nil, err
	}

	products, err := w.conn.Read(ctx, string(odoo.ModelProductProduct), []int64{productID}, []string{"name"})
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, errs.Validation("Product %d not found", productID)
	}
	productName, _ := products[0]["name"].(string)

	values := odoo.Data{"product_id": productID, "product_qty": quantity}
	if bomID > 0 {
		values["bom_id"] = bomID
	}
	id, err := w.conn.Create(ctx, string(odoo.ModelMrpProduction), values)
	if err != nil {
		return nil, err
	}
	w.logInfo(ctx, sink, fmt.Sprintf("Created manufacturing order %d for %s", id, productName))

	result := Result{
		"success":  true,
		"order_id": id,
		"product":  productName,
		"quantity": quantity,
		"url":      w.conn.BuildRecordURL(string(odoo.ModelMrpProduction), id),
		"message":  fmt.Sprintf("Created manufacturing order for %s", productName),
	}
	w.mergeOrderFields(ctx, result, string(odoo.ModelMrpProduction), id, "name", "state")
	return result, nil
}

// CreatePurchaseOrder creates a draft purchase order. Purchase lines must
// carry an explicit price.
func (w *Workflows) CreatePurchaseOrder(ctx context.Context, sink LogContext, supplierID int64, lines []map[string]interface{}) (Result, error) {
	res, err := w.createPurchaseOrder(ctx, sink, supplierID, lines)
	return res, w.edge(err)
}

func (w *Workflows) createPurchaseOrder(ctx context.Context, sink LogContext, supplierID int64, lines []map[string]interface{}) (Result, error) {
	if err := w.requireAuth(); err != nil {
		return nil, err
	}
	if supplierID <= 0 {
		return nil, errs.Validation("Supplier ID must be a positive integer")
	}
	if err := w.access.ValidateModelAccess(ctx, string(odoo.ModelPurchaseOrder), access.OpCreate); err != nil {
		return nil, err
	}

	suppliers, err := w.conn.Read(ctx, string(odoo.ModelResPartner), []int64{supplierID}, []string{"name"})
	if err != nil {
		return nil, err
	}
	if len(suppliers) == 0 {
		return nil, errs.Validation("Supplier %d not found", supplierID)
	}
	supplierName, _ := suppliers[0]["name"].(string)

	orderLine, err := orderLines(lines, "product_id", "quantity", "price_unit")
	if err != nil {
		return nil, err
	}
	// Purchase order lines carry the quantity as product_qty.
	for _, cmd := range orderLine {
		line := cmd.([]interface{})[2].(map[string]interface{})
		if qty, ok := line["quantity"]; ok {
			line["product_qty"] = qty
			delete(line, "quantity")
		}
	}

	id, err := w.conn.Create(ctx, string(odoo.ModelPurchaseOrder), odoo.Data{
		"partner_id": supplierID,
		"order_line": orderLine,
	})
	if err != nil {
		return nil, err
	}
	w.logInfo(ctx, sink, fmt.Sprintf("Created purchase order %d for %s", id, supplierName))

	result := Result{
		"success":  true,
		"order_id": id,
		"supplier": supplierName,
		"url":      w.conn.BuildRecordURL(string(odoo.ModelPurchaseOrder), id),
		"message":  fmt.Sprintf("Created purchase order for %s", supplierName),
	}
	w.mergeOrderFields(ctx, result, string(odoo.ModelPurchaseOrder), id, "name", "state", "amount_total")
	return result, nil
}

// ReceiveInventory validates an incoming transfer, located either by picking
// id or by the purchase order name that originated it.
func (w *Workflows) ReceiveInventory(ctx context.Context, sink LogContext, pickingID int64, poName string) (Result, error) {
	res, err := w.processPicking(ctx, sink, pickingID, poName, "incoming", "receipt")
	return res, w.edge(err)
}

// DeliverToCustomer validates an outgoing transfer, located either by
// picking id or by the sale order name that originated it.
func (w *Workflows) DeliverToCustomer(ctx context.Context, sink LogContext, pickingID int64, soName string) (Result, error) {
	res, err := w.processPicking(ctx, sink, pickingID, soName, "outgoing", "delivery")
	return res, w.edge(err)
}

func (w *Workflows) processPicking(ctx context.Context, sink LogContext, pickingID int64, origin, typeCode, label string) (Result, error) {
	if err := w.requireAuth(); err != nil {
		return nil, err
	}
	if (pickingID > 0) == (origin != "") {
		return nil, errs.Validation("Provide exactly one of picking ID or order name")
	}
	if err := w.access.ValidateModelAccess(ctx, string(odoo.ModelStockPicking), access.OpWrite); err != nil {
		return nil, err
	}

	if pickingID == 0 {
		ids, err := w.conn.Search(ctx, string(odoo.ModelStockPicking), odoo.Domain{
			{"origin", "=", origin},
			{"picking_type_code", "=", typeCode},
		}, &odoo.Options{Limit: 1})
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, errs.NotFound("No %s transfer found for order %s", typeCode, origin)
		}
		pickingID = ids[0]
	}

	pickings, err := w.conn.Read(ctx, string(odoo.ModelStockPicking), []int64{pickingID}, []string{"name", "state"})
	if err != nil {
		return nil, err
	}
	if len(pickings) == 0 {
		return nil, errs.NotFound("Transfer %d not found", pickingID)
	}
	name, _ := pickings[0]["name"].(string)

	// Reservation and validation can both require UI wizards (backorders,
	// immediate transfers); their failures downgrade to warnings.
	for _, action := range []string{"action_assign", "button_validate"} {
		if _, err := w.conn.Execute(ctx, string(odoo.ModelStockPicking), action, []int64{pickingID}); err != nil {
			w.logWarning(ctx, sink, fmt.Sprintf("%s on transfer %s failed: %s", action, name, errMessage(err)))
			w.logger.Warn("picking action failed",
				zap.String("op", "workflows.processPicking"),
				zap.String("action", action),
				zap.String("picking", name),
				zap.Error(err))
		}
	}

	result := Result{
		"success":    true,
		"picking_id": pickingID,
		"name":       name,
		"url":        w.conn.BuildRecordURL(string(odoo.ModelStockPicking), pickingID),
		"message":    fmt.Sprintf("Processed %s %s", label, name),
	}
	w.mergeOrderFields(ctx, result, string(odoo.ModelStockPicking), pickingID, "state")
	return result, nil
}

// CreateBom creates a bill of materials for a product.
func (w *Workflows) CreateBom(ctx context.Context, sink LogContext, productID int64, componentLines []map[string]interface{}, bomType string) (Result, error) {
	res, err := w.createBom(ctx, sink, productID, componentLines, bomType)
	return res, w.edge(err)
}

func (w *Workflows) createBom(ctx context.Context, sink LogContext, productID int64, componentLines []map[string]interface{}, bomType string) (Result, error) {
	if err := w.requireAuth(); err != nil {
		return nil, err
	}
	if productID <= 0 {
		return nil, errs.Validation("Product ID must be a positive integer")
	}
	if bomType == "" {
		bomType = "normal"
	}
	if err := w.access.ValidateModelAccess(ctx, string(odoo.ModelMrpBom), access.OpCreate); err != nil {
		return nil, err
	}

	products, err := w.conn.Read(ctx, string(odoo.ModelProductProduct), []int64{productID}, []string{"name", "product_tmpl_id"})
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, errs.Validation("Product %d not found", productID)
	}
	productName, _ := products[0]["name"].(string)
	templateID := many2oneID(products[0]["product_tmpl_id"])
	if templateID == 0 {
		return nil, errs.Server("Product %d has no template", productID)
	}

	bomLine, err := orderLines(componentLines, "product_id", "quantity")
	if err != nil {
		return nil, err
	}
	for _, cmd := range bomLine {
		line := cmd.([]interface{})[2].(map[string]interface{})
		if qty, ok := line["quantity"]; ok {
			line["product_qty"] = qty
			delete(line, "quantity")
		}
	}

	id, err := w.conn.Create(ctx, string(odoo.ModelMrpBom), odoo.Data{
		"product_tmpl_id": templateID,
		"product_id":      productID,
		"product_qty":     1,
		"type":            bomType,
		"bom_line_ids":    bomLine,
	})
	if err != nil {
		return nil, err
	}
	w.logInfo(ctx, sink, fmt.Sprintf("Created BOM %d for %s", id, productName))

	return Result{
		"success":    true,
		"bom_id":     id,
		"product":    productName,
		"components": len(bomLine),
		"url":        w.conn.BuildRecordURL(string(odoo.ModelMrpBom), id),
		"message":    fmt.Sprintf("Created bill of materials for %s", productName),
	}, nil
}

// GetWorkflowStatus reads an order and fans out to the documents it spawned.
// Related models may be uninstalled; their lookups fail soft.
func (w *Workflows) GetWorkflowStatus(ctx context.Context, sink LogContext, orderID int64, orderType string) (Result, error) {
	res, err := w.workflowStatus(ctx, sink, orderID, orderType)
	return res, w.edge(err)
}

func (w *Workflows) workflowStatus(ctx context.Context, sink LogContext, orderID int64, orderType string) (Result, error) {
	if err := w.requireAuth(); err != nil {
		return nil, err
	}
	if orderID <= 0 {
		return nil, errs.Validation("Order ID must be a positive integer")
	}

	var model string
	var fields []string
	switch orderType {
	case "sale":
		model, fields = string(odoo.ModelSaleOrder), []string{"name", "state", "amount_total", "partner_id", "date_order"}
	case "purchase":
		model, fields = string(odoo.ModelPurchaseOrder), []string{"name", "state", "amount_total", "partner_id", "date_order"}
	case "manufacturing":
		model, fields = string(odoo.ModelMrpProduction), []string{"name", "state", "product_id", "product_qty"}
	default:
		return nil, errs.Validation("Order type must be one of sale, purchase, manufacturing")
	}

	if err := w.access.ValidateModelAccess(ctx, model, access.OpRead); err != nil {
		return nil, err
	}
	orders, err := w.conn.Read(ctx, model, []int64{orderID}, fields)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, errs.NotFound("%s order %d not found", orderType, orderID)
	}
	order := orders[0]
	name, _ := order["name"].(string)

	result := Result{
		"success":    true,
		"order_type": orderType,
		"order":      order,
		"url":        w.conn.BuildRecordURL(model, orderID),
	}
	if name == "" {
		return result, nil
	}

	byOrigin := odoo.Domain{{"origin", "=", name}}
	if orderType != "manufacturing" {
		result["manufacturing_orders"] = w.relatedRecords(ctx, string(odoo.ModelMrpProduction), byOrigin, []string{"name", "state", "product_qty"})
	}
	result["pickings"] = w.relatedRecords(ctx, string(odoo.ModelStockPicking), byOrigin, []string{"name", "state", "picking_type_code"})
	if orderType == "sale" || orderType == "purchase" {
		result["invoices"] = w.relatedRecords(ctx, string(odoo.ModelAccountMove),
			odoo.Domain{{"invoice_origin", "=", name}}, []string{"name", "state", "payment_state", "amount_total"})
	}
	return result, nil
}

// relatedRecords searches a follow-up document model, returning an empty
// list when the model is missing or unreadable.
func (w *Workflows) relatedRecords(ctx context.Context, model string, domain odoo.Domain, fields []string) []odoo.Record {
	records, err := w.conn.SearchRead(ctx, model, domain, &odoo.Options{Fields: fields})
	if err != nil {
		w.logger.Debug("related record lookup failed",
			zap.String("op", "workflows.relatedRecords"),
			zap.String("model", model),
			zap.Error(err))
		return []odoo.Record{}
	}
	if records == nil {
		records = []odoo.Record{}
	}
	return records
}

// mergeOrderFields reads extra fields off a record into the result map,
// ignoring read failures so a successful mutation still reports success.
func (w *Workflows) mergeOrderFields(ctx context.Context, result Result, model string, id int64, fields ...string) {
	records, err := w.conn.Read(ctx, model, []int64{id}, fields)
	if err != nil || len(records) == 0 {
		w.logger.Debug("post-operation read failed",
			zap.String("op", "workflows.mergeOrderFields"),
			zap.String("model", model),
			zap.Int64("id", id),
			zap.Error(err))
		return
	}
	for _, f := range fields {
		if v, ok := records[0][f]; ok {
			result[f] = v
		}
	}
}

// many2oneID extracts the id from a many2one value, which arrives either as
// [id, name] or a bare number.
func many2oneID(v interface{}) int64 {
	switch val := v.(type) {
	case []interface{}:
		if len(val) > 0 {
			return toID(val[0])
		}
	case int64, int, float64:
		return toID(val)
	}
	return 0
}
