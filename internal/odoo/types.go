package odoo

// Model represents an Odoo model's technical name. The dedicated type gives
// compile-time safety when the workflow layer names business models.
type Model string

// Models the bridge touches directly. Arbitrary model names arriving from
// MCP clients are plain strings validated against the name pattern.
const (
	ModelResPartner     Model = "res.partner"
	ModelResCompany     Model = "res.company"
	ModelIrModel        Model = "ir.model"
	ModelProductProduct Model = "product.product"
	ModelSaleOrder      Model = "sale.order"
	ModelPurchaseOrder  Model = "purchase.order"
	ModelMrpProduction  Model = "mrp.production"
	ModelMrpBom         Model = "mrp.bom"
	ModelStockPicking   Model = "stock.picking"
	ModelAccountMove    Model = "account.move"
)

// Domain is a flat Odoo search domain: each element is either a 3-element
// condition [field, operator, value] or a single prefix logical operator
// ("&", "|", "!").
type Domain []DomainCondition

// DomainCondition is one element of a Domain.
type DomainCondition []interface{}

// ToRPC converts the domain into the []interface{} shape Odoo's RPC expects:
// conditions stay as lists, single-element logical operators collapse to bare
// strings.
func (d Domain) ToRPC() []interface{} {
	rpc := make([]interface{}, 0, len(d))
	for _, cond := range d {
		if len(cond) == 1 {
			if op, ok := cond[0].(string); ok {
				rpc = append(rpc, op)
				continue
			}
		}
		rpc = append(rpc, []interface{}(cond))
	}
	return rpc
}

// Data holds field values for create and write calls.
type Data map[string]interface{}

// ToRPC converts Data to the map shape used on the wire.
func (d Data) ToRPC() map[string]interface{} {
	return map[string]interface{}(d)
}

// Context is the Odoo context dictionary passed in kwargs, influencing
// server-side behavior such as language and timezone.
type Context map[string]interface{}

// Options carries the common keyword arguments of Odoo RPC methods.
type Options struct {
	Context Context
	Fields  []string
	Limit   int
	Offset  int
	Order   string
}

// ToRPC converts Options into the kwargs map for execute_kw, omitting
// zero-valued entries the way Odoo expects.
func (o *Options) ToRPC() map[string]interface{} {
	kwargs := make(map[string]interface{})
	if o == nil {
		return kwargs
	}
	if len(o.Context) > 0 {
		kwargs["context"] = map[string]interface{}(o.Context)
	}
	if len(o.Fields) > 0 {
		kwargs["fields"] = o.Fields
	}
	if o.Limit > 0 {
		kwargs["limit"] = o.Limit
	}
	if o.Offset > 0 {
		kwargs["offset"] = o.Offset
	}
	if o.Order != "" {
		kwargs["order"] = o.Order
	}
	return kwargs
}

// Record is one row of a model as returned by read and search_read.
type Record = map[string]interface{}

// FieldInfo is the metadata of one field as returned by fields_get.
type FieldInfo = map[string]interface{}
