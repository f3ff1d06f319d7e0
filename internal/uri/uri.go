// Package uri parses and builds the odoo:// resource URIs exposed to MCP
// clients, and decodes the search-domain text accepted on the wire.
package uri

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/ilcreatore32/godoo-mcp/internal/errs"
	"github.com/ilcreatore32/godoo-mcp/internal/odoo"
)

// Scheme is the resource URI scheme.
const Scheme = "odoo"

// Operations supported on a model resource.
const (
	OpRecord = "record"
	OpSearch = "search"
	OpBrowse = "browse"
	OpCount  = "count"
	OpFields = "fields"
)

// modelRe validates Odoo model technical names.
var modelRe = regexp.MustCompile(`^[a-z_][a-z0-9_.]*$`)

// queryKeys are the parameters a resource URI may carry.
var queryKeys = map[string]bool{
	"domain": true, "fields": true, "limit": true,
	"offset": true, "order": true, "ids": true,
}

// Parsed is the decoded form of a resource URI.
type Parsed struct {
	Model string
	// Operation is one of search/browse/count/fields, or "record/{id}".
	Operation string
	// RecordID is set when Operation addresses a single record.
	RecordID int64
	Params   map[string]string
}

// Parse decodes an odoo:// URI. When enabledModels is non-nil the model must
// be a member.
func Parse(raw string, enabledModels []string) (*Parsed, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errs.Wrap(errs.Validation("Invalid resource URI %q", raw), err)
	}
	if u.Scheme != Scheme {
		return nil, errs.Validation("Invalid resource URI %q: scheme must be odoo://", raw)
	}

	model := u.Host
	if !modelRe.MatchString(model) {
		return nil, errs.Validation("Invalid model name %q in resource URI", model)
	}
	if enabledModels != nil && !contains(enabledModels, model) {
		return nil, errs.Validation("Model %s is not enabled for MCP access", model)
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) == 1 && segments[0] == "" {
		segments = nil
	}

	p := &Parsed{Model: model, Params: map[string]string{}}
	switch {
	case len(segments) == 0:
		// A bare odoo://{model} reads as a default search.
		p.Operation = OpSearch
	case len(segments) == 2 && segments[0] == OpRecord:
		id, err := strconv.ParseInt(segments[1], 10, 64)
		if err != nil || id <= 0 {
			return nil, errs.Validation("Invalid record ID %q: must be a positive integer", segments[1])
		}
		p.Operation = fmt.Sprintf("record/%d", id)
		p.RecordID = id
	case len(segments) == 1:
		switch segments[0] {
		case OpSearch, OpBrowse, OpCount, OpFields:
			p.Operation = segments[0]
		default:
			return nil, errs.Validation("Unknown resource operation %q", segments[0])
		}
	default:
		return nil, errs.Validation("Invalid resource URI %q: expected odoo://model/operation", raw)
	}

	for key, values := range u.Query() {
		if !queryKeys[key] {
			return nil, errs.Validation("Unknown query parameter %q in resource URI", key)
		}
		if len(values) > 0 {
			p.Params[key] = values[0]
		}
	}
	return p, nil
}

// Build constructs an odoo:// URI that round-trips through Parse. Complex
// parameter values (lists, maps) are JSON-encoded.
func Build(model, operation string, params map[string]interface{}) string {
	var b strings.Builder
	b.WriteString(Scheme)
	b.WriteString("://")
	b.WriteString(model)
	b.WriteString("/")
	b.WriteString(operation)

	if len(params) == 0 {
		return b.String()
	}
	query := url.Values{}
	for key, value := range params {
		switch v := value.(type) {
		case string:
			query.Set(key, v)
		case int:
			query.Set(key, strconv.Itoa(v))
		case int64:
			query.Set(key, strconv.FormatInt(v, 10))
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				continue
			}
			query.Set(key, string(encoded))
		}
	}
	b.WriteString("?")
	b.WriteString(query.Encode())
	return b.String()
}

// RecordURI is shorthand for the URI of a single record.
func RecordURI(model string, id int64) string {
	return fmt.Sprintf("%s://%s/record/%d", Scheme, model, id)
}

func contains(list []string, item string) bool {
	for _, s := range list {
		if s == item {
			return true
		}
	}
	return false
}

// ParseDomain decodes a search domain from wire text. Strict JSON is tried
// first; the fallback tokenizes Python-literal syntax (single quotes,
// True/False/None, tuple parens) into JSON and reparses. It is never a
// general evaluator.
func ParseDomain(text string) (odoo.Domain, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return odoo.Domain{}, nil
	}

	var raw []interface{}
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		converted := pythonToJSON(text)
		if err := json.Unmarshal([]byte(converted), &raw); err != nil {
			return nil, errs.Validation("Invalid domain %q: not valid JSON or Python literal syntax", text)
		}
	}
	return normalizeDomain(raw)
}

// normalizeDomain validates the item shapes: logical operators are single
// strings from {&,|,!}, every other item is exactly three elements.
func normalizeDomain(raw []interface{}) (odoo.Domain, error) {
	domain := make(odoo.Domain, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case string:
			if v != "&" && v != "|" && v != "!" {
				return nil, errs.Validation("Invalid domain operator %q: must be &, | or !", v)
			}
			domain = append(domain, odoo.DomainCondition{v})
		case []interface{}:
			if len(v) != 3 {
				return nil, errs.Validation("Invalid domain condition %v: must have exactly 3 elements", v)
			}
			field, ok := v[0].(string)
			if !ok || field == "" {
				return nil, errs.Validation("Invalid domain condition %v: field name must be a string", v)
			}
			op, ok := v[1].(string)
			if !ok || op == "" {
				return nil, errs.Validation("Invalid domain condition %v: operator must be a string", v)
			}
			domain = append(domain, odoo.DomainCondition(v))
		default:
			return nil, errs.Validation("Invalid domain item %v", item)
		}
	}
	return domain, nil
}

// MarshalDomain renders a domain as canonical JSON for transmission.
func MarshalDomain(domain odoo.Domain) string {
	encoded, err := json.Marshal(domain.ToRPC())
	if err != nil {
		return "[]"
	}
	return string(encoded)
}

// pythonToJSON converts Python literal domain text into JSON without
// evaluating anything: a small state machine rewrites quotes outside of
// string context, bracketizes tuples, and maps the literal keywords.
func pythonToJSON(text string) string {
	var out strings.Builder
	inString := false
	var quote byte

	for i := 0; i < len(text); i++ {
		ch := text[i]

		if inString {
			if ch == '\\' && i+1 < len(text) {
				out.WriteByte(ch)
				i++
				out.WriteByte(text[i])
				continue
			}
			if ch == quote {
				inString = false
				out.WriteByte('"')
				continue
			}
			if ch == '"' {
				out.WriteString(`\"`)
				continue
			}
			out.WriteByte(ch)
			continue
		}

		switch ch {
		case '\'', '"':
			inString = true
			quote = ch
			out.WriteByte('"')
		case '(':
			out.WriteByte('[')
		case ')':
			out.WriteByte(']')
		default:
			if keyword, n := pythonKeyword(text[i:]); n > 0 {
				out.WriteString(keyword)
				i += n - 1
				continue
			}
			out.WriteByte(ch)
		}
	}
	return out.String()
}

// pythonKeyword matches True/False/None at the start of s, returning the
// JSON replacement and the matched length.
func pythonKeyword(s string) (string, int) {
	for literal, replacement := range map[string]string{
		"True":  "true",
		"False": "false",
		"None":  "null",
	} {
		if strings.HasPrefix(s, literal) && !followedByIdent(s, len(literal)) {
			return replacement, len(literal)
		}
	}
	return "", 0
}

func followedByIdent(s string, n int) bool {
	if n >= len(s) {
		return false
	}
	c := s[n]
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
