package schema

import (
	"fmt"
)

// FieldType constrains how a field's value is normalized and validated.
type FieldType string

const (
	TypeString FieldType = "string"
	TypeNumber FieldType = "number"
	TypeDate   FieldType = "date"
)

// FieldSpec describes one extractable field.
type FieldSpec struct {
	Name     string
	Type     FieldType
	Required bool
	// Critical fields drive the automated/manual routing decision;
	// non-critical fields are reported but never block automation.
	Critical  bool
	Pattern   string // optional regex constraint, applied to the string form
	MinLength int
	Min       float64 // numeric plausibility range; both zero = unchecked
	Max       float64
}

// Schema is the ordered set of fields a job extracts.
type Schema struct {
	Name   string
	Fields []FieldSpec
}

// Field returns the FieldSpec for name, or nil.
func (s *Schema) Field(name string) *FieldSpec {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i]
		}
	}
	return nil
}

// CriticalFields returns the names of all critical fields, in schema order.
func (s *Schema) CriticalFields() []string {
	var out []string
	for _, f := range s.Fields {
		if f.Critical {
			out = append(out, f.Name)
		}
	}
	return out
}

// FieldNames returns all field names in schema order.
func (s *Schema) FieldNames() []string {
	out := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		out = append(out, f.Name)
	}
	return out
}

// Registry maps schema names to definitions. Jobs reference schemas by
// name so the ledger never stores field specs inline.
type Registry struct {
	schemas map[string]*Schema
}

func NewRegistry(schemas ...*Schema) *Registry {
	r := &Registry{schemas: make(map[string]*Schema, len(schemas))}
	for _, s := range schemas {
		r.schemas[s.Name] = s
	}
	return r
}

func (r *Registry) Get(name string) (*Schema, error) {
	s, ok := r.schemas[name]
	if !ok {
		return nil, fmt.Errorf("unknown schema %q", name)
	}
	return s, nil
}

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		out = append(out, name)
	}
	return out
}

// TransportOrder is the freight transport-order schema the system ships
// with. Critical fields follow the forwarder's review policy: identity,
// price and both endpoints must be trusted before auto-acceptance.
func TransportOrder() *Schema {
	return &Schema{
		Name: "transport_order",
		Fields: []FieldSpec{
			{Name: "client_company_name", Type: TypeString, Required: true, Critical: true, MinLength: 3},
			{Name: "client_vat_number", Type: TypeString, Required: true, Critical: true},
			{Name: "client_contact_email", Type: TypeString, Pattern: `^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`},
			{Name: "client_offered_price", Type: TypeNumber, Required: true, Critical: true, Min: 50, Max: 100000},
			{Name: "pickup_address", Type: TypeString, Required: true, Critical: true, MinLength: 10},
			{Name: "pickup_postcode", Type: TypeString, Pattern: `^\d{4,6}$`},
			{Name: "pickup_city", Type: TypeString, Required: true},
			{Name: "pickup_country", Type: TypeString, Pattern: `^[A-Z]{2}$`},
			{Name: "delivery_address", Type: TypeString, Required: true, Critical: true, MinLength: 10},
			{Name: "delivery_postcode", Type: TypeString, Pattern: `^\d{4,6}$`},
			{Name: "delivery_city", Type: TypeString, Required: true},
			{Name: "delivery_country", Type: TypeString, Pattern: `^[A-Z]{2}$`},
			{Name: "cargo_weight_kg", Type: TypeNumber, Min: 1, Max: 25000},
			{Name: "cargo_pallets", Type: TypeNumber, Min: 1, Max: 66},
			{Name: "cargo_ldm", Type: TypeNumber, Min: 0.1, Max: 13.6},
			{Name: "special_requirements", Type: TypeString},
			{Name: "pickup_date_start", Type: TypeDate},
			{Name: "pickup_date_end", Type: TypeDate},
			{Name: "delivery_date_start", Type: TypeDate},
			{Name: "delivery_date_end", Type: TypeDate},
			{Name: "client_reference_number", Type: TypeString},
		},
	}
}
