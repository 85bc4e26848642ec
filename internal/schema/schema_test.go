package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransportOrderCriticalFields(t *testing.T) {
	sch := TransportOrder()

	assert.Equal(t, []string{
		"client_company_name",
		"client_vat_number",
		"client_offered_price",
		"pickup_address",
		"delivery_address",
	}, sch.CriticalFields())

	// every critical field is also required
	for _, name := range sch.CriticalFields() {
		spec := sch.Field(name)
		require.NotNil(t, spec, name)
		assert.True(t, spec.Required, name)
	}

	assert.Nil(t, sch.Field("no_such_field"))
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(TransportOrder())

	sch, err := reg.Get("transport_order")
	require.NoError(t, err)
	assert.Equal(t, "transport_order", sch.Name)

	_, err = reg.Get("invoice")
	assert.Error(t, err)
}

func TestCompileAndValidate(t *testing.T) {
	sch := TransportOrder()
	compiled, err := sch.Compiled()
	require.NoError(t, err)

	good := map[string]any{
		"client_company_name":  "Transcargo SRL",
		"client_vat_number":    "RO123456",
		"client_offered_price": 1450,
		"pickup_address":       "Str. Garii 14, Arad",
		"pickup_city":          "Arad",
		"delivery_address":     "Hauptstr. 2, 70173 Stuttgart",
		"delivery_city":        "Stuttgart",
		"pickup_date_start":    "2026-09-01",
		"confidence_scores":    map[string]any{"client_vat_number": 0.95},
	}
	b, err := json.Marshal(good)
	require.NoError(t, err)
	assert.NoError(t, ValidateDocument(compiled, b))

	for name, doc := range map[string]map[string]any{
		"unknown key": {
			"client_company_name": "Transcargo SRL", "client_vat_number": "RO123456",
			"client_offered_price": 1450, "pickup_address": "Str. Garii 14, Arad",
			"pickup_city": "Arad", "delivery_address": "Hauptstr. 2, 70173 Stuttgart",
			"delivery_city": "Stuttgart", "bogus": 1,
		},
		"price out of range": {
			"client_company_name": "Transcargo SRL", "client_vat_number": "RO123456",
			"client_offered_price": 5, "pickup_address": "Str. Garii 14, Arad",
			"pickup_city": "Arad", "delivery_address": "Hauptstr. 2, 70173 Stuttgart",
			"delivery_city": "Stuttgart",
		},
		"bad date": {
			"client_company_name": "Transcargo SRL", "client_vat_number": "RO123456",
			"client_offered_price": 1450, "pickup_address": "Str. Garii 14, Arad",
			"pickup_city": "Arad", "delivery_address": "Hauptstr. 2, 70173 Stuttgart",
			"delivery_city": "Stuttgart", "pickup_date_start": "01.09.2026",
		},
		"missing required": {
			"client_company_name": "Transcargo SRL",
		},
	} {
		b, err := json.Marshal(doc)
		require.NoError(t, err)
		assert.Error(t, ValidateDocument(compiled, b), name)
	}

	// memoized: same pointer comes back
	again, err := sch.Compiled()
	require.NoError(t, err)
	assert.Same(t, compiled, again)
}
