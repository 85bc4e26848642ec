package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freightflow/extractd/internal/schema"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{
			name:    "bare object",
			content: `{"a":1}`,
			want:    `{"a":1}`,
		},
		{
			name:    "markdown fenced",
			content: "Here you go:\n```json\n{\"a\":1}\n```\nDone.",
			want:    `{"a":1}`,
		},
		{
			name:    "fenced without language tag",
			content: "```\n{\"a\":1}\n```",
			want:    `{"a":1}`,
		},
		{
			name:    "embedded in prose",
			content: `The extracted data is {"a":1} as requested.`,
			want:    `{"a":1}`,
		},
		{
			name:    "no object at all",
			content: "I could not read the document.",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractJSON(tt.content)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestParseFields(t *testing.T) {
	sch := schema.TransportOrder()

	content := `{
		"client_company_name": "  Transcargo SRL ",
		"client_vat_number": "RO123456",
		"client_offered_price": 1450,
		"bogus_key": "x",
		"cargo_description": null,
		"pickup_city": "",
		"confidence_scores": {"client_company_name": 0.95, "client_vat_number": 1.4}
	}`

	fields, confidence, dropped, err := parseFields(content, sch)
	require.NoError(t, err)

	assert.Equal(t, "Transcargo SRL", fields["client_company_name"])
	assert.Equal(t, "RO123456", fields["client_vat_number"])
	assert.Equal(t, float64(1450), fields["client_offered_price"])

	assert.NotContains(t, fields, "bogus_key")
	assert.NotContains(t, fields, "cargo_description")
	assert.NotContains(t, fields, "pickup_city")
	assert.Len(t, dropped, 3)

	// out-of-range confidence entries are discarded
	assert.Equal(t, 0.95, confidence["client_company_name"])
	assert.NotContains(t, confidence, "client_vat_number")
}

func TestParseFieldsRejectsNonJSON(t *testing.T) {
	sch := schema.TransportOrder()
	_, _, _, err := parseFields("sorry, the scan is unreadable", sch)
	require.Error(t, err)
}

func TestHeuristicConfidence(t *testing.T) {
	sch := schema.TransportOrder()

	fields := map[string]any{
		"client_company_name":  "Transcargo SRL",
		"client_vat_number":    "RO123456",
		"client_offered_price": float64(1450),
	}
	scores := heuristicConfidence(fields, sch)

	require.Len(t, scores, 3)
	for name, s := range scores {
		assert.GreaterOrEqual(t, s, 0.0, name)
		assert.LessOrEqual(t, s, 1.0, name)
	}
	// plausible VAT earns a bonus over a plain string field
	assert.Greater(t, scores["client_vat_number"], scores["client_company_name"])
	// well-typed number earns its bonus too
	assert.Greater(t, scores["client_offered_price"], scores["client_company_name"])
}

func TestPlausibleVAT(t *testing.T) {
	assert.True(t, plausibleVAT("RO123456"))
	assert.True(t, plausibleVAT("123456"))
	assert.True(t, plausibleVAT("RO 12.34.56"))
	assert.False(t, plausibleVAT("RO"))
	assert.False(t, plausibleVAT("1"))
	assert.False(t, plausibleVAT("12345678901"))
}
