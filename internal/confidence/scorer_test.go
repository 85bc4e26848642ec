package confidence

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freightflow/extractd/internal/consensus"
	"github.com/freightflow/extractd/internal/schema"
)

func outcomeWith(fields map[string]consensus.FieldConsensus, lowRedundancy bool) consensus.Outcome {
	return consensus.Outcome{Fields: fields, Responding: 2, LowRedundancy: lowRedundancy}
}

func agreed(name string, value any, agreement float64) consensus.FieldConsensus {
	return consensus.FieldConsensus{Name: name, Value: value, Source: "openai", Agreement: agreement}
}

// allCriticalAgreed builds a consensus where every critical field has a
// valid value at the given agreement level.
func allCriticalAgreed(agreement float64) map[string]consensus.FieldConsensus {
	return map[string]consensus.FieldConsensus{
		"client_company_name":  agreed("client_company_name", "Transcargo SRL", agreement),
		"client_vat_number":    agreed("client_vat_number", "RO123456", agreement),
		"client_offered_price": agreed("client_offered_price", float64(1450), agreement),
		"pickup_address":       agreed("pickup_address", "Str. Garii 14, Arad", agreement),
		"delivery_address":     agreed("delivery_address", "Hauptstr. 2, 70173 Stuttgart", agreement),
	}
}

func TestScoreBlend(t *testing.T) {
	sch := schema.TransportOrder()
	out := outcomeWith(allCriticalAgreed(1.0), false)

	report := Score(uuid.New(), out, sch, DefaultWeights())

	for _, fs := range report.Fields {
		if !fs.Critical {
			continue
		}
		// full agreement, valid rules: 0.6*1 + 0.4*1
		assert.InDelta(t, 1.0, fs.Confidence, 1e-9, fs.Name)
		assert.True(t, fs.RuleValid, fs.Name)
		assert.False(t, fs.Flagged, fs.Name)
	}
	assert.InDelta(t, 1.0, report.Overall, 1e-9)
	assert.Zero(t, report.FlaggedCritical)
}

func TestScoreRuleFailureCapsConfidence(t *testing.T) {
	sch := schema.TransportOrder()
	fields := allCriticalAgreed(1.0)
	// price outside the plausible range fails the rule axis
	fields["client_offered_price"] = agreed("client_offered_price", float64(7), 1.0)

	report := Score(uuid.New(), outcomeWith(fields, false), sch, DefaultWeights())

	var price FieldScore
	for _, fs := range report.Fields {
		if fs.Name == "client_offered_price" {
			price = fs
		}
	}
	require.NotEmpty(t, price.Name)
	// 0.6*1.0 + 0.4*0
	assert.InDelta(t, 0.6, price.Confidence, 1e-9)
	assert.False(t, price.RuleValid)
	assert.Contains(t, price.Reasons, "outside plausible range")
	assert.True(t, price.Flagged)
	assert.Equal(t, 1, report.FlaggedCritical)
}

func TestScoreFieldThresholdBoundary(t *testing.T) {
	sch := schema.TransportOrder()

	// agreement 0.75 with valid rules: 0.6*0.75 + 0.4 = 0.85, on the
	// threshold and therefore NOT flagged
	report := Score(uuid.New(), outcomeWith(allCriticalAgreed(0.75), false), sch, DefaultWeights())
	assert.Zero(t, report.FlaggedCritical)
	assert.InDelta(t, 0.85, report.Overall, 1e-9)

	// a hair under flags every critical field
	report = Score(uuid.New(), outcomeWith(allCriticalAgreed(0.749999), false), sch, DefaultWeights())
	assert.Equal(t, 5, report.FlaggedCritical)
	assert.Less(t, report.Overall, 0.85)
}

func TestScoreMissingCriticalField(t *testing.T) {
	sch := schema.TransportOrder()
	fields := allCriticalAgreed(1.0)
	fields["delivery_address"] = consensus.FieldConsensus{Name: "delivery_address", Missing: true}

	report := Score(uuid.New(), outcomeWith(fields, false), sch, DefaultWeights())

	var addr FieldScore
	for _, fs := range report.Fields {
		if fs.Name == "delivery_address" {
			addr = fs
		}
	}
	assert.True(t, addr.Missing)
	assert.Zero(t, addr.Confidence)
	assert.Contains(t, addr.Reasons, "required field missing")
	assert.True(t, addr.Flagged)

	// overall is the unweighted mean over all five critical fields
	assert.InDelta(t, 4.0/5.0, report.Overall, 1e-9)
}

func TestScoreLowRedundancyPropagates(t *testing.T) {
	sch := schema.TransportOrder()
	report := Score(uuid.New(), outcomeWith(allCriticalAgreed(1.0), true), sch, DefaultWeights())
	assert.True(t, report.LowRedundancy)
}

func TestScoreDegradedUsesProviderConfidence(t *testing.T) {
	sch := schema.TransportOrder()
	// a lone responder reporting 0.4 lands well under the threshold even
	// with every rule passing: 0.6*0.4 + 0.4
	out := consensus.Outcome{
		Fields:        allCriticalAgreed(0.4),
		Responding:    1,
		LowRedundancy: true,
	}

	report := Score(uuid.New(), out, sch, DefaultWeights())

	assert.True(t, report.LowRedundancy)
	assert.InDelta(t, 0.64, report.Overall, 1e-9)
	assert.Equal(t, 5, report.FlaggedCritical)
}

func TestValidateFieldVATLeniency(t *testing.T) {
	spec := schema.TransportOrder().Field("client_vat_number")
	require.NotNil(t, spec)

	for _, vat := range []string{"RO123456", "123456", "RO 12.345.678", "CUI 9876543"} {
		assert.True(t, ValidateField(spec, vat).Valid, vat)
	}
	for _, vat := range []string{"RO", "X", "123456789012345"} {
		assert.False(t, ValidateField(spec, vat).Valid, vat)
	}
}

func TestValidateFieldDates(t *testing.T) {
	spec := schema.TransportOrder().Field("pickup_date_start")
	require.NotNil(t, spec)

	assert.True(t, ValidateField(spec, "2026-09-01").Valid)
	assert.False(t, ValidateField(spec, "01.09.2026").Valid)
	assert.False(t, ValidateField(spec, "2026-13-40").Valid)
	// optional date may be absent
	assert.True(t, ValidateField(spec, nil).Valid)
}

func TestValidateFieldNumericString(t *testing.T) {
	spec := schema.TransportOrder().Field("client_offered_price")
	require.NotNil(t, spec)

	// models sometimes return numbers as strings; coerce before ranging
	assert.True(t, ValidateField(spec, "1450").Valid)
	assert.False(t, ValidateField(spec, "eight hundred").Valid)
	assert.False(t, ValidateField(spec, float64(-5)).Valid)
	assert.False(t, ValidateField(spec, float64(500000)).Valid)
}

func TestValidateFieldPatternAndLength(t *testing.T) {
	country := schema.TransportOrder().Field("pickup_country")
	require.NotNil(t, country)
	assert.True(t, ValidateField(country, "RO").Valid)
	assert.False(t, ValidateField(country, "Romania").Valid)

	name := schema.TransportOrder().Field("client_company_name")
	require.NotNil(t, name)
	assert.False(t, ValidateField(name, "AB").Valid)
	assert.True(t, ValidateField(name, "ABC Logistics").Valid)
}
