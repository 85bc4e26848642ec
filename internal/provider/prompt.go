package provider

import (
	"encoding/json"
	"strings"

	"github.com/freightflow/extractd/internal/normalize"
	"github.com/freightflow/extractd/internal/schema"
)

// maxPromptText caps how much normalized text is shipped to a backend.
const maxPromptText = 4000

func buildSystemPrompt(sch *schema.Schema) string {
	parts := []string{
		"You are an expert logistics document parser for Romanian freight forwarders.",
		"Extract structured data from transport order documents with high accuracy.",
		"Return ONLY JSON that matches the JSON Schema provided.",
		"Use ISO-8601 dates (YYYY-MM-DD).",
		"For Romanian VAT numbers, accept both RO and CUI prefixes.",
		"Prices are in EUR; convert if the document uses another currency.",
		"For addresses, prioritize full street addresses but accept city plus postcode as a minimum.",
		"Never output null. If a field is not present, omit it.",
		"Report per-field certainty (0..1) under 'confidence_scores'.",
	}
	return strings.Join(parts, " ")
}

func buildUserPrompt(doc *normalize.Document, sch *schema.Schema) string {
	var b strings.Builder
	b.WriteString("JSON Schema:\n")
	b.WriteString(mustJSON(sch.JSONSchema()))
	b.WriteString("\n\nDocument text")
	if doc.Language != "" && doc.Language != "unknown" {
		b.WriteString(" (" + doc.Language + ")")
	}
	b.WriteString(":\n")
	text := doc.Text
	if len(text) > maxPromptText {
		text = text[:maxPromptText]
	}
	b.WriteString(text)
	return b.String()
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
