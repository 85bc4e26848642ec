package provider

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/freightflow/extractd/internal/schema"
)

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*\\})\\s*```")

// extractJSON pulls the JSON object out of a model reply that may wrap
// it in markdown fences or surrounding prose.
func extractJSON(content string) ([]byte, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "{") {
		return []byte(content), nil
	}
	if m := fencedJSON.FindStringSubmatch(content); m != nil {
		return []byte(m[1]), nil
	}
	if start := strings.Index(content, "{"); start >= 0 {
		if end := strings.LastIndex(content, "}"); end > start {
			return []byte(content[start : end+1]), nil
		}
	}
	return nil, fmt.Errorf("no JSON object in response")
}

// parseFields decodes a provider reply into the (fields, confidence)
// pair. Unknown keys are dropped rather than rejected, so a chatty model
// still yields a usable result; dropped keys are reported for logging.
func parseFields(content string, sch *schema.Schema) (fields map[string]any, confidence map[string]float64, dropped []string, err error) {
	raw, err := extractJSON(content)
	if err != nil {
		return nil, nil, nil, err
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, nil, fmt.Errorf("decode fields: %w", err)
	}

	confidence = make(map[string]float64)
	if cs, ok := m["confidence_scores"].(map[string]any); ok {
		for k, v := range cs {
			if f, ok := v.(float64); ok && f >= 0 && f <= 1 {
				confidence[k] = f
			}
		}
	}
	delete(m, "confidence_scores")

	fields = make(map[string]any, len(m))
	for k, v := range m {
		if sch.Field(k) == nil {
			dropped = append(dropped, k)
			continue
		}
		if v == nil {
			dropped = append(dropped, k+"(null)")
			continue
		}
		if s, ok := v.(string); ok {
			s = strings.TrimSpace(s)
			if s == "" {
				dropped = append(dropped, k+"(empty)")
				continue
			}
			v = s
		}
		fields[k] = v
	}
	return fields, confidence, dropped, nil
}

// heuristicConfidence fills per-field confidence when a backend reports
// none: presence-based baseline with small format-aware adjustments.
func heuristicConfidence(fields map[string]any, sch *schema.Schema) map[string]float64 {
	out := make(map[string]float64, len(fields))
	for name, value := range fields {
		score := 0.7
		if value != nil && strings.TrimSpace(fmt.Sprint(value)) != "" {
			score += 0.2
		}
		spec := sch.Field(name)
		if spec != nil && spec.Type == schema.TypeNumber {
			if _, ok := value.(float64); ok {
				score += 0.1
			} else {
				score -= 0.2
			}
		}
		if strings.Contains(name, "vat") {
			if s, ok := value.(string); ok && plausibleVAT(s) {
				score += 0.1
			}
		}
		if score > 1.0 {
			score = 1.0
		}
		if score < 0 {
			score = 0
		}
		out[name] = score
	}
	return out
}

var nonDigits = regexp.MustCompile(`[^0-9]`)

// plausibleVAT accepts RO and bare CUI forms: 2-10 digits after
// stripping everything non-numeric.
func plausibleVAT(vat string) bool {
	digits := nonDigits.ReplaceAllString(vat, "")
	return len(digits) >= 2 && len(digits) <= 10
}
