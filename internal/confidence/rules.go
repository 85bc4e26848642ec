// Package confidence turns a consensus outcome into per-field and
// overall confidence scores plus review flags. Scoring is pure; the
// routing policy that consumes it lives in the review package.
package confidence

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/freightflow/extractd/internal/schema"
)

// RuleCheck is the rule-validity verdict for one field value: a binary
// pass/fail plus the reasons it failed.
type RuleCheck struct {
	Valid   bool     `json:"valid"`
	Reasons []string `json:"reasons,omitempty"`
}

var (
	patternMu    sync.Mutex
	patternCache = map[string]*regexp.Regexp{}
)

func compiledPattern(expr string) *regexp.Regexp {
	patternMu.Lock()
	defer patternMu.Unlock()
	if re, ok := patternCache[expr]; ok {
		return re
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		// a bad pattern in a schema is a programming error; treat it as
		// matching nothing rather than panicking mid-job
		re = regexp.MustCompile(`\x00unmatchable`)
	}
	patternCache[expr] = re
	return re
}

var vatNonDigits = regexp.MustCompile(`[^0-9]`)

// validVAT accepts Romanian VAT identifiers leniently: RO-prefixed,
// bare CUI, dotted or spaced forms all pass as long as 2-10 digits
// remain after stripping everything non-numeric.
func validVAT(vat string) bool {
	digits := vatNonDigits.ReplaceAllString(vat, "")
	return len(digits) >= 2 && len(digits) <= 10
}

// ValidateField applies the schema's rules to one extracted value.
// A missing value fails only when the field is required.
func ValidateField(spec *schema.FieldSpec, value any) RuleCheck {
	if value == nil {
		if spec.Required {
			return RuleCheck{Reasons: []string{"required field missing"}}
		}
		return RuleCheck{Valid: true}
	}

	var reasons []string

	switch spec.Type {
	case schema.TypeNumber:
		f, ok := value.(float64)
		if !ok {
			if s, isStr := value.(string); isStr {
				parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
				if err != nil {
					reasons = append(reasons, "not a number")
					break
				}
				f = parsed
			} else {
				reasons = append(reasons, "not a number")
				break
			}
		}
		if f <= 0 {
			reasons = append(reasons, "not positive")
		}
		if (spec.Min != 0 || spec.Max != 0) && (f < spec.Min || f > spec.Max) {
			reasons = append(reasons, "outside plausible range")
		}

	case schema.TypeDate:
		s, _ := value.(string)
		if _, err := time.Parse("2006-01-02", strings.TrimSpace(s)); err != nil {
			reasons = append(reasons, "not an ISO date")
		}

	default:
		s, ok := value.(string)
		if !ok {
			reasons = append(reasons, "not a string")
			break
		}
		s = strings.TrimSpace(s)
		if s == "" {
			if spec.Required {
				reasons = append(reasons, "required field missing")
			}
			break
		}
		if spec.MinLength > 0 && len(s) < spec.MinLength {
			reasons = append(reasons, "too short")
		}
		if strings.Contains(spec.Name, "vat") {
			if !validVAT(s) {
				reasons = append(reasons, "implausible VAT number")
			}
		} else if spec.Pattern != "" && !compiledPattern(spec.Pattern).MatchString(s) {
			reasons = append(reasons, "pattern mismatch")
		}
	}

	return RuleCheck{Valid: len(reasons) == 0, Reasons: reasons}
}
