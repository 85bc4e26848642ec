// Package consensus merges per-provider extraction results into a single
// field map with agreement fractions. It is pure: no clocks, no IO, and
// the same inputs always produce the same output.
package consensus

import (
	"sort"
	"strings"

	"github.com/freightflow/extractd/internal/provider"
	"github.com/freightflow/extractd/internal/schema"
)

// FieldConsensus is the merged verdict for one schema field.
type FieldConsensus struct {
	Name string `json:"name"`
	// Value is the winning raw value, taken verbatim from the source
	// provider's result.
	Value any `json:"value,omitempty"`
	// Source names the provider whose value was chosen.
	Source string `json:"source,omitempty"`
	// Agreement is agreeing providers over responding providers, in
	// [0,1]. Zero when no provider produced the field.
	Agreement float64 `json:"agreement"`
	// Confidence is the source provider's own certainty for the field,
	// when it reported one.
	Confidence float64 `json:"confidence,omitempty"`
	Missing    bool    `json:"missing,omitempty"`
	// Disputed marks fields where at least two providers produced
	// different normalized values.
	Disputed bool `json:"disputed,omitempty"`
}

// Outcome is the consensus over a full schema.
type Outcome struct {
	Fields map[string]FieldConsensus `json:"fields"`
	// Responding counts providers that returned a usable result.
	Responding int `json:"responding"`
	// LowRedundancy marks outcomes built from a single responding
	// provider, where agreement carries no information.
	LowRedundancy bool `json:"low_redundancy"`
}

// WeightFunc returns the tie-break weight for a provider name.
type WeightFunc func(provider string) int

// Consense merges provider results field by field. Failed results are
// ignored. For each field the candidate values are grouped by normalized
// form; the group with the highest total weight wins, and a total-weight
// tie resolves to the group holding the single heaviest provider, then
// the fastest, then the first normalized form. Within the winning group
// the representative is the heaviest provider, then the fastest, then
// the first by name. Ordering of the input slice never changes the
// outcome. A lone responder's agreement carries no information, so its
// own per-field confidence stands in for the agreement term.
func Consense(results []provider.Result, sch *schema.Schema, weight WeightFunc) Outcome {
	if weight == nil {
		weight = func(string) int { return 1 }
	}

	responding := make([]provider.Result, 0, len(results))
	for _, r := range results {
		if !r.Failed() {
			responding = append(responding, r)
		}
	}
	// deterministic regardless of arrival order
	sort.SliceStable(responding, func(i, j int) bool {
		return responding[i].Provider < responding[j].Provider
	})

	out := Outcome{
		Fields:        make(map[string]FieldConsensus, len(sch.Fields)),
		Responding:    len(responding),
		LowRedundancy: len(responding) == 1,
	}

	for _, spec := range sch.Fields {
		out.Fields[spec.Name] = consenseField(spec.Name, responding, weight)
	}

	if out.LowRedundancy {
		for name, fc := range out.Fields {
			if fc.Missing {
				continue
			}
			fc.Agreement = clamp01(fc.Confidence)
			out.Fields[name] = fc
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

type candidate struct {
	result     provider.Result
	normalized string
}

type valueGroup struct {
	norm    string
	total   int
	members []candidate
}

func consenseField(name string, responding []provider.Result, weight WeightFunc) FieldConsensus {
	var candidates []candidate
	for _, r := range responding {
		s, ok := r.FieldString(name)
		if !ok {
			continue
		}
		candidates = append(candidates, candidate{result: r, normalized: normalizeValue(s)})
	}

	if len(candidates) == 0 {
		return FieldConsensus{Name: name, Missing: true}
	}

	byNorm := make(map[string]*valueGroup)
	for _, c := range candidates {
		g, ok := byNorm[c.normalized]
		if !ok {
			g = &valueGroup{norm: c.normalized}
			byNorm[c.normalized] = g
		}
		g.total += weight(c.result.Provider)
		g.members = append(g.members, c)
	}

	groups := make([]*valueGroup, 0, len(byNorm))
	for _, g := range byNorm {
		// heaviest provider leads its group; latency then name settle ties
		sort.SliceStable(g.members, func(i, j int) bool {
			wi, wj := weight(g.members[i].result.Provider), weight(g.members[j].result.Provider)
			if wi != wj {
				return wi > wj
			}
			if g.members[i].result.Latency != g.members[j].result.Latency {
				return g.members[i].result.Latency < g.members[j].result.Latency
			}
			return g.members[i].result.Provider < g.members[j].result.Provider
		})
		groups = append(groups, g)
	}

	// highest total weight wins; a tie goes to the value held by the
	// single heaviest provider, then the fastest, then the first form
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].total != groups[j].total {
			return groups[i].total > groups[j].total
		}
		bi, bj := groups[i].members[0].result, groups[j].members[0].result
		if wi, wj := weight(bi.Provider), weight(bj.Provider); wi != wj {
			return wi > wj
		}
		if bi.Latency != bj.Latency {
			return bi.Latency < bj.Latency
		}
		return groups[i].norm < groups[j].norm
	})

	winner := groups[0]
	source := winner.members[0].result

	return FieldConsensus{
		Name:       name,
		Value:      source.Fields[name],
		Source:     source.Provider,
		Agreement:  float64(len(winner.members)) / float64(len(responding)),
		Confidence: source.Confidence[name],
		Disputed:   len(groups) > 1,
	}
}

// normalizeValue reduces a rendered field value to its comparison form:
// casefolded with runs of whitespace collapsed. Numbers arrive already
// canonical from FieldString.
func normalizeValue(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
