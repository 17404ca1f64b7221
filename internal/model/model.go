// Package model defines the data shapes that flow through the attestation
// pipeline: the free-form policy context an analyzer hands to the core
// (CheckpointInputs), and the small closed set of fields the core itself
// is allowed to interpret structurally (everything else is opaque and
// round-trips through canonical encoding without the core ever branching
// on its content).
package model

// Card is the policy card a checkpoint was evaluated against. CardID and
// Values are the fields the core's per-field commitments (card_hash,
// values_hash) are defined over; additional caller-supplied fields are
// preserved and still participate in the combined commitment, but are not
// individually addressable.
type Card struct {
	CardID string           `json:"card_id"`
	Values []map[string]any `json:"values"`
	Extra  map[string]any   `json:"-"`
}

// CheckpointInputs is the free-form policy context an external analyzer
// hands to the core for commitment. The core never inspects these fields
// beyond canonicalizing and hashing them.
type CheckpointInputs struct {
	Card                  Card             `json:"card"`
	ConscienceValues      []map[string]any `json:"conscienceValues"`
	WindowContext         []map[string]any `json:"windowContext"`
	ModelVersion          string           `json:"modelVersion"`
	PromptTemplateVersion string           `json:"promptTemplateVersion"`
}

// CanonicalCard returns the JSON-shaped representation of Card used for
// hashing: Extra fields are merged in alongside card_id and values so a
// caller's additional context still participates in the card hash.
func (c Card) CanonicalCard() map[string]any {
	m := map[string]any{
		"card_id": c.CardID,
		"values":  valuesAsAny(c.Values),
	}
	for k, v := range c.Extra {
		if k == "card_id" || k == "values" {
			continue // structural fields always win over caller-supplied collisions
		}
		m[k] = v
	}
	return m
}

func valuesAsAny(values []map[string]any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// CanonicalConscienceValues returns ConscienceValues as a JSON-shaped []any
// for hashing.
func (in CheckpointInputs) CanonicalConscienceValues() []any {
	return valuesAsAny(in.ConscienceValues)
}

// CanonicalWindowContext returns WindowContext as a JSON-shaped []any for
// hashing.
func (in CheckpointInputs) CanonicalWindowContext() []any {
	return valuesAsAny(in.WindowContext)
}

// Canonical returns the full map[string]any shape of CheckpointInputs used
// to compute the combined input commitment. It matches marshaling the
// struct, except that Card.Extra fields are merged into the card object,
// which a plain struct marshal skips.
func (in CheckpointInputs) Canonical() map[string]any {
	return map[string]any{
		"card":                  in.Card.CanonicalCard(),
		"conscienceValues":      in.CanonicalConscienceValues(),
		"windowContext":         in.CanonicalWindowContext(),
		"modelVersion":          in.ModelVersion,
		"promptTemplateVersion": in.PromptTemplateVersion,
	}
}
