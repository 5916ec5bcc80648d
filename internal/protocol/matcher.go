package protocol

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/tOgg1/hangview/internal/models"
)

// ErrRequiredContentMissing is returned when a required display set reference
// has no match.
var ErrRequiredContentMissing = errors.New("required content missing")

// SelectorMapKey is the key under which a carried display set choice is
// stored: "{study}:{selectorId}:{matchedIndex}".
func SelectorMapKey(studyUID, selectorID string, matchedIndex int) string {
	return fmt.Sprintf("%s:%s:%d", studyUID, selectorID, matchedIndex)
}

// ruleMatches reports whether a single rule accepts value.
func ruleMatches(rule models.MatchRule, value string) bool {
	switch {
	case rule.Equals != "":
		return strings.EqualFold(value, rule.Equals)
	case rule.Contains != "":
		return strings.Contains(strings.ToLower(value), strings.ToLower(rule.Contains))
	default:
		return value != ""
	}
}

// Score rates ds against sel. The boolean is false when a required rule
// fails or, for a selector with rules, when nothing matched.
func Score(sel models.DisplaySetSelector, ds models.DisplaySet) (int, bool) {
	if len(sel.Rules) == 0 {
		return 0, true
	}
	score := 0
	for _, rule := range sel.Rules {
		if !ruleMatches(rule, ds.Attribute(rule.Attribute)) {
			if rule.Required {
				return 0, false
			}
			continue
		}
		score += max(rule.Weight, 1)
	}
	return score, score > 0
}

// Rank returns the display sets accepted by sel, best score first. Ties keep
// the input order.
func Rank(sel models.DisplaySetSelector, sets []models.DisplaySet) []models.DisplaySet {
	type scored struct {
		ds    models.DisplaySet
		score int
	}
	var hits []scored
	for _, ds := range sets {
		if score, ok := Score(sel, ds); ok {
			hits = append(hits, scored{ds: ds, score: score})
		}
	}
	slices.SortStableFunc(hits, func(a, b scored) int { return b.score - a.score })
	out := make([]models.DisplaySet, len(hits))
	for i, h := range hits {
		out[i] = h.ds
	}
	return out
}

// Matcher resolves display set references of one protocol against the
// content of one study.
type Matcher struct {
	protocol    models.Protocol
	studyUID    string
	sets        []models.DisplaySet
	selectorMap map[string]string
	ranked      map[string][]models.DisplaySet
}

// NewMatcher creates a matcher. selectorMap entries, keyed by
// SelectorMapKey, override rule ranking when they name a known display set.
func NewMatcher(p models.Protocol, studyUID string, sets []models.DisplaySet, selectorMap map[string]string) *Matcher {
	return &Matcher{
		protocol:    p,
		studyUID:    studyUID,
		sets:        sets,
		selectorMap: selectorMap,
		ranked:      make(map[string][]models.DisplaySet),
	}
}

// Candidates returns the ranked matches for a selector id.
func (m *Matcher) Candidates(selectorID string) []models.DisplaySet {
	if cached, ok := m.ranked[selectorID]; ok {
		return cached
	}
	sel := m.protocol.DisplaySetSelectors[selectorID]
	ranked := Rank(sel, m.sets)
	m.ranked[selectorID] = ranked
	return ranked
}

// Resolve picks the display set for ref. The boolean is false when nothing
// matched and the reference is optional.
func (m *Matcher) Resolve(ref models.DisplaySetRef) (models.DisplaySet, bool, error) {
	if uid, ok := m.selectorMap[SelectorMapKey(m.studyUID, ref.SelectorID, ref.MatchedIndex)]; ok {
		if i := slices.IndexFunc(m.sets, func(ds models.DisplaySet) bool { return ds.UID == uid }); i >= 0 {
			return m.sets[i], true, nil
		}
	}
	candidates := m.Candidates(ref.SelectorID)
	if ref.MatchedIndex >= 0 && ref.MatchedIndex < len(candidates) {
		return candidates[ref.MatchedIndex], true, nil
	}
	if ref.Required {
		return models.DisplaySet{}, false, fmt.Errorf("%w: selector %q index %d", ErrRequiredContentMissing, ref.SelectorID, ref.MatchedIndex)
	}
	return models.DisplaySet{}, false, nil
}
