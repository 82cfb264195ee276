package characters

import (
	"sort"

	"github.com/agnivade/levenshtein"
)

// DefaultSimilarityThreshold is the minimum fuzzy score accepted as a match.
const DefaultSimilarityThreshold = 0.8

// Resolver matches candidate names against an evolving profile set.
// Matching is never exact-string: names are normalized first, and
// non-identical keys are scored with a levenshtein ratio.
type Resolver struct {
	norm      *Normalizer
	threshold float64
}

// NewResolver builds a resolver with the given normalizer and similarity
// threshold. A zero threshold falls back to the default.
func NewResolver(norm *Normalizer, threshold float64) *Resolver {
	if norm == nil {
		norm = NewNormalizer(nil)
	}
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	return &Resolver{norm: norm, threshold: threshold}
}

// Similarity returns the levenshtein ratio of two normalized keys in [0,1].
func Similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(dist)/float64(longest)
}

// Match is the outcome of resolving one name.
type Match struct {
	ID    string
	Score float64
}

// Resolve returns the profile identifier the name resolves to, or ok=false
// when no profile clears the threshold. Exact normalized equality against a
// profile's name or any alias always wins with score 1.0. Among fuzzy
// candidates the highest score is picked; exact score ties prefer the
// profile with more prior mentions.
func (r *Resolver) Resolve(name string, profiles map[string]*Profile) (Match, bool) {
	key := r.norm.Key(name)
	if key == "" {
		return Match{}, false
	}

	var best *Profile
	bestScore := 0.0
	for _, id := range sortedIDs(profiles) {
		p := profiles[id]
		for _, candidate := range p.Names() {
			ck := r.norm.Key(candidate)
			if ck == "" {
				continue
			}
			if ck == key {
				return Match{ID: p.ID, Score: 1.0}, true
			}
			score := Similarity(key, ck)
			if score > bestScore || (score == bestScore && best != nil && p.Mentions > best.Mentions) {
				best = p
				bestScore = score
			}
		}
	}

	if best != nil && bestScore >= r.threshold {
		return Match{ID: best.ID, Score: bestScore}, true
	}
	return Match{}, false
}

// sortedIDs gives deterministic iteration so tie-breaks are stable.
func sortedIDs(profiles map[string]*Profile) []string {
	ids := make([]string, 0, len(profiles))
	for id := range profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
