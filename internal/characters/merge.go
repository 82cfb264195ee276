package characters

import "strings"

// Merge folds a per-chunk update into an existing profile. The profile's
// identifier and canonical name are preserved; list fields are unioned,
// relations are deduplicated by target, and a variant spelling of the name
// is recorded as an alias. chunk attributes new events to their position.
// Applying the same update twice changes nothing beyond the mention count.
func Merge(norm *Normalizer, existing *Profile, update *Update, observedName string, chunk int) {
	if existing == nil || !update.Valid() {
		return
	}
	if update.Age != "" {
		existing.Age = update.Age
	}
	if update.Role != "" {
		existing.Role = update.Role
	}
	existing.Physical = mergeStrings(existing.Physical, update.Physical)
	existing.Personality = mergeStrings(existing.Personality, update.Personality)

	for _, desc := range update.Events {
		desc = strings.TrimSpace(desc)
		if desc == "" || hasEvent(existing.Events, desc) {
			continue
		}
		existing.Events = append(existing.Events, Event{Chunk: chunk, Description: desc})
	}

	existing.Relations = mergeRelations(norm, existing.Relations, update.Relations)

	aliases := update.Aliases
	if observedName != "" && norm.Key(observedName) != norm.Key(existing.Name) {
		aliases = append(aliases, observedName)
	}
	existing.Aliases = mergeAliases(norm, existing.Name, existing.Aliases, aliases)

	existing.Mentions++
}

// NewProfile creates a fresh profile from an update, assigning the given
// identifier. The observed raw name becomes the canonical name.
func NewProfile(id string, update *Update, chunk int) *Profile {
	p := &Profile{
		ID:          id,
		Name:        strings.TrimSpace(update.Name),
		Aliases:     dedupeStrings(update.Aliases),
		Age:         update.Age,
		Role:        update.Role,
		Physical:    dedupeStrings(update.Physical),
		Personality: dedupeStrings(update.Personality),
		Mentions:    1,
	}
	for _, desc := range update.Events {
		desc = strings.TrimSpace(desc)
		if desc == "" {
			continue
		}
		p.Events = append(p.Events, Event{Chunk: chunk, Description: desc})
	}
	p.Relations = mergeRelations(nil, nil, update.Relations)
	return p
}

func hasEvent(events []Event, desc string) bool {
	for _, e := range events {
		if e.Description == desc {
			return true
		}
	}
	return false
}

// mergeStrings unions two lists preserving first-seen order.
func mergeStrings(old, add []string) []string {
	return appendMissing(old, add, func(s string) string { return strings.TrimSpace(s) })
}

func dedupeStrings(in []string) []string {
	return appendMissing(nil, in, func(s string) string { return strings.TrimSpace(s) })
}

func mergeAliases(norm *Normalizer, canonical string, old, add []string) []string {
	canonKey := norm.Key(canonical)
	seen := map[string]bool{canonKey: true}
	var out []string
	for _, a := range append(append([]string{}, old...), add...) {
		a = strings.TrimSpace(a)
		k := norm.Key(a)
		if a == "" || k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, a)
	}
	return out
}

// mergeRelations deduplicates by resolved target id when present, otherwise
// by normalized target name. A re-observed relation overwrites kind,
// strength, and description: later chunks carry fresher context.
func mergeRelations(norm *Normalizer, old, add []Relation) []Relation {
	if norm == nil {
		norm = NewNormalizer(nil)
	}
	keyOf := func(r Relation) string {
		if r.TargetID != "" {
			return "id:" + r.TargetID
		}
		return "name:" + norm.Key(r.TargetName)
	}

	index := make(map[string]int)
	var out []Relation
	for _, r := range old {
		index[keyOf(r)] = len(out)
		out = append(out, r)
	}
	for _, r := range add {
		r.Kind = NormalizeKind(string(r.Kind))
		if r.Strength < 0 {
			r.Strength = 0
		} else if r.Strength > 1 {
			r.Strength = 1
		}
		k := keyOf(r)
		if i, ok := index[k]; ok {
			if r.TargetID == "" {
				r.TargetID = out[i].TargetID
			}
			out[i] = r
			continue
		}
		index[k] = len(out)
		out = append(out, r)
	}
	return out
}

func appendMissing(dst, add []string, clean func(string) string) []string {
	seen := make(map[string]bool, len(dst))
	var out []string
	for _, s := range dst {
		s = clean(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	for _, s := range add {
		s = clean(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
