// Package characters holds the character record model, name normalization,
// fuzzy resolution, and merge semantics used by the analysis pipeline.
package characters

// RelationKind is the closed set of relationship types between characters.
type RelationKind string

const (
	RelationFamily    RelationKind = "family"
	RelationFriend    RelationKind = "friend"
	RelationEnemy     RelationKind = "enemy"
	RelationRomantic  RelationKind = "romantic"
	RelationColleague RelationKind = "colleague"
	RelationMentor    RelationKind = "mentor"
	RelationStudent   RelationKind = "student"
	RelationAlly      RelationKind = "ally"
	RelationRival     RelationKind = "rival"
	RelationOther     RelationKind = "other"
)

// ValidKind reports whether k is one of the known relationship kinds.
// Unknown kinds coming back from extraction are coerced to RelationOther.
func ValidKind(k RelationKind) bool {
	switch k {
	case RelationFamily, RelationFriend, RelationEnemy, RelationRomantic,
		RelationColleague, RelationMentor, RelationStudent, RelationAlly,
		RelationRival, RelationOther:
		return true
	}
	return false
}

// NormalizeKind maps an arbitrary extracted kind string onto the closed set.
func NormalizeKind(s string) RelationKind {
	k := RelationKind(s)
	if ValidKind(k) {
		return k
	}
	return RelationOther
}

// Event is a single narrative event attributed to a character.
type Event struct {
	// Chunk is the chunk number the event was observed in. It stands in for
	// chapter position since chunking is the pipeline's unit of progress.
	Chunk       int    `json:"chunk"`
	Description string `json:"description"`
}

// Relation is an outgoing relationship edge from one character to another.
type Relation struct {
	// TargetID is set once the target name has been resolved to a profile.
	TargetID string `json:"target_id,omitempty"`
	// TargetName is the raw name the relation was extracted against.
	TargetName  string       `json:"target_name"`
	Kind        RelationKind `json:"kind"`
	Strength    float64      `json:"strength"` // 0..1
	Description string       `json:"description,omitempty"`
}

// Profile is the accumulating structured description of one narrative entity.
// Identifiers are stable within a book: once assigned, a profile is merged
// into, never renamed or deleted, during a run.
type Profile struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Aliases     []string   `json:"aliases,omitempty"`
	Age         string     `json:"age,omitempty"`
	Role        string     `json:"role,omitempty"`
	Physical    []string   `json:"physical,omitempty"`
	Personality []string   `json:"personality,omitempty"`
	Events      []Event    `json:"events,omitempty"`
	Relations   []Relation `json:"relations,omitempty"`

	// Mentions counts how many chunk observations have merged into this
	// profile. Used as the tie-break for equal-similarity matches.
	Mentions int `json:"mentions"`
}

// Names returns the canonical name plus all aliases.
func (p *Profile) Names() []string {
	out := make([]string, 0, len(p.Aliases)+1)
	out = append(out, p.Name)
	out = append(out, p.Aliases...)
	return out
}

// Update is the per-chunk observation of a character produced by extraction,
// before it has been resolved against existing profiles.
type Update struct {
	Name        string     `json:"name"`
	Aliases     []string   `json:"aliases,omitempty"`
	Age         string     `json:"age,omitempty"`
	Role        string     `json:"role,omitempty"`
	Physical    []string   `json:"physical,omitempty"`
	Personality []string   `json:"personality,omitempty"`
	Events      []string   `json:"events,omitempty"`
	Relations   []Relation `json:"relations,omitempty"`
}

// Valid reports whether the update carries enough to act on.
func (u *Update) Valid() bool {
	return u != nil && u.Name != ""
}
