package characters

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultHonorifics are title prefixes stripped before name comparison.
// The Arabic entries mirror the honorifics common in the source material;
// callers can extend the list via config.
var DefaultHonorifics = []string{
	// Arabic
	"الشيخ", "شيخ", "السيد", "سيد", "السيدة", "معلم", "الحاج", "الحاجة",
	"الدكتور", "دكتور", "د.", "الأستاذ", "الاستاذ", "استاذ",
	// Latin
	"mr", "mr.", "mrs", "mrs.", "ms", "ms.", "dr", "dr.", "prof", "prof.",
	"sir", "lady", "lord",
}

// stripMarks removes combining marks (diacritics, Arabic tashkeel) after NFD
// decomposition, then recomposes.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// variantFolds maps orthographic variant letters onto one canonical form:
// alef/teh-marbuta/ya variants in Arabic, i/y in transliterated names.
var variantFolds = strings.NewReplacer(
	"أ", "ا",
	"إ", "ا",
	"آ", "ا",
	"ى", "ي",
	"ئ", "ي",
	"ؤ", "و",
	"ة", "ه",
	"y", "i",
)

// Normalizer folds character names into a canonical comparison key.
type Normalizer struct {
	honorifics []string
}

// NewNormalizer builds a normalizer. A nil or empty honorific list falls
// back to DefaultHonorifics.
func NewNormalizer(honorifics []string) *Normalizer {
	if len(honorifics) == 0 {
		honorifics = DefaultHonorifics
	}
	return &Normalizer{honorifics: honorifics}
}

// Key normalizes a name for comparison: trim, lowercase, fold diacritics,
// drop the tatweel, strip a leading honorific, and remove spaces. An empty
// input yields an empty key, which never matches anything.
func (n *Normalizer) Key(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, "ـ", "") // tatweel
	if folded, _, err := transform.String(stripMarks, s); err == nil {
		s = folded
	}
	s = n.stripHonorific(s)
	s = variantFolds.Replace(s)
	return strings.Join(strings.Fields(s), "")
}

func (n *Normalizer) stripHonorific(s string) string {
	for _, h := range n.honorifics {
		h = strings.ToLower(h)
		if rest, ok := strings.CutPrefix(s, h+" "); ok {
			return strings.TrimSpace(rest)
		}
	}
	return s
}
