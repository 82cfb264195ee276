package preprocess

import (
	"regexp"
	"strings"
)

var (
	tagPattern       = regexp.MustCompile(`<[^>]{1,200}>`)
	headingPattern   = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	emphasisPattern  = regexp.MustCompile(`(\*{1,3}|_{1,3})(\S[^*_]*?\S|\S)(\*{1,3}|_{1,3})`)
	blankRunPattern  = regexp.MustCompile(`\n{3,}`)
	spaceRunPattern  = regexp.MustCompile(`[ \t]{2,}`)
	pageNumPattern   = regexp.MustCompile(`(?m)^\s*[-–—\s]*\d{1,4}[-–—\s]*\s*$`)
	tocLinePattern   = regexp.MustCompile(`(?m)\.{4,}\s*\d+\s*$`)
	boilerplateWords = regexp.MustCompile(`(?i)(table of contents|copyright|all rights reserved|isbn|published by|printed in|first edition|translation rights|©|الفهرس|فهرس المحتويات|حقوق الطبع|حقوق النشر|جميع الحقوق محفوظة|دار النشر|الطبعة الأولى)`)
)

// Clean strips markup and formatting artifacts: tags, markdown decoration,
// page-number lines, and runs of whitespace.
func Clean(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\u00a0", " ")
	text = tagPattern.ReplaceAllString(text, " ")
	text = headingPattern.ReplaceAllString(text, "")
	text = emphasisPattern.ReplaceAllString(text, "$2")
	text = pageNumPattern.ReplaceAllString(text, "")
	text = spaceRunPattern.ReplaceAllString(text, " ")
	text = blankRunPattern.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// RemoveMetadata drops front-matter and back-matter boilerplate: leading and
// trailing paragraphs that read as copyright pages, tables of contents, or
// publisher notices. It stops at the first paragraph of real prose from each
// end, so interior text is never touched.
func RemoveMetadata(text string) string {
	paras := strings.Split(text, "\n\n")

	start := 0
	for start < len(paras) && isBoilerplate(paras[start]) {
		start++
	}
	end := len(paras)
	for end > start && isBoilerplate(paras[end-1]) {
		end--
	}
	if start == end {
		// Everything matched; keep the original rather than emptying it.
		return text
	}
	return strings.TrimSpace(strings.Join(paras[start:end], "\n\n"))
}

func isBoilerplate(para string) bool {
	trimmed := strings.TrimSpace(para)
	if trimmed == "" {
		return true
	}
	if boilerplateWords.MatchString(trimmed) {
		return true
	}
	// Table-of-contents blocks: lines of dot leaders ending in page numbers.
	if tocLinePattern.MatchString(trimmed) {
		return true
	}
	// Short all-caps or mostly-numeric fragments (title pages, page lists).
	words := strings.Fields(trimmed)
	if len(words) <= 8 {
		digits := 0
		for _, w := range words {
			if strings.IndexFunc(w, func(r rune) bool { return r >= '0' && r <= '9' }) >= 0 {
				digits++
			}
		}
		if digits*2 >= len(words) {
			return true
		}
	}
	return false
}
