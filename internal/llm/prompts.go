package llm

import (
	"fmt"
	"strings"
)

const languageSystemPrompt = `You identify the dominant language of a text sample.
Respond with the ISO 639-1 code of the dominant language and your confidence from 0.0 to 1.0.`

const qualitySystemPrompt = `You assess the readability of digitized book text.
Score quality from 0.0 to 1.0. Penalize garbled characters, OCR noise, broken
encoding, and heavy truncation. Well-formed prose scores above 0.8.`

const classificationSystemPrompt = `You classify whether a text sample is literary narrative fiction.
Category is a short label such as "novel", "short story", "non-fiction",
"technical", "reference", or "poetry". Set literary to true only for narrative
fiction with characters and plot. Report confidence from 0.0 to 1.0.`

const titleSystemPrompt = `You identify a book from its opening pages.
Infer the most likely title and author. Use empty strings when the opening
gives no evidence, and report confidence from 0.0 to 1.0.`

const namesSystemPrompt = `You extract character names from narrative text.
List every person who appears or is referred to by name in the passage.
Include name variants as separate entries. Exclude places, organizations, and
generic role words that are not used as names. Return an empty list when the
passage mentions no characters.`

const summarySystemPrompt = `You maintain a running summary of a book as it is read chunk by chunk.
Fold the new passage into the prior summary: keep who the characters are, how
they relate, and what has happened. Stay under 1500 words. If you cannot
process the passage, set refused to true and leave the summary empty.`

const profilesSystemPrompt = `You extract character information from a narrative passage.
For each listed character, report only what this passage supports: age
descriptor, narrative role, physical traits, personality traits, events the
character takes part in, and relationships to other characters. Relationship
kind is one of: family, friend, enemy, romantic, colleague, mentor, student,
ally, rival, other. Strength is 0.0 to 1.0. Omit characters the passage says
nothing about.`

func namesUserPrompt(text, summary string) string {
	if strings.TrimSpace(summary) == "" {
		return text
	}
	return fmt.Sprintf("Story so far:\n%s\n\nPassage:\n%s", summary, text)
}

func summaryUserPrompt(priorSummary, chunk string) string {
	if strings.TrimSpace(priorSummary) == "" {
		return fmt.Sprintf("New passage:\n%s", chunk)
	}
	return fmt.Sprintf("Summary so far:\n%s\n\nNew passage:\n%s", priorSummary, chunk)
}

func profilesUserPrompt(chunk, summary string, names []string) string {
	var b strings.Builder
	if strings.TrimSpace(summary) != "" {
		fmt.Fprintf(&b, "Story so far:\n%s\n\n", summary)
	}
	fmt.Fprintf(&b, "Passage:\n%s\n\n", chunk)
	fmt.Fprintf(&b, "Characters to report on: %s", strings.Join(names, ", "))
	return b.String()
}
