package answer

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const minSentenceRunes = 20

// StructuredFallback composes a deterministic extractive answer from
// the sections alone. It never touches the network, so questions keep
// getting answered while every generation backend is down.
func StructuredFallback(question string, sections []Section) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generation models are currently unavailable. "+
		"The most relevant passages for %q are:\n\n", strings.TrimSpace(question))

	var bullets int
	for _, s := range sections {
		lead := leadingSentence(s.Excerpt)
		if lead == "" {
			continue
		}
		fmt.Fprintf(&b, "- %s [Source: %s]\n", lead, s.Title)
		bullets++
	}

	if bullets == 0 && len(sections) > 0 {
		// No excerpt had a usable sentence; quote the best match raw.
		first := sections[0]
		fmt.Fprintf(&b, "- %q [Source: %s]\n", truncate(strings.TrimSpace(first.Excerpt), 200), first.Title)
	}

	fmt.Fprintf(&b, "\nBased on %d source %s. Retry later for a generated summary.",
		len(sections), pluralize("section", len(sections)))
	return b.String()
}

// leadingSentence returns the first sentence of text that is at least
// minSentenceRunes long after trimming, or "" when none qualifies.
func leadingSentence(text string) string {
	for _, s := range sentences(text) {
		s = strings.TrimSpace(s)
		if utf8.RuneCountInString(s) >= minSentenceRunes {
			return s
		}
	}
	return ""
}

// sentences splits text on terminal punctuation followed by space,
// keeping the punctuation with its sentence.
func sentences(text string) []string {
	var out []string
	var start int
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '.', '!', '?':
			end := i + 1
			for end < len(runes) && (runes[end] == '.' || runes[end] == '!' || runes[end] == '?') {
				end++
			}
			if end >= len(runes) || runes[end] == ' ' || runes[end] == '\n' || runes[end] == '\t' {
				out = append(out, string(runes[start:end]))
				start = end
				i = end - 1
			}
		}
	}
	if start < len(runes) {
		out = append(out, string(runes[start:]))
	}
	return out
}

func pluralize(noun string, n int) string {
	if n == 1 {
		return noun
	}
	return noun + "s"
}
