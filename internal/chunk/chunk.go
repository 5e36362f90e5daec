// Package chunk splits document text into overlapping segments sized
// for embedding.
package chunk

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultSize    = 1000
	DefaultOverlap = 200
)

// Document identifies the source a chunk came from.
type Document struct {
	Filename string
	Source   string
	Title    string
}

// Chunk is one embeddable segment of a document.
type Chunk struct {
	Text      string
	Index     int
	Total     int
	Filename  string
	Source    string
	Title     string
	CreatedAt time.Time
}

// ID returns the stable identifier for this chunk. Re-ingesting the same
// document produces the same IDs, so index writes overwrite rather than
// duplicate.
func (c Chunk) ID() string {
	return fmt.Sprintf("%s_chunk_%d", c.Filename, c.Index)
}

// Splitter cuts text at paragraph boundaries first, sentence boundaries
// second, and raw rune windows as a last resort, then packs the pieces
// into chunks of at most Size runes. Consecutive chunks share the last
// Overlap runes of their predecessor, so a chunk that starts with carried
// text may run up to Size+Overlap runes.
type Splitter struct {
	Size    int
	Overlap int
}

func NewSplitter(size, overlap int) *Splitter {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 5
	}
	return &Splitter{Size: size, Overlap: overlap}
}

// Split chunks text belonging to doc. It returns nil for text that is
// empty after trimming; callers decide whether that is an error.
func (s *Splitter) Split(text string, doc Document) []Chunk {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if text == "" {
		return nil
	}

	texts := s.pack(s.segments(text))
	now := time.Now().UTC()
	chunks := make([]Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = Chunk{
			Text:      t,
			Index:     i,
			Total:     len(texts),
			Filename:  doc.Filename,
			Source:    doc.Source,
			Title:     doc.Title,
			CreatedAt: now,
		}
	}
	return chunks
}

// segments returns pieces no longer than Size runes.
func (s *Splitter) segments(text string) []string {
	var out []string
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if utf8.RuneCountInString(para) <= s.Size {
			out = append(out, para)
			continue
		}
		for _, sent := range sentences(para) {
			if utf8.RuneCountInString(sent) <= s.Size {
				out = append(out, sent)
				continue
			}
			out = append(out, s.windows(sent)...)
		}
	}
	return out
}

// pack joins segments into chunks, carrying the overlap tail across
// chunk boundaries.
func (s *Splitter) pack(segs []string) []string {
	var texts []string
	var cur string
	for _, seg := range segs {
		switch {
		case cur == "":
			cur = seg
		case utf8.RuneCountInString(cur)+1+utf8.RuneCountInString(seg) <= s.Size:
			cur += "\n" + seg
		default:
			texts = append(texts, cur)
			if s.Overlap > 0 {
				cur = tail(cur, s.Overlap) + "\n" + seg
			} else {
				cur = seg
			}
		}
	}
	if cur != "" {
		texts = append(texts, cur)
	}
	return texts
}

// windows cuts text into plain Size-rune slices; pack adds the overlap.
func (s *Splitter) windows(text string) []string {
	runes := []rune(text)
	var out []string
	for start := 0; start < len(runes); start += s.Size {
		end := min(start+s.Size, len(runes))
		out = append(out, string(runes[start:end]))
	}
	return out
}

// sentences splits a paragraph after terminal punctuation followed by
// whitespace.
func sentences(text string) []string {
	runes := []rune(text)
	var out []string
	start := 0
	flush := func(end int) {
		if seg := strings.TrimSpace(string(runes[start:end])); seg != "" {
			out = append(out, seg)
		}
		start = end
	}
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i == len(runes)-1 || unicode.IsSpace(runes[i+1]) {
			flush(i + 1)
		}
	}
	if start < len(runes) {
		flush(len(runes))
	}
	return out
}

// tail returns the last n runes of text.
func tail(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[len(runes)-n:])
}
