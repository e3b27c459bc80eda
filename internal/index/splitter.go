package index

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultOverlap is the number of tokens carried between sibling chunks.
const DefaultOverlap = 20

// Splitter cuts text into chunks of at most a given number of tokens. It
// prefers paragraph breaks, then line breaks, then sentence ends, and only
// cuts inside a sentence when a single sentence is too long.
type Splitter struct {
	tok     Tokenizer
	overlap int
}

// NewSplitter creates a splitter. overlap < 0 means DefaultOverlap.
func NewSplitter(tok Tokenizer, overlap int) *Splitter {
	if overlap < 0 {
		overlap = DefaultOverlap
	}
	return &Splitter{tok: tok, overlap: overlap}
}

type piece struct {
	text   string
	tokens int
}

// Split returns the non-empty chunks of text, in order.
func (s *Splitter) Split(text string, maxTokens int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if maxTokens <= 0 || s.tok.Count(text) <= maxTokens {
		return []string{strings.TrimSpace(text)}
	}

	pieces := s.pieces(text, maxTokens, 0)
	return s.merge(pieces, maxTokens)
}

// pieces recursively breaks text into pieces that each fit maxTokens.
// Separators stay attached to the piece they end.
func (s *Splitter) pieces(text string, maxTokens, level int) []piece {
	n := s.tok.Count(text)
	if n <= maxTokens {
		return []piece{{text: text, tokens: n}}
	}

	var parts []string
	switch level {
	case 0:
		parts = splitAfter(text, "\n\n")
	case 1:
		parts = splitAfter(text, "\n")
	case 2:
		parts = splitSentences(text)
	default:
		return s.hardCut(text, maxTokens)
	}

	if len(parts) <= 1 {
		return s.pieces(text, maxTokens, level+1)
	}
	var out []piece
	for _, p := range parts {
		out = append(out, s.pieces(p, maxTokens, level+1)...)
	}
	return out
}

// hardCut splits text at rune boundaries into the longest prefixes that fit.
func (s *Splitter) hardCut(text string, maxTokens int) []piece {
	var out []piece
	runes := []rune(text)
	for len(runes) > 0 {
		lo, hi := 1, len(runes)
		for lo < hi {
			mid := (lo + hi + 1) / 2
			if s.tok.Count(string(runes[:mid])) <= maxTokens {
				lo = mid
			} else {
				hi = mid - 1
			}
		}
		chunk := string(runes[:lo])
		out = append(out, piece{text: chunk, tokens: s.tok.Count(chunk)})
		runes = runes[lo:]
	}
	return out
}

// merge greedily packs pieces into chunks, starting each new chunk with up to
// s.overlap tokens of trailing pieces from the previous one.
func (s *Splitter) merge(pieces []piece, maxTokens int) []string {
	var chunks []string
	var cur []piece
	curTokens := 0

	emit := func() {
		var sb strings.Builder
		for _, p := range cur {
			sb.WriteString(p.text)
		}
		if c := strings.TrimSpace(sb.String()); c != "" {
			chunks = append(chunks, c)
		}
	}

	for _, p := range pieces {
		if len(cur) > 0 && curTokens+p.tokens > maxTokens {
			emit()

			// Carry trailing pieces as overlap while they fit.
			var carry []piece
			carryTokens := 0
			for i := len(cur) - 1; i >= 0; i-- {
				t := cur[i].tokens
				if carryTokens+t > s.overlap || carryTokens+t+p.tokens > maxTokens {
					break
				}
				carry = append([]piece{cur[i]}, carry...)
				carryTokens += t
			}
			cur, curTokens = carry, carryTokens
		}
		cur = append(cur, p)
		curTokens += p.tokens
	}
	if len(cur) > 0 {
		emit()
	}
	return chunks
}

// splitAfter splits s after every occurrence of sep, keeping sep on the left part.
func splitAfter(s, sep string) []string {
	parts := strings.SplitAfter(s, sep)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitSentences splits after sentence-ending punctuation. Latin terminators
// must be followed by whitespace; CJK terminators end a sentence on their own.
func splitSentences(s string) []string {
	var out []string
	start := 0
	for i, r := range s {
		end := -1
		switch r {
		case '。', '！', '？', '；':
			end = i + utf8.RuneLen(r)
		case '.', '!', '?':
			next := i + 1
			if next < len(s) {
				nr, _ := utf8.DecodeRuneInString(s[next:])
				if unicode.IsSpace(nr) {
					end = next
				}
			}
		}
		if end > start {
			out = append(out, s[start:end])
			start = end
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
