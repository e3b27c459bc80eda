package index

import (
	"strings"
	"testing"
)

func TestSplitter_Split(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		max     int
		overlap int
		want    []string
	}{
		{
			name: "empty text",
			text: "  \n ",
			max:  10,
			want: nil,
		},
		{
			name: "fits in one chunk",
			text: "  short  ",
			max:  10,
			want: []string{"short"},
		},
		{
			name: "prefers paragraph breaks",
			text: "aaaa\n\nbbbb\n\ncccc",
			max:  10,
			want: []string{"aaaa", "bbbb\n\ncccc"},
		},
		{
			name: "falls back to line breaks",
			text: "aaaaaa\nbbbbbb\ncccccc",
			max:  8,
			want: []string{"aaaaaa", "bbbbbb", "cccccc"},
		},
		{
			name:    "sentences with overlap",
			text:    "One. Two. Three. Four.",
			max:     12,
			overlap: 5,
			want:    []string{"One. Two.", "Two. Three.", "Four."},
		},
		{
			name: "cjk sentence ends",
			text: "你好。世界。",
			max:  3,
			want: []string{"你好。", "世界。"},
		},
		{
			name: "hard cut",
			text: "abcdefghij",
			max:  4,
			want: []string{"abcd", "efgh", "ij"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSplitter(RuneCounter{}, tt.overlap)
			got := s.Split(tt.text, tt.max)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
				t.Errorf("Split() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSplitter_ChunksFit(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 40) +
		"\n\n" + strings.Repeat("Pack my box with five dozen liquor jugs!\n", 20)
	s := NewSplitter(RuneCounter{}, DefaultOverlap)

	for _, max := range []int{50, 128, 300} {
		chunks := s.Split(text, max)
		if len(chunks) < 2 {
			t.Fatalf("Split(max=%d) returned %d chunks", max, len(chunks))
		}
		for i, c := range chunks {
			if n := (RuneCounter{}).Count(c); n > max {
				t.Errorf("Split(max=%d) chunk %d has %d tokens", max, i, n)
			}
			if strings.TrimSpace(c) != c || c == "" {
				t.Errorf("Split(max=%d) chunk %d is not trimmed: %q", max, i, c)
			}
		}
	}
}

func TestNewSplitter_NegativeOverlap(t *testing.T) {
	if s := NewSplitter(RuneCounter{}, -1); s.overlap != DefaultOverlap {
		t.Errorf("overlap = %d, want %d", s.overlap, DefaultOverlap)
	}
}

func TestTiktokenCounter(t *testing.T) {
	tok, err := NewTiktokenCounter()
	if err != nil {
		t.Fatalf("NewTiktokenCounter() error = %v", err)
	}
	if n := tok.Count(""); n != 0 {
		t.Errorf("Count(\"\") = %d, want 0", n)
	}
	short := tok.Count("hello world")
	long := tok.Count(strings.Repeat("hello world ", 50))
	if short <= 0 || long <= short {
		t.Errorf("Count() short=%d long=%d", short, long)
	}
}
