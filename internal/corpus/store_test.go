package corpus

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(t.TempDir(), "crawl_", zap.NewNop())
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := newTestStore(t)
	w := s.Begin("20260203_161009")

	pages := []Page{
		{URL: "https://muia.dia.fi.upm.es/es/b/", Text: "página b", Tokens: map[string]int{"enc": 2}},
		{URL: "https://muia.dia.fi.upm.es/es/a/", Text: "página a", Tokens: map[string]int{"enc": 2}},
	}
	chunks := []Chunk{
		{URL: "https://muia.dia.fi.upm.es/es/a/", Index: 1, Text: "trozo dos"},
		{URL: "https://muia.dia.fi.upm.es/es/a/", Index: 0, Text: "trozo uno"},
	}
	qa := []QARecord{{
		URL:   "https://muia.dia.fi.upm.es/es/a/",
		Index: 0,
		Pairs: []QAPair{{Question: "¿Qué es?", Answer: "Un máster.", Tokens: map[string]int{"dec": 4}}},
	}}

	require.NoError(t, w.WritePages(Raw, pages))
	require.NoError(t, w.WriteChunks(RawChunks, chunks))
	require.NoError(t, w.WriteQA(LMQAndAChunks, qa))
	require.NoError(t, w.Commit())

	gotPages, err := s.ReadPages(Raw, "20260203_161009")
	require.NoError(t, err)
	require.Len(t, gotPages, 2)
	// Records come back sorted by URL.
	require.Equal(t, "https://muia.dia.fi.upm.es/es/a/", gotPages[0].URL)

	gotChunks, err := s.ReadChunks(RawChunks, "20260203_161009")
	require.NoError(t, err)
	require.Equal(t, []int{0, 1}, []int{gotChunks[0].Index, gotChunks[1].Index})

	gotQA, err := s.ReadQA(LMQAndAChunks, "20260203_161009")
	require.NoError(t, err)
	require.Len(t, gotQA, 1)
	require.Equal(t, "¿Qué es?", gotQA[0].Pairs[0].Question)

	n, err := s.CountRecords(RawChunks, "20260203_161009")
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestSnapshotInvisibleUntilCommit(t *testing.T) {
	s := newTestStore(t)
	w := s.Begin("20260203_161009")
	require.NoError(t, w.WritePages(Raw, []Page{{URL: "https://u", Text: "x"}}))

	_, err := s.ReadPages(Raw, "20260203_161009")
	require.Error(t, err, "uncommitted snapshot must not be readable")

	require.NoError(t, w.Commit())
	_, err = s.ReadPages(Raw, "20260203_161009")
	require.NoError(t, err)
}

func TestSnapshotAbortRemovesStaging(t *testing.T) {
	s := newTestStore(t)
	w := s.Begin("20260203_161009")
	require.NoError(t, w.WritePages(Raw, []Page{{URL: "https://u", Text: "x"}}))
	w.Abort()

	entries, err := os.ReadDir(s.Dir(Raw))
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestTxtDiagnostics(t *testing.T) {
	s := newTestStore(t)
	w := s.Begin("20260203_161009")
	require.NoError(t, w.WritePages(Raw, []Page{{
		URL:    "https://muia.dia.fi.upm.es/es/",
		Text:   "cuerpo",
		Tokens: map[string]int{"Qwen/Qwen3-8B": 1234567},
	}}))
	require.NoError(t, w.Commit())

	txtPath := filepath.Join(s.Dir(Raw), "crawl_20260203_161009.txt")
	b, err := os.ReadFile(txtPath)
	require.NoError(t, err)
	txt := string(b)

	require.Contains(t, txt, "RAW 1: https://muia.dia.fi.upm.es/es/")
	require.Contains(t, txt, "Tokens Qwen/Qwen3-8B: 1,234,567")
	require.Contains(t, txt, strings.Repeat("=", 150))
}

func TestQATxtFormat(t *testing.T) {
	s := newTestStore(t)
	w := s.Begin("20260203_161009")
	require.NoError(t, w.WriteQA(LMQAndAChunks, []QARecord{{
		URL:   "https://u",
		Index: 0,
		Pairs: []QAPair{
			{Question: "¿Cuánto dura?", Answer: "Un año.", Tokens: map[string]int{"dec": 9}},
			{Question: "¿Dónde?", Answer: "En Madrid.", Tokens: map[string]int{"dec": 4}},
		},
	}}))
	require.NoError(t, w.Commit())

	b, err := os.ReadFile(filepath.Join(s.Dir(LMQAndAChunks), "crawl_20260203_161009.txt"))
	require.NoError(t, err)
	txt := string(b)

	require.Contains(t, txt, "Pairs: 2")
	require.Contains(t, txt, "Max tokens dec: 9")
	require.Contains(t, txt, "Q: ¿Cuánto dura?\nA: Un año.")
}

func TestFilesMissingCorpus(t *testing.T) {
	s := newTestStore(t)
	w := s.Begin("20260203_161009")
	require.NoError(t, w.WritePages(Raw, nil))
	require.NoError(t, w.Commit())

	_, err := s.Files("20260203_161009", []string{Raw, ManuallyCleaned})
	require.Error(t, err)

	paths, err := s.Files("20260203_161009", []string{Raw})
	require.NoError(t, err)
	require.Len(t, paths, 1)
}

func TestListTimestamps(t *testing.T) {
	s := newTestStore(t)
	for _, ts := range []string{"20260203_161009", "20260101_000000"} {
		w := s.Begin(ts)
		require.NoError(t, w.WritePages(Raw, nil))
		require.NoError(t, w.Commit())
	}

	got, err := s.ListTimestamps(Raw)
	require.NoError(t, err)
	require.Equal(t, []string{"20260101_000000", "20260203_161009"}, got)

	none, err := s.ListTimestamps(ManuallyCleaned)
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestGroupDigits(t *testing.T) {
	tests := []struct {
		in   int
		want string
	}{
		{0, "0"}, {7, "7"}, {999, "999"}, {1000, "1,000"},
		{1234567, "1,234,567"}, {-1234, "-1,234"},
	}
	for _, tt := range tests {
		if got := groupDigits(tt.in); got != tt.want {
			t.Fatalf("groupDigits(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
