package corpus

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	dirPerm  = 0o750
	filePerm = 0o600

	// Width of the record separator in the human-readable txt files.
	separatorWidth = 150

	maxRecordBytes = 16 * 1024 * 1024
)

// Store persists corpora as timestamped JSONL files, one directory per
// corpus, with a parallel .txt diagnostic per file. File names are
// <fileStart><timestamp>.jsonl.
type Store struct {
	root      string
	fileStart string
	logger    *zap.Logger
}

// NewStore builds a Store rooted at dir.
func NewStore(root, fileStart string, logger *zap.Logger) *Store {
	return &Store{root: root, fileStart: fileStart, logger: logger}
}

// Dir returns the directory holding one corpus.
func (s *Store) Dir(corpus string) string {
	return filepath.Join(s.root, corpus)
}

// Path returns the JSONL file for a corpus at a snapshot timestamp.
func (s *Store) Path(corpus, timestamp string) string {
	return filepath.Join(s.Dir(corpus), s.fileStart+timestamp+".jsonl")
}

// FileStart returns the snapshot file name prefix.
func (s *Store) FileStart() string {
	return s.fileStart
}

// Begin opens a snapshot writer. Everything written through it lands in
// staging files; nothing is visible to readers until Commit renames the
// whole set.
func (s *Store) Begin(timestamp string) *SnapshotWriter {
	return &SnapshotWriter{store: s, timestamp: timestamp}
}

type stagedFile struct {
	tmp   string
	final string
}

// SnapshotWriter stages one snapshot. Write the corpora in any order,
// then Commit once; Abort discards the staging files.
type SnapshotWriter struct {
	store     *Store
	timestamp string
	staged    []stagedFile
}

// Timestamp returns the snapshot timestamp being written.
func (w *SnapshotWriter) Timestamp() string {
	return w.timestamp
}

// WritePages stages a full-page corpus, sorted by URL.
func (w *SnapshotWriter) WritePages(corpus string, pages []Page) error {
	sorted := append([]Page(nil), pages...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].URL < sorted[j].URL })

	var txt strings.Builder
	for i, p := range sorted {
		fmt.Fprintf(&txt, "%s %d: %s%s\n%s\n%s\n",
			label(corpus), i+1, p.URL, tokenSuffix(p.Tokens), p.Text, separator())
	}
	return w.stage(corpus, toLines(sorted), txt.String())
}

// WriteChunks stages a chunk corpus, sorted by URL then chunk index.
func (w *SnapshotWriter) WriteChunks(corpus string, chunks []Chunk) error {
	sorted := append([]Chunk(nil), chunks...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].URL != sorted[j].URL {
			return sorted[i].URL < sorted[j].URL
		}
		return sorted[i].Index < sorted[j].Index
	})

	var txt strings.Builder
	for i, c := range sorted {
		fmt.Fprintf(&txt, "%s %d: %s | Chunk %d%s\n%s\n%s\n",
			label(corpus), i+1, c.URL, c.Index, tokenSuffix(c.Tokens), c.Text, separator())
	}
	return w.stage(corpus, toLines(sorted), txt.String())
}

// WriteQA stages a question/answer corpus, sorted by URL then chunk index.
func (w *SnapshotWriter) WriteQA(corpus string, records []QARecord) error {
	sorted := append([]QARecord(nil), records...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].URL != sorted[j].URL {
			return sorted[i].URL < sorted[j].URL
		}
		return sorted[i].Index < sorted[j].Index
	})

	var txt strings.Builder
	for i, r := range sorted {
		fmt.Fprintf(&txt, "%s %d: %s | Chunk %d | Pairs: %d%s\n",
			label(corpus), i+1, r.URL, r.Index, len(r.Pairs), maxTokenSuffix(r.Pairs))
		for _, p := range r.Pairs {
			fmt.Fprintf(&txt, "Q: %s\nA: %s\n\n", p.Question, p.Answer)
		}
		fmt.Fprintf(&txt, "%s\n", separator())
	}
	return w.stage(corpus, toLines(sorted), txt.String())
}

// Commit renames every staged file into place. After the first rename
// failure the snapshot is left partially committed on disk, which readers
// reject via the reuse resolution's completeness check.
func (w *SnapshotWriter) Commit() error {
	for _, f := range w.staged {
		if err := os.Rename(f.tmp, f.final); err != nil {
			return fmt.Errorf("commit snapshot %s: %w", w.timestamp, err)
		}
	}
	w.store.logger.Info("snapshot committed",
		zap.String("timestamp", w.timestamp),
		zap.Int("files", len(w.staged)))
	w.staged = nil
	return nil
}

// Abort removes all staging files.
func (w *SnapshotWriter) Abort() {
	for _, f := range w.staged {
		if err := os.Remove(f.tmp); err != nil && !os.IsNotExist(err) {
			w.store.logger.Warn("removing staged file", zap.String("path", f.tmp), zap.Error(err))
		}
	}
	w.staged = nil
}

func (w *SnapshotWriter) stage(corpus string, jsonLines []string, txt string) error {
	dir := w.store.Dir(corpus)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("create corpus dir: %w", err)
	}

	jsonPath := w.store.Path(corpus, w.timestamp)
	txtPath := strings.TrimSuffix(jsonPath, ".jsonl") + ".txt"

	if err := writeFileStaged(w, jsonPath, strings.Join(jsonLines, "")); err != nil {
		return err
	}
	return writeFileStaged(w, txtPath, txt)
}

func writeFileStaged(w *SnapshotWriter, final, content string) error {
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), filePerm); err != nil {
		return fmt.Errorf("stage %s: %w", final, err)
	}
	w.staged = append(w.staged, stagedFile{tmp: tmp, final: final})
	return nil
}

func toLines[T any](records []T) []string {
	lines := make([]string, 0, len(records))
	for _, r := range records {
		b, err := json.Marshal(r)
		if err != nil {
			// Record types contain only strings, ints, and maps of them.
			panic(err)
		}
		lines = append(lines, string(b)+"\n")
	}
	return lines
}

// ReadPages loads a full-page corpus file.
func (s *Store) ReadPages(corpus, timestamp string) ([]Page, error) {
	return readJSONL[Page](s.Path(corpus, timestamp))
}

// ReadChunks loads a chunk corpus file.
func (s *Store) ReadChunks(corpus, timestamp string) ([]Chunk, error) {
	return readJSONL[Chunk](s.Path(corpus, timestamp))
}

// ReadQA loads a question/answer corpus file.
func (s *Store) ReadQA(corpus, timestamp string) ([]QARecord, error) {
	return readJSONL[QARecord](s.Path(corpus, timestamp))
}

// CountRecords returns the number of records in a corpus file.
func (s *Store) CountRecords(corpus, timestamp string) (int, error) {
	f, err := os.Open(s.Path(corpus, timestamp))
	if err != nil {
		return 0, fmt.Errorf("open corpus file: %w", err)
	}
	defer f.Close()

	n := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxRecordBytes)
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) != "" {
			n++
		}
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("scan corpus file: %w", err)
	}
	return n, nil
}

// ListTimestamps returns the snapshot timestamps present for a corpus,
// sorted ascending. A missing corpus directory yields an empty list.
func (s *Store) ListTimestamps(corpus string) ([]string, error) {
	entries, err := os.ReadDir(s.Dir(corpus))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan corpus dir: %w", err)
	}

	var timestamps []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, s.fileStart) || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		ts := strings.TrimSuffix(strings.TrimPrefix(name, s.fileStart), ".jsonl")
		if _, err := time.Parse(TimestampLayout, ts); err != nil {
			continue
		}
		timestamps = append(timestamps, ts)
	}
	sort.Strings(timestamps)
	return timestamps, nil
}

// Files returns the snapshot's JSONL paths for the given corpora, erroring
// on any that are missing.
func (s *Store) Files(timestamp string, corpora []string) ([]string, error) {
	paths := make([]string, 0, len(corpora))
	for _, c := range corpora {
		p := s.Path(c, timestamp)
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("snapshot file %s: %w", p, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func readJSONL[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open corpus file: %w", err)
	}
	defer f.Close()

	var out []T
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxRecordBytes)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var rec T
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	return out, nil
}

func separator() string {
	return strings.Repeat("=", separatorWidth)
}

func label(corpus string) string {
	return strings.ToUpper(strings.ReplaceAll(corpus, "_", " "))
}

func tokenSuffix(tokens map[string]int) string {
	if len(tokens) == 0 {
		return ""
	}
	names := make([]string, 0, len(tokens))
	for name := range tokens {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, " | Tokens %s: %s", name, groupDigits(tokens[name]))
	}
	return b.String()
}

func maxTokenSuffix(pairs []QAPair) string {
	maxes := map[string]int{}
	for _, p := range pairs {
		for name, n := range p.Tokens {
			if n > maxes[name] {
				maxes[name] = n
			}
		}
	}
	if len(maxes) == 0 {
		return ""
	}
	names := make([]string, 0, len(maxes))
	for name := range maxes {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, " | Max tokens %s: %s", name, groupDigits(maxes[name]))
	}
	return b.String()
}

// groupDigits renders 1234567 as 1,234,567.
func groupDigits(n int) string {
	s := fmt.Sprintf("%d", n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
