package corpus

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrNoSnapshot is returned when reuse is enabled but no snapshot from the
// acceptable period exists.
var ErrNoSnapshot = errors.New("no reusable snapshot found")

// ErrPartialSnapshot is returned when a snapshot timestamp exists but one
// or more required corpora are missing for it.
var ErrPartialSnapshot = errors.New("snapshot is missing required corpora")

// ReusePolicy controls whether an existing snapshot replaces a fresh
// crawl+refine run.
type ReusePolicy struct {
	Enabled       bool
	AllowPastYear bool
	// Timestamp pins a specific snapshot. Empty means newest acceptable.
	Timestamp string
}

// Resolution is the outcome of reuse resolution.
type Resolution struct {
	// Timestamp of the snapshot to reuse; empty when Fresh.
	Timestamp string
	// Fresh means run the crawl and refine stages.
	Fresh bool
}

// Resolve decides between reusing a snapshot and crawling fresh.
//
// Reuse is all-or-nothing over the required corpora: a snapshot where any
// of them is missing aborts the run rather than silently mixing stages. A
// pinned timestamp from a past year is rejected (fresh run, loud warning)
// unless the policy allows past years; a malformed pin is a hard error.
func (s *Store) Resolve(p ReusePolicy, required []string, now time.Time) (Resolution, error) {
	if !p.Enabled {
		return Resolution{Fresh: true}, nil
	}
	if len(required) == 0 {
		return Resolution{}, fmt.Errorf("reuse resolution needs at least one required corpus")
	}

	if p.Timestamp != "" {
		pinned, err := time.Parse(TimestampLayout, p.Timestamp)
		if err != nil {
			return Resolution{}, fmt.Errorf("malformed reuse timestamp %q: %w", p.Timestamp, err)
		}
		if !p.AllowPastYear && pinned.Year() != now.Year() {
			s.logger.Warn("pinned snapshot is from a past year; crawling fresh",
				zap.String("timestamp", p.Timestamp),
				zap.Int("pinned_year", pinned.Year()),
				zap.Int("current_year", now.Year()))
			return Resolution{Fresh: true}, nil
		}
		if err := s.requireComplete(p.Timestamp, required); err != nil {
			return Resolution{}, err
		}
		s.logger.Info("reusing pinned snapshot", zap.String("timestamp", p.Timestamp))
		return Resolution{Timestamp: p.Timestamp}, nil
	}

	ts, err := s.newestTimestamp(required[0], p, now)
	if err != nil {
		return Resolution{}, err
	}
	if err := s.requireComplete(ts, required); err != nil {
		return Resolution{}, err
	}
	s.logger.Info("reusing newest snapshot", zap.String("timestamp", ts))
	return Resolution{Timestamp: ts}, nil
}

func (s *Store) requireComplete(timestamp string, required []string) error {
	for _, corpus := range required {
		path := s.Path(corpus, timestamp)
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("%w: %s for %s", ErrPartialSnapshot, corpus, timestamp)
		}
	}
	return nil
}

// newestTimestamp scans one corpus directory for the most recently written
// snapshot file, restricted to the current year unless past years are
// allowed.
func (s *Store) newestTimestamp(corpus string, p ReusePolicy, now time.Time) (string, error) {
	entries, err := os.ReadDir(s.Dir(corpus))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: corpus %s has no snapshots", ErrNoSnapshot, corpus)
		}
		return "", fmt.Errorf("scan corpus dir: %w", err)
	}

	yearPrefix := fmt.Sprintf("%d", now.Year())
	var best string
	var bestMod time.Time
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, s.fileStart) || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		ts := strings.TrimSuffix(strings.TrimPrefix(name, s.fileStart), ".jsonl")
		if _, err := time.Parse(TimestampLayout, ts); err != nil {
			continue
		}
		if !p.AllowPastYear && !strings.HasPrefix(ts, yearPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if best == "" || info.ModTime().After(bestMod) {
			best = ts
			bestMod = info.ModTime()
		}
	}
	if best == "" {
		return "", fmt.Errorf("%w: corpus %s", ErrNoSnapshot, corpus)
	}
	return best, nil
}
