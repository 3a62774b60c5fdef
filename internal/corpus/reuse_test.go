package corpus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var reuseNow = time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

func writeSnapshot(t *testing.T, s *Store, ts string, corpora ...string) {
	t.Helper()
	w := s.Begin(ts)
	for _, c := range corpora {
		require.NoError(t, w.WriteChunks(c, []Chunk{{URL: "https://u", Index: 0, Text: "x"}}))
	}
	require.NoError(t, w.Commit())
}

func TestResolveDisabled(t *testing.T) {
	s := newTestStore(t)
	res, err := s.Resolve(ReusePolicy{}, []string{LMCleanedTextChunks}, reuseNow)
	require.NoError(t, err)
	require.True(t, res.Fresh)
}

func TestResolvePinnedCurrentYear(t *testing.T) {
	s := newTestStore(t)
	writeSnapshot(t, s, "20260203_161009", LMCleanedTextChunks, LMQAndAChunks)

	res, err := s.Resolve(
		ReusePolicy{Enabled: true, Timestamp: "20260203_161009"},
		[]string{LMCleanedTextChunks, LMQAndAChunks}, reuseNow)
	require.NoError(t, err)
	require.False(t, res.Fresh)
	require.Equal(t, "20260203_161009", res.Timestamp)
}

func TestResolvePinnedStaleYearFallsBackToFresh(t *testing.T) {
	s := newTestStore(t)
	writeSnapshot(t, s, "20250101_000000", LMCleanedTextChunks)

	res, err := s.Resolve(
		ReusePolicy{Enabled: true, Timestamp: "20250101_000000"},
		[]string{LMCleanedTextChunks}, reuseNow)
	require.NoError(t, err)
	require.True(t, res.Fresh)
}

func TestResolvePinnedStaleYearAllowed(t *testing.T) {
	s := newTestStore(t)
	writeSnapshot(t, s, "20250101_000000", LMCleanedTextChunks)

	res, err := s.Resolve(
		ReusePolicy{Enabled: true, AllowPastYear: true, Timestamp: "20250101_000000"},
		[]string{LMCleanedTextChunks}, reuseNow)
	require.NoError(t, err)
	require.Equal(t, "20250101_000000", res.Timestamp)
}

func TestResolveMalformedPinIsHardError(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Resolve(
		ReusePolicy{Enabled: true, Timestamp: "not-a-timestamp"},
		[]string{LMCleanedTextChunks}, reuseNow)
	require.Error(t, err)
}

func TestResolvePinnedPartialSnapshotAborts(t *testing.T) {
	s := newTestStore(t)
	writeSnapshot(t, s, "20260203_161009", LMCleanedTextChunks)

	_, err := s.Resolve(
		ReusePolicy{Enabled: true, Timestamp: "20260203_161009"},
		[]string{LMCleanedTextChunks, LMQAndAChunks}, reuseNow)
	require.ErrorIs(t, err, ErrPartialSnapshot)
}

func TestResolveNewestCurrentYear(t *testing.T) {
	s := newTestStore(t)
	writeSnapshot(t, s, "20260101_000000", LMCleanedTextChunks, LMQAndAChunks)
	writeSnapshot(t, s, "20260601_000000", LMCleanedTextChunks, LMQAndAChunks)
	// A past-year snapshot is ignored even if written last.
	writeSnapshot(t, s, "20250601_000000", LMCleanedTextChunks, LMQAndAChunks)

	res, err := s.Resolve(
		ReusePolicy{Enabled: true},
		[]string{LMCleanedTextChunks, LMQAndAChunks}, reuseNow)
	require.NoError(t, err)
	require.Equal(t, "20260601_000000", res.Timestamp)
}

func TestResolveNewestNoneFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Resolve(ReusePolicy{Enabled: true}, []string{LMCleanedTextChunks}, reuseNow)
	require.ErrorIs(t, err, ErrNoSnapshot)
}

func TestResolveNewestPartialAborts(t *testing.T) {
	s := newTestStore(t)
	writeSnapshot(t, s, "20260601_000000", LMCleanedTextChunks)

	_, err := s.Resolve(
		ReusePolicy{Enabled: true},
		[]string{LMCleanedTextChunks, LMQAndAChunks}, reuseNow)
	require.ErrorIs(t, err, ErrPartialSnapshot)
}
