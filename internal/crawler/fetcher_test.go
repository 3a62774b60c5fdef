package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestFetcher(t *testing.T, handler http.Handler) (*ReaderFetcher, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	f, err := NewReaderFetcher(srv.URL+"/", 5*time.Second, 0, 0, zap.NewNop())
	require.NoError(t, err)
	return f, srv
}

func TestReaderFetcherOK(t *testing.T) {
	f, _ := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("  Markdown Content:\ncuerpo de la página  "))
	}))

	body, ok, err := f.Fetch(context.Background(), "https://muia.dia.fi.upm.es/es/#main")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Markdown Content:\ncuerpo de la página", body)
}

func TestReaderFetcherNon200IsSoftMiss(t *testing.T) {
	f, _ := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))

	_, ok, err := f.Fetch(context.Background(), "https://muia.dia.fi.upm.es/es/")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestReaderFetcherEmptyBodyIsSoftMiss(t *testing.T) {
	f, _ := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("   \n  "))
	}))

	_, ok, err := f.Fetch(context.Background(), "https://muia.dia.fi.upm.es/es/")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestReaderFetcherStripsFragmentFromProxyURL(t *testing.T) {
	var gotPath string
	f, _ := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path + "#" // sentinel so an empty path fails loudly
		w.Write([]byte("ok"))
	}))

	_, ok, err := f.Fetch(context.Background(), "https://muia.dia.fi.upm.es/es/plan/#arriba")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotContains(t, gotPath[:len(gotPath)-1], "arriba")
}

func TestReaderFetcherCancelledContext(t *testing.T) {
	f, _ := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := f.Fetch(ctx, "https://muia.dia.fi.upm.es/es/")
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewReaderFetcherRejectsBaseWithoutSlash(t *testing.T) {
	_, err := NewReaderFetcher("https://r.jina.ai", time.Second, 0, 0, zap.NewNop())
	require.Error(t, err)
}
