package decoder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHTTPClientGenerate(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(generateResponse{Text: "<message>hola</message>"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "Qwen/Qwen3-8B", 5*time.Second, zap.NewNop())
	out, err := c.Generate(context.Background(), Request{
		System: "sistema",
		Prompt: "pregunta",
		Params: Params{MaxNewTokens: 128, Temperature: 0.7, TopP: 0.8, TopK: 20},
	})
	require.NoError(t, err)
	require.Equal(t, "<message>hola</message>", out)

	require.Equal(t, "Qwen/Qwen3-8B", got.ModelPath)
	require.Equal(t, "sistema", got.SystemPrompt)
	require.Equal(t, "pregunta", got.Prompt)
	require.Equal(t, 128, got.MaxNewTokens)
}

func TestHTTPClientGenerateServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "m", 5*time.Second, zap.NewNop())
	_, err := c.Generate(context.Background(), Request{Prompt: "x"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "500")
}

func TestHTTPClientGenerateCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewHTTPClient(srv.URL, "m", 5*time.Second, zap.NewNop())
	_, err := c.Generate(ctx, Request{Prompt: "x"})
	require.Error(t, err)
}

func TestFakeClient(t *testing.T) {
	c := FakeClient{}
	req := Request{Prompt: "Texto de la página sobre el máster en inteligencia artificial."}

	out, err := c.Generate(context.Background(), req)
	require.NoError(t, err)

	for _, tag := range []string{"abstract", "summary", "cleanedtext", "message"} {
		text, ok := ExtractFirst(out, tag)
		require.True(t, ok, "tag %s", tag)
		require.NotEmpty(t, text, "tag %s", tag)
	}

	again, err := c.Generate(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, out, again, "same prompt must fabricate the same response")
}

func TestScriptedClient(t *testing.T) {
	s := &ScriptedClient{Responses: []string{"uno", "dos"}}

	out, err := s.Generate(context.Background(), Request{Prompt: "a"})
	require.NoError(t, err)
	require.Equal(t, "uno", out)

	out, _ = s.Generate(context.Background(), Request{Prompt: "b"})
	require.Equal(t, "dos", out)

	// The script repeats its last entry once exhausted.
	out, _ = s.Generate(context.Background(), Request{Prompt: "c"})
	require.Equal(t, "dos", out)
	require.Len(t, s.Requests, 3)
}
