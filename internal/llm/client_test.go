package llm

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClient_OneShot_OpenAIStyle(t *testing.T) {
	var gotPath string
	var gotAuth string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "  looks like spam  "}},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "gpt-test", "secret-key", 5*time.Second)
	reply, err := c.OneShot(t.Context(), "check this message", map[string]any{"temperature": 0.1})
	require.NoError(t, err)
	require.Equal(t, "looks like spam", reply)
	require.Equal(t, "/v1/chat/completions", gotPath)
	require.Equal(t, "Bearer secret-key", gotAuth)
	require.Equal(t, "gpt-test", gotBody["model"])
	require.Equal(t, 0.1, gotBody["temperature"])
}

func TestClient_OneShot_OllamaStyle(t *testing.T) {
	var gotPath string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]any{"content": "clean message"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/api/chat", "llama3", "", 5*time.Second)
	reply, err := c.OneShot(t.Context(), "hello there", nil)
	require.NoError(t, err)
	require.Equal(t, "clean message", reply)
	require.Equal(t, "/api/chat", gotPath)
	require.Equal(t, false, gotBody["stream"])
}

func TestClient_OneShot_EmptyReplyIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": "   "}}},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "gpt-test", "", 5*time.Second)
	_, err := c.OneShot(t.Context(), "hello", nil)
	require.Error(t, err)
}

func TestClient_OneShot_NonSuccessStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "gpt-test", "", 5*time.Second)
	_, err := c.OneShot(t.Context(), "hello", nil)
	require.Error(t, err)
}

func TestClient_OneShot_ErrorBodyTruncated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write(bytes.Repeat([]byte("x"), 3000))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "gpt-test", "", 5*time.Second)
	_, err := c.OneShot(t.Context(), "hello", nil)
	require.Error(t, err)
	require.LessOrEqual(t, len(err.Error()), maxErrorBodyBytes+100)
}

func TestClient_LooksLikeOllama(t *testing.T) {
	require.True(t, (&Client{BaseURL: "http://localhost:11434"}).looksLikeOllama())
	require.True(t, (&Client{BaseURL: "http://ollama.internal:8080"}).looksLikeOllama())
	require.True(t, (&Client{BaseURL: "http://host/api/chat"}).looksLikeOllama())
	require.False(t, (&Client{BaseURL: "https://api.openai.com/v1"}).looksLikeOllama())
}
