package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"localrag/internal/domain"
)

// fakeOllama serves /api/embed and both chat APIs.
type fakeOllama struct {
	mu          sync.Mutex
	embedInputs []string
	chatPrompts []string
	chatPaths   []string
	chatOptions []map[string]any
	answer      string
}

type fakeChatRequest struct {
	Messages []struct {
		Content string `json:"content"`
	} `json:"messages"`
	Options map[string]any `json:"options"`
}

func (f *fakeOllama) recordChat(w http.ResponseWriter, r *http.Request) bool {
	var req fakeChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) == 0 {
		http.Error(w, "bad request", http.StatusBadRequest)
		return false
	}
	f.mu.Lock()
	f.chatPrompts = append(f.chatPrompts, req.Messages[0].Content)
	f.chatPaths = append(f.chatPaths, r.URL.Path)
	f.chatOptions = append(f.chatOptions, req.Options)
	f.mu.Unlock()
	return true
}

func (f *fakeOllama) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/embed", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.embedInputs = append(f.embedInputs, req.Input...)
		f.mu.Unlock()

		vecs := make([][]float32, len(req.Input))
		for i, text := range req.Input {
			vecs[i] = fakeVector(text)
		}
		json.NewEncoder(w).Encode(map[string]any{"model": req.Model, "embeddings": vecs})
	})
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		if !f.recordChat(w, r) {
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"model":   "llama3.2",
			"message": map[string]any{"role": "assistant", "content": f.answer},
			"done":    true,
		})
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		if !f.recordChat(w, r) {
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "llama3.2",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": f.answer},
			}},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// fakeVector puts weight on a few keywords so retrieval is predictable.
func fakeVector(text string) []float32 {
	lower := strings.ToLower(text)
	vec := []float32{0, 0, 0, 0.01}
	for i, kw := range []string{"villian", "weather", "recipe"} {
		vec[i] += float32(strings.Count(lower, kw))
	}
	return vec
}

func resetCommand(t *testing.T) {
	t.Helper()
	reset := func(fs *pflag.FlagSet) {
		fs.VisitAll(func(f *pflag.Flag) {
			f.Value.Set(f.DefValue)
			f.Changed = false
		})
	}
	reset(rootCmd.PersistentFlags())
	for _, c := range rootCmd.Commands() {
		reset(c.Flags())
	}
	cfg = nil
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	resetCommand(t)
	t.Cleanup(func() { resetCommand(t) })

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeDocs(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "ollama-documents"), 0755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "ollama-documents", name), []byte(content), 0644))
	}
}

func TestRoot_AnswersDefaultQuery(t *testing.T) {
	fake := &fakeOllama{answer: "Dr. Null escaped."}
	srv := fake.server(t)
	dir := t.TempDir()
	writeDocs(t, dir, map[string]string{
		"villians.txt": "Villian report: Dr. Null escaped the villian prison.",
		"weather.txt":  "Weather: sunny. One villian was seen.",
		"soup.txt":     "A recipe for soup.",
		".hidden":      "villian villian villian",
	})

	stdout, _, err := execute(t, "--dir", dir, "--base-url", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Dr. Null escaped.\n", stdout)

	require.Len(t, fake.chatPrompts, 1)
	assert.Equal(t, "/api/chat", fake.chatPaths[0])
	assert.EqualValues(t, 3900, fake.chatOptions[0]["num_ctx"], "server window matches the packing budget")
	assert.InDelta(t, 0.75, fake.chatOptions[0]["temperature"], 0.001)
	prompt := fake.chatPrompts[0]
	assert.Contains(t, prompt, "Query: Latest villian info?\nAnswer: ")
	assert.Contains(t, prompt, "Dr. Null escaped the villian prison.")
	assert.NotContains(t, prompt, "recipe for soup", "top-k 2 keeps only the two best chunks")

	for _, input := range fake.embedInputs {
		assert.NotContains(t, input, "villian villian villian", "hidden files are not loaded")
	}
	assert.Equal(t, "Latest villian info?", fake.embedInputs[len(fake.embedInputs)-1])
}

func TestRoot_FlagsOverrideQueryAndTopK(t *testing.T) {
	fake := &fakeOllama{answer: "Sunny."}
	srv := fake.server(t)
	dir := t.TempDir()
	writeDocs(t, dir, map[string]string{
		"villians.txt": "villian news",
		"weather.txt":  "weather news",
	})

	stdout, _, err := execute(t, "--dir", dir, "--base-url", srv.URL, "-q", "weather today?", "-k", "1")
	require.NoError(t, err)
	assert.Equal(t, "Sunny.\n", stdout)
	require.Len(t, fake.chatPrompts, 1)
	assert.Contains(t, fake.chatPrompts[0], "weather news")
	assert.NotContains(t, fake.chatPrompts[0], "villian news")
}

func TestRoot_EmptyDirectoryFailsBeforeNetwork(t *testing.T) {
	fake := &fakeOllama{}
	srv := fake.server(t)
	dir := t.TempDir()
	writeDocs(t, dir, nil)

	stdout, _, err := execute(t, "--dir", dir, "--base-url", srv.URL)
	assert.ErrorIs(t, err, domain.ErrNoDocuments)
	assert.Empty(t, stdout)
	assert.Empty(t, fake.embedInputs)
}

func TestRoot_MissingDirectory(t *testing.T) {
	_, _, err := execute(t, "--dir", t.TempDir(), "--base-url", "http://127.0.0.1:1")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRoot_ConfigFileAndValidation(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "localrag.yaml"), []byte("query:\n  top_k: 0\n"), 0644))

	_, _, err := execute(t, "--dir", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "top_k")
}

func TestRoot_RejectsArgs(t *testing.T) {
	_, _, err := execute(t, "unexpected")
	assert.Error(t, err)
}

func TestIndex_PrintsStatsAndWarmsCache(t *testing.T) {
	fake := &fakeOllama{}
	srv := fake.server(t)
	dir := t.TempDir()
	writeDocs(t, dir, map[string]string{
		"a.txt": "villian one",
		"b.txt": "weather two",
	})

	stdout, _, err := execute(t, "index", "--dir", dir, "--base-url", srv.URL, "--cache")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Documents:  2")
	assert.Contains(t, stdout, "Chunks:     2")
	assert.Contains(t, stdout, "Dimension:  4")
	assert.Contains(t, stdout, "Cache hits: 0/2")
	assert.FileExists(t, filepath.Join(dir, ".rag", "embeddings.db"))
	assert.Len(t, fake.embedInputs, 2)

	stdout, _, err = execute(t, "index", "--dir", dir, "--base-url", srv.URL, "--cache")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Cache hits: 2/2")
	assert.Len(t, fake.embedInputs, 2, "second run is served from the cache")
}

func TestIndex_EmbedModelChangeInvalidatesCache(t *testing.T) {
	fake := &fakeOllama{}
	srv := fake.server(t)
	dir := t.TempDir()
	writeDocs(t, dir, map[string]string{"a.txt": "villian"})

	_, _, err := execute(t, "index", "--dir", dir, "--base-url", srv.URL, "--cache")
	require.NoError(t, err)

	stdout, _, err := execute(t, "index", "--dir", dir, "--base-url", srv.URL, "--cache", "--embed-model", "nomic-embed-text")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Cache hits: 0/1")
	assert.Len(t, fake.embedInputs, 2)
}

func TestPrompt_PrintsPromptsWithoutChat(t *testing.T) {
	fake := &fakeOllama{}
	srv := fake.server(t)
	dir := t.TempDir()
	writeDocs(t, dir, map[string]string{"a.txt": "villian lair is on the moon"})

	stdout, _, err := execute(t, "prompt", "--dir", dir, "--base-url", srv.URL, "-q", "Where is the villian lair?")
	require.NoError(t, err)
	assert.Contains(t, stdout, "=== prompt 1/1 ===")
	assert.Contains(t, stdout, "Context information is below.")
	assert.Contains(t, stdout, fmt.Sprintf("file_path: %s", filepath.Join(dir, "ollama-documents", "a.txt")))
	assert.Contains(t, stdout, "Query: Where is the villian lair?")
	assert.Empty(t, fake.chatPrompts)
}

func TestEnvFileOverridesModel(t *testing.T) {
	fake := &fakeOllama{answer: "ok"}
	srv := fake.server(t)
	dir := t.TempDir()
	writeDocs(t, dir, map[string]string{"a.txt": "villian"})
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("OLLAMA_HOST="+srv.URL+"\n"), 0644))
	t.Setenv("OLLAMA_HOST", "")
	os.Unsetenv("OLLAMA_HOST")

	stdout, _, err := execute(t, "--dir", dir)
	require.NoError(t, err)
	assert.Equal(t, "ok\n", stdout)
}

func TestRoot_OpenAIChatAPI(t *testing.T) {
	fake := &fakeOllama{answer: "Over /v1."}
	srv := fake.server(t)
	dir := t.TempDir()
	writeDocs(t, dir, map[string]string{"a.txt": "villian"})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "localrag.yaml"), []byte("ollama:\n  chat_api: openai\n  temperature: 0\n"), 0644))

	stdout, _, err := execute(t, "--dir", dir, "--base-url", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Over /v1.\n", stdout)
	require.Len(t, fake.chatPaths, 1)
	assert.Equal(t, "/v1/chat/completions", fake.chatPaths[0])
}

func TestRoot_ZeroTemperatureReachesServer(t *testing.T) {
	fake := &fakeOllama{answer: "cold"}
	srv := fake.server(t)
	dir := t.TempDir()
	writeDocs(t, dir, map[string]string{"a.txt": "villian"})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "localrag.yaml"), []byte("ollama:\n  temperature: 0\n"), 0644))

	_, _, err := execute(t, "--dir", dir, "--base-url", srv.URL)
	require.NoError(t, err)
	require.Len(t, fake.chatOptions, 1)
	temperature, ok := fake.chatOptions[0]["temperature"]
	require.True(t, ok)
	assert.EqualValues(t, 0, temperature)
}
