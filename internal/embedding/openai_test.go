package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// fakeEmbeddingsServer answers /embeddings with vectors for each input, with
// the data entries deliberately returned in reverse index order.
func fakeEmbeddingsServer(t *testing.T, dims int, short bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		n := len(req.Input)
		if short && n > 1 {
			n-- // simulate a truncated batch from a buggy provider
		}
		type entry struct {
			Object    string    `json:"object"`
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		data := make([]entry, 0, n)
		for i := n - 1; i >= 0; i-- {
			vec := make([]float32, dims)
			// Mark the vector with its request index so ordering is verifiable.
			vec[0] = float32(i + 1)
			data = append(data, entry{Object: "embedding", Index: i, Embedding: vec})
		}
		resp := map[string]interface{}{
			"object": "list",
			"data":   data,
			"model":  "test-model",
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestAPIEmbedderResortsByIndex(t *testing.T) {
	ts := fakeEmbeddingsServer(t, 4, false)
	defer ts.Close()

	e, err := NewAPIEmbedder(APIConfig{
		BaseURL:    ts.URL,
		APIKey:     "test",
		Model:      "test-model",
		Dimensions: 4,
	})
	if err != nil {
		t.Fatal(err)
	}
	embs, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatal(err)
	}
	if len(embs) != 3 {
		t.Fatalf("expected 3 embeddings, got %d", len(embs))
	}
	for i, emb := range embs {
		if emb[0] != float32(i+1) {
			t.Errorf("embedding %d out of order: marker %f", i, emb[0])
		}
	}
}

func TestAPIEmbedderFailsWholeBatchOnShortResponse(t *testing.T) {
	ts := fakeEmbeddingsServer(t, 4, true)
	defer ts.Close()

	e, err := NewAPIEmbedder(APIConfig{
		BaseURL:    ts.URL,
		APIKey:     "test",
		Model:      "test-model",
		Dimensions: 4,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"}); err == nil {
		t.Fatal("expected error for truncated batch")
	}
}

func TestAPIEmbedderTransportError(t *testing.T) {
	e, err := NewAPIEmbedder(APIConfig{
		BaseURL:    "http://127.0.0.1:1", // nothing listens here
		APIKey:     "test",
		Model:      "test-model",
		Dimensions: 4,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Embed(context.Background(), "hello"); err == nil {
		t.Fatal("expected transport error")
	}
}

func TestAPIEmbedderConfigValidation(t *testing.T) {
	if _, err := NewAPIEmbedder(APIConfig{Dimensions: 4}); err == nil {
		t.Error("expected error for missing model")
	}
	if _, err := NewAPIEmbedder(APIConfig{Model: "m"}); err == nil {
		t.Error("expected error for missing dimensions")
	}
}
