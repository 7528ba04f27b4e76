package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := NewClient("", "")
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	c, err := NewClient("sk-test", "http://localhost:1234/v1")
	require.NoError(t, err)
	assert.NotNil(t, c.Client())
}

func TestNewEmbedder_Defaults(t *testing.T) {
	c, err := NewClient("sk-test", "")
	require.NoError(t, err)

	e := NewEmbedder(c, "", 0)
	assert.Equal(t, DefaultModel, e.Model())
	assert.Equal(t, DefaultBatchSize, e.batchSize)
	assert.Equal(t, 1536, e.Dimensions())

	assert.Equal(t, 256, e.WithDimensions(256).Dimensions())
	assert.Equal(t, 0, NewEmbedder(c, "custom-model", 10).Dimensions())
}

func TestEmbed_EmptyInputMakesNoRequest(t *testing.T) {
	c, err := NewClient("sk-test", "http://127.0.0.1:1/v1")
	require.NoError(t, err)

	vecs, err := NewEmbedder(c, "", 0).Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
}

func TestToFloat32(t *testing.T) {
	assert.Equal(t, []float32{0.5, -1, 0}, toFloat32([]float64{0.5, -1, 0}))
}

func TestEmbed_OrdersByResponseIndex(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		assert.Equal(t, "test-model", req.Model)

		// Reply in reverse order; each vector encodes its input length.
		data := make([]map[string]any, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float64{float64(len(req.Input[i])), 1},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]any{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	defer srv.Close()

	c, err := NewClient("sk-test", srv.URL+"/v1/")
	require.NoError(t, err)

	vecs, err := NewEmbedder(c, "test-model", 2).Embed(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, []float32{1, 1}, vecs[0])
	assert.Equal(t, []float32{2, 1}, vecs[1])
	assert.Equal(t, []float32{3, 1}, vecs[2])
	assert.Equal(t, 2, calls, "3 texts at batch size 2 need two requests")
}

func TestEmbed_ServerErrorNotRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := NewClient("sk-test", srv.URL+"/v1/")
	require.NoError(t, err)

	_, err = NewEmbedder(c, "", 0).Embed(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
