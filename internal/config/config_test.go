package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// offline clears the variables a developer shell might carry and selects
// providers that need no API key.
func offline(t *testing.T) {
	t.Helper()
	for key := range defaults {
		t.Setenv(key, "")
	}
	t.Setenv(ConfigFileEnv, "")
	t.Setenv("EMBEDDING_PROVIDER", "hash")
	t.Setenv("SYNTHESIS_PROVIDER", "extractive")
}

func TestDefaults(t *testing.T) {
	offline(t)

	cfg, err := FromViper(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, "uploads", cfg.UploadDir)
	assert.Equal(t, "vectorDB", cfg.VectorDBDir)
	assert.Equal(t, 1000, cfg.ChunkSize)
	assert.Equal(t, 200, cfg.ChunkOverlap)
	assert.Equal(t, 3, cfg.TopK)
	assert.Equal(t, "append", cfg.UploadPolicy)
	assert.Equal(t, int64(50<<20), cfg.MaxUploadBytes())
	assert.Equal(t, "text-embedding-3-small", cfg.EmbeddingModel)
	assert.Equal(t, "gpt-3.5-turbo", cfg.ChatModel)
	assert.InDelta(t, 0.3, cfg.ChatTemperature, 1e-9)
	assert.Equal(t, "local", cfg.VectorBackend)
	assert.Equal(t, 6334, cfg.QdrantPort)
	assert.Equal(t, 2*time.Minute, cfg.LockTTL)
	assert.True(t, cfg.MCPEnabled)
	assert.False(t, cfg.NeedsOpenAI())
}

func TestEnvironmentOverrides(t *testing.T) {
	offline(t)
	t.Setenv("PORT", "9090")
	t.Setenv("CHUNK_SIZE", "500")
	t.Setenv("CHUNK_OVERLAP", "50")
	t.Setenv("UPLOAD_POLICY", "Replace")
	t.Setenv("LOCK_TTL", "30s")
	t.Setenv("MCP_ENABLED", "false")

	cfg, err := FromViper(viper.New())
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 500, cfg.ChunkSize)
	assert.Equal(t, 50, cfg.ChunkOverlap)
	assert.Equal(t, "replace", cfg.UploadPolicy)
	assert.Equal(t, 30*time.Second, cfg.LockTTL)
	assert.False(t, cfg.MCPEnabled)
}

func TestConfigFile(t *testing.T) {
	offline(t)
	path := filepath.Join(t.TempDir(), "pdfchat.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 7000\ntop_k: 5\n"), 0o644))
	t.Setenv(ConfigFileEnv, path)
	t.Setenv("TOP_K", "")

	cfg, err := FromViper(viper.New())
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, 5, cfg.TopK)
}

func TestConfigFileMissing(t *testing.T) {
	offline(t)
	t.Setenv(ConfigFileEnv, filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := FromViper(viper.New())
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"overlap not below size", map[string]string{"CHUNK_SIZE": "100", "CHUNK_OVERLAP": "100"}, "CHUNK_OVERLAP"},
		{"unknown policy", map[string]string{"UPLOAD_POLICY": "merge"}, "UPLOAD_POLICY"},
		{"unknown backend", map[string]string{"VECTOR_BACKEND": "faiss"}, "VECTOR_BACKEND"},
		{"zero top k", map[string]string{"TOP_K": "0"}, "TOP_K"},
		{"openai without key", map[string]string{"EMBEDDING_PROVIDER": "openai"}, "OPENAI_API_KEY"},
		{"redis without url", map[string]string{"LOCK_BACKEND": "redis"}, "REDIS_URL"},
		{"bad log level", map[string]string{"LOG_LEVEL": "loud"}, "LOG_LEVEL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			offline(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := FromViper(viper.New())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateAcceptsOpenAIWithKey(t *testing.T) {
	offline(t)
	t.Setenv("EMBEDDING_PROVIDER", "openai")
	t.Setenv("SYNTHESIS_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := FromViper(viper.New())
	require.NoError(t, err)
	assert.True(t, cfg.NeedsOpenAI())
}
