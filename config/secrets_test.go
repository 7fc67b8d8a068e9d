package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/c360studio/repograph/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func secretsConfig(t *testing.T, files map[string]string) *Config {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}
	cfg := DefaultConfig()
	cfg.Secrets.Dir = dir
	return cfg
}

func TestGitHubToken(t *testing.T) {
	cfg := secretsConfig(t, map[string]string{GitHubTokenFile: "  ghp_abc\n"})
	token, err := cfg.GitHubToken()
	require.NoError(t, err)
	assert.Equal(t, "ghp_abc", token)
}

func TestGitHubToken_MissingOrEmpty(t *testing.T) {
	_, err := secretsConfig(t, nil).GitHubToken()
	assert.ErrorIs(t, err, ErrMissingGitHubToken)

	_, err = secretsConfig(t, map[string]string{GitHubTokenFile: "\n"}).GitHubToken()
	assert.ErrorIs(t, err, ErrMissingGitHubToken)
}

func TestModelRegistry_FromSecrets(t *testing.T) {
	cfg := secretsConfig(t, map[string]string{
		LLMAPIKeyFile: "sk-test\n",
		LLMAPIURLFile: "https://api.deepseek.com\n",
	})

	r, err := cfg.ModelRegistry()
	require.NoError(t, err)

	ep := r.GetEndpoint(model.DefaultEndpoint)
	require.NotNil(t, ep)
	assert.Equal(t, "sk-test", ep.APIKey)
	assert.Equal(t, "https://api.deepseek.com", ep.URL)
}

func TestModelRegistry_MissingCredentials(t *testing.T) {
	_, err := secretsConfig(t, map[string]string{LLMAPIKeyFile: "sk-test"}).ModelRegistry()
	assert.ErrorIs(t, err, ErrMissingLLMCredentials)

	_, err = secretsConfig(t, map[string]string{LLMAPIURLFile: "https://api.deepseek.com"}).ModelRegistry()
	assert.ErrorIs(t, err, ErrMissingLLMCredentials)
}

func TestModelRegistry_ConfiguredModelsWithoutKey(t *testing.T) {
	cfg := secretsConfig(t, nil)
	cfg.Models = &model.RegistryConfig{
		Capabilities: map[string]*model.CapabilityConfig{
			"extraction": {Preferred: []string{"local"}},
		},
		Endpoints: map[string]*model.EndpointConfig{
			"local": {Provider: "ollama", URL: "http://localhost:11434/v1", Model: "qwen2.5"},
		},
	}

	r, err := cfg.ModelRegistry()
	require.NoError(t, err)
	assert.Equal(t, "local", r.Resolve(model.CapabilityExtraction))
	assert.Empty(t, r.GetEndpoint("local").APIKey)
}
