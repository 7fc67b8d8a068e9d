package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/c360studio/repograph/model"
)

// Secret file names inside the secrets directory.
const (
	GitHubTokenFile = "github_token.txt"
	LLMAPIKeyFile   = "deepseek_api_key.txt"
	LLMAPIURLFile   = "deepseek_api_url.txt"
)

var (
	// ErrMissingGitHubToken means acquisition cannot authenticate. It is fatal
	// for every command that talks to the hosting API.
	ErrMissingGitHubToken = errors.New("github token is missing or empty")

	// ErrMissingLLMCredentials disables the generative extractor.
	ErrMissingLLMCredentials = errors.New("llm credentials are missing or empty")
)

// ReadSecret returns the trimmed content of a secret file. A missing or
// blank file yields fs.ErrNotExist.
func ReadSecret(dir, name string) (string, error) {
	path := filepath.Join(dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read secret %s: %w", path, err)
	}
	value := strings.TrimSpace(string(data))
	if value == "" {
		return "", fmt.Errorf("secret %s is empty: %w", path, fs.ErrNotExist)
	}
	return value, nil
}

// GitHubToken reads the hosting API token.
func (c *Config) GitHubToken() (string, error) {
	token, err := ReadSecret(c.Secrets.Dir, GitHubTokenFile)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMissingGitHubToken, err)
	}
	return token, nil
}

// ModelRegistry builds the chat-completion registry. With a models section
// configured, the API key file is optional and fills endpoints that carry no
// key. Without one, a single DeepSeek endpoint is built from the key and URL
// files, and either missing yields ErrMissingLLMCredentials.
func (c *Config) ModelRegistry() (*model.Registry, error) {
	key, keyErr := ReadSecret(c.Secrets.Dir, LLMAPIKeyFile)

	if !c.Models.IsEmpty() {
		r := model.FromConfig(c.Models)
		if keyErr == nil {
			r.SetAPIKey(key)
		}
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("models: %w", err)
		}
		return r, nil
	}

	if keyErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingLLMCredentials, keyErr)
	}
	url, err := ReadSecret(c.Secrets.Dir, LLMAPIURLFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingLLMCredentials, err)
	}
	return model.NewDefaultRegistry(url, key), nil
}
