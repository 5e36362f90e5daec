package llm

import (
	"errors"
	"strings"
)

var (
	// ErrCredentialMissing means no API key was configured.
	ErrCredentialMissing = errors.New("llm: API key is not set")
	// ErrCredentialPlaceholder means the API key is a template value
	// that was never replaced.
	ErrCredentialPlaceholder = errors.New("llm: API key is a placeholder value")
	// ErrEmptyEmbedding means the backend answered without vector data.
	ErrEmptyEmbedding = errors.New("llm: backend returned an empty embedding")
)

// placeholder values seen in checked-in env templates.
var placeholderKeys = map[string]struct{}{
	"your-gemini-api-key": {},
	"your-api-key-here":   {},
	"changeme":            {},
}

// ValidateAPIKey rejects missing or placeholder credentials. Clients
// check once at construction; credential errors are never retried.
func ValidateAPIKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrCredentialMissing
	}
	if _, ok := placeholderKeys[strings.ToLower(key)]; ok {
		return ErrCredentialPlaceholder
	}
	return nil
}
