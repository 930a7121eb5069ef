package config

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	tokenService = "apptrack"
	tokenAccount = "api_token"
)

// GetAPIToken returns the bearer token guarding the local management API,
// generating and persisting one on first use.
func GetAPIToken() (string, error) {
	if out, err := keychainExec(tokenService, tokenAccount); err == nil {
		if tok := strings.TrimSpace(string(out)); tok != "" {
			return tok, nil
		}
	}

	tok := uuid.New().String()
	if err := keychainStore(tokenService, tokenAccount, tok); err != nil {
		return "", fmt.Errorf("storing API token: %w", err)
	}
	return tok, nil
}
