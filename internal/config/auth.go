package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
)

type AuthConfig struct {
	// Tokens maps a bearer token to the principal it authenticates.
	Tokens map[string]string
}

var (
	authConfig *AuthConfig
	authOnce   sync.Once
)

func LoadAuthConfig() *AuthConfig {
	authOnce.Do(func() {
		tokens, err := ParseAPITokens(os.Getenv("API_TOKENS"))
		if err != nil {
			log.Printf("Warning: %v; no API tokens configured", err)
			tokens = map[string]string{}
		}
		if len(tokens) == 0 {
			log.Println("Warning: API_TOKENS is empty, every authenticated route will reject requests")
		}
		authConfig = &AuthConfig{Tokens: tokens}
	})
	return authConfig
}

// ParseAPITokens parses "token:principal,token2:principal2".
func ParseAPITokens(raw string) (map[string]string, error) {
	tokens := map[string]string{}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		token, principal, ok := strings.Cut(entry, ":")
		token, principal = strings.TrimSpace(token), strings.TrimSpace(principal)
		if !ok || token == "" || principal == "" {
			return nil, fmt.Errorf("invalid API_TOKENS entry %q, want token:principal", entry)
		}
		tokens[token] = principal
	}
	return tokens, nil
}
