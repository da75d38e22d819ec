package config

import (
	"os"
	"strings"
)

// apiKeyEnvVars are checked in priority order before persisted settings.
var apiKeyEnvVars = []string{"PILOT_API_KEY", "OPENAI_API_KEY"}

// NoKeyMessage explains how to configure credentials when none are found.
const NoKeyMessage = `Error: no API key found.

To get started:
  1. Export an API key for your OpenAI-compatible gateway:

       export PILOT_API_KEY="YOUR_API_KEY"

  2. Or persist it once with:

       pilot config set api_key YOUR_API_KEY
`

// ResolveAPIKey returns the API key from the environment or settings.
// Environment variables win over the persisted settings value.
func ResolveAPIKey(settings *Settings) string {
	for _, name := range apiKeyEnvVars {
		if value := strings.TrimSpace(os.Getenv(name)); value != "" {
			return value
		}
	}
	if settings != nil {
		return strings.TrimSpace(settings.APIKey)
	}
	return ""
}

// SaveAPIKey persists the API key to the global settings file.
func SaveAPIKey(key string) error {
	settings, err := LoadGlobal()
	if err != nil {
		return err
	}
	raw := settings.Raw
	if raw == nil {
		raw = map[string]any{}
	}
	raw["api_key"] = strings.TrimSpace(key)
	return Save(raw)
}

// BaseURLEnvVar overrides the gateway endpoint when set.
const BaseURLEnvVar = "PILOT_BASE_URL"

// DefaultBaseURL points at the standard OpenAI-compatible endpoint.
const DefaultBaseURL = "https://api.openai.com/v1"

// ResolveBaseURL returns the chat gateway base URL.
func ResolveBaseURL(settings *Settings) string {
	if value := strings.TrimSpace(os.Getenv(BaseURLEnvVar)); value != "" {
		return value
	}
	if settings != nil {
		if value, ok := settings.Raw["base_url"].(string); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return DefaultBaseURL
}
