package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// PilotDirName is the per-user and per-project config directory name.
const PilotDirName = ".pilot"

// settingsFileName is the settings file stored inside a pilot directory.
const settingsFileName = "settings.json"

// Settings holds merged pilot configuration values.
type Settings struct {
	// DefaultModel selects the model when no CLI override is given.
	DefaultModel string
	// PermissionMode is the configured tool permission mode (plan/auto/ask).
	PermissionMode string
	// APIKey is the stored API key, when persisted to settings.
	APIKey string
	// DenyTools lists tool names the policy engine must always refuse.
	DenyTools []string
	// Raw retains the full JSON map for forward compatibility.
	Raw map[string]any
}

// GlobalDir returns the global pilot config directory (~/.pilot).
func GlobalDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, PilotDirName), nil
}

// GlobalSettingsPath returns the path to ~/.pilot/settings.json.
func GlobalSettingsPath() (string, error) {
	dir, err := GlobalDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, settingsFileName), nil
}

// LocalSettingsPath returns the project-level settings path.
func LocalSettingsPath(projectRoot string) string {
	return filepath.Join(projectRoot, PilotDirName, settingsFileName)
}

// Load merges global settings with project-level overrides.
// Project values win; missing files are silently ignored.
func Load(projectRoot string) (*Settings, error) {
	merged, err := LoadGlobal()
	if err != nil {
		return nil, err
	}
	if projectRoot == "" {
		return merged, nil
	}
	local, err := loadSettingsFile(LocalSettingsPath(projectRoot))
	if err != nil {
		return nil, err
	}
	return mergeSettings(merged, local), nil
}

// LoadGlobal reads only ~/.pilot/settings.json.
func LoadGlobal() (*Settings, error) {
	path, err := GlobalSettingsPath()
	if err != nil {
		return nil, err
	}
	settings, err := loadSettingsFile(path)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		return &Settings{Raw: map[string]any{}}, nil
	}
	return settings, nil
}

// Save persists raw settings values to the global settings file.
// Project-level overrides are edited manually in the project directory.
func Save(raw map[string]any) error {
	path, err := GlobalSettingsPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

// loadSettingsFile reads one settings file, returning nil when absent.
func loadSettingsFile(path string) (*Settings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read settings: %w", err)
	}
	return parseSettings(raw)
}

// parseSettings decodes settings JSON into the typed view.
func parseSettings(raw []byte) (*Settings, error) {
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}

	settings := &Settings{Raw: data}

	if model, ok := data["default_model"].(string); ok {
		settings.DefaultModel = model
	}
	if mode, ok := data["permission_mode"].(string); ok {
		settings.PermissionMode = mode
	}
	if key, ok := data["api_key"].(string); ok {
		settings.APIKey = key
	}
	if tools, ok := data["denyTools"].([]any); ok {
		for _, entry := range tools {
			if name, ok := entry.(string); ok && name != "" {
				settings.DenyTools = append(settings.DenyTools, name)
			}
		}
	}

	return settings, nil
}

// mergeSettings applies overlay values on top of the base settings.
func mergeSettings(base *Settings, overlay *Settings) *Settings {
	if base == nil {
		return overlay
	}
	if overlay == nil {
		return base
	}

	merged := &Settings{
		DefaultModel:   base.DefaultModel,
		PermissionMode: base.PermissionMode,
		APIKey:         base.APIKey,
		DenyTools:      append([]string(nil), base.DenyTools...),
		Raw:            map[string]any{},
	}

	for key, value := range base.Raw {
		merged.Raw[key] = value
	}
	for key, value := range overlay.Raw {
		merged.Raw[key] = value
	}

	if overlay.DefaultModel != "" {
		merged.DefaultModel = overlay.DefaultModel
	}
	if overlay.PermissionMode != "" {
		merged.PermissionMode = overlay.PermissionMode
	}
	if overlay.APIKey != "" {
		merged.APIKey = overlay.APIKey
	}
	if len(overlay.DenyTools) > 0 {
		merged.DenyTools = append([]string(nil), overlay.DenyTools...)
	}

	return merged
}
