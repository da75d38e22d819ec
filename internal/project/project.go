// Package project maps workspace directories to stable short ids so
// sessions can be grouped per project.
package project

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pilotcli/pilot/internal/config"
)

// registryFileName stores the path-to-id mapping under the global config dir.
const registryFileName = "projects.json"

// workspaceMarkers identify a project root when no .git directory is found.
var workspaceMarkers = []string{"go.mod", "package.json", "pyproject.toml"}

// FindRoot walks upward from start to locate the project root.
// A .git directory is the strongest signal; marker files come second.
// The cleaned start path is returned when nothing matches.
func FindRoot(start string) string {
	current := filepath.Clean(start)

	for dir := current; ; dir = filepath.Dir(dir) {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir
		}
		if filepath.Dir(dir) == dir {
			break
		}
	}

	for dir := current; ; dir = filepath.Dir(dir) {
		for _, marker := range workspaceMarkers {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir
			}
		}
		if filepath.Dir(dir) == dir {
			break
		}
	}

	return current
}

// ID returns the short id for a project root, creating one if needed.
func ID(projectRoot string) (string, error) {
	abs, err := filepath.Abs(projectRoot)
	if err != nil {
		return "", fmt.Errorf("resolve project root: %w", err)
	}

	registry, err := loadRegistry()
	if err != nil {
		return "", err
	}
	if id, ok := registry[abs]; ok {
		return id, nil
	}

	id := shortHash(abs)
	// Bump the hash input until the id is unique within the registry.
	for registryHasID(registry, id) {
		id = shortHash(abs + id)
	}

	registry[abs] = id
	if err := saveRegistry(registry); err != nil {
		return "", err
	}
	return id, nil
}

// shortHash derives a 6-hex-char id from a path string.
func shortHash(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:3])
}

// registryHasID reports whether any path already owns the id.
func registryHasID(registry map[string]string, id string) bool {
	for _, existing := range registry {
		if existing == id {
			return true
		}
	}
	return false
}

// loadRegistry reads ~/.pilot/projects.json, tolerating absence and corruption.
func loadRegistry() (map[string]string, error) {
	dir, err := config.GlobalDir()
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(filepath.Join(dir, registryFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read project registry: %w", err)
	}
	registry := map[string]string{}
	if err := json.Unmarshal(raw, &registry); err != nil {
		// A corrupt registry is rebuilt rather than blocking startup.
		return map[string]string{}, nil
	}
	return registry, nil
}

// saveRegistry persists the registry to ~/.pilot/projects.json.
func saveRegistry(registry map[string]string) error {
	dir, err := config.GlobalDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(registry, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal project registry: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, registryFileName), append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write project registry: %w", err)
	}
	return nil
}
