package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SaveLayer writes layer to path as YAML, replacing the file atomically via
// a temp-file-then-rename, generalized from internal/config/save.go's
// SaveViews technique (temp file in the same directory, rename over the
// target) to an arbitrary raw layer instead of a single views node.
func SaveLayer(path string, layer map[string]interface{}) error {
	data, err := yaml.Marshal(layer)
	if err != nil {
		return fmt.Errorf("config: marshaling layer: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: creating config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".taskctl-config.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("config: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("config: writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("config: closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("config: renaming temp file: %w", err)
	}
	return nil
}
