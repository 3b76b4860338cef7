package rules

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/audiopcb/veritas/internal/models"
)

// PackFile is the YAML root structure of a rule pack.
type PackFile struct {
	Rules []*models.ValidationRule `yaml:"rules"`
}

// LoadPack reads a YAML rule pack from path and registers every rule into the
// registry. If path is empty or the file does not exist, nothing is loaded.
func LoadPack(path string, registry *Registry, logger *slog.Logger) (int, error) {
	if path == "" {
		return 0, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	var pack PackFile
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return 0, fmt.Errorf("parse rule pack: %w", err)
	}

	loaded := 0
	for _, rule := range pack.Rules {
		if err := registry.Add(rule); err != nil {
			return loaded, fmt.Errorf("register rule %s: %w", rule.ID, err)
		}
		loaded++
	}
	logger.Info("rule pack loaded", slog.String("path", path), slog.Int("rules", loaded))
	return loaded, nil
}
