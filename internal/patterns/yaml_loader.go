package patterns

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// SignatureFile is the schema for a YAML signature pack. Operators drop
// packs into the signatures directory to extend the built-in set without
// rebuilding.
type SignatureFile struct {
	Signatures []SignatureDef `yaml:"signatures"`
}

type SignatureDef struct {
	Name     string  `yaml:"name"`
	Category string  `yaml:"category"`
	Weight   float64 `yaml:"weight"`
	Pattern  string  `yaml:"pattern"`
}

// LoadFromDirectory loads signature packs from YAML files in dir. Files must
// have a .yaml or .yml extension. Invalid entries are skipped with a warning
// rather than failing startup.
func LoadFromDirectory(dir string, logger *slog.Logger) ([]Signature, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		logger.Debug("signatures directory does not exist, skipping", "dir", dir)
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read signatures dir: %w", err)
	}

	var sigs []Signature
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("cannot read signature file", "path", path, "err", err)
			continue
		}

		var file SignatureFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			logger.Warn("cannot parse signature file", "path", path, "err", err)
			continue
		}

		for _, def := range file.Signatures {
			sig, err := compileSignature(def)
			if err != nil {
				logger.Warn("skipping invalid signature", "path", path, "name", def.Name, "err", err)
				continue
			}
			logger.Info("loaded custom signature", "name", sig.Name, "category", sig.Category, "path", path)
			sigs = append(sigs, sig)
		}
	}

	return sigs, nil
}

func compileSignature(def SignatureDef) (Signature, error) {
	if def.Name == "" {
		return Signature{}, fmt.Errorf("signature has no name")
	}
	if def.Pattern == "" {
		return Signature{}, fmt.Errorf("signature %q has no pattern", def.Name)
	}
	if def.Weight <= 0 || def.Weight > 1 {
		return Signature{}, fmt.Errorf("signature %q weight %v outside (0,1]", def.Name, def.Weight)
	}
	re, err := regexp.Compile("(?i)" + def.Pattern)
	if err != nil {
		return Signature{}, fmt.Errorf("signature %q: %w", def.Name, err)
	}
	cat := Category(def.Category)
	if cat == "" {
		cat = CategoryVerification
	}
	return Signature{Name: def.Name, Category: cat, Weight: def.Weight, re: re}, nil
}
