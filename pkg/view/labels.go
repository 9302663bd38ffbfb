package view

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Labels overrides user-facing strings. Keys are the default English text.
type Labels map[string]string

// LoadLabels reads a JSON or YAML (by extension) map. A missing file yields
// no overrides.
func LoadLabels(path string) (Labels, error) {
	if path == "" {
		return Labels{}, nil
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Labels{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read labels %s: %w", path, err)
	}

	labels := Labels{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &labels)
	default:
		err = json.Unmarshal(raw, &labels)
	}
	if err != nil {
		return nil, fmt.Errorf("parse labels %s: %w", path, err)
	}
	return labels, nil
}

// Get translates text and fills {{key}} placeholders from key/value pairs.
func (l Labels) Get(text string, params ...string) string {
	label := text
	if override, ok := l[text]; ok && override != "" {
		label = override
	}
	for i := 0; i+1 < len(params); i += 2 {
		label = strings.ReplaceAll(label, "{{"+params[i]+"}}", params[i+1])
	}
	return label
}
