package structure

import (
	"embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/clusterforge-backend/internal/domain/cluster"
)

//go:embed presets/*.yaml
var presetFS embed.FS

// PresetDoc is the default configuration seeded for a new cluster.
type PresetDoc struct {
	GeneralStyle map[string]string      `yaml:"general_style"`
	Elements     []cluster.ElementParam `yaml:"elements"`
}

func LoadPreset(intent cluster.Intent) (*PresetDoc, error) {
	if !intent.Valid() {
		return nil, fmt.Errorf("%w: no preset for intent %q", ErrCompile, intent)
	}
	raw, err := presetFS.ReadFile("presets/" + string(intent) + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("%w: read preset %s: %v", ErrCompile, intent, err)
	}
	var doc PresetDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: parse preset %s: %v", ErrCompile, intent, err)
	}
	return &doc, nil
}

// Preset returns the default element params for intent.
func Preset(intent cluster.Intent) ([]cluster.ElementParam, error) {
	doc, err := LoadPreset(intent)
	if err != nil {
		return nil, err
	}
	return doc.Elements, nil
}
