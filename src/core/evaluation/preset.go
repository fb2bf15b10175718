package evaluation

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidPreset = errors.New("invalid preset")

// Preset is a named combination of pipeline hyperparameters.
type Preset struct {
	Name        string  `json:"name" mapstructure:"name"`
	ChunkSize   int     `json:"chunk_size" mapstructure:"chunk_size"`
	TopK        int     `json:"top_k" mapstructure:"top_k"`
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
}

func DefaultPresets() []Preset {
	return []Preset{
		{Name: "Creative & Balanced", ChunkSize: 1000, TopK: 4, Temperature: 0.3},
		{Name: "Wide Context Sweep", ChunkSize: 1200, TopK: 6, Temperature: 0.1},
		{Name: "Balanced Natural", ChunkSize: 1000, TopK: 3, Temperature: 0.2},
		{Name: "Dense Precision", ChunkSize: 1800, TopK: 2, Temperature: 0.15},
	}
}

// ValidatePresets checks every preset and rejects duplicate names.
// chunkOverlap is the overlap the pipeline will use; chunk sizes must exceed it.
func ValidatePresets(presets []Preset, chunkOverlap int) error {
	if len(presets) == 0 {
		return fmt.Errorf("%w: no presets configured", ErrInvalidPreset)
	}

	seen := make(map[string]struct{}, len(presets))
	for i, p := range presets {
		name := strings.TrimSpace(p.Name)
		switch {
		case name == "":
			return fmt.Errorf("%w: preset %d has no name", ErrInvalidPreset, i)
		case p.ChunkSize <= 0:
			return fmt.Errorf("%w: %q chunk_size must be positive", ErrInvalidPreset, p.Name)
		case p.ChunkSize <= chunkOverlap:
			return fmt.Errorf("%w: %q chunk_size %d must exceed chunk overlap %d", ErrInvalidPreset, p.Name, p.ChunkSize, chunkOverlap)
		case p.TopK <= 0:
			return fmt.Errorf("%w: %q top_k must be positive", ErrInvalidPreset, p.Name)
		case p.Temperature < 0 || p.Temperature > 2:
			return fmt.Errorf("%w: %q temperature must be within [0, 2]", ErrInvalidPreset, p.Name)
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("%w: duplicate name %q", ErrInvalidPreset, p.Name)
		}
		seen[name] = struct{}{}
	}
	return nil
}
