package quality

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed weights.yaml
var weightsYAML []byte

// Weights holds the contribution of each metric to the overall score.
type Weights struct {
	Size       float64 `yaml:"size"`
	Pose       float64 `yaml:"pose"`
	Sharpness  float64 `yaml:"sharpness"`
	Brightness float64 `yaml:"brightness"`
}

// Bands holds the lower score bound of each named quality band.
type Bands struct {
	Excellent float64 `yaml:"excellent"`
	Good      float64 `yaml:"good"`
	Fair      float64 `yaml:"fair"`
}

type weightsFile struct {
	Weights Weights `yaml:"weights"`
	Bands   Bands   `yaml:"bands"`
}

func loadWeights() (Weights, Bands, error) {
	var file weightsFile
	if err := yaml.Unmarshal(weightsYAML, &file); err != nil {
		return Weights{}, Bands{}, fmt.Errorf("failed to parse embedded quality weights: %w", err)
	}
	sum := file.Weights.Size + file.Weights.Pose + file.Weights.Sharpness + file.Weights.Brightness
	if sum == 0 {
		return Weights{}, Bands{}, fmt.Errorf("quality weights sum to zero")
	}
	return file.Weights, file.Bands, nil
}
