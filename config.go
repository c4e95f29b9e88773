package boardscan

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// OccupancyConfig holds the feature buckets for the empty/occupied score.
// Each feature contributes the points of the first threshold it exceeds.
type OccupancyConfig struct {
	BlurSize   int      `mapstructure:"blur-size"`
	CannyLow   float32  `mapstructure:"canny-low"`
	CannyHigh  float32  `mapstructure:"canny-high"`
	HistBins   int      `mapstructure:"hist-bins"`
	MinScore   int      `mapstructure:"min-score"`
	DarkCutoff uint8    `mapstructure:"dark-cutoff"`
	DarkRatio  float64  `mapstructure:"dark-ratio"`
	BlackMean  float64  `mapstructure:"black-mean"`
	EdgeRatio  []Bucket `mapstructure:"edge-ratio"`
	Variance   []Bucket `mapstructure:"variance"`
	Laplacian  []Bucket `mapstructure:"laplacian"`
	Entropy    []Bucket `mapstructure:"entropy"`
	CenterDiff []Bucket `mapstructure:"center-diff"`
	SobelMean  []Bucket `mapstructure:"sobel-mean"`
}

// Bucket awards Points when a feature is strictly above Above.
type Bucket struct {
	Above  float64 `mapstructure:"above"`
	Points int     `mapstructure:"points"`
}

func DefaultOccupancyConfig() OccupancyConfig {
	return OccupancyConfig{
		BlurSize:   5,
		CannyLow:   30,
		CannyHigh:  100,
		HistBins:   32,
		MinScore:   4,
		DarkCutoff: 80,
		DarkRatio:  0.15,
		BlackMean:  120,
		EdgeRatio:  []Bucket{{0.04, 3}, {0.025, 2}, {0.015, 1}},
		Variance:   []Bucket{{600, 2}, {400, 1}},
		Laplacian:  []Bucket{{300, 2}, {150, 1}},
		Entropy:    []Bucket{{3.5, 2}, {3.0, 1}},
		CenterDiff: []Bucket{{20, 1}},
		SobelMean:  []Bucket{{25, 1}},
	}
}

// ShapeConfig holds the silhouette thresholds of the piece-type decision list.
type ShapeConfig struct {
	ClaheClip      float64 `mapstructure:"clahe-clip"`
	ClaheGrid      int     `mapstructure:"clahe-grid"`
	BlockSize      int     `mapstructure:"block-size"`
	ThresholdC     float32 `mapstructure:"threshold-c"`
	MinArea        float64 `mapstructure:"min-area"`
	MinAspect      float64 `mapstructure:"min-aspect"`
	MaxAspect      float64 `mapstructure:"max-aspect"`
	SquareLow      float64 `mapstructure:"square-low"`
	SquareHigh     float64 `mapstructure:"square-high"`
	RookExtentLow  float64 `mapstructure:"rook-extent-low"`
	RookExtentHigh float64 `mapstructure:"rook-extent-high"`
	RookSolidity   float64 `mapstructure:"rook-solidity"`
	KnightSolidity float64 `mapstructure:"knight-solidity"`
	BishopExtent   float64 `mapstructure:"bishop-extent"`
	BishopSolLow   float64 `mapstructure:"bishop-solidity-low"`
	BishopSolHigh  float64 `mapstructure:"bishop-solidity-high"`
	QueenSolidity  float64 `mapstructure:"queen-solidity"`
	TopMassRatio   float64 `mapstructure:"top-mass-ratio"`
	KingExtent     float64 `mapstructure:"king-extent"`
}

func DefaultShapeConfig() ShapeConfig {
	return ShapeConfig{
		ClaheClip:      2.0,
		ClaheGrid:      4,
		BlockSize:      11,
		ThresholdC:     2,
		MinArea:        50,
		MinAspect:      0.3,
		MaxAspect:      3.0,
		SquareLow:      0.85,
		SquareHigh:     1.05,
		RookExtentLow:  0.55,
		RookExtentHigh: 0.70,
		RookSolidity:   0.70,
		KnightSolidity: 0.65,
		BishopExtent:   0.60,
		BishopSolLow:   0.50,
		BishopSolHigh:  0.75,
		QueenSolidity:  0.75,
		TopMassRatio:   0.7,
		KingExtent:     0.70,
	}
}

// TemplateConfig controls exemplar capture and matching.
type TemplateConfig struct {
	PatchSize      int     `mapstructure:"patch-size"`
	MinScore       float64 `mapstructure:"min-score"`
	MinMargin      float64 `mapstructure:"min-margin"`
	EmptyEdgeRatio float64 `mapstructure:"empty-edge-ratio"`
}

func DefaultTemplateConfig() TemplateConfig {
	return TemplateConfig{
		PatchSize:      32,
		MinScore:       0.5,
		MinMargin:      0.1,
		EmptyEdgeRatio: 0.02,
	}
}

// LocalizerConfig controls board detection and rectification.
type LocalizerConfig struct {
	OutSize      int       `mapstructure:"out-size"`
	TrimRatio    float64   `mapstructure:"trim-ratio"`
	MaxTrim      float64   `mapstructure:"max-trim"`
	TilePadding  int       `mapstructure:"tile-padding"`
	GridScales   []float64 `mapstructure:"grid-scales"`
	MaxContours  int       `mapstructure:"max-contours"`
	EpsFactors   []float64 `mapstructure:"eps-factors"`
	MinAreaRatio float64   `mapstructure:"min-area-ratio"`
	MaxAreaRatio float64   `mapstructure:"max-area-ratio"`
}

func DefaultLocalizerConfig() LocalizerConfig {
	return LocalizerConfig{
		OutSize:      800,
		TrimRatio:    0.03,
		MaxTrim:      0.10,
		TilePadding:  2,
		GridScales:   []float64{1.0, 0.75, 1.25},
		MaxContours:  20,
		EpsFactors:   []float64{0.02, 0.03, 0.04, 0.05},
		MinAreaRatio: 0.05,
		MaxAreaRatio: 0.95,
	}
}

// PipelineConfig groups one threshold record per classifier.
type PipelineConfig struct {
	Occupancy OccupancyConfig
	Shape     ShapeConfig
	Template  TemplateConfig
	Localizer LocalizerConfig
	Workers   int
}

func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Occupancy: DefaultOccupancyConfig(),
		Shape:     DefaultShapeConfig(),
		Template:  DefaultTemplateConfig(),
		Localizer: DefaultLocalizerConfig(),
		Workers:   8,
	}
}

// ApplyOverrides decodes a loosely typed map (from resource attributes or a command)
// over the current values.
func (pc *PipelineConfig) ApplyOverrides(raw map[string]interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	dc, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           pc,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		ZeroFields:       true,
	})
	if err != nil {
		return err
	}
	if err := dc.Decode(raw); err != nil {
		return fmt.Errorf("bad pipeline overrides: %w", err)
	}
	return pc.Validate()
}

func (pc *PipelineConfig) Validate() error {
	if pc.Localizer.OutSize < 64 {
		return fmt.Errorf("out-size must be at least 64, got %d", pc.Localizer.OutSize)
	}
	if pc.Localizer.TrimRatio < 0 || pc.Localizer.TrimRatio >= 0.5 {
		return fmt.Errorf("trim-ratio must be in [0, 0.5), got %v", pc.Localizer.TrimRatio)
	}
	if pc.Localizer.MaxTrim < 0 || pc.Localizer.MaxTrim >= 0.5 {
		return fmt.Errorf("max-trim must be in [0, 0.5), got %v", pc.Localizer.MaxTrim)
	}
	if pc.Localizer.TilePadding < 0 {
		return fmt.Errorf("tile-padding can't be negative")
	}
	if pc.Template.PatchSize < 4 {
		return fmt.Errorf("patch-size must be at least 4, got %d", pc.Template.PatchSize)
	}
	if pc.Occupancy.BlurSize%2 == 0 || pc.Shape.BlockSize%2 == 0 {
		return fmt.Errorf("blur-size and block-size must be odd")
	}
	if pc.Occupancy.HistBins <= 0 {
		return fmt.Errorf("hist-bins must be positive")
	}
	if pc.Workers <= 0 {
		pc.Workers = 1
	}
	return nil
}

func bucketPoints(v float64, buckets []Bucket) int {
	for _, b := range buckets {
		if v > b.Above {
			return b.Points
		}
	}
	return 0
}
