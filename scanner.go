package boardscan

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/multierr"

	"go.viam.com/rdk/components/camera"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/rimage"
	generic "go.viam.com/rdk/services/generic"
)

var ScannerModel = family.WithModel("scanner")

func init() {
	resource.RegisterService(generic.API, ScannerModel,
		resource.Registration[resource.Resource, *ScannerConfig]{
			Constructor: newScanner,
		},
	)
}

type ScannerConfig struct {
	Camera string `json:"camera"`

	ModelPath      string `json:"model-path"`
	OnnxLibrary    string `json:"onnx-library"`
	ModelInputSize int    `json:"model-input-size"`

	ExemplarDir string `json:"exemplar-dir"`

	Workers   int     `json:"workers"`
	OutSize   int     `json:"out-size"`
	TrimRatio float64 `json:"trim-ratio"`

	Occupancy map[string]interface{} `json:"occupancy"`
	Shape     map[string]interface{} `json:"shape"`
	Template  map[string]interface{} `json:"template"`
	Localizer map[string]interface{} `json:"localizer"`
}

func (cfg *ScannerConfig) Validate(path string) ([]string, []string, error) {
	if cfg.Workers < 0 {
		return nil, nil, fmt.Errorf("workers can't be negative")
	}
	if cfg.OutSize != 0 && cfg.OutSize < 64 {
		return nil, nil, fmt.Errorf("out-size must be at least 64")
	}
	if cfg.TrimRatio < 0 || cfg.TrimRatio >= 0.5 {
		return nil, nil, fmt.Errorf("trim-ratio must be in [0, 0.5)")
	}
	if _, err := cfg.PipelineConfig(); err != nil {
		return nil, nil, err
	}

	if cfg.Camera == "" {
		return nil, nil, nil
	}
	return []string{cfg.Camera}, nil, nil
}

// PipelineConfig applies the attribute overrides over the defaults.
func (cfg *ScannerConfig) PipelineConfig() (PipelineConfig, error) {
	pc := DefaultPipelineConfig()

	raw := map[string]interface{}{}
	for k, v := range map[string]map[string]interface{}{
		"occupancy": cfg.Occupancy,
		"shape":     cfg.Shape,
		"template":  cfg.Template,
		"localizer": cfg.Localizer,
	} {
		if len(v) > 0 {
			raw[k] = v
		}
	}
	if err := pc.ApplyOverrides(raw); err != nil {
		return pc, err
	}

	if cfg.Workers > 0 {
		pc.Workers = cfg.Workers
	}
	if cfg.OutSize > 0 {
		pc.Localizer.OutSize = cfg.OutSize
	}
	if cfg.TrimRatio > 0 {
		pc.Localizer.TrimRatio = cfg.TrimRatio
	}
	return pc, pc.Validate()
}

type scanner struct {
	resource.AlwaysRebuild

	name resource.Name

	logger logging.Logger
	conf   *ScannerConfig

	cam       camera.Camera
	pipeline  *Pipeline
	exemplars *BadgerExemplars
	model     PositionModel
}

func newScanner(ctx context.Context, deps resource.Dependencies, rawConf resource.Config, logger logging.Logger) (resource.Resource, error) {
	conf, err := resource.NativeConfig[*ScannerConfig](rawConf)
	if err != nil {
		return nil, err
	}

	return NewScanner(ctx, deps, rawConf.ResourceName(), conf, logger)
}

func NewScanner(ctx context.Context, deps resource.Dependencies, name resource.Name, conf *ScannerConfig, logger logging.Logger) (resource.Resource, error) {
	pc, err := conf.PipelineConfig()
	if err != nil {
		return nil, err
	}

	s := &scanner{
		name:   name,
		logger: logger,
		conf:   conf,
	}

	if conf.Camera != "" {
		s.cam, err = camera.FromProvider(deps, conf.Camera)
		if err != nil {
			return nil, err
		}
	}

	var persist ExemplarPersister
	if conf.ExemplarDir != "" {
		s.exemplars, err = OpenBadgerExemplars(conf.ExemplarDir)
		if err != nil {
			return nil, err
		}
		persist = s.exemplars
	}

	store, err := NewExemplarStore(persist)
	if err != nil {
		return nil, multierr.Combine(err, s.Close(ctx))
	}

	if conf.ModelPath != "" {
		m, err := NewONNXPositionModel(ModelConfig{
			Path:        conf.ModelPath,
			LibraryPath: conf.OnnxLibrary,
			InputSize:   conf.ModelInputSize,
		})
		if err != nil {
			logger.Warnf("model disabled: %v", err)
		} else {
			s.model = m
		}
	}

	s.pipeline, err = NewPipeline(pc, store, s.model, logger)
	if err != nil {
		return nil, multierr.Combine(err, s.Close(ctx))
	}

	return s, nil
}

func (s *scanner) Name() resource.Name {
	return s.name
}

// ----

type scanCmd struct {
	Path             string `mapstructure:"path"`
	Rotation         *int   `mapstructure:"rotation"`
	UseTemplates     bool   `mapstructure:"use-templates"`
	StartingPosition bool   `mapstructure:"starting-position"`
}

type extractCmd struct {
	Path string `mapstructure:"path"`
}

type generateCmd struct {
	Pieces []PlacedPiece `mapstructure:"pieces"`
}

type resetPlanCmd struct {
	FEN string `mapstructure:"fen"`
}

type cmdStruct struct {
	Scan           *scanCmd      `mapstructure:"scan"`
	ExtractSquares *extractCmd   `mapstructure:"extract-squares"`
	GenerateFEN    *generateCmd  `mapstructure:"generate-fen"`
	ResetPlan      *resetPlanCmd `mapstructure:"reset-plan"`
	ResetTemplates bool          `mapstructure:"reset-templates"`
}

func decodeCmd(cmdMap map[string]interface{}) (cmdStruct, error) {
	var cmd cmdStruct
	dc, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cmd,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return cmd, err
	}
	return cmd, dc.Decode(cmdMap)
}

func (s *scanner) DoCommand(ctx context.Context, cmdMap map[string]interface{}) (map[string]interface{}, error) {
	cmd, err := decodeCmd(cmdMap)
	if err != nil {
		return nil, err
	}

	switch {
	case cmd.Scan != nil:
		img, err := s.getImage(ctx, cmd.Scan.Path)
		if err != nil {
			return nil, err
		}
		if cmd.Scan.Rotation != nil && !ValidRotation(*cmd.Scan.Rotation) {
			return nil, fmt.Errorf("rotation must be 0, 90, 180 or 270, got %d", *cmd.Scan.Rotation)
		}
		res := s.pipeline.Recognize(ctx, &Request{
			Image:            img,
			Rotation:         cmd.Scan.Rotation,
			UseTemplates:     cmd.Scan.UseTemplates,
			StartingPosition: cmd.Scan.StartingPosition,
		})
		return resultToMap(res), nil

	case cmd.ExtractSquares != nil:
		img, err := s.getImage(ctx, cmd.ExtractSquares.Path)
		if err != nil {
			return nil, err
		}
		ex, err := s.pipeline.ExtractTiles(ctx, img)
		if err != nil {
			return nil, err
		}
		return extractionToMap(ex), nil

	case cmd.GenerateFEN != nil:
		p, err := PlacementFromPieces(cmd.GenerateFEN.Pieces)
		if err != nil {
			return nil, err
		}
		fen, err := EncodeFEN(p)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"fen": fen}, nil

	case cmd.ResetPlan != nil:
		p, err := ParseFEN(cmd.ResetPlan.FEN)
		if err != nil {
			return nil, err
		}
		moves, err := ResetPlan(p)
		if err != nil {
			return nil, err
		}
		out := []interface{}{}
		for _, m := range moves {
			out = append(out, map[string]interface{}{"from": m.From, "to": m.To})
		}
		return map[string]interface{}{"moves": out}, nil

	case cmd.ResetTemplates:
		if err := s.pipeline.Exemplars().Reset(); err != nil {
			return nil, err
		}
		return map[string]interface{}{"reset": true}, nil
	}

	return nil, fmt.Errorf("bad cmd %v", cmdMap)
}

func (s *scanner) getImage(ctx context.Context, path string) (image.Image, error) {
	if path != "" {
		return rimage.ReadImageFromFile(path)
	}
	if s.cam == nil {
		return nil, errors.New("no camera configured and no path given")
	}

	ni, _, err := s.cam.Images(ctx, nil, nil)
	if err != nil {
		return nil, err
	}
	if len(ni) == 0 {
		return nil, fmt.Errorf("no images returned from camera %s", s.conf.Camera)
	}
	return ni[0].Image(ctx)
}

func resultToMap(res *Result) map[string]interface{} {
	pieces := []interface{}{}
	for _, p := range res.Pieces {
		pieces = append(pieces, map[string]interface{}{"position": p.Position, "piece": p.Piece})
	}
	failures := []interface{}{}
	for _, f := range res.Failures {
		failures = append(failures, f.Error())
	}

	m := map[string]interface{}{
		"fen":        res.FEN,
		"confidence": res.Confidence,
		"strategy":   res.Strategy,
		"rotation":   res.Rotation,
		"pieces":     pieces,
		"failures":   failures,
	}
	if res.Board != nil {
		m["method"] = res.Board.Method
		m["corners"] = cornersToList(res.Board.Corners.ImagePoints())
	}
	return m
}

func extractionToMap(ex *Extraction) map[string]interface{} {
	tiles := []interface{}{}
	for _, t := range ex.Tiles {
		tiles = append(tiles, map[string]interface{}{
			"position":       t.Position,
			"index":          t.Index,
			"is_empty":       t.IsEmpty,
			"detected_color": t.DetectedColor,
			"bounds": []interface{}{
				t.Bounds.Min.X, t.Bounds.Min.Y, t.Bounds.Max.X, t.Bounds.Max.Y,
			},
		})
	}
	return map[string]interface{}{
		"size":    ex.Size,
		"method":  ex.Method,
		"corners": cornersToList(ex.Corners[:]),
		"squares": tiles,
	}
}

func cornersToList(pts []image.Point) []interface{} {
	out := []interface{}{}
	for _, p := range pts {
		out = append(out, []interface{}{p.X, p.Y})
	}
	return out
}

func (s *scanner) Close(context.Context) error {
	var err error
	if s.model != nil {
		err = multierr.Append(err, s.model.Close())
	}
	if s.exemplars != nil {
		err = multierr.Append(err, s.exemplars.Close())
	}
	return err
}
