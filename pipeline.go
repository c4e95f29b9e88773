package boardscan

import (
	"context"
	"errors"
	"fmt"
	"image"

	"golang.org/x/sync/errgroup"

	"go.viam.com/rdk/logging"
)

const (
	StrategyTemplate  = "template"
	StrategyGeometric = "geometric"
	StrategyLegacy    = "legacy-grid"
	StrategyModel     = "model"
)

// Confidence assigned to each strategy's answer.
const (
	confTemplateCached = 0.95
	confTemplateFresh  = 0.85
	confGeometric      = 0.70
	confLegacy         = 0.50
	confModel          = 0.85
)

// Pipeline wires the localizer, classifiers, exemplars and model together.
type Pipeline struct {
	cfg       PipelineConfig
	localizer *Localizer
	occupancy *OccupancyClassifier
	shapes    *ShapeClassifier
	exemplars *ExemplarStore
	model     PositionModel
	logger    logging.Logger

	recognizer *Recognizer
}

// NewPipeline builds the standard strategy order: template, geometric, legacy grid, model.
// exemplars and model may be nil.
func NewPipeline(cfg PipelineConfig, exemplars *ExemplarStore, model PositionModel, logger logging.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if exemplars == nil {
		exemplars, _ = NewExemplarStore(nil)
	}

	p := &Pipeline{
		cfg:       cfg,
		localizer: NewLocalizer(cfg.Localizer, logger),
		occupancy: NewOccupancyClassifier(cfg.Occupancy),
		shapes:    NewShapeClassifier(cfg.Shape),
		exemplars: exemplars,
		model:     model,
		logger:    logger,
	}
	p.recognizer = NewRecognizer(logger,
		&templateStrategy{p},
		&geometricStrategy{p},
		&legacyStrategy{p},
		&modelStrategy{p},
	)
	return p, nil
}

func (p *Pipeline) Recognize(ctx context.Context, req *Request) *Result {
	return p.recognizer.Recognize(ctx, req)
}

func (p *Pipeline) Exemplars() *ExemplarStore {
	return p.exemplars
}

func (p *Pipeline) Localizer() *Localizer {
	return p.localizer
}

// ClassifyTile runs occupancy then, for occupied tiles, the shape classifier.
func (p *Pipeline) ClassifyTile(tile image.Image) (TileClassification, error) {
	tc, err := p.occupancy.Classify(tile)
	if err != nil || !tc.Occupied {
		return tc, err
	}
	tc.Type, err = p.shapes.Classify(tile, tc.Color)
	return tc, err
}

// classifyTiles classifies all 64 tiles concurrently.
func (p *Pipeline) classifyTiles(ctx context.Context, tiles *TileSet) ([64]TileClassification, error) {
	var out [64]TileClassification

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for i := range tiles {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			tc, err := p.ClassifyTile(tiles[i].Image)
			if err != nil {
				return fmt.Errorf("tile %s: %w", SquareName(i), err)
			}
			out[i] = tc
			return nil
		})
	}
	return out, g.Wait()
}

func tilePlacement(cls [64]TileClassification) Placement {
	var p Placement
	for i, tc := range cls {
		p[i] = tc.Symbol()
	}
	return p
}

// classificationsOf turns symbols back into occupancy/color for orientation.
func classificationsOf(p Placement) [64]TileClassification {
	var out [64]TileClassification
	for i, s := range p {
		switch {
		case s == Empty:
		case s >= 'a' && s <= 'z':
			out[i] = TileClassification{Occupied: true, Color: Black, Type: PieceType(s - ('a' - 'A'))}
		default:
			out[i] = TileClassification{Occupied: true, Color: White, Type: PieceType(s)}
		}
	}
	return out
}

func anyPieces(p Placement) bool {
	return p.Count(Empty) < 64
}

// tilesFor slices a photo into tiles, preferring the rectified board and falling back
// to the grid lines found in the raw photo.
func (p *Pipeline) tilesFor(ctx context.Context, img image.Image) (*TileSet, *RectifiedBoard, error) {
	board, lerr := p.localizer.Locate(ctx, img)
	if lerr == nil {
		tiles, err := SliceTiles(board.Image, p.cfg.Localizer.TilePadding)
		if err == nil {
			return tiles, board, nil
		}
		lerr = err
	}

	grid, gerr := DetectGridLines(img)
	if gerr != nil {
		return nil, nil, errors.Join(lerr, gerr)
	}
	tiles, err := SliceSegments(img, grid.Xs, grid.Ys, p.cfg.Localizer.TilePadding)
	if err != nil {
		return nil, nil, errors.Join(lerr, err)
	}
	return tiles, p.gridBoard(img, grid), nil
}

// gridBoard is a debug view of the area inside the legacy grid. It is nil if the
// grid can't be warped.
func (p *Pipeline) gridBoard(img image.Image, grid GridLines) *RectifiedBoard {
	c := grid.Corners()
	out, err := WarpPerspective(img, c, p.cfg.Localizer.OutSize)
	if err != nil {
		p.logger.Debugf("can't warp legacy grid: %v", err)
		return nil
	}
	return &RectifiedBoard{Image: out, Size: p.cfg.Localizer.OutSize, Corners: c, Method: StrategyLegacy}
}

// classifyToCandidate is shared by the geometric and legacy strategies.
func (p *Pipeline) classifyToCandidate(ctx context.Context, name string, tiles *TileSet, req *Request, conf float64) (*Candidate, error) {
	cls, err := p.classifyTiles(ctx, tiles)
	if err != nil {
		return nil, failure(name, ReasonExtraction, err)
	}

	raw := tilePlacement(cls)
	if !anyPieces(raw) {
		return nil, failure(name, ReasonAmbiguous, errors.New("no pieces found"))
	}

	rot := chooseRotation(req.Rotation, cls)
	return &Candidate{
		Placement:  RemapPlacement(raw, rot),
		Confidence: conf,
		Rotation:   rot,
	}, nil
}

// ----

type templateStrategy struct{ p *Pipeline }

func (s *templateStrategy) Name() string { return StrategyTemplate }

func (s *templateStrategy) Recognize(ctx context.Context, req *Request) (*Candidate, error) {
	p := s.p
	es := p.exemplars.Load()

	switch {
	case req.StartingPosition:
	case !req.UseTemplates:
		return nil, failure(s.Name(), ReasonUnavailable, errors.New("template matching not requested"))
	case es == nil:
		return nil, failure(s.Name(), ReasonUnavailable, ErrNoExemplars)
	}

	tiles, board, err := p.tilesFor(ctx, req.Image)
	if err != nil {
		return nil, failure(s.Name(), ReasonDetection, err)
	}

	conf := confTemplateCached
	if req.StartingPosition {
		rot := 0
		if req.Rotation != nil && ValidRotation(*req.Rotation) {
			rot = *req.Rotation
		}
		built, err := BuildExemplars(tiles, p.cfg.Template.PatchSize, rot, p.exemplars.NextVersion())
		if err != nil {
			return nil, failure(s.Name(), ReasonExtraction, err)
		}
		if err := p.exemplars.Swap(built); err != nil {
			p.logger.Warnf("can't persist exemplars: %v", err)
		}
		p.logger.Infof("captured %d exemplars (version %d)", len(built.Exemplars), built.Version)
		es = built
		conf = confTemplateFresh
	}

	raw := EmptyPlacement()
	for i, t := range tiles {
		if isBlankTile(t.Image, p.cfg) {
			continue
		}
		sym, best, second := es.Match(t.Image, p.cfg.Template)
		if sym == Empty {
			p.logger.Debugf("%s: no clear match (%0.2f vs %0.2f)", SquareName(i), best, second)
		}
		raw[i] = sym
	}
	if !anyPieces(raw) {
		return nil, failure(s.Name(), ReasonAmbiguous, errors.New("no tile matched an exemplar"))
	}

	rot := chooseRotation(req.Rotation, classificationsOf(raw))
	return &Candidate{
		Placement:  RemapPlacement(raw, rot),
		Confidence: conf,
		Rotation:   rot,
		Board:      board,
	}, nil
}

// isBlankTile is the cheap edge-density check done before template matching.
func isBlankTile(tile image.Image, cfg PipelineConfig) bool {
	r, err := tileEdgeRatio(tile, cfg.Occupancy)
	if err != nil {
		return true
	}
	return r < cfg.Template.EmptyEdgeRatio
}

type geometricStrategy struct{ p *Pipeline }

func (s *geometricStrategy) Name() string { return StrategyGeometric }

func (s *geometricStrategy) Recognize(ctx context.Context, req *Request) (*Candidate, error) {
	board, err := s.p.localizer.Locate(ctx, req.Image)
	if err != nil {
		return nil, failure(s.Name(), ReasonDetection, err)
	}

	tiles, err := SliceTiles(board.Image, s.p.cfg.Localizer.TilePadding)
	if err != nil {
		return nil, failure(s.Name(), ReasonExtraction, err)
	}

	c, err := s.p.classifyToCandidate(ctx, s.Name(), tiles, req, confGeometric)
	if err != nil {
		return nil, err
	}
	c.Board = board
	return c, nil
}

type legacyStrategy struct{ p *Pipeline }

func (s *legacyStrategy) Name() string { return StrategyLegacy }

func (s *legacyStrategy) Recognize(ctx context.Context, req *Request) (*Candidate, error) {
	grid, err := DetectGridLines(req.Image)
	if err != nil {
		return nil, failure(s.Name(), ReasonDetection, err)
	}

	tiles, err := SliceSegments(req.Image, grid.Xs, grid.Ys, s.p.cfg.Localizer.TilePadding)
	if err != nil {
		return nil, failure(s.Name(), ReasonExtraction, err)
	}

	c, err := s.p.classifyToCandidate(ctx, s.Name(), tiles, req, confLegacy)
	if err != nil {
		return nil, err
	}
	c.Board = s.p.gridBoard(req.Image, grid)
	return c, nil
}

type modelStrategy struct{ p *Pipeline }

func (s *modelStrategy) Name() string { return StrategyModel }

func (s *modelStrategy) Recognize(ctx context.Context, req *Request) (*Candidate, error) {
	if s.p.model == nil {
		return nil, failure(s.Name(), ReasonUnavailable, ErrModelUnavailable)
	}

	placement, err := s.p.model.Predict(ctx, req.Image)
	if err != nil {
		return nil, failure(s.Name(), ReasonUnavailable, err)
	}
	if !Plausible(placement) {
		return nil, failure(s.Name(), ReasonAmbiguous, fmt.Errorf("implausible board %s", placement.String()))
	}

	rot := 0
	if req.Rotation != nil && ValidRotation(*req.Rotation) {
		rot = *req.Rotation
		placement = RemapPlacement(placement, rot)
	}
	return &Candidate{Placement: placement, Confidence: confModel, Rotation: rot}, nil
}
