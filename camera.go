package boardscan

import (
	"context"
	"fmt"
	"image"

	"go.viam.com/rdk/components/camera"
	"go.viam.com/rdk/data"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/pointcloud"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/spatialmath"
)

var BoardCameraModel = family.WithModel("board-camera")

func init() {
	resource.RegisterComponent(camera.API, BoardCameraModel,
		resource.Registration[camera.Camera, *BoardCameraConfig]{
			Constructor: newBoardCamera,
		},
	)
}

// BoardCameraConfig shows the rectified board from Input, optionally labelled
// with the recognized position.
type BoardCameraConfig struct {
	Input     string  `json:"input"`
	Recognize bool    `json:"recognize"`
	OutSize   int     `json:"out-size"`
	TrimRatio float64 `json:"trim-ratio"`
}

func (cfg *BoardCameraConfig) Validate(path string) ([]string, []string, error) {
	if cfg.Input == "" {
		return nil, nil, fmt.Errorf("need an input")
	}
	if cfg.OutSize != 0 && cfg.OutSize < 64 {
		return nil, nil, fmt.Errorf("out-size must be at least 64")
	}
	return []string{cfg.Input}, nil, nil
}

func newBoardCamera(ctx context.Context, deps resource.Dependencies, rawConf resource.Config, logger logging.Logger) (camera.Camera, error) {
	conf, err := resource.NativeConfig[*BoardCameraConfig](rawConf)
	if err != nil {
		return nil, err
	}

	return NewBoardCamera(ctx, deps, rawConf.ResourceName(), conf, logger)
}

func NewBoardCamera(ctx context.Context, deps resource.Dependencies, name resource.Name, conf *BoardCameraConfig, logger logging.Logger) (camera.Camera, error) {
	var err error

	pc := DefaultPipelineConfig()
	if conf.OutSize > 0 {
		pc.Localizer.OutSize = conf.OutSize
	}
	if conf.TrimRatio > 0 {
		pc.Localizer.TrimRatio = conf.TrimRatio
	}

	bc := &BoardCamera{
		name:   name,
		conf:   conf,
		logger: logger,
	}

	bc.pipeline, err = NewPipeline(pc, nil, nil, logger)
	if err != nil {
		return nil, err
	}

	bc.input, err = camera.FromProvider(deps, conf.Input)
	if err != nil {
		return nil, err
	}

	return bc, nil
}

type BoardCamera struct {
	resource.AlwaysRebuild
	resource.TriviallyCloseable

	name   resource.Name
	conf   *BoardCameraConfig
	logger logging.Logger

	input    camera.Camera
	pipeline *Pipeline
}

func (bc *BoardCamera) Image(ctx context.Context, mimeType string, extra map[string]interface{}) ([]byte, camera.ImageMetadata, error) {
	return camera.GetImageFromGetImages(ctx, nil, bc, extra, nil)
}

func (bc *BoardCamera) Images(ctx context.Context, filterSourceNames []string, extra map[string]interface{}) ([]camera.NamedImage, resource.ResponseMetadata, error) {
	ni, rm, err := bc.input.Images(ctx, nil, extra)
	if err != nil {
		return nil, rm, err
	}

	if len(ni) == 0 {
		return nil, rm, fmt.Errorf("no images returned from input camera")
	}

	srcImg, err := ni[0].Image(ctx)
	if err != nil {
		return nil, rm, err
	}

	dst, err := bc.debugImage(ctx, srcImg)
	if err != nil {
		return nil, rm, err
	}

	result, err := camera.NamedImageFromImage(dst, ni[0].SourceName, "", data.Annotations{})
	if err != nil {
		return nil, rm, err
	}
	return []camera.NamedImage{result}, rm, nil
}

// debugImage rectifies the board and draws the grid. With Recognize set the squares
// are labelled with the pieces found; when no board is found the corners can't be
// drawn so the photo is returned as is.
func (bc *BoardCamera) debugImage(ctx context.Context, srcImg image.Image) (image.Image, error) {
	if bc.conf.Recognize {
		res := bc.pipeline.Recognize(ctx, &Request{Image: srcImg})
		if res.Board == nil {
			return srcImg, nil
		}
		p, err := PlacementFromPieces(res.Pieces)
		if err != nil {
			return nil, err
		}
		return BoardDebugImage(res.Board.Image, &p, res.Rotation), nil
	}

	board, err := bc.pipeline.Localizer().Locate(ctx, srcImg)
	if err != nil {
		bc.logger.Debugf("no board: %v", err)
		return srcImg, nil
	}
	return BoardDebugImage(board.Image, nil, 0), nil
}

func (bc *BoardCamera) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	return nil, fmt.Errorf("DoCommand not supported")
}

func (bc *BoardCamera) NextPointCloud(ctx context.Context, extra map[string]interface{}) (pointcloud.PointCloud, error) {
	return nil, fmt.Errorf("NextPointCloud not supported")
}

func (bc *BoardCamera) Properties(ctx context.Context) (camera.Properties, error) {
	return camera.Properties{}, nil
}

func (bc *BoardCamera) Geometries(ctx context.Context, extra map[string]interface{}) ([]spatialmath.Geometry, error) {
	return nil, nil
}

func (bc *BoardCamera) Name() resource.Name {
	return bc.name
}
