package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"boardscan"

	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/rimage"
)

var errUsage = errors.New("missing input image")

func main() {
	err := realMain()
	if errors.Is(err, errUsage) {
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadPipelineConfig reads threshold overrides from a json file shaped like the
// service attributes, e.g. {"occupancy": {"min-score": 5}}. An empty path gives the defaults.
func loadPipelineConfig(path string) (boardscan.PipelineConfig, error) {
	pc := boardscan.DefaultPipelineConfig()
	if path == "" {
		return pc, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return pc, err
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return pc, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := pc.ApplyOverrides(raw); err != nil {
		return pc, fmt.Errorf("%s: %w", path, err)
	}
	return pc, nil
}

func realMain() error {
	ctx := context.Background()
	logger := logging.NewLogger("boardscan")

	rotation := flag.Int("rotation", -1, "force rotation (0, 90, 180, 270)")
	templates := flag.Bool("templates", false, "use template matching")
	start := flag.Bool("start", false, "photo shows the starting position, capture exemplars from it")
	extractDir := flag.String("extract", "", "write the extracted squares to this directory")
	modelPath := flag.String("model", "", "onnx tile classifier")
	onnxLib := flag.String("onnx-library", "", "path to the onnxruntime shared library")
	exemplarDir := flag.String("exemplars", "", "directory to persist exemplars in")
	debug := flag.Bool("debug", false, "debug logging")
	configFile := flag.String("config", "", "json file with threshold overrides")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <input.jpg> [overlay.jpg]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  If overlay is not specified, it will be <input>_output.jpg\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		return errUsage
	}
	if *debug {
		logger.SetLevel(logging.DEBUG)
	}

	inputFile := flag.Arg(0)

	var outputFile string
	if flag.NArg() >= 2 {
		outputFile = flag.Arg(1)
	} else {
		ext := filepath.Ext(inputFile)
		base := strings.TrimSuffix(inputFile, ext)
		outputFile = base + "_output" + ext
	}

	pc, err := loadPipelineConfig(*configFile)
	if err != nil {
		return err
	}

	input, err := rimage.ReadImageFromFile(inputFile)
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}
	logger.Infof("image size: %dx%d", input.Bounds().Dx(), input.Bounds().Dy())

	var persist boardscan.ExemplarPersister
	if *exemplarDir != "" {
		db, err := boardscan.OpenBadgerExemplars(*exemplarDir)
		if err != nil {
			return err
		}
		defer db.Close()
		persist = db
	}
	store, err := boardscan.NewExemplarStore(persist)
	if err != nil {
		return err
	}

	var model boardscan.PositionModel
	if *modelPath != "" {
		m, err := boardscan.NewONNXPositionModel(boardscan.ModelConfig{Path: *modelPath, LibraryPath: *onnxLib})
		if err != nil {
			logger.Warnf("model disabled: %v", err)
		} else {
			defer m.Close()
			model = m
		}
	}

	p, err := boardscan.NewPipeline(pc, store, model, logger)
	if err != nil {
		return err
	}

	if *extractDir != "" {
		ex, err := p.ExtractTiles(ctx, input)
		if err != nil {
			return fmt.Errorf("extracting squares: %w", err)
		}
		if err := ex.Save(*extractDir); err != nil {
			return err
		}
		logger.Infof("wrote %d squares to %s", len(ex.Tiles), *extractDir)
	}

	req := &boardscan.Request{
		Image:            input,
		UseTemplates:     *templates,
		StartingPosition: *start,
	}
	if *rotation >= 0 {
		if !boardscan.ValidRotation(*rotation) {
			return fmt.Errorf("rotation must be 0, 90, 180 or 270, got %d", *rotation)
		}
		req.Rotation = rotation
	}

	res := p.Recognize(ctx, req)
	for _, f := range res.Failures {
		logger.Debugf("failure: %v", f)
	}

	fmt.Printf("%s\n", res.FEN)
	fmt.Printf("strategy: %s confidence: %0.2f rotation: %d\n", res.Strategy, res.Confidence, res.Rotation)

	if res.Board == nil {
		logger.Infof("no rectified board, not writing %s", outputFile)
		return nil
	}

	c := res.Board.Corners
	fmt.Printf("Found corners (%s):\n", res.Board.Method)
	fmt.Printf("  Top-left:     (%0.1f, %0.1f)\n", c[boardscan.TopLeft].X, c[boardscan.TopLeft].Y)
	fmt.Printf("  Top-right:    (%0.1f, %0.1f)\n", c[boardscan.TopRight].X, c[boardscan.TopRight].Y)
	fmt.Printf("  Bottom-right: (%0.1f, %0.1f)\n", c[boardscan.BottomRight].X, c[boardscan.BottomRight].Y)
	fmt.Printf("  Bottom-left:  (%0.1f, %0.1f)\n", c[boardscan.BottomLeft].X, c[boardscan.BottomLeft].Y)

	placement, err := boardscan.PlacementFromPieces(res.Pieces)
	if err != nil {
		return err
	}
	overlay := boardscan.BoardDebugImage(res.Board.Image, &placement, res.Rotation)
	if err := rimage.WriteImageToFile(outputFile, overlay); err != nil {
		return fmt.Errorf("writing overlay: %w", err)
	}

	cornersFile := strings.TrimSuffix(outputFile, filepath.Ext(outputFile)) + "_corners" + filepath.Ext(outputFile)
	if err := rimage.WriteImageToFile(cornersFile, boardscan.OverlayCorners(input, c)); err != nil {
		return fmt.Errorf("writing corners: %w", err)
	}

	logger.Infof("saved %s and %s", outputFile, cornersFile)
	return nil
}
