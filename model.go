package boardscan

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/disintegration/imaging"
	onnxrt "github.com/yalue/onnxruntime_go"
)

// ErrModelUnavailable means no pretrained model is configured or it failed to load.
var ErrModelUnavailable = errors.New("model unavailable")

// PositionModel reads a whole photo and returns a placement in square order.
type PositionModel interface {
	Predict(ctx context.Context, img image.Image) (Placement, error)
	Close() error
}

// modelClasses is the output order of the tile classifier.
var modelClasses = []byte{
	'b', 'k', 'n', 'p', 'q', 'r', // bb bk bn bp bq br
	Empty,
	'B', 'K', 'N', 'P', 'Q', 'R', // wb wk wn wp wq wr
}

var (
	imagenetMean = [3]float32{0.485, 0.456, 0.406}
	imagenetStd  = [3]float32{0.229, 0.224, 0.225}
)

type ModelConfig struct {
	Path        string
	LibraryPath string
	InputName   string
	OutputName  string
	InputSize   int
}

func (c *ModelConfig) defaults() {
	if c.InputName == "" {
		c.InputName = "input"
	}
	if c.OutputName == "" {
		c.OutputName = "output"
	}
	if c.InputSize <= 0 {
		c.InputSize = 64
	}
}

// ONNXPositionModel splits the photo into an 8x8 grid and classifies every cell in one batch.
type ONNXPositionModel struct {
	cfg ModelConfig

	mu      sync.Mutex
	session *onnxrt.DynamicAdvancedSession
}

var onnxInitOnce sync.Once
var onnxInitErr error

func initONNX(libPath string) error {
	onnxInitOnce.Do(func() {
		if libPath != "" {
			onnxrt.SetSharedLibraryPath(libPath)
		}
		if !onnxrt.IsInitialized() {
			onnxInitErr = onnxrt.InitializeEnvironment()
		}
	})
	return onnxInitErr
}

func NewONNXPositionModel(cfg ModelConfig) (*ONNXPositionModel, error) {
	cfg.defaults()
	if cfg.Path == "" {
		return nil, ErrModelUnavailable
	}
	if _, err := os.Stat(cfg.Path); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}
	if err := initONNX(cfg.LibraryPath); err != nil {
		return nil, fmt.Errorf("%w: init onnx: %w", ErrModelUnavailable, err)
	}

	sess, err := onnxrt.NewDynamicAdvancedSession(cfg.Path,
		[]string{cfg.InputName}, []string{cfg.OutputName}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: session: %w", ErrModelUnavailable, err)
	}

	return &ONNXPositionModel{cfg: cfg, session: sess}, nil
}

func (m *ONNXPositionModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	err := m.session.Destroy()
	m.session = nil
	return err
}

func (m *ONNXPositionModel) Predict(ctx context.Context, img image.Image) (Placement, error) {
	if err := ctx.Err(); err != nil {
		return Placement{}, err
	}

	s := m.cfg.InputSize
	data := cellTensor(img, s)

	input, err := onnxrt.NewTensor(onnxrt.NewShape(64, 3, int64(s), int64(s)), data)
	if err != nil {
		return Placement{}, fmt.Errorf("tensor: %w", err)
	}
	defer input.Destroy()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return Placement{}, ErrModelUnavailable
	}

	outputs := []onnxrt.Value{nil}
	if err := m.session.Run([]onnxrt.Value{input}, outputs); err != nil {
		return Placement{}, fmt.Errorf("run: %w", err)
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				o.Destroy()
			}
		}
	}()

	t, ok := outputs[0].(*onnxrt.Tensor[float32])
	if !ok {
		return Placement{}, fmt.Errorf("unexpected output type %T", outputs[0])
	}
	return decodeLogits(t.GetData())
}

// cellTensor builds the NCHW batch of 64 cells, normalized with ImageNet statistics.
func cellTensor(img image.Image, size int) []float32 {
	b := img.Bounds()
	plane := size * size
	data := make([]float32, 64*3*plane)

	for i := 0; i < 64; i++ {
		row, col := i/8, i%8
		cell := image.Rect(
			col*b.Dx()/8, row*b.Dy()/8,
			(col+1)*b.Dx()/8, (row+1)*b.Dy()/8,
		)
		small := imaging.Resize(cropImage(img, cell), size, size, imaging.Lanczos)

		base := i * 3 * plane
		for p := 0; p < plane; p++ {
			for ch := 0; ch < 3; ch++ {
				v := float32(small.Pix[p*4+ch]) / 255
				data[base+ch*plane+p] = (v - imagenetMean[ch]) / imagenetStd[ch]
			}
		}
	}
	return data
}

// decodeLogits takes the arg-max class of each of the 64 rows.
func decodeLogits(logits []float32) (Placement, error) {
	n := len(modelClasses)
	if len(logits) != 64*n {
		return Placement{}, fmt.Errorf("expected %d logits, got %d", 64*n, len(logits))
	}

	var p Placement
	for i := range p {
		row := logits[i*n : (i+1)*n]
		best := 0
		for c := 1; c < n; c++ {
			if row[c] > row[best] {
				best = c
			}
		}
		p[i] = modelClasses[best]
	}
	return p, nil
}
