package boardscan

import (
	"errors"
	"fmt"
	"image"
	"math"
	"sort"
	"sync/atomic"

	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/stat"
)

// ErrNoExemplars means template matching was asked for before any starting position was seen.
var ErrNoExemplars = errors.New("no exemplars captured")

// Exemplar is the reference patch for one piece symbol.
type Exemplar struct {
	Symbol byte      `json:"symbol"`
	Patch  []float64 `json:"patch"`

	mean, norm float64
}

// ExemplarSet is never modified after it is built; replace it as a whole.
type ExemplarSet struct {
	Version   uint64     `json:"version"`
	PatchSize int        `json:"patch_size"`
	Exemplars []Exemplar `json:"exemplars"`
}

// BuildExemplars takes one patch per symbol from a photo of the starting position.
// Squares are read a8..h1 and the first square for each symbol wins. rotation says
// which tile holds each square, as for RemapIndex.
func BuildExemplars(tiles *TileSet, patchSize, rotation int, version uint64) (*ExemplarSet, error) {
	start := StartingPlacement()
	seen := map[byte]bool{}

	es := &ExemplarSet{Version: version, PatchSize: patchSize}
	for i, s := range start {
		if s == Empty || seen[s] {
			continue
		}
		seen[s] = true
		es.Exemplars = append(es.Exemplars, newExemplar(s, patchOf(tiles[RemapIndex(i, rotation)].Image, patchSize)))
	}

	if len(es.Exemplars) != 12 {
		return nil, fmt.Errorf("expected 12 exemplars, got %d", len(es.Exemplars))
	}
	return es, nil
}

func newExemplar(s byte, patch []float64) Exemplar {
	e := Exemplar{Symbol: s, Patch: patch}
	e.prepare()
	return e
}

func (e *Exemplar) prepare() {
	e.mean, e.norm = centeredNorm(e.Patch)
}

// prepare fills the cached statistics after decoding.
func (es *ExemplarSet) prepare() {
	for i := range es.Exemplars {
		es.Exemplars[i].prepare()
	}
}

// Match returns the best symbol for a tile and the top two scores. The symbol is Empty
// unless the best score clears minScore and beats the runner-up by minMargin.
func (es *ExemplarSet) Match(tile image.Image, cfg TemplateConfig) (byte, float64, float64) {
	q := patchOf(tile, es.PatchSize)
	return es.matchPatch(q, cfg)
}

func (es *ExemplarSet) matchPatch(q []float64, cfg TemplateConfig) (byte, float64, float64) {
	qMean, qNorm := centeredNorm(q)

	type scored struct {
		symbol byte
		score  float64
	}
	scores := make([]scored, 0, len(es.Exemplars))
	for _, e := range es.Exemplars {
		scores = append(scores, scored{e.Symbol, ncc(q, qMean, qNorm, e.Patch, e.mean, e.norm)})
	}
	if len(scores) == 0 {
		return Empty, 0, 0
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	best := scores[0]
	second := 0.0
	if len(scores) > 1 {
		second = scores[1].score
	}

	if !acceptMatch(best.score, second, cfg) {
		return Empty, best.score, second
	}
	return best.symbol, best.score, second
}

// acceptMatch rejects weak matches and near ties between the two best exemplars.
func acceptMatch(best, second float64, cfg TemplateConfig) bool {
	return best > cfg.MinScore && best-second >= cfg.MinMargin
}

// patchOf resizes to a size x size gray patch with Lanczos filtering.
func patchOf(img image.Image, size int) []float64 {
	small := imaging.Grayscale(imaging.Resize(img, size, size, imaging.Lanczos))
	out := make([]float64, size*size)
	for i := range out {
		// grayscale NRGBA: R == G == B
		out[i] = float64(small.Pix[i*4])
	}
	return out
}

func centeredNorm(p []float64) (float64, float64) {
	if len(p) == 0 {
		return 0, 0
	}
	mean := stat.Mean(p, nil)
	ss := 0.0
	for _, v := range p {
		ss += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(ss)
}

// ncc is the zero-mean normalized cross correlation of two equal sized patches.
func ncc(a []float64, aMean, aNorm float64, b []float64, bMean, bNorm float64) float64 {
	if len(a) != len(b) || aNorm == 0 || bNorm == 0 {
		return 0
	}
	sum := 0.0
	for i := range a {
		sum += (a[i] - aMean) * (b[i] - bMean)
	}
	return sum / (aNorm * bNorm)
}

// ExemplarStore owns the current exemplar set. Readers get a consistent snapshot;
// a rebuild swaps in a complete new set.
type ExemplarStore struct {
	current atomic.Pointer[ExemplarSet]
	version atomic.Uint64
	persist ExemplarPersister
}

// ExemplarPersister keeps exemplar sets across restarts.
type ExemplarPersister interface {
	LoadExemplars() (*ExemplarSet, error)
	SaveExemplars(*ExemplarSet) error
	DeleteExemplars() error
}

// NewExemplarStore creates a store, seeding it from p when one was saved before.
func NewExemplarStore(p ExemplarPersister) (*ExemplarStore, error) {
	s := &ExemplarStore{persist: p}
	if p == nil {
		return s, nil
	}
	es, err := p.LoadExemplars()
	if err != nil {
		return nil, err
	}
	if es != nil {
		es.prepare()
		s.current.Store(es)
		s.version.Store(es.Version)
	}
	return s, nil
}

// Load returns the current set or nil.
func (s *ExemplarStore) Load() *ExemplarSet {
	return s.current.Load()
}

// NextVersion hands out increasing version numbers for new sets.
func (s *ExemplarStore) NextVersion() uint64 {
	return s.version.Add(1)
}

// Swap installs es, unless a newer set was installed in the meantime.
func (s *ExemplarStore) Swap(es *ExemplarSet) error {
	for {
		old := s.current.Load()
		if old != nil && old.Version > es.Version {
			return nil
		}
		if s.current.CompareAndSwap(old, es) {
			break
		}
	}
	if s.persist != nil {
		return s.persist.SaveExemplars(es)
	}
	return nil
}

// Reset drops the current set.
func (s *ExemplarStore) Reset() error {
	s.current.Store(nil)
	if s.persist != nil {
		return s.persist.DeleteExemplars()
	}
	return nil
}
