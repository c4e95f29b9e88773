package boardscan

import (
	"context"
	"errors"
	"fmt"
	"image"

	"go.uber.org/multierr"

	"go.viam.com/rdk/logging"
	"go.viam.com/utils/trace"
)

// FailureReason classifies why a strategy produced nothing.
type FailureReason string

const (
	ReasonDetection   FailureReason = "detection"
	ReasonExtraction  FailureReason = "extraction"
	ReasonAmbiguous   FailureReason = "ambiguous"
	ReasonUnavailable FailureReason = "unavailable"
)

// StrategyError is the typed failure every strategy returns.
type StrategyError struct {
	Strategy string
	Reason   FailureReason
	Err      error
}

func (e *StrategyError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Strategy, e.Reason, e.Err)
}

func (e *StrategyError) Unwrap() error {
	return e.Err
}

func failure(strategy string, reason FailureReason, err error) *StrategyError {
	return &StrategyError{Strategy: strategy, Reason: reason, Err: err}
}

// Request is one photo to recognize.
type Request struct {
	Image            image.Image
	Rotation         *int // nil means infer
	UseTemplates     bool
	StartingPosition bool
}

// Candidate is a strategy's answer. Placement is in square order, a8 first.
type Candidate struct {
	Placement  Placement
	Confidence float64
	Rotation   int
	Board      *RectifiedBoard
}

// Strategy is one way of reading a board out of a photo.
type Strategy interface {
	Name() string
	Recognize(ctx context.Context, req *Request) (*Candidate, error)
}

// Result is the final answer for a photo.
type Result struct {
	FEN        string
	Confidence float64
	Strategy   string
	Rotation   int
	Pieces     []PlacedPiece
	Board      *RectifiedBoard
	Failures   []error
}

const fallbackStrategy = "fallback"

// Recognizer runs strategies in priority order and keeps the first answer.
type Recognizer struct {
	strategies []Strategy
	logger     logging.Logger
}

func NewRecognizer(logger logging.Logger, strategies ...Strategy) *Recognizer {
	return &Recognizer{strategies: strategies, logger: logger}
}

// Recognize never fails: when no strategy answers it returns the starting position
// with zero confidence, so callers must look at Confidence.
func (r *Recognizer) Recognize(ctx context.Context, req *Request) *Result {
	ctx, span := trace.StartSpan(ctx, "boardscan::Recognize")
	defer span.End()

	var errs error
	for _, s := range r.strategies {
		if err := ctx.Err(); err != nil {
			errs = multierr.Append(errs, err)
			break
		}

		c, err := r.attempt(ctx, s, req)
		if err != nil {
			r.logger.Infof("strategy %s failed: %v", s.Name(), err)
			errs = multierr.Append(errs, err)
			continue
		}

		fen, err := EncodeFEN(c.Placement)
		if err != nil {
			errs = multierr.Append(errs, failure(s.Name(), ReasonAmbiguous, err))
			continue
		}

		r.logger.Infof("strategy %s: %s (%0.2f)", s.Name(), fen, c.Confidence)
		return &Result{
			FEN:        fen,
			Confidence: c.Confidence,
			Strategy:   s.Name(),
			Rotation:   c.Rotation,
			Pieces:     c.Placement.Pieces(),
			Board:      c.Board,
			Failures:   multierr.Errors(errs),
		}
	}

	r.logger.Warnf("no strategy recognized the board, returning the starting position: %v", errs)
	return &Result{
		FEN:        StartingFEN,
		Confidence: 0,
		Strategy:   fallbackStrategy,
		Pieces:     StartingPlacement().Pieces(),
		Failures:   multierr.Errors(errs),
	}
}

func (r *Recognizer) attempt(ctx context.Context, s Strategy, req *Request) (c *Candidate, err error) {
	ctx, span := trace.StartSpan(ctx, "boardscan::"+s.Name())
	defer span.End()

	defer func() {
		if p := recover(); p != nil {
			c, err = nil, failure(s.Name(), ReasonDetection, fmt.Errorf("panic: %v", p))
		}
	}()

	c, err = s.Recognize(ctx, req)
	if err != nil {
		var se *StrategyError
		if !errors.As(err, &se) {
			err = failure(s.Name(), ReasonDetection, err)
		}
		return nil, err
	}
	if c == nil {
		return nil, failure(s.Name(), ReasonAmbiguous, errors.New("no candidate"))
	}
	return c, nil
}
