package boardscan

import (
	"fmt"

	"github.com/corentings/chess/v2"
)

// spareBase numbers the pieces beside the board: spare i is chess.Square(spareBase+i).
const spareBase = 70

const maxResetMoves = 96

var homeRanks = []chess.Rank{chess.Rank1, chess.Rank2, chess.Rank7, chess.Rank8}

// ResetMove moves one piece. Squares off the board are named X0, X1, ...
type ResetMove struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type resetState struct {
	board *chess.Board
	spare []int
}

func newResetState(p Placement) (*resetState, error) {
	b, err := p.Board()
	if err != nil {
		return nil, err
	}

	// Whatever the starting position has that the board lacks is assumed to be beside it.
	s := &resetState{board: b}
	start := StartingPlacement()
	for _, sym := range []byte("KQRBNPkqrbnp") {
		for n := p.Count(sym); n < start.Count(sym); n++ {
			s.spare = append(s.spare, int(symbolToPiece[sym]))
		}
	}
	return s, nil
}

func (s *resetState) applyMove(from, to chess.Square) error {
	m := s.board.SquareMap()

	var pc chess.Piece
	if from < spareBase {
		pc = m[from]
		if pc == chess.NoPiece {
			return fmt.Errorf("nothing on %s", squareToString(from))
		}
		delete(m, from)
	} else {
		idx := int(from) - spareBase
		if idx >= len(s.spare) {
			return fmt.Errorf("no spare %s", squareToString(from))
		}
		pc = chess.Piece(s.spare[idx])
		s.spare = append(s.spare[:idx], s.spare[idx+1:]...)
	}

	if to >= spareBase {
		s.spare = append(s.spare, int(pc))
	} else {
		m[to] = pc
	}
	s.board = chess.NewBoard(m)
	return nil
}

func squareToString(s chess.Square) string {
	if s >= spareBase {
		return fmt.Sprintf("X%d", int(s)-spareBase)
	}
	return s.String()
}

func findForReset(theState *resetState, correct *chess.Board, what chess.Piece) (chess.Square, error) {
	for _, r := range []chess.Rank{
		chess.Rank1, chess.Rank2, chess.Rank7, chess.Rank8,
		chess.Rank3, chess.Rank4, chess.Rank5, chess.Rank6} {

		for f := chess.FileA; f <= chess.FileH; f++ {
			sq := chess.NewSquare(f, r)
			have := theState.board.Piece(sq)
			if have != what {
				continue
			}
			good := correct.Piece(sq)
			if good == have {
				continue
			}
			return sq, nil
		}
	}

	for idx, p := range theState.spare {
		if what == chess.Piece(p) {
			return chess.Square(spareBase + idx), nil
		}
	}

	return chess.A1, fmt.Errorf("cannot find a %v", what)
}

// nextResetMove returns -1, -1 once the starting position is restored.
func nextResetMove(theState *resetState) (chess.Square, chess.Square, error) {
	correct := chess.NewGame().Position().Board()

	// first fill empty home squares
	for _, r := range homeRanks {
		for f := chess.FileA; f <= chess.FileH; f++ {
			sq := chess.NewSquare(f, r)

			have := theState.board.Piece(sq)
			good := correct.Piece(sq)

			if have == chess.NoPiece {
				from, err := findForReset(theState, correct, good)
				if err != nil {
					return chess.A1, chess.A1, err
				}
				return from, sq, nil
			}
		}
	}

	// then clear anything that doesn't belong
	for i := 0; i < 64; i++ {
		sq := chess.Square(i)
		have := theState.board.Piece(sq)
		if have == chess.NoPiece || correct.Piece(sq) == have {
			continue
		}
		return sq, chess.Square(spareBase + len(theState.spare)), nil
	}

	return -1, -1, nil
}

// ResetPlan lists the moves that turn p back into the starting position.
func ResetPlan(p Placement) ([]ResetMove, error) {
	s, err := newResetState(p)
	if err != nil {
		return nil, err
	}

	var moves []ResetMove
	for len(moves) < maxResetMoves {
		from, to, err := nextResetMove(s)
		if err != nil {
			return moves, err
		}
		if from < 0 {
			return moves, nil
		}
		moves = append(moves, ResetMove{From: squareToString(from), To: squareToString(to)})
		if err := s.applyMove(from, to); err != nil {
			return moves, err
		}
	}
	return moves, fmt.Errorf("no reset after %d moves", maxResetMoves)
}
