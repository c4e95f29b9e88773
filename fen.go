package boardscan

import (
	"fmt"
	"strings"

	"github.com/corentings/chess/v2"
)

// Empty marks an unoccupied square in a Placement.
const Empty = '.'

// fenSuffix is fixed: the pipeline only sees piece placement, never game state.
const fenSuffix = " w KQkq - 0 1"

// StartingFEN is the standard opening position and the result of last resort.
const StartingFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR" + fenSuffix

// Placement holds one symbol per square in tile order: index 0 is a8, 63 is h1.
type Placement [64]byte

// PlacedPiece names one occupied square.
type PlacedPiece struct {
	Position string `json:"position" mapstructure:"position"`
	Piece    string `json:"piece" mapstructure:"piece"`
}

var symbolToPiece = map[byte]chess.Piece{
	'K': chess.WhiteKing, 'Q': chess.WhiteQueen, 'R': chess.WhiteRook,
	'B': chess.WhiteBishop, 'N': chess.WhiteKnight, 'P': chess.WhitePawn,
	'k': chess.BlackKing, 'q': chess.BlackQueen, 'r': chess.BlackRook,
	'b': chess.BlackBishop, 'n': chess.BlackKnight, 'p': chess.BlackPawn,
}

var pieceToSymbol = func() map[chess.Piece]byte {
	m := map[chess.Piece]byte{}
	for s, p := range symbolToPiece {
		m[p] = s
	}
	return m
}()

// EmptyPlacement has no pieces.
func EmptyPlacement() Placement {
	var p Placement
	for i := range p {
		p[i] = Empty
	}
	return p
}

// StartingPlacement is the standard opening layout, a8 first.
func StartingPlacement() Placement {
	var p Placement
	copy(p[:], "rnbqkbnr"+"pppppppp"+strings.Repeat(string(Empty), 32)+"PPPPPPPP"+"RNBQKBNR")
	return p
}

func indexToSquare(i int) chess.Square {
	return chess.NewSquare(chess.File(i%8), chess.Rank(7-i/8))
}

func squareToIndex(sq chess.Square) int {
	return (7-int(sq.Rank()))*8 + int(sq.File())
}

// SquareName is the algebraic name of tile index i, "a8" through "h1".
func SquareName(i int) string {
	return indexToSquare(i).String()
}

// SquareIndex parses an algebraic square name into a tile index.
func SquareIndex(name string) (int, error) {
	if len(name) != 2 || name[0] < 'a' || name[0] > 'h' || name[1] < '1' || name[1] > '8' {
		return 0, fmt.Errorf("bad square %q", name)
	}
	return int('8'-name[1])*8 + int(name[0]-'a'), nil
}

// Board converts the placement into a chess board.
func (p Placement) Board() (*chess.Board, error) {
	m := map[chess.Square]chess.Piece{}
	for i, s := range p {
		if s == Empty {
			continue
		}
		pc, ok := symbolToPiece[s]
		if !ok {
			return nil, fmt.Errorf("bad symbol %q at %s", s, SquareName(i))
		}
		m[indexToSquare(i)] = pc
	}
	return chess.NewBoard(m), nil
}

func (p Placement) String() string {
	return string(p[:])
}

// Count returns how many squares hold symbol s.
func (p Placement) Count(s byte) int {
	n := 0
	for _, x := range p {
		if x == s {
			n++
		}
	}
	return n
}

// Pieces lists the occupied squares in tile order.
func (p Placement) Pieces() []PlacedPiece {
	var out []PlacedPiece
	for i, s := range p {
		if s == Empty {
			continue
		}
		out = append(out, PlacedPiece{Position: SquareName(i), Piece: string(s)})
	}
	return out
}

// EncodeFEN renders the board field followed by the fixed game-state suffix.
func EncodeFEN(p Placement) (string, error) {
	b, err := p.Board()
	if err != nil {
		return "", err
	}
	return b.String() + fenSuffix, nil
}

// ParseFEN reads the placement out of a full FEN string.
func ParseFEN(fen string) (Placement, error) {
	opt, err := chess.FEN(fen)
	if err != nil {
		return Placement{}, fmt.Errorf("bad fen %q: %w", fen, err)
	}

	p := EmptyPlacement()
	for sq, pc := range chess.NewGame(opt).Position().Board().SquareMap() {
		s, ok := pieceToSymbol[pc]
		if !ok {
			continue
		}
		p[squareToIndex(sq)] = s
	}
	return p, nil
}

// PlacementFromPieces builds a placement from manually listed pieces.
func PlacementFromPieces(pieces []PlacedPiece) (Placement, error) {
	p := EmptyPlacement()
	for _, pp := range pieces {
		idx, err := SquareIndex(strings.ToLower(pp.Position))
		if err != nil {
			return p, err
		}
		if len(pp.Piece) != 1 {
			return p, fmt.Errorf("bad piece %q at %s", pp.Piece, pp.Position)
		}
		if _, ok := symbolToPiece[pp.Piece[0]]; !ok {
			return p, fmt.Errorf("bad piece %q at %s", pp.Piece, pp.Position)
		}
		if p[idx] != Empty {
			return p, fmt.Errorf("%s listed twice", pp.Position)
		}
		p[idx] = pp.Piece[0]
	}
	return p, nil
}

// Plausible reports whether the placement parses as a position with one king per side.
func Plausible(p Placement) bool {
	if p.Count('K') != 1 || p.Count('k') != 1 {
		return false
	}
	fen, err := EncodeFEN(p)
	if err != nil {
		return false
	}
	_, err = ParseFEN(fen)
	return err == nil
}
