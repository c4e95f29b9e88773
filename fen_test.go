package boardscan

import (
	"testing"

	"go.viam.com/test"
)

func TestEncodeFENEmpty(t *testing.T) {
	fen, err := EncodeFEN(EmptyPlacement())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, fen, test.ShouldEqual, "8/8/8/8/8/8/8/8 w KQkq - 0 1")
}

func TestEncodeFENStart(t *testing.T) {
	fen, err := EncodeFEN(StartingPlacement())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, fen, test.ShouldEqual, StartingFEN)
	test.That(t, fen, test.ShouldStartWith, "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR")

	again, err := EncodeFEN(StartingPlacement())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, again, test.ShouldEqual, fen)
}

func TestEncodeFENBadSymbol(t *testing.T) {
	p := EmptyPlacement()
	p[10] = 'x'
	_, err := EncodeFEN(p)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "c7")
}

func TestParseFENRoundTrip(t *testing.T) {
	p, err := ParseFEN(StartingFEN)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p, test.ShouldEqual, StartingPlacement())

	p[mustSquare(t, "e2")] = Empty
	p[mustSquare(t, "e4")] = 'P'
	fen, err := EncodeFEN(p)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, fen, test.ShouldStartWith, "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR")

	back, err := ParseFEN(fen)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back, test.ShouldEqual, p)

	_, err = ParseFEN("not a fen")
	test.That(t, err, test.ShouldNotBeNil)
}

func mustSquare(t *testing.T, name string) int {
	t.Helper()
	i, err := SquareIndex(name)
	test.That(t, err, test.ShouldBeNil)
	return i
}

func TestSquareNames(t *testing.T) {
	test.That(t, SquareName(0), test.ShouldEqual, "a8")
	test.That(t, SquareName(7), test.ShouldEqual, "h8")
	test.That(t, SquareName(56), test.ShouldEqual, "a1")
	test.That(t, SquareName(63), test.ShouldEqual, "h1")

	for i := 0; i < 64; i++ {
		idx, err := SquareIndex(SquareName(i))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, idx, test.ShouldEqual, i)
	}

	_, err := SquareIndex("i9")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestPlacementFromPieces(t *testing.T) {
	p, err := PlacementFromPieces([]PlacedPiece{
		{Position: "e1", Piece: "K"},
		{Position: "E8", Piece: "k"},
		{Position: "d4", Piece: "Q"},
	})
	test.That(t, err, test.ShouldBeNil)
	fen, err := EncodeFEN(p)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, fen, test.ShouldEqual, "4k3/8/8/8/3Q4/8/8/4K3 w KQkq - 0 1")
	test.That(t, len(p.Pieces()), test.ShouldEqual, 3)

	_, err = PlacementFromPieces([]PlacedPiece{{Position: "z1", Piece: "K"}})
	test.That(t, err, test.ShouldNotBeNil)

	_, err = PlacementFromPieces([]PlacedPiece{{Position: "a1", Piece: "X"}})
	test.That(t, err, test.ShouldNotBeNil)

	_, err = PlacementFromPieces([]PlacedPiece{{Position: "a1", Piece: "K"}, {Position: "a1", Piece: "Q"}})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestPlausible(t *testing.T) {
	test.That(t, Plausible(StartingPlacement()), test.ShouldBeTrue)
	test.That(t, Plausible(EmptyPlacement()), test.ShouldBeFalse)

	p := StartingPlacement()
	p[mustSquare(t, "d1")] = 'K'
	test.That(t, Plausible(p), test.ShouldBeFalse)
}
