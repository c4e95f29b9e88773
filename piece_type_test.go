package boardscan

import (
	"testing"

	"go.viam.com/test"
)

func TestShapeDecide(t *testing.T) {
	sc := NewShapeClassifier(DefaultShapeConfig())

	for _, tc := range []struct {
		name string
		f    ShapeFeatures
		want PieceType
	}{
		{"rook", ShapeFeatures{Aspect: 0.95, Extent: 0.6, Solidity: 0.8}, Rook},
		{"knight", ShapeFeatures{Aspect: 1.5, Extent: 0.5, Solidity: 0.5}, Knight},
		{"bishop", ShapeFeatures{Aspect: 0.95, Extent: 0.5, Solidity: 0.7}, Bishop},
		{"queen", ShapeFeatures{Aspect: 1.5, Extent: 0.6, Solidity: 0.7, MassRatio: 0.8}, Queen},
		{"king", ShapeFeatures{Aspect: 1.5, Extent: 0.6, Solidity: 0.8, MassRatio: 0.8}, King},
		{"pawn", ShapeFeatures{Aspect: 1.5, Extent: 0.6, Solidity: 0.9, MassRatio: 0.3}, Pawn},
		{"wide blob", ShapeFeatures{Aspect: 0.7, Extent: 0.9, Solidity: 0.9}, Pawn},
	} {
		t.Run(tc.name, func(t *testing.T) {
			test.That(t, sc.Decide(tc.f), test.ShouldEqual, tc.want)
		})
	}
}

func TestShapeClassifyFallsBackToPawn(t *testing.T) {
	sc := NewShapeClassifier(DefaultShapeConfig())

	pt, err := sc.Classify(uniformTile(128), White)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pt, test.ShouldEqual, Pawn)

	f, ok, err := sc.Features(discTile(200, 30, 15), Black)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, f.Area, test.ShouldBeGreaterThan, 0.0)
	test.That(t, f.Solidity, test.ShouldBeGreaterThan, 0.0)
}
