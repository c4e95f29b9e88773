package boardscan

// ResolveOrientation guesses which way the board faces from where the white and black
// pieces sit. It compares the two rows nearest the viewer against the two farthest.
// ok is false when the counts don't point either way; callers then use 0.
func ResolveOrientation(cls [64]TileClassification) (rotation int, ok bool) {
	var topWhite, topBlack, bottomWhite, bottomBlack int

	for i, tc := range cls {
		if !tc.Occupied {
			continue
		}
		row := i / 8
		switch {
		case row <= 1 && tc.Color == White:
			topWhite++
		case row <= 1 && tc.Color == Black:
			topBlack++
		case row >= 6 && tc.Color == White:
			bottomWhite++
		case row >= 6 && tc.Color == Black:
			bottomBlack++
		}
	}

	switch {
	case bottomWhite > topWhite && bottomBlack < topBlack:
		return 0, true
	case topWhite > bottomWhite && topBlack < bottomBlack:
		return 180, true
	}
	return 0, false
}

// chooseRotation applies an explicit override, otherwise the resolved orientation.
func chooseRotation(override *int, cls [64]TileClassification) int {
	if override != nil && ValidRotation(*override) {
		return *override
	}
	r, _ := ResolveOrientation(cls)
	return r
}
