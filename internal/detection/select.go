package detection

// Selection is the winning actionable detection of a frame.
type Selection struct {
	Label      string
	Confidence float64
}

// Select picks at most one actionable label from set.
//
// The set is folded in order, starting from an empty best with confidence 0.
// A detection replaces the best only when its label is in actions and its
// confidence is strictly greater, so the first detection reaching the maximum
// wins ties and unmapped labels never win regardless of confidence. A mapped
// detection at exactly 0 confidence is never selected.
func Select(set Set, actions ActionMap) (Selection, bool) {
	var best Selection
	found := false
	for _, d := range set {
		if !actions.Has(d.Label) {
			continue
		}
		if d.Confidence > best.Confidence {
			best = Selection{Label: d.Label, Confidence: d.Confidence}
			found = true
		}
	}
	return best, found
}
