package domain

// minPublicFields is the minimum number of populated public fields required
// before an extraction is considered publishable. Upstream announcements fill
// in incrementally across edits; publishing with fewer fields produces a
// sparse post that nobody can evaluate.
const minPublicFields = 2

// Ready reports whether an extraction carries enough information to publish:
// a private link and at least two public fields. It is a pure predicate,
// re-evaluated on every observation of the same upstream message until it
// first returns true.
func Ready(ext Extraction) bool {
	if ext.PrivateLink == "" {
		return false
	}
	return len(ext.PublicFields) >= minPublicFields
}
