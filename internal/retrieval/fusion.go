package retrieval

// Fuse merges the per-collection result pools and picks the single best
// candidate. This is a flat merge with no per-collection weighting: an
// explicit max-by-score reduction where a candidate only displaces the
// current best on a strictly greater score, so ties keep the earliest
// candidate in pool order. Returns nil when all pools are empty.
func Fuse(pools ...[]ScoredRecord) *ScoredRecord {
	var best *ScoredRecord
	for _, pool := range pools {
		for i := range pool {
			if best == nil || pool[i].Score > best.Score {
				best = &pool[i]
			}
		}
	}
	return best
}
