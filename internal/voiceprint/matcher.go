package voiceprint

import "math"

// Matcher looks up the best-matching stored voiceprint for a fresh
// embedding. Adapted from voiceprint.Matcher.
type Matcher struct {
	store *Store
}

// NewMatcher constructs a matcher over store.
func NewMatcher(store *Store) *Matcher {
	return &Matcher{store: store}
}

// FindBestMatch returns the highest-similarity voiceprint at or above
// ThresholdMin, or nil if none qualifies.
func (m *Matcher) FindBestMatch(embedding []float32) *MatchResult {
	if m.store == nil {
		return nil
	}

	var best *MatchResult
	var bestSim float32
	for _, p := range m.store.All() {
		sim := CosineSimilarity(embedding, p.Embedding)
		if sim > bestSim && sim >= ThresholdMin {
			bestSim = sim
			pCopy := p
			best = &MatchResult{Print: &pCopy, Similarity: sim, Confidence: Confidence(sim)}
		}
	}
	return best
}

// MatchWithAutoUpdate looks up a match and, when found with high
// confidence, folds the fresh embedding into the stored one so the
// voiceprint tracks gradual drift in the speaker's voice.
func (m *Matcher) MatchWithAutoUpdate(embedding []float32) *MatchResult {
	match := m.FindBestMatch(embedding)
	if match != nil && match.Confidence == "high" {
		_ = m.store.UpdateEmbedding(match.Print.ID, embedding)
	}
	return match
}

// CosineSimilarity returns the cosine similarity of a and b in
// [-1, 1], or 0 if either is empty or their lengths differ.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
