package dedup

import (
	"image"
	"log/slog"
)

// Candidate is one image offered to duplicate detection.
type Candidate struct {
	ID    string
	Image image.Image
}

// Match records that two candidates look like the same receipt.
type Match struct {
	ID1        string  `json:"file_id_1"`
	ID2        string  `json:"file_id_2"`
	Similarity float64 `json:"similarity_score"`
	Method     string  `json:"method"`
}

// Detector compares batches of images pairwise.
type Detector struct {
	threshold float64
	method    Method
}

// NewDetector creates a Detector. Pairs scoring at or above threshold
// are reported as duplicates.
func NewDetector(threshold float64, method Method) *Detector {
	return &Detector{threshold: threshold, method: method}
}

// FindDuplicates hashes every candidate and compares all pairs. A pair
// whose hashes clear the threshold is rechecked structurally, and the
// higher of the two scores decides. Candidates that fail to hash are
// skipped, not fatal.
func (d *Detector) FindDuplicates(candidates []Candidate) ([]Match, error) {
	type hashed struct {
		Candidate
		hash string
	}

	pool := make([]hashed, 0, len(candidates))
	for _, c := range candidates {
		h, err := Hash(c.Image, d.method)
		if err != nil {
			slog.Warn("skipping unhashable image", "id", c.ID, "error", err)
			continue
		}
		pool = append(pool, hashed{Candidate: c, hash: h})
	}

	var matches []Match
	for i := 0; i < len(pool); i++ {
		for j := i + 1; j < len(pool); j++ {
			similarity := Similarity(pool[i].hash, pool[j].hash)
			if similarity < d.threshold {
				continue
			}

			structural := structuralSimilarity(pool[i].Image, pool[j].Image)
			final := max(similarity, structural)
			if final < d.threshold {
				continue
			}

			matches = append(matches, Match{
				ID1:        pool[i].ID,
				ID2:        pool[j].ID,
				Similarity: final,
				Method:     string(d.method) + "+structural",
			})
		}
	}

	slog.Info("duplicate scan complete", "candidates", len(candidates), "pairs", len(matches))
	return matches, nil
}

// Groups merges pairwise matches into connected components. Only
// components with at least two members are returned, in first-seen
// order.
func Groups(matches []Match) [][]string {
	adjacency := make(map[string][]string)
	var order []string

	add := func(id string) {
		if _, ok := adjacency[id]; !ok {
			adjacency[id] = nil
			order = append(order, id)
		}
	}
	for _, m := range matches {
		add(m.ID1)
		add(m.ID2)
		adjacency[m.ID1] = append(adjacency[m.ID1], m.ID2)
		adjacency[m.ID2] = append(adjacency[m.ID2], m.ID1)
	}

	visited := make(map[string]bool, len(order))
	var groups [][]string

	for _, start := range order {
		if visited[start] {
			continue
		}

		var group []string
		stack := []string{start}
		for len(stack) > 0 {
			node := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if visited[node] {
				continue
			}
			visited[node] = true
			group = append(group, node)
			stack = append(stack, adjacency[node]...)
		}

		if len(group) > 1 {
			groups = append(groups, group)
		}
	}

	return groups
}
