package retrieval

import (
	"sort"

	"github.com/sellerpulse/backend/internal/storage/models"
)

// DefaultRerankLimit is the bounded, prioritized evidence list handed
// to the prompt builder.
const DefaultRerankLimit = 12

// Rerank deduplicates by source id (keeping the higher-scored
// candidate), orders by score descending with a lexicographic id
// tie-break, and truncates to n. It is pure: the same input list always
// yields the same output list.
func Rerank(candidates []models.RetrievedSource, n int) []models.RetrievedSource {
	if n <= 0 {
		n = DefaultRerankLimit
	}

	best := make(map[string]models.RetrievedSource, len(candidates))
	for _, c := range candidates {
		if existing, ok := best[c.ID]; !ok || c.Score > existing.Score {
			best[c.ID] = c
		}
	}

	deduped := make([]models.RetrievedSource, 0, len(best))
	for _, c := range best {
		deduped = append(deduped, c)
	}

	sort.Slice(deduped, func(i, j int) bool {
		if deduped[i].Score != deduped[j].Score {
			return deduped[i].Score > deduped[j].Score
		}
		return deduped[i].ID < deduped[j].ID
	})

	if len(deduped) > n {
		deduped = deduped[:n]
	}

	return deduped
}
