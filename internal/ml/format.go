package ml

import "fast-interactions/internal/ranking"

// Interaction is one measured feature pair.
type Interaction struct {
	Features [2]int  `json:"features"`
	Strength float64 `json:"strength"`
}

// formatResults puts ranked pairs back in candidate orientation, keeping the
// ranker's order.
func formatResults(ranked []ranking.Ranked) []Interaction {
	out := make([]Interaction, len(ranked))
	for i, r := range ranked {
		out[i] = Interaction{
			Features: [2]int{r.Pair[1], r.Pair[0]},
			Strength: r.Strength,
		}
	}
	return out
}
