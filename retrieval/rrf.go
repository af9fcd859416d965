package retrieval

import (
	"sort"

	"github.com/joesaby/gardenqa/store"
)

const rrfK = 60 // RRF constant (standard value from literature)

// RankedPlant is a plant after fusing graph and vector rankings.
type RankedPlant struct {
	Name      string   `json:"name"`
	Score     float64  `json:"score"`
	Methods   []string `json:"methods"`
	GraphRank int      `json:"graph_rank,omitempty"`  // 1-based, 0 = not present
	VecRank   int      `json:"vector_rank,omitempty"` // 1-based, 0 = not present
}

// fuseRRF combines the graph result order with vector similarity order
// using Reciprocal Rank Fusion: score = sum(weight_i / (k + rank_i)).
func fuseRRF(graphNames []string, vecResults []store.Similar, weightGraph, weightVec float64, maxResults int) []RankedPlant {
	fused := make(map[string]*RankedPlant)
	get := func(name string) *RankedPlant {
		e, ok := fused[name]
		if !ok {
			e = &RankedPlant{Name: name}
			fused[name] = e
		}
		return e
	}

	for rank, name := range graphNames {
		e := get(name)
		if e.GraphRank != 0 {
			continue
		}
		e.Score += weightGraph / float64(rrfK+rank+1)
		e.Methods = append(e.Methods, "graph")
		e.GraphRank = rank + 1
	}
	for rank, r := range vecResults {
		e := get(r.Entity.Name)
		if e.VecRank != 0 {
			continue
		}
		e.Score += weightVec / float64(rrfK+rank+1)
		e.Methods = append(e.Methods, "vector")
		e.VecRank = rank + 1
	}

	entries := make([]RankedPlant, 0, len(fused))
	for _, e := range fused {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].Name < entries[j].Name
	})

	if maxResults > 0 && len(entries) > maxResults {
		entries = entries[:maxResults]
	}
	return entries
}
