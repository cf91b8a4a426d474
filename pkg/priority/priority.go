package priority

import (
	"sort"

	"github.com/cuemby/catalogsync/pkg/types"
)

// Weights configures PriorityScorer.
type Weights struct {
	InStockWeight      int
	HighStockWeight    int
	HighStockThreshold int
	LowStockWeight     int
	LowStockThreshold  int
	HighValueWeight    int
	HighValueThreshold float64
}

// DefaultWeights returns the documented default weights.
func DefaultWeights() Weights {
	return Weights{
		InStockWeight:      100,
		HighStockWeight:    20,
		HighStockThreshold: 50,
		LowStockWeight:     10,
		LowStockThreshold:  5,
		HighValueWeight:    15,
		HighValueThreshold: 50,
	}
}

// Reason names why a SKU received its score, surfaced for logging and
// diagnostics.
type Reason string

const (
	ReasonInvalidPrice Reason = "invalid-price"
	ReasonOutOfStock   Reason = "out-of-stock"
	ReasonScored       Reason = "scored"
)

// Scored pairs a SkuView with its computed score and reason.
type Scored struct {
	types.SkuView
	Score  int
	Reason Reason
}

// Score computes the priority score for one SkuView. It is pure and
// deterministic: the same view and weights always produce the same
// score.
func Score(view types.SkuView, w Weights) Scored {
	price, validPrice := types.ValidPrice(view.Price)
	if !validPrice {
		return Scored{SkuView: view, Score: 0, Reason: ReasonInvalidPrice}
	}
	if view.Quantity == 0 {
		return Scored{SkuView: view, Score: 0, Reason: ReasonOutOfStock}
	}

	score := w.InStockWeight
	if view.Quantity >= w.HighStockThreshold {
		score += w.HighStockWeight
	}
	if view.Quantity <= w.LowStockThreshold {
		score += w.LowStockWeight
	}
	if price >= w.HighValueThreshold {
		score += w.HighValueWeight
	}
	return Scored{SkuView: view, Score: score, Reason: ReasonScored}
}

// ScoreAll scores every view in views, preserving input order.
func ScoreAll(views []types.SkuView, w Weights) []Scored {
	out := make([]Scored, len(views))
	for i, v := range views {
		out[i] = Score(v, w)
	}
	return out
}

// TopN returns the highest-scored limit entries of scored, after
// filtering out score-0 entries. Ties are broken by insertion order:
// the sort is stable and compares only on score.
func TopN(scored []Scored, limit int) []Scored {
	filtered := make([]Scored, 0, len(scored))
	for _, s := range scored {
		if s.Score > 0 {
			filtered = append(filtered, s)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Score > filtered[j].Score
	})
	if limit >= 0 && limit < len(filtered) {
		filtered = filtered[:limit]
	}
	return filtered
}
