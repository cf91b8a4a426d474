package priority

import (
	"testing"

	"github.com/cuemby/catalogsync/pkg/types"
	"github.com/stretchr/testify/require"
)

func price(v float64) *float64 { return &v }

func TestScoreInvalidPrice(t *testing.T) {
	s := Score(types.SkuView{SKU: "a", Quantity: 10, Price: nil}, DefaultWeights())
	require.Equal(t, 0, s.Score)
	require.Equal(t, ReasonInvalidPrice, s.Reason)
}

func TestScoreOutOfStock(t *testing.T) {
	s := Score(types.SkuView{SKU: "a", Quantity: 0, Price: price(10)}, DefaultWeights())
	require.Equal(t, 0, s.Score)
	require.Equal(t, ReasonOutOfStock, s.Reason)
}

func TestScoreBaseline(t *testing.T) {
	s := Score(types.SkuView{SKU: "a", Quantity: 20, Price: price(10)}, DefaultWeights())
	require.Equal(t, 100, s.Score)
	require.Equal(t, ReasonScored, s.Reason)
}

func TestScoreHighStockBonus(t *testing.T) {
	s := Score(types.SkuView{SKU: "a", Quantity: 50, Price: price(10)}, DefaultWeights())
	require.Equal(t, 120, s.Score)
}

func TestScoreLowStockBonus(t *testing.T) {
	s := Score(types.SkuView{SKU: "a", Quantity: 5, Price: price(10)}, DefaultWeights())
	require.Equal(t, 110, s.Score)
}

func TestScoreHighValueBonus(t *testing.T) {
	s := Score(types.SkuView{SKU: "a", Quantity: 20, Price: price(50)}, DefaultWeights())
	require.Equal(t, 115, s.Score)
}

func TestScoreAllBonusesStack(t *testing.T) {
	s := Score(types.SkuView{SKU: "a", Quantity: 50, Price: price(50)}, DefaultWeights())
	require.Equal(t, 135, s.Score)
}

func TestTopNFiltersZeroScores(t *testing.T) {
	views := []types.SkuView{
		{SKU: "zero-price", Quantity: 10, Price: nil},
		{SKU: "zero-qty", Quantity: 0, Price: price(5)},
		{SKU: "ok", Quantity: 10, Price: price(5)},
	}
	scored := ScoreAll(views, DefaultWeights())
	top := TopN(scored, 10)
	require.Len(t, top, 1)
	require.Equal(t, "ok", top[0].SKU)
}

func TestTopNOrdersByScoreDescending(t *testing.T) {
	views := []types.SkuView{
		{SKU: "low", Quantity: 20, Price: price(10)},  // 100
		{SKU: "high", Quantity: 50, Price: price(50)}, // 135
		{SKU: "mid", Quantity: 5, Price: price(10)},   // 110
	}
	top := TopN(ScoreAll(views, DefaultWeights()), 10)
	require.Equal(t, []string{"high", "mid", "low"}, []string{top[0].SKU, top[1].SKU, top[2].SKU})
}

func TestTopNTiesBrokenByInsertionOrder(t *testing.T) {
	views := []types.SkuView{
		{SKU: "first", Quantity: 20, Price: price(10)},
		{SKU: "second", Quantity: 21, Price: price(11)},
		{SKU: "third", Quantity: 22, Price: price(12)},
	}
	top := TopN(ScoreAll(views, DefaultWeights()), 10)
	require.Equal(t, []string{"first", "second", "third"}, []string{top[0].SKU, top[1].SKU, top[2].SKU})
}

func TestTopNRespectsLimit(t *testing.T) {
	views := []types.SkuView{
		{SKU: "a", Quantity: 10, Price: price(5)},
		{SKU: "b", Quantity: 10, Price: price(5)},
		{SKU: "c", Quantity: 10, Price: price(5)},
	}
	top := TopN(ScoreAll(views, DefaultWeights()), 2)
	require.Len(t, top, 2)
}
