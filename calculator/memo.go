package calculator

import (
	"fmt"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
)

// Memo caches successful calculator results by input tuple. Errors are
// never cached. Safe for concurrent use.
type Memo struct {
	cache *cache.Cache
}

// NewMemo returns a Memo whose entries expire after ttl. A ttl of zero keeps
// entries forever, which is sound because the calculators are pure.
func NewMemo(ttl, cleanupInterval time.Duration) *Memo {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &Memo{cache: cache.New(ttl, cleanupInterval)}
}

// EstimateHourlyCost is the memoized EstimateHourlyCost.
func (m *Memo) EstimateHourlyCost(nodeCount int, pricePerNode decimal.Decimal) (decimal.Decimal, error) {
	key := "cost/" + strconv.Itoa(nodeCount) + "/" + pricePerNode.String()
	if v, ok := m.cache.Get(key); ok {
		return v.(decimal.Decimal), nil
	}
	cost, err := EstimateHourlyCost(nodeCount, pricePerNode)
	if err != nil {
		return decimal.Zero, err
	}
	m.cache.SetDefault(key, cost)
	return cost, nil
}

// RecommendPartitions is the memoized RecommendPartitions.
func (m *Memo) RecommendPartitions(totalCores int, largestShuffleReadGB, targetShuffleSizeMB float64) (int, error) {
	key := fmt.Sprintf("partitions/%d/%v/%v", totalCores, largestShuffleReadGB, targetShuffleSizeMB)
	if v, ok := m.cache.Get(key); ok {
		return v.(int), nil
	}
	partitions, err := RecommendPartitions(totalCores, largestShuffleReadGB, targetShuffleSizeMB)
	if err != nil {
		return 0, err
	}
	m.cache.SetDefault(key, partitions)
	return partitions, nil
}

// Len returns the number of cached results.
func (m *Memo) Len() int {
	return m.cache.ItemCount()
}
