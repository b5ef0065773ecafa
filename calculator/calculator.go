// Package calculator holds the cluster cost and shuffle partition formulas.
// Every function is pure; identical inputs always give identical results.
package calculator

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// ErrInvalidArgument is returned for out-of-range calculator inputs.
var ErrInvalidArgument = errors.New("invalid argument")

// mbPerGB converts the shuffle read size (GB) to the unit of the target
// partition size (MB).
const mbPerGB = 1000

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// EstimateHourlyCost returns nodeCount * pricePerNode with no rounding.
func EstimateHourlyCost(nodeCount int, pricePerNode decimal.Decimal) (decimal.Decimal, error) {
	if nodeCount < 1 {
		return decimal.Zero, invalidArgument("node count must be at least 1, got %d", nodeCount)
	}
	if pricePerNode.IsNegative() {
		return decimal.Zero, invalidArgument("price per node must not be negative, got %s", pricePerNode)
	}
	return decimal.NewFromInt(int64(nodeCount)).Mul(pricePerNode), nil
}

// RecommendPartitions returns the shuffle partition count for a job:
//
//	partitions = largestShuffleReadGB * 1000 / targetShuffleSizeMB
//	coreFactor = floor(partitions / totalCores)
//	result     = max(totalCores, coreFactor * totalCores)
//
// The result is never below totalCores and is always a multiple of it.
func RecommendPartitions(totalCores int, largestShuffleReadGB, targetShuffleSizeMB float64) (int, error) {
	if totalCores < 1 {
		return 0, invalidArgument("total cores must be at least 1, got %d", totalCores)
	}
	if !atLeastOne(largestShuffleReadGB) {
		return 0, invalidArgument("largest shuffle read (GB) must be at least 1, got %v", largestShuffleReadGB)
	}
	if !atLeastOne(targetShuffleSizeMB) {
		return 0, invalidArgument("target shuffle size (MB) must be at least 1, got %v", targetShuffleSizeMB)
	}

	partitions := largestShuffleReadGB * mbPerGB / targetShuffleSizeMB
	coreFactor := math.Floor(partitions / float64(totalCores))
	if coreFactor >= float64(math.MaxInt/totalCores) {
		return 0, invalidArgument("recommendation overflows: %v partitions across %d cores", partitions, totalCores)
	}

	return max(totalCores, int(coreFactor)*totalCores), nil
}

// TotalCores returns the core count of a cluster of workers nodes with
// cpusPerNode cores each.
func TotalCores(cpusPerNode, workers int) (int, error) {
	if cpusPerNode < 1 {
		return 0, invalidArgument("cpus per node must be at least 1, got %d", cpusPerNode)
	}
	if workers < 1 {
		return 0, invalidArgument("worker count must be at least 1, got %d", workers)
	}
	if workers > math.MaxInt/cpusPerNode {
		return 0, invalidArgument("core count overflows: %d workers x %d cpus", workers, cpusPerNode)
	}
	return cpusPerNode * workers, nil
}

// SparkConfSnippet returns the notebook line that applies partitions to a session.
func SparkConfSnippet(partitions int) string {
	return fmt.Sprintf(`spark.conf.set("spark.sql.shuffle.partitions", %d)`, partitions)
}

// atLeastOne rejects NaN and infinities along with values below 1.
func atLeastOne(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 1
}
