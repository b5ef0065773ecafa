package pricing

import (
	"errors"
	"fmt"
	"sort"

	"github.com/samber/lo"
	"go.uber.org/multierr"
)

// ValidationRule checks one invariant over the whole pricing table.
type ValidationRule func(entries map[string]map[string]NodeSpec) error

// DefaultValidationRules returns the invariants every catalog must satisfy.
func DefaultValidationRules() []ValidationRule {
	return []ValidationRule{
		validateNotEmpty,
		validateRegionCoverage,
		validateNodeSpecs,
	}
}

// Validate runs every rule and returns all violations combined.
func Validate(entries map[string]map[string]NodeSpec, rules []ValidationRule) error {
	var errs error
	for _, rule := range rules {
		errs = multierr.Append(errs, rule(entries))
	}
	return errs
}

func validateNotEmpty(entries map[string]map[string]NodeSpec) error {
	if len(entries) == 0 {
		return errors.New("catalog has no node types")
	}
	var errs error
	for _, nodeType := range sortedNodeTypes(entries) {
		if nodeType == "" {
			errs = multierr.Append(errs, errors.New("empty node type name"))
		}
		if len(entries[nodeType]) == 0 {
			errs = multierr.Append(errs, fmt.Errorf("%s: no regions defined", nodeType))
		}
	}
	return errs
}

// validateRegionCoverage requires every node type to define every region
// that appears anywhere in the table.
func validateRegionCoverage(entries map[string]map[string]NodeSpec) error {
	regions := supportedRegions(entries)
	var errs error
	for _, nodeType := range sortedNodeTypes(entries) {
		if len(entries[nodeType]) == 0 {
			continue
		}
		missing := lo.Filter(regions, func(region string, _ int) bool {
			_, ok := entries[nodeType][region]
			return !ok
		})
		if len(missing) > 0 {
			errs = multierr.Append(errs, fmt.Errorf("%s: missing regions %v", nodeType, missing))
		}
	}
	return errs
}

func validateNodeSpecs(entries map[string]map[string]NodeSpec) error {
	var errs error
	for _, nodeType := range sortedNodeTypes(entries) {
		regions := lo.Keys(entries[nodeType])
		sort.Strings(regions)
		for _, region := range regions {
			spec := entries[nodeType][region]
			if region == "" {
				errs = multierr.Append(errs, fmt.Errorf("%s: empty region name", nodeType))
			}
			if spec.TotalPrice.IsNegative() {
				errs = multierr.Append(errs, fmt.Errorf("%s/%s: negative %s %s", nodeType, region, keyTotalPrice, spec.TotalPrice))
			}
			if spec.CPUs < 1 {
				errs = multierr.Append(errs, fmt.Errorf("%s/%s: %s must be positive, got %d", nodeType, region, keyCPUs, spec.CPUs))
			}
		}
	}
	return errs
}

func sortedNodeTypes(entries map[string]map[string]NodeSpec) []string {
	nodeTypes := lo.Keys(entries)
	sort.Strings(nodeTypes)
	return nodeTypes
}
