package cmd

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/samber/lo"

	"github.com/pixelfederation/spark-guide/pricing"
)

func splitAndTrim(str string) []string {
	if str == "" {
		return []string{}
	}
	parts := strings.Split(str, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func compileRegexes(regexes []string) ([]*regexp.Regexp, error) {
	compiledRegexes := make([]*regexp.Regexp, len(regexes))
	for i, r := range regexes {
		re, err := regexp.Compile(r)
		if err != nil {
			return nil, fmt.Errorf("invalid regex %s: %s", r, err)
		}
		compiledRegexes[i] = re
	}
	return compiledRegexes, nil
}

func validateRegion(catalog *pricing.Catalog, region string) error {
	if !catalog.HasRegion(region) {
		return fmt.Errorf("%w: region '%s' is not recognized. Available regions: %s", pricing.ErrNotFound, region, strings.Join(catalog.Regions(), ", "))
	}
	return nil
}

func validateNodeType(catalog *pricing.Catalog, nodeType string) error {
	if !lo.Contains(catalog.NodeTypes(), nodeType) {
		return fmt.Errorf("%w: node type '%s' is not recognized. Available node types: %s", pricing.ErrNotFound, nodeType, strings.Join(catalog.NodeTypes(), ", "))
	}
	return nil
}
