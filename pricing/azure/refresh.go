package azure

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/pixelfederation/spark-guide/pricing"
)

const defaultConcurrency = 4

// ErrVMOnlyPrices is returned by Refresh unless RefreshOptions.VMOnly is set.
// Catalog prices are Databricks node prices, VM plus DBU, while the retail
// VM meters carry no DBU charge.
var ErrVMOnlyPrices = errors.New("retail VM prices exclude the Databricks DBU charge")

// RefreshOptions selects what a refresh touches.
type RefreshOptions struct {
	// Regions are catalog region names such as "Canada Central". Empty means
	// every region already in the base catalog.
	Regions []string
	// InstanceRegexes select the node types whose price is refreshed. Empty
	// means all; unmatched node types keep their base price.
	InstanceRegexes []*regexp.Regexp
	// Concurrency bounds parallel region fetches.
	Concurrency int
	// VMOnly accepts replacing TotalPrice with the VM price alone. Costs
	// computed from the result leave out the DBU charge.
	VMOnly bool
}

// Refresher regenerates the static pricing table from Azure retail prices.
// The Retail Prices API carries no core counts, so only node types already in
// the base catalog can be refreshed and their CPUs are kept.
type Refresher struct {
	client RetailPricesClient
}

// NewRefresher returns a Refresher backed by client.
func NewRefresher(client RetailPricesClient) *Refresher {
	return &Refresher{client: client}
}

// Refresh returns a new catalog with TotalPrice replaced by the current
// on-demand Linux VM retail price. It fails with ErrVMOnlyPrices before any
// request unless opts.VMOnly is set. The result must satisfy every catalog
// invariant, so a selected node type without a price in any requested region
// fails the whole refresh.
func (r *Refresher) Refresh(ctx context.Context, base *pricing.Catalog, opts RefreshOptions) (*pricing.Catalog, error) {
	if !opts.VMOnly {
		return nil, fmt.Errorf("%w: refusing to overwrite Databricks node prices without VM-only opt-in", ErrVMOnlyPrices)
	}

	regions := opts.Regions
	if len(regions) == 0 {
		regions = base.Regions()
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	var mu sync.Mutex
	prices := make(map[string]map[string]decimal.Decimal, len(regions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, region := range regions {
		region := region
		g.Go(func() error {
			log.Debugf("querying azure vm prices [region=%s]", region)
			items, err := r.client.GetVMPrices(gctx, ArmRegionName(region), []string{"Linux"})
			if err != nil {
				return fmt.Errorf("fetching prices [region=%s]: %w", region, err)
			}
			regionPrices := lowestLinuxPrices(items)
			mu.Lock()
			prices[region] = regionPrices
			mu.Unlock()
			log.Infof("fetched azure vm prices [region=%s, skus=%d]", region, len(regionPrices))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	entries := base.Entries()
	var errs error
	for _, nodeType := range base.NodeTypes() {
		selected := len(opts.InstanceRegexes) == 0 || isMatchAny(opts.InstanceRegexes, nodeType)
		cpus := entries[nodeType][base.Regions()[0]].CPUs

		for _, region := range regions {
			spec, known := entries[nodeType][region]
			if !selected {
				if !known {
					errs = multierr.Append(errs, fmt.Errorf("%s: not selected for refresh and has no price in new region %s", nodeType, region))
				}
				continue
			}

			price, ok := prices[region][nodeType]
			if !ok {
				errs = multierr.Append(errs, fmt.Errorf("%s: no retail price in %s", nodeType, region))
				continue
			}
			if !known {
				spec.CPUs = cpus
			}
			if !spec.TotalPrice.Equal(price) {
				log.Debugf("price changed [node-type=%s, region=%s, old=%s, new=%s]", nodeType, region, spec.TotalPrice, price)
			}
			spec.TotalPrice = price
			entries[nodeType][region] = spec
		}
	}
	if errs != nil {
		return nil, fmt.Errorf("refreshing catalog: %w", errs)
	}

	return pricing.New(entries)
}

// lowestLinuxPrices maps SKU to its cheapest Linux hourly price. The API can
// return several primary meters for one SKU.
func lowestLinuxPrices(items []RetailPriceItem) map[string]decimal.Decimal {
	linux := lo.Filter(items, func(item RetailPriceItem, _ int) bool {
		return classifyAzureOS(item.ProductName) == "Linux"
	})
	out := make(map[string]decimal.Decimal, len(linux))
	for _, item := range linux {
		price := decimal.NewFromFloat(item.RetailPrice)
		if current, ok := out[item.ArmSkuName]; ok && current.LessThanOrEqual(price) {
			continue
		}
		out[item.ArmSkuName] = price
	}
	return out
}

// ArmRegionName converts a display region name ("Canada Central") to the
// API's armRegionName ("canadacentral").
func ArmRegionName(region string) string {
	return strings.ToLower(strings.ReplaceAll(region, " ", ""))
}

// classifyAzureOS returns "Windows" if the product name contains "Windows", otherwise "Linux".
func classifyAzureOS(productName string) string {
	if strings.Contains(productName, "Windows") {
		return "Windows"
	}
	return "Linux"
}

func isMatchAny(regexList []*regexp.Regexp, text string) bool {
	for _, regex := range regexList {
		if regex.MatchString(text) {
			return true
		}
	}
	return false
}
