package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pixelfederation/spark-guide/pricing"
	"github.com/pixelfederation/spark-guide/pricing/azure"
)

func newCatalogCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect, validate and regenerate the pricing table",
	}
	cmd.AddCommand(newCatalogListCmd(o))
	cmd.AddCommand(newCatalogValidateCmd(o))
	cmd.AddCommand(newCatalogSyncCmd(o))
	return cmd
}

func newCatalogListCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List node types priced in a region",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := o.loadCatalog(cmd.Context())
			if err != nil {
				return err
			}
			region := o.cfg.Catalog.DefaultRegion
			if err := validateRegion(catalog, region); err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "NODE TYPE\tCPUS\tPRICE (%s/HOUR)\n", o.cfg.Catalog.Currency)
			for _, nodeType := range catalog.NodeTypes() {
				spec, err := catalog.Lookup(nodeType, region)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\n", nodeType, spec.CPUs, spec.TotalPrice)
			}
			return tw.Flush()
		},
	}
}

func newCatalogValidateCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Check a pricing table against the catalog invariants",
		Long: `Check a pricing table against the catalog invariants: every node type is
priced in every region, prices are not negative and CPU counts are positive.

Without an argument the configured table is checked.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				catalog *pricing.Catalog
				err     error
			)
			if len(args) == 1 {
				catalog, err = pricing.Load(cmd.Context(), pricing.FileSource{Path: args[0]})
			} else {
				catalog, err = o.loadCatalog(cmd.Context())
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "catalog OK: %d node types, regions: %s\n", catalog.Len(), strings.Join(catalog.Regions(), ", "))
			return nil
		},
	}
}

func newCatalogSyncCmd(o *options) *cobra.Command {
	var (
		regions         string
		instanceRegexes string
		currency        string
		output          string
		concurrency     int
		vmOnly          bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Regenerate the pricing table from Azure retail VM prices (requires --vm-only)",
		Long: `Regenerate the pricing table from the Azure Retail Prices API.

The current table is the base: CPU counts and node types are kept, and the
TotalPrice of every selected node type is replaced by the lowest on-demand
Linux VM price in each region. The result is validated before it is written.

Table prices are Databricks node prices, VM plus DBU. The retail VM meters
carry no DBU charge, so a synced table prices the VM alone and costs computed
from it leave out DBUs. Sync refuses to run unless --vm-only is given.`,
		Example: `  spark-guide catalog sync --regions "Canada Central,Canada East" --currency CAD --vm-only --output pricing.json`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := o.cfg.Azure

			regionList := splitAndTrim(regions)
			if len(regionList) == 0 {
				regionList = cfg.Regions
			}
			regexList := splitAndTrim(instanceRegexes)
			if len(regexList) == 0 {
				regexList = cfg.InstanceRegexes
			}
			compiled, err := compileRegexes(regexList)
			if err != nil {
				return err
			}
			if currency == "" {
				currency = cfg.Currency
			}
			if currency == "" {
				currency = o.cfg.Catalog.Currency
			}
			if concurrency <= 0 {
				concurrency = cfg.Concurrency
			}

			base, err := o.loadCatalog(cmd.Context())
			if err != nil {
				return err
			}

			factory := o.azureFactory
			if factory == nil {
				factory = azure.NewDefaultClientFactory(cfg.Timeout)
			}

			start := time.Now()
			refreshed, err := azure.NewRefresher(factory.NewRetailPricesClient(currency)).Refresh(cmd.Context(), base, azure.RefreshOptions{
				Regions:         regionList,
				InstanceRegexes: compiled,
				Concurrency:     concurrency,
				VMOnly:          vmOnly,
			})
			if err != nil {
				return err
			}
			log.Infof("Refreshed pricing catalog [node-types=%d, regions=%v, currency=%s, took=%s]", refreshed.Len(), refreshed.Regions(), currency, time.Since(start))
			log.Warn("Refreshed TotalPrice is the VM retail price only, DBU charges are not included")

			if output == "" || output == "-" {
				return refreshed.WriteJSON(cmd.OutOrStdout())
			}
			return writeFileAtomic(output, refreshed.WriteJSON)
		},
	}

	cmd.Flags().StringVar(&regions, "regions", "", "Comma separated list of Azure regions (defaults to config, then to the current table's regions)")
	cmd.Flags().StringVar(&instanceRegexes, "instance-regexes", "", "Comma separated list of node type regexes to refresh (defaults to *all*)")
	cmd.Flags().StringVar(&currency, "currency", "", "ISO currency code requested from Azure (defaults to config)")
	cmd.Flags().StringVar(&output, "output", "", "file to write the table to (defaults to stdout)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "parallel region fetches (defaults to config)")
	cmd.Flags().BoolVar(&vmOnly, "vm-only", false, "accept VM-only retail prices in place of Databricks VM+DBU prices")

	return cmd
}

// writeFileAtomic writes through a temporary file in the target directory so
// a failed write never leaves a truncated table behind.
func writeFileAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
