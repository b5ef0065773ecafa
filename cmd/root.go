// Package cmd provides the spark-guide command line.
package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/pixelfederation/spark-guide/config"
	"github.com/pixelfederation/spark-guide/pricing"
	"github.com/pixelfederation/spark-guide/pricing/azure"
)

// options is the state shared by every subcommand.
type options struct {
	configFile string
	logLevel   string
	catalog    string
	region     string

	cfg    *config.Config
	loader *pricing.Loader

	// azureFactory overrides the Azure client factory used by catalog sync.
	azureFactory azure.ClientFactory
}

// NewRootCmd returns the spark-guide command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&options{})
}

func newRootCmd(o *options) *cobra.Command {
	root := &cobra.Command{
		Use:   "spark-guide",
		Short: "Azure Databricks cluster cost and shuffle partition calculator",
		Long: `spark-guide estimates the hourly cost of an Azure Databricks cluster and
recommends spark.sql.shuffle.partitions for a job.

Pricing comes from a static table: the one compiled into the binary, or a
JSON file given with --catalog.

Examples:
  spark-guide cost --node-type Standard_DS3_v2 --nodes 4
  spark-guide partitions --node-type Standard_DS3_v2 --workers 2 --shuffle-read-gb 100 --target-size-mb 128
  spark-guide serve --listen-address :8080`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.init()
		},
	}

	root.PersistentFlags().StringVar(&o.configFile, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&o.logLevel, "log-level", "", "log level (overrides config)")
	root.PersistentFlags().StringVar(&o.catalog, "catalog", "", "pricing JSON file (defaults to the embedded table)")
	root.PersistentFlags().StringVar(&o.region, "region", "", "Azure region, e.g. \"Canada Central\" (overrides config)")

	root.AddCommand(newServeCmd(o))
	root.AddCommand(newCostCmd(o))
	root.AddCommand(newPartitionsCmd(o))
	root.AddCommand(newCatalogCmd(o))

	return root
}

// Execute runs the CLI.
func Execute() error {
	return NewRootCmd().Execute()
}

func (o *options) init() error {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.catalog != "" {
		cfg.Catalog.Path = o.catalog
	}
	if o.region != "" {
		cfg.Catalog.DefaultRegion = o.region
	}
	cfg.Logging.ConfigureLogging()

	o.cfg = cfg
	o.loader = pricing.NewLoader(pricing.SourceFor(cfg.Catalog.Path))
	return nil
}

func (o *options) loadCatalog(ctx context.Context) (*pricing.Catalog, error) {
	return o.loader.Load(ctx)
}
