package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pixelfederation/spark-guide/calculator"
)

func newPartitionsCmd(o *options) *cobra.Command {
	var (
		nodeType     string
		workers      int
		cores        int
		readGB       float64
		targetSizeMB float64
	)

	cmd := &cobra.Command{
		Use:   "partitions",
		Short: "Recommend spark.sql.shuffle.partitions for a job",
		Long: `Recommend spark.sql.shuffle.partitions from the largest shuffle read of a
job and the desired size of each shuffle partition.

The cluster's core count is taken from --cores, or from the node type's CPUs
times --workers.`,
		Example: `  spark-guide partitions --node-type Standard_DS3_v2 --workers 2 --shuffle-read-gb 100 --target-size-mb 128
  spark-guide partitions --cores 16 --shuffle-read-gb 1 --target-size-mb 1000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			totalCores := cores
			if !cmd.Flags().Changed("cores") {
				if nodeType == "" {
					return fmt.Errorf("%w: either --cores or --node-type is required", calculator.ErrInvalidArgument)
				}
				catalog, err := o.loadCatalog(cmd.Context())
				if err != nil {
					return err
				}
				spec, err := lookupNode(catalog, nodeType, o.cfg.Catalog.DefaultRegion)
				if err != nil {
					return err
				}
				if totalCores, err = calculator.TotalCores(spec.CPUs, workers); err != nil {
					return err
				}
			}

			partitions, err := calculator.RecommendPartitions(totalCores, readGB, targetSizeMB)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Total cores: %d\n", totalCores)
			fmt.Fprintf(out, "Number of shuffle partitions you should be using is %d\n\n", partitions)
			fmt.Fprintln(out, calculator.SparkConfSnippet(partitions))
			return nil
		},
	}

	cmd.Flags().StringVar(&nodeType, "node-type", "", "Databricks worker node type, e.g. Standard_DS3_v2")
	cmd.Flags().IntVar(&workers, "workers", 1, "number of worker nodes")
	cmd.Flags().IntVar(&cores, "cores", 0, "total cluster cores (instead of --node-type and --workers)")
	cmd.Flags().Float64Var(&readGB, "shuffle-read-gb", 0, "largest known shuffle read, in GB")
	cmd.Flags().Float64Var(&targetSizeMB, "target-size-mb", 0, "target shuffle partition size, in MB")
	_ = cmd.MarkFlagRequired("shuffle-read-gb")
	_ = cmd.MarkFlagRequired("target-size-mb")
	cmd.MarkFlagsMutuallyExclusive("cores", "node-type")
	cmd.MarkFlagsMutuallyExclusive("cores", "workers")

	return cmd
}
