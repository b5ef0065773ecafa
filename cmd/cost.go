package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pixelfederation/spark-guide/calculator"
	"github.com/pixelfederation/spark-guide/pricing"
)

func newCostCmd(o *options) *cobra.Command {
	var nodeType string
	var nodes int

	cmd := &cobra.Command{
		Use:     "cost",
		Short:   "Estimate the hourly cost of a cluster",
		Example: `  spark-guide cost --node-type Standard_DS3_v2 --nodes 4 --region "Canada East"`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := o.loadCatalog(cmd.Context())
			if err != nil {
				return err
			}
			region := o.cfg.Catalog.DefaultRegion
			spec, err := lookupNode(catalog, nodeType, region)
			if err != nil {
				return err
			}

			cost, err := calculator.EstimateHourlyCost(nodes, spec.TotalPrice)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Node type:      %s (%d cores)\n", nodeType, spec.CPUs)
			fmt.Fprintf(out, "Region:         %s\n", region)
			fmt.Fprintf(out, "Price per node: %s %s/hour\n", spec.TotalPrice, o.cfg.Catalog.Currency)
			fmt.Fprintf(out, "Cost of the cluster is %s %s per hour.\n", cost, o.cfg.Catalog.Currency)
			return nil
		},
	}

	cmd.Flags().StringVar(&nodeType, "node-type", "", "Databricks worker node type, e.g. Standard_DS3_v2")
	cmd.Flags().IntVar(&nodes, "nodes", 1, "number of nodes in the cluster")
	_ = cmd.MarkFlagRequired("node-type")

	return cmd
}

// lookupNode resolves nodeType in region, listing the valid choices when
// either is unknown.
func lookupNode(catalog *pricing.Catalog, nodeType, region string) (pricing.NodeSpec, error) {
	if err := validateNodeType(catalog, nodeType); err != nil {
		return pricing.NodeSpec{}, err
	}
	if err := validateRegion(catalog, region); err != nil {
		return pricing.NodeSpec{}, err
	}
	return catalog.Lookup(nodeType, region)
}
