package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"datahub/pkg/catalog"
	"datahub/pkg/types"
)

func datasetsCmd() *cobra.Command {
	var (
		hub   string
		owner string
	)

	cmd := &cobra.Command{
		Use:   "datasets",
		Short: "List datasets",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger(verbose)
			defer logger.Sync()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cat, err := newCatalog(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}

			datasets, err := cat.ListAllDatasets(cmd.Context(), catalog.DatasetFilter{
				Hub:   types.Hub(hub),
				Owner: types.AccountID(owner),
			})
			if err != nil {
				return err
			}
			for _, dataset := range datasets {
				fmt.Printf("%s\towner=%s\thub=%s\tpermissions=%d\n",
					dataset.ID, dataset.OwnerAccountID, dataset.Hub, len(dataset.Permissions))
			}
			fmt.Printf("%d datasets\n", len(datasets))
			return nil
		},
	}

	cmd.Flags().StringVar(&hub, "hub", "", "filter by hub")
	cmd.Flags().StringVar(&owner, "owner", "", "filter by owner account")
	return cmd
}

func resourcesCmd() *cobra.Command {
	var dataset string

	cmd := &cobra.Command{
		Use:   "resources",
		Short: "List provisioned resources",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger(verbose)
			defer logger.Sync()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cat, err := newCatalog(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}

			resources, err := cat.ListAllResources(cmd.Context(), catalog.ResourceFilter{
				DatasetID: types.DatasetID(dataset),
			})
			if err != nil {
				return err
			}
			for _, resource := range resources {
				fmt.Printf("%s\t%s\t%s/%s\taccount=%s\t%s\n",
					resource.DatasetID, resource.Type, resource.Stage, resource.Region,
					resource.ResourceAccountID, resource.ARN)
			}
			fmt.Printf("%d resources\n", len(resources))
			return nil
		},
	}

	cmd.Flags().StringVar(&dataset, "dataset", "", "filter by dataset id")
	return cmd
}
