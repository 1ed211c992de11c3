package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xetys/kubefleet/pkg/clustermanager"
)

var clusterPlanCmd = &cobra.Command{
	Use:   "plan",
	Short: "prints the nodes a cluster create would allocate",
	Long: `Allocates the node identities of the current sizing configuration without touching any machine.

Example: kubefleet cluster plan -n my-cluster -m 3 -w 5`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindSizingFlags(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		sizing, err := sizingConfig(viper.GetViper())
		if err != nil {
			return err
		}
		if name, _ := cmd.Flags().GetString("name"); name != "" {
			sizing.ClusterName = name
		}

		nodes, err := clustermanager.Allocate(sizing)
		if err != nil {
			return err
		}
		fmt.Print(Sdump(nodes))
		return nil
	},
}

func init() {
	clusterCmd.AddCommand(clusterPlanCmd)
	addSizingFlags(clusterPlanCmd)
}
