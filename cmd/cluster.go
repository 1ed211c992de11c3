package cmd

import (
	"github.com/spf13/cobra"
)

// clusterCmd represents the cluster command
var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "view and manage k3s clusters",
	Long: `This command bundles several sub-commands to handle k3s clusters, running on Hetzner Cloud
or on machines reachable over SSH.

A cluster has one primary control-plane node, optional secondary control-plane nodes and workers.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Usage()
	},
}

func init() {
	rootCmd.AddCommand(clusterCmd)
}
