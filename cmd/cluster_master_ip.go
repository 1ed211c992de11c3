package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var clusterMasterIPCmd = &cobra.Command{
	Use:     "master-ip <CLUSTER NAME>",
	Short:   "get the primary node ip",
	Long:    `Returns the host of the primary control-plane node, the one the API server certificate and the kubeconfig point to.`,
	Args:    cobra.ExactArgs(1),
	PreRunE: validateClusterExists,
	Run: func(cmd *cobra.Command, args []string) {
		_, cluster := AppConf.Config.FindClusterByName(args[0])
		fmt.Println(primaryHost(*cluster))
	},
}

func init() {
	clusterCmd.AddCommand(clusterMasterIPCmd)
}
