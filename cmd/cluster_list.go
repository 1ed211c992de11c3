package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xetys/kubefleet/pkg/clustermanager"
)

// clusterListCmd represents the clusterList command
var clusterListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "lists all created clusters",
	Run: func(cmd *cobra.Command, args []string) {
		tw := new(tabwriter.Writer)
		tw.Init(os.Stdout, 0, 8, 2, '\t', 0)
		fmt.Fprintln(tw, "NAME\tPROVIDER\tNODES\tPRIMARY HOST")

		for _, cluster := range AppConf.Config.Clusters {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s", cluster.Name, cluster.Provider, len(cluster.Nodes), primaryHost(cluster))
			fmt.Fprintln(tw)
		}

		tw.Flush()
	},
}

// primaryHost returns the recorded host of the primary node
func primaryHost(cluster clustermanager.Cluster) string {
	for _, target := range cluster.Targets(nil) {
		if target.Node.IsPrimary() {
			return target.Host
		}
	}
	return ""
}

func init() {
	clusterCmd.AddCommand(clusterListCmd)
}
