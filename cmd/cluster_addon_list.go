package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xetys/kubefleet/pkg/addons"
)

var clusterAddonListCmd = &cobra.Command{
	Use:   "list",
	Short: "list the currently available addons",
	Run: func(cmd *cobra.Command, args []string) {
		tw := new(tabwriter.Writer)
		tw.Init(os.Stdout, 0, 8, 2, '\t', 0)
		fmt.Fprintln(tw, "NAME\tREQUIRES\tDESCRIPTION\tURL")

		addonService := addons.NewClusterAddonService(addons.Environment{})
		for _, addon := range addonService.Addons() {
			requires := "-"
			if len(addon.Requires()) > 0 {
				requires = strings.Join(addon.Requires(), ", ")
			}

			fmt.Fprintf(tw, "%s\t%s\t%s\t%s", addon.Name(), requires, addon.Description(), addon.URL())
			fmt.Fprintln(tw)
		}

		tw.Flush()
	},
}

func init() {
	clusterAddonCmd.AddCommand(clusterAddonListCmd)
}
